package cli

import (
	"fmt"
	"os"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/relaylabs/pdfqa-server/internal/adapters/driving/jsonrpc"
	"github.com/relaylabs/pdfqa-server/internal/config"
)

// NewToolServerCommand builds the toolserver binary's root command: a
// newline-framed JSON-RPC server over stdin/stdout, plus a warm
// subcommand that pre-builds indices for a batch of PDFs before a
// proxy ever asks for them.
func NewToolServerCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "toolserver",
		Short: "PDF question-answering tool server",
		Long: `toolserver exposes extract_pdf_metadata, extract_pdf_text, search_pdf,
answer_question, answer_question_rag, answer_multiple_questions_rag,
summarize_document and extract_key_points as a closed JSON-RPC dispatch
table over stdin/stdout, one newline-delimited request per line.`,
	}

	root.AddCommand(newToolServerServeCmd())
	root.AddCommand(newToolServerWarmCmd())
	return root
}

func newToolServerServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the JSON-RPC tool server on stdin/stdout",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			c, err := buildCore(cfg)
			if err != nil {
				return err
			}
			server := jsonrpc.NewServer(c.tools)
			return server.Run(cmd.Context(), os.Stdin, os.Stdout)
		},
	}
}

func newToolServerWarmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "warm [pdf...]",
		Short: "Pre-build the chunk/vector index for one or more PDFs",
		Long: `warm forces the get-or-build path for each given PDF up front, so the
first /ask against it does not pay the extraction and embedding cost
inline. Progress is reported with a bar plus one status line per
file.`,
		Args: cobra.MinimumNArgs(1),
		RunE: runToolServerWarm,
	}
}

func runToolServerWarm(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	c, err := buildCore(cfg)
	if err != nil {
		return err
	}

	bar := progressbar.NewOptions(len(args),
		progressbar.OptionSetDescription("warming indices"),
		progressbar.OptionSetWriter(cmd.OutOrStdout()),
		progressbar.OptionShowCount(),
	)

	var failures int
	for _, path := range args {
		summary, err := c.tools.IndexDocument(cmd.Context(), path)
		if err != nil {
			failures++
			cmd.Printf("%s %s: %v\n", colorFailure("FAIL"), path, err)
		} else {
			cmd.Printf("%s %s: %d chunks (%s)\n", colorSuccess("OK"), path, summary.NumChunks, summary.EmbedderID)
		}
		_ = bar.Add(1)
	}

	if failures > 0 {
		return fmt.Errorf("warm: %d of %d documents failed to index", failures, len(args))
	}
	return nil
}
