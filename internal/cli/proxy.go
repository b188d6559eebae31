package cli

import (
	"fmt"
	"os/exec"

	"github.com/spf13/cobra"

	"github.com/relaylabs/pdfqa-server/internal/adapters/driven/ratelimit"
	"github.com/relaylabs/pdfqa-server/internal/adapters/driven/toolclient"
	"github.com/relaylabs/pdfqa-server/internal/adapters/driving/httpproxy"
	"github.com/relaylabs/pdfqa-server/internal/config"
	"github.com/relaylabs/pdfqa-server/internal/logger"
)

// NewProxyCommand builds the proxy binary's root command: an HTTP
// surface that spawns the toolserver binary as a child process and
// bridges browser requests to its JSON-RPC tools/call interface.
func NewProxyCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "proxy",
		Short: "PDF question-answering HTTP proxy",
		Long: `proxy exposes /upload, /ask/{pdf_id}, /ask-multiple/{pdf_id}, /pdfs and
/pdf/{pdf_id} over HTTP, translating each request into a tools/call
invocation against a supervised toolserver child process.`,
	}
	root.AddCommand(newProxyServeCmd())
	return root
}

func newProxyServeCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP proxy and its supervised tool server child",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runProxyServe(cmd, addr)
		},
	}
	cmd.Flags().StringVarP(&addr, "addr", "a", ":8080", "address the proxy listens on")
	return cmd
}

func runProxyServe(cmd *cobra.Command, addr string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger.SetVerbose(cfg.Verbose)

	toolServerPath := cfg.ToolServerPath
	if toolServerPath == "" {
		resolved, err := exec.LookPath("toolserver")
		if err != nil {
			return fmt.Errorf("resolving toolserver executable (set TOOL_SERVER_PATH to override): %w", err)
		}
		toolServerPath = resolved
	}

	supervisor := toolclient.NewSupervisor(toolServerPath, []string{"serve"}, cfg.RestartAttempts)
	ctx := cmd.Context()
	if err := supervisor.Start(ctx); err != nil {
		return fmt.Errorf("starting tool server: %w", err)
	}
	defer supervisor.Stop() //nolint:errcheck

	handles, err := newHandleStore(cfg)
	if err != nil {
		return err
	}

	limiter := ratelimit.New(cfg.CompletionRatePerSecond, cfg.MaxInFlight)
	server := httpproxy.NewServer(supervisor, handles, limiter, cfg.DataDir, cfg.MaxUploadBytes, cfg.TopK, cfg.ModelID, cfg.CORSOrigins)

	cmd.Printf("%s proxy listening on %s\n", colorSuccess("ready"), addr)
	return server.Run(ctx, addr)
}
