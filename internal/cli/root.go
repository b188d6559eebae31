// Package cli wires the tool server and proxy binaries' cobra commands
// to the core services, following the same command-per-concern layout
// the original CLI surface used.
package cli

import (
	"fmt"

	"github.com/fatih/color"

	"github.com/relaylabs/pdfqa-server/internal/adapters/driven/completion/perplexity"
	"github.com/relaylabs/pdfqa-server/internal/adapters/driven/config/file"
	"github.com/relaylabs/pdfqa-server/internal/adapters/driven/embedding/ollama"
	"github.com/relaylabs/pdfqa-server/internal/adapters/driven/embedding/openai"
	"github.com/relaylabs/pdfqa-server/internal/adapters/driven/extractor/pdftotext"
	"github.com/relaylabs/pdfqa-server/internal/adapters/driven/indexstore/filestore"
	"github.com/relaylabs/pdfqa-server/internal/adapters/driven/storage/sqlite"
	"github.com/relaylabs/pdfqa-server/internal/config"
	"github.com/relaylabs/pdfqa-server/internal/core/ports/driven"
	"github.com/relaylabs/pdfqa-server/internal/core/ports/driving"
	"github.com/relaylabs/pdfqa-server/internal/core/services"
	"github.com/relaylabs/pdfqa-server/internal/logger"
)

// core bundles everything built from a Config that the toolserver
// commands need.
type core struct {
	cfg     *config.Config
	tools   driving.ToolService
	handles driven.HandleStore
}

// buildCore assembles the extractor, embedder, completion client, index
// builder, registry and QA service into one ToolService, plus the
// SQLite-backed handle store. The toolserver commands call this and
// ignore the handle store; the proxy builds its own handle store with
// newHandleStore.
func buildCore(cfg *config.Config) (*core, error) {
	logger.SetVerbose(cfg.Verbose)

	extractor := pdftotext.New()

	var embedder driven.EmbeddingService
	switch cfg.EmbeddingBackend {
	case "openai":
		svc, err := openai.NewEmbeddingService(openai.Config{APIKey: cfg.OpenAIAPIKey, Model: cfg.EmbeddingModelID})
		if err != nil {
			return nil, fmt.Errorf("building openai embedding service: %w", err)
		}
		embedder = svc
	default:
		embedder = ollama.NewEmbeddingService(ollama.Config{Model: cfg.EmbeddingModelID})
	}

	completionClient, err := perplexity.New(perplexity.Config{
		APIKey:  cfg.ModelAPIKey,
		BaseURL: cfg.ModelAPIURL,
		Model:   cfg.ModelID,
	})
	if err != nil {
		return nil, fmt.Errorf("building completion client: %w", err)
	}

	prompts, err := file.NewPromptStore(cfg.DataDir + "/prompts")
	if err != nil {
		return nil, fmt.Errorf("building prompt store: %w", err)
	}
	completionClient.SetPromptStore(prompts)

	indexStore, err := filestore.New(cfg.DataDir + "/cache")
	if err != nil {
		return nil, fmt.Errorf("building index store: %w", err)
	}

	chunker := services.NewChunker(
		services.WithChunkSize(cfg.ChunkSize),
		services.WithOverlap(cfg.ChunkOverlap),
	)
	indexer := services.NewIndexBuilder(extractor, chunker, embedder, indexStore)
	retriever := services.NewRetriever(embedder)

	tools := services.NewToolService(extractor, indexer, retriever, completionClient, prompts,
		cfg.MaxSinglePassChars, cfg.Reformat, cfg.MaxInFlight)

	handles, err := newHandleStore(cfg)
	if err != nil {
		return nil, err
	}

	return &core{cfg: cfg, tools: tools, handles: handles}, nil
}

// newHandleStore builds the SQLite-backed handle store both buildCore
// (for the tool server, which never uses it) and the proxy command
// share, so the on-disk schema is created exactly once per data dir.
func newHandleStore(cfg *config.Config) (driven.HandleStore, error) {
	store, err := sqlite.NewStore(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("building handle store: %w", err)
	}
	return store, nil
}

// colorSuccess and colorFailure style one-line CLI status reports the
// way a terminal user expects success/failure to read at a glance.
var (
	colorSuccess = color.New(color.FgGreen).SprintFunc()
	colorFailure = color.New(color.FgRed).SprintFunc()
)
