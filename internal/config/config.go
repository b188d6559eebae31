// Package config loads process-wide settings from the environment,
// with a .env file loaded first (via godotenv) so local development
// does not require exporting variables into the shell.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/relaylabs/pdfqa-server/internal/adapters/driven/config/file"
)

// Defaults mirror original_source's RAG configuration and the
// Perplexity-compatible completion backend.
const (
	DefaultChunkSize       = 1000
	DefaultChunkOverlap    = 200
	DefaultTopK            = 3
	DefaultEmbeddingModel  = "nomic-embed-text"
	DefaultMCPServerName   = "pdfqa-server"
	DefaultMaxSinglePass   = 12000
	DefaultMaxUploadBytes  = 50 * 1024 * 1024
	DefaultMaxInFlight     = 8
	DefaultCompletionRate  = 2.0
	DefaultRestartAttempts = 3
)

var defaultCORSOrigins = []string{"http://localhost:3000", "http://localhost:5173"}

// Config holds every setting the proxy and tool server read at startup.
// It is built once from the environment and passed down explicitly;
// nothing in internal/core reaches back into os.Getenv.
type Config struct {
	// ModelAPIKey authenticates outbound completion requests.
	ModelAPIKey string

	// ModelAPIURL overrides the completion endpoint.
	ModelAPIURL string

	// ModelID is the completion model identifier requested.
	ModelID string

	// EmbeddingBackend selects "ollama" or "openai".
	EmbeddingBackend string

	// EmbeddingModelID names the embedding model passed to whichever
	// backend is configured.
	EmbeddingModelID string

	// OpenAIAPIKey authenticates the OpenAI embedding backend, when selected.
	OpenAIAPIKey string

	// ChunkSize and ChunkOverlap parameterize the chunker.
	ChunkSize    int
	ChunkOverlap int

	// TopK is the default number of chunks retrieved per question.
	TopK int

	// MaxSinglePassChars bounds answer_question's full-document path.
	MaxSinglePassChars int

	// MaxUploadBytes bounds /upload's accepted file size.
	MaxUploadBytes int64

	// MaxInFlight bounds concurrent tool calls the proxy will forward.
	MaxInFlight int

	// CompletionRatePerSecond bounds outbound completion calls.
	CompletionRatePerSecond float64

	// RestartAttempts bounds child-process respawns within the restart window.
	RestartAttempts int

	// MCPServerName is advertised by the tool server (legacy naming
	// carried from the MCP-flavored original_source configuration).
	MCPServerName string

	// CORSOrigins is the allow-list for the proxy's HTTP surface.
	CORSOrigins []string

	// DataDir is the working directory root: uploads/, cache/, logs/.
	DataDir string

	// ToolServerPath overrides the resolved tool-server executable path.
	ToolServerPath string

	// Reformat enables the completion client's second markdown pass.
	Reformat bool

	// Verbose enables internal/logger debug output.
	Verbose bool
}

// Load reads a .env file if present, then a per-DataDir config.toml if
// present (settings a previous run persisted via the file.ConfigStore
// adapter), then builds a Config from the environment — which always
// wins when a variable is set — applying defaults for anything left
// unset by either layer.
func Load() (*Config, error) {
	_ = godotenv.Load()

	dataDir := envOrDefault("DATA_DIR", ".")
	store, err := file.NewConfigStore(dataDir)
	if err != nil {
		return nil, fmt.Errorf("config: loading config.toml: %w", err)
	}

	cfg := &Config{
		ModelAPIKey:             os.Getenv("MODEL_API_KEY"),
		ModelAPIURL:             os.Getenv("MODEL_API_URL"),
		ModelID:                 envOrStoreOrDefault("MODEL_ID", store, "model_id", "sonar"),
		EmbeddingBackend:        envOrStoreOrDefault("EMBEDDING_BACKEND", store, "embedding_backend", "ollama"),
		EmbeddingModelID:        envOrStoreOrDefault("EMBEDDING_MODEL_ID", store, "embedding_model_id", DefaultEmbeddingModel),
		OpenAIAPIKey:            os.Getenv("OPENAI_API_KEY"),
		ChunkSize:               envOrStoreOrDefaultInt("CHUNK_SIZE", store, "chunk_size", DefaultChunkSize),
		ChunkOverlap:            envOrStoreOrDefaultInt("CHUNK_OVERLAP", store, "chunk_overlap", DefaultChunkOverlap),
		TopK:                    envOrStoreOrDefaultInt("TOP_K", store, "top_k", DefaultTopK),
		MaxSinglePassChars:      envOrDefaultInt("MAX_SINGLE_PASS_CHARS", DefaultMaxSinglePass),
		MaxUploadBytes:          int64(envOrDefaultInt("MAX_UPLOAD_BYTES", DefaultMaxUploadBytes)),
		MaxInFlight:             envOrDefaultInt("MAX_IN_FLIGHT", DefaultMaxInFlight),
		CompletionRatePerSecond: envOrDefaultFloat("COMPLETION_RATE_PER_SECOND", DefaultCompletionRate),
		RestartAttempts:         envOrDefaultInt("RESTART_ATTEMPTS", DefaultRestartAttempts),
		MCPServerName:           envOrDefault("MCP_SERVER_NAME", DefaultMCPServerName),
		CORSOrigins:             envOrStoreSliceOrDefault("CORS_ORIGINS", store, "cors_origins", defaultCORSOrigins),
		DataDir:                 dataDir,
		ToolServerPath:          os.Getenv("TOOL_SERVER_PATH"),
		Reformat:                envOrDefaultBool("REFORMAT_ANSWERS", false),
		Verbose:                 envOrDefaultBool("VERBOSE", false),
	}

	if cfg.EmbeddingBackend == "openai" && cfg.OpenAIAPIKey == "" {
		return nil, fmt.Errorf("config: OPENAI_API_KEY is required when EMBEDDING_BACKEND=openai")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrDefaultInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envOrDefaultFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func envOrDefaultBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

// envOrStoreOrDefault resolves a setting in priority order: environment
// variable, then the persisted config.toml value, then fallback.
func envOrStoreOrDefault(envKey string, store *file.ConfigStore, storeKey, fallback string) string {
	if v := os.Getenv(envKey); v != "" {
		return v
	}
	if v := store.GetString(storeKey); v != "" {
		return v
	}
	return fallback
}

func envOrStoreOrDefaultInt(envKey string, store *file.ConfigStore, storeKey string, fallback int) int {
	if v := os.Getenv(envKey); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	if v, ok := store.Get(storeKey); ok {
		if n := store.GetInt(storeKey); n != 0 {
			return n
		}
		_ = v
	}
	return fallback
}

func envOrStoreSliceOrDefault(envKey string, store *file.ConfigStore, storeKey string, fallback []string) []string {
	if v := os.Getenv(envKey); v != "" {
		return envOrDefaultList(envKey, fallback)
	}
	if v := store.GetStringSlice(storeKey); len(v) > 0 {
		return v
	}
	return fallback
}

func envOrDefaultList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
