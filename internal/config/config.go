// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Transports supported by the MCP server.
const (
	TransportHTTP  = "http"
	TransportStdio = "stdio"
)

// Anvil and mainnet-fork defaults
const (
	DefaultRPCURL          = "http://127.0.0.1:8545"
	DefaultSlippageBps     = 500 // 5%
	DefaultDeadlineSecs    = 300
	DefaultMCPHost         = "127.0.0.1"
	DefaultMCPPort         = "8080"
	DefaultMCPPath         = "/mcp"
	DefaultBraveSearchURL  = "https://api.search.brave.com/res/v1/web/search"
	DefaultSearchCacheTTL  = 300
	DefaultLogLevel        = "info"
	DefaultLogFormat       = "text"
	DefaultMCPServerURL    = "http://127.0.0.1:8080/mcp"
	DefaultAnthropicURL    = "https://api.anthropic.com/v1"
	DefaultAnthropicModel  = "claude-3-haiku-20240307"
	DefaultDocsPath        = "docs/uniswap"
	DefaultOllamaURL       = "http://localhost:11434"
	DefaultEmbeddingEngine = "hash"
	DefaultDocStore        = "memory"
	DefaultDocStorePath    = "ethagent-docs.db"
)

// ServerConfig holds the MCP server configuration
type ServerConfig struct {
	// Node
	RPCURL     string
	PrivateKey string // Alice's key, hex, optional

	// Swap parameters
	SlippageBps  int64
	DeadlineSecs int64

	// Transport
	Host      string
	Port      string
	Path      string
	Transport string

	// Search
	BraveAPIKey    string
	BraveSearchURL string
	RedisURL       string // optional, in-memory cache when empty
	SearchCacheTTL time.Duration

	// Observability
	OTLPEndpoint string
	LogLevel     string
	LogFormat    string
}

// LoadServer reads the MCP server configuration. A .env file in the working
// directory is loaded first when present.
func LoadServer() (*ServerConfig, error) {
	_ = godotenv.Load()

	cfg := &ServerConfig{
		RPCURL:         firstEnv(DefaultRPCURL, "ANVIL_RPC_URL", "RPC_URL"),
		PrivateKey:     firstEnv("", "ALICE_PRIVATE_KEY", "PRIVATE_KEY"),
		SlippageBps:    getEnvInt64("DEFAULT_SLIPPAGE_BPS", DefaultSlippageBps),
		DeadlineSecs:   getEnvInt64("DEFAULT_DEADLINE_SECS", DefaultDeadlineSecs),
		Host:           getEnv("MCP_HOST", DefaultMCPHost),
		Port:           getEnv("MCP_PORT", DefaultMCPPort),
		Path:           getEnv("MCP_PATH", DefaultMCPPath),
		Transport:      strings.ToLower(getEnv("MCP_TRANSPORT", TransportHTTP)),
		BraveAPIKey:    os.Getenv("BRAVE_SEARCH_API_KEY"),
		BraveSearchURL: getEnv("BRAVE_SEARCH_URL", DefaultBraveSearchURL),
		RedisURL:       os.Getenv("REDIS_URL"),
		SearchCacheTTL: time.Duration(getEnvInt64("SEARCH_CACHE_TTL_SECS", DefaultSearchCacheTTL)) * time.Second,
		OTLPEndpoint:   os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		LogLevel:       getEnv("LOG_LEVEL", DefaultLogLevel),
		LogFormat:      getEnv("LOG_FORMAT", DefaultLogFormat),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the server configuration
func (c *ServerConfig) Validate() error {
	if c.RPCURL == "" {
		return fmt.Errorf("RPC_URL is required")
	}
	if c.PrivateKey != "" {
		key := strings.TrimPrefix(c.PrivateKey, "0x")
		if len(key) != 64 {
			return fmt.Errorf("ALICE_PRIVATE_KEY must be 64 hex characters (with or without 0x prefix)")
		}
	}
	if c.SlippageBps < 0 || c.SlippageBps > 10_000 {
		return fmt.Errorf("DEFAULT_SLIPPAGE_BPS must be between 0 and 10000, got %d", c.SlippageBps)
	}
	if c.DeadlineSecs <= 0 {
		return fmt.Errorf("DEFAULT_DEADLINE_SECS must be positive, got %d", c.DeadlineSecs)
	}
	if c.Transport != TransportHTTP && c.Transport != TransportStdio {
		return fmt.Errorf("MCP_TRANSPORT must be %q or %q, got %q", TransportHTTP, TransportStdio, c.Transport)
	}
	return nil
}

// HasPrivateKey reports whether transactions can be signed.
func (c *ServerConfig) HasPrivateKey() bool {
	return c.PrivateKey != ""
}

// SlippagePercent returns the default slippage as a percentage.
func (c *ServerConfig) SlippagePercent() float64 {
	return float64(c.SlippageBps) / 100
}

// Addr returns host:port for the HTTP listener.
func (c *ServerConfig) Addr() string {
	return c.Host + ":" + c.Port
}

// AgentConfig holds the agent client configuration
type AgentConfig struct {
	AnthropicAPIKey  string
	AnthropicBaseURL string
	Model            string

	MCPServerURL string
	DocsPath     string

	EmbeddingProvider string // hash, ollama, genai
	EmbeddingModel    string
	OllamaURL         string
	GenAIAPIKey       string

	DocStore     string // memory, bolt, postgres
	DocStorePath string
	DatabaseURL  string

	Verbose   bool
	LogLevel  string
	LogFormat string
}

// LoadAgent reads the agent configuration without validating it, so that
// command-line flags can be applied before Validate runs.
func LoadAgent() *AgentConfig {
	_ = godotenv.Load()

	return &AgentConfig{
		AnthropicAPIKey:   os.Getenv("ANTHROPIC_API_KEY"),
		AnthropicBaseURL:  getEnv("ANTHROPIC_BASE_URL", DefaultAnthropicURL),
		Model:             getEnv("ANTHROPIC_MODEL", DefaultAnthropicModel),
		MCPServerURL:      getEnv("MCP_SERVER_URL", DefaultMCPServerURL),
		DocsPath:          getEnv("DOCS_PATH", DefaultDocsPath),
		EmbeddingProvider: strings.ToLower(getEnv("EMBEDDING_PROVIDER", DefaultEmbeddingEngine)),
		EmbeddingModel:    os.Getenv("EMBEDDING_MODEL"),
		OllamaURL:         getEnv("OLLAMA_URL", DefaultOllamaURL),
		GenAIAPIKey:       firstEnv("", "GENAI_API_KEY", "GEMINI_API_KEY"),
		DocStore:          strings.ToLower(getEnv("DOC_STORE", DefaultDocStore)),
		DocStorePath:      getEnv("DOC_STORE_PATH", DefaultDocStorePath),
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		LogLevel:          getEnv("LOG_LEVEL", DefaultLogLevel),
		LogFormat:         getEnv("LOG_FORMAT", DefaultLogFormat),
	}
}

// MissingEnvError reports a required environment variable that is unset.
type MissingEnvError struct {
	Name string
}

func (e *MissingEnvError) Error() string {
	return fmt.Sprintf("missing environment variable: %s", e.Name)
}

// Validate checks the agent configuration
func (c *AgentConfig) Validate() error {
	if c.AnthropicAPIKey == "" {
		return &MissingEnvError{Name: "ANTHROPIC_API_KEY"}
	}
	if c.MCPServerURL == "" {
		return fmt.Errorf("MCP server URL is required")
	}
	switch c.EmbeddingProvider {
	case "hash", "ollama":
	case "genai":
		if c.GenAIAPIKey == "" {
			return &MissingEnvError{Name: "GENAI_API_KEY"}
		}
	default:
		return fmt.Errorf("unknown EMBEDDING_PROVIDER %q (want hash, ollama or genai)", c.EmbeddingProvider)
	}
	switch c.DocStore {
	case "memory", "bolt":
	case "postgres":
		if c.DatabaseURL == "" {
			return &MissingEnvError{Name: "DATABASE_URL"}
		}
	default:
		return fmt.Errorf("unknown DOC_STORE %q (want memory, bolt or postgres)", c.DocStore)
	}
	return nil
}

// EffectiveLogLevel returns debug when verbose output was requested.
func (c *AgentConfig) EffectiveLogLevel() string {
	if c.Verbose {
		return "debug"
	}
	return c.LogLevel
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// firstEnv returns the first non-empty variable among keys.
func firstEnv(defaultValue string, keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}
