// Command agent is the interactive Claude client for the ethagent MCP server.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/spf13/cobra"

	"github.com/mbd888/ethagent/internal/agent"
	"github.com/mbd888/ethagent/internal/circuitbreaker"
	"github.com/mbd888/ethagent/internal/config"
	"github.com/mbd888/ethagent/internal/embedding"
	"github.com/mbd888/ethagent/internal/ingest"
	"github.com/mbd888/ethagent/internal/llm"
	"github.com/mbd888/ethagent/internal/logging"
	"github.com/mbd888/ethagent/internal/repl"
	"github.com/mbd888/ethagent/migrations"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cfg := config.LoadAgent()

	root := &cobra.Command{
		Use:   "agent",
		Short: "Talk to a local Ethereum node through Claude and the ethagent MCP server",
		Long: `Start an interactive session with Claude. Requests such as
"send 1 ETH from Alice to Bob" are carried out with the MCP server's tools,
and Uniswap documentation questions are answered with retrieved docs.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runREPL(cmd.Context(), cfg)
		},
	}
	root.PersistentFlags().BoolVarP(&cfg.Verbose, "verbose", "v", false, "Enable debug logging")
	root.Flags().StringVar(&cfg.MCPServerURL, "mcp-server", cfg.MCPServerURL, "MCP server URL")

	root.AddCommand(newFetchDocsCmd(cfg))
	return root
}

func newFetchDocsCmd(cfg *config.AgentConfig) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fetch-docs",
		Short: "Download Uniswap v2/v3 docs and contracts into the docs directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := logging.New(cfg.EffectiveLogLevel(), cfg.LogFormat)
			res, err := ingest.NewFetcher(cfg.DocsPath, logger).Fetch(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d files to %s (%d failed)\n", res.Written, cfg.DocsPath, len(res.Failed))
			return nil
		},
	}
	cmd.Flags().StringVar(&cfg.DocsPath, "dir", cfg.DocsPath, "Destination directory")
	return cmd
}

func runREPL(parent context.Context, cfg *config.AgentConfig) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Logs go to stderr so they do not interleave with REPL output.
	logger := logging.NewWithWriter(os.Stderr, cfg.EffectiveLogLevel(), cfg.LogFormat)
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		var missing *config.MissingEnvError
		if errors.As(err, &missing) {
			err = &agent.Error{Kind: agent.KindMissingEnvVar, Err: err}
		} else {
			err = &agent.Error{Kind: agent.KindConfig, Err: err}
		}
		logger.Error("invalid configuration", "error", err)
		return err
	}

	breaker := circuitbreaker.New(5, 30*time.Second)
	breaker.OnTransition(func(key string, from, to circuitbreaker.State) {
		logger.Warn("circuit breaker transition", "upstream", key, "from", from.String(), "to", to.String())
	})

	model, err := llm.New(cfg.AnthropicAPIKey,
		llm.WithBaseURL(cfg.AnthropicBaseURL),
		llm.WithModel(cfg.Model),
		llm.WithLogger(logger),
		llm.WithBreaker(breaker),
	)
	if err != nil {
		return &agent.Error{Kind: agent.KindClaudeAPI, Err: err}
	}

	engine, err := embedding.NewEngine(ctx, embedding.Config{
		Provider:    cfg.EmbeddingProvider,
		Model:       cfg.EmbeddingModel,
		OllamaURL:   cfg.OllamaURL,
		GenAIAPIKey: cfg.GenAIAPIKey,
		Breaker:     breaker,
	})
	if err != nil {
		return &agent.Error{Kind: agent.KindConfig, Err: err}
	}

	store, closeStore, err := openDocStore(ctx, cfg)
	if err != nil {
		return &agent.Error{Kind: agent.KindConfig, Err: err}
	}
	defer closeStore()

	logger.Info("connecting to MCP server", "url", cfg.MCPServerURL)
	mcpClient, err := agent.ConnectMCP(ctx, cfg.MCPServerURL)
	if err != nil {
		logger.Error("failed to connect to MCP server", "error", err)
		return err
	}
	defer func() { _ = mcpClient.Close() }()

	a, err := agent.New(ctx, model, mcpClient,
		agent.WithLogger(logger),
		agent.WithModelName(cfg.Model),
		agent.WithEmbedding(engine),
		agent.WithDocStore(store),
		agent.WithDocsPath(cfg.DocsPath),
	)
	if err != nil {
		return err
	}
	logger.Info("agent ready", "model", cfg.Model, "tools", len(a.Tools()), "embedding", engine.Name(), "doc_store", cfg.DocStore)

	return repl.New(a, os.Stdin, os.Stdout, repl.WithLogger(logger)).Run(ctx)
}

// openDocStore returns the configured document store and its closer.
func openDocStore(ctx context.Context, cfg *config.AgentConfig) (ingest.Store, func(), error) {
	switch cfg.DocStore {
	case "bolt":
		s, err := ingest.OpenBoltStore(cfg.DocStorePath)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { _ = s.Close() }, nil
	case "postgres":
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("open database: %w", err)
		}
		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()
			return nil, nil, fmt.Errorf("connect to database: %w", err)
		}
		if err := migrations.Up(ctx, db); err != nil {
			_ = db.Close()
			return nil, nil, fmt.Errorf("run migrations: %w", err)
		}
		return ingest.NewPostgresStore(db), func() { _ = db.Close() }, nil
	default:
		return ingest.NewMemoryStore(), func() {}, nil
	}
}
