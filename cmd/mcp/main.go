// Command mcp serves the Ethereum and web search tools over MCP, on
// streamable HTTP or stdio.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	mcpgo "github.com/mark3labs/mcp-go/server"

	"github.com/mbd888/ethagent/internal/chain"
	"github.com/mbd888/ethagent/internal/circuitbreaker"
	"github.com/mbd888/ethagent/internal/config"
	"github.com/mbd888/ethagent/internal/health"
	"github.com/mbd888/ethagent/internal/logging"
	"github.com/mbd888/ethagent/internal/mcpserver"
	"github.com/mbd888/ethagent/internal/ratelimit"
	"github.com/mbd888/ethagent/internal/realtime"
	"github.com/mbd888/ethagent/internal/search"
	"github.com/mbd888/ethagent/internal/server"
	"github.com/mbd888/ethagent/internal/traces"
)

// Build info - set by ldflags
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	cfg, err := config.LoadServer()
	if err != nil {
		logging.NewWithWriter(os.Stderr, "info", "text").Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// stdout belongs to the JSON-RPC stream in stdio mode.
	logOut := os.Stdout
	if cfg.Transport == config.TransportStdio {
		logOut = os.Stderr
	}
	logger := logging.NewWithWriter(logOut, cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	logger.Info("starting ethagent MCP server",
		"version", Version,
		"commit", Commit,
		"build_time", BuildTime,
		"transport", cfg.Transport,
	)

	if err := run(cfg, logger); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.ServerConfig, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := traces.Init(ctx, "ethagent-mcp", cfg.OTLPEndpoint, logger)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(sctx)
	}()

	svc, err := chain.New(ctx, chain.Config{
		RPCURL:       cfg.RPCURL,
		PrivateKey:   cfg.PrivateKey,
		SlippageBps:  cfg.SlippageBps,
		DeadlineSecs: cfg.DeadlineSecs,
	})
	if err != nil {
		return err
	}
	defer func() { _ = svc.Close() }()

	logger.Info("connected to node",
		"rpc", cfg.RPCURL,
		"chain_id", svc.ChainID(),
		"accounts", svc.AccountCount(),
		"alice", svc.Alice().Hex(),
		"bob", svc.Bob().Hex(),
		"private_key", svc.HasPrivateKey(),
	)
	if svc.HasPrivateKey() && !svc.KeyMatchesAlice() {
		logger.Warn("private key does not belong to account 0; transactions will be sent from the key's address")
	}

	reg := health.NewRegistry()
	reg.Register("ethereum", health.Ping("ethereum", svc.Ping))

	breaker := circuitbreaker.New(5, 30*time.Second)
	breaker.OnTransition(func(key string, from, to circuitbreaker.State) {
		logger.Warn("circuit breaker transition", "upstream", key, "from", from.String(), "to", to.String())
	})

	searchOpts := []search.Option{
		search.WithBaseURL(cfg.BraveSearchURL),
		search.WithBreaker(breaker),
		search.WithLogger(logger),
	}
	if cfg.RedisURL != "" {
		rdb, err := search.DialRedis(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		defer func() { _ = rdb.Close() }()
		cache := search.NewRedisCache(rdb)
		searchOpts = append(searchOpts, search.WithCache(cache, cfg.SearchCacheTTL))
		reg.Register("search_cache", health.Ping("search_cache", cache.Ping))
	} else {
		searchOpts = append(searchOpts, search.WithCache(search.NewMemoryCache(0), cfg.SearchCacheTTL))
	}
	searchClient := search.New(cfg.BraveAPIKey, searchOpts...)
	if !searchClient.Enabled() {
		logger.Warn("BRAVE_SEARCH_API_KEY not set; search tools will report an error")
	}

	hub := realtime.NewHub(logger)
	handlers := mcpserver.NewHandlers(svc, searchClient,
		mcpserver.WithPublisher(hub),
		mcpserver.WithHandlerLogger(logger),
	)
	mcp := mcpserver.NewMCPServer(handlers)

	if cfg.Transport == config.TransportStdio {
		go hub.Run(ctx)
		logger.Info("serving MCP on stdio")
		return mcpgo.ServeStdio(mcp, mcpgo.WithErrorLogger(slog.NewLogLogger(logger.Handler(), slog.LevelError)))
	}

	srv := server.New(cfg, mcp,
		server.WithLogger(logger),
		server.WithHub(hub),
		server.WithHealth(reg),
		server.WithRateLimit(ratelimit.DefaultConfig()),
	)
	return srv.Run(ctx)
}
