package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/rxtech-lab/safebet-mcp/internal/api"
	"github.com/rxtech-lab/safebet-mcp/internal/config"
	"github.com/rxtech-lab/safebet-mcp/internal/logger"
	"github.com/rxtech-lab/safebet-mcp/internal/mcp"
	"github.com/rxtech-lab/safebet-mcp/internal/scheduler"
	"github.com/rxtech-lab/safebet-mcp/internal/server"
	"go.uber.org/zap"
)

// Build information (set via ldflags)
var (
	Version    = "dev"
	CommitHash = "unknown"
	BuildTime  = "unknown"
)

// configureAndStartServer starts the relay API next to the stdio MCP server.
// Wallet users post their signed deposits there.
func configureAndStartServer(c *server.Container, port int) (*api.APIServer, int, error) {
	apiServer := api.NewAPIServer(c)

	var portPtr *int
	if port != 0 {
		portPtr = &port
	}
	startedPort, err := apiServer.Start(portPtr)
	if err != nil {
		return nil, 0, err
	}

	mcpServer := mcp.NewMCPServer(c)
	apiServer.SetMCPServer(mcpServer)

	return apiServer, startedPort, nil
}

func main() {
	var showVersion = flag.Bool("version", false, "Show version information")
	var showHelp = flag.Bool("help", false, "Show help information")
	var configPath = flag.String("config", os.Getenv("SAFEBET_CONFIG"), "Path to the yaml config file")
	flag.Parse()

	// stdout carries the MCP protocol
	log.SetOutput(os.Stderr)

	if *showVersion {
		log.Printf("SafeBet MCP Server\n")
		log.Printf("Version: %s\n", Version)
		log.Printf("Commit: %s\n", CommitHash)
		log.Printf("Built: %s\n", BuildTime)
		return
	}

	if *showHelp {
		log.Printf("SafeBet MCP Server\n\n")
		log.Printf("Usage: %s [options]\n\n", os.Args[0])
		log.Printf("Options:\n")
		log.Printf("  --version    Show version information\n")
		log.Printf("  --help       Show this help message\n")
		log.Printf("  --config     Path to the yaml config file (default $SAFEBET_CONFIG)\n\n")
		log.Printf("Description:\n")
		log.Printf("  No-loss lottery pools over stdio. Deposits are staked for yield and\n")
		log.Printf("  the yield is paid to the holders of the winning outcome.\n")
		log.Printf("  Settings can be overridden with SAFEBET_* environment variables.\n")
		return
	}

	cfg, err := config.Load(*configPath, *configPath == "")
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}
	if cfg.Log.OutputPath == "" || cfg.Log.OutputPath == "stdout" {
		cfg.Log.OutputPath = "stderr"
	}
	if cfg.App.Version == "" {
		cfg.App.Version = Version
	}

	zl, err := logger.New(cfg.Log)
	if err != nil {
		log.Fatal("Failed to create logger:", err)
	}
	defer zl.Sync()

	ctx := context.Background()
	c, err := server.Initialize(ctx, cfg, zl)
	if err != nil {
		zl.Fatal("failed to initialize", zap.Error(err))
	}
	defer c.Close()

	// finish draws a previous run left between unstake and payout
	if err := c.Scheduler.RunNow(ctx, scheduler.JobDrawRecovery); err != nil {
		zl.Warn("draw recovery failed", zap.Error(err))
	}
	if cfg.Cron.Enabled {
		c.Scheduler.Start()
		defer c.Scheduler.Stop()
	}

	apiServer, port, err := configureAndStartServer(c, cfg.Server.Port)
	if err != nil {
		zl.Fatal("failed to start API server", zap.Error(err))
	}
	zl.Info("API server started", zap.Int("port", port))

	mcpServer := apiServer.GetMCPServer()
	if mcpServer == nil {
		zl.Fatal("MCP server not found")
	}

	go func() {
		if err := mcpServer.Start(); err != nil {
			zl.Fatal("failed to start MCP server", zap.Error(err))
		}
	}()

	// Set up graceful shutdown
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	zl.Info("shutting down servers")
	if err := apiServer.Shutdown(); err != nil {
		zl.Error("error shutting down API server", zap.Error(err))
	}
	zl.Info("servers shut down")
}
