package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/joho/godotenv/autoload" // Automatically load .env file if present
	"github.com/rxtech-lab/safebet-mcp/internal/api"
	"github.com/rxtech-lab/safebet-mcp/internal/config"
	"github.com/rxtech-lab/safebet-mcp/internal/logger"
	"github.com/rxtech-lab/safebet-mcp/internal/mcp"
	"github.com/rxtech-lab/safebet-mcp/internal/scheduler"
	"github.com/rxtech-lab/safebet-mcp/internal/server"
	"go.uber.org/zap"
)

// configureAndStartServer serves the REST API and the MCP server at /mcp.
func configureAndStartServer(c *server.Container, port int) (*api.APIServer, int, error) {
	mcpServer := mcp.NewMCPServer(c)

	apiServer := api.NewAPIServer(c)
	apiServer.SetMCPServer(mcpServer)
	apiServer.EnableStreamableHttp()

	var portPtr *int
	if port != 0 {
		portPtr = &port
	}
	startedPort, err := apiServer.Start(portPtr)
	if err != nil {
		return nil, 0, err
	}
	return apiServer, startedPort, nil
}

func main() {
	configPath := os.Getenv("SAFEBET_CONFIG")
	cfg, err := config.Load(configPath, configPath == "")
	if err != nil {
		log.Fatal("Failed to load config:", err)
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

	if err := c.Scheduler.RunNow(ctx, scheduler.JobDrawRecovery); err != nil {
		zl.Warn("draw recovery failed", zap.Error(err))
	}
	if cfg.Cron.Enabled {
		c.Scheduler.Start()
		defer c.Scheduler.Stop()
	}

	apiServer, startedPort, err := configureAndStartServer(c, cfg.Server.Port)
	if err != nil {
		zl.Fatal("failed to start API server", zap.Error(err))
	}
	zl.Info("API server started", zap.Int("port", startedPort))

	// Set up graceful shutdown
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	zl.Info("shutting down server")
	if err := apiServer.Shutdown(); err != nil {
		zl.Error("error shutting down API server", zap.Error(err))
	}
	zl.Info("server shut down")
}
