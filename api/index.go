package handler

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/rxtech-lab/safebet-mcp/internal/api"
	"github.com/rxtech-lab/safebet-mcp/internal/config"
	"github.com/rxtech-lab/safebet-mcp/internal/logger"
	"github.com/rxtech-lab/safebet-mcp/internal/mcp"
	"github.com/rxtech-lab/safebet-mcp/internal/server"
)

var (
	apiServer *api.APIServer
	initOnce  sync.Once
	initErr   error
)

// Handler is the Vercel function entry point.
func Handler(w http.ResponseWriter, r *http.Request) {
	initOnce.Do(func() {
		initErr = initializeAPIServer()
	})
	if initErr != nil {
		log.Printf("Failed to initialize API server: %v", initErr)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	adaptor.FiberApp(apiServer.GetFiberApp())(w, r)
}

// initializeAPIServer builds the server from SAFEBET_* environment settings.
// Functions have no persistent disk, so the sqlite default moves to /tmp.
func initializeAPIServer() error {
	cfg, err := config.Load("", true)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if os.Getenv("VERCEL") == "1" && cfg.DB.Driver == "sqlite" {
		cfg.DB.Path = "/tmp/safebet.db"
	}

	zl, err := logger.New(cfg.Log)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	c, err := server.Initialize(context.Background(), cfg, zl)
	if err != nil {
		return err
	}

	apiServer = api.NewAPIServer(c)
	apiServer.SetMCPServer(mcp.NewMCPServer(c))
	apiServer.EnableStreamableHttp()

	apiServer.GetFiberApp().Get("/", func(c *fiber.Ctx) error {
		return c.JSON(map[string]interface{}{
			"message": "SafeBet MCP API",
			"status":  "running",
			"version": cfg.App.Version,
		})
	})
	return nil
}
