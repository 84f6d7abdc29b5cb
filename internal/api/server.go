package api

import (
	"fmt"
	"net"
	"os"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/rxtech-lab/safebet-mcp/internal/api/middleware"
	"github.com/rxtech-lab/safebet-mcp/internal/mcp"
	"github.com/rxtech-lab/safebet-mcp/internal/scheduler"
	"github.com/rxtech-lab/safebet-mcp/internal/server"
	"github.com/rxtech-lab/safebet-mcp/internal/services"
	"github.com/rxtech-lab/safebet-mcp/internal/utils"
	"go.uber.org/zap"
)

type APIServer struct {
	app        *fiber.App
	logger     *zap.Logger
	auth       *utils.JwtAuthenticator
	pools      services.PoolService
	staking    services.StakingService
	draws      services.DrawService
	mirror     services.MirrorService
	mirrorSync services.MirrorSyncService
	executor   services.TransactionExecutor
	txService  services.TransactionService
	scheduler  *scheduler.Scheduler
	mcpServer  *mcp.MCPServer
	port       int
	mcpRouting bool
}

func NewAPIServer(c *server.Container) *APIServer {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		AppName:               c.Config.App.Name,
	})

	// Add middleware
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: c.Config.Server.CORSOrigins,
	}))
	app.Use(logger.New(logger.Config{
		Format:     "[${time}] ${status} - ${latency} ${method} ${path}\n",
		TimeFormat: "15:04:05",
		TimeZone:   "Local",
		Output:     os.Stderr,
	}))

	s := &APIServer{
		app:        app,
		logger:     c.Logger.Named("api"),
		pools:      c.Pools,
		staking:    c.Staking,
		draws:      c.Draws,
		mirror:     c.Mirror,
		mirrorSync: c.MirrorSync,
		executor:   c.Executor,
		txService:  c.TxService,
		scheduler:  c.Scheduler,
	}
	if c.Config.Auth.JWTSecret != "" {
		s.auth = utils.NewJwtAuthenticator(c.Config.Auth.JWTSecret, c.Config.Auth.Issuer)
	}
	s.setupRoutes()
	return s
}

func (s *APIServer) setupRoutes() {
	api := s.app.Group("/api")

	api.Post("/transactions", s.handleRelayTransaction)
	api.Get("/transactions/:hash", s.handleGetTransaction)

	api.Get("/pools", s.handleListPools)
	api.Get("/pools/:address", s.handleGetPool)
	api.Get("/pools/:address/participants/:account", s.handleGetParticipant)
	api.Get("/pools/:address/staking", s.handleGetStakingPosition)
	api.Get("/pools/:address/chart", s.handleGetChart)
	api.Get("/pools/:address/holders", s.handleGetTopHolders)

	api.Get("/protocols", s.handleListProtocols)
	api.Get("/tokens", s.handleListTokens)

	api.Get("/users/:address", s.handleGetUser)
	api.Get("/users/:address/history", s.handleGetUserHistory)

	admin := api.Group("/admin", middleware.AuthMiddleware(middleware.AuthConfig{
		JWTAuthenticator: s.auth,
		RequiredRole:     utils.RoleAdmin,
	}))
	admin.Post("/pools/:address/lock", s.handleLockAndStake)
	admin.Post("/pools/:address/retry-stake", s.handleRetryStake)
	admin.Post("/pools/:address/auto-resolve", s.handleAutoResolve)
	admin.Post("/pools/:address/resolve", s.handleResolve)
	admin.Post("/pools/:address/stake", s.handleStakePool)
	admin.Post("/pools/:address/unstake", s.handleUnstakePool)
	admin.Post("/protocols/default", s.handleSetDefaultProtocol)
	admin.Post("/protocols/:id/rate", s.handleUpdateProtocolRate)
	admin.Post("/protocols/:id/active", s.handleSetProtocolActive)
	admin.Post("/mirror/reconcile", s.handleReconcile)

	// Health check
	s.app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(map[string]string{"status": "ok"})
	})
}

// Start starts the server on port, or on a random available port when port is nil.
func (s *APIServer) Start(port *int) (int, error) {
	if port == nil || *port == 0 {
		// Find an available port
		listener, err := net.Listen("tcp", ":0")
		if err != nil {
			return 0, fmt.Errorf("failed to find available port: %w", err)
		}
		s.port = listener.Addr().(*net.TCPAddr).Port
		// Close the listener so Fiber can use it
		listener.Close()
	} else {
		s.port = *port
	}

	go func() {
		if err := s.app.Listen(fmt.Sprintf(":%d", s.port)); err != nil {
			s.logger.Error("API server stopped", zap.Error(err))
		}
	}()

	return s.port, nil
}

func (s *APIServer) Shutdown() error {
	return s.app.Shutdown()
}

func (s *APIServer) GetPort() int {
	return s.port
}

// GetFiberApp exposes the router, e.g. for serverless adapters and app.Test.
func (s *APIServer) GetFiberApp() *fiber.App {
	return s.app
}

// SetMCPServer sets the MCP server instance served by EnableStreamableHttp
func (s *APIServer) SetMCPServer(mcpServer *mcp.MCPServer) {
	s.mcpServer = mcpServer
}

// GetMCPServer returns the MCP server instance
func (s *APIServer) GetMCPServer() *mcp.MCPServer {
	return s.mcpServer
}

// EnableStreamableHttp mounts the MCP server at /mcp. The MCP tools sign with
// the service wallet, so the route takes an admin token once auth is configured.
func (s *APIServer) EnableStreamableHttp() {
	if s.mcpServer == nil || s.mcpRouting {
		return
	}
	s.mcpRouting = true

	handler := adaptor.HTTPHandler(mcpserver.NewStreamableHTTPServer(s.mcpServer.GetServer(),
		mcpserver.WithEndpointPath("/mcp"),
		mcpserver.WithStateLess(true),
	))
	if s.auth == nil {
		s.logger.Warn("auth.jwt_secret is empty, /mcp is served without authentication")
		s.app.All("/mcp", handler)
		return
	}
	s.app.All("/mcp", middleware.AuthMiddleware(middleware.AuthConfig{
		JWTAuthenticator: s.auth,
		RequiredRole:     utils.RoleAdmin,
	}), handler)
}
