package server

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rxtech-lab/safebet-mcp/internal/cache"
	"github.com/rxtech-lab/safebet-mcp/internal/config"
	"github.com/rxtech-lab/safebet-mcp/internal/hooks"
	"github.com/rxtech-lab/safebet-mcp/internal/ledger"
	"github.com/rxtech-lab/safebet-mcp/internal/models"
	"github.com/rxtech-lab/safebet-mcp/internal/scheduler"
	"github.com/rxtech-lab/safebet-mcp/internal/services"
	"github.com/rxtech-lab/safebet-mcp/internal/wallet"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Container holds every long-lived service of a running instance.
type Container struct {
	Config config.Config
	Logger *zap.Logger
	Token  models.Token

	DBService services.DBService
	LedgerDB  *gorm.DB
	Node      *ledger.Node
	Signer    *wallet.KeySigner
	Store     cache.Store
	Locker    cache.Locker

	TxService   services.TransactionService
	Mirror      services.MirrorService
	HookService services.HookService
	Views       services.ViewService
	Executor    services.TransactionExecutor
	Pools       services.PoolService
	Staking     services.StakingService
	Draws       services.DrawService
	MirrorSync  services.MirrorSyncService
	Scheduler   *scheduler.Scheduler

	closers []func() error
}

// Initialize opens the databases, starts the ledger node and builds the services.
func Initialize(ctx context.Context, cfg config.Config, logger *zap.Logger) (*Container, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Container{Config: cfg, Logger: logger}
	if err := c.init(ctx); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

func (c *Container) init(ctx context.Context) error {
	cfg := c.Config
	token, ok := models.TokenBySymbol(cfg.Client.Token)
	if !ok {
		return fmt.Errorf("unsupported token %q", cfg.Client.Token)
	}
	c.Token = token

	signer, err := loadSigner(cfg.Wallet)
	if err != nil {
		return err
	}
	c.Signer = signer

	dbService, err := services.NewDBService(cfg.DB)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	c.DBService = dbService
	c.closers = append(c.closers, dbService.Close)

	ledgerDB, err := c.ledgerDB()
	if err != nil {
		return err
	}
	c.LedgerDB = ledgerDB

	c.Node, err = newNode(ledgerDB, cfg.Ledger, signer, c.Logger)
	if err != nil {
		return err
	}
	if cfg.Ledger.FundWallet > 0 {
		if err := fundIfEmpty(ctx, c.Node, signer.Address(), cfg.Ledger.FundWallet); err != nil {
			return err
		}
	}

	c.Store, c.Locker = c.cacheBackends()

	c.TxService = services.NewTransactionService(dbService.GetDB())
	c.Mirror = services.NewMirrorService(dbService.GetDB())
	c.HookService = services.NewHookService()
	if err := hooks.Register(c.HookService, c.Mirror, token); err != nil {
		return fmt.Errorf("failed to register hooks: %w", err)
	}

	c.Views = services.NewViewService(c.Node, c.Store, cfg.Ledger.ModuleAddress, cfg.Client.CacheTTL, c.Logger.Named("views"))
	c.Executor = services.NewTransactionExecutor(c.Node, signer, c.Views, c.TxService, c.HookService, services.ExecutorConfig{
		SubmitTimeout: cfg.Client.SubmitTimeout,
		WaitTimeout:   cfg.Client.WaitTimeout,
		TxTTL:         cfg.Client.TxTTL,
	}, c.Logger.Named("executor"))
	c.Pools = services.NewPoolService(c.Executor, c.Views, token)
	c.Staking = services.NewStakingService(c.Executor, c.Views)
	c.Draws = services.NewDrawService(c.Executor, c.Views, services.DrawConfig{
		SettleRetries: cfg.Client.SettleRetries,
		SettleBackoff: cfg.Client.SettleBackoff,
	}, c.Logger.Named("draws"))
	c.MirrorSync = services.NewMirrorSyncService(c.Views, c.Mirror, c.Executor, c.TxService, token, c.Logger.Named("mirror"))

	c.Scheduler = scheduler.New(ctx, c.Locker, cfg.Cron.LockTTL, c.Logger.Named("cron"))
	cronCfg := cfg.Cron
	if !cronCfg.Enabled {
		// jobs stay runnable on demand
		cronCfg.MirrorReconcile, cronCfg.DrawRecovery = "", ""
	}
	if err := scheduler.RegisterMaintenance(c.Scheduler, cronCfg, c.MirrorSync, c.Draws); err != nil {
		return err
	}

	c.Logger.Info("services initialized",
		zap.String("wallet", signer.Address()),
		zap.String("module", cfg.Ledger.ModuleAddress),
		zap.String("token", token.Symbol),
		zap.String("db_driver", cfg.DB.Driver),
		zap.String("cache_driver", cfg.Cache.Driver),
	)
	return nil
}

func (c *Container) ledgerDB() (*gorm.DB, error) {
	cfg := c.Config.DB
	shared := (cfg.Driver == "postgres" && (cfg.LedgerDSN == "" || cfg.LedgerDSN == cfg.DSN)) ||
		(cfg.Driver != "postgres" && (cfg.LedgerPath == "" || cfg.LedgerPath == cfg.Path))
	if shared {
		return c.DBService.GetDB(), nil
	}
	db, err := services.OpenLedgerDB(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger database: %w", err)
	}
	c.closers = append(c.closers, func() error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	})
	return db, nil
}

func (c *Container) cacheBackends() (cache.Store, cache.Locker) {
	cfg := c.Config.Cache
	if cfg.Driver != "redis" {
		return cache.NewMemoryStore(), cache.NewMemoryLocker()
	}
	store := cache.NewRedisStore(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}, cfg.Prefix)
	c.closers = append(c.closers, store.Close)
	return store, cache.NewRedisLocker(store.Client, cfg.Prefix)
}

// Close releases everything Initialize opened, in reverse order.
func (c *Container) Close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}

func loadSigner(cfg config.WalletConfig) (*wallet.KeySigner, error) {
	if cfg.PrivateKey == "" {
		return nil, errors.New("wallet.private_key is required")
	}
	signer, err := wallet.NewKeySigner(cfg.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("invalid wallet key: %w", err)
	}
	return signer, nil
}

func newNode(db *gorm.DB, cfg config.LedgerConfig, signer *wallet.KeySigner, logger *zap.Logger) (*ledger.Node, error) {
	defaultProtocol, err := ledger.ParseProtocol(cfg.DefaultProtocol)
	if err != nil {
		return nil, err
	}
	admin := cfg.AdminAddress
	if admin == "" {
		admin = signer.Address()
	}
	node, err := ledger.NewNode(db, ledger.Config{
		ModuleAddress:     cfg.ModuleAddress,
		Admin:             admin,
		StakeLockDuration: cfg.StakeLockDuration,
		DefaultProtocol:   defaultProtocol,
		Protocols: []ledger.ProtocolSeed{
			{ID: ledger.ProtocolAave, RateBps: cfg.AaveRateBps, Active: cfg.AaveActive},
			{ID: ledger.ProtocolEchelon, RateBps: cfg.EchelonRateBps, Active: cfg.EchelonActive},
		},
	}, ledger.WithLogger(logger.Named("ledger")))
	if err != nil {
		return nil, fmt.Errorf("failed to start ledger node: %w", err)
	}
	return node, nil
}

func fundIfEmpty(ctx context.Context, node *ledger.Node, address string, amount uint64) error {
	values, err := node.View(ctx, ledger.ViewRequest{
		Function:  ledger.FunctionID(node.ModuleAddress(), ledger.ModuleAccount, "get_balance"),
		Arguments: []any{address},
	})
	if err != nil {
		return fmt.Errorf("failed to read wallet balance: %w", err)
	}
	balance, err := ledger.ParseU64(values[0])
	if err != nil {
		return err
	}
	if balance > 0 {
		return nil
	}
	return node.Fund(ctx, address, amount)
}
