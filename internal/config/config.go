package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

type Config struct {
	App    AppConfig    `mapstructure:"app"`
	Server ServerConfig `mapstructure:"server"`
	Log    LogConfig    `mapstructure:"log"`
	DB     DBConfig     `mapstructure:"db"`
	Ledger LedgerConfig `mapstructure:"ledger"`
	Wallet WalletConfig `mapstructure:"wallet"`
	Client ClientConfig `mapstructure:"client"`
	Cache  CacheConfig  `mapstructure:"cache"`
	Auth   AuthConfig   `mapstructure:"auth"`
	Cron   CronConfig   `mapstructure:"cron"`
}

type AppConfig struct {
	Env     string `mapstructure:"env"`
	Name    string `mapstructure:"name" validate:"required"`
	Version string `mapstructure:"version"`
}

type ServerConfig struct {
	Port        int    `mapstructure:"port" validate:"gte=0,lte=65535"`
	CORSOrigins string `mapstructure:"cors_origins"`
}

type LogConfig struct {
	Level             string `mapstructure:"level"`
	Encoding          string `mapstructure:"encoding" validate:"oneof=json console"`
	Development       bool   `mapstructure:"development"`
	Sampling          bool   `mapstructure:"sampling"`
	DisableCaller     bool   `mapstructure:"disable_caller"`
	DisableStacktrace bool   `mapstructure:"disable_stacktrace"`
	// OutputPath is "stdout", "stderr" or a file. The stdio server must not log to stdout.
	OutputPath string `mapstructure:"output_path"`
}

type DBConfig struct {
	Driver string `mapstructure:"driver" validate:"oneof=sqlite postgres"`
	// Path is the sqlite file, DSN the postgres connection string
	Path            string        `mapstructure:"path"`
	DSN             string        `mapstructure:"dsn" validate:"required_if=Driver postgres"`
	LedgerPath      string        `mapstructure:"ledger_path"`
	LedgerDSN       string        `mapstructure:"ledger_dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

type LedgerConfig struct {
	ModuleAddress     string        `mapstructure:"module_address" validate:"required"`
	AdminAddress      string        `mapstructure:"admin_address"`
	StakeLockDuration time.Duration `mapstructure:"stake_lock_duration"`
	DefaultProtocol   string        `mapstructure:"default_protocol"`
	AaveRateBps       uint64        `mapstructure:"aave_rate_bps"`
	AaveActive        bool          `mapstructure:"aave_active"`
	EchelonRateBps    uint64        `mapstructure:"echelon_rate_bps"`
	EchelonActive     bool          `mapstructure:"echelon_active"`
	// FundWallet mints base units to the service wallet at startup when its balance is zero.
	FundWallet uint64 `mapstructure:"fund_wallet"`
}

type WalletConfig struct {
	PrivateKey string `mapstructure:"private_key"`
}

type ClientConfig struct {
	SubmitTimeout time.Duration `mapstructure:"submit_timeout" validate:"gt=0"`
	WaitTimeout   time.Duration `mapstructure:"wait_timeout" validate:"gt=0"`
	TxTTL         time.Duration `mapstructure:"tx_ttl" validate:"gt=0"`
	CacheTTL      time.Duration `mapstructure:"cache_ttl"`
	SettleRetries int           `mapstructure:"settle_retries" validate:"gte=0"`
	SettleBackoff time.Duration `mapstructure:"settle_backoff"`
	Token         string        `mapstructure:"token"`
}

type CacheConfig struct {
	Driver        string `mapstructure:"driver" validate:"oneof=memory redis"`
	RedisAddr     string `mapstructure:"redis_addr" validate:"required_if=Driver redis"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`
	Prefix        string `mapstructure:"prefix"`
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
	Issuer    string `mapstructure:"issuer"`
}

type CronConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	MirrorReconcile string        `mapstructure:"mirror_reconcile"`
	DrawRecovery    string        `mapstructure:"draw_recovery"`
	LockTTL         time.Duration `mapstructure:"lock_ttl"`
}

// Load reads the yaml file at path, then applies SAFEBET_* environment overrides.
// With envOnly set (or an empty path) only defaults and the environment are used.
func Load(path string, envOnly bool) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SAFEBET")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetConfigType("yaml")
	v.AutomaticEnv()
	setDefaults(v)

	if !envOnly && path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.env", "dev")
	v.SetDefault("app.name", "safebet-mcp")
	v.SetDefault("app.version", "dev")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", "*")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "json")
	v.SetDefault("log.development", false)
	v.SetDefault("log.sampling", false)
	v.SetDefault("log.disable_caller", false)
	v.SetDefault("log.disable_stacktrace", true)
	v.SetDefault("log.output_path", "stderr")
	v.SetDefault("db.driver", "sqlite")
	v.SetDefault("db.path", "./data/safebet.db")
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.ledger_path", "")
	v.SetDefault("db.ledger_dsn", "")
	v.SetDefault("db.max_open_conns", 20)
	v.SetDefault("db.max_idle_conns", 5)
	v.SetDefault("db.conn_max_lifetime", "30m")
	v.SetDefault("ledger.module_address", "0x5afe")
	v.SetDefault("ledger.admin_address", "")
	v.SetDefault("ledger.stake_lock_duration", "24h")
	v.SetDefault("ledger.default_protocol", "Aave")
	v.SetDefault("ledger.aave_rate_bps", 300)
	v.SetDefault("ledger.aave_active", true)
	v.SetDefault("ledger.echelon_rate_bps", 500)
	v.SetDefault("ledger.echelon_active", true)
	v.SetDefault("ledger.fund_wallet", 0)
	v.SetDefault("wallet.private_key", "")
	v.SetDefault("client.submit_timeout", "10s")
	v.SetDefault("client.wait_timeout", "30s")
	v.SetDefault("client.tx_ttl", "2m")
	v.SetDefault("client.cache_ttl", "30s")
	v.SetDefault("client.settle_retries", 3)
	v.SetDefault("client.settle_backoff", "500ms")
	v.SetDefault("client.token", "APT")
	v.SetDefault("cache.driver", "memory")
	v.SetDefault("cache.redis_addr", "")
	v.SetDefault("cache.redis_password", "")
	v.SetDefault("cache.redis_db", 0)
	v.SetDefault("cache.prefix", "safebet:")
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.issuer", "safebet-mcp")
	v.SetDefault("cron.enabled", true)
	v.SetDefault("cron.mirror_reconcile", "0 */5 * * * *")
	v.SetDefault("cron.draw_recovery", "*/30 * * * * *")
	v.SetDefault("cron.lock_ttl", "1m")
}

var validate = validator.New()

func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
