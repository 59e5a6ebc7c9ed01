package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/layer-3/planmint/core"
	"github.com/layer-3/planmint/internal/logging"
	"gopkg.in/yaml.v3"
)

// Config is the planmint service configuration
type Config struct {
	Server        ServerConfig    `yaml:"server"`
	Log           logging.Config  `yaml:"log"`
	Ledger        LedgerConfig    `yaml:"ledger"`
	Authority     AuthorityConfig `yaml:"authority"`
	Plans         []PlanConfig    `yaml:"plans"`
	SoulboundMint string          `yaml:"soulbound_mint"`
	Burn          BurnConfig      `yaml:"burn"`
	EventLog      EventLogConfig  `yaml:"event_log"`
	Redis         RedisConfig     `yaml:"redis"`
	Events        EventsConfig    `yaml:"events"`
	Receipts      ReceiptsConfig  `yaml:"receipts"`
}

type ServerConfig struct {
	Port              int             `yaml:"port"`
	GinMode           string          `yaml:"gin_mode"`
	RateLimit         RateLimitConfig `yaml:"rate_limit"`
	HeartbeatInterval time.Duration   `yaml:"heartbeat_interval"`
	ShutdownTimeout   time.Duration   `yaml:"shutdown_timeout"`
}

// RateLimitConfig limits requests per client IP; zero RPS disables it
type RateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type LedgerConfig struct {
	Driver          string        `yaml:"driver"` // solana | memory
	RPCURL          string        `yaml:"rpc_url"`
	Commitment      string        `yaml:"commitment"`
	TokenProgram    string        `yaml:"token_program"`
	FinalityTimeout time.Duration `yaml:"finality_timeout"`
	PollInterval    time.Duration `yaml:"poll_interval"`
	SendRetries     uint          `yaml:"send_retries"`
}

// AuthorityConfig holds the issuing authority keypair, inline or as a file
type AuthorityConfig struct {
	Secret     string `yaml:"secret"`
	SecretFile string `yaml:"secret_file"`
}

type PlanConfig struct {
	ID   string `yaml:"id"`
	Mint string `yaml:"mint"`
}

type BurnConfig struct {
	CloseByAuthority bool `yaml:"close_by_authority"`
}

type EventLogConfig struct {
	Driver string `yaml:"driver"` // file | postgres | sqlite
	Path   string `yaml:"path"`
	DSN    string `yaml:"dsn"`
}

// RedisConfig enables the shared locker, submission store and event stream.
// With an empty URL everything stays in process.
type RedisConfig struct {
	URL           string        `yaml:"url"`
	LockTTL       time.Duration `yaml:"lock_ttl"`
	SubmissionTTL time.Duration `yaml:"submission_ttl"`
}

type EventsConfig struct {
	Enabled     bool   `yaml:"enabled"`
	TopicPrefix string `yaml:"topic_prefix"`
}

type ReceiptsConfig struct {
	TTL time.Duration `yaml:"ttl"`
}

// Default returns the configuration used when no file is given
func Default() Config {
	return Config{
		Server: ServerConfig{
			Port:              4000,
			GinMode:           "release",
			RateLimit:         RateLimitConfig{RPS: 5, Burst: 10},
			HeartbeatInterval: 15 * time.Second,
			ShutdownTimeout:   90 * time.Second,
		},
		Log: logging.Config{Level: "info", Format: "text"},
		Ledger: LedgerConfig{
			Driver:          "solana",
			RPCURL:          "https://api.devnet.solana.com",
			Commitment:      "finalized",
			FinalityTimeout: 60 * time.Second,
			PollInterval:    time.Second,
			SendRetries:     3,
		},
		Plans: []PlanConfig{
			{ID: "10GB", Mint: "GXsBcsscLxMRKLgwWWnKkUzuXdEXwr74NiSqJrBs21Mz"},
			{ID: "25GB", Mint: "HDtzBt6nvoHLhiV8KLrovhnP4pYesguq89J2vZZbn6kA"},
			{ID: "50GB", Mint: "C6is6ajmWgySMA4WpDfccadLf5JweXVufdXexWNrLKKD"},
		},
		SoulboundMint: "BGZPPAY2jJ1rgFNhRkHKjPVmxx1VFUisZSo569Pi71Pc",
		EventLog:      EventLogConfig{Driver: "file", Path: "data/events.jsonl"},
		Redis: RedisConfig{
			LockTTL:       2 * time.Minute,
			SubmissionTTL: 7 * 24 * time.Hour,
		},
		Events:   EventsConfig{Enabled: true, TopicPrefix: "planmint"},
		Receipts: ReceiptsConfig{TTL: 7 * 24 * time.Hour},
	}
}

// Load reads path over the defaults, then applies environment overrides.
// An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := overrideFromEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func overrideFromEnv(cfg *Config) error {
	if port := os.Getenv("PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("invalid PORT %q: %w", port, err)
		}
		cfg.Server.Port = p
	}
	if mode := os.Getenv("PLANMINT_GIN_MODE"); mode != "" {
		cfg.Server.GinMode = mode
	}
	if level := os.Getenv("PLANMINT_LOG_LEVEL"); level != "" {
		cfg.Log.Level = level
	}
	if format := os.Getenv("PLANMINT_LOG_FORMAT"); format != "" {
		cfg.Log.Format = format
	}
	if driver := os.Getenv("PLANMINT_LEDGER_DRIVER"); driver != "" {
		cfg.Ledger.Driver = driver
	}
	if rpcURL := os.Getenv("SOLANA_RPC_URL"); rpcURL != "" {
		cfg.Ledger.RPCURL = rpcURL
	}
	if secret := os.Getenv("MINT_AUTHORITY_SECRET"); secret != "" {
		cfg.Authority.Secret = secret
	}
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		cfg.Redis.URL = redisURL
	}
	if driver := os.Getenv("PLANMINT_EVENT_LOG_DRIVER"); driver != "" {
		cfg.EventLog.Driver = driver
	}
	if path := os.Getenv("PLANMINT_EVENT_LOG_PATH"); path != "" {
		cfg.EventLog.Path = path
	}
	if dsn := os.Getenv("PLANMINT_EVENT_LOG_DSN"); dsn != "" {
		cfg.EventLog.DSN = dsn
	}
	if closeBy := os.Getenv("PLANMINT_CLOSE_BY_AUTHORITY"); closeBy != "" {
		v, err := strconv.ParseBool(closeBy)
		if err != nil {
			return fmt.Errorf("invalid PLANMINT_CLOSE_BY_AUTHORITY %q: %w", closeBy, err)
		}
		cfg.Burn.CloseByAuthority = v
	}
	return nil
}

// Validate rejects configurations the service cannot start with
func (c Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Server.RateLimit.RPS < 0 || c.Server.RateLimit.Burst < 0 {
		return fmt.Errorf("server.rate_limit must not be negative")
	}
	if c.Server.HeartbeatInterval <= 0 {
		return fmt.Errorf("server.heartbeat_interval must be positive")
	}

	switch c.Ledger.Driver {
	case "solana":
		if c.Ledger.RPCURL == "" {
			return fmt.Errorf("ledger.rpc_url is required for the solana driver")
		}
		if c.Authority.Secret == "" && c.Authority.SecretFile == "" {
			return fmt.Errorf("authority.secret or authority.secret_file is required for the solana driver")
		}
	case "memory":
	default:
		return fmt.Errorf("unsupported ledger.driver %q", c.Ledger.Driver)
	}
	switch strings.ToLower(c.Ledger.Commitment) {
	case "finalized", "confirmed":
	default:
		return fmt.Errorf("unsupported ledger.commitment %q", c.Ledger.Commitment)
	}
	if c.Ledger.FinalityTimeout <= 0 {
		return fmt.Errorf("ledger.finality_timeout must be positive")
	}

	switch c.EventLog.Driver {
	case "file":
		if c.EventLog.Path == "" {
			return fmt.Errorf("event_log.path is required for the file driver")
		}
	case "postgres", "sqlite":
		if c.EventLog.DSN == "" {
			return fmt.Errorf("event_log.dsn is required for the %s driver", c.EventLog.Driver)
		}
	default:
		return fmt.Errorf("unsupported event_log.driver %q", c.EventLog.Driver)
	}

	if c.Redis.URL != "" && c.Redis.LockTTL <= c.Ledger.FinalityTimeout {
		return fmt.Errorf("redis.lock_ttl (%s) must exceed ledger.finality_timeout (%s)", c.Redis.LockTTL, c.Ledger.FinalityTimeout)
	}
	if c.Receipts.TTL <= 0 {
		return fmt.Errorf("receipts.ttl must be positive")
	}
	if c.Redis.SubmissionTTL > 0 && c.Receipts.TTL > c.Redis.SubmissionTTL {
		return fmt.Errorf("receipts.ttl (%s) must not exceed redis.submission_ttl (%s)", c.Receipts.TTL, c.Redis.SubmissionTTL)
	}

	if _, err := c.Registry(); err != nil {
		return fmt.Errorf("invalid plans: %w", err)
	}
	return nil
}

// Registry builds the plan registry in configuration order
func (c Config) Registry() (*core.Registry, error) {
	plans := make([]core.PlanToken, 0, len(c.Plans))
	for _, p := range c.Plans {
		plans = append(plans, core.PlanToken{PlanID: p.ID, MintAddress: p.Mint})
	}
	return core.NewRegistry(plans, c.SoulboundMint)
}
