package app

import (
	"context"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/blocto/solana-go-sdk/types"
	"github.com/layer-3/planmint/adapters/eventlog"
	"github.com/layer-3/planmint/adapters/events"
	"github.com/layer-3/planmint/adapters/ledger"
	"github.com/layer-3/planmint/adapters/lock"
	"github.com/layer-3/planmint/adapters/receipt"
	"github.com/layer-3/planmint/adapters/store"
	"github.com/layer-3/planmint/adapters/verifier"
	"github.com/layer-3/planmint/core"
	"github.com/layer-3/planmint/internal/config"
	"github.com/layer-3/planmint/ports"
	"github.com/layer-3/planmint/service"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Runtime holds the adapters selected by configuration
type Runtime struct {
	Config    config.Config
	Logger    logrus.FieldLogger
	Registry  *core.Registry
	Authority types.Account
	Ledger    ports.Ledger
	EventLog  ports.EventLog
	Publisher ports.EventPublisher // nil without a stream transport
	Redis     *redis.Client        // nil when running in process

	closers []func() error
}

// Build connects every adapter cfg selects. Close releases them.
func Build(ctx context.Context, cfg config.Config, logger logrus.FieldLogger) (*Runtime, error) {
	rt := &Runtime{Config: cfg, Logger: logger}

	registry, err := cfg.Registry()
	if err != nil {
		return nil, err
	}
	rt.Registry = registry

	if rt.Authority, err = loadAuthority(cfg, logger); err != nil {
		return nil, err
	}

	if err := rt.buildLedger(); err != nil {
		return nil, err
	}

	if err := rt.buildEventLog(); err != nil {
		rt.Close()
		return nil, err
	}

	if cfg.Redis.URL != "" {
		if err := rt.connectRedis(ctx); err != nil {
			rt.Close()
			return nil, err
		}
	}

	if err := rt.buildPublisher(); err != nil {
		rt.Close()
		return nil, err
	}

	return rt, nil
}

func loadAuthority(cfg config.Config, logger logrus.FieldLogger) (types.Account, error) {
	switch {
	case cfg.Authority.Secret != "":
		return ledger.LoadAuthority(cfg.Authority.Secret)
	case cfg.Authority.SecretFile != "":
		return ledger.LoadAuthorityFile(cfg.Authority.SecretFile)
	case cfg.Ledger.Driver == "memory":
		logger.Warn("no authority key configured, using an ephemeral key for the memory ledger")
		return types.NewAccount(), nil
	default:
		return types.Account{}, fmt.Errorf("authority key is not configured")
	}
}

func (rt *Runtime) buildLedger() error {
	cfg := rt.Config.Ledger
	switch cfg.Driver {
	case "memory":
		rt.Ledger = ledger.NewMemoryLedger(rt.Authority)
	case "solana":
		l, err := ledger.NewSolanaLedger(ledger.SolanaConfig{
			RPCURL:       cfg.RPCURL,
			Commitment:   cfg.Commitment,
			TokenProgram: cfg.TokenProgram,
			PollInterval: cfg.PollInterval,
			SendRetries:  cfg.SendRetries,
		}, rt.Authority, rt.Logger)
		if err != nil {
			return fmt.Errorf("failed to create ledger client: %w", err)
		}
		rt.Ledger = l
	default:
		return fmt.Errorf("unsupported ledger driver %q", cfg.Driver)
	}

	rt.Logger.WithFields(logrus.Fields{
		"driver":    cfg.Driver,
		"authority": rt.Ledger.Authority(),
	}).Info("ledger ready")
	return nil
}

func (rt *Runtime) buildEventLog() error {
	cfg := rt.Config.EventLog
	switch cfg.Driver {
	case "file":
		fileLog, err := eventlog.NewFileLog(cfg.Path)
		if err != nil {
			return err
		}
		rt.EventLog = fileLog
		rt.closers = append(rt.closers, fileLog.Close)
	case "postgres", "sqlite":
		db, err := eventlog.OpenDB(cfg.Driver, cfg.DSN, rt.Logger)
		if err != nil {
			return err
		}
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		rt.closers = append(rt.closers, sqlDB.Close)
		if rt.EventLog, err = eventlog.NewSQLLog(db); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unsupported event log driver %q", cfg.Driver)
	}
	return nil
}

func (rt *Runtime) connectRedis(ctx context.Context) error {
	opts, err := redis.ParseURL(rt.Config.Redis.URL)
	if err != nil {
		return fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return fmt.Errorf("failed to reach Redis: %w", err)
	}

	rt.Redis = client
	rt.closers = append(rt.closers, client.Close)
	return nil
}

func (rt *Runtime) buildPublisher() error {
	cfg := rt.Config.Events
	if !cfg.Enabled {
		return nil
	}
	if rt.Redis == nil {
		rt.Logger.Info("event stream disabled, no Redis configured")
		return nil
	}

	publisher, err := redisstream.NewPublisher(
		redisstream.PublisherConfig{
			Client: rt.Redis,
		},
		events.NewLogrusAdapter(rt.Logger),
	)
	if err != nil {
		return fmt.Errorf("failed to create Redis publisher: %w", err)
	}
	rt.Publisher = events.NewWatermillPublisher(publisher, cfg.TopicPrefix)
	// the publisher goes before the client it writes to
	rt.closers = append([]func() error{publisher.Close}, rt.closers...)
	return nil
}

// Deps assembles the issuance dependencies. Redis backs the locker and the
// submission store when configured, so several instances can share a ledger.
func (rt *Runtime) Deps() service.Deps {
	deps := service.Deps{
		Registry:  rt.Registry,
		Verifier:  verifier.NewEd25519Verifier(),
		Ledger:    rt.Ledger,
		Receipts:  receipt.NewJWTReceipts(rt.Authority.PrivateKey, rt.Ledger.Authority(), rt.Config.Receipts.TTL),
		EventLog:  rt.EventLog,
		Publisher: rt.Publisher,
		Logger:    rt.Logger,
	}

	if rt.Redis != nil {
		deps.Locker = lock.NewRedisLocker(rt.Redis, rt.Config.Redis.LockTTL, rt.Logger)
		deps.Store = store.NewRedisStore(rt.Redis, rt.Config.Redis.SubmissionTTL)
	} else {
		deps.Locker = lock.NewMemoryLocker()
		deps.Store = store.NewMemoryStore(rt.Config.Redis.SubmissionTTL)
	}
	return deps
}

// Options maps configuration onto service options
func (rt *Runtime) Options() service.Options {
	return service.Options{
		FinalityTimeout:  rt.Config.Ledger.FinalityTimeout,
		CloseByAuthority: rt.Config.Burn.CloseByAuthority,
	}
}

// Close releases every connection Build opened, logging failures
func (rt *Runtime) Close() {
	for _, closeFn := range rt.closers {
		if err := closeFn(); err != nil {
			rt.Logger.WithError(err).Warn("failed to close resource")
		}
	}
	rt.closers = nil
}
