package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/vsinha/buildcore/pkg/application/services"
	"github.com/vsinha/buildcore/pkg/config"
	"github.com/vsinha/buildcore/pkg/domain/repositories"
	domainservices "github.com/vsinha/buildcore/pkg/domain/services"
	"github.com/vsinha/buildcore/pkg/infrastructure/events"
	"github.com/vsinha/buildcore/pkg/infrastructure/locking"
	"github.com/vsinha/buildcore/pkg/infrastructure/repositories/memory"
	"github.com/vsinha/buildcore/pkg/infrastructure/repositories/sqlite"
)

// Environment is a store, locker and build service assembled from configuration
type Environment struct {
	Store   repositories.Store
	Service *services.BuildService
	Logger  *zap.Logger

	closers []func() error
}

// NewEnvironment opens the configured store and locker and wires the build service on top
func NewEnvironment(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Environment, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	env := &Environment{Logger: logger}

	switch cfg.Store.Driver {
	case "sqlite":
		db, err := sqlite.Open(cfg.Store.Path)
		if err != nil {
			return nil, err
		}
		env.closers = append(env.closers, db.Close)
		env.Store = sqlite.NewStore(db)
	default:
		env.Store = memory.NewStore()
	}

	var locker domainservices.ScopeLocker
	switch cfg.Locking.Driver {
	case "redis":
		client := initRedis(cfg.Redis)
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			env.Close()
			return nil, fmt.Errorf("connecting to redis at %s: %w", cfg.Redis.Addr(), err)
		}
		env.closers = append(env.closers, client.Close)
		locker = locking.NewRedisLocker(client, locking.RedisOptions{
			TTL:     cfg.Locking.TTL,
			MaxWait: cfg.Locking.MaxWait,
		}, logger)
	default:
		locker = locking.NewMemoryLocker()
	}

	svcCfg, err := serviceConfig(cfg)
	if err != nil {
		env.Close()
		return nil, err
	}

	env.Service, err = services.NewBuildService(env.Store, locker, svcCfg, events.NewInMemoryEventStore(logger), logger)
	if err != nil {
		env.Close()
		return nil, err
	}

	logger.Debug("environment ready",
		zap.String("store", cfg.Store.Driver),
		zap.String("locking", cfg.Locking.Driver),
		zap.String("policy", svcCfg.Policy.String()),
		zap.Bool("global_unique", svcCfg.GlobalUnique))
	return env, nil
}

// Close detaches the build service and releases the database and redis connections
func (e *Environment) Close() error {
	var errs []error
	if e.Service != nil {
		if err := e.Service.Close(); err != nil {
			errs = append(errs, err)
		}
		e.Service = nil
	}
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	e.closers = nil
	return errors.Join(errs...)
}

func serviceConfig(cfg *config.Config) (services.BuildServiceConfig, error) {
	policy, err := domainservices.ParseInheritancePolicy(cfg.BOM.InheritancePolicy)
	if err != nil {
		return services.BuildServiceConfig{}, err
	}

	var strategy domainservices.IdentifierStrategy
	switch cfg.Identifiers.Strategy {
	case "prefixed":
		strategy = domainservices.NewPrefixedStrategy(cfg.Identifiers.Prefix, cfg.Identifiers.Width)
	default:
		strategy = domainservices.NewIntegerStrategy()
	}

	return services.BuildServiceConfig{
		Policy:       policy,
		Strategy:     strategy,
		GlobalUnique: cfg.Identifiers.GlobalUnique,
	}, nil
}

func initRedis(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
}
