package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"mindpalace/backend/internal/anon"
	"mindpalace/backend/internal/pubsub"
	"mindpalace/backend/internal/sensitive"
	"mindpalace/backend/internal/service"
	"mindpalace/backend/internal/store"
	"mindpalace/backend/internal/ws"
	"mindpalace/backend/pkg/cache"
	"mindpalace/backend/pkg/config"
	"mindpalace/backend/pkg/health"
	"mindpalace/backend/pkg/logger"
	"mindpalace/backend/pkg/observability"
	"mindpalace/backend/pkg/resilience"
	"mindpalace/backend/pkg/secrets"
)

// devSalt keys anonymous ids outside production when no secret is set.
const devSalt = "mindpalace-dev-salt"

// Container holds all the dependencies for the application
type Container struct {
	Config    *config.Config
	DB        *gorm.DB
	Logger    *logger.Logger
	Store     *store.GormStore
	Secrets   secrets.Manager
	Telemetry *observability.Provider
	Health    *health.Checker

	Redis *redis.Client
	Relay *pubsub.RedisRelay

	Directory  *service.Directory
	Gateway    *ws.Gateway
	Moderation *service.ModerationService
	Counsellor *service.CounsellorService
	Library    *service.LibraryService
	History    *service.HistoryService
	Anon       *anon.Service
	Retention  *store.Retention

	closers []func(ctx context.Context) error
}

// Options overrides parts of the wiring, mainly for tests.
type Options struct {
	// Secrets replaces the Vault manager built from the environment.
	Secrets secrets.Manager
	// Telemetry replaces the provider built from cfg.Observability.
	Telemetry *observability.Provider
}

// New creates a new dependency injection container. db must be open; the
// schema is migrated here.
func New(ctx context.Context, cfg *config.Config, db *gorm.DB, log *logger.Logger, opts Options) (*Container, error) {
	if log == nil {
		log = logger.GetGlobal()
	}
	c := &Container{Config: cfg, DB: db, Logger: log}

	c.Store = store.NewGormStore(db, store.WithMessageTTL(cfg.Retention.MessageTTL))
	if err := c.Store.Migrate(); err != nil {
		return nil, err
	}

	c.Secrets = opts.Secrets
	if c.Secrets == nil {
		vm, err := secrets.NewVaultManager(secrets.VaultConfigFromEnv(), log)
		if err != nil {
			return nil, fmt.Errorf("failed to create secrets manager: %w", err)
		}
		c.Secrets = vm
		c.onClose(func(context.Context) error { vm.Close(); return nil })
	}

	c.Telemetry = opts.Telemetry
	if c.Telemetry == nil {
		provider, err := observability.Setup(observability.Config{
			ServiceName:    cfg.Observability.ServiceName,
			TracingEnabled: cfg.Observability.TracingEnabled,
		})
		if err != nil {
			return nil, err
		}
		c.Telemetry = provider
		c.onClose(provider.Shutdown)
	}

	thresholds := sensitive.Thresholds{
		Severe:   cfg.Moderation.SevereThreshold,
		Moderate: cfg.Moderation.ModerateThreshold,
	}
	classifierOpts := sensitive.Options{
		LexiconPath:  cfg.Moderation.LexiconPath,
		KeywordsPath: cfg.Moderation.KeywordsPath,
		Thresholds:   thresholds,
	}
	lexicon, err := sensitive.New(sensitive.KindLexicon, classifierOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to load lexicon: %w", err)
	}
	gatewayClassifier, err := sensitive.New(sensitive.Kind(cfg.Realtime.ClassifierKind), classifierOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to create gateway classifier: %w", err)
	}

	c.Directory = service.NewDirectory(cfg.Moderation.CounsellorDirectory)

	var relay ws.Relay
	if cfg.Redis.URL != "" {
		instanceID := cfg.Realtime.InstanceID
		if instanceID == "" {
			instanceID = uuid.NewString()
		}
		c.Redis = pubsub.NewClient(cfg.Redis.URL)
		c.Relay = pubsub.NewRedisRelay(c.Redis, cfg.Redis.Channel, instanceID, log)
		relay = c.Relay
		c.onClose(func(context.Context) error { return c.Redis.Close() })
	}

	breakerCfg := resilience.DefaultConfig("gateway-store")
	if cfg.Realtime.BreakerThreshold > 0 {
		breakerCfg.FailureThreshold = cfg.Realtime.BreakerThreshold
	}
	if cfg.Realtime.BreakerRetry > 0 {
		breakerCfg.RetryTimeout = cfg.Realtime.BreakerRetry
	}
	if cfg.Realtime.PersistTimeout > 0 {
		breakerCfg.Timeout = cfg.Realtime.PersistTimeout
	}

	c.Gateway = ws.NewGateway(ws.Deps{
		Hub:        ws.NewHub(relay, log),
		Classifier: gatewayClassifier,
		Store:      c.Store,
		Breaker:    resilience.NewCircuitBreaker(breakerCfg, log),
		Directory:  c.Directory,
		Metrics:    c.Telemetry.Metrics,
		Logger:     log,
	}, ws.Options{
		SendBuffer:     cfg.Realtime.SendBuffer,
		MaxMessageSize: cfg.Realtime.MaxMessageSize,
		MessagesPerSec: cfg.Realtime.MessagesPerSec,
		MessageBurst:   cfg.Realtime.MessageBurst,
		AllowedOrigins: cfg.Realtime.AllowedOrigins,
	})

	c.Moderation = service.NewModerationService(c.Store, lexicon, c.Directory, cfg.Moderation.AlertListLimit, log)
	c.Counsellor = service.NewCounsellorService(c.Store, log)
	c.Library = service.NewLibraryService(c.Store, log)
	c.History = service.NewHistoryService(c.Store, log)

	salt, err := c.anonSalt(ctx)
	if err != nil {
		return nil, err
	}
	idCache := cache.New[string](cache.Options{TTL: 24 * time.Hour, MaxItems: 10000, CleanupInterval: 10 * time.Minute})
	c.onClose(func(context.Context) error { idCache.Close(); return nil })
	if c.Anon, err = anon.NewService(c.Store, salt, idCache, log); err != nil {
		return nil, err
	}

	if cfg.Retention.Enabled {
		if c.Retention, err = store.NewRetention(c.Store, cfg.Retention.Cron, log); err != nil {
			return nil, err
		}
	}

	c.Health = health.NewChecker(log, 30*time.Second)
	c.Health.RegisterDatabaseCheck(c.Store.Ping)
	if c.Relay != nil {
		c.Health.RegisterRedisCheck(c.Relay.Ping)
	}

	return c, nil
}

func (c *Container) anonSalt(ctx context.Context) (string, error) {
	salt, err := c.Secrets.GetSecret(ctx, c.Config.Security.AnonSaltKey)
	if err == nil && salt != "" {
		return salt, nil
	}
	if c.Config.Server.Env == "production" {
		return "", fmt.Errorf("secret %s is required in production: %w", c.Config.Security.AnonSaltKey, anon.ErrMissingSalt)
	}
	c.Logger.Warn("Anonymous id salt not configured, using development salt", "key", c.Config.Security.AnonSaltKey)
	return devSalt, nil
}

func (c *Container) onClose(fn func(ctx context.Context) error) {
	c.closers = append(c.closers, fn)
}

// Start launches the background loops: health checks, retention and the
// cross-instance relay. They stop when ctx is done.
func (c *Container) Start(ctx context.Context) {
	c.Health.Start(ctx)

	if c.Retention != nil {
		c.Retention.Start(ctx)
	}

	if c.Relay != nil {
		go func() {
			if err := c.Relay.Run(ctx, c.Gateway.Hub()); err != nil && !errors.Is(err, context.Canceled) {
				c.Logger.LogError(err, "room relay stopped")
			}
		}()
	}
}

// Close waits for in-flight persistence and releases resources in reverse
// order of creation.
func (c *Container) Close(ctx context.Context) error {
	c.Gateway.Wait()

	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		errs = append(errs, c.closers[i](ctx))
	}
	if sqlDB, err := c.DB.DB(); err == nil {
		errs = append(errs, sqlDB.Close())
	}
	return errors.Join(errs...)
}
