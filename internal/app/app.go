// Package app assembles the voice agent's services from configuration. The API
// server and the operator CLI share it so both resolve questions the same way.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/axmen-recycling/voice-agent/internal/auth"
	"github.com/axmen-recycling/voice-agent/internal/cache"
	"github.com/axmen-recycling/voice-agent/internal/caller"
	"github.com/axmen-recycling/voice-agent/internal/config"
	"github.com/axmen-recycling/voice-agent/internal/embedding"
	"github.com/axmen-recycling/voice-agent/internal/memory"
	"github.com/axmen-recycling/voice-agent/internal/monitoring"
	"github.com/axmen-recycling/voice-agent/internal/notify"
	"github.com/axmen-recycling/voice-agent/internal/observability"
	"github.com/axmen-recycling/voice-agent/internal/retrieval"
	"github.com/axmen-recycling/voice-agent/internal/storage"
)

// App holds the wired services.
type App struct {
	Config    *config.Config
	Logger    *observability.Logger
	Store     *storage.Store
	Answers   cache.Client // nil when the answer cache is disabled
	Publisher cache.Publisher
	Redis     *cache.RedisClient // nil unless the redis driver is configured
	Cascade   *retrieval.Cascade
	Callers   *caller.Service
	Recorder  *memory.Recorder
	Audit     *monitoring.AuditLogger

	notifier *notify.Async
	closers  []func() error
}

// New opens the store, applies pending migrations when migrate is set, and
// wires every service.
func New(ctx context.Context, cfg *config.Config, logger *observability.Logger, migrate bool) (*App, error) {
	a := &App{Config: cfg, Logger: logger}

	store, err := storage.Open(ctx, cfg.Database.Driver, cfg.DatabaseDSN(), poolConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	a.Store = store
	a.closers = append(a.closers, store.Close)

	if migrate {
		applied, err := store.Migrate(ctx)
		if err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		if len(applied) > 0 {
			logger.Info().Strs("migrations", applied).Msg("Applied migrations")
		}
	}

	if err := a.wireCache(cfg); err != nil {
		_ = a.Close()
		return nil, err
	}

	a.Audit = monitoring.NewAuditLogger(logger, storage.NewResolutionRepository(store), a.Publisher)

	opts := []retrieval.Option{retrieval.WithObserver(a.Audit)}
	if a.Answers != nil {
		opts = append(opts, retrieval.WithCache(a.Answers))
	}
	if cfg.Retrieval.Semantic.Enabled {
		embedder, err := embedding.NewClient(embedding.Config{
			APIKey:  cfg.Embedding.APIKey,
			Model:   cfg.Embedding.Model,
			BaseURL: cfg.Embedding.BaseURL,
			Timeout: cfg.Embedding.Timeout,
		})
		if err != nil {
			logger.Warn().Err(err).Msg("Semantic stage disabled")
		} else {
			opts = append(opts, retrieval.WithEmbedder(embedder))
		}
	}
	a.Cascade = retrieval.NewCascade(retrieval.NewStoreSources(store), CascadeConfig(cfg), logger, opts...)

	callerOpts := []caller.Option{caller.WithBusinessName(cfg.Business.Name)}
	if a.Publisher != nil {
		callerOpts = append(callerOpts, caller.WithPublisher(a.Publisher))
	}
	if cfg.Notify.ResendAPIKey != "" {
		resend, err := notify.NewResendNotifier(notify.ResendConfig{
			APIKey:       cfg.Notify.ResendAPIKey,
			From:         cfg.Notify.From,
			CallbackTo:   cfg.Notify.CallbackTo,
			MessageTo:    cfg.Notify.MessageTo,
			TimeZone:     cfg.Notify.TimeZone,
			BusinessName: cfg.Business.Name,
		})
		if err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("notifier: %w", err)
		}
		a.notifier = notify.NewAsync(resend, cfg.Notify.SendTimeout, logger)
		callerOpts = append(callerOpts, caller.WithNotifier(a.notifier))
	} else {
		logger.Info().Msg("No email API key configured, staff notifications disabled")
	}
	a.Callers = caller.NewService(
		storage.NewCallbackRepository(store),
		storage.NewCustomerMessageRepository(store),
		logger, callerOpts...,
	)

	a.Recorder = memory.NewRecorder(storage.NewConversationRepository(store), logger)

	return a, nil
}

func (a *App) wireCache(cfg *config.Config) error {
	switch cfg.Cache.Driver {
	case "redis":
		rc, err := cache.NewRedisClient(cache.RedisConfig{
			Addr:     cfg.Cache.Redis.Addr,
			Password: cfg.Cache.Redis.Password,
			DB:       cfg.Cache.Redis.DB,
			PoolSize: cfg.Cache.Redis.PoolSize,
			Prefix:   cfg.Cache.Redis.Prefix,
		})
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		a.Redis = rc
		a.Publisher = rc
		a.closers = append(a.closers, rc.Close)
		if cfg.Cache.Enabled {
			a.Answers = rc
		}
	default:
		if cfg.Cache.Enabled {
			mc := cache.NewMemoryClient(cfg.Cache.MaxEntries)
			a.Answers = mc
			a.closers = append(a.closers, mc.Close)
		}
	}
	return nil
}

// CascadeConfig maps configuration onto the cascade's settings.
func CascadeConfig(cfg *config.Config) retrieval.Config {
	return retrieval.Config{
		ResultWindow:       cfg.Retrieval.ResultWindow,
		StageTimeout:       cfg.Retrieval.StageTimeout,
		Budget:             cfg.Retrieval.Budget,
		DiagnosticSentinel: cfg.Retrieval.DiagnosticSentinel,
		FallbackAnswer:     cfg.FallbackAnswer(),
		BusinessPhone:      cfg.Business.Phone,
		CacheTTL:           cfg.Cache.TTL,
		Semantic: retrieval.SemanticConfig{
			Enabled:    cfg.Retrieval.Semantic.Enabled,
			Threshold:  cfg.Retrieval.Semantic.Threshold,
			MatchCount: cfg.Retrieval.Semantic.MatchCount,
		},
	}
}

// NewAuthService builds the admin login service for the configured provider.
func NewAuthService(cfg *config.Config) (*auth.Service, error) {
	issuer, err := auth.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.SessionTTL)
	if err != nil {
		return nil, err
	}

	var provider auth.IdentityProvider
	switch cfg.Auth.Provider {
	case "static":
		users := make([]auth.StaticUser, 0, len(cfg.Auth.Static))
		for _, u := range cfg.Auth.Static {
			users = append(users, auth.StaticUser{ID: u.ID, Email: u.Email, PasswordHash: u.PasswordHash})
		}
		provider = auth.NewStaticProvider(users)
	default:
		provider, err = auth.NewSupabaseProvider(cfg.Auth.Supabase.URL, cfg.Auth.Supabase.APIKey, cfg.Auth.Supabase.Timeout)
		if err != nil {
			return nil, err
		}
	}
	return auth.NewService(provider, issuer), nil
}

// Close waits for queued notifications and releases connections in reverse
// order of acquisition.
func (a *App) Close() error {
	if a.notifier != nil {
		a.notifier.Wait()
	}
	if a.Audit != nil {
		a.Audit.Wait()
	}
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func poolConfig(cfg *config.Config) storage.PoolConfig {
	if cfg.Database.Driver == storage.DriverSQLite {
		return storage.PoolConfig{MaxOpenConns: cfg.Database.SQLite.MaxOpenConns}
	}
	return storage.PoolConfig{
		MaxOpenConns:    cfg.Database.Postgres.MaxOpenConns,
		MaxIdleConns:    cfg.Database.Postgres.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.Postgres.ConnMaxLifetime,
	}
}
