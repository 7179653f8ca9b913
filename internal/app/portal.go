package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/inventory-portal/internal/audit"
	audithttp "github.com/odyssey-erp/inventory-portal/internal/audit/http"
	"github.com/odyssey-erp/inventory-portal/internal/auth"
	"github.com/odyssey-erp/inventory-portal/internal/observability"
	"github.com/odyssey-erp/inventory-portal/internal/platform/kv"
	"github.com/odyssey-erp/inventory-portal/internal/rbac"
	"github.com/odyssey-erp/inventory-portal/internal/realtime"
	"github.com/odyssey-erp/inventory-portal/internal/users"
)

// Portal is the assembled authorization core and realtime client.
type Portal struct {
	Config   *Config
	Logger   *slog.Logger
	Store    kv.Store
	Table    *rbac.Table
	Accounts *users.Repository
	Users    *users.Service
	Activity *audit.Service
	Auth     *auth.Service
	Realtime *realtime.Client
	Metrics  *observability.Metrics

	redis   *redis.Client
	cleanup []func()
}

// PortalOption customises NewPortal, mainly for tests.
type PortalOption func(*portalOptions)

type portalOptions struct {
	store        kv.Store
	realtimeOpts []realtime.Option
}

// WithStore overrides the configured key-value store.
func WithStore(store kv.Store) PortalOption {
	return func(o *portalOptions) { o.store = store }
}

// WithRealtimeOptions passes options to the realtime client.
func WithRealtimeOptions(opts ...realtime.Option) PortalOption {
	return func(o *portalOptions) { o.realtimeOpts = append(o.realtimeOpts, opts...) }
}

// NewPortal wires every service from cfg. It seeds default accounts when
// enabled and restores a persisted session. The realtime client is built but
// not connected.
func NewPortal(ctx context.Context, cfg *Config, logger *slog.Logger, opts ...PortalOption) (*Portal, error) {
	if logger == nil {
		logger = NewLogger(cfg)
	}
	var o portalOptions
	for _, opt := range opts {
		opt(&o)
	}
	p := &Portal{Config: cfg, Logger: logger, Metrics: observability.NewMetrics()}

	store := o.store
	if store == nil {
		var err error
		store, err = p.openStore(ctx)
		if err != nil {
			return nil, err
		}
	}
	p.Store = store

	table, err := rbac.LoadTable(cfg.RoleTablePath)
	if err != nil {
		p.Close()
		return nil, fmt.Errorf("load role table: %w", err)
	}
	p.Table = table

	p.Accounts = users.NewRepository(store)
	p.Users = users.NewService(p.Accounts, table, logger)
	p.Activity = audit.NewService(store, cfg.AppOrigin, logger)
	sessions := auth.NewSessionStore(store)
	p.cleanup = append(p.cleanup, sessions.Subscribe(func(_ auth.Session, ok bool) {
		p.Metrics.SessionChanged(ok)
	}))
	p.Auth = auth.NewService(p.Accounts, p.Users, table, sessions, p.Activity, logger)

	if cfg.SeedDefaultUsers {
		if _, err := p.Users.SeedDefaults(ctx); err != nil {
			p.Close()
			return nil, fmt.Errorf("seed accounts: %w", err)
		}
	}
	if session, ok, err := p.Auth.Restore(ctx); err != nil {
		logger.Warn("restore session", slog.Any("error", err))
	} else if ok {
		logger.Info("session restored", slog.String("user_id", session.UserID), slog.String("role", string(session.Role)))
	}

	rtOpts := append([]realtime.Option{realtime.WithObserver(p.Metrics.Realtime())}, o.realtimeOpts...)
	p.Realtime = realtime.New(realtime.Config{
		URL:            cfg.RealtimeURL,
		ConnectTimeout: cfg.RealtimeConnectTimeout,
		BaseDelay:      cfg.RealtimeBaseDelay,
		MaxDelay:       cfg.RealtimeMaxDelay,
		MaxAttempts:    cfg.RealtimeMaxAttempts,
		MaxQueue:       cfg.RealtimeMaxQueue,
	}, logger, rtOpts...)
	p.cleanup = append(p.cleanup, p.Auth.AttachRealtime(p.Realtime))
	return p, nil
}

// Handlers builds the HTTP handlers for the portal API.
func (p *Portal) Handlers() RouterParams {
	mw := rbac.Middleware{Checker: p.Auth, Logger: p.Logger}
	return RouterParams{
		Logger:             p.Logger,
		Config:             p.Config,
		AuthHandler:        auth.NewHandler(p.Logger, p.Auth, mw),
		AuditHandler:       audithttp.NewHandler(p.Logger, p.Activity, mw),
		PermissionsHandler: rbac.NewPermissionsHandler(p.Table),
		Metrics:            p.Metrics,
		Realtime:           p.Realtime,
	}
}

// Close disconnects the realtime client and releases the store.
func (p *Portal) Close() {
	if p.Realtime != nil {
		p.Realtime.Disconnect()
	}
	for i := len(p.cleanup) - 1; i >= 0; i-- {
		p.cleanup[i]()
	}
	p.cleanup = nil
	if p.redis != nil {
		if err := p.redis.Close(); err != nil {
			p.Logger.Warn("redis close", slog.Any("error", err))
		}
		p.redis = nil
	}
}

func (p *Portal) openStore(ctx context.Context) (kv.Store, error) {
	if p.Config.StoreDriver != StoreRedis {
		return kv.NewMemoryStore(), nil
	}
	client, err := kv.NewRedisClient(ctx, p.Config.RedisAddr)
	if err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	p.redis = client
	return kv.NewRedisStore(client, p.Config.RedisPrefix), nil
}
