package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/pandeptwidyaop/multisite/internal/db"
	"github.com/pandeptwidyaop/multisite/internal/server/auth"
	"github.com/pandeptwidyaop/multisite/internal/server/config"
	"github.com/pandeptwidyaop/multisite/internal/server/metrics"
	"github.com/pandeptwidyaop/multisite/internal/server/orders"
	"github.com/pandeptwidyaop/multisite/internal/server/payment"
	"github.com/pandeptwidyaop/multisite/internal/server/provision"
	"github.com/pandeptwidyaop/multisite/internal/server/registry"
	"github.com/pandeptwidyaop/multisite/internal/server/resolver"
	"github.com/pandeptwidyaop/multisite/pkg/logger"
)

// totpIssuer is shown in authenticator apps.
const totpIssuer = "Multisite"

// app holds the services every command is built from.
type app struct {
	cfg     *config.Config
	db      *gorm.DB
	metrics *metrics.Metrics

	registry    *registry.Registry
	resolver    *resolver.Resolver
	orders      *orders.Service
	payments    *payment.Client
	invitations *auth.InvitationService
	totp        *auth.TOTPService
	accounts    *auth.AccountService
	provisioner *provision.Orchestrator

	redis *redis.Client
}

// bootstrap loads the config, sets up logging, opens and migrates the
// database and wires the services together.
func bootstrap(ctx context.Context) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := logger.Setup(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
		File:   cfg.Logging.File,
	}); err != nil {
		return nil, fmt.Errorf("failed to setup logger: %w", err)
	}

	logger.InfoEvent().
		Str("driver", cfg.Database.Driver).
		Str("database", cfg.Database.Database).
		Msg("Connecting to database")

	database, err := db.Connect(db.Config{
		Driver:      cfg.Database.Driver,
		Host:        cfg.Database.Host,
		Port:        cfg.Database.Port,
		Database:    cfg.Database.Database,
		Username:    cfg.Database.Username,
		Password:    cfg.Database.Password,
		SSLMode:     cfg.Database.SSLMode,
		SQLLogLevel: cfg.Database.LogLevel,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.AutoMigrate(database); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	logger.DebugEvent().Msg("Database migrations completed")

	a := &app{
		cfg:     cfg,
		db:      database,
		metrics: metrics.New(prometheus.NewRegistry()),
	}

	a.registry = registry.New(database, cfg.Server.BaseDomain)
	a.resolver = resolver.New(database, a.resolverCache(ctx), resolver.Options{
		AllowUnverified: cfg.Server.AllowUnverifiedDomains,
		DevMode:         cfg.Server.DevMode,
		DevHosts:        cfg.Server.DevHosts,
		TTL:             cfg.Redis.CacheTTL,
		NegativeTTL:     cfg.Redis.NegativeTTL,
	}, a.metrics)
	a.registry.SetEvictor(a.resolver)

	a.orders = orders.NewService(database, orders.Config{
		TokenTTL: cfg.Orders.TokenTTL,
		Currency: cfg.Orders.Currency,
		Prefix:   cfg.Orders.OrderPrefix,
	}, a.metrics)
	a.payments = payment.NewClient(payment.Config{
		BaseURL:         cfg.Payment.BaseURL,
		AccessToken:     cfg.Payment.AccessToken,
		Timeout:         cfg.Payment.Timeout,
		RetryCount:      cfg.Payment.RetryCount,
		NotificationURL: cfg.Payment.NotificationURL,
	})
	a.invitations = auth.NewInvitationService(database, cfg.Auth.InvitationTTL)
	a.totp = auth.NewTOTPService(totpIssuer)
	a.accounts = auth.NewAccountService(database, a.totp)
	a.provisioner = provision.New(database, a.registry, a.orders, a.invitations, a.metrics)

	return a, nil
}

// resolverCache picks the shared redis cache when configured. An unreachable
// redis falls back to the in-process cache so the server still starts.
func (a *app) resolverCache(ctx context.Context) resolver.Cache {
	if !a.cfg.Redis.Enabled {
		return resolver.NewMemoryCache()
	}

	client := redis.NewClient(&redis.Options{
		Addr:     a.cfg.Redis.Addr,
		Password: a.cfg.Redis.Password,
		DB:       a.cfg.Redis.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.WarnEvent().
			Err(err).
			Str("addr", a.cfg.Redis.Addr).
			Msg("Redis unavailable, using in-process resolver cache")
		_ = client.Close()
		return resolver.NewMemoryCache()
	}

	logger.InfoEvent().Str("addr", a.cfg.Redis.Addr).Msg("Using redis resolver cache")
	a.redis = client
	return resolver.NewRedisCache(client, "")
}

// Close releases the database and redis connections.
func (a *app) Close() {
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if sqlDB, err := a.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
