package commands

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/classroll/classroll-bot/config"
	"github.com/classroll/classroll-bot/internal/domain/attendance"
	"github.com/classroll/classroll-bot/internal/domain/dialogue"
	"github.com/classroll/classroll-bot/internal/infrastructure/messaging"
	"github.com/classroll/classroll-bot/internal/infrastructure/metrics"
	"github.com/classroll/classroll-bot/internal/infrastructure/persistence"
	"github.com/classroll/classroll-bot/internal/infrastructure/persistence/file"
	"github.com/classroll/classroll-bot/internal/infrastructure/persistence/postgres"
	"github.com/classroll/classroll-bot/internal/infrastructure/persistence/redis"
	"github.com/classroll/classroll-bot/internal/interface/chat"
	"github.com/classroll/classroll-bot/internal/interface/http/handlers"
)

// ══════════════════════════════════════════════════════════════════════════════
// APPLICATION WIRING
// ══════════════════════════════════════════════════════════════════════════════

// app is the assembled bot. close releases connections in reverse order.
type app struct {
	metrics *metrics.Metrics
	store   *attendance.Store
	router  *chat.Router
	health  *handlers.CompositeHealthChecker

	closers []func()
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// newApp connects storage, sessions and delivery, restores the registry and
// builds the router.
func newApp(ctx context.Context, cfg *config.Config, log *zap.Logger) (*app, error) {
	a := &app{
		metrics: metrics.New(),
		health:  handlers.NewCompositeHealthChecker(cfg.App.Version),
	}

	gateway, err := a.openGateway(ctx, cfg, log)
	if err != nil {
		a.close()
		return nil, err
	}

	var cache *redis.Cache
	if cfg.Redis.Enabled {
		rc := redis.DefaultConfig()
		rc.Addr = cfg.Redis.Addr
		rc.Password = cfg.Redis.Password
		rc.DB = cfg.Redis.DB
		rc.PoolSize = cfg.Redis.PoolSize

		cache, err = redis.NewCache(ctx, rc)
		if err != nil {
			a.close()
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = cache.Close() })
		a.health.AddCheck("redis", handlers.PingCheck(cache))
		log.Info("redis connection established", zap.String("addr", rc.Addr))
	}

	var sessions dialogue.Backend = dialogue.NewMemoryBackend()
	if cache != nil {
		sessions = redis.NewSessionStore(cache, cfg.Redis.SessionTTL)
	}

	sender, err := newSender(cfg, cache, log)
	if err != nil {
		a.close()
		return nil, err
	}

	a.store = attendance.NewStore(attendance.StoreConfig{
		IDSuffix:    cfg.Attendance.IDSuffix,
		Location:    cfg.App.Location,
		SaveTimeout: cfg.Storage.SaveTimeout,
	}, persistence.Instrument(gateway, a.metrics, log))

	if err := a.store.Restore(ctx); err != nil {
		a.close()
		return nil, err
	}
	snap := a.store.Snapshot()
	log.Info("registry restored",
		zap.Uint64("version", snap.Version),
		zap.Int("teachers", len(snap.Teachers)),
		zap.Int("students", len(snap.Students)),
	)

	routerCfg := chat.DefaultRouterConfig()
	routerCfg.Threshold = cfg.Attendance.Threshold
	routerCfg.NotifyConcurrency = cfg.Notify.Concurrency
	routerCfg.NotifyTimeout = cfg.Notify.Timeout
	routerCfg.Logger = log
	routerCfg.Metrics = a.metrics
	a.router = chat.NewRouter(a.store, dialogue.NewTracker(sessions, nil), sender, routerCfg)

	return a, nil
}

func (a *app) openGateway(ctx context.Context, cfg *config.Config, log *zap.Logger) (attendance.Gateway, error) {
	switch cfg.Storage.Backend {
	case config.StoragePostgres:
		conn, err := openPostgres(ctx, cfg)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, conn.Close)
		a.health.AddCheck("postgres", handlers.PingCheck(conn))

		applied, err := postgres.NewMigrator(conn).Migrate(ctx)
		if err != nil {
			return nil, err
		}
		log.Info("postgres ready", zap.Int("migrations_applied", applied))
		return postgres.NewSnapshotRepository(conn, log), nil

	default:
		log.Info("using file storage", zap.String("path", cfg.Storage.FilePath))
		return file.NewGateway(cfg.Storage.FilePath, log), nil
	}
}

func openPostgres(ctx context.Context, cfg *config.Config) (*postgres.Connection, error) {
	pc := postgres.DefaultConfig()
	pc.URL = cfg.Storage.DatabaseURL
	pc.MaxConns = cfg.Storage.MaxConns
	pc.MinConns = cfg.Storage.MinConns
	if cfg.Storage.MaxConnLifetime > 0 {
		pc.MaxConnLifetime = cfg.Storage.MaxConnLifetime
	}
	return postgres.NewConnection(ctx, pc)
}

// newSender picks the outbound delivery path.
func newSender(cfg *config.Config, cache *redis.Cache, log *zap.Logger) (messaging.Sender, error) {
	switch cfg.Notify.Backend {
	case config.NotifyHTTP:
		return messaging.NewHTTPSender(gatewayConfig(cfg), log), nil
	case config.NotifyQueue:
		if cache == nil {
			return nil, fmt.Errorf("notify backend %q needs redis", cfg.Notify.Backend)
		}
		return messaging.NewQueueSender(messaging.NewRedisQueue(cache.Client(), cfg.Redis.QueueKey, log)), nil
	default:
		return messaging.NewLogSender(log), nil
	}
}

func gatewayConfig(cfg *config.Config) messaging.HTTPSenderConfig {
	hc := messaging.DefaultHTTPSenderConfig()
	hc.URL = cfg.Notify.GatewayURL
	hc.Token = cfg.Notify.Token
	hc.Timeout = cfg.Notify.Timeout
	hc.MaxAttempts = cfg.Notify.MaxAttempts
	hc.Throttle.PerSecond = cfg.Notify.RatePerSec
	hc.Throttle.Burst = cfg.Notify.Burst
	return hc
}
