// Package main - фоновый процесс доставки уведомлений classroll.
//
// Бот кладёт уведомления в очередь Redis (NOTIFY_BACKEND=queue), а worker
// забирает их и отправляет через HTTP-шлюз чат-транспорта.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/classroll/classroll-bot/config"
	"github.com/classroll/classroll-bot/internal/infrastructure/messaging"
	"github.com/classroll/classroll-bot/internal/infrastructure/persistence/redis"
	"github.com/classroll/classroll-bot/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// MAIN
// ══════════════════════════════════════════════════════════════════════════════

func main() {
	envFile := flag.String("env-file", ".env", "dotenv file to read before the environment")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *envFile); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, envFile string) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. ЗАГРУЗКА КОНФИГУРАЦИИ
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load(envFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if !cfg.Redis.Enabled {
		return errors.New("worker needs REDIS_ENABLED=true")
	}
	if cfg.Notify.GatewayURL == "" {
		return errors.New("worker needs NOTIFY_GATEWAY_URL")
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. НАСТРОЙКА ЛОГИРОВАНИЯ
	// ─────────────────────────────────────────────────────────────────────────
	opts := logger.DefaultOptions()
	opts.Level = cfg.Log.Level
	opts.Format = cfg.Log.Format
	opts.File = cfg.Log.File
	opts.Development = cfg.IsDevelopment()
	log := logger.New(opts).With(zap.String("app", cfg.App.Name+"-worker"))
	defer func() { _ = log.Sync() }()

	log.Info("starting notification worker",
		zap.String("env", string(cfg.App.Environment)),
		zap.String("queue", cfg.Redis.QueueKey),
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 3. ПОДКЛЮЧЕНИЕ К REDIS
	// ─────────────────────────────────────────────────────────────────────────
	rc := redis.DefaultConfig()
	rc.Addr = cfg.Redis.Addr
	rc.Password = cfg.Redis.Password
	rc.DB = cfg.Redis.DB
	rc.PoolSize = cfg.Redis.PoolSize

	cache, err := redis.NewCache(ctx, rc)
	if err != nil {
		return err
	}
	defer cache.Close()

	queue := messaging.NewRedisQueue(cache.Client(), cfg.Redis.QueueKey, log)
	if depth, err := queue.Depth(ctx); err == nil {
		log.Info("redis connection established", zap.String("addr", rc.Addr), zap.Int64("pending", depth))
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 4. ДОСТАВКА
	// ─────────────────────────────────────────────────────────────────────────
	hc := messaging.DefaultHTTPSenderConfig()
	hc.URL = cfg.Notify.GatewayURL
	hc.Token = cfg.Notify.Token
	hc.Timeout = cfg.Notify.Timeout
	hc.MaxAttempts = cfg.Notify.MaxAttempts
	hc.Throttle.PerSecond = cfg.Notify.RatePerSec
	hc.Throttle.Burst = cfg.Notify.Burst

	started := time.Now()
	stats, err := messaging.NewWorker(queue, messaging.NewHTTPSender(hc, log), log).Run(ctx)
	if err != nil {
		return err
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 5. ЗАВЕРШЕНИЕ
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("worker stopped",
		zap.Int("delivered", stats.Delivered),
		zap.Int("failed", stats.Failed),
		zap.Duration("uptime", time.Since(started)),
	)
	return nil
}
