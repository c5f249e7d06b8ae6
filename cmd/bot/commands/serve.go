package commands

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	httpserver "github.com/classroll/classroll-bot/internal/interface/http"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the chat webhook, health and metrics endpoints",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return serve(ctx)
	},
}

func serve(ctx context.Context) error {
	log.Info("starting classroll",
		zap.String("version", cfg.App.Version),
		zap.String("env", string(cfg.App.Environment)),
		zap.String("timezone", cfg.App.Timezone),
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 1. ХРАНИЛИЩЕ, СЕССИИ, ДОСТАВКА
	// ─────────────────────────────────────────────────────────────────────────
	a, err := newApp(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	defer a.close()

	// ─────────────────────────────────────────────────────────────────────────
	// 2. HTTP SERVER
	// ─────────────────────────────────────────────────────────────────────────
	httpCfg := httpserver.DefaultConfig()
	httpCfg.Host = cfg.HTTP.Host
	httpCfg.Port = cfg.HTTP.Port
	httpCfg.ReadTimeout = cfg.HTTP.ReadTimeout
	httpCfg.WriteTimeout = cfg.HTTP.WriteTimeout
	httpCfg.IdleTimeout = cfg.HTTP.IdleTimeout
	httpCfg.JWTSecret = cfg.HTTP.JWTSecret
	httpCfg.JWTIssuer = cfg.HTTP.JWTIssuer
	if cfg.IsDevelopment() {
		httpCfg.Mode = "debug"
	}
	if httpCfg.JWTSecret == "" {
		log.Warn("JWT_SECRET is empty, webhook authentication is disabled")
	}

	server := httpserver.NewServer(httpCfg, httpserver.Dependencies{
		Router:  a.router,
		Health:  a.health,
		Metrics: a.metrics,
		Logger:  log,
	})
	errCh := server.StartAsync()

	// ─────────────────────────────────────────────────────────────────────────
	// 3. GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	var runErr error
	select {
	case <-ctx.Done():
		log.Info("received shutdown signal")
	case err, ok := <-errCh:
		if ok && err != nil {
			log.Error("http server failed", zap.Error(err))
			runErr = err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("failed to stop HTTP server gracefully", zap.Error(err))
	}
	if err := a.store.Checkpoint(shutdownCtx); err != nil {
		log.Error("final checkpoint failed", zap.Error(err))
	}

	log.Info("shutdown completed")
	return runErr
}
