// Package persistence holds the snapshot gateways (file, postgres) and the
// wrapper that adds retries, a circuit breaker and checkpoint metrics to them.
package persistence

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/classroll/classroll-bot/internal/domain/attendance"
	"github.com/classroll/classroll-bot/internal/infrastructure/metrics"
	"github.com/classroll/classroll-bot/pkg/circuitbreaker"
	"github.com/classroll/classroll-bot/pkg/retry"
)

// InstrumentedGateway wraps an attendance.Gateway.
// Saves are retried, guarded by a breaker and counted; loads pass through.
type InstrumentedGateway struct {
	next    attendance.Gateway
	metrics *metrics.Metrics
	retrier *retry.Retrier
	breaker *circuitbreaker.CircuitBreaker
	logger  *zap.Logger
}

// Instrument wraps gw. m may be nil.
func Instrument(gw attendance.Gateway, m *metrics.Metrics, logger *zap.Logger) *InstrumentedGateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("checkpoint")

	return &InstrumentedGateway{
		next:    gw,
		metrics: m,
		retrier: retry.New(
			retry.WithMaxAttempts(3),
			retry.WithInitialDelay(50*time.Millisecond),
			retry.WithMaxDelay(time.Second),
			retry.WithJitter(0.05),
			retry.WithRetryIf(func(err error) bool {
				return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
			}),
			retry.WithOnRetry(func(attempt int, err error, delay time.Duration) {
				logger.Warn("snapshot save retry",
					zap.Int("attempt", attempt),
					zap.Duration("delay", delay),
					zap.Error(err),
				)
			}),
		),
		breaker: circuitbreaker.StorageBreaker(func(name string, from, to circuitbreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.Stringer("from", from),
				zap.Stringer("to", to),
			)
		}),
		logger: logger,
	}
}

// Load implements attendance.Gateway.
func (g *InstrumentedGateway) Load(ctx context.Context) (*attendance.Snapshot, error) {
	return g.next.Load(ctx)
}

// Save implements attendance.Gateway.
func (g *InstrumentedGateway) Save(ctx context.Context, snap *attendance.Snapshot) error {
	start := time.Now()
	err := g.breaker.Execute(ctx, func(ctx context.Context) error {
		return g.retrier.Do(ctx, func(ctx context.Context) error {
			return g.next.Save(ctx, snap)
		})
	})
	g.metrics.ObserveCheckpoint(err == nil)

	if err != nil {
		g.logger.Error("snapshot save failed",
			zap.Uint64("version", snap.Version),
			zap.Duration("latency", time.Since(start)),
			zap.Error(err),
		)
		return err
	}
	g.logger.Debug("snapshot saved",
		zap.Uint64("version", snap.Version),
		zap.Duration("latency", time.Since(start)),
	)
	return nil
}
