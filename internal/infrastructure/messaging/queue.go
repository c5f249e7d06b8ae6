package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/classroll/classroll-bot/internal/domain/shared"
)

// DefaultQueueKey is the Redis list holding pending notifications.
const DefaultQueueKey = "classroll:notifications"

// Notification is one queued outbound message.
type Notification struct {
	ID        string    `json:"id"`
	Recipient string    `json:"recipient"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// Queue is the abstraction over queue backends.
type Queue interface {
	Publish(ctx context.Context, n Notification) error
	Consume(ctx context.Context) (<-chan Notification, error)
}

// ══════════════════════════════════════════════════════════════════════════════
// IN-MEMORY QUEUE
// ══════════════════════════════════════════════════════════════════════════════

// MemoryQueue is a bounded channel-backed queue for dev and tests.
type MemoryQueue struct {
	ch chan Notification
}

// NewMemoryQueue creates a bounded in-memory queue.
func NewMemoryQueue(size int) *MemoryQueue {
	return &MemoryQueue{ch: make(chan Notification, size)}
}

// Publish enqueues a notification.
func (q *MemoryQueue) Publish(ctx context.Context, n Notification) error {
	select {
	case q.ch <- n:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Consume returns a channel closed when ctx is done.
func (q *MemoryQueue) Consume(ctx context.Context) (<-chan Notification, error) {
	out := make(chan Notification)
	go func() {
		defer close(out)
		for {
			select {
			case n := <-q.ch:
				select {
				case out <- n:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// REDIS QUEUE
// ══════════════════════════════════════════════════════════════════════════════

// RedisQueue implements a Redis list-backed queue using LPUSH/BRPOP.
type RedisQueue struct {
	client redis.UniversalClient
	key    string
	logger *zap.Logger

	// backoff is the pause after a failed BRPOP.
	backoff time.Duration
}

// NewRedisQueue builds a queue on key (DefaultQueueKey when empty).
func NewRedisQueue(client redis.UniversalClient, key string, logger *zap.Logger) *RedisQueue {
	if key == "" {
		key = DefaultQueueKey
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisQueue{client: client, key: key, logger: logger.Named("queue"), backoff: time.Second}
}

// Publish enqueues a notification.
func (q *RedisQueue) Publish(ctx context.Context, n Notification) error {
	data, err := json.Marshal(n)
	if err != nil {
		return err
	}
	return q.client.LPush(ctx, q.key, data).Err()
}

// Consume streams notifications using BRPOP until ctx is done.
func (q *RedisQueue) Consume(ctx context.Context) (<-chan Notification, error) {
	out := make(chan Notification)
	go func() {
		defer close(out)
		for {
			res, err := q.client.BRPop(ctx, 5*time.Second, q.key).Result()
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				if !errors.Is(err, redis.Nil) {
					q.logger.Warn("brpop failed", zap.Error(err))
					if !sleepCtx(ctx, q.backoff) {
						return
					}
				}
				continue
			}
			if len(res) != 2 {
				continue
			}
			var n Notification
			if err := json.Unmarshal([]byte(res[1]), &n); err != nil {
				q.logger.Error("dropping malformed notification", zap.Error(err))
				continue
			}
			select {
			case out <- n:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// sleepCtx waits for d and reports false when ctx ends first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// Depth returns the number of pending notifications. The worker logs it at
// startup.
func (q *RedisQueue) Depth(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.key).Result()
}

// ══════════════════════════════════════════════════════════════════════════════
// QUEUE SENDER
// ══════════════════════════════════════════════════════════════════════════════

// QueueSender implements Sender by enqueueing. Success means "accepted for
// delivery"; the notify worker performs the actual send.
type QueueSender struct {
	queue Queue
	clock func() time.Time
}

// NewQueueSender creates a QueueSender.
func NewQueueSender(queue Queue) *QueueSender {
	return &QueueSender{queue: queue, clock: time.Now}
}

// Send implements Sender.
func (s *QueueSender) Send(ctx context.Context, recipient, text string) error {
	n := Notification{
		ID:        uuid.NewString(),
		Recipient: recipient,
		Text:      text,
		CreatedAt: s.clock().UTC(),
	}
	if err := s.queue.Publish(ctx, n); err != nil {
		return shared.WrapError("notify", "Enqueue", shared.ErrTransport, "failed to enqueue notification", err)
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// WORKER
// ══════════════════════════════════════════════════════════════════════════════

// WorkerStats counts processed notifications.
type WorkerStats struct {
	Delivered int
	Failed    int
}

// Worker drains a Queue into a Sender.
type Worker struct {
	queue  Queue
	sender Sender
	logger *zap.Logger
}

// NewWorker creates a Worker.
func NewWorker(queue Queue, sender Sender, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{queue: queue, sender: sender, logger: logger.Named("worker")}
}

// Run processes notifications until ctx is cancelled. Failed deliveries are
// logged and dropped: notifications are best-effort.
func (w *Worker) Run(ctx context.Context) (WorkerStats, error) {
	var stats WorkerStats
	ch, err := w.queue.Consume(ctx)
	if err != nil {
		return stats, err
	}

	w.logger.Info("worker started, waiting for notifications")
	for n := range ch {
		if err := w.sender.Send(ctx, n.Recipient, n.Text); err != nil {
			stats.Failed++
			w.logger.Warn("notification delivery failed",
				zap.String("notification_id", n.ID),
				zap.String("recipient", n.Recipient),
				zap.Error(err),
			)
			continue
		}
		stats.Delivered++
		w.logger.Debug("notification delivered",
			zap.String("notification_id", n.ID),
			zap.Duration("queued_for", time.Since(n.CreatedAt)),
		)
	}
	return stats, nil
}
