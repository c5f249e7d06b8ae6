package messaging

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/classroll/classroll-bot/internal/domain/shared"
)

func TestHTTPSender_Delivers(t *testing.T) {
	var got outboundPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	s := NewHTTPSender(HTTPSenderConfig{URL: srv.URL, Token: "secret"}, nil)
	require.NoError(t, s.Send(context.Background(), "111@c.us", "hello"))
	assert.Equal(t, outboundPayload{Recipient: "111@c.us", Text: "hello"}, got)
}

func TestHTTPSender_RetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := NewHTTPSender(HTTPSenderConfig{URL: srv.URL, MaxAttempts: 3}, nil)
	require.NoError(t, s.Send(context.Background(), "r", "t"))
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestHTTPSender_ClientErrorIsPermanent(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	s := NewHTTPSender(HTTPSenderConfig{URL: srv.URL, MaxAttempts: 3}, nil)
	err := s.Send(context.Background(), "r", "t")
	require.Error(t, err)
	assert.True(t, shared.IsTransport(err))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestQueueSender_WorkerDrains(t *testing.T) {
	q := NewMemoryQueue(8)
	producer := NewQueueSender(q)
	sink := NewMemorySender()

	require.NoError(t, producer.Send(context.Background(), "a@c.us", "one"))
	require.NoError(t, producer.Send(context.Background(), "b@c.us", "two"))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan WorkerStats, 1)
	go func() {
		stats, _ := NewWorker(q, sink, nil).Run(ctx)
		done <- stats
	}()

	assert.Eventually(t, func() bool { return len(sink.Messages()) == 2 }, time.Second, 10*time.Millisecond)
	cancel()

	stats := <-done
	assert.Equal(t, 2, stats.Delivered)
	assert.Equal(t, []Message{{Recipient: "a@c.us", Text: "one"}, {Recipient: "b@c.us", Text: "two"}}, sink.Messages())
}

func TestQueueSender_PublishFailureIsTransport(t *testing.T) {
	q := NewMemoryQueue(0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewQueueSender(q).Send(ctx, "a", "b")
	assert.True(t, shared.IsTransport(err))
}

func TestThrottle_BurstThenWait(t *testing.T) {
	th := NewThrottle(ThrottleConfig{PerSecond: 1, Burst: 2})
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	th.now = func() time.Time { return now }
	th.lastRefill = now

	assert.True(t, th.TryAcquire())
	assert.True(t, th.TryAcquire())
	assert.False(t, th.TryAcquire())

	now = now.Add(time.Second)
	assert.True(t, th.TryAcquire())
}

func TestThrottle_PauseHoldsSends(t *testing.T) {
	th := NewThrottle(ThrottleConfig{PerSecond: 10, Burst: 5})
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	th.now = func() time.Time { return now }
	th.lastRefill = now

	th.Pause(3 * time.Second)
	assert.False(t, th.TryAcquire())

	now = now.Add(2 * time.Second)
	assert.False(t, th.TryAcquire())

	now = now.Add(2 * time.Second)
	assert.True(t, th.TryAcquire())
}

func TestThrottle_WaitTimesOut(t *testing.T) {
	th := NewThrottle(ThrottleConfig{PerSecond: 0.01, Burst: 1, WaitTimeout: 20 * time.Millisecond})
	require.NoError(t, th.Wait(context.Background()))
	assert.ErrorIs(t, th.Wait(context.Background()), ErrThrottleTimeout)
}

func TestThrottle_DisabledIsNil(t *testing.T) {
	th := NewThrottle(ThrottleConfig{})
	assert.Nil(t, th)
	assert.NoError(t, th.Wait(context.Background()))
	assert.True(t, th.TryAcquire())
}

func TestHTTPSender_TooManyRequestsPausesThrottle(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := HTTPSenderConfig{URL: srv.URL, MaxAttempts: 2, Throttle: ThrottleConfig{PerSecond: 100, Burst: 10}}
	s := NewHTTPSender(cfg, nil)

	start := time.Now()
	require.NoError(t, s.Send(context.Background(), "111@c.us", "hello"))
	assert.Equal(t, int32(2), calls.Load())
	assert.GreaterOrEqual(t, time.Since(start), 900*time.Millisecond)
}

func TestRedisQueue_ConsumeStopsDuringBackoff(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	q := NewRedisQueue(client, "", nil)
	q.backoff = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	ch, err := q.Consume(ctx)
	require.NoError(t, err)

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case _, open := <-ch:
		assert.False(t, open)
	case <-time.After(2 * time.Second):
		t.Fatal("consume did not stop after cancel")
	}
}
