package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/classroll/classroll-bot/internal/domain/shared"
	"github.com/classroll/classroll-bot/pkg/circuitbreaker"
	"github.com/classroll/classroll-bot/pkg/retry"
)

// HTTPSenderConfig configures delivery to the chat gateway.
type HTTPSenderConfig struct {
	// URL receives POST {"recipient": ..., "text": ...}.
	URL string

	// Token is sent as a bearer token when set.
	Token string

	Timeout     time.Duration
	MaxAttempts int

	// Throttle limits the outbound message rate.
	Throttle ThrottleConfig
}

// DefaultHTTPSenderConfig returns defaults without a URL.
func DefaultHTTPSenderConfig() HTTPSenderConfig {
	return HTTPSenderConfig{
		Timeout:     10 * time.Second,
		MaxAttempts: 3,
		Throttle:    DefaultThrottleConfig(),
	}
}

// HTTPSender posts messages to the chat gateway, retrying 5xx and network errors.
// After repeated failed deliveries the breaker opens and sends fail fast.
type HTTPSender struct {
	config  HTTPSenderConfig
	client  *http.Client
	retrier *retry.Retrier
	breaker  *circuitbreaker.CircuitBreaker
	throttle *Throttle
	logger   *zap.Logger
}

type outboundPayload struct {
	Recipient string `json:"recipient"`
	Text      string `json:"text"`
}

// NewHTTPSender creates an HTTPSender.
func NewHTTPSender(config HTTPSenderConfig, logger *zap.Logger) *HTTPSender {
	defaults := DefaultHTTPSenderConfig()
	if config.Timeout <= 0 {
		config.Timeout = defaults.Timeout
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = defaults.MaxAttempts
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("gateway")

	return &HTTPSender{
		config: config,
		client: &http.Client{Timeout: config.Timeout},
		retrier: retry.New(
			retry.WithMaxAttempts(config.MaxAttempts),
			retry.WithInitialDelay(200*time.Millisecond),
			retry.WithMaxDelay(5*time.Second),
			retry.WithJitter(0.2),
			retry.WithOnRetry(func(attempt int, err error, delay time.Duration) {
				logger.Warn("gateway delivery retry",
					zap.Int("attempt", attempt),
					zap.Duration("delay", delay),
					zap.Error(err),
				)
			}),
		),
		breaker: circuitbreaker.GatewayBreaker(func(name string, from, to circuitbreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.Stringer("from", from),
				zap.Stringer("to", to),
			)
		}),
		throttle: NewThrottle(config.Throttle),
		logger:   logger,
	}
}

// Send implements Sender.
func (s *HTTPSender) Send(ctx context.Context, recipient, text string) error {
	body, err := json.Marshal(outboundPayload{Recipient: recipient, Text: text})
	if err != nil {
		return shared.WrapError("notify", "Send", shared.ErrTransport, "encode payload", err)
	}

	err = s.breaker.Execute(ctx, func(ctx context.Context) error {
		return s.retrier.Do(ctx, func(ctx context.Context) error {
			if err := s.throttle.Wait(ctx); err != nil {
				return retry.Permanent(err)
			}
			return s.post(ctx, body)
		})
	})
	if err != nil {
		return shared.WrapError("notify", "Send", shared.ErrTransport, "gateway delivery failed", err)
	}
	return nil
}

func (s *HTTPSender) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.URL, bytes.NewReader(body))
	if err != nil {
		return retry.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.config.Token != "" {
		req.Header.Set("Authorization", "Bearer "+s.config.Token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return retry.Retryable(err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests:
		s.throttle.Pause(retryAfter(resp.Header.Get("Retry-After")))
		return retry.Retryable(fmt.Errorf("gateway status %d", resp.StatusCode))
	case resp.StatusCode >= 500:
		return retry.Retryable(fmt.Errorf("gateway status %d", resp.StatusCode))
	default:
		return retry.Permanent(fmt.Errorf("gateway status %d", resp.StatusCode))
	}
}

// retryAfter reads a Retry-After header in seconds, defaulting to one second.
func retryAfter(header string) time.Duration {
	if secs, err := strconv.Atoi(header); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return time.Second
}
