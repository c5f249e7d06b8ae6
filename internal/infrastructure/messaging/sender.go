// Package messaging delivers outbound chat messages (student notifications)
// through a pluggable Sender: a log-only sender, a Redis-backed queue drained
// by the notify worker, or a direct HTTP call to the chat gateway.
package messaging

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Sender delivers one text message to a chat recipient.
// A returned error is always a transport failure and never fatal to the caller.
type Sender interface {
	Send(ctx context.Context, recipient, text string) error
}

// ══════════════════════════════════════════════════════════════════════════════
// LOG SENDER
// ══════════════════════════════════════════════════════════════════════════════

// LogSender only logs outbound messages. Used when no gateway is configured.
type LogSender struct {
	logger *zap.Logger
}

// NewLogSender creates a LogSender.
func NewLogSender(logger *zap.Logger) *LogSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSender{logger: logger.Named("notify")}
}

// Send implements Sender.
func (s *LogSender) Send(_ context.Context, recipient, text string) error {
	s.logger.Info("outbound message",
		zap.String("recipient", recipient),
		zap.Int("length", len(text)),
	)
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// MEMORY SENDER
// ══════════════════════════════════════════════════════════════════════════════

// Message is a delivered message kept by MemorySender.
type Message struct {
	Recipient string
	Text      string
}

// MemorySender records messages in memory. Fail makes every Send return it.
type MemorySender struct {
	mu       sync.Mutex
	messages []Message
	Fail     error
}

// NewMemorySender creates an empty MemorySender.
func NewMemorySender() *MemorySender {
	return &MemorySender{}
}

// Send implements Sender.
func (s *MemorySender) Send(_ context.Context, recipient, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Fail != nil {
		return s.Fail
	}
	s.messages = append(s.messages, Message{Recipient: recipient, Text: text})
	return nil
}

// Messages returns a copy of everything sent so far.
func (s *MemorySender) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Message(nil), s.messages...)
}
