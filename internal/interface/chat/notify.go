package chat

import (
	"context"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/classroll/classroll-bot/pkg/logger"
)

// notify sends one student notification. Failures are logged and reported to
// the caller; they never abort the command.
func (r *Router) notify(req *request, recipient, text string) bool {
	if r.sender == nil {
		return false
	}

	ctx, cancel := context.WithTimeout(req.ctx, r.config.NotifyTimeout)
	defer cancel()

	err := r.sender.Send(ctx, recipient, text)
	r.metrics.ObserveNotification(err == nil)
	if err != nil {
		req.logger.Warn("notification failed", logger.Recipient(recipient), zap.Error(err))
		return false
	}
	return true
}

// notifyAll fans out one text to many recipients and returns how many were sent.
func (r *Router) notifyAll(req *request, recipients []string, text string) int {
	var sent atomic.Int64

	var g errgroup.Group
	g.SetLimit(r.config.NotifyConcurrency)
	for _, id := range recipients {
		id := id
		g.Go(func() error {
			if r.notify(req, id, text) {
				sent.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	return int(sent.Load())
}
