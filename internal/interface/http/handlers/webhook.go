package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/classroll/classroll-bot/internal/interface/chat"
	"github.com/classroll/classroll-bot/pkg/logger"
)

// Dispatcher handles one chat message. *chat.Router implements it.
type Dispatcher interface {
	Handle(ctx context.Context, in chat.Inbound) chat.Reply
}

// MessageRequest is the body the transport bridge posts for each inbound message.
type MessageRequest struct {
	SenderID  string `json:"sender_id" binding:"required,max=128"`
	Text      string `json:"text" binding:"max=4096"`
	Selection string `json:"selection" binding:"max=128"`
}

// MessageResponse tells the bridge what to send back. An empty Reply means
// the message is ignored.
type MessageResponse struct {
	Reply   string   `json:"reply,omitempty"`
	Notices []string `json:"notices,omitempty"`
}

// Messages returns the POST /v1/messages handler.
func Messages(d Dispatcher, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req MessageRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		ctx := logger.WithRequestID(c.Request.Context(), RequestIDFrom(c))
		reply := d.Handle(ctx, chat.Inbound{
			SenderID:  req.SenderID,
			Text:      req.Text,
			Selection: req.Selection,
		})

		if reply.Text == "" && len(reply.Notices) == 0 {
			log.Debug("message ignored", logger.RequestID(RequestIDFrom(c)))
			c.Status(http.StatusNoContent)
			return
		}
		c.JSON(http.StatusOK, MessageResponse{Reply: reply.Text, Notices: reply.Notices})
	}
}
