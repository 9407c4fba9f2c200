package realtime

import (
	"context"
	"errors"

	"github.com/MarcoPoloResearchLab/parley/internal/messages"
	"go.uber.org/zap"
)

// Directory resolves a user to their live connection and enqueues a frame on it.
type Directory interface {
	SendTo(userID string, frame []byte) (string, error)
}

// Router pushes persisted messages to the receiver's live connection, if any.
type Router struct {
	directory Directory
	logger    *zap.Logger
}

func NewRouter(directory Directory, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{directory: directory, logger: logger}
}

// Deliver is fire-and-forget: an offline receiver or a full buffer is logged, never returned.
func (r *Router) Deliver(_ context.Context, message messages.Message) {
	frame, err := EncodeMessage(message)
	if err != nil {
		r.logger.Error("message encode failed", zap.String("message_id", message.ID), zap.Error(err))
		return
	}
	connectionID, err := r.directory.SendTo(message.ReceiverID, frame)
	switch {
	case errors.Is(err, ErrNotConnected):
		r.logger.Debug("receiver offline",
			zap.String("message_id", message.ID),
			zap.String("receiver_id", message.ReceiverID))
	case err != nil:
		r.logger.Debug("message push dropped",
			zap.String("message_id", message.ID),
			zap.String("connection_id", connectionID),
			zap.Error(err))
	default:
		r.logger.Debug("message pushed",
			zap.String("message_id", message.ID),
			zap.String("connection_id", connectionID))
	}
}

var _ messages.Notifier = (*Router)(nil)
