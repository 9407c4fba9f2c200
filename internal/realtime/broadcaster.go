package realtime

import "go.uber.org/zap"

// PresenceBroadcaster pushes the full online set to every connection. Frames that do not fit a
// connection's buffer are dropped; the next change or a snapshot request corrects the client.
type PresenceBroadcaster struct {
	logger *zap.Logger
}

func NewPresenceBroadcaster(logger *zap.Logger) *PresenceBroadcaster {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PresenceBroadcaster{logger: logger}
}

func (b *PresenceBroadcaster) PresenceChanged(online []string, connections []Connection) {
	frame, err := EncodePresence(online)
	if err != nil {
		b.logger.Error("presence encode failed", zap.Error(err))
		return
	}
	for _, conn := range connections {
		if !conn.Send(frame) {
			b.logger.Debug("presence frame dropped", zap.String("connection_id", conn.ID()))
		}
	}
}
