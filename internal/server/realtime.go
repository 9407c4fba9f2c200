package server

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/MarcoPoloResearchLab/parley/internal/realtime"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const userIDQueryParam = "userId"

func newUpgrader(allowedOrigins []string) websocket.Upgrader {
	allowed := make(map[string]struct{}, len(allowedOrigins))
	allowAll := len(allowedOrigins) == 0
	for _, origin := range allowedOrigins {
		if origin == "*" {
			allowAll = true
		}
		allowed[strings.TrimRight(origin, "/")] = struct{}{}
	}
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || allowAll {
				return true
			}
			if _, ok := allowed[origin]; ok {
				return true
			}
			parsed, err := url.Parse(origin)
			return err == nil && parsed.Host == r.Host
		},
	}
}

// handleRealtime upgrades an authenticated request and keeps the user's connection registered for
// as long as the socket stays open.
func (h *httpHandler) handleRealtime(c *gin.Context) {
	userID := c.GetString(userIDContextKey)
	if claimed := strings.TrimSpace(c.Query(userIDQueryParam)); claimed != "" && claimed != userID {
		respondError(c, http.StatusForbidden, "Forbidden - userId does not match session")
		return
	}

	socket, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", zap.String("user_id", userID), zap.Error(err))
		return
	}

	connectionID := uuid.NewString()
	connection := realtime.NewSocketConnection(connectionID, socket, h.sendBuffer, h.logger)
	if err := h.registry.Register(userID, connection); err != nil {
		h.logger.Warn("connection registration failed", zap.String("user_id", userID), zap.Error(err))
		_ = connection.Close()
		return
	}
	h.logger.Info("user connected", zap.String("user_id", userID), zap.String("connection_id", connectionID))
	defer func() {
		h.registry.Unregister(connectionID)
		h.logger.Info("user disconnected", zap.String("user_id", userID), zap.String("connection_id", connectionID))
	}()

	serveErr := connection.Serve(func(frame []byte) {
		h.handleInboundFrame(userID, connectionID, frame)
	})
	if serveErr != nil {
		h.logger.Debug("websocket closed unexpectedly", zap.String("connection_id", connectionID), zap.Error(serveErr))
	}
}

func (h *httpHandler) handleInboundFrame(userID, connectionID string, frame []byte) {
	event, err := realtime.DecodeEnvelope(frame)
	if err != nil {
		h.logger.Debug("inbound frame rejected", zap.String("connection_id", connectionID), zap.Error(err))
		return
	}
	switch event.(type) {
	case realtime.PresenceEvent:
		if err := h.registry.SendSnapshotTo(connectionID); err != nil {
			h.logger.Debug("presence snapshot dropped", zap.String("connection_id", connectionID), zap.Error(err))
		}
	case realtime.MessageEvent:
		h.logger.Debug("inbound message frames are not accepted", zap.String("user_id", userID))
	}
}
