package server

import (
	"errors"
	"net/http"

	"github.com/MarcoPoloResearchLab/parley/internal/media"
	"github.com/MarcoPoloResearchLab/parley/internal/messages"
	"github.com/MarcoPoloResearchLab/parley/internal/users"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type sendMessageRequestPayload struct {
	Text  string `json:"text"`
	Image string `json:"image"`
}

func (h *httpHandler) handleListUsers(c *gin.Context) {
	userID := c.GetString(userIDContextKey)
	peers, err := h.usersService.ListPeers(c.Request.Context(), userID)
	if err != nil {
		h.logger.Error("failed to list users", zap.String("user_id", userID), zap.Error(err))
		respondError(c, http.StatusInternalServerError, "Internal server error")
		return
	}
	if peers == nil {
		peers = []users.User{}
	}
	c.JSON(http.StatusOK, peers)
}

func (h *httpHandler) handleConversation(c *gin.Context) {
	userID := c.GetString(userIDContextKey)
	conversation, err := h.messages.Conversation(c.Request.Context(), userID, c.Param("id"))
	if errors.Is(err, messages.ErrInvalidParticipant) {
		respondError(c, http.StatusBadRequest, "Invalid conversation")
		return
	}
	if err != nil {
		respondError(c, http.StatusInternalServerError, "Internal server error")
		return
	}
	if conversation == nil {
		conversation = []messages.Message{}
	}
	c.JSON(http.StatusOK, conversation)
}

// handleSendMessage answers once the message is stored. Live delivery to the receiver is not
// reflected in the response.
func (h *httpHandler) handleSendMessage(c *gin.Context) {
	var request sendMessageRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		respondError(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	message, err := h.messages.Send(c.Request.Context(), messages.SendRequest{
		SenderID:   c.GetString(userIDContextKey),
		ReceiverID: c.Param("id"),
		Text:       request.Text,
		Image:      request.Image,
	})
	switch {
	case errors.Is(err, messages.ErrEmptyMessage):
		respondError(c, http.StatusBadRequest, "Text or image is required")
		return
	case errors.Is(err, messages.ErrInvalidParticipant):
		respondError(c, http.StatusBadRequest, "Invalid receiver")
		return
	case errors.Is(err, messages.ErrReceiverNotFound):
		respondError(c, http.StatusNotFound, "Receiver not found")
		return
	case media.IsClientError(err):
		respondError(c, http.StatusBadRequest, errors.Unwrap(err).Error())
		return
	case err != nil:
		respondError(c, http.StatusInternalServerError, "Internal server error")
		return
	}
	c.JSON(http.StatusCreated, message)
}
