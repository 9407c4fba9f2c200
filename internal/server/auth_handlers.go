package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/MarcoPoloResearchLab/parley/internal/auth"
	"github.com/MarcoPoloResearchLab/parley/internal/media"
	"github.com/MarcoPoloResearchLab/parley/internal/users"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type signupRequestPayload struct {
	FullName string `json:"fullName"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequestPayload struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type updateProfileRequestPayload struct {
	ProfilePic string `json:"profilePic"`
}

func (h *httpHandler) handleSignup(c *gin.Context) {
	var request signupRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		respondError(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	user, err := h.usersService.Signup(c.Request.Context(), users.SignupRequest{
		Email:    request.Email,
		FullName: request.FullName,
		Password: request.Password,
	})
	switch {
	case errors.Is(err, users.ErrMissingFields):
		respondError(c, http.StatusBadRequest, "All fields are required")
		return
	case errors.Is(err, auth.ErrPasswordTooShort):
		respondError(c, http.StatusBadRequest, "Password must be at least 6 characters")
		return
	case errors.Is(err, users.ErrEmailTaken):
		respondError(c, http.StatusBadRequest, "Email already exists")
		return
	case err != nil:
		h.logger.Error("signup failed", zap.Error(err))
		respondError(c, http.StatusInternalServerError, "Internal server error")
		return
	}

	if !h.issueSession(c, user) {
		return
	}
	c.JSON(http.StatusCreated, user)
}

func (h *httpHandler) handleLogin(c *gin.Context) {
	var request loginRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		respondError(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	user, err := h.usersService.Login(c.Request.Context(), request.Email, request.Password)
	if errors.Is(err, users.ErrInvalidCredentials) {
		respondError(c, http.StatusBadRequest, "Invalid credentials")
		return
	}
	if err != nil {
		h.logger.Error("login failed", zap.Error(err))
		respondError(c, http.StatusInternalServerError, "Internal server error")
		return
	}

	if !h.issueSession(c, user) {
		return
	}
	c.JSON(http.StatusOK, user)
}

func (h *httpHandler) handleLogout(c *gin.Context) {
	h.setSessionCookie(c, "", -1)
	c.JSON(http.StatusOK, gin.H{"message": "Logged out successfully"})
}

func (h *httpHandler) handleUpdateProfile(c *gin.Context) {
	userID := c.GetString(userIDContextKey)
	var request updateProfileRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		respondError(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	user, err := h.usersService.UpdateProfilePic(c.Request.Context(), userID, request.ProfilePic)
	switch {
	case errors.Is(err, users.ErrMissingProfilePic):
		respondError(c, http.StatusBadRequest, "Profile picture is required")
		return
	case media.IsClientError(err):
		respondError(c, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, users.ErrUserNotFound):
		respondError(c, http.StatusNotFound, "User not found")
		return
	case err != nil:
		h.logger.Error("profile update failed", zap.String("user_id", userID), zap.Error(err))
		respondError(c, http.StatusInternalServerError, "Internal server error")
		return
	}
	c.JSON(http.StatusOK, user)
}

func (h *httpHandler) handleCheckAuth(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "Unauthorized")
		return
	}
	c.JSON(http.StatusOK, user)
}

func (h *httpHandler) issueSession(c *gin.Context, user users.User) bool {
	token, _, err := h.issuer.IssueSessionToken(user.ID, user.Email)
	if err != nil {
		h.logger.Error("failed to issue session token", zap.String("user_id", user.ID), zap.Error(err))
		respondError(c, http.StatusInternalServerError, "Internal server error")
		return false
	}
	h.setSessionCookie(c, token, int(h.issuer.TTL()/time.Second))
	return true
}

func (h *httpHandler) setSessionCookie(c *gin.Context, value string, maxAge int) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(h.sessions.CookieName(), value, maxAge, "/", "", h.secureCookie, true)
}
