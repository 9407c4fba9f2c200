package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/MarcoPoloResearchLab/parley/internal/auth"
	"github.com/MarcoPoloResearchLab/parley/internal/media"
	"github.com/MarcoPoloResearchLab/parley/internal/messages"
	"github.com/MarcoPoloResearchLab/parley/internal/realtime"
	"github.com/MarcoPoloResearchLab/parley/internal/users"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	userIDContextKey = "parley_user_id"
	userContextKey   = "parley_user"

	healthCheckTimeout = 5 * time.Second
)

var (
	errMissingSessionValidator = errors.New("session validator dependency required")
	errMissingSessionIssuer    = errors.New("session issuer dependency required")
	errMissingUsersService     = errors.New("users service dependency required")
	errMissingMessagesService  = errors.New("messages service dependency required")
	errMissingRegistry         = errors.New("realtime registry dependency required")
)

type SessionValidator interface {
	ValidateRequest(r *http.Request) (auth.SessionClaims, error)
	CookieName() string
}

type SessionIssuer interface {
	IssueSessionToken(userID, email string) (string, time.Time, error)
	TTL() time.Duration
}

// Pinger is a collaborator reported by the health endpoint.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Dependencies struct {
	Sessions       SessionValidator
	Issuer         SessionIssuer
	Users          *users.Service
	Messages       *messages.Service
	Registry       *realtime.Registry
	Store          Pinger
	Media          Pinger
	MediaDirectory string
	AllowedOrigins []string
	SecureCookie   bool
	SendBuffer     int
	Logger         *zap.Logger
}

func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Sessions == nil {
		return nil, errMissingSessionValidator
	}
	if deps.Issuer == nil {
		return nil, errMissingSessionIssuer
	}
	if deps.Users == nil {
		return nil, errMissingUsersService
	}
	if deps.Messages == nil {
		return nil, errMissingMessagesService
	}
	if deps.Registry == nil {
		return nil, errMissingRegistry
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware(deps.AllowedOrigins))

	handler := &httpHandler{
		sessions:     deps.Sessions,
		issuer:       deps.Issuer,
		usersService: deps.Users,
		messages:     deps.Messages,
		registry:     deps.Registry,
		store:        deps.Store,
		media:        deps.Media,
		secureCookie: deps.SecureCookie,
		sendBuffer:   deps.SendBuffer,
		upgrader:     newUpgrader(deps.AllowedOrigins),
		logger:       logger,
	}

	api := router.Group("/api")
	api.GET("/health", handler.handleHealth)

	authRoutes := api.Group("/auth")
	authRoutes.POST("/signup", handler.handleSignup)
	authRoutes.POST("/login", handler.handleLogin)
	authRoutes.POST("/logout", handler.handleLogout)

	protected := api.Group("/")
	protected.Use(handler.authorizeRequest)
	protected.PUT("/auth/update-profile", handler.handleUpdateProfile)
	protected.GET("/auth/check", handler.handleCheckAuth)
	protected.GET("/messages/users", handler.handleListUsers)
	protected.GET("/messages/:id", handler.handleConversation)
	protected.POST("/messages/send/:id", handler.handleSendMessage)
	protected.GET("/ws", handler.handleRealtime)

	if deps.MediaDirectory != "" {
		mediaRoutes := router.Group(media.PublicPathPrefix, mediaHeaders)
		mediaRoutes.Static("/", deps.MediaDirectory)
	}

	return router, nil
}

// mediaHeaders stops browsers from sniffing or executing stored uploads in the API origin.
func mediaHeaders(c *gin.Context) {
	c.Header("X-Content-Type-Options", "nosniff")
	c.Header("Content-Security-Policy", "default-src 'none'; sandbox")
	c.Next()
}

func corsMiddleware(allowedOrigins []string) gin.HandlerFunc {
	config := cors.Config{
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowHeaders:     []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(allowedOrigins) == 0 {
		config.AllowAllOrigins = true
	} else {
		config.AllowOrigins = allowedOrigins
	}
	return cors.New(config)
}

type httpHandler struct {
	sessions     SessionValidator
	issuer       SessionIssuer
	usersService *users.Service
	messages     *messages.Service
	registry     *realtime.Registry
	store        Pinger
	media        Pinger
	secureCookie bool
	sendBuffer   int
	upgrader     websocket.Upgrader
	logger       *zap.Logger
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	claims, err := h.sessions.ValidateRequest(c.Request)
	if errors.Is(err, auth.ErrMissingSessionToken) {
		respondError(c, http.StatusUnauthorized, "Unauthorized - No Token Provided")
		return
	}
	if err != nil {
		if errors.Is(err, auth.ErrExpiredSessionToken) {
			h.logger.Info("token validation failed", zap.Error(err))
		} else {
			h.logger.Warn("token validation failed", zap.Error(err))
		}
		respondError(c, http.StatusUnauthorized, "Unauthorized - Invalid Token")
		return
	}

	user, err := h.usersService.Get(c.Request.Context(), claims.UserID)
	if errors.Is(err, users.ErrUserNotFound) {
		respondError(c, http.StatusNotFound, "User not found")
		return
	}
	if err != nil {
		h.logger.Error("session user lookup failed", zap.String("user_id", claims.UserID), zap.Error(err))
		respondError(c, http.StatusInternalServerError, "Internal server error")
		return
	}
	c.Set(userIDContextKey, user.ID)
	c.Set(userContextKey, user)
	c.Next()
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
	defer cancel()

	status := http.StatusOK
	body := gin.H{"status": "ok", "online": h.registry.Count()}
	checks := map[string]Pinger{"database": h.store, "media": h.media}
	for name, pinger := range checks {
		if pinger == nil {
			continue
		}
		if err := pinger.Ping(ctx); err != nil {
			h.logger.Warn("health check failed", zap.String("component", name), zap.Error(err))
			body[name] = err.Error()
			body["status"] = "degraded"
			status = http.StatusServiceUnavailable
			continue
		}
		body[name] = "ok"
	}
	c.JSON(status, body)
}

func respondError(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, gin.H{"message": message})
}

func currentUser(c *gin.Context) (users.User, bool) {
	value, ok := c.Get(userContextKey)
	if !ok {
		return users.User{}, false
	}
	user, ok := value.(users.User)
	return user, ok
}
