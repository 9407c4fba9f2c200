package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	bearerPrefix          = "Bearer "
	accessTokenQueryParam = "access_token"
)

var (
	ErrMissingSessionSigningKey = errors.New("auth: session signing key required")
	ErrMissingSessionIssuer     = errors.New("auth: session issuer required")
	ErrMissingSessionCookieName = errors.New("auth: session cookie name required")
	// ErrMissingSessionToken means the request carried no token at all. Callers answer 401 without logging.
	ErrMissingSessionToken = errors.New("auth: session token required")
	ErrInvalidSessionToken = errors.New("auth: invalid session token")
	// ErrExpiredSessionToken is reported separately so expiry can be logged below warning level.
	ErrExpiredSessionToken   = errors.New("auth: session token expired")
	ErrMissingSessionSubject = errors.New("auth: session token has no subject")
)

// SessionClaims is the JWT payload carried by the session cookie.
type SessionClaims struct {
	UserID    string `json:"user_id"`
	UserEmail string `json:"user_email,omitempty"`
	jwt.RegisteredClaims
}

// SessionValidatorConfig describes how to validate session JWTs.
type SessionValidatorConfig struct {
	SigningSecret []byte
	Issuer        string
	CookieName    string
	Clock         func() time.Time
}

// SessionValidator validates HS256 session JWTs minted by TokenIssuer.
type SessionValidator struct {
	signingSecret []byte
	issuer        string
	cookieName    string
	clock         func() time.Time
}

func NewSessionValidator(cfg SessionValidatorConfig) (*SessionValidator, error) {
	if len(cfg.SigningSecret) == 0 {
		return nil, ErrMissingSessionSigningKey
	}
	issuer := strings.TrimSpace(cfg.Issuer)
	if issuer == "" {
		return nil, ErrMissingSessionIssuer
	}
	cookieName := strings.TrimSpace(cfg.CookieName)
	if cookieName == "" {
		return nil, ErrMissingSessionCookieName
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &SessionValidator{
		signingSecret: append([]byte(nil), cfg.SigningSecret...),
		issuer:        issuer,
		cookieName:    cookieName,
		clock:         clock,
	}, nil
}

func (v *SessionValidator) CookieName() string {
	return v.cookieName
}

// ValidateToken checks signature, expiry and issuer, and requires the subject to equal the user id.
func (v *SessionValidator) ValidateToken(tokenString string) (SessionClaims, error) {
	token := strings.TrimSpace(tokenString)
	if token == "" {
		return SessionClaims{}, ErrMissingSessionToken
	}

	var claims SessionClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, v.signingKey,
		jwt.WithTimeFunc(v.clock),
		jwt.WithIssuer(v.issuer),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return SessionClaims{}, ErrExpiredSessionToken
	case err != nil:
		return SessionClaims{}, fmt.Errorf("%w: %v", ErrInvalidSessionToken, err)
	case parsed == nil || !parsed.Valid:
		return SessionClaims{}, ErrInvalidSessionToken
	}

	userID := strings.TrimSpace(claims.UserID)
	if userID == "" || strings.TrimSpace(claims.Subject) == "" {
		return SessionClaims{}, ErrMissingSessionSubject
	}
	if claims.Subject != userID {
		return SessionClaims{}, fmt.Errorf("%w: subject does not match user id", ErrInvalidSessionToken)
	}
	return claims, nil
}

func (v *SessionValidator) signingKey(token *jwt.Token) (any, error) {
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("unexpected signing method %s", token.Method.Alg())
	}
	return v.signingSecret, nil
}

// ValidateRequest looks for a session token in the cookie, then the bearer header, then the
// access_token query parameter used by websocket clients that cannot set headers.
func (v *SessionValidator) ValidateRequest(r *http.Request) (SessionClaims, error) {
	token := v.ExtractToken(r)
	if token == "" {
		return SessionClaims{}, ErrMissingSessionToken
	}
	return v.ValidateToken(token)
}

// ExtractToken returns the raw session token carried by the request, if any.
func (v *SessionValidator) ExtractToken(r *http.Request) string {
	if r == nil {
		return ""
	}
	if cookie, err := r.Cookie(v.cookieName); err == nil && cookie != nil && strings.TrimSpace(cookie.Value) != "" {
		return strings.TrimSpace(cookie.Value)
	}
	if header := r.Header.Get("Authorization"); strings.HasPrefix(header, bearerPrefix) {
		if token := strings.TrimSpace(strings.TrimPrefix(header, bearerPrefix)); token != "" {
			return token
		}
	}
	if r.URL != nil {
		return strings.TrimSpace(r.URL.Query().Get(accessTokenQueryParam))
	}
	return ""
}
