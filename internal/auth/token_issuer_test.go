package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestTokenIssuerIssuesSessionTokens(t *testing.T) {
	clockNow := time.Date(2024, 9, 1, 12, 0, 0, 0, time.UTC)
	issuer, err := NewTokenIssuer(TokenIssuerConfig{
		SigningSecret: []byte("super-secret"),
		Issuer:        DefaultSessionIssuer,
		TokenTTL:      7 * 24 * time.Hour,
		Clock: func() time.Time {
			return clockNow
		},
	})
	if err != nil {
		t.Fatalf("unexpected constructor error: %v", err)
	}

	tokenString, expiresAt, err := issuer.IssueSessionToken("user-123", "user@example.com")
	if err != nil {
		t.Fatalf("expected successful issuance: %v", err)
	}
	if !expiresAt.Equal(clockNow.Add(7 * 24 * time.Hour)) {
		t.Fatalf("unexpected expiry %s", expiresAt)
	}

	parser := jwt.NewParser(jwt.WithTimeFunc(func() time.Time { return clockNow }))
	claims := &SessionClaims{}
	_, err = parser.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte("super-secret"), nil
	})
	if err != nil {
		t.Fatalf("failed to parse generated token: %v", err)
	}
	if claims.Subject != "user-123" || claims.UserID != "user-123" {
		t.Fatalf("unexpected subject %s / user id %s", claims.Subject, claims.UserID)
	}
	if claims.UserEmail != "user@example.com" {
		t.Fatalf("unexpected email %s", claims.UserEmail)
	}
	if claims.Issuer != DefaultSessionIssuer {
		t.Fatalf("unexpected issuer %s", claims.Issuer)
	}
}

func TestTokenIssuerRejectsMissingSecret(t *testing.T) {
	_, err := NewTokenIssuer(TokenIssuerConfig{
		SigningSecret: nil,
		Issuer:        DefaultSessionIssuer,
		TokenTTL:      30 * time.Minute,
	})
	if err == nil {
		t.Fatalf("expected constructor error for missing secret")
	}
}

func TestNewTokenIssuerRequiresIssuerAndPositiveTTL(t *testing.T) {
	_, err := NewTokenIssuer(TokenIssuerConfig{
		SigningSecret: []byte("secret"),
		Issuer:        " ",
		TokenTTL:      5 * time.Minute,
	})
	if err == nil {
		t.Fatalf("expected error for missing issuer")
	}

	_, err = NewTokenIssuer(TokenIssuerConfig{
		SigningSecret: []byte("secret"),
		Issuer:        DefaultSessionIssuer,
		TokenTTL:      0,
	})
	if err == nil {
		t.Fatalf("expected error for non-positive ttl")
	}
}

func TestTokenIssuerRejectsEmptySubject(t *testing.T) {
	issuer, err := NewTokenIssuer(TokenIssuerConfig{
		SigningSecret: []byte("secret"),
		Issuer:        DefaultSessionIssuer,
		TokenTTL:      time.Minute,
	})
	if err != nil {
		t.Fatalf("unexpected constructor error: %v", err)
	}
	if _, _, err := issuer.IssueSessionToken("  ", ""); err == nil {
		t.Fatalf("expected error for empty subject")
	}
}

func TestIssuedTokensPassSessionValidation(t *testing.T) {
	issuer, err := NewTokenIssuer(TokenIssuerConfig{
		SigningSecret: []byte("another-secret"),
		Issuer:        DefaultSessionIssuer,
		TokenTTL:      15 * time.Minute,
	})
	if err != nil {
		t.Fatalf("unexpected constructor error: %v", err)
	}
	validator, err := NewSessionValidator(SessionValidatorConfig{
		SigningSecret: []byte("another-secret"),
		Issuer:        DefaultSessionIssuer,
		CookieName:    "jwt",
	})
	if err != nil {
		t.Fatalf("unexpected validator error: %v", err)
	}

	tokenString, _, err := issuer.IssueSessionToken("user-321", "")
	if err != nil {
		t.Fatalf("unexpected error issuing token: %v", err)
	}

	claims, err := validator.ValidateToken(tokenString)
	if err != nil {
		t.Fatalf("expected validation success: %v", err)
	}
	if claims.UserID != "user-321" {
		t.Fatalf("unexpected subject %s", claims.UserID)
	}

	if _, err := validator.ValidateToken("invalid.token"); err == nil {
		t.Fatalf("expected validation to fail for malformed token")
	}
}
