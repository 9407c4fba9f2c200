package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/parley/internal/messages"
	"github.com/MarcoPoloResearchLab/parley/internal/users"
	"golang.org/x/net/publicsuffix"
)

const maxResponseBytes = 8 << 20

var errMissingBaseURL = errors.New("client: base url required")

// APIError is a non-2xx answer from the API. Message carries the server's {"message"} text.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api request failed with status %d", e.Status)
	}
	return fmt.Sprintf("api request failed with status %d: %s", e.Status, e.Message)
}

// IsUnauthorized reports whether err is a 401 from the API.
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized
}

// APIClient calls the REST API. The session cookie lives in its jar and is shared with the
// realtime socket.
type APIClient struct {
	baseURL    *url.URL
	httpClient *http.Client
}

func NewAPIClient(baseURL string, timeout time.Duration) (*APIClient, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmed == "" {
		return nil, errMissingBaseURL
	}
	parsed, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("client: parse base url: %w", err)
	}
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, err
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &APIClient{
		baseURL:    parsed,
		httpClient: &http.Client{Jar: jar, Timeout: timeout},
	}, nil
}

// Jar returns the cookie jar holding the session cookie.
func (c *APIClient) Jar() http.CookieJar {
	return c.httpClient.Jar
}

// RealtimeURL returns the websocket endpoint for userID.
func (c *APIClient) RealtimeURL(userID string) string {
	endpoint := *c.baseURL
	switch endpoint.Scheme {
	case "https":
		endpoint.Scheme = "wss"
	default:
		endpoint.Scheme = "ws"
	}
	endpoint.Path = strings.TrimRight(endpoint.Path, "/") + "/api/ws"
	endpoint.RawQuery = url.Values{"userId": []string{userID}}.Encode()
	return endpoint.String()
}

func (c *APIClient) Signup(ctx context.Context, fullName, email, password string) (users.User, error) {
	var user users.User
	err := c.do(ctx, http.MethodPost, "/api/auth/signup", map[string]string{
		"fullName": fullName,
		"email":    email,
		"password": password,
	}, &user)
	return user, err
}

func (c *APIClient) Login(ctx context.Context, email, password string) (users.User, error) {
	var user users.User
	err := c.do(ctx, http.MethodPost, "/api/auth/login", map[string]string{
		"email":    email,
		"password": password,
	}, &user)
	return user, err
}

func (c *APIClient) Logout(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/auth/logout", nil, nil)
}

// CheckAuth returns the user behind the current session cookie.
func (c *APIClient) CheckAuth(ctx context.Context) (users.User, error) {
	var user users.User
	err := c.do(ctx, http.MethodGet, "/api/auth/check", nil, &user)
	return user, err
}

func (c *APIClient) UpdateProfile(ctx context.Context, profilePicDataURI string) (users.User, error) {
	var user users.User
	err := c.do(ctx, http.MethodPut, "/api/auth/update-profile", map[string]string{
		"profilePic": profilePicDataURI,
	}, &user)
	return user, err
}

// Users lists every account except the caller.
func (c *APIClient) Users(ctx context.Context) ([]users.User, error) {
	var list []users.User
	err := c.do(ctx, http.MethodGet, "/api/messages/users", nil, &list)
	return list, err
}

func (c *APIClient) Conversation(ctx context.Context, peerID string) ([]messages.Message, error) {
	var conversation []messages.Message
	err := c.do(ctx, http.MethodGet, "/api/messages/"+url.PathEscape(peerID), nil, &conversation)
	return conversation, err
}

func (c *APIClient) Send(ctx context.Context, peerID, text, imageDataURI string) (messages.Message, error) {
	var message messages.Message
	err := c.do(ctx, http.MethodPost, "/api/messages/send/"+url.PathEscape(peerID), map[string]string{
		"text":  text,
		"image": imageDataURI,
	}, &message)
	return message, err
}

func (c *APIClient) do(ctx context.Context, method, path string, body any, target any) error {
	var reader io.Reader = http.NoBody
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(encoded)
	}
	request, err := http.NewRequestWithContext(ctx, method, c.baseURL.String()+path, reader)
	if err != nil {
		return err
	}
	request.Header.Set("Accept", "application/json")
	if body != nil {
		request.Header.Set("Content-Type", "application/json")
	}

	response, err := c.httpClient.Do(request)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer response.Body.Close()

	limited := io.LimitReader(response.Body, maxResponseBytes)
	if response.StatusCode < 200 || response.StatusCode > 299 {
		var payload struct {
			Message string `json:"message"`
		}
		_ = json.NewDecoder(limited).Decode(&payload)
		return &APIError{Status: response.StatusCode, Message: payload.Message}
	}
	if target == nil {
		_, _ = io.Copy(io.Discard, limited)
		return nil
	}
	if err := json.NewDecoder(limited).Decode(target); err != nil {
		return fmt.Errorf("%s %s: decode response: %w", method, path, err)
	}
	return nil
}
