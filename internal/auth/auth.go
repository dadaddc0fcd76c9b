// Package auth verifies session tokens against the external identity
// service. Token issuance lives with that collaborator; this side only
// exchanges a token for a stable user identity.
package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"
)

var (
	// ErrInvalidToken indicates the token is definitively invalid.
	ErrInvalidToken = errors.New("auth: invalid token")

	// ErrUnavailable indicates the identity service is unreachable.
	// Callers may choose to fail open (allow) or fail closed (reject).
	ErrUnavailable = errors.New("auth: unavailable")
)

// Identity is an authenticated user as the identity service reports it
type Identity struct {
	UserID      int64  `json:"user_id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role,omitempty"`
}

// Verifier exchanges a session token for an identity.
// Returns:
//   - (*Identity, nil) if the token is valid
//   - (nil, ErrInvalidToken) if the token is definitively invalid
//   - (nil, ErrUnavailable) if the identity service is unavailable
type Verifier interface {
	Verify(ctx context.Context, token string) (*Identity, error)
}

// HTTPVerifier verifies tokens via HTTP callback to the identity service
type HTTPVerifier struct {
	url    string
	secret string
	client *http.Client
}

// NewHTTPVerifier creates a verifier that calls an external HTTP endpoint
func NewHTTPVerifier(url, secret string) *HTTPVerifier {
	return &HTTPVerifier{
		url:    url,
		secret: secret,
		client: &http.Client{
			Timeout: 500 * time.Millisecond, // Align with context timeout
		},
	}
}

type verifyRequest struct {
	Token string `json:"token"`
}

type verifyResponse struct {
	Valid       bool   `json:"valid"`
	UserID      int64  `json:"user_id,omitempty"`
	Username    string `json:"username,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
	Role        string `json:"role,omitempty"`
	Error       string `json:"error,omitempty"`
}

func (v *HTTPVerifier) Verify(ctx context.Context, token string) (*Identity, error) {
	if token == "" {
		return nil, ErrInvalidToken
	}

	ctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()

	reqBody, err := json.Marshal(verifyRequest{Token: token})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.url, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if v.secret != "" {
		req.Header.Set("X-Service-Secret", v.secret)
	}

	resp, err := v.client.Do(req)
	if err != nil {
		// Network errors, timeouts, etc. = unavailable
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		// Success - decode response
	case http.StatusUnauthorized, http.StatusForbidden:
		// Definitive rejection
		return nil, ErrInvalidToken
	case http.StatusTooManyRequests, http.StatusInternalServerError,
		http.StatusBadGateway, http.StatusServiceUnavailable:
		return nil, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	default:
		return nil, fmt.Errorf("%w: unexpected status %d", ErrUnavailable, resp.StatusCode)
	}

	// Limit response body to 1MB to avoid pathological responses
	limitedReader := io.LimitReader(resp.Body, 1<<20)

	var authResp verifyResponse
	if err := json.NewDecoder(limitedReader).Decode(&authResp); err != nil {
		return nil, fmt.Errorf("%w: decode error: %v", ErrUnavailable, err)
	}

	if !authResp.Valid {
		return nil, ErrInvalidToken
	}

	return &Identity{
		UserID:      authResp.UserID,
		Username:    authResp.Username,
		DisplayName: authResp.DisplayName,
		Role:        authResp.Role,
	}, nil
}

// DevVerifier accepts any non-empty token and mints a deterministic local
// identity from it. Tokens of the form "name:123" pin the user id; anything
// else gets a sequential one. Dev mode only.
type DevVerifier struct {
	mu     sync.Mutex
	nextID int64
	known  map[string]*Identity
}

func NewDevVerifier() *DevVerifier {
	return &DevVerifier{nextID: 1, known: make(map[string]*Identity)}
}

func (v *DevVerifier) Verify(_ context.Context, token string) (*Identity, error) {
	if token == "" {
		return nil, ErrInvalidToken
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if id, ok := v.known[token]; ok {
		return id, nil
	}

	name := token
	userID := int64(0)
	if i := lastColon(token); i > 0 {
		if parsed, err := strconv.ParseInt(token[i+1:], 10, 64); err == nil {
			name = token[:i]
			userID = parsed
		}
	}
	if userID == 0 {
		userID = v.nextID
		v.nextID++
	}

	id := &Identity{UserID: userID, Username: name, DisplayName: name}
	v.known[token] = id
	return id, nil
}

func lastColon(s string) int {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == ':' {
			return i
		}
	}
	return -1
}
