// Package identity resolves the current user's email from whatever identity
// provider the environment offers. Environments without one get the no-op
// resolver, decided once at startup.
package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// Resolver yields the current user's email. An empty email with a nil error
// means no identity is available; callers abort their flow.
type Resolver interface {
	Email(ctx context.Context) (string, error)
}

// TokenSource supplies the bearer token for userinfo requests, typically the
// session guard's stored token.
type TokenSource func(ctx context.Context) string

// HTTPResolver queries an OAuth-style userinfo endpoint with a bearer token.
// The first successful resolution is cached for the process lifetime.
type HTTPResolver struct {
	endpoint string
	token    TokenSource
	client   *http.Client

	mu    sync.Mutex
	email string
}

// NewHTTPResolver creates a resolver against the given userinfo endpoint.
func NewHTTPResolver(endpoint string, token TokenSource) *HTTPResolver {
	return &HTTPResolver{
		endpoint: endpoint,
		token:    token,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

func (r *HTTPResolver) Email(ctx context.Context) (string, error) {
	r.mu.Lock()
	cached := r.email
	r.mu.Unlock()
	if cached != "" {
		return cached, nil
	}

	token := r.token(ctx)
	if token == "" {
		return "", nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.endpoint, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := r.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("userinfo returned status %d", resp.StatusCode)
	}

	var body struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", err
	}

	if body.Email != "" {
		r.mu.Lock()
		r.email = body.Email
		r.mu.Unlock()
	}
	return body.Email, nil
}

// Noop is the resolver for environments with no identity provider.
type Noop struct{}

func (Noop) Email(context.Context) (string, error) {
	return "", nil
}
