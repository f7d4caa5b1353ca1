package reconcile

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/tabmangment/tabsync/internal/domain"
)

// StatusChecker queries the authoritative subscription state for an email.
type StatusChecker interface {
	Check(ctx context.Context, email string) (domain.RemoteStatus, error)
}

// StatusClient implements StatusChecker over the remote status endpoint:
// GET <base>?email=<email>.
type StatusClient struct {
	baseURL string
	client  *http.Client
}

// NewStatusClient creates a client for the given status endpoint URL.
func NewStatusClient(baseURL string) *StatusClient {
	return &StatusClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *StatusClient) Check(ctx context.Context, email string) (domain.RemoteStatus, error) {
	endpoint := c.baseURL + "?email=" + url.QueryEscape(email)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return domain.RemoteStatus{}, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return domain.RemoteStatus{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return domain.RemoteStatus{}, fmt.Errorf("status endpoint returned %d", resp.StatusCode)
	}

	var status domain.RemoteStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return domain.RemoteStatus{}, err
	}
	return status, nil
}
