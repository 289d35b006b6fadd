// internal/identity/client.go
// Package identity provides a client for the auth service's user directory.
// The gift service consumes identities only; registration, passwords and
// token issuance all live in the auth service.
package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"
)

// Client resolves user records from the auth service.
type Client struct {
	base string       // Base URL of the auth service
	hc   *http.Client // HTTP client with custom configuration
}

// Record is one directory entry as served by the auth service.
type Record struct {
	UserID    string `json:"userId"` // Sequential usr-%05d identifier
	Email     string `json:"email"`
	CreatedAt string `json:"createdAt"`
}

// ErrNotFound is returned when a user record is not found.
var ErrNotFound = errors.New("user not found")

// New creates a new directory client with the specified base URL.
// It configures appropriate timeouts for auth service requests.
func New(baseURL string) *Client {
	transport := &http.Transport{
		DialContext: (&net.Dialer{Timeout: 2 * time.Second}).DialContext,
	}

	return &Client{
		base: baseURL,
		hc:   &http.Client{Transport: transport, Timeout: 3 * time.Second},
	}
}

// Get retrieves the directory record for one user id.
func (c *Client) Get(ctx context.Context, userID string) (Record, error) {
	u, _ := url.Parse(c.base)
	u.Path = "/v1/users/lookup"
	q := u.Query()
	q.Set("id", userID)
	u.RawQuery = q.Encode()

	req, _ := http.NewRequestWithContext(ctx, "GET", u.String(), nil)
	resp, err := c.hc.Do(req)
	if err != nil {
		return Record{}, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var rec Record
		if err := json.NewDecoder(resp.Body).Decode(&rec); err != nil {
			return Record{}, err
		}
		return rec, nil
	case http.StatusNotFound:
		return Record{}, ErrNotFound
	default:
		return Record{}, fmt.Errorf("user lookup failed: %s", resp.Status)
	}
}
