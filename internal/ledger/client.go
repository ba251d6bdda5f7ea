// Package ledger records project registrations with the on-chain registry
// through its HTTP relay.
package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"gridreg/pkg/platform/circuit"
	"gridreg/pkg/platform/sentinel"
)

const (
	defaultTimeout = 10 * time.Second
	maxErrorBody   = 4 << 10
)

// Client submits registrations to the ledger relay.
type Client struct {
	baseURL string
	token   string
	client  *http.Client
	breaker *circuit.Breaker
	timeout time.Duration
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(l *Client) {
		if c != nil {
			l.client = c
		}
	}
}

func WithToken(token string) Option {
	return func(l *Client) { l.token = token }
}

func WithBreaker(b *circuit.Breaker) Option {
	return func(l *Client) {
		if b != nil {
			l.breaker = b
		}
	}
}

func WithTimeout(d time.Duration) Option {
	return func(l *Client) {
		if d > 0 {
			l.timeout = d
		}
	}
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  http.DefaultClient,
		timeout: defaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.breaker == nil {
		c.breaker = circuit.New("ledger")
	}
	return c
}

type registerRequest struct {
	ProjectID string `json:"projectId"`
	CID       string `json:"cid"`
}

type registerResponse struct {
	TxHash string `json:"txHash"`
}

// RegisterProject anchors the registration document ref under projectID and
// returns the transaction hash once the relay has it mined.
func (c *Client) RegisterProject(ctx context.Context, projectID, ref string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return circuit.Execute(c.breaker, func() (string, error) {
		return c.register(ctx, projectID, ref)
	})
}

func (c *Client) register(ctx context.Context, projectID, ref string) (string, error) {
	body, err := json.Marshal(registerRequest{ProjectID: projectID, CID: ref})
	if err != nil {
		return "", fmt.Errorf("marshal ledger request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/projects", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build ledger request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", errors.Join(sentinel.ErrUnavailable, fmt.Errorf("ledger request: %w", err))
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusConflict:
		return "", fmt.Errorf("project %s already anchored: %w", projectID, sentinel.ErrConflict)
	case resp.StatusCode >= 500:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return "", errors.Join(sentinel.ErrUnavailable,
			fmt.Errorf("ledger returned %s: %s", resp.Status, strings.TrimSpace(string(msg))))
	case resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return "", fmt.Errorf("ledger returned %s: %s", resp.Status, strings.TrimSpace(string(msg)))
	}

	var out registerResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode ledger response: %w", err)
	}
	if out.TxHash == "" {
		return "", errors.New("ledger response has no txHash")
	}
	return out.TxHash, nil
}
