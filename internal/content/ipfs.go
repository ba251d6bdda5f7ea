// Package content stores documents in IPFS through the HTTP RPC API.
package content

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
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

// IPFSClient adds content to an IPFS node and returns its CID.
type IPFSClient struct {
	baseURL string
	client  *http.Client
	breaker *circuit.Breaker
	timeout time.Duration
}

type Option func(*IPFSClient)

func WithHTTPClient(c *http.Client) Option {
	return func(i *IPFSClient) {
		if c != nil {
			i.client = c
		}
	}
}

func WithBreaker(b *circuit.Breaker) Option {
	return func(i *IPFSClient) {
		if b != nil {
			i.breaker = b
		}
	}
}

func WithTimeout(d time.Duration) Option {
	return func(i *IPFSClient) {
		if d > 0 {
			i.timeout = d
		}
	}
}

func NewIPFS(baseURL string, opts ...Option) *IPFSClient {
	c := &IPFSClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  http.DefaultClient,
		timeout: defaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.breaker == nil {
		c.breaker = circuit.New("ipfs")
	}
	return c
}

type addResponse struct {
	Name string `json:"Name"`
	Hash string `json:"Hash"`
	Size string `json:"Size"`
}

// Put adds data under name and returns the CID. The content is pinned.
func (c *IPFSClient) Put(ctx context.Context, name string, data []byte) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return circuit.Execute(c.breaker, func() (string, error) {
		return c.add(ctx, name, data)
	})
}

// PutJSON marshals v and adds it as name.
func (c *IPFSClient) PutJSON(ctx context.Context, name string, v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal %s: %w", name, err)
	}
	return c.Put(ctx, name, data)
}

func (c *IPFSClient) add(ctx context.Context, name string, data []byte) (string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", name)
	if err != nil {
		return "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return "", fmt.Errorf("write form file: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("close multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v0/add?pin=true&cid-version=1", &body)
	if err != nil {
		return "", fmt.Errorf("build ipfs add request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return "", errors.Join(sentinel.ErrUnavailable, fmt.Errorf("ipfs add: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return "", errors.Join(sentinel.ErrUnavailable,
			fmt.Errorf("ipfs add returned %s: %s", resp.Status, strings.TrimSpace(string(msg))))
	}

	var out addResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode ipfs add response: %w", err)
	}
	if out.Hash == "" {
		return "", errors.New("ipfs add response has no hash")
	}
	return out.Hash, nil
}
