// Package camara is a thin client for CAMARA-style telecom REST backends with
// request-level deduplication: identical GET/POST/DELETE calls issued inside
// the coalescing window share a single downstream request.
package camara

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	dedupx "github.com/tanpawarit/Camara-Agent-Gateway/dedup"
)

const maxResponseSizeBytes = 2 << 20

var ErrEmptyEndpoint = errors.New("endpoint is empty")

type Config struct {
	BaseURL string        `envconfig:"BASE_URL" split_words:"true" required:"true"`
	Token   string        `envconfig:"TOKEN" split_words:"true"`
	Timeout time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"15s"`
}

// ClientOption customizes Client.
type ClientOption func(*Client)

func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// Client issues requests against a CAMARA backend through a shared coalescer.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	coalescer  *dedupx.Coalescer
}

func NewClient(cfg Config, coalescer *dedupx.Coalescer, opts ...ClientOption) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("camara base url is required")
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("invalid camara base url: %w", err)
	}
	if coalescer == nil {
		return nil, errors.New("coalescer is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	client := &Client{
		baseURL: baseURL,
		token:   strings.TrimSpace(cfg.Token),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		coalescer: coalescer,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}

	return client, nil
}

func (c *Client) Get(ctx context.Context, endpoint string) (map[string]any, error) {
	return c.call(ctx, http.MethodGet, endpoint, nil)
}

func (c *Client) Post(ctx context.Context, endpoint string, payload map[string]any) (map[string]any, error) {
	return c.call(ctx, http.MethodPost, endpoint, payload)
}

func (c *Client) Delete(ctx context.Context, endpoint string, payload map[string]any) (map[string]any, error) {
	return c.call(ctx, http.MethodDelete, endpoint, payload)
}

// call routes the request through the coalescer keyed on method, endpoint and
// normalized payload, so concurrent identical calls collapse into one
// round-trip.
func (c *Client) call(ctx context.Context, method string, endpoint string, payload map[string]any) (map[string]any, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("%w: %s", dedupx.ErrValidation, ErrEmptyEndpoint)
	}
	if !strings.HasPrefix(endpoint, "/") {
		endpoint = "/" + endpoint
	}

	req := dedupx.Request{
		Kind:    method,
		Key:     endpoint,
		Payload: payload,
	}

	value, err := c.coalescer.Run(ctx, req, func(ctx context.Context) (any, error) {
		return c.roundTrip(ctx, method, endpoint, payload)
	})
	if err != nil {
		return nil, err
	}

	body, ok := value.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected response shape %T", dedupx.ErrUpstream, value)
	}
	return body, nil
}

func (c *Client) roundTrip(ctx context.Context, method string, endpoint string, payload map[string]any) (map[string]any, error) {
	var reqBody io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal request payload: %w", err)
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, reqBody)
	if err != nil {
		return nil, fmt.Errorf("build camara request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute camara request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSizeBytes))
	if err != nil {
		return nil, fmt.Errorf("read camara response: %w", err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("camara backend returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	if len(bytes.TrimSpace(raw)) == 0 {
		return map[string]any{}, nil
	}

	var body map[string]any
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, fmt.Errorf("decode camara response: %w", err)
	}
	return body, nil
}
