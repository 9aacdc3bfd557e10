package erp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Record is a single row in an external ERP table.
type Record struct {
	ID     string            `json:"id"`
	Fields map[string]string `json:"fields"`
}

// PushError carries the ERP's verbatim rejection payload. It marks a terminal
// failure: the request reached the ERP and was refused, so blind retry is not
// safe without a human looking first.
type PushError struct {
	StatusCode int
	Payload    string
}

func (e *PushError) Error() string {
	return fmt.Sprintf("erp rejected request (status %d): %s", e.StatusCode, e.Payload)
}

// UnavailableError marks transport-level failures (connection refused,
// timeout, 5xx). These are retryable.
type UnavailableError struct {
	Err error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("erp unavailable: %v", e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

// Client talks to the external record store over its REST API.
type Client struct {
	baseURL       string
	apiKey        string
	lookupTimeout time.Duration
	pushTimeout   time.Duration
	httpClient    *http.Client
}

// Option customises the client.
type Option func(*Client)

// WithHTTPClient overrides the underlying transport, mainly for tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// NewClient builds an ERP client. Timeouts bound every call; zero values fall
// back to conservative defaults.
func NewClient(baseURL, apiKey string, lookupTimeout, pushTimeout time.Duration, opts ...Option) *Client {
	if lookupTimeout <= 0 {
		lookupTimeout = 10 * time.Second
	}
	if pushTimeout <= 0 {
		pushTimeout = 30 * time.Second
	}
	c := &Client{
		baseURL:       strings.TrimRight(baseURL, "/"),
		apiKey:        apiKey,
		lookupTimeout: lookupTimeout,
		pushTimeout:   pushTimeout,
		httpClient:    &http.Client{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Search returns records of table matching every filter exactly.
func (c *Client) Search(ctx context.Context, table string, filters map[string]string) ([]Record, error) {
	query := url.Values{}
	for field, value := range filters {
		query.Set(field, value)
	}
	endpoint := fmt.Sprintf("%s/tables/%s/records?%s", c.baseURL, url.PathEscape(table), query.Encode())

	var records []Record
	if err := c.doJSON(ctx, http.MethodGet, endpoint, nil, c.lookupTimeout, &records); err != nil {
		return nil, err
	}
	return records, nil
}

// GetByID fetches a single record by its external identifier.
func (c *Client) GetByID(ctx context.Context, table, id string) (*Record, error) {
	endpoint := fmt.Sprintf("%s/tables/%s/records/%s", c.baseURL, url.PathEscape(table), url.PathEscape(id))

	var record Record
	if err := c.doJSON(ctx, http.MethodGet, endpoint, nil, c.lookupTimeout, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

// Create inserts a record and returns the identifier assigned by the ERP.
func (c *Client) Create(ctx context.Context, table string, data map[string]string) (string, error) {
	endpoint := fmt.Sprintf("%s/tables/%s/records", c.baseURL, url.PathEscape(table))

	var created Record
	if err := c.doJSON(ctx, http.MethodPost, endpoint, data, c.pushTimeout, &created); err != nil {
		return "", err
	}
	if created.ID == "" {
		return "", &PushError{StatusCode: http.StatusOK, Payload: "erp returned no record identifier"}
	}
	return created.ID, nil
}

// Update overwrites fields of an existing record.
func (c *Client) Update(ctx context.Context, table, id string, data map[string]string) error {
	endpoint := fmt.Sprintf("%s/tables/%s/records/%s", c.baseURL, url.PathEscape(table), url.PathEscape(id))
	return c.doJSON(ctx, http.MethodPut, endpoint, data, c.pushTimeout, nil)
}

func (c *Client) doJSON(ctx context.Context, method, endpoint string, body interface{}, timeout time.Duration, out interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode erp payload: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("build erp request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &UnavailableError{Err: err}
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return &UnavailableError{Err: err}
	}

	switch {
	case resp.StatusCode >= 500:
		return &UnavailableError{Err: fmt.Errorf("erp returned status %d", resp.StatusCode)}
	case resp.StatusCode >= 400:
		return &PushError{StatusCode: resp.StatusCode, Payload: strings.TrimSpace(string(payload))}
	}

	if out != nil && len(payload) > 0 {
		if err := json.Unmarshal(payload, out); err != nil {
			return fmt.Errorf("decode erp response: %w", err)
		}
	}
	return nil
}
