package api

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

	"github.com/davarch/ci-tracker/internal/domain"
)

// Client talks to a running tracker's control API.
type Client struct {
	base string
	http *http.Client
}

// StatusError is a non-2xx answer from the API.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("api %d: %s", e.StatusCode, e.Message)
}

// NewClient accepts either "host:port" or a full http URL.
func NewClient(addr string) *Client {
	if !strings.HasPrefix(addr, "http://") && !strings.HasPrefix(addr, "https://") {
		addr = "http://" + addr
	}
	return &Client{base: strings.TrimRight(addr, "/"), http: &http.Client{Timeout: 30 * time.Second}}
}

func (c *Client) Items(ctx context.Context) ([]domain.TrackedItem, error) {
	var out []domain.TrackedItem
	err := c.do(ctx, http.MethodGet, "/items", nil, &out)
	return out, err
}

func (c *Client) Track(ctx context.Context, rawURL string) (domain.TrackedItem, bool, error) {
	var out trackResponse
	err := c.do(ctx, http.MethodPost, "/items", urlRequest{URL: rawURL}, &out)
	return out.Item, out.Added, err
}

func (c *Client) Refresh(ctx context.Context, key string) (domain.TrackedItem, error) {
	var out domain.TrackedItem
	err := c.do(ctx, http.MethodPost, "/items/"+url.PathEscape(key)+"/refresh", nil, &out)
	return out, err
}

func (c *Client) Remove(ctx context.Context, key string) error {
	return c.do(ctx, http.MethodDelete, "/items/"+url.PathEscape(key), nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 300 {
		var eb errorBody
		_ = json.NewDecoder(resp.Body).Decode(&eb)
		if eb.Error == "" {
			eb.Error = http.StatusText(resp.StatusCode)
		}
		return &StatusError{StatusCode: resp.StatusCode, Message: eb.Error}
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
