// Package apiclient is the host's HTTP client for the backend API.
package apiclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const maxErrorBody = 4 << 10

// Executor sends HTTP requests on behalf of modules.
type Executor interface {
	Do(req *http.Request) (*http.Response, error)
}

// Configuration is the API location shared with modules.
type Configuration struct {
	BasePath string
}

// HTTPError is a non-2xx response.
type HTTPError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s %s returned %d %s", e.Method, e.URL, e.StatusCode, http.StatusText(e.StatusCode))
}

// HTTPStatus returns the response status code.
func (e *HTTPError) HTTPStatus() int {
	return e.StatusCode
}

// Config wires a Client.
type Config struct {
	BaseAPI string
	Timeout time.Duration
	Jar     http.CookieJar
	// Token returns the bearer token of the current session, if any.
	Token func() string
}

// Client calls the backend API.
type Client struct {
	base  string
	http  *http.Client
	token func() string
}

var _ Executor = (*Client)(nil)

// NewClient returns a client rooted at cfg.BaseAPI.
func NewClient(cfg Config) *Client {
	return &Client{
		base:  strings.TrimRight(strings.TrimSpace(cfg.BaseAPI), "/"),
		http:  &http.Client{Timeout: cfg.Timeout, Jar: cfg.Jar},
		token: cfg.Token,
	}
}

// Configuration returns the API location.
func (c *Client) Configuration() Configuration {
	return Configuration{BasePath: c.base}
}

// URL joins path onto the API base.
func (c *Client) URL(path string) string {
	return c.base + "/" + strings.TrimLeft(path, "/")
}

// Do sends req with the session bearer token when one is set.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	if c.token != nil && req.Header.Get("Authorization") == "" {
		if token := c.token(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}
	return c.http.Do(req)
}

// Fetch returns the body of a GET to rawURL.
func (c *Client) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	resp, err := c.get(ctx, rawURL, "")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rawURL, err)
	}
	return body, nil
}

// Envelope is the JSON wrapper of API responses.
type Envelope[T any] struct {
	Metadata Metadata `json:"metadata"`
	Result   T        `json:"result"`
}

// Metadata describes a response page.
type Metadata struct {
	Pagination *Pagination `json:"pagination,omitempty"`
	Status     []any       `json:"status,omitempty"`
	DataFiles  []string    `json:"datafiles,omitempty"`
}

// Pagination is the paging block of Metadata.
type Pagination struct {
	PageSize    int `json:"pageSize"`
	CurrentPage int `json:"currentPage"`
	TotalCount  int `json:"totalCount"`
	TotalPages  int `json:"totalPages"`
}

// GetResult decodes the result of an API GET on path.
func GetResult[T any](ctx context.Context, c *Client, path string) (T, error) {
	var envelope Envelope[T]
	resp, err := c.get(ctx, c.URL(path), "application/json")
	if err != nil {
		return envelope.Result, err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return envelope.Result, fmt.Errorf("decode %s response: %w", path, err)
	}
	return envelope.Result, nil
}

func (c *Client) get(ctx context.Context, rawURL string, accept string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	resp, err := c.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", rawURL, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &HTTPError{Method: http.MethodGet, URL: rawURL, StatusCode: resp.StatusCode, Body: string(body)}
	}
	return resp, nil
}
