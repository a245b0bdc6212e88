// Package upstream fetches entity data from the coordination API's REST
// endpoints.
package upstream

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/avelezdev/geolayers/internal/model"
	"github.com/avelezdev/geolayers/internal/observability"
)

type Interface interface {
	Fetch(ctx context.Context, endpoint string, f model.FilterSet) ([]byte, error)
}

// Submitter accepts intake payloads for forwarding to the upstream API.
type Submitter interface {
	Submit(ctx context.Context, endpoint string, body io.Reader) ([]byte, error)
}

// NewOutbound creates the shared outbound http client
func NewOutbound() *http.Client {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		MaxIdleConns:          256,
		MaxIdleConnsPerHost:   128,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	return &http.Client{
		Transport: transport,
		Timeout:   30 * time.Second,
	}
}

type Client struct {
	logger  *slog.Logger
	client  *http.Client
	base    *url.URL
	timeout time.Duration
}

func New(logger *slog.Logger, client *http.Client, baseURL string, timeout time.Duration) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse upstream url: %w", err)
	}
	if client == nil {
		client = NewOutbound()
	}
	return &Client{logger: logger, client: client, base: u, timeout: timeout}, nil
}

// Fetch GETs <base><endpoint>?<filters> and returns the raw JSON body.
// No automatic retry: callers re-trigger on their own terms.
func (c *Client) Fetch(ctx context.Context, endpoint string, f model.FilterSet) ([]byte, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	u := *c.base
	u.Path, _ = url.JoinPath(c.base.Path, endpoint)
	u.RawQuery = f.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.client.Do(req)
	dur := time.Since(start)
	observability.ObserveUpstreamLatency(endpoint, dur.Seconds())

	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", endpoint, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
		return nil, fmt.Errorf("upstream %s status %d: %s", endpoint, resp.StatusCode, string(b))
	}

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	c.logger.Debug("upstream fetch done",
		"endpoint", endpoint, "bytes", len(b), "duration", dur.String())
	return b, nil
}

// Submit POSTs a field report (or other intake payload) to the upstream API.
func (c *Client) Submit(ctx context.Context, endpoint string, body io.Reader) ([]byte, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	u := *c.base
	u.Path, _ = url.JoinPath(c.base.Path, endpoint)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.client.Do(req)
	observability.ObserveUpstreamLatency(endpoint, time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("submit %s: %w", endpoint, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
		return nil, fmt.Errorf("upstream %s status %d: %s", endpoint, resp.StatusCode, string(b))
	}
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return b, nil
}
