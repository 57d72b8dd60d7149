// Package upstream fetches cluster-status snapshots over HTTP.
package upstream

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/krokicki/cluster-art/config"
	"github.com/krokicki/cluster-art/internal/errors"
	"github.com/krokicki/cluster-art/internal/logging"
	"github.com/krokicki/cluster-art/internal/storage/types"
)

// Config configures a Client.
type Config struct {
	URL          string
	Timeout      time.Duration
	MaxBodyBytes int64
	UserAgent    string
}

// Client fetches one snapshot per call. It implements ingestion.Fetcher.
type Client struct {
	cfg    Config
	client *http.Client
}

// New creates a client. Zero fields of cfg take their defaults.
func New(cfg Config) *Client {
	if cfg.URL == "" {
		cfg.URL = config.DefaultUpstreamURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = config.DefaultFetchTimeout
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = config.DefaultMaxSnapshotBytes
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "cluster-art"
	}

	return &Client{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

// URL returns the endpoint being polled.
func (c *Client) URL() string {
	return c.cfg.URL
}

// Fetch performs one GET of the configured URL and decodes the body. Every
// failure (transport, non-2xx status, oversized or undecodable body) wraps
// ErrUpstreamUnavailable.
func (c *Client) Fetch(ctx context.Context) (*types.RawSnapshot, error) {
	log := logging.WithContext(ctx).With("component", "upstream")
	log.Info("fetching cluster status", "url", c.cfg.URL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.URL, nil)
	if err != nil {
		return nil, errors.WithKind(errors.ErrUpstreamUnavailable, err, "build request")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.cfg.UserAgent)

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, errors.WithKind(errors.ErrUpstreamUnavailable, err, "GET %s", c.cfg.URL)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, errors.WithKind(errors.ErrUpstreamUnavailable, nil,
			"HTTP %d from %s: %s", resp.StatusCode, c.cfg.URL, string(body))
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.cfg.MaxBodyBytes+1))
	if err != nil {
		return nil, errors.WithKind(errors.ErrUpstreamUnavailable, err, "read body")
	}
	if int64(len(data)) > c.cfg.MaxBodyBytes {
		return nil, errors.WithKind(errors.ErrUpstreamUnavailable, nil,
			"body exceeds %d bytes", c.cfg.MaxBodyBytes)
	}

	raw, err := types.ParseRawSnapshot(data)
	if err != nil {
		return nil, errors.WithKind(errors.ErrUpstreamUnavailable, err, "decode body")
	}

	log.Debug("fetched cluster status",
		"bytes", len(data),
		"hosts", len(raw.HostDetails),
		"duration", time.Since(start),
	)
	return raw, nil
}

// String implements fmt.Stringer.
func (c *Client) String() string {
	return fmt.Sprintf("upstream(%s)", c.cfg.URL)
}
