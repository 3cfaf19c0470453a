// SPDX-FileCopyrightText: Copyright 2025 Carabiner Systems, Inc
// SPDX-License-Identifier: Apache-2.0

// Package burnlink is the client library of the burnlink service. Secrets
// are sealed locally with a passphrase and only the encrypted envelope is
// sent to the server.
package burnlink

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

	"github.com/chainguard-dev/clog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/carabiner-dev/burnlink/internal/common"
	"github.com/carabiner-dev/burnlink/options"
	"github.com/carabiner-dev/burnlink/secrets"
)

// maxResponseSize caps the responses read from the server
const maxResponseSize = 1 << 20

// Client talks to a burnlink server.
type Client struct {
	options *options.Client
	http    *http.Client
}

// APIError is a failed response from the server
type APIError struct {
	StatusCode int
	Code       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server error: %s (HTTP %d)", e.Code, e.StatusCode)
}

// Unwrap maps the server error codes back to the sentinel errors.
func (e *APIError) Unwrap() error {
	switch e.Code {
	case "invalid_envelope":
		return secrets.ErrInvalidEnvelope
	case "invalid_ttl":
		return secrets.ErrInvalidTTL
	case "invalid_id":
		return secrets.ErrInvalidID
	case "not_found":
		return secrets.ErrNotFound
	case "capacity_exceeded":
		return secrets.ErrCapacityExceeded
	default:
		return nil
	}
}

// NewClient creates a new client instance
func NewClient(opts *options.Client) *Client {
	if opts == nil {
		opts = options.DefaultClient
	}

	return &Client{
		options: opts,
		http: &http.Client{
			Timeout:   opts.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

// WithHTTPClient sets a custom HTTP client (for testing)
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.http = hc
	return c
}

// Create seals the secret with the passphrase, uploads the envelope and
// returns the id assigned by the server.
func (c *Client) Create(ctx context.Context, secret []byte, passphrase string, fns ...options.CreateOptsFn) (string, error) {
	opts := options.DefaultCreate
	for _, fn := range fns {
		if err := fn(&opts); err != nil {
			return "", err
		}
	}

	envelope, err := Seal(secret, passphrase, c.options.Iterations)
	if err != nil {
		return "", fmt.Errorf("sealing secret: %w", err)
	}

	body, err := json.Marshal(map[string]any{
		"ttl":           opts.TtlSeconds,
		"payload":       envelope,
		"burnAfterRead": opts.BurnAfterRead,
	})
	if err != nil {
		return "", fmt.Errorf("encoding request: %w", err)
	}

	var resp struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/secret", body, &resp); err != nil {
		return "", err
	}

	clog.FromContext(ctx).Debugf("Created secret %s (ttl %ds, burn after read: %t)", common.ShortID(resp.ID), opts.TtlSeconds, opts.BurnAfterRead)
	return resp.ID, nil
}

// Get fetches the envelope stored under id and opens it with passphrase.
// Burn after read secrets are gone from the server once Get returns, even
// if the passphrase turns out to be wrong.
func (c *Client) Get(ctx context.Context, id, passphrase string) ([]byte, error) {
	if len(passphrase) < MinPassphraseLength {
		return nil, ErrPassphraseTooShort
	}

	var resp struct {
		Payload *secrets.Envelope `json:"payload"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/secret/"+url.PathEscape(id), nil, &resp); err != nil {
		return nil, err
	}

	return Open(resp.Payload, passphrase, c.options.Iterations)
}

// Ping checks that the server is up and answering
func (c *Client) Ping(ctx context.Context) error {
	var resp struct {
		Status string `json:"status"`
	}
	if err := c.do(ctx, http.MethodGet, "/healthz", nil, &resp); err != nil {
		return err
	}
	if resp.Status != "ok" {
		return fmt.Errorf("server reported status %q", resp.Status)
	}
	return nil
}

// Link returns the shareable link for a secret id. The id travels in the
// URL fragment so it is never sent to the server serving the page.
func (c *Client) Link(id string) string {
	return strings.TrimSuffix(c.options.ServerURL, "/") + "/#id=" + url.QueryEscape(id)
}

// ParseLink extracts the secret id from a link created by Link. A bare id
// is returned as is.
func ParseLink(link string) (string, error) {
	if !strings.Contains(link, "#") {
		return link, nil
	}

	u, err := url.Parse(link)
	if err != nil {
		return "", fmt.Errorf("parsing link: %w", err)
	}

	values, err := url.ParseQuery(u.Fragment)
	if err != nil {
		return "", fmt.Errorf("parsing link fragment: %w", err)
	}

	id := values.Get("id")
	if id == "" {
		return "", errors.New("link has no secret id")
	}
	return id, nil
}

// do sends a request to the server and decodes the JSON response into out
func (c *Client) do(ctx context.Context, method, path string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, strings.TrimSuffix(c.options.ServerURL, "/")+path, reader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("calling server: %w", err)
	}
	defer res.Body.Close() //nolint:errcheck

	data, err := io.ReadAll(io.LimitReader(res.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if res.StatusCode != http.StatusOK {
		var apiErr struct {
			Error string `json:"error"`
		}
		if err := json.Unmarshal(data, &apiErr); err != nil || apiErr.Error == "" {
			apiErr.Error = http.StatusText(res.StatusCode)
		}
		return &APIError{StatusCode: res.StatusCode, Code: apiErr.Error}
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
