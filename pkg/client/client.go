// Package client implements the optional end-of-run notification webhook:
// after compilation finishes, a single HTTP POST reports the compiled
// artifact's name and final status to a configured URL, subject to a
// 10-second hard timeout. A failure here never aborts compilation;
// callers log it via internal/log.Degrade and move on.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pigletlang/core/pkg/emit"
)

// DefaultTimeout is the hard timeout for the webhook call.
const DefaultTimeout = 10 * time.Second

// Config configures a NotifyClient.
type Config struct {
	URL     string
	Auth    Authenticator
	Timeout time.Duration
}

// Notification is the payload POSTed to the configured webhook URL: the
// artifact's name plus its final status.
type Notification struct {
	Artifact string             `json:"artifact"`
	Status   emit.ArtifactStatus `json:"status"`
}

// NotifyClient POSTs a Notification to a configured webhook URL.
type NotifyClient struct {
	url        string
	auth       Authenticator
	httpClient *http.Client
}

// New constructs a NotifyClient from cfg, defaulting Timeout to
// DefaultTimeout when unset.
func New(cfg Config) *NotifyClient {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	return &NotifyClient{
		url:  strings.TrimSpace(cfg.URL),
		auth: cfg.Auth,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Notify POSTs n to the webhook URL, enforcing the hard timeout even if
// the caller's ctx has none. Returns nil if there is no configured URL;
// notification is opt-in.
func (c *NotifyClient) Notify(ctx context.Context, n Notification) error {
	if c.url == "" {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.httpClient.Timeout)
	defer cancel()

	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	if c.auth != nil {
		if err := c.auth.Authenticate(req); err != nil {
			return fmt.Errorf("authenticate: %w", err)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	return nil
}
