// Package target talks to the identity system: paging the directory into
// the cache store and applying planned operations.
// See docs/ARCHITECTURE.md § Target Interface.
package target

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

	"github.com/rs/zerolog"

	"github.com/mesh-intelligence/idsync/pkg/types"
)

// ErrIDExists is returned by Create when the target rejects the chosen
// record id as already taken.
var ErrIDExists = errors.New("record id already exists")

// Client is the HTTP client for the identity system's record API.
type Client struct {
	base string
	http *http.Client
	log  zerolog.Logger
}

// NewClient returns a client for the configured target.
func NewClient(cfg types.ApplySettings, log zerolog.Logger) *Client {
	return &Client{
		base: strings.TrimRight(cfg.BaseURL, "/"),
		http: &http.Client{Timeout: cfg.Timeout},
		log:  log,
	}
}

// Page is one page of directory records.
type Page struct {
	Items []map[string]any `json:"items"`
	Next  string           `json:"next,omitempty"`
}

// Pager walks directory pages for one dataset, calling fn once per page.
// Client.IterPages implements it over HTTP; snapshot files implement it for
// offline refresh.
type Pager func(ctx context.Context, ds string, pageSize, maxPages int, fn func(items []map[string]any) error) error

// IterPages pages through the directory, pageSize records at a time.
// maxPages > 0 bounds the walk; exceeding the bound returns ErrPageLimit so
// a target that keeps handing out cursors cannot spin the refresh forever.
func (c *Client) IterPages(ctx context.Context, ds string, pageSize, maxPages int, fn func(items []map[string]any) error) error {
	cursor := ""
	for page := 0; ; page++ {
		if maxPages > 0 && page >= maxPages {
			return fmt.Errorf("%w: %s after %d pages", types.ErrPageLimit, ds, maxPages)
		}
		u := fmt.Sprintf("%s/datasets/%s/records?limit=%d", c.base, url.PathEscape(ds), pageSize)
		if cursor != "" {
			u += "&cursor=" + url.QueryEscape(cursor)
		}
		var p Page
		if err := c.do(ctx, http.MethodGet, u, nil, &p); err != nil {
			return err
		}
		if len(p.Items) > 0 {
			if err := fn(p.Items); err != nil {
				return err
			}
		}
		if p.Next == "" {
			return nil
		}
		cursor = p.Next
	}
}

// Create posts one new record and returns the record as the target stored
// it. A conflict on the record id returns ErrIDExists so the caller can
// retry with a fresh id.
func (c *Client) Create(ctx context.Context, ds string, body map[string]any) (map[string]any, error) {
	u := fmt.Sprintf("%s/datasets/%s/records", c.base, url.PathEscape(ds))
	var created map[string]any
	err := c.do(ctx, http.MethodPost, u, body, &created)
	return created, err
}

// Update patches one record's changed fields and returns the record as the
// target stored it.
func (c *Client) Update(ctx context.Context, ds, id string, changes map[string]any) (map[string]any, error) {
	u := fmt.Sprintf("%s/datasets/%s/records/%s", c.base, url.PathEscape(ds), url.PathEscape(id))
	var updated map[string]any
	err := c.do(ctx, http.MethodPatch, u, changes, &updated)
	return updated, err
}

func (c *Client) do(ctx context.Context, method, u string, body any, out any) error {
	var reqBody io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reqBody = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, reqBody)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		// Transport failures are worth re-invoking the run for.
		return &types.RunError{Op: method + " " + u, Retryable: true, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusConflict:
		return ErrIDExists
	case resp.StatusCode >= 500:
		return &types.RunError{
			Op:        method + " " + u,
			Retryable: true,
			Err:       fmt.Errorf("target returned %s", resp.Status),
		}
	case resp.StatusCode >= 400:
		return fmt.Errorf("%s %s: target returned %s", method, u, resp.Status)
	}

	if out == nil {
		return nil
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &types.RunError{Op: method + " " + u, Retryable: true, Err: err}
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response of %s %s: %w", method, u, err)
	}
	return nil
}
