// Package allowlist fetches the remote list of eligible emails and matches
// candidates against it.
package allowlist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrInvalidShape is returned when the remote document is not a JSON array.
var ErrInvalidShape = errors.New("allow-list is not an array")

// maxBody caps how much of the remote document is read.
const maxBody = 8 << 20

// Source returns the current allow-list.
type Source interface {
	Fetch(ctx context.Context) ([]string, error)
}

// HTTPSource reads the allow-list from a URL on every call.
type HTTPSource struct {
	url    string
	client *http.Client
}

// NewHTTPSource builds a source for url. A nil client gets a 5s timeout.
func NewHTTPSource(url string, client *http.Client) *HTTPSource {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	return &HTTPSource{url: url, client: client}
}

// Fetch performs GET url and decodes a JSON array. Elements that are not
// strings are dropped.
func (s *HTTPSource) Fetch(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch allow-list: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("fetch allow-list: unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("read allow-list: %w", err)
	}

	var raw any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode allow-list: %w", err)
	}
	items, ok := raw.([]any)
	if !ok {
		return nil, ErrInvalidShape
	}

	out := make([]string, 0, len(items))
	for _, it := range items {
		if s, ok := it.(string); ok {
			out = append(out, s)
		}
	}
	return out, nil
}

// Normalize trims surrounding whitespace and lower-cases an email.
func Normalize(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Match reports whether any candidate equals any list entry after
// normalization. Blank values never match.
func Match(candidates, list []string) bool {
	if len(candidates) == 0 || len(list) == 0 {
		return false
	}
	want := make(map[string]struct{}, len(candidates))
	for _, c := range candidates {
		if n := Normalize(c); n != "" {
			want[n] = struct{}{}
		}
	}
	for _, e := range list {
		if _, ok := want[Normalize(e)]; ok {
			return true
		}
	}
	return false
}
