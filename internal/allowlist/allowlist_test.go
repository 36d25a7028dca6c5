package allowlist

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatch(t *testing.T) {
	cases := []struct {
		name       string
		candidates []string
		list       []string
		want       bool
	}{
		{"exact", []string{"a@x.com"}, []string{"a@x.com"}, true},
		{"case folded", []string{"a@x.com"}, []string{"A@X.com"}, true},
		{"whitespace both sides", []string{"  A@x.com\t"}, []string{"\na@X.COM "}, true},
		{"second candidate", []string{"b@x.com", "a@x.com"}, []string{"a@x.com"}, true},
		{"no match", []string{"a@x.com"}, []string{"b@x.com"}, false},
		{"substring is not a match", []string{"a@x.com"}, []string{"aa@x.com"}, false},
		{"blank never matches", []string{"  "}, []string{""}, false},
		{"empty list", []string{"a@x.com"}, nil, false},
		{"no candidates", nil, []string{"a@x.com"}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Match(tc.candidates, tc.list))
		})
	}
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "a@x.com", Normalize("  A@X.Com \n"))
}

func TestHTTPSource_Fetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`["a@x.com", 42, null, "B@y.org"]`))
	}))
	defer srv.Close()

	list, err := NewHTTPSource(srv.URL, srv.Client()).Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a@x.com", "B@y.org"}, list)
}

func TestHTTPSource_Fetch_NotAnArray(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"emails":["a@x.com"]}`))
	}))
	defer srv.Close()

	_, err := NewHTTPSource(srv.URL, srv.Client()).Fetch(context.Background())
	assert.True(t, errors.Is(err, ErrInvalidShape))
}

func TestHTTPSource_Fetch_BadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewHTTPSource(srv.URL, srv.Client()).Fetch(context.Background())
	assert.Error(t, err)
}

func TestHTTPSource_Fetch_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	client := &http.Client{Timeout: 50 * time.Millisecond}
	_, err := NewHTTPSource(srv.URL, client).Fetch(context.Background())
	assert.Error(t, err)
}
