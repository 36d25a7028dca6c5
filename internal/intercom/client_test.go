package intercom

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(Options{BaseURL: srv.URL + "/", Token: "secret", APIVersion: "2.11", HTTPClient: srv.Client()})
}

func TestClient_GetContact(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/contacts/u1", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, "2.11", r.Header.Get("Intercom-Version"))
		_, _ = w.Write([]byte(`{"type":"contact","id":"u1","role":"user","email":"a@x.com",
			"custom_attributes":{"Custom":true,"Purchase email":"p@y.com"}}`))
	})

	contact, err := c.GetContact(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", contact.Email)
	assert.Equal(t, "user", contact.Role)

	v, ok := contact.BoolAttr("Custom")
	assert.True(t, ok)
	assert.True(t, v)
	assert.Equal(t, "p@y.com", contact.StringAttr("Purchase email"))

	_, ok = contact.BoolAttr("Missing")
	assert.False(t, ok)
}

func TestClient_FindContactByEmail(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/contacts/search", r.URL.Path)

		var q searchQuery
		require.NoError(t, json.NewDecoder(r.Body).Decode(&q))
		assert.Equal(t, searchFilter{Field: "email", Operator: "=", Value: "a@x.com"}, q.Query)

		_, _ = w.Write([]byte(`{"type":"list","data":[{"id":"u1","email":"a@x.com"}],"total_count":1}`))
	})

	contact, err := c.FindContactByEmail(context.Background(), "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, "u1", contact.ID)
}

func TestClient_FindContactByEmail_Empty(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"type":"list","data":[]}`))
	})

	_, err := c.FindContactByEmail(context.Background(), "nobody@x.com")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestClient_UpdateContact(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/contacts/u1", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, map[string]any{"custom_attributes": map[string]any{"Custom": true}}, body)
		_, _ = w.Write([]byte(`{"id":"u1"}`))
	})

	assert.NoError(t, c.UpdateContact(context.Background(), "u1", map[string]any{"Custom": true}))
}

func TestClient_CreateContact(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/contacts", r.URL.Path)

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "a@x.com", body["email"])
		assert.Equal(t, map[string]any{"Custom": true}, body["custom_attributes"])
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"type":"error.list","errors":[{"code":"conflict"}]}`))
	})

	err := c.CreateContact(context.Background(), "a@x.com", map[string]any{"Custom": true})
	assert.True(t, errors.Is(err, ErrConflict))
}

func TestClient_AddNote(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/conversations/conv-1/reply", r.URL.Path)

		var body noteReply
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, noteReply{MessageType: "note", Type: "admin", AdminID: "42", Body: "matched"}, body)
		_, _ = w.Write([]byte(`{"type":"conversation","id":"conv-1"}`))
	})

	assert.NoError(t, c.AddNote(context.Background(), "conv-1", "42", "matched"))
}

func TestClient_ErrorMapping(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusNotFound)
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(int(status.Load()))
		_, _ = w.Write([]byte(`{"type":"error.list"}`))
	})

	_, err := c.GetContact(context.Background(), "missing")
	assert.True(t, errors.Is(err, ErrNotFound))

	status.Store(http.StatusUnauthorized)
	_, err = c.GetContact(context.Background(), "u1")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Contains(t, apiErr.Error(), "401")
}
