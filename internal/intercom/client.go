package intercom

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
	"time"
)

var (
	// ErrNotFound is returned for 404 responses and empty searches.
	ErrNotFound = errors.New("intercom: not found")
	// ErrConflict is returned for 409 responses, e.g. creating a contact
	// that already exists.
	ErrConflict = errors.New("intercom: conflict")
)

// APIError is any other non-2xx response.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("intercom: status %d: %s", e.StatusCode, e.Body)
}

// Contact is the subset of the Intercom contact model the relay reads.
type Contact struct {
	ID               string         `json:"id"`
	Role             string         `json:"role,omitempty"`
	Email            string         `json:"email,omitempty"`
	CustomAttributes map[string]any `json:"custom_attributes,omitempty"`
}

// BoolAttr returns the custom attribute name as a bool and whether it was
// set to a bool at all.
func (c *Contact) BoolAttr(name string) (value bool, ok bool) {
	if c == nil || c.CustomAttributes == nil {
		return false, false
	}
	b, ok := c.CustomAttributes[name].(bool)
	return b, ok
}

// StringAttr returns a string custom attribute, or "".
func (c *Contact) StringAttr(name string) string {
	if c == nil || c.CustomAttributes == nil {
		return ""
	}
	s, _ := c.CustomAttributes[name].(string)
	return s
}

// Options configures a Client. Empty fields take the defaults applied by
// NewClient.
type Options struct {
	// BaseURL defaults to https://api.intercom.io.
	BaseURL string
	// Token is sent as a bearer token on every request.
	Token string
	// APIVersion is sent as the Intercom-Version header, default 2.11.
	APIVersion string
	// HTTPClient carries the per-call timeout. Defaults to a 5s client.
	HTTPClient *http.Client
}

// Client talks to the Intercom REST API. It never retries.
type Client struct {
	baseURL    string
	token      string
	apiVersion string
	httpClient *http.Client
}

// NewClient returns a Client for opts with defaults filled in.
func NewClient(opts Options) *Client {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = "https://api.intercom.io"
	}
	apiVersion := strings.TrimSpace(opts.APIVersion)
	if apiVersion == "" {
		apiVersion = "2.11"
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 5 * time.Second}
	}
	return &Client{
		baseURL:    baseURL,
		token:      opts.Token,
		apiVersion: apiVersion,
		httpClient: httpClient,
	}
}

// GetContact reads a contact by id.
func (c *Client) GetContact(ctx context.Context, id string) (*Contact, error) {
	var out Contact
	if err := c.do(ctx, http.MethodGet, "/contacts/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

type searchQuery struct {
	Query searchFilter `json:"query"`
}

type searchFilter struct {
	Field    string `json:"field"`
	Operator string `json:"operator"`
	Value    string `json:"value"`
}

type contactList struct {
	Data []Contact `json:"data"`
}

// FindContactByEmail returns the first contact whose email equals email.
func (c *Client) FindContactByEmail(ctx context.Context, email string) (*Contact, error) {
	q := searchQuery{Query: searchFilter{Field: "email", Operator: "=", Value: email}}
	var out contactList
	if err := c.do(ctx, http.MethodPost, "/contacts/search", q, &out); err != nil {
		return nil, err
	}
	if len(out.Data) == 0 {
		return nil, ErrNotFound
	}
	return &out.Data[0], nil
}

type contactWrite struct {
	Email            string         `json:"email,omitempty"`
	CustomAttributes map[string]any `json:"custom_attributes"`
}

// UpdateContact sets custom attributes on an existing contact.
func (c *Client) UpdateContact(ctx context.Context, id string, attrs map[string]any) error {
	return c.do(ctx, http.MethodPut, "/contacts/"+url.PathEscape(id), contactWrite{CustomAttributes: attrs}, nil)
}

// CreateContact creates a contact keyed by email.
func (c *Client) CreateContact(ctx context.Context, email string, attrs map[string]any) error {
	return c.do(ctx, http.MethodPost, "/contacts", contactWrite{Email: email, CustomAttributes: attrs}, nil)
}

type noteReply struct {
	MessageType string `json:"message_type"`
	Type        string `json:"type"`
	AdminID     string `json:"admin_id"`
	Body        string `json:"body"`
}

// AddNote appends an internal note to a conversation on behalf of adminID.
func (c *Client) AddNote(ctx context.Context, conversationID, adminID, body string) error {
	reply := noteReply{MessageType: "note", Type: "admin", AdminID: adminID, Body: body}
	return c.do(ctx, http.MethodPost, "/conversations/"+url.PathEscape(conversationID)+"/reply", reply, nil)
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

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Intercom-Version", c.apiVersion)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%s %s: read body: %w", method, path, err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode == http.StatusConflict:
		return ErrConflict
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(respBody))}
	}

	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("%s %s: decode: %w", method, path, err)
	}
	return nil
}
