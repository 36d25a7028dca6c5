// Package payload recognizes the inbound webhook shapes sent by Intercom
// (and by manual test tools) and extracts the email candidates, contact id
// and author metadata from them.
package payload

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"
)

var (
	// ErrInvalidJSON means the body is not a JSON object.
	ErrInvalidJSON = errors.New("invalid JSON payload")
	// ErrNoValidEmail means no known shape produced an email or contact id.
	ErrNoValidEmail = errors.New("no valid email in payload")
)

// Shape names the payload layout an event was recognized by.
type Shape string

const (
	ShapeUnrecognized   Shape = ""
	ShapeTopLevel       Shape = "email"
	ShapeData           Shape = "data.email"
	ShapeDataAttributes Shape = "data.attributes.email"
	ShapeItem           Shape = "data.item.email"
	ShapeItemContact    Shape = "data.item.contacts"
	ShapeAuthorEmail    Shape = "data.item.author.email"
	ShapeAuthorID       Shape = "data.item.author.id"
)

// Author is who wrote the conversation part that triggered the event.
type Author struct {
	Type        string
	ID          string
	Email       string
	FromAIAgent bool
	IsAIAnswer  bool
}

// Event is the typed view of an inbound webhook.
type Event struct {
	Topic          string
	Ping           bool
	Shape          Shape
	Emails         []string
	ContactID      string
	ConversationID string
	ContactRole    string
	Author         Author
}

// Recognized reports whether a shape produced something to reconcile.
func (e Event) Recognized() bool {
	return e.Shape != ShapeUnrecognized
}

// Options tunes extraction.
type Options struct {
	// PurchaseEmailAttr is the contact custom attribute carrying a second
	// email address.
	PurchaseEmailAttr string
}

type doc = map[string]any

type matcher struct {
	shape Shape
	// match returns the raw, non-empty candidate values of the shape before
	// the email check, plus any contact id it carries.
	match func(root doc, opts Options) (raw []string, contactID string)
}

// matchers are tried in order. The first shape with any non-empty value
// wins, even when none of its values turn out to be emails.
var matchers = []matcher{
	{ShapeTopLevel, func(root doc, _ Options) ([]string, string) {
		return nonEmpty(str(root, "email")), ""
	}},
	{ShapeData, func(root doc, _ Options) ([]string, string) {
		return nonEmpty(str(obj(root, "data"), "email")), ""
	}},
	{ShapeDataAttributes, func(root doc, _ Options) ([]string, string) {
		return nonEmpty(str(obj(obj(root, "data"), "attributes"), "email")), ""
	}},
	{ShapeItem, func(root doc, _ Options) ([]string, string) {
		return nonEmpty(str(item(root), "email")), ""
	}},
	{ShapeItemContact, func(root doc, opts Options) ([]string, string) {
		c := firstContact(root)
		raw := nonEmpty(str(c, "email"), str(obj(c, "custom_attributes"), opts.PurchaseEmailAttr))
		if len(raw) == 0 {
			return nil, ""
		}
		return raw, str(c, "id")
	}},
	{ShapeAuthorEmail, func(root doc, _ Options) ([]string, string) {
		return nonEmpty(str(obj(item(root), "author"), "email")), ""
	}},
	{ShapeAuthorID, func(root doc, _ Options) ([]string, string) {
		author := obj(item(root), "author")
		switch str(author, "type") {
		case "", "user", "lead", "contact":
			return nil, str(author, "id")
		}
		return nil, ""
	}},
}

// Parse decodes body and extracts an Event. Ping events return early with
// only Topic and Ping set. A shape whose values contain no '@' ends the
// search with ErrNoValidEmail. ErrNoValidEmail is returned together with the
// partially filled event so callers can still log it.
func Parse(body []byte, opts Options) (Event, error) {
	var root doc
	if err := json.Unmarshal(body, &root); err != nil || root == nil {
		return Event{}, ErrInvalidJSON
	}

	ev := Event{Topic: str(root, "topic")}
	if strings.EqualFold(ev.Topic, "ping") || strings.EqualFold(str(item(root), "type"), "ping") {
		ev.Ping = true
		return ev, nil
	}

	it := item(root)
	if str(it, "type") == "conversation" {
		ev.ConversationID = str(it, "id")
	}
	ev.ContactRole = str(firstContact(root), "role")

	author := obj(it, "author")
	ev.Author = Author{
		Type:        str(author, "type"),
		ID:          str(author, "id"),
		Email:       str(author, "email"),
		FromAIAgent: flag(author, "from_ai_agent") || flag(it, "from_ai_agent"),
		IsAIAnswer:  flag(author, "is_ai_answer") || flag(it, "is_ai_answer"),
	}

	for _, m := range matchers {
		raw, contactID := m.match(root, opts)
		if len(raw) == 0 && contactID == "" {
			continue
		}
		found := emails(raw...)
		if len(raw) > 0 && len(found) == 0 {
			return ev, ErrNoValidEmail
		}
		ev.Shape = m.shape
		ev.Emails = found
		ev.ContactID = contactID
		return ev, nil
	}
	return ev, ErrNoValidEmail
}

func nonEmpty(values ...string) []string {
	var out []string
	for _, v := range values {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}

// IsEmail is the only syntactic check applied: the value contains '@'.
func IsEmail(s string) bool {
	return strings.Contains(s, "@")
}

// emails keeps the trimmed values that look like emails, dropping
// case-insensitive duplicates.
func emails(values ...string) []string {
	var out []string
	seen := map[string]struct{}{}
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" || !IsEmail(v) {
			continue
		}
		k := strings.ToLower(v)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, v)
	}
	return out
}

func item(root doc) doc {
	return obj(obj(root, "data"), "item")
}

func firstContact(root doc) doc {
	contacts := obj(item(root), "contacts")
	if contacts == nil {
		return nil
	}
	list, _ := contacts["contacts"].([]any)
	if len(list) == 0 {
		return nil
	}
	c, _ := list[0].(map[string]any)
	return c
}

func obj(m doc, key string) doc {
	if m == nil {
		return nil
	}
	v, _ := m[key].(map[string]any)
	return v
}

// str returns a string field. Numeric ids are rendered without a fraction.
func str(m doc, key string) string {
	if m == nil || key == "" {
		return ""
	}
	switch v := m[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return ""
}

func flag(m doc, key string) bool {
	if m == nil {
		return false
	}
	b, _ := m[key].(bool)
	return b
}
