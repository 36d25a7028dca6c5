package models

// WebhookAccepted is returned by POST /validate-email once a reconciliation
// has been scheduled. It echoes what was extracted, not the outcome.
type WebhookAccepted struct {
	Received       bool     `json:"received"`
	JobID          string   `json:"job_id"`
	Emails         []string `json:"emails"`
	ContactID      string   `json:"contact_id,omitempty"`
	ConversationID string   `json:"conversation_id,omitempty"`
}

// WebhookSkipped is returned for events that are recognized but ignored.
type WebhookSkipped struct {
	Skipped        bool   `json:"skipped"`
	Reason         string `json:"reason"`
	ConversationID string `json:"conversation_id,omitempty"`
}

// WebhookPing answers Intercom's connectivity test.
type WebhookPing struct {
	Received bool `json:"received"`
	Ping     bool `json:"ping"`
}
