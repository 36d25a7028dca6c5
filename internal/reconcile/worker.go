// Package reconcile brings a contact's match attribute in line with the
// allow-list and annotates the conversation that triggered the check.
//
// Every step talks to an external system and may fail independently. A
// failure is logged and ends that run; nothing is retried and nothing is
// reported back to the webhook caller, which has already been answered.
package reconcile

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/PratikDhanave/intercom-email-relay/internal/allowlist"
	"github.com/PratikDhanave/intercom-email-relay/internal/botfilter"
	"github.com/PratikDhanave/intercom-email-relay/internal/dedup"
	"github.com/PratikDhanave/intercom-email-relay/internal/intercom"
	"github.com/PratikDhanave/intercom-email-relay/internal/payload"
)

var errNoEmail = errors.New("no email to create contact with")

// Platform is the part of the Intercom API the worker uses.
type Platform interface {
	GetContact(ctx context.Context, id string) (*intercom.Contact, error)
	FindContactByEmail(ctx context.Context, email string) (*intercom.Contact, error)
	UpdateContact(ctx context.Context, id string, attrs map[string]any) error
	CreateContact(ctx context.Context, email string, attrs map[string]any) error
	AddNote(ctx context.Context, conversationID, adminID, body string) error
}

// RoleFilter decides whether a contact's role is eligible for a write.
// *botfilter.Filter implements it.
type RoleFilter interface {
	CheckRole(role string) botfilter.Decision
}

// Job is one reconciliation request.
type Job struct {
	ID             string
	ContactID      string
	Emails         []string
	ConversationID string
}

// NewJob builds a Job from an extracted event and assigns it an id.
func NewJob(ev payload.Event) Job {
	return Job{
		ID:             uuid.New().String(),
		ContactID:      ev.ContactID,
		Emails:         ev.Emails,
		ConversationID: ev.ConversationID,
	}
}

// Outcome summarizes a run. It is only used for logging and tests.
type Outcome struct {
	Matched bool
	Wrote   bool
	Noted   bool
	Aborted bool
	// Skipped is set when the resolved contact's role is not eligible.
	Skipped bool
}

// Options configures a Worker. The zero value never notes and never resets.
type Options struct {
	// AttrName is the boolean custom attribute holding the match state.
	AttrName string
	// PurchaseEmailAttr is read from fetched contacts as an extra candidate.
	PurchaseEmailAttr string
	// AdminID authors notes. Empty disables notes.
	AdminID  string
	NoteText string
	// ResetOnMismatch writes false to existing contacts that do not match.
	ResetOnMismatch bool
	// Roles, when set, is applied to the role of the resolved contact.
	// Contacts without a stored role are left to the webhook-level check.
	Roles RoleFilter
}

// Worker runs reconciliations. It is safe for concurrent use.
type Worker struct {
	platform Platform
	source   allowlist.Source
	store    dedup.Store
	opts     Options
	log      *zap.Logger
}

// NewWorker returns a Worker. store is shared with the webhook handler so
// both see the same annotated conversations.
func NewWorker(platform Platform, source allowlist.Source, store dedup.Store, opts Options, log *zap.Logger) *Worker {
	return &Worker{
		platform: platform,
		source:   source,
		store:    store,
		opts:     opts,
		log:      log,
	}
}

// Run performs resolve → role check → fetch → match → write → note. A note
// is only posted after the attribute actually changed to true.
func (w *Worker) Run(ctx context.Context, job Job) Outcome {
	log := w.log.With(
		zap.String("job_id", job.ID),
		zap.String("contact_id", job.ContactID),
		zap.String("conversation_id", job.ConversationID),
	)

	contact, err := w.resolve(ctx, job)
	if err != nil {
		log.Error("Failed to resolve contact", zap.Error(err))
		return Outcome{Aborted: true}
	}

	if contact != nil && contact.Role != "" && w.opts.Roles != nil {
		if d := w.opts.Roles.CheckRole(contact.Role); d.Skip {
			log.Info("Contact role not eligible",
				zap.String("role", contact.Role),
				zap.String("reason", d.Reason))
			return Outcome{Skipped: true}
		}
	}

	candidates := w.candidates(job, contact)
	if len(candidates) == 0 {
		log.Warn("No email candidates for contact")
		return Outcome{Aborted: true}
	}

	list, err := w.source.Fetch(ctx)
	if err != nil {
		log.Error("Failed to fetch allow-list", zap.Error(err))
		return Outcome{Aborted: true}
	}

	out := Outcome{Matched: allowlist.Match(candidates, list)}
	stored, known := contact.BoolAttr(w.opts.AttrName)

	log.Info("Allow-list checked",
		zap.Strings("emails", candidates),
		zap.Bool("match", out.Matched),
		zap.Bool("stored_known", known),
		zap.Bool("stored", stored))

	if out.Matched {
		// Already true: nothing changed, so there is nothing to annotate.
		if known && stored {
			return out
		}
		if err := w.upsert(ctx, contact, candidates[0], true); err != nil {
			log.Error("Failed to set match attribute", zap.Error(err))
			return out
		}
		out.Wrote = true
		out.Noted = w.note(ctx, log, job.ConversationID)
		return out
	}

	// A contact that does not exist yet is never created for a negative result.
	if !w.opts.ResetOnMismatch || contact == nil || contact.ID == "" || (known && !stored) {
		return out
	}
	if err := w.upsert(ctx, contact, "", false); err != nil {
		log.Error("Failed to reset match attribute", zap.Error(err))
		return out
	}
	out.Wrote = true
	return out
}

// resolve reads the current contact by id, or by the first email when no
// id is known. A missing contact is not an error and yields nil.
func (w *Worker) resolve(ctx context.Context, job Job) (*intercom.Contact, error) {
	var (
		contact *intercom.Contact
		err     error
	)
	switch {
	case job.ContactID != "":
		contact, err = w.platform.GetContact(ctx, job.ContactID)
	case len(job.Emails) > 0:
		contact, err = w.platform.FindContactByEmail(ctx, job.Emails[0])
	default:
		return nil, nil
	}
	if errors.Is(err, intercom.ErrNotFound) {
		return nil, nil
	}
	return contact, err
}

func (w *Worker) candidates(job Job, contact *intercom.Contact) []string {
	out := make([]string, 0, len(job.Emails)+2)
	seen := map[string]struct{}{}
	add := func(e string) {
		e = strings.TrimSpace(e)
		if e == "" || !payload.IsEmail(e) {
			return
		}
		k := allowlist.Normalize(e)
		if _, ok := seen[k]; ok {
			return
		}
		seen[k] = struct{}{}
		out = append(out, e)
	}
	for _, e := range job.Emails {
		add(e)
	}
	if contact != nil {
		add(contact.Email)
		if w.opts.PurchaseEmailAttr != "" {
			add(contact.StringAttr(w.opts.PurchaseEmailAttr))
		}
	}
	return out
}

// upsert updates the contact when it has an id and falls back to creating
// it by email on ErrNotFound. ErrConflict counts as success either way.
func (w *Worker) upsert(ctx context.Context, contact *intercom.Contact, email string, value bool) error {
	attrs := map[string]any{w.opts.AttrName: value}

	if contact != nil && contact.ID != "" {
		err := w.platform.UpdateContact(ctx, contact.ID, attrs)
		if err == nil || errors.Is(err, intercom.ErrConflict) {
			return nil
		}
		if !errors.Is(err, intercom.ErrNotFound) {
			return err
		}
	}

	if email == "" {
		return errNoEmail
	}
	err := w.platform.CreateContact(ctx, email, attrs)
	if errors.Is(err, intercom.ErrConflict) {
		return nil
	}
	return err
}

// note posts the match note once per conversation. The id is marked before
// posting, so a failed post is not attempted again.
func (w *Worker) note(ctx context.Context, log *zap.Logger, conversationID string) bool {
	if conversationID == "" || w.opts.AdminID == "" {
		return false
	}

	first, err := w.store.MarkProcessed(ctx, conversationID)
	if err != nil {
		log.Error("Failed to mark conversation", zap.Error(err))
		return false
	}
	if !first {
		log.Debug("Conversation already annotated")
		return false
	}

	if err := w.platform.AddNote(ctx, conversationID, w.opts.AdminID, w.opts.NoteText); err != nil {
		log.Error("Failed to add conversation note", zap.Error(err))
		return false
	}
	log.Info("Conversation note added")
	return true
}
