package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/PratikDhanave/intercom-email-relay/internal/botfilter"
	"github.com/PratikDhanave/intercom-email-relay/internal/dedup"
	"github.com/PratikDhanave/intercom-email-relay/internal/models"
	"github.com/PratikDhanave/intercom-email-relay/internal/payload"
	"github.com/PratikDhanave/intercom-email-relay/internal/reconcile"
)

const webhookPath = "/validate-email"

// MaxBodyBytes caps the POST body. Intercom notifications are a few KB.
const MaxBodyBytes int64 = 1 << 20

// ReasonAlreadyProcessed is the skip reason for annotated conversations.
const ReasonAlreadyProcessed = "already_processed"

// Dispatcher schedules a reconciliation without waiting for it.
type Dispatcher interface {
	Dispatch(job reconcile.Job)
}

// WebhookDeps are the collaborators of the webhook endpoint.
type WebhookDeps struct {
	Filter     *botfilter.Filter
	Store      dedup.Store
	Dispatcher Dispatcher
	Payload    payload.Options
	Log        *zap.Logger
}

// RegisterWebhookRoutes registers the inbound Intercom webhook.
//
// POST /validate-email
// - Answers before any outbound call is made
// - 400 only when the body is unusable, 413 above MaxBodyBytes; every other
//   case is 200
// - Reconciliation runs in the background and never affects the response
//
// HEAD and GET /validate-email always succeed so Intercom's webhook
// registration test passes.
func RegisterWebhookRoutes(r gin.IRoutes, deps WebhookDeps) {
	log := deps.Log

	r.HEAD(webhookPath, func(c *gin.Context) {
		log.Debug("Webhook validation HEAD request")
		c.Status(http.StatusOK)
	})

	r.GET(webhookPath, func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "OK", "ready": true})
	})

	r.POST(webhookPath, func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, MaxBodyBytes)
		body, err := c.GetRawData()
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				log.Warn("Webhook body too large", zap.Int64("limit", tooLarge.Limit))
				c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "payload too large"})
				return
			}
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON payload"})
			return
		}

		ev, err := payload.Parse(body, deps.Payload)
		switch {
		case errors.Is(err, payload.ErrInvalidJSON):
			log.Warn("Invalid webhook body", zap.Int("bytes", len(body)))
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON payload"})
			return
		case ev.Ping:
			log.Info("Webhook ping received")
			c.JSON(http.StatusOK, models.WebhookPing{Received: true, Ping: true})
			return
		case errors.Is(err, payload.ErrNoValidEmail):
			log.Warn("No valid email in webhook",
				zap.String("topic", ev.Topic),
				zap.String("conversation_id", ev.ConversationID))
			c.JSON(http.StatusBadRequest, gin.H{"error": "No valid email in payload"})
			return
		}

		if d := deps.Filter.Check(ev); d.Skip {
			log.Info("Webhook skipped",
				zap.String("reason", d.Reason),
				zap.String("topic", ev.Topic),
				zap.String("author_type", ev.Author.Type),
				zap.String("contact_role", ev.ContactRole))
			c.JSON(http.StatusOK, models.WebhookSkipped{Skipped: true, Reason: d.Reason})
			return
		}

		if ev.ConversationID != "" {
			done, err := deps.Store.HasProcessed(c.Request.Context(), ev.ConversationID)
			if err != nil {
				// Fall through: the worker's atomic mark still guards the note.
				log.Warn("Dedup lookup failed", zap.Error(err))
			}
			if done {
				log.Info("Conversation already processed", zap.String("conversation_id", ev.ConversationID))
				c.JSON(http.StatusOK, models.WebhookSkipped{
					Skipped:        true,
					Reason:         ReasonAlreadyProcessed,
					ConversationID: ev.ConversationID,
				})
				return
			}
		}

		job := reconcile.NewJob(ev)
		emails := ev.Emails
		if emails == nil {
			emails = []string{}
		}

		log.Info("Webhook accepted",
			zap.String("job_id", job.ID),
			zap.String("topic", ev.Topic),
			zap.String("shape", string(ev.Shape)),
			zap.Strings("emails", emails),
			zap.String("contact_id", ev.ContactID),
			zap.String("conversation_id", ev.ConversationID))

		c.JSON(http.StatusOK, models.WebhookAccepted{
			Received:       true,
			JobID:          job.ID,
			Emails:         emails,
			ContactID:      ev.ContactID,
			ConversationID: ev.ConversationID,
		})

		// Dispatch after the response is written; the caller never sees the result.
		deps.Dispatcher.Dispatch(job)
	})
}
