package botfilter

import (
	"strings"

	"github.com/PratikDhanave/intercom-email-relay/internal/payload"
)

// Skip reasons reported to the webhook caller.
const (
	ReasonBot         = "bot"
	ReasonRole        = "role"
	ReasonRoleUnknown = "role_unknown"
)

const (
	operatorMarker = "operator+"
	platformDomain = "@intercom.io"
)

var (
	automatedTypes = map[string]struct{}{"bot": {}, "automated": {}}
	acceptedRoles  = map[string]struct{}{"user": {}, "lead": {}}
)

// Decision is the outcome of Check.
type Decision struct {
	Skip   bool
	Reason string
}

// Filter decides whether an event came from a real end user.
type Filter struct {
	skipUnknownRole bool
}

// New returns a Filter. skipUnknownRole controls events whose contact role
// is missing: true skips them, false lets them through.
func New(skipUnknownRole bool) *Filter {
	return &Filter{skipUnknownRole: skipUnknownRole}
}

// Check skips automated authors first, then contacts whose role is not an
// end-user role. The zero Decision means the event should be processed.
func (f *Filter) Check(ev payload.Event) Decision {
	if isAutomated(ev.Author) {
		return Decision{Skip: true, Reason: ReasonBot}
	}
	return f.CheckRole(ev.ContactRole)
}

// CheckRole applies the role rule alone. It is also used on contacts read
// back from Intercom, whose role the webhook may not have carried.
func (f *Filter) CheckRole(role string) Decision {
	role = strings.ToLower(strings.TrimSpace(role))
	if role == "" {
		if f.skipUnknownRole {
			return Decision{Skip: true, Reason: ReasonRoleUnknown}
		}
		return Decision{}
	}
	if _, ok := acceptedRoles[role]; !ok {
		return Decision{Skip: true, Reason: ReasonRole}
	}
	return Decision{}
}

func isAutomated(a payload.Author) bool {
	if _, ok := automatedTypes[strings.ToLower(a.Type)]; ok {
		return true
	}
	if a.FromAIAgent || a.IsAIAnswer {
		return true
	}
	email := strings.ToLower(a.Email)
	return strings.Contains(email, operatorMarker) || strings.HasSuffix(email, platformDomain)
}
