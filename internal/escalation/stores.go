package escalation

import (
	"context"
	"time"

	"escalation-service/internal/models"
)

// The escalation core talks to persistence through these narrow interfaces.
// internal/db implements all of them; tests use in-memory fakes.

// AlertStore owns the one piece of mutable shared state, the alert row.
// Start/Advance/Acknowledge are conditional updates: they report false when
// the precondition no longer holds, which is how a rare double-fired advance
// job is tolerated without double-incrementing.
type AlertStore interface {
	GetAlert(ctx context.Context, id string) (*models.Alert, error)
	// StartEscalation sets started=true, step=1 only if not already started.
	StartEscalation(ctx context.Context, id string, now time.Time) (bool, error)
	// AdvanceEscalation moves the step from fromStep to toStep only if the row still
	// holds fromStep and is unacknowledged.
	AdvanceEscalation(ctx context.Context, id string, fromStep, toStep int, now time.Time) (bool, error)
	MarkEscalationComplete(ctx context.Context, id string) error
	// Acknowledge flips the flag; false means it was already acknowledged.
	Acknowledge(ctx context.Context, id string, now time.Time) (bool, error)
}

// PolicyStore loads validated escalation policies. Malformed policies fail
// at read time and never reach the state machine.
type PolicyStore interface {
	GetPolicy(ctx context.Context, id string) (*models.EscalationPolicy, error)
}

// ContactStore resolves the contacts attached to an alert's subject.
type ContactStore interface {
	GetContactsBySubject(ctx context.Context, subjectID string) ([]models.Contact, error)
	GetContact(ctx context.Context, id string) (*models.Contact, error)
}

// AttemptStore persists the append-only delivery audit trail. A row is keyed
// by (alert, step, contact, channel); recording the same key again bumps the
// attempt counter on the same logical row.
type AttemptStore interface {
	RecordAttempt(ctx context.Context, attempt *models.DeliveryAttempt) error
	ListAttempts(ctx context.Context, alertID string) ([]models.DeliveryAttempt, error)
}
