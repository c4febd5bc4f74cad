package queue

import (
	"encoding/json"
	"time"

	"escalation-service/internal/models"
)

// Lane separates urgent single sends from best-effort bulk fan-outs.
type Lane string

const (
	LaneIndividual Lane = "individual"
	LaneBulk       Lane = "bulk"
)

// Job kinds.
const (
	KindSend    = "send"    // one (contact, channel) delivery
	KindBulk    = "bulk"    // fan-out request, expands at consumption
	KindAdvance = "advance" // scheduled escalation step advance
)

// Job statuses.
const (
	StatusPending = "pending"
	StatusRunning = "running"
	StatusDone    = "done"
	StatusDead    = "dead"
)

// Job is one unit of queued work. RunAt delays live in the store, not in
// process memory, so pending escalations survive a restart.
type Job struct {
	ID          string          `json:"id"`
	Lane        Lane            `json:"lane"`
	Kind        string          `json:"kind"`
	Payload     json.RawMessage `json:"payload"`
	Priority    int             `json:"priority"` // lower runs sooner
	RunAt       time.Time       `json:"run_at"`
	Attempts    int             `json:"attempts"`
	MaxAttempts int             `json:"max_attempts"`
	LastError   string          `json:"last_error,omitempty"`
	Status      string          `json:"status"`
	CreatedAt   time.Time       `json:"created_at"`
}

// SendPayload is the body of a KindSend job.
type SendPayload struct {
	AlertID    string             `json:"alert_id"`
	StepNumber int                `json:"step_number"`
	ContactID  string             `json:"contact_id"`
	Channel    models.ChannelKind `json:"channel"`
	DryRun     bool               `json:"dry_run,omitempty"`
}

// BulkPayload is the body of a KindBulk job. It expands into one KindSend
// job per (contact, channel) pair when consumed.
type BulkPayload struct {
	AlertID    string               `json:"alert_id"`
	ContactIDs []string             `json:"contact_ids"`
	Channels   []models.ChannelKind `json:"channels"`
	Severity   int                  `json:"severity"`
}

// AdvancePayload is the body of a KindAdvance job. ExpectStep guards against
// a double-fired advance incrementing past the intended step.
type AdvancePayload struct {
	AlertID    string `json:"alert_id"`
	ExpectStep int    `json:"expect_step"`
}

// PriorityFor computes a job's queue priority from alert severity and
// channel. Higher severity schedules sooner; within one severity, voice
// beats sms beats whatsapp beats email.
func PriorityFor(severity int, channel models.ChannelKind) int {
	base := (6 - severity) * 10
	if base < 0 {
		base = 0
	}
	switch channel {
	case models.ChannelVoice:
		return base
	case models.ChannelSMS:
		return base + 1
	case models.ChannelWhatsApp:
		return base + 2
	case models.ChannelEmail:
		return base + 3
	}
	return base + 4
}

// DelayFor deprioritizes non-urgent volume without holding back severe
// alerts.
func DelayFor(severity int) time.Duration {
	switch {
	case severity >= 4:
		return 0
	case severity == 3:
		return time.Second
	default:
		return 5 * time.Second
	}
}
