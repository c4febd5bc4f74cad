package models

import "time"

// Delivery attempt statuses.
const (
	AttemptDryRun  = "dry_run"
	AttemptPending = "pending"
	AttemptSent    = "sent"
	AttemptFailed  = "failed"
)

// DeliveryAttempt is the audit row for one (alert, step, contact, channel)
// send. Rows are append-only per pair; a queue retry of the same pair bumps
// Attempt and overwrites status on the same logical row.
type DeliveryAttempt struct {
	ID                string      `json:"id"`
	AlertID           string      `json:"alert_id"`
	StepNumber        int         `json:"step_number"`
	ContactID         string      `json:"contact_id"`
	ContactName       string      `json:"contact_name"`
	Channel           ChannelKind `json:"channel"`
	Status            string      `json:"status"`
	Attempt           int         `json:"attempt"`
	ProviderMessageID string      `json:"provider_message_id,omitempty"`
	Error             string      `json:"error,omitempty"`
	AttemptedAt       time.Time   `json:"attempted_at"`
	DeliveredAt       *time.Time  `json:"delivered_at,omitempty"`
}
