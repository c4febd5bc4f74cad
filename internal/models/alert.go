package models

import "time"

// Alert is one escalation campaign for one hazard-affected subject
// (a vessel or a coastal region). Rows are never deleted; the escalation
// state machine is the only writer of the step/ack fields.
type Alert struct {
	ID                 string      `json:"id"`
	Type               string      `json:"type"` // "earthquake" or "tsunami"
	Severity           int         `json:"severity"`
	SubjectID          string      `json:"subject_id"`
	PolicyID           string      `json:"policy_id"`
	EscalationStarted  bool        `json:"escalation_started"`
	EscalationStep     int         `json:"escalation_step"` // 0 = not started
	LastEscalationAt   *time.Time  `json:"last_escalation_at,omitempty"`
	Acknowledged       bool        `json:"acknowledged"`
	AcknowledgedAt     *time.Time  `json:"acknowledged_at,omitempty"`
	EscalationComplete bool        `json:"escalation_complete"`
	CreatedAt          time.Time   `json:"created_at"`
	Event              HazardEvent `json:"event"`
}

// HazardEvent carries the detection payload that triggered an Alert.
// It doubles as the template data bag for message rendering.
type HazardEvent struct {
	EventID    string    `json:"event_id"`
	Type       string    `json:"type"`
	Severity   int       `json:"severity"`
	Magnitude  float64   `json:"magnitude,omitempty"`
	DepthKM    float64   `json:"depth_km,omitempty"`
	Latitude   float64   `json:"latitude,omitempty"`
	Longitude  float64   `json:"longitude,omitempty"`
	Region     string    `json:"region,omitempty"`
	SubjectID  string    `json:"subject_id"`
	OccurredAt time.Time `json:"occurred_at"`
}
