package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"escalation-service/internal/models"
)

// CreateAlert inserts a new alert row with its triggering hazard event.
func (d *DB) CreateAlert(ctx context.Context, alert models.Alert) error {
	query := `
    INSERT INTO alerts (
        id, type, severity, subject_id, policy_id,
        escalation_started, escalation_step, acknowledged, escalation_complete, created_at,
        event_id, magnitude, depth_km, latitude, longitude, region, occurred_at
    ) VALUES (
        $1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
        $11, $12, $13, $14, $15, $16, $17
    )`

	_, err := d.Pool.Exec(ctx, query,
		alert.ID,
		alert.Type,
		alert.Severity,
		alert.SubjectID,
		alert.PolicyID,
		alert.EscalationStarted,
		alert.EscalationStep,
		alert.Acknowledged,
		alert.EscalationComplete,
		alert.CreatedAt,
		alert.Event.EventID,
		alert.Event.Magnitude,
		alert.Event.DepthKM,
		alert.Event.Latitude,
		alert.Event.Longitude,
		alert.Event.Region,
		alert.Event.OccurredAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert alert: %w", err)
	}
	return nil
}

// GetAlert fetches one alert by id.
func (d *DB) GetAlert(ctx context.Context, id string) (*models.Alert, error) {
	query := `
	SELECT
		id, type, severity, subject_id, policy_id,
		escalation_started, escalation_step, last_escalation_at,
		acknowledged, acknowledged_at, escalation_complete, created_at,
		event_id, magnitude, depth_km, latitude, longitude, region, occurred_at
	FROM alerts
	WHERE id = $1`

	var a models.Alert
	err := d.Pool.QueryRow(ctx, query, id).Scan(
		&a.ID,
		&a.Type,
		&a.Severity,
		&a.SubjectID,
		&a.PolicyID,
		&a.EscalationStarted,
		&a.EscalationStep,
		&a.LastEscalationAt,
		&a.Acknowledged,
		&a.AcknowledgedAt,
		&a.EscalationComplete,
		&a.CreatedAt,
		&a.Event.EventID,
		&a.Event.Magnitude,
		&a.Event.DepthKM,
		&a.Event.Latitude,
		&a.Event.Longitude,
		&a.Event.Region,
		&a.Event.OccurredAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, fmt.Errorf("alert %s not found", id)
		}
		return nil, fmt.Errorf("failed to get alert %s: %w", id, err)
	}
	a.Event.Type = a.Type
	a.Event.Severity = a.Severity
	a.Event.SubjectID = a.SubjectID
	return &a, nil
}

// StartEscalation conditionally flips the alert into step 1. Returns false
// when the alert was already started or acknowledged.
func (d *DB) StartEscalation(ctx context.Context, id string, now time.Time) (bool, error) {
	query := `
	UPDATE alerts
	SET escalation_started = true, escalation_step = 1, last_escalation_at = $2
	WHERE id = $1 AND escalation_started = false AND acknowledged = false`

	tag, err := d.Pool.Exec(ctx, query, id, now)
	if err != nil {
		return false, fmt.Errorf("failed to start escalation for alert %s: %w", id, err)
	}
	return tag.RowsAffected() > 0, nil
}

// AdvanceEscalation moves the step counter from fromStep to toStep only if the row
// still holds fromStep and is neither acknowledged nor complete.
func (d *DB) AdvanceEscalation(ctx context.Context, id string, fromStep, toStep int, now time.Time) (bool, error) {
	query := `
	UPDATE alerts
	SET escalation_step = $3, last_escalation_at = $4
	WHERE id = $1 AND escalation_step = $2
	  AND acknowledged = false AND escalation_complete = false`

	tag, err := d.Pool.Exec(ctx, query, id, fromStep, toStep, now)
	if err != nil {
		return false, fmt.Errorf("failed to advance escalation for alert %s: %w", id, err)
	}
	return tag.RowsAffected() > 0, nil
}

// MarkEscalationComplete ends the escalation (terminal).
func (d *DB) MarkEscalationComplete(ctx context.Context, id string) error {
	_, err := d.Pool.Exec(ctx, `UPDATE alerts SET escalation_complete = true WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to complete escalation for alert %s: %w", id, err)
	}
	return nil
}

// Acknowledge flips the acknowledged flag once. Returns false when the alert
// was already acknowledged.
func (d *DB) Acknowledge(ctx context.Context, id string, now time.Time) (bool, error) {
	query := `
	UPDATE alerts
	SET acknowledged = true, acknowledged_at = $2
	WHERE id = $1 AND acknowledged = false`

	tag, err := d.Pool.Exec(ctx, query, id, now)
	if err != nil {
		return false, fmt.Errorf("failed to acknowledge alert %s: %w", id, err)
	}
	return tag.RowsAffected() > 0, nil
}
