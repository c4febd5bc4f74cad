package db

import (
	"context"
	"fmt"

	"escalation-service/internal/models"
)

// RecordAttempt upserts the delivery attempt row for one
// (alert, step, contact, channel) pair. A retry of the same pair bumps the
// attempt counter and overwrites the outcome on the same logical row, so the
// escalation matrix stays one row per pair with full retry linkage.
func (d *DB) RecordAttempt(ctx context.Context, a *models.DeliveryAttempt) error {
	query := `
	INSERT INTO delivery_attempts (
		id, alert_id, step_number, contact_id, contact_name, channel,
		status, attempt, provider_message_id, error, attempted_at, delivered_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	ON CONFLICT (alert_id, step_number, contact_id, channel) DO UPDATE SET
		status = EXCLUDED.status,
		attempt = delivery_attempts.attempt + 1,
		provider_message_id = EXCLUDED.provider_message_id,
		error = EXCLUDED.error,
		attempted_at = EXCLUDED.attempted_at,
		delivered_at = EXCLUDED.delivered_at`

	_, err := d.Pool.Exec(ctx, query,
		a.ID, a.AlertID, a.StepNumber, a.ContactID, a.ContactName, a.Channel,
		a.Status, a.Attempt, a.ProviderMessageID, a.Error, a.AttemptedAt, a.DeliveredAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record delivery attempt: %w", err)
	}
	return nil
}

// ListAttempts returns the escalation matrix for one alert, ordered by step
// then time.
func (d *DB) ListAttempts(ctx context.Context, alertID string) ([]models.DeliveryAttempt, error) {
	query := `
	SELECT id, alert_id, step_number, contact_id, contact_name, channel,
	       status, attempt, provider_message_id, error, attempted_at, delivered_at
	FROM delivery_attempts
	WHERE alert_id = $1
	ORDER BY step_number, attempted_at`

	rows, err := d.Pool.Query(ctx, query, alertID)
	if err != nil {
		return nil, fmt.Errorf("failed to list attempts for alert %s: %w", alertID, err)
	}
	defer rows.Close()

	var attempts []models.DeliveryAttempt
	for rows.Next() {
		var a models.DeliveryAttempt
		err := rows.Scan(
			&a.ID, &a.AlertID, &a.StepNumber, &a.ContactID, &a.ContactName, &a.Channel,
			&a.Status, &a.Attempt, &a.ProviderMessageID, &a.Error, &a.AttemptedAt, &a.DeliveredAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan delivery attempt: %w", err)
		}
		attempts = append(attempts, a)
	}
	return attempts, nil
}
