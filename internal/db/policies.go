package db

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"escalation-service/internal/models"
)

// GetPolicy loads an active escalation policy and validates its steps.
// Malformed step JSON is rejected here so the escalation logic never sees
// untyped maps.
func (d *DB) GetPolicy(ctx context.Context, id string) (*models.EscalationPolicy, error) {
	query := `
	SELECT id, name, status, steps
	FROM escalation_policies
	WHERE id = $1 AND status = 'active'`

	var p models.EscalationPolicy
	var rawSteps []byte
	err := d.Pool.QueryRow(ctx, query, id).Scan(&p.ID, &p.Name, &p.Status, &rawSteps)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, fmt.Errorf("policy %s not found or inactive", id)
		}
		return nil, fmt.Errorf("failed to get policy %s: %w", id, err)
	}

	if err := json.Unmarshal(rawSteps, &p.Steps); err != nil {
		return nil, fmt.Errorf("policy %s has malformed steps: %w", id, err)
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("policy %s failed validation: %w", id, err)
	}
	return &p, nil
}

// CreatePolicy inserts a validated policy, steps stored as JSONB.
func (d *DB) CreatePolicy(ctx context.Context, p models.EscalationPolicy) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("refusing to store invalid policy: %w", err)
	}
	steps, err := json.Marshal(p.Steps)
	if err != nil {
		return fmt.Errorf("failed to encode policy steps: %w", err)
	}

	query := `
	INSERT INTO escalation_policies (id, name, status, steps, created_at)
	VALUES ($1, $2, $3, $4, NOW())`

	if _, err := d.Pool.Exec(ctx, query, p.ID, p.Name, p.Status, steps); err != nil {
		return fmt.Errorf("failed to create policy: %w", err)
	}
	return nil
}
