package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"escalation-service/internal/models"
)

const contactColumns = `id, name, role, subject_id, phone, email, whatsapp, active, notification_channels, created_at`

// GetContactsBySubject returns every contact attached to a subject (vessel
// or region), active or not; the step executor applies the active filter.
func (d *DB) GetContactsBySubject(ctx context.Context, subjectID string) ([]models.Contact, error) {
	query := `SELECT ` + contactColumns + ` FROM contacts WHERE subject_id = $1 ORDER BY name`

	rows, err := d.Pool.Query(ctx, query, subjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to get contacts for subject %s: %w", subjectID, err)
	}
	defer rows.Close()

	var contacts []models.Contact
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan contact: %w", err)
		}
		contacts = append(contacts, *c)
	}
	return contacts, nil
}

// GetContact fetches one contact by id.
func (d *DB) GetContact(ctx context.Context, id string) (*models.Contact, error) {
	query := `SELECT ` + contactColumns + ` FROM contacts WHERE id = $1`
	row := d.Pool.QueryRow(ctx, query, id)
	c, err := scanContact(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, fmt.Errorf("contact %s not found", id)
		}
		return nil, fmt.Errorf("failed to get contact %s: %w", id, err)
	}
	return c, nil
}

// CreateContact inserts a contact row.
func (d *DB) CreateContact(ctx context.Context, c models.Contact) error {
	query := `
	INSERT INTO contacts (` + contactColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	channels := make([]string, 0, len(c.NotificationChannels))
	for _, k := range c.NotificationChannels {
		channels = append(channels, string(k))
	}
	_, err := d.Pool.Exec(ctx, query,
		c.ID, c.Name, c.Role, c.SubjectID,
		c.Phone, c.Email, c.WhatsApp, c.Active,
		channels, c.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create contact: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanContact(row rowScanner) (*models.Contact, error) {
	var c models.Contact
	var channels []string
	err := row.Scan(
		&c.ID, &c.Name, &c.Role, &c.SubjectID,
		&c.Phone, &c.Email, &c.WhatsApp, &c.Active,
		&channels, &c.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	for _, s := range channels {
		k := models.ChannelKind(s)
		if k.Valid() {
			c.NotificationChannels = append(c.NotificationChannels, k)
		}
	}
	return &c, nil
}
