package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var _ SubscriberRepository = (*subscriberRepository)(nil)

type subscriberRepository struct {
	db  *DB
	now func() time.Time
}

func NewSubscriberRepository(db *DB) SubscriberRepository {
	return &subscriberRepository{db: db, now: time.Now}
}

// ListActiveSubscribers returns emails of active subscribers whose office
// filter is empty or includes office.
func (r *subscriberRepository) ListActiveSubscribers(ctx context.Context, office string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, email, offices, active, created_at, updated_at
		FROM email_subscribers
		WHERE active = 1
		ORDER BY created_at, email
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscribers: %w", err)
	}
	defer rows.Close()

	var emails []string
	for rows.Next() {
		s, err := scanSubscriber(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan subscriber row: %w", err)
		}
		if s.WantsOffice(office) {
			emails = append(emails, s.Email)
		}
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating subscriber rows: %w", err)
	}

	return emails, nil
}

// UpsertSubscriber registers an email, or re-activates it and replaces its
// office filter.
func (r *subscriberRepository) UpsertSubscriber(ctx context.Context, email string, offices []string) (*Subscriber, error) {
	if offices == nil {
		offices = []string{}
	}
	encoded, err := json.Marshal(offices)
	if err != nil {
		return nil, fmt.Errorf("failed to encode office filter: %w", err)
	}

	now := formatTimestamp(r.now())
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO email_subscribers (id, email, offices, active, created_at, updated_at)
		VALUES (?, ?, ?, 1, ?, ?)
		ON CONFLICT (email) DO UPDATE SET
			offices = excluded.offices,
			active = 1,
			updated_at = excluded.updated_at
	`, uuid.NewString(), email, string(encoded), now, now)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert subscriber: %w", err)
	}

	return r.GetSubscriber(ctx, email)
}

func (r *subscriberRepository) DeactivateSubscriber(ctx context.Context, email string) error {
	result, err := r.db.ExecContext(ctx,
		"UPDATE email_subscribers SET active = 0, updated_at = ? WHERE email = ?",
		formatTimestamp(r.now()), email)
	if err != nil {
		return fmt.Errorf("failed to deactivate subscriber: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read deactivate result: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *subscriberRepository) GetSubscriber(ctx context.Context, email string) (*Subscriber, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, email, offices, active, created_at, updated_at
		FROM email_subscribers
		WHERE email = ?
	`, email)

	s, err := scanSubscriber(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get subscriber: %w", err)
	}
	return s, nil
}

func scanSubscriber(row rowScanner) (*Subscriber, error) {
	var s Subscriber
	var offices, createdAt, updatedAt string

	if err := row.Scan(&s.ID, &s.Email, &offices, &s.Active, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(offices), &s.Offices); err != nil {
		return nil, fmt.Errorf("invalid office filter for %s: %w", s.Email, err)
	}

	var err error
	if s.CreatedAt, err = parseTimestamp(createdAt); err != nil {
		return nil, err
	}
	if s.UpdatedAt, err = parseTimestamp(updatedAt); err != nil {
		return nil, err
	}

	return &s, nil
}
