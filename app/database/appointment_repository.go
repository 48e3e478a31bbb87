package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lysyi3m/slot-comb/app/slots"
)

var _ AppointmentRepository = (*appointmentRepository)(nil)

const appointmentColumns = `id, office, appointment_date, appointment_time, category,
	is_current_closest, available, first_seen_at, last_seen_at, last_checked_at,
	replaced_at, replaced_by_date, booking_reference`

type appointmentRepository struct {
	db *DB
}

// NewAppointmentRepository creates a new appointment repository
func NewAppointmentRepository(db *DB) AppointmentRepository {
	return &appointmentRepository{db: db}
}

// FindGolden returns the golden record for an exact (office, date, time), or nil
func (r *appointmentRepository) FindGolden(ctx context.Context, office string, date time.Time, timeOfDay string) (*Appointment, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE office = ? AND appointment_date = ? AND appointment_time = ? AND category = ?
	`, office, date.Format(slots.DateLayout), timeOfDay, string(slots.CategoryGolden))

	appointment, err := scanAppointment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find golden appointment: %w", err)
	}
	return appointment, nil
}

// FindCurrentClosestFuture returns the office's current-closest future record, or nil
func (r *appointmentRepository) FindCurrentClosestFuture(ctx context.Context, office string) (*Appointment, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE office = ? AND category = ? AND is_current_closest = 1
	`, office, string(slots.CategoryFuture))

	appointment, err := scanAppointment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find current closest future appointment: %w", err)
	}
	return appointment, nil
}

// ListAvailableGolden returns golden records of an office still marked available
func (r *appointmentRepository) ListAvailableGolden(ctx context.Context, office string) ([]Appointment, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE office = ? AND category = ? AND available = 1
		ORDER BY appointment_date, appointment_time
	`, office, string(slots.CategoryGolden))
	if err != nil {
		return nil, fmt.Errorf("failed to list available golden appointments: %w", err)
	}
	return collectAppointments(rows)
}

// ListCurrent returns every available golden record and every current-closest
// future record across offices
func (r *appointmentRepository) ListCurrent(ctx context.Context) ([]Appointment, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE (category = ? AND available = 1)
		   OR (category = ? AND is_current_closest = 1)
		ORDER BY office, category, appointment_date, appointment_time
	`, string(slots.CategoryGolden), string(slots.CategoryFuture))
	if err != nil {
		return nil, fmt.Errorf("failed to list current appointments: %w", err)
	}
	return collectAppointments(rows)
}

// Insert stores a new record unless a uniqueness constraint already covers it
func (r *appointmentRepository) Insert(ctx context.Context, a *Appointment) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}

	var appointmentTime sql.NullString
	if a.AppointmentTime != nil {
		appointmentTime = sql.NullString{String: *a.AppointmentTime, Valid: true}
	}

	var replacedByDate sql.NullString
	if a.ReplacedByDate != nil {
		replacedByDate = sql.NullString{String: a.ReplacedByDate.Format(slots.DateLayout), Valid: true}
	}

	result, err := r.db.ExecContext(ctx, `
		INSERT INTO appointments (`+appointmentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`, a.ID, a.Office, a.AppointmentDate.Format(slots.DateLayout), appointmentTime, string(a.Category),
		a.IsCurrentClosest, a.Available, formatTimestamp(a.FirstSeenAt), formatTimestamp(a.LastSeenAt),
		nullTimestamp(a.LastCheckedAt), nullTimestamp(a.ReplacedAt), replacedByDate, a.BookingReference)
	if err != nil {
		return fmt.Errorf("failed to insert appointment: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read insert result: %w", err)
	}
	if affected == 0 {
		return ErrAlreadyExists
	}

	return nil
}

// Update writes the non-nil fields of update to one record
func (r *appointmentRepository) Update(ctx context.Context, id string, update AppointmentUpdate) error {
	if update.IsEmpty() {
		return nil
	}

	var sets []string
	var args []interface{}

	if update.Available != nil {
		sets = append(sets, "available = ?")
		args = append(args, *update.Available)
	}
	if update.IsCurrentClosest != nil {
		sets = append(sets, "is_current_closest = ?")
		args = append(args, *update.IsCurrentClosest)
	}
	if update.LastSeenAt != nil {
		sets = append(sets, "last_seen_at = ?")
		args = append(args, formatTimestamp(*update.LastSeenAt))
	}
	if update.ReplacedAt != nil {
		sets = append(sets, "replaced_at = ?")
		args = append(args, formatTimestamp(*update.ReplacedAt))
	}
	if update.ReplacedByDate != nil {
		sets = append(sets, "replaced_by_date = ?")
		args = append(args, update.ReplacedByDate.Format(slots.DateLayout))
	}
	args = append(args, id)

	result, err := r.db.ExecContext(ctx,
		"UPDATE appointments SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...)
	if err != nil {
		return fmt.Errorf("failed to update appointment %s: %w", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read update result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("appointment %s: %w", id, ErrNotFound)
	}

	return nil
}

// MarkOfficeChecked stamps last_checked_at on every record of an office
func (r *appointmentRepository) MarkOfficeChecked(ctx context.Context, office string, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		"UPDATE appointments SET last_checked_at = ? WHERE office = ?",
		formatTimestamp(at), office)
	if err != nil {
		return fmt.Errorf("failed to mark office checked: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAppointment(row rowScanner) (*Appointment, error) {
	var a Appointment
	var date, category, firstSeen, lastSeen string
	var appointmentTime, lastChecked, replacedAt, replacedByDate sql.NullString

	err := row.Scan(
		&a.ID, &a.Office, &date, &appointmentTime, &category,
		&a.IsCurrentClosest, &a.Available, &firstSeen, &lastSeen, &lastChecked,
		&replacedAt, &replacedByDate, &a.BookingReference,
	)
	if err != nil {
		return nil, err
	}

	a.Category = slots.Category(category)
	if appointmentTime.Valid {
		t := appointmentTime.String
		a.AppointmentTime = &t
	}

	if a.AppointmentDate, err = slots.ParseDate(date); err != nil {
		return nil, fmt.Errorf("invalid appointment date '%s': %w", date, err)
	}
	if a.FirstSeenAt, err = parseTimestamp(firstSeen); err != nil {
		return nil, err
	}
	if a.LastSeenAt, err = parseTimestamp(lastSeen); err != nil {
		return nil, err
	}
	if a.LastCheckedAt, err = parseNullTimestamp(lastChecked); err != nil {
		return nil, err
	}
	if a.ReplacedAt, err = parseNullTimestamp(replacedAt); err != nil {
		return nil, err
	}
	if replacedByDate.Valid {
		d, err := slots.ParseDate(replacedByDate.String)
		if err != nil {
			return nil, fmt.Errorf("invalid replaced_by_date '%s': %w", replacedByDate.String, err)
		}
		a.ReplacedByDate = &d
	}

	return &a, nil
}

func collectAppointments(rows *sql.Rows) ([]Appointment, error) {
	defer rows.Close()

	var appointments []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan appointment row: %w", err)
		}
		appointments = append(appointments, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating appointment rows: %w", err)
	}

	return appointments, nil
}
