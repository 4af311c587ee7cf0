package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"skolar/internal/models"

	"github.com/google/uuid"
)

const pendingColumns = `id, tutor_id, tutor_name, user_id, subject, scheduled_at, notes, idempotency_key, created_at`

// InsertPendingBooking queues a booking and returns its fresh local id.
func (db *DB) InsertPendingBooking(ctx context.Context, booking models.NewBooking) (int64, error) {
	return db.InsertPendingBookingWithKey(ctx, booking, "")
}

// InsertPendingBookingWithKey queues a booking under a caller-chosen
// idempotency key, so an earlier online attempt and later sync passes share
// it. An empty key gets a fresh one.
func (db *DB) InsertPendingBookingWithKey(ctx context.Context, booking models.NewBooking, key string) (int64, error) {
	if err := booking.Validate(); err != nil {
		return 0, err
	}
	b := booking.Normalized()

	query := `INSERT INTO pending_bookings (
				tutor_id, tutor_name, user_id, subject, scheduled_at, notes, idempotency_key, created_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	db.writeMu.Lock()
	defer db.writeMu.Unlock()

	if key == "" {
		key = uuid.NewString()
	}
	result, err := db.ExecContext(ctx, query,
		b.TutorID,
		nullString(b.TutorName),
		b.UserID,
		b.Subject,
		b.ScheduledAt.Unix(),
		nullString(b.Notes),
		key,
		time.Now().Unix(),
	)
	if err != nil {
		return 0, fmt.Errorf("%w: insert pending booking: %w", ErrStorage, err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("%w: get last insert id: %w", ErrStorage, err)
	}

	db.logger.Debug().
		Int64("local_id", id).
		Str("tutor_id", b.TutorID).
		Str("user_id", b.UserID).
		Msg("Pending booking inserted")
	return id, nil
}

// ListPendingBookings returns a snapshot of the queue, oldest first.
func (db *DB) ListPendingBookings(ctx context.Context) ([]models.PendingBooking, error) {
	query := `SELECT ` + pendingColumns + ` FROM pending_bookings ORDER BY id ASC`

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: list pending bookings: %w", ErrStorage, err)
	}
	defer rows.Close()

	bookings := make([]models.PendingBooking, 0)
	for rows.Next() {
		b, err := scanPending(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scan pending booking: %w", ErrStorage, err)
		}
		bookings = append(bookings, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate pending bookings: %w", ErrStorage, err)
	}

	db.logger.Debug().Int("count", len(bookings)).Msg("Pending bookings listed")
	return bookings, nil
}

// GetPendingBooking returns one queued booking by local id.
func (db *DB) GetPendingBooking(ctx context.Context, localID int64) (*models.PendingBooking, error) {
	query := `SELECT ` + pendingColumns + ` FROM pending_bookings WHERE id = ?`

	b, err := scanPending(db.QueryRowContext(ctx, query, localID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPendingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get pending booking %d: %w", ErrStorage, localID, err)
	}
	return &b, nil
}

// DeletePendingBooking removes a queued booking. Deleting an id that is
// already gone is not an error.
func (db *DB) DeletePendingBooking(ctx context.Context, localID int64) error {
	db.writeMu.Lock()
	defer db.writeMu.Unlock()

	result, err := db.ExecContext(ctx, `DELETE FROM pending_bookings WHERE id = ?`, localID)
	if err != nil {
		return fmt.Errorf("%w: delete pending booking %d: %w", ErrStorage, localID, err)
	}

	if n, err := result.RowsAffected(); err == nil && n == 0 {
		db.logger.Debug().Int64("local_id", localID).Msg("Pending booking already absent")
		return nil
	}

	db.logger.Debug().Int64("local_id", localID).Msg("Pending booking deleted")
	return nil
}

// CountPendingBookings returns the number of queued bookings.
func (db *DB) CountPendingBookings(ctx context.Context) (int, error) {
	var count int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM pending_bookings`).Scan(&count); err != nil {
		return 0, fmt.Errorf("%w: count pending bookings: %w", ErrStorage, err)
	}
	return count, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPending(row rowScanner) (models.PendingBooking, error) {
	var (
		b           models.PendingBooking
		tutorName   sql.NullString
		notes       sql.NullString
		scheduledAt int64
		createdAt   int64
	)
	err := row.Scan(
		&b.LocalID,
		&b.TutorID,
		&tutorName,
		&b.UserID,
		&b.Subject,
		&scheduledAt,
		&notes,
		&b.IdempotencyKey,
		&createdAt,
	)
	if err != nil {
		return models.PendingBooking{}, err
	}

	if tutorName.Valid {
		b.TutorName = &tutorName.String
	}
	if notes.Valid {
		b.Notes = &notes.String
	}
	b.ScheduledAt = time.Unix(scheduledAt, 0).UTC()
	b.CreatedAt = time.Unix(createdAt, 0).UTC()
	return b, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
