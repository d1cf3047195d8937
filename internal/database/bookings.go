package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"restobook/internal/models"
)

const bookingColumns = `id, guest_id, table_number, start_time, end_time, status, persons, notes, correlation_id, created_at, expires_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func (db *DB) scanBooking(row rowScanner) (*models.Booking, error) {
	var (
		b       models.Booking
		expires sql.NullTime
	)
	err := row.Scan(
		&b.ID,
		&b.GuestID,
		&b.TableNumber,
		&b.StartTime,
		&b.EndTime,
		&b.Status,
		&b.Persons,
		&b.Notes,
		&b.CorrelationID,
		&b.CreatedAt,
		&expires,
	)
	if err != nil {
		return nil, err
	}
	b.StartTime = db.local(b.StartTime)
	b.EndTime = db.local(b.EndTime)
	b.CreatedAt = db.local(b.CreatedAt)
	if expires.Valid {
		e := db.local(expires.Time)
		b.ExpiresAt = &e
	}
	return &b, nil
}

func (db *DB) queryBookings(ctx context.Context, query string, args ...any) ([]*models.Booking, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bookings []*models.Booking
	for rows.Next() {
		b, err := db.scanBooking(rows)
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, b)
	}
	return bookings, rows.Err()
}

// SaveBooking inserts a booking and fills in its id.
func (db *DB) SaveBooking(ctx context.Context, booking *models.Booking) error {
	query := `INSERT INTO bookings (
				guest_id, table_number, start_time, end_time, status, persons,
				notes, correlation_id, created_at, expires_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	now := time.Now()
	var expires any
	if booking.ExpiresAt != nil {
		expires = utc(*booking.ExpiresAt)
	}
	status := booking.Status
	if status == "" {
		status = models.StatusPending
	}

	result, err := db.ExecContext(ctx, query,
		booking.GuestID,
		booking.TableNumber,
		utc(booking.StartTime),
		utc(booking.EndTime),
		status,
		booking.Persons,
		booking.Notes,
		booking.CorrelationID,
		utc(now),
		expires,
	)
	if err != nil {
		return fmt.Errorf("failed to create booking: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	booking.ID = id
	booking.Status = status
	booking.CreatedAt = now
	return nil
}

func (db *DB) GetBooking(ctx context.Context, id int64) (*models.Booking, error) {
	row := db.QueryRowContext(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = ?`, id)
	b, err := db.scanBooking(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get booking %d: %w", id, err)
	}
	return b, nil
}

// ConfirmBooking turns a live pending hold into a confirmed booking.
// A hold that has run out is reported as ErrExpired and left for the sweeper.
func (db *DB) ConfirmBooking(ctx context.Context, id int64, now time.Time) error {
	query := `UPDATE bookings SET status = ?, expires_at = NULL
			WHERE id = ? AND (status = ? OR expires_at IS NULL OR expires_at > ?)`
	result, err := db.ExecContext(ctx, query, models.StatusConfirmed, id, models.StatusConfirmed, utc(now))
	if err != nil {
		return fmt.Errorf("failed to confirm booking %d: %w", id, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to confirm booking %d: %w", id, err)
	}
	if n > 0 {
		return nil
	}

	if _, err := db.GetBooking(ctx, id); err != nil {
		return err
	}
	return ErrExpired
}

// DeleteBookings removes bookings by id and reports how many were removed.
func (db *DB) DeleteBookings(ctx context.Context, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	result, err := db.ExecContext(ctx, `DELETE FROM bookings WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete bookings: %w", err)
	}
	return result.RowsAffected()
}

// ListBookings returns every booking ordered by start.
func (db *DB) ListBookings(ctx context.Context) ([]*models.Booking, error) {
	bookings, err := db.queryBookings(ctx, `SELECT `+bookingColumns+` FROM bookings ORDER BY start_time, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list bookings: %w", err)
	}
	return bookings, nil
}

// ListBookingsBetween returns bookings that start in [from, to).
func (db *DB) ListBookingsBetween(ctx context.Context, from, to time.Time) ([]*models.Booking, error) {
	bookings, err := db.queryBookings(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE start_time >= ? AND start_time < ? ORDER BY start_time, table_number`,
		utc(from), utc(to))
	if err != nil {
		return nil, fmt.Errorf("failed to list bookings by date range: %w", err)
	}
	return bookings, nil
}

// ListPendingByCorrelation returns the pending holds offered for one request.
func (db *DB) ListPendingByCorrelation(ctx context.Context, correlationID string) ([]*models.Booking, error) {
	bookings, err := db.queryBookings(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE correlation_id = ? AND status = ? ORDER BY id`,
		correlationID, models.StatusPending)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending bookings: %w", err)
	}
	return bookings, nil
}

// DeleteExpiredPending removes pending holds that expired at or before now and returns them.
func (db *DB) DeleteExpiredPending(ctx context.Context, now time.Time) ([]*models.Booking, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	rows, err := tx.QueryContext(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE status = ? AND expires_at IS NOT NULL AND expires_at <= ? ORDER BY id`,
		models.StatusPending, utc(now))
	if err != nil {
		return nil, fmt.Errorf("failed to select expired bookings: %w", err)
	}
	var expired []*models.Booking
	for rows.Next() {
		b, err := db.scanBooking(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan expired booking: %w", err)
		}
		expired = append(expired, b)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to select expired bookings: %w", err)
	}

	if len(expired) > 0 {
		_, err = tx.ExecContext(ctx,
			`DELETE FROM bookings WHERE status = ? AND expires_at IS NOT NULL AND expires_at <= ?`,
			models.StatusPending, utc(now))
		if err != nil {
			return nil, fmt.Errorf("failed to delete expired bookings: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	if len(expired) > 0 {
		db.logger.Debug().Int("count", len(expired)).Msg("Expired pending bookings removed")
	}
	return expired, nil
}

// DeleteFinishedBefore removes bookings that ended before the cutoff.
func (db *DB) DeleteFinishedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := db.ExecContext(ctx, `DELETE FROM bookings WHERE end_time < ?`, utc(cutoff))
	if err != nil {
		return 0, fmt.Errorf("failed to delete finished bookings: %w", err)
	}
	return result.RowsAffected()
}
