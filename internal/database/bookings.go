package database

import (
	"context"
	"crypto/subtle"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"konsult/internal/models"

	"github.com/google/uuid"
	sqlite3 "github.com/mattn/go-sqlite3"
)

// GetBookedSlots returns every claimed increment for a consultant.
func (db *DB) GetBookedSlots(ctx context.Context, consultantID int64) ([]models.SlotRef, error) {
	query := `SELECT slot_date, slot_time FROM slot_claims
              WHERE consultant_id = ? ORDER BY slot_date ASC, slot_time ASC`
	rows, err := db.QueryContext(ctx, query, consultantID)
	if err != nil {
		return nil, fmt.Errorf("failed to get booked slots: %w", err)
	}
	defer rows.Close()

	var refs []models.SlotRef
	for rows.Next() {
		var ref models.SlotRef
		if err := rows.Scan(&ref.Date, &ref.Time); err != nil {
			return nil, fmt.Errorf("failed to scan booked slot: %w", err)
		}
		refs = append(refs, ref)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate booked slots: %w", err)
	}
	return refs, nil
}

// GetBookedSlotMap returns the claimed "15:04" times for one date.
func (db *DB) GetBookedSlotMap(ctx context.Context, consultantID int64, date string) (map[string]bool, error) {
	query := `SELECT slot_time FROM slot_claims WHERE consultant_id = ? AND slot_date = ?`
	rows, err := db.QueryContext(ctx, query, consultantID, date)
	if err != nil {
		return nil, fmt.Errorf("failed to get booked slot map: %w", err)
	}
	defer rows.Close()

	booked := make(map[string]bool)
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("failed to scan slot time: %w", err)
		}
		booked[t] = true
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate slot times: %w", err)
	}
	return booked, nil
}

// CreateBookingWithClaim writes the booking and claims its whole run in one
// transaction. The UNIQUE(consultant_id, slot_date, slot_time) index on
// slot_claims is the authoritative check; any advisory availability check
// done earlier during rendering does not count. A failed commit leaves no
// partial claim.
func (db *DB) CreateBookingWithClaim(ctx context.Context, booking *models.Booking, run []models.SlotRef) error {
	if len(run) == 0 {
		return errors.New("claim run is empty")
	}
	if booking.ID == "" {
		booking.ID = uuid.NewString()
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	now := time.Now()
	queryInsert := `INSERT INTO bookings (
				id, purchase_id, consultant_id, appointment_start, appointment_end,
				slot_date, slot_time, duration_minutes, status, reschedule_count,
				created_at, updated_at, version
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	if _, err := tx.ExecContext(ctx, queryInsert,
		booking.ID,
		booking.PurchaseID,
		booking.ConsultantID,
		booking.AppointmentStart,
		booking.AppointmentEnd,
		booking.SlotDate,
		booking.SlotTime,
		booking.DurationMinutes,
		models.StatusConfirmed,
		0,
		now,
		now,
		1,
	); err != nil {
		return fmt.Errorf("failed to insert booking in tx: %w", err)
	}

	// Claims reference the booking row, so the booking goes in first; the
	// whole transaction still stands or falls with the claim inserts.
	if err := claimRun(ctx, tx, booking.ConsultantID, booking.ID, run); err != nil {
		return err
	}

	result, err := tx.ExecContext(ctx,
		`UPDATE purchases SET booking_id = ? WHERE id = ? AND booking_id IS NULL`,
		booking.ID, booking.PurchaseID)
	if err != nil {
		return fmt.Errorf("failed to link booking to purchase: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		// Either the purchase is unknown or it already carries a booking.
		var existing sql.NullString
		err := tx.QueryRowContext(ctx, `SELECT booking_id FROM purchases WHERE id = ?`, booking.PurchaseID).Scan(&existing)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrPurchaseNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to check purchase link: %w", err)
		}
		return ErrConcurrentModification
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit booking: %w", err)
	}

	booking.Status = models.StatusConfirmed
	booking.RescheduleCount = 0
	booking.CreatedAt = now
	booking.UpdatedAt = now
	booking.Version = 1
	return nil
}

// RescheduleBooking moves the booking to a new run. The conditional UPDATE
// on reschedule_count is the exactly-once guard, and the claim swap happens
// in the same transaction so the booking is never observable as
// claimed-but-not-updated or the reverse.
func (db *DB) RescheduleBooking(
	ctx context.Context,
	bookingID string,
	newStart, newEnd time.Time,
	newDate, newTime string,
	newRun []models.SlotRef,
) (*models.Booking, error) {
	if len(newRun) == 0 {
		return nil, errors.New("claim run is empty")
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var consultantID int64
	var rescheduleCount int
	err = tx.QueryRowContext(ctx,
		`SELECT consultant_id, reschedule_count FROM bookings WHERE id = ?`, bookingID).
		Scan(&consultantID, &rescheduleCount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrBookingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load booking: %w", err)
	}
	if rescheduleCount >= models.MaxRescheduleCount {
		return nil, ErrAlreadyRescheduled
	}

	result, err := tx.ExecContext(ctx,
		`UPDATE bookings SET appointment_start = ?, appointment_end = ?, slot_date = ?, slot_time = ?,
                status = ?, reschedule_count = reschedule_count + 1, version = version + 1, updated_at = ?
         WHERE id = ? AND reschedule_count < ?`,
		newStart, newEnd, newDate, newTime,
		models.StatusRescheduled, time.Now(), bookingID, models.MaxRescheduleCount)
	if err != nil {
		return nil, fmt.Errorf("failed to update booking: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return nil, ErrAlreadyRescheduled
	}

	// Release the booking's own prior claim before claiming the new run, so
	// moving within the same day never conflicts with itself.
	if _, err := tx.ExecContext(ctx, `DELETE FROM slot_claims WHERE booking_id = ?`, bookingID); err != nil {
		return nil, fmt.Errorf("failed to release old claims: %w", err)
	}

	if err := claimRun(ctx, tx, consultantID, bookingID, newRun); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit reschedule: %w", err)
	}

	return db.GetBooking(ctx, bookingID)
}

func claimRun(ctx context.Context, tx *sql.Tx, consultantID int64, bookingID string, run []models.SlotRef) error {
	insert := `INSERT INTO slot_claims (consultant_id, slot_date, slot_time, booking_id) VALUES (?, ?, ?, ?)`
	for _, ref := range run {
		if _, err := tx.ExecContext(ctx, insert, consultantID, ref.Date, ref.Time, bookingID); err != nil {
			var sqliteErr sqlite3.Error
			if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
				return &SlotConflictError{Slot: ref}
			}
			return fmt.Errorf("failed to claim slot %s %s: %w", ref.Date, ref.Time, err)
		}
	}
	return nil
}

func (db *DB) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	query := bookingSelect + ` WHERE id = ?`
	return db.scanBooking(db.QueryRowContext(ctx, query, id))
}

// GetBookingByPurchase is the poller's fetch. ErrBookingNotFound means "not
// written yet", which the poller treats as retryable.
func (db *DB) GetBookingByPurchase(ctx context.Context, purchaseID string) (*models.Booking, error) {
	query := bookingSelect + ` WHERE purchase_id = ?`
	return db.scanBooking(db.QueryRowContext(ctx, query, purchaseID))
}

func (db *DB) GetBookingsByDateRange(ctx context.Context, startDate, endDate time.Time) ([]*models.Booking, error) {
	query := bookingSelect + ` WHERE slot_date >= ? AND slot_date <= ? ORDER BY slot_date ASC, slot_time ASC`
	rows, err := db.QueryContext(ctx, query,
		startDate.Format(models.SlotDateFormat), endDate.Format(models.SlotDateFormat))
	if err != nil {
		return nil, fmt.Errorf("failed to get bookings by date range: %w", err)
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
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate bookings: %w", err)
	}
	return bookings, nil
}

// VerifyGuest re-derives access to a purchase from its contact fields.
// Comparison is constant-time and the failure is identical for a wrong
// credential and a purchase that does not exist, so the endpoint cannot be
// used to enumerate purchase ids. Idempotent; mutates nothing.
func (db *DB) VerifyGuest(ctx context.Context, purchaseID, email, phone string) (*models.Purchase, *models.Booking, *models.Consultant, error) {
	purchase, err := db.GetPurchase(ctx, purchaseID)
	if errors.Is(err, ErrPurchaseNotFound) {
		// Burn comparable work so a missing id is not distinguishable by timing.
		compareCredential("", email)
		compareCredential("", phone)
		return nil, nil, nil, ErrVerificationFailed
	}
	if err != nil {
		return nil, nil, nil, err
	}

	emailOK := compareCredential(normalizeEmail(purchase.Email), normalizeEmail(email))
	phoneOK := compareCredential(normalizePhone(purchase.Phone), normalizePhone(phone))
	if !emailOK || !phoneOK {
		return nil, nil, nil, ErrVerificationFailed
	}

	consultant, err := db.GetConsultant(ctx, purchase.ConsultantID)
	if err != nil {
		return nil, nil, nil, err
	}

	booking, err := db.GetBookingByPurchase(ctx, purchaseID)
	if errors.Is(err, ErrBookingNotFound) {
		return purchase, nil, consultant, nil
	}
	if err != nil {
		return nil, nil, nil, err
	}
	return purchase, booking, consultant, nil
}

func compareCredential(stored, supplied string) bool {
	return subtle.ConstantTimeCompare([]byte(stored), []byte(supplied)) == 1
}

func normalizeEmail(v string) string {
	return strings.ToLower(strings.TrimSpace(v))
}

func normalizePhone(v string) string {
	var b strings.Builder
	for _, r := range v {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

const bookingSelect = `SELECT id, purchase_id, consultant_id, appointment_start, appointment_end,
       slot_date, slot_time, duration_minutes, status, reschedule_count,
       created_at, updated_at, version
  FROM bookings`

type rowScanner interface {
	Scan(dest ...any) error
}

func (db *DB) scanBooking(row rowScanner) (*models.Booking, error) {
	var b models.Booking
	err := row.Scan(
		&b.ID, &b.PurchaseID, &b.ConsultantID, &b.AppointmentStart, &b.AppointmentEnd,
		&b.SlotDate, &b.SlotTime, &b.DurationMinutes, &b.Status, &b.RescheduleCount,
		&b.CreatedAt, &b.UpdatedAt, &b.Version,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrBookingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan booking: %w", err)
	}
	return &b, nil
}
