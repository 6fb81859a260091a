package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"konsult/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildBooking(purchaseID string, consultantID int64, date, start string, durationMinutes int) (*models.Booking, []models.SlotRef) {
	day, _ := time.Parse(models.SlotDateFormat, date)
	st, _ := time.Parse(models.SlotTimeFormat, start)
	begin := day.Add(time.Duration(st.Hour())*time.Hour + time.Duration(st.Minute())*time.Minute)

	var run []models.SlotRef
	for offset := 0; offset < durationMinutes; offset += 30 {
		run = append(run, models.SlotRef{
			Date: date,
			Time: begin.Add(time.Duration(offset) * time.Minute).Format(models.SlotTimeFormat),
		})
	}

	booking := &models.Booking{
		PurchaseID:       purchaseID,
		ConsultantID:     consultantID,
		AppointmentStart: begin,
		AppointmentEnd:   begin.Add(time.Duration(durationMinutes) * time.Minute),
		SlotDate:         date,
		SlotTime:         start,
		DurationMinutes:  durationMinutes,
	}
	return booking, run
}

func mustBooking(t *testing.T, db *DB, purchaseID string, consultantID int64, date, start string, durationMinutes int) *models.Booking {
	t.Helper()
	booking, run := buildBooking(purchaseID, consultantID, date, start, durationMinutes)
	require.NoError(t, db.CreateBookingWithClaim(context.Background(), booking, run))
	return booking
}

func TestCreateBookingWithClaim(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	c := mustConsultant(t, db)
	p := mustPurchase(t, db, c.ID)
	date := futureDate(7)

	booking := mustBooking(t, db, p.ID, c.ID, date, "10:00", 60)
	require.NotEmpty(t, booking.ID)
	assert.Equal(t, models.StatusConfirmed, booking.Status)
	assert.EqualValues(t, 1, booking.Version)

	// Both increments of the run are claimed.
	booked, err := db.GetBookedSlotMap(ctx, c.ID, date)
	require.NoError(t, err)
	assert.True(t, booked["10:00"])
	assert.True(t, booked["10:30"])
	assert.False(t, booked["11:00"])

	// The purchase now carries the booking id.
	purchase, err := db.GetPurchase(ctx, p.ID)
	require.NoError(t, err)
	require.NotNil(t, purchase.BookingID)
	assert.Equal(t, booking.ID, *purchase.BookingID)

	got, err := db.GetBookingByPurchase(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, booking.ID, got.ID)
}

func TestCreateBookingSlotConflict(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	c := mustConsultant(t, db)
	date := futureDate(7)

	first := mustPurchase(t, db, c.ID)
	mustBooking(t, db, first.ID, c.ID, date, "10:00", 60)

	// The second run overlaps only on 10:30; the whole claim must fail.
	second := mustPurchase(t, db, c.ID)
	booking, run := buildBooking(second.ID, c.ID, date, "10:30", 60)
	err := db.CreateBookingWithClaim(ctx, booking, run)

	var conflict *SlotConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, models.SlotRef{Date: date, Time: "10:30"}, conflict.Slot)
	assert.ErrorIs(t, err, ErrSlotConflict)

	// No partial state: no booking row, no claim on the free increment,
	// purchase still unlinked.
	_, err = db.GetBookingByPurchase(ctx, second.ID)
	assert.ErrorIs(t, err, ErrBookingNotFound)

	booked, err := db.GetBookedSlotMap(ctx, c.ID, date)
	require.NoError(t, err)
	assert.False(t, booked["11:00"])

	purchase, err := db.GetPurchase(ctx, second.ID)
	require.NoError(t, err)
	assert.Nil(t, purchase.BookingID)
}

func TestCreateBookingUnknownPurchase(t *testing.T) {
	db := newTestDB(t)
	c := mustConsultant(t, db)

	booking, run := buildBooking("no-such-purchase", c.ID, futureDate(7), "10:00", 30)
	err := db.CreateBookingWithClaim(context.Background(), booking, run)
	assert.ErrorIs(t, err, ErrPurchaseNotFound)
}

func TestCreateBookingPurchaseAlreadyLinked(t *testing.T) {
	db := newTestDB(t)
	c := mustConsultant(t, db)
	p := mustPurchase(t, db, c.ID)
	date := futureDate(7)

	mustBooking(t, db, p.ID, c.ID, date, "10:00", 30)

	booking, run := buildBooking(p.ID, c.ID, date, "14:00", 30)
	err := db.CreateBookingWithClaim(context.Background(), booking, run)
	assert.ErrorIs(t, err, ErrConcurrentModification)
}

func TestCreateBookingEmptyRun(t *testing.T) {
	db := newTestDB(t)
	err := db.CreateBookingWithClaim(context.Background(), &models.Booking{}, nil)
	assert.Error(t, err)
}

func TestRescheduleBooking(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	c := mustConsultant(t, db)
	p := mustPurchase(t, db, c.ID)
	oldDate := futureDate(7)
	newDate := futureDate(8)

	booking := mustBooking(t, db, p.ID, c.ID, oldDate, "10:00", 60)

	_, newRun := buildBooking(p.ID, c.ID, newDate, "14:00", 60)
	newStart := slotStart(newDate, "14:00")
	newBooking, err := db.RescheduleBooking(ctx, booking.ID,
		newStart, newStart.Add(60*time.Minute),
		newDate, "14:00", newRun)
	require.NoError(t, err)

	assert.Equal(t, models.StatusRescheduled, newBooking.Status)
	assert.Equal(t, 1, newBooking.RescheduleCount)
	assert.Equal(t, newDate, newBooking.SlotDate)
	assert.Equal(t, "14:00", newBooking.SlotTime)
	assert.EqualValues(t, 2, newBooking.Version)

	// Old claims are released, new ones held.
	oldBooked, err := db.GetBookedSlotMap(ctx, c.ID, oldDate)
	require.NoError(t, err)
	assert.Empty(t, oldBooked)

	newBooked, err := db.GetBookedSlotMap(ctx, c.ID, newDate)
	require.NoError(t, err)
	assert.True(t, newBooked["14:00"])
	assert.True(t, newBooked["14:30"])
}

func slotStart(date, start string) time.Time {
	day, _ := time.Parse(models.SlotDateFormat, date)
	st, _ := time.Parse(models.SlotTimeFormat, start)
	return day.Add(time.Duration(st.Hour())*time.Hour + time.Duration(st.Minute())*time.Minute)
}

func TestRescheduleSecondTimeFails(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	c := mustConsultant(t, db)
	p := mustPurchase(t, db, c.ID)

	booking := mustBooking(t, db, p.ID, c.ID, futureDate(7), "10:00", 30)

	_, run1 := buildBooking(p.ID, c.ID, futureDate(8), "11:00", 30)
	_, err := db.RescheduleBooking(ctx, booking.ID, time.Now(), time.Now(), futureDate(8), "11:00", run1)
	require.NoError(t, err)

	_, run2 := buildBooking(p.ID, c.ID, futureDate(9), "12:00", 30)
	_, err = db.RescheduleBooking(ctx, booking.ID, time.Now(), time.Now(), futureDate(9), "12:00", run2)
	assert.ErrorIs(t, err, ErrAlreadyRescheduled)
}

func TestRescheduleWithinSameDay(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	c := mustConsultant(t, db)
	p := mustPurchase(t, db, c.ID)
	date := futureDate(7)

	booking := mustBooking(t, db, p.ID, c.ID, date, "10:00", 60)

	// The new run overlaps the booking's own old claim at 10:30. Releasing
	// before claiming makes this legal.
	_, newRun := buildBooking(p.ID, c.ID, date, "10:30", 60)
	moved, err := db.RescheduleBooking(ctx, booking.ID, time.Now(), time.Now(), date, "10:30", newRun)
	require.NoError(t, err)
	assert.Equal(t, "10:30", moved.SlotTime)

	booked, err := db.GetBookedSlotMap(ctx, c.ID, date)
	require.NoError(t, err)
	assert.False(t, booked["10:00"])
	assert.True(t, booked["10:30"])
	assert.True(t, booked["11:00"])
}

func TestRescheduleConflictRollsBack(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	c := mustConsultant(t, db)
	date := futureDate(7)

	blocker := mustPurchase(t, db, c.ID)
	mustBooking(t, db, blocker.ID, c.ID, date, "14:00", 30)

	p := mustPurchase(t, db, c.ID)
	booking := mustBooking(t, db, p.ID, c.ID, date, "10:00", 30)

	_, newRun := buildBooking(p.ID, c.ID, date, "14:00", 30)
	_, err := db.RescheduleBooking(ctx, booking.ID, time.Now(), time.Now(), date, "14:00", newRun)

	var conflict *SlotConflictError
	require.ErrorAs(t, err, &conflict)

	// The transaction rolled back: reschedule budget intact, old claim held.
	got, err := db.GetBooking(ctx, booking.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.RescheduleCount)
	assert.Equal(t, "10:00", got.SlotTime)

	booked, err := db.GetBookedSlotMap(ctx, c.ID, date)
	require.NoError(t, err)
	assert.True(t, booked["10:00"])
}

func TestRescheduleUnknownBooking(t *testing.T) {
	db := newTestDB(t)
	_, run := buildBooking("p", 1, futureDate(7), "10:00", 30)
	_, err := db.RescheduleBooking(context.Background(), "missing", time.Now(), time.Now(), futureDate(7), "10:00", run)
	assert.ErrorIs(t, err, ErrBookingNotFound)
}

func TestGetBookingsByDateRange(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	c := mustConsultant(t, db)

	inRange := mustPurchase(t, db, c.ID)
	mustBooking(t, db, inRange.ID, c.ID, futureDate(7), "10:00", 30)
	later := mustPurchase(t, db, c.ID)
	mustBooking(t, db, later.ID, c.ID, futureDate(7), "09:00", 30)
	outside := mustPurchase(t, db, c.ID)
	mustBooking(t, db, outside.ID, c.ID, futureDate(30), "10:00", 30)

	from := time.Now().AddDate(0, 0, 6)
	to := time.Now().AddDate(0, 0, 8)
	got, err := db.GetBookingsByDateRange(ctx, from, to)
	require.NoError(t, err)
	require.Len(t, got, 2)
	// Sorted by date then time.
	assert.Equal(t, "09:00", got[0].SlotTime)
	assert.Equal(t, "10:00", got[1].SlotTime)
}

func TestVerifyGuest(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	c := mustConsultant(t, db)
	p := mustPurchase(t, db, c.ID)

	// Before the booking exists verification still succeeds.
	purchase, booking, consultant, err := db.VerifyGuest(ctx, p.ID, p.Email, p.Phone)
	require.NoError(t, err)
	assert.Equal(t, p.ID, purchase.ID)
	assert.Nil(t, booking)
	assert.Equal(t, c.ID, consultant.ID)

	created := mustBooking(t, db, p.ID, c.ID, futureDate(7), "10:00", 30)
	_, booking, _, err = db.VerifyGuest(ctx, p.ID, p.Email, p.Phone)
	require.NoError(t, err)
	require.NotNil(t, booking)
	assert.Equal(t, created.ID, booking.ID)
}

func TestVerifyGuestNormalization(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	c := mustConsultant(t, db)
	p := mustPurchase(t, db, c.ID) // guest@example.com / +7 (900) 123-45-67

	// Case and whitespace in email, formatting in phone are ignored.
	_, _, _, err := db.VerifyGuest(ctx, p.ID, "  Guest@Example.COM ", "79001234567")
	assert.NoError(t, err)
}

func TestVerifyGuestUniformFailure(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	c := mustConsultant(t, db)
	p := mustPurchase(t, db, c.ID)

	cases := []struct {
		name       string
		purchaseID string
		email      string
		phone      string
	}{
		{"wrong email", p.ID, "other@example.com", p.Phone},
		{"wrong phone", p.ID, p.Email, "+1 555 000 0000"},
		{"unknown purchase", "no-such-id", p.Email, p.Phone},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, _, err := db.VerifyGuest(ctx, tc.purchaseID, tc.email, tc.phone)
			// Identical sentinel in every case; nothing leaks which part failed.
			assert.True(t, errors.Is(err, ErrVerificationFailed))
		})
	}
}

func TestNormalizeHelpers(t *testing.T) {
	assert.Equal(t, "a@b.c", normalizeEmail(" A@B.C "))
	assert.Equal(t, "79001234567", normalizePhone("+7 (900) 123-45-67"))
	assert.Equal(t, "", normalizePhone("---"))
}
