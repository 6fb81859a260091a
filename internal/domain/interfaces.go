package domain

import (
	"context"
	"time"

	"konsult/internal/models"
)

// Repository is the persistent store behind the scheduler and the booking
// lifecycle. The claim methods are the slot conflict guard: they are the
// only authoritative availability check.
type Repository interface {
	GetConsultant(ctx context.Context, id int64) (*models.Consultant, error)
	ListActiveConsultants(ctx context.Context) ([]*models.Consultant, error)
	GetWeeklyTemplate(ctx context.Context, consultantID int64) (models.WeeklyTemplate, error)

	GetBookedSlots(ctx context.Context, consultantID int64) ([]models.SlotRef, error)
	GetBookedSlotMap(ctx context.Context, consultantID int64, date string) (map[string]bool, error)

	CreatePurchase(ctx context.Context, p *models.Purchase) error
	GetPurchase(ctx context.Context, id string) (*models.Purchase, error)

	CreateBookingWithClaim(ctx context.Context, booking *models.Booking, run []models.SlotRef) error
	RescheduleBooking(ctx context.Context, bookingID string, newStart, newEnd time.Time, newDate, newTime string, newRun []models.SlotRef) (*models.Booking, error)
	GetBooking(ctx context.Context, id string) (*models.Booking, error)
	GetBookingByPurchase(ctx context.Context, purchaseID string) (*models.Booking, error)
	GetBookingsByDateRange(ctx context.Context, start, end time.Time) ([]*models.Booking, error)

	VerifyGuest(ctx context.Context, purchaseID, email, phone string) (*models.Purchase, *models.Booking, *models.Consultant, error)
}

// SessionRepository holds per-portal-session state: cached guest
// verifications and pending-poll flags. Advisory only; mutating calls
// always re-verify against the store.
type SessionRepository interface {
	GetGuestSession(ctx context.Context, purchaseID string) (*models.GuestSession, error)
	SetGuestSession(ctx context.Context, session *models.GuestSession) error
	ClearGuestSession(ctx context.Context, purchaseID string) error

	SetPendingPoll(ctx context.Context, purchaseID string) error
	IsPendingPoll(ctx context.Context, purchaseID string) (bool, error)
	ClearPendingPoll(ctx context.Context, purchaseID string) error

	CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

// SyncEnqueuer schedules back-office synchronization of a booking.
type SyncEnqueuer interface {
	EnqueueUpsert(ctx context.Context, booking *models.Booking) error
	EnqueueStatusUpdate(ctx context.Context, bookingID, status string) error
}

// BookingFetcher is what the reconciliation poller polls.
type BookingFetcher interface {
	GetBookingByPurchase(ctx context.Context, purchaseID string) (*models.Booking, error)
}
