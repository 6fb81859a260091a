package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"konsult/internal/database"
	"konsult/internal/domain"
	"konsult/internal/events"
	"konsult/internal/metrics"
	"konsult/internal/models"
	"konsult/internal/schedule"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// BookingAwaiter is the post-purchase reconciliation poller.
type BookingAwaiter interface {
	Await(ctx context.Context, purchaseID string) (*models.Booking, error)
}

type BookingService struct {
	repo     domain.Repository
	eventBus domain.EventPublisher
	syncer   domain.SyncEnqueuer
	awaiter  BookingAwaiter
	logger   *zerolog.Logger
}

func NewBookingService(repo domain.Repository, eventBus domain.EventPublisher, syncer domain.SyncEnqueuer, awaiter BookingAwaiter, logger *zerolog.Logger) *BookingService {
	return &BookingService{
		repo:     repo,
		eventBus: eventBus,
		syncer:   syncer,
		awaiter:  awaiter,
		logger:   logger,
	}
}

// ConfirmPurchase is the payment-pipeline entry point: a paid purchase plus
// the slot the buyer picked at checkout. The calculator pass is advisory;
// the claim transaction decides.
func (s *BookingService) ConfirmPurchase(ctx context.Context, purchaseID, date, startTime string) (*models.Booking, error) {
	purchase, err := s.repo.GetPurchase(ctx, purchaseID)
	if err != nil {
		return nil, err
	}
	if purchase.BookingID != nil {
		return nil, database.ErrConcurrentModification
	}

	consultant, err := s.repo.GetConsultant(ctx, purchase.ConsultantID)
	if err != nil {
		return nil, err
	}

	loc, err := time.LoadLocation(consultant.Timezone)
	if err != nil {
		return nil, fmt.Errorf("consultant %d timezone %q: %w", consultant.ID, consultant.Timezone, err)
	}

	day, err := time.ParseInLocation(models.SlotDateFormat, date, loc)
	if err != nil {
		return nil, fmt.Errorf("%w: bad date %q", database.ErrNotAvailable, date)
	}

	if err := s.checkSlot(ctx, consultant, day, startTime, purchase.DurationMinutes, nil, loc); err != nil {
		return nil, err
	}

	run, err := schedule.Run(day, startTime, purchase.DurationMinutes, consultant.IncrementMinutes)
	if err != nil {
		return nil, err
	}

	start, end, err := schedule.AppointmentWindow(day, startTime, purchase.DurationMinutes, loc)
	if err != nil {
		return nil, err
	}

	booking := &models.Booking{
		ID:               uuid.NewString(),
		PurchaseID:       purchase.ID,
		ConsultantID:     consultant.ID,
		AppointmentStart: start,
		AppointmentEnd:   end,
		SlotDate:         date,
		SlotTime:         startTime,
		DurationMinutes:  purchase.DurationMinutes,
		Status:           models.StatusConfirmed,
	}

	if err := s.repo.CreateBookingWithClaim(ctx, booking, run); err != nil {
		if errors.Is(err, database.ErrSlotConflict) {
			metrics.IncSlotClaim("conflict")
		} else {
			metrics.IncSlotClaim("error")
		}
		return nil, err
	}
	metrics.IncSlotClaim("claimed")

	s.publishEvent(events.EventBookingCreated, booking, consultant.Name)
	s.enqueueUpsert(ctx, booking)

	return booking, nil
}

// Reschedule moves a booking to a new slot. Callers either hold a portal
// API key acting for the logged-in owner (email/phone empty) or supply the
// guest credentials, which are re-verified inside this call. The single
// allowed reschedule is enforced by the store transaction, not here.
func (s *BookingService) Reschedule(ctx context.Context, purchaseID, newDate, newTime, email, phone string, trusted bool) (*models.Booking, error) {
	if !trusted {
		if _, _, _, err := s.repo.VerifyGuest(ctx, purchaseID, email, phone); err != nil {
			metrics.IncReschedule("unauthorized")
			return nil, err
		}
	}

	booking, err := s.repo.GetBookingByPurchase(ctx, purchaseID)
	if err != nil {
		return nil, err
	}
	if !booking.CanReschedule() {
		metrics.IncReschedule("exhausted")
		return nil, database.ErrAlreadyRescheduled
	}

	consultant, err := s.repo.GetConsultant(ctx, booking.ConsultantID)
	if err != nil {
		return nil, err
	}

	loc, err := time.LoadLocation(consultant.Timezone)
	if err != nil {
		return nil, fmt.Errorf("consultant %d timezone %q: %w", consultant.ID, consultant.Timezone, err)
	}

	day, err := time.ParseInLocation(models.SlotDateFormat, newDate, loc)
	if err != nil {
		return nil, fmt.Errorf("%w: bad date %q", database.ErrNotAvailable, newDate)
	}

	if err := s.checkSlot(ctx, consultant, day, newTime, booking.DurationMinutes, booking, loc); err != nil {
		return nil, err
	}

	newRun, err := schedule.Run(day, newTime, booking.DurationMinutes, consultant.IncrementMinutes)
	if err != nil {
		return nil, err
	}

	start, end, err := schedule.AppointmentWindow(day, newTime, booking.DurationMinutes, loc)
	if err != nil {
		return nil, err
	}

	updated, err := s.repo.RescheduleBooking(ctx, booking.ID, start, end, newDate, newTime, newRun)
	if err != nil {
		switch {
		case errors.Is(err, database.ErrSlotConflict):
			metrics.IncReschedule("conflict")
		case errors.Is(err, database.ErrAlreadyRescheduled):
			metrics.IncReschedule("exhausted")
		default:
			metrics.IncReschedule("error")
		}
		return nil, err
	}
	metrics.IncReschedule("ok")

	s.publishEvent(events.EventBookingRescheduled, updated, consultant.Name)
	s.enqueueUpsert(ctx, updated)

	return updated, nil
}

// AwaitBooking runs the bounded reconciliation poll for a purchase whose
// booking the payment pipeline writes out-of-band.
func (s *BookingService) AwaitBooking(ctx context.Context, purchaseID string) (*models.Booking, error) {
	booking, err := s.awaiter.Await(ctx, purchaseID)
	if err != nil {
		return nil, err
	}

	s.publishEvent(events.EventBookingReconciled, booking, "")
	return booking, nil
}

// RegisterPurchase records a paid purchase ahead of its booking write.
func (s *BookingService) RegisterPurchase(ctx context.Context, purchase *models.Purchase) error {
	return s.repo.CreatePurchase(ctx, purchase)
}

func (s *BookingService) GetBookingByPurchase(ctx context.Context, purchaseID string) (*models.Booking, error) {
	return s.repo.GetBookingByPurchase(ctx, purchaseID)
}

func (s *BookingService) GetBookingsByDateRange(ctx context.Context, start, end time.Time) ([]*models.Booking, error) {
	return s.repo.GetBookingsByDateRange(ctx, start, end)
}

// checkSlot is the advisory calculator pass: it rejects requests the portal
// should never have produced (past slot, outside template, visible conflict)
// before the claim transaction spends a write.
func (s *BookingService) checkSlot(ctx context.Context, consultant *models.Consultant, day time.Time, startTime string, durationMinutes int, own *models.Booking, loc *time.Location) error {
	template, err := s.repo.GetWeeklyTemplate(ctx, consultant.ID)
	if err != nil {
		return err
	}

	dateStr := day.Format(models.SlotDateFormat)
	booked, err := s.repo.GetBookedSlotMap(ctx, consultant.ID, dateStr)
	if err != nil {
		return err
	}

	// A reschedule competes against everyone except itself: its current
	// claims are about to be released in the same transaction.
	if own != nil && own.SlotDate == dateStr {
		ownRun, err := schedule.Run(day, own.SlotTime, own.DurationMinutes, consultant.IncrementMinutes)
		if err == nil {
			for _, ref := range ownRun {
				delete(booked, ref.Time)
			}
		}
	}

	slots, err := schedule.ForDay(template[int(day.Weekday())], booked, day, durationMinutes, consultant.IncrementMinutes, time.Now(), loc)
	if err != nil {
		return err
	}

	for _, slot := range slots {
		if slot.Time != startTime {
			continue
		}
		switch slot.State {
		case schedule.SlotAvailable:
			return nil
		case schedule.SlotPast:
			return database.ErrPastSlot
		case schedule.SlotBooked:
			return &database.SlotConflictError{Slot: models.SlotRef{Date: dateStr, Time: startTime}}
		default:
			return database.ErrNotAvailable
		}
	}

	return database.ErrNotAvailable
}

func (s *BookingService) publishEvent(eventType string, booking *models.Booking, consultantName string) {
	if s.eventBus == nil {
		return
	}

	payload := events.BookingEventPayload{
		BookingID:       booking.ID,
		PurchaseID:      booking.PurchaseID,
		ConsultantID:    booking.ConsultantID,
		ConsultantName:  consultantName,
		Status:          booking.Status,
		SlotDate:        booking.SlotDate,
		SlotTime:        booking.SlotTime,
		DurationMinutes: booking.DurationMinutes,
		Start:           booking.AppointmentStart,
		RescheduleCount: booking.RescheduleCount,
	}

	if err := s.eventBus.PublishJSON(eventType, payload); err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Str("booking_id", booking.ID).Msg("publish event error")
	}
}

func (s *BookingService) enqueueUpsert(ctx context.Context, booking *models.Booking) {
	if s.syncer == nil {
		return
	}

	if err := s.syncer.EnqueueUpsert(ctx, booking); err != nil {
		s.logger.Error().Err(err).Str("booking_id", booking.ID).Msg("sheets enqueue error")
	}
}
