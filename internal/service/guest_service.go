package service

import (
	"context"
	"time"

	"konsult/internal/domain"
	"konsult/internal/events"
	"konsult/internal/metrics"
	"konsult/internal/models"

	"github.com/rs/zerolog"
)

// VerifyResult is what a successful guest verification exposes to the portal.
type VerifyResult struct {
	Purchase   *models.Purchase   `json:"purchase"`
	Booking    *models.Booking    `json:"booking,omitempty"`
	Consultant *models.Consultant `json:"consultant"`
}

// GuestService gates buyers who checked out without an account. Failures
// are uniform on purpose: the caller cannot tell a wrong credential from a
// purchase id that does not exist.
type GuestService struct {
	repo     domain.Repository
	sessions domain.SessionRepository
	eventBus domain.EventPublisher
	logger   *zerolog.Logger
}

func NewGuestService(repo domain.Repository, sessions domain.SessionRepository, eventBus domain.EventPublisher, logger *zerolog.Logger) *GuestService {
	return &GuestService{
		repo:     repo,
		sessions: sessions,
		eventBus: eventBus,
		logger:   logger,
	}
}

func (s *GuestService) Verify(ctx context.Context, purchaseID, email, phone string) (*VerifyResult, error) {
	purchase, booking, consultant, err := s.repo.VerifyGuest(ctx, purchaseID, email, phone)
	if err != nil {
		metrics.IncGuestVerification("failed")
		return nil, err
	}
	metrics.IncGuestVerification("ok")

	session := &models.GuestSession{
		PurchaseID:   purchase.ID,
		Email:        purchase.Email,
		Phone:        purchase.Phone,
		ConsultantID: purchase.ConsultantID,
		VerifiedAt:   time.Now(),
	}
	if booking != nil {
		session.BookingID = booking.ID
	}

	// Cache is best-effort; a miss just means the guest verifies again.
	if err := s.sessions.SetGuestSession(ctx, session); err != nil {
		s.logger.Warn().Err(err).Str("purchase_id", purchase.ID).Msg("Failed to cache guest session")
	}

	if s.eventBus != nil {
		payload := map[string]interface{}{
			"purchase_id":   purchase.ID,
			"consultant_id": purchase.ConsultantID,
		}
		if err := s.eventBus.PublishJSON(events.EventGuestVerified, payload); err != nil {
			s.logger.Error().Err(err).Str("purchase_id", purchase.ID).Msg("publish event error")
		}
	}

	return &VerifyResult{Purchase: purchase, Booking: booking, Consultant: consultant}, nil
}

// Session returns the cached verification for a purchase, if still valid.
func (s *GuestService) Session(ctx context.Context, purchaseID string) (*models.GuestSession, error) {
	return s.sessions.GetGuestSession(ctx, purchaseID)
}

// ClearSession drops the cached verification, e.g. on portal logout.
func (s *GuestService) ClearSession(ctx context.Context, purchaseID string) error {
	return s.sessions.ClearGuestSession(ctx, purchaseID)
}
