package repository

import (
	"context"
	"sync/atomic"
	"time"

	"konsult/internal/domain"
	"konsult/internal/models"

	"github.com/rs/zerolog"
)

// FailoverSessionRepository serves session state from redis and degrades to
// the in-memory repository when redis is down, probing for recovery once a
// minute. Losing cached sessions on failover is acceptable: they are
// advisory and every mutating call re-verifies server-side.
type FailoverSessionRepository struct {
	primary   domain.SessionRepository
	fallback  domain.SessionRepository
	logger    *zerolog.Logger
	isDown    atomic.Bool
	lastCheck time.Time
}

func NewFailoverSessionRepository(primary, fallback domain.SessionRepository, logger *zerolog.Logger) *FailoverSessionRepository {
	return &FailoverSessionRepository{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

func (r *FailoverSessionRepository) markDown(err error) {
	r.logger.Error().Err(err).Msg("Primary session repository failed, falling back to memory")
	r.isDown.Store(true)
	r.lastCheck = time.Now()
}

func (r *FailoverSessionRepository) GetGuestSession(ctx context.Context, purchaseID string) (*models.GuestSession, error) {
	if !r.isDown.Load() {
		session, err := r.primary.GetGuestSession(ctx, purchaseID)
		if err == nil {
			return session, nil
		}
		r.markDown(err)
	}

	// Try to recover after 1 minute
	if r.isDown.Load() && time.Since(r.lastCheck) > time.Minute {
		session, err := r.primary.GetGuestSession(ctx, purchaseID)
		if err == nil {
			r.isDown.Store(false)
			return session, nil
		}
		r.lastCheck = time.Now()
	}

	return r.fallback.GetGuestSession(ctx, purchaseID)
}

func (r *FailoverSessionRepository) SetGuestSession(ctx context.Context, session *models.GuestSession) error {
	if !r.isDown.Load() {
		err := r.primary.SetGuestSession(ctx, session)
		if err == nil {
			return nil
		}
		r.markDown(err)
	}

	return r.fallback.SetGuestSession(ctx, session)
}

func (r *FailoverSessionRepository) ClearGuestSession(ctx context.Context, purchaseID string) error {
	if !r.isDown.Load() {
		err := r.primary.ClearGuestSession(ctx, purchaseID)
		if err == nil {
			return nil
		}
		r.markDown(err)
	}

	return r.fallback.ClearGuestSession(ctx, purchaseID)
}

func (r *FailoverSessionRepository) SetPendingPoll(ctx context.Context, purchaseID string) error {
	if !r.isDown.Load() {
		err := r.primary.SetPendingPoll(ctx, purchaseID)
		if err == nil {
			return nil
		}
		r.markDown(err)
	}

	return r.fallback.SetPendingPoll(ctx, purchaseID)
}

func (r *FailoverSessionRepository) IsPendingPoll(ctx context.Context, purchaseID string) (bool, error) {
	if !r.isDown.Load() {
		pending, err := r.primary.IsPendingPoll(ctx, purchaseID)
		if err == nil {
			return pending, nil
		}
		r.markDown(err)
	}

	return r.fallback.IsPendingPoll(ctx, purchaseID)
}

func (r *FailoverSessionRepository) ClearPendingPoll(ctx context.Context, purchaseID string) error {
	if !r.isDown.Load() {
		err := r.primary.ClearPendingPoll(ctx, purchaseID)
		if err == nil {
			return nil
		}
		r.markDown(err)
	}

	return r.fallback.ClearPendingPoll(ctx, purchaseID)
}

func (r *FailoverSessionRepository) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if !r.isDown.Load() {
		allowed, err := r.primary.CheckRateLimit(ctx, key, limit, window)
		if err == nil {
			return allowed, nil
		}
		r.markDown(err)
	}

	return r.fallback.CheckRateLimit(ctx, key, limit, window)
}
