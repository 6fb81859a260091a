package repository

import (
	"context"
	"sync"
	"time"

	"konsult/internal/models"
)

type MemorySessionRepository struct {
	sessions   sync.Map
	pending    sync.Map
	rateLimits sync.Map
	guestTTL   time.Duration
	pendingTTL time.Duration
}

func NewMemorySessionRepository(guestTTL, pendingTTL time.Duration) *MemorySessionRepository {
	return &MemorySessionRepository{
		guestTTL:   guestTTL,
		pendingTTL: pendingTTL,
	}
}

type sessionEntry struct {
	session   *models.GuestSession
	expiresAt time.Time
}

func (r *MemorySessionRepository) GetGuestSession(ctx context.Context, purchaseID string) (*models.GuestSession, error) {
	val, ok := r.sessions.Load(purchaseID)
	if !ok {
		return nil, nil
	}
	entry := val.(*sessionEntry)
	if time.Now().After(entry.expiresAt) {
		r.sessions.Delete(purchaseID)
		return nil, nil
	}
	return entry.session, nil
}

func (r *MemorySessionRepository) SetGuestSession(ctx context.Context, session *models.GuestSession) error {
	r.sessions.Store(session.PurchaseID, &sessionEntry{
		session:   session,
		expiresAt: time.Now().Add(r.guestTTL),
	})
	return nil
}

func (r *MemorySessionRepository) ClearGuestSession(ctx context.Context, purchaseID string) error {
	r.sessions.Delete(purchaseID)
	return nil
}

func (r *MemorySessionRepository) SetPendingPoll(ctx context.Context, purchaseID string) error {
	r.pending.Store(purchaseID, time.Now().Add(r.pendingTTL))
	return nil
}

func (r *MemorySessionRepository) IsPendingPoll(ctx context.Context, purchaseID string) (bool, error) {
	val, ok := r.pending.Load(purchaseID)
	if !ok {
		return false, nil
	}
	if time.Now().After(val.(time.Time)) {
		r.pending.Delete(purchaseID)
		return false, nil
	}
	return true, nil
}

func (r *MemorySessionRepository) ClearPendingPoll(ctx context.Context, purchaseID string) error {
	r.pending.Delete(purchaseID)
	return nil
}

type rateLimitEntry struct {
	count     int
	expiresAt time.Time
}

func (r *MemorySessionRepository) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	now := time.Now()
	val, ok := r.rateLimits.Load(key)

	var entry *rateLimitEntry
	if !ok {
		entry = &rateLimitEntry{
			count:     1,
			expiresAt: now.Add(window),
		}
	} else {
		entry = val.(*rateLimitEntry)
		if now.After(entry.expiresAt) {
			entry.count = 1
			entry.expiresAt = now.Add(window)
		} else {
			entry.count++
		}
	}

	r.rateLimits.Store(key, entry)
	return entry.count <= limit, nil
}
