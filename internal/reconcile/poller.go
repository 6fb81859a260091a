package reconcile

import (
	"context"
	"errors"
	"sync"
	"time"

	"konsult/internal/database"
	"konsult/internal/domain"
	"konsult/internal/metrics"
	"konsult/internal/models"

	"github.com/rs/zerolog"
)

// ErrReconcileExhausted is terminal: the payment pipeline never produced a
// booking for the purchase within the retry budget. Callers must not restart
// the poll automatically.
var ErrReconcileExhausted = errors.New("booking not found after retry budget exhausted")

type pollResult struct {
	booking *models.Booking
	err     error
}

type inflightPoll struct {
	done   chan struct{}
	result pollResult
}

// Poller bridges the gap between payment confirmation and the asynchronous
// booking write. It polls the store a bounded number of times with a fixed
// delay between attempts.
type Poller struct {
	fetcher    domain.BookingFetcher
	sessions   domain.SessionRepository
	maxRetries int
	delay      time.Duration
	logger     *zerolog.Logger

	rootCtx context.Context
	cancel  context.CancelFunc

	mu       sync.Mutex
	inflight map[string]*inflightPoll
}

func NewPoller(fetcher domain.BookingFetcher, sessions domain.SessionRepository, maxRetries int, delay time.Duration, logger *zerolog.Logger) *Poller {
	if maxRetries <= 0 {
		maxRetries = models.ReconcileMaxRetries
	}
	if delay <= 0 {
		delay = models.ReconcileRetryDelay
	}
	rootCtx, cancel := context.WithCancel(context.Background())
	return &Poller{
		fetcher:    fetcher,
		sessions:   sessions,
		maxRetries: maxRetries,
		delay:      delay,
		logger:     logger,
		rootCtx:    rootCtx,
		cancel:     cancel,
		inflight:   make(map[string]*inflightPoll),
	}
}

// Stop cancels every in-flight polling loop. Used on shutdown.
func (p *Poller) Stop() {
	p.cancel()
}

// Await returns the booking for a purchase, polling until it appears or the
// retry budget runs out. Concurrent calls for the same purchase share one
// polling loop; each waiter can still bail out through its own context.
func (p *Poller) Await(ctx context.Context, purchaseID string) (*models.Booking, error) {
	p.mu.Lock()
	if existing, ok := p.inflight[purchaseID]; ok {
		p.mu.Unlock()
		return p.wait(ctx, existing)
	}

	poll := &inflightPoll{done: make(chan struct{})}
	p.inflight[purchaseID] = poll
	p.mu.Unlock()

	// The loop lives on the poller's own context: a waiter cancelling its
	// request must not kill the poll for everyone else sharing it.
	go p.run(p.rootCtx, purchaseID, poll)

	return p.wait(ctx, poll)
}

func (p *Poller) wait(ctx context.Context, poll *inflightPoll) (*models.Booking, error) {
	select {
	case <-poll.done:
		return poll.result.booking, poll.result.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *Poller) run(ctx context.Context, purchaseID string, poll *inflightPoll) {
	defer func() {
		p.mu.Lock()
		delete(p.inflight, purchaseID)
		p.mu.Unlock()
		close(poll.done)
	}()

	if err := p.sessions.SetPendingPoll(ctx, purchaseID); err != nil {
		// The flag is advisory; keep polling even if it could not be set.
		p.logger.Warn().Err(err).Str("purchase_id", purchaseID).Msg("Failed to set pending poll flag")
	}

	timer := time.NewTimer(p.delay)
	defer timer.Stop()

	for attempt := 1; attempt <= p.maxRetries; attempt++ {
		metrics.IncReconcileAttempt()

		booking, err := p.fetcher.GetBookingByPurchase(ctx, purchaseID)
		if err == nil {
			p.clearPending(ctx, purchaseID)
			metrics.IncReconcileOutcome("found")
			p.logger.Info().
				Str("purchase_id", purchaseID).
				Str("booking_id", booking.ID).
				Int("attempt", attempt).
				Msg("Reconciliation found booking")
			poll.result = pollResult{booking: booking}
			return
		}

		if !errors.Is(err, database.ErrBookingNotFound) {
			// Infrastructure failure, not "write hasn't landed yet". Abort
			// without consuming the remaining budget.
			metrics.IncReconcileOutcome("aborted")
			p.logger.Error().Err(err).Str("purchase_id", purchaseID).Msg("Reconciliation aborted")
			poll.result = pollResult{err: err}
			return
		}

		if attempt == p.maxRetries {
			break
		}

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(p.delay)

		select {
		case <-timer.C:
		case <-ctx.Done():
			metrics.IncReconcileOutcome("canceled")
			poll.result = pollResult{err: ctx.Err()}
			return
		}
	}

	// Budget exhausted: the flag comes down so the portal stops showing the
	// pending state, and the caller gets a terminal error.
	p.clearPending(ctx, purchaseID)
	metrics.IncReconcileOutcome("exhausted")
	p.logger.Warn().
		Str("purchase_id", purchaseID).
		Int("attempts", p.maxRetries).
		Msg("Reconciliation exhausted retry budget")
	poll.result = pollResult{err: ErrReconcileExhausted}
}

func (p *Poller) clearPending(ctx context.Context, purchaseID string) {
	if err := p.sessions.ClearPendingPoll(ctx, purchaseID); err != nil {
		p.logger.Warn().Err(err).Str("purchase_id", purchaseID).Msg("Failed to clear pending poll flag")
	}
}
