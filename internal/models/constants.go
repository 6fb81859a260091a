package models

import "time"

const (
	StatusConfirmed   = "confirmed"
	StatusRescheduled = "rescheduled"
	StatusCancelled   = "cancelled"
	StatusCompleted   = "completed"
)

const (
	// DefaultIncrementMinutes is the template granularity.
	DefaultIncrementMinutes = 30

	// MaxRescheduleCount: a booking may be rescheduled at most once.
	MaxRescheduleCount = 1

	// ReconcileMaxRetries is how many times the post-purchase poller asks
	// for a booking the payment pipeline has not written yet.
	ReconcileMaxRetries = 10

	// ReconcileRetryDelay separates poll attempts. Fixed, not exponential:
	// the expected pipeline latency is short and bounded.
	ReconcileRetryDelay = 1500 * time.Millisecond

	// GuestSessionTTL время жизни кэша верификации гостя
	GuestSessionTTL = 30 * 60 // 30 minutes in seconds

	// PendingPollTTL bounds how long a pending-poll flag can outlive its loop.
	PendingPollTTL = 5 * 60 // 5 minutes in seconds

	// WorkerQueueSize is the in-memory sheets queue capacity.
	WorkerQueueSize = 1000

	// SheetsCacheTTL время жизни кэша строк Google Sheets
	SheetsCacheTTL = 60 * 60 // 1 hour in seconds
)

const (
	SlotDateFormat = "2006-01-02"
	SlotTimeFormat = "15:04"
)
