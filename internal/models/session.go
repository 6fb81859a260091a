package models

import "time"

// GuestSession caches a successful guest verification for the rest of the
// portal session. It is a UI convenience only: mutating calls always
// re-verify credentials server-side.
type GuestSession struct {
	PurchaseID   string    `json:"purchase_id"`
	Email        string    `json:"email"`
	Phone        string    `json:"phone"`
	BookingID    string    `json:"booking_id,omitempty"`
	ConsultantID int64     `json:"consultant_id,omitempty"`
	VerifiedAt   time.Time `json:"verified_at"`
}
