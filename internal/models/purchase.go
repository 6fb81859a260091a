package models

import "time"

// Purchase is the record the commerce pipeline writes when a consultation
// package is paid for. konsult only reads it; the linked booking appears
// later, written out-of-band by the payment-capture pipeline.
type Purchase struct {
	ID              string    `json:"id"`
	ConsultantID    int64     `json:"consultant_id"`
	PackageName     string    `json:"package_name"`
	DurationMinutes int       `json:"duration_minutes"`
	Email           string    `json:"email"`
	Phone           string    `json:"phone"`
	BookingID       *string   `json:"booking_id,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}
