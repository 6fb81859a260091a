package models

import "time"

type Booking struct {
	ID               string    `json:"id"`
	PurchaseID       string    `json:"purchase_id"`
	ConsultantID     int64     `json:"consultant_id"`
	AppointmentStart time.Time `json:"appointment_start"`
	AppointmentEnd   time.Time `json:"appointment_end"`
	SlotDate         string    `json:"slot_date"` // 2006-01-02 in the consultant's timezone
	SlotTime         string    `json:"slot_time"` // 15:04
	DurationMinutes  int       `json:"duration_minutes"`
	Status           string    `json:"status"` // confirmed, rescheduled, cancelled, completed
	RescheduleCount  int       `json:"reschedule_count"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
	Version          int64     `json:"version"`
}

// CanReschedule reports whether the single allowed reschedule is still unused.
func (b *Booking) CanReschedule() bool {
	return b.RescheduleCount < MaxRescheduleCount &&
		(b.Status == StatusConfirmed || b.Status == StatusRescheduled)
}

// SlotRef identifies one claimed increment on a consultant's calendar.
type SlotRef struct {
	Date string `json:"date"` // 2006-01-02
	Time string `json:"time"` // 15:04
}
