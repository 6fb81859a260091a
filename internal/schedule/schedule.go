package schedule

import (
	"fmt"
	"time"

	"konsult/internal/models"
)

// SlotState annotates a template start time for a given day.
type SlotState string

const (
	// SlotAvailable: the whole run the session needs is free.
	SlotAvailable SlotState = "available"
	// SlotBooked: the start increment itself is claimed.
	SlotBooked SlotState = "booked"
	// SlotPast: the date is today in the consultant's timezone and the
	// start time is not strictly later than the current time-of-day there.
	SlotPast SlotState = "past"
	// SlotInsufficientRun: a later increment of the run is missing from the
	// template or already claimed.
	SlotInsufficientRun SlotState = "insufficient-run"
)

// Slot is one annotated candidate start time.
type Slot struct {
	Time  string    `json:"time"`
	State SlotState `json:"state"`
}

// SlotsNeeded returns how many increments a session of durationMinutes
// occupies. Partial trailing increments consume a full slot.
func SlotsNeeded(durationMinutes, incrementMinutes int) int {
	if incrementMinutes <= 0 {
		incrementMinutes = models.DefaultIncrementMinutes
	}
	if durationMinutes <= 0 {
		return 1
	}
	return (durationMinutes + incrementMinutes - 1) / incrementMinutes
}

// ForDay computes the annotated slot list for one calendar day.
//
// template holds the start times for the date's weekday, in template order.
// booked holds the "15:04" times already claimed on that date for the
// consultant. All "past" comparisons happen in loc, the consultant's fixed
// operating timezone; mixing in the viewer's timezone silently creates
// double-booking or false-past windows.
func ForDay(
	template []string,
	booked map[string]bool,
	date time.Time,
	durationMinutes int,
	incrementMinutes int,
	now time.Time,
	loc *time.Location,
) ([]Slot, error) {
	if loc == nil {
		loc = time.UTC
	}
	if incrementMinutes <= 0 {
		incrementMinutes = models.DefaultIncrementMinutes
	}

	slots := make([]Slot, 0, len(template))
	if len(template) == 0 {
		return slots, nil
	}

	needed := SlotsNeeded(durationMinutes, incrementMinutes)

	localNow := now.In(loc)
	dateInLoc := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, loc)
	nowDate := time.Date(localNow.Year(), localNow.Month(), localNow.Day(), 0, 0, 0, 0, loc)
	isToday := dateInLoc.Equal(nowDate)
	isPastDay := dateInLoc.Before(nowDate)
	nowMinutes := localNow.Hour()*60 + localNow.Minute()

	templateSet := make(map[string]bool, len(template))
	for _, t := range template {
		templateSet[t] = true
	}

	for _, start := range template {
		startMinutes, err := parseClock(start)
		if err != nil {
			return nil, fmt.Errorf("template time %q: %w", start, err)
		}

		state := SlotAvailable
		switch {
		case booked[start]:
			state = SlotBooked
		case isPastDay, isToday && startMinutes <= nowMinutes:
			state = SlotPast
		case needed > 1:
			for k := 1; k < needed; k++ {
				next := formatClock(startMinutes + k*incrementMinutes)
				if !templateSet[next] || booked[next] {
					state = SlotInsufficientRun
					break
				}
			}
		}

		slots = append(slots, Slot{Time: start, State: state})
	}

	return slots, nil
}

// Run expands a start time into the SlotRefs the session claims.
func Run(date time.Time, start string, durationMinutes, incrementMinutes int) ([]models.SlotRef, error) {
	startMinutes, err := parseClock(start)
	if err != nil {
		return nil, fmt.Errorf("start time %q: %w", start, err)
	}
	if incrementMinutes <= 0 {
		incrementMinutes = models.DefaultIncrementMinutes
	}

	needed := SlotsNeeded(durationMinutes, incrementMinutes)
	dateStr := date.Format(models.SlotDateFormat)

	refs := make([]models.SlotRef, 0, needed)
	for k := 0; k < needed; k++ {
		minutes := startMinutes + k*incrementMinutes
		if minutes >= 24*60 {
			// Midnight-spanning sessions are not modeled.
			return nil, fmt.Errorf("run starting at %s spills past midnight", start)
		}
		refs = append(refs, models.SlotRef{Date: dateStr, Time: formatClock(minutes)})
	}
	return refs, nil
}

// AppointmentWindow converts a chosen slot into concrete start/end instants
// in the consultant's timezone. End is start plus the full package duration,
// not the rounded-up run length.
func AppointmentWindow(date time.Time, start string, durationMinutes int, loc *time.Location) (time.Time, time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	startMinutes, err := parseClock(start)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("start time %q: %w", start, err)
	}

	s := time.Date(date.Year(), date.Month(), date.Day(), startMinutes/60, startMinutes%60, 0, 0, loc)
	return s, s.Add(time.Duration(durationMinutes) * time.Minute), nil
}

func parseClock(v string) (int, error) {
	t, err := time.Parse(models.SlotTimeFormat, v)
	if err != nil {
		return 0, err
	}
	return t.Hour()*60 + t.Minute(), nil
}

func formatClock(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}
