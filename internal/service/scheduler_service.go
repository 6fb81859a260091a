package service

import (
	"context"
	"fmt"
	"time"

	"konsult/internal/database"
	"konsult/internal/domain"
	"konsult/internal/models"
	"konsult/internal/schedule"

	"github.com/rs/zerolog"
)

// SchedulerService answers "what can this consultant take on that day":
// it assembles the weekly template, the claimed slots and the clock into
// an annotated slot list. Read-only; the claim transaction is the only
// authoritative availability check.
type SchedulerService struct {
	repo   domain.Repository
	logger *zerolog.Logger
}

func NewSchedulerService(repo domain.Repository, logger *zerolog.Logger) *SchedulerService {
	return &SchedulerService{repo: repo, logger: logger}
}

func (s *SchedulerService) ListConsultants(ctx context.Context) ([]*models.Consultant, error) {
	return s.repo.ListActiveConsultants(ctx)
}

func (s *SchedulerService) GetConsultant(ctx context.Context, id int64) (*models.Consultant, error) {
	return s.repo.GetConsultant(ctx, id)
}

// GetAvailability returns the annotated slot list for one consultant and day.
// durationMinutes comes from the purchased package; it decides how many
// consecutive template increments a candidate start must have free.
func (s *SchedulerService) GetAvailability(ctx context.Context, consultantID int64, date string, durationMinutes int) ([]schedule.Slot, error) {
	consultant, err := s.repo.GetConsultant(ctx, consultantID)
	if err != nil {
		return nil, err
	}

	loc, err := time.LoadLocation(consultant.Timezone)
	if err != nil {
		return nil, fmt.Errorf("consultant %d timezone %q: %w", consultantID, consultant.Timezone, err)
	}

	day, err := time.ParseInLocation(models.SlotDateFormat, date, loc)
	if err != nil {
		return nil, fmt.Errorf("%w: bad date %q", database.ErrNotAvailable, date)
	}

	template, err := s.repo.GetWeeklyTemplate(ctx, consultantID)
	if err != nil {
		return nil, err
	}

	booked, err := s.repo.GetBookedSlotMap(ctx, consultantID, date)
	if err != nil {
		return nil, err
	}

	return schedule.ForDay(
		template[int(day.Weekday())],
		booked,
		day,
		durationMinutes,
		consultant.IncrementMinutes,
		time.Now(),
		loc,
	)
}
