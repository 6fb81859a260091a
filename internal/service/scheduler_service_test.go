package service

import (
	"context"
	"io"
	"testing"
	"time"

	"konsult/internal/models"
	"konsult/internal/schedule"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSchedulerService(repo *mockRepo) *SchedulerService {
	logger := zerolog.New(io.Discard)
	return NewSchedulerService(repo, &logger)
}

func TestGetAvailability(t *testing.T) {
	repo := new(mockRepo)
	svc := newSchedulerService(repo)
	ctx := context.Background()

	day := time.Now().UTC().AddDate(0, 0, 7)
	dateStr := day.Format(models.SlotDateFormat)
	template := models.WeeklyTemplate{
		int(day.Weekday()): {"09:00", "09:30", "10:00"},
	}

	repo.On("GetConsultant", ctx, int64(1)).Return(testConsultant(), nil)
	repo.On("GetWeeklyTemplate", ctx, int64(1)).Return(template, nil)
	repo.On("GetBookedSlotMap", ctx, int64(1), dateStr).Return(map[string]bool{"09:30": true}, nil)

	slots, err := svc.GetAvailability(ctx, 1, dateStr, 60)
	require.NoError(t, err)
	require.Len(t, slots, 3)

	// 09:00 needs 09:30 too, which is claimed.
	assert.Equal(t, schedule.SlotInsufficientRun, slots[0].State)
	assert.Equal(t, schedule.SlotBooked, slots[1].State)
	assert.Equal(t, schedule.SlotInsufficientRun, slots[2].State)
}

func TestGetAvailabilityEmptyWeekday(t *testing.T) {
	repo := new(mockRepo)
	svc := newSchedulerService(repo)
	ctx := context.Background()

	day := time.Now().UTC().AddDate(0, 0, 7)
	dateStr := day.Format(models.SlotDateFormat)
	// Template covers a different weekday only.
	template := models.WeeklyTemplate{
		(int(day.Weekday()) + 1) % 7: {"09:00"},
	}

	repo.On("GetConsultant", ctx, int64(1)).Return(testConsultant(), nil)
	repo.On("GetWeeklyTemplate", ctx, int64(1)).Return(template, nil)
	repo.On("GetBookedSlotMap", ctx, int64(1), dateStr).Return(map[string]bool{}, nil)

	slots, err := svc.GetAvailability(ctx, 1, dateStr, 30)
	require.NoError(t, err)
	assert.Empty(t, slots)
}

func TestGetAvailabilityBadDate(t *testing.T) {
	repo := new(mockRepo)
	svc := newSchedulerService(repo)
	ctx := context.Background()

	repo.On("GetConsultant", ctx, int64(1)).Return(testConsultant(), nil)

	_, err := svc.GetAvailability(ctx, 1, "07.09.2026", 30)
	assert.Error(t, err)
}

func TestGetAvailabilityBadTimezone(t *testing.T) {
	repo := new(mockRepo)
	svc := newSchedulerService(repo)
	ctx := context.Background()

	broken := testConsultant()
	broken.Timezone = "Mars/Olympus"
	repo.On("GetConsultant", ctx, int64(1)).Return(broken, nil)

	_, err := svc.GetAvailability(ctx, 1, "2026-09-07", 30)
	assert.Error(t, err)
}

func TestListConsultants(t *testing.T) {
	repo := new(mockRepo)
	svc := newSchedulerService(repo)
	ctx := context.Background()

	consultants := []*models.Consultant{testConsultant()}
	repo.On("ListActiveConsultants", ctx).Return(consultants, nil)

	got, err := svc.ListConsultants(ctx)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}
