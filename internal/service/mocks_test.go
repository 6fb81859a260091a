package service

import (
	"context"
	"time"

	"konsult/internal/models"

	"github.com/stretchr/testify/mock"
)

type mockRepo struct {
	mock.Mock
}

func (m *mockRepo) GetConsultant(ctx context.Context, id int64) (*models.Consultant, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Consultant), args.Error(1)
}

func (m *mockRepo) ListActiveConsultants(ctx context.Context) ([]*models.Consultant, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Consultant), args.Error(1)
}

func (m *mockRepo) GetWeeklyTemplate(ctx context.Context, consultantID int64) (models.WeeklyTemplate, error) {
	args := m.Called(ctx, consultantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(models.WeeklyTemplate), args.Error(1)
}

func (m *mockRepo) GetBookedSlots(ctx context.Context, consultantID int64) ([]models.SlotRef, error) {
	args := m.Called(ctx, consultantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.SlotRef), args.Error(1)
}

func (m *mockRepo) GetBookedSlotMap(ctx context.Context, consultantID int64, date string) (map[string]bool, error) {
	args := m.Called(ctx, consultantID, date)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]bool), args.Error(1)
}

func (m *mockRepo) CreatePurchase(ctx context.Context, p *models.Purchase) error {
	return m.Called(ctx, p).Error(0)
}

func (m *mockRepo) GetPurchase(ctx context.Context, id string) (*models.Purchase, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Purchase), args.Error(1)
}

func (m *mockRepo) CreateBookingWithClaim(ctx context.Context, booking *models.Booking, run []models.SlotRef) error {
	return m.Called(ctx, booking, run).Error(0)
}

func (m *mockRepo) RescheduleBooking(ctx context.Context, bookingID string, newStart, newEnd time.Time, newDate, newTime string, newRun []models.SlotRef) (*models.Booking, error) {
	args := m.Called(ctx, bookingID, newStart, newEnd, newDate, newTime, newRun)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Booking), args.Error(1)
}

func (m *mockRepo) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Booking), args.Error(1)
}

func (m *mockRepo) GetBookingByPurchase(ctx context.Context, purchaseID string) (*models.Booking, error) {
	args := m.Called(ctx, purchaseID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Booking), args.Error(1)
}

func (m *mockRepo) GetBookingsByDateRange(ctx context.Context, start, end time.Time) ([]*models.Booking, error) {
	args := m.Called(ctx, start, end)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Booking), args.Error(1)
}

func (m *mockRepo) VerifyGuest(ctx context.Context, purchaseID, email, phone string) (*models.Purchase, *models.Booking, *models.Consultant, error) {
	args := m.Called(ctx, purchaseID, email, phone)
	var (
		purchase   *models.Purchase
		booking    *models.Booking
		consultant *models.Consultant
	)
	if args.Get(0) != nil {
		purchase = args.Get(0).(*models.Purchase)
	}
	if args.Get(1) != nil {
		booking = args.Get(1).(*models.Booking)
	}
	if args.Get(2) != nil {
		consultant = args.Get(2).(*models.Consultant)
	}
	return purchase, booking, consultant, args.Error(3)
}

type mockSyncer struct {
	mock.Mock
}

func (m *mockSyncer) EnqueueUpsert(ctx context.Context, booking *models.Booking) error {
	return m.Called(ctx, booking).Error(0)
}

func (m *mockSyncer) EnqueueStatusUpdate(ctx context.Context, bookingID, status string) error {
	return m.Called(ctx, bookingID, status).Error(0)
}

type mockAwaiter struct {
	mock.Mock
}

func (m *mockAwaiter) Await(ctx context.Context, purchaseID string) (*models.Booking, error) {
	args := m.Called(ctx, purchaseID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Booking), args.Error(1)
}
