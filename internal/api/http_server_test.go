package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"konsult/internal/config"
	"konsult/internal/database"
	"konsult/internal/models"
	"konsult/internal/reconcile"
	"konsult/internal/schedule"
	"konsult/internal/service"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubScheduler struct {
	consultants []*models.Consultant
	slots       []schedule.Slot
	err         error
}

func (s *stubScheduler) ListConsultants(ctx context.Context) ([]*models.Consultant, error) {
	return s.consultants, s.err
}

func (s *stubScheduler) GetAvailability(ctx context.Context, consultantID int64, date string, durationMinutes int) ([]schedule.Slot, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.slots, nil
}

type stubBookings struct {
	booking       *models.Booking
	confirmErr    error
	rescheduleErr error
	awaitErr      error
	getErr        error
	lastTrusted   bool
}

func (s *stubBookings) ConfirmPurchase(ctx context.Context, purchaseID, date, startTime string) (*models.Booking, error) {
	if s.confirmErr != nil {
		return nil, s.confirmErr
	}
	return s.booking, nil
}

func (s *stubBookings) Reschedule(ctx context.Context, purchaseID, newDate, newTime, email, phone string, trusted bool) (*models.Booking, error) {
	s.lastTrusted = trusted
	if s.rescheduleErr != nil {
		return nil, s.rescheduleErr
	}
	return s.booking, nil
}

func (s *stubBookings) AwaitBooking(ctx context.Context, purchaseID string) (*models.Booking, error) {
	if s.awaitErr != nil {
		return nil, s.awaitErr
	}
	return s.booking, nil
}

func (s *stubBookings) GetBookingByPurchase(ctx context.Context, purchaseID string) (*models.Booking, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	return s.booking, nil
}

func (s *stubBookings) RegisterPurchase(ctx context.Context, purchase *models.Purchase) error {
	return nil
}

type stubGuests struct {
	result *service.VerifyResult
	err    error
}

func (s *stubGuests) Verify(ctx context.Context, purchaseID, email, phone string) (*service.VerifyResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

type stubExporter struct{}

func (s *stubExporter) WriteBookings(ctx context.Context, from, to time.Time, w io.Writer) error {
	_, err := w.Write([]byte("xlsx"))
	return err
}

func newTestServer(scheduler SchedulerAPI, bookings BookingAPI, guests GuestAPI, exporter Exporter) *httptest.Server {
	logger := zerolog.New(io.Discard)
	cfg := config.APIConfig{Enabled: false}
	srv := NewHTTPServer(cfg, scheduler, bookings, guests, exporter, &logger)
	return httptest.NewServer(srv.Handler())
}

func TestConsultants(t *testing.T) {
	scheduler := &stubScheduler{
		consultants: []*models.Consultant{
			{ID: 1, Name: "Dr. Ivanova", Timezone: "Europe/Moscow", IncrementMinutes: 30},
		},
	}
	ts := newTestServer(scheduler, nil, nil, nil)
	t.Cleanup(ts.Close)

	resp, err := http.Get(ts.URL + "/api/v1/consultants")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Consultants []models.Consultant `json:"consultants"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body.Consultants, 1)
	assert.Equal(t, "Dr. Ivanova", body.Consultants[0].Name)
}

func TestAvailabilitySuccess(t *testing.T) {
	scheduler := &stubScheduler{
		slots: []schedule.Slot{
			{Time: "09:00", State: schedule.SlotAvailable},
			{Time: "09:30", State: schedule.SlotBooked},
		},
	}
	ts := newTestServer(scheduler, nil, nil, nil)
	t.Cleanup(ts.Close)

	url := fmt.Sprintf("%s/api/v1/availability/1?date=2026-09-07&duration=60", ts.URL)
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Slots []schedule.Slot `json:"slots"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body.Slots, 2)
	assert.Equal(t, schedule.SlotAvailable, body.Slots[0].State)
	assert.Equal(t, schedule.SlotBooked, body.Slots[1].State)
}

func TestAvailabilityValidation(t *testing.T) {
	ts := newTestServer(&stubScheduler{}, nil, nil, nil)
	t.Cleanup(ts.Close)

	cases := []struct {
		name string
		url  string
	}{
		{"MissingDate", "/api/v1/availability/1"},
		{"BadDate", "/api/v1/availability/1?date=07.09.2026"},
		{"BadID", "/api/v1/availability/abc?date=2026-09-07"},
		{"BadDuration", "/api/v1/availability/1?date=2026-09-07&duration=-30"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, err := http.Get(ts.URL + tc.url)
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}
}

func TestGuestVerifySuccess(t *testing.T) {
	guests := &stubGuests{
		result: &service.VerifyResult{
			Purchase:   &models.Purchase{ID: "p-1"},
			Booking:    &models.Booking{ID: "b-1"},
			Consultant: &models.Consultant{ID: 1},
		},
	}
	ts := newTestServer(nil, nil, guests, nil)
	t.Cleanup(ts.Close)

	payload := `{"purchase_id":"p-1","email":"g@example.com","phone":"123"}`
	resp, err := http.Post(ts.URL+"/api/v1/guest/verify", "application/json", strings.NewReader(payload))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body service.VerifyResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "p-1", body.Purchase.ID)
	assert.Equal(t, "b-1", body.Booking.ID)
}

func TestGuestVerifyUniformFailure(t *testing.T) {
	guests := &stubGuests{err: database.ErrVerificationFailed}
	ts := newTestServer(nil, nil, guests, nil)
	t.Cleanup(ts.Close)

	payload := `{"purchase_id":"missing","email":"x","phone":"y"}`
	resp, err := http.Post(ts.URL+"/api/v1/guest/verify", "application/json", strings.NewReader(payload))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "verification failed", body["error"])
}

func TestGetBookingImmediate(t *testing.T) {
	bookings := &stubBookings{booking: &models.Booking{ID: "b-1", PurchaseID: "p-1"}}
	ts := newTestServer(nil, bookings, nil, nil)
	t.Cleanup(ts.Close)

	resp, err := http.Get(ts.URL + "/api/v1/purchases/p-1/booking")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestGetBookingWaitExhausted(t *testing.T) {
	bookings := &stubBookings{awaitErr: reconcile.ErrReconcileExhausted}
	ts := newTestServer(nil, bookings, nil, nil)
	t.Cleanup(ts.Close)

	resp, err := http.Get(ts.URL + "/api/v1/purchases/p-1/booking?wait=1")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "booking_not_found", body["error"])
}

func TestRescheduleStatuses(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"SlotConflict", &database.SlotConflictError{Slot: models.SlotRef{Date: "2026-09-07", Time: "10:00"}}, http.StatusConflict, "slot_conflict"},
		{"AlreadyRescheduled", database.ErrAlreadyRescheduled, http.StatusConflict, "already_rescheduled"},
		{"BadCredentials", database.ErrVerificationFailed, http.StatusUnauthorized, "verification failed"},
		{"NoBooking", database.ErrBookingNotFound, http.StatusNotFound, "not_found"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			bookings := &stubBookings{rescheduleErr: tc.err}
			ts := newTestServer(nil, bookings, nil, nil)
			t.Cleanup(ts.Close)

			payload := `{"date":"2026-09-07","time":"10:00","email":"g@example.com","phone":"123"}`
			resp, err := http.Post(ts.URL+"/api/v1/purchases/p-1/reschedule", "application/json", strings.NewReader(payload))
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, tc.status, resp.StatusCode)

			var body map[string]any
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			assert.Equal(t, tc.code, body["error"])
		})
	}
}

func TestRescheduleTrustedFlag(t *testing.T) {
	bookings := &stubBookings{booking: &models.Booking{ID: "b-1"}}
	ts := newTestServer(nil, bookings, nil, nil)
	t.Cleanup(ts.Close)

	// Credentials present: the guest path, not trusted.
	payload := `{"date":"2026-09-07","time":"10:00","email":"g@example.com","phone":"123"}`
	resp, err := http.Post(ts.URL+"/api/v1/purchases/p-1/reschedule", "application/json", strings.NewReader(payload))
	require.NoError(t, err)
	resp.Body.Close()
	assert.False(t, bookings.lastTrusted)

	// No credentials: the portal backend acting for the owner.
	payload = `{"date":"2026-09-07","time":"10:00"}`
	resp, err = http.Post(ts.URL+"/api/v1/purchases/p-1/reschedule", "application/json", strings.NewReader(payload))
	require.NoError(t, err)
	resp.Body.Close()
	assert.True(t, bookings.lastTrusted)
}

func TestPaymentWebhookCreatesBooking(t *testing.T) {
	bookings := &stubBookings{booking: &models.Booking{ID: "b-1", PurchaseID: "p-1", Status: models.StatusConfirmed}}
	ts := newTestServer(nil, bookings, nil, nil)
	t.Cleanup(ts.Close)

	payload := `{"purchase_id":"p-1","date":"2026-09-07","time":"09:00"}`
	resp, err := http.Post(ts.URL+"/api/v1/webhooks/payment", "application/json", strings.NewReader(payload))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var body models.Booking
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "b-1", body.ID)
}

func TestPaymentWebhookConflict(t *testing.T) {
	bookings := &stubBookings{confirmErr: &database.SlotConflictError{Slot: models.SlotRef{Date: "2026-09-07", Time: "09:00"}}}
	ts := newTestServer(nil, bookings, nil, nil)
	t.Cleanup(ts.Close)

	payload := `{"purchase_id":"p-1","date":"2026-09-07","time":"09:00"}`
	resp, err := http.Post(ts.URL+"/api/v1/webhooks/payment", "application/json", strings.NewReader(payload))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusConflict, resp.StatusCode)

	var body struct {
		Error string         `json:"error"`
		Slot  models.SlotRef `json:"slot"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "slot_conflict", body.Error)
	assert.Equal(t, "09:00", body.Slot.Time)
}

func TestPaymentWebhookValidation(t *testing.T) {
	ts := newTestServer(nil, &stubBookings{}, nil, nil)
	t.Cleanup(ts.Close)

	resp, err := http.Post(ts.URL+"/api/v1/webhooks/payment", "application/json", bytes.NewReader([]byte(`{"purchase_id":"p-1"}`)))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestExport(t *testing.T) {
	ts := newTestServer(nil, nil, nil, &stubExporter{})
	t.Cleanup(ts.Close)

	resp, err := http.Get(ts.URL + "/api/v1/export/bookings.xlsx?from=2026-09-01&to=2026-09-30")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "spreadsheetml")

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "xlsx", string(data))
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(nil, nil, nil, nil)
	t.Cleanup(ts.Close)

	for _, path := range []string{"/healthz", "/readyz"} {
		resp, err := http.Get(ts.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	}
}
