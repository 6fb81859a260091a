package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"konsult/internal/config"
	"konsult/internal/database"
	"konsult/internal/metrics"
	"konsult/internal/models"
	"konsult/internal/reconcile"
	"konsult/internal/schedule"
	"konsult/internal/service"

	"github.com/rs/zerolog"
)

type SchedulerAPI interface {
	ListConsultants(ctx context.Context) ([]*models.Consultant, error)
	GetAvailability(ctx context.Context, consultantID int64, date string, durationMinutes int) ([]schedule.Slot, error)
}

type BookingAPI interface {
	ConfirmPurchase(ctx context.Context, purchaseID, date, startTime string) (*models.Booking, error)
	Reschedule(ctx context.Context, purchaseID, newDate, newTime, email, phone string, trusted bool) (*models.Booking, error)
	AwaitBooking(ctx context.Context, purchaseID string) (*models.Booking, error)
	GetBookingByPurchase(ctx context.Context, purchaseID string) (*models.Booking, error)
	RegisterPurchase(ctx context.Context, purchase *models.Purchase) error
}

type GuestAPI interface {
	Verify(ctx context.Context, purchaseID, email, phone string) (*service.VerifyResult, error)
}

// Exporter streams the back-office bookings workbook.
type Exporter interface {
	WriteBookings(ctx context.Context, from, to time.Time, w io.Writer) error
}

// HTTPServer exposes the consultation booking API for the portal and the
// back office.
type HTTPServer struct {
	cfg       config.APIConfig
	scheduler SchedulerAPI
	bookings  BookingAPI
	guests    GuestAPI
	exporter  Exporter
	logger    *zerolog.Logger
	server    *http.Server
	auth      *HTTPAuth
}

func NewHTTPServer(cfg config.APIConfig, scheduler SchedulerAPI, bookings BookingAPI, guests GuestAPI, exporter Exporter, logger *zerolog.Logger) *HTTPServer {
	srv := &HTTPServer{
		cfg:       cfg,
		scheduler: scheduler,
		bookings:  bookings,
		guests:    guests,
		exporter:  exporter,
		logger:    logger,
	}
	srv.auth = NewHTTPAuth(cfg)

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      60 * time.Second,
	}

	return srv
}

// Handler builds the routed, authenticated, logged handler chain.
func (s *HTTPServer) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/v1/consultants", s.handleConsultants)
	mux.HandleFunc("/api/v1/availability/", s.handleAvailability)
	mux.HandleFunc("/api/v1/guest/verify", s.handleGuestVerify)
	mux.HandleFunc("/api/v1/purchases/", s.handlePurchases)
	mux.HandleFunc("/api/v1/webhooks/payment", s.handlePaymentWebhook)
	mux.HandleFunc("/api/v1/export/bookings.xlsx", s.handleExport)
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/readyz", s.handleHealthz)

	return s.loggingMiddleware(s.auth.Wrap(mux))
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
	}
	s.logger.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *HTTPServer) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *HTTPServer) handleConsultants(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("consultants")
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	consultants, err := s.scheduler.ListConsultants(r.Context())
	if err != nil {
		s.writeFailure(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"consultants": consultants})
}

func (s *HTTPServer) handleAvailability(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("availability")
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	const prefix = "/api/v1/availability/"
	rawID := strings.TrimSpace(strings.TrimPrefix(r.URL.Path, prefix))
	if rawID == "" || strings.Contains(rawID, "/") {
		writeError(w, http.StatusBadRequest, "consultant id is required")
		return
	}
	consultantID, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid consultant id")
		return
	}

	dateStr := strings.TrimSpace(r.URL.Query().Get("date"))
	if dateStr == "" {
		writeError(w, http.StatusBadRequest, "date is required")
		return
	}
	if _, err := time.Parse(models.SlotDateFormat, dateStr); err != nil {
		writeError(w, http.StatusBadRequest, "invalid date format; expected YYYY-MM-DD")
		return
	}

	duration := models.DefaultIncrementMinutes
	if raw := strings.TrimSpace(r.URL.Query().Get("duration")); raw != "" {
		duration, err = strconv.Atoi(raw)
		if err != nil || duration <= 0 {
			writeError(w, http.StatusBadRequest, "invalid duration")
			return
		}
	}

	slots, err := s.scheduler.GetAvailability(r.Context(), consultantID, dateStr, duration)
	if err != nil {
		s.writeFailure(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"consultant_id": consultantID,
		"date":          dateStr,
		"duration":      duration,
		"slots":         slots,
	})
}

func (s *HTTPServer) handleGuestVerify(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("guest_verify")
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	type request struct {
		PurchaseID string `json:"purchase_id"`
		Email      string `json:"email"`
		Phone      string `json:"phone"`
	}

	var body request
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(body.PurchaseID) == "" {
		writeError(w, http.StatusBadRequest, "purchase_id is required")
		return
	}

	result, err := s.guests.Verify(r.Context(), body.PurchaseID, body.Email, body.Phone)
	if err != nil {
		s.writeFailure(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// handlePurchases routes /api/v1/purchases/{id}/booking and
// /api/v1/purchases/{id}/reschedule.
func (s *HTTPServer) handlePurchases(w http.ResponseWriter, r *http.Request) {
	const prefix = "/api/v1/purchases/"
	rest := strings.TrimPrefix(r.URL.Path, prefix)
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || strings.TrimSpace(parts[0]) == "" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	purchaseID := parts[0]

	switch parts[1] {
	case "booking":
		s.handleGetBooking(w, r, purchaseID)
	case "reschedule":
		s.handleReschedule(w, r, purchaseID)
	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

func (s *HTTPServer) handleGetBooking(w http.ResponseWriter, r *http.Request, purchaseID string) {
	metrics.IncHTTP("get_booking")
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	wait := r.URL.Query().Get("wait") == "1"

	var (
		booking *models.Booking
		err     error
	)
	if wait {
		booking, err = s.bookings.AwaitBooking(r.Context(), purchaseID)
	} else {
		booking, err = s.bookings.GetBookingByPurchase(r.Context(), purchaseID)
	}
	if err != nil {
		s.writeFailure(w, err)
		return
	}

	writeJSON(w, http.StatusOK, booking)
}

func (s *HTTPServer) handleReschedule(w http.ResponseWriter, r *http.Request, purchaseID string) {
	metrics.IncHTTP("reschedule")
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	type request struct {
		Date  string `json:"date"`
		Time  string `json:"time"`
		Email string `json:"email"`
		Phone string `json:"phone"`
	}

	var body request
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if body.Date == "" || body.Time == "" {
		writeError(w, http.StatusBadRequest, "date and time are required")
		return
	}

	// Portal backend calls act for the logged-in owner and omit credentials;
	// guest calls must carry them and get re-verified inside the service.
	trusted := body.Email == "" && body.Phone == ""

	booking, err := s.bookings.Reschedule(r.Context(), purchaseID, body.Date, body.Time, body.Email, body.Phone, trusted)
	if err != nil {
		s.writeFailure(w, err)
		return
	}

	writeJSON(w, http.StatusOK, booking)
}

// handlePaymentWebhook is the payment-capture pipeline entry: the purchase
// is paid, write its booking. The purchase block is optional and lets the
// pipeline register the purchase and book in one call.
func (s *HTTPServer) handlePaymentWebhook(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("payment_webhook")
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	type request struct {
		PurchaseID string           `json:"purchase_id"`
		Date       string           `json:"date"`
		Time       string           `json:"time"`
		Purchase   *models.Purchase `json:"purchase,omitempty"`
	}

	var body request
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if body.PurchaseID == "" || body.Date == "" || body.Time == "" {
		writeError(w, http.StatusBadRequest, "purchase_id, date and time are required")
		return
	}

	if body.Purchase != nil {
		body.Purchase.ID = body.PurchaseID
		if err := s.bookings.RegisterPurchase(r.Context(), body.Purchase); err != nil {
			s.writeFailure(w, err)
			return
		}
	}

	booking, err := s.bookings.ConfirmPurchase(r.Context(), body.PurchaseID, body.Date, body.Time)
	if err != nil {
		s.writeFailure(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, booking)
}

func (s *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("export")
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.exporter == nil {
		writeError(w, http.StatusNotImplemented, "export is not configured")
		return
	}

	now := time.Now()
	from := now.AddDate(0, -1, 0)
	to := now.AddDate(0, 1, 0)

	var err error
	if raw := strings.TrimSpace(r.URL.Query().Get("from")); raw != "" {
		from, err = time.Parse(models.SlotDateFormat, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid from date")
			return
		}
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("to")); raw != "" {
		to, err = time.Parse(models.SlotDateFormat, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid to date")
			return
		}
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="bookings.xlsx"`)
	if err := s.exporter.WriteBookings(r.Context(), from, to, w); err != nil {
		s.logger.Error().Err(err).Msg("export failed")
	}
}

// writeFailure maps domain errors onto the HTTP status taxonomy. Guest
// verification failures stay uniform regardless of cause.
func (s *HTTPServer) writeFailure(w http.ResponseWriter, err error) {
	var conflict *database.SlotConflictError

	switch {
	case errors.As(err, &conflict):
		writeJSON(w, http.StatusConflict, map[string]any{
			"error": "slot_conflict",
			"slot":  conflict.Slot,
		})
	case errors.Is(err, database.ErrSlotConflict):
		writeError(w, http.StatusConflict, "slot_conflict")
	case errors.Is(err, database.ErrAlreadyRescheduled):
		writeError(w, http.StatusConflict, "already_rescheduled")
	case errors.Is(err, database.ErrVerificationFailed):
		writeError(w, http.StatusUnauthorized, "verification failed")
	case errors.Is(err, reconcile.ErrReconcileExhausted):
		writeError(w, http.StatusNotFound, "booking_not_found")
	case errors.Is(err, database.ErrBookingNotFound),
		errors.Is(err, database.ErrPurchaseNotFound),
		errors.Is(err, database.ErrConsultantNotFound):
		writeError(w, http.StatusNotFound, "not_found")
	case errors.Is(err, database.ErrPastSlot):
		writeError(w, http.StatusBadRequest, "slot_in_past")
	case errors.Is(err, database.ErrNotAvailable):
		writeError(w, http.StatusBadRequest, "slot_not_available")
	case errors.Is(err, database.ErrConcurrentModification):
		writeError(w, http.StatusConflict, "concurrent_modification")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusRequestTimeout, "request canceled")
	default:
		s.logger.Error().Err(err).Msg("internal error")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (s *HTTPServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)
		s.logger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", recorder.status).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
