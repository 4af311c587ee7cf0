package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"skolar/internal/config"
	"skolar/internal/database"
	"skolar/internal/metrics"
	"skolar/internal/models"
	"skolar/internal/remote"
	"skolar/internal/service"
	"skolar/internal/worker"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const requestIDHeader = "X-Request-ID"

// BookingAPI is what the HTTP layer needs from the booking flow.
type BookingAPI interface {
	CreateBooking(ctx context.Context, booking models.NewBooking) (service.CreateResult, error)
	PendingCount(ctx context.Context) (int, error)
	ListPending(ctx context.Context) ([]models.PendingBooking, error)
	GetPending(ctx context.Context, localID int64) (*models.PendingBooking, error)
	SyncNow(ctx context.Context) (*worker.SyncReport, error)
	Tutors(ctx context.Context) ([]models.Tutor, error)
	MyBookings(ctx context.Context) ([]models.Booking, error)
}

// HTTPServer exposes the booking flow to local UI shells.
type HTTPServer struct {
	cfg      config.APIConfig
	bookings BookingAPI
	server   *http.Server
	auth     *HTTPAuth
	logger   *zerolog.Logger
}

type syncItemResponse struct {
	LocalID  int64  `json:"local_id"`
	RemoteID string `json:"remote_id,omitempty"`
	Outcome  string `json:"outcome"`
	Error    string `json:"error,omitempty"`
}

type syncResponse struct {
	Attempted      int                `json:"attempted"`
	Synced         int                `json:"synced"`
	Failed         int                `json:"failed"`
	DeleteFailures int                `json:"delete_failures"`
	Items          []syncItemResponse `json:"items"`
}

func NewHTTPServer(cfg config.APIConfig, bookings BookingAPI, logger *zerolog.Logger) *HTTPServer {
	base := zerolog.Nop()
	if logger != nil {
		base = logger.With().Str("component", "http").Logger()
	}

	mux := http.NewServeMux()
	srv := &HTTPServer{cfg: cfg, bookings: bookings, logger: &base}
	srv.auth = NewHTTPAuth(cfg)

	mux.HandleFunc("/healthz", srv.handleHealth)
	mux.HandleFunc("/api/v1/bookings", srv.handleCreateBooking)
	mux.HandleFunc("/api/v1/bookings/mine", srv.handleMyBookings)
	mux.HandleFunc("/api/v1/pending", srv.handlePendingList)
	mux.HandleFunc("/api/v1/pending/count", srv.handlePendingCount)
	mux.HandleFunc("/api/v1/pending/", srv.handlePendingGet)
	mux.HandleFunc("/api/v1/sync", srv.handleSync)
	mux.HandleFunc("/api/v1/tutors", srv.handleTutors)

	handler := srv.loggingMiddleware(srv.auth.Wrap(mux))

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		// A sync pass may take several remote round trips.
		WriteTimeout: 2 * time.Minute,
	}

	return srv
}

func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
	}
	s.logger.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
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

func (s *HTTPServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *HTTPServer) handleCreateBooking(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("create_booking")
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var body models.NewBooking
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	res, err := s.bookings.CreateBooking(r.Context(), body)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	statusCode := http.StatusCreated
	if res.Queued {
		statusCode = http.StatusAccepted
	}
	writeJSON(w, statusCode, res)
}

func (s *HTTPServer) handlePendingList(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("pending_list")
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	pending, err := s.bookings.ListPending(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"pending": pending, "count": len(pending)})
}

func (s *HTTPServer) handlePendingCount(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("pending_count")
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	n, err := s.bookings.PendingCount(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"count": n})
}

func (s *HTTPServer) handlePendingGet(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("pending_get")
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	const prefix = "/api/v1/pending/"
	raw := strings.TrimSpace(strings.TrimPrefix(r.URL.Path, prefix))
	localID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || localID <= 0 {
		writeError(w, http.StatusBadRequest, "local id must be a positive integer")
		return
	}

	booking, err := s.bookings.GetPending(r.Context(), localID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

func (s *HTTPServer) handleSync(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("sync")
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	report, err := s.bookings.SyncNow(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	resp := syncResponse{
		Attempted:      report.Attempted,
		Synced:         report.Synced,
		Failed:         report.Failed,
		DeleteFailures: report.DeleteFailures,
		Items:          make([]syncItemResponse, 0, len(report.Items)),
	}
	for _, item := range report.Items {
		ir := syncItemResponse{LocalID: item.LocalID, RemoteID: item.RemoteID, Outcome: string(item.Outcome)}
		if item.Err != nil {
			ir.Error = item.Err.Error()
		}
		resp.Items = append(resp.Items, ir)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *HTTPServer) handleTutors(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("tutors")
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	tutors, err := s.bookings.Tutors(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tutors": tutors})
}

func (s *HTTPServer) handleMyBookings(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("my_bookings")
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	bookings, err := s.bookings.MyBookings(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"bookings": bookings})
}

func (s *HTTPServer) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	statusCode := http.StatusInternalServerError
	switch {
	case errors.Is(err, models.ErrInvalidInput):
		statusCode = http.StatusBadRequest
	case errors.Is(err, database.ErrPendingNotFound):
		statusCode = http.StatusNotFound
	case errors.Is(err, worker.ErrSyncInProgress):
		statusCode = http.StatusConflict
	case errors.Is(err, worker.ErrSyncAborted), errors.Is(err, service.ErrNotSignedIn):
		statusCode = http.StatusUnauthorized
	case errors.Is(err, remote.ErrRemoteRejected), errors.Is(err, remote.ErrNetworkUnavailable):
		statusCode = http.StatusBadGateway
	}

	if statusCode >= http.StatusInternalServerError {
		s.logger.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	}
	writeError(w, statusCode, err.Error())
}

func (s *HTTPServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, requestID)

		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)

		s.logger.Info().
			Str("request_id", requestID).
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
