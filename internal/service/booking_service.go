package service

import (
	"context"
	"errors"
	"fmt"

	"skolar/internal/domain"
	"skolar/internal/events"
	"skolar/internal/metrics"
	"skolar/internal/models"
	"skolar/internal/worker"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var ErrNotSignedIn = errors.New("not signed in")

// CreateResult tells the caller whether the booking reached the remote
// service or was queued for a later sync.
type CreateResult struct {
	RemoteID string `json:"remote_id,omitempty"`
	Queued   bool   `json:"queued"`
	LocalID  int64  `json:"local_id,omitempty"`
	// OnlineErr is why the online attempt failed when Queued is set.
	OnlineErr error `json:"-"`
}

// BookingService is the booking-creation flow: online first, offline queue
// as fallback, and manual sync of the queue.
type BookingService struct {
	store       domain.PendingStore
	remote      domain.RemoteBookings
	credentials domain.CredentialProvider
	engine      *worker.SyncEngine
	eventBus    domain.EventPublisher
	logger      *zerolog.Logger
}

func NewBookingService(
	store domain.PendingStore,
	remote domain.RemoteBookings,
	credentials domain.CredentialProvider,
	engine *worker.SyncEngine,
	eventBus domain.EventPublisher,
	logger *zerolog.Logger,
) *BookingService {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &BookingService{
		store:       store,
		remote:      remote,
		credentials: credentials,
		engine:      engine,
		eventBus:    eventBus,
		logger:      logger,
	}
}

// CreateBooking tries the remote service and queues the booking locally
// when that fails for any reason.
func (s *BookingService) CreateBooking(ctx context.Context, booking models.NewBooking) (CreateResult, error) {
	if err := booking.Validate(); err != nil {
		return CreateResult{}, err
	}
	booking = booking.Normalized()

	// The remote call and a later sync both use the session token, so a
	// booking for anyone else would be filed under the wrong account.
	currentUser, signedIn := s.currentUser()
	if signedIn && booking.UserID != currentUser {
		return CreateResult{}, fmt.Errorf("%w: user_id %q is not the signed-in user", models.ErrInvalidInput, booking.UserID)
	}

	key := uuid.NewString()
	remoteID, onlineErr := s.createOnline(ctx, booking, key, signedIn)
	if onlineErr == nil {
		s.publishEvent(events.EventBookingCreated, booking, 0, remoteID)
		s.logger.Info().Str("remote_id", remoteID).Str("user_id", booking.UserID).Msg("Booking created online")
		return CreateResult{RemoteID: remoteID}, nil
	}

	// The same key goes with the queued row: if the online attempt did reach
	// the server, a later sync is collapsed into it.
	localID, err := s.store.InsertPendingBookingWithKey(ctx, booking, key)
	if err != nil {
		s.logger.Error().Err(err).AnErr("online_error", onlineErr).Msg("Booking could not be created or queued")
		return CreateResult{}, err
	}

	s.refreshPendingGauge(ctx)
	s.publishEvent(events.EventBookingQueued, booking, localID, "")
	s.logger.Info().Err(onlineErr).Int64("local_id", localID).Msg("Booking queued for later sync")
	return CreateResult{Queued: true, LocalID: localID, OnlineErr: onlineErr}, nil
}

func (s *BookingService) currentUser() (string, bool) {
	if s.credentials == nil {
		return "", false
	}
	return s.credentials.CurrentUser()
}

func (s *BookingService) createOnline(ctx context.Context, booking models.NewBooking, key string, signedIn bool) (string, error) {
	if s.remote == nil || s.credentials == nil {
		return "", errors.New("remote booking service not configured")
	}
	if !signedIn {
		return "", ErrNotSignedIn
	}
	token, err := s.credentials.Token(ctx, false)
	if err != nil {
		return "", fmt.Errorf("get token: %w", err)
	}
	return s.remote.CreateBooking(ctx, booking, key, token)
}

func (s *BookingService) PendingCount(ctx context.Context) (int, error) {
	return s.store.CountPendingBookings(ctx)
}

func (s *BookingService) ListPending(ctx context.Context) ([]models.PendingBooking, error) {
	return s.store.ListPendingBookings(ctx)
}

func (s *BookingService) GetPending(ctx context.Context, localID int64) (*models.PendingBooking, error) {
	return s.store.GetPendingBooking(ctx, localID)
}

// SyncNow runs one sync pass with the configured credentials and client.
func (s *BookingService) SyncNow(ctx context.Context) (*worker.SyncReport, error) {
	if s.engine == nil || s.remote == nil || s.credentials == nil {
		return nil, errors.New("sync is not configured")
	}
	return s.engine.SyncWithReport(ctx, s.credentials, worker.NewRemoteBookingService(s.remote))
}

// Tutors lists tutors from the remote service.
func (s *BookingService) Tutors(ctx context.Context) ([]models.Tutor, error) {
	if s.remote == nil {
		return nil, errors.New("remote booking service not configured")
	}
	return s.remote.FetchTutors(ctx)
}

// MyBookings lists the signed-in user's remote bookings.
func (s *BookingService) MyBookings(ctx context.Context) ([]models.Booking, error) {
	if s.remote == nil || s.credentials == nil {
		return nil, errors.New("remote booking service not configured")
	}
	userID, ok := s.credentials.CurrentUser()
	if !ok {
		return nil, ErrNotSignedIn
	}
	token, err := s.credentials.Token(ctx, false)
	if err != nil {
		return nil, fmt.Errorf("get token: %w", err)
	}
	return s.remote.FetchBookingsForUser(ctx, userID, token)
}

func (s *BookingService) refreshPendingGauge(ctx context.Context) {
	if n, err := s.store.CountPendingBookings(ctx); err == nil {
		metrics.SetPending(n)
	}
}

func (s *BookingService) publishEvent(eventType string, booking models.NewBooking, localID int64, remoteID string) {
	if s.eventBus == nil {
		return
	}

	payload := events.BookingEventPayload{
		LocalID:     localID,
		RemoteID:    remoteID,
		TutorID:     booking.TutorID,
		UserID:      booking.UserID,
		Subject:     booking.Subject,
		ScheduledAt: booking.ScheduledAt,
	}
	if err := s.eventBus.PublishJSON(eventType, payload); err != nil {
		s.logger.Warn().Err(err).Str("event", eventType).Msg("event handler failed")
	}
}
