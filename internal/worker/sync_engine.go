package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"skolar/internal/domain"
	"skolar/internal/events"
	"skolar/internal/metrics"
	"skolar/internal/models"
	"skolar/internal/repository"

	"github.com/rs/zerolog"
)

// BookingService creates one queued booking remotely and returns its remote id.
type BookingService = domain.BookingCreator

// Outcome is the per-entry result of a sync pass.
type Outcome string

const (
	OutcomeSynced Outcome = "synced"
	OutcomeFailed Outcome = "failed"
	// OutcomeSyncedDeleteFailed means the remote create succeeded but the
	// local row is still there and will be sent again by the next pass.
	OutcomeSyncedDeleteFailed Outcome = "synced_delete_failed"
)

// ItemResult reports what happened to one pending entry.
type ItemResult struct {
	LocalID  int64
	RemoteID string
	Outcome  Outcome
	Err      error
}

// Synced reports whether the remote create succeeded.
func (r ItemResult) Synced() bool {
	return r.Outcome == OutcomeSynced || r.Outcome == OutcomeSyncedDeleteFailed
}

// SyncReport aggregates one pass.
type SyncReport struct {
	Attempted      int
	Synced         int
	Failed         int
	DeleteFailures int
	Items          []ItemResult
	Duration       time.Duration
}

const (
	passCompleted        = "completed"
	passNotAuthenticated = "not_authenticated"
	passAuthFailure      = "auth_failure"
	passBusy             = "busy"
	passError            = "error"
)

// SyncEngine pushes the offline queue to the remote booking service.
type SyncEngine struct {
	store  domain.PendingStore
	guard  domain.SyncGuard
	events domain.EventPublisher
	logger *zerolog.Logger
}

// NewSyncEngine builds an engine over the store. A nil guard means an
// in-process guard; a nil publisher disables events.
func NewSyncEngine(store domain.PendingStore, guard domain.SyncGuard, publisher domain.EventPublisher, logger *zerolog.Logger) *SyncEngine {
	if guard == nil {
		guard = repository.NewMemorySyncGuard()
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	l := logger.With().Str("component", "sync").Logger()
	return &SyncEngine{
		store:  store,
		guard:  guard,
		events: publisher,
		logger: &l,
	}
}

// Sync runs one pass and returns how many entries were created remotely.
func (e *SyncEngine) Sync(ctx context.Context, credentials domain.CredentialProvider, bookings BookingService) (int, error) {
	report, err := e.SyncWithReport(ctx, credentials, bookings)
	if err != nil {
		return 0, err
	}
	return report.Synced, nil
}

// SyncWithReport runs one pass and returns the per-entry results.
func (e *SyncEngine) SyncWithReport(ctx context.Context, credentials domain.CredentialProvider, bookings BookingService) (*SyncReport, error) {
	release, ok, err := e.guard.TryAcquire(ctx)
	if err != nil {
		metrics.IncSyncPass(passError)
		return nil, fmt.Errorf("acquire sync guard: %w", err)
	}
	if !ok {
		metrics.IncSyncPass(passBusy)
		return nil, ErrSyncInProgress
	}
	defer release()

	start := time.Now()

	pending, err := e.store.ListPendingBookings(ctx)
	if err != nil {
		metrics.IncSyncPass(passError)
		return nil, fmt.Errorf("list pending bookings: %w", err)
	}
	metrics.SetPending(len(pending))

	report := &SyncReport{Items: make([]ItemResult, 0, len(pending))}
	if len(pending) == 0 {
		metrics.IncSyncPass(passCompleted)
		return report, nil
	}

	if userID, signedIn := credentials.CurrentUser(); !signedIn || userID == "" {
		metrics.IncSyncPass(passNotAuthenticated)
		e.logger.Warn().Int("pending", len(pending)).Msg("sync skipped: not signed in")
		return nil, &SyncAbortedError{Reason: ErrNotAuthenticated}
	}

	token, err := credentials.Token(ctx, false)
	if err == nil && token == "" {
		err = errors.New("empty token")
	}
	if err != nil {
		metrics.IncSyncPass(passAuthFailure)
		e.logger.Warn().Err(err).Int("pending", len(pending)).Msg("sync skipped: no token")
		return nil, &SyncAbortedError{Reason: ErrAuthFailure, Err: err}
	}

	for _, booking := range pending {
		item := e.syncOne(ctx, bookings, booking, token)
		report.Items = append(report.Items, item)
		report.Attempted++
		metrics.IncSyncItem(string(item.Outcome))

		switch item.Outcome {
		case OutcomeSynced:
			report.Synced++
		case OutcomeSyncedDeleteFailed:
			report.Synced++
			report.DeleteFailures++
		case OutcomeFailed:
			report.Failed++
		}

		if item.Synced() {
			e.publish(events.EventBookingSynced, events.BookingEventPayload{
				LocalID:      booking.LocalID,
				RemoteID:     item.RemoteID,
				TutorID:      booking.TutorID,
				UserID:       booking.UserID,
				Subject:      booking.Subject,
				ScheduledAt:  booking.ScheduledAt,
				DeleteFailed: item.Outcome == OutcomeSyncedDeleteFailed,
			})
		}
	}
	report.Duration = time.Since(start)

	if left, err := e.store.CountPendingBookings(context.WithoutCancel(ctx)); err == nil {
		metrics.SetPending(left)
	}
	metrics.IncSyncPass(passCompleted)

	e.publish(events.EventSyncCompleted, events.SyncCompletedPayload{
		Attempted:      report.Attempted,
		Synced:         report.Synced,
		Failed:         report.Failed,
		DeleteFailures: report.DeleteFailures,
		Duration:       report.Duration,
	})

	e.logger.Info().
		Int("attempted", report.Attempted).
		Int("synced", report.Synced).
		Int("failed", report.Failed).
		Int("delete_failures", report.DeleteFailures).
		Dur("duration", report.Duration).
		Msg("sync pass finished")

	return report, nil
}

func (e *SyncEngine) syncOne(ctx context.Context, bookings BookingService, booking models.PendingBooking, token string) ItemResult {
	item := ItemResult{LocalID: booking.LocalID}

	remoteID, err := bookings.Create(ctx, booking, token)
	if err != nil {
		item.Outcome = OutcomeFailed
		item.Err = err
		e.logger.Warn().Err(err).Int64("local_id", booking.LocalID).Msg("remote create failed, booking stays pending")
		return item
	}
	item.RemoteID = remoteID

	// The remote booking exists now; the delete must run even if the caller
	// has given up on the pass.
	if err := e.store.DeletePendingBooking(context.WithoutCancel(ctx), booking.LocalID); err != nil {
		item.Outcome = OutcomeSyncedDeleteFailed
		item.Err = err
		e.logger.Error().Err(err).
			Int64("local_id", booking.LocalID).
			Str("remote_id", remoteID).
			Str("idempotency_key", booking.IdempotencyKey).
			Msg("booking created remotely but local delete failed, duplicate risk")
		return item
	}

	item.Outcome = OutcomeSynced
	e.logger.Debug().Int64("local_id", booking.LocalID).Str("remote_id", remoteID).Msg("booking synced")
	return item
}

func (e *SyncEngine) publish(eventType string, payload interface{}) {
	if e.events == nil {
		return
	}
	if err := e.events.PublishJSON(eventType, payload); err != nil {
		e.logger.Warn().Err(err).Str("event", eventType).Msg("event handler failed")
	}
}
