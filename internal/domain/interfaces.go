package domain

import (
	"context"

	"skolar/internal/models"
)

// PendingStore is the durable queue of bookings not yet created remotely.
type PendingStore interface {
	InsertPendingBooking(ctx context.Context, booking models.NewBooking) (int64, error)
	InsertPendingBookingWithKey(ctx context.Context, booking models.NewBooking, idempotencyKey string) (int64, error)
	ListPendingBookings(ctx context.Context) ([]models.PendingBooking, error)
	GetPendingBooking(ctx context.Context, localID int64) (*models.PendingBooking, error)
	DeletePendingBooking(ctx context.Context, localID int64) error
	CountPendingBookings(ctx context.Context) (int, error)
}

// CredentialProvider supplies the signed-in identity and its bearer token.
type CredentialProvider interface {
	// CurrentUser returns the signed-in user id, or false when nobody is signed in.
	CurrentUser() (string, bool)
	Token(ctx context.Context, forceRefresh bool) (string, error)
}

// BookingCreator creates a booking on the remote system of record.
type BookingCreator interface {
	Create(ctx context.Context, booking models.PendingBooking, token string) (string, error)
}

// RemoteBookings is the full remote booking API used by the app.
type RemoteBookings interface {
	CreateBooking(ctx context.Context, booking models.NewBooking, idempotencyKey, token string) (string, error)
	FetchTutors(ctx context.Context) ([]models.Tutor, error)
	FetchBookingsForUser(ctx context.Context, userID, token string) ([]models.Booking, error)
}

// SyncGuard lets at most one sync pass run at a time.
type SyncGuard interface {
	// TryAcquire returns a release func, or false when a pass is already running.
	TryAcquire(ctx context.Context) (release func(), ok bool, err error)
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}
