package worker

import (
	"context"

	"skolar/internal/domain"
	"skolar/internal/models"
)

// RemoteBookingService adapts the remote API client to BookingService,
// sending the row's idempotency key with every attempt.
type RemoteBookingService struct {
	remote domain.RemoteBookings
}

func NewRemoteBookingService(remote domain.RemoteBookings) *RemoteBookingService {
	return &RemoteBookingService{remote: remote}
}

func (s *RemoteBookingService) Create(ctx context.Context, booking models.PendingBooking, token string) (string, error) {
	return s.remote.CreateBooking(ctx, booking.NewBooking, booking.IdempotencyKey, token)
}
