package service

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"skolar/internal/database"
	"skolar/internal/events"
	"skolar/internal/models"
	"skolar/internal/worker"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockRemote struct {
	mock.Mock
}

func (m *mockRemote) CreateBooking(ctx context.Context, b models.NewBooking, key, token string) (string, error) {
	args := m.Called(ctx, b, key, token)
	return args.String(0), args.Error(1)
}

func (m *mockRemote) FetchTutors(ctx context.Context) ([]models.Tutor, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Tutor), args.Error(1)
}

func (m *mockRemote) FetchBookingsForUser(ctx context.Context, userID, token string) ([]models.Booking, error) {
	args := m.Called(ctx, userID, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Booking), args.Error(1)
}

type mockCredentials struct {
	mock.Mock
}

func (m *mockCredentials) CurrentUser() (string, bool) {
	args := m.Called()
	return args.String(0), args.Bool(1)
}

func (m *mockCredentials) Token(ctx context.Context, force bool) (string, error) {
	args := m.Called(ctx, force)
	return args.String(0), args.Error(1)
}

type mockEventBus struct {
	mock.Mock
}

func (m *mockEventBus) PublishJSON(et string, p interface{}) error { return m.Called(et, p).Error(0) }

func newStore(t *testing.T) *database.DB {
	t.Helper()
	logger := zerolog.Nop()
	db, err := database.NewDB(":memory:", &logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func validBooking() models.NewBooking {
	return models.NewBooking{
		TutorID:     "tutor-1",
		UserID:      "user-1",
		Subject:     "  Chemistry ",
		ScheduledAt: time.Date(2025, 3, 1, 14, 30, 0, 0, time.UTC),
		Notes:       models.StringPtr("   "),
	}
}

func TestBookingService(t *testing.T) {
	logger := zerolog.New(io.Discard)
	ctx := context.Background()

	t.Run("CreateOnline", func(t *testing.T) {
		store := newStore(t)
		remote := new(mockRemote)
		creds := new(mockCredentials)
		bus := new(mockEventBus)
		svc := NewBookingService(store, remote, creds, nil, bus, &logger)

		creds.On("CurrentUser").Return("user-1", true).Once()
		creds.On("Token", ctx, false).Return("tok", nil).Once()
		remote.On("CreateBooking", ctx, mock.MatchedBy(func(b models.NewBooking) bool {
			return b.Subject == "Chemistry" && b.Notes == nil
		}), mock.AnythingOfType("string"), "tok").Return("remote-1", nil).Once()
		bus.On("PublishJSON", events.EventBookingCreated, mock.Anything).Return(nil).Once()

		res, err := svc.CreateBooking(ctx, validBooking())
		require.NoError(t, err)
		assert.Equal(t, CreateResult{RemoteID: "remote-1"}, res)

		n, err := svc.PendingCount(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)
		remote.AssertExpectations(t)
		creds.AssertExpectations(t)
		bus.AssertExpectations(t)
	})

	t.Run("FallbackQueuesOnce", func(t *testing.T) {
		store := newStore(t)
		remote := new(mockRemote)
		creds := new(mockCredentials)
		bus := new(mockEventBus)
		svc := NewBookingService(store, remote, creds, nil, bus, &logger)

		var sentKey string
		creds.On("CurrentUser").Return("user-1", true).Once()
		creds.On("Token", ctx, false).Return("tok", nil).Once()
		remote.On("CreateBooking", ctx, mock.Anything, mock.AnythingOfType("string"), "tok").
			Run(func(args mock.Arguments) { sentKey = args.String(2) }).
			Return("", errors.New("offline")).Once()
		bus.On("PublishJSON", events.EventBookingQueued, mock.Anything).Return(nil).Once()

		res, err := svc.CreateBooking(ctx, validBooking())
		require.NoError(t, err)
		assert.True(t, res.Queued)
		assert.Positive(t, res.LocalID)
		assert.Error(t, res.OnlineErr)

		pending, err := svc.ListPending(ctx)
		require.NoError(t, err)
		require.Len(t, pending, 1)
		assert.Equal(t, "Chemistry", pending[0].Subject)
		assert.Nil(t, pending[0].Notes)
		assert.Equal(t, sentKey, pending[0].IdempotencyKey)
		bus.AssertExpectations(t)
	})

	t.Run("FallbackWhenSignedOut", func(t *testing.T) {
		store := newStore(t)
		remote := new(mockRemote)
		creds := new(mockCredentials)
		svc := NewBookingService(store, remote, creds, nil, nil, &logger)

		creds.On("CurrentUser").Return("", false).Once()

		res, err := svc.CreateBooking(ctx, validBooking())
		require.NoError(t, err)
		assert.True(t, res.Queued)
		assert.ErrorIs(t, res.OnlineErr, ErrNotSignedIn)
		remote.AssertNotCalled(t, "CreateBooking", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		creds.AssertNotCalled(t, "Token", mock.Anything, mock.Anything)
	})

	t.Run("FallbackWhenTokenFails", func(t *testing.T) {
		store := newStore(t)
		remote := new(mockRemote)
		creds := new(mockCredentials)
		svc := NewBookingService(store, remote, creds, nil, nil, &logger)

		creds.On("CurrentUser").Return("user-1", true).Once()
		creds.On("Token", ctx, false).Return("", errors.New("expired")).Once()

		res, err := svc.CreateBooking(ctx, validBooking())
		require.NoError(t, err)
		assert.True(t, res.Queued)

		n, err := svc.PendingCount(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})

	t.Run("InvalidInputNotQueued", func(t *testing.T) {
		store := newStore(t)
		remote := new(mockRemote)
		creds := new(mockCredentials)
		svc := NewBookingService(store, remote, creds, nil, nil, &logger)

		b := validBooking()
		b.Subject = "   "
		_, err := svc.CreateBooking(ctx, b)
		assert.ErrorIs(t, err, models.ErrInvalidInput)

		n, err := svc.PendingCount(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)
		creds.AssertNotCalled(t, "CurrentUser")
	})

	t.Run("StorageFailureSurfaced", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.Close())
		creds := new(mockCredentials)
		svc := NewBookingService(store, nil, creds, nil, nil, &logger)
		creds.On("CurrentUser").Return("", false).Once()

		_, err := svc.CreateBooking(ctx, validBooking())
		assert.ErrorIs(t, err, database.ErrStorage)
	})

	t.Run("OtherUserRejected", func(t *testing.T) {
		store := newStore(t)
		remote := new(mockRemote)
		creds := new(mockCredentials)
		svc := NewBookingService(store, remote, creds, nil, nil, &logger)

		creds.On("CurrentUser").Return("user-2", true).Once()

		_, err := svc.CreateBooking(ctx, validBooking())
		assert.ErrorIs(t, err, models.ErrInvalidInput)

		n, err := svc.PendingCount(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)
		creds.AssertNotCalled(t, "Token", mock.Anything, mock.Anything)
		remote.AssertNotCalled(t, "CreateBooking", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("SyncNow", func(t *testing.T) {
		store := newStore(t)
		remote := new(mockRemote)
		creds := new(mockCredentials)
		engine := worker.NewSyncEngine(store, nil, nil, &logger)
		svc := NewBookingService(store, remote, creds, engine, nil, &logger)

		_, err := store.InsertPendingBookingWithKey(ctx, validBooking(), "key-1")
		require.NoError(t, err)

		creds.On("CurrentUser").Return("user-1", true).Once()
		creds.On("Token", ctx, false).Return("tok", nil).Once()
		remote.On("CreateBooking", ctx, mock.Anything, "key-1", "tok").Return("remote-9", nil).Once()

		report, err := svc.SyncNow(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, report.Synced)

		n, err := svc.PendingCount(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)
		remote.AssertExpectations(t)
	})

	t.Run("SyncNowNotConfigured", func(t *testing.T) {
		svc := NewBookingService(newStore(t), nil, nil, nil, nil, &logger)
		_, err := svc.SyncNow(ctx)
		assert.Error(t, err)
	})

	t.Run("MyBookings", func(t *testing.T) {
		remote := new(mockRemote)
		creds := new(mockCredentials)
		svc := NewBookingService(newStore(t), remote, creds, nil, nil, &logger)

		creds.On("CurrentUser").Return("user-1", true).Once()
		creds.On("Token", ctx, false).Return("tok", nil).Once()
		remote.On("FetchBookingsForUser", ctx, "user-1", "tok").Return([]models.Booking{{ID: "b1"}}, nil).Once()

		got, err := svc.MyBookings(ctx)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "b1", got[0].ID)
	})

	t.Run("Tutors", func(t *testing.T) {
		remote := new(mockRemote)
		svc := NewBookingService(newStore(t), remote, nil, nil, nil, &logger)
		remote.On("FetchTutors", ctx).Return([]models.Tutor{{ID: "t1"}}, nil).Once()

		got, err := svc.Tutors(ctx)
		require.NoError(t, err)
		assert.Len(t, got, 1)
	})
}
