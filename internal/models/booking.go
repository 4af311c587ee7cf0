package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidInput marks a booking that is missing a required field.
var ErrInvalidInput = errors.New("invalid booking input")

// NewBooking is a booking request as captured by the creation flow.
// It carries no local id; the pending store assigns one on insert.
type NewBooking struct {
	TutorID     string    `json:"tutor_id"`
	TutorName   *string   `json:"tutor_name,omitempty"`
	UserID      string    `json:"user_id"`
	Subject     string    `json:"subject"`
	ScheduledAt time.Time `json:"scheduled_at"`
	Notes       *string   `json:"notes,omitempty"`
}

// PendingBooking is a booking queued locally until the remote service
// confirms it was created.
type PendingBooking struct {
	LocalID int64 `json:"local_id"`
	NewBooking
	IdempotencyKey string    `json:"idempotency_key"`
	CreatedAt      time.Time `json:"created_at"`
}

// Validate reports the first missing required field.
func (b NewBooking) Validate() error {
	switch {
	case strings.TrimSpace(b.TutorID) == "":
		return fmt.Errorf("%w: tutor_id is required", ErrInvalidInput)
	case strings.TrimSpace(b.UserID) == "":
		return fmt.Errorf("%w: user_id is required", ErrInvalidInput)
	case strings.TrimSpace(b.Subject) == "":
		return fmt.Errorf("%w: subject is required", ErrInvalidInput)
	case b.ScheduledAt.IsZero():
		return fmt.Errorf("%w: scheduled_at is required", ErrInvalidInput)
	}
	return nil
}

// Normalized returns a copy with trimmed text, blank optionals set to nil
// and the instant converted to UTC at one-second resolution.
func (b NewBooking) Normalized() NewBooking {
	out := NewBooking{
		TutorID:     strings.TrimSpace(b.TutorID),
		TutorName:   optional(b.TutorName),
		UserID:      strings.TrimSpace(b.UserID),
		Subject:     strings.TrimSpace(b.Subject),
		ScheduledAt: b.ScheduledAt.UTC().Truncate(time.Second),
		Notes:       optional(b.Notes),
	}
	return out
}

// StringPtr is a helper for optional fields.
func StringPtr(s string) *string {
	return &s
}

// Deref returns the pointed-to string or "".
func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func optional(s *string) *string {
	if s == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*s)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
