package database

import (
	"errors"

	"skolar/internal/models"
)

var (
	// ErrInvalidInput is returned before any write when a required field is missing.
	ErrInvalidInput = models.ErrInvalidInput
	// ErrStorage wraps failures of the local persistence layer.
	ErrStorage = errors.New("pending booking storage failure")
	// ErrPendingNotFound is returned by lookups of an absent local id.
	ErrPendingNotFound = errors.New("pending booking not found")
)
