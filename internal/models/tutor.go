package models

import "time"

// Tutor is the remote tutor record as served by the booking API.
type Tutor struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Subjects []string `json:"subjects"`
	Rate     float64  `json:"rate,omitempty"`
}

// Booking is a booking as stored by the remote system of record.
type Booking struct {
	ID          string    `json:"id"`
	TutorID     string    `json:"tutor_id"`
	TutorName   *string   `json:"tutor_name,omitempty"`
	UserID      string    `json:"user_id"`
	Subject     string    `json:"subject"`
	ScheduledAt time.Time `json:"scheduled_at"`
	Notes       *string   `json:"notes,omitempty"`
	Status      string    `json:"status"`
}
