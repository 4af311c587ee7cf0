package models

const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
	StatusCancelled = "cancelled"
	StatusCompleted = "completed"
)

const (
	// DefaultRemoteTimeoutSeconds bounds a single remote API call.
	DefaultRemoteTimeoutSeconds = 10
	// DefaultTutorsCacheTTLSeconds is used when caching is on but no TTL is set.
	DefaultTutorsCacheTTLSeconds = 300
)
