package openai

import "time"

const (
	// DefaultTimeout is the standard timeout for most upstream operations
	DefaultTimeout = 30 * time.Second

	// LongTimeout is for file uploads
	LongTimeout = 90 * time.Second

	// DefaultPollInterval is used by UploadAndPoll when none is given
	DefaultPollInterval = time.Second
)

// Vector store, file and batch statuses reported by the service.
const (
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
	StatusCancelled  = "cancelled"
	StatusExpired    = "expired"
)
