package composition

import (
	"errors"
	"time"
)

// Status describes the lifecycle of a composition job.
type Status string

const (
	StatusProcessing Status = "processing"
	StatusSucceeded  Status = "succeeded"
	StatusFailed     Status = "failed"
)

// Terminal reports whether the status can no longer change.
func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

// Job is the tracked unit of work for one composition request.
type Job struct {
	ID          string
	Status      Status
	Progress    int
	Message     string
	Error       string
	DownloadURL string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ErrJobNotFound is returned when a polled job id is unknown.
var ErrJobNotFound = errors.New("job not found")

// ErrNoVisualContent fails a job whose timeline carries nothing to render.
// The text is the message clients see via the status endpoint.
var ErrNoVisualContent = errors.New("No visual content found in timeline")
