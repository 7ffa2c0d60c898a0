package generation

import (
	"errors"
	"time"
)

// ModelConfig is the stored provider configuration for a named model.
// DefaultParams holds provider defaults as a JSON object. BaseURL may name
// a model-specific endpoint; empty means the provider's shared one.
type ModelConfig struct {
	ID            uint   `gorm:"primaryKey"`
	Name          string `gorm:"uniqueIndex"`
	Provider      string
	ModelID       string
	TaskType      string
	BaseURL       string
	ResponseField string
	IsAsync       bool
	DefaultParams string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// JobStatus describes the lifecycle of an asynchronous generation job.
type JobStatus string

const (
	JobProcessing JobStatus = "processing"
	JobSucceeded  JobStatus = "succeeded"
	JobFailed     JobStatus = "failed"
)

// Job records one asynchronous generation request and its outcome.
type Job struct {
	ID           string `gorm:"primaryKey"`
	ModelName    string
	Status       JobStatus
	ResultURL    string
	ErrorMessage string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ErrModelNotFound is returned when no configuration exists for a model name.
var ErrModelNotFound = errors.New("model not found")

// ErrJobNotFound is returned when a polled generation job id is unknown.
var ErrJobNotFound = errors.New("job not found")
