package generation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"

	"github.com/yachty66/vimagine/internal/domain/generation"
)

// ErrPromptRequired rejects generation requests without a prompt.
var ErrPromptRequired = errors.New("prompt is required")

// DispatchResult is the immediate outcome of a generation request. Sync
// models carry a result URL; async models carry the job id to poll.
type DispatchResult struct {
	Async     bool
	JobID     string
	ResultURL string
}

// Service dispatches prompts to the configured provider model. Sync models
// answer inline; async models get a persisted job and a polling goroutine.
type Service struct {
	repo     ModelRepository
	provider ProviderClient
	logger   *log.Logger
}

// NewService creates the generation use-case service with injected ports.
func NewService(repo ModelRepository, provider ProviderClient, logger *log.Logger) *Service {
	return &Service{repo: repo, provider: provider, logger: logger}
}

// Generate looks up the named model and forwards the prompt to the provider.
func (s *Service) Generate(ctx context.Context, modelName, prompt string, extra map[string]any) (DispatchResult, error) {
	if strings.TrimSpace(prompt) == "" {
		return DispatchResult{}, ErrPromptRequired
	}

	cfg, err := s.repo.ModelByName(modelName)
	if err != nil {
		return DispatchResult{}, err
	}

	taskUUID := uuid.NewString()
	payload, err := buildPayload(cfg, prompt, extra, taskUUID)
	if err != nil {
		return DispatchResult{}, err
	}

	if !cfg.IsAsync {
		resultURL, err := s.provider.Generate(ctx, cfg.BaseURL, payload, cfg.ResponseField)
		if err != nil {
			return DispatchResult{}, err
		}
		return DispatchResult{ResultURL: resultURL}, nil
	}

	job := &generation.Job{
		ID:        uuid.NewString(),
		ModelName: modelName,
		Status:    generation.JobProcessing,
	}
	if err := s.repo.CreateJob(job); err != nil {
		return DispatchResult{}, err
	}

	s.logger.Printf("generation job started: %s (model %s)", job.ID, modelName)
	go s.runAsync(job.ID, taskUUID, payload)

	return DispatchResult{Async: true, JobID: job.ID}, nil
}

// JobStatus returns the persisted state of an asynchronous generation job.
func (s *Service) JobStatus(id string) (generation.Job, error) {
	return s.repo.JobByID(id)
}

func (s *Service) runAsync(jobID, taskUUID string, payload map[string]any) {
	ctx := context.Background()

	if err := s.provider.StartTask(ctx, payload); err != nil {
		s.failJob(jobID, err)
		return
	}

	resultURL, err := s.provider.PollResult(ctx, taskUUID)
	if err != nil {
		s.failJob(jobID, err)
		return
	}

	if err := s.repo.MarkJobSucceeded(jobID, resultURL); err != nil {
		s.logger.Printf("generation job %s: could not persist result: %v", jobID, err)
		return
	}
	s.logger.Printf("generation job succeeded: %s: %s", jobID, resultURL)
}

func (s *Service) failJob(jobID string, cause error) {
	s.logger.Printf("generation job failed: %s: %v", jobID, cause)
	if err := s.repo.MarkJobFailed(jobID, cause.Error()); err != nil {
		s.logger.Printf("generation job %s: could not persist failure: %v", jobID, err)
	}
}

// buildPayload merges the model's stored defaults, the task envelope, and
// the caller's extra parameters (minus the prompt, which is mapped to the
// provider's positivePrompt field).
func buildPayload(cfg generation.ModelConfig, prompt string, extra map[string]any, taskUUID string) (map[string]any, error) {
	payload := make(map[string]any)

	if cfg.DefaultParams != "" {
		if err := json.Unmarshal([]byte(cfg.DefaultParams), &payload); err != nil {
			return nil, fmt.Errorf("model %s: invalid default params: %w", cfg.Name, err)
		}
	}

	payload["taskType"] = cfg.TaskType
	payload["taskUUID"] = taskUUID
	payload["model"] = cfg.ModelID
	payload["positivePrompt"] = prompt

	for key, value := range extra {
		if key == "prompt" {
			continue
		}
		payload[key] = value
	}

	return payload, nil
}
