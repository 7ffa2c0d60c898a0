package generation

import (
	"context"

	"github.com/yachty66/vimagine/internal/domain/generation"
)

// ModelRepository is an application port for model configuration lookup and
// generation-job persistence.
type ModelRepository interface {
	ModelByName(name string) (generation.ModelConfig, error)
	CreateJob(job *generation.Job) error
	JobByID(id string) (generation.Job, error)
	MarkJobSucceeded(id, resultURL string) error
	MarkJobFailed(id, message string) error
}

// ProviderClient is an application port for the external inference API.
// Generate takes a model-specific endpoint; empty means the provider's
// default one.
type ProviderClient interface {
	Generate(ctx context.Context, endpoint string, payload map[string]any, responseField string) (string, error)
	StartTask(ctx context.Context, payload map[string]any) error
	PollResult(ctx context.Context, taskUUID string) (string, error)
}
