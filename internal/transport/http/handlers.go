package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	generationapp "github.com/yachty66/vimagine/internal/application/generation"
	compositiondomain "github.com/yachty66/vimagine/internal/domain/composition"
	generationdomain "github.com/yachty66/vimagine/internal/domain/generation"
	"github.com/yachty66/vimagine/internal/domain/timeline"
)

type compositionUseCases interface {
	Compose(tl timeline.Timeline) (string, error)
	Status(jobID string) (compositiondomain.Job, error)
}

type generationUseCases interface {
	Generate(ctx context.Context, modelName, prompt string, extra map[string]any) (generationapp.DispatchResult, error)
	JobStatus(id string) (generationdomain.Job, error)
}

type Handler struct {
	compositions compositionUseCases
	generations  generationUseCases
}

// NewHandler wires HTTP handlers with application use cases.
func NewHandler(compositions compositionUseCases, generations generationUseCases) *Handler {
	return &Handler{compositions: compositions, generations: generations}
}

type timelineItemDTO struct {
	ID        string  `json:"id"`
	URL       string  `json:"url"`
	Name      string  `json:"name"`
	Type      string  `json:"type"`
	StartTime float64 `json:"startTime"`
	Duration  float64 `json:"duration"`
}

type composeRequest struct {
	VisualTrack []timelineItemDTO `json:"visualTrack"`
	AudioTrack  []timelineItemDTO `json:"audioTrack"`
	Duration    float64           `json:"duration"`
}

// ComposeVideo handles POST /api/compose-video.
func (h *Handler) ComposeVideo(w http.ResponseWriter, r *http.Request) {
	var req composeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	jobID, err := h.compositions.Compose(timeline.Timeline{
		VisualTrack: toItems(req.VisualTrack),
		AudioTrack:  toItems(req.AudioTrack),
		Duration:    req.Duration,
	})
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	writeJSON(w, map[string]string{
		"jobId":  jobID,
		"status": string(compositiondomain.StatusProcessing),
	})
}

// CompositionStatus handles GET /api/compose-video/status/{jobId}.
func (h *Handler) CompositionStatus(w http.ResponseWriter, r *http.Request) {
	job, err := h.compositions.Status(mux.Vars(r)["jobId"])
	if err != nil {
		if errors.Is(err, compositiondomain.ErrJobNotFound) {
			http.Error(w, "Job not found", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, map[string]interface{}{
		"status":      job.Status,
		"progress":    job.Progress,
		"message":     job.Message,
		"error":       job.Error,
		"downloadUrl": job.DownloadURL,
	})
}

// GenerateModel handles POST /api/models/generate/{model}.
func (h *Handler) GenerateModel(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	prompt, _ := body["prompt"].(string)

	result, err := h.generations.Generate(r.Context(), mux.Vars(r)["model"], prompt, body)
	if err != nil {
		switch {
		case errors.Is(err, generationdomain.ErrModelNotFound):
			http.Error(w, "Model not found", http.StatusNotFound)
		case errors.Is(err, generationapp.ErrPromptRequired):
			http.Error(w, err.Error(), http.StatusBadRequest)
		default:
			http.Error(w, err.Error(), http.StatusBadGateway)
		}
		return
	}

	if result.Async {
		writeJSON(w, map[string]string{
			"status": string(generationdomain.JobProcessing),
			"jobId":  result.JobID,
		})
		return
	}
	writeJSON(w, map[string]string{
		"status":    string(generationdomain.JobSucceeded),
		"resultUrl": result.ResultURL,
	})
}

// GenerationStatus handles GET /api/models/status/{jobId}.
func (h *Handler) GenerationStatus(w http.ResponseWriter, r *http.Request) {
	job, err := h.generations.JobStatus(mux.Vars(r)["jobId"])
	if err != nil {
		if errors.Is(err, generationdomain.ErrJobNotFound) {
			http.Error(w, "Job not found", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, map[string]interface{}{
		"status":    job.Status,
		"resultUrl": job.ResultURL,
		"error":     job.ErrorMessage,
	})
}

// Health handles the liveness probe endpoint.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

func toItems(dtos []timelineItemDTO) []timeline.Item {
	items := make([]timeline.Item, 0, len(dtos))
	for _, dto := range dtos {
		items = append(items, timeline.Item{
			ID:        dto.ID,
			URL:       dto.URL,
			Name:      dto.Name,
			Kind:      timeline.Kind(dto.Type),
			StartTime: dto.StartTime,
			Duration:  dto.Duration,
		})
	}
	return items
}

func writeJSON(w http.ResponseWriter, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}
