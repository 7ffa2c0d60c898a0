package composition

import (
	"context"
	"fmt"
	"log"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/yachty66/vimagine/internal/domain/composition"
	"github.com/yachty66/vimagine/internal/domain/timeline"
)

// Handle identifies a scheduled composition task. The service retains one
// handle per running job; cancellation can hang off it later.
type Handle struct {
	JobID string
	done  chan struct{}
}

// Done is closed when the job's pipeline has finished, success or failure.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Service runs composition jobs: fetch, normalize, concatenate, publish.
type Service struct {
	fetcher    Fetcher
	normalizer Normalizer
	publisher  Publisher
	workspace  Workspace
	tracker    *Tracker
	logger     *log.Logger

	// clipSlots bounds concurrent transcodes across all jobs.
	clipSlots chan struct{}

	mu      sync.Mutex
	handles map[string]*Handle
}

// NewService creates the composition use-case service with injected ports.
// clipWorkers bounds concurrent ffmpeg transcodes across all jobs.
func NewService(fetcher Fetcher, normalizer Normalizer, publisher Publisher, workspace Workspace, tracker *Tracker, clipWorkers int, logger *log.Logger) *Service {
	if clipWorkers < 1 {
		clipWorkers = 1
	}
	return &Service{
		fetcher:    fetcher,
		normalizer: normalizer,
		publisher:  publisher,
		workspace:  workspace,
		tracker:    tracker,
		logger:     logger,
		clipSlots:  make(chan struct{}, clipWorkers),
		handles:    make(map[string]*Handle),
	}
}

// Compose accepts a timeline, schedules its background pipeline, and returns
// the job id immediately. Only malformed input fails the submission itself;
// everything later is reported through the tracker.
func (s *Service) Compose(tl timeline.Timeline) (string, error) {
	if err := tl.Validate(); err != nil {
		return "", err
	}

	jobID := uuid.NewString()
	s.tracker.Create(jobID)

	handle := &Handle{JobID: jobID, done: make(chan struct{})}
	s.mu.Lock()
	s.handles[jobID] = handle
	s.mu.Unlock()

	s.logger.Printf("composition job started: %s (%d visual, %d audio items)",
		jobID, len(tl.VisualTrack), len(tl.AudioTrack))

	go func() {
		defer func() {
			s.mu.Lock()
			delete(s.handles, jobID)
			s.mu.Unlock()
			close(handle.done)
		}()
		s.run(jobID, tl)
	}()

	return jobID, nil
}

// Status returns the tracked state of a job.
func (s *Service) Status(jobID string) (composition.Job, error) {
	return s.tracker.Get(jobID)
}

func (s *Service) run(jobID string, tl timeline.Timeline) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Printf("composition job panicked: %s: %v", jobID, r)
			s.tracker.Fail(jobID, fmt.Sprintf("%v", r))
		}
	}()

	ctx := context.Background()

	s.tracker.SetProgress(jobID, 10, "Analyzing timeline...")
	if len(tl.VisualTrack) == 0 {
		s.tracker.Fail(jobID, composition.ErrNoVisualContent.Error())
		return
	}

	scratch, err := s.workspace.JobDir(jobID)
	if err != nil {
		s.tracker.Fail(jobID, err.Error())
		return
	}
	defer func() {
		if err := s.workspace.Remove(scratch); err != nil {
			s.logger.Printf("scratch cleanup failed: %s: %v", scratch, err)
		}
	}()

	s.tracker.SetProgress(jobID, 30, "Downloading media files...")
	localPaths, err := s.fetchAll(ctx, tl.VisualTrack, scratch)
	if err != nil {
		s.logger.Printf("composition job failed: %s: %v", jobID, err)
		s.tracker.Fail(jobID, "Failed to download media: "+err.Error())
		return
	}

	s.tracker.SetProgress(jobID, 50, "Composing video...")
	outputPath := filepath.Join(scratch, "composed_"+jobID+".mp4")
	if err := s.composeTimeline(ctx, tl.VisualTrack, localPaths, scratch, outputPath); err != nil {
		s.logger.Printf("composition job failed: %s: %v", jobID, err)
		s.tracker.Fail(jobID, "Video composition failed")
		return
	}

	s.tracker.SetProgress(jobID, 80, "Uploading composed video...")
	downloadURL, err := s.publisher.PublishFile(ctx, outputPath)
	if err != nil {
		s.logger.Printf("composition job failed: %s: %v", jobID, err)
		s.tracker.Fail(jobID, "Failed to upload composed video: "+err.Error())
		return
	}

	s.tracker.Succeed(jobID, downloadURL)
	s.logger.Printf("composition job succeeded: %s: %s", jobID, downloadURL)
}

// fetchAll downloads every visual item into the scratch directory. Per-item
// order does not matter, but all downloads must finish before composing; the
// first failure cancels the rest.
func (s *Service) fetchAll(ctx context.Context, items []timeline.Item, scratch string) (map[string]string, error) {
	var mu sync.Mutex
	localPaths := make(map[string]string, len(items))

	g, gctx := errgroup.WithContext(ctx)
	for i, item := range items {
		i, item := i, item
		g.Go(func() error {
			local, err := s.fetcher.Fetch(gctx, item.URL, scratch, fmt.Sprintf("item_%d", i))
			if err != nil {
				return err
			}
			mu.Lock()
			localPaths[item.ID] = local
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return localPaths, nil
}

// composeTimeline normalizes each item into a standardized clip and joins
// the clips into the final output. Normalization is bounded by the shared
// transcode slots; outputs are keyed by timeline index so the concat step
// always sees clips in playback order.
func (s *Service) composeTimeline(ctx context.Context, items []timeline.Item, localPaths map[string]string, scratch, outputPath string) error {
	sorted := timeline.SortedByStart(items)

	clipDir := filepath.Join(scratch, "clips")
	if err := os.MkdirAll(clipDir, 0o755); err != nil {
		return err
	}

	clipPaths := make([]string, len(sorted))
	g, gctx := errgroup.WithContext(ctx)
	for i, item := range sorted {
		i, item := i, item
		clipPath := filepath.Join(clipDir, fmt.Sprintf("clip_%d.mp4", i))
		clipPaths[i] = clipPath
		g.Go(func() error {
			select {
			case s.clipSlots <- struct{}{}:
			case <-gctx.Done():
				return gctx.Err()
			}
			defer func() { <-s.clipSlots }()

			source, ok := localPaths[item.ID]
			if !ok {
				return fmt.Errorf("no local file for item %s", item.ID)
			}

			var err error
			if item.Kind == timeline.KindImage {
				err = s.normalizer.ImageClip(gctx, source, clipPath, item.Duration)
			} else {
				err = s.normalizer.VideoClip(gctx, source, clipPath, item.Duration)
			}
			if err != nil {
				return fmt.Errorf("standardize item %s: %w", item.ID, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if err := s.normalizer.Concatenate(ctx, clipPaths, outputPath); err != nil {
		return err
	}

	// The concat demuxer copies streams without re-encoding, so the joined
	// output must run as long as the clips it was built from. More than a
	// second of drift means a clip was dropped or truncated.
	expected := 0.0
	for _, item := range sorted {
		expected += item.Duration
	}
	actual, err := s.normalizer.ProbeDuration(ctx, outputPath)
	if err != nil {
		s.logger.Printf("could not probe composed output %s: %v", outputPath, err)
		return nil
	}
	if math.Abs(actual-expected) > 1.0 {
		return fmt.Errorf("composed duration %.2fs deviates from timeline %.2fs", actual, expected)
	}
	return nil
}
