package composition

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/yachty66/vimagine/internal/domain/composition"
	"github.com/yachty66/vimagine/internal/domain/timeline"
)

type stubFetcher struct {
	mu      sync.Mutex
	calls   int
	failURL string
}

func (f *stubFetcher) Fetch(_ context.Context, url, destDir, prefix string) (string, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.failURL != "" && url == f.failURL {
		return "", fmt.Errorf("fetch %s: unexpected status 404", url)
	}
	return filepath.Join(destDir, prefix+".src"), nil
}

type normCall struct {
	source string
	output string
}

type stubNormalizer struct {
	mu          sync.Mutex
	imageCalls  []normCall
	videoCalls  []normCall
	concatClips []string
	concatOut   string
	clipSeconds float64

	failNormalize bool
	failConcat    bool
	probeSkew     float64
	probeErr      error
}

func (n *stubNormalizer) ImageClip(_ context.Context, inputPath, outputPath string, duration float64) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.failNormalize {
		return errors.New("ffmpeg failed: exit status 1")
	}
	n.imageCalls = append(n.imageCalls, normCall{source: inputPath, output: outputPath})
	n.clipSeconds += duration
	return nil
}

func (n *stubNormalizer) VideoClip(_ context.Context, inputPath, outputPath string, duration float64) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.failNormalize {
		return errors.New("ffmpeg failed: exit status 1")
	}
	n.videoCalls = append(n.videoCalls, normCall{source: inputPath, output: outputPath})
	n.clipSeconds += duration
	return nil
}

func (n *stubNormalizer) Concatenate(_ context.Context, clipPaths []string, outputPath string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.failConcat {
		return errors.New("output file too small: 12 bytes")
	}
	n.concatClips = append([]string{}, clipPaths...)
	n.concatOut = outputPath
	return nil
}

func (n *stubNormalizer) ProbeDuration(_ context.Context, _ string) (float64, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.probeErr != nil {
		return 0, n.probeErr
	}
	return n.clipSeconds + n.probeSkew, nil
}

type stubPublisher struct {
	url       string
	err       error
	published string
}

func (p *stubPublisher) PublishFile(_ context.Context, localPath string) (string, error) {
	p.published = localPath
	if p.err != nil {
		return "", p.err
	}
	return p.url, nil
}

type stubWorkspace struct {
	root    string
	mu      sync.Mutex
	removed []string
}

func (w *stubWorkspace) JobDir(jobID string) (string, error) {
	dir := filepath.Join(w.root, "compose-"+jobID)
	return dir, os.MkdirAll(dir, 0o755)
}

func (w *stubWorkspace) Remove(dir string) error {
	w.mu.Lock()
	w.removed = append(w.removed, dir)
	w.mu.Unlock()
	return os.RemoveAll(dir)
}

type fixture struct {
	svc       *Service
	fetcher   *stubFetcher
	norm      *stubNormalizer
	publisher *stubPublisher
	workspace *stubWorkspace
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		fetcher:   &stubFetcher{},
		norm:      &stubNormalizer{},
		publisher: &stubPublisher{url: "https://bucket.s3.amazonaws.com/final.mp4"},
		workspace: &stubWorkspace{root: t.TempDir()},
	}
	tracker := NewTracker(time.Hour)
	f.svc = NewService(f.fetcher, f.norm, f.publisher, f.workspace, tracker, 2, log.New(os.Stderr, "", 0))
	return f
}

func waitTerminal(t *testing.T, svc *Service, jobID string) composition.Job {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		job, err := svc.Status(jobID)
		require.NoError(t, err)
		if job.Status.Terminal() {
			return job
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("job %s never reached a terminal state", jobID)
	return composition.Job{}
}

func item(id string, kind timeline.Kind, start, duration float64) timeline.Item {
	return timeline.Item{
		ID:        id,
		URL:       "https://cdn.example.com/" + id + ".mp4",
		Name:      id,
		Kind:      kind,
		StartTime: start,
		Duration:  duration,
	}
}

func TestCompose_RejectsMalformedInput(t *testing.T) {
	f := newFixture(t)

	bad := item("a", timeline.KindImage, 0, 0) // non-positive duration
	_, err := f.svc.Compose(timeline.Timeline{VisualTrack: []timeline.Item{bad}})
	require.Error(t, err)
	require.Zero(t, f.fetcher.calls)
}

func TestCompose_EmptyVisualTrackFailsBeforeFetching(t *testing.T) {
	f := newFixture(t)

	jobID, err := f.svc.Compose(timeline.Timeline{Duration: 30})
	require.NoError(t, err)

	job := waitTerminal(t, f.svc, jobID)
	require.Equal(t, composition.StatusFailed, job.Status)
	require.Equal(t, "No visual content found in timeline", job.Error)
	require.Zero(t, f.fetcher.calls, "fetching must never start for an empty timeline")
}

func TestCompose_HappyPath(t *testing.T) {
	f := newFixture(t)

	jobID, err := f.svc.Compose(timeline.Timeline{
		VisualTrack: []timeline.Item{
			item("a", timeline.KindImage, 0, 3),
			item("b", timeline.KindVideo, 3, 4),
		},
		Duration: 7,
	})
	require.NoError(t, err)

	job := waitTerminal(t, f.svc, jobID)
	require.Equal(t, composition.StatusSucceeded, job.Status)
	require.Equal(t, 100, job.Progress)
	require.Equal(t, "https://bucket.s3.amazonaws.com/final.mp4", job.DownloadURL)

	require.Len(t, f.norm.imageCalls, 1)
	require.Len(t, f.norm.videoCalls, 1)
	require.Len(t, f.norm.concatClips, 2)
	require.Equal(t, "clip_0.mp4", filepath.Base(f.norm.concatClips[0]))
	require.Equal(t, "clip_1.mp4", filepath.Base(f.norm.concatClips[1]))
	require.Equal(t, f.norm.concatOut, f.publisher.published)

	require.Len(t, f.workspace.removed, 1, "scratch must be reclaimed exactly once")
}

func TestCompose_ClipsFollowTimelineOrder(t *testing.T) {
	f := newFixture(t)

	// Submitted out of start-time order: item_0 starts later than item_1.
	jobID, err := f.svc.Compose(timeline.Timeline{
		VisualTrack: []timeline.Item{
			item("late", timeline.KindVideo, 5, 2),
			item("early", timeline.KindVideo, 0, 2),
		},
	})
	require.NoError(t, err)

	job := waitTerminal(t, f.svc, jobID)
	require.Equal(t, composition.StatusSucceeded, job.Status)

	// clip_0 must come from "early" (fetched as item_1), clip_1 from "late".
	bySource := make(map[string]string, len(f.norm.videoCalls))
	for _, call := range f.norm.videoCalls {
		bySource[filepath.Base(call.output)] = filepath.Base(call.source)
	}
	require.Equal(t, "item_1.src", bySource["clip_0.mp4"])
	require.Equal(t, "item_0.src", bySource["clip_1.mp4"])
}

func TestCompose_EqualStartTimesKeepSubmittedOrder(t *testing.T) {
	f := newFixture(t)

	jobID, err := f.svc.Compose(timeline.Timeline{
		VisualTrack: []timeline.Item{
			item("first", timeline.KindVideo, 1, 2),
			item("second", timeline.KindVideo, 1, 2),
			item("third", timeline.KindVideo, 1, 2),
		},
	})
	require.NoError(t, err)

	job := waitTerminal(t, f.svc, jobID)
	require.Equal(t, composition.StatusSucceeded, job.Status)

	bySource := make(map[string]string, len(f.norm.videoCalls))
	for _, call := range f.norm.videoCalls {
		bySource[filepath.Base(call.output)] = filepath.Base(call.source)
	}
	require.Equal(t, "item_0.src", bySource["clip_0.mp4"])
	require.Equal(t, "item_1.src", bySource["clip_1.mp4"])
	require.Equal(t, "item_2.src", bySource["clip_2.mp4"])
}

func TestCompose_FetchFailureAbortsJob(t *testing.T) {
	f := newFixture(t)
	f.fetcher.failURL = "https://cdn.example.com/b.mp4"

	jobID, err := f.svc.Compose(timeline.Timeline{
		VisualTrack: []timeline.Item{
			item("a", timeline.KindImage, 0, 3),
			item("b", timeline.KindVideo, 3, 4),
		},
	})
	require.NoError(t, err)

	job := waitTerminal(t, f.svc, jobID)
	require.Equal(t, composition.StatusFailed, job.Status)
	require.True(t, strings.HasPrefix(job.Error, "Failed to download media:"), job.Error)

	require.Empty(t, f.norm.imageCalls, "no standardized clips after a fetch failure")
	require.Empty(t, f.norm.videoCalls)
	require.Len(t, f.workspace.removed, 1, "scratch must be reclaimed on failure too")
}

func TestCompose_NormalizationFailure(t *testing.T) {
	f := newFixture(t)
	f.norm.failNormalize = true

	jobID, err := f.svc.Compose(timeline.Timeline{
		VisualTrack: []timeline.Item{item("a", timeline.KindImage, 0, 3)},
	})
	require.NoError(t, err)

	job := waitTerminal(t, f.svc, jobID)
	require.Equal(t, composition.StatusFailed, job.Status)
	require.Equal(t, "Video composition failed", job.Error)
	require.Empty(t, f.publisher.published, "nothing must be published on composition failure")
}

func TestCompose_UndersizedConcatOutputFailsJob(t *testing.T) {
	f := newFixture(t)
	f.norm.failConcat = true

	jobID, err := f.svc.Compose(timeline.Timeline{
		VisualTrack: []timeline.Item{
			item("a", timeline.KindImage, 0, 3),
			item("b", timeline.KindVideo, 3, 4),
		},
	})
	require.NoError(t, err)

	job := waitTerminal(t, f.svc, jobID)
	require.Equal(t, composition.StatusFailed, job.Status)
	require.Equal(t, "Video composition failed", job.Error)
}

func TestCompose_OutputDurationDriftFailsJob(t *testing.T) {
	f := newFixture(t)
	f.norm.probeSkew = -5 // joined output comes up five seconds short

	jobID, err := f.svc.Compose(timeline.Timeline{
		VisualTrack: []timeline.Item{
			item("a", timeline.KindImage, 0, 3),
			item("b", timeline.KindVideo, 3, 4),
		},
	})
	require.NoError(t, err)

	job := waitTerminal(t, f.svc, jobID)
	require.Equal(t, composition.StatusFailed, job.Status)
	require.Equal(t, "Video composition failed", job.Error)
	require.Empty(t, f.publisher.published, "truncated output must not be published")
}

func TestCompose_ProbeFailureDoesNotFailJob(t *testing.T) {
	f := newFixture(t)
	f.norm.probeErr = errors.New("ffprobe failed: exit status 1")

	jobID, err := f.svc.Compose(timeline.Timeline{
		VisualTrack: []timeline.Item{item("a", timeline.KindVideo, 0, 3)},
	})
	require.NoError(t, err)

	job := waitTerminal(t, f.svc, jobID)
	require.Equal(t, composition.StatusSucceeded, job.Status, "the duration check is advisory when probing fails")
}

func TestCompose_PublishFailure(t *testing.T) {
	f := newFixture(t)
	f.publisher.err = errors.New("upload final.mp4: access denied")

	jobID, err := f.svc.Compose(timeline.Timeline{
		VisualTrack: []timeline.Item{item("a", timeline.KindVideo, 0, 3)},
	})
	require.NoError(t, err)

	job := waitTerminal(t, f.svc, jobID)
	require.Equal(t, composition.StatusFailed, job.Status)
	require.True(t, strings.HasPrefix(job.Error, "Failed to upload composed video:"), job.Error)
}

func TestCompose_HandleClosesOnCompletion(t *testing.T) {
	f := newFixture(t)

	jobID, err := f.svc.Compose(timeline.Timeline{
		VisualTrack: []timeline.Item{item("a", timeline.KindImage, 0, 2)},
	})
	require.NoError(t, err)

	waitTerminal(t, f.svc, jobID)

	require.Eventually(t, func() bool {
		f.svc.mu.Lock()
		defer f.svc.mu.Unlock()
		_, stillTracked := f.svc.handles[jobID]
		return !stillTracked
	}, time.Second, 2*time.Millisecond, "handle must be released after the pipeline finishes")
}
