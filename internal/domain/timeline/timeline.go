package timeline

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Kind tags the source type of a visual item.
type Kind string

const (
	KindImage Kind = "image"
	KindVideo Kind = "video"
)

// IsValid reports whether the kind is one the composer can process.
func (k Kind) IsValid() bool {
	return k == KindImage || k == KindVideo
}

// Item is a single entry on the visual track: one image or video source
// with its placement in the final output.
type Item struct {
	ID        string
	URL       string
	Name      string
	Kind      Kind
	StartTime float64
	Duration  float64
}

// Validate checks the fields a submission must carry before a composition
// job can be accepted.
func (i Item) Validate() error {
	if strings.TrimSpace(i.ID) == "" {
		return errors.New("item id is required")
	}
	if strings.TrimSpace(i.URL) == "" {
		return fmt.Errorf("item %s: url is required", i.ID)
	}
	if !i.Kind.IsValid() {
		return fmt.Errorf("item %s: unsupported type %q", i.ID, string(i.Kind))
	}
	if i.Duration <= 0 {
		return fmt.Errorf("item %s: duration must be positive", i.ID)
	}
	return nil
}

// Timeline is a client-supplied description of the content to render.
// The audio track is accepted but not mixed into the output yet.
type Timeline struct {
	VisualTrack []Item
	AudioTrack  []Item
	Duration    float64
}

// Validate checks every visual item. An empty visual track is not a
// validation error here; the orchestrator reports it as a job failure.
func (t Timeline) Validate() error {
	seen := make(map[string]struct{}, len(t.VisualTrack))
	for _, item := range t.VisualTrack {
		if err := item.Validate(); err != nil {
			return err
		}
		if _, ok := seen[item.ID]; ok {
			return fmt.Errorf("duplicate item id %s", item.ID)
		}
		seen[item.ID] = struct{}{}
	}
	return nil
}

// SortedByStart returns the items ordered by start time. The sort is
// stable: items sharing a start time keep their submitted order, which
// fixes their relative position in the concatenated output.
func SortedByStart(items []Item) []Item {
	sorted := make([]Item, len(items))
	copy(sorted, items)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].StartTime < sorted[j].StartTime
	})
	return sorted
}
