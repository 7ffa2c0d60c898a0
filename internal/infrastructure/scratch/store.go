package scratch

import (
	"os"
	"path/filepath"
)

// Store hands out per-job scratch directories under a configured root.
// Every directory is exclusive to one composition job and is removed
// unconditionally when the job's pipeline finishes.
type Store struct {
	Root string
}

// NewStore creates a scratch adapter rooted at dir. An empty dir falls back
// to the system temp directory.
func NewStore(dir string) *Store {
	if dir == "" {
		dir = os.TempDir()
	}
	return &Store{Root: dir}
}

// EnsureRoot creates the scratch root.
func (s *Store) EnsureRoot() error {
	return os.MkdirAll(s.Root, 0o755)
}

// JobDir creates and returns a fresh scratch directory for one job.
func (s *Store) JobDir(jobID string) (string, error) {
	dir := filepath.Join(s.Root, "compose-"+jobID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}

// Remove reclaims a job's scratch directory and everything in it.
func (s *Store) Remove(dir string) error {
	return os.RemoveAll(dir)
}
