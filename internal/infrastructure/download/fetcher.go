package download

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"time"
)

// defaultExt is used when the source URL carries no file extension.
const defaultExt = ".bin"

// Fetcher downloads remote media assets into a job's scratch directory.
type Fetcher struct {
	client *http.Client
}

// NewFetcher creates an HTTP fetcher with a hard per-request timeout.
func NewFetcher(timeout time.Duration) *Fetcher {
	return &Fetcher{client: &http.Client{Timeout: timeout}}
}

// Fetch downloads rawURL into destDir and returns the local path. The local
// filename is prefix plus the extension taken from the URL path with any
// query string stripped. A single failed fetch aborts the whole composition,
// so there are no retries here.
func (f *Fetcher) Fetch(ctx context.Context, rawURL, destDir, prefix string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", rawURL, err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("fetch %s: unexpected status %d", rawURL, resp.StatusCode)
	}

	localPath := filepath.Join(destDir, prefix+extensionFromURL(rawURL))
	file, err := os.Create(localPath)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", rawURL, err)
	}

	if _, err := io.Copy(file, resp.Body); err != nil {
		_ = file.Close()
		_ = os.Remove(localPath)
		return "", fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	if err := file.Close(); err != nil {
		return "", fmt.Errorf("fetch %s: %w", rawURL, err)
	}

	return localPath, nil
}

func extensionFromURL(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return defaultExt
	}
	ext := path.Ext(parsed.Path)
	if ext == "" || ext == "." {
		return defaultExt
	}
	return ext
}
