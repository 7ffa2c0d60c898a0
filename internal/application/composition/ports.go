package composition

import "context"

// Fetcher is an application port for retrieving remote assets into scratch
// storage. It returns the local path of the downloaded file.
type Fetcher interface {
	Fetch(ctx context.Context, url, destDir, prefix string) (string, error)
}

// Normalizer is an application port for turning one source asset into a
// standardized clip and for joining ordered clips into the final output.
// ProbeDuration reports a media file's container duration in seconds.
type Normalizer interface {
	ImageClip(ctx context.Context, inputPath, outputPath string, duration float64) error
	VideoClip(ctx context.Context, inputPath, outputPath string, duration float64) error
	Concatenate(ctx context.Context, clipPaths []string, outputPath string) error
	ProbeDuration(ctx context.Context, inputPath string) (float64, error)
}

// Publisher is an application port for moving the composed video to durable
// storage. It returns the public download URL and removes the local file.
type Publisher interface {
	PublishFile(ctx context.Context, localPath string) (string, error)
}

// Workspace is an application port for per-job scratch directories.
type Workspace interface {
	JobDir(jobID string) (string, error)
	Remove(dir string) error
}
