package ffmpeg

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// Target profile every standardized clip conforms to. Clips produced with
// identical parameters can be joined by the concat demuxer without re-encoding.
const (
	targetWidth     = 1920
	targetHeight    = 1080
	targetFrameRate = 30
	audioSampleRate = 48000
	audioChannels   = 2
)

// minOutputBytes guards against silently truncated concat output. Anything
// below this is treated as a failure even when ffmpeg exited 0.
const minOutputBytes = 1000

var scaleFilter = fmt.Sprintf(
	"scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2:color=black",
	targetWidth, targetHeight, targetWidth, targetHeight,
)

// Converter wraps ffmpeg calls that produce and join standardized clips.
type Converter struct {
	ClipTimeout   time.Duration
	ConcatTimeout time.Duration
}

// NewConverter creates an ffmpeg adapter with per-operation timeouts.
func NewConverter(clipTimeout, concatTimeout time.Duration) *Converter {
	return &Converter{ClipTimeout: clipTimeout, ConcatTimeout: concatTimeout}
}

// ImageClip loops a still image into a clip of the requested duration with a
// synthesized silent stereo track.
func (c *Converter) ImageClip(ctx context.Context, inputPath, outputPath string, duration float64) error {
	ctx, cancel := context.WithTimeout(ctx, c.ClipTimeout)
	defer cancel()
	return run(ctx, "ffmpeg", imageClipArgs(inputPath, outputPath, duration)...)
}

// VideoClip re-encodes a video source into the target profile, truncated to
// the requested duration.
func (c *Converter) VideoClip(ctx context.Context, inputPath, outputPath string, duration float64) error {
	ctx, cancel := context.WithTimeout(ctx, c.ClipTimeout)
	defer cancel()
	return run(ctx, "ffmpeg", videoClipArgs(inputPath, outputPath, duration)...)
}

// Concatenate joins ordered standardized clips into one output file. A single
// clip is copied verbatim; multiple clips go through the concat demuxer with
// stream copy. The result must exist and exceed the minimum plausible size.
func (c *Converter) Concatenate(ctx context.Context, clipPaths []string, outputPath string) error {
	if len(clipPaths) == 0 {
		return fmt.Errorf("no clips to concatenate")
	}

	if len(clipPaths) == 1 {
		if err := copyFile(clipPaths[0], outputPath); err != nil {
			return fmt.Errorf("copy single clip: %w", err)
		}
		return verifyOutput(outputPath)
	}

	ctx, cancel := context.WithTimeout(ctx, c.ConcatTimeout)
	defer cancel()

	manifestPath := outputPath + ".concat.txt"
	if err := writeConcatManifest(manifestPath, clipPaths); err != nil {
		return err
	}
	defer os.Remove(manifestPath)

	if err := run(ctx, "ffmpeg", concatArgs(manifestPath, outputPath)...); err != nil {
		return err
	}

	return verifyOutput(outputPath)
}

// ProbeDuration returns the container duration of a media file in seconds.
func (c *Converter) ProbeDuration(ctx context.Context, inputPath string) (float64, error) {
	args := []string{
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=nokey=1:noprint_wrappers=1",
		inputPath,
	}
	cmd := exec.CommandContext(ctx, "ffprobe", args...)
	out, err := cmd.Output()
	if err != nil {
		return 0, err
	}
	value := strings.TrimSpace(string(out))
	if value == "" {
		return 0, fmt.Errorf("duration missing")
	}
	return strconv.ParseFloat(value, 64)
}

func imageClipArgs(inputPath, outputPath string, duration float64) []string {
	return []string{
		"-y",
		"-loop", "1",
		"-i", inputPath,
		"-f", "lavfi",
		"-i", fmt.Sprintf("anullsrc=channel_layout=stereo:sample_rate=%d", audioSampleRate),
		"-c:v", "libx264",
		"-c:a", "aac",
		"-t", formatDuration(duration),
		"-pix_fmt", "yuv420p",
		"-r", strconv.Itoa(targetFrameRate),
		"-vf", scaleFilter,
		"-ar", strconv.Itoa(audioSampleRate),
		"-ac", strconv.Itoa(audioChannels),
		"-shortest",
		outputPath,
	}
}

func videoClipArgs(inputPath, outputPath string, duration float64) []string {
	return []string{
		"-y",
		"-i", inputPath,
		"-c:v", "libx264",
		"-c:a", "aac",
		"-t", formatDuration(duration),
		"-pix_fmt", "yuv420p",
		"-r", strconv.Itoa(targetFrameRate),
		"-vf", scaleFilter,
		"-ar", strconv.Itoa(audioSampleRate),
		"-ac", strconv.Itoa(audioChannels),
		outputPath,
	}
}

func concatArgs(manifestPath, outputPath string) []string {
	return []string{
		"-y",
		"-f", "concat",
		"-safe", "0",
		"-i", manifestPath,
		"-c", "copy",
		outputPath,
	}
}

func formatDuration(seconds float64) string {
	return strconv.FormatFloat(seconds, 'f', -1, 64)
}

func writeConcatManifest(manifestPath string, clipPaths []string) error {
	var buf bytes.Buffer
	for _, clip := range clipPaths {
		fmt.Fprintf(&buf, "file '%s'\n", clip)
	}
	if err := os.WriteFile(manifestPath, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write concat manifest: %w", err)
	}
	return nil
}

func verifyOutput(outputPath string) error {
	info, err := os.Stat(outputPath)
	if err != nil {
		return fmt.Errorf("output file missing: %w", err)
	}
	if info.Size() < minOutputBytes {
		return fmt.Errorf("output file too small: %d bytes", info.Size())
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

func run(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	cmd.Stdout = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s failed: %w: %s", name, err, strings.TrimSpace(stderr.String()))
	}
	return nil
}
