// Package media shells out to ffprobe/ffmpeg for the three operations the
// workflow needs: probing a recording's duration, cutting a short preview
// clip, and splitting a recording into stream-copied segments.
package media

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"recflow/internal/media/ffprobe"
	"recflow/internal/services"
)

// Tool is the media capability consumed by the workflow and delivery retrier.
type Tool interface {
	ProbeDuration(ctx context.Context, path string) (float64, error)
	ExtractClip(ctx context.Context, path, outPath string, start, length float64) error
	SplitIntoSegments(ctx context.Context, path, outDir, prefix string, segmentSeconds float64) ([]string, error)
}

// Runner executes a command and returns its stdout.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

// FFmpeg implements Tool with the ffmpeg/ffprobe binaries.
type FFmpeg struct {
	ffmpeg  string
	ffprobe string
	run     Runner
}

// NewFFmpeg builds a Tool. Empty binary names fall back to the PATH defaults.
func NewFFmpeg(ffmpegBinary, ffprobeBinary string) *FFmpeg {
	if ffmpegBinary == "" {
		ffmpegBinary = "ffmpeg"
	}
	if ffprobeBinary == "" {
		ffprobeBinary = "ffprobe"
	}
	return &FFmpeg{ffmpeg: ffmpegBinary, ffprobe: ffprobeBinary, run: execRunner}
}

// WithRunner replaces command execution (for tests).
func (f *FFmpeg) WithRunner(run Runner) *FFmpeg {
	f.run = run
	return f
}

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec
	output, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return output, fmt.Errorf("%s: %w: %s", name, err, lastLine(string(exitErr.Stderr)))
		}
		return output, fmt.Errorf("%s: %w", name, err)
	}
	return output, nil
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}

// ProbeDuration returns the container duration in seconds.
func (f *FFmpeg) ProbeDuration(ctx context.Context, path string) (float64, error) {
	output, err := f.run(ctx, f.ffprobe, ffprobe.Args(path)...)
	if err != nil {
		return 0, services.Wrap(services.ErrExternalTool, "media", "probe", filepath.Base(path), err)
	}
	result, err := ffprobe.Parse(output)
	if err != nil {
		return 0, services.Wrap(services.ErrExternalTool, "media", "probe", filepath.Base(path), err)
	}
	duration := result.DurationSeconds()
	if math.IsNaN(duration) || duration <= 0 {
		return 0, services.Wrap(services.ErrValidation, "media", "probe", fmt.Sprintf("%s has no usable duration", filepath.Base(path)), nil)
	}
	return duration, nil
}

// ExtractClip re-encodes a short, chat-friendly preview starting at start.
func (f *FFmpeg) ExtractClip(ctx context.Context, path, outPath string, start, length float64) error {
	if length <= 0 {
		return services.Wrap(services.ErrValidation, "media", "clip", "clip length must be positive", nil)
	}
	args := []string{
		"-y", "-hide_banner", "-loglevel", "error",
		"-ss", formatSeconds(start),
		"-t", formatSeconds(length),
		"-i", path,
		"-map", "0:v:0", "-map", "0:a:0?",
		"-vf", "scale=-2:480",
		"-c:v", "libx264", "-preset", "veryfast", "-crf", "28",
		"-c:a", "aac", "-b:a", "96k",
		"-movflags", "+faststart",
		outPath,
	}
	if _, err := f.run(ctx, f.ffmpeg, args...); err != nil {
		return services.Wrap(services.ErrExternalTool, "media", "clip", filepath.Base(path), err)
	}
	return nil
}

// SplitIntoSegments stream-copies path into consecutive parts of roughly
// segmentSeconds each. Cuts land on keyframes, so part lengths vary.
func (f *FFmpeg) SplitIntoSegments(ctx context.Context, path, outDir, prefix string, segmentSeconds float64) ([]string, error) {
	if segmentSeconds <= 0 {
		return nil, services.Wrap(services.ErrValidation, "media", "split", "segment length must be positive", nil)
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("media split: ensure out dir: %w", err)
	}
	ext := strings.ToLower(filepath.Ext(path))
	if ext == "" {
		ext = ".mp4"
	}
	pattern := filepath.Join(outDir, prefix+"%03d"+ext)
	args := []string{
		"-y", "-hide_banner", "-loglevel", "error",
		"-i", path,
		"-map", "0",
		"-c", "copy",
		"-f", "segment",
		"-segment_time", formatSeconds(segmentSeconds),
		"-reset_timestamps", "1",
		pattern,
	}
	if _, err := f.run(ctx, f.ffmpeg, args...); err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "media", "split", filepath.Base(path), err)
	}
	parts, err := filepath.Glob(filepath.Join(outDir, prefix+"*"+ext))
	if err != nil {
		return nil, fmt.Errorf("media split: list parts: %w", err)
	}
	if len(parts) == 0 {
		return nil, services.Wrap(services.ErrExternalTool, "media", "split", "ffmpeg produced no segments", nil)
	}
	sort.Strings(parts)
	return parts, nil
}

func formatSeconds(v float64) string {
	return strconv.FormatFloat(math.Max(v, 0), 'f', 3, 64)
}

// ClipWindow picks the preview window for a recording of duration seconds:
// the clip starts at fraction of the duration and is shifted back so it fits.
func ClipWindow(duration, clipSeconds, fraction float64) (start, length float64) {
	if duration <= 0 {
		return 0, clipSeconds
	}
	length = math.Min(clipSeconds, duration)
	start = duration * fraction
	if start+length > duration {
		start = duration - length
	}
	return math.Max(start, 0), length
}
