package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
)

// Static errors for media operations.
var (
	// ErrInvalidInterval is returned when the sampling interval is below one.
	ErrInvalidInterval = errors.New("invalid sampling interval: must be at least 1")
	// ErrFFprobeExecution is returned when ffprobe command fails.
	ErrFFprobeExecution = errors.New("ffprobe execution failed")
)

// FramePattern is the ffmpeg output template for extracted frames.
const FramePattern = "frame_%06d.jpg"

// frameName matches the files produced by FramePattern and nothing else.
var frameName = regexp.MustCompile(`^frame_\d{6}\.jpg$`)

// FFmpegExtractor implements Extractor using the ffmpeg and ffprobe CLIs.
type FFmpegExtractor struct {
	// ffmpegPath is the path to the ffmpeg binary. Defaults to "ffmpeg".
	ffmpegPath string
	// ffprobePath is the path to the ffprobe binary. Defaults to "ffprobe".
	ffprobePath string
}

// NewFFmpegExtractor creates a new FFmpegExtractor.
// Empty paths default to "ffmpeg" and "ffprobe" (found via PATH).
func NewFFmpegExtractor(ffmpegPath, ffprobePath string) *FFmpegExtractor {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &FFmpegExtractor{ffmpegPath: ffmpegPath, ffprobePath: ffprobePath}
}

// SelectFilter returns the video filter keeping frames whose zero-based
// index is divisible by nth.
func SelectFilter(nth int) string {
	return fmt.Sprintf(`select='not(mod(n\,%d))'`, nth)
}

// ExtractArgs builds the ffmpeg arguments used by ExtractFrames.
func ExtractArgs(videoPath, frameDir string, nth int) []string {
	return []string{
		"-i", videoPath, // Input file
		"-vf", SelectFilter(nth), // Keep one frame out of every nth
		"-vsync", "vfr", // Drop the timestamps of discarded frames
		"-q:v", "2", // JPEG quality
		filepath.Join(frameDir, FramePattern),
	}
}

// ExtractFrames writes every nth frame of videoPath into frameDir as
// sequentially numbered JPEG images starting at frame_000001.jpg.
func (p *FFmpegExtractor) ExtractFrames(ctx context.Context, videoPath, frameDir string, nth int) error {
	if nth < 1 {
		return fmt.Errorf("%w: got %d", ErrInvalidInterval, nth)
	}
	return p.runFFmpeg(ctx, ExtractArgs(videoPath, frameDir, nth))
}

// CountFrames returns the number of files in dir named frame_NNNNNN.jpg.
// Other files are ignored.
func CountFrames(dir string) (int, error) {
	frames, err := ListFrames(dir)
	if err != nil {
		return 0, err
	}
	return len(frames), nil
}

// ListFrames returns the paths of the extracted frames in dir, in name order.
func ListFrames(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read frame directory: %w", err)
	}

	var frames []string
	for _, e := range entries {
		if e.IsDir() || !frameName.MatchString(e.Name()) {
			continue
		}
		frames = append(frames, filepath.Join(dir, e.Name()))
	}
	return frames, nil
}

// runFFmpeg executes ffmpeg with the given arguments and returns an error
// containing stderr output if the command fails.
func (p *FFmpegExtractor) runFFmpeg(ctx context.Context, args []string) error {
	// #nosec G204 - ffmpegPath is set by the application, not user input
	cmd := exec.CommandContext(ctx, p.ffmpegPath, args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil {
		// Check if context was cancelled
		if ctx.Err() != nil {
			return fmt.Errorf("ffmpeg cancelled: %w", ctx.Err())
		}
		return &FFmpegError{
			Args:   args,
			Stderr: stderr.String(),
			Err:    err,
		}
	}

	return nil
}

// FFmpegError represents an error from running ffmpeg, including the stderr output.
type FFmpegError struct {
	Args   []string
	Stderr string
	Err    error
}

func (e *FFmpegError) Error() string {
	return fmt.Sprintf("ffmpeg error: %v\nargs: %v\nstderr: %s", e.Err, e.Args, e.Stderr)
}

func (e *FFmpegError) Unwrap() error {
	return e.Err
}

// GetMediaDuration returns the duration in seconds of a media file.
// It uses ffprobe to extract the duration metadata.
func (p *FFmpegExtractor) GetMediaDuration(ctx context.Context, path string) (float64, error) {
	// #nosec G204 - ffprobePath is set by the application, not user input
	cmd := exec.CommandContext(ctx, p.ffprobePath,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil {
		if ctx.Err() != nil {
			return 0, fmt.Errorf("ffprobe cancelled: %w", ctx.Err())
		}
		return 0, fmt.Errorf("%w: %w, stderr: %s", ErrFFprobeExecution, err, stderr.String())
	}

	var duration float64
	_, err = fmt.Sscanf(strings.TrimSpace(stdout.String()), "%f", &duration)
	if err != nil {
		return 0, fmt.Errorf("parse duration: %w", err)
	}

	return duration, nil
}
