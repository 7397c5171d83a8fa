// Package download records a live stream by supervising an external
// downloader process with a wall-clock bound.
package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"
)

// ErrStart is returned when the downloader process cannot be launched.
var ErrStart = errors.New("start downloader")

// DefaultKillGrace is the pause after killing the downloader.
const DefaultKillGrace = 5 * time.Second

// Request describes one recording.
type Request struct {
	// URL is the live stream locator handed to the downloader.
	URL string
	// OutputPath is where the downloader writes the video.
	OutputPath string
	// DurationSeconds is how much trailing stream time to fetch, counted
	// back from the live edge.
	DurationSeconds int
	// Timeout bounds the wait on the downloader. Zero or negative waits forever.
	Timeout time.Duration
}

// Result reports how the downloader process ended.
type Result struct {
	// PID of the downloader process.
	PID int
	// ExitErr is the error returned by Wait, when it was observed.
	// A nil value with neither TimedOut nor Interrupted means a clean exit.
	ExitErr error
	// TimedOut is set when the process was killed for exceeding Timeout.
	TimedOut bool
	// Interrupted is set when the process was killed because ctx was cancelled.
	Interrupted bool
	// Elapsed is the time from start to exit or kill, grace pause excluded.
	Elapsed time.Duration
}

// Downloader records a stream to disk.
type Downloader interface {
	Download(ctx context.Context, req Request) (Result, error)
}

// YTDLP implements Downloader using the yt-dlp CLI.
type YTDLP struct {
	path      string
	killGrace time.Duration
	stdout    io.Writer
	stderr    io.Writer
	sleep     func(time.Duration)
}

// Option configures a YTDLP downloader.
type Option func(*YTDLP)

// WithKillGrace sets the pause observed after killing the process.
func WithKillGrace(d time.Duration) Option {
	return func(y *YTDLP) {
		if d >= 0 {
			y.killGrace = d
		}
	}
}

// WithOutput redirects the downloader's stdout and stderr.
// Nil writers discard the output.
func WithOutput(stdout, stderr io.Writer) Option {
	return func(y *YTDLP) {
		y.stdout = stdout
		y.stderr = stderr
	}
}

// NewYTDLP creates a new YTDLP downloader.
// If path is empty, it defaults to "yt-dlp" (found via PATH).
// The process output goes to the terminal unless WithOutput says otherwise.
func NewYTDLP(path string, opts ...Option) *YTDLP {
	if path == "" {
		path = "yt-dlp"
	}
	y := &YTDLP{
		path:      path,
		killGrace: DefaultKillGrace,
		stdout:    os.Stdout,
		stderr:    os.Stderr,
		sleep:     time.Sleep,
	}
	for _, opt := range opts {
		opt(y)
	}
	return y
}

// Args builds the yt-dlp arguments for req.
func Args(req Request) []string {
	return []string{
		"--extractor-args", "youtube:player_client=default",
		"--live-from-start",
		"--download-sections", fmt.Sprintf("#-%ds - 0", req.DurationSeconds),
		"--abort-on-error",
		"--fragment-retries", "2",
		"--socket-timeout", "5",
		"-o", req.OutputPath,
		req.URL,
	}
}

// Download starts yt-dlp and waits for it to exit, at most req.Timeout.
//
// When the timeout expires or ctx is cancelled, only the yt-dlp process
// itself is killed, then Download sleeps for the kill grace before
// returning. Neither case is reported as an error; callers inspect
// Result.TimedOut and Result.Interrupted. A nonzero exit is reported in
// Result.ExitErr. The returned error is non-nil only when the process
// could not be started.
func (y *YTDLP) Download(ctx context.Context, req Request) (Result, error) {
	// #nosec G204 - path is set by the application, URL is passed as a single argument
	cmd := exec.Command(y.path, Args(req)...)
	cmd.Stdout = y.stdout
	cmd.Stderr = y.stderr
	// yt-dlp may leave helpers holding the output pipes after it is killed.
	cmd.WaitDelay = y.killGrace

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrStart, err)
	}

	res := Result{PID: cmd.Process.Pid}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	var deadline <-chan time.Time
	if req.Timeout > 0 {
		timer := time.NewTimer(req.Timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	select {
	case err := <-done:
		res.ExitErr = err
		res.Elapsed = time.Since(start)
		// A terminal Ctrl-C reaches yt-dlp too and it may exit first.
		res.Interrupted = ctx.Err() != nil
		return res, nil
	case <-deadline:
		res.TimedOut = true
	case <-ctx.Done():
		res.Interrupted = true
	}

	res.Elapsed = time.Since(start)
	if err := cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		res.ExitErr = fmt.Errorf("kill downloader: %w", err)
	}
	y.sleep(y.killGrace)

	select {
	case err := <-done:
		if res.ExitErr == nil {
			res.ExitErr = err
		}
	default:
	}

	return res, nil
}
