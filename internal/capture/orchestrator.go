// Package capture records a segment of a live stream and samples still
// frames from it. Orchestrator.Run is the whole workflow: derive the
// session paths, run the downloader under a timeout, recover a partial
// download, extract frames and report what was produced.
//
// Failures of the external tools are logged and the run continues; the
// frame count in the Summary is the signal of overall success.
package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/maauso/frames-scrapper/internal/download"
	"github.com/maauso/frames-scrapper/internal/media"
	"github.com/maauso/frames-scrapper/internal/session"
	"github.com/maauso/frames-scrapper/internal/storage"
)

// ErrInterrupted is returned when the operator interrupts the run and the
// interrupt policy is InterruptAbort. It wraps the context error.
var ErrInterrupted = errors.New("capture interrupted")

// Summary reports what a capture produced.
type Summary struct {
	// Timestamp identifies the session.
	Timestamp string
	// VideoPath is the recorded video. It may not exist if the download failed.
	VideoPath string
	// FrameDir holds the extracted frames.
	FrameDir string
	// FrameCount is the number of frame_NNNNNN.jpg files in FrameDir.
	FrameCount int
	// VideoDuration is the probed video length in seconds, 0 when unknown.
	VideoDuration float64
	// TimedOut is set when the download was killed at the timeout.
	TimedOut bool
	// Interrupted is set when the download was killed by the operator.
	Interrupted bool
	// Recovered is set when a partial download was promoted to VideoPath.
	Recovered bool
	// Published lists the URLs of uploaded artifacts.
	Published []string
}

// Orchestrator runs captures.
type Orchestrator struct {
	downloader download.Downloader
	extractor  media.Extractor
	store      storage.Storage
	logger     *slog.Logger
	now        func() time.Time
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithClock sets the clock used to timestamp sessions.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// New creates an Orchestrator from its collaborators.
func New(d download.Downloader, e media.Extractor, s storage.Storage, logger *slog.Logger, opts ...Option) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	o := &Orchestrator{
		downloader: d,
		extractor:  e,
		store:      s,
		logger:     logger,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run executes one capture.
//
// The returned Summary is non-nil whenever the session paths were derived,
// including when an error is returned.
func (o *Orchestrator) Run(ctx context.Context, opts Options) (*Summary, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	sess := session.New(o.now(), opts.StreamsDir, opts.OutputRoot)
	log := o.logger.With(slog.String("session", sess.Timestamp))

	summary := &Summary{
		Timestamp: sess.Timestamp,
		VideoPath: sess.VideoPath,
		FrameDir:  sess.FrameDir,
	}

	if err := o.store.EnsureDir(sess.FrameDir); err != nil {
		return summary, err
	}
	if err := o.store.EnsureDir(sess.StreamsDir); err != nil {
		return summary, err
	}

	log.Info("starting download",
		slog.String("url", opts.URL),
		slog.String("video_path", sess.VideoPath),
		slog.Float64("duration_hours", opts.DurationHours),
		slog.Duration("timeout", opts.Timeout()),
	)

	res, err := o.downloader.Download(ctx, download.Request{
		URL:             opts.URL,
		OutputPath:      sess.VideoPath,
		DurationSeconds: opts.DurationSeconds(),
		Timeout:         opts.Timeout(),
	})
	if err != nil {
		return summary, fmt.Errorf("download: %w", err)
	}
	summary.TimedOut = res.TimedOut
	summary.Interrupted = res.Interrupted
	logDownload(log, res, opts.Timeout())

	o.recoverPartial(log, sess, summary)

	workCtx := ctx
	if res.Interrupted {
		if opts.InterruptPolicy != InterruptContinue {
			return summary, fmt.Errorf("%w: %w", ErrInterrupted, context.Cause(ctx))
		}
		log.Info("continuing with recorded video after interrupt")
		workCtx = context.WithoutCancel(ctx)
	}

	if err := o.extract(workCtx, log, sess, opts.Nth, summary); err != nil {
		return summary, err
	}

	if opts.Publish {
		urls, err := o.publish(workCtx, log, sess)
		summary.Published = urls
		if err != nil {
			return summary, err
		}
	}

	log.Info("capture finished",
		slog.Int("frames", summary.FrameCount),
		slog.String("video_path", summary.VideoPath),
		slog.Bool("timed_out", summary.TimedOut),
		slog.Bool("recovered", summary.Recovered),
	)

	return summary, nil
}

func logDownload(log *slog.Logger, res download.Result, timeout time.Duration) {
	switch {
	case res.TimedOut:
		log.Warn("download timed out, downloader killed",
			slog.Duration("timeout", timeout),
			slog.Int("pid", res.PID),
		)
	case res.Interrupted:
		log.Warn("download interrupted, downloader killed",
			slog.Duration("elapsed", res.Elapsed),
			slog.Int("pid", res.PID),
		)
	case res.ExitErr != nil:
		log.Warn("downloader exited with error",
			slog.String("error", res.ExitErr.Error()),
			slog.Duration("elapsed", res.Elapsed),
		)
	default:
		log.Info("download finished", slog.Duration("elapsed", res.Elapsed))
	}
}

// recoverPartial promotes a partial download. Failures are logged only.
func (o *Orchestrator) recoverPartial(log *slog.Logger, sess *session.Session, summary *Summary) {
	rec, err := o.store.RecoverPartial(sess.StreamsDir, sess.VideoBase(), sess.VideoPath)
	if err != nil {
		log.Warn("partial download recovery failed", slog.String("error", err.Error()))
		return
	}
	if rec.Promoted != "" {
		summary.Recovered = true
		log.Info("using partial download", slog.String("partial", rec.Promoted))
	}
	for _, p := range rec.Removed {
		log.Debug("removed stale partial download", slog.String("partial", p))
	}
}

// extract samples frames and fills the frame count and video duration.
// Only an interrupt during extraction is returned as an error.
func (o *Orchestrator) extract(ctx context.Context, log *slog.Logger, sess *session.Session, nth int, summary *Summary) error {
	if _, err := os.Stat(sess.VideoPath); err != nil {
		log.Warn("video file missing, frame extraction will fail",
			slog.String("video_path", sess.VideoPath),
		)
	} else if d, err := o.extractor.GetMediaDuration(ctx, sess.VideoPath); err != nil {
		log.Debug("could not get video duration", slog.String("error", err.Error()))
	} else {
		summary.VideoDuration = d
	}

	log.Info("extracting frames",
		slog.String("frame_dir", sess.FrameDir),
		slog.Int("nth", nth),
		slog.Float64("video_duration", summary.VideoDuration),
	)

	if err := o.extractor.ExtractFrames(ctx, sess.VideoPath, sess.FrameDir, nth); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %w", ErrInterrupted, context.Cause(ctx))
		}
		attrs := []any{slog.String("error", errorLine(err))}
		var ffErr *media.FFmpegError
		if errors.As(err, &ffErr) {
			attrs = append(attrs, slog.String("stderr", lastLine(ffErr.Stderr)))
		}
		log.Warn("frame extraction failed", attrs...)
	}

	n, err := media.CountFrames(sess.FrameDir)
	if err != nil {
		log.Warn("could not count frames", slog.String("error", err.Error()))
	}
	summary.FrameCount = n
	return nil
}

// publish uploads the video and every counted frame under the session timestamp.
func (o *Orchestrator) publish(ctx context.Context, log *slog.Logger, sess *session.Session) ([]string, error) {
	type object struct{ key, path string }

	var objects []object
	if _, err := os.Stat(sess.VideoPath); err == nil {
		objects = append(objects, object{sess.Timestamp + "/" + filepath.Base(sess.VideoPath), sess.VideoPath})
	}
	frames, err := media.ListFrames(sess.FrameDir)
	if err != nil {
		return nil, fmt.Errorf("publish: %w", err)
	}
	for _, f := range frames {
		objects = append(objects, object{sess.Timestamp + "/frames/" + filepath.Base(f), f})
	}

	var urls []string
	for _, obj := range objects {
		url, err := o.store.Upload(ctx, obj.key, obj.path)
		if errors.Is(err, storage.ErrS3NotConfigured) {
			log.Warn("publishing skipped: S3 is not configured")
			return nil, nil
		}
		if err != nil {
			return urls, fmt.Errorf("publish %s: %w", obj.key, err)
		}
		urls = append(urls, url)
	}

	log.Info("artifacts published", slog.Int("objects", len(urls)))
	return urls, nil
}

func errorLine(err error) string {
	var ffErr *media.FFmpegError
	if errors.As(err, &ffErr) {
		return ffErr.Err.Error()
	}
	return err.Error()
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}
