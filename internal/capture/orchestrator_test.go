package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maauso/frames-scrapper/internal/download"
	"github.com/maauso/frames-scrapper/internal/media"
	"github.com/maauso/frames-scrapper/internal/storage"
)

var fixedNow = time.Date(2024, time.May, 4, 13, 37, 0, 0, time.Local)

const fixedTS = "20240504_133700"

type fakeDownloader struct {
	fn    func(ctx context.Context, req download.Request) (download.Result, error)
	calls []download.Request
}

func (f *fakeDownloader) Download(ctx context.Context, req download.Request) (download.Result, error) {
	f.calls = append(f.calls, req)
	if f.fn == nil {
		return download.Result{}, nil
	}
	return f.fn(ctx, req)
}

type extractCall struct {
	ctx       context.Context
	videoPath string
	frameDir  string
	nth       int
}

type fakeExtractor struct {
	frames   int
	err      error
	duration float64
	calls    []extractCall
}

func (f *fakeExtractor) ExtractFrames(ctx context.Context, videoPath, frameDir string, nth int) error {
	f.calls = append(f.calls, extractCall{ctx, videoPath, frameDir, nth})
	for i := 1; i <= f.frames; i++ {
		name := filepath.Join(frameDir, fmt.Sprintf("frame_%06d.jpg", i))
		if err := os.WriteFile(name, []byte("jpg"), 0600); err != nil {
			return err
		}
	}
	return f.err
}

func (f *fakeExtractor) GetMediaDuration(_ context.Context, _ string) (float64, error) {
	return f.duration, nil
}

// uploadStore records uploads on top of local disk behaviour.
type uploadStore struct {
	*storage.LocalStorage
	keys []string
	err  error
}

func (s *uploadStore) Upload(_ context.Context, key, _ string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.keys = append(s.keys, key)
	return "https://bucket.example/" + key, nil
}

func writeVideo(_ context.Context, req download.Request) (download.Result, error) {
	return download.Result{}, os.WriteFile(req.OutputPath, []byte("video"), 0600)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testOptions(t *testing.T) Options {
	t.Helper()
	root := t.TempDir()
	opts := DefaultOptions("https://example.com/live/x")
	opts.StreamsDir = filepath.Join(root, "streams")
	opts.OutputRoot = filepath.Join(root, "frames")
	opts.Nth = 10
	opts.DurationHours = 1.0
	opts.TimeoutSeconds = 60
	return opts
}

func newTestOrchestrator(d download.Downloader, e media.Extractor, s storage.Storage) *Orchestrator {
	if s == nil {
		s = storage.NewLocalStorage()
	}
	return New(d, e, s, testLogger(), WithClock(func() time.Time { return fixedNow }))
}

func TestRun_HappyPath(t *testing.T) {
	opts := testOptions(t)
	d := &fakeDownloader{fn: writeVideo}
	e := &fakeExtractor{frames: 12, duration: 120}

	summary, err := newTestOrchestrator(d, e, nil).Run(context.Background(), opts)
	require.NoError(t, err)

	wantVideo := filepath.Join(opts.StreamsDir, "stream_capture_"+fixedTS+".mp4")
	wantFrames := filepath.Join(opts.OutputRoot, fixedTS)

	assert.Equal(t, fixedTS, summary.Timestamp)
	assert.Equal(t, wantVideo, summary.VideoPath)
	assert.Equal(t, wantFrames, summary.FrameDir)
	assert.Equal(t, 12, summary.FrameCount)
	assert.Equal(t, 120.0, summary.VideoDuration)
	assert.False(t, summary.TimedOut)
	assert.False(t, summary.Recovered)
	assert.FileExists(t, wantVideo)

	require.Len(t, d.calls, 1)
	assert.Equal(t, download.Request{
		URL:             "https://example.com/live/x",
		OutputPath:      wantVideo,
		DurationSeconds: 3600,
		Timeout:         60 * time.Second,
	}, d.calls[0])

	require.Len(t, e.calls, 1)
	assert.Equal(t, wantVideo, e.calls[0].videoPath)
	assert.Equal(t, wantFrames, e.calls[0].frameDir)
	assert.Equal(t, 10, e.calls[0].nth)
}

func TestRun_CountIgnoresOtherFiles(t *testing.T) {
	opts := testOptions(t)
	d := &fakeDownloader{fn: writeVideo}
	e := &fakeExtractor{frames: 3}

	o := newTestOrchestrator(d, e, nil)
	frameDir := filepath.Join(opts.OutputRoot, fixedTS)
	require.NoError(t, os.MkdirAll(frameDir, 0750))
	require.NoError(t, os.WriteFile(filepath.Join(frameDir, "thumbnail.jpg"), nil, 0600))
	require.NoError(t, os.WriteFile(filepath.Join(frameDir, "frame_12.jpg"), nil, 0600))

	summary, err := o.Run(context.Background(), opts)
	require.NoError(t, err)
	assert.Equal(t, 3, summary.FrameCount)
}

func TestRun_InvalidOptions(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Options)
	}{
		{"missing url", func(o *Options) { o.URL = "" }},
		{"zero nth", func(o *Options) { o.Nth = 0 }},
		{"negative duration", func(o *Options) { o.DurationHours = -1 }},
		{"zero timeout", func(o *Options) { o.TimeoutSeconds = 0 }},
		{"duration too long", func(o *Options) { o.DurationHours = MaxDurationHours + 1 }},
		{"timeout too long", func(o *Options) { o.TimeoutSeconds = MaxTimeoutSeconds * 2 }},
		{"empty output root", func(o *Options) { o.OutputRoot = "" }},
		{"unknown interrupt policy", func(o *Options) { o.InterruptPolicy = "ignore" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := testOptions(t)
			tt.modify(&opts)
			d := &fakeDownloader{}

			summary, err := newTestOrchestrator(d, &fakeExtractor{}, nil).Run(context.Background(), opts)
			assert.ErrorIs(t, err, ErrInvalidOptions)
			assert.Nil(t, summary)
			assert.Empty(t, d.calls)
		})
	}
}

func TestRun_RecoversPartialAfterTimeout(t *testing.T) {
	opts := testOptions(t)
	d := &fakeDownloader{fn: func(_ context.Context, req download.Request) (download.Result, error) {
		err := os.WriteFile(req.OutputPath+".part", []byte("partial"), 0600)
		return download.Result{TimedOut: true}, err
	}}
	e := &fakeExtractor{frames: 2}

	summary, err := newTestOrchestrator(d, e, nil).Run(context.Background(), opts)
	require.NoError(t, err)

	assert.True(t, summary.TimedOut)
	assert.True(t, summary.Recovered)
	assert.FileExists(t, summary.VideoPath)
	assert.NoFileExists(t, summary.VideoPath+".part")
	require.Len(t, e.calls, 1)
	assert.Equal(t, summary.VideoPath, e.calls[0].videoPath)
	assert.Equal(t, 2, summary.FrameCount)
}

func TestRun_FinalAndPartialNeverCoexist(t *testing.T) {
	opts := testOptions(t)
	d := &fakeDownloader{fn: func(_ context.Context, req download.Request) (download.Result, error) {
		if err := os.WriteFile(req.OutputPath, []byte("final"), 0600); err != nil {
			return download.Result{}, err
		}
		return download.Result{}, os.WriteFile(req.OutputPath+".part", []byte("stale"), 0600)
	}}

	summary, err := newTestOrchestrator(d, &fakeExtractor{}, nil).Run(context.Background(), opts)
	require.NoError(t, err)

	content, err := os.ReadFile(summary.VideoPath)
	require.NoError(t, err)
	assert.Equal(t, "final", string(content))
	assert.NoFileExists(t, summary.VideoPath+".part")
	assert.False(t, summary.Recovered)
}

func TestRun_MissingVideoIsBestEffort(t *testing.T) {
	opts := testOptions(t)
	d := &fakeDownloader{fn: func(context.Context, download.Request) (download.Result, error) {
		return download.Result{ExitErr: errors.New("exit status 1")}, nil
	}}
	e := &fakeExtractor{err: &media.FFmpegError{Stderr: "No such file or directory", Err: errors.New("exit status 1")}}

	summary, err := newTestOrchestrator(d, e, nil).Run(context.Background(), opts)
	require.NoError(t, err)

	assert.Zero(t, summary.FrameCount)
	assert.Zero(t, summary.VideoDuration)
	assert.Len(t, e.calls, 1, "extraction is still attempted")
}

func TestRun_DownloaderStartFailure(t *testing.T) {
	opts := testOptions(t)
	d := &fakeDownloader{fn: func(context.Context, download.Request) (download.Result, error) {
		return download.Result{}, download.ErrStart
	}}
	e := &fakeExtractor{}

	summary, err := newTestOrchestrator(d, e, nil).Run(context.Background(), opts)
	assert.ErrorIs(t, err, download.ErrStart)
	require.NotNil(t, summary)
	assert.Empty(t, e.calls)
}

func interruptingDownloader(cancel context.CancelFunc, writePartial bool) *fakeDownloader {
	return &fakeDownloader{fn: func(_ context.Context, req download.Request) (download.Result, error) {
		cancel()
		if writePartial {
			if err := os.WriteFile(req.OutputPath+".part", []byte("partial"), 0600); err != nil {
				return download.Result{}, err
			}
		}
		return download.Result{Interrupted: true}, nil
	}}
}

func TestRun_InterruptAbort(t *testing.T) {
	opts := testOptions(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	d := interruptingDownloader(cancel, true)
	e := &fakeExtractor{}

	summary, err := newTestOrchestrator(d, e, nil).Run(ctx, opts)
	assert.ErrorIs(t, err, ErrInterrupted)
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, summary)
	assert.True(t, summary.Interrupted)
	assert.Empty(t, e.calls, "extraction must not run after an aborting interrupt")
	assert.FileExists(t, summary.VideoPath, "partial download is still recovered")
}

func TestRun_InterruptContinue(t *testing.T) {
	opts := testOptions(t)
	opts.InterruptPolicy = InterruptContinue
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	d := interruptingDownloader(cancel, true)
	e := &fakeExtractor{frames: 4}

	summary, err := newTestOrchestrator(d, e, nil).Run(ctx, opts)
	require.NoError(t, err)

	assert.True(t, summary.Interrupted)
	assert.True(t, summary.Recovered)
	assert.Equal(t, 4, summary.FrameCount)
	require.Len(t, e.calls, 1)
	assert.NoError(t, e.calls[0].ctx.Err(), "extraction runs detached from the interrupt")
}

func TestRun_InterruptDuringExtraction(t *testing.T) {
	opts := testOptions(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	d := &fakeDownloader{fn: writeVideo}
	e := &cancellingExtractor{cancel: cancel}

	_, err := newTestOrchestrator(d, e, nil).Run(ctx, opts)
	assert.ErrorIs(t, err, ErrInterrupted)
}

type cancellingExtractor struct {
	cancel context.CancelFunc
}

func (c *cancellingExtractor) ExtractFrames(ctx context.Context, _, _ string, _ int) error {
	c.cancel()
	return fmt.Errorf("ffmpeg cancelled: %w", ctx.Err())
}

func (c *cancellingExtractor) GetMediaDuration(context.Context, string) (float64, error) {
	return 0, errors.New("not probed")
}

func TestRun_Publish(t *testing.T) {
	t.Run("uploads video and frames", func(t *testing.T) {
		opts := testOptions(t)
		opts.Publish = true
		store := &uploadStore{LocalStorage: storage.NewLocalStorage()}

		summary, err := newTestOrchestrator(&fakeDownloader{fn: writeVideo}, &fakeExtractor{frames: 2}, store).
			Run(context.Background(), opts)
		require.NoError(t, err)

		assert.Equal(t, []string{
			fixedTS + "/stream_capture_" + fixedTS + ".mp4",
			fixedTS + "/frames/frame_000001.jpg",
			fixedTS + "/frames/frame_000002.jpg",
		}, store.keys)
		assert.Len(t, summary.Published, 3)
		assert.Equal(t, "https://bucket.example/"+fixedTS+"/frames/frame_000002.jpg", summary.Published[2])
	})

	t.Run("skipped when S3 is not configured", func(t *testing.T) {
		opts := testOptions(t)
		opts.Publish = true

		summary, err := newTestOrchestrator(&fakeDownloader{fn: writeVideo}, &fakeExtractor{frames: 2}, nil).
			Run(context.Background(), opts)
		require.NoError(t, err)
		assert.Empty(t, summary.Published)
		assert.Equal(t, 2, summary.FrameCount)
	})

	t.Run("upload failure is returned", func(t *testing.T) {
		opts := testOptions(t)
		opts.Publish = true
		uploadErr := errors.New("access denied")
		store := &uploadStore{LocalStorage: storage.NewLocalStorage(), err: uploadErr}

		summary, err := newTestOrchestrator(&fakeDownloader{fn: writeVideo}, &fakeExtractor{frames: 1}, store).
			Run(context.Background(), opts)
		assert.ErrorIs(t, err, uploadErr)
		require.NotNil(t, summary)
		assert.Equal(t, 1, summary.FrameCount)
	})

	t.Run("disabled by default", func(t *testing.T) {
		opts := testOptions(t)
		store := &uploadStore{LocalStorage: storage.NewLocalStorage()}

		_, err := newTestOrchestrator(&fakeDownloader{fn: writeVideo}, &fakeExtractor{frames: 1}, store).
			Run(context.Background(), opts)
		require.NoError(t, err)
		assert.Empty(t, store.keys)
	})
}

func TestRun_DistinctSessions(t *testing.T) {
	opts := testOptions(t)
	now := fixedNow
	o := New(&fakeDownloader{fn: writeVideo}, &fakeExtractor{}, storage.NewLocalStorage(), testLogger(),
		WithClock(func() time.Time {
			now = now.Add(time.Second)
			return now
		}))

	first, err := o.Run(context.Background(), opts)
	require.NoError(t, err)
	second, err := o.Run(context.Background(), opts)
	require.NoError(t, err)

	assert.NotEqual(t, first.FrameDir, second.FrameDir)
	assert.NotEqual(t, first.VideoPath, second.VideoPath)
	assert.DirExists(t, first.FrameDir)
	assert.DirExists(t, second.FrameDir)
}

func TestOptions_Durations(t *testing.T) {
	opts := DefaultOptions("u")
	assert.Equal(t, 5*time.Hour, opts.Duration())
	assert.Equal(t, 30*time.Minute, opts.Timeout())
	assert.Equal(t, 300, opts.Nth)
	assert.Equal(t, "frames", opts.OutputRoot)
	assert.Equal(t, "streams", opts.StreamsDir)
	assert.Equal(t, InterruptAbort, opts.InterruptPolicy)
	assert.NoError(t, opts.Validate())

	opts.DurationHours = 0.5
	opts.TimeoutSeconds = 2.5
	assert.Equal(t, 30*time.Minute, opts.Duration())
	assert.Equal(t, 2500*time.Millisecond, opts.Timeout())
}

func TestOptions_DurationSeconds(t *testing.T) {
	tests := []struct {
		hours float64
		want  int
	}{
		{5.0, 18000},
		{1.0001, 3600},
		{0.145, 522},
		{0.29, 1044},
		{0.575, 2070},
		{MaxDurationHours, 360000000},
	}

	for _, tt := range tests {
		opts := DefaultOptions("u")
		opts.DurationHours = tt.hours
		assert.Equal(t, tt.want, opts.DurationSeconds(), "hours=%v", tt.hours)
		assert.Equal(t, time.Duration(tt.want)*time.Second, opts.Duration(), "hours=%v", tt.hours)
	}
}

func TestRun_PassesWholeSecondsToDownloader(t *testing.T) {
	opts := testOptions(t)
	opts.DurationHours = 0.29
	d := &fakeDownloader{}

	_, err := newTestOrchestrator(d, &fakeExtractor{}, nil).Run(context.Background(), opts)
	require.NoError(t, err)

	require.Len(t, d.calls, 1)
	assert.Equal(t, 1044, d.calls[0].DurationSeconds)
	assert.Contains(t, download.Args(d.calls[0]), "#-1044s - 0")
}
