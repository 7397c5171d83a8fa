// Package cli implements the frames-scrapper command line.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/maauso/frames-scrapper/internal/bootstrap"
	"github.com/maauso/frames-scrapper/internal/capture"
	"github.com/maauso/frames-scrapper/internal/config"
)

// Runner executes one capture.
type Runner func(ctx context.Context, opts capture.Options) (*capture.Summary, error)

// NewRootCommand builds the command around run.
func NewRootCommand(run Runner) *cobra.Command {
	opts := capture.DefaultOptions("")
	var policy string

	cmd := &cobra.Command{
		Use:   "frames-scrapper <url>",
		Short: "Record a live stream and save every n-th frame",
		Long: `Downloads the last hours of a live stream with yt-dlp, then samples
one frame out of every n with ffmpeg.

The video is written to <streams-dir>/stream_capture_<timestamp>.mp4 and
the frames to <output>/<timestamp>/frame_######.jpg.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.URL = args[0]
			opts.InterruptPolicy = capture.InterruptPolicy(policy)

			summary, err := run(cmd.Context(), opts)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%d frames saved\n", summary.FrameCount)
			fmt.Fprintf(out, "Video file saved as: %s\n", summary.VideoPath)
			return nil
		},
	}

	bindFlags(cmd.Flags(), &opts, &policy)
	return cmd
}

func bindFlags(fs *pflag.FlagSet, opts *capture.Options, policy *string) {
	fs.IntVarP(&opts.Nth, "nth", "n", capture.DefaultNth, "Save every n-th frame")
	fs.StringVarP(&opts.OutputRoot, "output", "o", capture.DefaultOutputRoot, "Folder to save frames")
	fs.Float64VarP(&opts.DurationHours, "duration", "d", capture.DefaultDurationHours, "Hours of livestream to capture")
	fs.Float64VarP(&opts.TimeoutSeconds, "timeout", "t", capture.DefaultTimeoutSeconds, "Seconds after which the download is stopped")
	fs.StringVar(&opts.StreamsDir, "streams-dir", capture.DefaultStreamsDir, "Folder to save recorded videos")
	fs.StringVar(policy, "on-interrupt", string(capture.InterruptAbort), "What to do after Ctrl-C during the download: abort or continue")
	fs.BoolVar(&opts.Publish, "publish", false, "Upload the video and frames to S3 (requires S3_BUCKET and S3_REGION)")
}

// Execute runs the root command until it finishes or the process is
// interrupted. Configuration is loaded only once the arguments parse, so
// --help and flag errors do not depend on the environment.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return NewRootCommand(runCapture).ExecuteContext(ctx)
}

// runCapture loads the environment configuration, wires the dependencies
// and runs one capture.
func runCapture(ctx context.Context, opts capture.Options) (*capture.Summary, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger := cfg.NewLogger()
	slog.SetDefault(logger)
	logger.Debug("configuration loaded", slog.String("config", cfg.String()))

	deps, err := bootstrap.NewDependencies(cfg, logger, os.Stdout, os.Stderr)
	if err != nil {
		return nil, err
	}

	return deps.Orchestrator.Run(ctx, opts)
}
