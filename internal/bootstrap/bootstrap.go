// Package bootstrap provides dependency initialization for the frames-scrapper command.
package bootstrap

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/maauso/frames-scrapper/internal/capture"
	"github.com/maauso/frames-scrapper/internal/config"
	"github.com/maauso/frames-scrapper/internal/download"
	"github.com/maauso/frames-scrapper/internal/media"
	"github.com/maauso/frames-scrapper/internal/storage"
)

// Dependencies holds all initialized dependencies for the command.
type Dependencies struct {
	Orchestrator *capture.Orchestrator
}

// NewDependencies creates and initializes all dependencies for the application.
// Downloader output is forwarded to stdout and stderr so the operator sees progress.
func NewDependencies(cfg *config.Config, logger *slog.Logger, stdout, stderr io.Writer) (*Dependencies, error) {
	store, err := initStorage(cfg, logger)
	if err != nil {
		return nil, err
	}

	downloader := download.NewYTDLP(cfg.YTDLPPath,
		download.WithKillGrace(cfg.KillGrace),
		download.WithOutput(stdout, stderr),
	)
	extractor := media.NewFFmpegExtractor(cfg.FFmpegPath, cfg.FFprobePath)

	return &Dependencies{
		Orchestrator: capture.New(downloader, extractor, store, logger),
	}, nil
}

// initStorage creates the appropriate storage backend based on configuration.
func initStorage(cfg *config.Config, logger *slog.Logger) (storage.Storage, error) {
	if cfg.S3Enabled() {
		s3Store, err := storage.NewS3Storage(storage.S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
		})
		if err != nil {
			return nil, fmt.Errorf("create S3 storage: %w", err)
		}
		logger.Debug("S3 storage configured",
			slog.String("bucket", cfg.S3Bucket),
			slog.String("region", cfg.S3Region),
		)
		return s3Store, nil
	}

	return storage.NewLocalStorage(), nil
}
