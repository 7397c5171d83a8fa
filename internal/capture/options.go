package capture

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// ErrInvalidOptions is returned when Options fail validation.
var ErrInvalidOptions = errors.New("invalid capture options")

// InterruptPolicy decides what happens after the operator interrupts the download.
type InterruptPolicy string

const (
	// InterruptAbort stops the run once the downloader has been killed.
	InterruptAbort InterruptPolicy = "abort"
	// InterruptContinue extracts frames from whatever was recorded.
	InterruptContinue InterruptPolicy = "continue"
)

// Defaults applied by DefaultOptions.
const (
	DefaultNth            = 300
	DefaultOutputRoot     = "frames"
	DefaultStreamsDir     = "streams"
	DefaultDurationHours  = 5.0
	DefaultTimeoutSeconds = 1800.0

	// MaxDurationHours and MaxTimeoutSeconds keep the conversions to
	// seconds and time.Duration within range.
	MaxDurationHours  = 100000.0
	MaxTimeoutSeconds = 1e8
)

var validate = validator.New()

// Options configures a single capture. Values are not modified by Run.
type Options struct {
	// URL is the live stream locator.
	URL string `validate:"required"`
	// Nth keeps one frame out of every Nth decoded frame.
	Nth int `validate:"min=1"`
	// OutputRoot is the base directory for extracted frames.
	OutputRoot string `validate:"required"`
	// StreamsDir is the directory for recorded videos.
	StreamsDir string `validate:"required"`
	// DurationHours is how much trailing stream time to request.
	DurationHours float64 `validate:"gt=0,lte=100000"`
	// TimeoutSeconds bounds the download step.
	TimeoutSeconds float64 `validate:"gt=0,lte=100000000"`
	// InterruptPolicy applies when the download is interrupted.
	InterruptPolicy InterruptPolicy `validate:"oneof=abort continue"`
	// Publish uploads the video and frames once extraction is done.
	Publish bool
}

// DefaultOptions returns Options for url with every other field defaulted.
func DefaultOptions(url string) Options {
	return Options{
		URL:             url,
		Nth:             DefaultNth,
		OutputRoot:      DefaultOutputRoot,
		StreamsDir:      DefaultStreamsDir,
		DurationHours:   DefaultDurationHours,
		TimeoutSeconds:  DefaultTimeoutSeconds,
		InterruptPolicy: InterruptAbort,
	}
}

// Validate checks the options against their constraints.
func (o Options) Validate() error {
	if err := validate.Struct(o); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidOptions, err)
	}
	return nil
}

// DurationSeconds returns DurationHours in whole seconds, truncated.
func (o Options) DurationSeconds() int {
	return int(o.DurationHours * 3600)
}

// Duration returns DurationSeconds as a time.Duration.
func (o Options) Duration() time.Duration {
	return time.Duration(o.DurationSeconds()) * time.Second
}

// Timeout returns TimeoutSeconds as a time.Duration.
func (o Options) Timeout() time.Duration {
	return time.Duration(o.TimeoutSeconds * float64(time.Second))
}
