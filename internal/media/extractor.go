// Package media provides frame sampling of recorded videos.
package media

import "context"

// Extractor defines the frame sampling operations used by a capture.
// Implementations should use ffmpeg or similar tools for media manipulation.
type Extractor interface {
	// ExtractFrames writes every nth frame of videoPath into frameDir as
	// frame_000001.jpg, frame_000002.jpg, ...
	ExtractFrames(ctx context.Context, videoPath, frameDir string, nth int) error

	// GetMediaDuration returns the duration in seconds of a media file.
	GetMediaDuration(ctx context.Context, path string) (float64, error)
}
