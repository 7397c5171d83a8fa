// Package session derives the per-run identifiers and filesystem paths of a capture.
package session

import (
	"path/filepath"
	"time"
)

// TimestampLayout formats session identifiers as YYYYMMDD_HHMMSS.
const TimestampLayout = "20060102_150405"

const (
	// VideoPrefix is the file name prefix of every recorded stream.
	VideoPrefix = "stream_capture_"
	// VideoExt is the container extension requested from the downloader.
	VideoExt = ".mp4"
)

// Session holds the values derived once at the start of a capture.
// It is never mutated after New returns.
type Session struct {
	// Timestamp identifies the session and namespaces its artifacts.
	Timestamp string
	// StreamsDir is the directory holding recorded videos.
	StreamsDir string
	// OutputRoot is the base directory for extracted frames.
	OutputRoot string
	// VideoPath is where the downloader writes the recorded stream.
	VideoPath string
	// FrameDir is where extracted frames for this session are written.
	FrameDir string
}

// Timestamp formats t in local time as a sortable session identifier.
func Timestamp(t time.Time) string {
	return t.Local().Format(TimestampLayout)
}

// New creates a Session started at now.
func New(now time.Time, streamsDir, outputRoot string) *Session {
	ts := Timestamp(now)
	return &Session{
		Timestamp:  ts,
		StreamsDir: streamsDir,
		OutputRoot: outputRoot,
		VideoPath:  filepath.Join(streamsDir, VideoPrefix+ts+VideoExt),
		FrameDir:   filepath.Join(outputRoot, ts),
	}
}

// VideoBase returns the name prefix shared by the final video and any
// partial artifact the downloader leaves behind.
func (s *Session) VideoBase() string {
	return VideoPrefix + s.Timestamp
}
