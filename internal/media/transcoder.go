package media

import (
	"context"
	"fmt"
	"os"
	"time"
)

// DefaultSegmentTimeout bounds a single ffmpeg segmentation run. Timing out is
// a soft failure like any other segmentation error.
const DefaultSegmentTimeout = 10 * time.Minute

// DefaultSegmentSeconds is the fixed HLS segment length.
const DefaultSegmentSeconds = 10

// SegmentStatus tags the outcome of an HLS segmentation attempt so callers can
// distinguish "attempted and failed" from a successful run.
type SegmentStatus string

const (
	// StatusSegmented means the playlist and segments were written.
	StatusSegmented SegmentStatus = "segmented"
	// StatusSkipped means segmentation was attempted and failed; raw-file
	// playback remains available.
	StatusSkipped SegmentStatus = "skipped"
)

// SegmentResult reports a segmentation attempt. ManifestPath is set only when
// Status is StatusSegmented; Reason only when StatusSkipped.
type SegmentResult struct {
	Status       SegmentStatus
	ManifestPath string
	Reason       string
}

// Segmented reports whether the attempt produced a playlist.
func (r SegmentResult) Segmented() bool {
	return r.Status == StatusSegmented
}

// Transcoder repackages an ingested video into a fixed-length HLS segment set
// without re-encoding. Segmentation failures never abort ingestion: every
// error path collapses into a skipped result.
type Transcoder struct {
	Cmd            CommandRunner
	Timeout        time.Duration
	SegmentSeconds int
}

// NewTranscoder constructs a Transcoder using the real ExecRunner.
func NewTranscoder() *Transcoder {
	return &Transcoder{
		Cmd:            ExecRunner{},
		Timeout:        DefaultSegmentTimeout,
		SegmentSeconds: DefaultSegmentSeconds,
	}
}

// Segment ensures outputDir exists and invokes ffmpeg to copy the input's
// streams into numbered segments plus a single full playlist. Any failure,
// including a missing ffmpeg binary or a timeout, yields StatusSkipped.
func (t *Transcoder) Segment(ctx context.Context, inputPath, outputDir string) SegmentResult {
	runner := t.Cmd
	if runner == nil {
		runner = ExecRunner{}
	}
	timeout := t.Timeout
	if timeout <= 0 {
		timeout = DefaultSegmentTimeout
	}
	segmentSeconds := t.SegmentSeconds
	if segmentSeconds <= 0 {
		segmentSeconds = DefaultSegmentSeconds
	}

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return SegmentResult{Status: StatusSkipped, Reason: fmt.Sprintf("prepare segment directory: %v", err)}
	}

	manifest := ManifestPath(outputDir)
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := runner.Run(ctx, "ffmpeg",
		"-y",
		"-i", inputPath,
		"-codec", "copy",
		"-start_number", "0",
		"-hls_time", fmt.Sprintf("%d", segmentSeconds),
		"-hls_list_size", "0",
		"-f", "hls",
		manifest,
	)
	if err != nil {
		return SegmentResult{Status: StatusSkipped, Reason: err.Error()}
	}
	return SegmentResult{Status: StatusSegmented, ManifestPath: manifest}
}
