package media

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"

	"golang.org/x/sync/semaphore"

	"coursecast/internal/observability/metrics"
)

// Catalog is the slice of the datastore the pipeline needs: updating one video
// record after ingestion.
type Catalog interface {
	UpdateVideoIngest(ctx context.Context, videoID string, update IngestUpdate) error
}

// IngestUpdate carries the persisted outcome of an ingestion run.
type IngestUpdate struct {
	VideoPath       string
	HLSPath         *string
	DurationSeconds int
	Title           string
}

// IngestRequest describes one upload handed to the pipeline. TempPath must be
// a file inside the layout's holding area; FileName is the final base name
// (id plus extension) computed by the caller.
type IngestRequest struct {
	TempPath  string
	FileName  string
	CourseID  string
	ChapterID string
	VideoID   string
	Title     string
}

// IngestResult is the pipeline outcome returned to the HTTP layer.
type IngestResult struct {
	Path            string
	HLSPath         *string
	DurationSeconds int
}

// Pipeline runs the sequential ingestion steps for one upload: atomic move
// into the final layout, duration probe, HLS segmentation, catalog update.
// Probing is a hard dependency; segmentation is best-effort. Concurrent
// segmentation jobs are bounded by a semaphore so a burst of uploads cannot
// fork unbounded ffmpeg processes.
type Pipeline struct {
	Layout     Layout
	Prober     *Prober
	Transcoder *Transcoder
	Catalog    Catalog
	Logger     *slog.Logger
	Metrics    *metrics.Recorder

	segmentSlots *semaphore.Weighted
}

// PipelineConfig bundles pipeline construction options.
type PipelineConfig struct {
	Layout            Layout
	Prober            *Prober
	Transcoder        *Transcoder
	Catalog           Catalog
	Logger            *slog.Logger
	Metrics           *metrics.Recorder
	MaxConcurrentJobs int64
}

// NewPipeline constructs a Pipeline. MaxConcurrentJobs caps simultaneous
// ffmpeg segmentations; values below one fall back to two.
func NewPipeline(cfg PipelineConfig) *Pipeline {
	slots := cfg.MaxConcurrentJobs
	if slots < 1 {
		slots = 2
	}
	prober := cfg.Prober
	if prober == nil {
		prober = NewProber()
	}
	transcoder := cfg.Transcoder
	if transcoder == nil {
		transcoder = NewTranscoder()
	}
	recorder := cfg.Metrics
	if recorder == nil {
		recorder = metrics.Default()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		Layout:       cfg.Layout,
		Prober:       prober,
		Transcoder:   transcoder,
		Catalog:      cfg.Catalog,
		Logger:       logger,
		Metrics:      recorder,
		segmentSlots: semaphore.NewWeighted(slots),
	}
}

// Ingest executes the pipeline for one upload. The temp file is consumed: on
// success it has been renamed into place, on a pre-move failure it is removed.
// Later-stage failures leave the moved file where it is; that inconsistency is
// logged with enough context to reconcile by hand.
func (p *Pipeline) Ingest(ctx context.Context, req IngestRequest) (IngestResult, error) {
	finalPath := p.Layout.FinalPath(req.CourseID, req.ChapterID, req.FileName)
	if err := os.MkdirAll(filepath.Dir(finalPath), 0o755); err != nil {
		_ = os.Remove(req.TempPath)
		return IngestResult{}, fmt.Errorf("prepare destination directory: %w", err)
	}
	if err := os.Rename(req.TempPath, finalPath); err != nil {
		_ = os.Remove(req.TempPath)
		return IngestResult{}, fmt.Errorf("move upload into place: %w", err)
	}

	relPath, err := p.Layout.Rel(finalPath)
	if err != nil {
		return IngestResult{}, fmt.Errorf("relativize final path: %w", err)
	}
	logger := p.Logger.With(
		"path", relPath,
		"course_id", req.CourseID,
		"chapter_id", req.ChapterID,
	)

	p.Metrics.PipelineJobStarted("probe")
	seconds, err := p.Prober.Duration(ctx, finalPath)
	if err != nil {
		p.Metrics.PipelineJobFinished("probe", "failed")
		logger.Error("duration probe failed, raw file kept without catalog update", "error", err)
		return IngestResult{}, fmt.Errorf("probe duration: %w", err)
	}
	p.Metrics.PipelineJobFinished("probe", "ok")

	var hlsRel *string
	p.Metrics.PipelineJobStarted("segment")
	if err := p.segmentSlots.Acquire(ctx, 1); err != nil {
		p.Metrics.PipelineJobFinished("segment", "skipped")
		logger.Warn("segmentation slot unavailable, serving raw file only", "error", err)
	} else {
		result := p.Transcoder.Segment(ctx, finalPath, p.Layout.HLSDir(finalPath))
		p.segmentSlots.Release(1)
		if result.Segmented() {
			rel, relErr := p.Layout.Rel(result.ManifestPath)
			if relErr != nil {
				p.Metrics.PipelineJobFinished("segment", "skipped")
				logger.Warn("segmented manifest outside storage root, ignoring", "error", relErr)
			} else {
				p.Metrics.PipelineJobFinished("segment", "ok")
				hlsRel = &rel
			}
		} else {
			p.Metrics.PipelineJobFinished("segment", "skipped")
			logger.Warn("segmentation skipped, serving raw file only", "reason", result.Reason)
		}
	}

	duration := int(math.Round(seconds))
	if req.VideoID != "" && p.Catalog != nil {
		update := IngestUpdate{
			VideoPath:       relPath,
			HLSPath:         hlsRel,
			DurationSeconds: duration,
			Title:           req.Title,
		}
		if err := p.Catalog.UpdateVideoIngest(ctx, req.VideoID, update); err != nil {
			logger.Error("catalog update failed after ingest", "video_id", req.VideoID, "error", err)
			return IngestResult{}, fmt.Errorf("update catalog record: %w", err)
		}
	}

	logger.Info("video ingested",
		"duration_seconds", duration,
		"hls", hlsRel != nil,
	)
	return IngestResult{Path: relPath, HLSPath: hlsRel, DurationSeconds: duration}, nil
}
