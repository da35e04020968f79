package media

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"coursecast/internal/observability/metrics"
)

type stubCatalog struct {
	err     error
	videoID string
	update  IngestUpdate
	calls   int
}

func (s *stubCatalog) UpdateVideoIngest(_ context.Context, videoID string, update IngestUpdate) error {
	s.calls++
	s.videoID = videoID
	s.update = update
	return s.err
}

func newTestPipeline(t *testing.T, runner CommandRunner, catalog Catalog) (*Pipeline, Layout) {
	t.Helper()
	layout, err := NewLayout(t.TempDir())
	if err != nil {
		t.Fatalf("NewLayout: %v", err)
	}
	pipeline := NewPipeline(PipelineConfig{
		Layout:     layout,
		Prober:     &Prober{Cmd: runner, Timeout: time.Second},
		Transcoder: &Transcoder{Cmd: runner, Timeout: time.Second, SegmentSeconds: 10},
		Catalog:    catalog,
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		Metrics:    metrics.New(),
	})
	return pipeline, layout
}

func stageUpload(t *testing.T, layout Layout) string {
	t.Helper()
	temp := filepath.Join(layout.TempDir(), "upload-1")
	if err := os.WriteFile(temp, []byte("video bytes"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return temp
}

func TestIngestMovesProbesSegmentsAndUpdatesCatalog(t *testing.T) {
	runner := &stubRunner{output: []byte(`{"format":{"duration":"12.6"}}`)}
	catalog := &stubCatalog{}
	pipeline, layout := newTestPipeline(t, runner, catalog)
	temp := stageUpload(t, layout)

	result, err := pipeline.Ingest(context.Background(), IngestRequest{
		TempPath:  temp,
		FileName:  "abc123.mp4",
		CourseID:  "42",
		ChapterID: "7",
		VideoID:   "abc123",
		Title:     "Intro",
	})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	if result.Path != "/course-42/chapter-7/abc123.mp4" {
		t.Fatalf("path = %q", result.Path)
	}
	if result.DurationSeconds != 13 {
		t.Fatalf("duration = %d, want 13", result.DurationSeconds)
	}
	if result.HLSPath == nil || *result.HLSPath != "/course-42/chapter-7/abc123/index.m3u8" {
		t.Fatalf("hls path = %v", result.HLSPath)
	}

	final, _ := layout.Resolve(result.Path)
	if _, err := os.Stat(final); err != nil {
		t.Fatalf("final file missing: %v", err)
	}
	if _, err := os.Stat(temp); !os.IsNotExist(err) {
		t.Fatalf("temp file still present: %v", err)
	}

	if catalog.calls != 1 || catalog.videoID != "abc123" {
		t.Fatalf("catalog calls=%d videoID=%q", catalog.calls, catalog.videoID)
	}
	if catalog.update.VideoPath != result.Path || catalog.update.Title != "Intro" {
		t.Fatalf("catalog update = %+v", catalog.update)
	}
	if catalog.update.HLSPath == nil || *catalog.update.HLSPath != *result.HLSPath {
		t.Fatalf("catalog hls path = %v", catalog.update.HLSPath)
	}
}

func TestIngestProbeFailureKeepsMovedFile(t *testing.T) {
	runner := &stubRunner{outputErr: errors.New("exit status 1")}
	catalog := &stubCatalog{}
	pipeline, layout := newTestPipeline(t, runner, catalog)
	temp := stageUpload(t, layout)

	_, err := pipeline.Ingest(context.Background(), IngestRequest{
		TempPath: temp,
		FileName: "abc123.mp4",
		CourseID: "42",
		VideoID:  "abc123",
	})
	if err == nil {
		t.Fatal("expected probe failure")
	}

	final, _ := layout.Resolve("/course-42/abc123.mp4")
	if _, statErr := os.Stat(final); statErr != nil {
		t.Fatalf("moved file should remain: %v", statErr)
	}
	if catalog.calls != 0 {
		t.Fatalf("catalog updated despite probe failure")
	}
}

func TestIngestSegmentationFailureIsSoft(t *testing.T) {
	runner := &stubRunner{
		output: []byte(`{"format":{"duration":"5"}}`),
		runErr: errors.New("ffmpeg: exec format error"),
	}
	catalog := &stubCatalog{}
	pipeline, layout := newTestPipeline(t, runner, catalog)
	temp := stageUpload(t, layout)

	result, err := pipeline.Ingest(context.Background(), IngestRequest{
		TempPath: temp,
		FileName: "abc123.mp4",
		CourseID: "42",
		VideoID:  "abc123",
	})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if result.HLSPath != nil {
		t.Fatalf("hls path = %v, want nil", *result.HLSPath)
	}
	if result.DurationSeconds != 5 {
		t.Fatalf("duration = %d, want 5", result.DurationSeconds)
	}
	if catalog.calls != 1 {
		t.Fatalf("catalog calls = %d, want 1", catalog.calls)
	}
	if catalog.update.HLSPath != nil {
		t.Fatalf("catalog hls path = %v, want nil", catalog.update.HLSPath)
	}

	events, active := pipeline.Metrics.PipelineJobCounts()
	if active != 0 {
		t.Fatalf("active jobs = %d, want 0", active)
	}
	if events[metrics.PipelineJobLabel{Step: "segment", Status: "skipped"}] != 1 {
		t.Fatalf("events = %v", events)
	}
}

func TestIngestWithoutVideoIDSkipsCatalog(t *testing.T) {
	runner := &stubRunner{output: []byte(`{"format":{"duration":"5"}}`)}
	catalog := &stubCatalog{}
	pipeline, layout := newTestPipeline(t, runner, catalog)
	temp := stageUpload(t, layout)

	if _, err := pipeline.Ingest(context.Background(), IngestRequest{
		TempPath: temp,
		FileName: "loose.mp4",
		CourseID: "42",
	}); err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if catalog.calls != 0 {
		t.Fatalf("catalog calls = %d, want 0", catalog.calls)
	}
}

func TestIngestCatalogFailurePropagates(t *testing.T) {
	catalogErr := errors.New("connection refused")
	runner := &stubRunner{output: []byte(`{"format":{"duration":"5"}}`)}
	catalog := &stubCatalog{err: catalogErr}
	pipeline, layout := newTestPipeline(t, runner, catalog)
	temp := stageUpload(t, layout)

	_, err := pipeline.Ingest(context.Background(), IngestRequest{
		TempPath: temp,
		FileName: "abc123.mp4",
		CourseID: "42",
		VideoID:  "abc123",
	})
	if !errors.Is(err, catalogErr) {
		t.Fatalf("err = %v, want wrapped %v", err, catalogErr)
	}
	final, _ := layout.Resolve("/course-42/abc123.mp4")
	if _, statErr := os.Stat(final); statErr != nil {
		t.Fatalf("moved file should remain: %v", statErr)
	}
}
