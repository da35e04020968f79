package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"
	"time"

	"coursecast/internal/media"
	"coursecast/internal/observability/metrics"
)

type stubStore struct {
	pingErr error

	validateResult bool
	validateErr    error
	validateToken  string
	validateIP     string

	roleGranted bool
	roleErr     error

	updateErr     error
	updatedVideo  string
	updatedIngest media.IngestUpdate

	clearErr     error
	clearedVideo string
	clearCalls   int
}

func (s *stubStore) Ping(ctx context.Context) error { return s.pingErr }

func (s *stubStore) ValidateAccessToken(_ context.Context, token, clientIP string) (bool, error) {
	s.validateToken = token
	s.validateIP = clientIP
	return s.validateResult, s.validateErr
}

func (s *stubStore) UserHasRole(_ context.Context, _, _ string) (bool, error) {
	return s.roleGranted, s.roleErr
}

func (s *stubStore) UpdateVideoIngest(_ context.Context, videoID string, update media.IngestUpdate) error {
	s.updatedVideo = videoID
	s.updatedIngest = update
	return s.updateErr
}

func (s *stubStore) ClearVideoPaths(_ context.Context, videoID string) error {
	s.clearCalls++
	s.clearedVideo = videoID
	return s.clearErr
}

func (s *stubStore) Close(context.Context) error { return nil }

// scriptedRunner fakes ffprobe and ffmpeg invocations.
type scriptedRunner struct {
	probeOutput []byte
	probeErr    error
	segmentErr  error
}

func (s *scriptedRunner) Output(_ context.Context, _ string, _ ...string) ([]byte, error) {
	return s.probeOutput, s.probeErr
}

func (s *scriptedRunner) Run(_ context.Context, _ string, _ ...string) error {
	return s.segmentErr
}

func newTestHandler(t *testing.T, store *stubStore, runner *scriptedRunner) *Handler {
	t.Helper()
	layout, err := media.NewLayout(t.TempDir())
	if err != nil {
		t.Fatalf("NewLayout: %v", err)
	}
	if runner == nil {
		runner = &scriptedRunner{probeOutput: []byte(`{"format":{"duration":"12.0"}}`)}
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	pipeline := media.NewPipeline(media.PipelineConfig{
		Layout:     layout,
		Prober:     &media.Prober{Cmd: runner, Timeout: time.Second},
		Transcoder: &media.Transcoder{Cmd: runner, Timeout: time.Second, SegmentSeconds: 10},
		Catalog:    store,
		Logger:     logger,
		Metrics:    metrics.New(),
	})
	handler := NewHandler(store, layout, pipeline, logger)
	handler.Metrics = metrics.New()
	return handler
}

type multipartBody struct {
	buf    bytes.Buffer
	writer *multipart.Writer
}

func newMultipartBody() *multipartBody {
	body := &multipartBody{}
	body.writer = multipart.NewWriter(&body.buf)
	return body
}

func (b *multipartBody) addField(t *testing.T, name, value string) {
	t.Helper()
	if err := b.writer.WriteField(name, value); err != nil {
		t.Fatalf("write field %s: %v", name, err)
	}
}

func (b *multipartBody) addFile(t *testing.T, filename, contentType string, payload []byte) {
	t.Helper()
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="file"; filename="`+filename+`"`)
	header.Set("Content-Type", contentType)
	part, err := b.writer.CreatePart(header)
	if err != nil {
		t.Fatalf("create file part: %v", err)
	}
	if _, err := part.Write(payload); err != nil {
		t.Fatalf("write file part: %v", err)
	}
}

func (b *multipartBody) request(t *testing.T) *http.Request {
	t.Helper()
	if err := b.writer.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/api/upload", &b.buf)
	req.Header.Set("Content-Type", b.writer.FormDataContentType())
	return req
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dest interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), dest); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
}

func TestHealthReportsOK(t *testing.T) {
	handler := newTestHandler(t, &stubStore{}, nil)

	rec := httptest.NewRecorder()
	handler.Health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var payload struct {
		Status    string `json:"status"`
		Timestamp string `json:"timestamp"`
	}
	decodeBody(t, rec, &payload)
	if payload.Status != "ok" {
		t.Fatalf("status = %q", payload.Status)
	}
	if _, err := time.Parse(time.RFC3339, payload.Timestamp); err != nil {
		t.Fatalf("timestamp %q: %v", payload.Timestamp, err)
	}
}

func TestHealthDegradedWhenStoreUnreachable(t *testing.T) {
	handler := newTestHandler(t, &stubStore{pingErr: errors.New("connection refused")}, nil)

	rec := httptest.NewRecorder()
	handler.Health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, liveness must stay 200", rec.Code)
	}
	var payload struct {
		Status     string `json:"status"`
		Components []struct {
			Component string `json:"component"`
			Status    string `json:"status"`
		} `json:"components"`
	}
	decodeBody(t, rec, &payload)
	if payload.Status != "degraded" {
		t.Fatalf("status = %q", payload.Status)
	}
	if len(payload.Components) != 1 || payload.Components[0].Component != "postgres" || payload.Components[0].Status != "error" {
		t.Fatalf("components = %+v", payload.Components)
	}
}
