package metrics

import (
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

type requestLabel struct {
	method string
	path   string
	status string
}

// PipelineJobLabel identifies an ingestion pipeline step outcome, e.g.
// {Step: "probe", Status: "ok"} or {Step: "segment", Status: "skipped"}.
type PipelineJobLabel struct {
	Step   string
	Status string
}

// Recorder aggregates in-memory counters and gauges for HTTP requests, token
// validation outcomes, and ingestion pipeline steps. It coordinates concurrent
// writers via a RWMutex while exposing a thread-safe gauge for active
// segmentation jobs.
type Recorder struct {
	mu               sync.RWMutex
	requestCount     map[requestLabel]uint64
	requestDuration  map[requestLabel]time.Duration
	tokenOutcomes    map[string]uint64
	uploadOutcomes   map[string]uint64
	pipelineEvents   map[PipelineJobLabel]uint64
	activeSegmenters atomic.Int64
}

var defaultRecorder = New()

// New constructs an empty Recorder with initialized backing maps so callers can
// immediately record metrics without additional setup.
func New() *Recorder {
	return &Recorder{
		requestCount:    make(map[requestLabel]uint64),
		requestDuration: make(map[requestLabel]time.Duration),
		tokenOutcomes:   make(map[string]uint64),
		uploadOutcomes:  make(map[string]uint64),
		pipelineEvents:  make(map[PipelineJobLabel]uint64),
	}
}

// Default returns the singleton Recorder instance shared across helper
// functions for packages that do not require custom instrumentation pipelines.
func Default() *Recorder {
	return defaultRecorder
}

// ObserveRequest normalizes the request label set and accumulates totals for
// request count and cumulative duration by HTTP method, normalized path, and
// status code.
func (r *Recorder) ObserveRequest(method, path string, status int, duration time.Duration) {
	label := requestLabel{
		method: strings.ToUpper(method),
		path:   normalizePath(path),
		status: fmt.Sprintf("%d", status),
	}
	r.mu.Lock()
	r.requestCount[label]++
	r.requestDuration[label] += duration
	r.mu.Unlock()
}

// ObserveTokenValidation records the outcome of a playback token check
// ("valid", "invalid", or "error").
func (r *Recorder) ObserveTokenValidation(outcome string) {
	normalized := normalizeName(outcome)
	r.mu.Lock()
	r.tokenOutcomes[normalized]++
	r.mu.Unlock()
}

// ObserveUpload records an upload request outcome keyed by result
// (e.g., "accepted", "rejected", "failed").
func (r *Recorder) ObserveUpload(outcome string) {
	normalized := normalizeName(outcome)
	r.mu.Lock()
	r.uploadOutcomes[normalized]++
	r.mu.Unlock()
}

// PipelineJobStarted records the beginning of a pipeline step of the provided
// kind ("probe" or "segment") and, for segmentation, increments the active job
// gauge.
func (r *Recorder) PipelineJobStarted(step string) {
	r.recordPipelineEvent(step, "start")
	if normalizeName(step) == "segment" {
		r.activeSegmenters.Add(1)
	}
}

// PipelineJobFinished records a terminal pipeline step outcome ("ok",
// "failed", or "skipped") and decrements the segmentation gauge when
// applicable.
func (r *Recorder) PipelineJobFinished(step, status string) {
	r.recordPipelineEvent(step, status)
	if normalizeName(step) == "segment" {
		r.decrementGauge(&r.activeSegmenters)
	}
}

func (r *Recorder) recordPipelineEvent(step, status string) {
	label := PipelineJobLabel{
		Step:   normalizeName(step),
		Status: normalizeName(status),
	}
	r.mu.Lock()
	r.pipelineEvents[label]++
	r.mu.Unlock()
}

func (r *Recorder) decrementGauge(gauge *atomic.Int64) {
	for {
		current := gauge.Load()
		if current <= 0 {
			return
		}
		if gauge.CompareAndSwap(current, current-1) {
			return
		}
	}
}

// ActiveSegmentationJobs exposes the number of ffmpeg segmentation jobs
// currently tracked by the recorder.
func (r *Recorder) ActiveSegmentationJobs() int64 {
	return r.activeSegmenters.Load()
}

// PipelineJobCounts returns copies of pipeline event counters and the current
// active segmentation gauge value for testing and reporting.
func (r *Recorder) PipelineJobCounts() (events map[PipelineJobLabel]uint64, active int64) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	events = make(map[PipelineJobLabel]uint64, len(r.pipelineEvents))
	for k, v := range r.pipelineEvents {
		events[k] = v
	}
	return events, r.activeSegmenters.Load()
}

// TokenValidationCounts returns a copy of the token validation outcome
// counters.
func (r *Recorder) TokenValidationCounts() map[string]uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]uint64, len(r.tokenOutcomes))
	for k, v := range r.tokenOutcomes {
		out[k] = v
	}
	return out
}

// Reset clears all counters and gauges on the recorder. It is intended for
// test setups.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requestCount = make(map[requestLabel]uint64)
	r.requestDuration = make(map[requestLabel]time.Duration)
	r.tokenOutcomes = make(map[string]uint64)
	r.uploadOutcomes = make(map[string]uint64)
	r.pipelineEvents = make(map[PipelineJobLabel]uint64)
	r.activeSegmenters.Store(0)
}

// Handler exposes the Recorder as an http.Handler that writes Prometheus text
// exposition data with the appropriate content type.
func (r *Recorder) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		r.Write(w)
	})
}

// Write renders the Recorder's metrics in Prometheus text format, sorting label
// sets to provide stable output for scrapes and tests.
func (r *Recorder) Write(w io.Writer) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	requestLabels := r.sortedRequestLabels()
	tokenOutcomes := sortedKeys(r.tokenOutcomes)
	uploadOutcomes := sortedKeys(r.uploadOutcomes)
	pipelineLabels := r.sortedPipelineLabels()

	fmt.Fprintln(w, "# HELP coursecast_http_requests_total Total number of HTTP requests processed by the media gateway")
	fmt.Fprintln(w, "# TYPE coursecast_http_requests_total counter")
	for _, label := range requestLabels {
		count := r.requestCount[label]
		fmt.Fprintf(w, "coursecast_http_requests_total{method=\"%s\",path=\"%s\",status=\"%s\"} %d\n", label.method, label.path, label.status, count)
	}

	fmt.Fprintln(w, "# HELP coursecast_http_request_duration_seconds_sum Cumulative duration of HTTP requests in seconds")
	fmt.Fprintln(w, "# TYPE coursecast_http_request_duration_seconds_sum counter")
	for _, label := range requestLabels {
		duration := r.requestDuration[label].Seconds()
		fmt.Fprintf(w, "coursecast_http_request_duration_seconds_sum{method=\"%s\",path=\"%s\",status=\"%s\"} %f\n", label.method, label.path, label.status, duration)
	}

	fmt.Fprintln(w, "# HELP coursecast_token_validations_total Playback token validation outcomes")
	fmt.Fprintln(w, "# TYPE coursecast_token_validations_total counter")
	for _, outcome := range tokenOutcomes {
		fmt.Fprintf(w, "coursecast_token_validations_total{outcome=\"%s\"} %d\n", outcome, r.tokenOutcomes[outcome])
	}

	fmt.Fprintln(w, "# HELP coursecast_uploads_total Upload request outcomes")
	fmt.Fprintln(w, "# TYPE coursecast_uploads_total counter")
	for _, outcome := range uploadOutcomes {
		fmt.Fprintf(w, "coursecast_uploads_total{outcome=\"%s\"} %d\n", outcome, r.uploadOutcomes[outcome])
	}

	fmt.Fprintln(w, "# HELP coursecast_pipeline_jobs_total Ingestion pipeline step events by step and status")
	fmt.Fprintln(w, "# TYPE coursecast_pipeline_jobs_total counter")
	for _, label := range pipelineLabels {
		fmt.Fprintf(w, "coursecast_pipeline_jobs_total{step=\"%s\",status=\"%s\"} %d\n", label.Step, label.Status, r.pipelineEvents[label])
	}

	fmt.Fprintln(w, "# HELP coursecast_active_segmentation_jobs Current number of running ffmpeg segmentation jobs")
	fmt.Fprintln(w, "# TYPE coursecast_active_segmentation_jobs gauge")
	fmt.Fprintf(w, "coursecast_active_segmentation_jobs %d\n", r.activeSegmenters.Load())
}

func (r *Recorder) sortedRequestLabels() []requestLabel {
	labels := make([]requestLabel, 0, len(r.requestCount))
	for label := range r.requestCount {
		labels = append(labels, label)
	}
	sort.Slice(labels, func(i, j int) bool {
		if labels[i].path != labels[j].path {
			return labels[i].path < labels[j].path
		}
		if labels[i].method != labels[j].method {
			return labels[i].method < labels[j].method
		}
		return labels[i].status < labels[j].status
	})
	return labels
}

func (r *Recorder) sortedPipelineLabels() []PipelineJobLabel {
	labels := make([]PipelineJobLabel, 0, len(r.pipelineEvents))
	for label := range r.pipelineEvents {
		labels = append(labels, label)
	}
	sort.Slice(labels, func(i, j int) bool {
		if labels[i].Step != labels[j].Step {
			return labels[i].Step < labels[j].Step
		}
		return labels[i].Status < labels[j].Status
	})
	return labels
}

func sortedKeys(m map[string]uint64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func normalizePath(path string) string {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "/"
	}
	if !strings.HasPrefix(trimmed, "/") {
		trimmed = "/" + trimmed
	}
	return trimmed
}

func normalizeName(name string) string {
	normalized := strings.ToLower(strings.TrimSpace(name))
	if normalized == "" {
		return "unknown"
	}
	return normalized
}

// ObserveRequest records a request observation on the default recorder.
func ObserveRequest(method, path string, status int, duration time.Duration) {
	defaultRecorder.ObserveRequest(method, path, status, duration)
}

// Handler exposes the default recorder as an HTTP handler.
func Handler() http.Handler {
	return defaultRecorder.Handler()
}
