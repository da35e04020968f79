package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"coursecast/internal/media"
	"coursecast/internal/observability/metrics"
	"coursecast/internal/storage"
)

// HealthCheck probes one dependency for the liveness endpoint.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// DefaultMaxUploadBytes bounds an upload request body.
const DefaultMaxUploadBytes int64 = 4 << 30

type Handler struct {
	Store          storage.Repository
	Layout         media.Layout
	Library        *media.Library
	Pipeline       *media.Pipeline
	Logger         *slog.Logger
	Metrics        *metrics.Recorder
	AllowedTypes   []string
	MaxUploadBytes int64
	HealthChecks   []HealthCheck
}

func NewHandler(store storage.Repository, layout media.Layout, pipeline *media.Pipeline, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		Store:          store,
		Layout:         layout,
		Library:        media.NewLibrary(layout, nil),
		Pipeline:       pipeline,
		Logger:         logger,
		Metrics:        metrics.Default(),
		AllowedTypes:   media.DefaultMIMETypes,
		MaxUploadBytes: DefaultMaxUploadBytes,
	}
}

func (h *Handler) maxUploadBytes() int64 {
	if h.MaxUploadBytes > 0 {
		return h.MaxUploadBytes
	}
	return DefaultMaxUploadBytes
}

func (h *Handler) recorder() *metrics.Recorder {
	if h.Metrics != nil {
		return h.Metrics
	}
	return metrics.Default()
}

type healthComponent struct {
	Component string `json:"component"`
	Status    string `json:"status"`
	Detail    string `json:"detail,omitempty"`
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	checks := h.HealthChecks
	if len(checks) == 0 && h.Store != nil {
		checks = []HealthCheck{{Name: "postgres", Check: h.Store.Ping}}
	}

	status := "ok"
	components := make([]healthComponent, 0, len(checks))
	for _, check := range checks {
		component := healthComponent{Component: check.Name, Status: "ok"}
		if err := check.Check(r.Context()); err != nil {
			component.Status = "error"
			component.Detail = err.Error()
			status = "degraded"
		}
		components = append(components, component)
	}

	payload := map[string]interface{}{
		"status":    status,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if len(components) > 0 {
		payload["components"] = components
	}
	writeJSON(w, http.StatusOK, payload)
}
