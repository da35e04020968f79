package api

import (
	"fmt"
	"net/http"
	"strings"

	"coursecast/internal/observability/logging"
)

type deleteRequest struct {
	Path    string `json:"path"`
	VideoID string `json:"videoId"`
}

// List enumerates stored videos, optionally scoped to one course subtree.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
		return
	}
	courseID := strings.TrimSpace(r.URL.Query().Get("courseId"))
	if !identifierValid(courseID) {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid courseId %q", courseID))
		return
	}

	entries, err := h.Library.List(courseID)
	if err != nil {
		logging.WithContext(r.Context(), h.Logger).Error("list videos failed", "course_id", courseID, "error", err)
		writeError(w, http.StatusInternalServerError, fmt.Errorf("listing videos failed"))
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// Delete removes a stored video's raw file and HLS directory and, when a
// video id is supplied, clears the catalog path fields. Every step treats a
// missing target as success so retries converge.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		w.Header().Set("Allow", "DELETE")
		writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
		return
	}

	var req deleteRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	path := strings.TrimSpace(req.Path)
	if path == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("path is required"))
		return
	}
	logger := logging.WithContext(r.Context(), h.Logger)

	if strings.Contains(path, "..") {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid path"))
		return
	}
	if _, err := h.Layout.Resolve(path); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid path"))
		return
	}
	if err := h.Library.Delete(path); err != nil {
		logger.Error("delete video failed", "path", path, "error", err)
		writeError(w, http.StatusInternalServerError, fmt.Errorf("deleting video failed"))
		return
	}

	videoID := strings.TrimSpace(req.VideoID)
	if videoID != "" {
		if err := h.Store.ClearVideoPaths(r.Context(), videoID); err != nil {
			logger.Error("clear catalog paths failed", "video_id", videoID, "error", err)
			writeError(w, http.StatusInternalServerError, fmt.Errorf("updating catalog failed"))
			return
		}
	}

	logger.Info("video deleted", "path", path, "video_id", videoID)
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}
