package api

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"

	"coursecast/internal/media"
	"coursecast/internal/observability/logging"
	"coursecast/internal/storage"
)

type uploadResponse struct {
	Success  bool    `json:"success"`
	Path     string  `json:"path"`
	HLSPath  *string `json:"hlsPath"`
	Duration int     `json:"duration"`
}

type stagedUpload struct {
	tempPath     string
	ext          string
	size         int64
	originalName string
	contentType  string
}

type uploadFields struct {
	courseID  string
	chapterID string
	videoID   string
	title     string
}

// identifierValid rejects course, chapter, and video identifiers that could
// alter the computed storage path.
func identifierValid(id string) bool {
	if strings.ContainsAny(id, `/\`) {
		return false
	}
	return !strings.Contains(id, "..")
}

// Upload ingests one multipart video: stream to the holding area, validate,
// move into the course tree, probe, segment, and update the catalog when a
// video id was supplied.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
		return
	}
	logger := logging.WithContext(r.Context(), h.Logger)

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes())
	reader, err := r.MultipartReader()
	if err != nil {
		h.recorder().ObserveUpload("rejected")
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid multipart payload"))
		return
	}

	var staged *stagedUpload
	fields := uploadFields{}
	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			h.discardStaged(staged)
			h.recorder().ObserveUpload("rejected")
			if maxErr := (*http.MaxBytesError)(nil); errors.As(err, &maxErr) {
				writeError(w, http.StatusRequestEntityTooLarge, fmt.Errorf("upload exceeds %d bytes", h.maxUploadBytes()))
				return
			}
			writeError(w, http.StatusBadRequest, fmt.Errorf("read multipart data: %w", err))
			return
		}
		name := part.FormName()
		if name == "" {
			_ = part.Close()
			continue
		}
		if name == "file" {
			if staged != nil {
				_ = part.Close()
				continue
			}
			saved, status, saveErr := h.stageUploadFile(part)
			if saveErr != nil {
				h.recorder().ObserveUpload("rejected")
				writeError(w, status, saveErr)
				return
			}
			staged = saved
			continue
		}
		payload, readErr := io.ReadAll(part)
		_ = part.Close()
		if readErr != nil {
			h.discardStaged(staged)
			h.recorder().ObserveUpload("rejected")
			writeError(w, http.StatusBadRequest, fmt.Errorf("read form field: %w", readErr))
			return
		}
		value := strings.TrimSpace(string(payload))
		switch name {
		case "courseId":
			fields.courseID = value
		case "chapterId":
			fields.chapterID = value
		case "videoId":
			fields.videoID = value
		case "title":
			fields.title = value
		}
	}

	if staged == nil {
		h.recorder().ObserveUpload("rejected")
		writeError(w, http.StatusBadRequest, fmt.Errorf("file field is required"))
		return
	}
	if fields.courseID == "" {
		h.discardStaged(staged)
		h.recorder().ObserveUpload("rejected")
		writeError(w, http.StatusBadRequest, fmt.Errorf("courseId is required"))
		return
	}
	for _, id := range []string{fields.courseID, fields.chapterID, fields.videoID} {
		if !identifierValid(id) {
			h.discardStaged(staged)
			h.recorder().ObserveUpload("rejected")
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid identifier %q", id))
			return
		}
	}

	stem := fields.videoID
	if stem == "" {
		stem = uuid.NewString()
	}
	title := norm.NFC.String(fields.title)

	result, err := h.Pipeline.Ingest(r.Context(), media.IngestRequest{
		TempPath:  staged.tempPath,
		FileName:  stem + staged.ext,
		CourseID:  fields.courseID,
		ChapterID: fields.chapterID,
		VideoID:   fields.videoID,
		Title:     title,
	})
	if err != nil {
		h.recorder().ObserveUpload("failed")
		if errors.Is(err, storage.ErrVideoNotFound) {
			writeError(w, http.StatusNotFound, fmt.Errorf("video %s not found", fields.videoID))
			return
		}
		logger.Error("upload pipeline failed",
			"course_id", fields.courseID,
			"chapter_id", fields.chapterID,
			"file", staged.originalName,
			"error", err,
		)
		writeError(w, http.StatusInternalServerError, fmt.Errorf("video processing failed"))
		return
	}

	h.recorder().ObserveUpload("accepted")
	writeJSON(w, http.StatusOK, uploadResponse{
		Success:  true,
		Path:     result.Path,
		HLSPath:  result.HLSPath,
		Duration: result.DurationSeconds,
	})
}

// stageUploadFile streams the file part into the holding area. The content
// type is checked from the part header before any body bytes are copied so a
// disallowed upload wastes no disk I/O.
func (h *Handler) stageUploadFile(part *multipart.Part) (*stagedUpload, int, error) {
	defer part.Close()

	contentType := part.Header.Get("Content-Type")
	if !media.ContentTypeAllowed(contentType, h.AllowedTypes) {
		return nil, http.StatusBadRequest, fmt.Errorf("content type %q is not an accepted video format", contentType)
	}
	ext := strings.ToLower(filepath.Ext(part.FileName()))
	if !media.ExtensionRecognized(ext, media.DefaultExtensions) {
		ext = media.ExtensionForContentType(contentType)
	}

	path := filepath.Join(h.Layout.TempDir(), uuid.NewString()+ext)
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, http.StatusInternalServerError, fmt.Errorf("create temp file: %w", err)
	}
	written, err := io.Copy(file, part)
	if err != nil {
		_ = file.Close()
		_ = os.Remove(path)
		if maxErr := (*http.MaxBytesError)(nil); errors.As(err, &maxErr) {
			return nil, http.StatusRequestEntityTooLarge, fmt.Errorf("upload exceeds %d bytes", h.maxUploadBytes())
		}
		return nil, http.StatusBadRequest, fmt.Errorf("save upload: %w", err)
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(path)
		return nil, http.StatusInternalServerError, fmt.Errorf("flush upload: %w", err)
	}

	return &stagedUpload{
		tempPath:     path,
		ext:          ext,
		size:         written,
		originalName: part.FileName(),
		contentType:  contentType,
	}, 0, nil
}

func (h *Handler) discardStaged(staged *stagedUpload) {
	if staged == nil {
		return
	}
	_ = os.Remove(staged.tempPath)
}
