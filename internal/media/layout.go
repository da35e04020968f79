package media

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DefaultExtensions lists the video container extensions recognized by the
// directory lister and deleter.
var DefaultExtensions = []string{".mp4", ".webm", ".ogg", ".mov", ".mkv", ".avi"}

// DefaultMIMETypes is the upload allow-list of video container content types.
var DefaultMIMETypes = []string{
	"video/mp4",
	"video/webm",
	"video/ogg",
	"video/quicktime",
	"video/x-matroska",
	"video/x-msvideo",
}

// Layout maps storage-relative video paths onto the directory tree rooted at
// Root. Videos live at {root}/course-{courseID}/[chapter-{chapterID}/]{name}
// with HLS segments in a sibling directory named by the file's stem.
type Layout struct {
	root string
}

// NewLayout resolves root to an absolute path and ensures the storage root and
// its temporary holding area exist.
func NewLayout(root string) (Layout, error) {
	trimmed := strings.TrimSpace(root)
	if trimmed == "" {
		return Layout{}, fmt.Errorf("storage root is required")
	}
	abs, err := filepath.Abs(trimmed)
	if err != nil {
		return Layout{}, fmt.Errorf("resolve storage root: %w", err)
	}
	if err := os.MkdirAll(filepath.Join(abs, "tmp"), 0o755); err != nil {
		return Layout{}, fmt.Errorf("prepare storage root: %w", err)
	}
	return Layout{root: abs}, nil
}

// Root returns the absolute storage root path.
func (l Layout) Root() string {
	return l.root
}

// TempDir returns the holding area for in-flight uploads. It lives under the
// storage root so the final rename never crosses filesystems.
func (l Layout) TempDir() string {
	return filepath.Join(l.root, "tmp")
}

// CourseDir returns the absolute directory for a course subtree.
func (l Layout) CourseDir(courseID string) string {
	return filepath.Join(l.root, "course-"+courseID)
}

// FinalPath computes the absolute destination for an ingested video file.
func (l Layout) FinalPath(courseID, chapterID, fileName string) string {
	dir := l.CourseDir(courseID)
	if strings.TrimSpace(chapterID) != "" {
		dir = filepath.Join(dir, "chapter-"+chapterID)
	}
	return filepath.Join(dir, fileName)
}

// Resolve maps a storage-relative path (with or without a leading slash) to an
// absolute path, rejecting anything that would escape the storage root.
func (l Layout) Resolve(rel string) (string, error) {
	cleaned := filepath.Clean("/" + filepath.FromSlash(strings.TrimSpace(rel)))
	abs := filepath.Join(l.root, cleaned)
	if abs != l.root && !strings.HasPrefix(abs, l.root+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes storage root", rel)
	}
	return abs, nil
}

// Rel converts an absolute path under the storage root to its storage-relative
// form with a leading slash, e.g. "/course-42/abc.mp4".
func (l Layout) Rel(abs string) (string, error) {
	rel, err := filepath.Rel(l.root, abs)
	if err != nil {
		return "", err
	}
	if rel == "." {
		return "/", nil
	}
	if strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("path %q outside storage root", abs)
	}
	return "/" + filepath.ToSlash(rel), nil
}

// HLSDir returns the sibling segment directory for a video file: the file
// path with its extension stripped.
func (l Layout) HLSDir(videoPath string) string {
	return strings.TrimSuffix(videoPath, filepath.Ext(videoPath))
}

// ManifestPath returns the playlist location inside an HLS segment directory.
func ManifestPath(hlsDir string) string {
	return filepath.Join(hlsDir, "index.m3u8")
}

// ExtensionRecognized reports whether ext (including the dot) is a known
// video container extension.
func ExtensionRecognized(ext string, recognized []string) bool {
	lowered := strings.ToLower(ext)
	for _, candidate := range recognized {
		if lowered == candidate {
			return true
		}
	}
	return false
}

var extensionsByContentType = map[string]string{
	"video/mp4":        ".mp4",
	"video/webm":       ".webm",
	"video/ogg":        ".ogg",
	"video/quicktime":  ".mov",
	"video/x-matroska": ".mkv",
	"video/x-msvideo":  ".avi",
}

// ExtensionForContentType returns the container extension for an allowed
// content type, used when the uploaded filename carries no usable extension.
func ExtensionForContentType(contentType string) string {
	normalized := strings.ToLower(strings.TrimSpace(contentType))
	if idx := strings.Index(normalized, ";"); idx >= 0 {
		normalized = strings.TrimSpace(normalized[:idx])
	}
	return extensionsByContentType[normalized]
}

// ContentTypeAllowed reports whether the multipart content type is on the
// upload allow-list. Parameters such as codecs are ignored.
func ContentTypeAllowed(contentType string, allowed []string) bool {
	normalized := strings.ToLower(strings.TrimSpace(contentType))
	if idx := strings.Index(normalized, ";"); idx >= 0 {
		normalized = strings.TrimSpace(normalized[:idx])
	}
	for _, candidate := range allowed {
		if normalized == candidate {
			return true
		}
	}
	return false
}
