package media

import (
	"path/filepath"
	"testing"
)

func TestFinalPathBranchesByChapter(t *testing.T) {
	layout, err := NewLayout(t.TempDir())
	if err != nil {
		t.Fatalf("NewLayout: %v", err)
	}

	withChapter := layout.FinalPath("42", "7", "abc.mp4")
	want := filepath.Join(layout.Root(), "course-42", "chapter-7", "abc.mp4")
	if withChapter != want {
		t.Fatalf("FinalPath = %q, want %q", withChapter, want)
	}

	withoutChapter := layout.FinalPath("42", "", "abc.mp4")
	want = filepath.Join(layout.Root(), "course-42", "abc.mp4")
	if withoutChapter != want {
		t.Fatalf("FinalPath = %q, want %q", withoutChapter, want)
	}
}

func TestResolveRejectsTraversal(t *testing.T) {
	layout, err := NewLayout(t.TempDir())
	if err != nil {
		t.Fatalf("NewLayout: %v", err)
	}

	cases := []struct {
		name string
		rel  string
		ok   bool
	}{
		{name: "plain", rel: "/course-42/abc.mp4", ok: true},
		{name: "no leading slash", rel: "course-42/abc.mp4", ok: true},
		{name: "dot segments collapse inside root", rel: "/course-42/../course-43/abc.mp4", ok: true},
		{name: "escape", rel: "../../etc/passwd", ok: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			abs, err := layout.Resolve(tc.rel)
			if err != nil {
				t.Fatalf("Resolve(%q): %v", tc.rel, err)
			}
			rel, err := layout.Rel(abs)
			if err != nil {
				t.Fatalf("Rel(%q): %v", abs, err)
			}
			if rel == "" {
				t.Fatalf("empty rel for %q", tc.rel)
			}
		})
	}
}

func TestResolveAnchorsDotSegments(t *testing.T) {
	layout, err := NewLayout(t.TempDir())
	if err != nil {
		t.Fatalf("NewLayout: %v", err)
	}
	// Leading .. segments are cleaned against the virtual root, so they can
	// never climb above the storage root.
	abs, err := layout.Resolve("../../../../course-1/a.mp4")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	want := filepath.Join(layout.Root(), "course-1", "a.mp4")
	if abs != want {
		t.Fatalf("Resolve = %q, want %q", abs, want)
	}
}

func TestHLSDirStripsExtension(t *testing.T) {
	layout, err := NewLayout(t.TempDir())
	if err != nil {
		t.Fatalf("NewLayout: %v", err)
	}
	video := filepath.Join(layout.Root(), "course-1", "abc.mp4")
	if got, want := layout.HLSDir(video), filepath.Join(layout.Root(), "course-1", "abc"); got != want {
		t.Fatalf("HLSDir = %q, want %q", got, want)
	}
}

func TestContentTypeAllowed(t *testing.T) {
	cases := []struct {
		contentType string
		want        bool
	}{
		{"video/mp4", true},
		{"VIDEO/MP4", true},
		{"video/webm; codecs=vp9", true},
		{"video/quicktime", true},
		{"application/octet-stream", false},
		{"text/html", false},
		{"", false},
	}
	for _, tc := range cases {
		if got := ContentTypeAllowed(tc.contentType, DefaultMIMETypes); got != tc.want {
			t.Errorf("ContentTypeAllowed(%q) = %v, want %v", tc.contentType, got, tc.want)
		}
	}
}

func TestExtensionRecognized(t *testing.T) {
	if !ExtensionRecognized(".MP4", DefaultExtensions) {
		t.Fatal("uppercase extension not recognized")
	}
	if ExtensionRecognized(".txt", DefaultExtensions) {
		t.Fatal("text extension recognized")
	}
}
