package media

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DefaultProbeTimeout bounds a single ffprobe invocation.
const DefaultProbeTimeout = 30 * time.Second

// Prober reports the duration of a media file via ffprobe. Probing is a hard
// dependency of the ingestion pipeline: failures propagate to the caller.
type Prober struct {
	Cmd     CommandRunner
	Timeout time.Duration
}

// NewProber constructs a Prober using the real ExecRunner.
func NewProber() *Prober {
	return &Prober{Cmd: ExecRunner{}, Timeout: DefaultProbeTimeout}
}

type probeFormat struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// Duration returns the media duration in fractional seconds. A file whose
// container reports no duration field yields zero without error.
func (p *Prober) Duration(ctx context.Context, path string) (float64, error) {
	runner := p.Cmd
	if runner == nil {
		runner = ExecRunner{}
	}
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	out, err := runner.Output(ctx, "ffprobe",
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "json",
		path,
	)
	if err != nil {
		return 0, fmt.Errorf("probe %s: %w", path, err)
	}

	var payload probeFormat
	if err := json.Unmarshal(out, &payload); err != nil {
		return 0, fmt.Errorf("decode probe output for %s: %w", path, err)
	}
	raw := strings.TrimSpace(payload.Format.Duration)
	if raw == "" {
		return 0, nil
	}
	duration, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("parse probed duration %q: %w", raw, err)
	}
	return duration, nil
}
