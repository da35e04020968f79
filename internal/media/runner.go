package media

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// CommandRunner abstracts external tool invocation so tests can inject stubs
// instead of shelling out to ffprobe and ffmpeg.
type CommandRunner interface {
	// Output executes name with args and returns its standard output.
	Output(ctx context.Context, name string, args ...string) ([]byte, error)
	// Run executes name with args, discarding output on success.
	Run(ctx context.Context, name string, args ...string) error
}

// ExecRunner is the production CommandRunner backed by os/exec.
type ExecRunner struct{}

func (ExecRunner) Output(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return nil, toolError(name, err, stderr.Bytes())
	}
	return out, nil
}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return toolError(name, err, out)
	}
	return nil
}

func toolError(name string, err error, output []byte) error {
	detail := strings.TrimSpace(string(output))
	if detail == "" {
		return fmt.Errorf("%s: %w", name, err)
	}
	if len(detail) > 512 {
		detail = detail[len(detail)-512:]
	}
	return fmt.Errorf("%s: %w: %s", name, err, detail)
}
