// Package compose drives the external ffmpeg binary: concat-copy assembly
// of segment files for the composition worker, and clip synthesis for the
// mock generator.
package compose

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Runner executes an external command and returns its captured stderr.
// Injected so tests can substitute a fake without spawning processes.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (stderr string, err error)
}

// ExecRunner runs commands via os/exec.
type ExecRunner struct{}

// Run executes name with args and captures stderr.
func (ExecRunner) Run(ctx context.Context, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var buf bytes.Buffer
	cmd.Stderr = &buf
	err := cmd.Run()
	return buf.String(), err
}

// Concatenator assembles segment files into one container using ffmpeg's
// demux-concat with stream copy. Inputs must share codec parameters; that
// is the producer's responsibility.
type Concatenator struct {
	FFmpegPath string
	Runner     Runner
}

// NewConcatenator builds a Concatenator around the real ffmpeg binary.
func NewConcatenator(ffmpegPath string) Concatenator {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return Concatenator{FFmpegPath: ffmpegPath, Runner: ExecRunner{}}
}

// Concat writes a concat manifest for inputs (in order) and invokes
// ffmpeg -f concat -safe 0 -i manifest -c copy -y output. On failure the
// returned error carries the captured stderr.
func (c Concatenator) Concat(ctx context.Context, inputs []string, output string) error {
	if len(inputs) == 0 {
		return fmt.Errorf("op=compose.concat: no input files")
	}
	manifest, err := WriteManifest(filepath.Dir(output), inputs)
	if err != nil {
		return err
	}
	defer func() { _ = os.Remove(manifest) }()

	args := []string{"-f", "concat", "-safe", "0", "-i", manifest, "-c", "copy", "-y", output}
	slog.Debug("running ffmpeg concat", slog.String("manifest", manifest), slog.String("output", output))
	stderr, err := c.Runner.Run(ctx, c.FFmpegPath, args...)
	if err != nil {
		return fmt.Errorf("op=compose.concat: ffmpeg failed: %s: %w", strings.TrimSpace(stderr), err)
	}
	return nil
}

// WriteManifest writes an ffmpeg concat demuxer manifest listing files in
// order, returning its path. Single quotes in paths are escaped per the
// demuxer's quoting rules.
func WriteManifest(dir string, files []string) (string, error) {
	f, err := os.CreateTemp(dir, "concat-*.txt")
	if err != nil {
		return "", fmt.Errorf("op=compose.manifest: %w", err)
	}
	for _, path := range files {
		escaped := strings.ReplaceAll(path, "'", `'\''`)
		if _, err := fmt.Fprintf(f, "file '%s'\n", escaped); err != nil {
			_ = f.Close()
			_ = os.Remove(f.Name())
			return "", fmt.Errorf("op=compose.manifest: %w", err)
		}
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(f.Name())
		return "", fmt.Errorf("op=compose.manifest: %w", err)
	}
	return f.Name(), nil
}
