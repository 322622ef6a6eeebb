// Package capture grabs still frames from camera streams with ffmpeg.
package capture

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/smazurov/camview/internal/endpoint"
	"github.com/smazurov/camview/internal/logging"
)

// DefaultTimeout bounds one ffmpeg run.
const DefaultTimeout = 10 * time.Second

// Runner executes a command. It exists so tests can avoid ffmpeg.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// Capturer writes snapshots into a directory.
type Capturer struct {
	dir     string
	ffmpeg  string
	timeout time.Duration
	run     Runner
	now     func() time.Time
	logger  *slog.Logger
}

// Option configures a Capturer.
type Option func(*Capturer)

// WithTimeout overrides DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Capturer) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithFFmpeg sets the ffmpeg binary.
func WithFFmpeg(path string) Option {
	return func(c *Capturer) {
		if path != "" {
			c.ffmpeg = path
		}
	}
}

// WithRunner replaces command execution.
func WithRunner(run Runner) Option {
	return func(c *Capturer) { c.run = run }
}

// New creates a Capturer storing files under dir.
func New(dir string, opts ...Option) *Capturer {
	c := &Capturer{
		dir:     dir,
		ffmpeg:  "ffmpeg",
		timeout: DefaultTimeout,
		run:     execRunner,
		now:     time.Now,
		logger:  logging.GetLogger("capture"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Snapshot grabs one frame of uri over interleaved TCP and returns the path
// of the written JPEG.
func (c *Capturer) Snapshot(ctx context.Context, cameraID int64, uri string) (string, error) {
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create snapshot directory %s: %w", c.dir, err)
	}

	name := fmt.Sprintf("camera-%d-%s.jpg", cameraID, c.now().UTC().Format("20060102T150405Z"))
	out := filepath.Join(c.dir, name)

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	logger := c.logger.With("camera_id", cameraID, "uri", endpoint.Redact(uri))
	logger.Debug("Capturing snapshot", "output", out)

	output, err := c.run(ctx, c.ffmpeg, Args(uri, out)...)
	if ctx.Err() == context.DeadlineExceeded {
		return "", fmt.Errorf("snapshot timed out after %s", c.timeout)
	}
	if err != nil {
		logger.Warn("Snapshot failed", "error", err, "output", string(output))
		return "", fmt.Errorf("error capturing snapshot: %w", err)
	}

	if _, err := os.Stat(out); err != nil {
		return "", fmt.Errorf("snapshot not written: %w", err)
	}

	logger.Info("Snapshot saved", "path", out)
	return out, nil
}

// Args returns the ffmpeg arguments that save one frame of uri to out.
func Args(uri, out string) []string {
	return []string{
		"-hide_banner",
		"-loglevel", "error",
		"-rtsp_transport", "tcp",
		"-i", uri,
		"-frames:v", "1",
		"-q:v", "2",
		"-y", out,
	}
}
