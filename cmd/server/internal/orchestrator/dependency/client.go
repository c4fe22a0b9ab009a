package dependency

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// DependencyClient is a facade for pipeline components to interact with
// external tools (yt-dlp, ffmpeg, ffprobe) without worrying about
// execution details.
//
// It provides high-level methods that encapsulate:
//   - Command construction
//   - Security validation
//   - Executor invocation
//   - Error handling and reporting
type DependencyClient struct {
	executor    DependencyExecutor
	config      ExecutorConfig
	pathManager *PathManager
}

// CommandError describes a command that ran but did not succeed.
type CommandError struct {
	Command  string
	ExitCode int
	Stderr   string
	TimedOut bool
	Cause    error
}

func (e *CommandError) Error() string {
	detail := strings.TrimSpace(e.Stderr)
	if len(detail) > 500 {
		detail = detail[len(detail)-500:]
	}
	if e.TimedOut {
		return fmt.Sprintf("%s timed out: %s", e.Command, detail)
	}
	if detail == "" && e.Cause != nil {
		detail = e.Cause.Error()
	}
	return fmt.Sprintf("%s failed (exit code %d): %s", e.Command, e.ExitCode, detail)
}

func (e *CommandError) Unwrap() error {
	return e.Cause
}

// NewClient creates a new DependencyClient based on the provided configuration.
func NewClient(config ExecutorConfig) (*DependencyClient, error) {
	if config.Mode == "" {
		config.Mode = ModeLocal
	}
	if config.Mode != ModeLocal {
		return nil, fmt.Errorf("invalid execution mode: %s (must be 'local')", config.Mode)
	}
	return NewClientWithExecutor(NewLocalExecutor(config), config), nil
}

// NewClientWithExecutor creates a DependencyClient around an existing executor.
func NewClientWithExecutor(executor DependencyExecutor, config ExecutorConfig) *DependencyClient {
	return &DependencyClient{
		executor:    executor,
		config:      config,
		pathManager: NewPathManager(config.DataDir),
	}
}

// PathManager returns the client's path manager.
func (c *DependencyClient) PathManager() *PathManager {
	return c.pathManager
}

// Run validates and executes a command. A non-zero exit or timeout is returned as *CommandError.
func (c *DependencyClient) Run(ctx context.Context, command string, args []string, timeout time.Duration) (CommandResponse, error) {
	req := CommandRequest{
		Command: command,
		Args:    args,
		Timeout: timeout,
	}
	if err := ValidateCommandRequest(req, c.config); err != nil {
		return CommandResponse{}, fmt.Errorf("command validation failed: %w", err)
	}

	resp, err := c.executor.ExecuteCommand(ctx, req)
	if err != nil || !resp.Success || resp.ExitCode != 0 {
		return resp, &CommandError{
			Command:  command,
			ExitCode: resp.ExitCode,
			Stderr:   firstNonEmpty(resp.Stderr, resp.Stdout),
			TimedOut: resp.TimedOut,
			Cause:    err,
		}
	}
	return resp, nil
}

// ProbeDuration returns the duration of a media file in seconds using ffprobe.
func (c *DependencyClient) ProbeDuration(ctx context.Context, path string) (float64, error) {
	resp, err := c.Run(ctx, CommandFFprobe, []string{
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	}, time.Minute)
	if err != nil {
		return 0, err
	}
	raw := strings.TrimSpace(resp.Stdout)
	seconds, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("unparseable duration %q: %w", raw, err)
	}
	if seconds <= 0 {
		return 0, errors.New("non-positive duration")
	}
	return seconds, nil
}

// SegmentAudio splits input into fixed-length mp3 parts named part_%03d.mp3 inside outDir.
// With reencode=false the stream is copied; otherwise it is re-encoded with libmp3lame.
func (c *DependencyClient) SegmentAudio(ctx context.Context, input, outDir string, segmentSeconds int, reencode bool) error {
	args := []string{
		"-hide_banner", "-loglevel", "error", "-y",
		"-i", input,
		"-f", "segment",
		"-segment_time", strconv.Itoa(segmentSeconds),
		"-reset_timestamps", "1",
	}
	if reencode {
		args = append(args, "-c:a", "libmp3lame", "-q:a", "4")
	} else {
		args = append(args, "-c", "copy")
	}
	args = append(args, filepath.Join(outDir, "part_%03d.mp3"))

	_, err := c.Run(ctx, CommandFFmpeg, args, c.config.DefaultTimeout)
	return err
}

// HealthCheck verifies that the underlying executor can run the pipeline tools.
func (c *DependencyClient) HealthCheck(ctx context.Context) error {
	return c.executor.HealthCheck(ctx)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
