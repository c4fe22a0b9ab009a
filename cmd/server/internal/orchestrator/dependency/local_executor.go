package dependency

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/houzhh15/factlens/pkg/metrics"
)

// LocalExecutor executes commands directly on the local system using exec.Command.
type LocalExecutor struct {
	config ExecutorConfig
}

// NewLocalExecutor creates a new LocalExecutor with the given configuration.
func NewLocalExecutor(config ExecutorConfig) *LocalExecutor {
	return &LocalExecutor{config: config}
}

// ExecuteCommand executes a command locally and returns the result.
func (e *LocalExecutor) ExecuteCommand(ctx context.Context, req CommandRequest) (CommandResponse, error) {
	// 1. Resolve binary path (from config or PATH)
	binaryPath, err := e.resolveBinaryPath(req.Command)
	if err != nil {
		metrics.RecordCommandExecution(req.Command, string(ModeLocal), "failed")
		return CommandResponse{ExitCode: -1}, fmt.Errorf("failed to resolve binary path for %s: %w", req.Command, err)
	}

	// 2. Create timeout context
	timeout := req.Timeout
	if timeout == 0 {
		timeout = e.config.DefaultTimeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	// 3. Build command
	cmd := exec.CommandContext(ctx, binaryPath, req.Args...)
	cmd.Env = append(os.Environ(), e.buildEnvSlice(req.Env)...)
	if req.WorkingDir != "" {
		cmd.Dir = req.WorkingDir
	}

	// 4. Set process group (for killing entire process tree on timeout)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err = cmd.Run()
	duration := time.Since(start)

	resp := CommandResponse{
		Success:  err == nil,
		ExitCode: e.getExitCode(err),
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: duration,
	}
	metrics.RecordCommandDuration(req.Command, string(ModeLocal), duration.Seconds())

	// 5. Handle timeout error
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		resp.TimedOut = true
		resp.Success = false
		metrics.RecordCommandExecution(req.Command, string(ModeLocal), "timeout")
		return resp, fmt.Errorf("command execution timeout (%v): %s", timeout, req.Command)
	}

	if err != nil {
		metrics.RecordCommandExecution(req.Command, string(ModeLocal), "failed")
		return resp, err
	}
	metrics.RecordCommandExecution(req.Command, string(ModeLocal), "success")
	return resp, nil
}

// HealthCheck verifies that all whitelisted commands can be resolved.
func (e *LocalExecutor) HealthCheck(ctx context.Context) error {
	for _, command := range e.config.AllowedCommands {
		path, err := e.resolveBinaryPath(command)
		if err != nil {
			return fmt.Errorf("local command %s not available: %w", command, err)
		}
		if _, err := exec.LookPath(path); err != nil {
			return fmt.Errorf("local command %s not available at %s: %w", command, path, err)
		}
	}
	for command, path := range e.config.LocalBinaryPaths {
		if _, err := exec.LookPath(path); err != nil {
			return fmt.Errorf("local command %s not available at %s: %w", command, path, err)
		}
	}
	return nil
}

// resolveBinaryPath resolves the binary path from config or PATH environment.
func (e *LocalExecutor) resolveBinaryPath(command string) (string, error) {
	if path, ok := e.config.LocalBinaryPaths[command]; ok && path != "" {
		return path, nil
	}
	return exec.LookPath(command)
}

// buildEnvSlice converts environment map to slice format.
func (e *LocalExecutor) buildEnvSlice(envMap map[string]string) []string {
	var result []string
	for k, v := range envMap {
		result = append(result, fmt.Sprintf("%s=%s", k, v))
	}
	return result
}

// getExitCode extracts exit code from error.
func (e *LocalExecutor) getExitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}
