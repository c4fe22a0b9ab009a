// Package dependency provides an abstraction layer for executing the external
// command-line tools the pipeline relies on (yt-dlp, ffmpeg, ffprobe).
package dependency

import "time"

// ExecutionMode specifies how commands should be executed.
type ExecutionMode string

const (
	// ModeLocal executes commands directly on the local system using exec.Command.
	ModeLocal ExecutionMode = "local"
)

// Command names known to the pipeline.
const (
	CommandYtDlp   = "yt-dlp"
	CommandFFmpeg  = "ffmpeg"
	CommandFFprobe = "ffprobe"
)

// CommandRequest encapsulates all information needed to execute a command.
type CommandRequest struct {
	// Command is the binary name or alias (e.g., "yt-dlp", "ffmpeg").
	Command string `json:"command" yaml:"command"`

	// Args are the command-line arguments.
	Args []string `json:"args" yaml:"args"`

	// Env contains environment variables to set.
	Env map[string]string `json:"env,omitempty" yaml:"env,omitempty"`

	// WorkingDir is the directory to execute the command in (default: current dir).
	WorkingDir string `json:"working_dir,omitempty" yaml:"working_dir,omitempty"`

	// Timeout is the maximum execution duration (0 means DefaultTimeout).
	Timeout time.Duration `json:"timeout" yaml:"timeout"`
}

// CommandResponse contains the result of a command execution.
type CommandResponse struct {
	// Success indicates if the command completed without errors.
	Success bool `json:"success" yaml:"success"`

	// ExitCode is the process exit code (0 typically means success).
	ExitCode int `json:"exit_code" yaml:"exit_code"`

	// Stdout contains the standard output of the command.
	Stdout string `json:"stdout" yaml:"stdout"`

	// Stderr contains the standard error output (useful for debugging).
	Stderr string `json:"stderr" yaml:"stderr"`

	// Duration is the actual execution time.
	Duration time.Duration `json:"duration_ms" yaml:"duration_ms"`

	// TimedOut is set when the command was killed because its timeout expired.
	TimedOut bool `json:"timed_out" yaml:"timed_out"`
}

// ExecutorConfig defines the configuration for dependency execution.
type ExecutorConfig struct {
	// Mode specifies the execution strategy. Only "local" is supported.
	Mode ExecutionMode `json:"mode" yaml:"mode"`

	// DataDir is the base path of job data (e.g., "data").
	// Job-scoped media and chunk files are created below it.
	DataDir string `json:"data_dir" yaml:"data_dir"`

	// AllowedRoots lists extra directories absolute path arguments may point into
	// (e.g., the directory of a yt-dlp cookies file). DataDir is always allowed.
	AllowedRoots []string `json:"allowed_roots" yaml:"allowed_roots"`

	// LocalBinaryPaths maps command names to local binary paths
	// (e.g., {"ffmpeg": "/usr/local/bin/ffmpeg"}).
	LocalBinaryPaths map[string]string `json:"local_binary_paths" yaml:"local_binary_paths"`

	// DefaultTimeout is the default execution timeout for all commands.
	DefaultTimeout time.Duration `json:"default_timeout" yaml:"default_timeout"`

	// AllowedCommands lists the commands that are permitted to execute
	// (security: whitelist approach). Empty list means allow all.
	AllowedCommands []string `json:"allowed_commands" yaml:"allowed_commands"`
}

// DefaultExecutorConfig returns a local configuration allowing the pipeline tools.
func DefaultExecutorConfig(dataDir string) ExecutorConfig {
	return ExecutorConfig{
		Mode:             ModeLocal,
		DataDir:          dataDir,
		LocalBinaryPaths: map[string]string{},
		DefaultTimeout:   10 * time.Minute,
		AllowedCommands:  []string{CommandYtDlp, CommandFFmpeg, CommandFFprobe},
	}
}
