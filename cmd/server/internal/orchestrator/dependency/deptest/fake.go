// Package deptest provides test doubles for the dependency package.
package deptest

import (
	"context"
	"sync"

	"github.com/houzhh15/factlens/cmd/server/internal/orchestrator/dependency"
)

// FakeExecutor is a test double for DependencyExecutor. Handler decides the
// outcome of every command; a nil Handler succeeds with empty output.
type FakeExecutor struct {
	Handler func(req dependency.CommandRequest) (dependency.CommandResponse, error)

	// HealthErr is returned by HealthCheck.
	HealthErr error

	mu       sync.Mutex
	executed []dependency.CommandRequest
}

// ExecuteCommand records the command and delegates to Handler.
func (f *FakeExecutor) ExecuteCommand(ctx context.Context, req dependency.CommandRequest) (dependency.CommandResponse, error) {
	f.mu.Lock()
	f.executed = append(f.executed, req)
	f.mu.Unlock()

	if f.Handler == nil {
		return dependency.CommandResponse{Success: true}, nil
	}
	return f.Handler(req)
}

// HealthCheck returns HealthErr.
func (f *FakeExecutor) HealthCheck(ctx context.Context) error {
	return f.HealthErr
}

// Executed returns a copy of the recorded commands.
func (f *FakeExecutor) Executed() []dependency.CommandRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]dependency.CommandRequest(nil), f.executed...)
}

// Commands returns the recorded command names in order.
func (f *FakeExecutor) Commands() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.executed))
	for i, req := range f.executed {
		out[i] = req.Command
	}
	return out
}

// OK builds a successful response with the given stdout.
func OK(stdout string) dependency.CommandResponse {
	return dependency.CommandResponse{Success: true, Stdout: stdout}
}

// Fail builds a failed response with the given exit code and stderr.
func Fail(exitCode int, stderr string) dependency.CommandResponse {
	return dependency.CommandResponse{Success: false, ExitCode: exitCode, Stderr: stderr}
}
