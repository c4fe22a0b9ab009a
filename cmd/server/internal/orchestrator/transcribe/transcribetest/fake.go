// Package transcribetest provides a scriptable Transcriber for tests.
package transcribetest

import (
	"context"
	"sync"

	"github.com/houzhh15/factlens/cmd/server/internal/orchestrator/transcribe"
)

// FakeTranscriber implements transcribe.Transcriber. Handler decides the
// text for each call; a nil Handler returns an empty transcript, the same
// result real providers give for silence.
type FakeTranscriber struct {
	ID      string
	Handler func(ctx context.Context, audioPath string, opts transcribe.TranscribeOptions) (string, error)

	mu      sync.Mutex
	healthy bool
	healthE error
	calls   []string
}

// New creates a healthy fake named id.
func New(id string) *FakeTranscriber {
	return &FakeTranscriber{ID: id, healthy: true}
}

// Transcribe records audioPath and delegates to Handler.
func (f *FakeTranscriber) Transcribe(ctx context.Context, audioPath string, options *transcribe.TranscribeOptions) (*transcribe.TranscriptionResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, audioPath)
	f.mu.Unlock()

	var opts transcribe.TranscribeOptions
	if options != nil {
		opts = *options
	}
	text := ""
	if f.Handler != nil {
		var err error
		if text, err = f.Handler(ctx, audioPath, opts); err != nil {
			return nil, err
		}
	}
	return &transcribe.TranscriptionResult{Text: text, Provider: "fake", Model: f.ID}, nil
}

// HealthCheck reports the state set with SetHealthy.
func (f *FakeTranscriber) HealthCheck(ctx context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.healthy, f.healthE
}

// SetHealthy changes what HealthCheck returns.
func (f *FakeTranscriber) SetHealthy(healthy bool, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.healthy, f.healthE = healthy, err
}

// Name returns "fake:" + ID.
func (f *FakeTranscriber) Name() string {
	return "fake:" + f.ID
}

// Calls returns the audio paths passed to Transcribe, in call order.
func (f *FakeTranscriber) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}
