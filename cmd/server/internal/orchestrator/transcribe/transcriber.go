// Package transcribe defines the speech-to-text capability the transcription
// coordinator depends on. Provider adapters implement Transcriber; the
// coordinator never needs to know which provider it is talking to.
package transcribe

import "context"

// TranscriptionResult is the text produced for one audio chunk.
type TranscriptionResult struct {
	// Text is the transcript of the chunk, trimmed of surrounding whitespace.
	Text string `json:"text"`

	// Language is the language reported by the provider, if any.
	Language string `json:"language,omitempty"`

	// Provider and Model identify who produced the text (for logs and raw artifacts).
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

// Transcriber defines the standard interface for audio transcription services.
// All provider adapters (OpenAI-style, Gemini-style) implement it.
type Transcriber interface {
	// Transcribe converts one audio file to text.
	//
	// Implementation notes:
	//   - Must respect context timeout and cancellation
	//   - Failures are *errs.OrchError with code PROVIDER_ERROR; the Retryable
	//     flag tells callers whether the provider may succeed later
	//   - Retries are performed inside the adapter
	//   - Silence yields an empty Text, not an error
	Transcribe(ctx context.Context, audioPath string, options *TranscribeOptions) (*TranscriptionResult, error)

	// HealthCheck verifies that the transcription service is reachable with the
	// configured credentials and model. It should be lightweight (< 10 seconds).
	HealthCheck(ctx context.Context) (bool, error)

	// Name returns the implementation identifier used in logs and metrics
	// (e.g., "openai:gpt-4o-transcribe").
	Name() string
}

// TranscribeOptions defines optional parameters for the Transcribe operation.
// All fields are optional; implementations provide defaults.
type TranscribeOptions struct {
	// Language hints the spoken language (ISO 639-1). Empty means auto-detect.
	Language string

	// Prompt replaces DefaultPrompt; see PromptFor.
	Prompt string

	// ChunkIndex and ChunkCount describe the chunk's position, used in prompts and logs.
	ChunkIndex int
	ChunkCount int
}
