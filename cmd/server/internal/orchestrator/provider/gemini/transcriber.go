package gemini

import (
	"context"
	"encoding/base64"
	"os"
	"strings"

	"github.com/houzhh15/factlens/cmd/server/internal/orchestrator/errs"
	"github.com/houzhh15/factlens/cmd/server/internal/orchestrator/provider"
	"github.com/houzhh15/factlens/cmd/server/internal/orchestrator/transcribe"
)

// Transcriber sends audio inline to a multimodal Gemini model.
type Transcriber struct {
	client *provider.Client
	model  string
}

// NewTranscriber creates a Gemini transcriber for cfg.Model.
func NewTranscriber(cfg Config) *Transcriber {
	return &Transcriber{client: newClient(cfg), model: NormalizeModel(cfg.Model)}
}

// Transcribe uploads the chunk as base64 audio/mpeg and returns the transcript text.
func (t *Transcriber) Transcribe(ctx context.Context, audioPath string, options *transcribe.TranscribeOptions) (*transcribe.TranscriptionResult, error) {
	if options == nil {
		options = &transcribe.TranscribeOptions{}
	}

	audio, err := os.ReadFile(audioPath)
	if err != nil {
		return nil, errs.NewProviderError("cannot read audio chunk", false, err)
	}

	prompt := options.Prompt
	if prompt == "" {
		prompt = transcribe.DefaultPrompt
	}
	prompt = strings.TrimSpace(prompt) + "\n\nReturn only the transcript text, without titles, timestamps or commentary."

	resp, err := generate(ctx, t.client, "transcribe", t.model, generateRequest{
		Contents: []content{{
			Role: "user",
			Parts: []part{
				{Text: prompt},
				{InlineData: &inlineData{MimeType: "audio/mpeg", Data: base64.StdEncoding.EncodeToString(audio)}},
			},
		}},
		GenerationConfig: &generationConfig{Temperature: float(1.0)},
	})
	if err != nil {
		return nil, err
	}

	return &transcribe.TranscriptionResult{
		Text:     strings.TrimSpace(resp.text()),
		Language: options.Language,
		Provider: "gemini",
		Model:    t.model,
	}, nil
}

// HealthCheck verifies the key can see the configured model.
func (t *Transcriber) HealthCheck(ctx context.Context) (bool, error) {
	return healthCheck(ctx, t.client, t.model)
}

// Name identifies the transcriber in logs and metrics.
func (t *Transcriber) Name() string {
	return "gemini:" + t.model
}
