package openai

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/houzhh15/factlens/cmd/server/internal/orchestrator/errs"
	"github.com/houzhh15/factlens/cmd/server/internal/orchestrator/provider"
	"github.com/houzhh15/factlens/cmd/server/internal/orchestrator/transcribe"
)

// Transcriber sends audio to the /audio/transcriptions endpoint.
type Transcriber struct {
	client *provider.Client
	model  string
}

// NewTranscriber creates an OpenAI transcriber for cfg.Model
// (whisper-1, gpt-4o-transcribe, gpt-4o-mini-transcribe, ...).
func NewTranscriber(cfg Config) *Transcriber {
	return &Transcriber{client: newClient(cfg), model: cfg.Model}
}

// Transcribe uploads one audio file as multipart/form-data and returns the
// plain-text transcript.
func (t *Transcriber) Transcribe(ctx context.Context, audioPath string, options *transcribe.TranscribeOptions) (*transcribe.TranscriptionResult, error) {
	if options == nil {
		options = &transcribe.TranscribeOptions{}
	}

	body, contentType, err := t.form(audioPath, options)
	if err != nil {
		return nil, err
	}

	url := t.client.URL("audio/transcriptions")
	text, err := t.client.Do(ctx, "transcribe", func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", contentType)
		return req, nil
	})
	if err != nil {
		return nil, err
	}

	return &transcribe.TranscriptionResult{
		Text:     strings.TrimSpace(string(text)),
		Language: options.Language,
		Provider: "openai",
		Model:    t.model,
	}, nil
}

func (t *Transcriber) form(audioPath string, options *transcribe.TranscribeOptions) ([]byte, string, error) {
	file, err := os.Open(audioPath)
	if err != nil {
		return nil, "", errs.NewProviderError("cannot open audio chunk", false, err)
	}
	defer file.Close()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("file", filepath.Base(audioPath))
	if err != nil {
		return nil, "", fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, "", errs.NewProviderError("cannot read audio chunk", false, err)
	}

	prompt := options.Prompt
	if prompt == "" {
		prompt = transcribe.DefaultPrompt
	}
	fields := [][2]string{
		{"model", t.model},
		{"response_format", "text"},
		{"prompt", prompt},
	}
	if options.Language != "" {
		fields = append(fields, [2]string{"language", options.Language})
	}
	for _, f := range fields {
		if err := writer.WriteField(f[0], f[1]); err != nil {
			return nil, "", fmt.Errorf("failed to write %s field: %w", f[0], err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to close multipart writer: %w", err)
	}
	return body.Bytes(), writer.FormDataContentType(), nil
}

// HealthCheck verifies the key can see the configured model.
func (t *Transcriber) HealthCheck(ctx context.Context) (bool, error) {
	return healthCheck(ctx, t.client, t.model)
}

// Name identifies the transcriber in logs and metrics.
func (t *Transcriber) Name() string {
	return "openai:" + t.model
}
