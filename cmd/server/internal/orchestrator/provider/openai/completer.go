package openai

import (
	"context"
	"net/http"
	"strings"

	"github.com/houzhh15/factlens/cmd/server/internal/orchestrator/errs"
	"github.com/houzhh15/factlens/cmd/server/internal/orchestrator/factcheck"
	"github.com/houzhh15/factlens/cmd/server/internal/orchestrator/provider"
)

// Completer runs plain, non-streamed Responses API calls.
type Completer struct {
	client *provider.Client
	model  string
}

// NewCompleter creates a completer for cfg.Model.
func NewCompleter(cfg Config) *Completer {
	return &Completer{client: newClient(cfg), model: cfg.Model}
}

// Name identifies the completer.
func (c *Completer) Name() string {
	return "openai:" + c.model
}

// CompleteJSON requests a JSON object and parses it leniently.
func (c *Completer) CompleteJSON(ctx context.Context, req factcheck.CompletionRequest) (map[string]any, error) {
	text, err := c.complete(ctx, req, map[string]any{"format": map[string]string{"type": "json_object"}})
	if err != nil {
		return nil, err
	}
	obj, err := provider.ParseJSONRelaxed(text)
	if err != nil {
		return nil, errs.NewProviderError("openai returned malformed JSON", false, err)
	}
	return obj, nil
}

// CompleteText returns the model's text reply.
func (c *Completer) CompleteText(ctx context.Context, req factcheck.CompletionRequest) (string, error) {
	return c.complete(ctx, req, nil)
}

func (c *Completer) complete(ctx context.Context, req factcheck.CompletionRequest, textFormat map[string]any) (string, error) {
	input := []map[string]string{}
	if req.System != "" {
		input = append(input, map[string]string{"role": "system", "content": req.System})
	}
	input = append(input, map[string]string{"role": "user", "content": req.Prompt})

	payload := map[string]any{
		"model": c.model,
		"input": input,
		"store": false,
	}
	if req.Temperature > 0 && supportsTemperature(c.model) {
		payload["temperature"] = req.Temperature
	}
	if req.MaxOutputTokens > 0 {
		payload["max_output_tokens"] = req.MaxOutputTokens
	}
	if textFormat != nil {
		payload["text"] = textFormat
	}

	var resp response
	if err := c.client.DoJSON(ctx, "complete", http.MethodPost, "responses", payload, &resp); err != nil {
		return "", err
	}
	if resp.Error != nil && resp.Error.Message != "" {
		return "", errs.NewProviderError("openai completion failed: "+resp.Error.Message, false, nil)
	}
	text := strings.TrimSpace(resp.text())
	if text == "" {
		return "", errs.NewProviderError("openai returned an empty completion", false, nil)
	}
	return text, nil
}

// HealthCheck verifies the key can see the configured model.
func (c *Completer) HealthCheck(ctx context.Context) (bool, error) {
	return healthCheck(ctx, c.client, c.model)
}

// supportsTemperature reports whether the model accepts a sampling
// temperature. Reasoning models reject it.
func supportsTemperature(model string) bool {
	m := strings.ToLower(model)
	return !strings.HasPrefix(m, "gpt-5") && !strings.HasPrefix(m, "o1") &&
		!strings.HasPrefix(m, "o3") && !strings.HasPrefix(m, "o4")
}
