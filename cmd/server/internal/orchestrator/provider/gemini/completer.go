package gemini

import (
	"context"
	"strings"

	"github.com/houzhh15/factlens/cmd/server/internal/orchestrator/errs"
	"github.com/houzhh15/factlens/cmd/server/internal/orchestrator/factcheck"
	"github.com/houzhh15/factlens/cmd/server/internal/orchestrator/provider"
)

// jsonAttempts bounds the JSON completion including the repair call.
const jsonAttempts = 2

// Completer runs single-turn generateContent calls.
type Completer struct {
	client *provider.Client
	model  string
}

// NewCompleter creates a completer for cfg.Model.
func NewCompleter(cfg Config) *Completer {
	return &Completer{client: newClient(cfg), model: NormalizeModel(cfg.Model)}
}

// Name identifies the completer.
func (c *Completer) Name() string {
	return "gemini:" + c.model
}

// CompleteJSON asks for application/json output. Output that still fails to
// parse is fed back once with a repair instruction.
func (c *Completer) CompleteJSON(ctx context.Context, req factcheck.CompletionRequest) (map[string]any, error) {
	prompt := req.Prompt
	var last string
	for attempt := 1; attempt <= jsonAttempts; attempt++ {
		resp, err := generate(ctx, c.client, "complete_json", c.model, c.request(req, prompt, "application/json"))
		if err != nil {
			return nil, err
		}
		last = strings.TrimSpace(resp.text())
		obj, err := provider.ParseJSONRelaxed(last)
		if err == nil {
			return obj, nil
		}
		prompt = factcheck.FixJSONPrompt(last)
	}
	if len(last) > 400 {
		last = last[:400]
	}
	return nil, errs.NewProviderError("gemini did not return valid JSON: "+last, false, nil)
}

// CompleteText returns the model's text reply.
func (c *Completer) CompleteText(ctx context.Context, req factcheck.CompletionRequest) (string, error) {
	resp, err := generate(ctx, c.client, "complete_text", c.model, c.request(req, req.Prompt, ""))
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(resp.text())
	if text == "" {
		return "", errs.NewProviderError("gemini returned an empty completion", false, nil)
	}
	return text, nil
}

func (c *Completer) request(req factcheck.CompletionRequest, prompt, mime string) generateRequest {
	out := generateRequest{
		Contents: userText(prompt),
		GenerationConfig: &generationConfig{
			MaxOutputTokens:  req.MaxOutputTokens,
			ResponseMimeType: mime,
		},
	}
	if req.Temperature > 0 {
		out.GenerationConfig.Temperature = float(req.Temperature)
	}
	if req.System != "" {
		out.SystemInstruction = &content{Parts: []part{{Text: req.System}}}
	}
	return out
}

// HealthCheck verifies the key can see the configured model.
func (c *Completer) HealthCheck(ctx context.Context) (bool, error) {
	return healthCheck(ctx, c.client, c.model)
}
