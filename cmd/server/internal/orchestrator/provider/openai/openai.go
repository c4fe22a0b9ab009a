// Package openai adapts OpenAI-style APIs to the transcription, fact-check
// and completion capabilities.
package openai

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/houzhh15/factlens/cmd/server/internal/orchestrator/provider"
)

// DefaultBaseURL is the public OpenAI API root.
const DefaultBaseURL = "https://api.openai.com/v1"

// Config configures the OpenAI adapters.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string

	// ReasoningEffort is low, medium, high or minimal. Anything else means high.
	ReasoningEffort string

	Timeout time.Duration
	RPS     float64

	// Retry tuning; zero values use the shared defaults.
	MaxAttempts int
	BaseDelay   time.Duration

	HTTPClient *http.Client
	Logger     *slog.Logger
}

func newClient(cfg Config) *provider.Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	key := cfg.APIKey
	return provider.NewClient(provider.ClientConfig{
		Name:        "openai",
		BaseURL:     baseURL,
		Timeout:     cfg.Timeout,
		RPS:         cfg.RPS,
		Burst:       1,
		MaxAttempts: cfg.MaxAttempts,
		BaseDelay:   cfg.BaseDelay,
		Authorize: func(r *http.Request) {
			if key != "" {
				r.Header.Set("Authorization", "Bearer "+key)
			}
		},
		HTTPClient: cfg.HTTPClient,
		Logger:     cfg.Logger,
	})
}

func reasoningEffort(level string) string {
	switch l := strings.ToLower(strings.TrimSpace(level)); l {
	case "minimal", "low", "medium", "high":
		return l
	default:
		return "high"
	}
}

// healthCheck probes GET /models/{model}.
func healthCheck(ctx context.Context, c *provider.Client, model string) (bool, error) {
	if err := c.DoJSON(ctx, "health", http.MethodGet, "models/"+model, nil, nil); err != nil {
		return false, err
	}
	return true, nil
}

// response is the subset of a Responses API result the adapters read.
type response struct {
	ID     string       `json:"id"`
	Status string       `json:"status"`
	Output []outputItem `json:"output"`
	Error  *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type outputItem struct {
	Type    string        `json:"type"`
	Content []contentPart `json:"content"`
}

type contentPart struct {
	Type        string       `json:"type"`
	Text        string       `json:"text"`
	Annotations []annotation `json:"annotations"`
}

type annotation struct {
	Type  string `json:"type"`
	URL   string `json:"url"`
	Title string `json:"title"`
}

// text concatenates all output_text parts.
func (r *response) text() string {
	var b strings.Builder
	for _, item := range r.Output {
		if item.Type != "message" {
			continue
		}
		for _, part := range item.Content {
			if part.Type == "output_text" {
				b.WriteString(part.Text)
			}
		}
	}
	return b.String()
}

func (r *response) citations() []annotation {
	var out []annotation
	for _, item := range r.Output {
		for _, part := range item.Content {
			for _, a := range part.Annotations {
				if a.Type == "url_citation" {
					out = append(out, a)
				}
			}
		}
	}
	return out
}

func rawRecord(model string, resp json.RawMessage) json.RawMessage {
	data, err := json.Marshal(map[string]any{
		"provider": "openai",
		"model":    model,
		"response": resp,
	})
	if err != nil {
		return nil
	}
	return data
}
