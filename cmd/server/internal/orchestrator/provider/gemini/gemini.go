// Package gemini adapts the Gemini generateContent API to the transcription,
// fact-check and completion capabilities.
package gemini

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/houzhh15/factlens/cmd/server/internal/orchestrator/errs"
	"github.com/houzhh15/factlens/cmd/server/internal/orchestrator/provider"
)

// DefaultBaseURL is the public Gemini API root.
const DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// Config configures the Gemini adapters.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string

	// ThinkingLevel is forwarded as thinkingConfig.thinkingLevel for
	// gemini-3 pro models when it is low or high.
	ThinkingLevel string

	Timeout time.Duration
	RPS     float64

	MaxAttempts int
	BaseDelay   time.Duration

	HTTPClient *http.Client
	Logger     *slog.Logger
}

// IsGeminiModel reports whether model names a Gemini model.
func IsGeminiModel(model string) bool {
	m := strings.ToLower(strings.TrimSpace(model))
	return strings.HasPrefix(m, "gemini") || strings.HasPrefix(m, "models/gemini")
}

var spaceRe = regexp.MustCompile(`\s+`)

var modelAliases = map[string]string{
	"gemini 2.5 flash":   "gemini-2.5-flash",
	"gemini 2.5 pro":     "gemini-2.5-pro",
	"gemini 3.0 preview": "gemini-3-pro-preview",
	"gemini 3 preview":   "gemini-3-pro-preview",
}

// NormalizeModel maps display names such as "Gemini 2.5 Flash" to API ids
// and strips a leading "models/".
func NormalizeModel(model string) string {
	raw := strings.TrimSpace(model)
	key := strings.ToLower(spaceRe.ReplaceAllString(raw, " "))
	if alias, ok := modelAliases[key]; ok {
		return alias
	}
	return strings.TrimPrefix(raw, "models/")
}

func thinkingLevel(model, level string) string {
	m := strings.ToLower(model)
	if !strings.Contains(m, "gemini-3") || !strings.Contains(m, "pro") {
		return ""
	}
	switch l := strings.ToLower(strings.TrimSpace(level)); l {
	case "low", "high":
		return l
	default:
		return ""
	}
}

func newClient(cfg Config) *provider.Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	key := cfg.APIKey
	return provider.NewClient(provider.ClientConfig{
		Name:        "gemini",
		BaseURL:     baseURL,
		Timeout:     cfg.Timeout,
		RPS:         cfg.RPS,
		Burst:       1,
		MaxAttempts: cfg.MaxAttempts,
		BaseDelay:   cfg.BaseDelay,
		Authorize: func(r *http.Request) {
			if key != "" {
				r.Header.Set("x-goog-api-key", key)
			}
		},
		HTTPClient: cfg.HTTPClient,
		Logger:     cfg.Logger,
	})
}

type part struct {
	Text       string      `json:"text,omitempty"`
	Thought    bool        `json:"thought,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type thinkingConfig struct {
	IncludeThoughts bool   `json:"includeThoughts,omitempty"`
	ThinkingLevel   string `json:"thinkingLevel,omitempty"`
}

type generationConfig struct {
	Temperature      *float64        `json:"temperature,omitempty"`
	MaxOutputTokens  int             `json:"maxOutputTokens,omitempty"`
	ResponseMimeType string          `json:"responseMimeType,omitempty"`
	ThinkingConfig   *thinkingConfig `json:"thinkingConfig,omitempty"`
}

type generateRequest struct {
	SystemInstruction *content          `json:"systemInstruction,omitempty"`
	Contents          []content         `json:"contents"`
	Tools             []map[string]any  `json:"tools,omitempty"`
	GenerationConfig  *generationConfig `json:"generationConfig,omitempty"`
}

type groundingChunk struct {
	Web *struct {
		URI   string `json:"uri"`
		Title string `json:"title"`
	} `json:"web"`
}

type candidate struct {
	Content           content `json:"content"`
	FinishReason      string  `json:"finishReason"`
	GroundingMetadata *struct {
		GroundingChunks []groundingChunk `json:"groundingChunks"`
	} `json:"groundingMetadata"`
}

type generateResponse struct {
	Candidates     []candidate `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
	ModelVersion string `json:"modelVersion"`
}

// text joins the non-thought text parts of the first candidate.
func (r *generateResponse) text() string {
	if len(r.Candidates) == 0 {
		return ""
	}
	var b strings.Builder
	for _, p := range r.Candidates[0].Content.Parts {
		if !p.Thought {
			b.WriteString(p.Text)
		}
	}
	return b.String()
}

func (r *generateResponse) blocked() error {
	if r.PromptFeedback != nil && r.PromptFeedback.BlockReason != "" {
		return errs.NewProviderError("gemini blocked the prompt: "+r.PromptFeedback.BlockReason, false, nil)
	}
	return nil
}

func float(v float64) *float64 { return &v }

func userText(text string) []content {
	return []content{{Role: "user", Parts: []part{{Text: text}}}}
}

// generate performs one non-streamed generateContent call.
func generate(ctx context.Context, c *provider.Client, operation, model string, req generateRequest) (*generateResponse, error) {
	var resp generateResponse
	if err := c.DoJSON(ctx, operation, http.MethodPost, "models/"+model+":generateContent", req, &resp); err != nil {
		return nil, err
	}
	if err := resp.blocked(); err != nil {
		return nil, err
	}
	return &resp, nil
}

func healthCheck(ctx context.Context, c *provider.Client, model string) (bool, error) {
	if err := c.DoJSON(ctx, "health", http.MethodGet, "models/"+model, nil, nil); err != nil {
		return false, err
	}
	return true, nil
}

func rawRecord(model string, extra map[string]any) json.RawMessage {
	rec := map[string]any{"provider": "gemini", "model": model}
	for k, v := range extra {
		rec[k] = v
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return nil
	}
	return data
}
