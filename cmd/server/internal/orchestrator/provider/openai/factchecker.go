package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/houzhh15/factlens/cmd/server/internal/models"
	"github.com/houzhh15/factlens/cmd/server/internal/orchestrator/errs"
	"github.com/houzhh15/factlens/cmd/server/internal/orchestrator/factcheck"
	"github.com/houzhh15/factlens/cmd/server/internal/orchestrator/provider"
)

// FactChecker runs a streamed Responses API call with the web_search tool
// and a strict JSON schema output format.
type FactChecker struct {
	client *provider.Client
	model  string
	effort string
}

// NewFactChecker creates an OpenAI fact-checker for cfg.Model.
func NewFactChecker(cfg Config) *FactChecker {
	return &FactChecker{
		client: newClient(cfg),
		model:  cfg.Model,
		effort: reasoningEffort(cfg.ReasoningEffort),
	}
}

// Name identifies the fact-checker in logs and raw artifacts.
func (f *FactChecker) Name() string {
	return "openai:" + f.model
}

type streamEvent struct {
	Type       string          `json:"type"`
	Delta      string          `json:"delta"`
	Text       string          `json:"text"`
	Part       *contentPart    `json:"part"`
	Annotation *annotation     `json:"annotation"`
	Response   json.RawMessage `json:"response"`
	Message    string          `json:"message"`
	Code       string          `json:"code"`
}

// streamState accumulates one streamed response.
type streamState struct {
	output    strings.Builder
	reasoning strings.Builder
	seen      map[string]bool
	sources   []models.Source
	final     json.RawMessage
	onThought factcheck.ThoughtFunc
}

// FactCheck streams the fact-check and reports reasoning summaries through onThought.
func (f *FactChecker) FactCheck(ctx context.Context, req factcheck.Request, onThought factcheck.ThoughtFunc) (*factcheck.RawReport, error) {
	payload := map[string]any{
		"model":  f.model,
		"stream": true,
		"store":  false,
		"input": []map[string]string{
			{"role": "system", "content": factcheck.SystemPrompt},
			{"role": "user", "content": factcheck.BuildUserPrompt(req)},
		},
		"tools": []map[string]any{{
			"type":                "web_search",
			"search_context_size": "medium",
			"user_location":       map[string]string{"type": "approximate"},
		}},
		"reasoning": map[string]string{"effort": f.effort, "summary": "auto"},
		"text": map[string]any{
			"verbosity": "medium",
			"format": map[string]any{
				"type":   "json_schema",
				"name":   "fact_check_report",
				"strict": true,
				"schema": factcheck.ReportSchema(),
			},
		},
	}
	build, err := f.client.JSONRequest(http.MethodPost, "responses", payload)
	if err != nil {
		return nil, err
	}

	var st *streamState
	err = f.client.Stream(ctx, "fact_check", func(ctx context.Context) (*http.Request, error) {
		st = &streamState{seen: map[string]bool{}, onThought: onThought}
		return build(ctx)
	}, func(ev provider.Event) error {
		return st.handle(ev)
	})
	if err != nil {
		return nil, err
	}

	text := strings.TrimSpace(st.output.String())
	if st.final != nil {
		var resp response
		if json.Unmarshal(st.final, &resp) == nil {
			if text == "" {
				text = strings.TrimSpace(resp.text())
			}
			for _, a := range resp.citations() {
				st.sources = factcheck.AppendSource(st.sources, models.Source{Title: a.Title, URL: a.URL})
			}
		}
	}
	if text == "" {
		return nil, errs.NewProviderError("openai returned an empty report", false, nil)
	}

	fields, err := provider.ParseJSONRelaxed(text)
	if err != nil {
		return nil, errs.NewProviderError("openai returned a malformed report", false, err)
	}
	return &factcheck.RawReport{
		Fields:           fields,
		GroundingSources: st.sources,
		Provider:         "openai",
		Model:            f.model,
		Raw:              rawRecord(f.model, st.final),
	}, nil
}

func (st *streamState) handle(ev provider.Event) error {
	var e streamEvent
	if err := json.Unmarshal([]byte(ev.Data), &e); err != nil {
		// Keep-alives and unknown payloads are ignored.
		return nil
	}
	if e.Type == "" {
		e.Type = ev.Name
	}

	switch {
	case e.Type == "response.output_text.delta":
		st.output.WriteString(e.Delta)

	case strings.Contains(e.Type, "reasoning_summary"):
		if strings.HasSuffix(e.Type, ".delta") {
			st.reasoning.WriteString(e.Delta)
			return nil
		}
		if !strings.HasSuffix(e.Type, ".done") {
			return nil
		}
		text := e.Text
		if text == "" && e.Part != nil {
			text = e.Part.Text
		}
		candidate := strings.TrimSpace(st.reasoning.String())
		if candidate == "" {
			candidate = strings.TrimSpace(text)
		}
		st.reasoning.Reset()
		if candidate != "" && !st.seen[candidate] {
			st.seen[candidate] = true
			st.onThought.Emit(candidate)
		}

	case e.Type == "response.output_text.annotation.added":
		if e.Annotation != nil && e.Annotation.Type == "url_citation" {
			st.sources = factcheck.AppendSource(st.sources, models.Source{Title: e.Annotation.Title, URL: e.Annotation.URL})
		}

	case e.Type == "response.completed" || e.Type == "response.incomplete":
		st.final = e.Response

	case e.Type == "response.failed":
		st.final = e.Response
		var resp response
		msg := "openai response failed"
		if json.Unmarshal(e.Response, &resp) == nil && resp.Error != nil && resp.Error.Message != "" {
			msg += ": " + resp.Error.Message
		}
		return errs.NewProviderError(msg, false, nil)

	case e.Type == "error":
		msg := "openai stream error"
		if e.Message != "" {
			msg += ": " + e.Message
		}
		return errs.NewProviderError(msg, false, nil)
	}
	return nil
}
