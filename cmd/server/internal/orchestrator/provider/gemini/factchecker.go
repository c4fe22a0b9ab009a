package gemini

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

// FactChecker streams a Google-Search-grounded fact-check.
type FactChecker struct {
	client        *provider.Client
	model         string
	thinkingLevel string
}

// NewFactChecker creates a Gemini fact-checker for cfg.Model.
func NewFactChecker(cfg Config) *FactChecker {
	model := NormalizeModel(cfg.Model)
	return &FactChecker{
		client:        newClient(cfg),
		model:         model,
		thinkingLevel: thinkingLevel(model, cfg.ThinkingLevel),
	}
}

// Name identifies the fact-checker in logs and raw artifacts.
func (f *FactChecker) Name() string {
	return "gemini:" + f.model
}

// FactCheck streams the report, forwarding thought parts through onThought.
// Output that does not parse is sent back once for repair without tools.
func (f *FactChecker) FactCheck(ctx context.Context, req factcheck.Request, onThought factcheck.ThoughtFunc) (*factcheck.RawReport, error) {
	body := generateRequest{
		SystemInstruction: &content{Parts: []part{{Text: factcheck.SystemPrompt}}},
		Contents:          userText(factcheck.BuildUserPrompt(req)),
		Tools:             []map[string]any{{"google_search": map[string]any{}}, {"url_context": map[string]any{}}},
		GenerationConfig: &generationConfig{
			Temperature:    float(1.0),
			ThinkingConfig: &thinkingConfig{IncludeThoughts: true, ThinkingLevel: f.thinkingLevel},
		},
	}
	build, err := f.client.JSONRequest(http.MethodPost, "models/"+f.model+":streamGenerateContent?alt=sse", body)
	if err != nil {
		return nil, err
	}

	var (
		text    strings.Builder
		sources []models.Source
		version string
	)
	err = f.client.Stream(ctx, "fact_check", func(ctx context.Context) (*http.Request, error) {
		text.Reset()
		sources = nil
		return build(ctx)
	}, func(ev provider.Event) error {
		var chunk generateResponse
		if err := json.Unmarshal([]byte(ev.Data), &chunk); err != nil {
			return nil
		}
		if err := chunk.blocked(); err != nil {
			return err
		}
		if chunk.ModelVersion != "" {
			version = chunk.ModelVersion
		}
		if len(chunk.Candidates) == 0 {
			return nil
		}
		cand := chunk.Candidates[0]
		for _, p := range cand.Content.Parts {
			if p.Text == "" {
				continue
			}
			if p.Thought {
				onThought.Emit(strings.TrimSpace(p.Text))
				continue
			}
			text.WriteString(p.Text)
		}
		if cand.GroundingMetadata != nil {
			for _, gc := range cand.GroundingMetadata.GroundingChunks {
				if gc.Web != nil {
					sources = factcheck.AppendSource(sources, models.Source{Title: gc.Web.Title, URL: gc.Web.URI})
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	output := strings.TrimSpace(text.String())
	repaired := false
	fields, perr := provider.ParseJSONRelaxed(output)
	if perr != nil {
		f.client.Logger().Warn("fact-check output is not valid JSON, requesting repair", "model", f.model, "error", perr)
		fields, err = f.repair(ctx, output)
		if err != nil {
			return nil, err
		}
		repaired = true
	}

	return &factcheck.RawReport{
		Fields:           fields,
		GroundingSources: sources,
		Provider:         "gemini",
		Model:            f.model,
		Raw: rawRecord(f.model, map[string]any{
			"model_version": version,
			"output_text":   output,
			"repaired":      repaired,
		}),
	}, nil
}

func (f *FactChecker) repair(ctx context.Context, previous string) (map[string]any, error) {
	resp, err := generate(ctx, f.client, "fix_json", f.model, generateRequest{
		Contents: userText(factcheck.FixJSONPrompt(previous)),
		GenerationConfig: &generationConfig{
			Temperature:      float(1.0),
			ResponseMimeType: "application/json",
		},
	})
	if err != nil {
		return nil, err
	}
	fields, err := provider.ParseJSONRelaxed(resp.text())
	if err != nil {
		return nil, errs.NewProviderError("gemini returned a malformed report", false, err)
	}
	return fields, nil
}
