// Package translate renders an existing report and progress notes in another
// language without touching any score or verdict.
package translate

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/houzhh15/factlens/cmd/server/internal/models"
	"github.com/houzhh15/factlens/cmd/server/internal/orchestrator/errs"
	"github.com/houzhh15/factlens/cmd/server/internal/orchestrator/factcheck"
	"github.com/houzhh15/factlens/pkg/logger"
)

const (
	reportTemperature  = 0.3
	thoughtTemperature = 0.3
	thoughtMaxTokens   = 2000
)

// Translator translates reports through an LLM JSON completion.
type Translator struct {
	completer factcheck.Completer
	logger    *slog.Logger
}

// New creates a Translator backed by completer.
func New(completer factcheck.Completer, l *slog.Logger) *Translator {
	return &Translator{
		completer: completer,
		logger:    logger.OrDefault(l).With("component", "translator"),
	}
}

// Name identifies the underlying completer.
func (t *Translator) Name() string {
	return t.completer.Name()
}

// Translate returns a copy of src whose natural-language fields are in
// target. Only text is taken from the model: every number, enum, URL and
// list length comes from src.
func (t *Translator) Translate(ctx context.Context, src *models.Report, target string) (*models.Report, error) {
	if src == nil {
		return nil, errs.NewValidationError("nothing to translate", nil)
	}
	payload, err := json.MarshalIndent(src, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode report: %w", err)
	}

	out, err := t.completer.CompleteJSON(ctx, factcheck.CompletionRequest{
		Prompt:      reportPrompt(target, string(payload)),
		Temperature: reportTemperature,
	})
	if err != nil {
		if errs.CodeOf(err) == "" {
			err = errs.NewProviderError("report translation failed", false, err)
		}
		return nil, err
	}
	return Merge(src, out), nil
}

// Merge applies the translated text fields of out onto a copy of src.
// Lists are merged index by index up to the shorter length.
func Merge(src *models.Report, out map[string]any) *models.Report {
	merged := src.Clone()

	setString(&merged.Summary, out["summary"])
	setString(&merged.Limitations, out["limitations"])
	mergeStrings(merged.WhatsRight, out["whats_right"])
	mergeStrings(merged.WhatsWrong, out["whats_wrong"])
	mergeStrings(merged.MissingContext, out["missing_context"])

	claims, _ := out["claims"].([]any)
	for i := 0; i < len(merged.Claims) && i < len(claims); i++ {
		obj, ok := claims[i].(map[string]any)
		if !ok {
			continue
		}
		setString(&merged.Claims[i].Claim, obj["claim"])
		setString(&merged.Claims[i].Explanation, obj["explanation"])
		setString(&merged.Claims[i].Correction, obj["correction"])
	}

	danger, _ := out["danger"].([]any)
	for i := 0; i < len(merged.Danger) && i < len(danger); i++ {
		obj, ok := danger[i].(map[string]any)
		if !ok {
			continue
		}
		setString(&merged.Danger[i].Description, obj["description"])
		setString(&merged.Danger[i].Mitigation, obj["mitigation"])
	}
	return merged
}

func setString(dst *string, v any) {
	if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
		*dst = s
	}
}

func mergeStrings(dst []string, v any) {
	list, _ := v.([]any)
	for i := 0; i < len(dst) && i < len(list); i++ {
		setString(&dst[i], list[i])
	}
}

// TranslateThought translates one progress note. It returns text unchanged
// for English, for empty input and on any error.
func (t *Translator) TranslateThought(ctx context.Context, text, lang string) string {
	lang = strings.ToLower(strings.TrimSpace(lang))
	trimmed := strings.TrimSpace(text)
	if lang == "" || lang == "en" || trimmed == "" {
		return text
	}
	out, err := t.completer.CompleteText(ctx, factcheck.CompletionRequest{
		Prompt:          thoughtPrompt(lang, trimmed),
		Temperature:     thoughtTemperature,
		MaxOutputTokens: thoughtMaxTokens,
	})
	if err != nil {
		t.logger.Debug("thought translation failed, keeping original", "lang", lang, "error", err)
		return text
	}
	if out = strings.TrimSpace(out); out == "" {
		return text
	}
	return out
}

func reportPrompt(lang, reportJSON string) string {
	name := models.LanguageName(lang)
	return fmt.Sprintf(`You are a professional translator. Translate this fact-check report JSON into %s (code: %s).

Rules:
1. Translate only these human-readable fields: summary, whats_right items, whats_wrong items, missing_context items, limitations, claims[].claim, claims[].explanation, claims[].correction, danger[].description, danger[].mitigation.
2. Do not translate or change JSON keys, enum values (verdicts, categories), URLs, source titles and publishers, numbers (scores, weights, confidence, severity) or dates.
3. Keep the exact JSON structure.
4. Do not add, remove or reorder any list item.
5. Reply with valid JSON only, without explanation or markdown.

Report:
%s
`, name, lang, reportJSON)
}

func thoughtPrompt(lang, text string) string {
	name := models.LanguageName(lang)
	return fmt.Sprintf(`Translate this text into %s word for word. Do not add greetings, introductions or anything else.

Text:
%s

Reply with the %s translation only.`, name, text, name)
}
