package provider

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/houzhh15/factlens/cmd/server/internal/orchestrator/errs"
)

var fencedJSONRe = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*\\})\\s*```")

// ParseJSONRelaxed extracts a JSON object from model output. It tries the
// whole text, then a fenced ```json block, then the span from the first "{"
// to the last "}". Anything that is not an object is a ValidationError.
func ParseJSONRelaxed(text string) (map[string]any, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errs.NewValidationError("model returned empty output", nil)
	}

	candidates := []string{text}
	if m := fencedJSONRe.FindStringSubmatch(text); m != nil {
		candidates = append(candidates, m[1])
	}
	if start, end := strings.Index(text, "{"), strings.LastIndex(text, "}"); start >= 0 && end > start {
		candidates = append(candidates, text[start:end+1])
	}

	var lastErr error
	for _, c := range candidates {
		var v any
		if err := json.Unmarshal([]byte(c), &v); err != nil {
			lastErr = err
			continue
		}
		obj, ok := v.(map[string]any)
		if !ok {
			return nil, errs.NewValidationError("model output is not a JSON object", nil)
		}
		return obj, nil
	}
	return nil, errs.NewValidationError("model output is not valid JSON", lastErr)
}
