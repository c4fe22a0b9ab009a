package factcheck

import (
	"sort"

	"github.com/houzhh15/factlens/cmd/server/internal/models"
)

// ReportSchema returns the strict JSON schema of the report object requested
// from providers that support structured output.
func ReportSchema() map[string]any {
	source := object(map[string]any{
		"title":     nullable("string"),
		"url":       str(),
		"publisher": nullable("string"),
	})
	claim := object(map[string]any{
		"claim":       str(),
		"verdict":     enum(enumValues(models.ClaimVerdicts)),
		"weight":      integer(0, 100),
		"confidence":  integer(0, 100),
		"explanation": str(),
		"correction":  nullable("string"),
		"sources":     array(source),
	})
	danger := object(map[string]any{
		"category":    enum(enumValues(models.DangerCategories)),
		"severity":    integer(1, 5),
		"description": str(),
		"mitigation":  nullable("string"),
	})
	return object(map[string]any{
		"overall_score":   integer(0, 100),
		"overall_verdict": enum(enumValues(models.OverallVerdicts)),
		"summary":         str(),
		"whats_right":     array(str()),
		"whats_wrong":     array(str()),
		"missing_context": array(str()),
		"limitations":     str(),
		"danger":          array(danger),
		"sources_used":    array(source),
		"claims":          array(claim),
	})
}

// object builds a closed object schema where every property is required.
func object(props map[string]any) map[string]any {
	required := make([]string, 0, len(props))
	for k := range props {
		required = append(required, k)
	}
	sort.Strings(required)
	return map[string]any{
		"type":                 "object",
		"properties":           props,
		"required":             required,
		"additionalProperties": false,
	}
}

func str() map[string]any { return map[string]any{"type": "string"} }

func nullable(t string) map[string]any {
	return map[string]any{"type": []string{t, "null"}}
}

func integer(min, max int) map[string]any {
	return map[string]any{"type": "integer", "minimum": min, "maximum": max}
}

func array(items map[string]any) map[string]any {
	return map[string]any{"type": "array", "items": items}
}

func enum(values []string) map[string]any {
	return map[string]any{"type": "string", "enum": values}
}

func enumValues[T ~string](values []T) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = string(v)
	}
	return out
}
