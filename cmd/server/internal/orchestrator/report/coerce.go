package report

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/houzhh15/factlens/cmd/server/internal/models"
)

// toInt reads a number or numeric string. ok is false for anything else.
func toInt(v any) (int, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		return n, true
	case int64:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(n), "%")), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	if f > math.MaxInt32 {
		return math.MaxInt32, true
	}
	if f < math.MinInt32 {
		return math.MinInt32, true
	}
	return int(math.Round(f)), true
}

// clampedInt reads v, falls back to def when it is not numeric and clamps to [lo, hi].
func clampedInt(v any, lo, hi, def int) int {
	n, ok := toInt(v)
	if !ok {
		return def
	}
	return clamp(n, lo, hi)
}

func toString(v any) string {
	switch s := v.(type) {
	case string:
		return strings.TrimSpace(s)
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(s)
	default:
		return ""
	}
}

// toStringList accepts a list of strings or a single string. Empty entries are dropped.
func toStringList(v any) []string {
	out := []string{}
	switch list := v.(type) {
	case []any:
		for _, item := range list {
			if s := toString(item); s != "" {
				out = append(out, s)
			}
		}
	case []string:
		for _, item := range list {
			if s := strings.TrimSpace(item); s != "" {
				out = append(out, s)
			}
		}
	case string:
		if s := strings.TrimSpace(list); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func toObjects(v any) []map[string]any {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]map[string]any, 0, len(list))
	for _, item := range list {
		if obj, ok := item.(map[string]any); ok {
			out = append(out, obj)
		}
	}
	return out
}

// enumKey folds case, spaces and hyphens: "Mostly Accurate" -> "mostly_accurate".
func enumKey(v any) string {
	s := strings.ToLower(toString(v))
	s = strings.NewReplacer(" ", "_", "-", "_").Replace(s)
	return s
}

func overallVerdict(v any) (models.OverallVerdict, bool) {
	key := enumKey(v)
	for _, known := range models.OverallVerdicts {
		if string(known) == key {
			return known, true
		}
	}
	return models.VerdictUnverifiable, false
}

func claimVerdict(v any) (models.ClaimVerdict, bool) {
	key := enumKey(v)
	for _, known := range models.ClaimVerdicts {
		if string(known) == key {
			return known, true
		}
	}
	return models.ClaimUnverifiable, false
}

func dangerCategory(v any) (models.DangerCategory, bool) {
	key := enumKey(v)
	for _, known := range models.DangerCategories {
		if string(known) == key {
			return known, true
		}
	}
	return models.DangerOther, false
}

var dateLayouts = []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"}

func toTime(v any) *time.Time {
	s := toString(v)
	if s == "" {
		return nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}
