// Package report turns raw provider output into the canonical Report.
package report

import (
	"log/slog"
	"time"

	"github.com/houzhh15/factlens/cmd/server/internal/models"
	"github.com/houzhh15/factlens/cmd/server/internal/orchestrator/errs"
	"github.com/houzhh15/factlens/cmd/server/internal/orchestrator/factcheck"
	"github.com/houzhh15/factlens/pkg/logger"
)

// Normalizer converts RawReports into canonical Reports.
type Normalizer struct {
	now    func() time.Time
	logger *slog.Logger
}

// Option configures a Normalizer.
type Option func(*Normalizer)

// WithClock sets the source of generated_at.
func WithClock(now func() time.Time) Option {
	return func(n *Normalizer) { n.now = now }
}

// WithLogger sets the logger used for dropped-item warnings.
func WithLogger(l *slog.Logger) Option {
	return func(n *Normalizer) { n.logger = l }
}

// NewNormalizer creates a Normalizer.
func NewNormalizer(opts ...Option) *Normalizer {
	n := &Normalizer{now: time.Now}
	for _, opt := range opts {
		opt(n)
	}
	n.logger = logger.OrDefault(n.logger).With("component", "normalizer")
	return n
}

// Normalize clamps numbers, maps unknown enums to their conservative
// fallback, drops claims without text and recomputes the overall score
// from the weighted claims.
func (n *Normalizer) Normalize(raw *factcheck.RawReport) (*models.Report, error) {
	if raw == nil || raw.Fields == nil {
		return nil, errs.NewValidationError("fact-check result is empty", nil)
	}
	f := raw.Fields

	r := &models.Report{
		Summary:        toString(f["summary"]),
		WhatsRight:     toStringList(f["whats_right"]),
		WhatsWrong:     toStringList(f["whats_wrong"]),
		MissingContext: toStringList(f["missing_context"]),
		Limitations:    toString(f["limitations"]),
		Danger:         n.danger(f["danger"]),
		SourcesUsed:    sources(f["sources_used"], true),
		Claims:         n.claims(f["claims"]),
		GeneratedAt:    n.now().UTC(),
	}
	if len(r.SourcesUsed) == 0 {
		for _, s := range raw.GroundingSources {
			r.SourcesUsed = factcheck.AppendSource(r.SourcesUsed, s)
		}
	}

	if score, verdict, ok := ScoreClaims(r.Claims); ok || len(r.Claims) > 0 {
		r.OverallScore, r.OverallVerdict = score, verdict
	} else {
		// No claims at all: keep the provider's own judgement, clamped.
		r.OverallScore = clampedInt(f["overall_score"], 0, 100, neutralScore)
		verdict, known := overallVerdict(f["overall_verdict"])
		if !known && f["overall_verdict"] != nil {
			n.logger.Warn("unknown overall verdict mapped to unverifiable", "value", f["overall_verdict"])
		}
		r.OverallVerdict = verdict
	}
	return r, nil
}

func (n *Normalizer) claims(v any) []models.Claim {
	objs := toObjects(v)
	out := make([]models.Claim, 0, len(objs))
	dropped := 0
	for _, obj := range objs {
		text := toString(obj["claim"])
		if text == "" {
			dropped++
			continue
		}
		verdict, known := claimVerdict(obj["verdict"])
		if !known {
			n.logger.Debug("unknown claim verdict mapped to unverifiable", "value", obj["verdict"])
		}
		c := models.Claim{
			Claim:       text,
			Verdict:     verdict,
			Weight:      clampedInt(obj["weight"], 0, 100, 0),
			Confidence:  clampedInt(obj["confidence"], 0, 100, 50),
			Explanation: toString(obj["explanation"]),
			Correction:  toString(obj["correction"]),
			Sources:     sources(obj["sources"], false),
		}
		if verdict == models.ClaimNotFactualClaim {
			c.Weight = 0
		}
		out = append(out, c)
	}
	if dropped > 0 {
		n.logger.Warn("dropped claims without text", "count", dropped)
	}
	return out
}

func (n *Normalizer) danger(v any) []models.DangerItem {
	objs := toObjects(v)
	out := make([]models.DangerItem, 0, len(objs))
	for _, obj := range objs {
		desc := toString(obj["description"])
		if desc == "" {
			continue
		}
		category, _ := dangerCategory(obj["category"])
		out = append(out, models.DangerItem{
			Category:    category,
			Severity:    clampedInt(obj["severity"], 1, 5, 1),
			Description: desc,
			Mitigation:  toString(obj["mitigation"]),
		})
	}
	return out
}

// sources keeps entries with a URL, using the URL as the title when missing.
// Report-level lists carry accessed_at; claim-level lists do not.
func sources(v any, withAccessed bool) []models.Source {
	out := []models.Source{}
	for _, obj := range toObjects(v) {
		url := toString(obj["url"])
		if url == "" {
			continue
		}
		title := toString(obj["title"])
		if title == "" {
			title = url
		}
		s := models.Source{Title: title, URL: url, Publisher: toString(obj["publisher"])}
		if withAccessed {
			s.AccessedAt = toTime(obj["accessed_at"])
		}
		out = factcheck.AppendSource(out, s)
	}
	return out
}
