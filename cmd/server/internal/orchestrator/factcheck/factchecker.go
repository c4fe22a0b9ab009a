// Package factcheck defines the fact-check capability and the prompts and
// response schema shared by every provider adapter.
package factcheck

import (
	"context"
	"encoding/json"

	"github.com/houzhh15/factlens/cmd/server/internal/models"
)

// Request is the input of one fact-check run.
type Request struct {
	Transcript     string
	OutputLanguage string
	Title          string
	URL            string
}

// RawReport is the provider's reply before normalization.
type RawReport struct {
	// Fields is the decoded report object as the model produced it.
	Fields map[string]any

	// GroundingSources are the pages the provider's search tool actually
	// visited. Used when the model leaves sources_used empty.
	GroundingSources []models.Source

	Provider string
	Model    string

	// Raw is a provider-specific record of the call, persisted as raw.json.
	Raw json.RawMessage
}

// ThoughtFunc receives intermediate reasoning summaries while a fact-check runs.
type ThoughtFunc func(thought string)

// FactChecker verifies the claims of a transcript.
//
// Implementations must return a RawReport whose Fields decode from a JSON
// object, or a *errs.OrchError: malformed output is a PROVIDER_ERROR, never a
// silently empty report.
type FactChecker interface {
	FactCheck(ctx context.Context, req Request, onThought ThoughtFunc) (*RawReport, error)
	Name() string
}

// Completer produces a JSON object from a prompt. It backs report and
// thought translation.
type Completer interface {
	CompleteJSON(ctx context.Context, req CompletionRequest) (map[string]any, error)
	CompleteText(ctx context.Context, req CompletionRequest) (string, error)
	Name() string
}

// CompletionRequest is a single-turn completion.
type CompletionRequest struct {
	System      string
	Prompt      string
	Temperature float64
	// MaxOutputTokens of 0 leaves the provider default.
	MaxOutputTokens int
}

// Emit calls fn with thought when both are non-empty.
func (fn ThoughtFunc) Emit(thought string) {
	if fn != nil && thought != "" {
		fn(thought)
	}
}

// AppendSource appends src unless its URL is empty or already present.
func AppendSource(list []models.Source, src models.Source) []models.Source {
	if src.URL == "" {
		return list
	}
	for _, s := range list {
		if s.URL == src.URL {
			return list
		}
	}
	return append(list, src)
}
