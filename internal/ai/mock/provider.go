package mock

import (
	"context"
	"log/slog"

	"github.com/nancybwi/DrainGuardHCM-sub000/internal/ai"
)

// Provider is a mock adjudicator for testing and development
type Provider struct {
	logger *slog.Logger

	// Configurable responses for testing
	AdjudicateResponse *ai.Verdict
	AdjudicateError    error

	// Call tracking for testing
	AdjudicateCalls int
	LastParams      ai.AdjudicateParams
}

// New creates a new mock adjudicator
func New(logger *slog.Logger) *Provider {
	return &Provider{
		logger: logger,
	}
}

// Adjudicate returns a canned approving verdict unless a custom response or
// error has been configured.
func (p *Provider) Adjudicate(ctx context.Context, params ai.AdjudicateParams) (*ai.Verdict, error) {
	p.AdjudicateCalls++
	p.LastParams = params

	if p.AdjudicateError != nil {
		return nil, p.AdjudicateError
	}
	if p.AdjudicateResponse != nil {
		return p.AdjudicateResponse, nil
	}

	// Default canned response
	return &ai.Verdict{
		IsValid:       true,
		Confidence:    0.92,
		DetectedIssue: "Blocked storm drain with standing water",
		Severity:      3,
		Reasons: []string{
			"Visible debris covering the drain grate",
			"Standing water consistent with reduced drainage",
		},
	}, nil
}

// Reset clears call counters and custom responses for testing
func (p *Provider) Reset() {
	p.AdjudicateCalls = 0
	p.AdjudicateResponse = nil
	p.AdjudicateError = nil
	p.LastParams = ai.AdjudicateParams{}
}
