package ai

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Adjudicator defines the interface for AI-powered report validation
type Adjudicator interface {
	// Adjudicate sends a prepared image plus report context to the model and
	// returns its structured verdict. It reports what the model said; the
	// minimum-confidence policy belongs to the caller.
	Adjudicate(ctx context.Context, params AdjudicateParams) (*Verdict, error)
}

// AdjudicateParams contains parameters for a single adjudication call
type AdjudicateParams struct {
	ImageData   []byte        // Prepared (watermarked) image bytes, sent inline
	ContentType string        // MIME type (e.g., "image/jpeg")
	Context     ReportContext // Submission context embedded in the prompt
}

// ReportContext is the submission context the model sees alongside the image
type ReportContext struct {
	LocationTitle string
	Latitude      float64
	Longitude     float64
	SubmittedAt   time.Time
	Description   string
	UserSeverity  string
	TrafficImpact string
}

// Verdict is the model's structured judgment of one submission.
// It is ephemeral: folded into the report on approval or used to build a
// rejection reason, then discarded.
type Verdict struct {
	IsValid       bool     // Does the photo show a real drainage hazard?
	Confidence    float64  // 0.0-1.0
	DetectedIssue string   // Short description of what the model saw
	Severity      int      // 1-5
	Reasons       []string // Short list of reasons behind the verdict
}

// ClampSeverity forces the severity into the valid 1-5 range.
func (v *Verdict) ClampSeverity() {
	if v.Severity < 1 {
		v.Severity = 1
	}
	if v.Severity > 5 {
		v.Severity = 5
	}
}

// ProviderConfig contains common configuration for adjudicator providers
type ProviderConfig struct {
	MaxRetries     int           // Maximum retry attempts for transient errors
	RetryBaseDelay time.Duration // Base delay for exponential backoff
	RequestTimeout time.Duration // Timeout for individual requests
}

// Error codes for adjudicator operations.
//
// The transport-status errors map one status class each so the caller can
// show a specific, actionable message (see the gemini provider).
var (
	// EAIModelMissing indicates the configured model does not exist
	EAIModelMissing = errors.New("ai model not found")

	// EAIBusy indicates the AI service is overloaded
	EAIBusy = errors.New("ai service is busy")

	// EAIRateLimit indicates the API rate limit has been exceeded
	EAIRateLimit = errors.New("ai provider rate limit exceeded")

	// EAIUnauthorized indicates invalid API credentials
	EAIUnauthorized = errors.New("ai provider authentication failed")

	// EAIUnavailable indicates the AI service is temporarily unavailable
	EAIUnavailable = errors.New("ai service temporarily unavailable")

	// EAINoResponse indicates the model returned no candidate content
	EAINoResponse = errors.New("ai returned no response")

	// EAITruncated indicates the response was cut off before completion
	EAITruncated = errors.New("ai response was cut off")

	// EAISafetyBlocked indicates the response was blocked by safety filtering
	EAISafetyBlocked = errors.New("ai response blocked by safety filter")

	// EAIMalformed indicates the response text was not the expected JSON.
	// This is final: retrying a well-formed request will not fix it.
	EAIMalformed = errors.New("ai response format invalid")
)

// IsRetryable returns true if the error is a transient error that can be retried
func IsRetryable(err error) bool {
	return errors.Is(err, EAIRateLimit) ||
		errors.Is(err, EAIBusy) ||
		errors.Is(err, EAIUnavailable)
}

// WrapError wraps an error with context about the AI operation
func WrapError(operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("ai %s: %w", operation, err)
}
