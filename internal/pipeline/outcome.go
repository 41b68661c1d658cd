package pipeline

// outcomeKind tags the result of one pipeline stage.
type outcomeKind int

const (
	// outcomeContinue hands the draft to the next stage.
	outcomeContinue outcomeKind = iota

	// outcomeRejected terminates the pipeline with a business-rule "no".
	// Nothing is persisted; the reason is returned to the caller as data.
	outcomeRejected

	// outcomeFailed terminates the pipeline with an infrastructure failure.
	// The error propagates to the caller so the UI can offer a retry.
	outcomeFailed
)

// Outcome is the tagged result of a stage: continue with the updated draft,
// reject the submission, or fail the pipeline. Stages communicate only
// through this value and the shared draft, never through ad hoc flags.
type Outcome struct {
	kind         outcomeKind
	reason       string // User-visible rejection reason
	metricReason string // Low-cardinality label for metrics
	err          error
}

// Continue advances the pipeline to the next stage.
func Continue() Outcome {
	return Outcome{kind: outcomeContinue}
}

// Reject terminates the pipeline with a user-visible reason.
func Reject(metricReason, reason string) Outcome {
	return Outcome{kind: outcomeRejected, metricReason: metricReason, reason: reason}
}

// Fail terminates the pipeline with a hard error.
func Fail(err error) Outcome {
	return Outcome{kind: outcomeFailed, err: err}
}
