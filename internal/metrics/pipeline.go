package metrics

import "time"

// StageCompleted records one pipeline stage's execution time.
func StageCompleted(stage string, duration time.Duration) {
	StageDuration.WithLabelValues(stage).Observe(duration.Seconds())
}

// SubmissionApproved records a submission that passed every gate.
func SubmissionApproved() {
	SubmissionsTotal.WithLabelValues("approved").Inc()
}

// SubmissionRejected records a business-rule rejection.
func SubmissionRejected(reason string) {
	SubmissionsTotal.WithLabelValues("rejected").Inc()
	RejectionsTotal.WithLabelValues(reason).Inc()
}

// SubmissionFailed records a hard pipeline failure.
func SubmissionFailed() {
	SubmissionsTotal.WithLabelValues("failed").Inc()
}

// AICallCompleted records the outcome of one adjudication call.
func AICallCompleted(err error) {
	if err != nil {
		AIAPICalls.WithLabelValues("error").Inc()
		return
	}
	AIAPICalls.WithLabelValues("success").Inc()
}
