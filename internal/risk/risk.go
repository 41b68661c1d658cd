// Package risk turns the pipeline's findings into a bounded numeric risk
// score that drives operator prioritization and auto-assignment.
package risk

import (
	"github.com/nancybwi/DrainGuardHCM-sub000/internal/domain"
	"github.com/nancybwi/DrainGuardHCM-sub000/internal/location"
)

const (
	// MinScore and MaxScore bound the final score.
	MinScore = 1.0
	MaxScore = 5.0

	// AutoAssignThreshold is the score at and above which a report is
	// assigned to an operator automatically.
	AutoAssignThreshold = 4.0

	// lowConfidenceCutoff is the AI confidence below which the score is
	// discounted.
	lowConfidenceCutoff = 0.8

	// poorGPSAccuracyM is the reported accuracy above which the fix is
	// considered unreliable.
	poorGPSAccuracyM = 50.0
)

// Input carries everything the scoring formula looks at.
type Input struct {
	AISeverity    int     // 1-5, from the adjudicator
	AIConfidence  float64 // 0.0-1.0, from the adjudicator
	UserSeverity  domain.Severity
	TrafficImpact domain.TrafficImpact
	Location      location.Intelligence
	GPSAccuracyM  *float64 // nil when the device reported no accuracy
}

// Result is the score plus the per-factor breakdown kept for audit parity.
type Result struct {
	Score     float64
	Breakdown map[string]float64 // Factor label -> applied delta
}

// Score evaluates the deterministic additive formula. The factors are
// applied in a fixed order so audit logs of the breakdown stay comparable
// across submissions.
func Score(in Input) Result {
	breakdown := make(map[string]float64)

	score := float64(in.AISeverity)
	breakdown["ai_severity"] = score

	if in.Location.NearSchool || in.Location.NearHospital {
		score += 1.0
		breakdown["sensitive_poi"] = 1.0
	}
	if in.Location.DuringRushHour {
		score += 0.5
		breakdown["rush_hour"] = 0.5
	}
	if in.UserSeverity.Numeric() > in.AISeverity {
		score += 0.5
		breakdown["user_severity_above_ai"] = 0.5
	}
	switch in.TrafficImpact {
	case domain.TrafficBlocked:
		score += 0.3
		breakdown["traffic_blocked"] = 0.3
	case domain.TrafficSlowing:
		score += 0.15
		breakdown["traffic_slowing"] = 0.15
	}
	if in.GPSAccuracyM != nil && *in.GPSAccuracyM > poorGPSAccuracyM {
		score -= 0.3
		breakdown["poor_gps_accuracy"] = -0.3
	}
	if in.AIConfidence < lowConfidenceCutoff {
		score -= 0.3
		breakdown["low_ai_confidence"] = -0.3
	}

	return Result{
		Score:     clamp(score),
		Breakdown: breakdown,
	}
}

// ShouldAutoAssign reports whether a score triggers automatic operator
// assignment. This is the sole trigger: exactly 4.0 assigns, 3.99 does not.
func ShouldAutoAssign(score float64) bool {
	return score >= AutoAssignThreshold
}

// PriorityLabel buckets a score into a display label. Used only for summary
// text, never for control flow.
func PriorityLabel(score float64) string {
	switch {
	case score >= 4.5:
		return "critical"
	case score >= 3.5:
		return "high"
	case score >= 2.5:
		return "medium"
	default:
		return "low"
	}
}

func clamp(score float64) float64 {
	if score < MinScore {
		return MinScore
	}
	if score > MaxScore {
		return MaxScore
	}
	return score
}
