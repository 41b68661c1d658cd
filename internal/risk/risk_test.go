package risk

import (
	"math"
	"testing"

	"github.com/nancybwi/DrainGuardHCM-sub000/internal/domain"
	"github.com/nancybwi/DrainGuardHCM-sub000/internal/location"
)

func floatPtr(v float64) *float64 { return &v }

func TestScore(t *testing.T) {
	tests := []struct {
		name string
		in   Input
		want float64
	}{
		{
			name: "base severity only",
			in: Input{
				AISeverity:    3,
				AIConfidence:  0.9,
				UserSeverity:  domain.SeverityMedium,
				TrafficImpact: domain.TrafficNormal,
			},
			want: 3.0,
		},
		{
			name: "all boosts clamp to max",
			in: Input{
				AISeverity:    4,
				AIConfidence:  0.95,
				UserSeverity:  domain.SeverityHigh,
				TrafficImpact: domain.TrafficBlocked,
				Location: location.Intelligence{
					NearSchool:     true,
					DuringRushHour: true,
				},
			},
			want: 5.0, // 4 + 1.0 + 0.5 + 0.3 = 5.8 clamped
		},
		{
			name: "all discounts clamp to min",
			in: Input{
				AISeverity:    1,
				AIConfidence:  0.5,
				UserSeverity:  domain.SeverityLow,
				TrafficImpact: domain.TrafficNormal,
				GPSAccuracyM:  floatPtr(120),
			},
			want: 1.0, // 1 + 0.5 (user 2 > ai 1) - 0.3 - 0.3 = 0.9 clamped
		},
		{
			name: "low confidence and poor gps discount",
			in: Input{
				AISeverity:    2,
				AIConfidence:  0.6,
				UserSeverity:  domain.SeverityLow,
				TrafficImpact: domain.TrafficNormal,
				GPSAccuracyM:  floatPtr(60),
			},
			want: 1.4, // 2 - 0.3 - 0.3
		},
		{
			name: "user severity above ai boosts",
			in: Input{
				AISeverity:    2,
				AIConfidence:  0.9,
				UserSeverity:  domain.SeverityHigh, // numeric 4 > 2
				TrafficImpact: domain.TrafficNormal,
			},
			want: 2.5,
		},
		{
			name: "user severity equal to ai does not boost",
			in: Input{
				AISeverity:    3,
				AIConfidence:  0.9,
				UserSeverity:  domain.SeverityMedium, // numeric 3 == 3
				TrafficImpact: domain.TrafficNormal,
			},
			want: 3.0,
		},
		{
			name: "slowing traffic boosts less than blocked",
			in: Input{
				AISeverity:    3,
				AIConfidence:  0.9,
				UserSeverity:  domain.SeverityMedium,
				TrafficImpact: domain.TrafficSlowing,
			},
			want: 3.15,
		},
		{
			name: "hospital proximity counts as sensitive poi",
			in: Input{
				AISeverity:    3,
				AIConfidence:  0.9,
				UserSeverity:  domain.SeverityMedium,
				TrafficImpact: domain.TrafficNormal,
				Location:      location.Intelligence{NearHospital: true},
			},
			want: 4.0,
		},
		{
			name: "rush hour boost",
			in: Input{
				AISeverity:    3,
				AIConfidence:  0.9,
				UserSeverity:  domain.SeverityMedium,
				TrafficImpact: domain.TrafficNormal,
				Location:      location.Intelligence{DuringRushHour: true},
			},
			want: 3.5,
		},
		{
			name: "gps accuracy exactly at cutoff does not discount",
			in: Input{
				AISeverity:    3,
				AIConfidence:  0.9,
				UserSeverity:  domain.SeverityMedium,
				TrafficImpact: domain.TrafficNormal,
				GPSAccuracyM:  floatPtr(50),
			},
			want: 3.0,
		},
		{
			name: "confidence exactly at cutoff does not discount",
			in: Input{
				AISeverity:    3,
				AIConfidence:  0.8,
				UserSeverity:  domain.SeverityMedium,
				TrafficImpact: domain.TrafficNormal,
			},
			want: 3.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Score(tt.in)
			if math.Abs(got.Score-tt.want) > 1e-9 {
				t.Errorf("Score() = %v, want %v (breakdown %v)", got.Score, tt.want, got.Breakdown)
			}
		})
	}
}

func TestScoreBreakdown(t *testing.T) {
	got := Score(Input{
		AISeverity:    3,
		AIConfidence:  0.6,
		UserSeverity:  domain.SeverityHigh,
		TrafficImpact: domain.TrafficBlocked,
		Location: location.Intelligence{
			NearSchool:     true,
			DuringRushHour: true,
		},
		GPSAccuracyM: floatPtr(80),
	})

	want := map[string]float64{
		"ai_severity":            3.0,
		"sensitive_poi":          1.0,
		"rush_hour":              0.5,
		"user_severity_above_ai": 0.5,
		"traffic_blocked":        0.3,
		"poor_gps_accuracy":      -0.3,
		"low_ai_confidence":      -0.3,
	}

	if len(got.Breakdown) != len(want) {
		t.Fatalf("breakdown has %d factors, want %d: %v", len(got.Breakdown), len(want), got.Breakdown)
	}
	for factor, delta := range want {
		if got.Breakdown[factor] != delta {
			t.Errorf("breakdown[%q] = %v, want %v", factor, got.Breakdown[factor], delta)
		}
	}

	sum := 0.0
	for _, delta := range got.Breakdown {
		sum += delta
	}
	if math.Abs(sum-got.Score) > 1e-9 {
		t.Errorf("breakdown sums to %v but score is %v", sum, got.Score)
	}
}

func TestShouldAutoAssign(t *testing.T) {
	tests := []struct {
		score float64
		want  bool
	}{
		{3.99, false},
		{4.0, true},
		{4.5, true},
		{5.0, true},
		{1.0, false},
	}
	for _, tt := range tests {
		if got := ShouldAutoAssign(tt.score); got != tt.want {
			t.Errorf("ShouldAutoAssign(%v) = %v, want %v", tt.score, got, tt.want)
		}
	}
}

func TestPriorityLabel(t *testing.T) {
	tests := []struct {
		score float64
		want  string
	}{
		{5.0, "critical"},
		{4.5, "critical"},
		{4.49, "high"},
		{3.5, "high"},
		{3.49, "medium"},
		{2.5, "medium"},
		{2.49, "low"},
		{1.0, "low"},
	}
	for _, tt := range tests {
		if got := PriorityLabel(tt.score); got != tt.want {
			t.Errorf("PriorityLabel(%v) = %q, want %q", tt.score, got, tt.want)
		}
	}
}
