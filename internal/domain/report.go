// Package domain contains core business types and interfaces.
//
// This file defines the Report domain type: a citizen-submitted photo report
// of a drainage hazard, and the enums that describe it.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// User-Asserted Severity
// =============================================================================

// Severity is the reporter's own assessment of how bad the hazard is.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// String returns the string representation of the severity.
func (s Severity) String() string {
	return string(s)
}

// IsValid returns true if the severity is a recognized value.
func (s Severity) IsValid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh:
		return true
	}
	return false
}

// Numeric maps the severity onto the 1-5 scale used by the AI adjudicator
// so the two can be compared during risk scoring (low=2, medium=3, high=4).
func (s Severity) Numeric() int {
	switch s {
	case SeverityLow:
		return 2
	case SeverityMedium:
		return 3
	case SeverityHigh:
		return 4
	}
	return 0
}

// =============================================================================
// Traffic Impact
// =============================================================================

// TrafficImpact is the reporter's assessment of how the hazard affects traffic.
type TrafficImpact string

const (
	TrafficNormal  TrafficImpact = "normal"
	TrafficSlowing TrafficImpact = "slowing"
	TrafficBlocked TrafficImpact = "blocked"
)

// String returns the string representation of the traffic impact.
func (t TrafficImpact) String() string {
	return string(t)
}

// IsValid returns true if the traffic impact is a recognized value.
func (t TrafficImpact) IsValid() bool {
	switch t {
	case TrafficNormal, TrafficSlowing, TrafficBlocked:
		return true
	}
	return false
}

// =============================================================================
// Workflow State
// =============================================================================

// WorkflowState represents the operator-facing lifecycle of an approved report.
//
// Reports enter the store already validated; the pipeline never touches them
// again. Only operator actions move a report through these states.
type WorkflowState string

const (
	// WorkflowValidated indicates the pipeline approved the report and it is
	// waiting for an operator to pick it up.
	WorkflowValidated WorkflowState = "validated"

	// WorkflowAssigned indicates an operator has been assigned, either
	// automatically (risk score >= auto-assign threshold) or manually.
	WorkflowAssigned WorkflowState = "assigned"

	// WorkflowInProgress indicates the assigned operator is working the report.
	WorkflowInProgress WorkflowState = "in_progress"

	// WorkflowResolved indicates the hazard has been dealt with and a
	// completion record has been written.
	WorkflowResolved WorkflowState = "resolved"
)

// String returns the string representation of the state.
func (s WorkflowState) String() string {
	return string(s)
}

// IsValid returns true if the state is a recognized value.
func (s WorkflowState) IsValid() bool {
	switch s {
	case WorkflowValidated, WorkflowAssigned, WorkflowInProgress, WorkflowResolved:
		return true
	}
	return false
}

// CanTransitionTo checks if the report can move to the target state.
//
// Valid transitions:
// - validated -> assigned
// - assigned -> in_progress
// - in_progress -> resolved
// - assigned/in_progress -> validated (operator unassigns)
func (s WorkflowState) CanTransitionTo(target WorkflowState) bool {
	switch s {
	case WorkflowValidated:
		return target == WorkflowAssigned
	case WorkflowAssigned:
		return target == WorkflowInProgress || target == WorkflowValidated
	case WorkflowInProgress:
		return target == WorkflowResolved || target == WorkflowValidated
	case WorkflowResolved:
		return false
	}
	return false
}

// =============================================================================
// Report Domain Type
// =============================================================================

// Report is the central entity: one citizen submission that survived the
// validation pipeline. A Report only exists in the store once approved;
// rejected submissions are never persisted.
type Report struct {
	ID         uuid.UUID // Server-assigned; zero until persisted
	ReporterID uuid.UUID

	// Target location, denormalized from the map selection flow
	LocationRef   string
	LocationTitle string
	Latitude      float64
	Longitude     float64

	// Immutable-at-creation, user-asserted fields
	Description   string
	UserSeverity  Severity
	TrafficImpact TrafficImpact
	SubmittedAt   time.Time
	GPSAccuracyM  *float64 // Reported GPS accuracy in meters, if the device gave one

	// Pipeline-populated fields (nil/zero until the owning stage completes)
	IsValid           *bool
	AISeverity        *int     // 1-5
	AIConfidence      *float64 // 0.0-1.0
	AIProcessedAt     *time.Time
	DetectedIssue     string
	ValidationReasons []string
	RiskScore         *float64           // 1.0-5.0
	RiskBreakdown     map[string]float64 // Factor label -> applied delta
	ImageHash         *uint64
	ImageURL          string
	ImageKey          string
	NearSchool        bool
	NearHospital      bool
	SchoolDistanceM   *float64
	HospitalDistanceM *float64
	DuringRushHour    bool
	NearbyPOIs        []string

	// Operator workflow (mutated only after persistence)
	WorkflowState  WorkflowState
	AssignedTo     *uuid.UUID
	AssignedAt     *time.Time
	OperatorNotes  []string
	CompletedAt    *time.Time
	CompletionNote string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsAssigned returns true if an operator currently owns the report.
func (r *Report) IsAssigned() bool {
	return r.AssignedTo != nil
}

// =============================================================================
// Report Draft
// =============================================================================

// ReportDraft carries the caller-supplied fields of a submission before the
// pipeline has seen them. The coordinator copies these onto a transient Report
// and fills in the rest stage by stage.
type ReportDraft struct {
	ReporterID    uuid.UUID
	LocationRef   string
	LocationTitle string
	Latitude      float64
	Longitude     float64
	Description   string
	UserSeverity  Severity
	TrafficImpact TrafficImpact
	SubmittedAt   time.Time
	GPSAccuracyM  *float64
}

// Validate checks the caller-supplied fields before the pipeline runs.
func (d *ReportDraft) Validate() error {
	const op = "report.submit"
	if d.ReporterID == uuid.Nil {
		return Invalid(op, "reporter id is required")
	}
	if d.LocationRef == "" {
		return Invalid(op, "target location is required")
	}
	if d.Latitude < -90 || d.Latitude > 90 || d.Longitude < -180 || d.Longitude > 180 {
		return Invalid(op, "coordinates are out of range")
	}
	if !d.UserSeverity.IsValid() {
		return Invalid(op, "severity must be low, medium or high")
	}
	if !d.TrafficImpact.IsValid() {
		return Invalid(op, "traffic impact must be normal, slowing or blocked")
	}
	return nil
}
