// Package service contains the operator-facing workflow layer. The validation
// pipeline creates reports; everything that happens to them afterwards goes
// through here.
package service

import (
	"context"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/nancybwi/DrainGuardHCM-sub000/internal/domain"
	"github.com/nancybwi/DrainGuardHCM-sub000/internal/repository"
)

// maxNoteLength bounds operator notes and completion notes.
const maxNoteLength = 2000

// ReportService defines the interface for operator report operations.
type ReportService interface {
	// GetByID retrieves a single report.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Report, error)

	// ListByState pages through reports in one workflow state, newest first.
	ListByState(ctx context.Context, state domain.WorkflowState, limit, offset int32) ([]domain.Report, error)

	// Assign gives the report to an operator and moves it to assigned.
	Assign(ctx context.Context, id, operatorID uuid.UUID) error

	// Unassign releases the report back to the validated queue.
	Unassign(ctx context.Context, id uuid.UUID) error

	// Transition moves the report to a new workflow state.
	Transition(ctx context.Context, id uuid.UUID, target domain.WorkflowState) error

	// AddNote appends an operator note to the report.
	AddNote(ctx context.Context, id uuid.UUID, note string) error

	// Complete resolves the report with a completion note.
	Complete(ctx context.Context, id uuid.UUID, note string) error
}

// reportService implements ReportService.
type reportService struct {
	queries *repository.Queries
	logger  *slog.Logger
}

// NewReportService creates a new ReportService.
func NewReportService(queries *repository.Queries, logger *slog.Logger) ReportService {
	return &reportService{
		queries: queries,
		logger:  logger,
	}
}

// GetByID retrieves a single report.
func (s *reportService) GetByID(ctx context.Context, id uuid.UUID) (*domain.Report, error) {
	return s.queries.GetReportByID(ctx, id)
}

// ListByState pages through reports in one workflow state.
func (s *reportService) ListByState(ctx context.Context, state domain.WorkflowState, limit, offset int32) ([]domain.Report, error) {
	const op = "ReportService.ListByState"

	if !state.IsValid() {
		return nil, domain.Invalid(op, "unknown workflow state")
	}
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	reports, err := s.queries.ListReportsByState(ctx, state, limit, offset)
	if err != nil {
		s.logger.Error("failed to list reports", "error", err, "op", op, "state", state)
		return nil, domain.Internal(err, op, "Failed to list reports")
	}
	return reports, nil
}

// Assign gives the report to an operator. The report must be in a state
// that allows assignment.
func (s *reportService) Assign(ctx context.Context, id, operatorID uuid.UUID) error {
	const op = "ReportService.Assign"

	if operatorID == uuid.Nil {
		return domain.Invalid(op, "operator id is required")
	}

	report, err := s.queries.GetReportByID(ctx, id)
	if err != nil {
		return err
	}
	if !report.WorkflowState.CanTransitionTo(domain.WorkflowAssigned) {
		return domain.Conflict(op, "report cannot be assigned in its current state")
	}

	if err := s.queries.AssignReport(ctx, id, operatorID); err != nil {
		s.logger.Error("failed to assign report", "error", err, "op", op, "report_id", id)
		return domain.Internal(err, op, "Failed to assign report")
	}

	s.logger.Info("report assigned", "report_id", id, "operator_id", operatorID)
	return nil
}

// Unassign releases the report back to the validated queue.
func (s *reportService) Unassign(ctx context.Context, id uuid.UUID) error {
	const op = "ReportService.Unassign"

	report, err := s.queries.GetReportByID(ctx, id)
	if err != nil {
		return err
	}
	if !report.IsAssigned() {
		return domain.Conflict(op, "report has no assigned operator")
	}
	if !report.WorkflowState.CanTransitionTo(domain.WorkflowValidated) {
		return domain.Conflict(op, "report cannot be unassigned in its current state")
	}

	if err := s.queries.UnassignReport(ctx, id); err != nil {
		s.logger.Error("failed to unassign report", "error", err, "op", op, "report_id", id)
		return domain.Internal(err, op, "Failed to unassign report")
	}

	s.logger.Info("report unassigned", "report_id", id)
	return nil
}

// Transition moves the report to a new workflow state, guarded by the
// state machine. Resolving requires Complete so a completion note is
// always recorded.
func (s *reportService) Transition(ctx context.Context, id uuid.UUID, target domain.WorkflowState) error {
	const op = "ReportService.Transition"

	if !target.IsValid() {
		return domain.Invalid(op, "unknown workflow state")
	}
	if target == domain.WorkflowResolved {
		return domain.Invalid(op, "resolving a report requires a completion note")
	}

	report, err := s.queries.GetReportByID(ctx, id)
	if err != nil {
		return err
	}
	if !report.WorkflowState.CanTransitionTo(target) {
		return domain.Conflict(op, "invalid workflow transition")
	}

	// Moving back to validated is an unassignment, not just a state flip.
	if target == domain.WorkflowValidated {
		err = s.queries.UnassignReport(ctx, id)
	} else {
		err = s.queries.UpdateWorkflowState(ctx, id, target)
	}
	if err != nil {
		s.logger.Error("failed to transition report", "error", err, "op", op, "report_id", id, "target", target)
		return domain.Internal(err, op, "Failed to update report state")
	}

	s.logger.Info("report transitioned", "report_id", id, "from", report.WorkflowState, "to", target)
	return nil
}

// AddNote appends an operator note to the report.
func (s *reportService) AddNote(ctx context.Context, id uuid.UUID, note string) error {
	const op = "ReportService.AddNote"

	note = strings.TrimSpace(note)
	if note == "" {
		return domain.Invalid(op, "note is required")
	}
	if len(note) > maxNoteLength {
		return domain.Invalid(op, "note is too long")
	}

	if err := s.queries.AppendOperatorNote(ctx, id, note); err != nil {
		if domain.ErrorCode(err) == domain.ENOTFOUND {
			return err
		}
		s.logger.Error("failed to add note", "error", err, "op", op, "report_id", id)
		return domain.Internal(err, op, "Failed to add note")
	}
	return nil
}

// Complete resolves the report with a completion note.
func (s *reportService) Complete(ctx context.Context, id uuid.UUID, note string) error {
	const op = "ReportService.Complete"

	note = strings.TrimSpace(note)
	if note == "" {
		return domain.Invalid(op, "completion note is required")
	}
	if len(note) > maxNoteLength {
		return domain.Invalid(op, "completion note is too long")
	}

	report, err := s.queries.GetReportByID(ctx, id)
	if err != nil {
		return err
	}
	if !report.WorkflowState.CanTransitionTo(domain.WorkflowResolved) {
		return domain.Conflict(op, "report cannot be resolved in its current state")
	}

	if err := s.queries.CompleteReport(ctx, id, note); err != nil {
		s.logger.Error("failed to complete report", "error", err, "op", op, "report_id", id)
		return domain.Internal(err, op, "Failed to complete report")
	}

	s.logger.Info("report resolved", "report_id", id)
	return nil
}
