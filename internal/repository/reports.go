package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/nancybwi/DrainGuardHCM-sub000/internal/domain"
	"github.com/sqlc-dev/pqtype"
)

// reportColumns is the column list shared by every report SELECT so scans
// stay in one place.
const reportColumns = `
	id, reporter_id,
	location_ref, location_title, latitude, longitude,
	description, user_severity, traffic_impact, submitted_at, gps_accuracy_m,
	is_valid, ai_severity, ai_confidence, ai_processed_at,
	detected_issue, validation_reasons,
	risk_score, risk_breakdown, image_hash, image_url, image_key,
	near_school, near_hospital, school_distance_m, hospital_distance_m,
	during_rush_hour, nearby_pois,
	workflow_state, assigned_to, assigned_at, operator_notes,
	completed_at, completion_note,
	created_at, updated_at`

// CreateReport inserts an approved report in a single statement and returns
// the server-assigned id. This is the only write the validation pipeline
// ever performs on the reports table.
func (q *Queries) CreateReport(ctx context.Context, r *domain.Report) (uuid.UUID, error) {
	breakdown, err := marshalBreakdown(r.RiskBreakdown)
	if err != nil {
		return uuid.Nil, fmt.Errorf("marshal risk breakdown: %w", err)
	}

	var (
		id        uuid.UUID
		createdAt time.Time
	)
	err = q.db.QueryRowContext(ctx, `
		INSERT INTO reports (
			reporter_id,
			location_ref, location_title, latitude, longitude,
			description, user_severity, traffic_impact, submitted_at, gps_accuracy_m,
			is_valid, ai_severity, ai_confidence, ai_processed_at,
			detected_issue, validation_reasons,
			risk_score, risk_breakdown, image_hash, image_url, image_key,
			near_school, near_hospital, school_distance_m, hospital_distance_m,
			during_rush_hour, nearby_pois,
			workflow_state, assigned_to, assigned_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
			$11, $12, $13, $14, $15, $16, $17, $18, $19, $20,
			$21, $22, $23, $24, $25, $26, $27, $28, $29, $30
		)
		RETURNING id, created_at`,
		r.ReporterID,
		r.LocationRef, r.LocationTitle, r.Latitude, r.Longitude,
		r.Description, r.UserSeverity.String(), r.TrafficImpact.String(), r.SubmittedAt, nullFloat(r.GPSAccuracyM),
		nullBool(r.IsValid), nullInt(r.AISeverity), nullFloat(r.AIConfidence), nullTime(r.AIProcessedAt),
		nullString(r.DetectedIssue), pq.Array(r.ValidationReasons),
		nullFloat(r.RiskScore), breakdown, nullHash(r.ImageHash), nullString(r.ImageURL), nullString(r.ImageKey),
		r.NearSchool, r.NearHospital, nullFloat(r.SchoolDistanceM), nullFloat(r.HospitalDistanceM),
		r.DuringRushHour, pq.Array(r.NearbyPOIs),
		r.WorkflowState.String(), nullUUID(r.AssignedTo), nullTime(r.AssignedAt),
	).Scan(&id, &createdAt)
	if err != nil {
		return uuid.Nil, fmt.Errorf("insert report: %w", err)
	}

	r.ID = id
	r.CreatedAt = createdAt
	r.UpdatedAt = createdAt
	return id, nil
}

// GetReportByID fetches one report.
func (q *Queries) GetReportByID(ctx context.Context, id uuid.UUID) (*domain.Report, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+reportColumns+` FROM reports WHERE id = $1`, id)
	report, err := scanReport(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFound("report.get", "report", id.String())
	}
	if err != nil {
		return nil, fmt.Errorf("get report: %w", err)
	}
	return report, nil
}

// ListReportsByState pages through reports in one workflow state,
// newest first.
func (q *Queries) ListReportsByState(ctx context.Context, state domain.WorkflowState, limit, offset int32) ([]domain.Report, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT `+reportColumns+`
		FROM reports
		WHERE workflow_state = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`,
		state.String(), limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	defer rows.Close()

	var reports []domain.Report
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, fmt.Errorf("scan report: %w", err)
		}
		reports = append(reports, *r)
	}
	return reports, rows.Err()
}

// UpdateWorkflowState moves a report to a new state.
func (q *Queries) UpdateWorkflowState(ctx context.Context, id uuid.UUID, state domain.WorkflowState) error {
	return q.execOne(ctx, "report.update_state", id, `
		UPDATE reports SET workflow_state = $2, updated_at = NOW() WHERE id = $1`,
		id, state.String())
}

// AssignReport sets the assignee and moves the report to assigned.
func (q *Queries) AssignReport(ctx context.Context, id, operatorID uuid.UUID) error {
	return q.execOne(ctx, "report.assign", id, `
		UPDATE reports
		SET workflow_state = $2, assigned_to = $3, assigned_at = NOW(), updated_at = NOW()
		WHERE id = $1`,
		id, domain.WorkflowAssigned.String(), operatorID)
}

// UnassignReport clears the assignee and returns the report to validated.
func (q *Queries) UnassignReport(ctx context.Context, id uuid.UUID) error {
	return q.execOne(ctx, "report.unassign", id, `
		UPDATE reports
		SET workflow_state = $2, assigned_to = NULL, assigned_at = NULL, updated_at = NOW()
		WHERE id = $1`,
		id, domain.WorkflowValidated.String())
}

// AppendOperatorNote appends one note to the report's note list.
func (q *Queries) AppendOperatorNote(ctx context.Context, id uuid.UUID, note string) error {
	return q.execOne(ctx, "report.append_note", id, `
		UPDATE reports
		SET operator_notes = array_append(COALESCE(operator_notes, '{}'), $2), updated_at = NOW()
		WHERE id = $1`,
		id, note)
}

// CompleteReport resolves a report with a completion record.
func (q *Queries) CompleteReport(ctx context.Context, id uuid.UUID, note string) error {
	return q.execOne(ctx, "report.complete", id, `
		UPDATE reports
		SET workflow_state = $2, completed_at = NOW(), completion_note = $3, updated_at = NOW()
		WHERE id = $1`,
		id, domain.WorkflowResolved.String(), note)
}

// execOne runs an UPDATE that must touch exactly one row.
func (q *Queries) execOne(ctx context.Context, op string, id uuid.UUID, query string, args ...any) error {
	result, err := q.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: rows affected: %w", op, err)
	}
	if affected == 0 {
		return domain.NotFound(op, "report", id.String())
	}
	return nil
}

// scanner abstracts *sql.Row and *sql.Rows for scanReport.
type scanner interface {
	Scan(dest ...any) error
}

func scanReport(s scanner) (*domain.Report, error) {
	var (
		r              domain.Report
		userSeverity   string
		trafficImpact  string
		workflowState  string
		gpsAccuracy    sql.NullFloat64
		isValid        sql.NullBool
		aiSeverity     sql.NullInt32
		aiConfidence   sql.NullFloat64
		aiProcessedAt  sql.NullTime
		detectedIssue  sql.NullString
		reasons        []string
		riskScore      sql.NullFloat64
		breakdown      pqtype.NullRawMessage
		imageHash      sql.NullInt64
		imageURL       sql.NullString
		imageKey       sql.NullString
		schoolDist     sql.NullFloat64
		hospitalDist   sql.NullFloat64
		pois           []string
		assignedTo     uuid.NullUUID
		assignedAt     sql.NullTime
		notes          []string
		completedAt    sql.NullTime
		completionNote sql.NullString
	)

	err := s.Scan(
		&r.ID, &r.ReporterID,
		&r.LocationRef, &r.LocationTitle, &r.Latitude, &r.Longitude,
		&r.Description, &userSeverity, &trafficImpact, &r.SubmittedAt, &gpsAccuracy,
		&isValid, &aiSeverity, &aiConfidence, &aiProcessedAt,
		&detectedIssue, pq.Array(&reasons),
		&riskScore, &breakdown, &imageHash, &imageURL, &imageKey,
		&r.NearSchool, &r.NearHospital, &schoolDist, &hospitalDist,
		&r.DuringRushHour, pq.Array(&pois),
		&workflowState, &assignedTo, &assignedAt, pq.Array(&notes),
		&completedAt, &completionNote,
		&r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	r.UserSeverity = domain.Severity(userSeverity)
	r.TrafficImpact = domain.TrafficImpact(trafficImpact)
	r.WorkflowState = domain.WorkflowState(workflowState)
	r.GPSAccuracyM = floatPtr(gpsAccuracy)
	if isValid.Valid {
		r.IsValid = &isValid.Bool
	}
	if aiSeverity.Valid {
		v := int(aiSeverity.Int32)
		r.AISeverity = &v
	}
	r.AIConfidence = floatPtr(aiConfidence)
	if aiProcessedAt.Valid {
		r.AIProcessedAt = &aiProcessedAt.Time
	}
	r.DetectedIssue = detectedIssue.String
	r.ValidationReasons = reasons
	r.RiskScore = floatPtr(riskScore)
	if breakdown.Valid {
		if err := json.Unmarshal(breakdown.RawMessage, &r.RiskBreakdown); err != nil {
			return nil, fmt.Errorf("unmarshal risk breakdown: %w", err)
		}
	}
	if imageHash.Valid {
		h := uint64(imageHash.Int64)
		r.ImageHash = &h
	}
	r.ImageURL = imageURL.String
	r.ImageKey = imageKey.String
	r.SchoolDistanceM = floatPtr(schoolDist)
	r.HospitalDistanceM = floatPtr(hospitalDist)
	r.NearbyPOIs = pois
	if assignedTo.Valid {
		r.AssignedTo = &assignedTo.UUID
	}
	if assignedAt.Valid {
		r.AssignedAt = &assignedAt.Time
	}
	r.OperatorNotes = notes
	if completedAt.Valid {
		r.CompletedAt = &completedAt.Time
	}
	r.CompletionNote = completionNote.String

	return &r, nil
}

// Null conversion helpers between domain pointers and database/sql types.

func marshalBreakdown(breakdown map[string]float64) (pqtype.NullRawMessage, error) {
	if breakdown == nil {
		return pqtype.NullRawMessage{}, nil
	}
	data, err := json.Marshal(breakdown)
	if err != nil {
		return pqtype.NullRawMessage{}, err
	}
	return pqtype.NullRawMessage{RawMessage: data, Valid: true}, nil
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func nullInt(v *int) sql.NullInt32 {
	if v == nil {
		return sql.NullInt32{}
	}
	return sql.NullInt32{Int32: int32(*v), Valid: true}
}

func nullBool(v *bool) sql.NullBool {
	if v == nil {
		return sql.NullBool{}
	}
	return sql.NullBool{Bool: *v, Valid: true}
}

func nullTime(v *time.Time) sql.NullTime {
	if v == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *v, Valid: true}
}

func nullString(v string) sql.NullString {
	if v == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: v, Valid: true}
}

func nullUUID(v *uuid.UUID) uuid.NullUUID {
	if v == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: *v, Valid: true}
}

// nullHash stores a uint64 hash in a signed BIGINT column; the cast is a
// bit-pattern reinterpretation, reversed on scan.
func nullHash(v *uint64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	return &v.Float64
}
