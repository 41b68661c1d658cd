// Package handler wires the HTTP API: citizen submission on one side,
// operator workflow on the other.
package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"

	"github.com/nancybwi/DrainGuardHCM-sub000/internal/domain"
	"github.com/nancybwi/DrainGuardHCM-sub000/internal/pipeline"
	"github.com/nancybwi/DrainGuardHCM-sub000/internal/service"
	"github.com/nancybwi/DrainGuardHCM-sub000/internal/storage"
)

// maxSubmissionBytes bounds the whole multipart submission body.
const maxSubmissionBytes = 25 << 20

// ReportHandler serves the report API.
type ReportHandler struct {
	coordinator *pipeline.Coordinator
	reports     service.ReportService
	logger      *slog.Logger
}

// NewReportHandler creates a report handler.
func NewReportHandler(coordinator *pipeline.Coordinator, reports service.ReportService, logger *slog.Logger) *ReportHandler {
	return &ReportHandler{
		coordinator: coordinator,
		reports:     reports,
		logger:      logger,
	}
}

// Register mounts the report routes. The submit route is returned separately
// so the caller can wrap it with its own rate limiter.
func (h *ReportHandler) Register(mux *http.ServeMux, submitMiddleware func(http.Handler) http.Handler) {
	submit := http.Handler(http.HandlerFunc(h.Submit))
	if submitMiddleware != nil {
		submit = submitMiddleware(submit)
	}
	mux.Handle("POST /api/reports", submit)

	mux.HandleFunc("GET /api/reports", h.List)
	mux.HandleFunc("GET /api/reports/{id}", h.Get)
	mux.HandleFunc("PATCH /api/reports/{id}/status", h.UpdateStatus)
	mux.HandleFunc("POST /api/reports/{id}/assign", h.Assign)
	mux.HandleFunc("POST /api/reports/{id}/unassign", h.Unassign)
	mux.HandleFunc("POST /api/reports/{id}/notes", h.AddNote)
	mux.HandleFunc("POST /api/reports/{id}/complete", h.Complete)
}

// =============================================================================
// Submission
// =============================================================================

// submitResponse is the terminal result of a submission request. Rejections
// are data, not errors: the request itself succeeded.
type submitResponse struct {
	Approved        bool      `json:"approved"`
	ReportID        uuid.UUID `json:"report_id,omitempty"`
	RiskScore       float64   `json:"risk_score,omitempty"`
	Priority        string    `json:"priority,omitempty"`
	RejectionReason string    `json:"rejection_reason,omitempty"`
}

// Submit accepts a multipart submission (photo + report fields) and runs it
// through the validation pipeline.
func (h *ReportHandler) Submit(w http.ResponseWriter, r *http.Request) {
	const op = "handler.Submit"

	r.Body = http.MaxBytesReader(w, r.Body, maxSubmissionBytes)
	if err := r.ParseMultipartForm(4 << 20); err != nil {
		ErrorResponse(w, r, h.logger, domain.Errorf(domain.ETOOLARGE, op, "submission is too large or malformed"))
		return
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		ErrorResponse(w, r, h.logger, domain.Invalid(op, "an image file is required"))
		return
	}
	defer file.Close()

	// Clients that don't sniff send application/octet-stream; the pipeline's
	// decoder is the real gate, so only explicitly wrong types are rejected
	// here.
	if ct := header.Header.Get("Content-Type"); ct != "" && ct != "application/octet-stream" && !storage.IsAllowedImageType(ct) {
		ErrorResponse(w, r, h.logger, domain.Invalid(op, "the image must be a JPEG or PNG photo"))
		return
	}

	draft, err := parseDraft(r)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	result, err := h.coordinator.Submit(r.Context(), pipeline.SubmitInput{
		Image: file,
		Draft: draft,
		OnProgress: func(stage string) {
			h.logger.Debug("submission progress", "stage", stage, "reporter_id", draft.ReporterID)
		},
	})
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	resp := submitResponse{
		Approved:        result.Approved,
		RejectionReason: result.RejectionReason,
	}
	status := http.StatusOK
	if result.Approved {
		resp.ReportID = result.ReportID
		resp.RiskScore = result.RiskScore
		resp.Priority = result.Priority
		status = http.StatusCreated
	}
	respondJSON(w, status, resp)
}

// parseDraft reads the report fields out of the multipart form. All free-text
// fields are NFC-normalized: Vietnamese input arrives in both composed and
// decomposed forms depending on the client keyboard.
func parseDraft(r *http.Request) (domain.ReportDraft, error) {
	const op = "handler.Submit"
	var draft domain.ReportDraft

	reporterID, err := uuid.Parse(r.FormValue("reporter_id"))
	if err != nil {
		return draft, domain.Invalid(op, "reporter_id must be a valid UUID")
	}

	lat, err := strconv.ParseFloat(r.FormValue("latitude"), 64)
	if err != nil {
		return draft, domain.Invalid(op, "latitude must be a number")
	}
	lon, err := strconv.ParseFloat(r.FormValue("longitude"), 64)
	if err != nil {
		return draft, domain.Invalid(op, "longitude must be a number")
	}

	draft = domain.ReportDraft{
		ReporterID:    reporterID,
		LocationRef:   strings.TrimSpace(r.FormValue("location_ref")),
		LocationTitle: normalizeText(r.FormValue("location_title")),
		Latitude:      lat,
		Longitude:     lon,
		Description:   normalizeText(r.FormValue("description")),
		UserSeverity:  domain.Severity(r.FormValue("severity")),
		TrafficImpact: domain.TrafficImpact(r.FormValue("traffic_impact")),
		SubmittedAt:   time.Now(),
	}

	if v := r.FormValue("gps_accuracy_m"); v != "" {
		acc, err := strconv.ParseFloat(v, 64)
		if err != nil || acc < 0 {
			return draft, domain.Invalid(op, "gps_accuracy_m must be a non-negative number")
		}
		draft.GPSAccuracyM = &acc
	}
	if v := r.FormValue("submitted_at"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return draft, domain.Invalid(op, "submitted_at must be RFC 3339")
		}
		draft.SubmittedAt = t
	}

	return draft, nil
}

// normalizeText trims and NFC-normalizes user-supplied text.
func normalizeText(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

// =============================================================================
// Operator Workflow
// =============================================================================

// Get returns one report.
func (h *ReportHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	report, err := h.reports.GetByID(r.Context(), id)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, reportToView(report))
}

// List pages through reports in one workflow state.
func (h *ReportHandler) List(w http.ResponseWriter, r *http.Request) {
	state := domain.WorkflowState(r.URL.Query().Get("state"))
	if state == "" {
		state = domain.WorkflowValidated
	}

	limit := queryInt(r, "limit", 50)
	offset := queryInt(r, "offset", 0)

	reports, err := h.reports.ListByState(r.Context(), state, int32(limit), int32(offset))
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	views := make([]reportView, len(reports))
	for i := range reports {
		views[i] = reportToView(&reports[i])
	}
	respondJSON(w, http.StatusOK, map[string]any{"reports": views})
}

// UpdateStatus moves a report to a new workflow state.
func (h *ReportHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	const op = "handler.UpdateStatus"

	id, err := pathID(r)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	var body struct {
		State string `json:"state"`
	}
	if err := decodeJSON(r, &body); err != nil {
		ErrorResponse(w, r, h.logger, domain.Invalid(op, "request body must be JSON with a state field"))
		return
	}

	if err := h.reports.Transition(r.Context(), id, domain.WorkflowState(body.State)); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Assign gives a report to an operator.
func (h *ReportHandler) Assign(w http.ResponseWriter, r *http.Request) {
	const op = "handler.Assign"

	id, err := pathID(r)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	var body struct {
		OperatorID string `json:"operator_id"`
	}
	if err := decodeJSON(r, &body); err != nil {
		ErrorResponse(w, r, h.logger, domain.Invalid(op, "request body must be JSON with an operator_id field"))
		return
	}
	operatorID, err := uuid.Parse(body.OperatorID)
	if err != nil {
		ErrorResponse(w, r, h.logger, domain.Invalid(op, "operator_id must be a valid UUID"))
		return
	}

	if err := h.reports.Assign(r.Context(), id, operatorID); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Unassign releases a report back to the validated queue.
func (h *ReportHandler) Unassign(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	if err := h.reports.Unassign(r.Context(), id); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AddNote appends an operator note to a report.
func (h *ReportHandler) AddNote(w http.ResponseWriter, r *http.Request) {
	const op = "handler.AddNote"

	id, err := pathID(r)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	var body struct {
		Note string `json:"note"`
	}
	if err := decodeJSON(r, &body); err != nil {
		ErrorResponse(w, r, h.logger, domain.Invalid(op, "request body must be JSON with a note field"))
		return
	}

	if err := h.reports.AddNote(r.Context(), id, normalizeText(body.Note)); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Complete resolves a report with a completion note.
func (h *ReportHandler) Complete(w http.ResponseWriter, r *http.Request) {
	const op = "handler.Complete"

	id, err := pathID(r)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	var body struct {
		Note string `json:"note"`
	}
	if err := decodeJSON(r, &body); err != nil {
		ErrorResponse(w, r, h.logger, domain.Invalid(op, "request body must be JSON with a note field"))
		return
	}

	if err := h.reports.Complete(r.Context(), id, normalizeText(body.Note)); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// Views and Helpers
// =============================================================================

// reportView is the wire representation of a report.
type reportView struct {
	ID            uuid.UUID `json:"id"`
	ReporterID    uuid.UUID `json:"reporter_id"`
	LocationRef   string    `json:"location_ref"`
	LocationTitle string    `json:"location_title"`
	Latitude      float64   `json:"latitude"`
	Longitude     float64   `json:"longitude"`
	Description   string    `json:"description"`
	UserSeverity  string    `json:"user_severity"`
	TrafficImpact string    `json:"traffic_impact"`
	SubmittedAt   time.Time `json:"submitted_at"`

	AISeverity        *int               `json:"ai_severity,omitempty"`
	AIConfidence      *float64           `json:"ai_confidence,omitempty"`
	DetectedIssue     string             `json:"detected_issue,omitempty"`
	ValidationReasons []string           `json:"validation_reasons,omitempty"`
	RiskScore         *float64           `json:"risk_score,omitempty"`
	RiskBreakdown     map[string]float64 `json:"risk_breakdown,omitempty"`
	ImageURL          string             `json:"image_url,omitempty"`
	NearSchool        bool               `json:"near_school"`
	NearHospital      bool               `json:"near_hospital"`
	DuringRushHour    bool               `json:"during_rush_hour"`
	NearbyPOIs        []string           `json:"nearby_pois,omitempty"`

	WorkflowState  string     `json:"workflow_state"`
	AssignedTo     *uuid.UUID `json:"assigned_to,omitempty"`
	AssignedAt     *time.Time `json:"assigned_at,omitempty"`
	OperatorNotes  []string   `json:"operator_notes,omitempty"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	CompletionNote string     `json:"completion_note,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

func reportToView(r *domain.Report) reportView {
	return reportView{
		ID:                r.ID,
		ReporterID:        r.ReporterID,
		LocationRef:       r.LocationRef,
		LocationTitle:     r.LocationTitle,
		Latitude:          r.Latitude,
		Longitude:         r.Longitude,
		Description:       r.Description,
		UserSeverity:      r.UserSeverity.String(),
		TrafficImpact:     r.TrafficImpact.String(),
		SubmittedAt:       r.SubmittedAt,
		AISeverity:        r.AISeverity,
		AIConfidence:      r.AIConfidence,
		DetectedIssue:     r.DetectedIssue,
		ValidationReasons: r.ValidationReasons,
		RiskScore:         r.RiskScore,
		RiskBreakdown:     r.RiskBreakdown,
		ImageURL:          r.ImageURL,
		NearSchool:        r.NearSchool,
		NearHospital:      r.NearHospital,
		DuringRushHour:    r.DuringRushHour,
		NearbyPOIs:        r.NearbyPOIs,
		WorkflowState:     r.WorkflowState.String(),
		AssignedTo:        r.AssignedTo,
		AssignedAt:        r.AssignedAt,
		OperatorNotes:     r.OperatorNotes,
		CompletedAt:       r.CompletedAt,
		CompletionNote:    r.CompletionNote,
		CreatedAt:         r.CreatedAt,
		UpdatedAt:         r.UpdatedAt,
	}
}

// pathID parses the {id} path segment.
func pathID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		return uuid.Nil, domain.Invalid("handler", "report id must be a valid UUID")
	}
	return id, nil
}

// queryInt parses an integer query parameter with a fallback.
func queryInt(r *http.Request, name string, fallback int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

// decodeJSON decodes a JSON body, rejecting unknown fields.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}
