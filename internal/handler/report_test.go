package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/nancybwi/DrainGuardHCM-sub000/internal/domain"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// fakeReportService records calls and returns canned results.
type fakeReportService struct {
	report        *domain.Report
	getErr        error
	assigned      []uuid.UUID
	transitionTo  []domain.WorkflowState
	notes         []string
	completeNotes []string
	opErr         error
}

func (f *fakeReportService) GetByID(ctx context.Context, id uuid.UUID) (*domain.Report, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.report, nil
}

func (f *fakeReportService) ListByState(ctx context.Context, state domain.WorkflowState, limit, offset int32) ([]domain.Report, error) {
	if f.report == nil {
		return nil, nil
	}
	return []domain.Report{*f.report}, nil
}

func (f *fakeReportService) Assign(ctx context.Context, id, operatorID uuid.UUID) error {
	f.assigned = append(f.assigned, operatorID)
	return f.opErr
}

func (f *fakeReportService) Unassign(ctx context.Context, id uuid.UUID) error {
	return f.opErr
}

func (f *fakeReportService) Transition(ctx context.Context, id uuid.UUID, target domain.WorkflowState) error {
	f.transitionTo = append(f.transitionTo, target)
	return f.opErr
}

func (f *fakeReportService) AddNote(ctx context.Context, id uuid.UUID, note string) error {
	f.notes = append(f.notes, note)
	return f.opErr
}

func (f *fakeReportService) Complete(ctx context.Context, id uuid.UUID, note string) error {
	f.completeNotes = append(f.completeNotes, note)
	return f.opErr
}

func newTestMux(svc *fakeReportService) *http.ServeMux {
	h := NewReportHandler(nil, svc, testLogger)
	mux := http.NewServeMux()
	h.Register(mux, nil)
	return mux
}

func testReport() *domain.Report {
	score := 3.5
	return &domain.Report{
		ID:            uuid.New(),
		ReporterID:    uuid.New(),
		LocationRef:   "loc-district1-042",
		LocationTitle: "Nguyen Hue walking street",
		Latitude:      10.7741,
		Longitude:     106.7037,
		Description:   "Blocked drain",
		UserSeverity:  domain.SeverityMedium,
		TrafficImpact: domain.TrafficSlowing,
		SubmittedAt:   time.Now(),
		RiskScore:     &score,
		WorkflowState: domain.WorkflowValidated,
	}
}

func TestGetReport(t *testing.T) {
	svc := &fakeReportService{report: testReport()}
	mux := newTestMux(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/reports/"+svc.report.ID.String(), nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body)
	}

	var view reportView
	if err := json.NewDecoder(rec.Body).Decode(&view); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if view.ID != svc.report.ID {
		t.Errorf("id = %v, want %v", view.ID, svc.report.ID)
	}
	if view.WorkflowState != "validated" {
		t.Errorf("workflow_state = %q, want validated", view.WorkflowState)
	}
}

func TestGetReportBadID(t *testing.T) {
	mux := newTestMux(&fakeReportService{})

	req := httptest.NewRequest(http.MethodGet, "/api/reports/not-a-uuid", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestGetReportNotFound(t *testing.T) {
	svc := &fakeReportService{getErr: domain.NotFound("report.get", "report", uuid.NewString())}
	mux := newTestMux(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/reports/"+uuid.NewString(), nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}

	var envelope struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode error envelope: %v", err)
	}
	if envelope.Error.Code != domain.ENOTFOUND {
		t.Errorf("error code = %q, want %q", envelope.Error.Code, domain.ENOTFOUND)
	}
}

func TestSubmitRejectsWrongImageType(t *testing.T) {
	mux := newTestMux(&fakeReportService{})

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part := textproto.MIMEHeader{}
	part.Set("Content-Disposition", `form-data; name="image"; filename="report.pdf"`)
	part.Set("Content-Type", "application/pdf")
	pw, err := mw.CreatePart(part)
	if err != nil {
		t.Fatalf("create part: %v", err)
	}
	pw.Write([]byte("%PDF-1.4"))
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/reports", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400: %s", rec.Code, rec.Body)
	}

	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode error envelope: %v", err)
	}
	if envelope.Error.Code != domain.EINVALID {
		t.Errorf("error code = %q, want %q", envelope.Error.Code, domain.EINVALID)
	}
}

func TestAssignReport(t *testing.T) {
	svc := &fakeReportService{}
	mux := newTestMux(svc)

	operator := uuid.New()
	body := `{"operator_id": "` + operator.String() + `"}`
	req := httptest.NewRequest(http.MethodPost, "/api/reports/"+uuid.NewString()+"/assign", strings.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204: %s", rec.Code, rec.Body)
	}
	if len(svc.assigned) != 1 || svc.assigned[0] != operator {
		t.Errorf("assigned = %v, want [%v]", svc.assigned, operator)
	}
}

func TestAssignReportConflict(t *testing.T) {
	svc := &fakeReportService{opErr: domain.Conflict("report.assign", "report cannot be assigned in its current state")}
	mux := newTestMux(svc)

	body := `{"operator_id": "` + uuid.NewString() + `"}`
	req := httptest.NewRequest(http.MethodPost, "/api/reports/"+uuid.NewString()+"/assign", strings.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", rec.Code)
	}
}

func TestUpdateStatus(t *testing.T) {
	svc := &fakeReportService{}
	mux := newTestMux(svc)

	req := httptest.NewRequest(http.MethodPatch, "/api/reports/"+uuid.NewString()+"/status",
		strings.NewReader(`{"state": "in_progress"}`))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204: %s", rec.Code, rec.Body)
	}
	if len(svc.transitionTo) != 1 || svc.transitionTo[0] != domain.WorkflowInProgress {
		t.Errorf("transitions = %v", svc.transitionTo)
	}
}

func TestAddNoteNormalizesText(t *testing.T) {
	svc := &fakeReportService{}
	mux := newTestMux(svc)

	// Decomposed "u" + combining acute; NFC folds it to a single rune.
	decomposed := "ghi chu\u0301  "
	req := httptest.NewRequest(http.MethodPost, "/api/reports/"+uuid.NewString()+"/notes",
		strings.NewReader(`{"note": "`+decomposed+`"}`))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204: %s", rec.Code, rec.Body)
	}
	if len(svc.notes) != 1 {
		t.Fatalf("notes = %v", svc.notes)
	}
	if svc.notes[0] != "ghi chú" {
		t.Errorf("note = %q, want NFC-normalized %q", svc.notes[0], "ghi chú")
	}
}

func TestErrorCodeToHTTPStatus(t *testing.T) {
	tests := []struct {
		code string
		want int
	}{
		{domain.EINVALID, http.StatusBadRequest},
		{domain.ENOTFOUND, http.StatusNotFound},
		{domain.ECONFLICT, http.StatusConflict},
		{domain.ETOOLARGE, http.StatusRequestEntityTooLarge},
		{domain.ERATELIMIT, http.StatusTooManyRequests},
		{domain.EUNAVAILABLE, http.StatusServiceUnavailable},
		{domain.EINTERNAL, http.StatusInternalServerError},
		{"unknown", http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := ErrorCodeToHTTPStatus(tt.code); got != tt.want {
			t.Errorf("ErrorCodeToHTTPStatus(%q) = %d, want %d", tt.code, got, tt.want)
		}
	}
}
