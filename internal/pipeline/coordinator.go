// Package pipeline contains the submission coordinator: the one component
// with orchestration authority over the report validation workflow.
//
// A submission runs through a fixed sequence of stages (prepare, fingerprint,
// duplicate check, upload, location analysis, AI adjudication, risk scoring,
// persistence). Each stage either advances the shared draft, rejects the
// submission with a user-visible reason, or fails the pipeline outright.
// Only approved submissions are ever persisted.
package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nancybwi/DrainGuardHCM-sub000/internal/ai"
	"github.com/nancybwi/DrainGuardHCM-sub000/internal/domain"
	"github.com/nancybwi/DrainGuardHCM-sub000/internal/fingerprint"
	"github.com/nancybwi/DrainGuardHCM-sub000/internal/imageprep"
	"github.com/nancybwi/DrainGuardHCM-sub000/internal/location"
	"github.com/nancybwi/DrainGuardHCM-sub000/internal/metrics"
	"github.com/nancybwi/DrainGuardHCM-sub000/internal/risk"
	"github.com/nancybwi/DrainGuardHCM-sub000/internal/storage"
)

// Stage progress labels, in execution order. These are user-visible: the
// mobile client shows them while the submission is in flight.
const (
	StagePreparing    = "Preparing image"
	StageFingerprint  = "Generating fingerprint"
	StageDuplicates   = "Checking duplicates"
	StageUploading    = "Uploading image"
	StageLocation     = "Analyzing location"
	StageAIValidating = "AI validating"
	StageRiskScoring  = "Risk scoring"
	StagePersisting   = "Persisting"
)

// maxImageBytes caps the accepted source image size.
const maxImageBytes = 20 * 1024 * 1024

// =============================================================================
// Collaborator Interfaces
// =============================================================================

// ReportStore persists approved reports.
type ReportStore interface {
	CreateReport(ctx context.Context, r *domain.Report) (uuid.UUID, error)
}

// FingerprintStore looks up and records perceptual hashes.
type FingerprintStore interface {
	ListRecentFingerprintHashes(ctx context.Context, window time.Duration) ([]uint64, error)
	CreateFingerprint(ctx context.Context, hash uint64, reportID uuid.UUID) (*domain.ImageFingerprint, error)
}

// LocationAnalyzer computes location intelligence for a submission.
type LocationAnalyzer interface {
	Analyze(ctx context.Context, lat, lon float64, submittedAt time.Time) location.Intelligence
}

// =============================================================================
// Coordinator
// =============================================================================

// Config tunes the coordinator's policy knobs.
type Config struct {
	// FingerprintWindow bounds duplicate lookups and fingerprint retention.
	FingerprintWindow time.Duration

	// MinConfidence is the AI confidence below which a valid verdict is
	// still rejected as unclear.
	MinConfidence float64

	// DefaultOperatorID receives auto-assigned reports. When nil, reports
	// that cross the auto-assign threshold stay in the validated state.
	DefaultOperatorID *uuid.UUID
}

// Coordinator sequences the validation pipeline for one submission at a
// time. It is safe for concurrent use: submissions share no mutable state
// beyond the injected collaborators.
type Coordinator struct {
	reports      ReportStore
	fingerprints FingerprintStore
	storage      storage.Storage
	adjudicator  ai.Adjudicator
	analyzer     LocationAnalyzer
	config       Config
	logger       *slog.Logger
}

// New creates a submission coordinator with explicitly injected
// collaborators.
func New(
	reports ReportStore,
	fingerprints FingerprintStore,
	store storage.Storage,
	adjudicator ai.Adjudicator,
	analyzer LocationAnalyzer,
	config Config,
	logger *slog.Logger,
) *Coordinator {
	if config.FingerprintWindow == 0 {
		config.FingerprintWindow = domain.FingerprintRetention
	}
	if config.MinConfidence == 0 {
		config.MinConfidence = 0.7
	}
	return &Coordinator{
		reports:      reports,
		fingerprints: fingerprints,
		storage:      store,
		adjudicator:  adjudicator,
		analyzer:     analyzer,
		config:       config,
		logger:       logger,
	}
}

// SubmitInput carries one submission into the pipeline.
type SubmitInput struct {
	Image io.Reader
	Draft domain.ReportDraft

	// OnProgress, when set, is called with each stage label as the stage
	// begins. Callers use it to drive submission progress UI.
	OnProgress func(stage string)
}

// SubmitResult is the terminal outcome of an accepted pipeline run:
// approved with a persisted report id, or rejected with a reason. Hard
// failures are returned as errors instead.
type SubmitResult struct {
	Approved        bool
	ReportID        uuid.UUID
	RejectionReason string
	RiskScore       float64
	Priority        string
}

// draft is the mutable value threaded through the stage chain.
type draft struct {
	report   domain.Report
	image    io.Reader
	prepared *imageprep.Prepared
	verdict  *ai.Verdict
}

// stage pairs a progress label with its implementation.
type stage struct {
	name string
	run  func(ctx context.Context, d *draft) Outcome
}

// Submit runs the full validation pipeline for one submission.
//
// The pipeline is strictly sequential; each stage depends on data produced
// by an earlier one. There is no cancellation mid-pipeline beyond ctx: once
// started, a submission runs to a terminal outcome.
func (c *Coordinator) Submit(ctx context.Context, in SubmitInput) (*SubmitResult, error) {
	if err := in.Draft.Validate(); err != nil {
		return nil, err
	}
	if in.Draft.SubmittedAt.IsZero() {
		in.Draft.SubmittedAt = time.Now()
	}

	d := &draft{
		image: in.Image,
		report: domain.Report{
			ReporterID:    in.Draft.ReporterID,
			LocationRef:   in.Draft.LocationRef,
			LocationTitle: in.Draft.LocationTitle,
			Latitude:      in.Draft.Latitude,
			Longitude:     in.Draft.Longitude,
			Description:   in.Draft.Description,
			UserSeverity:  in.Draft.UserSeverity,
			TrafficImpact: in.Draft.TrafficImpact,
			SubmittedAt:   in.Draft.SubmittedAt,
			GPSAccuracyM:  in.Draft.GPSAccuracyM,
			WorkflowState: domain.WorkflowValidated,
		},
	}

	stages := []stage{
		{StagePreparing, c.prepareImage},
		{StageFingerprint, c.generateFingerprint},
		{StageDuplicates, c.checkDuplicates},
		{StageUploading, c.uploadImage},
		{StageLocation, c.analyzeLocation},
		{StageAIValidating, c.adjudicate},
		{StageRiskScoring, c.scoreRisk},
		{StagePersisting, c.persist},
	}

	logger := c.logger.With("reporter_id", in.Draft.ReporterID)

	for _, s := range stages {
		if in.OnProgress != nil {
			in.OnProgress(s.name)
		}

		start := time.Now()
		out := s.run(ctx, d)
		metrics.StageCompleted(s.name, time.Since(start))

		switch out.kind {
		case outcomeRejected:
			metrics.SubmissionRejected(out.metricReason)
			logger.Info("Submission rejected",
				"stage", s.name,
				"reason", out.reason,
			)
			return &SubmitResult{Approved: false, RejectionReason: out.reason}, nil

		case outcomeFailed:
			metrics.SubmissionFailed()
			logger.Error("Submission pipeline failed",
				"stage", s.name,
				"error", out.err,
			)
			return nil, out.err
		}
	}

	score := 0.0
	if d.report.RiskScore != nil {
		score = *d.report.RiskScore
	}

	metrics.SubmissionApproved()
	logger.Info("Submission approved",
		"report_id", d.report.ID,
		"risk_score", score,
		"workflow_state", d.report.WorkflowState,
	)

	return &SubmitResult{
		Approved:  true,
		ReportID:  d.report.ID,
		RiskScore: score,
		Priority:  risk.PriorityLabel(score),
	}, nil
}

// =============================================================================
// Stages
// =============================================================================

// prepareImage decodes, resizes and watermarks the source photo. An
// undecodable image is fatal to the submission.
func (c *Coordinator) prepareImage(ctx context.Context, d *draft) Outcome {
	limited := io.LimitReader(d.image, maxImageBytes+1)
	prepared, err := imageprep.Prepare(limited, d.report.SubmittedAt, d.report.Latitude, d.report.Longitude)
	if err != nil {
		return Fail(domain.Invalid("report.submit", "the submitted photo could not be read"))
	}
	d.prepared = prepared
	return Continue()
}

// generateFingerprint hashes the prepared image. Pure computation, never
// fails.
func (c *Coordinator) generateFingerprint(ctx context.Context, d *draft) Outcome {
	hash := fingerprint.Hash(d.prepared.Image)
	d.report.ImageHash = &hash
	return Continue()
}

// checkDuplicates rejects resubmissions of the same photo before any upload
// happens. The lookup is exact-match on the stored hash: the hash function
// already absorbs re-encoding and resizing, and a distance tolerance on top
// of it would reject distinct photos that merely collide within a few bits.
// The check is fail-open: duplicate suppression is a quality-of-service
// feature, not a safety gate, so a store outage must not fail the submission.
func (c *Coordinator) checkDuplicates(ctx context.Context, d *draft) Outcome {
	recent, err := c.fingerprints.ListRecentFingerprintHashes(ctx, c.config.FingerprintWindow)
	if err != nil {
		c.logger.Warn("Duplicate check failed, allowing submission through",
			"error", err,
		)
		return Continue()
	}
	for _, stored := range recent {
		if stored == *d.report.ImageHash {
			metrics.DuplicatesDetected.Inc()
			return Reject("duplicate", "duplicate image")
		}
	}
	return Continue()
}

// uploadImage stores the prepared image and records its public URL.
func (c *Coordinator) uploadImage(ctx context.Context, d *draft) Outcome {
	key := storage.ReportImageKey(d.report.ReporterID)

	err := c.storage.Put(ctx, key, bytes.NewReader(d.prepared.JPEG), storage.PutOptions{
		ContentType: "image/jpeg",
		MaxSize:     maxImageBytes,
		Public:      true,
	})
	if err != nil {
		return Fail(domain.Unavailable(err, "report.submit", "the report image could not be stored"))
	}

	url, err := c.storage.URL(ctx, key, 0)
	if err != nil {
		return Fail(domain.Unavailable(err, "report.submit", "the report image could not be stored"))
	}

	d.report.ImageKey = key
	d.report.ImageURL = url
	return Continue()
}

// analyzeLocation copies location intelligence onto the draft. The analyzer
// swallows its own errors, so this stage always continues.
func (c *Coordinator) analyzeLocation(ctx context.Context, d *draft) Outcome {
	intel := c.analyzer.Analyze(ctx, d.report.Latitude, d.report.Longitude, d.report.SubmittedAt)

	d.report.NearSchool = intel.NearSchool
	d.report.NearHospital = intel.NearHospital
	d.report.SchoolDistanceM = intel.SchoolDistanceM
	d.report.HospitalDistanceM = intel.HospitalDistanceM
	d.report.DuringRushHour = intel.DuringRushHour
	d.report.NearbyPOIs = intel.NearbyPOIs
	return Continue()
}

// adjudicate asks the AI model for a verdict and applies the two rejection
// gates: invalid verdict first, then the minimum-confidence policy.
func (c *Coordinator) adjudicate(ctx context.Context, d *draft) Outcome {
	verdict, err := c.adjudicator.Adjudicate(ctx, ai.AdjudicateParams{
		ImageData:   d.prepared.JPEG,
		ContentType: "image/jpeg",
		Context: ai.ReportContext{
			LocationTitle: d.report.LocationTitle,
			Latitude:      d.report.Latitude,
			Longitude:     d.report.Longitude,
			SubmittedAt:   d.report.SubmittedAt,
			Description:   d.report.Description,
			UserSeverity:  d.report.UserSeverity.String(),
			TrafficImpact: d.report.TrafficImpact.String(),
		},
	})
	metrics.AICallCompleted(err)
	if err != nil {
		return Fail(adjudicationFailure(err))
	}

	if !verdict.IsValid {
		return Reject("ai_invalid", fmt.Sprintf("AI validation failed: %s", verdict.DetectedIssue))
	}
	if verdict.Confidence < c.config.MinConfidence {
		return Reject("low_confidence", "unclear image/content")
	}

	now := time.Now()
	valid := true
	d.verdict = verdict
	d.report.IsValid = &valid
	d.report.AISeverity = &verdict.Severity
	d.report.AIConfidence = &verdict.Confidence
	d.report.AIProcessedAt = &now
	d.report.DetectedIssue = verdict.DetectedIssue
	d.report.ValidationReasons = verdict.Reasons
	return Continue()
}

// scoreRisk evaluates the deterministic risk formula and applies the
// auto-assignment threshold.
func (c *Coordinator) scoreRisk(ctx context.Context, d *draft) Outcome {
	result := risk.Score(risk.Input{
		AISeverity:    d.verdict.Severity,
		AIConfidence:  d.verdict.Confidence,
		UserSeverity:  d.report.UserSeverity,
		TrafficImpact: d.report.TrafficImpact,
		Location: location.Intelligence{
			NearSchool:     d.report.NearSchool,
			NearHospital:   d.report.NearHospital,
			DuringRushHour: d.report.DuringRushHour,
		},
		GPSAccuracyM: d.report.GPSAccuracyM,
	})

	d.report.RiskScore = &result.Score
	d.report.RiskBreakdown = result.Breakdown

	if risk.ShouldAutoAssign(result.Score) {
		if c.config.DefaultOperatorID != nil {
			now := time.Now()
			d.report.WorkflowState = domain.WorkflowAssigned
			d.report.AssignedTo = c.config.DefaultOperatorID
			d.report.AssignedAt = &now
			metrics.ReportsAutoAssigned.Inc()
		} else {
			c.logger.Warn("Auto-assign threshold crossed but no default operator configured",
				"risk_score", result.Score,
			)
		}
	}
	return Continue()
}

// persist writes the approved report atomically, then records its
// fingerprint. A fingerprint write failure after the report commit is an
// accepted inconsistency: duplicate protection is best-effort, so the
// already-committed report is not unwound.
func (c *Coordinator) persist(ctx context.Context, d *draft) Outcome {
	id, err := c.reports.CreateReport(ctx, &d.report)
	if err != nil {
		return Fail(domain.Internal(err, "report.submit", "the report could not be saved"))
	}

	if _, err := c.fingerprints.CreateFingerprint(ctx, *d.report.ImageHash, id); err != nil {
		c.logger.Error("Failed to persist fingerprint for approved report",
			"report_id", id,
			"error", err,
		)
	}
	return Continue()
}

// adjudicationFailure maps adjudicator errors onto user-presentable
// failures, one message per status class.
func adjudicationFailure(err error) error {
	const op = "report.adjudicate"
	switch {
	case errors.Is(err, ai.EAIModelMissing):
		return domain.Unavailable(err, op, "The image check service is misconfigured. Please try again later.")
	case errors.Is(err, ai.EAIBusy):
		return domain.Unavailable(err, op, "The image check service is busy. Please try again in a moment.")
	case errors.Is(err, ai.EAIRateLimit):
		return domain.Errorf(domain.ERATELIMIT, op, "Too many submissions right now. Please try again shortly.")
	case errors.Is(err, ai.EAIUnauthorized):
		return domain.Internal(err, op, "The image check service could not be reached.")
	case errors.Is(err, ai.EAITruncated):
		return domain.Unavailable(err, op, "The image check response was cut off. Please try again.")
	case errors.Is(err, ai.EAISafetyBlocked):
		return domain.Invalid(op, "The image could not be checked due to content restrictions.")
	default:
		return domain.Unavailable(err, op, "The image could not be checked. Please try again.")
	}
}
