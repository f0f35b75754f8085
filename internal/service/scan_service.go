package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/oculoscan/oculoscan-api/internal/dto"
	"github.com/oculoscan/oculoscan-api/internal/models"
	appErrors "github.com/oculoscan/oculoscan-api/pkg/errors"
)

type scanRequestStore interface {
	Create(ctx context.Context, request *models.ScanRequest) error
	GetByID(ctx context.Context, id string) (*models.ScanRequest, error)
	List(ctx context.Context, filter models.ScanRequestFilter) ([]models.ScanRequest, error)
	Assign(ctx context.Context, id, doctorID, doctorName string, at time.Time) error
	AttachImage(ctx context.Context, id, imageURL string, at time.Time) error
	RecordAnalysis(ctx context.Context, id string, prediction []byte, at time.Time) error
	SaveClinicalNote(ctx context.Context, id, note string, at time.Time) error
	Complete(ctx context.Context, id string, at time.Time) error
	Cancel(ctx context.Context, id string, at time.Time) error
}

type scanAuditLogger interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

type imageStore interface {
	SaveStream(filename string, r io.Reader) (string, error)
	Open(filename string) (io.ReadCloser, error)
}

type imageSigner interface {
	Generate(scanID, relPath string) (string, time.Time, error)
}

type classifier interface {
	Classify(ctx context.Context, filename string, image io.Reader) (*models.PredictionResult, error)
}

// ScanServiceConfig tunes upload validation.
type ScanServiceConfig struct {
	MaxImageSizeBytes int64
}

// ScanService is the lifecycle engine: it owns every status transition of a
// scan request and is the only writer of status, assigned_doctor_id and
// completed_at. Callers always pass the acting identity explicitly.
type ScanService struct {
	repo      scanRequestStore
	audit     scanAuditLogger
	images    imageStore
	signer    imageSigner
	predictor classifier
	notifier  TerminalNotifier
	cache     *CacheService
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
	cfg       ScanServiceConfig
}

// ScanServiceParams groups constructor dependencies.
type ScanServiceParams struct {
	Repo      scanRequestStore
	Audit     scanAuditLogger
	Images    imageStore
	Signer    imageSigner
	Predictor classifier
	Notifier  TerminalNotifier
	Cache     *CacheService
	Metrics   *MetricsService
	Validator *validator.Validate
	Logger    *zap.Logger
	Config    ScanServiceConfig
}

// NewScanService constructs the lifecycle engine with sane defaults.
func NewScanService(params ScanServiceParams) *ScanService {
	cfg := params.Config
	if cfg.MaxImageSizeBytes <= 0 {
		cfg.MaxImageSizeBytes = 10 * 1024 * 1024
	}
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	validate := params.Validator
	if validate == nil {
		validate = validator.New()
	}
	notifier := params.Notifier
	if notifier == nil {
		notifier = NewLogNotifier(logger)
	}
	return &ScanService{
		repo:      params.Repo,
		audit:     params.Audit,
		images:    params.Images,
		signer:    params.Signer,
		predictor: params.Predictor,
		notifier:  notifier,
		cache:     params.Cache,
		metrics:   params.Metrics,
		validator: validate,
		logger:    logger,
		now:       time.Now,
		cfg:       cfg,
	}
}

// CreateRequest opens a new scan request for the acting patient.
func (s *ScanService) CreateRequest(ctx context.Context, actor models.Actor, req dto.CreateScanRequestRequest) (*models.ScanRequest, error) {
	if actor.Role != models.RolePatient {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "only patients can open scan requests")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid scan request payload")
	}
	if strings.TrimSpace(req.Description) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "description is required")
	}
	if !req.Priority.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "priority must be one of low, medium, high, urgent")
	}

	request := &models.ScanRequest{
		PatientID:      actor.ID,
		Status:         models.ScanStatusPending,
		Priority:       req.Priority,
		Description:    strings.TrimSpace(req.Description),
		Symptoms:       strings.TrimSpace(req.Symptoms),
		MedicalHistory: strings.TrimSpace(req.MedicalHistory),
	}
	if err := s.repo.Create(ctx, request); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create scan request")
	}
	s.emitAudit(ctx, actor.ID, models.AuditActionScanCreate, request.ID, map[string]interface{}{"priority": request.Priority})
	s.invalidateDashboards(ctx)
	return request, nil
}

// Get returns a scan request enforcing read scope.
func (s *ScanService) Get(ctx context.Context, id string, actor models.Actor) (*models.ScanRequest, error) {
	request, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if actor.Role == models.RolePatient && request.PatientID != actor.ID {
		return nil, appErrors.ErrForbidden
	}
	return request, nil
}

// List returns the role-scoped listing consumed by dashboards. Patients only
// ever see their own requests; the "mine" view narrows clinicians to requests
// assigned to them. The surface is read-only.
func (s *ScanService) List(ctx context.Context, query dto.ScanRequestQuery, actor models.Actor) ([]models.ScanRequest, error) {
	filter := models.ScanRequestFilter{
		Status:   query.Status,
		Priority: query.Priority,
		Limit:    query.Limit,
		Offset:   query.Offset,
	}
	switch actor.Role {
	case models.RolePatient:
		filter.PatientID = actor.ID
	case models.RoleDoctor, models.RoleAdmin:
		if query.View == "mine" {
			filter.AssignedDoctorID = actor.ID
		}
	default:
		return nil, appErrors.ErrForbidden
	}
	requests, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list scan requests")
	}
	return requests, nil
}

// AssignToSelf claims a pending request for the acting clinician. The write
// is a single conditional update; this method never reads first and writes
// second, losing the race surfaces as AssignmentConflict.
func (s *ScanService) AssignToSelf(ctx context.Context, id string, actor models.Actor) (*models.ScanRequest, error) {
	if !actor.IsClinician() {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "only doctors and admins can claim scan requests")
	}
	err := s.repo.Assign(ctx, id, actor.ID, actor.DisplayName, s.now().UTC())
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to assign scan request")
		}
		// Zero rows: the request is gone or no longer pending. Only now is a
		// read needed, purely to pick the right error.
		current, loadErr := s.load(ctx, id)
		if loadErr != nil {
			return nil, loadErr
		}
		if current.Status == models.ScanStatusCancelled {
			return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "scan request was cancelled")
		}
		if s.metrics != nil {
			s.metrics.RecordAssignmentConflict()
		}
		return nil, appErrors.ErrAssignmentConflict
	}
	if s.metrics != nil {
		s.metrics.RecordTransition(string(models.ScanStatusPending), string(models.ScanStatusAssigned))
	}
	s.emitAudit(ctx, actor.ID, models.AuditActionScanAssign, id, map[string]interface{}{"doctor": actor.DisplayName})
	s.invalidateDashboards(ctx)
	return s.load(ctx, id)
}

// AttachImage validates, stores and records a scan image. The size ceiling is
// enforced before the storage collaborator is touched.
func (s *ScanService) AttachImage(ctx context.Context, id string, actor models.Actor, filename string, size int64, image io.Reader) (*dto.AttachImageResponse, error) {
	if size > s.cfg.MaxImageSizeBytes {
		return nil, appErrors.Clone(appErrors.ErrImageTooLarge,
			fmt.Sprintf("image exceeds the %d byte limit", s.cfg.MaxImageSizeBytes))
	}
	request, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if actor.Role == models.RolePatient && request.PatientID != actor.ID {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "patients can only attach images to their own requests")
	}
	if !actor.IsClinician() && actor.Role != models.RolePatient {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "role may not attach images")
	}
	if request.Status != models.ScanStatusPending && request.Status != models.ScanStatusAssigned {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "images can only be attached before review")
	}
	if request.HasImage && request.AnalyzedAt != nil {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "an analyzed image cannot be replaced")
	}

	ext := filepath.Ext(filename)
	if ext == "" {
		ext = ".png"
	}
	relPath := fmt.Sprintf("images/%s%s", id, ext)
	// io.LimitReader guards against callers lying about the declared size.
	if _, err := s.images.SaveStream(relPath, io.LimitReader(image, s.cfg.MaxImageSizeBytes)); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrStorage.Code, appErrors.ErrStorage.Status, "failed to store scan image")
	}
	if err := s.repo.AttachImage(ctx, id, relPath, s.now().UTC()); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "scan request state changed during upload")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record scan image")
	}

	updated, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	downloadURL := ""
	if s.signer != nil {
		token, _, signErr := s.signer.Generate(id, relPath)
		if signErr != nil {
			s.logger.Warn("failed to sign image url", zap.Error(signErr))
		} else {
			downloadURL = fmt.Sprintf("/scan-requests/images/%s", token)
		}
	}
	s.emitAudit(ctx, actor.ID, models.AuditActionScanImage, id, map[string]interface{}{"path": relPath})
	return &dto.AttachImageResponse{Request: updated, DownloadURL: downloadURL}, nil
}

// RecordAnalysis stores a prediction distribution on an assigned request.
// When result is nil the stored image is sent to the classifier first. The
// prediction is advisory and never changes status.
func (s *ScanService) RecordAnalysis(ctx context.Context, id string, actor models.Actor, result *models.PredictionResult) (*models.ScanRequest, error) {
	request, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.requireReviewer(request, actor, false); err != nil {
		return nil, err
	}
	if request.Status != models.ScanStatusAssigned {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "analysis requires an assigned request")
	}

	if result == nil {
		if request.ImageURL == nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "no image attached to analyze")
		}
		file, openErr := s.images.Open(*request.ImageURL)
		if openErr != nil {
			return nil, appErrors.Wrap(openErr, appErrors.ErrStorage.Code, appErrors.ErrStorage.Status, "failed to open scan image")
		}
		defer file.Close() //nolint:errcheck
		result, err = s.predictor.Classify(ctx, filepath.Base(*request.ImageURL), file)
		if err != nil {
			return nil, err
		}
	}

	payload, err := json.Marshal(result)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to encode prediction")
	}
	if err := s.repo.RecordAnalysis(ctx, id, payload, s.now().UTC()); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "scan request is no longer assigned")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record analysis")
	}
	s.emitAudit(ctx, actor.ID, models.AuditActionScanAnalysis, id, map[string]interface{}{"predicted_class": result.PredictedClass})
	return s.load(ctx, id)
}

// SaveClinicalNote stores the reviewer's note. The first non-empty note on an
// assigned request advances it to reviewed; saving again only rewrites the
// note text.
func (s *ScanService) SaveClinicalNote(ctx context.Context, id string, actor models.Actor, req dto.ClinicalNoteRequest) (*models.ScanRequest, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid note payload")
	}
	note := strings.TrimSpace(req.Note)
	if note == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "note must not be empty")
	}
	request, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.requireReviewer(request, actor, true); err != nil {
		return nil, err
	}
	if request.Status != models.ScanStatusAssigned && request.Status != models.ScanStatusReviewed {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "notes can only be saved during review")
	}
	wasAssigned := request.Status == models.ScanStatusAssigned

	if err := s.repo.SaveClinicalNote(ctx, id, note, s.now().UTC()); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "scan request left the review stage")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save clinical note")
	}
	if wasAssigned && s.metrics != nil {
		s.metrics.RecordTransition(string(models.ScanStatusAssigned), string(models.ScanStatusReviewed))
	}
	s.emitAudit(ctx, actor.ID, models.AuditActionScanNote, id, nil)
	s.invalidateDashboards(ctx)
	return s.load(ctx, id)
}

// Complete closes a reviewed request and stamps completion time.
func (s *ScanService) Complete(ctx context.Context, id string, actor models.Actor) (*models.ScanRequest, error) {
	request, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.requireReviewer(request, actor, false); err != nil {
		return nil, err
	}
	if !models.CanTransition(request.Status, models.ScanStatusCompleted) {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "only reviewed requests can be completed")
	}
	if err := s.repo.Complete(ctx, id, s.now().UTC()); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "only reviewed requests can be completed")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to complete scan request")
	}
	if s.metrics != nil {
		s.metrics.RecordTransition(string(models.ScanStatusReviewed), string(models.ScanStatusCompleted))
	}
	s.emitAudit(ctx, actor.ID, models.AuditActionScanComplete, id, nil)
	s.invalidateDashboards(ctx)

	updated, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	s.notifier.NotifyTerminal(ctx, updated)
	return updated, nil
}

// Cancel marks a pending request cancelled. Patients may cancel their own
// requests, clinicians any pending request. The row is kept (soft delete).
func (s *ScanService) Cancel(ctx context.Context, id string, actor models.Actor) error {
	request, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if actor.Role == models.RolePatient && request.PatientID != actor.ID {
		return appErrors.Clone(appErrors.ErrInvalidTransition, "patients can only cancel their own requests")
	}
	if !models.CanTransition(request.Status, models.ScanStatusCancelled) {
		return appErrors.Clone(appErrors.ErrInvalidTransition, "only pending requests can be cancelled")
	}
	if err := s.repo.Cancel(ctx, id, s.now().UTC()); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrInvalidTransition, "only pending requests can be cancelled")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to cancel scan request")
	}
	if s.metrics != nil {
		s.metrics.RecordTransition(string(models.ScanStatusPending), string(models.ScanStatusCancelled))
	}
	s.emitAudit(ctx, actor.ID, models.AuditActionScanCancel, id, nil)
	s.invalidateDashboards(ctx)

	if cancelled, loadErr := s.load(ctx, id); loadErr == nil {
		s.notifier.NotifyTerminal(ctx, cancelled)
	}
	return nil
}

func (s *ScanService) load(ctx context.Context, id string) (*models.ScanRequest, error) {
	request, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load scan request")
	}
	return request, nil
}

// requireReviewer checks the clinician side of a transition. When strict is
// true even admins must be the assigned doctor (clinical notes); otherwise
// admins may act on any request.
func (s *ScanService) requireReviewer(request *models.ScanRequest, actor models.Actor, strict bool) error {
	if !actor.IsClinician() {
		return appErrors.Clone(appErrors.ErrInvalidTransition, "only doctors and admins can review scan requests")
	}
	if request.AssignedDoctorID == nil {
		return nil
	}
	if *request.AssignedDoctorID == actor.ID {
		return nil
	}
	if actor.Role == models.RoleAdmin && !strict {
		return nil
	}
	return appErrors.Clone(appErrors.ErrInvalidTransition, "request is assigned to another reviewer")
}

func (s *ScanService) emitAudit(ctx context.Context, actorID, action, requestID string, details map[string]interface{}) {
	if s.audit == nil {
		return
	}
	var payload []byte
	if details != nil {
		payload, _ = json.Marshal(details)
	}
	if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &actorID,
		Action:     action,
		Resource:   "scan_request",
		ResourceID: &requestID,
		NewValues:  payload,
	}); err != nil {
		s.logger.Warn("failed to record audit log", zap.String("action", action), zap.Error(err))
	}
}

func (s *ScanService) invalidateDashboards(ctx context.Context) {
	if s.cache == nil {
		return
	}
	_ = s.cache.Invalidate(ctx, "dash:scans:*")
}
