package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/oculoscan/oculoscan-api/internal/models"
)

const scanColumns = `id, patient_id, assigned_doctor_id, assigned_doctor_name, status, priority,
       description, symptoms, medical_history, has_image, image_url, clinician_note,
       prediction, analyzed_at, created_at, updated_at, completed_at`

// ScanRequestRepository persists scan request lifecycle data. Every
// state-changing statement is a single conditional UPDATE whose WHERE clause
// re-states the transition precondition; zero affected rows means the
// precondition no longer held and surfaces as sql.ErrNoRows.
type ScanRequestRepository struct {
	db *sqlx.DB
}

// NewScanRequestRepository constructs the repository.
func NewScanRequestRepository(db *sqlx.DB) *ScanRequestRepository {
	return &ScanRequestRepository{db: db}
}

// Create inserts a new scan request row.
func (r *ScanRequestRepository) Create(ctx context.Context, request *models.ScanRequest) error {
	if request.ID == "" {
		request.ID = uuid.NewString()
	}
	if request.Status == "" {
		request.Status = models.ScanStatusPending
	}
	now := time.Now().UTC()
	if request.CreatedAt.IsZero() {
		request.CreatedAt = now
	}
	if request.UpdatedAt.IsZero() {
		request.UpdatedAt = now
	}
	const query = `INSERT INTO scan_requests
	(id, patient_id, assigned_doctor_id, assigned_doctor_name, status, priority, description, symptoms,
	 medical_history, has_image, image_url, clinician_note, prediction, analyzed_at, created_at, updated_at, completed_at)
	VALUES (:id, :patient_id, :assigned_doctor_id, :assigned_doctor_name, :status, :priority, :description, :symptoms,
	 :medical_history, :has_image, :image_url, :clinician_note, :prediction, :analyzed_at, :created_at, :updated_at, :completed_at)`
	if _, err := r.db.NamedExecContext(ctx, query, request); err != nil {
		return fmt.Errorf("create scan request: %w", err)
	}
	return nil
}

// GetByID fetches a scan request by identifier.
func (r *ScanRequestRepository) GetByID(ctx context.Context, id string) (*models.ScanRequest, error) {
	query := fmt.Sprintf(`SELECT %s FROM scan_requests WHERE id = $1`, scanColumns)
	var request models.ScanRequest
	if err := r.db.GetContext(ctx, &request, query, id); err != nil {
		return nil, err
	}
	return &request, nil
}

// List returns scan requests matching the filter, newest first with ties
// broken by id so pagination stays deterministic.
func (r *ScanRequestRepository) List(ctx context.Context, filter models.ScanRequestFilter) ([]models.ScanRequest, error) {
	builder := strings.Builder{}
	builder.WriteString(fmt.Sprintf("SELECT %s FROM scan_requests", scanColumns))

	conditions, args := scanFilterConditions(filter)
	if len(conditions) > 0 {
		builder.WriteString(" WHERE ")
		builder.WriteString(strings.Join(conditions, " AND "))
	}
	builder.WriteString(" ORDER BY created_at DESC, id DESC")

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	builder.WriteString(fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset))

	var requests []models.ScanRequest
	if err := r.db.SelectContext(ctx, &requests, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list scan requests: %w", err)
	}
	return requests, nil
}

// CountByStatus returns faceted counts grouped by status.
func (r *ScanRequestRepository) CountByStatus(ctx context.Context, filter models.ScanRequestFilter) ([]models.StatusCount, error) {
	builder := strings.Builder{}
	builder.WriteString("SELECT status, COUNT(*) AS count FROM scan_requests")
	conditions, args := scanFilterConditions(filter)
	if len(conditions) > 0 {
		builder.WriteString(" WHERE ")
		builder.WriteString(strings.Join(conditions, " AND "))
	}
	builder.WriteString(" GROUP BY status ORDER BY status")

	var counts []models.StatusCount
	if err := r.db.SelectContext(ctx, &counts, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("count scan requests by status: %w", err)
	}
	return counts, nil
}

// CountByPriority returns faceted counts grouped by priority.
func (r *ScanRequestRepository) CountByPriority(ctx context.Context, filter models.ScanRequestFilter) ([]models.PriorityCount, error) {
	builder := strings.Builder{}
	builder.WriteString("SELECT priority, COUNT(*) AS count FROM scan_requests")
	conditions, args := scanFilterConditions(filter)
	if len(conditions) > 0 {
		builder.WriteString(" WHERE ")
		builder.WriteString(strings.Join(conditions, " AND "))
	}
	builder.WriteString(" GROUP BY priority ORDER BY priority")

	var counts []models.PriorityCount
	if err := r.db.SelectContext(ctx, &counts, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("count scan requests by priority: %w", err)
	}
	return counts, nil
}

// Assign claims a pending request for the given doctor. The status predicate
// is the whole concurrency contract: of N concurrent attempts at most one
// UPDATE matches, the rest observe zero rows and get sql.ErrNoRows.
func (r *ScanRequestRepository) Assign(ctx context.Context, id, doctorID, doctorName string, at time.Time) error {
	const query = `UPDATE scan_requests
	SET status = $2, assigned_doctor_id = $3, assigned_doctor_name = $4, updated_at = $5
	WHERE id = $1 AND status = $6`
	result, err := r.db.ExecContext(ctx, query, id, models.ScanStatusAssigned, doctorID, doctorName, at, models.ScanStatusPending)
	if err != nil {
		return fmt.Errorf("assign scan request: %w", err)
	}
	return checkAffected(result)
}

// AttachImage records a stored image reference. Allowed while the request has
// no analyzed image and is not in a terminal state.
func (r *ScanRequestRepository) AttachImage(ctx context.Context, id, imageURL string, at time.Time) error {
	const query = `UPDATE scan_requests
	SET has_image = TRUE, image_url = $2, updated_at = $3
	WHERE id = $1 AND status IN ($4, $5) AND (has_image = FALSE OR analyzed_at IS NULL)`
	result, err := r.db.ExecContext(ctx, query, id, imageURL, at, models.ScanStatusPending, models.ScanStatusAssigned)
	if err != nil {
		return fmt.Errorf("attach scan image: %w", err)
	}
	return checkAffected(result)
}

// RecordAnalysis stores the prediction distribution for an assigned request.
// Status is untouched; the prediction is advisory.
func (r *ScanRequestRepository) RecordAnalysis(ctx context.Context, id string, prediction []byte, at time.Time) error {
	const query = `UPDATE scan_requests
	SET prediction = $2, analyzed_at = $3, updated_at = $3
	WHERE id = $1 AND status = $4`
	result, err := r.db.ExecContext(ctx, query, id, prediction, at, models.ScanStatusAssigned)
	if err != nil {
		return fmt.Errorf("record scan analysis: %w", err)
	}
	return checkAffected(result)
}

// SaveClinicalNote writes the note and, when it is the first non-empty note on
// an assigned request, advances status to reviewed in the same statement.
func (r *ScanRequestRepository) SaveClinicalNote(ctx context.Context, id, note string, at time.Time) error {
	const query = `UPDATE scan_requests
	SET clinician_note = $2,
	    status = CASE WHEN $2 <> '' AND status = $4 THEN $5 ELSE status END,
	    updated_at = $3
	WHERE id = $1 AND status IN ($4, $5)`
	result, err := r.db.ExecContext(ctx, query, id, note, at, models.ScanStatusAssigned, models.ScanStatusReviewed)
	if err != nil {
		return fmt.Errorf("save clinical note: %w", err)
	}
	return checkAffected(result)
}

// Complete closes a reviewed request.
func (r *ScanRequestRepository) Complete(ctx context.Context, id string, at time.Time) error {
	const query = `UPDATE scan_requests
	SET status = $2, completed_at = $3, updated_at = $3
	WHERE id = $1 AND status = $4`
	result, err := r.db.ExecContext(ctx, query, id, models.ScanStatusCompleted, at, models.ScanStatusReviewed)
	if err != nil {
		return fmt.Errorf("complete scan request: %w", err)
	}
	return checkAffected(result)
}

// Cancel marks a pending request cancelled. Soft delete: the row is kept for
// the audit trail.
func (r *ScanRequestRepository) Cancel(ctx context.Context, id string, at time.Time) error {
	const query = `UPDATE scan_requests
	SET status = $2, updated_at = $3
	WHERE id = $1 AND status = $4`
	result, err := r.db.ExecContext(ctx, query, id, models.ScanStatusCancelled, at, models.ScanStatusPending)
	if err != nil {
		return fmt.Errorf("cancel scan request: %w", err)
	}
	return checkAffected(result)
}

func scanFilterConditions(filter models.ScanRequestFilter) ([]string, []interface{}) {
	conditions := make([]string, 0, 4)
	args := make([]interface{}, 0, 6)

	if filter.PatientID != "" {
		args = append(args, filter.PatientID)
		conditions = append(conditions, fmt.Sprintf("patient_id = $%d", len(args)))
	}
	if filter.AssignedDoctorID != "" {
		args = append(args, filter.AssignedDoctorID)
		conditions = append(conditions, fmt.Sprintf("assigned_doctor_id = $%d", len(args)))
	}
	if len(filter.Status) > 0 {
		placeholders := make([]string, len(filter.Status))
		for i, status := range filter.Status {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		conditions = append(conditions, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if len(filter.Priority) > 0 {
		placeholders := make([]string, len(filter.Priority))
		for i, priority := range filter.Priority {
			args = append(args, priority)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		conditions = append(conditions, fmt.Sprintf("priority IN (%s)", strings.Join(placeholders, ",")))
	}
	return conditions, args
}

func checkAffected(result sql.Result) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check affected rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}
