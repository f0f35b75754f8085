package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/oculoscan/oculoscan-api/internal/models"
)

func newScanRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func scanRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "patient_id", "assigned_doctor_id", "assigned_doctor_name", "status", "priority",
		"description", "symptoms", "medical_history", "has_image", "image_url", "clinician_note",
		"prediction", "analyzed_at", "created_at", "updated_at", "completed_at",
	})
}

func TestScanRequestRepositoryCreateAndGet(t *testing.T) {
	db, mock, cleanup := newScanRepoMock(t)
	defer cleanup()

	repo := NewScanRequestRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO scan_requests")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	request := &models.ScanRequest{
		PatientID:   "patient-1",
		Priority:    models.PriorityHigh,
		Description: "blurred vision in left eye",
	}
	require.NoError(t, repo.Create(context.Background(), request))
	require.NotEmpty(t, request.ID)
	require.Equal(t, models.ScanStatusPending, request.Status)

	now := time.Now()
	rows := scanRows().AddRow(request.ID, "patient-1", nil, nil, "pending", "high",
		"blurred vision in left eye", "", "", false, nil, nil, nil, nil, now, now, nil)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, patient_id, assigned_doctor_id")).
		WithArgs(request.ID).
		WillReturnRows(rows)

	found, err := repo.GetByID(context.Background(), request.ID)
	require.NoError(t, err)
	require.Equal(t, request.ID, found.ID)
	require.Equal(t, models.ScanStatusPending, found.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestScanRequestRepositoryListFilters(t *testing.T) {
	db, mock, cleanup := newScanRepoMock(t)
	defer cleanup()

	repo := NewScanRequestRepository(db)
	now := time.Now()
	rows := scanRows().AddRow("scan-1", "patient-1", nil, nil, "pending", "urgent",
		"sudden vision loss", "", "", false, nil, nil, nil, nil, now, now, nil)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, patient_id, assigned_doctor_id")).
		WithArgs("patient-1", "pending", "urgent").
		WillReturnRows(rows)

	list, err := repo.List(context.Background(), models.ScanRequestFilter{
		PatientID: "patient-1",
		Status:    []models.ScanStatus{models.ScanStatusPending},
		Priority:  []models.ScanPriority{models.PriorityUrgent},
	})
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, "scan-1", list[0].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestScanRequestRepositoryListOrdersNewestFirst(t *testing.T) {
	db, mock, cleanup := newScanRepoMock(t)
	defer cleanup()

	repo := NewScanRequestRepository(db)
	newer := time.Now()
	older := newer.Add(-time.Hour)
	rows := scanRows().
		AddRow("scan-2", "patient-1", nil, nil, "pending", "high",
			"flashes of light", "", "", false, nil, nil, nil, nil, newer, newer, nil).
		AddRow("scan-1", "patient-1", nil, nil, "pending", "low",
			"routine check", "", "", false, nil, nil, nil, nil, older, older, nil)
	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY created_at DESC, id DESC LIMIT 50 OFFSET 0")).
		WillReturnRows(rows)

	list, err := repo.List(context.Background(), models.ScanRequestFilter{})
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, "scan-2", list[0].ID)
	require.Equal(t, "scan-1", list[1].ID)
	require.True(t, list[0].CreatedAt.After(list[1].CreatedAt))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestScanRequestRepositoryAssignClaimsPendingRow(t *testing.T) {
	db, mock, cleanup := newScanRepoMock(t)
	defer cleanup()

	repo := NewScanRequestRepository(db)
	now := time.Now().UTC()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE scan_requests")).
		WithArgs("scan-1", "assigned", "doctor-1", "Dr. Reyes", now, "pending").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Assign(context.Background(), "scan-1", "doctor-1", "Dr. Reyes", now))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestScanRequestRepositoryAssignZeroRowsIsNoRows(t *testing.T) {
	db, mock, cleanup := newScanRepoMock(t)
	defer cleanup()

	repo := NewScanRequestRepository(db)
	now := time.Now().UTC()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE scan_requests")).
		WithArgs("scan-1", "assigned", "doctor-2", "Dr. Okafor", now, "pending").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Assign(context.Background(), "scan-1", "doctor-2", "Dr. Okafor", now)
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestScanRequestRepositorySaveClinicalNote(t *testing.T) {
	db, mock, cleanup := newScanRepoMock(t)
	defer cleanup()

	repo := NewScanRequestRepository(db)
	now := time.Now().UTC()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE scan_requests")).
		WithArgs("scan-1", "early cataract, schedule follow-up", now, "assigned", "reviewed").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.SaveClinicalNote(context.Background(), "scan-1", "early cataract, schedule follow-up", now))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestScanRequestRepositoryCompleteRequiresReviewed(t *testing.T) {
	db, mock, cleanup := newScanRepoMock(t)
	defer cleanup()

	repo := NewScanRequestRepository(db)
	now := time.Now().UTC()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE scan_requests")).
		WithArgs("scan-1", "completed", now, "reviewed").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Complete(context.Background(), "scan-1", now)
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestScanRequestRepositoryCancelKeepsRow(t *testing.T) {
	db, mock, cleanup := newScanRepoMock(t)
	defer cleanup()

	repo := NewScanRequestRepository(db)
	now := time.Now().UTC()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE scan_requests")).
		WithArgs("scan-1", "cancelled", now, "pending").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Cancel(context.Background(), "scan-1", now))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestScanRequestRepositoryCountByStatus(t *testing.T) {
	db, mock, cleanup := newScanRepoMock(t)
	defer cleanup()

	repo := NewScanRequestRepository(db)
	rows := sqlmock.NewRows([]string{"status", "count"}).
		AddRow("assigned", 2).
		AddRow("pending", 5)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT status, COUNT(*) AS count FROM scan_requests")).
		WithArgs("patient-1").
		WillReturnRows(rows)

	counts, err := repo.CountByStatus(context.Background(), models.ScanRequestFilter{PatientID: "patient-1"})
	require.NoError(t, err)
	require.Len(t, counts, 2)
	require.Equal(t, models.ScanStatusPending, counts[1].Status)
	require.Equal(t, 5, counts[1].Count)
	require.NoError(t, mock.ExpectationsWereMet())
}
