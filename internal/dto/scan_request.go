package dto

import "github.com/oculoscan/oculoscan-api/internal/models"

// CreateScanRequestRequest is the payload for opening a new scan request.
type CreateScanRequestRequest struct {
	Description    string              `json:"description" validate:"required"`
	Symptoms       string              `json:"symptoms"`
	MedicalHistory string              `json:"medical_history"`
	Priority       models.ScanPriority `json:"priority" validate:"required"`
}

// ClinicalNoteRequest carries the reviewer's note.
type ClinicalNoteRequest struct {
	Note string `json:"note" validate:"required"`
}

// ScanRequestQuery captures caller-controllable listing parameters. Role
// scoping is applied on top by the service and cannot be overridden here.
type ScanRequestQuery struct {
	Status   []models.ScanStatus
	Priority []models.ScanPriority
	// View selects between "all" and "mine" for clinicians.
	View   string
	Limit  int
	Offset int
}

// AttachImageResponse returns the updated request plus a signed download URL.
type AttachImageResponse struct {
	Request     *models.ScanRequest `json:"request"`
	DownloadURL string              `json:"download_url"`
}
