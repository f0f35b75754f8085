package models

import "time"

// ScanStatus enumerates lifecycle states of a scan request.
type ScanStatus string

const (
	ScanStatusPending   ScanStatus = "pending"
	ScanStatusAssigned  ScanStatus = "assigned"
	ScanStatusReviewed  ScanStatus = "reviewed"
	ScanStatusCompleted ScanStatus = "completed"
	ScanStatusCancelled ScanStatus = "cancelled"
)

// Valid reports whether the value is a known status.
func (s ScanStatus) Valid() bool {
	switch s {
	case ScanStatusPending, ScanStatusAssigned, ScanStatusReviewed, ScanStatusCompleted, ScanStatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether no further transition is defined from the status.
func (s ScanStatus) Terminal() bool {
	return s == ScanStatusCompleted || s == ScanStatusCancelled
}

// scanTransitions is the full transition relation of the lifecycle engine.
// The repository's conditional updates re-state these predicates in SQL; the
// service layer consults the map to reject doomed transitions before writing.
var scanTransitions = map[ScanStatus][]ScanStatus{
	ScanStatusPending:  {ScanStatusAssigned, ScanStatusCancelled},
	ScanStatusAssigned: {ScanStatusReviewed},
	ScanStatusReviewed: {ScanStatusCompleted},
}

// CanTransition reports whether the state machine defines from -> to.
func CanTransition(from, to ScanStatus) bool {
	for _, next := range scanTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ScanPriority is caller-supplied urgency. It never drives status.
type ScanPriority string

const (
	PriorityLow    ScanPriority = "low"
	PriorityMedium ScanPriority = "medium"
	PriorityHigh   ScanPriority = "high"
	PriorityUrgent ScanPriority = "urgent"
)

// Valid reports whether the value is a known priority.
func (p ScanPriority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// ScanRequest is the central entity of the diagnostic workflow.
type ScanRequest struct {
	ID                 string       `db:"id" json:"id"`
	PatientID          string       `db:"patient_id" json:"patient_id"`
	AssignedDoctorID   *string      `db:"assigned_doctor_id" json:"assigned_doctor_id,omitempty"`
	AssignedDoctorName *string      `db:"assigned_doctor_name" json:"assigned_doctor_name,omitempty"`
	Status             ScanStatus   `db:"status" json:"status"`
	Priority           ScanPriority `db:"priority" json:"priority"`
	Description        string       `db:"description" json:"description"`
	Symptoms           string       `db:"symptoms" json:"symptoms,omitempty"`
	MedicalHistory     string       `db:"medical_history" json:"medical_history,omitempty"`
	HasImage           bool         `db:"has_image" json:"has_image"`
	ImageURL           *string      `db:"image_url" json:"image_url,omitempty"`
	ClinicianNote      *string      `db:"clinician_note" json:"clinician_note,omitempty"`
	Prediction         []byte       `db:"prediction" json:"prediction,omitempty"`
	AnalyzedAt         *time.Time   `db:"analyzed_at" json:"analyzed_at,omitempty"`
	CreatedAt          time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time    `db:"updated_at" json:"updated_at"`
	CompletedAt        *time.Time   `db:"completed_at" json:"completed_at,omitempty"`
}

// ScanRequestFilter constrains listing queries. Scoping fields are set by the
// service from the actor, never by the caller directly.
type ScanRequestFilter struct {
	PatientID        string
	AssignedDoctorID string
	Status           []ScanStatus
	Priority         []ScanPriority
	Limit            int
	Offset           int
}

// StatusCount is a faceted count for dashboard filter badges.
type StatusCount struct {
	Status ScanStatus `db:"status" json:"status"`
	Count  int        `db:"count" json:"count"`
}

// PriorityCount is a faceted count for dashboard filter badges.
type PriorityCount struct {
	Priority ScanPriority `db:"priority" json:"priority"`
	Count    int          `db:"count" json:"count"`
}

// PredictionResult is the label->confidence distribution returned by the
// classifier. Advisory only; it never drives a status transition.
type PredictionResult struct {
	PredictedClass string             `json:"predicted_class"`
	Confidence     float64            `json:"confidence"`
	Probabilities  map[string]float64 `json:"class_probabilities"`
}
