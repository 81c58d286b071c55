package dto

import "github.com/noah-isme/fir-api/internal/models"

// FileFIRRequest is the payload a citizen submits to file a report.
type FileFIRRequest struct {
	StationID string  `json:"station_id" validate:"required,uuid"`
	CrimeType string  `json:"crime_type" validate:"required,max=100"`
	Accused   string  `json:"accused" validate:"required,max=2000"`
	Name      string  `json:"name" validate:"required,max=150"`
	Age       int     `json:"age" validate:"required,gt=0,lt=150"`
	Phone     string  `json:"phone" validate:"required,max=30"`
	Address   string  `json:"address" validate:"required,max=500"`
	Relation  string  `json:"relation" validate:"required,max=100"`
	Purpose   string  `json:"purpose" validate:"required,max=5000"`
	FileRef   *string `json:"file_ref" validate:"omitempty,max=255"`
}

// RejectFIRRequest optionally carries the officer's rejection note.
type RejectFIRRequest struct {
	Note string `json:"note" validate:"omitempty,max=1000"`
}

// StatusOverrideRequest is the administrator's status override payload.
type StatusOverrideRequest struct {
	Status models.FIRStatus `json:"status" validate:"required"`
}

// FIRScope is the advisory listing scope a caller asks for.
type FIRScope string

const (
	FIRScopeMine    FIRScope = "mine"
	FIRScopeStation FIRScope = "station"
	FIRScopeAll     FIRScope = "all"
)

// FIRQuery mirrors the supported listing query parameters.
type FIRQuery struct {
	Scope     FIRScope
	Status    string
	StationID string
	CrimeType string
	Search    string
	Page      int
	PageSize  int
}

// ExportFormat names a register export encoding.
type ExportFormat string

const (
	ExportFormatCSV ExportFormat = "csv"
	ExportFormatPDF ExportFormat = "pdf"
)

// ExportFile is a rendered register export.
type ExportFile struct {
	Filename    string
	ContentType string
	Content     []byte
}
