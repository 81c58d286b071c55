package models

import "time"

// FIRStatus enumerates the case lifecycle states.
type FIRStatus string

const (
	FIRStatusSent          FIRStatus = "SENT"
	FIRStatusPending       FIRStatus = "PENDING"
	FIRStatusInvestigating FIRStatus = "INVESTIGATING"
	FIRStatusApproved      FIRStatus = "APPROVED"
	FIRStatusRejected      FIRStatus = "REJECTED"
	FIRStatusClosed        FIRStatus = "CLOSED"
)

// AllFIRStatuses lists every status in lifecycle order.
var AllFIRStatuses = []FIRStatus{
	FIRStatusSent,
	FIRStatusPending,
	FIRStatusInvestigating,
	FIRStatusApproved,
	FIRStatusRejected,
	FIRStatusClosed,
}

// Valid reports whether s is a known status.
func (s FIRStatus) Valid() bool {
	for _, status := range AllFIRStatuses {
		if s == status {
			return true
		}
	}
	return false
}

// Terminal reports whether the ordinary workflow has no transition out of s.
func (s FIRStatus) Terminal() bool {
	return s == FIRStatusApproved || s == FIRStatusRejected || s == FIRStatusClosed
}

// FIR is a First Information Report. FilerID is fixed at creation.
type FIR struct {
	ID                 string    `db:"id" json:"id"`
	FilerID            string    `db:"filer_id" json:"filer_id"`
	StationID          string    `db:"station_id" json:"station_id"`
	CrimeType          string    `db:"crime_type" json:"crime_type"`
	Accused            string    `db:"accused" json:"accused"`
	ComplainantName    string    `db:"complainant_name" json:"name"`
	ComplainantAge     int       `db:"complainant_age" json:"age"`
	ComplainantPhone   string    `db:"complainant_phone" json:"phone"`
	ComplainantAddress string    `db:"complainant_address" json:"address"`
	Relation           string    `db:"relation" json:"relation"`
	Purpose            string    `db:"purpose" json:"purpose"`
	EvidenceRef        *string   `db:"evidence_ref" json:"evidence_ref,omitempty"`
	Status             FIRStatus `db:"status" json:"status"`
	DecisionNote       *string   `db:"decision_note" json:"decision_note,omitempty"`
	CreatedAt          time.Time `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time `db:"updated_at" json:"updated_at"`
}

// FIRFilter constrains FIR listing. FilerID and StationID carry the caller's
// visibility scope and are always applied before the optional filters.
type FIRFilter struct {
	FilerID   string
	StationID string
	Status    *FIRStatus
	CrimeType string
	Search    string
	Page      int
	PageSize  int
}

// StatusCount is one row of a per-status aggregate.
type StatusCount struct {
	Status FIRStatus `db:"status" json:"status"`
	Count  int       `db:"count" json:"count"`
}
