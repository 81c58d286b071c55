package models

import "time"

// DashboardSummary holds FIR counts within the caller's scope. Users and
// Stations are only filled for administrators.
type DashboardSummary struct {
	Scope       string            `json:"scope"`
	TotalFIRs   int               `json:"total_firs"`
	ByStatus    map[FIRStatus]int `json:"by_status"`
	Users       *int              `json:"users,omitempty"`
	Stations    *int              `json:"stations,omitempty"`
	GeneratedAt time.Time         `json:"generated_at"`
}
