package models

import "time"

// AuditAction identifies the kind of state change an audit entry records.
type AuditAction string

const (
	AuditActionLogin           AuditAction = "LOGIN"
	AuditActionUserCreated     AuditAction = "USER_CREATED"
	AuditActionPoliceAdded     AuditAction = "POLICE_ADDED"
	AuditActionBulkUserImport  AuditAction = "BULK_USER_IMPORT"
	AuditActionUserDeleted     AuditAction = "USER_DELETED"
	AuditActionProfileUpdated  AuditAction = "PROFILE_UPDATED"
	AuditActionPasswordChanged AuditAction = "PASSWORD_CHANGED"
	AuditActionStationCreated  AuditAction = "STATION_CREATED"
	AuditActionStationUpdated  AuditAction = "STATION_UPDATED"
	AuditActionStationDeleted  AuditAction = "STATION_DELETED"
	AuditActionFIRCreated      AuditAction = "FIR_CREATED"
	AuditActionFIRApproved     AuditAction = "FIR_APPROVED"
	AuditActionFIRRejected     AuditAction = "FIR_REJECTED"
	AuditActionFIRStatusChange AuditAction = "FIR_STATUS_CHANGED"
	AuditActionFIRDeleted      AuditAction = "FIR_DELETED"
)

// Audit entity types.
const (
	EntityUser    = "USER"
	EntityStation = "STATION"
	EntityFIR     = "FIR"
)

// AuditLog is one immutable audit trail entry. IDs increase in commit order.
type AuditLog struct {
	ID          int64       `db:"id" json:"id"`
	ActorID     *string     `db:"actor_id" json:"actor_id,omitempty"`
	Action      AuditAction `db:"action" json:"action"`
	Summary     string      `db:"summary" json:"summary"`
	Description string      `db:"description" json:"description"`
	EntityType  string      `db:"entity_type" json:"entity_type"`
	EntityID    string      `db:"entity_id" json:"entity_id"`
	CreatedAt   time.Time   `db:"created_at" json:"created_at"`
}

// AuditFilter narrows the activity feed.
type AuditFilter struct {
	ActorID string
	Limit   int
}
