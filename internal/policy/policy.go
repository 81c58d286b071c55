// Package policy decides which principal may perform which action. It holds
// no state and performs no I/O: every decision is a function of the principal,
// the action and the target FIR.
package policy

import (
	"github.com/noah-isme/fir-api/internal/models"
	appErrors "github.com/noah-isme/fir-api/pkg/errors"
)

// Action is an operation subject to authorization.
type Action string

const (
	ActionFileFIR        Action = "fir:file"
	ActionReadFIR        Action = "fir:read"
	ActionDecideFIR      Action = "fir:decide"
	ActionOverrideFIR    Action = "fir:override"
	ActionDeleteFIR      Action = "fir:delete"
	ActionExportFIRs     Action = "fir:export"
	ActionManageStations Action = "station:manage"
	ActionManageUsers    Action = "user:manage"
	ActionReadAllAudit   Action = "audit:read_all"
)

// CanSee reports whether fir lies inside p's visibility scope.
func CanSee(p models.Principal, fir *models.FIR) bool {
	if fir == nil || !p.Authenticated() {
		return false
	}
	switch p.Role() {
	case models.RoleAdmin:
		return true
	case models.RolePolice:
		station, ok := p.StationID()
		return ok && fir.StationID == station
	case models.RoleUser:
		return fir.FilerID == p.ID()
	}
	return false
}

// Allowed is the authorization rule table. target is the FIR acted on and is
// nil for collection-level actions. Anything not matched is denied.
func Allowed(p models.Principal, action Action, target *models.FIR) bool {
	if !p.Authenticated() {
		return false
	}
	switch action {
	case ActionFileFIR:
		return p.IsCitizen()
	case ActionReadFIR:
		return CanSee(p, target)
	case ActionDecideFIR:
		return p.IsPolice() && CanSee(p, target)
	case ActionOverrideFIR, ActionDeleteFIR:
		return p.IsAdmin() && target != nil
	case ActionExportFIRs:
		return p.IsAdmin() || p.IsPolice()
	case ActionManageStations, ActionManageUsers, ActionReadAllAudit:
		return p.IsAdmin()
	}
	return false
}

// Decide maps a denial onto the error the caller should see. A FIR outside
// the caller's scope is reported as missing; an officer deciding another
// station's case is told it is forbidden, as is any caller acting on a FIR
// it can see but may not change.
func Decide(p models.Principal, action Action, target *models.FIR) error {
	if Allowed(p, action, target) {
		return nil
	}
	if !p.Authenticated() {
		return appErrors.ErrUnauthorized
	}
	if target == nil {
		return appErrors.ErrForbidden
	}
	if action == ActionDecideFIR && p.IsPolice() {
		return appErrors.Clone(appErrors.ErrForbidden, "fir belongs to another station")
	}
	if !CanSee(p, target) {
		return appErrors.Clone(appErrors.ErrNotFound, "fir not found")
	}
	return appErrors.ErrForbidden
}

// Visibility narrows filter to p's scope, overwriting any scope fields the
// caller supplied. ok is false for principals that may see nothing.
func Visibility(p models.Principal, filter models.FIRFilter) (models.FIRFilter, bool) {
	if !p.Authenticated() {
		return filter, false
	}
	switch p.Role() {
	case models.RoleAdmin:
		return filter, true
	case models.RolePolice:
		station, _ := p.StationID()
		filter.StationID = station
		filter.FilerID = ""
		return filter, true
	case models.RoleUser:
		filter.FilerID = p.ID()
		filter.StationID = ""
		return filter, true
	}
	return filter, false
}
