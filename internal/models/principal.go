package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Role is the closed set of principal roles.
type Role string

const (
	RoleAdmin  Role = "ADMIN"
	RolePolice Role = "POLICE"
	RoleUser   Role = "USER"
)

// ErrStationRequired is returned when a police principal is built without a station.
var ErrStationRequired = errors.New("police principal requires a station")

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RolePolice, RoleUser:
		return true
	}
	return false
}

// ParseRole normalises a role name; matching is case-insensitive.
func ParseRole(raw string) (Role, error) {
	role := Role(strings.ToUpper(strings.TrimSpace(raw)))
	if !role.Valid() {
		return "", fmt.Errorf("unknown role %q", raw)
	}
	return role, nil
}

// Principal is the authenticated actor a request runs as. Its fields are only
// settable through the constructors, so a police principal always carries a
// station. The zero value is the anonymous principal and is denied everything.
type Principal struct {
	id        string
	username  string
	role      Role
	stationID string
}

// NewAdmin returns an administrator principal.
func NewAdmin(id, username string) Principal {
	return Principal{id: id, username: username, role: RoleAdmin}
}

// NewPolice returns an officer principal scoped to stationID.
func NewPolice(id, username, stationID string) (Principal, error) {
	if strings.TrimSpace(stationID) == "" {
		return Principal{}, ErrStationRequired
	}
	return Principal{id: id, username: username, role: RolePolice, stationID: stationID}, nil
}

// NewCitizen returns a principal for a regular user filing reports.
func NewCitizen(id, username string) Principal {
	return Principal{id: id, username: username, role: RoleUser}
}

// PrincipalFor rebuilds a principal from persisted or token data.
func PrincipalFor(id, username string, role Role, stationID *string) (Principal, error) {
	if id == "" {
		return Principal{}, errors.New("principal id required")
	}
	switch role {
	case RoleAdmin:
		return NewAdmin(id, username), nil
	case RolePolice:
		if stationID == nil {
			return Principal{}, ErrStationRequired
		}
		return NewPolice(id, username, *stationID)
	case RoleUser:
		return NewCitizen(id, username), nil
	}
	return Principal{}, fmt.Errorf("unknown role %q", role)
}

func (p Principal) ID() string       { return p.id }
func (p Principal) Username() string { return p.username }
func (p Principal) Role() Role       { return p.role }

// StationID returns the station scope; ok is false for non-police principals.
func (p Principal) StationID() (string, bool) {
	return p.stationID, p.role == RolePolice
}

func (p Principal) Authenticated() bool { return p.id != "" && p.role.Valid() }
func (p Principal) IsAdmin() bool       { return p.Authenticated() && p.role == RoleAdmin }
func (p Principal) IsPolice() bool      { return p.Authenticated() && p.role == RolePolice }
func (p Principal) IsCitizen() bool     { return p.Authenticated() && p.role == RoleUser }

// PrincipalInfo is the wire representation of a principal.
type PrincipalInfo struct {
	ID        string  `json:"id"`
	Username  string  `json:"username"`
	Role      Role    `json:"role"`
	StationID *string `json:"station_id,omitempty"`
}

// Info returns the serialisable view of p.
func (p Principal) Info() PrincipalInfo {
	info := PrincipalInfo{ID: p.id, Username: p.username, Role: p.role}
	if station, ok := p.StationID(); ok {
		info.StationID = &station
	}
	return info
}

// MarshalJSON renders the principal through PrincipalInfo.
func (p Principal) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.Info())
}
