package models

import "time"

// User represents a registered principal stored in the users table.
type User struct {
	ID            string     `db:"id" json:"id"`
	Username      string     `db:"username" json:"username"`
	Email         string     `db:"email" json:"email"`
	PasswordHash  string     `db:"password_hash" json:"-"`
	Role          Role       `db:"role" json:"role"`
	StationID     *string    `db:"station_id" json:"station_id,omitempty"`
	Phone         *string    `db:"phone" json:"phone,omitempty"`
	ProfilePicRef *string    `db:"profile_pic_ref" json:"profile_pic_ref,omitempty"`
	LastLogin     *time.Time `db:"last_login" json:"last_login,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updated_at"`
}

// Principal builds the session principal for the stored user.
func (u *User) Principal() (Principal, error) {
	return PrincipalFor(u.ID, u.Username, u.Role, u.StationID)
}

// UserFilter captures filtering criteria for listing users.
type UserFilter struct {
	Role      *Role
	StationID string
	Search    string
	Page      int
	PageSize  int
}

// UserProfileUpdate lists the only columns a profile edit may touch.
type UserProfileUpdate struct {
	Email         *string
	Phone         *string
	ProfilePicRef *string
}
