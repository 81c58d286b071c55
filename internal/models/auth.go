package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// LoginRequest holds credentials and the role the caller claims to hold.
type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
	Role     string `json:"role" validate:"required"`
}

// LoginResponse returns the issued token and the bound principal.
type LoginResponse struct {
	AccessToken string        `json:"access_token"`
	TokenType   string        `json:"token_type"`
	ExpiresIn   int64         `json:"expires_in"`
	Principal   PrincipalInfo `json:"principal"`
	IssuedAt    time.Time     `json:"issued_at"`
}

// RegisterRequest is the self-registration payload.
type RegisterRequest struct {
	Username  string `json:"username" validate:"required,username"`
	Email     string `json:"email" validate:"required,email,max=150"`
	Password  string `json:"password" validate:"required,min=6,max=72"`
	Phone     string `json:"phone" validate:"omitempty,max=30"`
	Role      string `json:"role" validate:"required,role"`
	StationID string `json:"station_id" validate:"omitempty,uuid"`
}

// ChangePasswordRequest payload for updating password.
type ChangePasswordRequest struct {
	OldPassword     string `json:"old_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,min=6,max=72"`
	ConfirmPassword string `json:"confirm_password" validate:"required,eqfield=NewPassword"`
}

// UpdateProfileRequest lists the fields a principal may edit on itself.
type UpdateProfileRequest struct {
	Email         *string `json:"email" validate:"omitempty,email,max=150"`
	Phone         *string `json:"phone" validate:"omitempty,max=30"`
	ProfilePicRef *string `json:"profile_pic_ref" validate:"omitempty,max=255"`
}

// JWTClaims is the access token payload: the principal snapshot plus the
// session id in the registered jti claim.
type JWTClaims struct {
	Username  string  `json:"username"`
	Role      Role    `json:"role"`
	StationID *string `json:"station_id,omitempty"`
	jwt.RegisteredClaims
}
