package dto

// StationRequest creates or replaces a station's editable fields.
type StationRequest struct {
	Code     string `json:"code" validate:"required,alphanum,max=20"`
	Name     string `json:"name" validate:"required,max=150"`
	City     string `json:"city" validate:"required,max=100"`
	State    string `json:"state" validate:"required,max=100"`
	Phone    string `json:"phone" validate:"omitempty,max=30"`
	Email    string `json:"email" validate:"omitempty,email,max=150"`
	Address  string `json:"address" validate:"omitempty,max=500"`
	InCharge string `json:"in_charge" validate:"omitempty,max=150"`
}
