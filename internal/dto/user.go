package dto

// AddPoliceRequest is used by administrators to enrol an officer.
type AddPoliceRequest struct {
	Username  string `json:"username" validate:"required,username"`
	Email     string `json:"email" validate:"required,email,max=150"`
	Password  string `json:"password" validate:"required,min=6,max=72"`
	Phone     string `json:"phone" validate:"omitempty,max=30"`
	StationID string `json:"station_id" validate:"required,uuid"`
}

// UserQuery mirrors the user listing filters.
type UserQuery struct {
	Role      string
	StationID string
	Search    string
	Page      int
	PageSize  int
}

// BulkImportRow is one parsed line of a user import file.
type BulkImportRow struct {
	Line        int    `json:"line"`
	Username    string `json:"username" validate:"required,username"`
	Email       string `json:"email" validate:"required,email,max=150"`
	Password    string `json:"-" validate:"required,min=6,max=72"`
	Role        string `json:"role" validate:"required,role"`
	StationCode string `json:"station_code" validate:"omitempty,max=20"`
	Phone       string `json:"phone" validate:"omitempty,max=30"`
}

// BulkImportResult summarises a successful import.
type BulkImportResult struct {
	Imported int      `json:"imported"`
	UserIDs  []string `json:"user_ids"`
}
