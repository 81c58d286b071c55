package dto

import "time"

// EvidenceUploadResponse returns the opaque reference to attach to a FIR.
type EvidenceUploadResponse struct {
	FileRef     string `json:"file_ref"`
	Size        int64  `json:"size"`
	ContentType string `json:"content_type"`
}

// EvidenceLinkResponse carries a signed, expiring download token.
type EvidenceLinkResponse struct {
	Token     string    `json:"token"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}
