package handler

import (
	"context"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/fir-api/internal/dto"
	"github.com/noah-isme/fir-api/internal/models"
	appErrors "github.com/noah-isme/fir-api/pkg/errors"
	"github.com/noah-isme/fir-api/pkg/response"
	"github.com/noah-isme/fir-api/pkg/storage"
)

type evidenceService interface {
	Upload(ctx context.Context, principal models.Principal, r io.Reader, declaredSize int64) (*dto.EvidenceUploadResponse, error)
	Link(ctx context.Context, principal models.Principal, firID string) (*dto.EvidenceLinkResponse, error)
	Download(ctx context.Context, token string) (io.ReadCloser, storage.ObjectInfo, error)
}

// EvidenceHandler handles evidence upload and signed downloads.
type EvidenceHandler struct {
	service evidenceService
}

// NewEvidenceHandler constructs the handler.
func NewEvidenceHandler(service evidenceService) *EvidenceHandler {
	return &EvidenceHandler{service: service}
}

// Upload godoc
// @Summary Upload evidence
// @Description Stores a file and returns the file_ref to attach when filing a FIR
// @Tags Evidence
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "Evidence file"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /evidence [post]
func (h *EvidenceHandler) Upload(c *gin.Context) {
	principal, ok := principalOf(c)
	if !ok {
		return
	}
	header, err := c.FormFile("file")
	if err != nil {
		response.Error(c, appErrors.Validation(err, "file is required"))
		return
	}
	file, err := header.Open()
	if err != nil {
		response.Error(c, appErrors.Validation(err, "failed to read upload"))
		return
	}
	defer file.Close()

	res, err := h.service.Upload(c.Request.Context(), principal, file, header.Size)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, res)
}

// Link godoc
// @Summary Signed evidence link
// @Tags Evidence
// @Produce json
// @Param id path string true "FIR ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /firs/{id}/evidence [get]
func (h *EvidenceHandler) Link(c *gin.Context) {
	principal, ok := principalOf(c)
	if !ok {
		return
	}
	link, err := h.service.Link(c.Request.Context(), principal, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, link, nil)
}

// Download godoc
// @Summary Download evidence
// @Tags Evidence
// @Produce octet-stream
// @Param token query string true "Signed token"
// @Success 200 {file} file
// @Failure 403 {object} response.Envelope
// @Router /evidence/download [get]
func (h *EvidenceHandler) Download(c *gin.Context) {
	token := strings.TrimSpace(c.Query("token"))
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "token is required"))
		return
	}
	reader, info, err := h.service.Download(c.Request.Context(), token)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer reader.Close()

	contentType := info.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	size := info.Size
	if size <= 0 {
		size = -1
	}
	c.DataFromReader(http.StatusOK, size, contentType, reader, map[string]string{
		"Content-Disposition": "attachment; filename=\"" + path.Base(info.Key) + "\"",
		"Cache-Control":       "private, no-store",
	})
}
