package handler

import (
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/fir-api/internal/dto"
	"github.com/noah-isme/fir-api/internal/models"
	appErrors "github.com/noah-isme/fir-api/pkg/errors"
	"github.com/noah-isme/fir-api/pkg/response"
)

// maxImportBytes bounds a bulk import upload.
const maxImportBytes = 5 << 20

type userService interface {
	List(ctx context.Context, principal models.Principal, query dto.UserQuery) ([]models.User, *models.Pagination, error)
	AddPolice(ctx context.Context, principal models.Principal, req dto.AddPoliceRequest) (*models.User, error)
	Delete(ctx context.Context, principal models.Principal, id string) error
	BulkImport(ctx context.Context, principal models.Principal, r io.Reader) (*dto.BulkImportResult, error)
}

// UserHandler handles administrator user management.
type UserHandler struct {
	service userService
}

// NewUserHandler constructs the handler.
func NewUserHandler(service userService) *UserHandler {
	return &UserHandler{service: service}
}

// List godoc
// @Summary List users
// @Tags Users
// @Produce json
// @Param role query string false "Role"
// @Param station_id query string false "Station ID"
// @Param q query string false "Search"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /users [get]
func (h *UserHandler) List(c *gin.Context) {
	principal, ok := principalOf(c)
	if !ok {
		return
	}
	page, size := pageParams(c)
	users, pagination, err := h.service.List(c.Request.Context(), principal, dto.UserQuery{
		Role:      c.Query("role"),
		StationID: c.Query("station_id"),
		Search:    c.Query("q"),
		Page:      page,
		PageSize:  size,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, users, pagination)
}

// AddPolice godoc
// @Summary Enrol an officer
// @Tags Users
// @Accept json
// @Produce json
// @Param payload body dto.AddPoliceRequest true "Officer"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /users/police [post]
func (h *UserHandler) AddPolice(c *gin.Context) {
	principal, ok := principalOf(c)
	if !ok {
		return
	}
	var req dto.AddPoliceRequest
	if !bindJSON(c, &req, "invalid officer payload") {
		return
	}
	user, err := h.service.AddPolice(c.Request.Context(), principal, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, user)
}

// Import godoc
// @Summary Bulk import users
// @Description CSV with header username,email,password,role,station_code,phone. Either every row is imported or none.
// @Tags Users
// @Accept multipart/form-data
// @Accept text/csv
// @Produce json
// @Param file formData file false "CSV file"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /users/import [post]
func (h *UserHandler) Import(c *gin.Context) {
	principal, ok := principalOf(c)
	if !ok {
		return
	}

	var body io.Reader
	if strings.HasPrefix(c.ContentType(), "multipart/") {
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
		body = file
	} else {
		body = http.MaxBytesReader(c.Writer, c.Request.Body, maxImportBytes)
	}

	result, err := h.service.BulkImport(c.Request.Context(), principal, body)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// Delete godoc
// @Summary Delete user
// @Tags Users
// @Param id path string true "User ID"
// @Success 204
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /users/{id} [delete]
func (h *UserHandler) Delete(c *gin.Context) {
	principal, ok := principalOf(c)
	if !ok {
		return
	}
	if err := h.service.Delete(c.Request.Context(), principal, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
