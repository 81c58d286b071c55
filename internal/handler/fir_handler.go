package handler

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/fir-api/internal/dto"
	"github.com/noah-isme/fir-api/internal/models"
	"github.com/noah-isme/fir-api/pkg/response"
)

type firService interface {
	File(ctx context.Context, principal models.Principal, req dto.FileFIRRequest) (*models.FIR, error)
	Get(ctx context.Context, principal models.Principal, id string) (*models.FIR, error)
	Query(ctx context.Context, principal models.Principal, query dto.FIRQuery) ([]models.FIR, *models.Pagination, error)
	Approve(ctx context.Context, principal models.Principal, id string) (*models.FIR, error)
	Reject(ctx context.Context, principal models.Principal, id string, req dto.RejectFIRRequest) (*models.FIR, error)
	AdminOverride(ctx context.Context, principal models.Principal, id string, req dto.StatusOverrideRequest) (*models.FIR, error)
	Delete(ctx context.Context, principal models.Principal, id string) error
	Export(ctx context.Context, principal models.Principal, query dto.FIRQuery, format dto.ExportFormat) (*dto.ExportFile, error)
}

// FIRHandler exposes the case store.
type FIRHandler struct {
	service firService
}

// NewFIRHandler constructs the handler.
func NewFIRHandler(service firService) *FIRHandler {
	return &FIRHandler{service: service}
}

// File godoc
// @Summary File a FIR
// @Description Citizens file a report against a station; it starts in SENT
// @Tags FIRs
// @Accept json
// @Produce json
// @Param payload body dto.FileFIRRequest true "Report"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /firs [post]
func (h *FIRHandler) File(c *gin.Context) {
	principal, ok := principalOf(c)
	if !ok {
		return
	}
	var req dto.FileFIRRequest
	if !bindJSON(c, &req, "invalid fir payload") {
		return
	}
	fir, err := h.service.File(c.Request.Context(), principal, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, fir)
}

// List godoc
// @Summary List visible FIRs
// @Tags FIRs
// @Produce json
// @Param scope query string false "mine, station or all"
// @Param status query string false "Status"
// @Param station_id query string false "Station ID"
// @Param crime_type query string false "Crime type"
// @Param q query string false "Search"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /firs [get]
func (h *FIRHandler) List(c *gin.Context) {
	principal, ok := principalOf(c)
	if !ok {
		return
	}
	firs, pagination, err := h.service.Query(c.Request.Context(), principal, firQuery(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, firs, pagination)
}

// Get godoc
// @Summary Get FIR
// @Tags FIRs
// @Produce json
// @Param id path string true "FIR ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /firs/{id} [get]
func (h *FIRHandler) Get(c *gin.Context) {
	principal, ok := principalOf(c)
	if !ok {
		return
	}
	fir, err := h.service.Get(c.Request.Context(), principal, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, fir, nil)
}

// Approve godoc
// @Summary Approve FIR
// @Description Station officers decide a SENT report once
// @Tags FIRs
// @Produce json
// @Param id path string true "FIR ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /firs/{id}/approve [put]
func (h *FIRHandler) Approve(c *gin.Context) {
	principal, ok := principalOf(c)
	if !ok {
		return
	}
	fir, err := h.service.Approve(c.Request.Context(), principal, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, fir, nil)
}

// Reject godoc
// @Summary Reject FIR
// @Tags FIRs
// @Accept json
// @Produce json
// @Param id path string true "FIR ID"
// @Param payload body dto.RejectFIRRequest false "Rejection note"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /firs/{id}/reject [put]
func (h *FIRHandler) Reject(c *gin.Context) {
	principal, ok := principalOf(c)
	if !ok {
		return
	}
	var req dto.RejectFIRRequest
	if c.Request.ContentLength != 0 && !bindJSON(c, &req, "invalid rejection payload") {
		return
	}
	fir, err := h.service.Reject(c.Request.Context(), principal, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, fir, nil)
}

// Override godoc
// @Summary Override FIR status
// @Tags FIRs
// @Accept json
// @Produce json
// @Param id path string true "FIR ID"
// @Param payload body dto.StatusOverrideRequest true "Status"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /firs/{id}/status [put]
func (h *FIRHandler) Override(c *gin.Context) {
	principal, ok := principalOf(c)
	if !ok {
		return
	}
	var req dto.StatusOverrideRequest
	if !bindJSON(c, &req, "invalid status payload") {
		return
	}
	fir, err := h.service.AdminOverride(c.Request.Context(), principal, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, fir, nil)
}

// Delete godoc
// @Summary Delete FIR
// @Tags FIRs
// @Param id path string true "FIR ID"
// @Success 204
// @Failure 404 {object} response.Envelope
// @Router /firs/{id} [delete]
func (h *FIRHandler) Delete(c *gin.Context) {
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

// Export godoc
// @Summary Export FIR register
// @Tags FIRs
// @Produce text/csv
// @Produce application/pdf
// @Param format query string false "csv or pdf"
// @Success 200 {file} file
// @Failure 400 {object} response.Envelope
// @Router /firs/export [get]
func (h *FIRHandler) Export(c *gin.Context) {
	principal, ok := principalOf(c)
	if !ok {
		return
	}
	format := dto.ExportFormat(strings.ToLower(strings.TrimSpace(c.DefaultQuery("format", string(dto.ExportFormatCSV)))))
	file, err := h.service.Export(c.Request.Context(), principal, firQuery(c), format)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", file.Filename))
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, file.ContentType, file.Content)
}

func firQuery(c *gin.Context) dto.FIRQuery {
	page, size := pageParams(c)
	return dto.FIRQuery{
		Scope:     dto.FIRScope(strings.ToLower(strings.TrimSpace(c.Query("scope")))),
		Status:    c.Query("status"),
		StationID: c.Query("station_id"),
		CrimeType: c.Query("crime_type"),
		Search:    c.Query("q"),
		Page:      page,
		PageSize:  size,
	}
}
