package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/fir-api/internal/dto"
	"github.com/noah-isme/fir-api/internal/models"
	"github.com/noah-isme/fir-api/pkg/response"
)

type stationService interface {
	List(ctx context.Context) ([]models.Station, error)
	Get(ctx context.Context, id string) (*models.Station, error)
	Create(ctx context.Context, principal models.Principal, req dto.StationRequest) (*models.Station, error)
	Update(ctx context.Context, principal models.Principal, id string, req dto.StationRequest) (*models.Station, error)
	Delete(ctx context.Context, principal models.Principal, id string) error
}

// StationHandler exposes the station directory.
type StationHandler struct {
	service stationService
}

// NewStationHandler constructs the handler.
func NewStationHandler(service stationService) *StationHandler {
	return &StationHandler{service: service}
}

// List godoc
// @Summary List stations
// @Tags Stations
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /stations [get]
func (h *StationHandler) List(c *gin.Context) {
	stations, err := h.service.List(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, stations, nil)
}

// Get godoc
// @Summary Get station
// @Tags Stations
// @Produce json
// @Param id path string true "Station ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /stations/{id} [get]
func (h *StationHandler) Get(c *gin.Context) {
	station, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, station, nil)
}

// Create godoc
// @Summary Create station
// @Tags Stations
// @Accept json
// @Produce json
// @Param payload body dto.StationRequest true "Station payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /stations [post]
func (h *StationHandler) Create(c *gin.Context) {
	principal, ok := principalOf(c)
	if !ok {
		return
	}
	var req dto.StationRequest
	if !bindJSON(c, &req, "invalid station payload") {
		return
	}
	station, err := h.service.Create(c.Request.Context(), principal, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, station)
}

// Update godoc
// @Summary Update station
// @Tags Stations
// @Accept json
// @Produce json
// @Param id path string true "Station ID"
// @Param payload body dto.StationRequest true "Station payload"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /stations/{id} [put]
func (h *StationHandler) Update(c *gin.Context) {
	principal, ok := principalOf(c)
	if !ok {
		return
	}
	var req dto.StationRequest
	if !bindJSON(c, &req, "invalid station payload") {
		return
	}
	station, err := h.service.Update(c.Request.Context(), principal, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, station, nil)
}

// Delete godoc
// @Summary Delete station
// @Description Fails with 409 while officers or FIRs still reference the station
// @Tags Stations
// @Param id path string true "Station ID"
// @Success 204
// @Failure 409 {object} response.Envelope
// @Router /stations/{id} [delete]
func (h *StationHandler) Delete(c *gin.Context) {
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
