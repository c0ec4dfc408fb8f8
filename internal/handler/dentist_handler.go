package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/dentalogic/clinic-api/internal/models"
	"github.com/dentalogic/clinic-api/internal/service"
	appErrors "github.com/dentalogic/clinic-api/pkg/errors"
	"github.com/dentalogic/clinic-api/pkg/response"
)

// DentistHandler exposes practitioner endpoints.
type DentistHandler struct {
	dentists *service.DentistService
}

// NewDentistHandler constructs DentistHandler.
func NewDentistHandler(dentists *service.DentistService) *DentistHandler {
	return &DentistHandler{dentists: dentists}
}

// List godoc
// @Summary List dentists
// @Tags Dentists
// @Produce json
// @Param search query string false "Search by name or specialty"
// @Param active query bool false "Filter by active state"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /dentists [get]
func (h *DentistHandler) List(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	filter := models.DentistFilter{
		ClinicID: claims.ClinicID,
		Search:   strings.TrimSpace(c.Query("search")),
	}
	if active := c.Query("active"); active != "" {
		if active == "true" {
			v := true
			filter.Active = &v
		} else if active == "false" {
			v := false
			filter.Active = &v
		}
	}
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}
	filter.SortBy = c.Query("sort")
	filter.SortOrder = c.Query("order")

	dentists, pagination, err := h.dentists.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dentists, pagination)
}

// Get godoc
// @Summary Get dentist detail
// @Tags Dentists
// @Produce json
// @Param id path string true "Dentist ID"
// @Success 200 {object} response.Envelope
// @Router /dentists/{id} [get]
func (h *DentistHandler) Get(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	dentist, err := h.dentists.Get(c.Request.Context(), claims.ClinicID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dentist, nil)
}

// Create godoc
// @Summary Register a dentist
// @Tags Dentists
// @Accept json
// @Produce json
// @Param payload body service.CreateDentistRequest true "Dentist payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /dentists [post]
func (h *DentistHandler) Create(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req service.CreateDentistRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid dentist payload"))
		return
	}
	dentist, err := h.dentists.Create(c.Request.Context(), claims.ClinicID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, dentist)
}

// Update godoc
// @Summary Update a dentist
// @Tags Dentists
// @Accept json
// @Produce json
// @Param id path string true "Dentist ID"
// @Param payload body service.UpdateDentistRequest true "Dentist payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /dentists/{id} [put]
func (h *DentistHandler) Update(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req service.UpdateDentistRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid dentist payload"))
		return
	}
	dentist, err := h.dentists.Update(c.Request.Context(), claims.ClinicID, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dentist, nil)
}

// Deactivate godoc
// @Summary Deactivate a dentist
// @Tags Dentists
// @Produce json
// @Param id path string true "Dentist ID"
// @Success 204 {object} response.Envelope
// @Router /dentists/{id} [delete]
func (h *DentistHandler) Deactivate(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	if err := h.dentists.Deactivate(c.Request.Context(), claims.ClinicID, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
