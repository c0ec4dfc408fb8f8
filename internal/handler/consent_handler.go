package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/dentalogic/clinic-api/internal/models"
	"github.com/dentalogic/clinic-api/internal/service"
	appErrors "github.com/dentalogic/clinic-api/pkg/errors"
	"github.com/dentalogic/clinic-api/pkg/response"
)

// ConsentHandler exposes consent template and record endpoints.
type ConsentHandler struct {
	consents *service.ConsentService
}

// NewConsentHandler constructs ConsentHandler.
func NewConsentHandler(consents *service.ConsentService) *ConsentHandler {
	return &ConsentHandler{consents: consents}
}

// ListTemplates godoc
// @Summary List consent templates
// @Tags Consents
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /consents/templates [get]
func (h *ConsentHandler) ListTemplates(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	templates, err := h.consents.ListTemplates(c.Request.Context(), claims.ClinicID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, templates, nil)
}

// CreateTemplate godoc
// @Summary Create a consent template
// @Tags Consents
// @Accept json
// @Produce json
// @Param payload body service.CreateConsentTemplateRequest true "Template payload"
// @Success 201 {object} response.Envelope
// @Router /consents/templates [post]
func (h *ConsentHandler) CreateTemplate(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req service.CreateConsentTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid template payload"))
		return
	}
	template, err := h.consents.CreateTemplate(c.Request.Context(), claims.ClinicID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, template)
}

// List godoc
// @Summary List consent records
// @Tags Consents
// @Produce json
// @Param patientId query string false "Filter by patient"
// @Param status query string false "Filter by status"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /consents [get]
func (h *ConsentHandler) List(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	filter := models.ConsentFilter{
		ClinicID:  claims.ClinicID,
		PatientID: c.Query("patientId"),
	}
	if status := c.Query("status"); status != "" {
		typed := models.ConsentStatus(status)
		filter.Status = &typed
	}
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}

	records, pagination, err := h.consents.ListRecords(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, records, pagination)
}

// Issue godoc
// @Summary Issue a draft consent to a patient
// @Tags Consents
// @Accept json
// @Produce json
// @Param payload body service.IssueConsentRequest true "Consent payload"
// @Success 201 {object} response.Envelope
// @Router /consents [post]
func (h *ConsentHandler) Issue(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req service.IssueConsentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid consent payload"))
		return
	}
	record, err := h.consents.Issue(c.Request.Context(), claims.ClinicID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, record)
}

// Sign godoc
// @Summary Sign a consent form
// @Tags Consents
// @Accept json
// @Produce json
// @Param id path string true "Consent ID"
// @Param payload body service.SignConsentRequest true "Signer identity"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /consents/{id}/sign [post]
func (h *ConsentHandler) Sign(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req service.SignConsentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid sign payload"))
		return
	}
	record, err := h.consents.Sign(c.Request.Context(), claims.ClinicID, c.Param("id"), req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}

// Decline godoc
// @Summary Decline a consent form
// @Tags Consents
// @Produce json
// @Param id path string true "Consent ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /consents/{id}/decline [post]
func (h *ConsentHandler) Decline(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	record, err := h.consents.Decline(c.Request.Context(), claims.ClinicID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}

// Download godoc
// @Summary Request a signed link to the consent PDF
// @Tags Consents
// @Produce json
// @Param id path string true "Consent ID"
// @Success 200 {object} response.Envelope
// @Router /consents/{id}/download [get]
func (h *ConsentHandler) Download(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	link, err := h.consents.Download(c.Request.Context(), claims.ClinicID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, link, nil)
}

// Document godoc
// @Summary Serve the consent PDF via a signed token
// @Tags Consents
// @Produce application/pdf
// @Param id path string true "Consent ID"
// @Param token query string true "Signed download token"
// @Success 200 {file} binary
// @Failure 401 {object} response.Envelope
// @Router /consents/{id}/document [get]
func (h *ConsentHandler) Document(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	path, err := h.consents.OpenDocument(claims.ClinicID, c.Param("id"), c.Query("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.FileAttachment(path, "consent.pdf")
}
