package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dentalogic/clinic-api/internal/models"
	appErrors "github.com/dentalogic/clinic-api/pkg/errors"
	"github.com/dentalogic/clinic-api/pkg/export"
	"github.com/dentalogic/clinic-api/pkg/storage"
)

type consentRepository interface {
	ListTemplates(ctx context.Context, clinicID string) ([]models.ConsentTemplate, error)
	FindTemplate(ctx context.Context, clinicID, id string) (*models.ConsentTemplate, error)
	CreateTemplate(ctx context.Context, template *models.ConsentTemplate) error
	ListRecords(ctx context.Context, filter models.ConsentFilter) ([]models.ConsentRecord, int, error)
	FindRecord(ctx context.Context, clinicID, id string) (*models.ConsentRecord, error)
	CreateRecord(ctx context.Context, record *models.ConsentRecord) error
	UpdateRecord(ctx context.Context, record *models.ConsentRecord) error
}

type consentPatientFinder interface {
	FindByID(ctx context.Context, clinicID, id string) (*models.Patient, error)
}

// CreateConsentTemplateRequest holds payload for new templates.
type CreateConsentTemplateRequest struct {
	Name string `json:"name" validate:"required"`
	Body string `json:"body" validate:"required"`
}

// IssueConsentRequest creates a draft consent for a patient.
type IssueConsentRequest struct {
	TemplateID string `json:"template_id" validate:"required"`
	PatientID  string `json:"patient_id" validate:"required"`
}

// SignConsentRequest records the signer identity.
type SignConsentRequest struct {
	SignedBy string `json:"signed_by" validate:"required"`
}

// SignedConsentDownload points at a rendered consent PDF.
type SignedConsentDownload struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ConsentService manages consent templates, signing, and PDF rendering.
type ConsentService struct {
	repo      consentRepository
	patients  consentPatientFinder
	audit     auditWriter
	pdf       *export.PDFExporter
	store     *storage.LocalStorage
	signer    *storage.SignedURLSigner
	validator *validator.Validate
	logger    *zap.Logger
}

// ConsentServiceParams groups constructor dependencies.
type ConsentServiceParams struct {
	Repo      consentRepository
	Patients  consentPatientFinder
	Audit     auditWriter
	PDF       *export.PDFExporter
	Store     *storage.LocalStorage
	Signer    *storage.SignedURLSigner
	Validator *validator.Validate
	Logger    *zap.Logger
}

// NewConsentService constructs the consent service.
func NewConsentService(params ConsentServiceParams) *ConsentService {
	validate := params.Validator
	if validate == nil {
		validate = validator.New()
	}
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	pdf := params.PDF
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ConsentService{
		repo:      params.Repo,
		patients:  params.Patients,
		audit:     params.Audit,
		pdf:       pdf,
		store:     params.Store,
		signer:    params.Signer,
		validator: validate,
		logger:    logger,
	}
}

// ListTemplates returns the clinic's active consent templates.
func (s *ConsentService) ListTemplates(ctx context.Context, clinicID string) ([]models.ConsentTemplate, error) {
	templates, err := s.repo.ListTemplates(ctx, clinicID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list consent templates")
	}
	return templates, nil
}

// CreateTemplate registers a new consent template.
func (s *ConsentService) CreateTemplate(ctx context.Context, clinicID string, req CreateConsentTemplateRequest) (*models.ConsentTemplate, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid consent template payload")
	}
	template := &models.ConsentTemplate{
		ID:        uuid.NewString(),
		ClinicID:  clinicID,
		Name:      req.Name,
		Body:      req.Body,
		Active:    true,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	if err := s.repo.CreateTemplate(ctx, template); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create consent template")
	}
	return template, nil
}

// ListRecords returns consent records matching the filter.
func (s *ConsentService) ListRecords(ctx context.Context, filter models.ConsentFilter) ([]models.ConsentRecord, *models.Pagination, error) {
	records, total, err := s.repo.ListRecords(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list consent records")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	pagination := &models.Pagination{Page: page, PageSize: size, TotalCount: total}
	return records, pagination, nil
}

// Issue creates a draft consent record for a patient.
func (s *ConsentService) Issue(ctx context.Context, clinicID string, req IssueConsentRequest) (*models.ConsentRecord, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid consent payload")
	}
	if _, err := s.repo.FindTemplate(ctx, clinicID, req.TemplateID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "consent template not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load consent template")
	}
	if _, err := s.patients.FindByID(ctx, clinicID, req.PatientID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "patient not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load patient")
	}
	record := &models.ConsentRecord{
		ID:         uuid.NewString(),
		ClinicID:   clinicID,
		TemplateID: req.TemplateID,
		PatientID:  req.PatientID,
		Status:     models.ConsentDraft,
		CreatedAt:  time.Now().UTC(),
		UpdatedAt:  time.Now().UTC(),
	}
	if err := s.repo.CreateRecord(ctx, record); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create consent record")
	}
	return record, nil
}

// Sign marks a draft consent as signed, renders the PDF, and stores it.
// Signing is one-way; a signed or declined consent cannot be signed again.
func (s *ConsentService) Sign(ctx context.Context, clinicID, id string, req SignConsentRequest, actor *models.JWTClaims) (*models.ConsentRecord, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid sign payload")
	}
	record, err := s.repo.FindRecord(ctx, clinicID, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "consent record not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load consent record")
	}
	if record.Status != models.ConsentDraft {
		return nil, appErrors.Clone(appErrors.ErrSigned, "consent form already signed")
	}

	now := time.Now().UTC()
	record.Status = models.ConsentSigned
	record.SignedBy = &req.SignedBy
	record.SignedAt = &now
	record.UpdatedAt = now

	if err := s.repo.UpdateRecord(ctx, record); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update consent record")
	}

	if s.store != nil {
		if err := s.renderAndStore(ctx, record); err != nil {
			s.logger.Warn("failed to render consent pdf", zap.String("consent_id", record.ID), zap.Error(err))
		}
	}

	if s.audit != nil && actor != nil {
		if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
			ClinicID:   clinicID,
			UserID:     &actor.UserID,
			Action:     models.AuditActionConsentSign,
			Resource:   "consents",
			ResourceID: &record.ID,
			NewValues:  []byte(fmt.Sprintf(`{"signed_by":%q}`, req.SignedBy)),
		}); err != nil {
			s.logger.Warn("failed to record consent audit log", zap.Error(err))
		}
	}

	return record, nil
}

// Decline marks a draft consent as declined.
func (s *ConsentService) Decline(ctx context.Context, clinicID, id string) (*models.ConsentRecord, error) {
	record, err := s.repo.FindRecord(ctx, clinicID, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "consent record not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load consent record")
	}
	if record.Status != models.ConsentDraft {
		return nil, appErrors.Clone(appErrors.ErrSigned, "consent form already signed")
	}
	record.Status = models.ConsentDeclined
	record.UpdatedAt = time.Now().UTC()
	if err := s.repo.UpdateRecord(ctx, record); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update consent record")
	}
	return record, nil
}

// Download returns a signed short-lived URL for the stored consent PDF.
func (s *ConsentService) Download(ctx context.Context, clinicID, id string) (*SignedConsentDownload, error) {
	if s.store == nil || s.signer == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "consent document storage is not configured")
	}
	record, err := s.repo.FindRecord(ctx, clinicID, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "consent record not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load consent record")
	}
	if record.Status != models.ConsentSigned {
		return nil, appErrors.Clone(appErrors.ErrValidation, "consent form is not signed")
	}
	filename := consentFilename(record)
	token, expiresAt, err := s.signer.Generate(record.ID, filename)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign download url")
	}
	return &SignedConsentDownload{
		URL:       fmt.Sprintf("/api/v1/consents/%s/document?token=%s", record.ID, token),
		ExpiresAt: expiresAt,
	}, nil
}

// OpenDocument validates a signed token and opens the stored PDF.
func (s *ConsentService) OpenDocument(clinicID, id, token string) (string, error) {
	if s.store == nil || s.signer == nil {
		return "", appErrors.Clone(appErrors.ErrNotFound, "consent document storage is not configured")
	}
	resourceID, relPath, _, err := s.signer.Parse(token, false)
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid download token")
	}
	if resourceID != id {
		return "", appErrors.Clone(appErrors.ErrForbidden, "token does not match consent record")
	}
	return s.store.Path(relPath), nil
}

func (s *ConsentService) renderAndStore(ctx context.Context, record *models.ConsentRecord) error {
	template, err := s.repo.FindTemplate(ctx, record.ClinicID, record.TemplateID)
	if err != nil {
		return fmt.Errorf("load template: %w", err)
	}
	patient, err := s.patients.FindByID(ctx, record.ClinicID, record.PatientID)
	if err != nil {
		return fmt.Errorf("load patient: %w", err)
	}

	signedBy := ""
	if record.SignedBy != nil {
		signedBy = *record.SignedBy
	}
	signedAt := ""
	if record.SignedAt != nil {
		signedAt = record.SignedAt.Format("January 2, 2006 3:04 PM")
	}

	doc := export.Document{
		Title:    template.Name,
		Subtitle: fmt.Sprintf("Patient: %s", patient.FullName()),
		Sections: []export.DocumentSection{
			{Body: template.Body},
		},
		Signature: fmt.Sprintf("Signed by %s on %s", signedBy, signedAt),
	}
	rendered, err := s.pdf.RenderDocument(doc)
	if err != nil {
		return fmt.Errorf("render document: %w", err)
	}
	if _, err := s.store.Save(consentFilename(record), rendered); err != nil {
		return fmt.Errorf("store document: %w", err)
	}
	return nil
}

func consentFilename(record *models.ConsentRecord) string {
	return fmt.Sprintf("consent_%s.pdf", record.ID)
}
