package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dentalogic/clinic-api/internal/models"
	appErrors "github.com/dentalogic/clinic-api/pkg/errors"
)

type medicalRecordRepository interface {
	List(ctx context.Context, filter models.MedicalRecordFilter) ([]models.MedicalRecord, int, error)
	FindByID(ctx context.Context, clinicID, id string) (*models.MedicalRecord, error)
	Create(ctx context.Context, record *models.MedicalRecord) error
	Update(ctx context.Context, record *models.MedicalRecord) error
}

type auditWriter interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// CreateMedicalRecordRequest holds payload for clinical history entries.
type CreateMedicalRecordRequest struct {
	PatientID string    `json:"patient_id" validate:"required"`
	DentistID *string   `json:"dentist_id"`
	VisitDate time.Time `json:"visit_date" validate:"required"`
	ToothRef  *string   `json:"tooth_ref"`
	Diagnosis string    `json:"diagnosis" validate:"required"`
	Procedure *string   `json:"procedure"`
	Notes     *string   `json:"notes"`
}

// UpdateMedicalRecordRequest holds payload for amending entries.
type UpdateMedicalRecordRequest struct {
	DentistID *string   `json:"dentist_id"`
	VisitDate time.Time `json:"visit_date" validate:"required"`
	ToothRef  *string   `json:"tooth_ref"`
	Diagnosis string    `json:"diagnosis" validate:"required"`
	Procedure *string   `json:"procedure"`
	Notes     *string   `json:"notes"`
}

// MedicalRecordService manages clinical history. Every read and write is
// audit-logged since records contain protected health information.
type MedicalRecordService struct {
	repo      medicalRecordRepository
	audit     auditWriter
	validator *validator.Validate
	logger    *zap.Logger
}

// NewMedicalRecordService constructs the medical record service.
func NewMedicalRecordService(repo medicalRecordRepository, audit auditWriter, validate *validator.Validate, logger *zap.Logger) *MedicalRecordService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MedicalRecordService{repo: repo, audit: audit, validator: validate, logger: logger}
}

// List returns clinical history entries matching the filter.
func (s *MedicalRecordService) List(ctx context.Context, filter models.MedicalRecordFilter, actor *models.JWTClaims) ([]models.MedicalRecord, *models.Pagination, error) {
	records, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list medical records")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	s.recordAudit(ctx, actor, models.AuditActionRecordView, filter.PatientID)
	pagination := &models.Pagination{Page: page, PageSize: size, TotalCount: total}
	return records, pagination, nil
}

// Get returns a single clinical history entry.
func (s *MedicalRecordService) Get(ctx context.Context, clinicID, id string, actor *models.JWTClaims) (*models.MedicalRecord, error) {
	record, err := s.repo.FindByID(ctx, clinicID, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "medical record not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load medical record")
	}
	s.recordAudit(ctx, actor, models.AuditActionRecordView, record.ID)
	return record, nil
}

// Create appends a new clinical history entry.
func (s *MedicalRecordService) Create(ctx context.Context, clinicID string, req CreateMedicalRecordRequest, actor *models.JWTClaims) (*models.MedicalRecord, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid medical record payload")
	}
	record := &models.MedicalRecord{
		ID:        uuid.NewString(),
		ClinicID:  clinicID,
		PatientID: req.PatientID,
		DentistID: req.DentistID,
		VisitDate: req.VisitDate,
		ToothRef:  req.ToothRef,
		Diagnosis: req.Diagnosis,
		Procedure: req.Procedure,
		Notes:     req.Notes,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	if err := s.repo.Create(ctx, record); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create medical record")
	}
	s.recordAudit(ctx, actor, models.AuditActionRecordWrite, record.ID)
	return record, nil
}

// Update amends an existing entry. The patient link is immutable.
func (s *MedicalRecordService) Update(ctx context.Context, clinicID, id string, req UpdateMedicalRecordRequest, actor *models.JWTClaims) (*models.MedicalRecord, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid medical record payload")
	}
	existing, err := s.repo.FindByID(ctx, clinicID, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "medical record not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load medical record")
	}
	existing.DentistID = req.DentistID
	existing.VisitDate = req.VisitDate
	existing.ToothRef = req.ToothRef
	existing.Diagnosis = req.Diagnosis
	existing.Procedure = req.Procedure
	existing.Notes = req.Notes
	existing.UpdatedAt = time.Now().UTC()
	if err := s.repo.Update(ctx, existing); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update medical record")
	}
	s.recordAudit(ctx, actor, models.AuditActionRecordWrite, existing.ID)
	return existing, nil
}

func (s *MedicalRecordService) recordAudit(ctx context.Context, actor *models.JWTClaims, action, resourceID string) {
	if s.audit == nil || actor == nil {
		return
	}
	entry := &models.AuditLog{
		ClinicID: actor.ClinicID,
		UserID:   &actor.UserID,
		Action:   action,
		Resource: "medical_records",
	}
	if resourceID != "" {
		entry.ResourceID = &resourceID
	}
	if err := s.audit.CreateAuditLog(ctx, entry); err != nil {
		s.logger.Warn("failed to record medical record audit log", zap.Error(err))
	}
}
