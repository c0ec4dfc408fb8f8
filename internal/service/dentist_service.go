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

type dentistRepository interface {
	List(ctx context.Context, filter models.DentistFilter) ([]models.Dentist, int, error)
	FindByID(ctx context.Context, clinicID, id string) (*models.Dentist, error)
	Create(ctx context.Context, dentist *models.Dentist) error
	Update(ctx context.Context, dentist *models.Dentist) error
	Deactivate(ctx context.Context, clinicID, id string) error
}

// CreateDentistRequest holds payload for registering dentists.
type CreateDentistRequest struct {
	FullName  string  `json:"full_name" validate:"required"`
	Email     *string `json:"email" validate:"omitempty,email"`
	Phone     *string `json:"phone"`
	Specialty *string `json:"specialty"`
}

// UpdateDentistRequest holds payload for updating dentists.
type UpdateDentistRequest struct {
	FullName  string  `json:"full_name" validate:"required"`
	Email     *string `json:"email" validate:"omitempty,email"`
	Phone     *string `json:"phone"`
	Specialty *string `json:"specialty"`
	Active    bool    `json:"active"`
}

// DentistService handles practitioner profile use-cases.
type DentistService struct {
	repo      dentistRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewDentistService constructs the dentist service.
func NewDentistService(repo dentistRepository, validate *validator.Validate, logger *zap.Logger) *DentistService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DentistService{repo: repo, validator: validate, logger: logger}
}

// List returns dentists and pagination metadata.
func (s *DentistService) List(ctx context.Context, filter models.DentistFilter) ([]models.Dentist, *models.Pagination, error) {
	dentists, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list dentists")
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
	return dentists, pagination, nil
}

// Get returns a dentist scoped to the clinic.
func (s *DentistService) Get(ctx context.Context, clinicID, id string) (*models.Dentist, error) {
	dentist, err := s.repo.FindByID(ctx, clinicID, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "dentist not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load dentist")
	}
	return dentist, nil
}

// Create registers a new dentist profile.
func (s *DentistService) Create(ctx context.Context, clinicID string, req CreateDentistRequest) (*models.Dentist, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid dentist payload")
	}
	dentist := &models.Dentist{
		ID:        uuid.NewString(),
		ClinicID:  clinicID,
		FullName:  req.FullName,
		Email:     req.Email,
		Phone:     req.Phone,
		Specialty: req.Specialty,
		Active:    true,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	if err := s.repo.Create(ctx, dentist); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create dentist")
	}
	return dentist, nil
}

// Update modifies an existing dentist profile.
func (s *DentistService) Update(ctx context.Context, clinicID, id string, req UpdateDentistRequest) (*models.Dentist, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid dentist payload")
	}
	existing, err := s.repo.FindByID(ctx, clinicID, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "dentist not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load dentist")
	}
	existing.FullName = req.FullName
	existing.Email = req.Email
	existing.Phone = req.Phone
	existing.Specialty = req.Specialty
	existing.Active = req.Active
	existing.UpdatedAt = time.Now().UTC()
	if err := s.repo.Update(ctx, existing); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update dentist")
	}
	return existing, nil
}

// Deactivate retires a dentist profile without removing history.
func (s *DentistService) Deactivate(ctx context.Context, clinicID, id string) error {
	if err := s.repo.Deactivate(ctx, clinicID, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "dentist not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to deactivate dentist")
	}
	return nil
}
