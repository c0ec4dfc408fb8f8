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

type invoiceRepository interface {
	List(ctx context.Context, filter models.InvoiceFilter) ([]models.Invoice, int, error)
	FindByID(ctx context.Context, clinicID, id string) (*models.Invoice, error)
	RevenueSummary(ctx context.Context, clinicID string, from, to time.Time) (*models.RevenueSummary, error)
	Create(ctx context.Context, invoice *models.Invoice) error
	Update(ctx context.Context, invoice *models.Invoice) error
}

// CreateInvoiceRequest holds payload for raising invoices.
type CreateInvoiceRequest struct {
	PatientID     string  `json:"patient_id" validate:"required"`
	AppointmentID *string `json:"appointment_id"`
	Description   string  `json:"description" validate:"required"`
	AmountCents   int64   `json:"amount_cents" validate:"required,gt=0"`
}

// BillingService handles invoices and revenue aggregation.
type BillingService struct {
	repo      invoiceRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewBillingService constructs the billing service.
func NewBillingService(repo invoiceRepository, validate *validator.Validate, logger *zap.Logger) *BillingService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BillingService{repo: repo, validator: validate, logger: logger}
}

// List returns invoices matching the filter.
func (s *BillingService) List(ctx context.Context, filter models.InvoiceFilter) ([]models.Invoice, *models.Pagination, error) {
	invoices, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list invoices")
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
	return invoices, pagination, nil
}

// Get returns an invoice scoped to the clinic.
func (s *BillingService) Get(ctx context.Context, clinicID, id string) (*models.Invoice, error) {
	invoice, err := s.repo.FindByID(ctx, clinicID, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "invoice not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load invoice")
	}
	return invoice, nil
}

// Create raises a draft invoice.
func (s *BillingService) Create(ctx context.Context, clinicID string, req CreateInvoiceRequest) (*models.Invoice, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid invoice payload")
	}
	invoice := &models.Invoice{
		ID:            uuid.NewString(),
		ClinicID:      clinicID,
		PatientID:     req.PatientID,
		AppointmentID: req.AppointmentID,
		Description:   req.Description,
		AmountCents:   req.AmountCents,
		Status:        models.InvoiceDraft,
		CreatedAt:     time.Now().UTC(),
		UpdatedAt:     time.Now().UTC(),
	}
	if err := s.repo.Create(ctx, invoice); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create invoice")
	}
	return invoice, nil
}

// Issue moves a draft invoice to sent.
func (s *BillingService) Issue(ctx context.Context, clinicID, id string) (*models.Invoice, error) {
	return s.transition(ctx, clinicID, id, models.InvoiceDraft, models.InvoiceSent)
}

// MarkPaid settles a sent invoice.
func (s *BillingService) MarkPaid(ctx context.Context, clinicID, id string) (*models.Invoice, error) {
	return s.transition(ctx, clinicID, id, models.InvoiceSent, models.InvoicePaid)
}

// Void cancels an invoice that has not been paid.
func (s *BillingService) Void(ctx context.Context, clinicID, id string) (*models.Invoice, error) {
	invoice, err := s.load(ctx, clinicID, id)
	if err != nil {
		return nil, err
	}
	if invoice.Status == models.InvoicePaid {
		return nil, appErrors.Clone(appErrors.ErrConflict, "paid invoices cannot be voided")
	}
	invoice.Status = models.InvoiceVoid
	invoice.UpdatedAt = time.Now().UTC()
	if err := s.repo.Update(ctx, invoice); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to void invoice")
	}
	return invoice, nil
}

// Revenue aggregates invoice totals over the period.
func (s *BillingService) Revenue(ctx context.Context, clinicID string, from, to time.Time) (*models.RevenueSummary, error) {
	if !from.Before(to) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "period start must precede period end")
	}
	summary, err := s.repo.RevenueSummary(ctx, clinicID, from, to)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to aggregate revenue")
	}
	return summary, nil
}

func (s *BillingService) transition(ctx context.Context, clinicID, id string, expect, next models.InvoiceStatus) (*models.Invoice, error) {
	invoice, err := s.load(ctx, clinicID, id)
	if err != nil {
		return nil, err
	}
	if invoice.Status != expect {
		return nil, appErrors.Clone(appErrors.ErrConflict, "invoice is not in the required state")
	}
	now := time.Now().UTC()
	invoice.Status = next
	invoice.UpdatedAt = now
	switch next {
	case models.InvoiceSent:
		invoice.IssuedAt = &now
	case models.InvoicePaid:
		invoice.PaidAt = &now
	}
	if err := s.repo.Update(ctx, invoice); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update invoice")
	}
	return invoice, nil
}

func (s *BillingService) load(ctx context.Context, clinicID, id string) (*models.Invoice, error) {
	invoice, err := s.repo.FindByID(ctx, clinicID, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "invoice not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load invoice")
	}
	return invoice, nil
}
