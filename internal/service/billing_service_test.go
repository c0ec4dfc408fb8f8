package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dentalogic/clinic-api/internal/models"
	appErrors "github.com/dentalogic/clinic-api/pkg/errors"
)

type mockInvoiceRepo struct {
	invoices map[string]models.Invoice
	summary  *models.RevenueSummary
}

func (m *mockInvoiceRepo) List(ctx context.Context, filter models.InvoiceFilter) ([]models.Invoice, int, error) {
	out := make([]models.Invoice, 0, len(m.invoices))
	for _, inv := range m.invoices {
		out = append(out, inv)
	}
	return out, len(out), nil
}

func (m *mockInvoiceRepo) FindByID(ctx context.Context, clinicID, id string) (*models.Invoice, error) {
	if inv, ok := m.invoices[id]; ok && inv.ClinicID == clinicID {
		return &inv, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockInvoiceRepo) RevenueSummary(ctx context.Context, clinicID string, from, to time.Time) (*models.RevenueSummary, error) {
	return m.summary, nil
}

func (m *mockInvoiceRepo) Create(ctx context.Context, invoice *models.Invoice) error {
	if m.invoices == nil {
		m.invoices = make(map[string]models.Invoice)
	}
	m.invoices[invoice.ID] = *invoice
	return nil
}

func (m *mockInvoiceRepo) Update(ctx context.Context, invoice *models.Invoice) error {
	m.invoices[invoice.ID] = *invoice
	return nil
}

func conflictCode(t *testing.T, err error) string {
	t.Helper()
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	return appErr.Code
}

func TestBillingServiceCreateStartsAsDraft(t *testing.T) {
	repo := &mockInvoiceRepo{}
	svc := NewBillingService(repo, nil, nil)

	invoice, err := svc.Create(context.Background(), "clinic-1", CreateInvoiceRequest{
		PatientID:   "patient-1",
		Description: "Root canal",
		AmountCents: 45000,
	})
	require.NoError(t, err)
	assert.Equal(t, models.InvoiceDraft, invoice.Status)
	assert.Nil(t, invoice.IssuedAt)
}

func TestBillingServiceLifecycle(t *testing.T) {
	repo := &mockInvoiceRepo{invoices: map[string]models.Invoice{
		"inv-1": {ID: "inv-1", ClinicID: "clinic-1", Status: models.InvoiceDraft, AmountCents: 10000},
	}}
	svc := NewBillingService(repo, nil, nil)
	ctx := context.Background()

	issued, err := svc.Issue(ctx, "clinic-1", "inv-1")
	require.NoError(t, err)
	assert.Equal(t, models.InvoiceSent, issued.Status)
	require.NotNil(t, issued.IssuedAt)

	paid, err := svc.MarkPaid(ctx, "clinic-1", "inv-1")
	require.NoError(t, err)
	assert.Equal(t, models.InvoicePaid, paid.Status)
	require.NotNil(t, paid.PaidAt)
}

func TestBillingServiceRejectsBadTransitions(t *testing.T) {
	repo := &mockInvoiceRepo{invoices: map[string]models.Invoice{
		"draft": {ID: "draft", ClinicID: "clinic-1", Status: models.InvoiceDraft},
		"paid":  {ID: "paid", ClinicID: "clinic-1", Status: models.InvoicePaid},
	}}
	svc := NewBillingService(repo, nil, nil)
	ctx := context.Background()

	_, err := svc.MarkPaid(ctx, "clinic-1", "draft")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, conflictCode(t, err))

	_, err = svc.Issue(ctx, "clinic-1", "paid")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, conflictCode(t, err))

	_, err = svc.Void(ctx, "clinic-1", "paid")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, conflictCode(t, err))
}

func TestBillingServiceVoidUnpaid(t *testing.T) {
	repo := &mockInvoiceRepo{invoices: map[string]models.Invoice{
		"inv-1": {ID: "inv-1", ClinicID: "clinic-1", Status: models.InvoiceSent},
	}}
	svc := NewBillingService(repo, nil, nil)

	invoice, err := svc.Void(context.Background(), "clinic-1", "inv-1")
	require.NoError(t, err)
	assert.Equal(t, models.InvoiceVoid, invoice.Status)
}

func TestBillingServiceRevenueValidatesPeriod(t *testing.T) {
	repo := &mockInvoiceRepo{summary: &models.RevenueSummary{TotalCents: 55000, PaidCents: 30000, OutstandingCents: 25000, InvoiceCount: 4, PaidCount: 2}}
	svc := NewBillingService(repo, nil, nil)
	ctx := context.Background()

	from := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)

	summary, err := svc.Revenue(ctx, "clinic-1", from, to)
	require.NoError(t, err)
	assert.Equal(t, int64(55000), summary.TotalCents)

	_, err = svc.Revenue(ctx, "clinic-1", to, from)
	require.Error(t, err)
}
