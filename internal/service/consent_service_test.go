package service

import (
	"context"
	"database/sql"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dentalogic/clinic-api/internal/models"
	appErrors "github.com/dentalogic/clinic-api/pkg/errors"
	"github.com/dentalogic/clinic-api/pkg/export"
	"github.com/dentalogic/clinic-api/pkg/storage"
)

type mockConsentRepo struct {
	templates map[string]models.ConsentTemplate
	records   map[string]models.ConsentRecord
}

func (m *mockConsentRepo) ListTemplates(ctx context.Context, clinicID string) ([]models.ConsentTemplate, error) {
	out := make([]models.ConsentTemplate, 0, len(m.templates))
	for _, tpl := range m.templates {
		out = append(out, tpl)
	}
	return out, nil
}

func (m *mockConsentRepo) FindTemplate(ctx context.Context, clinicID, id string) (*models.ConsentTemplate, error) {
	if tpl, ok := m.templates[id]; ok && tpl.ClinicID == clinicID {
		return &tpl, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockConsentRepo) CreateTemplate(ctx context.Context, template *models.ConsentTemplate) error {
	if m.templates == nil {
		m.templates = make(map[string]models.ConsentTemplate)
	}
	m.templates[template.ID] = *template
	return nil
}

func (m *mockConsentRepo) ListRecords(ctx context.Context, filter models.ConsentFilter) ([]models.ConsentRecord, int, error) {
	out := make([]models.ConsentRecord, 0, len(m.records))
	for _, rec := range m.records {
		out = append(out, rec)
	}
	return out, len(out), nil
}

func (m *mockConsentRepo) FindRecord(ctx context.Context, clinicID, id string) (*models.ConsentRecord, error) {
	if rec, ok := m.records[id]; ok && rec.ClinicID == clinicID {
		return &rec, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockConsentRepo) CreateRecord(ctx context.Context, record *models.ConsentRecord) error {
	if m.records == nil {
		m.records = make(map[string]models.ConsentRecord)
	}
	m.records[record.ID] = *record
	return nil
}

func (m *mockConsentRepo) UpdateRecord(ctx context.Context, record *models.ConsentRecord) error {
	m.records[record.ID] = *record
	return nil
}

type mockPatientFinder struct{ patients map[string]models.Patient }

func (m *mockPatientFinder) FindByID(ctx context.Context, clinicID, id string) (*models.Patient, error) {
	if p, ok := m.patients[id]; ok && p.ClinicID == clinicID {
		return &p, nil
	}
	return nil, sql.ErrNoRows
}

func consentFixture() (*mockConsentRepo, *ConsentService) {
	repo := &mockConsentRepo{
		templates: map[string]models.ConsentTemplate{
			"tpl-1": {ID: "tpl-1", ClinicID: "clinic-1", Name: "Extraction Consent", Body: "I agree.", Active: true},
		},
		records: map[string]models.ConsentRecord{},
	}
	patients := &mockPatientFinder{patients: map[string]models.Patient{
		"patient-1": {ID: "patient-1", ClinicID: "clinic-1", FirstName: "Jane", LastName: "Roe"},
	}}
	svc := NewConsentService(ConsentServiceParams{Repo: repo, Patients: patients})
	return repo, svc
}

func TestConsentServiceIssue(t *testing.T) {
	repo, svc := consentFixture()

	record, err := svc.Issue(context.Background(), "clinic-1", IssueConsentRequest{
		TemplateID: "tpl-1",
		PatientID:  "patient-1",
	})
	require.NoError(t, err)
	assert.Equal(t, models.ConsentDraft, record.Status)
	assert.Len(t, repo.records, 1)
}

func TestConsentServiceIssueUnknownPatient(t *testing.T) {
	_, svc := consentFixture()

	_, err := svc.Issue(context.Background(), "clinic-1", IssueConsentRequest{
		TemplateID: "tpl-1",
		PatientID:  "missing",
	})
	require.Error(t, err)
}

func TestConsentServiceSign(t *testing.T) {
	repo, svc := consentFixture()
	repo.records["c-1"] = models.ConsentRecord{
		ID: "c-1", ClinicID: "clinic-1", TemplateID: "tpl-1", PatientID: "patient-1", Status: models.ConsentDraft,
	}
	audit := &captureAudit{}
	svc.audit = audit

	record, err := svc.Sign(context.Background(), "clinic-1", "c-1", SignConsentRequest{SignedBy: "Jane Roe"}, adminActor())
	require.NoError(t, err)

	assert.Equal(t, models.ConsentSigned, record.Status)
	require.NotNil(t, record.SignedBy)
	assert.Equal(t, "Jane Roe", *record.SignedBy)
	require.NotNil(t, record.SignedAt)
	require.Len(t, audit.entries, 1)
}

func TestConsentServiceSignTwiceConflicts(t *testing.T) {
	repo, svc := consentFixture()
	repo.records["c-1"] = models.ConsentRecord{
		ID: "c-1", ClinicID: "clinic-1", TemplateID: "tpl-1", PatientID: "patient-1", Status: models.ConsentSigned,
	}

	_, err := svc.Sign(context.Background(), "clinic-1", "c-1", SignConsentRequest{SignedBy: "Jane Roe"}, adminActor())
	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrSigned.Code, appErr.Code)
}

func TestConsentServiceDecline(t *testing.T) {
	repo, svc := consentFixture()
	repo.records["c-1"] = models.ConsentRecord{
		ID: "c-1", ClinicID: "clinic-1", TemplateID: "tpl-1", PatientID: "patient-1", Status: models.ConsentDraft,
	}

	record, err := svc.Decline(context.Background(), "clinic-1", "c-1")
	require.NoError(t, err)
	assert.Equal(t, models.ConsentDeclined, record.Status)

	_, err = svc.Decline(context.Background(), "clinic-1", "c-1")
	require.Error(t, err)
}

func TestConsentServiceSignRendersAndServesDocument(t *testing.T) {
	repo := &mockConsentRepo{
		templates: map[string]models.ConsentTemplate{
			"tpl-1": {ID: "tpl-1", ClinicID: "clinic-1", Name: "Extraction Consent", Body: "I agree to the procedure.", Active: true},
		},
		records: map[string]models.ConsentRecord{
			"c-1":   {ID: "c-1", ClinicID: "clinic-1", TemplateID: "tpl-1", PatientID: "patient-1", Status: models.ConsentDraft},
			"draft": {ID: "draft", ClinicID: "clinic-1", TemplateID: "tpl-1", PatientID: "patient-1", Status: models.ConsentDraft},
		},
	}
	patients := &mockPatientFinder{patients: map[string]models.Patient{
		"patient-1": {ID: "patient-1", ClinicID: "clinic-1", FirstName: "Jane", LastName: "Roe"},
	}}
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	svc := NewConsentService(ConsentServiceParams{
		Repo:     repo,
		Patients: patients,
		PDF:      export.NewPDFExporter(),
		Store:    store,
		Signer:   storage.NewSignedURLSigner("test-secret", time.Minute),
	})
	ctx := context.Background()

	_, err = svc.Sign(ctx, "clinic-1", "c-1", SignConsentRequest{SignedBy: "Jane Roe"}, nil)
	require.NoError(t, err)

	link, err := svc.Download(ctx, "clinic-1", "c-1")
	require.NoError(t, err)
	require.Contains(t, link.URL, "/consents/c-1/document?token=")

	token := link.URL[strings.Index(link.URL, "token=")+len("token="):]
	path, err := svc.OpenDocument("clinic-1", "c-1", token)
	require.NoError(t, err)
	assert.FileExists(t, path)

	// Token is bound to its consent record.
	_, err = svc.OpenDocument("clinic-1", "draft", token)
	require.Error(t, err)

	// Unsigned records have no document to hand out.
	_, err = svc.Download(ctx, "clinic-1", "draft")
	require.Error(t, err)
}
