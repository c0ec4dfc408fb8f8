package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dentalogic/clinic-api/internal/dto"
	"github.com/dentalogic/clinic-api/internal/models"
	"github.com/dentalogic/clinic-api/internal/repository"
	appErrors "github.com/dentalogic/clinic-api/pkg/errors"
	"github.com/dentalogic/clinic-api/pkg/jobs"
)

type mockReportStore struct {
	jobs    map[string]models.ReportJob
	updates []repository.UpdateReportJobParams
}

func (m *mockReportStore) Create(ctx context.Context, job *models.ReportJob) error {
	if job.ID == "" {
		job.ID = "job-1"
	}
	if m.jobs == nil {
		m.jobs = make(map[string]models.ReportJob)
	}
	m.jobs[job.ID] = *job
	return nil
}

func (m *mockReportStore) GetByID(ctx context.Context, id string) (*models.ReportJob, error) {
	if job, ok := m.jobs[id]; ok {
		return &job, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockReportStore) Update(ctx context.Context, id string, params repository.UpdateReportJobParams) error {
	m.updates = append(m.updates, params)
	job, ok := m.jobs[id]
	if !ok {
		return sql.ErrNoRows
	}
	if params.Status != nil {
		job.Status = *params.Status
	}
	if params.Progress != nil {
		job.Progress = *params.Progress
	}
	if params.ResultURL != nil {
		job.ResultURL = params.ResultURL
	}
	if params.ErrorMessage != nil {
		job.ErrorMessage = params.ErrorMessage
	}
	m.jobs[id] = job
	return nil
}

func (m *mockReportStore) ListQueued(ctx context.Context, limit int) ([]models.ReportJob, error) {
	out := make([]models.ReportJob, 0)
	for _, job := range m.jobs {
		if job.Status == models.ReportStatusQueued {
			out = append(out, job)
		}
	}
	return out, nil
}

func (m *mockReportStore) ListFinishedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.ReportJob, error) {
	return nil, nil
}

type mockDispatcher struct {
	enqueued []jobs.Job
	err      error
}

func (m *mockDispatcher) Enqueue(job jobs.Job) error {
	if m.err != nil {
		return m.err
	}
	m.enqueued = append(m.enqueued, job)
	return nil
}

type mockGenerator struct {
	result *ExportResult
	err    error
	calls  int
}

func (m *mockGenerator) Generate(ctx context.Context, job *models.ReportJob) (*ExportResult, error) {
	m.calls++
	return m.result, m.err
}

type captureAudit struct{ entries []*models.AuditLog }

func (c *captureAudit) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	c.entries = append(c.entries, log)
	return nil
}

func adminActor() *models.JWTClaims {
	return &models.JWTClaims{UserID: "admin-1", ClinicID: "clinic-1", Role: models.RoleAdmin}
}

func staffActor() *models.JWTClaims {
	return &models.JWTClaims{UserID: "user-2", ClinicID: "clinic-1", Role: models.RoleStaff, StaffID: "staff-2"}
}

func TestReportServiceCreateJob(t *testing.T) {
	store := &mockReportStore{}
	queue := &mockDispatcher{}
	audit := &captureAudit{}
	svc := NewReportService(store, queue, nil, audit, nil, ReportServiceConfig{})

	resp, err := svc.CreateJob(context.Background(), dto.ReportRequest{
		Type:   models.ReportTypePatients,
		Format: models.ReportFormatCSV,
	}, adminActor())
	require.NoError(t, err)

	assert.Equal(t, models.ReportStatusQueued, resp.Status)
	require.Len(t, queue.enqueued, 1)
	assert.Equal(t, resp.ID, queue.enqueued[0].ID)
	job := store.jobs[resp.ID]
	assert.Equal(t, "clinic-1", job.ClinicID)
	assert.Equal(t, "admin-1", job.CreatedBy)
	require.Len(t, audit.entries, 1)
	assert.Equal(t, models.AuditActionExport, audit.entries[0].Action)
}

func TestReportServiceCreateJobValidation(t *testing.T) {
	svc := NewReportService(&mockReportStore{}, &mockDispatcher{}, nil, nil, nil, ReportServiceConfig{})
	ctx := context.Background()

	_, err := svc.CreateJob(ctx, dto.ReportRequest{Type: "grades", Format: models.ReportFormatCSV}, adminActor())
	require.Error(t, err)

	_, err = svc.CreateJob(ctx, dto.ReportRequest{Type: models.ReportTypePatients, Format: "xlsx"}, adminActor())
	require.Error(t, err)

	from := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	_, err = svc.CreateJob(ctx, dto.ReportRequest{Type: models.ReportTypePatients, Format: models.ReportFormatCSV, From: &from, To: &to}, adminActor())
	require.Error(t, err)
}

func TestReportServiceStaffRestrictedToOwnSchedule(t *testing.T) {
	store := &mockReportStore{}
	svc := NewReportService(store, &mockDispatcher{}, nil, nil, nil, ReportServiceConfig{})
	ctx := context.Background()

	_, err := svc.CreateJob(ctx, dto.ReportRequest{Type: models.ReportTypeRevenue, Format: models.ReportFormatCSV}, staffActor())
	require.Error(t, err)

	other := "staff-9"
	_, err = svc.CreateJob(ctx, dto.ReportRequest{Type: models.ReportTypeAppointments, Format: models.ReportFormatCSV, DentistID: &other}, staffActor())
	require.Error(t, err)

	own := "staff-2"
	_, err = svc.CreateJob(ctx, dto.ReportRequest{Type: models.ReportTypeAppointments, Format: models.ReportFormatCSV, DentistID: &own}, staffActor())
	require.NoError(t, err)
}

type exportWindowStub struct{ appointments []models.Appointment }

func (s *exportWindowStub) ListWindow(ctx context.Context, clinicID string, from, to time.Time) ([]models.Appointment, error) {
	return s.appointments, nil
}

func TestReportServiceExportCSVInline(t *testing.T) {
	appt := apptAt("a-1", time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC), "confirmed")
	appt.PatientName = strPtr("Jane Doe")
	exporter := NewExportService(ExportServiceParams{
		Appointments: &exportWindowStub{appointments: []models.Appointment{appt}},
	})
	svc := NewReportService(&mockReportStore{}, &mockDispatcher{}, exporter, nil, nil, ReportServiceConfig{})

	from := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC)
	req := dto.ReportRequest{Type: models.ReportTypeAppointments, From: &from, To: &to}

	data, filename, err := svc.ExportCSV(context.Background(), req, adminActor())
	require.NoError(t, err)
	require.Contains(t, filename, "appointments_clinic-1")
	require.Contains(t, string(data), "Jane Doe")

	_, _, err = svc.ExportCSV(context.Background(), dto.ReportRequest{Type: models.ReportTypeRevenue}, adminActor())
	require.Error(t, err)

	_, _, err = svc.ExportCSV(context.Background(), dto.ReportRequest{Type: models.ReportTypePatients}, staffActor())
	require.Error(t, err)
}

func TestReportServiceCreateJobEnqueueFailureMarksFailed(t *testing.T) {
	store := &mockReportStore{}
	svc := NewReportService(store, &mockDispatcher{err: assert.AnError}, nil, nil, nil, ReportServiceConfig{})

	_, err := svc.CreateJob(context.Background(), dto.ReportRequest{
		Type:   models.ReportTypePatients,
		Format: models.ReportFormatCSV,
	}, adminActor())
	require.Error(t, err)

	job := store.jobs["job-1"]
	assert.Equal(t, models.ReportStatusFailed, job.Status)
}

func TestReportServiceGetStatusScoping(t *testing.T) {
	store := &mockReportStore{jobs: map[string]models.ReportJob{
		"job-1": {ID: "job-1", ClinicID: "clinic-1", CreatedBy: "user-2", Status: models.ReportStatusProcessing, Progress: 10},
	}}
	svc := NewReportService(store, &mockDispatcher{}, nil, nil, nil, ReportServiceConfig{})
	ctx := context.Background()

	status, err := svc.GetStatus(ctx, "job-1", staffActor())
	require.NoError(t, err)
	assert.Equal(t, models.ReportStatusProcessing, status.Status)

	otherClinic := &models.JWTClaims{UserID: "user-2", ClinicID: "clinic-9", Role: models.RoleAdmin}
	_, err = svc.GetStatus(ctx, "job-1", otherClinic)
	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)

	otherStaff := &models.JWTClaims{UserID: "user-7", ClinicID: "clinic-1", Role: models.RoleStaff}
	_, err = svc.GetStatus(ctx, "job-1", otherStaff)
	require.Error(t, err)
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErr.Code)
}

func TestReportServiceRecoverPendingJobs(t *testing.T) {
	store := &mockReportStore{jobs: map[string]models.ReportJob{
		"queued":   {ID: "queued", ClinicID: "clinic-1", Status: models.ReportStatusQueued},
		"finished": {ID: "finished", ClinicID: "clinic-1", Status: models.ReportStatusFinished},
	}}
	queue := &mockDispatcher{}
	svc := NewReportService(store, queue, nil, nil, nil, ReportServiceConfig{})

	svc.RecoverPendingJobs(context.Background())
	require.Len(t, queue.enqueued, 1)
	assert.Equal(t, "queued", queue.enqueued[0].ID)
}

func TestReportWorkerFinishesJob(t *testing.T) {
	store := &mockReportStore{jobs: map[string]models.ReportJob{
		"job-1": {ID: "job-1", ClinicID: "clinic-1", Status: models.ReportStatusQueued},
	}}
	gen := &mockGenerator{result: &ExportResult{URL: "/api/v1/reports/download/tok", RelativePath: "report.csv"}}
	worker := NewReportWorker(store, gen, 3, nil)

	err := worker.Handle(context.Background(), jobs.Job{ID: "job-1", Attempt: 1})
	require.NoError(t, err)

	job := store.jobs["job-1"]
	assert.Equal(t, models.ReportStatusFinished, job.Status)
	assert.Equal(t, 100, job.Progress)
	require.NotNil(t, job.ResultURL)
	assert.Equal(t, "/api/v1/reports/download/tok", *job.ResultURL)
}

func TestReportWorkerRetriesThenFails(t *testing.T) {
	store := &mockReportStore{jobs: map[string]models.ReportJob{
		"job-1": {ID: "job-1", ClinicID: "clinic-1", Status: models.ReportStatusQueued},
	}}
	gen := &mockGenerator{err: assert.AnError}
	worker := NewReportWorker(store, gen, 2, nil)
	ctx := context.Background()

	// First attempt requeues for retry.
	err := worker.Handle(ctx, jobs.Job{ID: "job-1", Attempt: 1})
	require.Error(t, err)
	assert.Equal(t, models.ReportStatusQueued, store.jobs["job-1"].Status)

	// Final attempt marks the job failed.
	err = worker.Handle(ctx, jobs.Job{ID: "job-1", Attempt: 2})
	require.Error(t, err)
	job := store.jobs["job-1"]
	assert.Equal(t, models.ReportStatusFailed, job.Status)
	require.NotNil(t, job.ErrorMessage)
}
