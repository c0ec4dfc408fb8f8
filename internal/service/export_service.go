package service

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/dentalogic/clinic-api/internal/models"
	"github.com/dentalogic/clinic-api/pkg/export"
	"github.com/dentalogic/clinic-api/pkg/storage"
)

type exportPatientSource interface {
	List(ctx context.Context, filter models.PatientFilter) ([]models.Patient, int, error)
}

type exportAppointmentSource interface {
	ListWindow(ctx context.Context, clinicID string, from, to time.Time) ([]models.Appointment, error)
}

type exportInvoiceSource interface {
	List(ctx context.Context, filter models.InvoiceFilter) ([]models.Invoice, int, error)
	RevenueSummary(ctx context.Context, clinicID string, from, to time.Time) (*models.RevenueSummary, error)
}

type fileStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	Delete(filename string) error
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	APIPrefix string
	ResultTTL time.Duration
}

// ExportResult captures successful generation metadata.
type ExportResult struct {
	RelativePath string
	Token        string
	URL          string
	Format       models.ReportFormat
	ExpiresAt    time.Time
}

// ExportService builds report datasets and persists rendered files.
type ExportService struct {
	patients     exportPatientSource
	appointments exportAppointmentSource
	invoices     exportInvoiceSource
	storage      fileStorage
	csv          csvRenderer
	pdf          pdfRenderer
	signer       *storage.SignedURLSigner
	logger       *zap.Logger
	cfg          ExportConfig
}

// ExportServiceParams groups constructor dependencies.
type ExportServiceParams struct {
	Patients     exportPatientSource
	Appointments exportAppointmentSource
	Invoices     exportInvoiceSource
	Storage      fileStorage
	Signer       *storage.SignedURLSigner
	CSV          csvRenderer
	PDF          pdfRenderer
	Logger       *zap.Logger
	Config       ExportConfig
}

// NewExportService constructs an ExportService.
func NewExportService(params ExportServiceParams) *ExportService {
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg := params.Config
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	csv := params.CSV
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	pdf := params.PDF
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ExportService{
		patients:     params.Patients,
		appointments: params.Appointments,
		invoices:     params.Invoices,
		storage:      params.Storage,
		csv:          csv,
		pdf:          pdf,
		signer:       params.Signer,
		logger:       logger,
		cfg:          cfg,
	}
}

// Generate builds the dataset for the job and stores the rendered export.
func (s *ExportService) Generate(ctx context.Context, job *models.ReportJob) (*ExportResult, error) {
	if job == nil {
		return nil, fmt.Errorf("job nil")
	}
	dataset, title, err := s.buildDataset(ctx, job)
	if err != nil {
		return nil, err
	}

	var payload []byte
	switch job.Params.Format {
	case models.ReportFormatCSV:
		payload, err = s.csv.Render(dataset)
	case models.ReportFormatPDF:
		payload, err = s.pdf.Render(dataset, title)
	default:
		err = fmt.Errorf("unsupported format %s", job.Params.Format)
	}
	if err != nil {
		return nil, err
	}

	filename := s.buildFilename(job)
	relPath, err := s.storage.Save(filename, payload)
	if err != nil {
		return nil, err
	}

	token, expiresAt, err := s.signer.Generate(job.ID, relPath)
	if err != nil {
		return nil, err
	}
	signedURL := strings.TrimRight(s.cfg.APIPrefix, "/")
	if signedURL == "" {
		signedURL = "/api/v1"
	}
	signedURL = fmt.Sprintf("%s/reports/download/%s", signedURL, token)

	return &ExportResult{
		RelativePath: relPath,
		Token:        token,
		URL:          signedURL,
		Format:       job.Params.Format,
		ExpiresAt:    expiresAt,
	}, nil
}

// ParseToken validates download token metadata.
func (s *ExportService) ParseToken(token string, allowExpired bool) (jobID, relPath string, expiresAt time.Time, err error) {
	return s.signer.Parse(token, allowExpired)
}

// Open returns a handle to the stored file.
func (s *ExportService) Open(relPath string) (*os.File, error) {
	return s.storage.Open(relPath)
}

// Delete removes a stored export file.
func (s *ExportService) Delete(relPath string) error {
	return s.storage.Delete(relPath)
}

// Cleanup removes files older than ttl (defaults to configured ResultTTL when ttl <= 0).
func (s *ExportService) Cleanup(ttl time.Duration) ([]string, error) {
	if ttl <= 0 {
		ttl = s.cfg.ResultTTL
	}
	return s.storage.CleanupOlderThan(ttl)
}

// RenderCSV builds the dataset for the job and returns CSV bytes without
// persisting anything to storage.
func (s *ExportService) RenderCSV(ctx context.Context, job *models.ReportJob) ([]byte, string, error) {
	if job == nil {
		return nil, "", fmt.Errorf("job nil")
	}
	dataset, _, err := s.buildDataset(ctx, job)
	if err != nil {
		return nil, "", err
	}
	data, err := s.csv.Render(dataset)
	if err != nil {
		return nil, "", err
	}
	return data, s.buildFilename(job), nil
}

func (s *ExportService) buildFilename(job *models.ReportJob) string {
	timestamp := time.Now().UTC().Format("20060102_150405")
	return fmt.Sprintf("%s_%s_%s.%s", strings.ToLower(string(job.Type)), job.ClinicID, timestamp, job.Params.Format)
}

func (s *ExportService) buildDataset(ctx context.Context, job *models.ReportJob) (export.Dataset, string, error) {
	switch job.Type {
	case models.ReportTypePatients:
		return s.buildPatientDataset(ctx, job)
	case models.ReportTypeAppointments:
		return s.buildAppointmentDataset(ctx, job)
	case models.ReportTypeRevenue:
		return s.buildRevenueDataset(ctx, job)
	default:
		return export.Dataset{}, "", fmt.Errorf("unsupported report type %s", job.Type)
	}
}

func (s *ExportService) buildPatientDataset(ctx context.Context, job *models.ReportJob) (export.Dataset, string, error) {
	patients, _, err := s.patients.List(ctx, models.PatientFilter{ClinicID: job.ClinicID, PageSize: 10000})
	if err != nil {
		return export.Dataset{}, "", err
	}
	rows := make([]map[string]string, 0, len(patients))
	for _, patient := range patients {
		rows = append(rows, map[string]string{
			"Name":      patient.FullName(),
			"Email":     deref(patient.Email),
			"Phone":     deref(patient.Phone),
			"Insurance": deref(patient.InsuranceCarrier),
			"Active":    fmt.Sprintf("%t", patient.Active),
			"Since":     patient.CreatedAt.UTC().Format("2006-01-02"),
		})
	}
	dataset := export.Dataset{
		Headers: []string{"Name", "Email", "Phone", "Insurance", "Active", "Since"},
		Rows:    rows,
	}
	return dataset, "Patient Roster", nil
}

func (s *ExportService) buildAppointmentDataset(ctx context.Context, job *models.ReportJob) (export.Dataset, string, error) {
	from, to := reportWindow(job.Params)
	appointments, err := s.appointments.ListWindow(ctx, job.ClinicID, from, to)
	if err != nil {
		return export.Dataset{}, "", err
	}
	rows := make([]map[string]string, 0, len(appointments))
	for _, appt := range appointments {
		if job.Params.DentistID != nil && deref(appt.DentistID) != *job.Params.DentistID {
			continue
		}
		rows = append(rows, map[string]string{
			"Date":     appt.StartTime.Format("2006-01-02"),
			"Time":     appt.StartTime.Format("3:04 PM"),
			"Patient":  deref(appt.PatientName),
			"Title":    appt.Title,
			"Status":   string(appt.NormalizedStatus()),
			"Duration": fmt.Sprintf("%d min", appt.Duration()),
		})
	}
	dataset := export.Dataset{
		Headers: []string{"Date", "Time", "Patient", "Title", "Status", "Duration"},
		Rows:    rows,
	}
	title := fmt.Sprintf("Appointments %s to %s", from.Format("2006-01-02"), to.Format("2006-01-02"))
	return dataset, title, nil
}

func (s *ExportService) buildRevenueDataset(ctx context.Context, job *models.ReportJob) (export.Dataset, string, error) {
	from, to := reportWindow(job.Params)
	invoices, _, err := s.invoices.List(ctx, models.InvoiceFilter{ClinicID: job.ClinicID, From: &from, To: &to, PageSize: 10000})
	if err != nil {
		return export.Dataset{}, "", err
	}
	summary, err := s.invoices.RevenueSummary(ctx, job.ClinicID, from, to)
	if err != nil {
		return export.Dataset{}, "", err
	}
	rows := make([]map[string]string, 0, len(invoices)+1)
	for _, invoice := range invoices {
		rows = append(rows, map[string]string{
			"Invoice":     invoice.ID,
			"Description": invoice.Description,
			"Amount":      formatCents(invoice.AmountCents),
			"Status":      string(invoice.Status),
			"Issued":      formatReportTime(invoice.IssuedAt),
		})
	}
	rows = append(rows, map[string]string{
		"Invoice":     "TOTAL",
		"Description": fmt.Sprintf("%d invoices, %d paid", summary.InvoiceCount, summary.PaidCount),
		"Amount":      formatCents(summary.TotalCents),
		"Status":      fmt.Sprintf("outstanding %s", formatCents(summary.OutstandingCents)),
		"Issued":      "",
	})
	dataset := export.Dataset{
		Headers: []string{"Invoice", "Description", "Amount", "Status", "Issued"},
		Rows:    rows,
	}
	title := fmt.Sprintf("Revenue %s to %s", from.Format("2006-01-02"), to.Format("2006-01-02"))
	return dataset, title, nil
}

// reportWindow defaults to the trailing 30 days when bounds are missing.
func reportWindow(params models.ReportJobParams) (time.Time, time.Time) {
	now := time.Now().UTC()
	to := now
	if params.To != nil {
		to = *params.To
	}
	from := to.AddDate(0, 0, -30)
	if params.From != nil {
		from = *params.From
	}
	return from, to
}

func deref(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}

func formatCents(cents int64) string {
	return fmt.Sprintf("%.2f", float64(cents)/100)
}

func formatReportTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
