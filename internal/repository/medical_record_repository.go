package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/dentalogic/clinic-api/internal/models"
)

const medicalRecordColumns = `id, clinic_id, patient_id, dentist_id, visit_date, tooth_ref, diagnosis, procedure, notes, created_at, updated_at`

// MedicalRecordRepository provides persistence for clinical history entries.
type MedicalRecordRepository struct {
	db *sqlx.DB
}

// NewMedicalRecordRepository creates a new medical record repository.
func NewMedicalRecordRepository(db *sqlx.DB) *MedicalRecordRepository {
	return &MedicalRecordRepository{db: db}
}

// List returns clinical history entries matching the filter.
func (r *MedicalRecordRepository) List(ctx context.Context, filter models.MedicalRecordFilter) ([]models.MedicalRecord, int, error) {
	base := "FROM medical_records WHERE clinic_id = $1"
	args := []interface{}{filter.ClinicID}
	var conditions []string

	if filter.PatientID != "" {
		conditions = append(conditions, fmt.Sprintf("patient_id = $%d", len(args)+1))
		args = append(args, filter.PatientID)
	}
	if filter.DentistID != "" {
		conditions = append(conditions, fmt.Sprintf("dentist_id = $%d", len(args)+1))
		args = append(args, filter.DentistID)
	}
	if filter.From != nil {
		conditions = append(conditions, fmt.Sprintf("visit_date >= $%d", len(args)+1))
		args = append(args, *filter.From)
	}
	if filter.To != nil {
		conditions = append(conditions, fmt.Sprintf("visit_date <= $%d", len(args)+1))
		args = append(args, *filter.To)
	}

	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s %s ORDER BY visit_date DESC, created_at DESC LIMIT %d OFFSET %d", medicalRecordColumns, base, size, offset)
	var records []models.MedicalRecord
	if err := r.db.SelectContext(ctx, &records, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list medical records: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count medical records: %w", err)
	}

	return records, total, nil
}

// FindByID loads a clinical history entry by id within a clinic.
func (r *MedicalRecordRepository) FindByID(ctx context.Context, clinicID, id string) (*models.MedicalRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM medical_records WHERE clinic_id = $1 AND id = $2`, medicalRecordColumns)
	var record models.MedicalRecord
	if err := r.db.GetContext(ctx, &record, query, clinicID, id); err != nil {
		return nil, err
	}
	return &record, nil
}

// Create stores a new clinical history entry.
func (r *MedicalRecordRepository) Create(ctx context.Context, record *models.MedicalRecord) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now

	const query = `INSERT INTO medical_records (id, clinic_id, patient_id, dentist_id, visit_date, tooth_ref, diagnosis, procedure, notes, created_at, updated_at)
		VALUES (:id, :clinic_id, :patient_id, :dentist_id, :visit_date, :tooth_ref, :diagnosis, :procedure, :notes, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, record); err != nil {
		return fmt.Errorf("create medical record: %w", err)
	}
	return nil
}

// Update modifies a clinical history entry.
func (r *MedicalRecordRepository) Update(ctx context.Context, record *models.MedicalRecord) error {
	record.UpdatedAt = time.Now().UTC()
	const query = `UPDATE medical_records SET dentist_id = :dentist_id, visit_date = :visit_date, tooth_ref = :tooth_ref, diagnosis = :diagnosis, procedure = :procedure, notes = :notes, updated_at = :updated_at WHERE id = :id AND clinic_id = :clinic_id`
	if _, err := r.db.NamedExecContext(ctx, query, record); err != nil {
		return fmt.Errorf("update medical record: %w", err)
	}
	return nil
}
