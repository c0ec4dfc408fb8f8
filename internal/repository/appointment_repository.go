package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/dentalogic/clinic-api/internal/models"
)

const appointmentColumns = `a.id, a.clinic_id, a.patient_id, p.first_name || ' ' || p.last_name AS patient_name, a.dentist_id, a.start_time, a.duration_minutes, a.status, a.title, a.treatment_type, a.notes, a.created_at, a.updated_at`

// AppointmentRepository provides persistence for appointments and blocked time.
type AppointmentRepository struct {
	db *sqlx.DB
}

// NewAppointmentRepository creates a new appointment repository.
func NewAppointmentRepository(db *sqlx.DB) *AppointmentRepository {
	return &AppointmentRepository{db: db}
}

// List returns appointments with optional filtering and pagination.
func (r *AppointmentRepository) List(ctx context.Context, filter models.AppointmentFilter) ([]models.Appointment, int, error) {
	base := "FROM appointments a LEFT JOIN patients p ON p.id = a.patient_id WHERE a.clinic_id = $1"
	args := []interface{}{filter.ClinicID}
	var conditions []string

	if filter.PatientID != "" {
		conditions = append(conditions, fmt.Sprintf("a.patient_id = $%d", len(args)+1))
		args = append(args, filter.PatientID)
	}
	if filter.DentistID != "" {
		conditions = append(conditions, fmt.Sprintf("a.dentist_id = $%d", len(args)+1))
		args = append(args, filter.DentistID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("LOWER(a.status) = LOWER($%d)", len(args)+1))
		args = append(args, filter.Status)
	}
	if filter.From != nil {
		conditions = append(conditions, fmt.Sprintf("a.start_time >= $%d", len(args)+1))
		args = append(args, *filter.From)
	}
	if filter.To != nil {
		conditions = append(conditions, fmt.Sprintf("a.start_time <= $%d", len(args)+1))
		args = append(args, *filter.To)
	}

	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	sortBy := filter.SortBy
	allowedSorts := map[string]string{
		"start_time": "a.start_time",
		"status":     "a.status",
		"created_at": "a.created_at",
	}
	column, ok := allowedSorts[sortBy]
	if !ok {
		column = "a.start_time"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "ASC"
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

	query := fmt.Sprintf("SELECT %s %s ORDER BY %s %s, a.id ASC LIMIT %d OFFSET %d", appointmentColumns, base, column, order, size, offset)
	var appointments []models.Appointment
	if err := r.db.SelectContext(ctx, &appointments, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list appointments: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count appointments: %w", err)
	}

	return appointments, total, nil
}

// ListWindow returns the appointment snapshot for a clinic within an
// inclusive time window, the shape the calendar resolver consumes.
func (r *AppointmentRepository) ListWindow(ctx context.Context, clinicID string, from, to time.Time) ([]models.Appointment, error) {
	query := fmt.Sprintf(`SELECT %s FROM appointments a LEFT JOIN patients p ON p.id = a.patient_id WHERE a.clinic_id = $1 AND a.start_time >= $2 AND a.start_time <= $3 ORDER BY a.start_time ASC, a.id ASC`, appointmentColumns)
	var appointments []models.Appointment
	if err := r.db.SelectContext(ctx, &appointments, query, clinicID, from, to); err != nil {
		return nil, fmt.Errorf("list appointment window: %w", err)
	}
	return appointments, nil
}

// FindByID loads an appointment by id within a clinic.
func (r *AppointmentRepository) FindByID(ctx context.Context, clinicID, id string) (*models.Appointment, error) {
	query := fmt.Sprintf(`SELECT %s FROM appointments a LEFT JOIN patients p ON p.id = a.patient_id WHERE a.clinic_id = $1 AND a.id = $2`, appointmentColumns)
	var appointment models.Appointment
	if err := r.db.GetContext(ctx, &appointment, query, clinicID, id); err != nil {
		return nil, err
	}
	return &appointment, nil
}

// FindOverlapping returns a dentist's appointments intersecting the given
// interval, used for double-booking detection. Cancelled rows are ignored.
func (r *AppointmentRepository) FindOverlapping(ctx context.Context, clinicID, dentistID string, from, to time.Time) ([]models.Appointment, error) {
	query := fmt.Sprintf(`SELECT %s FROM appointments a LEFT JOIN patients p ON p.id = a.patient_id
		WHERE a.clinic_id = $1 AND a.dentist_id = $2
		AND LOWER(a.status) NOT IN ('cancelled', 'no_show')
		AND a.start_time < $4
		AND a.start_time + (COALESCE(a.duration_minutes, 60) * INTERVAL '1 minute') > $3`, appointmentColumns)
	var appointments []models.Appointment
	if err := r.db.SelectContext(ctx, &appointments, query, clinicID, dentistID, from, to); err != nil {
		return nil, fmt.Errorf("find overlapping appointments: %w", err)
	}
	return appointments, nil
}

// Create stores a new appointment record.
func (r *AppointmentRepository) Create(ctx context.Context, appointment *models.Appointment) error {
	if appointment.ID == "" {
		appointment.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if appointment.CreatedAt.IsZero() {
		appointment.CreatedAt = now
	}
	appointment.UpdatedAt = now

	const query = `INSERT INTO appointments (id, clinic_id, patient_id, dentist_id, start_time, duration_minutes, status, title, treatment_type, notes, created_at, updated_at)
		VALUES (:id, :clinic_id, :patient_id, :dentist_id, :start_time, :duration_minutes, :status, :title, :treatment_type, :notes, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, appointment); err != nil {
		return fmt.Errorf("create appointment: %w", err)
	}
	return nil
}

// Update modifies an appointment record.
func (r *AppointmentRepository) Update(ctx context.Context, appointment *models.Appointment) error {
	appointment.UpdatedAt = time.Now().UTC()
	const query = `UPDATE appointments SET patient_id = :patient_id, dentist_id = :dentist_id, start_time = :start_time, duration_minutes = :duration_minutes, status = :status, title = :title, treatment_type = :treatment_type, notes = :notes, updated_at = :updated_at WHERE id = :id AND clinic_id = :clinic_id`
	if _, err := r.db.NamedExecContext(ctx, query, appointment); err != nil {
		return fmt.Errorf("update appointment: %w", err)
	}
	return nil
}

// Delete removes an appointment by id. Returns sql.ErrNoRows when nothing
// matched so callers can surface a not-found.
func (r *AppointmentRepository) Delete(ctx context.Context, clinicID, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM appointments WHERE clinic_id = $1 AND id = $2`, clinicID, id)
	if err != nil {
		return fmt.Errorf("delete appointment: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
