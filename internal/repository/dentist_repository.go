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

const dentistColumns = `id, clinic_id, full_name, email, phone, specialty, active, created_at, updated_at`

// DentistRepository provides persistence for practitioner profiles.
type DentistRepository struct {
	db *sqlx.DB
}

// NewDentistRepository creates a new dentist repository.
func NewDentistRepository(db *sqlx.DB) *DentistRepository {
	return &DentistRepository{db: db}
}

// List returns dentists matching the filter together with the total count.
func (r *DentistRepository) List(ctx context.Context, filter models.DentistFilter) ([]models.Dentist, int, error) {
	base := "FROM dentists WHERE clinic_id = $1"
	args := []interface{}{filter.ClinicID}
	var conditions []string

	if filter.Active != nil {
		conditions = append(conditions, fmt.Sprintf("active = $%d", len(args)+1))
		args = append(args, *filter.Active)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("LOWER(full_name) LIKE $%d", len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
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

	query := fmt.Sprintf("SELECT %s %s ORDER BY full_name ASC LIMIT %d OFFSET %d", dentistColumns, base, size, offset)
	var dentists []models.Dentist
	if err := r.db.SelectContext(ctx, &dentists, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list dentists: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count dentists: %w", err)
	}

	return dentists, total, nil
}

// FindByID loads a dentist by id within a clinic.
func (r *DentistRepository) FindByID(ctx context.Context, clinicID, id string) (*models.Dentist, error) {
	query := fmt.Sprintf(`SELECT %s FROM dentists WHERE clinic_id = $1 AND id = $2`, dentistColumns)
	var dentist models.Dentist
	if err := r.db.GetContext(ctx, &dentist, query, clinicID, id); err != nil {
		return nil, err
	}
	return &dentist, nil
}

// Create stores a new dentist record.
func (r *DentistRepository) Create(ctx context.Context, dentist *models.Dentist) error {
	if dentist.ID == "" {
		dentist.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if dentist.CreatedAt.IsZero() {
		dentist.CreatedAt = now
	}
	dentist.UpdatedAt = now

	const query = `INSERT INTO dentists (id, clinic_id, full_name, email, phone, specialty, active, created_at, updated_at)
		VALUES (:id, :clinic_id, :full_name, :email, :phone, :specialty, :active, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, dentist); err != nil {
		return fmt.Errorf("create dentist: %w", err)
	}
	return nil
}

// Update modifies a dentist record.
func (r *DentistRepository) Update(ctx context.Context, dentist *models.Dentist) error {
	dentist.UpdatedAt = time.Now().UTC()
	const query = `UPDATE dentists SET full_name = :full_name, email = :email, phone = :phone, specialty = :specialty, active = :active, updated_at = :updated_at WHERE id = :id AND clinic_id = :clinic_id`
	if _, err := r.db.NamedExecContext(ctx, query, dentist); err != nil {
		return fmt.Errorf("update dentist: %w", err)
	}
	return nil
}

// Deactivate soft-deletes a dentist profile.
func (r *DentistRepository) Deactivate(ctx context.Context, clinicID, id string) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE dentists SET active = FALSE, updated_at = $3 WHERE clinic_id = $1 AND id = $2`, clinicID, id, time.Now().UTC()); err != nil {
		return fmt.Errorf("deactivate dentist: %w", err)
	}
	return nil
}
