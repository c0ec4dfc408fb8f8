package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dentalogic/clinic-api/internal/models"
	appErrors "github.com/dentalogic/clinic-api/pkg/errors"
)

type appointmentRepository interface {
	List(ctx context.Context, filter models.AppointmentFilter) ([]models.Appointment, int, error)
	ListWindow(ctx context.Context, clinicID string, from, to time.Time) ([]models.Appointment, error)
	FindByID(ctx context.Context, clinicID, id string) (*models.Appointment, error)
	FindOverlapping(ctx context.Context, clinicID, dentistID string, from, to time.Time) ([]models.Appointment, error)
	Create(ctx context.Context, appointment *models.Appointment) error
	Update(ctx context.Context, appointment *models.Appointment) error
	Delete(ctx context.Context, clinicID, id string) error
}

// CreateAppointmentRequest holds payload for booking appointments.
// Blocked time slots are created with treatment_type "block" and no patient.
type CreateAppointmentRequest struct {
	PatientID       *string   `json:"patient_id"`
	DentistID       *string   `json:"dentist_id"`
	StartTime       time.Time `json:"start_time" validate:"required"`
	DurationMinutes *int      `json:"duration_minutes" validate:"omitempty,gt=0"`
	Status          string    `json:"status"`
	Title           string    `json:"title" validate:"required"`
	TreatmentType   *string   `json:"treatment_type"`
	Notes           *string   `json:"notes"`
}

// UpdateAppointmentRequest holds payload for rescheduling or editing.
type UpdateAppointmentRequest struct {
	PatientID       *string   `json:"patient_id"`
	DentistID       *string   `json:"dentist_id"`
	StartTime       time.Time `json:"start_time" validate:"required"`
	DurationMinutes *int      `json:"duration_minutes" validate:"omitempty,gt=0"`
	Status          string    `json:"status" validate:"required"`
	Title           string    `json:"title" validate:"required"`
	TreatmentType   *string   `json:"treatment_type"`
	Notes           *string   `json:"notes"`
}

// AppointmentServiceConfig tunes calendar caching.
type AppointmentServiceConfig struct {
	CalendarCacheTTL time.Duration
}

// AppointmentService handles appointment booking and calendar resolution.
type AppointmentService struct {
	repo      appointmentRepository
	views     *ScheduleViewService
	cache     *CacheService
	validator *validator.Validate
	logger    *zap.Logger
	cfg       AppointmentServiceConfig
}

// NewAppointmentService constructs the appointment service.
func NewAppointmentService(repo appointmentRepository, views *ScheduleViewService, cache *CacheService, validate *validator.Validate, logger *zap.Logger, cfg AppointmentServiceConfig) *AppointmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.CalendarCacheTTL <= 0 {
		cfg.CalendarCacheTTL = 60 * time.Second
	}
	if views == nil {
		views = NewScheduleViewService(logger)
	}
	return &AppointmentService{repo: repo, views: views, cache: cache, validator: validate, logger: logger, cfg: cfg}
}

// List returns appointments matching the filter with pagination metadata.
func (s *AppointmentService) List(ctx context.Context, filter models.AppointmentFilter) ([]models.Appointment, *models.Pagination, error) {
	appointments, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list appointments")
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
	return appointments, pagination, nil
}

// Get returns a single appointment scoped to the clinic.
func (s *AppointmentService) Get(ctx context.Context, clinicID, id string) (*models.Appointment, error) {
	appointment, err := s.repo.FindByID(ctx, clinicID, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "appointment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load appointment")
	}
	return appointment, nil
}

// Create books an appointment or a blocked time slot. Booking fails when the
// dentist already has an overlapping non-cancelled appointment.
func (s *AppointmentService) Create(ctx context.Context, clinicID string, req CreateAppointmentRequest) (*models.Appointment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid appointment payload")
	}

	appointment := &models.Appointment{
		ID:              uuid.NewString(),
		ClinicID:        clinicID,
		PatientID:       req.PatientID,
		DentistID:       req.DentistID,
		StartTime:       req.StartTime,
		DurationMinutes: req.DurationMinutes,
		Status:          string(models.NormalizeStatus(req.Status)),
		Title:           strings.TrimSpace(req.Title),
		TreatmentType:   req.TreatmentType,
		Notes:           req.Notes,
		CreatedAt:       time.Now().UTC(),
		UpdatedAt:       time.Now().UTC(),
	}

	if err := s.ensureSlotFree(ctx, appointment, ""); err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, appointment); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create appointment")
	}
	s.invalidateCalendar(ctx, clinicID)
	return appointment, nil
}

// Update reschedules or edits an existing appointment.
func (s *AppointmentService) Update(ctx context.Context, clinicID, id string, req UpdateAppointmentRequest) (*models.Appointment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid appointment payload")
	}

	existing, err := s.repo.FindByID(ctx, clinicID, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "appointment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load appointment")
	}

	existing.PatientID = req.PatientID
	existing.DentistID = req.DentistID
	existing.StartTime = req.StartTime
	existing.DurationMinutes = req.DurationMinutes
	existing.Status = string(models.NormalizeStatus(req.Status))
	existing.Title = strings.TrimSpace(req.Title)
	existing.TreatmentType = req.TreatmentType
	existing.Notes = req.Notes
	existing.UpdatedAt = time.Now().UTC()

	if err := s.ensureSlotFree(ctx, existing, existing.ID); err != nil {
		return nil, err
	}

	if err := s.repo.Update(ctx, existing); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update appointment")
	}
	s.invalidateCalendar(ctx, clinicID)
	return existing, nil
}

// Cancel marks an appointment cancelled without removing the record.
func (s *AppointmentService) Cancel(ctx context.Context, clinicID, id string) (*models.Appointment, error) {
	existing, err := s.repo.FindByID(ctx, clinicID, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "appointment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load appointment")
	}
	existing.Status = string(models.StatusCancelled)
	existing.UpdatedAt = time.Now().UTC()
	if err := s.repo.Update(ctx, existing); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to cancel appointment")
	}
	s.invalidateCalendar(ctx, clinicID)
	return existing, nil
}

// Delete removes an appointment. Blocked time slots are deleted this way.
func (s *AppointmentService) Delete(ctx context.Context, clinicID, id string) error {
	if err := s.repo.Delete(ctx, clinicID, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "appointment not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete appointment")
	}
	s.invalidateCalendar(ctx, clinicID)
	return nil
}

// Calendar resolves the schedule view for the caller. The second return
// value reports whether the resolved view came from cache.
func (s *AppointmentService) Calendar(ctx context.Context, clinicID string, state models.ViewState) (*models.ResolvedView, bool, error) {
	cacheKey := s.calendarCacheKey(clinicID, state)
	if s.cache != nil {
		var cached models.ResolvedView
		hit, err := s.cache.Get(ctx, cacheKey, &cached)
		if err != nil {
			s.logger.Warn("calendar cache read failed", zap.String("key", cacheKey), zap.Error(err))
		} else if hit {
			return &cached, true, nil
		}
	}

	// Window bounds are recomputed by the resolver; fetch a snapshot wide
	// enough for any granularity anchored at the reference date.
	from := state.ReferenceDate.AddDate(0, -1, -7)
	to := state.ReferenceDate.AddDate(0, 1, 7)
	records, err := s.repo.ListWindow(ctx, clinicID, from, to)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load appointments for calendar")
	}

	view, err := s.views.ResolveView(records, state)
	if err != nil {
		return nil, false, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, cacheKey, view, s.cfg.CalendarCacheTTL); err != nil {
			s.logger.Warn("calendar cache write failed", zap.String("key", cacheKey), zap.Error(err))
		}
	}
	return view, false, nil
}

func (s *AppointmentService) calendarCacheKey(clinicID string, state models.ViewState) string {
	staff := state.CallerStaffID
	if state.CallerRole == models.RoleAdmin {
		staff = "admin"
	}
	return fmt.Sprintf("calendar:%s:%s:%s:%s:%s",
		clinicID,
		state.ReferenceDate.Format("2006-01-02"),
		state.Granularity,
		state.StatusScope,
		staff,
	)
}

func (s *AppointmentService) invalidateCalendar(ctx context.Context, clinicID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, fmt.Sprintf("calendar:%s:*", clinicID)); err != nil {
		s.logger.Warn("calendar cache invalidation failed", zap.String("clinic_id", clinicID), zap.Error(err))
	}
}

// ensureSlotFree rejects overlapping bookings for the same dentist. Blocked
// time entries also occupy the dentist's slot when one is assigned.
func (s *AppointmentService) ensureSlotFree(ctx context.Context, appointment *models.Appointment, excludeID string) error {
	if appointment.DentistID == nil || *appointment.DentistID == "" {
		return nil
	}
	status := models.NormalizeStatus(appointment.Status)
	if status == models.StatusCancelled || status == models.StatusNoShow {
		return nil
	}
	end := appointment.StartTime.Add(time.Duration(appointment.Duration()) * time.Minute)
	overlaps, err := s.repo.FindOverlapping(ctx, appointment.ClinicID, *appointment.DentistID, appointment.StartTime, end)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check dentist availability")
	}
	for _, other := range overlaps {
		if other.ID != excludeID {
			return appErrors.Clone(appErrors.ErrDoubleBooked, fmt.Sprintf("dentist already booked from %s", other.StartTime.Format("3:04 PM")))
		}
	}
	return nil
}
