package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/dentalogic/clinic-api/internal/dto"
	"github.com/dentalogic/clinic-api/internal/models"
	appErrors "github.com/dentalogic/clinic-api/pkg/errors"
)

type dashboardAppointmentSource interface {
	Calendar(ctx context.Context, clinicID string, state models.ViewState) (*models.ResolvedView, bool, error)
}

type dashboardPatientCounter interface {
	CountActive(ctx context.Context, clinicID string) (int, error)
}

type dashboardDentistLister interface {
	List(ctx context.Context, filter models.DentistFilter) ([]models.Dentist, int, error)
}

type dashboardRevenueProvider interface {
	Revenue(ctx context.Context, clinicID string, from, to time.Time) (*models.RevenueSummary, error)
}

// DashboardServiceConfig tunes dashboard behaviour.
type DashboardServiceConfig struct {
	CacheTTL       time.Duration
	RevenueEnabled bool
}

// DashboardService composes the practice overview payload.
type DashboardService struct {
	appointments dashboardAppointmentSource
	patients     dashboardPatientCounter
	dentists     dashboardDentistLister
	billing      dashboardRevenueProvider
	cache        *CacheService
	logger       *zap.Logger
	now          func() time.Time
	cfg          DashboardServiceConfig
}

// DashboardServiceParams groups constructor dependencies.
type DashboardServiceParams struct {
	Appointments dashboardAppointmentSource
	Patients     dashboardPatientCounter
	Dentists     dashboardDentistLister
	Billing      dashboardRevenueProvider
	Cache        *CacheService
	Logger       *zap.Logger
	Config       DashboardServiceConfig
}

// NewDashboardService constructs a DashboardService with sane defaults.
func NewDashboardService(params DashboardServiceParams) *DashboardService {
	cfg := params.Config
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 5 * time.Minute
	}
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DashboardService{
		appointments: params.Appointments,
		patients:     params.Patients,
		dentists:     params.Dentists,
		billing:      params.Billing,
		cache:        params.Cache,
		logger:       logger,
		now:          time.Now,
		cfg:          cfg,
	}
}

// Overview returns the practice dashboard for the given date and reports
// whether the payload came from cache.
func (s *DashboardService) Overview(ctx context.Context, clinicID string, date time.Time) (*dto.PracticeDashboardResponse, bool, error) {
	if clinicID == "" {
		return nil, false, appErrors.Clone(appErrors.ErrValidation, "clinic id is required")
	}
	cacheKey := fmt.Sprintf("dash:%s:%s", clinicID, date.Format("2006-01-02"))
	if s.cache != nil {
		var cached dto.PracticeDashboardResponse
		hit, err := s.cache.Get(ctx, cacheKey, &cached)
		if err != nil {
			s.logger.Warn("dashboard cache read failed", zap.String("key", cacheKey), zap.Error(err))
		} else if hit {
			return &cached, true, nil
		}
	}

	overview, err := s.compose(ctx, clinicID, date)
	if err != nil {
		return nil, false, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, cacheKey, overview, s.cfg.CacheTTL); err != nil {
			s.logger.Warn("dashboard cache write failed", zap.String("key", cacheKey), zap.Error(err))
		}
	}
	return overview, false, nil
}

func (s *DashboardService) compose(ctx context.Context, clinicID string, date time.Time) (*dto.PracticeDashboardResponse, error) {
	// The overview is always admin-scoped; callers are gated by RBAC.
	today, _, err := s.appointments.Calendar(ctx, clinicID, models.ViewState{
		ReferenceDate: date,
		Granularity:   models.GranularityDay,
		StatusScope:   models.ScopeAll,
		CallerRole:    models.RoleAdmin,
	})
	if err != nil {
		return nil, err
	}

	week, _, err := s.appointments.Calendar(ctx, clinicID, models.ViewState{
		ReferenceDate: date,
		Granularity:   models.GranularityWeek,
		StatusScope:   models.ScopeOpen,
		CallerRole:    models.RoleAdmin,
	})
	if err != nil {
		return nil, err
	}

	weekLoad, err := s.weekLoad(ctx, clinicID, week.Items)
	if err != nil {
		return nil, err
	}

	activePatients, err := s.patients.CountActive(ctx, clinicID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count patients")
	}

	overview := &dto.PracticeDashboardResponse{
		Date:           date,
		Today:          today.Summary,
		WeekLoad:       weekLoad,
		ActivePatients: activePatients,
		GeneratedAt:    s.now().UTC(),
	}

	if s.cfg.RevenueEnabled && s.billing != nil {
		monthStart := time.Date(date.Year(), date.Month(), 1, 0, 0, 0, 0, date.Location())
		monthEnd := monthStart.AddDate(0, 1, 0)
		revenue, err := s.billing.Revenue(ctx, clinicID, monthStart, monthEnd)
		if err != nil {
			s.logger.Warn("dashboard revenue aggregation failed", zap.Error(err))
		} else {
			overview.Revenue = revenue
		}
	}

	return overview, nil
}

func (s *DashboardService) weekLoad(ctx context.Context, clinicID string, items []models.DisplayAppointment) ([]dto.DentistLoad, error) {
	active := true
	dentists, _, err := s.dentists.List(ctx, models.DentistFilter{ClinicID: clinicID, Active: &active, PageSize: 100})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list dentists")
	}

	byDentist := make(map[string]*dto.DentistLoad, len(dentists))
	for _, dentist := range dentists {
		byDentist[dentist.ID] = &dto.DentistLoad{DentistID: dentist.ID, FullName: dentist.FullName}
	}
	for _, item := range items {
		if item.IsBlockedTime || item.DentistID == "" {
			continue
		}
		load, ok := byDentist[item.DentistID]
		if !ok {
			continue
		}
		load.Appointments++
		load.BookedMinutes += item.DurationMinutes
	}

	result := make([]dto.DentistLoad, 0, len(byDentist))
	for _, load := range byDentist {
		result = append(result, *load)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].BookedMinutes != result[j].BookedMinutes {
			return result[i].BookedMinutes > result[j].BookedMinutes
		}
		return result[i].FullName < result[j].FullName
	})
	return result, nil
}
