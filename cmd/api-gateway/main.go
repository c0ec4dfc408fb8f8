package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/dentalogic/clinic-api/api/swagger"
	"github.com/dentalogic/clinic-api/internal/handler"
	"github.com/dentalogic/clinic-api/internal/middleware"
	"github.com/dentalogic/clinic-api/internal/models"
	"github.com/dentalogic/clinic-api/internal/repository"
	"github.com/dentalogic/clinic-api/internal/service"
	"github.com/dentalogic/clinic-api/pkg/cache"
	"github.com/dentalogic/clinic-api/pkg/config"
	"github.com/dentalogic/clinic-api/pkg/database"
	"github.com/dentalogic/clinic-api/pkg/export"
	"github.com/dentalogic/clinic-api/pkg/jobs"
	"github.com/dentalogic/clinic-api/pkg/logger"
	corsmiddleware "github.com/dentalogic/clinic-api/pkg/middleware/cors"
	reqidmiddleware "github.com/dentalogic/clinic-api/pkg/middleware/requestid"
	"github.com/dentalogic/clinic-api/pkg/storage"
)

// @title Dentalogic Clinic API
// @version 1.0.0
// @description Practice management backend: scheduling, patients, consents, billing and reports
// @BasePath /api/v1
// @schemes http

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	cacheEnabled := err == nil
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, caching disabled", "error", err)
	} else {
		defer redisClient.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	validate := validator.New()

	userRepo := repository.NewUserRepository(db)
	patientRepo := repository.NewPatientRepository(db)
	dentistRepo := repository.NewDentistRepository(db)
	appointmentRepo := repository.NewAppointmentRepository(db)
	recordRepo := repository.NewMedicalRecordRepository(db)
	consentRepo := repository.NewConsentRepository(db)
	invoiceRepo := repository.NewInvoiceRepository(db)
	reportRepo := repository.NewReportRepository(db)

	metricsSvc := service.NewMetricsService()

	var cacheSvc *service.CacheService
	if cacheEnabled {
		cacheRepo := repository.NewCacheRepository(redisClient, logr)
		cacheSvc = service.NewCacheService(cacheRepo, metricsSvc, cfg.Calendar.CacheTTL, logr, true)
	} else {
		cacheSvc = service.NewCacheService(nil, metricsSvc, cfg.Calendar.CacheTTL, logr, false)
	}

	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "clinic-api",
		Audience:           []string{"clinic-web"},
	})

	viewSvc := service.NewScheduleViewService(logr)
	appointmentSvc := service.NewAppointmentService(appointmentRepo, viewSvc, cacheSvc, validate, logr, service.AppointmentServiceConfig{
		CalendarCacheTTL: cfg.Calendar.CacheTTL,
	})
	patientSvc := service.NewPatientService(patientRepo, validate, logr)
	dentistSvc := service.NewDentistService(dentistRepo, validate, logr)
	recordSvc := service.NewMedicalRecordService(recordRepo, userRepo, validate, logr)
	billingSvc := service.NewBillingService(invoiceRepo, validate, logr)

	consentStore, err := storage.NewLocalStorage(cfg.Consents.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to init consent storage", "error", err)
	}
	consentSvc := service.NewConsentService(service.ConsentServiceParams{
		Repo:      consentRepo,
		Patients:  patientRepo,
		Audit:     userRepo,
		PDF:       export.NewPDFExporter(),
		Store:     consentStore,
		Signer:    storage.NewSignedURLSigner(cfg.Consents.SignedURLSecret, cfg.Consents.SignedURLTTL),
		Validator: validate,
		Logger:    logr,
	})

	dashboardSvc := service.NewDashboardService(service.DashboardServiceParams{
		Appointments: appointmentSvc,
		Patients:     patientRepo,
		Dentists:     dentistRepo,
		Billing:      billingSvc,
		Cache:        cacheSvc,
		Logger:       logr,
		Config: service.DashboardServiceConfig{
			CacheTTL:       cfg.Dashboard.CacheTTL,
			RevenueEnabled: true,
		},
	})

	authHandler := handler.NewAuthHandler(authSvc)
	patientHandler := handler.NewPatientHandler(patientSvc)
	dentistHandler := handler.NewDentistHandler(dentistSvc)
	appointmentHandler := handler.NewAppointmentHandler(appointmentSvc)
	recordHandler := handler.NewMedicalRecordHandler(recordSvc)
	consentHandler := handler.NewConsentHandler(consentSvc)
	billingHandler := handler.NewBillingHandler(billingSvc)
	dashboardHandler := handler.NewDashboardHandler(dashboardSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc, db)

	var reportHandler *handler.ReportHandler
	var reportQueue *jobs.Queue
	if cfg.Exports.Enabled {
		exportStore, err := storage.NewLocalStorage(cfg.Exports.StorageDir)
		if err != nil {
			logr.Sugar().Fatalw("failed to init export storage", "error", err)
		}
		exportSvc := service.NewExportService(service.ExportServiceParams{
			Patients:     patientRepo,
			Appointments: appointmentRepo,
			Invoices:     invoiceRepo,
			Storage:      exportStore,
			Signer:       storage.NewSignedURLSigner(cfg.Exports.SignedURLSecret, cfg.Exports.SignedURLTTL),
			CSV:          export.NewCSVExporter(),
			PDF:          export.NewPDFExporter(),
			Logger:       logr,
			Config: service.ExportConfig{
				APIPrefix: cfg.APIPrefix,
				ResultTTL: cfg.Exports.SignedURLTTL,
			},
		})

		worker := service.NewReportWorker(reportRepo, exportSvc, cfg.Exports.WorkerRetries, logr)
		reportQueue = jobs.NewQueue("reports", worker.Handle, jobs.QueueConfig{
			Workers:    cfg.Exports.WorkerConcurrency,
			MaxRetries: cfg.Exports.WorkerRetries,
			RetryDelay: 5 * time.Second,
			Logger:     logr,
		})
		reportQueue.Start(ctx)
		defer reportQueue.Stop()

		reportSvc := service.NewReportService(reportRepo, reportQueue, exportSvc, userRepo, logr, service.ReportServiceConfig{
			ResultTTL:       cfg.Exports.SignedURLTTL,
			CleanupInterval: cfg.Exports.CleanupInterval,
			MaxRetries:      cfg.Exports.WorkerRetries,
		})
		reportSvc.RecoverPendingJobs(ctx)
		reportSvc.StartCleanup(ctx)

		reportHandler = handler.NewReportHandler(reportSvc, logr)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.WithResponseMeta())
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	{
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.Refresh)
		auth.POST("/logout", middleware.JWT(authSvc), authHandler.Logout)
		auth.POST("/change-password", middleware.JWT(authSvc), authHandler.ChangePassword)
		auth.GET("/me", middleware.JWT(authSvc), authHandler.Me)
	}

	secured := api.Group("")
	secured.Use(middleware.JWT(authSvc))
	secured.Use(middleware.RequireRoles(models.RoleAdmin, models.RoleStaff))

	patients := secured.Group("/patients")
	{
		patients.GET("", patientHandler.List)
		patients.POST("", patientHandler.Create)
		patients.GET("/:id", patientHandler.Get)
		patients.PUT("/:id", patientHandler.Update)
		patients.DELETE("/:id", middleware.RequireRoles(models.RoleAdmin), patientHandler.Deactivate)
	}

	dentists := secured.Group("/dentists")
	{
		dentists.GET("", dentistHandler.List)
		dentists.GET("/:id", dentistHandler.Get)
		dentists.POST("", middleware.RequireRoles(models.RoleAdmin), dentistHandler.Create)
		dentists.PUT("/:id", middleware.RequireRoles(models.RoleAdmin), dentistHandler.Update)
		dentists.DELETE("/:id", middleware.RequireRoles(models.RoleAdmin), dentistHandler.Deactivate)
	}

	appointments := secured.Group("/appointments")
	{
		appointments.GET("", appointmentHandler.List)
		appointments.GET("/calendar", appointmentHandler.Calendar)
		appointments.POST("", appointmentHandler.Create)
		appointments.GET("/:id", appointmentHandler.Get)
		appointments.PUT("/:id", appointmentHandler.Update)
		appointments.POST("/:id/cancel", appointmentHandler.Cancel)
		appointments.DELETE("/:id", middleware.RequireRoles(models.RoleAdmin), appointmentHandler.Delete)
	}

	records := secured.Group("/medical-records")
	{
		records.GET("", recordHandler.List)
		records.POST("", recordHandler.Create)
		records.GET("/:id", recordHandler.Get)
		records.PUT("/:id", recordHandler.Update)
	}

	consents := secured.Group("/consents")
	{
		consents.GET("/templates", consentHandler.ListTemplates)
		consents.POST("/templates", middleware.RequireRoles(models.RoleAdmin), consentHandler.CreateTemplate)
		consents.GET("", consentHandler.List)
		consents.POST("", consentHandler.Issue)
		consents.POST("/:id/sign", consentHandler.Sign)
		consents.POST("/:id/decline", consentHandler.Decline)
		consents.GET("/:id/download", consentHandler.Download)
		consents.GET("/:id/document", consentHandler.Document)
	}

	invoices := secured.Group("/invoices")
	{
		invoices.GET("", billingHandler.List)
		invoices.GET("/:id", billingHandler.Get)
		invoices.POST("", middleware.RequireRoles(models.RoleAdmin), billingHandler.Create)
		invoiceAudit := middleware.Audit(userRepo, "INVOICE_STATE", "invoices")
		invoices.POST("/:id/issue", middleware.RequireRoles(models.RoleAdmin), invoiceAudit, billingHandler.Issue)
		invoices.POST("/:id/pay", middleware.RequireRoles(models.RoleAdmin), invoiceAudit, billingHandler.MarkPaid)
		invoices.POST("/:id/void", middleware.RequireRoles(models.RoleAdmin), invoiceAudit, billingHandler.Void)
	}
	secured.GET("/billing/revenue", middleware.RequireRoles(models.RoleAdmin), billingHandler.Revenue)

	if cfg.Dashboard.Enabled {
		secured.GET("/dashboard", middleware.RequireRoles(models.RoleAdmin), dashboardHandler.Overview)
	}

	if reportHandler != nil {
		reports := secured.Group("/reports")
		{
			reports.POST("/generate", reportHandler.GenerateReport)
			reports.GET("/export", reportHandler.ExportCSV)
			reports.GET("/:id/status", reportHandler.ReportStatus)
		}
		// Token is the credential here, the link is shared outside a session.
		api.GET("/reports/download/:token", middleware.OptionalJWT(authSvc), reportHandler.DownloadReport)
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: r,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("shutdown error", "error", err)
	}
}
