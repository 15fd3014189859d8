package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/opdclinic/clinic-api/internal/config"
	appointmentHandler "github.com/opdclinic/clinic-api/internal/handler/appointment"
	dispenseHandler "github.com/opdclinic/clinic-api/internal/handler/dispense"
	"github.com/opdclinic/clinic-api/internal/handler/health"
	medicineHandler "github.com/opdclinic/clinic-api/internal/handler/medicine"
	"github.com/opdclinic/clinic-api/internal/middleware"
	"github.com/opdclinic/clinic-api/internal/repository/postgres"
	"github.com/opdclinic/clinic-api/internal/router"
	appointmentService "github.com/opdclinic/clinic-api/internal/service/appointment"
	dispenseService "github.com/opdclinic/clinic-api/internal/service/dispense"
	eventService "github.com/opdclinic/clinic-api/internal/service/event"
	"github.com/opdclinic/clinic-api/internal/service/stock"
	"github.com/opdclinic/clinic-api/pkg/logger"
	"github.com/opdclinic/clinic-api/pkg/metrics"
	"github.com/opdclinic/clinic-api/pkg/validator"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	appLogger := logger.NewLogger(&logger.Config{
		Level:      level,
		TimeFormat: time.RFC3339,
		Output:     os.Stdout,
		Pretty:     cfg.Log.Pretty,
	})

	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	appMetrics := metrics.NewMetrics("clinic", "api")
	v := validator.New()

	// Repositories
	appointmentRepo := postgres.NewAppointmentRepository(db)
	dispenseRepo := postgres.NewDispenseRepository(db)
	medicineRepo := postgres.NewMedicineRepository(db)
	patientRepo := postgres.NewPatientRepository(db)
	doctorRepo := postgres.NewDoctorRepository(db)
	outboxRepo := postgres.NewOutboxRepository(db)

	tx := postgres.NewBaseRepository(db)

	// Services
	ledger := stock.NewLedger(medicineRepo, appLogger, appMetrics)
	eventSvc := eventService.NewService(outboxRepo)
	appointmentSvc := appointmentService.NewService(
		appointmentRepo,
		doctorRepo,
		appointmentService.Config{TokenRetries: cfg.Appointment.TokenRetries},
		appLogger,
		appMetrics,
	)
	dispenseSvc := dispenseService.NewService(
		dispenseRepo,
		appointmentRepo,
		patientRepo,
		ledger,
		eventSvc,
		&tx,
		appLogger,
		appMetrics,
	)

	// Router
	r := router.NewRouter(
		router.Config{
			RateLimitRPS:   cfg.RateLimit.RPS,
			RateLimitBurst: cfg.RateLimit.Burst,
			RequestTimeout: cfg.Server.RequestTimeout,
			CORS:           middleware.DefaultCORSConfig(),
			MetricsPrefix:  "clinic",
		},
		appointmentHandler.NewHandler(appointmentSvc, v),
		dispenseHandler.NewHandler(dispenseSvc, v),
		medicineHandler.NewHandler(ledger, medicineRepo, v),
		health.NewHandler(db),
	)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r.Engine(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		appLogger.Info("starting server", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Fatal(err, "server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		appLogger.Error(err, "forced shutdown")
	}
}
