package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/opdclinic/clinic-api/internal/config"
	"github.com/opdclinic/clinic-api/internal/repository/postgres"
	appointmentService "github.com/opdclinic/clinic-api/internal/service/appointment"
	internalworker "github.com/opdclinic/clinic-api/internal/worker"
	"github.com/opdclinic/clinic-api/pkg/logger"
	"github.com/opdclinic/clinic-api/pkg/messaging/redis"
	"github.com/opdclinic/clinic-api/pkg/metrics"
	"github.com/opdclinic/clinic-api/pkg/worker"
)

func main() {
	cfg, err := config.LoadWorkerConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load worker configuration")
	}

	appLogger := logger.NewLogger(nil)

	db, err := postgres.NewDB(cfg.Database())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	broker, err := redis.NewRedisBroker(redis.Config{
		URL:          cfg.RedisURL,
		MaxRetries:   3,
		RetryBackoff: 100 * time.Millisecond,
		PoolSize:     10,
		MinIdleConns: 2,
	}, appLogger.Zerolog())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer broker.Close()

	appMetrics := metrics.NewMetrics("clinic", "worker")

	outboxRepo := postgres.NewOutboxRepository(db)
	processor := worker.NewOutboxProcessor(outboxRepo, broker, worker.OutboxProcessorConfig{
		BatchSize:    cfg.BatchSize,
		PollInterval: cfg.PollInterval,
		RetryDelay:   cfg.RetryDelay,
		Channel:      internalworker.EventChannel,
	}, appLogger, appMetrics)

	appointmentRepo := postgres.NewAppointmentRepository(db)
	doctorRepo := postgres.NewDoctorRepository(db)
	appointmentSvc := appointmentService.NewService(
		appointmentRepo,
		doctorRepo,
		appointmentService.Config{},
		appLogger,
		appMetrics,
	)
	consumer := internalworker.NewDispenseEventConsumer(broker, appointmentSvc, appLogger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go processor.Start(ctx)
	go func() {
		if err := consumer.Start(ctx); err != nil && ctx.Err() == nil {
			appLogger.Error(err, "dispense event consumer stopped")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("shutting down worker")
	cancel()
}
