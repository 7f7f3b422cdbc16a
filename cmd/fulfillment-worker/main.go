package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hackgods/hospital-scheduling/internal/appointment"
	"github.com/hackgods/hospital-scheduling/internal/clock"
	"github.com/hackgods/hospital-scheduling/internal/config"
	"github.com/hackgods/hospital-scheduling/internal/db"
	"github.com/hackgods/hospital-scheduling/internal/fulfillment"
	"github.com/hackgods/hospital-scheduling/internal/mq"
	"github.com/hackgods/hospital-scheduling/internal/obs"
	redisclient "github.com/hackgods/hospital-scheduling/internal/redis"
	"github.com/hackgods/hospital-scheduling/internal/roster"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load error: %v\n", err)
		os.Exit(1)
	}

	logger := obs.NewLogger(cfg.LogLevel, cfg.IsDev()).With().Str("service", "fulfillment-worker").Logger()
	logger.Info().Str("env", cfg.Env).Str("queue", cfg.FulfillmentQueue).Msg("fulfillment-worker starting up")

	if cfg.RabbitURL == "" {
		logger.Fatal().Msg("RABBIT_URL is required")
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.OTELEnabled {
		shutdown, err := obs.InitTracer(rootCtx, "fulfillment-worker", cfg.Env, cfg.OTELEndpoint)
		if err != nil {
			logger.Fatal().Err(err).Msg("tracer init failed")
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdown(ctx)
		}()
	}

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN, cfg.DBMaxConns, cfg.DBMinConns)
	cancelPg()
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres connection error")
	}
	defer pool.Close()
	logger.Info().Msg("connected to Postgres")

	repo := appointment.NewPgRepository(pool)
	rosters := roster.NewService(roster.NewPgStore(pool), repo, logger)
	// Completion never takes slot locks, so the in-process locker suffices.
	appointments := appointment.NewService(repo, repo, rosters, redisclient.NewLocalLocker(),
		clock.NewSystemClock(cfg.Location), cfg, logger)

	pub, err := mq.NewPublisher(cfg.RabbitURL, cfg.AppointmentExchange, "fulfillment-worker")
	if err != nil {
		logger.Fatal().Err(err).Msg("rabbitmq publisher error")
	}
	defer pub.Close()
	appointments.WithPublisher(pub)

	cons, err := mq.NewConsumer(mq.ConsumerConfig{
		URL:                cfg.RabbitURL,
		Exchange:           cfg.PharmacyExchange,
		Queue:              cfg.FulfillmentQueue,
		Bindings:           []string{fulfillment.RKMedicationRequestApproved},
		DeadLetterExchange: cfg.PharmacyExchange + ".dlx",
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("rabbitmq consumer error")
	}
	defer cons.Close()
	logger.Info().Str("exchange", cfg.PharmacyExchange).Msg("consuming medication approvals")

	worker := fulfillment.NewConsumer(fulfillment.NewBridge(appointments, logger), cons, logger)
	if err := worker.Run(rootCtx); err != nil {
		logger.Error().Err(err).Msg("fulfillment consumer stopped")
		return
	}

	logger.Info().Msg("shutdown signal received, stopping fulfillment-worker")
}
