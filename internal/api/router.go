package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

type RouterConfig struct {
	Appointments AppointmentService
	Rosters      RosterService
	Fulfillment  FulfillmentBridge
	Postgres     Pinger
	Redis        Pinger
	Logger       zerolog.Logger
	Env          string
	Version      string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(RecoveryMiddleware(cfg.Logger))

	health := NewHealthHandler(cfg.Postgres, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	appts := &appointmentHandler{svc: cfg.Appointments, logger: cfg.Logger}
	r.Route("/appointments", func(r chi.Router) {
		r.Post("/", appts.create)
		r.Get("/", appts.list)
		r.Get("/{id}", appts.get)
		r.Post("/{id}/cancel", appts.cancel)
		r.Post("/{id}/confirm", appts.confirm)
		r.Patch("/{id}/status", appts.updateStatus)
	})

	rosters := &rosterHandler{svc: cfg.Rosters, logger: cfg.Logger}
	r.Post("/rosters", rosters.publish)
	r.Get("/rosters/available", rosters.available)
	r.Post("/leaves", rosters.recordLeave)

	fulfillment := &fulfillmentHandler{bridge: cfg.Fulfillment, logger: cfg.Logger}
	r.Post("/fulfillment/medication-approvals", fulfillment.medicationApproved)

	return r
}
