package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/clinicore/clinic-scheduler/internal/auth"
	"github.com/clinicore/clinic-scheduler/internal/schedule"
)

type RouterConfig struct {
	Service          *schedule.Service
	Authority        *auth.TokenAuthority
	Logger           *zap.Logger
	PgPool           *pgxpool.Pool // nil in memory mode
	Redis            *redis.Client // nil in memory mode
	Env              string
	Version          string
	BookingRateLimit int // requests per minute per IP; 0 disables
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		MaxAge:         300,
	}))

	// Health endpoints
	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	// Credential issuance stays off in prod; there it belongs to the
	// identity provider.
	if cfg.Env != "prod" {
		r.Post("/auth/token", issueTokenHandler(cfg.Authority, cfg.Logger))
	}

	// Appointment endpoints, all behind bearer auth
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.Authority))

		r.Group(func(r chi.Router) {
			if cfg.BookingRateLimit > 0 {
				r.Use(httprate.LimitByIP(cfg.BookingRateLimit, time.Minute))
			}
			r.Post("/appointments", createAppointmentHandler(cfg.Service, cfg.Logger))
		})

		r.Get("/appointments", listAppointmentsHandler(cfg.Service, cfg.Logger))
		r.Get("/appointments/{id}", getAppointmentHandler(cfg.Service, cfg.Logger))
		r.Post("/appointments/{id}/cancel", cancelAppointmentHandler(cfg.Service, cfg.Logger))
		r.Post("/appointments/{id}/complete", completeAppointmentHandler(cfg.Service, cfg.Logger))
	})

	return r
}
