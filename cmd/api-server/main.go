package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/clinicore/clinic-scheduler/internal/api"
	"github.com/clinicore/clinic-scheduler/internal/auth"
	"github.com/clinicore/clinic-scheduler/internal/config"
	"github.com/clinicore/clinic-scheduler/internal/db"
	redisclient "github.com/clinicore/clinic-scheduler/internal/redis"
	"github.com/clinicore/clinic-scheduler/internal/schedule"
)

const version = "0.3.0"

func main() {
	logger, err := newLogger()
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("api-server starting up", zap.String("version", version))

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config load error", zap.Error(err))
	}

	logger.Info("configuration loaded",
		zap.String("env", cfg.Env),
		zap.String("http_port", cfg.HTTPPort),
		zap.String("store_driver", cfg.StoreDriver),
		zap.Duration("token_ttl", cfg.TokenTTL),
		zap.Duration("lock_ttl", cfg.LockTTL),
	)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	routerCfg := api.RouterConfig{
		Logger:           logger,
		Env:              cfg.Env,
		Version:          version,
		BookingRateLimit: cfg.BookingRateLimit,
	}

	var (
		store   schedule.Store
		locker  schedule.Locker
		svcOpts []schedule.Option
	)

	switch cfg.StoreDriver {
	case config.StorePostgres:
		pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
		pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN, cfg.PgMaxConns)
		cancelPg()
		if err != nil {
			logger.Fatal("postgres connection error", zap.Error(err))
		}
		defer pgPool.Close()
		logger.Info("connected to Postgres")

		rdb, err := redisclient.NewRedisClient(redisclient.Options{
			Addr:     cfg.RedisAddr,
			Username: cfg.RedisUsername,
			Password: cfg.RedisPassword,
			PoolSize: cfg.RedisPoolSize,
		})
		if err != nil {
			logger.Fatal("redis connection error", zap.Error(err))
		}
		defer func() {
			if err := rdb.Close(); err != nil {
				logger.Warn("error closing redis", zap.Error(err))
			}
		}()
		logger.Info("connected to Redis")

		store = schedule.NewPgStore(pgPool)
		locker = redisclient.NewRedisPractitionerLocker(rdb, cfg.LockTTL, cfg.LockAcquireTimeout)
		// Other replicas write to the same Postgres, so the availability
		// projection must be re-read under the lock on every booking.
		svcOpts = append(svcOpts, schedule.WithSharedStore())
		routerCfg.PgPool = pgPool
		routerCfg.Redis = rdb

	case config.StoreMemory:
		mem := schedule.NewMemStore()
		seedDemoDirectory(mem, logger)
		store = mem
		locker = schedule.NewMutexLocker()
		logger.Info("running with in-memory store")
	}

	authority := auth.NewTokenAuthority([]byte(cfg.TokenSecret), cfg.TokenTTL)
	svc := schedule.NewService(store, locker, auth.NewGuard(), logger, svcOpts...)

	routerCfg.Service = svc
	routerCfg.Authority = authority

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      api.NewRouter(routerCfg),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-rootCtx.Done()
	logger.Info("shutting down api-server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown failed", zap.Error(err))
	}
}

// newLogger runs before config.Load, so it reads APP_ENV directly.
func newLogger() (*zap.Logger, error) {
	if os.Getenv("APP_ENV") == "prod" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

// seedDemoDirectory gives memory-mode deployments something to book against.
func seedDemoDirectory(store *schedule.MemStore, logger *zap.Logger) {
	practitionerID := uuid.New()
	patientID := uuid.New()
	specialty := gofakeit.JobTitle()
	email := gofakeit.Email()

	store.PutPractitioner(schedule.Practitioner{
		ID:              practitionerID,
		Name:            gofakeit.Name(),
		Specialty:       &specialty,
		WorkdayStartMin: 9 * 60,
		WorkdayEndMin:   17 * 60,
	})
	store.PutPatient(schedule.Patient{
		ID:    patientID,
		Name:  gofakeit.Name(),
		Email: &email,
	})

	logger.Info("seeded demo directory",
		zap.String("practitioner_id", practitionerID.String()),
		zap.String("patient_id", patientID.String()),
	)
}
