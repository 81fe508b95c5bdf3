package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"golang.org/x/sync/errgroup"

	"caseflow/internal/audit"
	auditmemory "caseflow/internal/audit/store/memory"
	auditpostgres "caseflow/internal/audit/store/postgres"
	casehandler "caseflow/internal/casefile/handler"
	caseservice "caseflow/internal/casefile/service"
	casestore "caseflow/internal/casefile/store"
	"caseflow/internal/effects"
	identityhandler "caseflow/internal/identity/handler"
	identityservice "caseflow/internal/identity/service"
	identitystore "caseflow/internal/identity/store"
	"caseflow/internal/identity/store/suspension"
	"caseflow/internal/platform/config"
	"caseflow/internal/platform/httpserver"
	"caseflow/internal/platform/logger"
	"caseflow/internal/platform/metrics"
	platformredis "caseflow/internal/platform/redis"
	httptransport "caseflow/internal/transport/http"
	"caseflow/pkg/platform/middleware/actor"
	"caseflow/pkg/platform/middleware/lifecycle"
	"caseflow/pkg/platform/tx"
)

// main wires high-level dependencies and keeps the server lifecycle small.
// Business logic lives in the internal service packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New(parseLevel(cfg.LogLevel))
	slog.SetDefault(log)

	m := metrics.New()

	// Storage. Without DATABASE_URL everything runs in memory, which is
	// enough for local development.
	var (
		db         *sql.DB
		caseStore  caseservice.CaseStore
		userStore  identityservice.UserStore
		auditStore audit.Store
	)
	if cfg.DatabaseURL != "" {
		var err error
		db, err = sql.Open("pgx", cfg.DatabaseURL)
		if err != nil {
			log.Error("failed to open database", "error", err.Error())
			os.Exit(1)
		}
		defer db.Close()
		caseStore = casestore.NewPostgres(db)
		userStore = identitystore.NewPostgres(db)
		auditStore = auditpostgres.New(db)
	} else {
		log.Warn("DATABASE_URL not set, using in-memory stores")
		caseStore = casestore.NewInMemory()
		userStore = identitystore.NewInMemory()
		auditStore = auditmemory.New()
	}

	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		log.Error("failed to connect to redis", "error", err.Error())
		os.Exit(1)
	}
	var suspensions suspension.List
	if redisClient != nil {
		defer redisClient.Close()
		suspensions = suspension.NewRedis(redisClient.Client)
	} else {
		log.Warn("REDIS_URL not set, suspension list is process-local")
		suspensions = suspension.NewMemory()
	}

	queue := effects.NewQueue(effects.WithLogger(log), effects.WithMetrics(m))
	recorder := effects.NewRecorder(queue,
		effects.WithRecorderLogger(log),
		effects.WithRecorderMetrics(m),
	)
	runner := tx.NewRunner(db)

	caseService := caseservice.New(caseStore, auditStore, recorder,
		caseservice.WithLogger(log),
		caseservice.WithMetrics(m),
		caseservice.WithTxRunner(runner),
	)
	userService := identityservice.New(userStore, suspensions, auditStore, recorder,
		identityservice.WithLogger(log),
		identityservice.WithMetrics(m),
		identityservice.WithTxRunner(runner),
	)

	observer := lifecycle.NewObserver(recorder,
		lifecycle.WithLogger(log),
		lifecycle.WithMetrics(m),
	)
	validator := actor.NewValidator(cfg.JWTSigningKey)

	var health []func() error
	if db != nil {
		health = append(health, db.Ping)
	}
	if redisClient != nil {
		health = append(health, func() error {
			return redisClient.Health(context.Background())
		})
	}

	router := httptransport.NewRouter(httptransport.Deps{
		Logger:    log,
		Observer:  observer,
		Validator: validator,
		Queue:     queue,
		Handlers: []httptransport.Registrar{
			casehandler.New(caseService, log),
			identityhandler.New(userService, log),
		},
		Health: health,
	})

	srv := httpserver.New(cfg.Addr, router)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting caseflow", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("server error", "error", err.Error())
		os.Exit(1)
	}

	// Give already-released effects a bounded window to finish before the
	// process exits.
	drainDeadline := time.Now().Add(cfg.DrainWindow)
	for !queue.Idle() && time.Now().Before(drainDeadline) {
		time.Sleep(50 * time.Millisecond)
	}
	if !queue.Idle() {
		log.Warn("exiting with undrained effects", "depth", queue.Depth())
	}
	log.Info("caseflow stopped")
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
