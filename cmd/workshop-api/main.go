package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/workshop-scheduler/api/swagger"
	"github.com/noah-isme/workshop-scheduler/internal/handler"
	"github.com/noah-isme/workshop-scheduler/internal/loader"
	"github.com/noah-isme/workshop-scheduler/internal/middleware"
	"github.com/noah-isme/workshop-scheduler/internal/repository"
	"github.com/noah-isme/workshop-scheduler/internal/service"
	"github.com/noah-isme/workshop-scheduler/internal/solver"
	"github.com/noah-isme/workshop-scheduler/internal/solver/engine"
	"github.com/noah-isme/workshop-scheduler/pkg/cache"
	"github.com/noah-isme/workshop-scheduler/pkg/config"
	"github.com/noah-isme/workshop-scheduler/pkg/database"
	"github.com/noah-isme/workshop-scheduler/pkg/export"
	"github.com/noah-isme/workshop-scheduler/pkg/jobs"
	"github.com/noah-isme/workshop-scheduler/pkg/logger"
	corsmiddleware "github.com/noah-isme/workshop-scheduler/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/workshop-scheduler/pkg/middleware/requestid"
	"github.com/noah-isme/workshop-scheduler/pkg/storage"
)

// @title Workshop Scheduler API
// @version 1.0.0
// @description Assigns families to workshop days
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

	if err := run(cfg, logr); err != nil {
		logr.Fatal("server failed", zap.Error(err))
	}
}

func run(cfg *config.Config, logr *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	basePolicy, err := cfg.Policy.Build()
	if err != nil {
		return fmt.Errorf("policy: %w", err)
	}
	scores, err := loader.ParseScoreTable(cfg.Solver.ScoreTable)
	if err != nil {
		return fmt.Errorf("score table: %w", err)
	}

	metrics := service.NewMetricsService()
	checks := map[string]handler.ReadinessCheck{}

	var solveCache *service.CacheService
	if cfg.Cache.Enabled {
		client, err := cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			logr.Warn("solve cache disabled, redis unreachable", zap.Error(err))
		} else {
			defer client.Close()
			cacheRepo := repository.NewCacheRepository(client)
			solveCache = service.NewCacheService(cacheRepo, metrics, cfg.Cache.TTL, logr, true)
			checks["redis"] = cacheRepo.Ping
		}
	}

	engines := func(kind solver.Kind, timeLimit time.Duration) (solver.Solver, error) {
		return engine.New(kind, engine.Options{
			TimeLimit:  timeLimit,
			Gap:        cfg.Solver.Gap,
			CBCPath:    cfg.Solver.CBCPath,
			WorkDir:    cfg.Solver.WorkDir,
			ScoreScale: cfg.Solver.ScoreScale,
			MaxVars:    cfg.Solver.BoundMaxVars,
			Logger:     logr,
			Observer:   metrics,
		})
	}
	solveSvc := service.NewSolveService(engines, basePolicy, scores, solveCache, validator.New(), logr, service.SolveConfig{
		DefaultEngine:    solver.Kind(cfg.Solver.Engine),
		DefaultTimeLimit: cfg.Solver.TimeLimit,
		Tolerance:        cfg.Solver.ObjectiveTolerance,
		BoundMaxVars:     cfg.Solver.BoundMaxVars,
		CacheTTL:         cfg.Cache.TTL,
	})

	authSvc := service.NewAuthService(service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.TokenExpiry,
		Issuer:            cfg.JWT.Issuer,
	})

	var runHandler *handler.RunHandler
	if cfg.Runs.Enabled {
		db, err := database.NewPostgres(ctx, cfg.Database)
		if err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
		defer db.Close()
		checks["postgres"] = db.PingContext

		store, err := storage.NewLocalStorage(cfg.Exports.StorageDir)
		if err != nil {
			return fmt.Errorf("export storage: %w", err)
		}
		signer := storage.NewSignedURLSigner(cfg.Exports.SignedURLSecret, cfg.Exports.SignedURLTTL)
		exporter := service.NewExportService(store, signer, service.ExportConfig{APIPrefix: cfg.APIPrefix}, logr,
			export.NewCSVExporter(), export.NewPDFExporter())

		runRepo := repository.NewRunRepository(db)
		inflight := service.NewInFlight()
		worker := service.NewRunWorker(runRepo, solveSvc, inflight, metrics, logr)
		queue := jobs.NewQueue("solve-runs", worker.Handle, jobs.QueueConfig{
			Workers:     cfg.Runs.WorkerConcurrency,
			MaxRetries:  cfg.Runs.WorkerRetries,
			RetryDelay:  5 * time.Second,
			Logger:      logr,
			OnExhausted: worker.Exhausted,
		})
		runSvc := service.NewRunService(runRepo, queue, solveSvc, inflight, exporter, logr, service.RunServiceConfig{
			ResultTTL:       cfg.Runs.ResultTTL,
			CleanupInterval: cfg.Runs.CleanupInterval,
		})

		queue.Start(ctx)
		defer queue.Stop()
		runSvc.RecoverPending(ctx)
		runSvc.StartCleanup(ctx)
		runHandler = handler.NewRunHandler(runSvc)
	}

	metricsHandler := handler.NewMetricsHandler(metrics, checks)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))
	r.Use(middleware.WithResponseMeta())

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}
	handler.RegisterRoutes(r.Group(cfg.APIPrefix), authSvc, handler.NewSolveHandler(solveSvc), runHandler)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env),
			zap.String("engine", cfg.Solver.Engine), zap.Bool("runs", cfg.Runs.Enabled))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
