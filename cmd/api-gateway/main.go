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
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	_ "github.com/noah-isme/univ-lifecycle-api/api/swagger"
	"github.com/noah-isme/univ-lifecycle-api/internal/handler"
	"github.com/noah-isme/univ-lifecycle-api/internal/repository"
	"github.com/noah-isme/univ-lifecycle-api/internal/service"
	"github.com/noah-isme/univ-lifecycle-api/pkg/cache"
	"github.com/noah-isme/univ-lifecycle-api/pkg/config"
	"github.com/noah-isme/univ-lifecycle-api/pkg/database"
	"github.com/noah-isme/univ-lifecycle-api/pkg/jobs"
	"github.com/noah-isme/univ-lifecycle-api/pkg/logger"
)

// @title University Lifecycle API
// @version 1.0.0
// @description Student and application lifecycle engine: guards, transitions, milestones and admissions.
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logr); err != nil {
		logr.Fatal("server stopped with error", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, logr *zap.Logger) error {
	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer db.Close()

	var redisClient *redis.Client
	if cfg.Lifecycle.ShareCatalog {
		redisClient, err = cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, rule catalog will not be shared", zap.Error(err))
			redisClient = nil
		}
	}
	cacheRepo := repository.NewCacheRepository(redisClient, cfg.Lifecycle.CacheNamespace, logr)
	defer cacheRepo.Close() //nolint:errcheck

	metrics := service.NewMetricsService()
	validate := validator.New()

	catalogRepo := repository.NewCatalogRepository(db, cfg.Lifecycle.StoreTimeout)
	lifecycleRepo := repository.NewLifecycleRepository(db, cfg.Lifecycle.StoreTimeout)
	majorRepo := repository.NewMajorRepository(db, cfg.Lifecycle.StoreTimeout)

	var snapshots *repository.CacheRepository
	if redisClient != nil {
		snapshots = cacheRepo
	}
	catalogSvc := service.NewCatalogService(catalogRepo, snapshotCacheOrNil(snapshots), cfg.Lifecycle.CatalogTTL, metrics, logr)
	if _, err := catalogSvc.Current(ctx); err != nil {
		logr.Error("initial rule catalog load failed, requests will retry", zap.Error(err))
	}

	transitionSvc := service.NewTransitionService(lifecycleRepo, catalogSvc, logr,
		service.WithTransitionRetries(cfg.Lifecycle.TransitionRetries),
		service.WithTransitionMetrics(metrics),
	)
	guardSvc := service.NewGuardService(catalogSvc, lifecycleRepo, metrics, logr)
	reactor := service.NewMilestoneReactor(transitionSvc, metrics, logr)
	holdSvc := service.NewHoldService(transitionSvc, logr)
	historySvc := service.NewHistoryService(lifecycleRepo, logr)
	admissionSvc := service.NewAdmissionService(majorRepo, transitionSvc, validate, logr)

	dispatcher := service.NewMilestoneDispatcher(reactor, metrics, logr)
	queue := jobs.NewQueue("milestones", dispatcher.Handle, jobs.QueueConfig{
		Workers:       cfg.Milestone.Workers,
		BufferSize:    cfg.Milestone.BufferSize,
		MaxRetries:    cfg.Milestone.Retries,
		RetryDelay:    cfg.Milestone.RetryDelay,
		MaxRetryDelay: cfg.Milestone.MaxRetryDelay,
		Logger:        logr,
		OnDrop:        dispatcher.OnDrop,
	})
	dispatcher.Bind(queue)
	queue.Start(ctx)
	defer queue.Stop()

	dependencies := map[string]handler.Pinger{"postgres": db}
	if redisClient != nil {
		dependencies["redis"] = handler.PingFunc(cacheRepo.Ping)
	}

	router := newRouter(cfg, logr, routerDeps{
		verifier:  service.NewTokenVerifier(cfg.JWT.Secret),
		metrics:   metrics,
		lifecycle: handler.NewLifecycleHandler(guardSvc, transitionSvc, reactor, dispatcher, historySvc, holdSvc),
		admission: handler.NewAdmissionHandler(admissionSvc),
		catalog:   handler.NewCatalogHandler(catalogSvc),
		health:    handler.NewMetricsHandler(metrics, dependencies),
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
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

// snapshotCacheOrNil keeps a nil repository from becoming a non-nil interface.
func snapshotCacheOrNil(repo *repository.CacheRepository) service.SnapshotCache {
	if repo == nil {
		return nil
	}
	return repo
}
