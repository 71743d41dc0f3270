package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"propagation-service/internal/access"
	"propagation-service/internal/feature"
	"propagation-service/internal/handler"
	"propagation-service/internal/middleware"
	"propagation-service/internal/model"
	"propagation-service/internal/propagation"
	"propagation-service/internal/repository"
	"propagation-service/pkg/config"
	"propagation-service/pkg/database"
	"propagation-service/pkg/jwtutil"
	"propagation-service/pkg/locker"
	"propagation-service/pkg/logger"
	"propagation-service/prometheus"
)

func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		fmt.Printf("Warning: .env file not found or error loading: %v\n", err)
	}

	// Load configuration
	conf, err := config.Load("propagation")
	if err != nil {
		fmt.Printf("Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	err = logger.InitLogger(&logger.LogConfig{
		Level:       conf.Log.Level,
		Environment: conf.Server.Env,
		ServiceName: conf.ServiceName,
	})
	if err != nil {
		fmt.Printf("Error initializing logger: %v\n", err)
		os.Exit(1)
	}
	log := logger.GetLogger()
	log.Info("Configuration loaded", conf.LogConfig()...)

	// Initialize database connection
	db, err := database.InitDB(&conf.DB)
	if err != nil {
		log.Fatal("Failed to initialize database")
	}

	// Run migrations
	if err := database.MigrateModels(
		&model.Tenant{},
		&model.Organization{},
		&model.TenantRecord{},
		&model.PropagationRun{},
		&model.PropagationRunTarget{},
		&model.CategorySnapshot{},
	); err != nil {
		log.Fatal("Failed to migrate database models")
	}

	// Initialize JWT utility
	jwt := jwtutil.NewJWTUtil(&jwtutil.JWTConfig{
		SigningKey:      conf.JWT.SigningKey,
		ExpirationHours: conf.JWT.ExpirationHours,
	})

	// Pick the lock backend: redis serializes across instances, the
	// in-process locker covers single-instance deployments.
	var locks locker.Locker
	if conf.Redis.Enabled {
		client := redis.NewClient(&redis.Options{
			Addr:     conf.Redis.Addr,
			Password: conf.Redis.Password,
			DB:       conf.Redis.DB,
		})
		locks = locker.NewRedisLocker(client, 2*conf.Propagation.TargetTimeout)
		log.Info("Using redis lock backend")
	} else {
		locks = locker.NewMemoryLocker()
		log.Info("Using in-process lock backend")
	}

	// Wire the core
	registry := feature.Default()
	evaluator := access.NewEvaluator(registry)
	engine := propagation.NewEngine(
		evaluator,
		repository.NewDirectoryRepo(db),
		repository.NewRecordRepo(db),
		repository.NewRunRepo(db),
		locks,
		propagation.Options{
			TargetTimeout:     conf.Propagation.TargetTimeout,
			WorkerCount:       conf.Propagation.WorkerCount,
			RollbackRetention: conf.Propagation.RollbackRetention,
		},
		log,
	)

	// Initialize HTTP metrics
	httpMetrics := prometheus.NewHTTPMetrics(conf.ServiceName)

	accessHandler := handler.NewAccessHandler(evaluator, registry, conf.ServiceName)
	propagationHandler := handler.NewPropagationHandler(engine, conf.ServiceName)

	// Initialize Echo framework
	e := echo.New()

	// Apply middleware
	e.Use(middleware.RequestIDMiddleware())
	e.Use(logger.Middleware())
	e.Use(httpMetrics.Middleware())

	// Public routes
	e.GET("/health", handler.HealthCheck)
	e.GET("/ready", handler.ReadyCheck)
	e.GET("/metrics", echo.WrapHandler(prometheus.GetPrometheusHandler()))
	e.GET("/features", accessHandler.ListFeatures)

	// Secured routes - require authentication
	secured := e.Group("")
	secured.Use(middleware.JWTAuthMiddleware(jwt))

	secured.GET("/access/check", accessHandler.CheckAccess)
	secured.POST("/propagations/plan", propagationHandler.Plan)
	secured.POST("/propagations", propagationHandler.Execute)
	secured.GET("/propagations/:id", propagationHandler.GetRun)
	secured.POST("/propagations/:id/rollback", propagationHandler.Rollback)
	secured.POST("/propagations/:id/cancel", propagationHandler.Cancel)

	// Start server
	log.Info("Starting propagation-service on port " + conf.Server.Port)
	e.Logger.Fatal(e.Start(":" + conf.Server.Port))
}
