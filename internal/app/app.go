package app

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"proctor_backend/internal/config"
	"proctor_backend/internal/controller"
	"proctor_backend/internal/repository"
	"proctor_backend/internal/service"
	"proctor_backend/pkg/database"
	"proctor_backend/pkg/logger"
	"proctor_backend/pkg/monitoring"
	"proctor_backend/pkg/security"
	"proctor_backend/pkg/tracing"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type App struct {
	Config          *config.Config
	Router          *gin.Engine
	DB              *gorm.DB
	Redis           *redis.Client
	services        *services
	limiter         *security.KeyedLimiter
	tracer          *sdktrace.TracerProvider
	configCallbacks []func(*config.Config)
	ctx             context.Context
	cancel          context.CancelFunc
}

type repositories struct {
	user      *repository.UserRepository
	exam      *repository.ExamRepository
	recording *repository.ExamRecordingRepository
	warning   *repository.ExamWarningRepository
	engine    *repository.QueryEngine
}

type services struct {
	guard     *service.AccessGuard
	auth      *service.AuthService
	storage   *service.StorageService
	user      *service.UserService
	exam      *service.ExamService
	recording *service.RecordingService
	warning   *service.WarningService
	frame     *service.FrameService
	hub       *service.MonitorHub
}

type controllers struct {
	auth      *controller.AuthController
	user      *controller.UserController
	exam      *controller.ExamController
	recording *controller.ExamRecordingController
	warning   *controller.ExamWarningController
	monitor   *controller.MonitorController
	health    *controller.HealthController
}

// RegisterConfigCallback adds a hook run after every config reload.
func (a *App) RegisterConfigCallback(callback func(*config.Config)) {
	a.configCallbacks = append(a.configCallbacks, callback)
}

// ApplyConfig applies the settings that may change without a restart.
func (a *App) ApplyConfig(cfg *config.Config) {
	for _, cb := range a.configCallbacks {
		cb(cfg)
	}
}

func (a *App) initRepositories(db *gorm.DB, cfg *config.Config) *repositories {
	return &repositories{
		user:      repository.NewUserRepository(db),
		exam:      repository.NewExamRepository(db),
		recording: repository.NewExamRecordingRepository(db),
		warning:   repository.NewExamWarningRepository(db),
		engine:    repository.NewQueryEngine(db, cfg.Proctoring.StorageRetryAttempts),
	}
}

func (a *App) initServices(repos *repositories, cfg *config.Config, rdb *redis.Client) *services {
	s := &services{}

	s.guard = service.NewAccessGuard(repos.user)
	s.auth = service.NewAuthService(repos.user, cfg)
	s.storage = service.NewStorageService(&cfg.Storage)
	s.user = service.NewUserService(repos.user, repos.engine, s.guard)
	s.exam = service.NewExamService(repos.exam, repos.engine, s.guard, &cfg.Proctoring)

	s.hub = service.NewMonitorHub(rdb)
	go s.hub.Run()

	s.recording = service.NewRecordingService(repos.recording, repos.exam, repos.engine, s.guard, s.auth, s.storage, s.hub)
	s.warning = service.NewWarningService(repos.warning, s.recording, repos.engine, s.guard, s.hub, cfg.Proctoring.MaxWarningCount)
	s.frame = service.NewFrameService(service.NewHTTPVisionClient(&cfg.Vision), s.warning, repos.user, &cfg.Vision)

	return s
}

func (a *App) initControllers(s *services, db *gorm.DB) *controllers {
	return &controllers{
		auth:      controller.NewAuthController(s.auth),
		user:      controller.NewUserController(s.user),
		exam:      controller.NewExamController(s.exam),
		recording: controller.NewExamRecordingController(s.recording, s.frame),
		warning:   controller.NewExamWarningController(s.warning),
		monitor:   controller.NewMonitorController(s.hub),
		health:    controller.NewHealthController(db),
	}
}

func (a *App) setupMiddlewares(router *gin.Engine, cfg *config.Config) {
	router.Use(security.CORS(cfg.CORS.AllowedOrigins))
	router.Use(security.Secure())

	window := time.Duration(cfg.RateLimit.WindowMinutes) * time.Minute
	a.limiter = security.NewKeyedLimiter(cfg.RateLimit.MaxRequests, window)
	go a.limiter.Cleanup(a.ctx)
	router.Use(a.limiter.Middleware())

	if cfg.Tracing.Enabled {
		router.Use(tracing.GinMiddleware())
	}

	router.Use(monitoring.MetricsMiddleware())
}

func (a *App) startBackgroundTasks(s *services, cfg *config.Config) {
	if cfg.Proctoring.SweepIntervalSeconds <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(time.Duration(cfg.Proctoring.SweepIntervalSeconds) * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-a.ctx.Done():
				return
			case <-ticker.C:
				n, err := s.recording.ExpireOverdue(a.ctx)
				if err != nil {
					logger.Log.Error("Overdue recording sweep failed", zap.Error(err))
					continue
				}
				if n > 0 {
					logger.Log.Info("Overdue recordings ended", zap.Int("count", n))
				}
			}
		}
	}()
}

// New wires an App around an open database. rdb may be nil, in which case
// monitor events are delivered on this instance only.
func New(cfg *config.Config, db *gorm.DB, rdb *redis.Client) *App {
	ctx, cancel := context.WithCancel(context.Background())
	app := &App{
		Config: cfg,
		DB:     db,
		Redis:  rdb,
		ctx:    ctx,
		cancel: cancel,
	}

	repos := app.initRepositories(db, cfg)
	app.services = app.initServices(repos, cfg, rdb)
	controllers := app.initControllers(app.services, db)

	app.RegisterConfigCallback(func(c *config.Config) {
		app.services.warning.SetMaxWarningCount(c.Proctoring.MaxWarningCount)
		logger.Log.Info("Warning limit applied", zap.Int64("maxWarningCount", app.services.warning.MaxWarningCount()))
	})
	app.RegisterConfigCallback(func(c *config.Config) {
		logger.SetMode(c.Server.Mode)
	})

	monitoring.Init()

	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()
	app.Router = router

	app.setupMiddlewares(router, cfg)
	app.registerRoutes(router, controllers, cfg)

	if cfg.Storage.Type == "local" {
		router.Static("/uploads", cfg.Storage.LocalPath)
	}

	app.startBackgroundTasks(app.services, cfg)

	return app
}

func NewApp(cfg *config.Config) *App {
	logger.InitLogger(cfg)
	defer logger.Log.Sync()

	logger.Log.Info("Logger initialized successfully")

	db, err := database.InitDB(&cfg.Database, cfg.Server.Mode)
	if err != nil {
		logger.Log.Fatal("Failed to initialize database", zap.Error(err))
		log.Fatalf("Failed to initialize database: %v", err)
	}

	if cfg.Server.Mode != "release" || cfg.ForceMigrate {
		if err := database.Migrate(db); err != nil {
			logger.Log.Fatal("Failed to migrate database", zap.Error(err))
		}
	}
	if cfg.MigrateOnly {
		return &App{Config: cfg, DB: db}
	}

	var rdb *redis.Client
	if cfg.Redis.Enabled {
		rdb, err = database.InitRedis(&cfg.Redis)
		if err != nil {
			// Monitoring still works on a single instance without redis.
			logger.Log.Error("Failed to initialize redis, live monitoring stays local", zap.Error(err))
			rdb = nil
		}
	}

	var tp *sdktrace.TracerProvider
	if cfg.Tracing.Enabled {
		tp, err = tracing.InitTracer("proctor-api", cfg.Tracing.CollectorEndpoint)
		if err != nil {
			logger.Log.Fatal("Failed to initialize tracing", zap.Error(err))
		}
	}

	app := New(cfg, db, rdb)
	app.tracer = tp
	return app
}

// Context is cancelled when the app shuts down.
func (a *App) Context() context.Context {
	return a.ctx
}

// Close stops the background work started by New.
func (a *App) Close() {
	if a.services != nil && a.services.hub != nil {
		a.services.hub.Stop()
	}
	if a.cancel != nil {
		a.cancel()
	}
	if a.tracer != nil {
		if err := a.tracer.Shutdown(context.Background()); err != nil {
			logger.Log.Error("Failed to shutdown tracer provider", zap.Error(err))
		}
	}
	if a.Redis != nil {
		a.Redis.Close()
	}
}

func (a *App) Run() {
	srv := &http.Server{
		Addr:    ":" + a.Config.Server.Port,
		Handler: a.Router,
	}

	go func() {
		logger.Log.Info("Server running", zap.String("port", a.Config.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Log.Info("Shutting down server...")

	// websocket connections are hijacked and not closed by Shutdown
	a.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	logger.Log.Info("Server exiting")
}
