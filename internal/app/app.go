package app

import (
	"context"
	"errors"
	"log"
	"mooc_exam_backend/internal/config"
	"mooc_exam_backend/internal/controller"
	"mooc_exam_backend/internal/repository"
	"mooc_exam_backend/internal/service"
	"mooc_exam_backend/pkg/configwatcher"
	"mooc_exam_backend/pkg/database"
	"mooc_exam_backend/pkg/logger"
	"mooc_exam_backend/pkg/monitoring"
	"mooc_exam_backend/pkg/security"
	"mooc_exam_backend/pkg/storage"
	"mooc_exam_backend/pkg/tracing"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
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
	ConfigDir       string
	Router          *gin.Engine
	DB              *gorm.DB
	Redis           *redis.Client
	services        *services
	tracer          *sdktrace.TracerProvider
	configMu        sync.Mutex
	configCallbacks []func(*config.Config)

	stop context.CancelFunc
	bg   sync.WaitGroup
}

type repositories struct {
	exam         *repository.ExamRepository
	question     *repository.QuestionRepository
	instance     *repository.ExamInstanceRepository
	answer       *repository.AnswerRepository
	submission   *repository.SubmissionRepository
	progress     *repository.ProgressRepository
	notification *repository.NotificationRepository
}

type services struct {
	exam           *service.ExamManager
	examDefinition *service.ExamDefinitionService
	questionBank   *service.QuestionBankService
	progression    *service.ProgressionUnlocker
	notification   *service.NotificationService
}

type controllers struct {
	exam           *controller.ExamController
	examDefinition *controller.ExamDefinitionController
	questionBank   *controller.QuestionBankController
	progress       *controller.ProgressController
	health         *controller.HealthController
}

func (a *App) RegisterConfigCallback(callback func(*config.Config)) {
	a.configMu.Lock()
	defer a.configMu.Unlock()
	a.configCallbacks = append(a.configCallbacks, callback)
}

func (a *App) applyConfig(cfg *config.Config) {
	a.configMu.Lock()
	callbacks := append([]func(*config.Config){}, a.configCallbacks...)
	a.configMu.Unlock()

	for _, cb := range callbacks {
		cb(cfg)
	}
}

func initRepositories(db *gorm.DB) *repositories {
	return &repositories{
		exam:         repository.NewExamRepository(db),
		question:     repository.NewQuestionRepository(db),
		instance:     repository.NewExamInstanceRepository(db),
		answer:       repository.NewAnswerRepository(db),
		submission:   repository.NewSubmissionRepository(db),
		progress:     repository.NewProgressRepository(db),
		notification: repository.NewNotificationRepository(db),
	}
}

func (a *App) initServices(repos *repositories, cfg *config.Config, db *gorm.DB, rdb *redis.Client) *services {
	s := &services{}

	var locker service.StartLocker
	if rdb != nil {
		locker = service.NewRedisStartLocker(rdb)
	} else {
		locker = service.NewLocalStartLocker()
	}

	s.notification = service.NewNotificationService(repos.notification)
	s.progression = service.NewProgressionUnlocker(repos.exam, repos.progress, s.notification)
	s.exam = service.NewExamManager(
		db,
		repos.exam,
		repos.question,
		repos.instance,
		repos.answer,
		repos.submission,
		repos.progress,
		s.progression,
		s.notification,
		locker,
		cfg.Exam,
	)
	s.examDefinition = service.NewExamDefinitionService(repos.exam, repos.instance, repos.submission, rdb, cfg.Exam.StatsCacheTTL)
	store, err := storage.New(&cfg.Storage)
	if err != nil {
		logger.Log.Fatal("Failed to initialize storage", zap.Error(err))
	}
	s.questionBank = service.NewQuestionBankService(db, repos.question, repos.exam, store)

	a.RegisterConfigCallback(func(c *config.Config) {
		s.exam.UpdatePolicy(c.Exam)
	})

	return s
}

func initControllers(s *services, db *gorm.DB, rdb *redis.Client) *controllers {
	return &controllers{
		exam:           controller.NewExamController(s.exam),
		examDefinition: controller.NewExamDefinitionController(s.examDefinition),
		questionBank:   controller.NewQuestionBankController(s.questionBank),
		progress:       controller.NewProgressController(s.progression, s.notification),
		health:         controller.NewHealthController(db, rdb),
	}
}

func (a *App) setupMiddlewares(router *gin.Engine, cfg *config.Config) {
	router.Use(security.CORS(cfg.CORS.AllowedOrigins))
	router.Use(security.Secure())
	router.Use(security.RateLimiter(cfg.RateLimit.MaxRequests, time.Duration(cfg.RateLimit.WindowMinutes)*time.Minute))

	// 分布式追踪中间件
	if cfg.Tracing.Enabled {
		router.Use(tracing.GinMiddleware())
	}

	router.Use(monitoring.MetricsMiddleware())
}

// startBackgroundTasks runs the expiry sweeper until ctx is cancelled. The interval is read
// on every round so a config reload takes effect without a restart.
func (a *App) startBackgroundTasks(ctx context.Context, s *services) {
	a.bg.Add(1)
	go func() {
		defer a.bg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case <-time.After(s.exam.Policy().SweepInterval):
			}
			n, err := s.exam.ExpireOverdue(ctx)
			if err != nil {
				logger.Log.Error("expire overdue instances failed", zap.Error(err))
				continue
			}
			if n > 0 {
				logger.Log.Info("overdue instances expired", zap.Int("count", n))
			}
		}
	}()

	if a.ConfigDir == "" {
		return
	}
	a.bg.Add(1)
	go func() {
		defer a.bg.Done()
		path := filepath.Join(a.ConfigDir, "config.yaml")
		if err := configwatcher.WatchConfig(ctx, path, a.applyConfig); err != nil {
			logger.Log.Error("config watcher stopped", zap.Error(err))
		}
	}()
}

func NewApp(cfg *config.Config, configDir string) *App {
	logger.InitLogger(cfg)
	defer logger.Log.Sync()

	logger.Log.Info("Logger initialized successfully")

	db, err := database.InitDB(&cfg.Database, cfg.Server.Mode, cfg.ForceMigrate)
	if err != nil {
		logger.Log.Fatal("Failed to initialize database", zap.Error(err))
	}

	app := &App{
		Config:    cfg,
		ConfigDir: configDir,
		DB:        db,
	}
	if cfg.MigrateOnly {
		return app
	}

	if cfg.Redis.Host != "" {
		rdb, err := database.InitRedis(&cfg.Redis)
		if err != nil {
			logger.Log.Fatal("Failed to initialize redis", zap.Error(err))
		}
		app.Redis = rdb
	} else {
		logger.Log.Warn("redis not configured, using in-process start locks and no stats cache")
	}

	repos := initRepositories(db)
	services := app.initServices(repos, cfg, db, app.Redis)
	app.services = services
	controllers := initControllers(services, db, app.Redis)

	// 监控初始化
	monitoring.Init()

	if cfg.Tracing.Enabled {
		tp, err := tracing.InitTracer(tracing.ServiceName, cfg.Tracing.CollectorEndpoint)
		if err != nil {
			logger.Log.Fatal("Failed to initialize tracing", zap.Error(err))
		}
		app.tracer = tp
	}

	gin.SetMode(cfg.Server.Mode)
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())
	app.Router = router

	app.setupMiddlewares(router, cfg)
	app.registerRoutes(router, controllers, cfg)

	return app
}

func (a *App) Run() {
	ctx, stop := context.WithCancel(context.Background())
	a.stop = stop
	a.startBackgroundTasks(ctx, a.services)

	srv := &http.Server{
		Addr:    ":" + a.Config.Server.Port,
		Handler: a.Router,
	}

	// 启动服务器
	go func() {
		logger.Log.Info("Server running", zap.String("port", a.Config.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	// 等待中断信号优雅地关闭服务器（设置5秒的超时时间）
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Log.Error("Server forced to shutdown", zap.Error(err))
	}

	a.Close(shutdownCtx)
	logger.Log.Info("Server exiting")
}

// Close stops background work and releases the database, Redis and tracer.
func (a *App) Close(ctx context.Context) {
	if a.stop != nil {
		a.stop()
	}
	a.bg.Wait()

	if a.tracer != nil {
		if err := a.tracer.Shutdown(ctx); err != nil {
			logger.Log.Error("Failed to shutdown tracer provider", zap.Error(err))
		}
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			logger.Log.Error("Failed to close redis", zap.Error(err))
		}
	}
	if a.DB != nil {
		if err := database.Close(a.DB); err != nil {
			logger.Log.Error("Failed to close database", zap.Error(err))
		}
	}
}
