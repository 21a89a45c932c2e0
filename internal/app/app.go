package app

import (
	"context"
	"net/http"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"exam_practice_backend/internal/config"
	"exam_practice_backend/internal/controller"
	"exam_practice_backend/internal/event"
	"exam_practice_backend/internal/repository"
	"exam_practice_backend/internal/retry"
	"exam_practice_backend/internal/scheduler"
	"exam_practice_backend/internal/service"
	"exam_practice_backend/internal/util"
	"exam_practice_backend/pkg/configwatcher"
	"exam_practice_backend/pkg/database"
	"exam_practice_backend/pkg/logger"
	"exam_practice_backend/pkg/monitoring"
	"exam_practice_backend/pkg/security"
	"exam_practice_backend/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

const configFile = "configs/config.yaml"

type App struct {
	Config          *config.Config
	Router          *gin.Engine
	DB              *gorm.DB
	Redis           *redis.Client
	runner          *scheduler.Runner
	limiter         *security.RateLimiter
	tracer          *sdktrace.TracerProvider
	configCallbacks []func(*config.Config)
}

type repositories struct {
	question   *repository.QuestionRepository
	practice   *repository.PracticeRepository
	wrongBook  *repository.WrongBookRepository
	reviewTask *repository.ReviewTaskRepository
	exam       *repository.ExamRepository
	grading    *repository.GradingRepository
	paperCache *repository.PaperCache
}

type services struct {
	wrongBook  *service.WrongBookService
	reviewTask *service.ReviewTaskService
	grading    *service.GradingService
	practice   *service.PracticeService
	exam       *service.ExamService
	timeout    *scheduler.TimeoutScanner
	daily      *scheduler.DailyReviewGenerator
}

type controllers struct {
	practice *controller.PracticeController
	exam     *controller.ExamController
	review   *controller.ReviewController
	grading  *controller.GradingController
	health   *controller.HealthController
}

func (a *App) RegisterConfigCallback(callback func(*config.Config)) {
	a.configCallbacks = append(a.configCallbacks, callback)
}

func (a *App) applyConfig(cfg *config.Config) {
	for _, cb := range a.configCallbacks {
		cb(cfg)
	}
}

func (a *App) initRepositories(db *gorm.DB, rdb *redis.Client, cfg *config.Config) *repositories {
	return &repositories{
		question:   repository.NewQuestionRepository(db),
		practice:   repository.NewPracticeRepository(db),
		wrongBook:  repository.NewWrongBookRepository(db),
		reviewTask: repository.NewReviewTaskRepository(db),
		exam:       repository.NewExamRepository(db),
		grading:    repository.NewGradingRepository(db),
		paperCache: repository.NewPaperCache(rdb, time.Duration(cfg.Exam.PaperCacheMinutes)*time.Minute),
	}
}

func (a *App) initServices(repos *repositories, cfg *config.Config, db *gorm.DB) *services {
	s := &services{}
	clock := util.SystemClock{}
	bus := event.NewBus()

	s.wrongBook = service.NewWrongBookService(repos.wrongBook, repos.reviewTask, db, clock)
	bus.Subscribe(s.wrongBook)
	s.reviewTask = service.NewReviewTaskService(repos.wrongBook, repos.reviewTask, db)
	s.grading = service.NewGradingService(repos.grading, repos.practice, repos.question, repos.exam, db, clock)

	s.practice = service.NewPracticeService(
		repos.practice,
		repos.question,
		repos.wrongBook,
		repos.reviewTask,
		s.grading,
		bus,
		db,
		clock,
	)
	if cfg.Practice.DefaultSessionSize > 0 {
		s.practice.DefaultSize = cfg.Practice.DefaultSessionSize
	}
	if cfg.Practice.MaxSessionSize > 0 {
		s.practice.MaxSize = cfg.Practice.MaxSessionSize
	}

	s.exam = service.NewExamService(repos.exam, repos.question, repos.paperCache, s.grading, bus, db, clock)

	s.timeout = scheduler.NewTimeoutScanner(repos.exam, s.exam, clock)
	s.daily = scheduler.NewDailyReviewGenerator(s.reviewTask, clock, retry.FromMillis(cfg.Scheduler.RetryDelaysMs))

	return s
}

func (a *App) initControllers(s *services, db *gorm.DB, rdb *redis.Client) *controllers {
	return &controllers{
		practice: controller.NewPracticeController(s.practice),
		exam:     controller.NewExamController(s.exam, s.timeout),
		review:   controller.NewReviewController(s.practice, s.wrongBook, s.daily),
		grading:  controller.NewGradingController(s.grading),
		health:   controller.NewHealthController(db, rdb),
	}
}

func (a *App) setupMiddlewares(router *gin.Engine, cfg *config.Config) {
	router.Use(security.CORS(cfg.CORS))
	router.Use(security.Secure())

	a.limiter = security.NewRateLimiter(cfg.RateLimit)
	if a.limiter != nil {
		router.Use(a.limiter.Middleware())
	}

	// 分布式追踪中间件
	if cfg.Tracing.Enabled {
		router.Use(tracing.GinMiddleware())
	}

	router.Use(monitoring.MetricsMiddleware())
}

// NewApp 初始化依赖；MigrateOnly 时只完成迁移，不构建路由
func NewApp(cfg *config.Config) *App {
	logger.InitLogger(cfg)
	logger.Log.Info("Logger initialized successfully")

	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.InitDB(&cfg.Database, cfg.Server.Mode)
	if err != nil {
		logger.Log.Fatal("Failed to initialize database", zap.Error(err))
	}

	// release 模式默认不迁移，需要 -migrate 显式开启
	if cfg.ForceMigrate || cfg.Server.Mode != "release" {
		if err := database.Migrate(db); err != nil {
			logger.Log.Fatal("Failed to migrate database", zap.Error(err))
		}
	}

	app := &App{
		Config: cfg,
		DB:     db,
	}
	if cfg.MigrateOnly {
		return app
	}

	rdb, err := database.InitRedis(context.Background(), &cfg.Redis)
	if err != nil {
		logger.Log.Fatal("Failed to initialize redis", zap.Error(err))
	}
	app.Redis = rdb

	repos := app.initRepositories(db, rdb, cfg)
	services := app.initServices(repos, cfg, db)
	controllers := app.initControllers(services, db, rdb)

	// 监控初始化
	monitoring.Init()

	if cfg.Tracing.Enabled {
		tp, err := tracing.InitTracer("exam-practice", cfg.Tracing.CollectorEndpoint)
		if err != nil {
			logger.Log.Fatal("Failed to initialize tracing", zap.Error(err))
		}
		app.tracer = tp
	}

	router := gin.New()
	router.Use(gin.Recovery())
	app.Router = router

	app.setupMiddlewares(router, cfg)
	app.registerRoutes(router, controllers, cfg)

	if cfg.Scheduler.Enabled {
		app.runner = scheduler.NewRunner(
			services.timeout,
			services.daily,
			cfg.Scheduler.TimeoutScanInterval(),
			cfg.Scheduler.DailyTaskCheckInterval(),
		)
	}

	app.RegisterConfigCallback(func(newCfg *config.Config) {
		logger.SetLevel(newCfg.Server.Mode)
		logger.Log.Info("Log level updated", zap.String("mode", newCfg.Server.Mode))
	})

	return app
}

// Run 启动 HTTP 服务、后台调度和配置监听，收到 SIGINT/SIGTERM 后依次关闭
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:    ":" + a.Config.Server.Port,
		Handler: a.Router,
	}

	if a.runner != nil {
		if err := a.runner.Start(ctx); err != nil {
			return err
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Log.Info("Server running", zap.String("port", a.Config.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "listen")
		}
		return nil
	})

	g.Go(func() error {
		path, _ := filepath.Abs(configFile)
		if err := configwatcher.Watch(gctx, path, a.applyConfig); err != nil {
			// 配置文件不存在时只依赖环境变量，不影响服务
			logger.Log.Warn("Config watcher disabled", zap.Error(err))
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Log.Info("Shutting down server...")

		if a.runner != nil {
			a.runner.Stop()
		}
		a.limiter.Close()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return errors.Wrap(err, "server forced to shutdown")
		}
		if a.tracer != nil {
			if err := a.tracer.Shutdown(shutdownCtx); err != nil {
				logger.Log.Error("Failed to shutdown tracer provider", zap.Error(err))
			}
		}
		if a.Redis != nil {
			_ = a.Redis.Close()
		}
		return nil
	})

	err := g.Wait()
	logger.Log.Info("Server exiting")
	return err
}
