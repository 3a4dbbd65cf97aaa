package app

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"omr_grading_backend/internal/config"
	"omr_grading_backend/internal/controller"
	"omr_grading_backend/internal/detect"
	"omr_grading_backend/internal/grading"
	"omr_grading_backend/internal/layout"
	"omr_grading_backend/internal/preprocess"
	"omr_grading_backend/internal/repository"
	"omr_grading_backend/internal/service"
	"omr_grading_backend/pkg/configwatcher"
	"omr_grading_backend/pkg/database"
	"omr_grading_backend/pkg/logger"
	"omr_grading_backend/pkg/monitoring"
	"omr_grading_backend/pkg/security"
	"omr_grading_backend/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type App struct {
	Config *config.Config
	Router *gin.Engine
	DB     *gorm.DB
	Redis  *redis.Client

	// engine 热更新时整体替换，处理中的请求继续用旧实例
	engine atomic.Value
}

type repositories struct {
	exam       *repository.ExamRepository
	submission *repository.SubmissionRepository
	result     *repository.ResultRepository
}

type services struct {
	storage    *service.StorageService
	exam       *service.ExamService
	submission *service.SubmissionService
	result     *service.ResultService
	statistics *service.StatisticsService
	grading    *service.GradingService
}

type controllers struct {
	exam       *controller.ExamController
	submission *controller.SubmissionController
	statistics *controller.StatisticsController
}

func (a *App) initRepositories(db *gorm.DB) *repositories {
	return &repositories{
		exam:       repository.NewExamRepository(db),
		submission: repository.NewSubmissionRepository(db),
		result:     repository.NewResultRepository(db),
	}
}

// BuildEngine 按配置组装识别层。缺省顺序为像素层在前、视觉模型层按
// 声明顺序兜底；detection.tier_order 可任意重排（合法性在配置加载时校验）。
func BuildEngine(cfg *config.Config) *detect.Engine {
	byName := map[string]detect.Tier{
		detect.TierCV: detect.NewIntensityTier(),
	}
	order := []string{detect.TierCV}
	for _, v := range cfg.Detection.Vision {
		byName[v.Name] = detect.NewVisionTier(detect.VisionConfig{
			Name:              v.Name,
			BaseURL:           v.BaseURL,
			APIKey:            v.APIKey,
			Model:             v.Model,
			Timeout:           v.TimeoutSeconds,
			RequestsPerMinute: v.RequestsPerMinute,
		})
		order = append(order, v.Name)
	}
	if len(cfg.Detection.TierOrder) > 0 {
		order = cfg.Detection.TierOrder
	}

	tiers := make([]detect.Tier, 0, len(order))
	for _, name := range order {
		if t, ok := byName[name]; ok {
			tiers = append(tiers, t)
		}
	}
	return detect.NewEngine(cfg.Detection.ConfidenceThreshold, cfg.Detection.Aggregation, tiers...)
}

func GradingPolicy(cfg *config.Config) grading.Policy {
	if len(cfg.Grading.Cutoffs) == 0 {
		return grading.DefaultPolicy()
	}
	cutoffs := make([]grading.Cutoff, 0, len(cfg.Grading.Cutoffs))
	for _, c := range cfg.Grading.Cutoffs {
		cutoffs = append(cutoffs, grading.Cutoff{MinPercentage: c.MinPercentage, Grade: c.Grade})
	}
	return grading.Policy{Cutoffs: cutoffs}
}

func (a *App) initServices(repos *repositories, cfg *config.Config, rdb *redis.Client) (*services, error) {
	storage, err := service.NewStorageService(cfg)
	if err != nil {
		return nil, err
	}

	statistics := service.NewStatisticsService(repos.result, rdb, cfg.Stats.CacheTTLSeconds)

	engine := BuildEngine(cfg)
	a.engine.Store(engine)

	gradingSvc := service.NewGradingService(
		repos.exam,
		repos.submission,
		repos.result,
		storage.Provider,
		a.currentEngine(),
		statistics,
		GradingPolicy(cfg),
	)

	return &services{
		storage:    storage,
		exam:       service.NewExamService(repos.exam),
		submission: service.NewSubmissionService(repos.submission, repos.exam, storage.Provider),
		result:     service.NewResultService(repos.result),
		statistics: statistics,
		grading:    gradingSvc,
	}, nil
}

// currentEngine 包一层转发，配置热更新后新请求走新引擎
func (a *App) currentEngine() service.Detector {
	return detectorFunc{app: a}
}

type detectorFunc struct {
	app *App
}

func (d detectorFunc) Detect(ctx context.Context, rect *preprocess.Rectified, tpl *layout.Template) (*detect.Outcome, error) {
	return d.app.engine.Load().(*detect.Engine).Detect(ctx, rect, tpl)
}

func (d detectorFunc) DetectWith(ctx context.Context, tierName string, rect *preprocess.Rectified, tpl *layout.Template) (*detect.Outcome, error) {
	return d.app.engine.Load().(*detect.Engine).DetectWith(ctx, tierName, rect, tpl)
}

func (a *App) initControllers(s *services) *controllers {
	return &controllers{
		exam:       controller.NewExamController(s.exam),
		submission: controller.NewSubmissionController(s.submission, s.grading),
		statistics: controller.NewStatisticsController(s.statistics, s.result),
	}
}

func (a *App) setupMiddlewares(router *gin.Engine, cfg *config.Config) {
	router.Use(security.Secure())

	maxReq := cfg.RateLimit.MaxRequests
	if maxReq <= 0 {
		maxReq = 1000
	}
	window := time.Duration(cfg.RateLimit.WindowMinutes) * time.Minute
	if window <= 0 {
		window = time.Minute
	}
	router.Use(security.RateLimiter(maxReq, window))

	if cfg.Tracing.Enabled {
		router.Use(tracing.GinMiddleware())
	}

	router.Use(monitoring.MetricsMiddleware())
}

func NewApp(cfg *config.Config) *App {
	logger.InitLogger(cfg.Server.Mode)

	logger.Log.Info("Logger initialized successfully")

	db, err := database.InitDB(&cfg.Database)
	if err != nil {
		logger.Log.Fatal("Failed to initialize database", zap.Error(err))
	}

	rdb, err := database.InitRedis(&cfg.Redis)
	if err != nil {
		logger.Log.Warn("Redis unavailable, statistics cache disabled", zap.Error(err))
		rdb = nil
	}

	app := &App{
		Config: cfg,
		DB:     db,
		Redis:  rdb,
	}

	repos := app.initRepositories(db)
	svcs, err := app.initServices(repos, cfg, rdb)
	if err != nil {
		logger.Log.Fatal("Failed to initialize services", zap.Error(err))
	}
	ctrls := app.initControllers(svcs)

	monitoring.Init()

	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()
	app.Router = router

	app.setupMiddlewares(router, cfg)

	if cfg.Tracing.Enabled {
		_, err := tracing.InitTracer("omr-grading-platform", cfg.Tracing.CollectorEndpoint)
		if err != nil {
			logger.Log.Fatal("Failed to initialize tracing", zap.Error(err))
		}
	}

	app.registerRoutes(router, ctrls)

	go configwatcher.WatchConfig("configs/config.yaml", func(newCfg *config.Config) {
		app.engine.Store(BuildEngine(newCfg))
		svcs.grading.SetPolicy(GradingPolicy(newCfg))
	})

	return app
}

func (a *App) Run() {
	srv := &http.Server{
		Addr:    ":" + a.Config.Server.Port,
		Handler: a.Router,
	}

	go func() {
		log.Printf("Server running on port %s", a.Config.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server exiting")
}
