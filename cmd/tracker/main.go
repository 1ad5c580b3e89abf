package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"ipotracker/internal/client/exchange"
	"ipotracker/internal/client/exchange/bse"
	"ipotracker/internal/client/exchange/nse"
	"ipotracker/internal/config"
	cronrunner "ipotracker/internal/cron"
	"ipotracker/internal/db"
	"ipotracker/internal/handler"
	"ipotracker/internal/logger"
	"ipotracker/internal/metrics"
	gormrepository "ipotracker/internal/repository/gorm"
	"ipotracker/internal/runlog"
	"ipotracker/internal/sebi"
	"ipotracker/internal/service"

	_ "ipotracker/docs"
)

func main() {
	cfgPath := os.Getenv("IPO_CONFIG")
	if cfgPath == "" {
		cfgPath = "config/config.yaml"
	}

	envOnly := false
	if envOnlyRaw := os.Getenv("IPO_ENV_ONLY"); envOnlyRaw != "" {
		envOnly = strings.EqualFold(envOnlyRaw, "true") || envOnlyRaw == "1"
	}

	cfg, err := config.Load(cfgPath, envOnly)
	if err != nil {
		panic(err)
	}

	logger, err := logger.New(cfg.Log)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	dbConn, err := db.Open(cfg.DB)
	if err != nil {
		logger.Fatal("db open failed", zap.Error(err))
	}
	defer db.Close(dbConn)

	if err := db.SetTimezone(dbConn, cfg.DB.Timezone); err != nil {
		logger.Warn("failed to set timezone", zap.Error(err))
	}
	if err := db.AutoMigrate(dbConn); err != nil {
		logger.Fatal("auto-migrate failed", zap.Error(err))
	}

	calendar, err := sebi.LoadCalendar(cfg.Calendar.Timezone, cfg.Calendar.Holidays)
	if err != nil {
		logger.Fatal("calendar init failed", zap.Error(err))
	}
	pipelineMetrics := metrics.New()

	nseClient, err := nse.New(fetcherConfig(cfg.NSE), logger)
	if err != nil {
		logger.Fatal("nse client init failed", zap.Error(err))
	}
	bseClient, err := bse.New(fetcherConfig(cfg.BSE), logger)
	if err != nil {
		logger.Fatal("bse client init failed", zap.Error(err))
	}

	store := gormrepository.New(dbConn.Gorm)
	settingsSvc := &service.SystemSettingsService{Repo: store}
	if err := settingsSvc.EnsureDefaultSwitches(context.Background()); err != nil {
		logger.Warn("init default system switches failed", zap.Error(err))
	}

	discoverySvc := &service.DiscoveryService{
		Repo:     store,
		Sources:  []exchange.Client{nseClient, bseClient},
		Calendar: calendar,
		Metrics:  pipelineMetrics,
		Logger:   logger,
	}
	reconcileSvc := &service.ReconciliationService{
		Repo:    store,
		Metrics: pipelineMetrics,
		Logger:  logger,
	}
	fallbackSvc := &service.DateFallbackService{
		Repo:     store,
		Calendar: calendar,
		Metrics:  pipelineMetrics,
		Logger:   logger,
	}
	enrichSvc := &service.EnrichmentService{
		Repo:      store,
		NSE:       nseClient,
		BSE:       bseClient,
		Fallback:  fallbackSvc,
		Calendar:  calendar,
		Flags:     settingsSvc,
		Metrics:   pipelineMetrics,
		Logger:    logger,
		BatchSize: cfg.Enrichment.BatchSize,
		Freshness: cfg.Enrichment.FreshnessWindow,
		Pacing:    cfg.Enrichment.PacingDelay,
	}
	if cfg.Timetable.Enabled {
		enrichSvc.Timetable = service.NewTimetableExtractor(cfg.Timetable, store, calendar, pipelineMetrics, logger)
	}

	if strings.EqualFold(cfg.App.Env, "dev") {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(corsMiddleware())

	runLog := initRunLog(logger)
	engine.Use(runlog.InjectClientMiddleware(runLog))
	engine.Use(runlog.WriteAuditMiddleware(runLog, logger))

	healthHandler := &handler.HealthHandler{DB: dbConn}
	healthHandler.Register(engine)
	handler.RegisterDocs(engine)

	pipelineHandler := &handler.PipelineHandler{
		Discovery:      discoverySvc,
		Reconciliation: reconcileSvc,
		Enrichment:     enrichSvc,
		Repo:           store,
		Logger:         logger,
	}
	pipelineHandler.Register(engine)
	offeringsHandler := &handler.OfferingsHandler{Repo: store, Enrichment: enrichSvc, Fallback: fallbackSvc, Logger: logger}
	offeringsHandler.Register(engine)
	calendarHandler := &handler.CalendarHandler{Calendar: calendar}
	calendarHandler.Register(engine)
	settingsHandler := &handler.SettingsHandler{Settings: settingsSvc}
	settingsHandler.Register(engine)

	if cfg.Metrics.Enabled {
		engine.GET(cfg.Metrics.Path, gin.WrapH(pipelineMetrics.Handler()))
	}
	engine.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	srv := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	baseCtx := ctx
	if runLog != nil {
		baseCtx = runlog.WithClient(ctx, runLog)
	}

	if cfg.Cron.Enabled {
		cronRunner := cronrunner.New(logger, baseCtx)
		jobs := &cronrunner.Jobs{
			Discovery:      discoverySvc,
			Reconciliation: reconcileSvc,
			Enrichment:     enrichSvc,
			Settings:       settingsSvc,
			RunLog:         runLog,
			Logger:         logger,
		}
		if err := jobs.Register(cronRunner, cfg.Cron); err != nil {
			logger.Warn("cron register failed", zap.Error(err))
		}
		cronRunner.Start()
		defer cronRunner.Stop()
	}

	errCh := make(chan error, 1)

	go func() {
		logger.Info("http server starting", zap.String("addr", cfg.Server.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown requested")
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

func fetcherConfig(c config.ExchangeConfig) exchange.FetcherConfig {
	return exchange.FetcherConfig{
		BaseURL:        c.BaseURL,
		Referer:        c.Referer,
		UserAgent:      c.UserAgent,
		Timeout:        c.Timeout,
		MaxRetries:     c.MaxRetries,
		BaseBackoff:    c.BaseBackoff,
		RatePerSecond:  c.RatePerSecond,
		Burst:          c.Burst,
		BrowserWarmup:  c.BrowserWarmup,
		BrowserTimeout: c.BrowserTimeout,
	}
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func initRunLog(logger *zap.Logger) *runlog.Client {
	p := runlog.FromEnv()
	if p == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := p.Login(ctx); err != nil {
		logger.Warn("run log login failed (reporting disabled)", zap.Error(err))
		return nil
	}
	logger.Info("run log login ok")
	return p
}
