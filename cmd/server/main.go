package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"legacymigrate/backend/internal/cache"
	"legacymigrate/backend/internal/config"
	"legacymigrate/backend/internal/domain"
	"legacymigrate/backend/internal/health"
	"legacymigrate/backend/internal/logger"
	"legacymigrate/backend/internal/monitoring"
	"legacymigrate/backend/internal/progress"
	"legacymigrate/backend/internal/service"
	"legacymigrate/backend/internal/storage"
	"legacymigrate/backend/internal/storage/gormstore"
	"legacymigrate/backend/internal/storage/memory"
	redisstore "legacymigrate/backend/internal/storage/redis"
	httptransport "legacymigrate/backend/internal/transport/http"
	"legacymigrate/backend/internal/websocket"
)

const shutdownTimeout = 30 * time.Second

// main 启动迁移服务：HTTP API、进度推送、健康检查与指标。
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	// 设置 Gin 模式（基于开发环境标志）
	if !cfg.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	log, err := logger.NewLogger(logger.Config{
		Level:       cfg.Log.Level,
		Development: cfg.Log.Development,
		LogFile:     cfg.Log.File,
		MaxSize:     100,
		MaxBackups:  3,
		MaxAge:      28,
		Compress:    true,
	})
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer log.Sync()

	log.Info("starting legacy migration server",
		zap.String("log_level", cfg.Log.Level),
		zap.Bool("development", cfg.Log.Development),
	)

	store, err := openStore(cfg, log)
	if err != nil {
		log.Fatal("failed to initialize destination storage", zap.Error(err))
	}
	defer store.Close()

	metrics := monitoring.NewMetrics(prometheus.DefaultRegisterer)
	checker := health.NewChecker(store, 2*time.Second, log)

	progressStore, redisClient, err := openProgressStore(cfg, log)
	if err != nil {
		log.Fatal("failed to initialize progress store", zap.Error(err))
	}
	if redisClient != nil {
		defer redisClient.Close()
		checker.AddReadiness("progress-redis", redisClient)
	}

	// hub 与编排器互相引用：hub 推送账本更新，新连接从编排器读取当前进度
	var migrations *service.MigrationService
	hub := websocket.NewHub(websocket.ProgressSourceFunc(
		func(ctx context.Context, id string) (*domain.MigrationProgress, error) {
			return migrations.Progress(ctx, id)
		}), cfg.CORS.AllowedOrigins, log)

	tracker := progress.NewTracker(progressStore, hub, log)
	migrations = service.NewMigrationService(store, tracker, cfg.Migration, log)
	migrations.SetMetrics(metrics)
	migrations.SetReportCache(cache.NewReportCache(cfg.Migration.ReportCacheTTL, 10*time.Minute))

	router := httptransport.NewRouter(httptransport.RouterDependencies{
		Config:     cfg,
		Migrations: migrations,
		Hub:        hub,
		Health:     checker,
		Metrics:    metrics,
		Logger:     log,
	})

	httpAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	httpServer := &http.Server{
		Addr:              httpAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       5 * time.Minute, // 导出文件随请求体上传
		IdleTimeout:       120 * time.Second,
	}

	// 信号处理
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		log.Info("starting HTTP server", zap.String("address", httpAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("HTTP server error", zap.Error(err))
			return err
		}
		return nil
	})

	group.Go(func() error {
		log.Info("starting WebSocket hub")
		hub.Run(groupCtx)
		return nil
	})

	// 优雅关闭：先停止接收请求，再取消运行中的任务并等待其落盘
	group.Go(func() error {
		<-groupCtx.Done()
		log.Info("shutdown signal received, gracefully shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error("HTTP server shutdown error", zap.Error(err))
		}
		if err := migrations.Shutdown(shutdownCtx); err != nil {
			log.Error("migration jobs did not stop in time", zap.Error(err))
		}
		log.Info("servers stopped")
		return nil
	})

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal("server error", zap.Error(err))
	}
	log.Info("server exited cleanly")
}

// openStore 根据配置选择目标库，未配置数据库时使用内存存储
func openStore(cfg *config.Config, log *zap.Logger) (storage.Store, error) {
	if cfg.Database.Type == "" || cfg.Database.DSN == "" {
		log.Info("using memory storage (development mode)")
		return memory.NewStore(), nil
	}

	store, err := gormstore.Open(cfg.Database)
	if err != nil {
		return nil, err
	}
	log.Info("using database storage", zap.String("type", cfg.Database.Type))
	return store, nil
}

// openProgressStore 进度账本默认放在进程内存；多实例部署时放到 redis
func openProgressStore(cfg *config.Config, log *zap.Logger) (progress.Store, *redisstore.Client, error) {
	switch cfg.Progress.Backend {
	case "", "memory":
		return progress.NewMemoryStore(), nil, nil
	case "redis":
		client, err := redisstore.New(cfg.Redis, log)
		if err != nil {
			return nil, nil, err
		}
		log.Info("using redis progress store", zap.Duration("retention", cfg.Progress.Retention))
		return redisstore.NewProgressStore(client, cfg.Progress.Retention), client, nil
	default:
		return nil, nil, fmt.Errorf("unsupported progress backend %q", cfg.Progress.Backend)
	}
}
