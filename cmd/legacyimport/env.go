package main

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"legacymigrate/backend/internal/config"
	"legacymigrate/backend/internal/logger"
	"legacymigrate/backend/internal/progress"
	"legacymigrate/backend/internal/service"
	"legacymigrate/backend/internal/storage"
	"legacymigrate/backend/internal/storage/gormstore"
	"legacymigrate/backend/internal/storage/memory"
)

// env 一次命令运行所需的服务
type env struct {
	cfg        *config.Config
	log        *zap.Logger
	store      storage.Store
	migrations *service.MigrationService
}

// newEnv 加载配置，命令行参数覆盖数据库设置；进度账本始终在进程内
func newEnv(flags *globalFlags) (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if flags.dbType != "" {
		cfg.Database.Type = flags.dbType
		cfg.Database.DSN = flags.dsn
	}

	log := logger.NewDevelopmentLogger()
	if !flags.verbose {
		log, err = logger.NewLogger(logger.Config{Level: "warn", Development: true, Stderr: true})
		if err != nil {
			return nil, err
		}
	}

	var store storage.Store
	if cfg.Database.Type == "" || cfg.Database.DSN == "" {
		log.Warn("no destination database configured, writing to memory")
		store = memory.NewStore()
	} else {
		store, err = gormstore.Open(cfg.Database)
		if err != nil {
			return nil, err
		}
	}

	tracker := progress.NewTracker(progress.NewMemoryStore(), nil, log)
	return &env{
		cfg:        cfg,
		log:        log,
		store:      store,
		migrations: service.NewMigrationService(store, tracker, cfg.Migration, log),
	}, nil
}

func (e *env) close() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := e.migrations.Shutdown(ctx); err != nil {
		e.log.Warn("migration jobs did not stop in time", zap.Error(err))
	}
	_ = e.log.Sync()
	if err := e.store.Close(); err != nil {
		e.log.Warn("close destination store", zap.Error(err))
	}
}

const (
	pollInterval    = 500 * time.Millisecond
	shutdownTimeout = 30 * time.Second
)
