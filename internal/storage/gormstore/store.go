package gormstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"legacymigrate/backend/internal/config"
	"legacymigrate/backend/internal/domain"
	"legacymigrate/backend/internal/storage"
)

// ErrMixedTags 一次写入的行必须属于同一租户和同一任务
var ErrMixedTags = errors.New("rows in one write must share tenant and migration")

// Store 基于 GORM 的目标库存储，支持 PostgreSQL、MySQL 与 SQLite
type Store struct {
	db *gorm.DB
}

// Open 按配置选择数据库驱动
func Open(cfg config.DatabaseConfig) (*Store, error) {
	var dialector gorm.Dialector
	switch cfg.Type {
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	case "mysql":
		dialector = mysql.Open(cfg.DSN)
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported database type %q", cfg.Type)
	}
	return NewStoreWithDialector(dialector, cfg)
}

// NewStoreWithDialector 使用指定的 GORM dialector 创建存储实例
func NewStoreWithDialector(dialector gorm.Dialector, cfg config.DatabaseConfig) (*Store, error) {
	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent), // 静默模式
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}

	db, err := gorm.Open(dialector, gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	store := &Store{db: db}
	if err := store.Migrate(); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// NewFromDB 包装已打开的连接，不执行表结构迁移
func NewFromDB(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Models 目标库的全部表，按依赖顺序排列
func Models() []interface{} {
	return []interface{}{
		&domain.Customer{},
		&domain.Address{},
		&domain.Package{},
		&domain.Shipment{},
		&domain.Invoice{},
		&domain.MigrationRun{},
	}
}

// Migrate 自动迁移数据库表结构
func (s *Store) Migrate() error {
	return s.db.AutoMigrate(Models()...)
}

// DB 返回底层 GORM 连接
func (s *Store) DB() *gorm.DB {
	return s.db
}

// ========== Destination Repository ==========

// ListCustomerRefs 返回租户下所有客户的标识信息
func (s *Store) ListCustomerRefs(ctx context.Context, tenantID string) ([]domain.CustomerRef, error) {
	var refs []domain.CustomerRef
	err := s.db.WithContext(ctx).
		Model(&domain.Customer{}).
		Select("id", "pmb", "source_id", "migration_id").
		Where("tenant_id = ?", tenantID).
		Order("id").
		Scan(&refs).Error
	if err != nil {
		return nil, err
	}
	return refs, nil
}

// ListMigratedSources 返回依赖实体中由迁移写入的来源 ID
func (s *Store) ListMigratedSources(ctx context.Context, tenantID string) (map[string]map[int64]string, error) {
	targets := []struct {
		entity string
		model  interface{}
	}{
		{domain.EntityAddresses, &domain.Address{}},
		{domain.EntityPackages, &domain.Package{}},
		{domain.EntityShipments, &domain.Shipment{}},
		{domain.EntityInvoices, &domain.Invoice{}},
	}

	out := make(map[string]map[int64]string, len(targets))
	for _, target := range targets {
		var rows []struct {
			SourceID    int64
			MigrationID string
		}
		err := s.db.WithContext(ctx).
			Model(target.model).
			Select("source_id", "migration_id").
			Where("tenant_id = ? AND migration_id <> ''", tenantID).
			Scan(&rows).Error
		if err != nil {
			return nil, fmt.Errorf("list %s sources: %w", target.entity, err)
		}
		sources := make(map[int64]string, len(rows))
		for _, r := range rows {
			sources[r.SourceID] = r.MigrationID
		}
		out[target.entity] = sources
	}
	return out, nil
}

// GetCustomer 根据 ID 获取客户
func (s *Store) GetCustomer(ctx context.Context, tenantID, id string) (*domain.Customer, error) {
	var c domain.Customer
	err := s.db.WithContext(ctx).Where("id = ? AND tenant_id = ?", id, tenantID).First(&c).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, storage.ErrCustomerNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (s *Store) UpsertCustomers(ctx context.Context, rows []domain.Customer) ([]storage.WriteResult, error) {
	return upsert[domain.Customer](ctx, s.db, rows)
}

func (s *Store) UpsertAddresses(ctx context.Context, rows []domain.Address) ([]storage.WriteResult, error) {
	return upsert[domain.Address](ctx, s.db, rows)
}

func (s *Store) UpsertPackages(ctx context.Context, rows []domain.Package) ([]storage.WriteResult, error) {
	return upsert[domain.Package](ctx, s.db, rows)
}

func (s *Store) UpsertShipments(ctx context.Context, rows []domain.Shipment) ([]storage.WriteResult, error) {
	return upsert[domain.Shipment](ctx, s.db, rows)
}

func (s *Store) UpsertInvoices(ctx context.Context, rows []domain.Invoice) ([]storage.WriteResult, error) {
	return upsert[domain.Invoice](ctx, s.db, rows)
}

// MergeCustomer 补全已有客户的空字段
func (s *Store) MergeCustomer(ctx context.Context, tenantID, id string, patch domain.Customer) (bool, error) {
	changed := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var c domain.Customer
		if err := tx.Where("id = ? AND tenant_id = ?", id, tenantID).First(&c).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return storage.ErrCustomerNotFound
			}
			return err
		}
		if !c.FillEmpty(patch) {
			return nil
		}
		changed = true
		return tx.Save(&c).Error
	})
	return changed, err
}

// DeleteByMigration 按迁移标签删除所有实体的行，依赖实体先删
func (s *Store) DeleteByMigration(ctx context.Context, tenantID, migrationID string) (map[string]int64, error) {
	deleted := make(map[string]int64)
	targets := []struct {
		entity string
		model  interface{}
	}{
		{domain.EntityInvoices, &domain.Invoice{}},
		{domain.EntityShipments, &domain.Shipment{}},
		{domain.EntityPackages, &domain.Package{}},
		{domain.EntityAddresses, &domain.Address{}},
		{domain.EntityCustomers, &domain.Customer{}},
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, target := range targets {
			res := tx.Where("tenant_id = ? AND migration_id = ?", tenantID, migrationID).Delete(target.model)
			if res.Error != nil {
				return fmt.Errorf("delete %s: %w", target.entity, res.Error)
			}
			deleted[target.entity] = res.RowsAffected
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return deleted, nil
}

// ========== Run Repository ==========

func (s *Store) SaveRun(ctx context.Context, run *domain.MigrationRun) error {
	return s.db.WithContext(ctx).Save(run).Error
}

func (s *Store) GetRun(ctx context.Context, id string) (*domain.MigrationRun, error) {
	var run domain.MigrationRun
	if err := s.db.WithContext(ctx).First(&run, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, storage.ErrRunNotFound
		}
		return nil, err
	}
	return &run, nil
}

func (s *Store) ListRuns(ctx context.Context, tenantID string) ([]domain.MigrationRun, error) {
	var runs []domain.MigrationRun
	err := s.db.WithContext(ctx).Where("tenant_id = ?", tenantID).Order("started_at DESC").Find(&runs).Error
	return runs, err
}

// Ping 测试数据库连接
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close 关闭数据库连接
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

var _ storage.Store = (*Store)(nil)
