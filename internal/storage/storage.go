package storage

import (
	"context"
	"errors"

	"legacymigrate/backend/internal/domain"
)

var (
	// ErrCustomerNotFound 客户不存在
	ErrCustomerNotFound = errors.New("customer not found")
	// ErrRunNotFound 迁移任务记录不存在
	ErrRunNotFound = errors.New("migration run not found")
)

// WriteOutcome 单条记录的写入结果
type WriteOutcome string

const (
	Created WriteOutcome = "created"
	Updated WriteOutcome = "updated"
)

// WriteResult 写入结果，ID 为目标库主键
type WriteResult struct {
	SourceID int64
	ID       string
	Outcome  WriteOutcome
}

// DestinationRepository 定义目标库的读写操作
//
// 所有 Upsert 方法按 (tenant_id, migration_id, source_id) 写入：
// 同一任务重复写入同一来源记录时更新原有行，不会产生第二行。
type DestinationRepository interface {
	ListCustomerRefs(ctx context.Context, tenantID string) ([]domain.CustomerRef, error)
	GetCustomer(ctx context.Context, tenantID, id string) (*domain.Customer, error)
	// ListMigratedSources 返回依赖实体中由迁移写入的行：实体 -> 来源 ID -> 写入标签
	ListMigratedSources(ctx context.Context, tenantID string) (map[string]map[int64]string, error)
	UpsertCustomers(ctx context.Context, rows []domain.Customer) ([]WriteResult, error)
	UpsertAddresses(ctx context.Context, rows []domain.Address) ([]WriteResult, error)
	UpsertPackages(ctx context.Context, rows []domain.Package) ([]WriteResult, error)
	UpsertShipments(ctx context.Context, rows []domain.Shipment) ([]WriteResult, error)
	UpsertInvoices(ctx context.Context, rows []domain.Invoice) ([]WriteResult, error)
	// MergeCustomer 用 patch 补全已有客户的空字段，返回是否有改动
	MergeCustomer(ctx context.Context, tenantID, id string, patch domain.Customer) (bool, error)
	// DeleteByMigration 删除带有该任务标签的所有行，返回各实体删除的行数
	DeleteByMigration(ctx context.Context, tenantID, migrationID string) (map[string]int64, error)
}

// RunRepository 定义迁移任务记录的存取操作
type RunRepository interface {
	SaveRun(ctx context.Context, run *domain.MigrationRun) error
	GetRun(ctx context.Context, id string) (*domain.MigrationRun, error)
	ListRuns(ctx context.Context, tenantID string) ([]domain.MigrationRun, error)
}

// Store 聚合目标库存储接口
type Store interface {
	DestinationRepository
	RunRepository
	Ping(ctx context.Context) error
	Close() error
}
