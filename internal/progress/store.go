package progress

import (
	"context"
	"errors"

	"legacymigrate/backend/internal/domain"
)

var (
	// ErrNotFound 迁移任务不存在
	ErrNotFound = errors.New("migration progress not found")
	// ErrExists 迁移任务已存在
	ErrExists = errors.New("migration progress already exists")
)

// UpdateFunc 在记录副本上执行修改，返回错误时放弃本次修改
type UpdateFunc func(p *domain.MigrationProgress) error

// Store 进度账本存储
//
// 单进程部署使用内存实现，多进程部署使用 redis 实现。
// Get 与 Update 返回的都是副本，调用方可以随意持有。
type Store interface {
	Init(ctx context.Context, p *domain.MigrationProgress) error
	Get(ctx context.Context, migrationID string) (*domain.MigrationProgress, error)
	Update(ctx context.Context, migrationID string, fn UpdateFunc) (*domain.MigrationProgress, error)
	ListByTenant(ctx context.Context, tenantID string) ([]*domain.MigrationProgress, error)
}
