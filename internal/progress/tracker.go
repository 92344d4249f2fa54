package progress

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"legacymigrate/backend/internal/domain"
)

var (
	// ErrInvalidTransition 状态迁移不合法
	ErrInvalidTransition = errors.New("invalid migration status transition")
	// ErrTerminal 终态记录不可再修改
	ErrTerminal = errors.New("migration is in a terminal state")
	// ErrUnknownEntity 未知实体名称
	ErrUnknownEntity = errors.New("unknown entity")
)

// Notifier 每次更新成功后收到记录副本，用于推送给订阅者
type Notifier interface {
	Publish(p *domain.MigrationProgress)
}

// Tracker 迁移任务的状态机
//
// 所有修改都通过 Store.Update 完成，读方随时可以轮询到一致的快照。
// 终态记录只允许 completed -> rolled_back 这一次修改。
type Tracker struct {
	store    Store
	notifier Notifier
	logger   *zap.Logger
	now      func() time.Time
}

// NewTracker 创建状态机，notifier 与 logger 可为 nil
func NewTracker(store Store, notifier Notifier, logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{
		store:    store,
		notifier: notifier,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Create 创建 pending 状态的任务记录
func (t *Tracker) Create(ctx context.Context, migrationID, tenantID, sourceFile string) (*domain.MigrationProgress, error) {
	p := domain.NewMigrationProgress(migrationID, tenantID, t.now())
	p.SourceFile = sourceFile
	if err := t.store.Init(ctx, p); err != nil {
		return nil, err
	}
	t.publish(p)
	return p.Clone(), nil
}

// Get 返回任务记录的快照
func (t *Tracker) Get(ctx context.Context, migrationID string) (*domain.MigrationProgress, error) {
	return t.store.Get(ctx, migrationID)
}

// ActiveForTenant 返回租户下仍在执行的任务
func (t *Tracker) ActiveForTenant(ctx context.Context, tenantID string) (*domain.MigrationProgress, error) {
	jobs, err := t.store.ListByTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	for _, p := range jobs {
		if p.Status.IsActive() {
			return p, nil
		}
	}
	return nil, nil
}

// Analyzing pending -> analyzing
func (t *Tracker) Analyzing(ctx context.Context, migrationID string) error {
	return t.mutate(ctx, migrationID, func(p *domain.MigrationProgress) error {
		return t.transition(p, domain.MigrationAnalyzing)
	})
}

// Migrating analyzing -> migrating，同时写入各实体的记录总数
func (t *Tracker) Migrating(ctx context.Context, migrationID string, totals map[string]int) error {
	return t.mutate(ctx, migrationID, func(p *domain.MigrationProgress) error {
		if err := t.transition(p, domain.MigrationMigrating); err != nil {
			return err
		}
		p.TotalProgress = 0
		for name, entity := range p.Entities {
			entity.Total = totals[name]
			p.Entities[name] = entity
			p.TotalProgress += entity.Total
		}
		p.CurrentProgress = 0
		return nil
	})
}

// StartEntity 实体进入 in_progress
func (t *Tracker) StartEntity(ctx context.Context, migrationID, entity string) error {
	return t.mutate(ctx, migrationID, func(p *domain.MigrationProgress) error {
		e, ok := p.Entities[entity]
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownEntity, entity)
		}
		e.Status = domain.EntityInProgress
		p.Entities[entity] = e
		p.CurrentEntity = entity
		return nil
	})
}

// EntityProgress 实体处理中的进度，processed 为该实体已处理的记录数
//
// 总进度只增不减：回调乱序到达时较小的值被忽略。
func (t *Tracker) EntityProgress(ctx context.Context, migrationID, entity string, processed int) error {
	return t.mutate(ctx, migrationID, func(p *domain.MigrationProgress) error {
		if _, ok := p.Entities[entity]; !ok {
			return fmt.Errorf("%w: %s", ErrUnknownEntity, entity)
		}
		current := finishedProcessed(p) + processed
		if current > p.CurrentProgress {
			p.CurrentProgress = current
		}
		t.estimate(p)
		return nil
	})
}

// FinishEntity 写入实体的最终计数并标记为 completed
func (t *Tracker) FinishEntity(ctx context.Context, migrationID, entity string, migrated, skipped, errs int) error {
	return t.finishEntity(ctx, migrationID, entity, domain.EntityCompleted, migrated, skipped, errs)
}

// SkipEntity 整个实体未处理（未选择或目标系统不支持），全部计为跳过
func (t *Tracker) SkipEntity(ctx context.Context, migrationID, entity string, count int) error {
	return t.finishEntity(ctx, migrationID, entity, domain.EntitySkipped, 0, count, 0)
}

func (t *Tracker) finishEntity(ctx context.Context, migrationID, entity string, status domain.EntityStatus, migrated, skipped, errs int) error {
	return t.mutate(ctx, migrationID, func(p *domain.MigrationProgress) error {
		e, ok := p.Entities[entity]
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownEntity, entity)
		}
		e.Migrated, e.Skipped, e.Errors = migrated, skipped, errs
		e.Status = status
		if e.Processed() > e.Total {
			e.Total = e.Processed()
		}
		p.Entities[entity] = e

		if current := finishedProcessed(p); current > p.CurrentProgress {
			p.CurrentProgress = current
		}
		t.estimate(p)
		return nil
	})
}

// AddErrors 追加错误列表
func (t *Tracker) AddErrors(ctx context.Context, migrationID string, errs ...domain.MigrationError) error {
	if len(errs) == 0 {
		return nil
	}
	now := t.now()
	return t.mutate(ctx, migrationID, func(p *domain.MigrationProgress) error {
		for _, e := range errs {
			if e.Timestamp.IsZero() {
				e.Timestamp = now
			}
			p.Errors = append(p.Errors, e)
		}
		return nil
	})
}

// Complete migrating -> completed，根据错误计数给出结果
func (t *Tracker) Complete(ctx context.Context, migrationID string) (*domain.MigrationProgress, error) {
	return t.update(ctx, migrationID, false, func(p *domain.MigrationProgress) error {
		if err := t.transition(p, domain.MigrationCompleted); err != nil {
			return err
		}
		_, _, errs := p.Totals()
		p.Outcome = domain.OutcomeCompleted
		if errs > 0 || len(p.Errors) > 0 {
			p.Outcome = domain.OutcomeCompletedWithErrors
		}
		p.CurrentEntity = ""
		zero := 0.0
		p.EstimatedTimeRemaining = &zero
		return nil
	})
}

// Fail 任务进入 failed，message 写入错误列表
func (t *Tracker) Fail(ctx context.Context, migrationID, message string) (*domain.MigrationProgress, error) {
	return t.update(ctx, migrationID, false, func(p *domain.MigrationProgress) error {
		if err := t.transition(p, domain.MigrationFailed); err != nil {
			return err
		}
		p.Outcome = domain.OutcomeFailed
		p.Errors = append(p.Errors, domain.MigrationError{
			Entity:    p.CurrentEntity,
			Message:   message,
			Timestamp: t.now(),
		})
		p.EstimatedTimeRemaining = nil
		return nil
	})
}

// RolledBack completed -> rolled_back，保留任务历史
func (t *Tracker) RolledBack(ctx context.Context, migrationID string) (*domain.MigrationProgress, error) {
	return t.update(ctx, migrationID, true, func(p *domain.MigrationProgress) error {
		if err := t.transition(p, domain.MigrationRolledBack); err != nil {
			return err
		}
		now := t.now()
		p.Outcome = domain.OutcomeRolledBack
		p.RolledBackAt = &now
		return nil
	})
}

func (t *Tracker) mutate(ctx context.Context, migrationID string, fn UpdateFunc) error {
	_, err := t.update(ctx, migrationID, false, fn)
	return err
}

func (t *Tracker) update(ctx context.Context, migrationID string, allowTerminal bool, fn UpdateFunc) (*domain.MigrationProgress, error) {
	p, err := t.store.Update(ctx, migrationID, func(p *domain.MigrationProgress) error {
		if p.Status.IsTerminal() && !allowTerminal {
			return fmt.Errorf("%w: %s", ErrTerminal, p.Status)
		}
		if err := fn(p); err != nil {
			return err
		}
		p.UpdatedAt = t.now()
		return nil
	})
	if err != nil {
		return nil, err
	}
	t.publish(p)
	return p, nil
}

func (t *Tracker) transition(p *domain.MigrationProgress, to domain.MigrationStatus) error {
	if !p.Status.CanTransition(to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, p.Status, to)
	}
	t.logger.Info("migration status changed",
		zap.String("migration_id", p.MigrationID),
		zap.String("tenant_id", p.TenantID),
		zap.String("from", string(p.Status)),
		zap.String("to", string(to)))

	p.Status = to
	if to == domain.MigrationCompleted || to == domain.MigrationFailed {
		now := t.now()
		p.CompletedAt = &now
	}
	return nil
}

// estimate 按已处理速度估算剩余秒数
func (t *Tracker) estimate(p *domain.MigrationProgress) {
	elapsed := t.now().Sub(p.StartedAt).Seconds()
	if p.CurrentProgress <= 0 || elapsed <= 0 {
		p.EstimatedTimeRemaining = nil
		return
	}
	remaining := p.TotalProgress - p.CurrentProgress
	if remaining < 0 {
		remaining = 0
	}
	eta := float64(remaining) / (float64(p.CurrentProgress) / elapsed)
	p.EstimatedTimeRemaining = &eta
}

func (t *Tracker) publish(p *domain.MigrationProgress) {
	if t.notifier != nil {
		t.notifier.Publish(p.Clone())
	}
}

// finishedProcessed 已结束实体的处理数之和
func finishedProcessed(p *domain.MigrationProgress) int {
	total := 0
	for _, e := range p.Entities {
		if e.Status == domain.EntityCompleted || e.Status == domain.EntitySkipped {
			total += e.Processed()
		}
	}
	return total
}
