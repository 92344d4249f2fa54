package domain

import "time"

// MigrationStatus 迁移任务状态
//
// pending -> analyzing -> migrating -> completed | failed
// completed -> rolled_back
type MigrationStatus string

const (
	MigrationPending    MigrationStatus = "pending"
	MigrationAnalyzing  MigrationStatus = "analyzing"
	MigrationMigrating  MigrationStatus = "migrating"
	MigrationCompleted  MigrationStatus = "completed"
	MigrationFailed     MigrationStatus = "failed"
	MigrationRolledBack MigrationStatus = "rolled_back"
)

// EntityStatus 单个实体类型的处理状态
type EntityStatus string

const (
	EntityPending    EntityStatus = "pending"
	EntityInProgress EntityStatus = "in_progress"
	EntityCompleted  EntityStatus = "completed"
	EntitySkipped    EntityStatus = "skipped"
)

// 任务结果，供操作人员界面区分"全部成功"与"部分失败"
const (
	OutcomeCompleted           = "completed"
	OutcomeCompletedWithErrors = "completed_with_errors"
	OutcomeFailed              = "failed"
	OutcomeRolledBack          = "rolled_back"
)

// CancelledMessage 操作人员取消任务时写入错误列表的消息
const CancelledMessage = "cancelled by operator"

var transitions = map[MigrationStatus][]MigrationStatus{
	MigrationPending:   {MigrationAnalyzing, MigrationFailed},
	MigrationAnalyzing: {MigrationMigrating, MigrationFailed},
	MigrationMigrating: {MigrationCompleted, MigrationFailed},
	MigrationCompleted: {MigrationRolledBack},
}

// CanTransition 判断状态迁移是否合法
func (s MigrationStatus) CanTransition(to MigrationStatus) bool {
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal completed、failed、rolled_back 为终态
func (s MigrationStatus) IsTerminal() bool {
	return s == MigrationCompleted || s == MigrationFailed || s == MigrationRolledBack
}

// IsActive 任务是否仍在执行
func (s MigrationStatus) IsActive() bool {
	return s == MigrationPending || s == MigrationAnalyzing || s == MigrationMigrating
}

// EntityProgress 单个实体类型的计数
type EntityProgress struct {
	Total    int          `json:"total"`
	Migrated int          `json:"migrated"`
	Skipped  int          `json:"skipped"`
	Errors   int          `json:"errors"`
	Status   EntityStatus `json:"status"`
}

// Processed 已处理记录数
func (e EntityProgress) Processed() int {
	return e.Migrated + e.Skipped + e.Errors
}

// MigrationError 错误列表中的一条记录
type MigrationError struct {
	Entity    string    `json:"entity"`
	SourceID  string    `json:"sourceId"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// MigrationProgress 迁移任务的进度记录
type MigrationProgress struct {
	MigrationID            string                    `json:"migrationId"`
	TenantID               string                    `json:"tenantId"`
	SourceFile             string                    `json:"sourceFile,omitempty"`
	Status                 MigrationStatus           `json:"status"`
	Outcome                string                    `json:"outcome,omitempty"`
	CurrentEntity          string                    `json:"currentEntity"`
	CurrentProgress        int                       `json:"currentProgress"`
	TotalProgress          int                       `json:"totalProgress"`
	Entities               map[string]EntityProgress `json:"entities"`
	Errors                 []MigrationError          `json:"errors"`
	StartedAt              time.Time                 `json:"startedAt"`
	UpdatedAt              time.Time                 `json:"updatedAt"`
	CompletedAt            *time.Time                `json:"completedAt,omitempty"`
	RolledBackAt           *time.Time                `json:"rolledBackAt,omitempty"`
	EstimatedTimeRemaining *float64                  `json:"estimatedTimeRemaining,omitempty"` // 秒
}

// NewMigrationProgress 创建 pending 状态的进度记录，所有实体处于 pending
func NewMigrationProgress(migrationID, tenantID string, now time.Time) *MigrationProgress {
	entities := make(map[string]EntityProgress, len(EntityOrder))
	for _, name := range EntityOrder {
		entities[name] = EntityProgress{Status: EntityPending}
	}
	return &MigrationProgress{
		MigrationID: migrationID,
		TenantID:    tenantID,
		Status:      MigrationPending,
		Entities:    entities,
		Errors:      []MigrationError{},
		StartedAt:   now,
		UpdatedAt:   now,
	}
}

// Clone 深拷贝，读取方拿到的副本与账本内部状态互不影响
func (p *MigrationProgress) Clone() *MigrationProgress {
	if p == nil {
		return nil
	}
	cp := *p
	cp.Entities = make(map[string]EntityProgress, len(p.Entities))
	for k, v := range p.Entities {
		cp.Entities[k] = v
	}
	cp.Errors = append([]MigrationError(nil), p.Errors...)
	if p.CompletedAt != nil {
		t := *p.CompletedAt
		cp.CompletedAt = &t
	}
	if p.RolledBackAt != nil {
		t := *p.RolledBackAt
		cp.RolledBackAt = &t
	}
	if p.EstimatedTimeRemaining != nil {
		v := *p.EstimatedTimeRemaining
		cp.EstimatedTimeRemaining = &v
	}
	return &cp
}

// CanCancel 只有执行中的任务可以取消
func (p *MigrationProgress) CanCancel() bool {
	return p.Status.IsActive()
}

// CanRollback 只有 completed 的任务可以回滚
func (p *MigrationProgress) CanRollback() bool {
	return p.Status == MigrationCompleted
}

// Totals 汇总所有实体的计数
func (p *MigrationProgress) Totals() (migrated, skipped, errors int) {
	for _, e := range p.Entities {
		migrated += e.Migrated
		skipped += e.Skipped
		errors += e.Errors
	}
	return
}
