package domain

// ConflictMode 目标库已存在同一信箱编号时的处理方式
type ConflictMode string

const (
	ConflictSkip      ConflictMode = "skip"
	ConflictMerge     ConflictMode = "merge"
	ConflictCreateNew ConflictMode = "create_new"
)

// MigrationOptions 操作人员在开始迁移前的选择
type MigrationOptions struct {
	IncludeCustomers    bool         `json:"includeCustomers"`
	IncludeAddresses    bool         `json:"includeAddresses"`
	IncludePackages     bool         `json:"includePackages"`
	IncludeShipments    bool         `json:"includeShipments"`
	IncludeProducts     bool         `json:"includeProducts"`
	IncludeTransactions bool         `json:"includeTransactions"`
	ConflictResolution  ConflictMode `json:"conflictResolution" validate:"omitempty,oneof=skip merge create_new"`
	// AcceptDefects 预检存在阻断性缺陷时仍然执行，缺陷记录按跳过处理
	AcceptDefects bool `json:"acceptDefects"`
}

// DefaultMigrationOptions 全部包含，冲突时跳过
func DefaultMigrationOptions() MigrationOptions {
	return MigrationOptions{
		IncludeCustomers:    true,
		IncludeAddresses:    true,
		IncludePackages:     true,
		IncludeShipments:    true,
		IncludeProducts:     true,
		IncludeTransactions: true,
		ConflictResolution:  ConflictSkip,
	}
}

// Includes 判断某个实体是否在本次迁移范围内
func (o MigrationOptions) Includes(entity string) bool {
	switch entity {
	case EntityCustomers:
		return o.IncludeCustomers
	case EntityAddresses:
		return o.IncludeAddresses
	case EntityPackages:
		return o.IncludePackages
	case EntityShipments:
		return o.IncludeShipments
	case EntityInvoices:
		return o.IncludeTransactions
	case EntityProducts:
		return o.IncludeProducts
	}
	return false
}
