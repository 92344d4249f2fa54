package domain

// Classification 预检对单条记录的分类
type Classification string

const (
	ClassValid     Classification = "valid"
	ClassDuplicate Classification = "duplicate"
	ClassOrphaned  Classification = "orphaned"
	ClassInvalid   Classification = "invalid"
	ClassSkipped   Classification = "skipped"
)

// EntityReport 单个实体的预检计数
type EntityReport struct {
	Total      int `json:"total"`
	Valid      int `json:"valid"`
	Duplicates int `json:"duplicates"`
	Orphaned   int `json:"orphaned"`
	Invalid    int `json:"invalid"`
	Skipped    int `json:"skipped"`
}

// RecordIssue 预检发现的单条问题
type RecordIssue struct {
	Entity         string         `json:"entity"`
	SourceID       int64          `json:"sourceId"`
	Classification Classification `json:"classification"`
	Message        string         `json:"message"`
}

// DryRunReport 预检报告，不产生任何写入
//
// Valid 沿用严格口径：存在任何客户错误或警告即为 false。
// Blocking 只在存在硬性缺陷（缺少必填字段）或存在重复但未选择冲突处理方式时为 true；
// 孤儿记录在迁移时按跳过处理并写入错误列表。
type DryRunReport struct {
	Entities map[string]EntityReport `json:"entities"`
	Issues   []RecordIssue           `json:"issues"`
	Notes    []RecordIssue           `json:"notes"`
	Warnings []string                `json:"warnings"`
	Valid    bool                    `json:"valid"`
	Blocking bool                    `json:"blocking"`
}

// Entity 返回某个实体的计数，不存在时返回零值
func (r *DryRunReport) Entity(name string) EntityReport {
	if r == nil || r.Entities == nil {
		return EntityReport{}
	}
	return r.Entities[name]
}
