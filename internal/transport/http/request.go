package httptransport

import (
	"errors"
	"unicode/utf8"

	"legacymigrate/backend/internal/domain"
	"legacymigrate/backend/internal/service"
)

var errInvalidDelimiter = errors.New("invalid delimiter")

// exportRequest 请求体中的导出内容
type exportRequest struct {
	SourceFile      string                       `json:"sourceFile"`
	DatabaseVersion string                       `json:"databaseVersion"`
	Tables          map[string]string            `json:"tables" binding:"required"`
	FieldMappings   map[string]map[string]string `json:"fieldMappings"`
	// Delimiter 留空为逗号，"tab" 或 "\t" 为制表符
	Delimiter string `json:"delimiter"`
}

func (r exportRequest) toExport() (service.Export, error) {
	e := service.Export{
		SourceFile:      r.SourceFile,
		DatabaseVersion: r.DatabaseVersion,
		Tables:          r.Tables,
		FieldMappings:   r.FieldMappings,
	}
	switch r.Delimiter {
	case "":
	case "tab", "\t":
		e.Delimiter = '\t'
	default:
		d, size := utf8.DecodeRuneInString(r.Delimiter)
		if d == utf8.RuneError || size != len(r.Delimiter) || d == '"' || d == '\n' || d == '\r' {
			return e, errInvalidDelimiter
		}
		e.Delimiter = d
	}
	return e, nil
}

// dryRunRequest POST /tenants/:tenantId/migrations/dry-run
type dryRunRequest struct {
	exportRequest
	ConflictResolution domain.ConflictMode `json:"conflictResolution"`
}

// startRequest POST /tenants/:tenantId/migrations
type startRequest struct {
	exportRequest
	// Options 缺省时包含全部实体，冲突时跳过
	Options    *domain.MigrationOptions `json:"options"`
	ResumeFrom string                   `json:"resumeFrom"`
}

// startResponse 202 响应体
type startResponse struct {
	MigrationID string                    `json:"migrationId"`
	Progress    *domain.MigrationProgress `json:"progress"`
}
