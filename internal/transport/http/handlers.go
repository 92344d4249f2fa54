package httptransport

import (
	"bytes"
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"legacymigrate/backend/internal/domain"
	"legacymigrate/backend/internal/report"
	"legacymigrate/backend/internal/service"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// MigrationAPI 迁移编排器对 HTTP 层暴露的操作
type MigrationAPI interface {
	Analyze(ctx context.Context, e service.Export) (*domain.MigrationAnalysis, error)
	DryRun(ctx context.Context, tenantID string, e service.Export, mode domain.ConflictMode) (*domain.DryRunReport, error)
	Start(ctx context.Context, in service.StartInput) (*domain.MigrationProgress, error)
	Progress(ctx context.Context, migrationID string) (*domain.MigrationProgress, error)
	History(ctx context.Context, tenantID string) ([]domain.MigrationRun, error)
	Cancel(ctx context.Context, migrationID string) (*domain.MigrationProgress, error)
	Rollback(ctx context.Context, migrationID string) (*service.RollbackResult, error)
}

// Handler 聚合迁移相关的 HTTP 处理逻辑
type Handler struct {
	migrations MigrationAPI
	logger     *zap.Logger
}

// NewHandler 创建处理器
func NewHandler(migrations MigrationAPI, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{migrations: migrations, logger: logger}
}

// fail 输出业务错误；未识别的错误按 500 处理并记录日志
func (h *Handler) fail(c *gin.Context, err error) {
	status, msg, known := resolveError(err)
	if !known {
		h.logger.Error("request failed",
			zap.String("path", c.FullPath()),
			zap.Error(err))
	}
	Error(c, status, msg)
}

// bindExport 读取请求体并转换为导出；失败时已写入 400
func bindExport(c *gin.Context, req any, body *exportRequest) (service.Export, bool) {
	if err := c.ShouldBindJSON(req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return service.Export{}, false
	}
	e, err := body.toExport()
	if err != nil {
		BadRequest(c, MsgInvalidDelimiter)
		return service.Export{}, false
	}
	return e, true
}

// analyze POST /api/v1/tenants/:tenantId/migrations/analyze
func (h *Handler) analyze(c *gin.Context) {
	var req exportRequest
	e, ok := bindExport(c, &req, &req)
	if !ok {
		return
	}

	analysis, err := h.migrations.Analyze(c.Request.Context(), e)
	if err != nil {
		h.fail(c, err)
		return
	}
	Success(c, analysis)
}

// dryRun POST /api/v1/tenants/:tenantId/migrations/dry-run
func (h *Handler) dryRun(c *gin.Context) {
	var req dryRunRequest
	e, ok := bindExport(c, &req, &req.exportRequest)
	if !ok {
		return
	}

	dr, err := h.migrations.DryRun(c.Request.Context(), c.Param("tenantId"), e, req.ConflictResolution)
	if err != nil {
		h.fail(c, err)
		return
	}
	Success(c, dr)
}

// startMigration POST /api/v1/tenants/:tenantId/migrations
func (h *Handler) startMigration(c *gin.Context) {
	var req startRequest
	e, ok := bindExport(c, &req, &req.exportRequest)
	if !ok {
		return
	}

	opts := domain.DefaultMigrationOptions()
	if req.Options != nil {
		opts = *req.Options
	}

	progress, err := h.migrations.Start(c.Request.Context(), service.StartInput{
		TenantID:   c.Param("tenantId"),
		Export:     e,
		Options:    opts,
		ResumeFrom: req.ResumeFrom,
	})
	if err != nil {
		h.fail(c, err)
		return
	}

	c.Header("Location", "/api/v1/migrations/"+progress.MigrationID)
	Accepted(c, startResponse{MigrationID: progress.MigrationID, Progress: progress})
}

// listMigrations GET /api/v1/tenants/:tenantId/migrations
func (h *Handler) listMigrations(c *gin.Context) {
	runs, err := h.migrations.History(c.Request.Context(), c.Param("tenantId"))
	if err != nil {
		h.fail(c, err)
		return
	}
	if runs == nil {
		runs = []domain.MigrationRun{}
	}
	Success(c, runs)
}

// getProgress GET /api/v1/migrations/:id
func (h *Handler) getProgress(c *gin.Context) {
	progress, err := h.migrations.Progress(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	Success(c, progress)
}

// cancelMigration POST /api/v1/migrations/:id/cancel
func (h *Handler) cancelMigration(c *gin.Context) {
	progress, err := h.migrations.Cancel(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	SuccessWithMsg(c, "已请求取消", progress)
}

// rollbackMigration POST /api/v1/migrations/:id/rollback
func (h *Handler) rollbackMigration(c *gin.Context) {
	result, err := h.migrations.Rollback(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	SuccessWithMsg(c, "回滚完成", result)
}

// downloadErrors GET /api/v1/migrations/:id/errors.xlsx
func (h *Handler) downloadErrors(c *gin.Context) {
	progress, err := h.migrations.Progress(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}

	var buf bytes.Buffer
	if err := report.WriteErrors(&buf, progress); err != nil {
		h.logger.Error("failed to render error report",
			zap.String("migration_id", progress.MigrationID),
			zap.Error(err))
		InternalError(c, MsgReportFailed)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, report.FileName(progress)))
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}
