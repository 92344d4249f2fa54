package httptransport

import (
	"errors"
	"net/http"

	"legacymigrate/backend/internal/dryrun"
	"legacymigrate/backend/internal/service"
)

// errorMapping 业务错误 -> HTTP 状态码与中文提示
type errorMapping struct {
	err    error
	status int
	msg    string
}

// 按顺序匹配，errors.Is 命中第一个即返回
var errorMappings = []errorMapping{
	{service.ErrMigrationNotFound, http.StatusNotFound, "迁移任务不存在"},
	{service.ErrMigrationInProgress, http.StatusConflict, "该租户已有迁移任务在执行"},
	{service.ErrValidationBlocked, http.StatusUnprocessableEntity, "预检存在阻断性缺陷"},
	{service.ErrNotRollbackable, http.StatusConflict, "只有已完成的迁移可以回滚"},
	{service.ErrNotCancellable, http.StatusConflict, "迁移任务未在执行"},
	{service.ErrNotResumable, http.StatusConflict, "只能续跑同一租户下失败的迁移任务"},
	{service.ErrEmptyExport, http.StatusBadRequest, "导出中没有可识别的表"},
	{service.ErrTenantRequired, http.StatusBadRequest, "缺少租户 ID"},
	{dryrun.ErrInvalidOptions, http.StatusBadRequest, "迁移选项无效"},
	{service.ErrServiceShuttingDown, http.StatusServiceUnavailable, "服务正在停止，请稍后重试"},
}

// 通用错误消息
const (
	MsgInvalidRequest   = "请求参数格式错误"
	MsgInvalidDelimiter = "分隔符必须是单个字符或 tab"
	MsgInternalError    = "服务器内部错误"
	MsgReportFailed     = "生成错误报表失败"
)

// resolveError 返回错误对应的状态码和提示；包装过的错误附带原始说明
func resolveError(err error) (int, string, bool) {
	for _, m := range errorMappings {
		if errors.Is(err, m.err) {
			if err == m.err {
				return m.status, m.msg, true
			}
			return m.status, m.msg + "：" + err.Error(), true
		}
	}
	return http.StatusInternalServerError, MsgInternalError, false
}
