package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"legacymigrate/backend/internal/domain"
)

// ReportCache 预检报告的本地缓存
//
// 同一租户对同一份导出、同一冲突处理方式重复预检时直接返回上次的报告。
// 目标库数据发生变化（迁移完成或回滚）后需要调用 InvalidateTenant。
type ReportCache struct {
	items *gocache.Cache
}

// NewReportCache 创建报告缓存，cleanup 为 0 时不启动后台清理
func NewReportCache(ttl, cleanup time.Duration) *ReportCache {
	return &ReportCache{items: gocache.New(ttl, cleanup)}
}

// Fingerprint 计算导出内容与冲突处理方式的摘要，extra 为其他影响解析结果的参数
func Fingerprint(tables map[string]string, mode domain.ConflictMode, extra ...string) string {
	upper := make(map[string]string, len(tables))
	names := make([]string, 0, len(tables))
	for name := range tables {
		u := strings.ToUpper(name)
		upper[u] = name
		names = append(names, u)
	}
	sort.Strings(names)

	h := sha256.New()
	h.Write([]byte(mode))
	for _, e := range extra {
		h.Write([]byte{0})
		h.Write([]byte(e))
	}
	for _, name := range names {
		h.Write([]byte{0})
		h.Write([]byte(name))
		h.Write([]byte{0})
		h.Write([]byte(tables[upper[name]]))
	}
	return hex.EncodeToString(h.Sum(nil))
}

func reportKey(tenantID, fingerprint string) string {
	return tenantID + "/" + fingerprint
}

// Get 获取缓存的报告
func (c *ReportCache) Get(tenantID, fingerprint string) (*domain.DryRunReport, bool) {
	v, ok := c.items.Get(reportKey(tenantID, fingerprint))
	if !ok {
		return nil, false
	}
	report, ok := v.(*domain.DryRunReport)
	return report, ok
}

// Set 缓存报告，使用默认过期时间
func (c *ReportCache) Set(tenantID, fingerprint string, report *domain.DryRunReport) {
	c.items.SetDefault(reportKey(tenantID, fingerprint), report)
}

// InvalidateTenant 删除租户的全部缓存报告
func (c *ReportCache) InvalidateTenant(tenantID string) {
	prefix := tenantID + "/"
	for key := range c.items.Items() {
		if strings.HasPrefix(key, prefix) {
			c.items.Delete(key)
		}
	}
}

// Len 当前缓存条目数
func (c *ReportCache) Len() int {
	return c.items.ItemCount()
}
