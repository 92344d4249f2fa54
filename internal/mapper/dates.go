package mapper

import (
	"strings"
	"time"
)

// dateFloorYear 早于该年份的日期视为旧系统的"未设置"哨兵值
const dateFloorYear = 1970

// dateLayouts 旧系统导出中出现过的日期格式，按常见程度排列。
// 解析时秒后面的小数部分即使布局中没有也会被接受。
var dateLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	time.RFC3339Nano,
	"2006-01-02 15:04",
	"2006-01-02",
	"01/02/2006 15:04:05",
	"01/02/2006 03:04:05 PM",
	"1/2/2006 15:04:05",
	"1/2/2006 3:04:05 PM",
	"1/2/2006 3:04 PM",
	"01/02/2006",
	"1/2/2006",
	"02-Jan-2006",
	"02-Jan-2006 15:04:05",
	"2006.01.02",
	"2006.01.02 15:04:05",
}

// NormalizeDate 所有日期字段的唯一入口
//
// 无法解析的文本和早于 1970 年的哨兵日期一律返回 nil，绝不替换为当前时间或任意默认日期。
func NormalizeDate(raw string) *time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	for _, layout := range dateLayouts {
		t, err := time.Parse(layout, raw)
		if err != nil {
			continue
		}
		if t.Year() < dateFloorYear {
			return nil
		}
		t = t.UTC()
		return &t
	}
	return nil
}
