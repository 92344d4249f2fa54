package mapper

import (
	"strconv"
	"strings"
)

// Destination 地址块的组成部分
type Destination struct {
	FirstName string
	LastName  string
	Company   string
	Address1  string
	Address2  string
	Address3  string
	City      string
	State     string
	Zip       string
	Country   string
}

var domesticCountries = map[string]bool{
	"US":                       true,
	"USA":                      true,
	"UNITED STATES":            true,
	"UNITED STATES OF AMERICA": true,
}

// FormatDestination 拼接多行地址块
//
// 依次为姓名、公司、地址行、"city, state zip"，空段省略；国家只在非美国时追加一行。
func FormatDestination(d Destination) string {
	var lines []string
	add := func(s string) {
		if s = strings.TrimSpace(s); s != "" {
			lines = append(lines, s)
		}
	}

	add(joinNonEmpty(" ", d.FirstName, d.LastName))
	add(d.Company)
	add(d.Address1)
	add(d.Address2)
	add(d.Address3)
	add(cityStateZip(d.City, d.State, d.Zip))

	country := strings.TrimSpace(d.Country)
	if country != "" && !domesticCountries[strings.ToUpper(country)] {
		lines = append(lines, country)
	}
	return strings.Join(lines, "\n")
}

func cityStateZip(city, state, zip string) string {
	city, state, zip = strings.TrimSpace(city), strings.TrimSpace(state), strings.TrimSpace(zip)

	line := city
	if state != "" {
		if line != "" {
			line += ", "
		}
		line += state
	}
	if zip != "" {
		if line != "" {
			line += " "
		}
		line += zip
	}
	return line
}

// FormatDimensions 长宽高格式化为 LxWxH，全部缺失时返回空串
func FormatDimensions(l, w, h float64) string {
	if l == 0 && w == 0 && h == 0 {
		return ""
	}
	return formatNumber(l) + "x" + formatNumber(w) + "x" + formatNumber(h)
}

// normalizeDimensions 规范化导出中的尺寸文本，如 "10 X 8 x 4" -> "10x8x4"
func normalizeDimensions(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	parts := strings.FieldsFunc(strings.ToLower(raw), func(r rune) bool {
		return r == 'x' || r == '*'
	})
	if len(parts) != 3 {
		return raw
	}
	for i, p := range parts {
		p = strings.TrimSpace(p)
		if _, err := strconv.ParseFloat(p, 64); err != nil {
			return raw
		}
		parts[i] = p
	}
	return strings.Join(parts, "x")
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func joinNonEmpty(sep string, parts ...string) string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, sep)
}
