package domain

import "time"

// DateRange 导出数据中出现的最早与最晚日期
type DateRange struct {
	Min *time.Time `json:"min"`
	Max *time.Time `json:"max"`
}

// Include 将一个日期纳入范围，nil 忽略
func (r *DateRange) Include(t *time.Time) {
	if t == nil {
		return
	}
	if r.Min == nil || t.Before(*r.Min) {
		v := *t
		r.Min = &v
	}
	if r.Max == nil || t.After(*r.Max) {
		v := *t
		r.Max = &v
	}
}

// AnalysisCounts 各类记录数量
type AnalysisCounts struct {
	Customers       int `json:"customers"`
	ShipToAddresses int `json:"shipToAddresses"`
	Shipments       int `json:"shipments"`
	Packages        int `json:"packages"`
	PackageCheckins int `json:"packageCheckins"`
	Products        int `json:"products"`
	Transactions    int `json:"transactions"`
	LineItems       int `json:"lineItems"`
	Payments        int `json:"payments"`
	Mailboxes       int `json:"mailboxes"`
	Carriers        int `json:"carriers"`
	Departments     int `json:"departments"`
}

// CarrierRef 导出中出现的承运商
type CarrierRef struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Code   string `json:"code"`
	Status string `json:"status,omitempty"`
}

// DepartmentRef 导出中出现的部门
type DepartmentRef struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// TableIssue 解析某张表时产生的行级错误
type TableIssue struct {
	Table   string `json:"table"`
	Line    int    `json:"line"`
	Message string `json:"message"`
}

// MigrationAnalysis 迁移前展示给操作人员的概览
type MigrationAnalysis struct {
	SourceFile      string          `json:"sourceFile"`
	DatabaseVersion string          `json:"databaseVersion"`
	DateRange       DateRange       `json:"dateRange"`
	Counts          AnalysisCounts  `json:"counts"`
	Carriers        []CarrierRef    `json:"carriers"`
	Departments     []DepartmentRef `json:"departments"`
	Tables          []string        `json:"tables"`
	ParseErrors     []TableIssue    `json:"parseErrors"`
}
