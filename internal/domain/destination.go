package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// 目标库实体。每一行都携带 (tenant_id, migration_id, source_id) 标签：
// 重复执行同一任务时按该三元组更新，回滚时按 migration_id 删除。
// 新增实体类型必须同样携带这三个字段，否则回滚无法覆盖。

// Customer 目标库客户
type Customer struct {
	ID           string          `json:"id" gorm:"primaryKey;type:varchar(36)"`
	TenantID     string          `json:"tenantId" gorm:"type:varchar(64);uniqueIndex:idx_customer_source,priority:1;index:idx_customer_pmb,priority:1"`
	MigrationID  string          `json:"migrationId" gorm:"type:varchar(36);uniqueIndex:idx_customer_source,priority:2;index"`
	SourceID     int64           `json:"sourceId" gorm:"uniqueIndex:idx_customer_source,priority:3"`
	FirstName    string          `json:"firstName" gorm:"type:varchar(100)"`
	LastName     string          `json:"lastName" gorm:"type:varchar(100)"`
	BusinessName string          `json:"businessName,omitempty" gorm:"type:varchar(200)"`
	Email        string          `json:"email,omitempty" gorm:"type:varchar(255)"`
	Phone        string          `json:"phone,omitempty" gorm:"type:varchar(50)"`
	PMB          string          `json:"pmbNumber" gorm:"column:pmb;type:varchar(50);index:idx_customer_pmb,priority:2"`
	Status       CustomerStatus  `json:"status" gorm:"type:varchar(20)"`
	OpenedAt     *time.Time      `json:"dateOpened,omitempty"`
	RenewalAt    *time.Time      `json:"renewalDate,omitempty"`
	MonthlyRate  decimal.Decimal `json:"monthlyRate" gorm:"type:decimal(10,2)"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}

// Address 目标库收件地址
type Address struct {
	ID          string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	TenantID    string    `json:"tenantId" gorm:"type:varchar(64);uniqueIndex:idx_address_source,priority:1"`
	MigrationID string    `json:"migrationId" gorm:"type:varchar(36);uniqueIndex:idx_address_source,priority:2;index"`
	SourceID    int64     `json:"sourceId" gorm:"uniqueIndex:idx_address_source,priority:3"`
	CustomerID  string    `json:"customerId" gorm:"type:varchar(36);index"`
	Name        string    `json:"name" gorm:"type:varchar(200)"`
	Company     string    `json:"company,omitempty" gorm:"type:varchar(200)"`
	Line1       string    `json:"line1" gorm:"type:varchar(255)"`
	Line2       string    `json:"line2,omitempty" gorm:"type:varchar(255)"`
	Line3       string    `json:"line3,omitempty" gorm:"type:varchar(255)"`
	City        string    `json:"city,omitempty" gorm:"type:varchar(100)"`
	State       string    `json:"state,omitempty" gorm:"type:varchar(50)"`
	PostalCode  string    `json:"postalCode,omitempty" gorm:"type:varchar(20)"`
	Country     string    `json:"country,omitempty" gorm:"type:varchar(100)"`
	Email       string    `json:"email,omitempty" gorm:"type:varchar(255)"`
	Phone       string    `json:"phone,omitempty" gorm:"type:varchar(50)"`
	Commercial  bool      `json:"commercial"`
	Formatted   string    `json:"formatted" gorm:"type:text"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Package 目标库包裹
type Package struct {
	ID              string          `json:"id" gorm:"primaryKey;type:varchar(36)"`
	TenantID        string          `json:"tenantId" gorm:"type:varchar(64);uniqueIndex:idx_package_source,priority:1"`
	MigrationID     string          `json:"migrationId" gorm:"type:varchar(36);uniqueIndex:idx_package_source,priority:2;index"`
	SourceID        int64           `json:"sourceId" gorm:"uniqueIndex:idx_package_source,priority:3"`
	CustomerID      string          `json:"customerId" gorm:"type:varchar(36);index"`
	TrackingNumber  string          `json:"trackingNumber,omitempty" gorm:"type:varchar(100);index"`
	Carrier         string          `json:"carrier" gorm:"type:varchar(50)"`
	Sender          string          `json:"senderName,omitempty" gorm:"type:varchar(200)"`
	PackageType     string          `json:"packageType" gorm:"type:varchar(20)"`
	Status          string          `json:"status" gorm:"type:varchar(20)"`
	CheckedInAt     time.Time       `json:"checkedInAt"`
	TimestampSource TimestampSource `json:"timestampSource" gorm:"type:varchar(20)"`
	ReleasedAt      *time.Time      `json:"releasedAt,omitempty"`
	Notes           string          `json:"notes,omitempty" gorm:"type:text"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

// Shipment 目标库寄件记录
type Shipment struct {
	ID             string          `json:"id" gorm:"primaryKey;type:varchar(36)"`
	TenantID       string          `json:"tenantId" gorm:"type:varchar(64);uniqueIndex:idx_shipment_source,priority:1"`
	MigrationID    string          `json:"migrationId" gorm:"type:varchar(36);uniqueIndex:idx_shipment_source,priority:2;index"`
	SourceID       int64           `json:"sourceId" gorm:"uniqueIndex:idx_shipment_source,priority:3"`
	CustomerID     string          `json:"customerId" gorm:"type:varchar(36);index"`
	TrackingNumber string          `json:"trackingNumber,omitempty" gorm:"type:varchar(100)"`
	Carrier        string          `json:"carrier" gorm:"type:varchar(50)"`
	Service        string          `json:"service,omitempty" gorm:"type:varchar(100)"`
	Destination    string          `json:"destination" gorm:"type:text"`
	Weight         float64         `json:"weight"`
	Dimensions     string          `json:"dimensions,omitempty" gorm:"type:varchar(50)"`
	Retail         decimal.Decimal `json:"retail" gorm:"type:decimal(10,2)"`
	Wholesale      decimal.Decimal `json:"wholesale" gorm:"type:decimal(10,2)"`
	Insurance      decimal.Decimal `json:"insurance" gorm:"type:decimal(10,2)"`
	PackingCost    decimal.Decimal `json:"packingCost" gorm:"type:decimal(10,2)"`
	Status         string          `json:"status" gorm:"type:varchar(20)"`
	ShippedAt      *time.Time      `json:"shippedAt,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

// Invoice 目标库账单
type Invoice struct {
	ID          string          `json:"id" gorm:"primaryKey;type:varchar(36)"`
	TenantID    string          `json:"tenantId" gorm:"type:varchar(64);uniqueIndex:idx_invoice_source,priority:1"`
	MigrationID string          `json:"migrationId" gorm:"type:varchar(36);uniqueIndex:idx_invoice_source,priority:2;index"`
	SourceID    int64           `json:"sourceId" gorm:"uniqueIndex:idx_invoice_source,priority:3"`
	CustomerID  string          `json:"customerId" gorm:"type:varchar(36);index"`
	Number      string          `json:"invoiceNumber" gorm:"type:varchar(50)"`
	Type        string          `json:"type" gorm:"type:varchar(20)"`
	Amount      decimal.Decimal `json:"amount" gorm:"type:decimal(10,2)"`
	Status      InvoiceStatus   `json:"status" gorm:"type:varchar(20)"`
	IssuedAt    *time.Time      `json:"issuedAt,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// CustomerRef 目标库已有客户的标识信息，用于重复检测与关联解析
type CustomerRef struct {
	ID          string
	PMB         string
	SourceID    int64
	MigrationID string
}

// MigrationRun 迁移任务的持久化记录，进度账本之外的审计留痕
type MigrationRun struct {
	ID          string          `json:"id" gorm:"primaryKey;type:varchar(36)"`
	TenantID    string          `json:"tenantId" gorm:"type:varchar(64);index"`
	SourceFile  string          `json:"sourceFile" gorm:"type:varchar(255)"`
	// WriteTag 写入目标库行的 migration_id；续跑任务沿用被续跑任务的标签
	WriteTag    string          `json:"writeTag" gorm:"type:varchar(36);index"`
	ResumedFrom string          `json:"resumedFrom,omitempty" gorm:"type:varchar(36)"`
	Status      MigrationStatus `json:"status" gorm:"type:varchar(20)"`
	Outcome     string          `json:"outcome" gorm:"type:varchar(30)"`
	Migrated    int             `json:"migrated"`
	Skipped     int             `json:"skipped"`
	Errors      int             `json:"errors"`
	StartedAt   time.Time       `json:"startedAt"`
	CompletedAt *time.Time      `json:"completedAt,omitempty"`
}

// Row 目标库实体的公共访问方法，供存储层按迁移标签统一读写
type Row interface {
	GetID() string
	SetID(id string)
	Tag() (tenantID, migrationID string, sourceID int64)
}

func (c *Customer) GetID() string   { return c.ID }
func (c *Customer) SetID(id string) { c.ID = id }
func (c *Customer) Tag() (string, string, int64) {
	return c.TenantID, c.MigrationID, c.SourceID
}

func (a *Address) GetID() string   { return a.ID }
func (a *Address) SetID(id string) { a.ID = id }
func (a *Address) Tag() (string, string, int64) {
	return a.TenantID, a.MigrationID, a.SourceID
}

func (p *Package) GetID() string   { return p.ID }
func (p *Package) SetID(id string) { p.ID = id }
func (p *Package) Tag() (string, string, int64) {
	return p.TenantID, p.MigrationID, p.SourceID
}

func (s *Shipment) GetID() string   { return s.ID }
func (s *Shipment) SetID(id string) { s.ID = id }
func (s *Shipment) Tag() (string, string, int64) {
	return s.TenantID, s.MigrationID, s.SourceID
}

func (i *Invoice) GetID() string   { return i.ID }
func (i *Invoice) SetID(id string) { i.ID = id }
func (i *Invoice) Tag() (string, string, int64) {
	return i.TenantID, i.MigrationID, i.SourceID
}

// FillEmpty 用 from 补全 c 中为空的字段，返回是否有改动
//
// 用于 merge 冲突处理：已有客户的非空字段保持不变。
func (c *Customer) FillEmpty(from Customer) bool {
	changed := false
	fill := func(dst *string, src string) {
		if *dst == "" && src != "" {
			*dst = src
			changed = true
		}
	}
	fill(&c.FirstName, from.FirstName)
	fill(&c.LastName, from.LastName)
	fill(&c.BusinessName, from.BusinessName)
	fill(&c.Email, from.Email)
	fill(&c.Phone, from.Phone)

	if c.OpenedAt == nil && from.OpenedAt != nil {
		t := *from.OpenedAt
		c.OpenedAt = &t
		changed = true
	}
	if c.RenewalAt == nil && from.RenewalAt != nil {
		t := *from.RenewalAt
		c.RenewalAt = &t
		changed = true
	}
	if c.MonthlyRate.IsZero() && !from.MonthlyRate.IsZero() {
		c.MonthlyRate = from.MonthlyRate
		changed = true
	}
	return changed
}
