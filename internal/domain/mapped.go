package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// 实体名称，同时作为进度账本与配置中的键
const (
	EntityCustomers = "customers"
	EntityAddresses = "addresses"
	EntityPackages  = "packages"
	EntityShipments = "shipments"
	EntityInvoices  = "invoices"
	EntityProducts  = "products"
)

// EntityOrder 按依赖顺序排列的实体：后面的实体通过来源 ID 引用客户
var EntityOrder = []string{
	EntityCustomers,
	EntityAddresses,
	EntityPackages,
	EntityShipments,
	EntityInvoices,
	EntityProducts,
}

// Sourced 所有映射记录都带有来源 ID
type Sourced interface {
	SourceKey() int64
}

// CustomerStatus 客户状态
type CustomerStatus string

const (
	CustomerActive CustomerStatus = "active"
	CustomerClosed CustomerStatus = "closed"
)

// InvoiceStatus 账单状态
type InvoiceStatus string

const (
	InvoicePaid InvoiceStatus = "paid"
	InvoiceVoid InvoiceStatus = "void"
)

// TimestampSource 标记时间戳来自导出数据还是导入时的兜底值
type TimestampSource string

const (
	TimestampFromSource TimestampSource = "source"
	TimestampDefaulted  TimestampSource = "defaulted"
)

// MappedCustomer 目标系统形态的客户
type MappedCustomer struct {
	SourceID     int64           `json:"sourceId"`
	FirstName    string          `json:"firstName" validate:"required"`
	LastName     string          `json:"lastName" validate:"required"`
	BusinessName string          `json:"businessName,omitempty"`
	Email        string          `json:"email,omitempty"`
	Phone        string          `json:"phone,omitempty"`
	PMB          string          `json:"pmbNumber" validate:"required"`
	Status       CustomerStatus  `json:"status"`
	OpenedAt     *time.Time      `json:"dateOpened,omitempty"`
	RenewalAt    *time.Time      `json:"renewalDate,omitempty"`
	MonthlyRate  decimal.Decimal `json:"monthlyRate"`
	HasMailbox   bool            `json:"hasMailbox"`
	Deleted      bool            `json:"deleted"`
	// DroppedEmail 未通过格式校验而没有写入的原始邮箱
	DroppedEmail string `json:"droppedEmail,omitempty"`
}

func (c MappedCustomer) SourceKey() int64 { return c.SourceID }

// MappedAddress 客户的常用收件地址
type MappedAddress struct {
	SourceID         int64  `json:"sourceId"`
	CustomerSourceID int64  `json:"customerSourceId"`
	Name             string `json:"name"`
	Company          string `json:"company,omitempty"`
	Contact          string `json:"contact,omitempty"`
	Line1            string `json:"line1"`
	Line2            string `json:"line2,omitempty"`
	Line3            string `json:"line3,omitempty"`
	City             string `json:"city,omitempty"`
	State            string `json:"state,omitempty"`
	PostalCode       string `json:"postalCode,omitempty"`
	Country          string `json:"country,omitempty"`
	Email            string `json:"email,omitempty"`
	Phone            string `json:"phone,omitempty"`
	Commercial       bool   `json:"commercial"`
	Formatted        string `json:"formatted"`
	Deleted          bool   `json:"deleted"`
}

func (a MappedAddress) SourceKey() int64 { return a.SourceID }

// MappedPackage 代收包裹
type MappedPackage struct {
	SourceID         int64           `json:"sourceId"`
	CustomerSourceID int64           `json:"customerSourceId"`
	TrackingNumber   string          `json:"trackingNumber,omitempty"`
	Carrier          string          `json:"carrier"`
	Sender           string          `json:"senderName,omitempty"`
	PackageType      string          `json:"packageType"`
	Status           string          `json:"status"`
	CheckedInAt      time.Time       `json:"checkedInAt"`
	CheckedInSource  TimestampSource `json:"timestampSource"`
	ReleasedAt       *time.Time      `json:"releasedAt,omitempty"`
	Notes            string          `json:"notes,omitempty"`
}

func (p MappedPackage) SourceKey() int64 { return p.SourceID }

// MappedShipment 寄件记录
type MappedShipment struct {
	SourceID         int64           `json:"sourceId"`
	CustomerSourceID int64           `json:"customerSourceId"`
	TrackingNumber   string          `json:"trackingNumber,omitempty"`
	Carrier          string          `json:"carrier"`
	Service          string          `json:"service,omitempty"`
	Destination      string          `json:"destination"`
	Weight           float64         `json:"weight"`
	Dimensions       string          `json:"dimensions,omitempty"`
	Retail           decimal.Decimal `json:"retail"`
	Wholesale        decimal.Decimal `json:"wholesale"`
	Insurance        decimal.Decimal `json:"insurance"`
	PackingCost      decimal.Decimal `json:"packingCost"`
	Status           string          `json:"status"`
	ShippedAt        *time.Time      `json:"shippedAt,omitempty"`
}

func (s MappedShipment) SourceKey() int64 { return s.SourceID }

// MappedInvoice 账单
type MappedInvoice struct {
	SourceID         int64           `json:"sourceId"`
	CustomerSourceID int64           `json:"customerSourceId"`
	Number           string          `json:"invoiceNumber"`
	Type             string          `json:"type"`
	Amount           decimal.Decimal `json:"amount"`
	Status           InvoiceStatus   `json:"status"`
	IssuedAt         *time.Time      `json:"issuedAt,omitempty"`
}

func (i MappedInvoice) SourceKey() int64 { return i.SourceID }
