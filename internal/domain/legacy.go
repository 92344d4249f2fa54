package domain

import "github.com/shopspring/decimal"

// 旧系统导出表的行结构。字段通过 legacy 标签与导出列名对应，
// 缺失或为空的列解码为零值；日期保持原始文本，由映射层统一归一化。

// LegacyCustomer CUSTOMER 表
type LegacyCustomer struct {
	CustomerID  int64  `legacy:"CUSTOMERID"`
	FirstName   string `legacy:"FIRSTNAME"`
	LastName    string `legacy:"LASTNAME"`
	CompanyName string `legacy:"COMPANYNAME"`
	Phone       string `legacy:"VOICEPHONENO"`
	Fax         string `legacy:"FAXPHONENO"`
	Email       string `legacy:"EMAIL"`
	AddDate     string `legacy:"ADDDATE"`
	Deleted     bool   `legacy:"DELETED"`
	Source      string `legacy:"SOURCE"`
	UserDef1    string `legacy:"USERDEF1"`
}

// LegacyMailbox MBDETAIL 表
//
// Status 为空表示导出中没有状态码，与状态码 0 (available) 区分。
type LegacyMailbox struct {
	MBDetailID    int64           `legacy:"MBDETAILID"`
	MailboxNumber int64           `legacy:"MAILBOXNUMBER"`
	CustomerRef   int64           `legacy:"CUSTOMERREF"`
	Status        *int            `legacy:"STATUS"`
	OpenDate      string          `legacy:"OPENDATE"`
	NextDueDate   string          `legacy:"NEXTDUEDATE"`
	MonthlyRate   decimal.Decimal `legacy:"PERMONTHRATE"`
	MonthTerm     int             `legacy:"MONTHTERM"`
}

// LegacyPackageReceipt PACKAGES / PKGRECVXN 表
type LegacyPackageReceipt struct {
	PkgRecvID      int64  `legacy:"PKGRECVXNID"`
	CarrierRef     int64  `legacy:"CARRIERREF"`
	CarrierName    string `legacy:"CARRIERNAME"`
	TrackingNumber string `legacy:"TRACKINGNUMBER"`
	ReceivedAt     string `legacy:"DTG"`
	CompletedAt    string `legacy:"DTGCOMPLETE"`
	Status         int    `legacy:"STATUS"`
	PkgType        int    `legacy:"PKGTYPE"`
	CustomerRef    int64  `legacy:"CUSTOMERREF"`
	Sender         string `legacy:"SENDER"`
	Notes          string `legacy:"NOTES"`
}

// LegacyShipment BILLING / SHIPMENTXN 表
type LegacyShipment struct {
	ShipmentID      int64           `legacy:"SHIPMENTXNID"`
	CustomerRef     int64           `legacy:"CUSTOMERREF"`
	CarrierRef      int64           `legacy:"CARRIERREF"`
	CarrierName     string          `legacy:"CARRIERNAME"`
	ShipToFirstName string          `legacy:"SHIPTOFIRSTNAME"`
	ShipToLastName  string          `legacy:"SHIPTOLASTNAME"`
	ShipToCompany   string          `legacy:"SHIPTOCOMPANYNAME"`
	ShipToAddress1  string          `legacy:"SHIPTOADDRESS1"`
	ShipToAddress2  string          `legacy:"SHIPTOADDRESS2"`
	ShipToAddress3  string          `legacy:"SHIPTOADDRESS3"`
	ShipToCity      string          `legacy:"SHIPTOCITY"`
	ShipToState     string          `legacy:"SHIPTOSTATE"`
	ShipToZip       string          `legacy:"SHIPTOZIP"`
	ShipToCountry   string          `legacy:"SHIPTOCOUNTRY"`
	ActualWeight    float64         `legacy:"ACTUALWEIGHT"`
	Retail          decimal.Decimal `legacy:"SHIPMENTRETAIL"`
	Wholesale       decimal.Decimal `legacy:"SHIPMENTWHOLESALE"`
	TransactionAt   string          `legacy:"TRANSACTIONDTG"`
	Voided          bool            `legacy:"VOIDED"`
	TrackingNumber  string          `legacy:"TRACKINGNUMBER"`
	Dimensions      string          `legacy:"DIMENSIONS"`
	Length          float64         `legacy:"LENGTH"`
	Width           float64         `legacy:"WIDTH"`
	Height          float64         `legacy:"HEIGHT"`
	InsuranceValue  decimal.Decimal `legacy:"INSURANCEVALUE"`
	PackingCost     decimal.Decimal `legacy:"PACKINGCOST"`
	Service         string          `legacy:"SERVICE"`
}

// LegacyShipTo SHIPTO 表（客户常用收件地址）
type LegacyShipTo struct {
	ShipToID     int64  `legacy:"SHIPTOID"`
	FirstName    string `legacy:"FIRSTNAME"`
	LastName     string `legacy:"LASTNAME"`
	CompanyName  string `legacy:"COMPANYNAME"`
	Contact      string `legacy:"CONTACT"`
	Address1     string `legacy:"ADDRESS1"`
	Address2     string `legacy:"ADDRESS2"`
	Address3     string `legacy:"ADDRESS3"`
	City         string `legacy:"CITY"`
	State        string `legacy:"STATE"`
	ZipCode      string `legacy:"ZIPCODE"`
	ZipPlus      string `legacy:"ZIPPLUS"`
	CountryName  string `legacy:"COUNTRYNAME"`
	Email        string `legacy:"EMAIL"`
	Phone        string `legacy:"VOICEPHONENO"`
	IsCommercial bool   `legacy:"ISCOMMERCIAL"`
	LastCustRef  int64  `legacy:"LASTCUSTREF"`
	Deleted      bool   `legacy:"DELETED"`
}

// LegacyCarrier CARRIER 表
type LegacyCarrier struct {
	CarrierID   int64  `legacy:"CARRIERID"`
	CarrierName string `legacy:"CARRIERNAME"`
	Status      int    `legacy:"STATUS"`
}

// LegacyDepartment DEPARTMENT 表
type LegacyDepartment struct {
	DepartmentID   int64  `legacy:"DEPARTMENTID"`
	DepartmentName string `legacy:"DEPARTMENTNAME"`
}
