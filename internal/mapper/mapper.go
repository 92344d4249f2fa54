package mapper

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"legacymigrate/backend/internal/domain"
)

// 映射函数都是纯函数：不做 I/O，不读写共享状态。
// 需要"当前时间"的地方由调用方传入。

// PMBNumber 生成信箱编号
//
// 有信箱记录且编号大于 0 时为四位补零的 PMB-0001，否则用客户来源 ID 生成 WI-<id>，
// 保证每个客户都有稳定且唯一的编号。
func PMBNumber(mailbox *domain.LegacyMailbox, customerID int64) string {
	if mailbox != nil && mailbox.MailboxNumber > 0 {
		return fmt.Sprintf("PMB-%04d", mailbox.MailboxNumber)
	}
	return fmt.Sprintf("WI-%d", customerID)
}

// MailboxStatus 信箱状态码折叠为 active / closed
//
// 没有信箱记录或信箱没有状态码时为 active；未知状态码为 closed。
func MailboxStatus(mailbox *domain.LegacyMailbox) domain.CustomerStatus {
	if mailbox == nil || mailbox.Status == nil {
		return domain.CustomerActive
	}
	if mailboxStatuses[*mailbox.Status] == "active" {
		return domain.CustomerActive
	}
	return domain.CustomerClosed
}

// MapCustomer 客户映射，mailbox 可以为 nil
//
// 姓名缺失时保持为空，由预检判定为无效记录。格式无效的邮箱不写入，原值保留在 DroppedEmail。
func MapCustomer(c domain.LegacyCustomer, mailbox *domain.LegacyMailbox) domain.MappedCustomer {
	email, err := domain.NormalizeEmail(c.Email)
	out := domain.MappedCustomer{
		SourceID:     c.CustomerID,
		FirstName:    strings.TrimSpace(c.FirstName),
		LastName:     strings.TrimSpace(c.LastName),
		BusinessName: strings.TrimSpace(c.CompanyName),
		Email:        email,
		Phone:        domain.NormalizePhone(c.Phone),
		PMB:          PMBNumber(mailbox, c.CustomerID),
		Status:       MailboxStatus(mailbox),
		OpenedAt:     NormalizeDate(c.AddDate),
		HasMailbox:   mailbox != nil,
		Deleted:      c.Deleted,
	}

	if err != nil {
		out.DroppedEmail = strings.TrimSpace(c.Email)
	}

	if mailbox != nil {
		if opened := NormalizeDate(mailbox.OpenDate); opened != nil {
			out.OpenedAt = opened
		}
		out.RenewalAt = NormalizeDate(mailbox.NextDueDate)
		out.MonthlyRate = mailbox.MonthlyRate
	}

	// 旧系统中软删除的客户作为已关闭客户导入
	if c.Deleted {
		out.Status = domain.CustomerClosed
	}
	return out
}

// NormalizeCarrier 承运商名称 -> 代码
//
// 词表外的名称转小写并把空白替换为下划线，去掉除字母数字、下划线、连字符以外的字符，
// 例如 "Bob's Courier" -> "bobs_courier"。名称为空时为 other。
func NormalizeCarrier(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return DefaultCarrier
	}
	if code, ok := carrierCodes[name]; ok {
		return code
	}

	var b strings.Builder
	pendingSep := false
	for _, r := range strings.ToLower(name) {
		switch {
		case r == ' ' || r == '\t':
			pendingSep = b.Len() > 0
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_', r == '-', r > 127:
			if pendingSep {
				b.WriteByte('_')
				pendingSep = false
			}
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return DefaultCarrier
	}
	return b.String()
}

// PackageType 包裹类型码 -> 类型，未知为 medium
func PackageType(code int) string {
	if t, ok := packageTypes[code]; ok {
		return t
	}
	return DefaultPackageType
}

// PackageStatus 包裹状态码 -> 状态，未知为 checked_in
func PackageStatus(code int) string {
	if s, ok := packageStatuses[code]; ok {
		return s
	}
	return DefaultPackageStat
}

// MapPackage 包裹映射
//
// 导出中没有可解析的签收时间时才使用 now，并将 CheckedInSource 标记为 defaulted。
func MapPackage(p domain.LegacyPackageReceipt, now time.Time) domain.MappedPackage {
	out := domain.MappedPackage{
		SourceID:         p.PkgRecvID,
		CustomerSourceID: p.CustomerRef,
		TrackingNumber:   strings.TrimSpace(p.TrackingNumber),
		Carrier:          NormalizeCarrier(p.CarrierName),
		Sender:           strings.TrimSpace(p.Sender),
		PackageType:      PackageType(p.PkgType),
		Status:           PackageStatus(p.Status),
		ReleasedAt:       NormalizeDate(p.CompletedAt),
		Notes:            strings.TrimSpace(p.Notes),
	}

	if received := NormalizeDate(p.ReceivedAt); received != nil {
		out.CheckedInAt = *received
		out.CheckedInSource = domain.TimestampFromSource
	} else {
		out.CheckedInAt = now.UTC()
		out.CheckedInSource = domain.TimestampDefaulted
	}
	return out
}

// InvoiceNumber 由来源 ID 确定性生成账单编号
func InvoiceNumber(sourceID int64) string {
	return "PM-" + strconv.FormatInt(sourceID, 10)
}

// MapInvoice 寄件账单映射：作废记录为 void，其余为 paid
func MapInvoice(s domain.LegacyShipment) domain.MappedInvoice {
	status := domain.InvoicePaid
	if s.Voided {
		status = domain.InvoiceVoid
	}
	return domain.MappedInvoice{
		SourceID:         s.ShipmentID,
		CustomerSourceID: s.CustomerRef,
		Number:           InvoiceNumber(s.ShipmentID),
		Type:             "shipping",
		Amount:           s.Retail,
		Status:           status,
		IssuedAt:         NormalizeDate(s.TransactionAt),
	}
}

// MapShipment 寄件记录映射
func MapShipment(s domain.LegacyShipment) domain.MappedShipment {
	status := "shipped"
	if s.Voided {
		status = "void"
	}

	dims := normalizeDimensions(s.Dimensions)
	if dims == "" {
		dims = FormatDimensions(s.Length, s.Width, s.Height)
	}

	return domain.MappedShipment{
		SourceID:         s.ShipmentID,
		CustomerSourceID: s.CustomerRef,
		TrackingNumber:   strings.TrimSpace(s.TrackingNumber),
		Carrier:          NormalizeCarrier(s.CarrierName),
		Service:          strings.TrimSpace(s.Service),
		Destination: FormatDestination(Destination{
			FirstName: s.ShipToFirstName,
			LastName:  s.ShipToLastName,
			Company:   s.ShipToCompany,
			Address1:  s.ShipToAddress1,
			Address2:  s.ShipToAddress2,
			Address3:  s.ShipToAddress3,
			City:      s.ShipToCity,
			State:     s.ShipToState,
			Zip:       s.ShipToZip,
			Country:   s.ShipToCountry,
		}),
		Weight:      s.ActualWeight,
		Dimensions:  dims,
		Retail:      s.Retail,
		Wholesale:   s.Wholesale,
		Insurance:   s.InsuranceValue,
		PackingCost: s.PackingCost,
		Status:      status,
		ShippedAt:   NormalizeDate(s.TransactionAt),
	}
}

// MapAddress 常用收件地址映射
func MapAddress(a domain.LegacyShipTo) domain.MappedAddress {
	name := joinNonEmpty(" ", a.FirstName, a.LastName)
	if name == "" {
		name = strings.TrimSpace(a.Contact)
	}

	postal := strings.TrimSpace(a.ZipCode)
	if plus := strings.TrimSpace(a.ZipPlus); plus != "" && postal != "" {
		postal += "-" + plus
	}

	out := domain.MappedAddress{
		SourceID:         a.ShipToID,
		CustomerSourceID: a.LastCustRef,
		Name:             name,
		Company:          strings.TrimSpace(a.CompanyName),
		Contact:          strings.TrimSpace(a.Contact),
		Line1:            strings.TrimSpace(a.Address1),
		Line2:            strings.TrimSpace(a.Address2),
		Line3:            strings.TrimSpace(a.Address3),
		City:             strings.TrimSpace(a.City),
		State:            strings.TrimSpace(a.State),
		PostalCode:       postal,
		Country:          strings.TrimSpace(a.CountryName),
		Email:            shipToEmail(a.Email),
		Phone:            domain.NormalizePhone(a.Phone),
		Commercial:       a.IsCommercial,
		Deleted:          a.Deleted,
	}
	out.Formatted = FormatDestination(Destination{
		FirstName: a.FirstName,
		LastName:  a.LastName,
		Company:   a.CompanyName,
		Address1:  a.Address1,
		Address2:  a.Address2,
		Address3:  a.Address3,
		City:      a.City,
		State:     a.State,
		Zip:       postal,
		Country:   a.CountryName,
	})
	return out
}

// shipToEmail 收件地址上的邮箱只作参考，无效时直接丢弃
func shipToEmail(raw string) string {
	email, err := domain.NormalizeEmail(raw)
	if err != nil {
		return ""
	}
	return email
}
