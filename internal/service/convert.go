package service

import "legacymigrate/backend/internal/domain"

// 映射记录 -> 目标库行。每一行都带上租户、写入标签和来源 ID。

func toCustomer(c domain.MappedCustomer, tenantID, tag string) domain.Customer {
	return domain.Customer{
		TenantID:     tenantID,
		MigrationID:  tag,
		SourceID:     c.SourceID,
		FirstName:    c.FirstName,
		LastName:     c.LastName,
		BusinessName: c.BusinessName,
		Email:        c.Email,
		Phone:        c.Phone,
		PMB:          c.PMB,
		Status:       c.Status,
		OpenedAt:     c.OpenedAt,
		RenewalAt:    c.RenewalAt,
		MonthlyRate:  c.MonthlyRate,
	}
}

func toAddress(a domain.MappedAddress, tenantID, tag, customerID string) domain.Address {
	return domain.Address{
		TenantID:    tenantID,
		MigrationID: tag,
		SourceID:    a.SourceID,
		CustomerID:  customerID,
		Name:        a.Name,
		Company:     a.Company,
		Line1:       a.Line1,
		Line2:       a.Line2,
		Line3:       a.Line3,
		City:        a.City,
		State:       a.State,
		PostalCode:  a.PostalCode,
		Country:     a.Country,
		Email:       a.Email,
		Phone:       a.Phone,
		Commercial:  a.Commercial,
		Formatted:   a.Formatted,
	}
}

func toPackage(p domain.MappedPackage, tenantID, tag, customerID string) domain.Package {
	return domain.Package{
		TenantID:        tenantID,
		MigrationID:     tag,
		SourceID:        p.SourceID,
		CustomerID:      customerID,
		TrackingNumber:  p.TrackingNumber,
		Carrier:         p.Carrier,
		Sender:          p.Sender,
		PackageType:     p.PackageType,
		Status:          p.Status,
		CheckedInAt:     p.CheckedInAt,
		TimestampSource: p.CheckedInSource,
		ReleasedAt:      p.ReleasedAt,
		Notes:           p.Notes,
	}
}

func toShipment(s domain.MappedShipment, tenantID, tag, customerID string) domain.Shipment {
	return domain.Shipment{
		TenantID:       tenantID,
		MigrationID:    tag,
		SourceID:       s.SourceID,
		CustomerID:     customerID,
		TrackingNumber: s.TrackingNumber,
		Carrier:        s.Carrier,
		Service:        s.Service,
		Destination:    s.Destination,
		Weight:         s.Weight,
		Dimensions:     s.Dimensions,
		Retail:         s.Retail,
		Wholesale:      s.Wholesale,
		Insurance:      s.Insurance,
		PackingCost:    s.PackingCost,
		Status:         s.Status,
		ShippedAt:      s.ShippedAt,
	}
}

func toInvoice(i domain.MappedInvoice, tenantID, tag, customerID string) domain.Invoice {
	return domain.Invoice{
		TenantID:    tenantID,
		MigrationID: tag,
		SourceID:    i.SourceID,
		CustomerID:  customerID,
		Number:      i.Number,
		Type:        i.Type,
		Amount:      i.Amount,
		Status:      i.Status,
		IssuedAt:    i.IssuedAt,
	}
}
