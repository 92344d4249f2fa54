package mapper

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"legacymigrate/backend/internal/domain"
)

func intPtr(v int) *int { return &v }

func TestNormalizeCarrier(t *testing.T) {
	t.Run("词表内名称映射为约定代码", func(t *testing.T) {
		expected := map[string]string{
			"United Parcel Service":        "ups",
			"United States Postal Service": "usps",
			"FedEx Express":                "fedex",
			"FedEx Ground":                 "fedex",
			"FedEx Freight":                "fedex",
			"FedEx Freight Box":            "fedex",
			"DHL":                          "dhl",
			"DHL eCommerce":                "dhl",
			"OnTrac":                       "ontrac",
			"LSO":                          "lso",
			"Spee-Dee Delivery":            "speedee",
			"SameDay Messenger":            "sameday",
			"Meest":                        "meest",
			"Maersk Parcel":                "maersk",
			"GLS":                          "gls",
			"UShip":                        "uship",
		}
		for name, code := range expected {
			assert.Equal(t, code, NormalizeCarrier(name), name)
		}
		assert.Len(t, carrierCodes, len(expected))
	})

	t.Run("未知名称转为slug而不是丢弃", func(t *testing.T) {
		assert.Equal(t, "bobs_courier", NormalizeCarrier("Bob's Courier"))
		assert.Equal(t, "local_bike_co", NormalizeCarrier("  Local   Bike Co "))
	})

	t.Run("空名称为other", func(t *testing.T) {
		assert.Equal(t, "other", NormalizeCarrier(""))
		assert.Equal(t, "other", NormalizeCarrier("   "))
	})
}

func TestNormalizeDate(t *testing.T) {
	t.Run("解析常见格式", func(t *testing.T) {
		cases := map[string]time.Time{
			"2019-04-01 13:45:10":      time.Date(2019, 4, 1, 13, 45, 10, 0, time.UTC),
			"2019-04-01 13:45:10.1230": time.Date(2019, 4, 1, 13, 45, 10, 123000000, time.UTC),
			"2019-04-01":               time.Date(2019, 4, 1, 0, 0, 0, 0, time.UTC),
			"04/01/2019":               time.Date(2019, 4, 1, 0, 0, 0, 0, time.UTC),
			"4/1/2019 1:45:10 PM":      time.Date(2019, 4, 1, 13, 45, 10, 0, time.UTC),
			"2019-04-01T13:45:10Z":     time.Date(2019, 4, 1, 13, 45, 10, 0, time.UTC),
		}
		for raw, want := range cases {
			got := NormalizeDate(raw)
			require.NotNil(t, got, raw)
			assert.True(t, want.Equal(*got), "%s => %s", raw, got)
		}
	})

	t.Run("无法解析返回nil", func(t *testing.T) {
		assert.Nil(t, NormalizeDate(""))
		assert.Nil(t, NormalizeDate("not a date"))
		assert.Nil(t, NormalizeDate("2019-13-45"))
	})

	t.Run("1970年之前的哨兵日期返回nil", func(t *testing.T) {
		assert.Nil(t, NormalizeDate("1899-12-30"))
		assert.Nil(t, NormalizeDate("1969-12-31 23:59:59"))
		assert.NotNil(t, NormalizeDate("1970-01-01"))
	})
}

func TestMapCustomer(t *testing.T) {
	legacy := domain.LegacyCustomer{
		CustomerID:  501,
		FirstName:   " Jane ",
		LastName:    "Doe",
		CompanyName: "Doe LLC",
		Email:       "jane@example.com",
		AddDate:     "2015-06-01",
	}

	t.Run("没有信箱时使用WI编号且状态为active", func(t *testing.T) {
		c := MapCustomer(legacy, nil)
		assert.Equal(t, "WI-501", c.PMB)
		assert.Equal(t, domain.CustomerActive, c.Status)
		assert.Equal(t, "Jane", c.FirstName)
		assert.Equal(t, int64(501), c.SourceID)
		require.NotNil(t, c.OpenedAt)
		assert.Equal(t, 2015, c.OpenedAt.Year())
		assert.False(t, c.HasMailbox)
	})

	t.Run("有信箱时使用补零编号", func(t *testing.T) {
		mb := &domain.LegacyMailbox{
			MailboxNumber: 1,
			CustomerRef:   501,
			Status:        intPtr(1),
			NextDueDate:   "2024-01-31",
			MonthlyRate:   decimal.RequireFromString("19.95"),
		}
		c := MapCustomer(legacy, mb)
		assert.Equal(t, "PMB-0001", c.PMB)
		assert.Equal(t, domain.CustomerActive, c.Status)
		require.NotNil(t, c.RenewalAt)
		assert.True(t, mb.MonthlyRate.Equal(c.MonthlyRate))
	})

	t.Run("联系方式规范化", func(t *testing.T) {
		in := legacy
		in.Email = "jane@EXAMPLE.com"
		in.Phone = "(608) 555-1234"
		c := MapCustomer(in, nil)
		assert.Equal(t, "jane@example.com", c.Email)
		assert.Equal(t, "6085551234", c.Phone)
		assert.Empty(t, c.DroppedEmail)

		in.Email = "jane at example"
		c = MapCustomer(in, nil)
		assert.Empty(t, c.Email)
		assert.Equal(t, "jane at example", c.DroppedEmail)

		in.Email = "N/A"
		c = MapCustomer(in, nil)
		assert.Empty(t, c.Email)
		assert.Empty(t, c.DroppedEmail)
	})

	t.Run("信箱编号为0时回落到WI编号", func(t *testing.T) {
		c := MapCustomer(legacy, &domain.LegacyMailbox{MailboxNumber: 0})
		assert.Equal(t, "WI-501", c.PMB)
	})

	t.Run("状态码折叠为active或closed", func(t *testing.T) {
		expected := map[int]domain.CustomerStatus{
			0: domain.CustomerClosed,
			1: domain.CustomerActive,
			2: domain.CustomerActive,
			3: domain.CustomerClosed,
			4: domain.CustomerClosed,
			5: domain.CustomerClosed,
			6: domain.CustomerClosed,
			9: domain.CustomerClosed,
		}
		for code, status := range expected {
			mb := &domain.LegacyMailbox{MailboxNumber: 12, Status: intPtr(code)}
			assert.Equal(t, status, MapCustomer(legacy, mb).Status, "code %d", code)
		}
		assert.Equal(t, domain.CustomerActive, MapCustomer(legacy, &domain.LegacyMailbox{MailboxNumber: 12}).Status)
	})

	t.Run("缺少姓名时保持为空", func(t *testing.T) {
		c := MapCustomer(domain.LegacyCustomer{CustomerID: 9}, nil)
		assert.Empty(t, c.FirstName)
		assert.Empty(t, c.LastName)
	})

	t.Run("软删除客户导入为closed", func(t *testing.T) {
		deleted := legacy
		deleted.Deleted = true
		assert.Equal(t, domain.CustomerClosed, MapCustomer(deleted, nil).Status)
	})

	t.Run("哨兵日期不会变成默认日期", func(t *testing.T) {
		sentinel := legacy
		sentinel.AddDate = "1899-12-30"
		assert.Nil(t, MapCustomer(sentinel, nil).OpenedAt)
	})
}

func TestMapPackage(t *testing.T) {
	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

	t.Run("有签收时间时标记为source", func(t *testing.T) {
		p := MapPackage(domain.LegacyPackageReceipt{
			PkgRecvID:   77,
			CustomerRef: 501,
			CarrierName: "FedEx Ground",
			ReceivedAt:  "2020-02-03 10:00:00",
			CompletedAt: "2020-02-05 11:00:00",
			PkgType:     4,
			Status:      3,
		}, now)

		assert.Equal(t, "fedex", p.Carrier)
		assert.Equal(t, "large", p.PackageType)
		assert.Equal(t, "released", p.Status)
		assert.Equal(t, domain.TimestampFromSource, p.CheckedInSource)
		assert.Equal(t, 2020, p.CheckedInAt.Year())
		require.NotNil(t, p.ReleasedAt)
		assert.Equal(t, int64(501), p.CustomerSourceID)
	})

	t.Run("缺少签收时间时使用now并标记为defaulted", func(t *testing.T) {
		p := MapPackage(domain.LegacyPackageReceipt{PkgRecvID: 78, ReceivedAt: "1899-12-30"}, now)
		assert.Equal(t, domain.TimestampDefaulted, p.CheckedInSource)
		assert.True(t, now.Equal(p.CheckedInAt))
		assert.Nil(t, p.ReleasedAt)
	})

	t.Run("未知代码使用安全默认值", func(t *testing.T) {
		p := MapPackage(domain.LegacyPackageReceipt{PkgType: 42, Status: 42}, now)
		assert.Equal(t, "medium", p.PackageType)
		assert.Equal(t, "checked_in", p.Status)
		assert.Equal(t, "other", p.Carrier)
	})
}

func TestMapInvoiceAndShipment(t *testing.T) {
	s := domain.LegacyShipment{
		ShipmentID:      9001,
		CustomerRef:     501,
		CarrierName:     "United Parcel Service",
		ShipToFirstName: "John",
		ShipToLastName:  "Smith",
		ShipToAddress1:  "1 Main St",
		ShipToCity:      "Toronto",
		ShipToState:     "ON",
		ShipToZip:       "M5V 2T6",
		ShipToCountry:   "CANADA",
		Retail:          decimal.RequireFromString("24.10"),
		TransactionAt:   "2021-07-04 09:30:00",
		Dimensions:      "10 X 8 x 4",
	}

	t.Run("账单编号确定且幂等", func(t *testing.T) {
		a, b := MapInvoice(s), MapInvoice(s)
		assert.Equal(t, "PM-9001", a.Number)
		assert.Equal(t, a, b)
		assert.Equal(t, domain.InvoicePaid, a.Status)
		assert.Equal(t, "shipping", a.Type)
		assert.True(t, s.Retail.Equal(a.Amount))
	})

	t.Run("作废记录映射为void", func(t *testing.T) {
		voided := s
		voided.Voided = true
		assert.Equal(t, domain.InvoiceVoid, MapInvoice(voided).Status)
		assert.Equal(t, "void", MapShipment(voided).Status)
	})

	t.Run("寄件记录包含格式化地址与尺寸", func(t *testing.T) {
		m := MapShipment(s)
		assert.Equal(t, "ups", m.Carrier)
		assert.Equal(t, "John Smith\n1 Main St\nToronto, ON M5V 2T6\nCANADA", m.Destination)
		assert.Equal(t, "10x8x4", m.Dimensions)
		assert.Equal(t, "shipped", m.Status)
		require.NotNil(t, m.ShippedAt)
	})

	t.Run("没有尺寸文本时由长宽高拼出", func(t *testing.T) {
		noDims := s
		noDims.Dimensions = ""
		noDims.Length, noDims.Width, noDims.Height = 12, 6.5, 0
		assert.Equal(t, "12x6.5x0", MapShipment(noDims).Dimensions)
	})
}

func TestFormatDestination(t *testing.T) {
	t.Run("省略空段且美国地址不追加国家", func(t *testing.T) {
		got := FormatDestination(Destination{
			FirstName: "Jane",
			Company:   "Acme",
			Address1:  "5 Elm",
			City:      "Austin",
			State:     "TX",
			Zip:       "78701",
			Country:   "UNITED STATES",
		})
		assert.Equal(t, "Jane\nAcme\n5 Elm\nAustin, TX 78701", got)
	})

	t.Run("缺少城市时不留多余逗号", func(t *testing.T) {
		got := FormatDestination(Destination{State: "TX", Zip: "78701", Country: "us"})
		assert.Equal(t, "TX 78701", got)
	})

	t.Run("全部为空返回空串", func(t *testing.T) {
		assert.Equal(t, "", FormatDestination(Destination{}))
	})
}

func TestMapAddress(t *testing.T) {
	a := MapAddress(domain.LegacyShipTo{
		ShipToID:    3,
		Contact:     "Front Desk",
		Address1:    "9 Oak",
		City:        "Reno",
		State:       "NV",
		ZipCode:     "89501",
		ZipPlus:     "1234",
		LastCustRef: 501,
	})
	assert.Equal(t, "Front Desk", a.Name)
	assert.Equal(t, "89501-1234", a.PostalCode)
	assert.Equal(t, int64(501), a.CustomerSourceID)
	assert.Equal(t, "9 Oak\nReno, NV 89501-1234", a.Formatted)
}
