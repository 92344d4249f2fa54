package mapper

// 旧系统受控词表。未出现在表中的代码一律落到安全默认值，而不是报错。

// carrierCodes 承运商名称 -> 目标系统承运商代码
var carrierCodes = map[string]string{
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

// mailboxStatuses 信箱状态码 -> 状态名
var mailboxStatuses = map[int]string{
	0: "available",
	1: "active",
	2: "active",
	3: "suspended",
	4: "closed",
	5: "closed",
	6: "suspended",
}

// packageTypes 包裹类型码
var packageTypes = map[int]string{
	0: "medium",
	1: "letter",
	2: "small",
	3: "medium",
	4: "large",
	5: "oversized",
}

// packageStatuses 包裹状态码
var packageStatuses = map[int]string{
	0: "checked_in",
	1: "notified",
	2: "ready",
	3: "released",
	4: "returned",
}

const (
	DefaultCarrier     = "other"
	DefaultPackageType = "medium"
	DefaultPackageStat = "checked_in"
)
