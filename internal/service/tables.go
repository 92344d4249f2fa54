package service

import (
	"sort"
	"strings"
)

// 规范表名
const (
	TableCustomers   = "CUSTOMER"
	TableMailboxes   = "MBDETAIL"
	TablePackages    = "PACKAGES"
	TableBilling     = "BILLING"
	TableShipTo      = "SHIPTO"
	TableProducts    = "PRODUCT"
	TableCarriers    = "CARRIER"
	TableDepartments = "DEPARTMENT"
	TablePayments    = "PAYMENTTBL"
	TableInvoices    = "INVOICETBL"
	TableLineItems   = "INVOICEITEM"
)

// tableAliases 导出表名（大写）-> 规范表名
var tableAliases = map[string]string{
	"CUSTOMER":    TableCustomers,
	"CUSTOMERS":   TableCustomers,
	"MBDETAIL":    TableMailboxes,
	"MAILBOXES":   TableMailboxes,
	"PACKAGES":    TablePackages,
	"PKGRECVXN":   TablePackages,
	"PACKAGEXN":   TablePackages,
	"BILLING":     TableBilling,
	"SHIPMENTXN":  TableBilling,
	"SHIPTO":      TableShipTo,
	"PRODUCTTBL":  TableProducts,
	"PRODUCT":     TableProducts,
	"PRODUCTS":    TableProducts,
	"CARRIER":     TableCarriers,
	"CARRIERS":    TableCarriers,
	"DEPARTMENT":  TableDepartments,
	"DEPARTMENTS": TableDepartments,
	"PAYMENTTBL":  TablePayments,
	"INVOICETBL":  TableInvoices,
	"INVOICEITEM": TableLineItems,
}

// ResolveTables 按别名（不区分大小写）把导出表归到规范表名下
//
// 文件扩展名会被忽略，"customer.csv" 与 "CUSTOMER" 等价。
// 同一规范表出现多次时保留按名称排序后的第一个，其余返回在 duplicates 中；
// 无法识别的表名原样返回在 unknown 中。
func ResolveTables(tables map[string]string) (resolved map[string]string, unknown, duplicates []string) {
	names := make([]string, 0, len(tables))
	for name := range tables {
		names = append(names, name)
	}
	sort.Strings(names)

	resolved = make(map[string]string, len(tables))
	for _, name := range names {
		canonical, ok := CanonicalTable(name)
		if !ok {
			unknown = append(unknown, name)
			continue
		}
		if _, seen := resolved[canonical]; seen {
			duplicates = append(duplicates, name)
			continue
		}
		resolved[canonical] = tables[name]
	}
	return resolved, unknown, duplicates
}

// CanonicalTable 返回表名对应的规范表名
func CanonicalTable(name string) (string, bool) {
	canonical, ok := tableAliases[normalizeTableName(name)]
	return canonical, ok
}

func normalizeTableName(name string) string {
	name = strings.TrimSpace(name)
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}
	if i := strings.LastIndexByte(name, '.'); i > 0 {
		name = name[:i]
	}
	return strings.ToUpper(name)
}
