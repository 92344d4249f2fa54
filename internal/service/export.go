package service

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"legacymigrate/backend/internal/domain"
	"legacymigrate/backend/internal/dryrun"
	"legacymigrate/backend/internal/mapper"
	"legacymigrate/backend/internal/tabular"
)

// Export 外部解包步骤交给迁移引擎的一份旧系统导出
type Export struct {
	SourceFile      string `json:"sourceFile"`
	DatabaseVersion string `json:"databaseVersion"`
	// Tables 表名 -> 分隔文本
	Tables map[string]string `json:"tables" binding:"required"`
	// FieldMappings 规范表名 -> (导出列名 -> 规范列名)，用于列名与标准导出不一致的文件
	FieldMappings map[string]map[string]string `json:"fieldMappings,omitempty"`
	// Delimiter 字段分隔符，0 表示逗号
	Delimiter rune `json:"-"`
}

// parsedExport 解析并解码后的导出
type parsedExport struct {
	customers   []domain.LegacyCustomer
	mailboxes   []domain.LegacyMailbox
	packages    []domain.LegacyPackageReceipt
	billing     []domain.LegacyShipment
	shipTos     []domain.LegacyShipTo
	carriers    []domain.LegacyCarrier
	departments []domain.LegacyDepartment

	rowCounts map[string]int
	tables    []string
	issues    []domain.TableIssue
}

// parseExport 解析全部已识别的表
//
// 行级解析或解码错误记录为 TableIssue，不影响其余行；没有任何可识别的表时返回 ErrEmptyExport。
func parseExport(e Export) (*parsedExport, error) {
	resolved, unknown, duplicates := ResolveTables(e.Tables)
	if len(resolved) == 0 {
		return nil, ErrEmptyExport
	}

	p := &parsedExport{rowCounts: make(map[string]int, len(resolved))}
	for _, name := range unknown {
		p.issues = append(p.issues, domain.TableIssue{Table: name, Message: "unrecognized table, ignored"})
	}
	for _, name := range duplicates {
		canonical, _ := CanonicalTable(name)
		p.issues = append(p.issues, domain.TableIssue{
			Table:   name,
			Message: fmt.Sprintf("another file already provides %s, ignored", canonical),
		})
	}

	for name, text := range resolved {
		p.tables = append(p.tables, name)

		parsed := tabular.ParseString(text, tabular.Options{
			Delimiter:    e.Delimiter,
			FieldMapping: e.FieldMappings[name],
		})
		p.rowCounts[name] = len(parsed.Rows)
		p.addIssues(name, parsed.Errors)

		switch name {
		case TableCustomers:
			p.customers = decodeTable[domain.LegacyCustomer](p, name, parsed.Rows)
		case TableMailboxes:
			p.mailboxes = decodeTable[domain.LegacyMailbox](p, name, parsed.Rows)
		case TablePackages:
			p.packages = decodeTable[domain.LegacyPackageReceipt](p, name, parsed.Rows)
		case TableBilling:
			p.billing = decodeTable[domain.LegacyShipment](p, name, parsed.Rows)
		case TableShipTo:
			p.shipTos = decodeTable[domain.LegacyShipTo](p, name, parsed.Rows)
		case TableCarriers:
			p.carriers = decodeTable[domain.LegacyCarrier](p, name, parsed.Rows)
		case TableDepartments:
			p.departments = decodeTable[domain.LegacyDepartment](p, name, parsed.Rows)
		}
	}

	sort.Strings(p.tables)
	sort.SliceStable(p.issues, func(i, j int) bool {
		if p.issues[i].Table != p.issues[j].Table {
			return p.issues[i].Table < p.issues[j].Table
		}
		return p.issues[i].Line < p.issues[j].Line
	})
	return p, nil
}

func decodeTable[T any](p *parsedExport, table string, rows []tabular.Row) []T {
	out, errs := tabular.Decode[T](rows)
	p.addIssues(table, errs)
	return out
}

func (p *parsedExport) addIssues(table string, errs []tabular.LineError) {
	for _, e := range errs {
		p.issues = append(p.issues, domain.TableIssue{Table: table, Line: e.Line, Message: e.Message})
	}
}

// products 产品表的行数；目标系统没有产品模型，只计数
func (p *parsedExport) products() int {
	return p.rowCounts[TableProducts]
}

// mapRecords 把旧记录映射为目标形态，now 只用于缺少签收时间的包裹
func (p *parsedExport) mapRecords(now time.Time) dryrun.Input {
	mailboxes := make(map[int64]*domain.LegacyMailbox, len(p.mailboxes))
	for i := range p.mailboxes {
		mb := &p.mailboxes[i]
		// 同一客户有多条信箱记录时，优先取有编号的那条
		if cur, ok := mailboxes[mb.CustomerRef]; ok && cur.MailboxNumber > 0 {
			continue
		}
		mailboxes[mb.CustomerRef] = mb
	}

	in := dryrun.Input{
		Customers: make([]domain.MappedCustomer, 0, len(p.customers)),
		Addresses: make([]domain.MappedAddress, 0, len(p.shipTos)),
		Packages:  make([]domain.MappedPackage, 0, len(p.packages)),
		Shipments: make([]domain.MappedShipment, 0, len(p.billing)),
		Invoices:  make([]domain.MappedInvoice, 0, len(p.billing)),
	}
	for _, c := range p.customers {
		in.Customers = append(in.Customers, mapper.MapCustomer(c, mailboxes[c.CustomerID]))
	}
	for _, a := range p.shipTos {
		in.Addresses = append(in.Addresses, mapper.MapAddress(a))
	}
	for _, pkg := range p.packages {
		in.Packages = append(in.Packages, mapper.MapPackage(pkg, now))
	}
	for _, s := range p.billing {
		in.Shipments = append(in.Shipments, mapper.MapShipment(s))
		in.Invoices = append(in.Invoices, mapper.MapInvoice(s))
	}
	return in
}

// entityTotals 各实体的记录数，用于进度账本
func entityTotals(in dryrun.Input, products int) map[string]int {
	return map[string]int{
		domain.EntityCustomers: len(in.Customers),
		domain.EntityAddresses: len(in.Addresses),
		domain.EntityPackages:  len(in.Packages),
		domain.EntityShipments: len(in.Shipments),
		domain.EntityInvoices:  len(in.Invoices),
		domain.EntityProducts:  products,
	}
}

// analyze 生成迁移前概览
func (p *parsedExport) analyze(e Export) *domain.MigrationAnalysis {
	a := &domain.MigrationAnalysis{
		SourceFile:      e.SourceFile,
		DatabaseVersion: e.DatabaseVersion,
		Tables:          p.tables,
		ParseErrors:     p.issues,
		Carriers:        p.carrierRefs(),
		Departments:     make([]domain.DepartmentRef, 0, len(p.departments)),
	}
	if a.ParseErrors == nil {
		a.ParseErrors = []domain.TableIssue{}
	}

	for _, c := range p.customers {
		a.DateRange.Include(mapper.NormalizeDate(c.AddDate))
	}
	for _, mb := range p.mailboxes {
		a.DateRange.Include(mapper.NormalizeDate(mb.OpenDate))
	}
	checkins := 0
	for _, pkg := range p.packages {
		received := mapper.NormalizeDate(pkg.ReceivedAt)
		if received != nil {
			checkins++
		}
		a.DateRange.Include(received)
		a.DateRange.Include(mapper.NormalizeDate(pkg.CompletedAt))
	}
	for _, s := range p.billing {
		a.DateRange.Include(mapper.NormalizeDate(s.TransactionAt))
	}

	for _, d := range p.departments {
		a.Departments = append(a.Departments, domain.DepartmentRef{ID: d.DepartmentID, Name: d.DepartmentName})
	}
	sort.Slice(a.Departments, func(i, j int) bool { return a.Departments[i].ID < a.Departments[j].ID })

	transactions := p.rowCounts[TableInvoices]
	if transactions == 0 {
		transactions = len(p.billing)
	}

	a.Counts = domain.AnalysisCounts{
		Customers:       len(p.customers),
		ShipToAddresses: len(p.shipTos),
		Shipments:       len(p.billing),
		Packages:        len(p.packages),
		PackageCheckins: checkins,
		Products:        p.products(),
		Transactions:    transactions,
		LineItems:       p.rowCounts[TableLineItems],
		Payments:        p.rowCounts[TablePayments],
		Mailboxes:       len(p.mailboxes),
		Carriers:        len(a.Carriers),
		Departments:     len(a.Departments),
	}
	return a
}

// carrierRefs 承运商表与包裹、寄件记录中出现的承运商去重合并
func (p *parsedExport) carrierRefs() []domain.CarrierRef {
	type key struct {
		id   int64
		name string
	}
	seen := make(map[key]bool)
	byID := make(map[int64]bool)
	byName := make(map[string]bool)
	refs := make([]domain.CarrierRef, 0)

	for _, c := range p.carriers {
		k := key{c.CarrierID, c.CarrierName}
		if seen[k] {
			continue
		}
		seen[k] = true
		byID[c.CarrierID] = true
		byName[strings.ToUpper(c.CarrierName)] = true
		status := "active"
		if c.Status != 0 {
			status = "inactive"
		}
		refs = append(refs, domain.CarrierRef{
			ID:     c.CarrierID,
			Name:   c.CarrierName,
			Code:   mapper.NormalizeCarrier(c.CarrierName),
			Status: status,
		})
	}

	add := func(id int64, name string) {
		if name == "" && id == 0 {
			return
		}
		k := key{id, name}
		upper := strings.ToUpper(name)
		// 没有承运商 ID 的记录按名称去重
		if seen[k] || (id != 0 && byID[id]) || (id == 0 && byName[upper]) {
			return
		}
		seen[k] = true
		byName[upper] = true
		if id != 0 {
			byID[id] = true
		}
		refs = append(refs, domain.CarrierRef{ID: id, Name: name, Code: mapper.NormalizeCarrier(name)})
	}
	for _, pkg := range p.packages {
		add(pkg.CarrierRef, pkg.CarrierName)
	}
	for _, s := range p.billing {
		add(s.CarrierRef, s.CarrierName)
	}

	sort.Slice(refs, func(i, j int) bool {
		if refs[i].ID != refs[j].ID {
			return refs[i].ID < refs[j].ID
		}
		return refs[i].Name < refs[j].Name
	})
	return refs
}
