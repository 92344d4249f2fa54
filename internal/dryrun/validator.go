package dryrun

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"

	"legacymigrate/backend/internal/domain"
)

// Input 一次预检的全部映射记录
type Input struct {
	// MigrationID 非空时，目标库中属于同一任务的客户不视为冲突（重跑时由 upsert 覆盖）
	MigrationID string
	Customers   []domain.MappedCustomer
	Addresses   []domain.MappedAddress
	Packages    []domain.MappedPackage
	Shipments   []domain.MappedShipment
	Invoices    []domain.MappedInvoice
	// Migrated 目标库中由其他任务写入的依赖记录：实体 -> 来源 ID -> 写入标签
	Migrated map[string]map[int64]string
}

// Result 预检报告以及迁移阶段按记录查询分类所需的索引
type Result struct {
	Report *domain.DryRunReport

	classes  map[string]map[int64]domain.Classification
	existing map[int64]domain.CustomerRef // 客户来源 ID -> 冲突的目标库客户
	known    map[int64]domain.CustomerRef // 目标库中已带有该来源 ID 的客户
	linkable map[int64]bool

	migrationID string
	migrated    map[string]map[int64]string
}

// Class 返回某条记录的分类，未知记录视为 invalid
func (r *Result) Class(entity string, sourceID int64) domain.Classification {
	if c, ok := r.classes[entity][sourceID]; ok {
		return c
	}
	return domain.ClassInvalid
}

// ConflictFor 返回与该客户信箱编号冲突的目标库客户
func (r *Result) ConflictFor(customerSourceID int64) (domain.CustomerRef, bool) {
	ref, ok := r.existing[customerSourceID]
	return ref, ok
}

// KnownCustomer 返回目标库中已经带有该来源 ID 的客户（之前的任务写入）
func (r *Result) KnownCustomer(customerSourceID int64) (domain.CustomerRef, bool) {
	ref, ok := r.known[customerSourceID]
	return ref, ok
}

// Linkable 依赖记录引用的客户来源 ID 能否在本次导入或目标库中解析
func (r *Result) Linkable(customerSourceID int64) bool {
	return r.linkable[customerSourceID]
}

// Validator 预检器，只读，不产生任何写入
type Validator struct {
	validate *validator.Validate
}

// New 创建预检器
func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return &Validator{validate: v}
}

// Options 校验操作人员提交的迁移选项
func (v *Validator) Options(opts domain.MigrationOptions) error {
	if err := v.validate.Struct(opts); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidOptions, describe(err))
	}
	return nil
}

// Run 对映射记录分类并生成报告
//
// existing 为目标租户现有客户；mode 为操作人员选择的冲突处理方式，
// 为空表示尚未选择，此时存在重复即为阻断。
func (v *Validator) Run(in Input, existing []domain.CustomerRef, mode domain.ConflictMode) *Result {
	res := &Result{
		classes:  make(map[string]map[int64]domain.Classification),
		existing: make(map[int64]domain.CustomerRef),
		known:    make(map[int64]domain.CustomerRef),
		linkable: make(map[int64]bool),

		migrationID: in.MigrationID,
		migrated:    in.Migrated,
	}
	report := &domain.DryRunReport{
		Entities: make(map[string]domain.EntityReport),
		Issues:   []domain.RecordIssue{},
		Notes:    []domain.RecordIssue{},
		Warnings: []string{},
	}
	res.Report = report

	pmbs := make(map[string]domain.CustomerRef, len(existing))
	for _, ref := range existing {
		if ref.SourceID != 0 && ref.MigrationID != "" {
			if _, seen := res.known[ref.SourceID]; !seen || ref.MigrationID == in.MigrationID {
				res.known[ref.SourceID] = ref
			}
			res.linkable[ref.SourceID] = true
		}
		if in.MigrationID != "" && ref.MigrationID == in.MigrationID {
			continue
		}
		pmbs[strings.ToLower(ref.PMB)] = ref
	}

	v.customers(in.Customers, pmbs, mode, res)

	addresses := make([]dependent, 0, len(in.Addresses))
	for _, a := range in.Addresses {
		addresses = append(addresses, dependent{a.SourceID, a.CustomerSourceID, a.Deleted})
	}
	res.dependents(domain.EntityAddresses, addresses, "ship-to")

	packages := make([]dependent, 0, len(in.Packages))
	for _, p := range in.Packages {
		packages = append(packages, dependent{p.SourceID, p.CustomerSourceID, false})
	}
	res.dependents(domain.EntityPackages, packages, "package")

	shipments := make([]dependent, 0, len(in.Shipments))
	for _, s := range in.Shipments {
		shipments = append(shipments, dependent{s.SourceID, s.CustomerSourceID, false})
	}
	res.dependents(domain.EntityShipments, shipments, "shipment")

	invoices := make([]dependent, 0, len(in.Invoices))
	for _, i := range in.Invoices {
		invoices = append(invoices, dependent{i.SourceID, i.CustomerSourceID, false})
		if i.Status == domain.InvoiceVoid {
			report.Notes = append(report.Notes, domain.RecordIssue{
				Entity:         domain.EntityInvoices,
				SourceID:       i.SourceID,
				Classification: domain.ClassValid,
				Message:        "voided transaction, will be imported as void",
			})
		}
	}
	res.dependents(domain.EntityInvoices, invoices, "invoice")

	res.summarize(mode)
	return res
}

func (v *Validator) customers(customers []domain.MappedCustomer, pmbs map[string]domain.CustomerRef, mode domain.ConflictMode, res *Result) {
	report := res.Report
	counts := domain.EntityReport{Total: len(customers)}
	classes := make(map[int64]domain.Classification, len(customers))
	inRun := make(map[string]int64, len(customers))

	for _, c := range customers {
		key := strings.ToLower(c.PMB)

		if c.DroppedEmail != "" {
			report.Notes = append(report.Notes, domain.RecordIssue{
				Entity:         domain.EntityCustomers,
				SourceID:       c.SourceID,
				Classification: domain.ClassValid,
				Message:        fmt.Sprintf("email %q is not a valid address and will be left empty", c.DroppedEmail),
			})
		}

		if ref, dup := pmbs[key]; dup {
			counts.Duplicates++
			classes[c.SourceID] = domain.ClassDuplicate
			res.existing[c.SourceID] = ref
			report.Issues = append(report.Issues, domain.RecordIssue{
				Entity:         domain.EntityCustomers,
				SourceID:       c.SourceID,
				Classification: domain.ClassDuplicate,
				Message:        fmt.Sprintf("PMB %s already exists", c.PMB),
			})
			// merge 关联到已有客户，create_new 会写入新客户，二者的依赖记录都能解析
			if mode == domain.ConflictMerge || mode == domain.ConflictCreateNew {
				res.linkable[c.SourceID] = true
			}
			continue
		}

		if err := v.validate.Struct(c); err != nil {
			counts.Invalid++
			classes[c.SourceID] = domain.ClassInvalid
			report.Issues = append(report.Issues, domain.RecordIssue{
				Entity:         domain.EntityCustomers,
				SourceID:       c.SourceID,
				Classification: domain.ClassInvalid,
				Message:        "missing required field: " + describe(err),
			})
			continue
		}

		if first, dup := inRun[key]; dup {
			counts.Duplicates++
			classes[c.SourceID] = domain.ClassDuplicate
			report.Issues = append(report.Issues, domain.RecordIssue{
				Entity:         domain.EntityCustomers,
				SourceID:       c.SourceID,
				Classification: domain.ClassDuplicate,
				Message:        fmt.Sprintf("PMB %s is also used by customer %d in this export", c.PMB, first),
			})
			if mode == domain.ConflictCreateNew {
				res.linkable[c.SourceID] = true
			}
			continue
		}

		inRun[key] = c.SourceID
		counts.Valid++
		classes[c.SourceID] = domain.ClassValid
		res.linkable[c.SourceID] = true
	}

	report.Entities[domain.EntityCustomers] = counts
	res.classes[domain.EntityCustomers] = classes
}

type dependent struct {
	sourceID, customerRef int64
	deleted               bool
}

func (r *Result) dependents(entity string, records []dependent, label string) {
	counts := domain.EntityReport{Total: len(records)}
	classes := make(map[int64]domain.Classification, len(records))

	for _, d := range records {
		prior, done := r.migrated[entity][d.sourceID]
		if done && prior == r.migrationID {
			done = false
		}

		switch {
		case d.deleted:
			counts.Skipped++
			classes[d.sourceID] = domain.ClassSkipped
			r.Report.Notes = append(r.Report.Notes, domain.RecordIssue{
				Entity:         entity,
				SourceID:       d.sourceID,
				Classification: domain.ClassSkipped,
				Message:        "deleted in the legacy system, will be skipped",
			})
		case done:
			counts.Skipped++
			classes[d.sourceID] = domain.ClassSkipped
			r.Report.Notes = append(r.Report.Notes, domain.RecordIssue{
				Entity:         entity,
				SourceID:       d.sourceID,
				Classification: domain.ClassSkipped,
				Message:        fmt.Sprintf("already migrated by migration %s, will be skipped", prior),
			})
		case !r.linkable[d.customerRef]:
			counts.Orphaned++
			classes[d.sourceID] = domain.ClassOrphaned
			r.Report.Issues = append(r.Report.Issues, domain.RecordIssue{
				Entity:         entity,
				SourceID:       d.sourceID,
				Classification: domain.ClassOrphaned,
				Message:        fmt.Sprintf("%s references customer %d which is not in this export", label, d.customerRef),
			})
		default:
			counts.Valid++
			classes[d.sourceID] = domain.ClassValid
		}
	}

	r.Report.Entities[entity] = counts
	r.classes[entity] = classes
}

// summarize 生成警告并计算 Valid / Blocking
func (r *Result) summarize(mode domain.ConflictMode) {
	report := r.Report
	customers := report.Entity(domain.EntityCustomers)

	if customers.Duplicates > 0 {
		report.Warnings = append(report.Warnings,
			fmt.Sprintf("%d customer(s) have PMB numbers that already exist", customers.Duplicates))
	}
	if customers.Invalid > 0 {
		report.Warnings = append(report.Warnings,
			fmt.Sprintf("%d customer(s) are missing required fields", customers.Invalid))
	}

	entities := make([]string, 0, len(report.Entities))
	for name := range report.Entities {
		entities = append(entities, name)
	}
	sort.Strings(entities)
	for _, name := range entities {
		if n := report.Entities[name].Orphaned; n > 0 {
			report.Warnings = append(report.Warnings,
				fmt.Sprintf("%d %s reference customers not in this export", n, name))
		}
	}

	report.Valid = customers.Invalid == 0 && customers.Duplicates == 0 && len(report.Warnings) == 0
	report.Blocking = customers.Invalid > 0 || (customers.Duplicates > 0 && mode == "")
}

// describe 把校验错误压缩成字段列表
func describe(err error) string {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err.Error()
	}
	fields := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		if fe.Tag() == "required" {
			fields = append(fields, fe.Field())
			continue
		}
		fields = append(fields, fe.Field()+" ("+fe.Tag()+" "+fe.Param()+")")
	}
	return strings.Join(fields, ", ")
}
