package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"legacymigrate/backend/internal/domain"
	"legacymigrate/backend/internal/storage"
)

// sourceKey 迁移标签三元组
type sourceKey struct {
	tenant    string
	migration string
	source    int64
}

type rowPtr[T any] interface {
	*T
	domain.Row
}

// table 单个实体的内存表，按主键和迁移标签双重索引
type table[T any, P rowPtr[T]] struct {
	rows     map[string]*T
	bySource map[sourceKey]string
}

func newTable[T any, P rowPtr[T]]() *table[T, P] {
	return &table[T, P]{
		rows:     make(map[string]*T),
		bySource: make(map[sourceKey]string),
	}
}

func (t *table[T, P]) upsert(rows []T) []storage.WriteResult {
	results := make([]storage.WriteResult, 0, len(rows))
	for i := range rows {
		row := rows[i]
		p := P(&row)
		tenant, migration, source := p.Tag()
		k := sourceKey{tenant, migration, source}

		outcome := storage.Created
		if id, ok := t.bySource[k]; ok {
			p.SetID(id)
			outcome = storage.Updated
		} else if p.GetID() == "" {
			p.SetID(uuid.NewString())
		}

		t.rows[p.GetID()] = &row
		t.bySource[k] = p.GetID()
		results = append(results, storage.WriteResult{SourceID: source, ID: p.GetID(), Outcome: outcome})
	}
	return results
}

func (t *table[T, P]) deleteMigration(tenantID, migrationID string) int64 {
	var n int64
	for k, id := range t.bySource {
		if k.tenant == tenantID && k.migration == migrationID {
			delete(t.bySource, k)
			delete(t.rows, id)
			n++
		}
	}
	return n
}

// sources 返回租户下由迁移写入的来源 ID 及其标签
func (t *table[T, P]) sources(tenantID string) map[int64]string {
	out := make(map[int64]string)
	for k := range t.bySource {
		if k.tenant == tenantID && k.migration != "" {
			out[k.source] = k.migration
		}
	}
	return out
}

func (t *table[T, P]) count() int {
	return len(t.rows)
}

// Store 使用内存保存目标库数据，主要用于开发验证和测试。
type Store struct {
	mu        sync.RWMutex
	customers *table[domain.Customer, *domain.Customer]
	addresses *table[domain.Address, *domain.Address]
	packages  *table[domain.Package, *domain.Package]
	shipments *table[domain.Shipment, *domain.Shipment]
	invoices  *table[domain.Invoice, *domain.Invoice]
	runs      map[string]domain.MigrationRun
}

// NewStore 创建一个内存存储实例。
func NewStore() *Store {
	return &Store{
		customers: newTable[domain.Customer, *domain.Customer](),
		addresses: newTable[domain.Address, *domain.Address](),
		packages:  newTable[domain.Package, *domain.Package](),
		shipments: newTable[domain.Shipment, *domain.Shipment](),
		invoices:  newTable[domain.Invoice, *domain.Invoice](),
		runs:      make(map[string]domain.MigrationRun),
	}
}

// SeedCustomer 写入一个非迁移产生的客户，模拟目标租户已有数据
func (s *Store) SeedCustomer(c domain.Customer) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	s.customers.rows[c.ID] = &c
	if c.MigrationID != "" {
		s.customers.bySource[sourceKey{c.TenantID, c.MigrationID, c.SourceID}] = c.ID
	}
	return c.ID
}

// ListCustomerRefs 返回租户下所有客户的标识信息
func (s *Store) ListCustomerRefs(_ context.Context, tenantID string) ([]domain.CustomerRef, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	refs := make([]domain.CustomerRef, 0, s.customers.count())
	for _, c := range s.customers.rows {
		if c.TenantID != tenantID {
			continue
		}
		refs = append(refs, domain.CustomerRef{
			ID:          c.ID,
			PMB:         c.PMB,
			SourceID:    c.SourceID,
			MigrationID: c.MigrationID,
		})
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].ID < refs[j].ID })
	return refs, nil
}

// ListMigratedSources 返回依赖实体中由迁移写入的来源 ID
func (s *Store) ListMigratedSources(_ context.Context, tenantID string) (map[string]map[int64]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return map[string]map[int64]string{
		domain.EntityAddresses: s.addresses.sources(tenantID),
		domain.EntityPackages:  s.packages.sources(tenantID),
		domain.EntityShipments: s.shipments.sources(tenantID),
		domain.EntityInvoices:  s.invoices.sources(tenantID),
	}, nil
}

// GetCustomer 根据 ID 获取客户
func (s *Store) GetCustomer(_ context.Context, tenantID, id string) (*domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.customers.rows[id]
	if !ok || c.TenantID != tenantID {
		return nil, storage.ErrCustomerNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *Store) UpsertCustomers(_ context.Context, rows []domain.Customer) ([]storage.WriteResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.customers.upsert(rows), nil
}

func (s *Store) UpsertAddresses(_ context.Context, rows []domain.Address) ([]storage.WriteResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addresses.upsert(rows), nil
}

func (s *Store) UpsertPackages(_ context.Context, rows []domain.Package) ([]storage.WriteResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.packages.upsert(rows), nil
}

func (s *Store) UpsertShipments(_ context.Context, rows []domain.Shipment) ([]storage.WriteResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shipments.upsert(rows), nil
}

func (s *Store) UpsertInvoices(_ context.Context, rows []domain.Invoice) ([]storage.WriteResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.invoices.upsert(rows), nil
}

// MergeCustomer 补全已有客户的空字段
func (s *Store) MergeCustomer(_ context.Context, tenantID, id string, patch domain.Customer) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.customers.rows[id]
	if !ok || c.TenantID != tenantID {
		return false, storage.ErrCustomerNotFound
	}
	return c.FillEmpty(patch), nil
}

// DeleteByMigration 按迁移标签删除所有实体的行
func (s *Store) DeleteByMigration(_ context.Context, tenantID, migrationID string) (map[string]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// 依赖实体先删
	return map[string]int64{
		domain.EntityInvoices:  s.invoices.deleteMigration(tenantID, migrationID),
		domain.EntityShipments: s.shipments.deleteMigration(tenantID, migrationID),
		domain.EntityPackages:  s.packages.deleteMigration(tenantID, migrationID),
		domain.EntityAddresses: s.addresses.deleteMigration(tenantID, migrationID),
		domain.EntityCustomers: s.customers.deleteMigration(tenantID, migrationID),
	}, nil
}

// Counts 各实体当前行数
func (s *Store) Counts() map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return map[string]int{
		domain.EntityCustomers: s.customers.count(),
		domain.EntityAddresses: s.addresses.count(),
		domain.EntityPackages:  s.packages.count(),
		domain.EntityShipments: s.shipments.count(),
		domain.EntityInvoices:  s.invoices.count(),
	}
}

// Packages 返回所有包裹的副本
func (s *Store) Packages() []domain.Package {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Package, 0, s.packages.count())
	for _, p := range s.packages.rows {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SourceID < out[j].SourceID })
	return out
}

func (s *Store) SaveRun(_ context.Context, run *domain.MigrationRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[run.ID] = *run
	return nil
}

func (s *Store) GetRun(_ context.Context, id string) (*domain.MigrationRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[id]
	if !ok {
		return nil, storage.ErrRunNotFound
	}
	return &run, nil
}

func (s *Store) ListRuns(_ context.Context, tenantID string) ([]domain.MigrationRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.MigrationRun, 0)
	for _, run := range s.runs {
		if run.TenantID == tenantID {
			out = append(out, run)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	return out, nil
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Close() error { return nil }

var _ storage.Store = (*Store)(nil)
