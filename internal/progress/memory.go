package progress

import (
	"context"
	"sort"
	"sync"

	"legacymigrate/backend/internal/domain"
)

// MemoryStore 使用读写锁保护的内存进度账本
type MemoryStore struct {
	mu       sync.RWMutex
	jobs     map[string]*domain.MigrationProgress
	byTenant map[string]map[string]struct{}
}

// NewMemoryStore 创建内存进度账本
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs:     make(map[string]*domain.MigrationProgress),
		byTenant: make(map[string]map[string]struct{}),
	}
}

func (s *MemoryStore) Init(_ context.Context, p *domain.MigrationProgress) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[p.MigrationID]; ok {
		return ErrExists
	}
	s.jobs[p.MigrationID] = p.Clone()
	if s.byTenant[p.TenantID] == nil {
		s.byTenant[p.TenantID] = make(map[string]struct{})
	}
	s.byTenant[p.TenantID][p.MigrationID] = struct{}{}
	return nil
}

func (s *MemoryStore) Get(_ context.Context, migrationID string) (*domain.MigrationProgress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.jobs[migrationID]
	if !ok {
		return nil, ErrNotFound
	}
	return p.Clone(), nil
}

func (s *MemoryStore) Update(_ context.Context, migrationID string, fn UpdateFunc) (*domain.MigrationProgress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.jobs[migrationID]
	if !ok {
		return nil, ErrNotFound
	}
	next := current.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	s.jobs[migrationID] = next
	return next.Clone(), nil
}

func (s *MemoryStore) ListByTenant(_ context.Context, tenantID string) ([]*domain.MigrationProgress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.MigrationProgress, 0, len(s.byTenant[tenantID]))
	for id := range s.byTenant[tenantID] {
		out = append(out, s.jobs[id].Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	return out, nil
}
