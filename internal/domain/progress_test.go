package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationStatusTransitions(t *testing.T) {
	tests := []struct {
		name     string
		from, to MigrationStatus
		expected bool
	}{
		{"pending到analyzing", MigrationPending, MigrationAnalyzing, true},
		{"pending直接失败", MigrationPending, MigrationFailed, true},
		{"analyzing到migrating", MigrationAnalyzing, MigrationMigrating, true},
		{"migrating到completed", MigrationMigrating, MigrationCompleted, true},
		{"migrating到failed", MigrationMigrating, MigrationFailed, true},
		{"completed可回滚", MigrationCompleted, MigrationRolledBack, true},
		{"pending不能跳到completed", MigrationPending, MigrationCompleted, false},
		{"failed不能回滚", MigrationFailed, MigrationRolledBack, false},
		{"rolled_back是终态", MigrationRolledBack, MigrationPending, false},
		{"completed不能回到migrating", MigrationCompleted, MigrationMigrating, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.from.CanTransition(tt.to))
		})
	}

	t.Run("终态与活动态互斥", func(t *testing.T) {
		for _, s := range []MigrationStatus{
			MigrationPending, MigrationAnalyzing, MigrationMigrating,
			MigrationCompleted, MigrationFailed, MigrationRolledBack,
		} {
			assert.NotEqual(t, s.IsTerminal(), s.IsActive(), s)
		}
	})
}

func TestMigrationProgress(t *testing.T) {
	now := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)

	t.Run("新建记录所有实体为pending", func(t *testing.T) {
		p := NewMigrationProgress("m1", "t1", now)
		assert.Equal(t, MigrationPending, p.Status)
		assert.Len(t, p.Entities, len(EntityOrder))
		for _, name := range EntityOrder {
			assert.Equal(t, EntityPending, p.Entities[name].Status)
		}
		assert.NotNil(t, p.Errors)
		assert.True(t, p.CanCancel())
		assert.False(t, p.CanRollback())
	})

	t.Run("Clone返回独立副本", func(t *testing.T) {
		p := NewMigrationProgress("m1", "t1", now)
		eta := 12.5
		p.EstimatedTimeRemaining = &eta
		p.Errors = append(p.Errors, MigrationError{Entity: EntityCustomers, SourceID: "1", Message: "x"})

		cp := p.Clone()
		cp.Entities[EntityCustomers] = EntityProgress{Total: 99}
		cp.Errors[0].Message = "changed"
		*cp.EstimatedTimeRemaining = 1

		assert.Equal(t, 0, p.Entities[EntityCustomers].Total)
		assert.Equal(t, "x", p.Errors[0].Message)
		assert.Equal(t, 12.5, *p.EstimatedTimeRemaining)
	})

	t.Run("Totals汇总各实体计数", func(t *testing.T) {
		p := NewMigrationProgress("m1", "t1", now)
		p.Entities[EntityCustomers] = EntityProgress{Total: 5, Migrated: 3, Skipped: 1, Errors: 1}
		p.Entities[EntityPackages] = EntityProgress{Total: 4, Migrated: 4}

		migrated, skipped, errs := p.Totals()
		assert.Equal(t, 7, migrated)
		assert.Equal(t, 1, skipped)
		assert.Equal(t, 1, errs)
		assert.Equal(t, 5, p.Entities[EntityCustomers].Processed())
	})

	t.Run("只有completed可以回滚", func(t *testing.T) {
		p := NewMigrationProgress("m1", "t1", now)
		p.Status = MigrationCompleted
		assert.True(t, p.CanRollback())
		assert.False(t, p.CanCancel())
	})
}

func TestDateRange(t *testing.T) {
	var r DateRange
	r.Include(nil)
	assert.Nil(t, r.Min)

	a := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	b := time.Date(2018, 6, 1, 0, 0, 0, 0, time.UTC)
	c := time.Date(2023, 2, 1, 0, 0, 0, 0, time.UTC)
	r.Include(&a)
	r.Include(&b)
	r.Include(&c)

	require.NotNil(t, r.Min)
	require.NotNil(t, r.Max)
	assert.True(t, b.Equal(*r.Min))
	assert.True(t, c.Equal(*r.Max))
}

func TestMigrationOptionsIncludes(t *testing.T) {
	opts := DefaultMigrationOptions()
	for _, name := range EntityOrder {
		assert.True(t, opts.Includes(name), name)
	}
	opts.IncludeTransactions = false
	assert.False(t, opts.Includes(EntityInvoices))
	assert.False(t, opts.Includes("unknown"))
	assert.Equal(t, ConflictSkip, opts.ConflictResolution)
}
