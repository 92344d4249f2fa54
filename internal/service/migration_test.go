package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"legacymigrate/backend/internal/cache"
	"legacymigrate/backend/internal/config"
	"legacymigrate/backend/internal/domain"
	"legacymigrate/backend/internal/progress"
	"legacymigrate/backend/internal/storage"
	"legacymigrate/backend/internal/storage/memory"
)

const tenant = "store-wi-501"

func testExport() Export {
	return Export{
		SourceFile:      "wi501.zip",
		DatabaseVersion: "7.2",
		Tables: map[string]string{
			"CUSTOMER.csv": "CUSTOMERID,FIRSTNAME,LASTNAME,EMAIL,ADDDATE,DELETED\n" +
				"501,Ada,Lovelace,ada@example.com,2019-03-01,0\n" +
				"502,Alan,Turing,,2019-04-01,0\n" +
				"503,Grace,Hopper,,2020-01-15,0\n",
			"MBDETAIL.csv": "MBDETAILID,MAILBOXNUMBER,CUSTOMERREF,STATUS,OPENDATE,PERMONTHRATE\n" +
				"1,12,501,1,2019-03-01,24.10\n",
			"SHIPTO.csv": "SHIPTOID,FIRSTNAME,LASTNAME,ADDRESS1,CITY,STATE,ZIPCODE,LASTCUSTREF,DELETED\n" +
				"10,Ada,Lovelace,1 Main St,Madison,WI,53703,501,0\n" +
				"11,Old,Address,2 Side St,Madison,WI,53703,502,1\n",
			"PACKAGES.csv": "PKGRECVXNID,CARRIERNAME,TRACKINGNUMBER,DTG,STATUS,PKGTYPE,CUSTOMERREF\n" +
				"100,UPS,1Z100,2021-05-01 10:00:00,1,1,501\n" +
				"101,FedEx,7700101,2021-05-02 11:00:00,1,1,503\n",
			"BILLING.csv": "SHIPMENTXNID,CUSTOMERREF,CARRIERNAME,SHIPTOADDRESS1,SHIPTOCITY,SHIPMENTRETAIL,TRANSACTIONDTG,VOIDED\n" +
				"200,502,USPS,9 Oak Ave,Chicago,12.50,2021-06-01 09:00:00,0\n",
			"PRODUCT.csv": "PRODUCTID,NAME\n1,Tape\n2,Box\n",
		},
	}
}

type harness struct {
	svc     *MigrationService
	store   *memory.Store
	tracker *progress.Tracker
}

func testConfig() config.MigrationConfig {
	return config.MigrationConfig{
		DefaultChunk: 1,
		Workers:      1,
		ChunkTimeout: time.Second,
		RetryBackoff: time.Millisecond,
	}
}

func newHarness(t *testing.T, store storage.Store) *harness {
	t.Helper()
	var mem *memory.Store
	switch s := store.(type) {
	case nil:
		mem = memory.NewStore()
		store = mem
	case *memory.Store:
		mem = s
	case *flakyStore:
		mem = s.Store
	case *gatedStore:
		mem = s.Store
	}
	tracker := progress.NewTracker(progress.NewMemoryStore(), nil, zap.NewNop())
	svc := NewMigrationService(store, tracker, testConfig(), zap.NewNop())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = svc.Shutdown(ctx)
	})
	return &harness{svc: svc, store: mem, tracker: tracker}
}

func (h *harness) wait(t *testing.T, id string) *domain.MigrationProgress {
	t.Helper()
	var p *domain.MigrationProgress
	require.Eventually(t, func() bool {
		got, err := h.svc.Progress(context.Background(), id)
		if err != nil {
			return false
		}
		p = got
		return got.Status.IsTerminal()
	}, 5*time.Second, 5*time.Millisecond)

	// 任务结束后租户才会释放
	require.Eventually(t, func() bool {
		h.svc.mu.Lock()
		defer h.svc.mu.Unlock()
		_, running := h.svc.running[id]
		return !running
	}, 5*time.Second, 5*time.Millisecond)
	return p
}

func (h *harness) run(t *testing.T, in StartInput) *domain.MigrationProgress {
	t.Helper()
	started, err := h.svc.Start(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, domain.MigrationMigrating, started.Status)
	return h.wait(t, started.MigrationID)
}

func TestMigrationService_EndToEnd(t *testing.T) {
	h := newHarness(t, nil)
	p := h.run(t, StartInput{TenantID: tenant, Export: testExport(), Options: domain.DefaultMigrationOptions()})

	assert.Equal(t, domain.MigrationCompleted, p.Status)
	assert.Equal(t, domain.OutcomeCompleted, p.Outcome)
	assert.Empty(t, p.Errors)

	expect := map[string]domain.EntityProgress{
		domain.EntityCustomers: {Total: 3, Migrated: 3, Status: domain.EntityCompleted},
		domain.EntityAddresses: {Total: 2, Migrated: 1, Skipped: 1, Status: domain.EntityCompleted},
		domain.EntityPackages:  {Total: 2, Migrated: 2, Status: domain.EntityCompleted},
		domain.EntityShipments: {Total: 1, Migrated: 1, Status: domain.EntityCompleted},
		domain.EntityInvoices:  {Total: 1, Migrated: 1, Status: domain.EntityCompleted},
		domain.EntityProducts:  {Total: 2, Skipped: 2, Status: domain.EntitySkipped},
	}
	assert.Equal(t, expect, p.Entities)
	assert.Equal(t, p.TotalProgress, p.CurrentProgress)

	assert.Equal(t, map[string]int{
		domain.EntityCustomers: 3,
		domain.EntityAddresses: 1,
		domain.EntityPackages:  2,
		domain.EntityShipments: 1,
		domain.EntityInvoices:  1,
	}, h.store.Counts())

	t.Run("依赖记录关联到迁移后的客户", func(t *testing.T) {
		refs, err := h.store.ListCustomerRefs(context.Background(), tenant)
		require.NoError(t, err)
		ids := make(map[int64]string)
		for _, ref := range refs {
			ids[ref.SourceID] = ref.ID
			assert.Equal(t, p.MigrationID, ref.MigrationID)
		}
		assert.Equal(t, "PMB-0012", pmbOf(refs, 501))
		assert.Equal(t, "WI-502", pmbOf(refs, 502))

		pkgs := h.store.Packages()
		require.Len(t, pkgs, 2)
		assert.Equal(t, ids[501], pkgs[0].CustomerID)
		assert.Equal(t, ids[503], pkgs[1].CustomerID)
	})

	t.Run("任务记录", func(t *testing.T) {
		runs, err := h.svc.History(context.Background(), tenant)
		require.NoError(t, err)
		require.Len(t, runs, 1)
		assert.Equal(t, domain.MigrationCompleted, runs[0].Status)
		assert.Equal(t, domain.OutcomeCompleted, runs[0].Outcome)
		assert.Equal(t, p.MigrationID, runs[0].WriteTag)
		assert.Equal(t, 8, runs[0].Migrated)
		assert.Equal(t, 3, runs[0].Skipped)
		assert.NotNil(t, runs[0].CompletedAt)
	})
}

func pmbOf(refs []domain.CustomerRef, sourceID int64) string {
	for _, ref := range refs {
		if ref.SourceID == sourceID {
			return ref.PMB
		}
	}
	return ""
}

func TestMigrationService_Orphans(t *testing.T) {
	h := newHarness(t, nil)
	e := testExport()
	e.Tables["PACKAGES.csv"] += "102,UPS,1Z102,2021-05-03 10:00:00,1,1,999\n"

	p := h.run(t, StartInput{TenantID: tenant, Export: e, Options: domain.DefaultMigrationOptions()})

	assert.Equal(t, domain.MigrationCompleted, p.Status)
	assert.Equal(t, domain.OutcomeCompletedWithErrors, p.Outcome)
	assert.Equal(t, domain.EntityProgress{Total: 3, Migrated: 2, Skipped: 1, Status: domain.EntityCompleted},
		p.Entities[domain.EntityPackages])
	require.Len(t, p.Errors, 1)
	assert.Equal(t, domain.EntityPackages, p.Errors[0].Entity)
	assert.Equal(t, "102", p.Errors[0].SourceID)
	assert.Contains(t, p.Errors[0].Message, "999")
}

func TestMigrationService_Conflicts(t *testing.T) {
	seed := func(h *harness) string {
		return h.store.SeedCustomer(domain.Customer{
			TenantID:  tenant,
			FirstName: "Ada",
			LastName:  "Lovelace",
			PMB:       "pmb-0012",
		})
	}

	t.Run("未选择处理方式时拒绝开始", func(t *testing.T) {
		h := newHarness(t, nil)
		seed(h)
		opts := domain.DefaultMigrationOptions()
		opts.ConflictResolution = ""

		_, err := h.svc.Start(context.Background(), StartInput{TenantID: tenant, Export: testExport(), Options: opts})
		require.ErrorIs(t, err, ErrValidationBlocked)
		assert.Contains(t, err.Error(), "already exist")

		runs, err := h.svc.History(context.Background(), tenant)
		require.NoError(t, err)
		require.Len(t, runs, 1)
		assert.Equal(t, domain.MigrationFailed, runs[0].Status)
		assert.Equal(t, 1, h.store.Counts()[domain.EntityCustomers])

		// 租户已释放，接受缺陷后可以继续
		opts.AcceptDefects = true
		p := h.run(t, StartInput{TenantID: tenant, Export: testExport(), Options: opts})
		assert.Equal(t, 1, p.Entities[domain.EntityCustomers].Skipped)
	})

	t.Run("skip", func(t *testing.T) {
		h := newHarness(t, nil)
		seed(h)
		p := h.run(t, StartInput{TenantID: tenant, Export: testExport(), Options: domain.DefaultMigrationOptions()})

		assert.Equal(t, domain.EntityProgress{Total: 3, Migrated: 2, Skipped: 1, Status: domain.EntityCompleted},
			p.Entities[domain.EntityCustomers])
		// 被跳过客户的包裹与地址成为孤儿
		assert.Equal(t, 1, p.Entities[domain.EntityPackages].Skipped)
		assert.Equal(t, 2, p.Entities[domain.EntityAddresses].Skipped)
		assert.Equal(t, domain.OutcomeCompletedWithErrors, p.Outcome)
		assert.Equal(t, 3, h.store.Counts()[domain.EntityCustomers])
	})

	t.Run("merge", func(t *testing.T) {
		h := newHarness(t, nil)
		existing := seed(h)
		opts := domain.DefaultMigrationOptions()
		opts.ConflictResolution = domain.ConflictMerge

		p := h.run(t, StartInput{TenantID: tenant, Export: testExport(), Options: opts})
		assert.Equal(t, domain.OutcomeCompleted, p.Outcome)
		assert.Equal(t, 3, p.Entities[domain.EntityCustomers].Migrated)
		assert.Equal(t, 3, h.store.Counts()[domain.EntityCustomers])

		c, err := h.store.GetCustomer(context.Background(), tenant, existing)
		require.NoError(t, err)
		assert.Equal(t, "ada@example.com", c.Email)
		assert.Equal(t, "pmb-0012", c.PMB)
		assert.Empty(t, c.MigrationID)

		pkgs := h.store.Packages()
		require.Len(t, pkgs, 2)
		assert.Equal(t, existing, pkgs[0].CustomerID)

		t.Run("回滚不删除合并目标", func(t *testing.T) {
			res, err := h.svc.Rollback(context.Background(), p.MigrationID)
			require.NoError(t, err)
			assert.Equal(t, int64(2), res.Deleted[domain.EntityCustomers])
			_, err = h.store.GetCustomer(context.Background(), tenant, existing)
			assert.NoError(t, err)
		})
	})

	t.Run("create_new", func(t *testing.T) {
		h := newHarness(t, nil)
		seed(h)
		opts := domain.DefaultMigrationOptions()
		opts.ConflictResolution = domain.ConflictCreateNew

		p := h.run(t, StartInput{TenantID: tenant, Export: testExport(), Options: opts})
		assert.Equal(t, domain.OutcomeCompleted, p.Outcome)
		assert.Equal(t, 4, h.store.Counts()[domain.EntityCustomers])

		refs, err := h.store.ListCustomerRefs(context.Background(), tenant)
		require.NoError(t, err)
		assert.Equal(t, "PMB-0012-501", pmbOf(refs, 501))
	})
}

// flakyStore 指定实体的写入按 mock 约定失败
type flakyStore struct {
	*memory.Store
	mock.Mock
}

func (s *flakyStore) UpsertPackages(ctx context.Context, rows []domain.Package) ([]storage.WriteResult, error) {
	args := s.Called(rows[0].SourceID)
	if err := args.Error(0); err != nil {
		return nil, err
	}
	return s.Store.UpsertPackages(ctx, rows)
}

func TestMigrationService_Reimport(t *testing.T) {
	h := newHarness(t, nil)
	first := h.run(t, StartInput{TenantID: tenant, Export: testExport(), Options: domain.DefaultMigrationOptions()})
	require.Equal(t, domain.OutcomeCompleted, first.Outcome)
	before := h.store.Counts()

	second := h.run(t, StartInput{TenantID: tenant, Export: testExport(), Options: domain.DefaultMigrationOptions()})
	assert.Equal(t, domain.MigrationCompleted, second.Status)
	assert.Equal(t, 3, second.Entities[domain.EntityCustomers].Skipped)
	assert.Equal(t, domain.EntityProgress{Total: 2, Skipped: 2, Status: domain.EntityCompleted},
		second.Entities[domain.EntityPackages])
	assert.Equal(t, 0, second.Entities[domain.EntityInvoices].Migrated)

	// 第二次导入不产生新行
	assert.Equal(t, before, h.store.Counts())
}

func TestMigrationService_ChunkFailure(t *testing.T) {
	store := &flakyStore{Store: memory.NewStore()}
	store.On("UpsertPackages", int64(100)).Return(errors.New("deadlock detected"))
	store.On("UpsertPackages", int64(101)).Return(nil)

	h := newHarness(t, store)
	p := h.run(t, StartInput{TenantID: tenant, Export: testExport(), Options: domain.DefaultMigrationOptions()})

	assert.Equal(t, domain.MigrationCompleted, p.Status)
	assert.Equal(t, domain.OutcomeCompletedWithErrors, p.Outcome)
	assert.Equal(t, domain.EntityProgress{Total: 2, Migrated: 1, Errors: 1, Status: domain.EntityCompleted},
		p.Entities[domain.EntityPackages])
	// 后续实体照常处理
	assert.Equal(t, 1, p.Entities[domain.EntityInvoices].Migrated)

	require.Len(t, p.Errors, 1)
	assert.Equal(t, "100", p.Errors[0].SourceID)
	assert.Contains(t, p.Errors[0].Message, "deadlock detected")
	store.AssertExpectations(t)
}

// gatedStore 客户写入阻塞，直到测试放行
type gatedStore struct {
	*memory.Store
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func newGatedStore() *gatedStore {
	return &gatedStore{
		Store:   memory.NewStore(),
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
}

func (s *gatedStore) UpsertCustomers(ctx context.Context, rows []domain.Customer) ([]storage.WriteResult, error) {
	s.once.Do(func() { close(s.entered) })
	<-s.release
	return s.Store.UpsertCustomers(ctx, rows)
}

func TestMigrationService_Cancel(t *testing.T) {
	store := newGatedStore()
	h := newHarness(t, store)
	ctx := context.Background()

	started, err := h.svc.Start(ctx, StartInput{TenantID: tenant, Export: testExport(), Options: domain.DefaultMigrationOptions()})
	require.NoError(t, err)
	<-store.entered

	t.Run("同一租户只允许一个任务", func(t *testing.T) {
		_, err := h.svc.Start(ctx, StartInput{TenantID: tenant, Export: testExport(), Options: domain.DefaultMigrationOptions()})
		assert.ErrorIs(t, err, ErrMigrationInProgress)
	})

	_, err = h.svc.Cancel(ctx, started.MigrationID)
	require.NoError(t, err)
	close(store.release)

	p := h.wait(t, started.MigrationID)
	assert.Equal(t, domain.MigrationFailed, p.Status)
	assert.Equal(t, domain.OutcomeFailed, p.Outcome)
	require.NotEmpty(t, p.Errors)
	assert.Equal(t, domain.CancelledMessage, p.Errors[len(p.Errors)-1].Message)

	// 进行中的分块写完，之后的分块不再写入
	assert.Equal(t, 1, p.Entities[domain.EntityCustomers].Migrated)
	assert.Equal(t, 0, h.store.Counts()[domain.EntityPackages])

	_, err = h.svc.Cancel(ctx, started.MigrationID)
	assert.ErrorIs(t, err, ErrNotCancellable)
	_, err = h.svc.Rollback(ctx, started.MigrationID)
	assert.ErrorIs(t, err, ErrNotRollbackable)

	t.Run("续跑沿用写入标签", func(t *testing.T) {
		resumed := h.run(t, StartInput{
			TenantID:   tenant,
			Export:     testExport(),
			Options:    domain.DefaultMigrationOptions(),
			ResumeFrom: started.MigrationID,
		})
		assert.Equal(t, domain.OutcomeCompleted, resumed.Outcome)
		assert.Equal(t, 3, h.store.Counts()[domain.EntityCustomers])

		run, err := h.store.GetRun(ctx, resumed.MigrationID)
		require.NoError(t, err)
		assert.Equal(t, started.MigrationID, run.WriteTag)
		assert.Equal(t, started.MigrationID, run.ResumedFrom)

		res, err := h.svc.Rollback(ctx, resumed.MigrationID)
		require.NoError(t, err)
		assert.Equal(t, int64(3), res.Deleted[domain.EntityCustomers])
		assert.Equal(t, 0, h.store.Counts()[domain.EntityCustomers])
	})

	t.Run("只能续跑失败的任务", func(t *testing.T) {
		_, err := h.svc.Start(ctx, StartInput{TenantID: "other", Export: testExport(), ResumeFrom: started.MigrationID})
		assert.ErrorIs(t, err, ErrNotResumable)
	})
}

func TestMigrationService_Rollback(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	p := h.run(t, StartInput{TenantID: tenant, Export: testExport(), Options: domain.DefaultMigrationOptions()})

	res, err := h.svc.Rollback(ctx, p.MigrationID)
	require.NoError(t, err)
	assert.Equal(t, domain.MigrationRolledBack, res.Progress.Status)
	assert.NotNil(t, res.Progress.RolledBackAt)
	assert.Equal(t, map[string]int64{
		domain.EntityCustomers: 3,
		domain.EntityAddresses: 1,
		domain.EntityPackages:  2,
		domain.EntityShipments: 1,
		domain.EntityInvoices:  1,
	}, res.Deleted)
	for entity, n := range h.store.Counts() {
		assert.Zero(t, n, entity)
	}

	_, err = h.svc.Rollback(ctx, p.MigrationID)
	assert.ErrorIs(t, err, ErrNotRollbackable)

	runs, err := h.svc.History(ctx, tenant)
	require.NoError(t, err)
	assert.Equal(t, domain.MigrationRolledBack, runs[0].Status)

	_, err = h.svc.Rollback(ctx, "missing")
	assert.ErrorIs(t, err, ErrMigrationNotFound)
}

func TestMigrationService_ExcludedEntities(t *testing.T) {
	h := newHarness(t, nil)
	opts := domain.DefaultMigrationOptions()
	opts.IncludePackages = false
	opts.IncludeTransactions = false

	p := h.run(t, StartInput{TenantID: tenant, Export: testExport(), Options: opts})
	assert.Equal(t, domain.OutcomeCompleted, p.Outcome)
	assert.Equal(t, domain.EntityProgress{Total: 2, Skipped: 2, Status: domain.EntitySkipped}, p.Entities[domain.EntityPackages])
	assert.Equal(t, domain.EntitySkipped, p.Entities[domain.EntityInvoices].Status)
	assert.Equal(t, 0, h.store.Counts()[domain.EntityPackages])
	assert.Equal(t, 1, h.store.Counts()[domain.EntityShipments])
}

func TestMigrationService_DryRun(t *testing.T) {
	h := newHarness(t, nil)
	h.svc.SetReportCache(cache.NewReportCache(time.Minute, 0))
	ctx := context.Background()

	report, err := h.svc.DryRun(ctx, tenant, testExport(), "")
	require.NoError(t, err)
	assert.True(t, report.Valid)
	assert.False(t, report.Blocking)
	assert.Equal(t, 3, report.Entity(domain.EntityCustomers).Valid)
	assert.Equal(t, 1, report.Entity(domain.EntityAddresses).Skipped)

	again, err := h.svc.DryRun(ctx, tenant, testExport(), "")
	require.NoError(t, err)
	assert.Same(t, report, again)

	t.Run("目标库已有同一信箱编号", func(t *testing.T) {
		h.store.SeedCustomer(domain.Customer{TenantID: tenant, FirstName: "A", LastName: "L", PMB: "PMB-0012"})
		h.svc.reports.InvalidateTenant(tenant)

		report, err := h.svc.DryRun(ctx, tenant, testExport(), "")
		require.NoError(t, err)
		assert.True(t, report.Blocking)
		assert.Equal(t, 1, report.Entity(domain.EntityCustomers).Duplicates)

		report, err = h.svc.DryRun(ctx, tenant, testExport(), domain.ConflictSkip)
		require.NoError(t, err)
		assert.False(t, report.Blocking)
	})

	t.Run("预检不产生写入", func(t *testing.T) {
		assert.Equal(t, 1, h.store.Counts()[domain.EntityCustomers])
	})

	t.Run("参数校验", func(t *testing.T) {
		_, err := h.svc.DryRun(ctx, "", testExport(), "")
		assert.ErrorIs(t, err, ErrTenantRequired)
		_, err = h.svc.DryRun(ctx, tenant, testExport(), "overwrite")
		assert.Error(t, err)
		_, err = h.svc.DryRun(ctx, tenant, Export{Tables: map[string]string{"NOTES.txt": "x\n"}}, "")
		assert.ErrorIs(t, err, ErrEmptyExport)
	})
}

func TestMigrationService_Shutdown(t *testing.T) {
	store := newGatedStore()
	h := newHarness(t, store)
	ctx := context.Background()

	started, err := h.svc.Start(ctx, StartInput{TenantID: tenant, Export: testExport(), Options: domain.DefaultMigrationOptions()})
	require.NoError(t, err)
	<-store.entered

	done := make(chan error, 1)
	go func() { done <- h.svc.Shutdown(ctx) }()
	close(store.release)
	require.NoError(t, <-done)

	p, err := h.svc.Progress(ctx, started.MigrationID)
	require.NoError(t, err)
	assert.Equal(t, domain.MigrationFailed, p.Status)

	_, err = h.svc.Start(ctx, StartInput{TenantID: "other", Export: testExport(), Options: domain.DefaultMigrationOptions()})
	assert.ErrorIs(t, err, ErrServiceShuttingDown)
}
