package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"legacymigrate/backend/internal/domain"
	"legacymigrate/backend/internal/dryrun"
	"legacymigrate/backend/internal/loader"
	"legacymigrate/backend/internal/storage"
)

// plan 预检通过后交给后台执行的全部输入
type plan struct {
	records  dryrun.Input
	result   *dryrun.Result
	options  domain.MigrationOptions
	totals   map[string]int
	products int
}

// conflictMode 未选择冲突处理方式但接受缺陷时，重复客户按跳过处理
func (p plan) conflictMode() domain.ConflictMode {
	if p.options.ConflictResolution == "" {
		return domain.ConflictSkip
	}
	return p.options.ConflictResolution
}

// entityOutcome 单个实体的最终计数，migrated + skipped + errs 等于该实体记录总数
type entityOutcome struct {
	migrated, skipped, errs int
	entries                 []domain.MigrationError
	cancelled               bool
}

func (o *entityOutcome) skip(entity string, sourceID int64, message string) {
	o.skipped++
	if message != "" {
		o.entries = append(o.entries, domain.MigrationError{
			Entity:   entity,
			SourceID: fmt.Sprintf("%d", sourceID),
			Message:  message,
		})
	}
}

func (o *entityOutcome) addChunkErrors(entity string, res *loader.Result) {
	o.errs += res.Failed
	o.cancelled = o.cancelled || res.Cancelled
	for _, ce := range res.Errors {
		o.entries = append(o.entries, domain.MigrationError{
			Entity:   entity,
			SourceID: ce.SourceRange(),
			Message:  ce.Err.Error(),
		})
	}
}

// linkTable 客户来源 ID -> 目标库客户 ID
//
// 本次写入或关联的客户优先；其次是之前任务写入、带有同一来源 ID 的客户。
type linkTable struct {
	mu     sync.RWMutex
	links  map[int64]string
	result *dryrun.Result
}

func newLinkTable(result *dryrun.Result) *linkTable {
	return &linkTable{links: make(map[int64]string), result: result}
}

func (l *linkTable) set(sourceID int64, id string) {
	l.mu.Lock()
	l.links[sourceID] = id
	l.mu.Unlock()
}

func (l *linkTable) resolve(sourceID int64) (string, bool) {
	l.mu.RLock()
	id, ok := l.links[sourceID]
	l.mu.RUnlock()
	if ok {
		return id, true
	}
	if ref, known := l.result.KnownCustomer(sourceID); known {
		return ref.ID, true
	}
	return "", false
}

// issueMessages 预检问题按 实体/来源 ID 建立索引
func issueMessages(report *domain.DryRunReport) map[string]map[int64]string {
	index := make(map[string]map[int64]string)
	for _, issue := range report.Issues {
		if index[issue.Entity] == nil {
			index[issue.Entity] = make(map[int64]string)
		}
		index[issue.Entity][issue.SourceID] = issue.Message
	}
	return index
}

// execute 按依赖顺序导入各实体，最后给出任务结果
//
// 取消在实体之间与分块之间生效；进行中的分块写完后任务进入 failed。
func (s *MigrationService) execute(ctx context.Context, j *job, run *domain.MigrationRun, p plan, log *zap.Logger) {
	bg := context.WithoutCancel(ctx)
	links := newLinkTable(p.result)
	issues := issueMessages(p.result.Report)

	defer func() {
		if r := recover(); r != nil {
			log.Error("migration panicked", zap.Any("panic", r), zap.Stack("stack"))
			s.failRun(bg, run, fmt.Sprintf("internal error: %v", r), log)
			if s.metrics != nil {
				s.metrics.MigrationFinished(domain.OutcomeFailed)
			}
		}
	}()

	for _, entity := range domain.EntityOrder {
		if ctx.Err() != nil {
			s.cancelled(bg, run, log)
			return
		}

		if entity == domain.EntityProducts || !p.options.Includes(entity) {
			// 商品目录没有对应的目标实体，只计数
			if err := s.tracker.SkipEntity(bg, j.id, entity, p.totals[entity]); err != nil {
				s.failRun(bg, run, err.Error(), log)
				return
			}
			if s.metrics != nil {
				s.metrics.RecordEntity(entity, 0, p.totals[entity], 0)
			}
			continue
		}

		if err := s.tracker.StartEntity(bg, j.id, entity); err != nil {
			s.failRun(bg, run, err.Error(), log)
			return
		}

		started := time.Now()
		var out *entityOutcome
		switch entity {
		case domain.EntityCustomers:
			out = s.migrateCustomers(ctx, j, p, links, issues, log)
		case domain.EntityAddresses:
			out = migrateDependents(ctx, s, j, p, links, issues, log, dependentSpec[domain.MappedAddress, domain.Address]{
				entity:     entity,
				records:    p.records.Addresses,
				customerOf: func(a domain.MappedAddress) int64 { return a.CustomerSourceID },
				convert:    toAddress,
				upsert:     s.store.UpsertAddresses,
			})
		case domain.EntityPackages:
			out = migrateDependents(ctx, s, j, p, links, issues, log, dependentSpec[domain.MappedPackage, domain.Package]{
				entity:     entity,
				records:    p.records.Packages,
				customerOf: func(pk domain.MappedPackage) int64 { return pk.CustomerSourceID },
				convert:    toPackage,
				upsert:     s.store.UpsertPackages,
			})
		case domain.EntityShipments:
			out = migrateDependents(ctx, s, j, p, links, issues, log, dependentSpec[domain.MappedShipment, domain.Shipment]{
				entity:     entity,
				records:    p.records.Shipments,
				customerOf: func(sh domain.MappedShipment) int64 { return sh.CustomerSourceID },
				convert:    toShipment,
				upsert:     s.store.UpsertShipments,
			})
		case domain.EntityInvoices:
			out = migrateDependents(ctx, s, j, p, links, issues, log, dependentSpec[domain.MappedInvoice, domain.Invoice]{
				entity:     entity,
				records:    p.records.Invoices,
				customerOf: func(i domain.MappedInvoice) int64 { return i.CustomerSourceID },
				convert:    toInvoice,
				upsert:     s.store.UpsertInvoices,
			})
		}

		if err := s.finishEntity(bg, j.id, entity, out); err != nil {
			s.failRun(bg, run, err.Error(), log)
			return
		}
		log.Info("entity migrated",
			zap.String("entity", entity),
			zap.Int("migrated", out.migrated),
			zap.Int("skipped", out.skipped),
			zap.Int("errors", out.errs),
			zap.Duration("duration", time.Since(started)))

		if out.cancelled {
			s.cancelled(bg, run, log)
			return
		}
	}

	final, err := s.tracker.Complete(bg, j.id)
	if err != nil {
		s.failRun(bg, run, err.Error(), log)
		if s.metrics != nil {
			s.metrics.MigrationFinished(domain.OutcomeFailed)
		}
		return
	}
	s.closeRun(bg, run, final, log)
	if s.metrics != nil {
		s.metrics.MigrationFinished(final.Outcome)
	}
	migrated, skipped, errs := final.Totals()
	log.Info("migration finished",
		zap.String("outcome", final.Outcome),
		zap.Int("migrated", migrated),
		zap.Int("skipped", skipped),
		zap.Int("errors", errs))
}

func (s *MigrationService) cancelled(ctx context.Context, run *domain.MigrationRun, log *zap.Logger) {
	log.Warn("migration cancelled")
	s.failRun(ctx, run, domain.CancelledMessage, log)
	if s.metrics != nil {
		s.metrics.MigrationFinished(domain.OutcomeFailed)
	}
}

func (s *MigrationService) finishEntity(ctx context.Context, migrationID, entity string, out *entityOutcome) error {
	if err := s.tracker.AddErrors(ctx, migrationID, out.entries...); err != nil {
		return err
	}
	if err := s.tracker.FinishEntity(ctx, migrationID, entity, out.migrated, out.skipped, out.errs); err != nil {
		return err
	}
	if s.metrics != nil {
		s.metrics.RecordEntity(entity, out.migrated, out.skipped, out.errs)
	}
	return nil
}

// migrateCustomers 写入客户并建立来源 ID 到目标库 ID 的关联
func (s *MigrationService) migrateCustomers(ctx context.Context, j *job, p plan, links *linkTable, issues map[string]map[int64]string, log *zap.Logger) *entityOutcome {
	entity := domain.EntityCustomers
	out := &entityOutcome{}
	mode := p.conflictMode()

	type merge struct {
		record domain.MappedCustomer
		target string
	}
	var (
		toWrite []domain.MappedCustomer
		merges  []merge
	)

	for _, c := range p.records.Customers {
		switch p.result.Class(entity, c.SourceID) {
		case domain.ClassValid:
			toWrite = append(toWrite, c)
		case domain.ClassDuplicate:
			ref, conflict := p.result.ConflictFor(c.SourceID)
			switch {
			case mode == domain.ConflictMerge && conflict:
				merges = append(merges, merge{record: c, target: ref.ID})
			case mode == domain.ConflictCreateNew:
				c.PMB = fmt.Sprintf("%s-%d", c.PMB, c.SourceID)
				toWrite = append(toWrite, c)
			default:
				out.skip(entity, c.SourceID, "")
			}
		default:
			out.skip(entity, c.SourceID, issues[entity][c.SourceID])
		}
	}

	for _, m := range merges {
		if ctx.Err() != nil {
			out.cancelled = true
			break
		}
		patch := toCustomer(m.record, j.tenantID, j.tag)
		if _, err := s.store.MergeCustomer(context.WithoutCancel(ctx), j.tenantID, m.target, patch); err != nil {
			out.errs++
			out.entries = append(out.entries, domain.MigrationError{
				Entity:   entity,
				SourceID: fmt.Sprintf("%d", m.record.SourceID),
				Message:  "merge into existing customer failed: " + err.Error(),
			})
			continue
		}
		links.set(m.record.SourceID, m.target)
		out.migrated++
	}
	if out.cancelled {
		return out
	}

	pre := out.migrated + out.skipped + out.errs
	res := load(ctx, s, j, entity, toWrite, pre, func(ctx context.Context, chunk []domain.MappedCustomer) error {
		rows := make([]domain.Customer, len(chunk))
		for i, c := range chunk {
			rows[i] = toCustomer(c, j.tenantID, j.tag)
		}
		results, err := s.store.UpsertCustomers(ctx, rows)
		if err != nil {
			return err
		}
		for _, r := range results {
			links.set(r.SourceID, r.ID)
		}
		return nil
	}, log)

	out.migrated += res.Written
	out.addChunkErrors(entity, res)
	return out
}

// dependentSpec 描述一种通过来源 ID 引用客户的实体
type dependentSpec[M domain.Sourced, R any] struct {
	entity     string
	records    []M
	customerOf func(M) int64
	convert    func(rec M, tenantID, tag, customerID string) R
	upsert     func(ctx context.Context, rows []R) ([]storage.WriteResult, error)
}

// migrateDependents 写入依赖客户的实体
//
// 已删除的记录直接跳过；孤儿记录以及客户未能写入的记录跳过并写入错误列表。
func migrateDependents[M domain.Sourced, R any](ctx context.Context, s *MigrationService, j *job, p plan, links *linkTable, issues map[string]map[int64]string, log *zap.Logger, dep dependentSpec[M, R]) *entityOutcome {
	out := &entityOutcome{}
	toWrite := make([]M, 0, len(dep.records))
	customers := make(map[int64]string, len(dep.records))

	for _, rec := range dep.records {
		id := rec.SourceKey()
		switch p.result.Class(dep.entity, id) {
		case domain.ClassSkipped:
			out.skip(dep.entity, id, "")
		case domain.ClassValid:
			ref := dep.customerOf(rec)
			customerID, ok := links.resolve(ref)
			if !ok {
				out.skip(dep.entity, id, fmt.Sprintf("customer %d was not migrated", ref))
				continue
			}
			customers[id] = customerID
			toWrite = append(toWrite, rec)
		default:
			out.skip(dep.entity, id, issues[dep.entity][id])
		}
	}

	res := load(ctx, s, j, dep.entity, toWrite, out.skipped, func(ctx context.Context, chunk []M) error {
		rows := make([]R, len(chunk))
		for i, rec := range chunk {
			rows[i] = dep.convert(rec, j.tenantID, j.tag, customers[rec.SourceKey()])
		}
		_, err := dep.upsert(ctx, rows)
		return err
	}, log)

	out.migrated += res.Written
	out.addChunkErrors(dep.entity, res)
	return out
}

// load 按实体配置分块写入，记录进度与分块指标
func load[T domain.Sourced](ctx context.Context, s *MigrationService, j *job, entity string, records []T, pre int, write loader.Writer[T], log *zap.Logger) *loader.Result {
	bg := context.WithoutCancel(ctx)
	cfg := loader.Config{
		Entity:    entity,
		ChunkSize: s.cfg.ChunkSize(entity),
		Workers:   s.cfg.Workers,
		Timeout:   s.cfg.ChunkTimeout,
		Retries:   s.cfg.RetryAttempts,
		Backoff:   s.cfg.RetryBackoff,
		Limiter:   s.limiter,
		Logger:    log,
		OnProgress: func(processed, _ int) {
			if err := s.tracker.EntityProgress(bg, j.id, entity, pre+processed); err != nil {
				log.Debug("progress update rejected", zap.String("entity", entity), zap.Error(err))
			}
		},
	}

	timed := func(ctx context.Context, chunk []T) error {
		started := time.Now()
		err := write(ctx, chunk)
		if s.metrics != nil {
			s.metrics.ObserveChunk(entity, time.Since(started))
		}
		return err
	}

	res := loader.Load(ctx, records, timed, cfg)
	if s.metrics != nil {
		for range res.Errors {
			s.metrics.RecordChunkFailure(entity)
		}
	}
	return res
}
