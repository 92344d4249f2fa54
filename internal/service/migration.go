package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"legacymigrate/backend/internal/cache"
	"legacymigrate/backend/internal/config"
	"legacymigrate/backend/internal/domain"
	"legacymigrate/backend/internal/dryrun"
	"legacymigrate/backend/internal/logger"
	"legacymigrate/backend/internal/monitoring"
	"legacymigrate/backend/internal/progress"
	"legacymigrate/backend/internal/storage"
)

// MigrationService 迁移编排
//
// 按 解析 -> 预检 -> 按依赖顺序分块写入 的顺序执行任务，是唯一修改进度账本的组件。
// 同一租户同一时间只允许一个执行中的任务。
type MigrationService struct {
	store     storage.Store
	tracker   *progress.Tracker
	validator *dryrun.Validator
	reports   *cache.ReportCache
	metrics   *monitoring.Metrics
	cfg       config.MigrationConfig
	limiter   *rate.Limiter
	logger    *zap.Logger
	now       func() time.Time

	mu      sync.Mutex
	running map[string]*job   // migrationID -> 本进程中执行的任务
	tenants map[string]string // tenantID -> 占用该租户的 migrationID
	closed  bool
	wg      sync.WaitGroup
}

type job struct {
	id       string
	tenantID string
	tag      string
	cancel   context.CancelFunc
}

// NewMigrationService 创建迁移编排服务
func NewMigrationService(store storage.Store, tracker *progress.Tracker, cfg config.MigrationConfig, log *zap.Logger) *MigrationService {
	if log == nil {
		log = zap.NewNop()
	}
	s := &MigrationService{
		store:     store,
		tracker:   tracker,
		validator: dryrun.New(),
		cfg:       cfg,
		logger:    log,
		now:       func() time.Time { return time.Now().UTC() },
		running:   make(map[string]*job),
		tenants:   make(map[string]string),
	}
	if cfg.WritesPerSec > 0 {
		burst := cfg.Workers
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(cfg.WritesPerSec), burst)
	}
	return s
}

// SetReportCache 设置预检报告缓存
func (s *MigrationService) SetReportCache(reports *cache.ReportCache) {
	s.reports = reports
}

// SetMetrics 设置监控指标
func (s *MigrationService) SetMetrics(metrics *monitoring.Metrics) {
	s.metrics = metrics
}

// Analyze 解析导出并返回迁移前概览，不访问目标库
func (s *MigrationService) Analyze(_ context.Context, e Export) (*domain.MigrationAnalysis, error) {
	p, err := parseExport(e)
	if err != nil {
		return nil, err
	}
	return p.analyze(e), nil
}

// DryRun 对导出做预检，不产生任何写入
//
// mode 为空表示尚未选择冲突处理方式，此时存在重复即为阻断。
func (s *MigrationService) DryRun(ctx context.Context, tenantID string, e Export, mode domain.ConflictMode) (*domain.DryRunReport, error) {
	if tenantID == "" {
		return nil, ErrTenantRequired
	}
	if err := s.validator.Options(domain.MigrationOptions{ConflictResolution: mode}); err != nil {
		return nil, err
	}

	fingerprint := cache.Fingerprint(e.Tables, mode, exportParams(e)...)
	if s.reports != nil {
		if report, ok := s.reports.Get(tenantID, fingerprint); ok {
			return report, nil
		}
	}

	p, err := parseExport(e)
	if err != nil {
		return nil, err
	}
	records := p.mapRecords(s.now())
	refs, err := s.destination(ctx, tenantID, &records)
	if err != nil {
		return nil, err
	}

	report := s.validator.Run(records, refs, mode).Report
	if s.reports != nil {
		s.reports.Set(tenantID, fingerprint, report)
	}
	if s.metrics != nil {
		s.metrics.RecordDryRun(report.Blocking)
	}
	return report, nil
}

// destination 读取目标租户现有客户，并把已迁入的依赖记录填入 records
func (s *MigrationService) destination(ctx context.Context, tenantID string, records *dryrun.Input) ([]domain.CustomerRef, error) {
	refs, err := s.store.ListCustomerRefs(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list destination customers: %w", err)
	}
	migrated, err := s.store.ListMigratedSources(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list migrated records: %w", err)
	}
	records.Migrated = migrated
	return refs, nil
}

// StartInput 开始迁移所需的输入
type StartInput struct {
	TenantID string
	Export   Export
	Options  domain.MigrationOptions
	// ResumeFrom 续跑的失败任务 ID。续跑任务沿用其写入标签，已写入的记录被更新而不是重复插入。
	ResumeFrom string
}

// Start 创建任务并在后台执行
//
// 解析与预检同步完成（任务处于 analyzing）；预检存在阻断性缺陷且未设置 AcceptDefects 时
// 任务进入 failed 并返回 ErrValidationBlocked。返回时任务已进入 migrating。
func (s *MigrationService) Start(ctx context.Context, in StartInput) (*domain.MigrationProgress, error) {
	if in.TenantID == "" {
		return nil, ErrTenantRequired
	}
	if err := s.validator.Options(in.Options); err != nil {
		return nil, err
	}

	id := uuid.NewString()
	tag, err := s.writeTag(ctx, id, in)
	if err != nil {
		return nil, err
	}

	if err := s.reserve(ctx, in.TenantID, id); err != nil {
		return nil, err
	}
	started := false
	defer func() {
		if !started {
			s.release(in.TenantID, id)
		}
	}()

	log := logger.ForJob(s.logger, id, in.TenantID)

	if _, err := s.tracker.Create(ctx, id, in.TenantID, in.Export.SourceFile); err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.MigrationStarted()
	}
	run := &domain.MigrationRun{
		ID:          id,
		TenantID:    in.TenantID,
		SourceFile:  in.Export.SourceFile,
		WriteTag:    tag,
		ResumedFrom: in.ResumeFrom,
		Status:      domain.MigrationPending,
		StartedAt:   s.now(),
	}
	if err := s.store.SaveRun(ctx, run); err != nil {
		s.abort(ctx, run, "failed to record migration run: "+err.Error(), log)
		return nil, err
	}

	if err := s.tracker.Analyzing(ctx, id); err != nil {
		s.abort(ctx, run, err.Error(), log)
		return nil, err
	}

	parsed, err := parseExport(in.Export)
	if err != nil {
		s.abort(ctx, run, err.Error(), log)
		return nil, err
	}
	records := parsed.mapRecords(s.now())
	records.MigrationID = tag

	refs, err := s.destination(ctx, in.TenantID, &records)
	if err != nil {
		s.abort(ctx, run, "failed to read destination: "+err.Error(), log)
		return nil, err
	}

	result := s.validator.Run(records, refs, in.Options.ConflictResolution)
	if result.Report.Blocking && !in.Options.AcceptDefects {
		detail := strings.Join(result.Report.Warnings, "; ")
		s.abort(ctx, run, fmt.Sprintf("%s: %s", ErrValidationBlocked, detail), log)
		return nil, fmt.Errorf("%w: %s", ErrValidationBlocked, detail)
	}

	totals := entityTotals(records, parsed.products())
	if err := s.tracker.Migrating(ctx, id, totals); err != nil {
		s.abort(ctx, run, err.Error(), log)
		return nil, err
	}
	run.Status = domain.MigrationMigrating
	if err := s.store.SaveRun(ctx, run); err != nil {
		log.Warn("failed to update migration run", zap.Error(err))
	}

	snapshot, err := s.tracker.Get(ctx, id)
	if err != nil {
		s.abort(ctx, run, err.Error(), log)
		return nil, err
	}

	jobCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	j := &job{id: id, tenantID: in.TenantID, tag: tag, cancel: cancel}

	s.mu.Lock()
	s.running[id] = j
	if s.closed {
		cancel()
	}
	s.mu.Unlock()

	started = true
	log.Info("migration started",
		zap.String("write_tag", tag),
		zap.Any("totals", totals),
		zap.String("conflict_resolution", string(in.Options.ConflictResolution)))

	go func() {
		defer s.release(in.TenantID, id)
		defer cancel()
		s.execute(jobCtx, j, run, plan{
			records:  records,
			result:   result,
			options:  in.Options,
			totals:   totals,
			products: parsed.products(),
		}, log)
	}()

	return snapshot, nil
}

// writeTag 新任务使用自己的 ID；续跑任务沿用被续跑任务的标签
func (s *MigrationService) writeTag(ctx context.Context, id string, in StartInput) (string, error) {
	if in.ResumeFrom == "" {
		return id, nil
	}
	prev, err := s.Progress(ctx, in.ResumeFrom)
	if err != nil {
		return "", err
	}
	if prev.TenantID != in.TenantID || prev.Status != domain.MigrationFailed {
		return "", ErrNotResumable
	}
	run, err := s.store.GetRun(ctx, in.ResumeFrom)
	switch {
	case err == nil && run.WriteTag != "":
		return run.WriteTag, nil
	case err == nil || errors.Is(err, storage.ErrRunNotFound):
		return in.ResumeFrom, nil
	default:
		return "", err
	}
}

// reserve 占用租户；进程内与进度账本中都没有执行中的任务才允许开始
func (s *MigrationService) reserve(ctx context.Context, tenantID, migrationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrServiceShuttingDown
	}
	if _, busy := s.tenants[tenantID]; busy {
		return ErrMigrationInProgress
	}
	active, err := s.tracker.ActiveForTenant(ctx, tenantID)
	if err != nil {
		return err
	}
	if active != nil {
		return ErrMigrationInProgress
	}
	s.tenants[tenantID] = migrationID
	s.wg.Add(1)
	return nil
}

func (s *MigrationService) release(tenantID, migrationID string) {
	s.mu.Lock()
	if s.tenants[tenantID] == migrationID {
		delete(s.tenants, tenantID)
	}
	delete(s.running, migrationID)
	s.mu.Unlock()
	s.wg.Done()
}

// abort 任务在开始写入前失败
func (s *MigrationService) abort(ctx context.Context, run *domain.MigrationRun, message string, log *zap.Logger) {
	log.Error("migration aborted", zap.String("reason", message))
	s.failRun(context.WithoutCancel(ctx), run, message, log)
	if s.metrics != nil {
		s.metrics.MigrationFinished(domain.OutcomeFailed)
	}
}

// failRun 任务进入 failed 并更新持久化记录
func (s *MigrationService) failRun(ctx context.Context, run *domain.MigrationRun, message string, log *zap.Logger) {
	p, err := s.tracker.Fail(ctx, run.ID, message)
	if err != nil {
		log.Warn("failed to mark migration failed", zap.Error(err))
		if p, err = s.tracker.Get(ctx, run.ID); err != nil {
			p = nil
		}
	}
	s.closeRun(ctx, run, p, log)
}

// closeRun 把进度记录的最终状态写入持久化记录
func (s *MigrationService) closeRun(ctx context.Context, run *domain.MigrationRun, p *domain.MigrationProgress, log *zap.Logger) {
	if p != nil {
		run.Status = p.Status
		run.Outcome = p.Outcome
		run.Migrated, run.Skipped, run.Errors = p.Totals()
		run.CompletedAt = p.CompletedAt
	}
	if err := s.store.SaveRun(ctx, run); err != nil {
		log.Warn("failed to update migration run", zap.Error(err))
	}
	if s.reports != nil {
		s.reports.InvalidateTenant(run.TenantID)
	}
}

// Progress 返回任务进度（轮询接口）
func (s *MigrationService) Progress(ctx context.Context, migrationID string) (*domain.MigrationProgress, error) {
	p, err := s.tracker.Get(ctx, migrationID)
	if err != nil {
		if errors.Is(err, progress.ErrNotFound) {
			return nil, ErrMigrationNotFound
		}
		return nil, err
	}
	return p, nil
}

// History 返回租户的历史任务记录
func (s *MigrationService) History(ctx context.Context, tenantID string) ([]domain.MigrationRun, error) {
	if tenantID == "" {
		return nil, ErrTenantRequired
	}
	return s.store.ListRuns(ctx, tenantID)
}

// Cancel 协作式取消：进行中的分块写完后不再调度新的分块，任务进入 failed
func (s *MigrationService) Cancel(ctx context.Context, migrationID string) (*domain.MigrationProgress, error) {
	p, err := s.Progress(ctx, migrationID)
	if err != nil {
		return nil, err
	}
	if !p.CanCancel() {
		return nil, ErrNotCancellable
	}

	s.mu.Lock()
	j, local := s.running[migrationID]
	s.mu.Unlock()

	if local {
		j.cancel()
		return p, nil
	}

	// 任务不在本进程中执行（例如进程重启后遗留的记录），直接标记为失败
	log := logger.ForJob(s.logger, migrationID, p.TenantID)
	run, err := s.store.GetRun(ctx, migrationID)
	if err != nil {
		run = &domain.MigrationRun{ID: migrationID, TenantID: p.TenantID, SourceFile: p.SourceFile, WriteTag: migrationID, StartedAt: p.StartedAt}
	}
	s.failRun(ctx, run, domain.CancelledMessage, log)
	return s.Progress(ctx, migrationID)
}

// RollbackResult 回滚结果
type RollbackResult struct {
	Progress *domain.MigrationProgress `json:"progress"`
	Deleted  map[string]int64          `json:"deleted"`
}

// Rollback 删除带有该任务写入标签的目标库行，任务进入 rolled_back
//
// merge 方式补全到已有客户上的字段不带标签，不会被回滚。
func (s *MigrationService) Rollback(ctx context.Context, migrationID string) (*RollbackResult, error) {
	p, err := s.Progress(ctx, migrationID)
	if err != nil {
		return nil, err
	}
	if !p.CanRollback() {
		return nil, ErrNotRollbackable
	}

	log := logger.ForJob(s.logger, migrationID, p.TenantID)
	tag := migrationID
	run, err := s.store.GetRun(ctx, migrationID)
	switch {
	case err == nil:
		if run.WriteTag != "" {
			tag = run.WriteTag
		}
	case errors.Is(err, storage.ErrRunNotFound):
		run = nil
	default:
		return nil, err
	}

	deleted, err := s.store.DeleteByMigration(ctx, p.TenantID, tag)
	if err != nil {
		return nil, fmt.Errorf("delete migrated rows: %w", err)
	}

	updated, err := s.tracker.RolledBack(ctx, migrationID)
	if err != nil {
		return nil, err
	}
	if run != nil {
		s.closeRun(ctx, run, updated, log)
	} else if s.reports != nil {
		s.reports.InvalidateTenant(p.TenantID)
	}
	if s.metrics != nil {
		s.metrics.RecordRollback()
	}

	log.Info("migration rolled back", zap.String("write_tag", tag), zap.Any("deleted", deleted))
	return &RollbackResult{Progress: updated, Deleted: deleted}, nil
}

// Shutdown 取消所有执行中的任务并等待其结束
func (s *MigrationService) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	for _, j := range s.running {
		j.cancel()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// exportParams 影响解析结果的附加参数，参与预检缓存的摘要
func exportParams(e Export) []string {
	params := []string{string(e.Delimiter)}
	tables := make([]string, 0, len(e.FieldMappings))
	for table := range e.FieldMappings {
		tables = append(tables, table)
	}
	sort.Strings(tables)
	for _, table := range tables {
		pairs := make([]string, 0, len(e.FieldMappings[table]))
		for from, to := range e.FieldMappings[table] {
			pairs = append(pairs, from+"="+to)
		}
		sort.Strings(pairs)
		params = append(params, table+":"+strings.Join(pairs, ","))
	}
	return params
}
