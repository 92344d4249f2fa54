package loader

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"legacymigrate/backend/internal/domain"
	"legacymigrate/backend/internal/pool"
)

var (
	// ErrChunkTimeout 分块写入超时，与写入失败同等处理
	ErrChunkTimeout = errors.New("chunk write timed out")
	// ErrWriterPanic 写入函数 panic
	ErrWriterPanic = errors.New("chunk writer panicked")
)

// Writer 写入一个分块。分块之间互相独立，没有事务语义。
type Writer[T any] func(ctx context.Context, chunk []T) error

// ProgressFunc 每个分块结束后回调（无论成功与否），processed 单调不减
type ProgressFunc func(processed, total int)

// Config 单个实体的导入参数
type Config struct {
	Entity    string
	ChunkSize int
	// Workers 同时写入的分块数，<= 1 时按顺序写入
	Workers int
	// Timeout 单次写入超时，0 表示不限制
	Timeout time.Duration
	// Retries 失败后的重试次数，0 表示不重试
	Retries int
	// Backoff 首次重试前的等待时间，之后指数增长
	Backoff time.Duration
	// Limiter 可选，限制分块写入速率
	Limiter    *rate.Limiter
	OnProgress ProgressFunc
	Logger     *zap.Logger
}

// ChunkError 一个失败分块的错误记录
type ChunkError struct {
	Entity string
	Index  int
	// Start、End 为分块在输入中的下标范围 [Start, End)
	Start, End int
	// FirstSourceID、LastSourceID 为分块首尾记录的来源 ID
	FirstSourceID, LastSourceID int64
	Attempts                    int
	Err                         error
}

func (e *ChunkError) Error() string {
	return fmt.Sprintf("%s chunk %d (records %d-%d, source ids %s): %v",
		e.Entity, e.Index, e.Start, e.End-1, e.SourceRange(), e.Err)
}

func (e *ChunkError) Unwrap() error { return e.Err }

// Size 分块中的记录数
func (e *ChunkError) Size() int { return e.End - e.Start }

// SourceRange 来源 ID 范围的文本形式，如 "101-200"
func (e *ChunkError) SourceRange() string {
	if e.FirstSourceID == e.LastSourceID {
		return fmt.Sprintf("%d", e.FirstSourceID)
	}
	return fmt.Sprintf("%d-%d", e.FirstSourceID, e.LastSourceID)
}

// Result 单个实体的导入结果
type Result struct {
	Total     int
	Chunks    int
	Written   int
	Failed    int
	Processed int
	Errors    []*ChunkError
	// Cancelled ctx 在所有分块调度完成前结束，剩余分块没有写入
	Cancelled bool
}

// Permanent 标记不值得重试的错误
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// Load 按固定大小分块写入 records
//
// 单个分块失败（含超时）只记录一条 ChunkError，继续处理其余分块。
// ctx 结束后不再调度新的分块，已经开始的分块写完为止。
func Load[T domain.Sourced](ctx context.Context, records []T, write Writer[T], cfg Config) *Result {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	size := cfg.ChunkSize
	if size <= 0 {
		size = 100
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}

	res := &Result{Total: len(records)}
	if len(records) == 0 {
		return res
	}

	var mu sync.Mutex

	wp := pool.NewWorkerPool(workers, workers, logger)
	wp.Start(ctx)

	for index, start := 0, 0; start < len(records); index, start = index+1, start+size {
		if ctx.Err() != nil {
			mu.Lock()
			res.Cancelled = true
			mu.Unlock()
			break
		}
		end := start + size
		if end > len(records) {
			end = len(records)
		}
		chunk := records[start:end]
		index, start := index, start

		err := wp.Submit(ctx, func(taskCtx context.Context) {
			// 已入队但尚未开始的分块在取消后不再写入
			if taskCtx.Err() != nil {
				mu.Lock()
				res.Cancelled = true
				mu.Unlock()
				return
			}

			attempts, err := writeChunk(taskCtx, chunk, write, cfg)

			mu.Lock()
			defer mu.Unlock()
			res.Processed += len(chunk)
			if err != nil {
				res.Failed += len(chunk)
				res.Errors = append(res.Errors, &ChunkError{
					Entity:        cfg.Entity,
					Index:         index,
					Start:         start,
					End:           start + len(chunk),
					FirstSourceID: chunk[0].SourceKey(),
					LastSourceID:  chunk[len(chunk)-1].SourceKey(),
					Attempts:      attempts,
					Err:           err,
				})
				logger.Warn("chunk write failed",
					zap.String("entity", cfg.Entity),
					zap.Int("chunk", index),
					zap.Int("attempts", attempts),
					zap.Error(err))
			} else {
				res.Written += len(chunk)
			}
			if cfg.OnProgress != nil {
				cfg.OnProgress(res.Processed, res.Total)
			}
		})
		if err != nil {
			mu.Lock()
			res.Cancelled = true
			mu.Unlock()
			break
		}
		res.Chunks++
	}

	wp.Stop()

	sort.Slice(res.Errors, func(i, j int) bool { return res.Errors[i].Index < res.Errors[j].Index })
	return res
}

// writeChunk 带超时与有限重试地写入一个分块，返回尝试次数
func writeChunk[T any](ctx context.Context, chunk []T, write Writer[T], cfg Config) (int, error) {
	attempts := 0
	op := func() error {
		if cfg.Limiter != nil {
			if err := cfg.Limiter.Wait(ctx); err != nil {
				return backoff.Permanent(err)
			}
		}
		attempts++
		return attempt(ctx, chunk, write, cfg.Timeout)
	}

	b := backoff.NewExponentialBackOff()
	if cfg.Backoff > 0 {
		b.InitialInterval = cfg.Backoff
	}
	b.MaxElapsedTime = 0

	retries := cfg.Retries
	if retries < 0 {
		retries = 0
	}
	err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(b, uint64(retries)), ctx))
	return attempts, err
}

// attempt 执行一次写入
//
// 写入使用脱离取消信号的上下文：操作人员取消任务时，进行中的分块照常写完；
// 只有超时会中断写入。
func attempt[T any](ctx context.Context, chunk []T, write Writer[T], timeout time.Duration) error {
	writeCtx := context.WithoutCancel(ctx)
	cancel := context.CancelFunc(func() {})
	if timeout > 0 {
		writeCtx, cancel = context.WithTimeout(writeCtx, timeout)
	}
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- backoff.Permanent(fmt.Errorf("%w: %v", ErrWriterPanic, r))
			}
		}()
		done <- write(writeCtx, chunk)
	}()

	select {
	case err := <-done:
		if err != nil && errors.Is(writeCtx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%w after %s: %v", ErrChunkTimeout, timeout, err)
		}
		return err
	case <-writeCtx.Done():
		return fmt.Errorf("%w after %s", ErrChunkTimeout, timeout)
	}
}
