package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"legacymigrate/backend/internal/domain"
	"legacymigrate/backend/internal/progress"
)

const (
	progressKeyPrefix = "migration:progress:"
	tenantKeyPrefix   = "migration:tenant:"
	// 乐观锁冲突时的最大重试次数
	maxUpdateRetries = 10
)

// ProgressStore 基于 Redis 的进度账本，供多进程部署共享
//
// 每个任务保存为一个 JSON 字符串，租户索引为按开始时间排序的有序集合。
// 更新使用 WATCH + MULTI 实现乐观锁；终态任务按 retention 设置过期时间。
type ProgressStore struct {
	rdb       *goredis.Client
	retention time.Duration
	log       *zap.Logger
}

// NewProgressStore 创建 Redis 进度账本
func NewProgressStore(client *Client, retention time.Duration) *ProgressStore {
	return &ProgressStore{rdb: client.Client(), retention: retention, log: client.log}
}

func progressKey(migrationID string) string { return progressKeyPrefix + migrationID }
func tenantKey(tenantID string) string       { return tenantKeyPrefix + tenantID }

func (s *ProgressStore) Init(ctx context.Context, p *domain.MigrationProgress) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal progress: %w", err)
	}

	ok, err := s.rdb.SetNX(ctx, progressKey(p.MigrationID), data, 0).Result()
	if err != nil {
		return err
	}
	if !ok {
		return progress.ErrExists
	}

	return s.rdb.ZAdd(ctx, tenantKey(p.TenantID), goredis.Z{
		Score:  float64(p.StartedAt.UnixNano()),
		Member: p.MigrationID,
	}).Err()
}

func (s *ProgressStore) Get(ctx context.Context, migrationID string) (*domain.MigrationProgress, error) {
	data, err := s.rdb.Get(ctx, progressKey(migrationID)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, progress.ErrNotFound
		}
		return nil, err
	}
	return decodeProgress(data)
}

func (s *ProgressStore) Update(ctx context.Context, migrationID string, fn progress.UpdateFunc) (*domain.MigrationProgress, error) {
	key := progressKey(migrationID)
	var updated *domain.MigrationProgress

	txf := func(tx *goredis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, goredis.Nil) {
				return progress.ErrNotFound
			}
			return err
		}

		next, err := decodeProgress(data)
		if err != nil {
			return err
		}
		if err := fn(next); err != nil {
			return err
		}

		encoded, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("marshal progress: %w", err)
		}

		var ttl time.Duration
		if next.Status.IsTerminal() {
			ttl = s.retention
		}
		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Set(ctx, key, encoded, ttl)
			return nil
		})
		if err != nil {
			return err
		}
		updated = next
		return nil
	}

	for i := 0; i < maxUpdateRetries; i++ {
		err := s.rdb.Watch(ctx, txf, key)
		if errors.Is(err, goredis.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return updated, nil
	}
	return nil, fmt.Errorf("update progress %s: too many concurrent writers", migrationID)
}

// ListByTenant 按开始时间倒序返回租户的任务，已过期的任务从索引中移除
func (s *ProgressStore) ListByTenant(ctx context.Context, tenantID string) ([]*domain.MigrationProgress, error) {
	ids, err := s.rdb.ZRevRange(ctx, tenantKey(tenantID), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []*domain.MigrationProgress{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = progressKey(id)
	}
	values, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	out := make([]*domain.MigrationProgress, 0, len(values))
	var expired []interface{}
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			expired = append(expired, ids[i])
			continue
		}
		p, err := decodeProgress([]byte(raw))
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if len(expired) > 0 {
		if err := s.rdb.ZRem(ctx, tenantKey(tenantID), expired...).Err(); err != nil {
			s.log.Warn("failed to prune expired migrations from tenant index",
				zap.String("tenant_id", tenantID),
				zap.Int("count", len(expired)),
				zap.Error(err))
		}
	}
	return out, nil
}

func decodeProgress(data []byte) (*domain.MigrationProgress, error) {
	var p domain.MigrationProgress
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode progress: %w", err)
	}
	if p.Entities == nil {
		p.Entities = make(map[string]domain.EntityProgress)
	}
	if p.Errors == nil {
		p.Errors = []domain.MigrationError{}
	}
	return &p, nil
}

var _ progress.Store = (*ProgressStore)(nil)
