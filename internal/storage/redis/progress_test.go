package redis

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"legacymigrate/backend/internal/config"
	"legacymigrate/backend/internal/domain"
	"legacymigrate/backend/internal/progress"
)

// 需要真实的 Redis，设置 LEGACYMIGRATE_TEST_REDIS_ADDR 后运行
func newTestClient(t *testing.T, log *zap.Logger) *Client {
	t.Helper()
	addr := os.Getenv("LEGACYMIGRATE_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("LEGACYMIGRATE_TEST_REDIS_ADDR not set")
	}
	client, err := New(config.RedisConfig{Address: addr, DB: 15}, log)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func newTestProgressStore(t *testing.T) *ProgressStore {
	t.Helper()
	return NewProgressStore(newTestClient(t, nil), time.Minute)
}

// zremFailure 让 ZREM 命令失败，其余命令照常执行
type zremFailure struct{}

func (zremFailure) DialHook(next goredis.DialHook) goredis.DialHook { return next }

func (zremFailure) ProcessHook(next goredis.ProcessHook) goredis.ProcessHook {
	return func(ctx context.Context, cmd goredis.Cmder) error {
		if cmd.Name() == "zrem" {
			err := errors.New("READONLY You can't write against a read only replica")
			cmd.SetErr(err)
			return err
		}
		return next(ctx, cmd)
	}
}

func (zremFailure) ProcessPipelineHook(next goredis.ProcessPipelineHook) goredis.ProcessPipelineHook {
	return next
}

func TestProgressStore_PruneFailureLogged(t *testing.T) {
	ctx := context.Background()
	core, logs := observer.New(zapcore.WarnLevel)
	client := newTestClient(t, zap.New(core))
	store := NewProgressStore(client, time.Minute)

	tenant := "tenant-" + uuid.NewString()
	id := uuid.NewString()
	require.NoError(t, store.Init(ctx, domain.NewMigrationProgress(id, tenant, time.Now().UTC())))

	// 进度键已过期，租户索引仍指向它
	require.NoError(t, client.Client().Del(ctx, progressKey(id)).Err())
	client.Client().AddHook(zremFailure{})

	list, err := store.ListByTenant(ctx, tenant)
	require.NoError(t, err)
	assert.Empty(t, list)

	entries := logs.FilterMessage("failed to prune expired migrations from tenant index").All()
	require.Len(t, entries, 1)
	assert.Equal(t, tenant, entries[0].ContextMap()["tenant_id"])
}

func TestProgressStore(t *testing.T) {
	ctx := context.Background()
	store := newTestProgressStore(t)
	tenant := "tenant-" + uuid.NewString()
	id := uuid.NewString()

	require.NoError(t, store.Init(ctx, domain.NewMigrationProgress(id, tenant, time.Now().UTC())))

	t.Run("重复创建返回已存在", func(t *testing.T) {
		err := store.Init(ctx, domain.NewMigrationProgress(id, tenant, time.Now().UTC()))
		assert.ErrorIs(t, err, progress.ErrExists)
	})

	t.Run("更新后读取一致", func(t *testing.T) {
		updated, err := store.Update(ctx, id, func(p *domain.MigrationProgress) error {
			p.Status = domain.MigrationAnalyzing
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, domain.MigrationAnalyzing, updated.Status)

		got, err := store.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, domain.MigrationAnalyzing, got.Status)
		assert.Len(t, got.Entities, len(domain.EntityOrder))
	})

	t.Run("终态任务设置过期时间", func(t *testing.T) {
		_, err := store.Update(ctx, id, func(p *domain.MigrationProgress) error {
			p.Status = domain.MigrationFailed
			return nil
		})
		require.NoError(t, err)

		ttl, err := store.rdb.TTL(ctx, progressKey(id)).Result()
		require.NoError(t, err)
		assert.Greater(t, ttl, time.Duration(0))
	})

	t.Run("按租户列出", func(t *testing.T) {
		list, err := store.ListByTenant(ctx, tenant)
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, id, list[0].MigrationID)
	})

	t.Run("不存在的任务", func(t *testing.T) {
		_, err := store.Get(ctx, "missing")
		assert.ErrorIs(t, err, progress.ErrNotFound)
		_, err = store.Update(ctx, "missing", func(*domain.MigrationProgress) error { return nil })
		assert.ErrorIs(t, err, progress.ErrNotFound)
	})
}
