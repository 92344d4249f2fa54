package gormstore

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"legacymigrate/backend/internal/domain"
	"legacymigrate/backend/internal/storage"
)

type rowPtr[T any] interface {
	*T
	domain.Row
}

var tagColumns = []clause.Column{{Name: "tenant_id"}, {Name: "migration_id"}, {Name: "source_id"}}

// upsert 按迁移标签写入一批行
//
// 先查出已存在的来源 ID 沿用其主键，再以 ON CONFLICT 写入：
// 重跑同一任务时更新原有行，返回的主键与库中一致。
func upsert[T any, P rowPtr[T]](ctx context.Context, db *gorm.DB, rows []T) ([]storage.WriteResult, error) {
	if len(rows) == 0 {
		return nil, nil
	}

	tenantID, migrationID, _ := P(&rows[0]).Tag()
	sources := make([]int64, len(rows))
	for i := range rows {
		tenant, migration, source := P(&rows[i]).Tag()
		if tenant != tenantID || migration != migrationID {
			return nil, ErrMixedTags
		}
		sources[i] = source
	}

	var results []storage.WriteResult
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing []struct {
			ID       string
			SourceID int64
		}
		var model T
		err := tx.Model(&model).
			Select("id", "source_id").
			Where("tenant_id = ? AND migration_id = ? AND source_id IN ?", tenantID, migrationID, sources).
			Scan(&existing).Error
		if err != nil {
			return err
		}
		ids := make(map[int64]string, len(existing))
		for _, e := range existing {
			ids[e.SourceID] = e.ID
		}

		results = make([]storage.WriteResult, 0, len(rows))
		for i := range rows {
			p := P(&rows[i])
			_, _, source := p.Tag()
			outcome := storage.Created
			if id, ok := ids[source]; ok {
				p.SetID(id)
				outcome = storage.Updated
			} else if p.GetID() == "" {
				p.SetID(uuid.NewString())
			}
			results = append(results, storage.WriteResult{SourceID: source, ID: p.GetID(), Outcome: outcome})
		}

		columns, err := updatableColumns(tx, &model)
		if err != nil {
			return err
		}
		return tx.Clauses(clause.OnConflict{
			Columns:   tagColumns,
			DoUpdates: clause.AssignmentColumns(columns),
		}).Create(&rows).Error
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// updatableColumns 冲突时需要更新的列：除主键、迁移标签和创建时间以外的所有列
func updatableColumns(db *gorm.DB, model interface{}) ([]string, error) {
	stmt := &gorm.Statement{DB: db}
	if err := stmt.Parse(model); err != nil {
		return nil, err
	}
	skip := map[string]bool{"id": true, "tenant_id": true, "migration_id": true, "source_id": true, "created_at": true}

	columns := make([]string, 0, len(stmt.Schema.DBNames))
	for _, name := range stmt.Schema.DBNames {
		if !skip[name] {
			columns = append(columns, name)
		}
	}
	return columns, nil
}
