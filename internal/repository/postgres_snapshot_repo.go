package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hitoshi/liveinfo/internal/model"
)

// PostgresSnapshotRepo はPostgreSQLのlive_snapshotsテーブルを使用するリポジトリ。
type PostgresSnapshotRepo struct {
	db *sql.DB
}

// NewPostgresSnapshotRepo はPostgresSnapshotRepoを生成する。
func NewPostgresSnapshotRepo(db *sql.DB) *PostgresSnapshotRepo {
	return &PostgresSnapshotRepo{db: db}
}

// Load は指定エンティティのスナップショットを取得する。見つからない場合はnilを返す。
func (r *PostgresSnapshotRepo) Load(ctx context.Context, entityID string) (*model.Snapshot, error) {
	snap := &model.Snapshot{}
	var data []byte

	err := r.db.QueryRowContext(ctx,
		`SELECT data, fetched_at FROM live_snapshots WHERE entity = $1`,
		entityID,
	).Scan(&data, &snap.FetchedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("スナップショットの取得に失敗しました: %w", err)
	}

	snap.Data = data
	return snap, nil
}

// Save はスナップショットをUPSERTする。
func (r *PostgresSnapshotRepo) Save(ctx context.Context, entityID string, snap *model.Snapshot) error {
	if err := validateSnapshot(entityID, snap); err != nil {
		return err
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO live_snapshots (entity, data, fetched_at, updated_at)
		 VALUES ($1, $2, $3, now())
		 ON CONFLICT (entity) DO UPDATE
		 SET data = EXCLUDED.data, fetched_at = EXCLUDED.fetched_at, updated_at = now()`,
		entityID, []byte(snap.Data), snap.FetchedAt,
	)
	if err != nil {
		return fmt.Errorf("スナップショットの保存に失敗しました: %w", err)
	}

	return nil
}
