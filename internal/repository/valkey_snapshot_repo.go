package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/valkey-io/valkey-go"

	"github.com/hitoshi/liveinfo/internal/model"
)

const (
	valkeyKeyPrefix      = "liveinfo:snapshot:"
	valkeyFieldValue     = "value"
	valkeyFieldFetchedAt = "fetched_at"
)

// ValkeySnapshotRepo はValkeyのハッシュを使用するリポジトリ。
// キー liveinfo:snapshot:{entity} に value と fetched_at の2フィールドを保存する。
type ValkeySnapshotRepo struct {
	client valkey.Client
}

// NewValkeySnapshotRepo はValkeySnapshotRepoを生成する。
func NewValkeySnapshotRepo(client valkey.Client) *ValkeySnapshotRepo {
	return &ValkeySnapshotRepo{client: client}
}

func valkeyKey(entityID string) string {
	return valkeyKeyPrefix + entityID
}

// Load は指定エンティティのスナップショットを取得する。キーが存在しない場合はnilを返す。
func (r *ValkeySnapshotRepo) Load(ctx context.Context, entityID string) (*model.Snapshot, error) {
	cmd := r.client.B().Hgetall().Key(valkeyKey(entityID)).Build()
	fields, err := r.client.Do(ctx, cmd).AsStrMap()
	if err != nil {
		if valkey.IsValkeyNil(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("スナップショットの取得に失敗しました: %w", err)
	}

	value, ok := fields[valkeyFieldValue]
	if !ok || value == "" {
		return nil, nil
	}

	snap := &model.Snapshot{Data: []byte(value)}
	if raw := fields[valkeyFieldFetchedAt]; raw != "" {
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return nil, fmt.Errorf("取得時刻のパースに失敗しました: %w", err)
		}
		snap.FetchedAt = t
	}

	return snap, nil
}

// Save はスナップショットをハッシュへ書き込む。
func (r *ValkeySnapshotRepo) Save(ctx context.Context, entityID string, snap *model.Snapshot) error {
	if err := validateSnapshot(entityID, snap); err != nil {
		return err
	}

	cmd := r.client.B().Hset().Key(valkeyKey(entityID)).FieldValue().
		FieldValue(valkeyFieldValue, string(snap.Data)).
		FieldValue(valkeyFieldFetchedAt, snap.FetchedAt.UTC().Format(time.RFC3339Nano)).
		Build()
	if err := r.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("スナップショットの保存に失敗しました: %w", err)
	}

	return nil
}
