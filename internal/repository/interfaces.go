// Package repository はエンティティごとの最終成功値（スナップショット）の永続化を提供する。
// バックエンドはファイル、PostgreSQL、Valkeyの3種類。
package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/hitoshi/liveinfo/internal/model"
)

// SnapshotRepository はスナップショットの永続化インターフェース。
type SnapshotRepository interface {
	// Load は指定エンティティのスナップショットを取得する。見つからない場合はnilを返す。
	Load(ctx context.Context, entityID string) (*model.Snapshot, error)

	// Save はスナップショットを保存する。既存のスナップショットは丸ごと置き換える。
	Save(ctx context.Context, entityID string, snap *model.Snapshot) error
}

// ErrInvalidSnapshot は保存しようとしたスナップショットが不正であることを表す。
var ErrInvalidSnapshot = errors.New("invalid snapshot")

func validateSnapshot(entityID string, snap *model.Snapshot) error {
	if entityID == "" {
		return fmt.Errorf("%w: entity is empty", ErrInvalidSnapshot)
	}
	if snap == nil || len(snap.Data) == 0 {
		return fmt.Errorf("%w: data is empty", ErrInvalidSnapshot)
	}
	return nil
}
