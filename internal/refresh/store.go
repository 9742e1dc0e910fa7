package refresh

import (
	"context"

	"github.com/hitoshi/liveinfo/internal/model"
)

// Store はエンティティごとの最終成功値を永続化するストアのインターフェース。
// ファイル、PostgreSQL、Valkeyの各実装はrepositoryパッケージにある。
type Store interface {
	// Load は保存済みのスナップショットを返す。未保存の場合は (nil, nil) を返す。
	Load(ctx context.Context, entityID string) (*model.Snapshot, error)
	// Save はスナップショットを丸ごと置き換えて保存する。
	Save(ctx context.Context, entityID string, snap *model.Snapshot) error
}

// Fetcher は上流プラットフォームから正規化済みの値を取得する。
type Fetcher[T any] interface {
	Fetch(ctx context.Context) (T, error)
}

// FetcherFunc は関数をFetcherとして扱うためのアダプター。
type FetcherFunc[T any] func(ctx context.Context) (T, error)

// Fetch はFetcherインターフェースを実装する。
func (f FetcherFunc[T]) Fetch(ctx context.Context) (T, error) {
	return f(ctx)
}
