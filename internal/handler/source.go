package handler

import (
	"context"
	"time"

	"github.com/hitoshi/liveinfo/internal/refresh"
)

// LiveResult はライブ状態の取得結果。
type LiveResult struct {
	Value     any
	Source    refresh.Source
	FetchedAt time.Time
}

// LiveSource は1プラットフォーム分のライブ状態の取得元。
type LiveSource interface {
	// Lookup は現在時刻nowにおけるライブ状態を返す。
	// 一度も取得に成功していない場合はrefresh.ErrNotFoundを返す。
	Lookup(ctx context.Context, now time.Time) (LiveResult, error)
	// DisplayName は404レスポンスで使用する表示名を返す。
	DisplayName() string
}

// CacheSource は refresh.Cache のエントリを LiveSource に適合させるアダプタ。
type CacheSource[T any] struct {
	cache       *refresh.Cache[T]
	entityID    string
	displayName string
	interval    time.Duration
}

// NewCacheSource はCacheSourceを生成する。
func NewCacheSource[T any](cache *refresh.Cache[T], entityID, displayName string, interval time.Duration) *CacheSource[T] {
	return &CacheSource[T]{
		cache:       cache,
		entityID:    entityID,
		displayName: displayName,
		interval:    interval,
	}
}

// Lookup はLiveSourceインターフェースを実装する。
func (s *CacheSource[T]) Lookup(ctx context.Context, now time.Time) (LiveResult, error) {
	res, err := s.cache.Get(ctx, s.entityID, s.interval, now)
	if err != nil {
		return LiveResult{}, err
	}
	return LiveResult{Value: res.Value, Source: res.Source, FetchedAt: res.FetchedAt}, nil
}

// DisplayName はLiveSourceインターフェースを実装する。
func (s *CacheSource[T]) DisplayName() string {
	return s.displayName
}
