// Package refresh は上流フェッチの呼び出し頻度を抑えるTTLキャッシュを提供する。
// フェッチ失敗時は直前の成功値（stale）にフォールバックし、
// 一度も成功していない場合のみErrNotFoundを返す。
package refresh

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/hitoshi/liveinfo/internal/metrics"
	"github.com/hitoshi/liveinfo/internal/model"
)

var (
	// ErrNotFound は成功したフェッチも永続値も存在しないことを表す。
	ErrNotFound = errors.New("live status not found")
	// ErrUnknownEntity は登録されていないエンティティIDが指定されたことを表す。
	ErrUnknownEntity = errors.New("unknown entity")
)

// Source は返却値の出所。
type Source string

const (
	SourceFetched Source = "fetched" // 今回のリクエストでフェッチした値
	SourceCached  Source = "cached"  // 間隔内のため再利用した値
	SourceStale   Source = "stale"   // フェッチ失敗により直前の成功値へフォールバックした値
)

// 失敗理由ラベル。ログとメトリクスで使用する。
const (
	reasonTimeout       = "timeout"
	reasonUnavailable   = "unavailable"
	reasonShapeMismatch = "shape_mismatch"
	reasonUnknown       = "unknown"
)

// Result はGetの結果。
type Result[T any] struct {
	Value     T
	Source    Source
	FetchedAt time.Time // Valueを取得したフェッチの時刻
}

// EntryState はエントリの状態のスナップショット。
type EntryState struct {
	LastFetchedAt time.Time // ゼロ値は未フェッチ
	HasValue      bool
}

// Options はCacheの構築オプション。
type Options struct {
	Store        Store
	Logger       *slog.Logger
	Metrics      metrics.MetricsCollector
	FetchTimeout time.Duration // 0以下の場合はタイムアウトなし
	SingleFlight bool          // 同一エンティティの同時フェッチを1回にまとめる
}

type entry[T any] struct {
	mu             sync.Mutex
	fetcher        Fetcher[T]
	seeded         bool
	lastFetchedAt  *time.Time
	value          *T
	valueFetchedAt time.Time
}

// Cache はエンティティごとに (値, 最終フェッチ時刻) を保持するリフレッシュキャッシュ。
// エントリのロックはフェッチ中には保持しないため、呼び出し元が他の呼び出しのフェッチを待つことはない。
type Cache[T any] struct {
	store        Store
	logger       *slog.Logger
	metrics      metrics.MetricsCollector
	fetchTimeout time.Duration
	group        *singleflight.Group

	mu      sync.RWMutex
	entries map[string]*entry[T]
}

// New は新しいCacheを生成する。
func New[T any](opts Options) *Cache[T] {
	c := &Cache[T]{
		store:        opts.Store,
		logger:       opts.Logger,
		metrics:      opts.Metrics,
		fetchTimeout: opts.FetchTimeout,
		entries:      make(map[string]*entry[T]),
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.metrics == nil {
		c.metrics = metrics.NopCollector{}
	}
	if opts.SingleFlight {
		c.group = &singleflight.Group{}
	}
	return c
}

// Register はエンティティとそのフェッチャーを登録する。
// 同じIDで再登録した場合はフェッチャーのみ差し替える。
func (c *Cache[T]) Register(entityID string, fetcher Fetcher[T]) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[entityID]; ok {
		e.mu.Lock()
		e.fetcher = fetcher
		e.mu.Unlock()
		return
	}
	c.entries[entityID] = &entry[T]{fetcher: fetcher}
}

// Entities は登録済みのエンティティIDを返す。
func (c *Cache[T]) Entities() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	ids := make([]string, 0, len(c.entries))
	for id := range c.entries {
		ids = append(ids, id)
	}
	return ids
}

// State はエントリの現在の状態を返す。永続ストアからの読み込みは行わない。
func (c *Cache[T]) State(entityID string) (EntryState, error) {
	e, err := c.lookup(entityID)
	if err != nil {
		return EntryState{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	var st EntryState
	if e.lastFetchedAt != nil {
		st.LastFetchedAt = *e.lastFetchedAt
	}
	st.HasValue = e.value != nil
	return st, nil
}

// Get はエンティティの最新のライブ状態を返す。
//
// 最終フェッチからinterval以上経過している（または未フェッチの）場合のみ1回フェッチする。
// フェッチの成否にかかわらず最終フェッチ時刻はnowへ進む。
// フェッチ失敗は記録するだけで呼び出し元へは返さず、直前の成功値を返す。
// 成功値が一度も得られていない場合はErrNotFoundを返す。
func (c *Cache[T]) Get(ctx context.Context, entityID string, interval time.Duration, now time.Time) (Result[T], error) {
	e, err := c.lookup(entityID)
	if err != nil {
		return Result[T]{}, err
	}

	e.mu.Lock()
	if !e.seeded {
		c.seed(ctx, entityID, e)
	}
	stale := e.lastFetchedAt == nil || now.Sub(*e.lastFetchedAt) >= interval
	var prevFetchedAt time.Time
	if e.lastFetchedAt != nil {
		prevFetchedAt = *e.lastFetchedAt
	}
	fetcher := e.fetcher
	e.mu.Unlock()

	if stale {
		val, fetchErr := c.fetch(ctx, entityID, fetcher, prevFetchedAt)

		replaced := false
		e.mu.Lock()
		if e.lastFetchedAt == nil || now.After(*e.lastFetchedAt) {
			t := now
			e.lastFetchedAt = &t
		}
		// 同時に走った後発のフェッチが既に新しい値を書いている場合は上書きしない
		if fetchErr == nil && (e.value == nil || !now.Before(e.valueFetchedAt)) {
			v := val
			e.value = &v
			e.valueFetchedAt = now
			replaced = true
		}
		e.mu.Unlock()

		if fetchErr == nil {
			if replaced {
				c.persist(ctx, entityID, val, now)
			}
			c.metrics.RecordLookup(entityID, string(SourceFetched))
			return Result[T]{Value: val, Source: SourceFetched, FetchedAt: now}, nil
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.value == nil {
		c.loadValue(ctx, entityID, e)
	}
	if e.value == nil {
		c.metrics.RecordLookup(entityID, "not_found")
		return Result[T]{}, ErrNotFound
	}

	src := SourceCached
	if stale {
		src = SourceStale
	}
	c.metrics.RecordLookup(entityID, string(src))
	return Result[T]{Value: *e.value, Source: src, FetchedAt: e.valueFetchedAt}, nil
}

func (c *Cache[T]) lookup(entityID string) (*entry[T], error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[entityID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEntity, entityID)
	}
	return e, nil
}

// seed はプロセス起動後の最初のアクセスで永続値と取得時刻をエントリへ復元する。
// e.mu を保持した状態で呼び出すこと。
func (c *Cache[T]) seed(ctx context.Context, entityID string, e *entry[T]) {
	e.seeded = true

	snap, ok := c.loadSnapshot(ctx, entityID)
	if !ok {
		return
	}
	v, err := decodeValue[T](snap)
	if err != nil {
		c.logger.Warn("永続値のデコードに失敗しました",
			slog.String("entity", entityID),
			slog.String("error", err.Error()),
		)
		return
	}

	e.value = &v
	e.valueFetchedAt = snap.FetchedAt
	if !snap.FetchedAt.IsZero() {
		t := snap.FetchedAt
		e.lastFetchedAt = &t
	}

	c.logger.Info("永続値からキャッシュを復元しました",
		slog.String("entity", entityID),
		slog.Time("fetched_at", snap.FetchedAt),
	)
}

// loadValue はメモリ上に値がない場合に永続ストアから値のみを読み込む。
// e.mu を保持した状態で呼び出すこと。
func (c *Cache[T]) loadValue(ctx context.Context, entityID string, e *entry[T]) {
	snap, ok := c.loadSnapshot(ctx, entityID)
	if !ok {
		return
	}
	v, err := decodeValue[T](snap)
	if err != nil {
		c.logger.Warn("永続値のデコードに失敗しました",
			slog.String("entity", entityID),
			slog.String("error", err.Error()),
		)
		return
	}
	e.value = &v
	e.valueFetchedAt = snap.FetchedAt
}

func (c *Cache[T]) loadSnapshot(ctx context.Context, entityID string) (*model.Snapshot, bool) {
	if c.store == nil {
		return nil, false
	}
	snap, err := c.store.Load(ctx, entityID)
	if err != nil {
		c.logger.Warn("永続ストアの読み込みに失敗しました",
			slog.String("entity", entityID),
			slog.String("error", err.Error()),
		)
		return nil, false
	}
	if snap == nil {
		return nil, false
	}
	return snap, true
}

func decodeValue[T any](snap *model.Snapshot) (T, error) {
	var v T
	if err := json.Unmarshal(snap.Data, &v); err != nil {
		return v, fmt.Errorf("永続値のJSONパースに失敗: %w", err)
	}
	return v, nil
}

// fetch はタイムアウト付きでフェッチャーを1回呼び出し、結果をログとメトリクスに記録する。
func (c *Cache[T]) fetch(ctx context.Context, entityID string, fetcher Fetcher[T], prevFetchedAt time.Time) (T, error) {
	if c.group == nil {
		return c.doFetch(ctx, entityID, fetcher, prevFetchedAt)
	}

	v, err, shared := c.group.Do(entityID, func() (any, error) {
		return c.doFetch(ctx, entityID, fetcher, prevFetchedAt)
	})
	if shared {
		c.logger.Debug("同時フェッチを共有しました", slog.String("entity", entityID))
	}
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}

func (c *Cache[T]) doFetch(ctx context.Context, entityID string, fetcher Fetcher[T], prevFetchedAt time.Time) (T, error) {
	if c.fetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.fetchTimeout)
		defer cancel()
	}

	start := time.Now()
	val, err := fetcher.Fetch(ctx)
	duration := time.Since(start)
	c.metrics.RecordFetchLatency(entityID, duration)

	if err != nil {
		reason := failureReason(err)
		c.metrics.RecordFetchFailure(entityID, reason)
		attrs := []any{
			slog.String("entity", entityID),
			slog.String("reason", reason),
			slog.String("error", err.Error()),
			slog.Float64("duration_ms", float64(duration.Milliseconds())),
		}
		if !prevFetchedAt.IsZero() {
			attrs = append(attrs, slog.Time("last_fetched_at", prevFetchedAt))
		}
		c.logger.Warn("上流フェッチに失敗しました", attrs...)
		return val, err
	}

	c.metrics.RecordFetchSuccess(entityID)
	c.logger.Info("上流フェッチが完了しました",
		slog.String("entity", entityID),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)
	return val, nil
}

// persist は成功値を永続ストアへ保存する。失敗はログとメトリクスに記録するのみ。
func (c *Cache[T]) persist(ctx context.Context, entityID string, val T, fetchedAt time.Time) {
	if c.store == nil {
		return
	}

	data, err := json.Marshal(val)
	if err == nil {
		err = c.store.Save(ctx, entityID, &model.Snapshot{Data: data, FetchedAt: fetchedAt})
	}
	if err != nil {
		c.metrics.RecordPersistFailure(entityID)
		c.logger.Error("永続ストアへの保存に失敗しました",
			slog.String("entity", entityID),
			slog.String("error", err.Error()),
		)
	}
}

// failureReason はフェッチエラーを失敗理由ラベルに分類する。
func failureReason(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return reasonTimeout
	case errors.Is(err, model.ErrUpstreamShapeMismatch):
		return reasonShapeMismatch
	case errors.Is(err, model.ErrUpstreamUnavailable):
		return reasonUnavailable
	default:
		return reasonUnknown
	}
}
