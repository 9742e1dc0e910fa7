package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/liveinfo/internal/config"
	"github.com/hitoshi/liveinfo/internal/database"
	"github.com/hitoshi/liveinfo/internal/handler"
	"github.com/hitoshi/liveinfo/internal/metrics"
	"github.com/hitoshi/liveinfo/internal/nicolive"
	"github.com/hitoshi/liveinfo/internal/refresh"
	"github.com/hitoshi/liveinfo/internal/repository"
	"github.com/hitoshi/liveinfo/internal/ytlive"
)

// refreshFunc はエンティティを間隔を無視して1回フェッチし、結果の出所を返す。
type refreshFunc func(ctx context.Context) (refresh.Source, error)

// platforms は設定済みの監視対象ごとのLiveSourceとリフレッシュ関数。
type platforms struct {
	sources    map[string]handler.LiveSource
	refreshers map[string]refreshFunc
}

type platformDeps struct {
	store      refresh.Store
	httpClient *http.Client
	metrics    metrics.MetricsCollector
	logger     *slog.Logger
	text       nicolive.TextConverter
}

// openStore はSTORE_BACKENDに応じた永続ストアを開く。
// 戻り値のio.Closerは接続を閉じるためのもので、ファイルストアの場合も非nil。
func openStore(ctx context.Context, cfg *config.Config) (refresh.Store, io.Closer, error) {
	switch cfg.StoreBackend {
	case config.StorePostgres:
		db, err := database.OpenAndPing(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		return repository.NewPostgresSnapshotRepo(db), db, nil

	case config.StoreValkey:
		client, err := database.OpenValkey(database.ValkeyConfig{
			Addr:     cfg.ValkeyAddr,
			Password: cfg.ValkeyPassword,
			DB:       cfg.ValkeyDB,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open valkey client: %w", err)
		}
		if err := database.PingValkey(ctx, client); err != nil {
			client.Close()
			return nil, nil, fmt.Errorf("failed to connect to valkey: %w", err)
		}
		return repository.NewValkeySnapshotRepo(client), closerFunc(func() error {
			client.Close()
			return nil
		}), nil

	default:
		paths := map[string]string{}
		if cfg.Nicolive.Enabled() {
			paths[nicolive.EntityID] = cfg.Nicolive.DumpPath
		}
		if cfg.Ytlive.Enabled() {
			paths[ytlive.EntityID] = cfg.Ytlive.DumpPath
		}
		return repository.NewFileSnapshotRepo(paths), closerFunc(func() error { return nil }), nil
	}
}

// buildPlatforms は設定された監視対象ごとにフェッチャーとキャッシュを構築する。
func buildPlatforms(ctx context.Context, cfg *config.Config, deps platformDeps) (*platforms, error) {
	p := &platforms{
		sources:    make(map[string]handler.LiveSource),
		refreshers: make(map[string]refreshFunc),
	}

	opts := refresh.Options{
		Store:        deps.store,
		Logger:       deps.logger,
		Metrics:      deps.metrics,
		FetchTimeout: cfg.FetchTimeout,
		SingleFlight: cfg.CacheSingleFlight,
	}

	if cfg.Nicolive.Enabled() {
		cache := refresh.New[nicolive.UserLive](opts)
		cache.Register(nicolive.EntityID, nicolive.NewClient(
			deps.httpClient, deps.logger, deps.text, cfg.Nicolive.UserID, cfg.UserAgent,
		))
		p.sources[nicolive.EntityID] = handler.NewCacheSource(cache, nicolive.EntityID, nicolive.DisplayName, cfg.Nicolive.Interval)
		p.refreshers[nicolive.EntityID] = forceRefresh(cache, nicolive.EntityID)
	}

	if cfg.Ytlive.Enabled() {
		fetcher, err := ytlive.NewFetcher(ctx, deps.httpClient, deps.logger, ytlive.Options{
			ChannelID: cfg.Ytlive.ChannelID,
			APIKey:    cfg.Ytlive.APIKey,
			UserAgent: cfg.UserAgent,
			Discovery: cfg.Ytlive.Discovery,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create youtube fetcher: %w", err)
		}
		cache := refresh.New[ytlive.ChannelLive](opts)
		cache.Register(ytlive.EntityID, fetcher)
		p.sources[ytlive.EntityID] = handler.NewCacheSource(cache, ytlive.EntityID, ytlive.DisplayName, cfg.Ytlive.Interval)
		p.refreshers[ytlive.EntityID] = forceRefresh(cache, ytlive.EntityID)
	}

	return p, nil
}

// forceRefresh はinterval=0でGetを呼び、必ず1回フェッチさせる関数を返す。
func forceRefresh[T any](cache *refresh.Cache[T], entityID string) refreshFunc {
	return func(ctx context.Context) (refresh.Source, error) {
		res, err := cache.Get(ctx, entityID, 0, time.Now())
		if err != nil {
			return "", err
		}
		return res.Source, nil
	}
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }
