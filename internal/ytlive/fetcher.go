// Package ytlive はYouTube Data API v3からチャンネルの最新ライブ番組を取得する
// フェッチャーを提供する。
package ytlive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"

	"github.com/hitoshi/liveinfo/internal/model"
)

const (
	// EntityID はキャッシュとルーティングで使用するエンティティID。
	EntityID = "ytlive"
	// DisplayName は404レスポンスで使用する表示名。
	DisplayName = "Ytlive Channel Live"

	broadcastLive = "live"
	broadcastNone = "none"

	privacyPublic = "public"
)

// Options はFetcherの設定。
type Options struct {
	ChannelID string
	APIKey    string
	UserAgent string
	// Discovery は最近の動画の探索方法（DiscoverySearch または DiscoveryFeed）。空の場合はsearch。
	Discovery string
	// APIEndpoint はYouTube Data APIのベースURL。空の場合は既定値。
	APIEndpoint string
}

// Fetcher はYouTubeチャンネルの最新ライブ番組を取得する。
// refresh.Fetcher[ChannelLive] を実装する。
type Fetcher struct {
	svc       *youtube.Service
	discover  Discoverer
	logger    *slog.Logger
	channelID string
	apiKey    string
}

// NewFetcher はFetcherの新しいインスタンスを生成する。
func NewFetcher(ctx context.Context, httpClient *http.Client, logger *slog.Logger, opts Options) (*Fetcher, error) {
	clientOpts := []option.ClientOption{option.WithHTTPClient(httpClient)}
	if opts.APIEndpoint != "" {
		clientOpts = append(clientOpts, option.WithEndpoint(opts.APIEndpoint))
	}

	svc, err := youtube.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("YouTubeサービスの作成に失敗しました: %w", err)
	}
	svc.UserAgent = opts.UserAgent

	var discover Discoverer
	switch opts.Discovery {
	case "", DiscoverySearch:
		discover = NewSearchDiscoverer(svc, opts.APIKey, opts.ChannelID)
	case DiscoveryFeed:
		discover = NewFeedDiscoverer(httpClient, logger, opts.ChannelID, opts.UserAgent)
	default:
		return nil, fmt.Errorf("不明な探索方法です: %q", opts.Discovery)
	}

	return &Fetcher{
		svc:       svc,
		discover:  discover,
		logger:    logger,
		channelID: opts.ChannelID,
		apiKey:    opts.APIKey,
	}, nil
}

// Fetch はチャンネル情報と最近の動画を並行して取得し、最新のライブ番組を選んで返す。
// 対象となる番組がない場合は番組の項目がnullでチャンネル情報のみを持つ値を返す。
func (f *Fetcher) Fetch(ctx context.Context) (ChannelLive, error) {
	var (
		channel *youtube.Channel
		refs    []VideoRef
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		ch, err := f.fetchChannel(gctx)
		if err != nil {
			return err
		}
		channel = ch
		return nil
	})
	g.Go(func() error {
		r, err := f.discover.Discover(gctx)
		if err != nil {
			return err
		}
		refs = r
		return nil
	})
	if err := g.Wait(); err != nil {
		f.logFailure(err)
		return ChannelLive{}, err
	}

	var videos []*youtube.Video
	if len(refs) > 0 {
		v, err := f.fetchVideos(ctx, refs)
		if err != nil {
			f.logFailure(err)
			return ChannelLive{}, err
		}
		videos = v
	}

	video, onair := selectLiveVideo(videos, refs)
	return buildChannelLive(f.channelID, channel, video, onair), nil
}

func (f *Fetcher) fetchChannel(ctx context.Context) (*youtube.Channel, error) {
	resp, err := f.svc.Channels.List([]string{"snippet"}).
		Id(f.channelID).
		Context(ctx).
		Do(googleapi.QueryParameter("key", f.apiKey))
	if err != nil {
		return nil, wrapAPIError("channels.list", err)
	}
	if len(resp.Items) == 0 || resp.Items[0].Snippet == nil {
		return nil, fmt.Errorf("%w: チャンネルが見つかりません: %s", model.ErrUpstreamShapeMismatch, f.channelID)
	}
	return resp.Items[0], nil
}

func (f *Fetcher) fetchVideos(ctx context.Context, refs []VideoRef) ([]*youtube.Video, error) {
	ids := make([]string, 0, len(refs))
	for _, r := range refs {
		ids = append(ids, r.ID)
	}

	resp, err := f.svc.Videos.List([]string{"snippet", "status", "liveStreamingDetails"}).
		Id(ids...).
		Context(ctx).
		Do(googleapi.QueryParameter("key", f.apiKey))
	if err != nil {
		return nil, wrapAPIError("videos.list", err)
	}
	return resp.Items, nil
}

func (f *Fetcher) logFailure(err error) {
	attrs := []any{slog.String("channel_id", f.channelID), slog.String("error", err.Error())}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		attrs = append(attrs, slog.Int("http_status", apiErr.Code))
	}
	f.logger.Warn("YouTube Data APIからの取得に失敗しました", attrs...)
}

// wrapAPIError はAPI呼び出しのエラーを分類する。
// JSONのデコード失敗は形式不一致、それ以外（HTTPエラー、ネットワークエラー）は取得不可として扱う。
func wrapAPIError(op string, err error) error {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return fmt.Errorf("%w: %s: %w", model.ErrUpstreamShapeMismatch, op, err)
	}
	return fmt.Errorf("%w: %s: %w", model.ErrUpstreamUnavailable, op, err)
}

// selectLiveVideo は公開済みのライブ動画のうち実際の開始時刻が最も新しいものを選ぶ。
// 開始時刻が同じ場合は先に現れたものを優先する。開始時刻がない動画は最も古いものとして扱う。
// 2番目の戻り値は選ばれた動画が配信中かどうか。
func selectLiveVideo(videos []*youtube.Video, refs []VideoRef) (*youtube.Video, bool) {
	searchLBC := make(map[string]string, len(refs))
	for _, r := range refs {
		if r.LiveBroadcastContent != "" {
			searchLBC[r.ID] = r.LiveBroadcastContent
		}
	}

	var (
		best      *youtube.Video
		bestStart time.Time
		bestLive  bool
	)
	for _, v := range videos {
		if v == nil || v.Status == nil || v.Status.PrivacyStatus != privacyPublic {
			continue
		}

		lbc, ok := searchLBC[v.Id]
		if !ok && v.Snippet != nil {
			lbc = v.Snippet.LiveBroadcastContent
		}
		if lbc != broadcastLive && !(lbc == broadcastNone && v.LiveStreamingDetails != nil) {
			continue
		}

		start := actualStartTime(v)
		if best == nil || bestStart.Before(start) {
			best = v
			bestStart = start
			bestLive = lbc == broadcastLive
		}
	}
	return best, bestLive
}

func actualStartTime(v *youtube.Video) time.Time {
	if v.LiveStreamingDetails == nil || v.LiveStreamingDetails.ActualStartTime == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, v.LiveStreamingDetails.ActualStartTime)
	if err != nil {
		return time.Time{}
	}
	return t
}

func buildChannelLive(channelID string, channel *youtube.Channel, video *youtube.Video, onair bool) ChannelLive {
	out := ChannelLive{
		Channel: Channel{
			ID:         strPtr(channelID),
			Name:       strPtr(channel.Snippet.Title),
			Thumbnails: newThumbnails(channel.Snippet.Thumbnails),
		},
	}

	if video != nil {
		id := video.Id
		out.Program = Program{
			ID:      strPtr(id),
			URL:     strPtr("https://www.youtube.com/watch?v=" + id),
			IsOnair: onair,
		}
		if s := video.Snippet; s != nil {
			out.Program.Title = strPtr(s.Title)
			out.Program.Description = strPtr(s.Description)
			out.Program.Thumbnails = newThumbnails(s.Thumbnails)
			if s.ChannelId != "" {
				out.Channel.ID = strPtr(s.ChannelId)
			}
			if s.ChannelTitle != "" {
				out.Channel.Name = strPtr(s.ChannelTitle)
			}
		}
		if d := video.LiveStreamingDetails; d != nil {
			out.Program.StartTime = optStr(d.ActualStartTime)
			out.Program.EndTime = optStr(d.ActualEndTime)
		}
	}

	if custom := channel.Snippet.CustomUrl; custom != "" {
		out.Channel.URL = strPtr("https://www.youtube.com/" + custom)
	} else {
		out.Channel.URL = strPtr("https://www.youtube.com/channel/" + *out.Channel.ID)
	}
	return out
}

func strPtr(s string) *string {
	return &s
}

// optStr は空文字列をnilとして扱う。
func optStr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
