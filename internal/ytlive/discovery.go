package ytlive

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/mmcdole/gofeed"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/youtube/v3"

	"github.com/hitoshi/liveinfo/internal/model"
)

const (
	// DiscoverySearch はsearch.listで最近の動画を探索するモード。
	DiscoverySearch = "search"
	// DiscoveryFeed はチャンネルのAtomフィードで最近の動画を探索するモード。クォータを消費しない。
	DiscoveryFeed = "feed"

	// recentVideoCount は探索する最近の動画の件数。
	recentVideoCount = 10

	defaultFeedEndpoint = "https://www.youtube.com/feeds/videos.xml"
	feedGUIDPrefix      = "yt:video:"
)

// VideoRef は探索で見つかった動画。
// LiveBroadcastContentはsearch.listの場合のみ設定され、フィードの場合は空になる。
type VideoRef struct {
	ID                   string
	LiveBroadcastContent string
}

// Discoverer はチャンネルの最近の動画を新しい順に返す。
type Discoverer interface {
	Discover(ctx context.Context) ([]VideoRef, error)
}

// SearchDiscoverer はsearch.list（order=date）で最近の動画を探索する。
type SearchDiscoverer struct {
	svc       *youtube.Service
	apiKey    string
	channelID string
}

// NewSearchDiscoverer はSearchDiscovererを生成する。
func NewSearchDiscoverer(svc *youtube.Service, apiKey, channelID string) *SearchDiscoverer {
	return &SearchDiscoverer{svc: svc, apiKey: apiKey, channelID: channelID}
}

// Discover はDiscovererインターフェースを実装する。
func (d *SearchDiscoverer) Discover(ctx context.Context) ([]VideoRef, error) {
	resp, err := d.svc.Search.List([]string{"id", "snippet"}).
		ChannelId(d.channelID).
		Type("video").
		Order("date").
		MaxResults(recentVideoCount).
		Context(ctx).
		Do(googleapi.QueryParameter("key", d.apiKey))
	if err != nil {
		return nil, wrapAPIError("search.list", err)
	}

	refs := make([]VideoRef, 0, len(resp.Items))
	for _, item := range resp.Items {
		if item.Id == nil || item.Id.VideoId == "" {
			continue
		}
		ref := VideoRef{ID: item.Id.VideoId}
		if item.Snippet != nil {
			ref.LiveBroadcastContent = item.Snippet.LiveBroadcastContent
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

// FeedDiscoverer はチャンネルのAtomフィードをgofeedでパースして最近の動画を探索する。
type FeedDiscoverer struct {
	httpClient *http.Client
	logger     *slog.Logger
	channelID  string
	userAgent  string
	endpoint   string // テスト用にエンドポイントを差し替え可能
}

// NewFeedDiscoverer はFeedDiscovererを生成する。
func NewFeedDiscoverer(httpClient *http.Client, logger *slog.Logger, channelID, userAgent string) *FeedDiscoverer {
	return &FeedDiscoverer{
		httpClient: httpClient,
		logger:     logger,
		channelID:  channelID,
		userAgent:  userAgent,
		endpoint:   defaultFeedEndpoint,
	}
}

// Discover はDiscovererインターフェースを実装する。
func (d *FeedDiscoverer) Discover(ctx context.Context) ([]VideoRef, error) {
	reqURL, err := url.Parse(d.endpoint)
	if err != nil {
		return nil, fmt.Errorf("フィードURLのパースに失敗しました: %w", err)
	}
	q := reqURL.Query()
	q.Set("channel_id", d.channelID)
	reqURL.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("User-Agent", d.userAgent)
	req.Header.Set("Accept", "application/atom+xml, application/xml, text/xml, */*")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: チャンネルフィードの取得に失敗しました: %w", model.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		d.logger.Warn("チャンネルフィードがエラーステータスを返しました",
			slog.String("channel_id", d.channelID),
			slog.Int("http_status", resp.StatusCode),
		)
		return nil, fmt.Errorf("%w: チャンネルフィードがステータス %d を返しました", model.ErrUpstreamUnavailable, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: レスポンスボディの読み取りに失敗しました: %w", model.ErrUpstreamUnavailable, err)
	}

	parsed, err := gofeed.NewParser().ParseString(string(body))
	if err != nil {
		return nil, fmt.Errorf("%w: チャンネルフィードのパースに失敗しました: %w", model.ErrUpstreamShapeMismatch, err)
	}

	refs := make([]VideoRef, 0, recentVideoCount)
	for _, item := range parsed.Items {
		if len(refs) == recentVideoCount {
			break
		}
		if id := feedVideoID(item); id != "" {
			refs = append(refs, VideoRef{ID: id})
		}
	}
	return refs, nil
}

// feedVideoID はフィードのエントリから動画IDを取り出す。
// yt:videoId 拡張要素を優先し、なければ "yt:video:" で始まるGUIDから取り出す。
func feedVideoID(item *gofeed.Item) string {
	if exts := item.Extensions["yt"]["videoId"]; len(exts) > 0 && exts[0].Value != "" {
		return exts[0].Value
	}
	if strings.HasPrefix(item.GUID, feedGUIDPrefix) {
		return strings.TrimPrefix(item.GUID, feedGUIDPrefix)
	}
	return ""
}
