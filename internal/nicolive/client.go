// Package nicolive はニコニコ生放送のユーザー放送履歴APIから
// 最新番組の状態を取得するフェッチャーを提供する。
package nicolive

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/hitoshi/liveinfo/internal/model"
)

const (
	// EntityID はキャッシュとルーティングで使用するエンティティID。
	EntityID = "nicolive"
	// DisplayName は404レスポンスで使用する表示名。
	DisplayName = "Nicolive User Live"

	// defaultEndpoint はユーザー放送履歴APIのエンドポイント。
	defaultEndpoint = "https://live.nicovideo.jp/front/api/v2/user-broadcast-history"

	statusOnAir = "ON_AIR"
)

// jst は開始・終了時刻の表現に使用するタイムゾーン。
var jst = time.FixedZone("JST", 9*60*60)

// TextConverter は説明文のHTMLをプレーンテキストへ変換する。
type TextConverter interface {
	ToText(rawHTML string) string
}

// Client はニコニコ生放送APIのクライアント。
// refresh.Fetcher[UserLive] を実装する。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	text       TextConverter
	userID     string
	userAgent  string
	endpoint   string // テスト用にエンドポイントを差し替え可能
}

// NewClient はClientの新しいインスタンスを生成する。
func NewClient(httpClient *http.Client, logger *slog.Logger, text TextConverter, userID, userAgent string) *Client {
	return &Client{
		httpClient: httpClient,
		logger:     logger,
		text:       text,
		userID:     userID,
		userAgent:  userAgent,
		endpoint:   defaultEndpoint,
	}
}

// Fetch はユーザーの最新番組を1件取得し、正規化して返す。
// 番組が1件もない場合はnullの項目とisOnair=falseを持つ値を返す（成功扱い）。
// 非200ステータスとネットワークエラーはErrUpstreamUnavailable、
// JSONのパース失敗はErrUpstreamShapeMismatchでラップして返す。
func (c *Client) Fetch(ctx context.Context) (UserLive, error) {
	reqURL, err := url.Parse(c.endpoint)
	if err != nil {
		return UserLive{}, fmt.Errorf("エンドポイントURLのパースに失敗しました: %w", err)
	}

	q := reqURL.Query()
	q.Set("providerId", c.userID)
	q.Set("providerType", "user")
	q.Set("isIncludeNonPublic", "false")
	q.Set("offset", "0")
	q.Set("limit", "1")
	q.Set("withTotalCount", "true")
	reqURL.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL.String(), nil)
	if err != nil {
		return UserLive{}, fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return UserLive{}, fmt.Errorf("%w: ニコニコ生放送APIの呼び出しに失敗しました: %w", model.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// エラー本文は調査用にログへ残す
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.logger.Warn("ニコニコ生放送APIがエラーステータスを返しました",
			slog.Int("http_status", resp.StatusCode),
			slog.String("body", string(snippet)),
		)
		return UserLive{}, fmt.Errorf("%w: ニコニコ生放送APIがステータス %d を返しました", model.ErrUpstreamUnavailable, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return UserLive{}, fmt.Errorf("%w: レスポンスボディの読み取りに失敗しました: %w", model.ErrUpstreamUnavailable, err)
	}

	var history broadcastHistoryResponse
	if err := json.Unmarshal(body, &history); err != nil {
		return UserLive{}, fmt.Errorf("%w: レスポンスJSONのパースに失敗しました: %w", model.ErrUpstreamShapeMismatch, err)
	}

	return c.normalize(&history), nil
}

// normalize は放送履歴の先頭番組をUserLiveへ変換する。
func (c *Client) normalize(history *broadcastHistoryResponse) UserLive {
	var live UserLive

	if history.Data == nil || len(history.Data.ProgramsList) == 0 {
		return live
	}
	p := history.Data.ProgramsList[0]

	if p.ID != nil && p.ID.Value != nil {
		live.Program.URL = strPtr("https://live.nicovideo.jp/watch/" + *p.ID.Value)
	}

	if d := p.Program; d != nil {
		live.Program.Title = d.Title
		if d.Description != nil {
			live.Program.Description = strPtr(c.text.ToText(*d.Description))
		}
		if s := d.Schedule; s != nil {
			live.Program.IsOnair = s.Status != nil && *s.Status == statusOnAir
			live.Program.StartTime = formatEpoch(s.BeginTime)
			live.Program.EndTime = formatEpoch(s.EndTime)
		}
	}

	if t := p.Thumbnail; t != nil && t.Listing != nil && t.Listing.XLarge != nil && t.Listing.XLarge.Value != nil {
		live.Program.Thumbnails = []string{*t.Listing.XLarge.Value}
	}

	if pp := p.ProgramProvider; pp != nil {
		live.User.Name = pp.Name
		if pp.ProgramProviderID != nil && pp.ProgramProviderID.Value != nil {
			live.User.URL = strPtr("https://www.nicovideo.jp/user/" + *pp.ProgramProviderID.Value)
		}
		if pp.Icons != nil {
			live.User.IconURL = pp.Icons.URI150x150
		}
	}

	return live
}

// formatEpoch はエポック秒をJSTのISO-8601文字列に変換する。
func formatEpoch(st *scheduleTime) *string {
	if st == nil || st.Seconds == nil {
		return nil
	}
	return strPtr(time.Unix(*st.Seconds, 0).In(jst).Format(time.RFC3339))
}

func strPtr(s string) *string {
	return &s
}
