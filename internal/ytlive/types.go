package ytlive

import "google.golang.org/api/youtube/v3"

// ChannelLive はYouTubeチャンネルの最新ライブ番組の正規化済み表現。
type ChannelLive struct {
	Program Program `json:"program"`
	Channel Channel `json:"channel"`
}

// Program はライブ番組（配信中、終了済みのライブ、プレミア公開）の情報。
// 対象となる番組がない場合は各項目がnullになる。
type Program struct {
	ID          *string    `json:"id"`
	Title       *string    `json:"title"`
	Description *string    `json:"description"`
	URL         *string    `json:"url"`
	Thumbnails  Thumbnails `json:"thumbnails"`
	StartTime   *string    `json:"startTime"`
	EndTime     *string    `json:"endTime"`
	IsOnair     bool       `json:"isOnair"`
}

// Channel はチャンネル情報。
type Channel struct {
	ID         *string    `json:"id"`
	Name       *string    `json:"name"`
	URL        *string    `json:"url"`
	Thumbnails Thumbnails `json:"thumbnails"`
}

// Thumbnails はサイズ名（default, medium, high, standard, maxres）からサムネイルへの対応。
type Thumbnails map[string]Thumbnail

// Thumbnail はサムネイル画像。
type Thumbnail struct {
	URL    string `json:"url"`
	Width  int64  `json:"width,omitempty"`
	Height int64  `json:"height,omitempty"`
}

// newThumbnails はAPIのThumbnailDetailsを変換する。nilの場合はnilを返す。
func newThumbnails(d *youtube.ThumbnailDetails) Thumbnails {
	if d == nil {
		return nil
	}

	out := make(Thumbnails, 5)
	add := func(name string, t *youtube.Thumbnail) {
		if t == nil || t.Url == "" {
			return
		}
		out[name] = Thumbnail{URL: t.Url, Width: t.Width, Height: t.Height}
	}
	add("default", d.Default)
	add("medium", d.Medium)
	add("high", d.High)
	add("standard", d.Standard)
	add("maxres", d.Maxres)

	if len(out) == 0 {
		return nil
	}
	return out
}
