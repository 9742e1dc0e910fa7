package nicolive

// UserLive はニコニコ生放送ユーザーの最新番組の正規化済み表現。
// 上流が返さなかった項目はJSONでnullになる。
type UserLive struct {
	Program Program `json:"program"`
	User    User    `json:"user"`
}

// Program は番組情報。
type Program struct {
	Title       *string  `json:"title"`
	Description *string  `json:"description"`
	URL         *string  `json:"url"`
	Thumbnails  []string `json:"thumbnails"`
	StartTime   *string  `json:"startTime"`
	EndTime     *string  `json:"endTime"`
	IsOnair     bool     `json:"isOnair"`
}

// User は放送者情報。
type User struct {
	Name    *string `json:"name"`
	URL     *string `json:"url"`
	IconURL *string `json:"iconUrl"`
}

// 以下は user-broadcast-history APIのレスポンス構造。使用する項目のみ定義する。

type broadcastHistoryResponse struct {
	Data *broadcastHistoryData `json:"data"`
}

type broadcastHistoryData struct {
	ProgramsList []historyProgram `json:"programsList"`
}

type historyProgram struct {
	ID              *valueField      `json:"id"`
	Program         *programDetail   `json:"program"`
	ProgramProvider *programProvider `json:"programProvider"`
	Thumbnail       *thumbnail       `json:"thumbnail"`
}

type valueField struct {
	Value *string `json:"value"`
}

type programDetail struct {
	Title       *string   `json:"title"`
	Description *string   `json:"description"`
	Schedule    *schedule `json:"schedule"`
}

type schedule struct {
	Status    *string       `json:"status"`
	BeginTime *scheduleTime `json:"beginTime"`
	EndTime   *scheduleTime `json:"endTime"`
}

type scheduleTime struct {
	Seconds *int64 `json:"seconds"`
}

type programProvider struct {
	ProgramProviderID *valueField    `json:"programProviderId"`
	Name              *string        `json:"name"`
	Icons             *providerIcons `json:"icons"`
}

type providerIcons struct {
	URI150x150 *string `json:"uri150x150"`
}

type thumbnail struct {
	Listing *thumbnailListing `json:"listing"`
}

type thumbnailListing struct {
	XLarge *valueField `json:"xlarge"`
}
