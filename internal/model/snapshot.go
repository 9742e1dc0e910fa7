package model

import (
	"encoding/json"
	"time"
)

// Snapshot は永続ストアに保存される、エンティティごとの最終成功値。
// DataはLiveStatusのJSON表現、FetchedAtはその値を取得したフェッチの時刻。
type Snapshot struct {
	Data      json.RawMessage
	FetchedAt time.Time
}
