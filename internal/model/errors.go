// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
)

// 上流プラットフォームのフェッチ失敗を分類する番兵エラー。
// フェッチャーは fmt.Errorf("...: %w", ErrXxx) の形でラップして返す。
var (
	// ErrUpstreamUnavailable はネットワークエラー、非成功ステータス、タイムアウトを表す。
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	// ErrUpstreamShapeMismatch は上流レスポンスを期待する構造に変換できないことを表す。
	ErrUpstreamShapeMismatch = errors.New("upstream shape mismatch")
)

// APIError はHTTP APIのエラーレスポンスを表す。
// レスポンスボディは {"detail": "..."} 形式で返す。
type APIError struct {
	Status int    // HTTPステータスコード
	Detail string // クライアントに返すメッセージ
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%d] %s", e.Status, e.Detail)
}

// NewNotFoundError はエンティティ未取得の404エラーを生成する。
// subjectには "Nicolive User Live" のような表示名を渡す。
func NewNotFoundError(subject string) *APIError {
	return &APIError{
		Status: 404,
		Detail: fmt.Sprintf("%s not found", subject),
	}
}

// NewRouteNotFoundError は未登録ルートの404エラーを生成する。
func NewRouteNotFoundError() *APIError {
	return &APIError{
		Status: 404,
		Detail: "Not Found",
	}
}

// NewInternalError は内部エラーの500エラーを生成する。
func NewInternalError() *APIError {
	return &APIError{
		Status: 500,
		Detail: "Internal Server Error",
	}
}

// NewTooManyRequestsError はレート制限超過の429エラーを生成する。
func NewTooManyRequestsError() *APIError {
	return &APIError{
		Status: 429,
		Detail: "Too Many Requests",
	}
}
