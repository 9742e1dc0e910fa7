// Package security はアプリケーションのセキュリティ機能を提供する。
//
// ContentSanitizerService は上流から取得した説明文のHTMLを無害化し、
// 改行を保ったプレーンテキストへ変換する。
package security

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
)

// ContentSanitizerService はHTMLコンテンツのサニタイズ機能のインターフェースを定義する。
type ContentSanitizerService interface {
	// Sanitize はbrタグ以外のすべてのタグを除去したHTMLを返す。
	// script, styleタグは中身ごと除去される。
	Sanitize(rawHTML string) string

	// ToText はHTMLをプレーンテキストへ変換する。brタグは改行になり、
	// 文字参照はデコードされる。空文字列の入力には空文字列を返す。
	ToText(rawHTML string) string
}

// contentSanitizer はContentSanitizerServiceの実装。
// bluemondayのポリシーはスレッドセーフなため、共有して使用する。
type contentSanitizer struct {
	policy *bluemonday.Policy
}

// NewContentSanitizer はContentSanitizerServiceの新しいインスタンスを生成する。
func NewContentSanitizer() *contentSanitizer {
	p := bluemonday.NewPolicy()
	p.AllowElements("br")

	return &contentSanitizer{
		policy: p,
	}
}

// Sanitize はbrタグのみを残したHTMLを返す。
func (s *contentSanitizer) Sanitize(rawHTML string) string {
	return s.policy.Sanitize(rawHTML)
}

// ToText はHTMLをプレーンテキストへ変換する。
func (s *contentSanitizer) ToText(rawHTML string) string {
	if rawHTML == "" {
		return ""
	}
	return HTMLToText(s.Sanitize(rawHTML))
}

// HTMLToText はHTMLのテキストノードを連結し、brタグを改行に置き換える。
// タグの無害化は行わないため、信頼できない入力にはToTextを使用すること。
func HTMLToText(fragment string) string {
	var b strings.Builder
	z := html.NewTokenizer(strings.NewReader(fragment))

	for {
		switch z.Next() {
		case html.ErrorToken:
			return b.String()
		case html.TextToken:
			b.WriteString(z.Token().Data)
		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			if string(name) == "br" {
				b.WriteByte('\n')
			}
		}
	}
}
