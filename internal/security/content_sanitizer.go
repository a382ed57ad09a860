// Package security はアプリケーションのセキュリティ機能を提供する。
//
// ContentSanitizerService は投稿・コメント・メッセージ本文からHTMLを除去する。
// 結果はエスケープしないプレーンテキストで、描画側はテキストとして扱う。
package security

import (
	"html"
	"strings"
	"unicode"

	"github.com/microcosm-cc/bluemonday"
)

// ContentSanitizerService は利用者入力テキストのサニタイズ機能のインターフェースを定義する。
type ContentSanitizerService interface {
	// Sanitize は全てのHTMLタグを除去し、前後の空白を取り除いたテキストを返す。
	// script, style 要素は中身ごと除去される。
	// & や < などタグでない文字はそのまま残し、エンティティは復元する。
	// 結果に対して再度 Sanitize を呼んでも変化しない。
	// 改行はLFに統一し、改行とタブ以外の制御文字は除去する。
	Sanitize(raw string) string
}

// contentSanitizer はContentSanitizerServiceの実装。
// bluemondayのポリシーはスレッドセーフなので共有してよい。
type contentSanitizer struct {
	policy *bluemonday.Policy
}

// NewContentSanitizer はContentSanitizerServiceの新しいインスタンスを生成する。
func NewContentSanitizer() *contentSanitizer {
	return &contentSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// maxStripPasses はエンティティで入れ子にされたタグを剥がす回数の上限。
const maxStripPasses = 8

// Sanitize は全てのHTMLを除去したテキストを返す。
// 復元したエンティティがタグになる場合があるため、変化しなくなるまで除去を繰り返す。
func (s *contentSanitizer) Sanitize(raw string) string {
	text := strings.ReplaceAll(raw, "\r\n", "\n")
	text = strings.Map(dropControl, text)
	for i := 0; i < maxStripPasses; i++ {
		next := html.UnescapeString(s.policy.Sanitize(text))
		next = strings.TrimSpace(strings.Map(dropControl, next))
		if next == text {
			break
		}
		text = next
	}
	return text
}

// dropControl は改行とタブ以外の制御文字を除去するstrings.Map用の関数。
func dropControl(r rune) rune {
	switch {
	case r == '\n' || r == '\t':
		return r
	case r == '\r':
		return '\n'
	case unicode.IsControl(r):
		return -1
	}
	return r
}

// compile-time interface check
var _ ContentSanitizerService = (*contentSanitizer)(nil)
