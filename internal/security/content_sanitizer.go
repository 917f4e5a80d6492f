package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// Sanitizer は保存前の記事タイトルと説明文をサニタイズする。
// bluemondayのポリシーはスレッドセーフなので、複数のgoroutineから共有できる。
type Sanitizer struct {
	description *bluemonday.Policy
	title       *bluemonday.Policy
}

// NewSanitizer はSanitizerを生成する。
// 説明文にはUGCポリシーを使い、script、iframe、styleとon*属性を除去する。
// リンクには rel="nofollow noreferrer noopener" と target="_blank" を付与する。
// タイトルはタグをすべて取り除いたプレーンテキストにする。
func NewSanitizer() *Sanitizer {
	desc := bluemonday.UGCPolicy()
	desc.AllowRelativeURLs(false)
	desc.RequireNoReferrerOnLinks(true)
	desc.AddTargetBlankToFullyQualifiedLinks(true)

	return &Sanitizer{
		description: desc,
		title:       bluemonday.StrictPolicy(),
	}
}

// Description は説明文のHTMLをサニタイズする。空文字列には空文字列を返す。
func (s *Sanitizer) Description(rawHTML string) string {
	if rawHTML == "" {
		return ""
	}
	return strings.TrimSpace(s.description.Sanitize(rawHTML))
}

// Title はタイトルからタグを取り除く。
// StrictPolicyがエスケープした文字参照は元の文字に戻す。
func (s *Sanitizer) Title(raw string) string {
	if raw == "" {
		return ""
	}
	return strings.TrimSpace(html.UnescapeString(s.title.Sanitize(raw)))
}
