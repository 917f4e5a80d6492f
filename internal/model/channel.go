// Package model はドメインモデルを定義する。
package model

import "time"

// Channel は巡回対象として登録されたフィードを表す。
// Modifiedは最後に記事を追加した時刻（エポック秒）で、条件付きGETの基準にも使う。
type Channel struct {
	ID         string
	CategoryID string // 未分類の場合は空文字列
	Title      string
	Link       string
	Modified   int64
}

// ModifiedTime はModifiedをtime.Timeで返す。未設定（0）の場合はゼロ値を返す。
func (c *Channel) ModifiedTime() time.Time {
	if c.Modified == 0 {
		return time.Time{}
	}
	return time.Unix(c.Modified, 0)
}

// Category はチャンネルの分類を表す。
type Category struct {
	ID    string
	Title string
}
