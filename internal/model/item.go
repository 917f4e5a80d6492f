package model

// Item は保存済みの記事を表す。
// (ChannelID, Link, PubDate) の組で一意になる。
type Item struct {
	ID          string
	ChannelID   string
	Modified    int64
	Link        string
	Title       string
	Description string
	PubDate     int64 // エポック秒。日付がない記事は0
}

// DedupKey は記事の重複判定キーを表す。
type DedupKey struct {
	ChannelID string
	Link      string
	PubDate   int64
}

// Key は記事の重複判定キーを返す。
func (i *Item) Key() DedupKey {
	return DedupKey{ChannelID: i.ChannelID, Link: i.Link, PubDate: i.PubDate}
}
