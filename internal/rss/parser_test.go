package rss

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
)

func mustParseString(t *testing.T, doc string) *Feed {
	t.Helper()
	feed, err := Parse(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("Parse() がエラーを返した: %v", err)
	}
	return feed
}

// rssItems はitem要素の列をRSS 2.0文書に埋め込む。
func rssItems(items string) string {
	return `<rss version="2.0"><channel><title>T</title>` + items + `</channel></rss>`
}

func TestParse_EndToEndRSS20(t *testing.T) {
	feed := mustParseString(t, `<rss version="2.0"><channel><title>T</title><item><title>I1</title><link>http://x/1</link><pubDate>Wed, 02 Oct 2002 13:00:00 GMT</pubDate></item><item><title>I2</title><link>http://x/2</link><pubDate>Wed, 02 Oct 2002 14:00:00 GMT</pubDate></item></channel></rss>`)

	if feed.Version != RSSv20 {
		t.Errorf("Version: got %v, want %v", feed.Version, RSSv20)
	}
	if feed.Title != "T" {
		t.Errorf("Title: got %q, want %q", feed.Title, "T")
	}
	if len(feed.Items) != 2 {
		t.Fatalf("アイテム数: got %d, want 2", len(feed.Items))
	}

	// Itemsは文書順の逆に並ぶ
	if feed.Items[0].Title != "I2" || feed.Items[1].Title != "I1" {
		t.Errorf("アイテム順序: got [%s, %s], want [I2, I1]", feed.Items[0].Title, feed.Items[1].Title)
	}

	i1 := feed.Items[1]
	if i1.URL != "http://x/1" {
		t.Errorf("I1 URL: got %q", i1.URL)
	}
	if i1.Date.Year != 2002 || i1.Date.Month != 10 || i1.Date.Day != 2 || i1.Date.Hour != 13 || i1.Date.Minute != 0 {
		t.Errorf("I1 日付: got %+v", i1.Date)
	}
}

func TestParse_ReversesDocumentOrder(t *testing.T) {
	feed := mustParseString(t, rssItems(
		`<item><title>A</title><link>http://x/a</link></item>`+
			`<item><title>B</title><link>http://x/b</link></item>`+
			`<item><title>C</title><link>http://x/c</link></item>`))

	var got []string
	// 末尾から処理すると文書順になる
	for i := len(feed.Items) - 1; i >= 0; i-- {
		got = append(got, feed.Items[i].Title)
	}
	if strings.Join(got, ",") != "A,B,C" {
		t.Errorf("末尾からの処理順: got %v, want [A B C]", got)
	}
}

func TestParse_ManyItemsReversed(t *testing.T) {
	const n = 2000
	var sb strings.Builder
	for i := 0; i < n; i++ {
		fmt.Fprintf(&sb, "<item><link>http://x/%d</link></item>", i)
	}
	feed := mustParseString(t, rssItems(sb.String()))

	if len(feed.Items) != n {
		t.Fatalf("アイテム数: got %d, want %d", len(feed.Items), n)
	}
	for i, it := range feed.Items {
		if want := fmt.Sprintf("http://x/%d", n-1-i); it.URL != want {
			t.Fatalf("Items[%d].URL: got %q, want %q", i, it.URL, want)
		}
	}
}

func TestParse_LinkPrecedence(t *testing.T) {
	tests := []struct {
		name string
		item string
		want string
	}{
		{
			name: "linkとguidの両方がある場合はlink",
			item: `<item><link>https://a/</link><guid>https://b/</guid></item>`,
			want: "https://a/",
		},
		{
			name: "guidが先に現れてもlinkを優先",
			item: `<item><guid>https://b/</guid><link>https://a/</link></item>`,
			want: "https://a/",
		},
		{
			name: "guidのみ",
			item: `<item><guid>https://b/</guid></item>`,
			want: "https://b/",
		},
		{
			name: "Atomのrel=alternate",
			item: `<item><link rel="alternate" href="https://c/"/></item>`,
			want: "https://c/",
		},
		{
			name: "alternate以外のrelは無視してguidへフォールバック",
			item: `<item><link rel="self" href="https://s/"/><guid>https://b/</guid></item>`,
			want: "https://b/",
		},
		{
			name: "最初の空でない候補を採用",
			item: `<item><link>https://first/</link><link>https://second/</link></item>`,
			want: "https://first/",
		},
		{
			name: "前後の空白を除去",
			item: "<item><link>\n  https://a/\n</link></item>",
			want: "https://a/",
		},
		{
			name: "linkもguidもない",
			item: `<item><title>x</title></item>`,
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			feed := mustParseString(t, rssItems(tt.item))
			if len(feed.Items) != 1 {
				t.Fatalf("アイテム数: got %d, want 1", len(feed.Items))
			}
			if got := feed.Items[0].URL; got != tt.want {
				t.Errorf("URL: got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParse_AtomAlternateLink(t *testing.T) {
	feed := mustParseString(t, `<feed xmlns="http://www.w3.org/2005/Atom"><title>F</title>`+
		`<entry><title>E</title><link rel="alternate" href="https://c/"/><updated>2006-07-19T15:05:00Z</updated></entry></feed>`)

	if feed.Version != Atomv01 {
		t.Errorf("Version: got %v, want %v", feed.Version, Atomv01)
	}
	if len(feed.Items) != 1 {
		t.Fatalf("アイテム数: got %d, want 1", len(feed.Items))
	}
	if feed.Items[0].URL != "https://c/" {
		t.Errorf("URL: got %q, want %q", feed.Items[0].URL, "https://c/")
	}
	if feed.Items[0].Date.Hour != 15 || feed.Items[0].Date.Minute != 5 {
		t.Errorf("日付: got %+v", feed.Items[0].Date)
	}
}

func TestParse_DescriptionFirstSeenWins(t *testing.T) {
	feed := mustParseString(t, rssItems(`<item><description>D1</description><content>D2</content></item>`))
	if got := feed.Items[0].Description; got != "D1" {
		t.Errorf("Description: got %q, want %q", got, "D1")
	}

	feed = mustParseString(t, rssItems(`<item><content>D2</content><description>D1</description></item>`))
	if got := feed.Items[0].Description; got != "D2" {
		t.Errorf("Description: got %q, want %q", got, "D2")
	}
}

func TestParse_ItemDateFirstTagWins(t *testing.T) {
	feed := mustParseString(t, rssItems(`<item><PUBDATE>2006-07-19</PUBDATE><date>2007-01-01</date></item>`))
	d := feed.Items[0].Date
	if !d.Present || !d.Parsed {
		t.Fatalf("日付が解釈されていない: %+v", d)
	}
	if d.Year != 2006 || d.Month != 7 || d.Day != 19 {
		t.Errorf("日付: got %+v, want 2006-07-19", d)
	}
}

func TestParse_ItemWithoutDate(t *testing.T) {
	feed := mustParseString(t, rssItems(`<item><link>http://x/1</link></item>`))
	d := feed.Items[0].Date
	if d.Present {
		t.Error("日付タグがない場合はPresentがfalseであるべき")
	}
	if d.Unix() != 0 {
		t.Errorf("日付タグがない場合のUnix(): got %d, want 0", d.Unix())
	}
}

func TestParse_ChannelMissing(t *testing.T) {
	_, err := Parse(strings.NewReader(`<rss version="2.0"><item><title>x</title></item></rss>`))

	var structErr *StructuralError
	if !errors.As(err, &structErr) {
		t.Fatalf("StructuralError を期待: got %v", err)
	}
	if structErr.Expected != "channel" || structErr.Found != "item" {
		t.Errorf("StructuralError: got %+v", structErr)
	}
}

func TestParse_EmptyRoot(t *testing.T) {
	_, err := Parse(strings.NewReader(`<rss version="2.0">  </rss>`))

	var structErr *StructuralError
	if !errors.As(err, &structErr) {
		t.Fatalf("StructuralError を期待: got %v", err)
	}
}

func TestParse_UnknownFormat(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"html", `<html><head><title>502</title></head></html>`},
		{"versionなしのrss", `<rss><channel/></rss>`},
		{"未知のルート", `<opml version="1.0"/>`},
		{"不正なXML", `<rss version="2.0"><channel>`},
		{"空文書", ``},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tt.doc))
			var unknownErr *UnknownFormatError
			if !errors.As(err, &unknownErr) {
				t.Fatalf("UnknownFormatError を期待: got %v", err)
			}
		})
	}
}

func TestParseFile_RSS20(t *testing.T) {
	feed, err := ParseFile(filepath.Join("testdata", "rss20.xml"))
	if err != nil {
		t.Fatalf("ParseFile() がエラーを返した: %v", err)
	}

	if feed.Title != "T" || feed.Description != "Example channel" || feed.Link != "http://x/" {
		t.Errorf("チャンネル情報: got title=%q desc=%q link=%q", feed.Title, feed.Description, feed.Link)
	}
	if feed.Date.Hour != 8 {
		t.Errorf("チャンネル日付: got %+v", feed.Date)
	}
	if len(feed.Items) != 2 || feed.Items[1].URL != "http://x/1" {
		t.Errorf("アイテム: got %+v", feed.Items)
	}
}

func TestParseFile_RSS10ChannelIsSibling(t *testing.T) {
	feed, err := ParseFile(filepath.Join("testdata", "rss10.xml"))
	if err != nil {
		t.Fatalf("ParseFile() がエラーを返した: %v", err)
	}

	if feed.Version != RSSv10 {
		t.Errorf("Version: got %v, want %v", feed.Version, RSSv10)
	}
	if feed.Title != "RDF Channel" || feed.Description != "RDF description" {
		t.Errorf("チャンネル情報: got title=%q desc=%q", feed.Title, feed.Description)
	}
	if feed.Date.Year != 2006 || feed.Date.Hour != 10 {
		t.Errorf("チャンネル日付: got %+v", feed.Date)
	}
	if len(feed.Items) != 2 {
		t.Fatalf("アイテム数: got %d, want 2", len(feed.Items))
	}
	if feed.Items[0].URL != "http://example.org/b" || feed.Items[1].URL != "http://example.org/a" {
		t.Errorf("アイテムURL: got [%s, %s]", feed.Items[0].URL, feed.Items[1].URL)
	}
	if d := feed.Items[1].Date; d.Hour != 15 || d.Minute != 5 {
		t.Errorf("dc:date: got %+v", d)
	}
}

func TestParseFile_Atom03(t *testing.T) {
	feed, err := ParseFile(filepath.Join("testdata", "atom03.xml"))
	if err != nil {
		t.Fatalf("ParseFile() がエラーを返した: %v", err)
	}

	if feed.Version != Atomv03 {
		t.Errorf("Version: got %v, want %v", feed.Version, Atomv03)
	}
	if feed.Title != "Atom Feed" || feed.Description != "Atom tagline" || feed.Link != "http://example.com/" {
		t.Errorf("フィード情報: got title=%q desc=%q link=%q", feed.Title, feed.Description, feed.Link)
	}
	if len(feed.Items) != 1 {
		t.Fatalf("アイテム数: got %d, want 1", len(feed.Items))
	}
	e := feed.Items[0]
	if e.URL != "http://example.com/1" {
		t.Errorf("URL: got %q", e.URL)
	}
	if e.Description != "S1" {
		t.Errorf("Description: got %q", e.Description)
	}
	if e.Date.Year != 2005 || e.Date.Hour != 10 {
		t.Errorf("日付: got %+v", e.Date)
	}
}
