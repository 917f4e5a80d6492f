package rss

import (
	"bytes"
	"io"
	"slices"
	"strings"

	"github.com/hitoshi/rssroll/internal/xmltree"
)

// Feed はパース済みのフィード文書を表す。
// Itemsは文書順の逆（末尾のアイテムが先頭）に並ぶ。
type Feed struct {
	Version     Version
	Title       string
	Description string
	Link        string
	Date        Date
	Items       []Item
}

// Item はフィード内の1記事を表す。
type Item struct {
	Title       string
	URL         string
	Description string
	Date        Date
}

// Parse はrからフィード文書を読み込み、形式を判定してパースする。
func Parse(r io.Reader) (*Feed, error) {
	doc, err := xmltree.Parse(r)
	if err != nil {
		return nil, &UnknownFormatError{Err: err}
	}
	return ParseDocument(doc)
}

// ParseBytes はバイト列のフィード文書をパースする。
func ParseBytes(data []byte) (*Feed, error) {
	return Parse(bytes.NewReader(data))
}

// ParseFile はファイルのフィード文書をパースする。
func ParseFile(path string) (*Feed, error) {
	doc, err := xmltree.ParseFile(path)
	if err != nil {
		return nil, &UnknownFormatError{Err: err}
	}
	return ParseDocument(doc)
}

// ParseDocument は構築済みのXMLツリーからフィードを生成する。
// RSS系（Atom未満）の形式ではルート直下の最初の要素がchannelでなければならない。
// RSS 1.0以外ではchannelの子要素を、RSS 1.0とAtomではルートの子要素を走査する。
func ParseDocument(doc *xmltree.Document) (*Feed, error) {
	if doc == nil || doc.Root == nil {
		return nil, &UnknownFormatError{Err: xmltree.ErrNoRoot}
	}

	version := Detect(doc.Root)
	if version == VersionUnknown {
		return nil, &UnknownFormatError{Root: doc.Root.QName()}
	}

	feed := &Feed{Version: version}

	first := doc.Root.FirstNonBlankChild()
	if first == nil {
		expected := "channel"
		if version.IsAtom() {
			expected = "entry"
		}
		return nil, &StructuralError{Version: version, Expected: expected}
	}

	body := doc.Root
	if !version.IsAtom() {
		if !first.Is("channel") {
			return nil, &StructuralError{Version: version, Expected: "channel", Found: first.QName()}
		}
		if version != RSSv10 {
			body = first
		}
	}

	parseHead(feed, body.NonBlankChildren())
	return feed, nil
}

// parseHead はチャンネル本体の子要素をタグ名で振り分ける。
// item/entryは文書順に集めた後で反転し、Itemsを文書順の逆にする。
func parseHead(feed *Feed, nodes []*xmltree.Node) {
	for _, node := range nodes {
		switch {
		case node.Is("title"):
			feed.Title = text(node)
		case node.Is("description"):
			feed.Description = text(node)
		case feed.Version.IsAtom() && (node.Is("subtitle") || node.Is("tagline")):
			if feed.Description == "" {
				feed.Description = text(node)
			}
		case node.Is("link"):
			if feed.Link == "" {
				feed.Link = linkCandidate(node)
			}
		case xmltree.IsDateTag(node):
			feed.Date = ParseDate(text(node))
		case node.Is("channel") && feed.Version == RSSv10:
			parseChannel(feed, node.Children)
		case node.Is("item"), node.Is("entry"):
			feed.Items = append(feed.Items, parseItem(node.NonBlankChildren()))
		}
	}
	slices.Reverse(feed.Items)
}

// parseChannel はRSS 1.0のchannel要素からチャンネル情報を取り出す。
func parseChannel(feed *Feed, nodes []*xmltree.Node) {
	for _, node := range nodes {
		switch {
		case node.Is("title"):
			feed.Title = text(node)
		case node.Is("description"):
			feed.Description = text(node)
		case node.Is("link"):
			if feed.Link == "" {
				feed.Link = linkCandidate(node)
			}
		case xmltree.IsDateTag(node):
			feed.Date = ParseDate(text(node))
		}
	}
}

// parseItem はitem/entry要素の子要素から1記事を組み立てる。
// URLはlinkから得た候補を優先し、なければguidを使う。
// 説明と日付は最初に現れたものを採用する。
func parseItem(nodes []*xmltree.Node) Item {
	var (
		item Item
		link string
		guid string
	)

	for _, node := range nodes {
		switch {
		case node.Is("title"):
			item.Title = text(node)
		case node.Is("link"):
			if link == "" {
				link = linkCandidate(node)
			}
		case node.Is("guid"):
			if guid == "" {
				guid = text(node)
			}
		case node.Is("description"), node.Is("content"), node.Is("summary"):
			if item.Description == "" {
				item.Description = text(node)
			}
		case xmltree.IsDateTag(node):
			if !item.Date.Present {
				item.Date = ParseDate(text(node))
			}
		}
	}

	item.URL = link
	if item.URL == "" {
		item.URL = guid
	}
	return item
}

// linkCandidate はlink要素からURL候補を取り出す。
// rel属性がある場合（Atom）はrel="alternate"のときだけhrefを採用する。
// rel属性がない場合は要素のテキスト（RSS）、テキストが空ならhrefを採用する。
func linkCandidate(node *xmltree.Node) string {
	if rel, ok := node.Attr("rel"); ok {
		if rel == "alternate" {
			href, _ := node.Attr("href")
			return strings.TrimSpace(href)
		}
		return ""
	}
	if t := text(node); t != "" {
		return t
	}
	href, _ := node.Attr("href")
	return strings.TrimSpace(href)
}

func text(node *xmltree.Node) string {
	return strings.TrimSpace(node.Text())
}
