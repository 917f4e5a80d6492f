// Package rss はRSS 0.9x/1.0/2.0およびAtom 0.1〜0.3文書の形式判定とパースを提供する。
// 形式判定（demux）、日付の正規化、フィードとアイテムへの正規化を含む。
package rss

import (
	"github.com/hitoshi/rssroll/internal/xmltree"
)

// Version はフィード文書の形式を表す。
// 定数の順序は意味を持ち、Atomv01未満はRSS系の形式である。
type Version int

const (
	// VersionUnknown はフィードとして認識できない文書。
	VersionUnknown Version = iota - 1
	RSSv090
	RSSv091
	RSSv092
	RSSv093
	RSSv094
	RSSv10
	RSSv20
	Atomv01
	Atomv02
	Atomv03
)

var versionNames = map[Version]string{
	RSSv090: "RSS 0.90",
	RSSv091: "RSS 0.91",
	RSSv092: "RSS 0.92",
	RSSv093: "RSS 0.93",
	RSSv094: "RSS 0.94",
	RSSv10:  "RSS 1.0",
	RSSv20:  "RSS 2.0",
	Atomv01: "Atom 0.1",
	Atomv02: "Atom 0.2",
	Atomv03: "Atom 0.3",
}

// String は形式の表示名を返す。
func (v Version) String() string {
	if name, ok := versionNames[v]; ok {
		return name
	}
	return "unknown"
}

// IsAtom はAtom系の形式かどうかを返す。
func (v Version) IsAtom() bool {
	return v >= Atomv01
}

// rssVersions はrss要素のversion属性値と形式の対応。
var rssVersions = map[string]Version{
	"0.90": RSSv090,
	"0.91": RSSv091,
	"0.92": RSSv092,
	"0.93": RSSv093,
	"0.94": RSSv094,
	"2":    RSSv20,
	"2.0":  RSSv20,
	"2.00": RSSv20,
}

// Detect はルート要素から文書の形式を判定する。
//   - html: 不明（フィードの代わりにエラーページを取得した場合）
//   - feed: Atom。version属性が "0.3"/"0.2" ならそれぞれ、それ以外は0.1
//   - rss: version属性必須。0.90〜0.94、2/2.0/2.00 を認識し、それ以外は不明
//   - rdf/RDF: RSS 1.0
func Detect(root *xmltree.Node) Version {
	if root == nil || root.Type != xmltree.ElementNode {
		return VersionUnknown
	}

	switch {
	case root.Is("html"):
		return VersionUnknown
	case root.Is("feed"):
		v, _ := root.Attr("version")
		switch v {
		case "0.3":
			return Atomv03
		case "0.2":
			return Atomv02
		default:
			return Atomv01
		}
	case root.Is("rss"):
		v, ok := root.Attr("version")
		if !ok {
			return VersionUnknown
		}
		if version, ok := rssVersions[v]; ok {
			return version
		}
		return VersionUnknown
	case root.Is("rdf"), root.Is("RDF"):
		return RSSv10
	}

	return VersionUnknown
}
