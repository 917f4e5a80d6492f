// Package xmltree はフィード文書をDOM形式のノードツリーとして扱うためのヘルパーを提供する。
// テキスト取得、属性取得、タグ名比較、日付タグ判定などの薄いユーティリティを含む。
package xmltree

import (
	"strings"
)

// NodeType はノードの種類を表す。
type NodeType int

const (
	// ElementNode は要素ノード。
	ElementNode NodeType = iota
	// TextNode はテキストノード（CDATAを含む）。
	TextNode
)

// Attr は要素の属性を表す。
type Attr struct {
	Prefix string
	Name   string
	Value  string
}

// Node はXMLツリーの1ノードを表す。
// 要素ノードの場合はPrefix/Name/Attrs/Childrenを、テキストノードの場合はDataを持つ。
type Node struct {
	Type     NodeType
	Prefix   string // 文書中に記述された名前空間プレフィックス（例: "dc"）
	Name     string // ローカル名
	Attrs    []Attr
	Data     string
	Children []*Node
}

// QName はプレフィックス付きの修飾名を返す（例: "dc:date"）。
func (n *Node) QName() string {
	if n.Prefix == "" {
		return n.Name
	}
	return n.Prefix + ":" + n.Name
}

// Is はタグ名を大文字小文字を区別して比較する。
// nameに":"が含まれる場合は修飾名、それ以外はローカル名と比較する。
func (n *Node) Is(name string) bool {
	if n == nil || n.Type != ElementNode {
		return false
	}
	if strings.Contains(name, ":") {
		return n.QName() == name
	}
	return n.Name == name
}

// IsFold はタグ名を大文字小文字を区別せずに比較する。
func (n *Node) IsFold(name string) bool {
	if n == nil || n.Type != ElementNode {
		return false
	}
	if strings.Contains(name, ":") {
		return strings.EqualFold(n.QName(), name)
	}
	return strings.EqualFold(n.Name, name)
}

// IsBlank は空白文字のみからなるテキストノードかどうかを返す。
func (n *Node) IsBlank() bool {
	return n != nil && n.Type == TextNode && strings.TrimSpace(n.Data) == ""
}

// Text はノード配下の全テキストを文書順に連結して返す。
func (n *Node) Text() string {
	if n == nil {
		return ""
	}
	if n.Type == TextNode {
		return n.Data
	}
	var sb strings.Builder
	n.appendText(&sb)
	return sb.String()
}

func (n *Node) appendText(sb *strings.Builder) {
	for _, c := range n.Children {
		if c.Type == TextNode {
			sb.WriteString(c.Data)
			continue
		}
		c.appendText(sb)
	}
}

// Attr は指定名の属性値を返す。属性が存在しない場合はokがfalseになる。
// nameに":"が含まれる場合は修飾名で比較する。
func (n *Node) Attr(name string) (value string, ok bool) {
	if n == nil {
		return "", false
	}
	for _, a := range n.Attrs {
		qname := a.Name
		if a.Prefix != "" {
			qname = a.Prefix + ":" + a.Name
		}
		if qname == name {
			return a.Value, true
		}
	}
	return "", false
}

// NonBlankChildren は空白テキストノードを除いた子ノードを文書順に返す。
func (n *Node) NonBlankChildren() []*Node {
	if n == nil {
		return nil
	}
	children := make([]*Node, 0, len(n.Children))
	for _, c := range n.Children {
		if c.IsBlank() {
			continue
		}
		children = append(children, c)
	}
	return children
}

// FirstNonBlankChild は最初の空白でない子ノードを返す。存在しない場合はnil。
func (n *Node) FirstNonBlankChild() *Node {
	if n == nil {
		return nil
	}
	for _, c := range n.Children {
		if !c.IsBlank() {
			return c
		}
	}
	return nil
}

// foldDateTags は大文字小文字を区別しない日付タグ。
var foldDateTags = []string{"date", "pubDate", "dc:date", "cropDate"}

// exactDateTags は大文字小文字を区別する日付タグ。
var exactDateTags = []string{"modified", "updated", "lastBuildDate"}

// IsDateTag は日付を表すタグ（date/pubDate/dc:date/modified/updated/cropDate/lastBuildDate）かを判定する。
func IsDateTag(n *Node) bool {
	for _, name := range foldDateTags {
		if n.IsFold(name) {
			return true
		}
	}
	for _, name := range exactDateTags {
		if n.Is(name) {
			return true
		}
	}
	return false
}
