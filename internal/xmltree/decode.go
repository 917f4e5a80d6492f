package xmltree

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/net/html/charset"
)

// ErrNoRoot は文書にルート要素が存在しない場合のエラー。
var ErrNoRoot = errors.New("xmltree: document has no root element")

// Document はパース済みのXML文書を表す。
type Document struct {
	Root *Node
}

// Parse はrからXML文書を読み込み、ノードツリーを構築する。
// XML宣言のencodingがUTF-8以外の場合はcharsetパッケージで変換する。
// HTMLの名前付き実体参照（&nbsp;など）は許容する。
func Parse(r io.Reader) (*Document, error) {
	decoder := xml.NewDecoder(r)
	decoder.CharsetReader = charset.NewReaderLabel
	decoder.Entity = xml.HTMLEntity

	var (
		root  *Node
		stack []*Node
	)

	for {
		tok, err := decoder.RawToken()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("xmltree: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			node := &Node{
				Type:   ElementNode,
				Prefix: t.Name.Space,
				Name:   t.Name.Local,
			}
			for _, a := range t.Attr {
				node.Attrs = append(node.Attrs, Attr{
					Prefix: a.Name.Space,
					Name:   a.Name.Local,
					Value:  a.Value,
				})
			}
			if len(stack) == 0 {
				if root != nil {
					return nil, fmt.Errorf("xmltree: multiple root elements (<%s>)", node.QName())
				}
				root = node
			} else {
				parent := stack[len(stack)-1]
				parent.Children = append(parent.Children, node)
			}
			stack = append(stack, node)

		case xml.EndElement:
			if len(stack) == 0 {
				return nil, fmt.Errorf("xmltree: unexpected end element </%s>", qualified(t.Name))
			}
			top := stack[len(stack)-1]
			if top.Prefix != t.Name.Space || top.Name != t.Name.Local {
				return nil, fmt.Errorf("xmltree: element <%s> closed by </%s>", top.QName(), qualified(t.Name))
			}
			stack = stack[:len(stack)-1]

		case xml.CharData:
			// ルート要素外のテキストは無視する
			if len(stack) == 0 {
				continue
			}
			parent := stack[len(stack)-1]
			parent.Children = append(parent.Children, &Node{
				Type: TextNode,
				Data: string(t),
			})
		}
	}

	if len(stack) > 0 {
		return nil, fmt.Errorf("xmltree: unexpected EOF: <%s> not closed", stack[len(stack)-1].QName())
	}
	if root == nil {
		return nil, ErrNoRoot
	}

	return &Document{Root: root}, nil
}

// ParseBytes はバイト列からXML文書を読み込む。
func ParseBytes(data []byte) (*Document, error) {
	return Parse(bytes.NewReader(data))
}

// ParseFile はファイルからXML文書を読み込む。
func ParseFile(path string) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("xmltree: %w", err)
	}
	defer f.Close()

	return Parse(f)
}

func qualified(name xml.Name) string {
	if name.Space == "" {
		return name.Local
	}
	return name.Space + ":" + name.Local
}
