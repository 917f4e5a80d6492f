package rss

import (
	"strings"
	"testing"

	"github.com/hitoshi/rssroll/internal/xmltree"
)

func rootOf(t *testing.T, doc string) *xmltree.Node {
	t.Helper()
	d, err := xmltree.Parse(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("xmltree.Parse() がエラーを返した: %v", err)
	}
	return d.Root
}

func TestDetect(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want Version
	}{
		{"RSS 0.90", `<rss version="0.90"/>`, RSSv090},
		{"RSS 0.91", `<rss version="0.91"/>`, RSSv091},
		{"RSS 0.92", `<rss version="0.92"/>`, RSSv092},
		{"RSS 0.93", `<rss version="0.93"/>`, RSSv093},
		{"RSS 0.94", `<rss version="0.94"/>`, RSSv094},
		{"RSS 1.0 (rdf:RDF)", `<rdf:RDF xmlns:rdf="http://www.w3.org/1999/02/22-rdf-syntax-ns#"/>`, RSSv10},
		{"RSS 1.0 (rdf)", `<rdf/>`, RSSv10},
		{"RSS 1.0 (RDF)", `<RDF/>`, RSSv10},
		{"RSS 2", `<rss version="2"/>`, RSSv20},
		{"RSS 2.0", `<rss version="2.0"/>`, RSSv20},
		{"RSS 2.00", `<rss version="2.00"/>`, RSSv20},
		{"Atom version省略", `<feed xmlns="http://www.w3.org/2005/Atom"/>`, Atomv01},
		{"Atom 0.1", `<feed version="0.1"/>`, Atomv01},
		{"Atom 0.2", `<feed version="0.2"/>`, Atomv02},
		{"Atom 0.3", `<feed version="0.3"/>`, Atomv03},
		{"Atom 未知のversion", `<feed version="1.0"/>`, Atomv01},
		{"html", `<html/>`, VersionUnknown},
		{"rss version省略", `<rss/>`, VersionUnknown},
		{"rss 未知のversion", `<rss version="3.0"/>`, VersionUnknown},
		{"Rdf（大文字小文字不一致）", `<Rdf/>`, VersionUnknown},
		{"未知のルート", `<opml/>`, VersionUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Detect(rootOf(t, tt.doc)); got != tt.want {
				t.Errorf("Detect() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDetect_NilRoot(t *testing.T) {
	if got := Detect(nil); got != VersionUnknown {
		t.Errorf("Detect(nil) = %v, want unknown", got)
	}
}

func TestVersion_String(t *testing.T) {
	if RSSv20.String() != "RSS 2.0" {
		t.Errorf("String(): got %q", RSSv20.String())
	}
	if VersionUnknown.String() != "unknown" {
		t.Errorf("String(): got %q", VersionUnknown.String())
	}
	if !Atomv02.IsAtom() || RSSv20.IsAtom() {
		t.Error("IsAtom() の判定が不正")
	}
}
