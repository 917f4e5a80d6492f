// Package feed はチャンネル登録時のフィードURL自動検出と登録処理を提供する。
package feed

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"github.com/mmcdole/gofeed"
	"golang.org/x/net/html"

	"github.com/hitoshi/rssroll/internal/model"
)

// FeedType はフィードの種類（RSS/Atom）を表す。
type FeedType string

const (
	// FeedTypeRSS はRSSフィード（RSS 1.0のRDFを含む）。
	FeedTypeRSS FeedType = "rss"
	// FeedTypeAtom はAtomフィード。
	FeedTypeAtom FeedType = "atom"
)

// Candidate はHTMLから検出されたフィード候補を表す。
type Candidate struct {
	URL      string
	FeedType FeedType
	Title    string
}

// URLValidator は取得前のURL検証のインターフェース。
type URLValidator interface {
	ValidateURL(rawURL string) error
}

// Detector はフィードURLの自動検出を行う。
type Detector struct {
	guard       URLValidator
	client      *http.Client
	userAgent   string
	maxBodySize int64
}

// NewDetector はDetectorの新しいインスタンスを生成する。
// guardがnilの場合はURL検証を行わない。
func NewDetector(guard URLValidator, client *http.Client, userAgent string, maxBodySize int64) *Detector {
	if client == nil {
		client = http.DefaultClient
	}
	if maxBodySize <= 0 {
		maxBodySize = 5 * 1024 * 1024
	}
	return &Detector{
		guard:       guard,
		client:      client,
		userAgent:   userAgent,
		maxBodySize: maxBodySize,
	}
}

var feedContentTypes = map[string]FeedType{
	"application/rss+xml":  FeedTypeRSS,
	"application/rdf+xml":  FeedTypeRSS,
	"application/atom+xml": FeedTypeAtom,
}

// IsDirectFeed はレスポンスがRSS/Atomフィードそのものかを判定する。
// フィード固有のContent-Typeであれば本文を見ずにtrueを返す。
// それ以外はHTMLを除いて本文のルート要素から判定する。
func (d *Detector) IsDirectFeed(contentType string, body []byte) bool {
	mediaType := mediaTypeOf(contentType)
	if _, ok := feedContentTypes[mediaType]; ok {
		return true
	}
	if strings.Contains(mediaType, "html") || len(body) == 0 {
		return false
	}

	switch gofeed.DetectFeedType(bytes.NewReader(body)) {
	case gofeed.FeedTypeRSS, gofeed.FeedTypeAtom:
		return true
	default:
		return false
	}
}

func mediaTypeOf(contentType string) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.TrimSpace(strings.Split(contentType, ";")[0])
	}
	return strings.ToLower(mediaType)
}

// ParseFeedLinks はHTMLのhead内にある<link rel="alternate">からフィード候補を抽出する。
// 相対URLはbaseURLを基準に絶対URLに解決される。
func ParseFeedLinks(htmlBody []byte, baseURL string) []Candidate {
	var candidates []Candidate

	base, err := url.Parse(baseURL)
	if err != nil {
		return candidates
	}

	tokenizer := html.NewTokenizer(bytes.NewReader(htmlBody))
	inHead := false

	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return candidates

		case html.StartTagToken, html.SelfClosingTagToken:
			tn, hasAttr := tokenizer.TagName()
			switch string(tn) {
			case "head":
				inHead = true
				continue
			case "body":
				return candidates
			case "link":
			default:
				continue
			}
			if !inHead || !hasAttr {
				continue
			}

			var rel, linkType, href, title string
			for more := true; more; {
				var key, val []byte
				key, val, more = tokenizer.TagAttr()
				switch strings.ToLower(string(key)) {
				case "rel":
					rel = strings.ToLower(string(val))
				case "type":
					linkType = mediaTypeOf(string(val))
				case "href":
					href = strings.TrimSpace(string(val))
				case "title":
					title = string(val)
				}
			}

			feedType, ok := feedContentTypes[linkType]
			if !ok || href == "" || !hasToken(rel, "alternate") {
				continue
			}
			ref, err := url.Parse(href)
			if err != nil {
				continue
			}
			candidates = append(candidates, Candidate{
				URL:      base.ResolveReference(ref).String(),
				FeedType: feedType,
				Title:    title,
			})

		case html.EndTagToken:
			if tn, _ := tokenizer.TagName(); string(tn) == "head" {
				return candidates
			}
		}
	}
}

// hasToken はスペース区切りのrel属性にtokenが含まれるかを返す。
func hasToken(rel, token string) bool {
	for _, f := range strings.Fields(rel) {
		if f == token {
			return true
		}
	}
	return false
}

// SelectBest は候補から登録するフィードを選ぶ。
// 入力URLと同じホストの候補を優先し、同条件なら文書中で先に現れたものを採用する。
func SelectBest(candidates []Candidate, inputURL string) *Candidate {
	if len(candidates) == 0 {
		return nil
	}

	inputHost := hostOf(inputURL)
	for i := range candidates {
		if hostOf(candidates[i].URL) == inputHost {
			return &candidates[i]
		}
	}
	return &candidates[0]
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

// DetectFeedURL は入力URLがフィードかHTMLかを判定し、登録すべきフィードURLを返す。
// HTMLの場合はhead内のフィードリンクから1件を選ぶ。
// 失敗時はmodel.APIErrorを返す。
func (d *Detector) DetectFeedURL(ctx context.Context, inputURL string) (string, error) {
	if strings.TrimSpace(inputURL) == "" {
		return "", model.NewInvalidURLError("URLが入力されていません")
	}
	if d.guard != nil {
		if err := d.guard.ValidateURL(inputURL); err != nil {
			return "", model.NewSSRFBlockedError()
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, inputURL, nil)
	if err != nil {
		return "", model.NewInvalidURLError(err.Error())
	}
	if d.userAgent != "" {
		req.Header.Set("User-Agent", d.userAgent)
	}
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml, text/xml, text/html, */*")

	resp, err := d.client.Do(req)
	if err != nil {
		return "", model.NewFetchFailedError(err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", model.NewFetchFailedError(fmt.Sprintf("HTTPステータス %d", resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, d.maxBodySize))
	if err != nil {
		return "", model.NewFetchFailedError(fmt.Sprintf("レスポンスの読み取りに失敗: %v", err))
	}

	contentType := resp.Header.Get("Content-Type")
	if d.IsDirectFeed(contentType, body) {
		return inputURL, nil
	}
	if !strings.Contains(mediaTypeOf(contentType), "html") {
		return "", model.NewFeedNotDetectedError(inputURL)
	}

	best := SelectBest(ParseFeedLinks(body, inputURL), inputURL)
	if best == nil {
		return "", model.NewFeedNotDetectedError(inputURL)
	}
	if d.guard != nil {
		if err := d.guard.ValidateURL(best.URL); err != nil {
			return "", model.NewSSRFBlockedError()
		}
	}
	return best.URL, nil
}
