// Package transport はフィード文書の取得（条件付きGET）を提供する。
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// DefaultUserAgent はOptions.UserAgent未指定時に送信するUser-Agent。
const DefaultUserAgent = "rssroll/1.0"

// ErrBodyTooLarge はレスポンスボディが上限を超えたことを示す。
var ErrBodyTooLarge = errors.New("response body exceeds size limit")

// Fetcher はURLからフィード文書を取得するインターフェース。
// sinceがゼロ値でなければIf-Modified-Sinceを付与する。
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string, since time.Time) (*Result, error)
}

// Result は取得結果を表す。
// Statusが304の場合、Bodyは空になる。
type Result struct {
	Status       int
	Body         []byte
	LastModified string
	Duration     time.Duration
}

// NotModified はサーバーが未変更（304）を返したかを判定する。
func (r *Result) NotModified() bool {
	return r.Status == http.StatusNotModified
}

// StatusError は200/304以外のHTTPステータスを表す。
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected HTTP status %d from %s", e.Code, e.URL)
}

// Retryable は次回の巡回で回復が見込めるステータスかを返す。
func (e *StatusError) Retryable() bool {
	return ClassifyHTTPStatus(e.Code) == ClassRetryable
}

// Options はClientの設定を保持する。
type Options struct {
	UserAgent   string
	MaxBodySize int64
	// Limiter がnilの場合はホストごとのレート制限を行わない。
	Limiter *HostLimiter
}

// Client はHTTPで条件付きGETを行うFetcherの実装。
type Client struct {
	http        *http.Client
	limiter     *HostLimiter
	userAgent   string
	maxBodySize int64
}

// NewClient はClientを生成する。httpClientにはSSRF対策済みのクライアントを渡す。
func NewClient(httpClient *http.Client, opts Options) *Client {
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.MaxBodySize <= 0 {
		opts.MaxBodySize = 5 << 20
	}
	return &Client{
		http:        httpClient,
		limiter:     opts.Limiter,
		userAgent:   opts.UserAgent,
		maxBodySize: opts.MaxBodySize,
	}
}

// Fetch はrawURLをGETする。
// 200の場合はボディを読み込み、304の場合はボディなしのResultを返す。
// それ以外のステータスは*StatusErrorを返す。
func (c *Client) Fetch(ctx context.Context, rawURL string, since time.Time) (*Result, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL %q: %w", rawURL, err)
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx, parsed.Host); err != nil {
			return nil, fmt.Errorf("rate limit wait for %s: %w", parsed.Host, err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("リクエスト作成に失敗: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/rdf+xml, application/xml, text/xml, */*")
	if !since.IsZero() {
		req.Header.Set("If-Modified-Since", since.UTC().Format(http.TimeFormat))
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエスト失敗: %w", err)
	}
	defer resp.Body.Close()

	result := &Result{
		Status:       resp.StatusCode,
		LastModified: resp.Header.Get("Last-Modified"),
	}

	switch ClassifyHTTPStatus(resp.StatusCode) {
	case ClassOK:
	case ClassNotModified:
		result.Duration = time.Since(start)
		return result, nil
	default:
		// 接続を再利用できるよう読み捨てる
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &StatusError{URL: rawURL, Code: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBodySize+1))
	if err != nil {
		return nil, fmt.Errorf("レスポンス読み取り失敗: %w", err)
	}
	if int64(len(body)) > c.maxBodySize {
		return nil, fmt.Errorf("%s: %w (%d bytes)", rawURL, ErrBodyTooLarge, c.maxBodySize)
	}

	result.Body = body
	result.Duration = time.Since(start)
	return result, nil
}
