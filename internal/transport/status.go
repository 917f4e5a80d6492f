package transport

// StatusClass はHTTPステータスコードの分類。
type StatusClass int

const (
	// ClassOK は取得成功（200）。
	ClassOK StatusClass = iota
	// ClassNotModified はコンテンツ未変更（304）。
	ClassNotModified
	// ClassGone は巡回を続けても回復が見込めないステータス（404/410/401/403）。
	ClassGone
	// ClassRetryable は一時的な失敗（429/5xx）。
	ClassRetryable
	// ClassUnknown はその他のステータス。
	ClassUnknown
)

// String はログとメトリクスのラベルに使う名前を返す。
func (c StatusClass) String() string {
	switch c {
	case ClassOK:
		return "ok"
	case ClassNotModified:
		return "not_modified"
	case ClassGone:
		return "gone"
	case ClassRetryable:
		return "retryable"
	default:
		return "unknown"
	}
}

// ClassifyHTTPStatus はHTTPステータスコードを分類する。
func ClassifyHTTPStatus(statusCode int) StatusClass {
	switch {
	case statusCode == 200:
		return ClassOK
	case statusCode == 304:
		return ClassNotModified
	case statusCode == 404 || statusCode == 410:
		return ClassGone
	case statusCode == 401 || statusCode == 403:
		return ClassGone
	case statusCode == 429:
		return ClassRetryable
	case statusCode >= 500:
		return ClassRetryable
	default:
		return ClassUnknown
	}
}
