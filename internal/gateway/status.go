package gateway

import "net/http"

// StatusClass はHTTPステータスコードに基づく応答の分類。
type StatusClass int

const (
	// StatusOK は2xxの成功応答。
	StatusOK StatusClass = iota
	// StatusUnauthenticated はトークン無効（401）。保持しているトークンを破棄する。
	StatusUnauthenticated
	// StatusForbidden は権限不足（403）。
	StatusForbidden
	// StatusNotFound は対象なし（404/410）。
	StatusNotFound
	// StatusServerError はそれ以外の非2xx応答。
	StatusServerError
)

// String はログ出力用の分類名を返す。
func (s StatusClass) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusUnauthenticated:
		return "unauthenticated"
	case StatusForbidden:
		return "forbidden"
	case StatusNotFound:
		return "not_found"
	default:
		return "server_error"
	}
}

// ClassifyHTTPStatus はHTTPステータスコードを応答分類に変換する。
func ClassifyHTTPStatus(statusCode int) StatusClass {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return StatusOK
	case statusCode == http.StatusUnauthorized:
		return StatusUnauthenticated
	case statusCode == http.StatusForbidden:
		return StatusForbidden
	case statusCode == http.StatusNotFound || statusCode == http.StatusGone:
		return StatusNotFound
	default:
		return StatusServerError
	}
}

// countsAsBreakerFailure はサーキットブレーカーの失敗として数える応答かを返す。
// 4xxは呼び出し側の問題なので上流の健全性には含めない。
func countsAsBreakerFailure(statusCode int) bool {
	return statusCode >= 500
}
