package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
)

const requestIDHeader = "X-Request-ID"

var requestIDContextKey = contextKey("request_id")

// statusRecorder はhttp.ResponseWriterをラップし、ステータスコードと書き込みバイト数を記録する。
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
	bytes      int64
	written    bool
}

// WriteHeader はステータスコードを記録してから委譲する。
func (sr *statusRecorder) WriteHeader(code int) {
	if !sr.written {
		sr.statusCode = code
		sr.written = true
	}
	sr.ResponseWriter.WriteHeader(code)
}

// Write はデータを書き込む。WriteHeaderが未呼び出しの場合は200を記録する。
func (sr *statusRecorder) Write(b []byte) (int, error) {
	if !sr.written {
		sr.statusCode = http.StatusOK
		sr.written = true
	}
	n, err := sr.ResponseWriter.Write(b)
	sr.bytes += int64(n)
	return n, err
}

// Flush はSSEのためにラップ元のFlusherへ委譲する。
func (sr *statusRecorder) Flush() {
	if f, ok := sr.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap はhttp.ResponseControllerから元のResponseWriterを辿れるようにする。
func (sr *statusRecorder) Unwrap() http.ResponseWriter {
	return sr.ResponseWriter
}

// NewLoggingMiddleware はリクエストのJSON構造化ログを出力するミドルウェアを返す。
// ログにはrequest_id、method、path、status、bytes、duration_msと、
// 分かる場合はstorefront_idとusernameを含む。
// X-Request-IDヘッダーが無いリクエストには新しいIDを振り、レスポンスにも返す。
func NewLoggingMiddleware(logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			requestID := r.Header.Get(requestIDHeader)
			if _, err := uuid.Parse(requestID); err != nil {
				requestID = uuid.NewString()
			}
			w.Header().Set(requestIDHeader, requestID)

			// 後続のミドルウェアが注入する値を読めるよう、ポインタ経由で受け取る
			info := &requestInfo{}
			ctx := context.WithValue(r.Context(), requestIDContextKey, info)
			info.requestID = requestID

			rec := &statusRecorder{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}

			next.ServeHTTP(rec, r.WithContext(ctx))

			durationMs := float64(time.Since(start).Nanoseconds()) / float64(time.Millisecond)

			args := []any{
				slog.String("request_id", requestID),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", rec.statusCode),
				slog.Int64("bytes", rec.bytes),
				slog.Float64("duration_ms", durationMs),
			}
			if info.storefrontID != "" {
				args = append(args, slog.String("storefront_id", info.storefrontID))
			}
			if info.username != "" {
				args = append(args, slog.String("username", info.username))
			}

			level := slog.LevelInfo
			if rec.statusCode >= 500 {
				level = slog.LevelError
			} else if rec.statusCode >= 400 {
				level = slog.LevelWarn
			}

			logger.Log(r.Context(), level, "http_request", args...)
		})
	}
}

// requestInfo はアクセスログに載せる値をリクエストの処理中に集める。
type requestInfo struct {
	requestID    string
	storefrontID string
	username     string
}

// RequestIDFromContext はリクエストIDを返す。ロギングミドルウェアの外では空文字。
func RequestIDFromContext(ctx context.Context) string {
	if info, ok := ctx.Value(requestIDContextKey).(*requestInfo); ok {
		return info.requestID
	}
	return ""
}

// annotate はアクセスログに載せる識別子を記録する。
func annotate(ctx context.Context, fn func(info *requestInfo)) {
	if info, ok := ctx.Value(requestIDContextKey).(*requestInfo); ok {
		fn(info)
	}
}
