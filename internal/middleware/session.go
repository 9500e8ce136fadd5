// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/gamehub/internal/model"
)

const (
	// SessionCookieName はログインセッションIDを保持するCookieの名前。
	SessionCookieName = "session_id"
	// StorefrontCookieName は画面状態を識別するCookieの名前。ログインの有無に関係なく発行する。
	StorefrontCookieName = "storefront_id"

	storefrontCookieMaxAge = 30 * 24 * 60 * 60
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

var (
	sessionContextKey    = contextKey("session")
	storefrontContextKey = contextKey("storefront_id")
)

// CookieConfig はミドルウェアが発行するCookieの共通設定。
type CookieConfig struct {
	Secure bool
	Domain string
}

// SessionFinder はセッションの検索に必要なインターフェース。
// 期限切れや未登録の場合は (nil, nil) を返す。
type SessionFinder interface {
	FindSession(ctx context.Context, id string) (*model.Session, error)
}

// NewSessionMiddleware はHTTP Only Cookieからログインセッションを読み取り、
// 有効であればリクエストコンテキストに注入するミドルウェアを返す。
// 商品一覧は未ログインでも閲覧できるため、セッションが無くてもリクエストは拒否しない。
func NewSessionMiddleware(finder SessionFinder) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(SessionCookieName)
			if err != nil || cookie.Value == "" {
				next.ServeHTTP(w, r)
				return
			}

			session, err := finder.FindSession(r.Context(), cookie.Value)
			if err != nil {
				slog.Error("failed to find session",
					slog.String("error", err.Error()),
				)
				next.ServeHTTP(w, r)
				return
			}
			if session == nil {
				next.ServeHTTP(w, r)
				return
			}

			annotate(r.Context(), func(info *requestInfo) { info.username = session.Username })
			next.ServeHTTP(w, r.WithContext(ContextWithSession(r.Context(), session)))
		})
	}
}

// RequireSession はログインセッションが無いリクエストに401を返すミドルウェア。
// NewSessionMiddlewareの後に配置する。
func RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if SessionFromContext(r.Context()) == nil {
			WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthenticatedError())
			return
		}
		next.ServeHTTP(w, r)
	})
}

// NewStorefrontMiddleware は画面状態CookieのIDをコンテキストに注入するミドルウェアを返す。
// Cookieが無い、またはUUIDとして不正な場合は新しいIDを発行する。
func NewStorefrontMiddleware(config CookieConfig) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var id string
			if cookie, err := r.Cookie(StorefrontCookieName); err == nil {
				if parsed, err := uuid.Parse(cookie.Value); err == nil {
					id = parsed.String()
				}
			}

			if id == "" {
				id = uuid.NewString()
				http.SetCookie(w, &http.Cookie{
					Name:     StorefrontCookieName,
					Value:    id,
					Path:     "/",
					Domain:   config.Domain,
					MaxAge:   storefrontCookieMaxAge,
					Expires:  time.Now().Add(storefrontCookieMaxAge * time.Second),
					HttpOnly: true,
					Secure:   config.Secure,
					SameSite: http.SameSiteLaxMode,
				})
			}

			annotate(r.Context(), func(info *requestInfo) { info.storefrontID = id })
			next.ServeHTTP(w, r.WithContext(ContextWithStorefrontID(r.Context(), id)))
		})
	}
}

// SessionFromContext はリクエストコンテキストからログインセッションを取得する。
// 未ログインの場合はnilを返す。
func SessionFromContext(ctx context.Context) *model.Session {
	session, _ := ctx.Value(sessionContextKey).(*model.Session)
	return session
}

// ContextWithSession はコンテキストにログインセッションを注入する。
func ContextWithSession(ctx context.Context, session *model.Session) context.Context {
	return context.WithValue(ctx, sessionContextKey, session)
}

// StorefrontIDFromContext はリクエストコンテキストから画面状態IDを取得する。
// Storefrontミドルウェアを通過したリクエストでのみ有効。
func StorefrontIDFromContext(ctx context.Context) (string, error) {
	id, ok := ctx.Value(storefrontContextKey).(string)
	if !ok || id == "" {
		return "", fmt.Errorf("storefront ID not found in context")
	}
	return id, nil
}

// ContextWithStorefrontID はコンテキストに画面状態IDを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithStorefrontID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, storefrontContextKey, id)
}
