package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/gamehub/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	Logger *slog.Logger

	// ミドルウェア依存
	SessionFinder     middleware.SessionFinder
	CORSAllowedOrigin string
	Cookie            middleware.CookieConfig
	RateLimiter       *middleware.RateLimiter

	// 監視
	Health  http.HandlerFunc
	Metrics http.Handler

	// 認証
	AuthService AuthServiceInterface

	// 商品一覧
	Registry  StorefrontRegistry
	Tags      TagLister
	Sanitizer Sanitizer
	Media     MediaResolver

	// ダウンロード
	Downloads   DownloadServiceInterface
	Credentials CredentialsProvider
	History     DownloadHistory
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → Logging → SecurityHeaders → CORS → Storefront → Session → CSRF → RateLimit
//
// プリフライトはルートの照合前に応答する必要があるため、SecurityHeaders と CORS は全体に適用する。
// /health と /metrics は Storefront 以降を通さない。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware(deps.Logger))
	r.Use(middleware.NewLoggingMiddleware(deps.Logger))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	if deps.Health != nil {
		r.Get("/health", deps.Health)
	}
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics)
	}

	authHandler := NewAuthHandler(deps.AuthService, AuthHandlerConfig{
		CookieDomain: deps.Cookie.Domain,
		CookieSecure: deps.Cookie.Secure,
	})
	storefrontHandler := NewStorefrontHandler(deps.Registry)
	productHandler := NewProductHandler(deps.Registry, deps.Tags, deps.Sanitizer, deps.Media)
	downloadHandler := NewDownloadHandler(deps.Downloads, deps.Credentials, deps.History)

	r.Group(func(r chi.Router) {
		r.Use(middleware.NewStorefrontMiddleware(deps.Cookie))
		r.Use(middleware.NewSessionMiddleware(deps.SessionFinder))
		r.Use(middleware.NewCSRFMiddleware(deps.Cookie))

		// 認証ルート
		r.Route("/auth", func(r chi.Router) {
			r.With(deps.RateLimiter.LoginMiddleware()).Post("/login", authHandler.Login)
			r.Post("/logout", authHandler.Logout)
			r.Get("/me", authHandler.Me)
		})

		r.Route("/api", func(r chi.Router) {
			r.Use(deps.RateLimiter.GeneralMiddleware())

			r.Method(http.MethodGet, "/csrf-token", middleware.NewCSRFTokenHandler(deps.Cookie))

			// 商品一覧画面
			r.Route("/storefront", func(r chi.Router) {
				r.Get("/", storefrontHandler.Get)
				r.Get("/events", storefrontHandler.Events)
				r.Post("/tag", storefrontHandler.SelectTag)
				r.Post("/main-tag", storefrontHandler.SelectMainTag)
				r.Post("/search", storefrontHandler.SetSearch)
				r.Post("/search/flush", storefrontHandler.FlushSearch)
				r.Post("/sentinel", storefrontHandler.Sentinel)
				r.Post("/retry", storefrontHandler.Retry)
			})

			r.Route("/products/{id}", func(r chi.Router) {
				r.Get("/", productHandler.GetProduct)
				r.Get("/download", downloadHandler.Download)
			})

			r.Get("/tags", productHandler.ListTags)

			r.With(middleware.RequireSession).Get("/downloads", downloadHandler.History)
		})
	})

	return r
}
