package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/gamehub/internal/download"
	"github.com/hitoshi/gamehub/internal/gateway"
	"github.com/hitoshi/gamehub/internal/middleware"
	"github.com/hitoshi/gamehub/internal/model"
)

// historyLimit はダウンロード履歴の最大件数。
const historyLimit = 50

// DownloadServiceInterface はダウンロードハンドラーが必要とするサービスインターフェース。
type DownloadServiceInterface interface {
	Prepare(ctx context.Context, creds gateway.Credentials, productID string) (*download.Outcome, error)
	Open(ctx context.Context, outcome *download.Outcome) (*gateway.DownloadStream, error)
}

// CredentialsProvider はログインセッションから上流向けの認証情報を組み立てる。
// 未ログイン（nil）の場合も未認証の認証情報を返す。
type CredentialsProvider interface {
	Credentials(session *model.Session) gateway.Credentials
}

// DownloadHistory はダウンロード履歴を取得する。
type DownloadHistory interface {
	ListByUsername(ctx context.Context, username string, limit int) ([]*model.DownloadLog, error)
}

// DownloadHandler はダウンロードのHTTPハンドラー。
type DownloadHandler struct {
	service DownloadServiceInterface
	creds   CredentialsProvider
	history DownloadHistory
}

// NewDownloadHandler はDownloadHandlerを生成する。
func NewDownloadHandler(service DownloadServiceInterface, creds CredentialsProvider, history DownloadHistory) *DownloadHandler {
	return &DownloadHandler{
		service: service,
		creds:   creds,
		history: history,
	}
}

type downloadLogResponse struct {
	ProductID string    `json:"product_id"`
	Outcome   string    `json:"outcome"`
	CreatedAt time.Time `json:"created_at"`
}

// Download は商品ファイルを返す。
// 未ログインは401、未加入は402の統一エラーで返し、フロントエンドはそれぞれの誘導を表示する。
// GET /api/products/{id}/download
func (h *DownloadHandler) Download(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "id")
	creds := h.creds.Credentials(middleware.SessionFromContext(r.Context()))

	outcome, err := h.service.Prepare(r.Context(), creds, productID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	switch outcome.Kind {
	case model.DownloadPromptLogin:
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthenticatedError())
		return
	case model.DownloadPromptUpgrade:
		middleware.WriteErrorResponse(w, http.StatusPaymentRequired, model.NewForbiddenError())
		return
	}

	stream, err := h.service.Open(r.Context(), outcome)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	defer stream.Body.Close()

	contentType := stream.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": stream.Filename}))
	w.Header().Set("Cache-Control", "no-store")
	if stream.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(stream.Size, 10))
	}
	w.WriteHeader(http.StatusOK)

	n, err := io.Copy(w, stream.Body)
	if err != nil {
		// ヘッダー送信後なのでステータスは変えられない。接続を切って不完全な応答であることを伝える
		slog.Warn("download stream interrupted",
			slog.String("product_id", productID),
			slog.Int64("bytes", n),
			slog.Bool("too_large", errors.Is(err, download.ErrTooLarge)),
			slog.String("error", err.Error()),
		)
		panic(http.ErrAbortHandler)
	}
}

// History はログインユーザーのダウンロード履歴を新しい順に返す。
// GET /api/downloads
func (h *DownloadHandler) History(w http.ResponseWriter, r *http.Request) {
	session := middleware.SessionFromContext(r.Context())
	if session == nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthenticatedError())
		return
	}

	logs, err := h.history.ListByUsername(r.Context(), session.Username, historyLimit)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	items := make([]downloadLogResponse, 0, len(logs))
	for _, l := range logs {
		items = append(items, downloadLogResponse{
			ProductID: l.ProductID,
			Outcome:   string(l.Outcome),
			CreatedAt: l.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"downloads": items})
}
