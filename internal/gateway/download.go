package gateway

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/hitoshi/gamehub/internal/model"
)

// DownloadHandle はダウンロードチケットを表す。Open でファイル本体を取得する。
type DownloadHandle struct {
	ProductID string
	Ticket    string

	client *Client
}

// DownloadStream はダウンロード中のファイル本体。呼び出し側が Body を閉じる。
type DownloadStream struct {
	Body        io.ReadCloser
	Filename    string
	ContentType string
	Size        int64
}

// FetchDownloadHandle は商品のダウンロードチケットを取得する。
// 未ログインと未加入は通信前に判定し、それぞれ Unauthenticated と Forbidden を返す。
func (c *Client) FetchDownloadHandle(ctx context.Context, productID string) (*DownloadHandle, error) {
	if strings.TrimSpace(productID) == "" {
		return nil, model.NewInvalidArgumentError("商品IDが空です")
	}
	if c.creds == nil || !c.creds.IsAuthenticated() {
		return nil, model.NewUnauthenticatedError()
	}
	if !c.creds.IsSubscribed() {
		return nil, model.NewForbiddenError()
	}

	q := url.Values{}
	q.Set("id", productID)
	resp, err := c.do(ctx, model.EndpointDownload, c.httpClient, c.baseURL+pathTicket+"?"+q.Encode(), true)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := c.downloadStatusError(resp.StatusCode, productID); err != nil {
		return nil, err
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, model.NewNetworkError(model.EndpointDownload, err)
	}
	ticket, err := decodeTicket(body)
	if err != nil {
		c.logger.Error("ダウンロードチケットのデコードに失敗しました",
			slog.String("product_id", productID),
			slog.String("error", err.Error()),
		)
		return nil, model.NewServerError(model.EndpointDownload, err)
	}

	return &DownloadHandle{ProductID: productID, Ticket: ticket, client: c}, nil
}

// Open はチケットを使ってファイル本体の取得を開始する。
// チケットが絶対URLの場合はSSRF検証を行い、認証ヘッダを付けずにSSRF対策済みクライアントで取得する。
// クライアントのタイムアウトは応答ヘッダの到着までに適用し、本体の読み込みは ctx だけで打ち切る。
func (h *DownloadHandle) Open(ctx context.Context) (*DownloadStream, error) {
	c := h.client
	target, hc, withAuth, err := h.resolve()
	if err != nil {
		c.logger.Warn("ダウンロードURLの検証に失敗しました",
			slog.String("product_id", h.ProductID),
			slog.String("error", err.Error()),
		)
		return nil, model.NewServerError(model.EndpointDownload, err)
	}

	streamCtx, cancel := context.WithCancel(ctx)
	var headerTimer *time.Timer
	if hc.Timeout > 0 {
		headerTimer = time.AfterFunc(hc.Timeout, cancel)
	}

	resp, err := c.do(streamCtx, model.EndpointDownload, withoutBodyTimeout(hc), target, withAuth)
	if headerTimer != nil && !headerTimer.Stop() {
		if err == nil {
			resp.Body.Close()
		}
		cancel()
		c.logger.Error("ダウンロード応答のヘッダ待ちがタイムアウトしました",
			slog.String("product_id", h.ProductID),
			slog.Duration("timeout", hc.Timeout),
		)
		return nil, model.NewNetworkError(model.EndpointDownload, context.DeadlineExceeded)
	}
	if err != nil {
		cancel()
		return nil, err
	}
	if err := c.downloadStatusError(resp.StatusCode, h.ProductID); err != nil {
		resp.Body.Close()
		cancel()
		return nil, err
	}

	return &DownloadStream{
		Body:        &streamBody{ReadCloser: resp.Body, cancel: cancel},
		Filename:    filenameFromHeader(resp.Header, h.ProductID),
		ContentType: resp.Header.Get("Content-Type"),
		Size:        resp.ContentLength,
	}, nil
}

// withoutBodyTimeout は Timeout を外したクライアントを返す。Transport は共有する。
func withoutBodyTimeout(hc *http.Client) *http.Client {
	if hc.Timeout == 0 {
		return hc
	}
	cpy := *hc
	cpy.Timeout = 0
	return &cpy
}

// streamBody は閉じたときにリクエストのコンテキストも解放する。
type streamBody struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (b *streamBody) Close() error {
	err := b.ReadCloser.Close()
	b.cancel()
	return err
}

func (h *DownloadHandle) resolve() (string, *http.Client, bool, error) {
	c := h.client
	lower := strings.ToLower(h.Ticket)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		if c.validator == nil || c.safeClient == nil {
			return "", nil, false, fmt.Errorf("外部ダウンロードURLは許可されていません")
		}
		if err := c.validator.ValidateURL(h.Ticket); err != nil {
			return "", nil, false, err
		}
		return h.Ticket, c.safeClient, false, nil
	}
	q := url.Values{}
	q.Set("id", h.Ticket)
	return c.baseURL + pathDownload + "?" + q.Encode(), c.httpClient, true, nil
}

// downloadStatusError はダウンロード系応答のステータスをエラーに変換する。
func (c *Client) downloadStatusError(statusCode int, productID string) error {
	switch ClassifyHTTPStatus(statusCode) {
	case StatusOK:
		return nil
	case StatusUnauthenticated:
		c.clearCredentials()
		return model.NewUnauthenticatedError()
	case StatusForbidden:
		return model.NewForbiddenError()
	case StatusNotFound:
		return model.NewNotFoundError("商品", productID)
	default:
		c.logger.Error("ダウンロードAPIがエラーステータスを返しました",
			slog.String("product_id", productID),
			slog.Int("http_status", statusCode),
		)
		return model.NewServerError(model.EndpointDownload, fmt.Errorf("status %d", statusCode))
	}
}

// filenameFromHeader はContent-Dispositionからファイル名を取り出す。
// ディレクトリ成分は捨て、取り出せない場合は商品IDから作る。
func filenameFromHeader(h http.Header, productID string) string {
	if cd := h.Get("Content-Disposition"); cd != "" {
		if _, params, err := mime.ParseMediaType(cd); err == nil {
			if name := filepath.Base(params["filename"]); name != "." && name != ".." && name != "/" {
				return name
			}
		}
	}
	return productID + ".zip"
}
