// Package gateway は上流カタログAPIへのアクセスを提供する。
// 一覧・タグ絞り込み・検索のページ取得とダウンロードチケットの取得を型付きの結果に変換する。
package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/hitoshi/gamehub/internal/model"
)

const (
	pathListAll   = "/user/game/all"
	pathListByTag = "/user/game/games/additional_tag"
	pathSearch    = "/user/game/search"
	pathTags      = "/user/game/additional_tags"
	pathTicket    = "/user/game/download_link"
	pathDownload  = "/user/game/download"

	userAgent = "GameHub/1.0 Storefront"
	// maxBodySize はJSON応答として読み込む最大バイト数。
	maxBodySize = 10 << 20
)

// Gateway はカタログの取得操作を定義する。
// 全操作は失敗し得て、失敗は *model.APIError で返る。
type Gateway interface {
	ListAll(ctx context.Context, page, pageSize int) (*model.PageResult, error)
	ListByTag(ctx context.Context, tagID string, page, pageSize int) (*model.PageResult, error)
	Search(ctx context.Context, query string, page, pageSize int) (*model.PageResult, error)
	ListTags(ctx context.Context) ([]model.Tag, error)
	FetchDownloadHandle(ctx context.Context, productID string) (*DownloadHandle, error)
}

// Credentials はログイン状態の問い合わせ先。
type Credentials interface {
	AccessToken() string
	IsAuthenticated() bool
	IsSubscribed() bool
	// Clear は401応答を受けた際にトークンを破棄する。
	Clear()
}

// URLValidator は外部URLの事前検証を行う。
type URLValidator interface {
	ValidateURL(rawURL string) error
}

// Recorder は上流呼び出しのメトリクスを記録する。
type Recorder interface {
	StateObserver
	RecordUpstreamRequest(endpoint string, statusCode int, duration time.Duration)
}

// Options はClientの生成オプション。
type Options struct {
	BaseURL string
	// RatePerSecond と Burst はクライアント側の送信レート上限。0以下なら無制限。
	RatePerSecond float64
	Burst         int
	Breaker       BreakerConfig
	// SafeClient はチケットが絶対URLだった場合に使うSSRF対策済みクライアント。
	SafeClient *http.Client
	Validator  URLValidator
	Recorder   Recorder
}

// Client は上流カタログAPIのクライアント。
// ブレーカーとレートリミッタは WithCredentials で派生させたClient間で共有される。
type Client struct {
	httpClient *http.Client
	safeClient *http.Client
	validator  URLValidator
	breaker    *gobreaker.CircuitBreaker[*http.Response]
	limiter    *rate.Limiter
	recorder   Recorder
	logger     *slog.Logger
	baseURL    string
	creds      Credentials
}

// NewClient はClientの新しいインスタンスを生成する。
func NewClient(httpClient *http.Client, logger *slog.Logger, opts Options) *Client {
	if opts.Breaker.Name == "" {
		opts.Breaker = DefaultBreakerConfig("catalog")
	}
	limiter := rate.NewLimiter(rate.Inf, 0)
	if opts.RatePerSecond > 0 {
		burst := opts.Burst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RatePerSecond), burst)
	}
	return &Client{
		httpClient: httpClient,
		safeClient: opts.SafeClient,
		validator:  opts.Validator,
		breaker:    newBreaker(opts.Breaker, logger, opts.Recorder),
		limiter:    limiter,
		recorder:   opts.Recorder,
		logger:     logger,
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
	}
}

// WithCredentials は指定のログイン状態でリクエストするClientを返す。
func (c *Client) WithCredentials(creds Credentials) *Client {
	cpy := *c
	cpy.creds = creds
	return &cpy
}

// ListAll は絞り込みなしの商品一覧を取得する。
func (c *Client) ListAll(ctx context.Context, page, pageSize int) (*model.PageResult, error) {
	if err := validatePaging(page, pageSize); err != nil {
		return nil, err
	}
	q := url.Values{}
	setPaging(q, page, pageSize)
	return c.fetchPage(ctx, model.EndpointList, pathListAll, q, page)
}

// ListByTag は追加タグで絞り込んだ商品一覧を取得する。
func (c *Client) ListByTag(ctx context.Context, tagID string, page, pageSize int) (*model.PageResult, error) {
	if strings.TrimSpace(tagID) == "" {
		return nil, model.NewInvalidArgumentError("タグIDが空です")
	}
	if err := validatePaging(page, pageSize); err != nil {
		return nil, err
	}
	q := url.Values{}
	q.Set("additionalTag", tagID)
	setPaging(q, page, pageSize)
	return c.fetchPage(ctx, model.EndpointFiltered, pathListByTag, q, page)
}

// Search は検索語に一致する商品一覧を取得する。空白のみの検索語は送信しない。
func (c *Client) Search(ctx context.Context, query string, page, pageSize int) (*model.PageResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, model.NewInvalidArgumentError("検索語が空です")
	}
	if err := validatePaging(page, pageSize); err != nil {
		return nil, err
	}
	q := url.Values{}
	q.Set("q", query)
	setPaging(q, page, pageSize)
	return c.fetchPage(ctx, model.EndpointSearch, pathSearch, q, page)
}

// ListTags はサイドバー用の追加タグ一覧を取得する。
func (c *Client) ListTags(ctx context.Context) ([]model.Tag, error) {
	body, err := c.getJSON(ctx, model.EndpointTags, c.baseURL+pathTags)
	if err != nil {
		return nil, err
	}
	tags, err := decodeTags(body)
	if err != nil {
		c.logger.Error("タグ一覧のデコードに失敗しました", slog.String("error", err.Error()))
		return nil, model.NewServerError(model.EndpointTags, err)
	}
	return tags, nil
}

func (c *Client) fetchPage(ctx context.Context, ep model.Endpoint, path string, q url.Values, page int) (*model.PageResult, error) {
	body, err := c.getJSON(ctx, ep, c.baseURL+path+"?"+q.Encode())
	if err != nil {
		return nil, err
	}
	result, err := decodePage(body, page)
	if err != nil {
		c.logger.Error("商品一覧のデコードに失敗しました",
			slog.String("endpoint", string(ep)),
			slog.String("error", err.Error()),
		)
		return nil, model.NewServerError(ep, err)
	}
	return result, nil
}

// getJSON は一覧系のGETを実行してボディを返す。非2xxは全てServerErrorとして扱う。
func (c *Client) getJSON(ctx context.Context, ep model.Endpoint, rawURL string) ([]byte, error) {
	resp, err := c.do(ctx, ep, c.httpClient, rawURL, true)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if class := ClassifyHTTPStatus(resp.StatusCode); class != StatusOK {
		if class == StatusUnauthenticated {
			c.clearCredentials()
		}
		c.logger.Error("上流APIがエラーステータスを返しました",
			slog.String("endpoint", string(ep)),
			slog.Int("http_status", resp.StatusCode),
		)
		return nil, model.NewServerError(ep, fmt.Errorf("status %d", resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		c.logger.Error("レスポンスボディの読み取りに失敗しました",
			slog.String("endpoint", string(ep)),
			slog.String("error", err.Error()),
		)
		return nil, model.NewNetworkError(ep, err)
	}
	return body, nil
}

// do はレートリミッタとサーキットブレーカーを通してGETを実行する。
// 5xxはブレーカーの失敗として数えたうえでServerErrorに変換する。
func (c *Client) do(ctx context.Context, ep model.Endpoint, hc *http.Client, rawURL string, withAuth bool) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, model.NewNetworkError(ep, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, model.NewInvalidArgumentError(fmt.Sprintf("リクエストの作成に失敗しました: %v", err))
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")
	if withAuth && c.creds != nil {
		if token := c.creds.AccessToken(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	start := time.Now()
	statusCode := 0
	resp, err := c.breaker.Execute(func() (*http.Response, error) {
		resp, err := hc.Do(req)
		if err != nil {
			return nil, err
		}
		statusCode = resp.StatusCode
		if countsAsBreakerFailure(resp.StatusCode) {
			_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodySize))
			_ = resp.Body.Close()
			return nil, &upstreamStatusError{statusCode: resp.StatusCode}
		}
		return resp, nil
	})
	if c.recorder != nil {
		c.recorder.RecordUpstreamRequest(string(ep), statusCode, time.Since(start))
	}
	if err != nil {
		var statusErr *upstreamStatusError
		if errors.As(err, &statusErr) {
			c.logger.Error("上流APIがエラーステータスを返しました",
				slog.String("endpoint", string(ep)),
				slog.Int("http_status", statusErr.statusCode),
			)
			return nil, model.NewServerError(ep, err)
		}
		c.logger.Error("上流APIの呼び出しに失敗しました",
			slog.String("endpoint", string(ep)),
			slog.String("error", err.Error()),
		)
		return nil, model.NewNetworkError(ep, err)
	}
	return resp, nil
}

func (c *Client) clearCredentials() {
	if c.creds != nil {
		c.creds.Clear()
	}
}

func validatePaging(page, pageSize int) error {
	if page < 1 {
		return model.NewInvalidArgumentError(fmt.Sprintf("ページ番号は1以上で指定してください: %d", page))
	}
	if pageSize < 1 {
		return model.NewInvalidArgumentError(fmt.Sprintf("ページサイズは1以上で指定してください: %d", pageSize))
	}
	return nil
}

func setPaging(q url.Values, page, pageSize int) {
	q.Set("page", strconv.Itoa(page))
	q.Set("limit", strconv.Itoa(pageSize))
}
