// Package download はログイン・加入状態によるダウンロードの振り分けと、ファイルの受け渡しを提供する。
package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/hitoshi/gamehub/internal/gateway"
	"github.com/hitoshi/gamehub/internal/model"
	"github.com/hitoshi/gamehub/internal/repository"
)

// ErrTooLarge はファイルサイズが上限を超えたことを表す。
var ErrTooLarge = errors.New("download exceeds size limit")

// Opener はダウンロードチケットからファイル本体を開く。
type Opener interface {
	Open(ctx context.Context) (*gateway.DownloadStream, error)
}

// Fetcher はダウンロードチケットを取得する。
type Fetcher interface {
	FetchDownloadHandle(ctx context.Context, productID string) (Opener, error)
}

// Source はログイン状態ごとのFetcherを返す。
type Source interface {
	ForCredentials(creds gateway.Credentials) Fetcher
}

// Recorder はダウンロード結果のメトリクスを記録する。
type Recorder interface {
	RecordDownload(outcome string)
}

type gatewaySource struct {
	client *gateway.Client
}

type gatewayFetcher struct {
	client *gateway.Client
}

// GatewaySource は上流クライアントをSourceとして使う。
func GatewaySource(client *gateway.Client) Source {
	return gatewaySource{client: client}
}

func (s gatewaySource) ForCredentials(creds gateway.Credentials) Fetcher {
	return gatewayFetcher{client: s.client.WithCredentials(creds)}
}

func (f gatewayFetcher) FetchDownloadHandle(ctx context.Context, productID string) (Opener, error) {
	h, err := f.client.FetchDownloadHandle(ctx, productID)
	if err != nil {
		return nil, err
	}
	return h, nil
}

// Outcome はPrepareの結果。KindがDownloadStartedの場合だけHandleが入る。
type Outcome struct {
	Kind      model.DownloadOutcome
	ProductID string
	Handle    Opener
}

// Options はServiceの生成オプション。
type Options struct {
	// MaxSize は受け渡すファイルの上限バイト数。0以下なら無制限。
	MaxSize  int64
	Logs     repository.DownloadLogRepository
	Recorder Recorder
}

// Service はダウンロード要求を振り分ける。
type Service struct {
	source   Source
	logs     repository.DownloadLogRepository
	recorder Recorder
	logger   *slog.Logger
	maxSize  int64
}

// NewService はServiceを生成する。
func NewService(source Source, logger *slog.Logger, opts Options) *Service {
	return &Service{
		source:   source,
		logs:     opts.Logs,
		recorder: opts.Recorder,
		logger:   logger,
		maxSize:  opts.MaxSize,
	}
}

// Prepare はダウンロードを準備する。
// 未ログインならPromptLogin、未加入ならPromptUpgradeを返し、どちらも通信しない。
// それ以外の失敗はエラーとして返す。
func (s *Service) Prepare(ctx context.Context, creds gateway.Credentials, productID string) (*Outcome, error) {
	handle, err := s.source.ForCredentials(creds).FetchDownloadHandle(ctx, productID)

	outcome := &Outcome{ProductID: productID}
	switch {
	case err == nil:
		outcome.Kind = model.DownloadStarted
		outcome.Handle = handle
	case errors.Is(err, model.ErrUnauthenticated):
		outcome.Kind = model.DownloadPromptLogin
	case errors.Is(err, model.ErrForbidden):
		outcome.Kind = model.DownloadPromptUpgrade
	default:
		s.record(ctx, creds, productID, model.DownloadFailed)
		s.logger.Warn("ダウンロードの準備に失敗しました",
			slog.String("product_id", productID),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	s.record(ctx, creds, productID, outcome.Kind)
	return outcome, nil
}

// Open はファイル本体を開く。上限を超える場合はErrTooLargeを含むエラーを返す。
// 宣言サイズが不明な場合は読み出し中に上限を検査する。
func (s *Service) Open(ctx context.Context, outcome *Outcome) (*gateway.DownloadStream, error) {
	if outcome == nil || outcome.Handle == nil {
		return nil, model.NewInvalidArgumentError("ダウンロードが開始されていません")
	}
	stream, err := outcome.Handle.Open(ctx)
	if err != nil {
		return nil, err
	}
	if s.maxSize > 0 {
		if stream.Size > s.maxSize {
			stream.Body.Close()
			return nil, model.NewServerError(model.EndpointDownload, ErrTooLarge)
		}
		stream.Body = &limitedBody{rc: stream.Body, remaining: s.maxSize}
	}
	return stream, nil
}

// Save はファイルをdirに保存し、保存先のパスと書き込んだバイト数を返す。
// 途中で失敗した場合は書きかけのファイルを残さない。
func (s *Service) Save(ctx context.Context, outcome *Outcome, dir string) (string, int64, error) {
	stream, err := s.Open(ctx, outcome)
	if err != nil {
		return "", 0, err
	}
	defer stream.Body.Close()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", 0, fmt.Errorf("failed to create download dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".download-*")
	if err != nil {
		return "", 0, fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	n, copyErr := io.Copy(tmp, stream.Body)
	closeErr := tmp.Close()
	if copyErr != nil || closeErr != nil {
		os.Remove(tmpName)
		if copyErr != nil {
			if errors.Is(copyErr, ErrTooLarge) {
				return "", 0, model.NewServerError(model.EndpointDownload, ErrTooLarge)
			}
			return "", 0, model.NewNetworkError(model.EndpointDownload, copyErr)
		}
		return "", 0, fmt.Errorf("failed to close temp file: %w", closeErr)
	}

	dest := filepath.Join(dir, stream.Filename)
	if err := os.Rename(tmpName, dest); err != nil {
		os.Remove(tmpName)
		return "", 0, fmt.Errorf("failed to move download into place: %w", err)
	}

	s.logger.Info("ダウンロードを保存しました",
		slog.String("product_id", outcome.ProductID),
		slog.String("path", dest),
		slog.Int64("bytes", n),
	)
	return dest, n, nil
}

// record はメトリクスとダウンロードログを記録する。ログの保存失敗は警告に留める。
func (s *Service) record(ctx context.Context, creds gateway.Credentials, productID string, kind model.DownloadOutcome) {
	if s.recorder != nil {
		s.recorder.RecordDownload(string(kind))
	}
	if s.logs == nil {
		return
	}
	username := usernameOf(creds)
	if username == "" {
		return
	}
	entry := &model.DownloadLog{Username: username, ProductID: productID, Outcome: kind}
	if err := s.logs.Create(ctx, entry); err != nil {
		s.logger.Warn("ダウンロードログの保存に失敗しました",
			slog.String("product_id", productID),
			slog.String("error", err.Error()),
		)
	}
}

func usernameOf(creds gateway.Credentials) string {
	u, ok := creds.(interface{ CurrentUser() *model.User })
	if !ok {
		return ""
	}
	if user := u.CurrentUser(); user != nil {
		return user.Username
	}
	return ""
}

// limitedBody は上限を超えて読もうとした時点でErrTooLargeを返す。
type limitedBody struct {
	rc        io.ReadCloser
	remaining int64
}

func (l *limitedBody) Read(p []byte) (int, error) {
	if l.remaining <= 0 {
		// 上限ちょうどで終わるファイルは許可する
		var one [1]byte
		n, err := l.rc.Read(one[:])
		if n > 0 {
			return 0, ErrTooLarge
		}
		return 0, err
	}
	if int64(len(p)) > l.remaining {
		p = p[:l.remaining]
	}
	n, err := l.rc.Read(p)
	l.remaining -= int64(n)
	return n, err
}

func (l *limitedBody) Close() error {
	return l.rc.Close()
}
