package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, catalog, download, system
	Action   string // ユーザー向け対処方法

	cause error
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap は原因となったエラーを返す。
func (e *APIError) Unwrap() error {
	return e.cause
}

// Is はエラーコードが一致する場合にtrueを返す。
// errors.Is(err, model.ErrNetwork) のように種別だけで判定できる。
func (e *APIError) Is(target error) bool {
	t, ok := target.(*APIError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// 定義済みエラーコード
const (
	ErrCodeNetwork         = "NETWORK_ERROR"
	ErrCodeServer          = "SERVER_ERROR"
	ErrCodeInvalidArgument = "INVALID_ARGUMENT"
	ErrCodeUnauthenticated = "UNAUTHENTICATED"
	ErrCodeForbidden       = "FORBIDDEN"
	ErrCodeNotFound        = "NOT_FOUND"
)

// 種別判定用のセンチネル。errors.Is の比較対象としてのみ使う。
var (
	ErrNetwork         = &APIError{Code: ErrCodeNetwork}
	ErrServer          = &APIError{Code: ErrCodeServer}
	ErrInvalidArgument = &APIError{Code: ErrCodeInvalidArgument}
	ErrUnauthenticated = &APIError{Code: ErrCodeUnauthenticated}
	ErrForbidden       = &APIError{Code: ErrCodeForbidden}
	ErrNotFound        = &APIError{Code: ErrCodeNotFound}
)

// Endpoint はエラーメッセージを出し分けるための取得元種別。
type Endpoint string

// 取得元種別
const (
	EndpointList     Endpoint = "list"
	EndpointFiltered Endpoint = "filtered"
	EndpointSearch   Endpoint = "search"
	EndpointDownload Endpoint = "download"
	EndpointAuth     Endpoint = "auth"
	EndpointTags     Endpoint = "tags"
)

// serverErrorMessages は取得元ごとのバナー表示文言。
var serverErrorMessages = map[Endpoint]string{
	EndpointList:     "商品の読み込みに失敗しました。",
	EndpointFiltered: "絞り込み結果の読み込みに失敗しました。",
	EndpointSearch:   "検索結果の読み込みに失敗しました。",
	EndpointDownload: "ダウンロードの準備に失敗しました。",
	EndpointAuth:     "認証サーバーとの通信に失敗しました。",
	EndpointTags:     "タグ一覧の読み込みに失敗しました。",
}

func serverErrorMessage(ep Endpoint) string {
	if msg, ok := serverErrorMessages[ep]; ok {
		return msg
	}
	return "サーバーとの通信に失敗しました。"
}

// NewNetworkError は通信失敗エラーを生成する。
func NewNetworkError(ep Endpoint, cause error) *APIError {
	return &APIError{
		Code:     ErrCodeNetwork,
		Message:  serverErrorMessage(ep),
		Category: "system",
		Action:   "ネットワーク接続を確認し、再試行してください。",
		cause:    cause,
	}
}

// NewServerError はサーバー応答の異常（非2xx、デコード不能）エラーを生成する。
func NewServerError(ep Endpoint, cause error) *APIError {
	return &APIError{
		Code:     ErrCodeServer,
		Message:  serverErrorMessage(ep),
		Category: "system",
		Action:   "しばらく待ってから再試行してください。",
		cause:    cause,
	}
}

// NewInvalidArgumentError は呼び出し側の入力不正エラーを生成する。
func NewInvalidArgumentError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidArgument,
		Message:  fmt.Sprintf("無効な入力です: %s", reason),
		Category: "validation",
		Action:   "入力内容を確認してください。",
	}
}

// NewUnauthenticatedError は未ログインまたはトークン期限切れのエラーを生成する。
func NewUnauthenticatedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthenticated,
		Message:  "ログインが必要です。",
		Category: "auth",
		Action:   "ログインしてから再度お試しください。",
	}
}

// NewInvalidCredentialsError はログイン情報が誤っている場合のエラーを生成する。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthenticated,
		Message:  "ユーザー名またはパスワードが正しくありません。",
		Category: "auth",
		Action:   "入力内容を確認して再度ログインしてください。",
	}
}

// NewForbiddenError は有料会員でないためダウンロードできない場合のエラーを生成する。
func NewForbiddenError() *APIError {
	return &APIError{
		Code:     ErrCodeForbidden,
		Message:  "ダウンロードには有料プランへの加入が必要です。",
		Category: "download",
		Action:   "プランをアップグレードしてください。",
	}
}

// NewNotFoundError は対象が見つからない場合のエラーを生成する。
func NewNotFoundError(what, id string) *APIError {
	return &APIError{
		Code:     ErrCodeNotFound,
		Message:  fmt.Sprintf("指定された%sが見つかりません: %s", what, id),
		Category: "catalog",
		Action:   "IDを確認してください。",
	}
}
