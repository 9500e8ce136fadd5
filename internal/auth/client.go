package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/gamehub/internal/model"
)

const (
	pathLogin   = "/userAuth/login"
	pathProfile = "/userAuth/profile"
)

// LoginResult は上流APIのログイン結果。
type LoginResult struct {
	AccessToken  string
	RefreshToken string
	User         model.User
}

// Client は上流APIの認証エンドポイントのクライアント。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	baseURL    string
}

// NewClient はClientを生成する。
func NewClient(httpClient *http.Client, logger *slog.Logger, baseURL string) *Client {
	return &Client{
		httpClient: httpClient,
		logger:     logger,
		baseURL:    strings.TrimRight(baseURL, "/"),
	}
}

type loginResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    *struct {
		AccessToken  string     `json:"accessToken"`
		RefreshToken string     `json:"refreshToken"`
		User         model.User `json:"user"`
		Tokens       *struct {
			AccessToken  string `json:"accessToken"`
			RefreshToken string `json:"refreshToken"`
		} `json:"tokens"`
	} `json:"data"`
}

// Login はユーザー名とパスワードでログインする。
func (c *Client) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	if strings.TrimSpace(username) == "" || password == "" {
		return nil, model.NewInvalidArgumentError("ユーザー名とパスワードを入力してください")
	}

	payload, err := json.Marshal(map[string]string{"username": username, "password": password})
	if err != nil {
		return nil, fmt.Errorf("リクエストボディの生成に失敗しました: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+pathLogin, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	body, status, err := c.do(req)
	if err != nil {
		return nil, err
	}
	if status == http.StatusUnauthorized || status == http.StatusBadRequest || status == http.StatusNotFound {
		return nil, model.NewInvalidCredentialsError()
	}
	if status < 200 || status >= 300 {
		c.logger.Error("ログインAPIがエラーステータスを返しました", slog.Int("http_status", status))
		return nil, model.NewServerError(model.EndpointAuth, fmt.Errorf("status %d", status))
	}

	var resp loginResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, model.NewServerError(model.EndpointAuth, err)
	}
	if !resp.Success || resp.Data == nil {
		return nil, model.NewInvalidCredentialsError()
	}

	result := &LoginResult{
		AccessToken:  resp.Data.AccessToken,
		RefreshToken: resp.Data.RefreshToken,
		User:         resp.Data.User,
	}
	if result.AccessToken == "" && resp.Data.Tokens != nil {
		result.AccessToken = resp.Data.Tokens.AccessToken
		result.RefreshToken = resp.Data.Tokens.RefreshToken
	}
	if result.AccessToken == "" {
		return nil, model.NewServerError(model.EndpointAuth, fmt.Errorf("アクセストークンがありません"))
	}
	return result, nil
}

// Profile はアクセストークンの持ち主のプロフィールを取得する。
func (c *Client) Profile(ctx context.Context, accessToken string) (*model.User, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+pathProfile, nil)
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	body, status, err := c.do(req)
	if err != nil {
		return nil, err
	}
	if status == http.StatusUnauthorized {
		return nil, model.NewUnauthenticatedError()
	}
	if status < 200 || status >= 300 {
		c.logger.Error("プロフィールAPIがエラーステータスを返しました", slog.Int("http_status", status))
		return nil, model.NewServerError(model.EndpointAuth, fmt.Errorf("status %d", status))
	}

	var resp struct {
		Success bool        `json:"success"`
		Data    *model.User `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, model.NewServerError(model.EndpointAuth, err)
	}
	if !resp.Success || resp.Data == nil {
		return nil, model.NewServerError(model.EndpointAuth, fmt.Errorf("プロフィールがありません"))
	}
	return resp.Data, nil
}

func (c *Client) do(req *http.Request) ([]byte, int, error) {
	req.Header.Set("Accept", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("認証APIの呼び出しに失敗しました",
			slog.String("path", req.URL.Path),
			slog.String("error", err.Error()),
		)
		return nil, 0, model.NewNetworkError(model.EndpointAuth, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, 0, model.NewNetworkError(model.EndpointAuth, err)
	}
	return body, resp.StatusCode, nil
}
