package gateway

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/hitoshi/gamehub/internal/model"
)

// listEnvelope は一覧系エンドポイントの応答ボディ。
// 上流APIのバージョンによって data / items、currentPage / page のどちらかで返るため両方受け付ける。
type listEnvelope struct {
	Success     *bool           `json:"success"`
	Message     string          `json:"message"`
	Data        json.RawMessage `json:"data"`
	Items       json.RawMessage `json:"items"`
	CurrentPage *int            `json:"currentPage"`
	Page        *int            `json:"page"`
}

// nestedList は data がオブジェクトで返る場合の中身。
type nestedList struct {
	Products    []model.Product `json:"products"`
	Items       []model.Product `json:"items"`
	Games       []model.Product `json:"games"`
	CurrentPage *int            `json:"currentPage"`
	Page        *int            `json:"page"`
}

// decodePage は一覧応答をPageResultに変換する。
// 商品配列が無い応答は空の結果として扱い、ページ番号が無い場合は要求ページを使う。
func decodePage(body []byte, requestedPage int) (*model.PageResult, error) {
	var env listEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("応答JSONのパースに失敗しました: %w", err)
	}
	if env.Success != nil && !*env.Success {
		return nil, fmt.Errorf("上流APIが失敗を返しました: %s", env.Message)
	}

	result := &model.PageResult{Page: firstPage(requestedPage, env.CurrentPage, env.Page)}

	raw := env.Data
	if isEmptyJSON(raw) {
		raw = env.Items
	}
	if isEmptyJSON(raw) {
		result.Items = []model.Product{}
		return result, nil
	}

	switch bytes.TrimSpace(raw)[0] {
	case '[':
		if err := json.Unmarshal(raw, &result.Items); err != nil {
			return nil, fmt.Errorf("商品一覧のパースに失敗しました: %w", err)
		}
	case '{':
		var nested nestedList
		if err := json.Unmarshal(raw, &nested); err != nil {
			return nil, fmt.Errorf("商品一覧のパースに失敗しました: %w", err)
		}
		switch {
		case nested.Products != nil:
			result.Items = nested.Products
		case nested.Items != nil:
			result.Items = nested.Items
		default:
			result.Items = nested.Games
		}
		result.Page = firstPage(result.Page, nested.CurrentPage, nested.Page)
	default:
		return nil, fmt.Errorf("商品一覧の形式が不正です")
	}

	if result.Items == nil {
		result.Items = []model.Product{}
	}
	return result, nil
}

// decodeTags はタグ一覧応答を変換する。
func decodeTags(body []byte) ([]model.Tag, error) {
	var env struct {
		Success *bool       `json:"success"`
		Message string      `json:"message"`
		Data    []model.Tag `json:"data"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("タグ一覧のパースに失敗しました: %w", err)
	}
	if env.Success != nil && !*env.Success {
		return nil, fmt.Errorf("上流APIが失敗を返しました: %s", env.Message)
	}
	if env.Data == nil {
		return []model.Tag{}, nil
	}
	return env.Data, nil
}

// decodeTicket はダウンロードチケット応答 {success: true, data: "<ticket>"} を変換する。
func decodeTicket(body []byte) (string, error) {
	var env struct {
		Success bool   `json:"success"`
		Data    string `json:"data"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return "", fmt.Errorf("チケット応答のパースに失敗しました: %w", err)
	}
	if !env.Success || env.Data == "" {
		return "", fmt.Errorf("チケット応答が不正です")
	}
	return env.Data, nil
}

func firstPage(fallback int, candidates ...*int) int {
	for _, c := range candidates {
		if c != nil && *c > 0 {
			return *c
		}
	}
	return fallback
}

func isEmptyJSON(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}
