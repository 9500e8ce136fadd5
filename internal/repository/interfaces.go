// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/gamehub/internal/model"
)

// SessionRepository はログインセッションの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れや未登録の場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// UpdateSubscription はプロフィール再取得で判明した購読状態を反映する。
	UpdateSubscription(ctx context.Context, id string, isSubscribed bool) error
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
	// DeleteByUsername は指定ユーザーの全セッションを削除する。
	DeleteByUsername(ctx context.Context, username string) error
	// DeleteExpired はexpires_atがnowより前のセッションを削除し、削除件数を返す。
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// DownloadLogRepository はダウンロード要求ログの永続化インターフェース。
type DownloadLogRepository interface {
	// Create はログを1件追加する。
	Create(ctx context.Context, entry *model.DownloadLog) error
	// ListByUsername は指定ユーザーのログを新しい順に最大limit件返す。
	ListByUsername(ctx context.Context, username string, limit int) ([]*model.DownloadLog, error)
}
