package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/gamehub/internal/model"
)

// PostgresDownloadLogRepo はPostgreSQLを使用したダウンロードログリポジトリ。
type PostgresDownloadLogRepo struct {
	db *sql.DB
}

// NewPostgresDownloadLogRepo はPostgresDownloadLogRepoを生成する。
func NewPostgresDownloadLogRepo(db *sql.DB) *PostgresDownloadLogRepo {
	return &PostgresDownloadLogRepo{db: db}
}

// Create はログを追加する。IDと作成日時が空なら補完する。
func (r *PostgresDownloadLogRepo) Create(ctx context.Context, entry *model.DownloadLog) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO download_logs (id, username, product_id, outcome, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		entry.ID, entry.Username, entry.ProductID, string(entry.Outcome), entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create download log: %w", err)
	}
	return nil
}

// ListByUsername は指定ユーザーのログを新しい順に返す。
func (r *PostgresDownloadLogRepo) ListByUsername(ctx context.Context, username string, limit int) ([]*model.DownloadLog, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, username, product_id, outcome, created_at
		 FROM download_logs
		 WHERE username = $1
		 ORDER BY created_at DESC
		 LIMIT $2`,
		username, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list download logs: %w", err)
	}
	defer rows.Close()

	logs := make([]*model.DownloadLog, 0)
	for rows.Next() {
		entry := &model.DownloadLog{}
		var outcome string
		if err := rows.Scan(&entry.ID, &entry.Username, &entry.ProductID, &outcome, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan download log: %w", err)
		}
		entry.Outcome = model.DownloadOutcome(outcome)
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate download logs: %w", err)
	}
	return logs, nil
}

var _ DownloadLogRepository = (*PostgresDownloadLogRepo)(nil)
