package model

import "time"

// DownloadOutcome はダウンロード要求の結果種別。
type DownloadOutcome string

const (
	DownloadPromptLogin   DownloadOutcome = "prompt_login"
	DownloadPromptUpgrade DownloadOutcome = "prompt_upgrade"
	DownloadStarted       DownloadOutcome = "started"
	DownloadFailed        DownloadOutcome = "failed"
)

// DownloadLog はログイン済みユーザーのダウンロード要求の記録。
type DownloadLog struct {
	ID        string
	Username  string
	ProductID string
	Outcome   DownloadOutcome
	CreatedAt time.Time
}
