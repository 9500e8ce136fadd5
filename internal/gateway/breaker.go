package gateway

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"
)

// BreakerConfig はサーキットブレーカーの設定。
type BreakerConfig struct {
	Name string
	// MaxRequests はhalf-open状態で通すリクエスト数。
	MaxRequests uint32
	// Interval はclosed状態でカウントをリセットする周期。
	Interval time.Duration
	// Timeout はopenからhalf-openへ移るまでの時間。
	Timeout time.Duration
	// FailureRatio はこの割合以上失敗したらopenにする。
	FailureRatio float64
	// MinRequests は割合を評価する最小リクエスト数。
	MinRequests uint32
}

// DefaultBreakerConfig はカタログAPI向けの既定値を返す。
func DefaultBreakerConfig(name string) BreakerConfig {
	return BreakerConfig{
		Name:         name,
		MaxRequests:  1,
		Interval:     60 * time.Second,
		Timeout:      30 * time.Second,
		FailureRatio: 0.5,
		MinRequests:  5,
	}
}

// StateObserver はブレーカーの状態遷移を受け取る。
type StateObserver interface {
	SetBreakerState(name string, state float64)
}

// upstreamStatusError はブレーカーの失敗として数える5xx応答。
type upstreamStatusError struct {
	statusCode int
}

func (e *upstreamStatusError) Error() string {
	return fmt.Sprintf("上流APIがステータス %d を返しました", e.statusCode)
}

// breakerStateValue はgobreakerの状態をゲージ値に変換する。
func breakerStateValue(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

func newBreaker(cfg BreakerConfig, logger *slog.Logger, observer StateObserver) *gobreaker.CircuitBreaker[*http.Response] {
	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= cfg.FailureRatio
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("サーキットブレーカーの状態が変化しました",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
			if observer != nil {
				observer.SetBreakerState(name, breakerStateValue(to))
			}
		},
	}
	if observer != nil {
		observer.SetBreakerState(cfg.Name, 0)
	}
	return gobreaker.NewCircuitBreaker[*http.Response](settings)
}
