package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/gamehub/internal/browse"
	"github.com/hitoshi/gamehub/internal/config"
	"github.com/hitoshi/gamehub/internal/database"
	"github.com/hitoshi/gamehub/internal/gateway"
	"github.com/hitoshi/gamehub/internal/metrics"
	"github.com/hitoshi/gamehub/internal/security"
)

// registrySweepInterval は放置されたStorefrontを掃除する周期。
const registrySweepInterval = time.Minute

// components はserve・list・downloadで共有する上流まわりの部品。
type components struct {
	registry  *prometheus.Registry
	collector *metrics.Collector
	gateway   *gateway.Client
}

// newComponents は上流クライアントとメトリクスを組み立てる。
// 絶対URLのダウンロードチケットにはSSRF対策済みクライアントを使い、
// DOWNLOAD_ALLOWED_HOSTS が指定されていればそのホストだけに限定する。
func newComponents(cfg *config.Config, logger *slog.Logger) *components {
	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg)
	guard := security.NewSSRFGuard(cfg.DownloadAllowedHosts...)

	gw := gateway.NewClient(
		&http.Client{Timeout: cfg.UpstreamTimeout},
		logger,
		gateway.Options{
			BaseURL:       cfg.UpstreamBaseURL,
			RatePerSecond: cfg.UpstreamRatePerSec,
			Burst:         cfg.UpstreamBurst,
			Breaker:       gateway.DefaultBreakerConfig("catalog"),
			SafeClient:    guard.NewSafeClient(cfg.UpstreamTimeout),
			Validator:     guard,
			Recorder:      collector,
		},
	)

	return &components{
		registry:  reg,
		collector: collector,
		gateway:   gw,
	}
}

// storefrontOptions は設定からStorefrontの生成オプションを作る。
func (c *components) storefrontOptions(cfg *config.Config) browse.Options {
	return browse.Options{
		PageSize:         cfg.PageSize,
		SearchDebounce:   cfg.SearchDebounce,
		SentinelMarginPx: cfg.SentinelMarginPx,
		Recorder:         c.collector,
		OnDrop:           c.collector.RecordEventDropped,
	}
}

// newStorefront は未開始のStorefrontを生成する。
func (c *components) newStorefront(cfg *config.Config, logger *slog.Logger) *browse.Storefront {
	return browse.NewStorefront(c.gateway, logger, c.storefrontOptions(cfg))
}

// newRegistry はブラウザごとのStorefrontを保持するRegistryを生成する。
func (c *components) newRegistry(cfg *config.Config, logger *slog.Logger) *browse.Registry {
	r := browse.NewRegistry(func() *browse.Storefront {
		return c.newStorefront(cfg, logger)
	}, cfg.StorefrontIdleTTL, registrySweepInterval, logger)
	r.ObserveSize(c.collector.SetActiveStorefronts)
	return r
}

// healthHandler はDB疎通を確認するヘルスチェックハンドラーを返す。
func healthHandler(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := database.Ping(r.Context(), db, 2*time.Second); err != nil {
			slog.Warn("health check failed", slog.String("error", err.Error()))
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(map[string]string{"status": "unavailable"})
			return
		}
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}
}

// openDatabase はDB接続を開いて疎通を確認する。
func openDatabase(ctx context.Context, databaseURL string) (*sql.DB, error) {
	db, err := database.Open(databaseURL, database.DefaultPoolConfig())
	if err != nil {
		return nil, err
	}
	if err := database.Ping(ctx, db, 5*time.Second); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}
