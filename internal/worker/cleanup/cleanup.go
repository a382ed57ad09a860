// Package cleanup は期限切れパスワード再設定トークンの定期削除ジョブを提供する。
// 有効期限から保持期間（デフォルト24時間）を超過したトークンを破棄する。
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/campusconnect/internal/metrics"
)

// TokenPurger は期限切れ再設定トークンの破棄を抽象化するインターフェース。
// repository.AccountRepository が満たす。
type TokenPurger interface {
	ClearExpiredResetTokens(ctx context.Context, before time.Time) (int64, error)
}

// CleanupJob は期限切れ再設定トークンの削除ジョブ。
// 冪等: 削除対象がなくてもエラーにならない。
type CleanupJob struct {
	purger    TokenPurger
	logger    *slog.Logger
	collector metrics.MetricsCollector
	now       func() time.Time

	Retention time.Duration // 有効期限切れ後の保持期間（デフォルト: 24h）
}

// NewCleanupJob は新しいCleanupJobを生成する。collector が nil の場合は記録しない。
func NewCleanupJob(purger TokenPurger, logger *slog.Logger, collector metrics.MetricsCollector) *CleanupJob {
	if collector == nil {
		collector = metrics.Nop{}
	}
	return &CleanupJob{
		purger:    purger,
		logger:    logger,
		collector: collector,
		now:       time.Now,
		Retention: 24 * time.Hour,
	}
}

// Run は有効期限が now-Retention 以前のトークンを破棄する。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := j.now()
	before := start.Add(-j.Retention)

	purged, err := j.purger.ClearExpiredResetTokens(ctx, before)
	if err != nil {
		j.logger.Error("再設定トークンのクリーンアップに失敗しました",
			slog.String("error", err.Error()),
			slog.Duration("retention", j.Retention),
		)
		return fmt.Errorf("再設定トークンのクリーンアップに失敗: %w", err)
	}

	j.collector.RecordResetTokensPurged(purged)
	j.logger.Info("再設定トークンのクリーンアップが完了しました",
		slog.Int64("deleted_count", purged),
		slog.Duration("retention", j.Retention),
		slog.Time("expired_before", before),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return nil
}

// Start は起動直後に1回、以後 interval ごとに Run を実行する。
// ctx がキャンセルされるまでブロックする。失敗はログに残して継続する。
func (j *CleanupJob) Start(ctx context.Context, interval time.Duration) {
	_ = j.Run(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = j.Run(ctx)
		}
	}
}
