// Package cleanup は期限切れセッションの定期削除ジョブを提供する。
// タスクやコメントには触れない。
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/taskboard/internal/metrics"
)

// KindSessions は削除対象の種別。メトリクスのラベルとログに使う。
const KindSessions = "sessions"

// SessionPurger は期限切れセッションを削除する。repository.SessionRepositoryが満たす。
type SessionPurger interface {
	DeleteExpired(ctx context.Context) (int64, error)
}

// CleanupJob は期限切れセッションの削除ジョブ。
// 削除対象がなくてもエラーにならず、何度実行しても結果は変わらない。
type CleanupJob struct {
	sessions SessionPurger
	metrics  metrics.MetricsCollector
	logger   *slog.Logger
}

// NewCleanupJob は新しいCleanupJobを生成する。
// collectorがnilの場合はメトリクスを記録しない。
func NewCleanupJob(sessions SessionPurger, collector metrics.MetricsCollector, logger *slog.Logger) *CleanupJob {
	if collector == nil {
		collector = metrics.NopCollector{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CleanupJob{
		sessions: sessions,
		metrics:  collector,
		logger:   logger,
	}
}

// Start はintervalごとにRunを実行する。起動直後に1回実行し、
// コンテキストがキャンセルされるまで継続する。
func (j *CleanupJob) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	j.logger.Info("クリーンアップジョブを開始しました",
		slog.Duration("interval", interval),
	)

	j.runLogged(ctx)

	for {
		select {
		case <-ctx.Done():
			j.logger.Info("クリーンアップジョブを停止しました")
			return
		case <-ticker.C:
			j.runLogged(ctx)
		}
	}
}

func (j *CleanupJob) runLogged(ctx context.Context) {
	if err := j.Run(ctx); err != nil {
		j.logger.Error("クリーンアップの実行に失敗しました",
			slog.String("error", err.Error()),
		)
	}
}

// Run は期限切れセッションを1回削除する。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := time.Now()

	deleted, err := j.sessions.DeleteExpired(ctx)
	if err != nil {
		j.logger.Error("削除に失敗しました",
			slog.String("kind", KindSessions),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("cleanup %s: %w", KindSessions, err)
	}

	j.metrics.RecordCleanupDeleted(KindSessions, deleted)
	j.logger.Info("期限切れデータを削除しました",
		slog.String("kind", KindSessions),
		slog.Int64("deleted_count", deleted),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return nil
}
