package remind

import (
	"context"
	"log/slog"
	"time"
)

// JobRunner はスケジューラが実行するジョブのインターフェース。
type JobRunner interface {
	Run(ctx context.Context) error
}

// Scheduler はリマインダージョブを毎日決まった時刻に実行する。
// 固定間隔のティッカーではなく、次の実行時刻までのタイマーで待つ。
// プロセス再起動後も次のHour:00に揃う。
type Scheduler struct {
	job    JobRunner
	logger *slog.Logger
	hour   int

	// now はテストで時刻を固定するために差し替える
	now func() time.Time
}

// NewScheduler はSchedulerの新しいインスタンスを生成する。
// hourは0〜23のローカル時。範囲外の場合は9を使用する。
func NewScheduler(job JobRunner, logger *slog.Logger, hour int) *Scheduler {
	if hour < 0 || hour > 23 {
		hour = 9
	}
	return &Scheduler{
		job:    job,
		logger: logger,
		hour:   hour,
		now:    time.Now,
	}
}

// Start はスケジューラを起動する。
// コンテキストがキャンセルされるまで実行を継続する。
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info("リマインダースケジューラを開始しました",
		slog.Int("hour", s.hour),
	)

	for {
		next := nextRun(s.now(), s.hour)
		timer := time.NewTimer(next.Sub(s.now()))

		s.logger.Info("次回のリマインダー実行時刻",
			slog.Time("next_run", next),
		)

		select {
		case <-ctx.Done():
			timer.Stop()
			s.logger.Info("リマインダースケジューラを停止しました")
			return
		case <-timer.C:
			if err := s.job.Run(ctx); err != nil {
				s.logger.Error("リマインダーバッチの実行に失敗しました",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// nextRun はnowより後の直近のhour:00:00（ローカル時刻）を返す。
func nextRun(now time.Time, hour int) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, 0, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}
