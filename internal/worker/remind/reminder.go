// Package remind は未解決質問の日次リマインダーバッチを提供する。
// スケジューラとリマインダージョブを含む。
package remind

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hitoshi/doorman/internal/metrics"
	"github.com/hitoshi/doorman/internal/model"
)

// DoubtLister は未解決質問の集計インターフェース。
type DoubtLister interface {
	// UnresolvedByAuthor は未解決質問を投稿者ごとにまとめて返す。
	UnresolvedByAuthor(ctx context.Context) ([]model.DoubtGroup, error)
}

// Notifier はリマインダーDMの送信インターフェース。
type Notifier interface {
	Notify(ctx context.Context, userID, text string) error
}

// ReminderJob は未解決質問を持つ投稿者へのDM送信ジョブ。
// 日次実行のバッチジョブとして設計されており、1投稿者への送信失敗が
// 他の投稿者への送信を妨げない。
type ReminderJob struct {
	doubts   DoubtLister
	notifier Notifier
	logger   *slog.Logger
	recorder metrics.Recorder
}

// NewReminderJob は新しいReminderJobを生成する。
// recorderがnilの場合はメトリクスを記録しない。
func NewReminderJob(doubts DoubtLister, notifier Notifier, logger *slog.Logger, recorder metrics.Recorder) *ReminderJob {
	return &ReminderJob{
		doubts:   doubts,
		notifier: notifier,
		logger:   logger,
		recorder: recorder,
	}
}

// Run は未解決質問を投稿者ごとに集計し、各投稿者へリマインダーDMを送信する。
// 送信失敗は投稿者単位でログに記録して続行する。集計自体の失敗のみエラーを返す。
// 冪等: 未解決質問がない場合は何も送信しない。
func (j *ReminderJob) Run(ctx context.Context) error {
	start := time.Now()

	groups, err := j.doubts.UnresolvedByAuthor(ctx)
	if err != nil {
		j.logger.Error("リマインダー対象の集計に失敗しました",
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("リマインダー対象の集計に失敗: %w", err)
	}

	if len(groups) == 0 {
		j.logger.Info("リマインダー対象の投稿者はいません")
		return nil
	}

	var sent, failed int
	for _, g := range groups {
		if err := ctx.Err(); err != nil {
			return err
		}

		text := reminderText(g)
		if err := j.notifier.Notify(ctx, g.AuthorID, text); err != nil {
			failed++
			if j.recorder != nil {
				j.recorder.RecordReminderFailure()
			}
			j.logger.Error("リマインダーDMの送信に失敗しました",
				slog.String("author_id", g.AuthorID),
				slog.Int("doubt_count", len(g.DoubtIDs)),
				slog.String("error", err.Error()),
			)
			continue
		}

		sent++
		if j.recorder != nil {
			j.recorder.RecordReminderSent()
		}
	}

	duration := time.Since(start)
	j.logger.Info("リマインダーバッチが完了しました",
		slog.Int("author_count", len(groups)),
		slog.Int("sent", sent),
		slog.Int("failed", failed),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return nil
}

// reminderText は1投稿者向けのリマインダー本文を組み立てる。
// 質問IDはID昇順の一覧で含める。
func reminderText(g model.DoubtGroup) string {
	ids := make([]string, len(g.DoubtIDs))
	for i, id := range g.DoubtIDs {
		ids[i] = fmt.Sprintf("#%d", id)
	}

	return fmt.Sprintf(
		"未解決の質問が%d件あります: %s\n解決したら !resolve <ID> で記録してください。",
		len(g.DoubtIDs), strings.Join(ids, ", "),
	)
}
