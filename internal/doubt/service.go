// Package doubt はメンバーの質問（doubt）管理のドメインロジックを提供する。
//
// 質問は作成時に未解決で、投稿者本人のresolve操作によってのみ解決済みへ遷移する。
// 遷移は不可逆で、resolved_by/resolved_atは解決時に確定した後変化しない。
package doubt

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hitoshi/doorman/internal/model"
	"github.com/hitoshi/doorman/internal/repository"
)

// QuestionSanitizer は質問本文のサニタイズインターフェース。
type QuestionSanitizer interface {
	// Sanitize はマークアップと制御文字を除去したプレーンテキストを返す。
	Sanitize(raw string) string
}

// Service は質問管理のサービス層。
type Service struct {
	doubtRepo repository.DoubtRepository
	sanitizer QuestionSanitizer

	now func() time.Time // テスト用に差し替え可能
}

// NewService はServiceの新しいインスタンスを生成する。
// sanitizerがnilの場合はサニタイズをスキップする。
func NewService(doubtRepo repository.DoubtRepository, sanitizer QuestionSanitizer) *Service {
	return &Service{
		doubtRepo: doubtRepo,
		sanitizer: sanitizer,
		now:       time.Now,
	}
}

// Create は質問を作成し、採番されたIDを返す。
// 本文はサニタイズ後にトリムし、空になった場合はEMPTY_QUESTIONを返す。
func (s *Service) Create(ctx context.Context, authorID, text string) (int64, error) {
	if s.sanitizer != nil {
		text = s.sanitizer.Sanitize(text)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return 0, model.NewEmptyQuestionError()
	}

	id, err := s.doubtRepo.Insert(ctx, authorID, text, s.now())
	if err != nil {
		return 0, fmt.Errorf("質問の保存に失敗しました: %w", err)
	}

	slog.Info("質問を作成しました",
		slog.Int64("doubt_id", id),
		slog.String("author_id", authorID),
	)

	return id, nil
}

// Resolve は質問を解決済みにする。
//
// 「存在しない」と「他人の質問」は同一のNOT_FOUND_OR_NOT_OWNEDにまとめる。
// 解決済みの質問にはALREADY_RESOLVED（情報提供）を返す。
// 存在確認と更新は独立した2文のため、その間に並行するresolveが先に
// 成立し得る。更新0件はALREADY_RESOLVEDとして扱う。
func (s *Service) Resolve(ctx context.Context, authorID string, doubtID int64) error {
	d, err := s.doubtRepo.FindByID(ctx, doubtID)
	if err != nil {
		return fmt.Errorf("質問の取得に失敗しました: %w", err)
	}
	if d == nil || d.AuthorID != authorID {
		return model.NewNotFoundOrNotOwnedError()
	}
	if d.Resolved {
		return model.NewAlreadyResolvedError(doubtID)
	}

	updated, err := s.doubtRepo.MarkResolved(ctx, doubtID, authorID, s.now())
	if err != nil {
		return fmt.Errorf("質問の更新に失敗しました: %w", err)
	}
	if !updated {
		return model.NewAlreadyResolvedError(doubtID)
	}

	slog.Info("質問を解決しました",
		slog.Int64("doubt_id", doubtID),
		slog.String("author_id", authorID),
	)

	return nil
}

// ListResult はListの結果を表す。
// Countsはフィルタとは無関係に投稿者の全質問を対象に数える。
type ListResult struct {
	Doubts []*model.Doubt
	Counts model.DoubtCounts
}

// List は投稿者自身の質問一覧をID昇順で返す。
// 該当なしは空スライスで返す（エラーではない）。
func (s *Service) List(ctx context.Context, authorID string, filter model.DoubtFilter) (*ListResult, error) {
	doubts, err := s.doubtRepo.ListByAuthor(ctx, authorID, filter)
	if err != nil {
		return nil, fmt.Errorf("質問一覧の取得に失敗しました: %w", err)
	}

	counts, err := s.doubtRepo.CountsByAuthor(ctx, authorID)
	if err != nil {
		return nil, fmt.Errorf("質問数の集計に失敗しました: %w", err)
	}

	return &ListResult{Doubts: doubts, Counts: counts}, nil
}

// UnresolvedByAuthor は未解決質問を投稿者ごとにまとめて返す。
// リマインダーバッチが対話的な一覧と同じ読み取り面を共有するための入口。
func (s *Service) UnresolvedByAuthor(ctx context.Context) ([]model.DoubtGroup, error) {
	groups, err := s.doubtRepo.ListUnresolvedGroupedByAuthor(ctx)
	if err != nil {
		return nil, fmt.Errorf("未解決質問の集計に失敗しました: %w", err)
	}
	return groups, nil
}
