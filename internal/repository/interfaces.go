// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/doorman/internal/model"
)

// AllowlistRepository は認証許可メールアドレスの参照インターフェース。
// 許可リストは運用側が管理する参照データで、Botからは読み取りのみ。
type AllowlistRepository interface {
	// Exists は指定メールアドレスが許可リストに存在するかを返す。
	Exists(ctx context.Context, email string) (bool, error)
}

// VerificationRepository はメール照合状態の永続化インターフェース。
type VerificationRepository interface {
	// Upsert は照合行をdiscord_idをキーにUPSERTする。
	// 既存行があればemail・otp_code・otp_expires_atを丸ごと上書きする
	// （旧コードは即時無効になる）。verifiedは上書きしない。
	Upsert(ctx context.Context, v *model.Verification) error

	// FindByEmail は指定メールアドレスの照合行を取得する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.Verification, error)

	// FindByDiscordID は指定discord_idの照合行を取得する。見つからない場合はnilを返す。
	FindByDiscordID(ctx context.Context, discordID string) (*model.Verification, error)

	// FindValidByIDAndCode はdiscord_idとコードが一致し、かつ
	// otp_expires_at > now の行を取得する。該当なしの場合はnilを返す。
	// 期限切れとコード不一致は呼び出し側から区別できない。
	FindValidByIDAndCode(ctx context.Context, discordID, code string, now time.Time) (*model.Verification, error)

	// MarkVerified は指定discord_idの行をverified=trueにする。冪等。
	MarkVerified(ctx context.Context, discordID string) error
}

// DoubtRepository は質問データの永続化インターフェース。
type DoubtRepository interface {
	// Insert は質問を作成し、採番されたIDを返す。
	Insert(ctx context.Context, authorID, question string, createdAt time.Time) (int64, error)

	// FindByID は指定IDの質問を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id int64) (*model.Doubt, error)

	// MarkResolved は指定IDの質問をresolved=trueにする。
	// resolved=falseの行のみを対象とし、更新できた場合にtrueを返す。
	// falseは並行するresolveに先を越されたことを意味する。
	MarkResolved(ctx context.Context, id int64, resolvedBy string, resolvedAt time.Time) (bool, error)

	// ListByAuthor は投稿者自身の質問一覧をID昇順で返す。
	ListByAuthor(ctx context.Context, authorID string, filter model.DoubtFilter) ([]*model.Doubt, error)

	// CountsByAuthor は投稿者の質問数の内訳（total/open/closed）を返す。
	// フィルタとは無関係に全件を対象に数える。
	CountsByAuthor(ctx context.Context, authorID string) (model.DoubtCounts, error)

	// ListUnresolvedGroupedByAuthor は未解決質問を投稿者ごとにまとめて返す。
	// グループ内のIDはID昇順。リマインダーバッチが使用する。
	ListUnresolvedGroupedByAuthor(ctx context.Context) ([]model.DoubtGroup, error)
}
