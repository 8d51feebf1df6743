// Package command はチャットメッセージをワークフローへ振り分けるコマンドルーターを提供する。
//
// ルーター自体は状態を持たない。認識したコマンド1回につき必ず1通の返信を
// 生成し、サービス層の失敗はすべてこの境界でユーザー向けの文面に変換する。
// 未知のコマンド・コマンドでないメッセージ・Botによるメッセージは無視する。
package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/hitoshi/doorman/internal/doubt"
	"github.com/hitoshi/doorman/internal/metrics"
	"github.com/hitoshi/doorman/internal/model"
	"github.com/hitoshi/doorman/internal/verification"
)

// prefix はコマンドの先頭文字。
const prefix = "!"

// Message は受信したチャットメッセージを表す。
type Message struct {
	ID          string
	GuildID     string
	ChannelID   string
	AuthorID    string
	AuthorIsBot bool
	Content     string
}

// VerificationService はルーターが必要とする認証サービスインターフェース。
type VerificationService interface {
	RequestCode(ctx context.Context, discordID, email string) (*verification.RequestResult, error)
	ConsumeCode(ctx context.Context, discordID, guildID, code string) (*verification.ConsumeResult, error)
}

// DoubtService はルーターが必要とする質問サービスインターフェース。
type DoubtService interface {
	Create(ctx context.Context, authorID, text string) (int64, error)
	Resolve(ctx context.Context, authorID string, doubtID int64) error
	List(ctx context.Context, authorID string, filter model.DoubtFilter) (*doubt.ListResult, error)
}

// Router はコマンドの解析とディスパッチを行う。
type Router struct {
	verifSvc VerificationService
	doubtSvc DoubtService
	recorder metrics.Recorder
}

// NewRouter はRouterの新しいインスタンスを生成する。
// recorderがnilの場合はメトリクスを記録しない。
func NewRouter(verifSvc VerificationService, doubtSvc DoubtService, recorder metrics.Recorder) *Router {
	return &Router{
		verifSvc: verifSvc,
		doubtSvc: doubtSvc,
		recorder: recorder,
	}
}

// Handle はメッセージを解析し、対応するワークフローを実行する。
// 認識したコマンドの場合は handled=true と返信文を返す。
// 無視するメッセージ（Bot発・非コマンド・未知コマンド）は handled=false。
func (rt *Router) Handle(ctx context.Context, msg Message) (reply string, handled bool) {
	if msg.AuthorIsBot {
		return "", false
	}
	if !strings.HasPrefix(msg.Content, prefix) {
		return "", false
	}

	name, arg := splitCommand(msg.Content)

	switch name {
	case "verify":
		return rt.handleVerify(ctx, msg, arg), true
	case "otp":
		return rt.handleOTP(ctx, msg, arg), true
	case "ask":
		return rt.handleAsk(ctx, msg, arg), true
	case "resolve":
		return rt.handleResolve(ctx, msg, arg), true
	case "doubts":
		return rt.handleDoubts(ctx, msg, arg), true
	default:
		return "", false
	}
}

// splitCommand はコマンド名と引数部分を分離する。
// 引数部分は先頭の空白を除いた残り全体（!askの本文が空白を含むため）。
func splitCommand(content string) (name, arg string) {
	content = strings.TrimPrefix(content, prefix)
	parts := strings.SplitN(content, " ", 2)
	name = strings.ToLower(strings.TrimSpace(parts[0]))
	if len(parts) == 2 {
		arg = strings.TrimSpace(parts[1])
	}
	return name, arg
}

// handleVerify は !verify <email> を処理する。
func (rt *Router) handleVerify(ctx context.Context, msg Message, arg string) string {
	result, err := rt.verifSvc.RequestCode(ctx, msg.AuthorID, arg)
	if err != nil {
		return rt.failureReply("verify", msg, err)
	}

	rt.record("verify")
	if rt.recorder != nil {
		rt.recorder.RecordOTPIssued()
	}
	return fmt.Sprintf("確認コードを %s に送信しました。!otp <コード> で認証してください（有効期限: %d分）。",
		result.Email, int(result.TTL.Minutes()))
}

// handleOTP は !otp <code> を処理する。
func (rt *Router) handleOTP(ctx context.Context, msg Message, arg string) string {
	if arg == "" {
		return rt.failureReply("otp", msg, model.NewInvalidOrExpiredError())
	}

	result, err := rt.verifSvc.ConsumeCode(ctx, msg.AuthorID, msg.GuildID, arg)
	if err != nil {
		return rt.failureReply("otp", msg, err)
	}

	rt.record("otp")
	if rt.recorder != nil {
		rt.recorder.RecordOTPVerified()
	}

	if !result.RoleGranted {
		// 認証自体は成立している縮退成功。ロール付与は管理者の手動対応になる。
		if rt.recorder != nil {
			rt.recorder.RecordRoleGrantDegraded()
		}
		return "認証が完了しました。ただし付与対象のロールが見つからなかったため、ロールは付与されていません。"
	}
	return "認証が完了しました。コミュニティへのアクセスが許可されました。"
}

// handleAsk は !ask <text> を処理する。
func (rt *Router) handleAsk(ctx context.Context, msg Message, arg string) string {
	id, err := rt.doubtSvc.Create(ctx, msg.AuthorID, arg)
	if err != nil {
		return rt.failureReply("ask", msg, err)
	}

	rt.record("ask")
	if rt.recorder != nil {
		rt.recorder.RecordDoubtCreated()
	}
	return fmt.Sprintf("質問 #%d を登録しました。解決したら !resolve %d を実行してください。", id, id)
}

// handleResolve は !resolve <id> を処理する。
func (rt *Router) handleResolve(ctx context.Context, msg Message, arg string) string {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return rt.failureReply("resolve", msg, model.NewInvalidDoubtIDError())
	}

	if err := rt.doubtSvc.Resolve(ctx, msg.AuthorID, id); err != nil {
		return rt.failureReply("resolve", msg, err)
	}

	rt.record("resolve")
	if rt.recorder != nil {
		rt.recorder.RecordDoubtResolved()
	}
	return fmt.Sprintf("質問 #%d を解決済みにしました。", id)
}

// handleDoubts は !doubts [open|closed] を処理する。
func (rt *Router) handleDoubts(ctx context.Context, msg Message, arg string) string {
	filter, ok := model.ParseDoubtFilter(arg)
	if !ok {
		return rt.failureReply("doubts", msg, model.NewInvalidFilterError(arg))
	}

	result, err := rt.doubtSvc.List(ctx, msg.AuthorID, filter)
	if err != nil {
		return rt.failureReply("doubts", msg, err)
	}

	rt.record("doubts")
	return formatDoubtList(result, filter)
}

// formatDoubtList は質問一覧の返信文を組み立てる。
// 該当なしの場合も内訳付きの情報提供として返信する（エラーではない）。
func formatDoubtList(result *doubt.ListResult, filter model.DoubtFilter) string {
	var b strings.Builder
	fmt.Fprintf(&b, "あなたの質問（全%d件 / 未解決%d件 / 解決済み%d件）\n",
		result.Counts.Total, result.Counts.Open, result.Counts.Closed)

	if len(result.Doubts) == 0 {
		b.WriteString("表示条件に一致する質問はありません。")
		return b.String()
	}

	for _, d := range result.Doubts {
		status := "未解決"
		if d.Resolved {
			status = "解決済み"
		}
		fmt.Fprintf(&b, "#%d [%s] %s\n", d.ID, status, truncate(d.Question, 60))
	}

	return strings.TrimRight(b.String(), "\n")
}

// truncate は表示用に文字列をrune数で切り詰める。
func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "…"
}

// failureReply はサービス層のエラーを1通の返信文に変換する。
// BotErrorはその文面をそのまま返す。それ以外（依存先障害）は相関ID付きで
// 詳細をログに記録し、ユーザーには汎用文面を返す。
func (rt *Router) failureReply(command string, msg Message, err error) string {
	rt.record(command)

	var botErr *model.BotError
	if errors.As(err, &botErr) {
		if !botErr.Info && rt.recorder != nil {
			rt.recorder.RecordCommandFailure(command, botErr.Category)
		}
		return botErr.Message
	}

	eventID := uuid.New().String()
	slog.Error("コマンド処理が依存先の障害で失敗しました",
		slog.String("event_id", eventID),
		slog.String("command", command),
		slog.String("author_id", msg.AuthorID),
		slog.String("error", err.Error()),
	)
	if rt.recorder != nil {
		rt.recorder.RecordCommandFailure(command, "system")
	}
	return model.NewDependencyFailureError().Message
}

// record はコマンドの処理をメトリクスに記録する。
func (rt *Router) record(command string) {
	if rt.recorder != nil {
		rt.recorder.RecordCommand(command)
	}
}
