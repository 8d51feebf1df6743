// Package model はドメインモデルを定義する。
package model

import "fmt"

// BotError はコマンド処理の失敗を表す統一エラーフォーマット。
// ユーザーへの返信文と運用向けの分類を含む。
// Infoがtrueの場合は異常ではなく情報提供（例: 解決済み、該当なし）であり、
// 失敗メトリクスには計上しない。
type BotError struct {
	Code     string // エラーコード
	Message  string // ユーザーへの返信文
	Category string // カテゴリ: validation, auth, state, system
	Info     bool   // 情報提供フラグ（エラー扱いしない）
}

// Error はerrorインターフェースを実装する。
func (e *BotError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeInvalidEmail       = "INVALID_EMAIL"
	ErrCodeNotAuthorized      = "NOT_AUTHORIZED"
	ErrCodeInvalidOrExpired   = "INVALID_OR_EXPIRED"
	ErrCodeMailDeliveryFailed = "MAIL_DELIVERY_FAILED"
	ErrCodeEmptyQuestion      = "EMPTY_QUESTION"
	ErrCodeInvalidDoubtID     = "INVALID_DOUBT_ID"
	ErrCodeNotFoundOrNotOwned = "NOT_FOUND_OR_NOT_OWNED"
	ErrCodeAlreadyResolved    = "ALREADY_RESOLVED"
	ErrCodeInvalidFilter      = "INVALID_FILTER"
	ErrCodeDependencyFailure  = "DEPENDENCY_FAILURE"
)

// NewInvalidEmailError はメールアドレス形式エラーを生成する。
func NewInvalidEmailError() *BotError {
	return &BotError{
		Code:     ErrCodeInvalidEmail,
		Message:  "有効なメールアドレスを指定してください。例: !verify user@example.com",
		Category: "validation",
	}
}

// NewNotAuthorizedError は許可リスト外エラーを生成する。
// 「リストにない」と「別アカウントに紐付け済み」を区別しない文面にして、
// アドレスの登録状況を外部に漏らさない。
func NewNotAuthorizedError() *BotError {
	return &BotError{
		Code:     ErrCodeNotAuthorized,
		Message:  "このメールアドレスでは認証できません。コミュニティ管理者に確認してください。",
		Category: "auth",
	}
}

// NewInvalidOrExpiredError はOTP照合失敗エラーを生成する。
// コード不一致と期限切れを意図的に同一文面にまとめる。
func NewInvalidOrExpiredError() *BotError {
	return &BotError{
		Code:     ErrCodeInvalidOrExpired,
		Message:  "コードが正しくないか、有効期限が切れています。!verify からやり直してください。",
		Category: "auth",
	}
}

// NewMailDeliveryFailedError はOTPメール送信失敗エラーを生成する。
// コードの発行自体は完了しているため、再実行を促す文面にする。
func NewMailDeliveryFailedError() *BotError {
	return &BotError{
		Code:     ErrCodeMailDeliveryFailed,
		Message:  "確認メールの送信に失敗しました。しばらく待ってから !verify を再実行してください。",
		Category: "system",
	}
}

// NewEmptyQuestionError は質問本文が空の場合のエラーを生成する。
func NewEmptyQuestionError() *BotError {
	return &BotError{
		Code:     ErrCodeEmptyQuestion,
		Message:  "質問の本文を入力してください。例: !ask デプロイが失敗します",
		Category: "validation",
	}
}

// NewInvalidDoubtIDError は質問IDが数値でない場合のエラーを生成する。
func NewInvalidDoubtIDError() *BotError {
	return &BotError{
		Code:     ErrCodeInvalidDoubtID,
		Message:  "質問IDには数値を指定してください。例: !resolve 12",
		Category: "validation",
	}
}

// NewNotFoundOrNotOwnedError は質問の存在・所有チェック失敗エラーを生成する。
// 「存在しない」と「他人の質問」を同一文面にまとめ、存在の有無を漏らさない。
func NewNotFoundOrNotOwnedError() *BotError {
	return &BotError{
		Code:     ErrCodeNotFoundOrNotOwned,
		Message:  "その質問は見つかりません。!doubts で自分の質問IDを確認してください。",
		Category: "auth",
	}
}

// NewAlreadyResolvedError は解決済みの質問に対するresolveの通知を生成する。
// 異常ではなく情報提供として扱う。
func NewAlreadyResolvedError(doubtID int64) *BotError {
	return &BotError{
		Code:     ErrCodeAlreadyResolved,
		Message:  fmt.Sprintf("質問 #%d はすでに解決済みです。", doubtID),
		Category: "state",
		Info:     true,
	}
}

// NewInvalidFilterError は無効なフィルタエラーを生成する。
func NewInvalidFilterError(filter string) *BotError {
	return &BotError{
		Code:     ErrCodeInvalidFilter,
		Message:  fmt.Sprintf("無効なフィルタです: %s（open または closed を指定してください）", filter),
		Category: "validation",
	}
}

// NewDependencyFailureError は依存先（DB・外部API）障害の汎用エラーを生成する。
// 詳細はサーバー側ログのみに記録し、ユーザーには汎用文面を返す。
func NewDependencyFailureError() *BotError {
	return &BotError{
		Code:     ErrCodeDependencyFailure,
		Message:  "内部エラーが発生しました。しばらく待ってから再度お試しください。",
		Category: "system",
	}
}
