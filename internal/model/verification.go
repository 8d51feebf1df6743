// Package model はドメインモデルを定義する。
package model

import "time"

// AllowedEmail は照合許可リストに登録されたメールアドレスを表す。
// 運用側が事前に投入する参照データで、Bot側からは読み取りのみ。
type AllowedEmail struct {
	Email string
}

// Verification はDiscordアカウントとメールアドレスの照合状態を表す。
// discord_idごとに高々1行、メールアドレスごとに高々1行。
// OTPコードは再発行のたびに丸ごと上書きされ、履歴は保持しない。
type Verification struct {
	DiscordID    string
	Email        string
	OTPCode      string
	OTPExpiresAt time.Time
	Verified     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Expired は指定時刻においてOTPコードが失効しているかを返す。
// 有効期限ちょうどの時刻は失効扱い（expires_at > now が有効条件）。
func (v *Verification) Expired(now time.Time) bool {
	return !v.OTPExpiresAt.After(now)
}
