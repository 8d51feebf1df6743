// Package model はドメインモデルを定義する。
package model

import "time"

// Doubt はメンバーが投稿した質問（doubt）を表す。
// idは作成時に採番され不変。resolvedはfalseで作成され、
// 投稿者本人のresolve操作によってのみtrueへ遷移する（不可逆）。
type Doubt struct {
	ID         int64
	AuthorID   string
	Question   string
	Resolved   bool
	ResolvedBy *string
	ResolvedAt *time.Time
	CreatedAt  time.Time
}

// DoubtFilter は質問一覧のフィルタ種別を表す。
type DoubtFilter string

const (
	// DoubtFilterAll は全質問を表示するフィルタ。
	DoubtFilterAll DoubtFilter = "all"
	// DoubtFilterOpen は未解決の質問のみを表示するフィルタ。
	DoubtFilterOpen DoubtFilter = "open"
	// DoubtFilterClosed は解決済みの質問のみを表示するフィルタ。
	DoubtFilterClosed DoubtFilter = "closed"
)

// ParseDoubtFilter はコマンド引数からフィルタ種別を解析する。
// 空文字列はallとして扱う。未知の値はok=falseを返す。
func ParseDoubtFilter(s string) (DoubtFilter, bool) {
	switch s {
	case "":
		return DoubtFilterAll, true
	case string(DoubtFilterAll):
		return DoubtFilterAll, true
	case string(DoubtFilterOpen):
		return DoubtFilterOpen, true
	case string(DoubtFilterClosed):
		return DoubtFilterClosed, true
	default:
		return "", false
	}
}

// DoubtCounts は投稿者ごとの質問数の内訳を表す。
// total = open + closed が常に成り立つ。
type DoubtCounts struct {
	Total  int
	Open   int
	Closed int
}

// DoubtGroup は未解決質問を投稿者ごとにまとめたもの。
// リマインダーバッチが1通知=1グループの単位で処理する。
type DoubtGroup struct {
	AuthorID string
	DoubtIDs []int64
}
