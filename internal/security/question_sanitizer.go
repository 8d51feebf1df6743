// Package security はアプリケーションのセキュリティ機能を提供する。
//
// QuestionSanitizerService はメンバーが投稿した質問本文をサニタイズし、
// マークアップや制御文字が保存されることを防ぐ。bluemondayの
// StrictPolicy（全タグ除去）を使用し、出力はプレーンテキストのみ。
package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// QuestionSanitizerService は質問本文のサニタイズ機能のインターフェースを定義する。
// 質問の保存前に使用される。
type QuestionSanitizerService interface {
	// Sanitize は全HTMLタグと制御文字を除去し、連続する空白を1つにまとめた
	// プレーンテキストを返す。空文字列の入力には空文字列を返す。
	// 同一入力に対して常に同一出力を返す（冪等）。
	Sanitize(raw string) string
}

// questionSanitizer はQuestionSanitizerServiceの実装。
// bluemondayのポリシーを保持し、スレッドセーフにサニタイズ処理を行う。
type questionSanitizer struct {
	policy *bluemonday.Policy
}

// NewQuestionSanitizer はQuestionSanitizerServiceの新しいインスタンスを生成する。
// StrictPolicyは許可タグなし: script等の危険なタグに限らず全タグを除去する。
func NewQuestionSanitizer() *questionSanitizer {
	return &questionSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// Sanitize は全HTMLタグと制御文字を除去したプレーンテキストを返す。
// bluemondayはエンティティをエスケープして返すため、プレーンテキストとして
// 保存する前にアンエスケープする。改行はスペースに正規化される
// （1つの質問は1行のテキストとして扱う）。
func (s *questionSanitizer) Sanitize(raw string) string {
	if raw == "" {
		return ""
	}

	text := s.policy.Sanitize(raw)
	text = html.UnescapeString(text)

	// 制御文字の除去と空白の正規化
	var b strings.Builder
	b.Grow(len(text))
	lastSpace := false
	for _, r := range text {
		if r < 0x20 || r == 0x7f {
			r = ' '
		}
		if r == ' ' {
			if lastSpace {
				continue
			}
			lastSpace = true
		} else {
			lastSpace = false
		}
		b.WriteRune(r)
	}

	return strings.TrimSpace(b.String())
}
