// Package mailer はOTPコードのトランザクションメール送信を提供する。
package mailer

import (
	"context"
	"fmt"
	"net/smtp"
	"time"
)

// Config はSMTP接続の設定を保持する。
type Config struct {
	Host     string
	Port     string
	From     string
	Username string // 空の場合は認証なしで送信する
	Password string
	OTPTTL   time.Duration // メール本文に記載する有効期間
}

// sendFunc はsmtp.SendMailのシグネチャ。テスト用に差し替え可能。
type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPMailer はSMTP経由でOTPメールを送信する。
// 送信は1回のみで内部リトライは行わない。失敗の扱いは呼び出し側に委ねる。
type SMTPMailer struct {
	config Config
	send   sendFunc
}

// NewSMTPMailer はSMTPMailerを生成する。
func NewSMTPMailer(config Config) *SMTPMailer {
	if config.OTPTTL <= 0 {
		config.OTPTTL = 5 * time.Minute
	}
	return &SMTPMailer{
		config: config,
		send:   smtp.SendMail,
	}
}

// SendOTP は指定アドレスへOTPコードを送信する。
// net/smtpはコンテキストを受け取らないため、キャンセルは送信開始前のみ反映される。
func (m *SMTPMailer) SendOTP(ctx context.Context, to, code string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	subject := "コミュニティ認証コード"
	body := fmt.Sprintf(
		"認証コード: %s\r\n\r\nこのコードの有効期限は%d分です。\r\nBotに !otp %s と送信してください。\r\n\r\n心当たりがない場合はこのメールを無視してください。\r\n",
		code, int(m.config.OTPTTL.Minutes()), code,
	)
	msg := fmt.Sprintf(
		"From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/plain; charset=UTF-8\r\n\r\n%s",
		m.config.From, to, subject, body,
	)

	addr := fmt.Sprintf("%s:%s", m.config.Host, m.config.Port)

	var auth smtp.Auth
	if m.config.Username != "" {
		auth = smtp.PlainAuth("", m.config.Username, m.config.Password, m.config.Host)
	}

	if err := m.send(addr, auth, m.config.From, []string{to}, []byte(msg)); err != nil {
		return fmt.Errorf("failed to send OTP mail: %w", err)
	}

	return nil
}
