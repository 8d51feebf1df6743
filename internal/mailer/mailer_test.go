package mailer

import (
	"context"
	"errors"
	"net/smtp"
	"strings"
	"testing"
	"time"
)

// TestSendOTP_BuildsMessage は宛先・差出人・コードを含むメッセージが
// 組み立てられることを検証する。
func TestSendOTP_BuildsMessage(t *testing.T) {
	m := NewSMTPMailer(Config{
		Host:   "smtp.example.com",
		Port:   "587",
		From:   "bot@example.com",
		OTPTTL: 5 * time.Minute,
	})

	var gotAddr, gotFrom string
	var gotTo []string
	var gotMsg []byte
	m.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr = addr
		gotFrom = from
		gotTo = to
		gotMsg = msg
		return nil
	}

	if err := m.SendOTP(context.Background(), "a@x.com", "123456"); err != nil {
		t.Fatalf("SendOTP returned error: %v", err)
	}

	if gotAddr != "smtp.example.com:587" {
		t.Errorf("addr = %s, want smtp.example.com:587", gotAddr)
	}
	if gotFrom != "bot@example.com" {
		t.Errorf("from = %s, want bot@example.com", gotFrom)
	}
	if len(gotTo) != 1 || gotTo[0] != "a@x.com" {
		t.Errorf("to = %v, want [a@x.com]", gotTo)
	}
	body := string(gotMsg)
	if !strings.Contains(body, "123456") {
		t.Error("本文にOTPコードが含まれていない")
	}
	if !strings.Contains(body, "5分") {
		t.Error("本文に有効期間が含まれていない")
	}
	if !strings.Contains(body, "To: a@x.com") {
		t.Error("Toヘッダーが含まれていない")
	}
}

// TestSendOTP_NoAuthWhenUsernameEmpty はユーザー名未設定の場合に
// 認証なしで送信されることを検証する。
func TestSendOTP_NoAuthWhenUsernameEmpty(t *testing.T) {
	m := NewSMTPMailer(Config{Host: "localhost", Port: "1025", From: "bot@example.com"})

	var gotAuth smtp.Auth
	m.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAuth = a
		return nil
	}

	if err := m.SendOTP(context.Background(), "a@x.com", "123456"); err != nil {
		t.Fatalf("SendOTP returned error: %v", err)
	}
	if gotAuth != nil {
		t.Error("ユーザー名未設定の場合はauthがnilでなければならない")
	}
}

// TestSendOTP_SendFailure は送信失敗がエラーとして返ることを検証する。
func TestSendOTP_SendFailure(t *testing.T) {
	m := NewSMTPMailer(Config{Host: "localhost", Port: "25", From: "bot@example.com"})
	m.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		return errors.New("connection refused")
	}

	if err := m.SendOTP(context.Background(), "a@x.com", "123456"); err == nil {
		t.Fatal("送信失敗時はエラーを返さなければならない")
	}
}

// TestSendOTP_CancelledContext はキャンセル済みコンテキストで
// 送信が行われないことを検証する。
func TestSendOTP_CancelledContext(t *testing.T) {
	m := NewSMTPMailer(Config{Host: "localhost", Port: "25", From: "bot@example.com"})

	called := false
	m.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		called = true
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := m.SendOTP(ctx, "a@x.com", "123456"); err == nil {
		t.Fatal("キャンセル済みコンテキストではエラーを返さなければならない")
	}
	if called {
		t.Error("キャンセル済みコンテキストで送信が行われてはならない")
	}
}
