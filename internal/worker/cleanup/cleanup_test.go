package cleanup

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

type fakeResult struct {
	rowsAffected int64
}

func (r *fakeResult) LastInsertId() (int64, error) { return 0, nil }
func (r *fakeResult) RowsAffected() (int64, error) { return r.rowsAffected, nil }

type mockExecutor struct {
	execCalled bool
	query      string
	args       []interface{}
	result     sql.Result
	err        error
}

func (m *mockExecutor) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	m.execCalled = true
	m.query = query
	m.args = args
	return m.result, m.err
}

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, nil))
}

// TestCleanupJob_DeletesOnlyStaleUnverified は削除対象がverified = falseかつ
// 期限切れの行に限定されていることを検証する。
func TestCleanupJob_DeletesOnlyStaleUnverified(t *testing.T) {
	exec := &mockExecutor{result: &fakeResult{rowsAffected: 3}}
	var buf bytes.Buffer
	job := NewCleanupJob(exec, newTestLogger(&buf))

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if !exec.execCalled {
		t.Fatal("ExecContextが呼ばれなければならない")
	}
	if !strings.Contains(exec.query, "verified = false") {
		t.Errorf("認証済みの行を削除対象にしてはならない: %s", exec.query)
	}
	if !strings.Contains(exec.query, "otp_expires_at <") {
		t.Errorf("期限切れのみを削除対象にしなければならない: %s", exec.query)
	}
	if len(exec.args) != 1 || exec.args[0] != "30 days" {
		t.Errorf("args = %v, want [30 days]", exec.args)
	}
}

// TestCleanupJob_CustomRetention は保持日数の変更が反映されることを検証する。
func TestCleanupJob_CustomRetention(t *testing.T) {
	exec := &mockExecutor{result: &fakeResult{}}
	var buf bytes.Buffer
	job := NewCleanupJob(exec, newTestLogger(&buf))
	job.RetentionDays = 7

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if exec.args[0] != "7 days" {
		t.Errorf("args[0] = %v, want 7 days", exec.args[0])
	}
}

// TestCleanupJob_ExecFailure は実行失敗がエラーとして返ることを検証する。
func TestCleanupJob_ExecFailure(t *testing.T) {
	exec := &mockExecutor{err: errors.New("pq: connection refused")}
	var buf bytes.Buffer
	job := NewCleanupJob(exec, newTestLogger(&buf))

	if err := job.Run(context.Background()); err == nil {
		t.Error("実行失敗でエラーが返らなければならない")
	}
}

// TestCleanupJob_LogsDeletedCount は削除件数がログに記録されることを検証する。
func TestCleanupJob_LogsDeletedCount(t *testing.T) {
	exec := &mockExecutor{result: &fakeResult{rowsAffected: 5}}
	var buf bytes.Buffer
	job := NewCleanupJob(exec, newTestLogger(&buf))

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !strings.Contains(buf.String(), `"deleted_count":5`) {
		t.Errorf("削除件数がログに含まれていない: %s", buf.String())
	}
}
