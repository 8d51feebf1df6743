package remind

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/doorman/internal/model"
)

type mockDoubtLister struct {
	groups []model.DoubtGroup
	err    error
}

func (m *mockDoubtLister) UnresolvedByAuthor(ctx context.Context) ([]model.DoubtGroup, error) {
	return m.groups, m.err
}

type mockNotifier struct {
	notifyFn func(ctx context.Context, userID, text string) error
	calls    []string
	texts    map[string]string
}

func (m *mockNotifier) Notify(ctx context.Context, userID, text string) error {
	m.calls = append(m.calls, userID)
	if m.texts == nil {
		m.texts = make(map[string]string)
	}
	m.texts[userID] = text
	if m.notifyFn != nil {
		return m.notifyFn(ctx, userID, text)
	}
	return nil
}

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, nil))
}

// TestReminderJob_SendsPerAuthor は投稿者ごとに1通のDMが送信されることを検証する。
func TestReminderJob_SendsPerAuthor(t *testing.T) {
	lister := &mockDoubtLister{
		groups: []model.DoubtGroup{
			{AuthorID: "u1", DoubtIDs: []int64{1, 3}},
			{AuthorID: "u2", DoubtIDs: []int64{2}},
		},
	}
	notifier := &mockNotifier{}
	var buf bytes.Buffer
	job := NewReminderJob(lister, notifier, newTestLogger(&buf), nil)

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(notifier.calls) != 2 {
		t.Fatalf("送信数 = %d, want 2", len(notifier.calls))
	}
	if !strings.Contains(notifier.texts["u1"], "2件") {
		t.Errorf("u1宛の本文に件数が含まれていない: %s", notifier.texts["u1"])
	}
	if !strings.Contains(notifier.texts["u1"], "#1, #3") {
		t.Errorf("u1宛の本文にID一覧が含まれていない: %s", notifier.texts["u1"])
	}
	if !strings.Contains(notifier.texts["u2"], "#2") {
		t.Errorf("u2宛の本文にIDが含まれていない: %s", notifier.texts["u2"])
	}
}

// TestReminderJob_NoUnresolved_NoSend は未解決質問がない場合に
// 何も送信されないことを検証する。
func TestReminderJob_NoUnresolved_NoSend(t *testing.T) {
	notifier := &mockNotifier{}
	var buf bytes.Buffer
	job := NewReminderJob(&mockDoubtLister{}, notifier, newTestLogger(&buf), nil)

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(notifier.calls) != 0 {
		t.Errorf("送信数 = %d, want 0", len(notifier.calls))
	}
}

// TestReminderJob_FailureIsolation は1投稿者への送信失敗が他の投稿者への
// 送信を妨げないことを検証する。
func TestReminderJob_FailureIsolation(t *testing.T) {
	lister := &mockDoubtLister{
		groups: []model.DoubtGroup{
			{AuthorID: "u1", DoubtIDs: []int64{1}},
			{AuthorID: "u2", DoubtIDs: []int64{2}},
			{AuthorID: "u3", DoubtIDs: []int64{3}},
		},
	}
	notifier := &mockNotifier{
		notifyFn: func(ctx context.Context, userID, text string) error {
			if userID == "u2" {
				return errors.New("dm closed")
			}
			return nil
		},
	}
	var buf bytes.Buffer
	job := NewReminderJob(lister, notifier, newTestLogger(&buf), nil)

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("送信失敗はバッチのエラーにしてはならない: %v", err)
	}

	if len(notifier.calls) != 3 {
		t.Errorf("送信試行数 = %d, want 3", len(notifier.calls))
	}
	if !strings.Contains(buf.String(), "u2") {
		t.Error("失敗した投稿者がログに記録されなければならない")
	}
}

// TestReminderJob_ListFailure_ReturnsError は集計失敗がエラーになることを検証する。
func TestReminderJob_ListFailure_ReturnsError(t *testing.T) {
	lister := &mockDoubtLister{err: errors.New("pq: connection refused")}
	var buf bytes.Buffer
	job := NewReminderJob(lister, &mockNotifier{}, newTestLogger(&buf), nil)

	if err := job.Run(context.Background()); err == nil {
		t.Error("集計失敗でエラーが返らなければならない")
	}
}

// TestNextRun は次回実行時刻の算出を検証する。
func TestNextRun(t *testing.T) {
	loc := time.FixedZone("JST", 9*60*60)

	tests := []struct {
		name string
		now  time.Time
		hour int
		want time.Time
	}{
		{
			name: "当日のhour前は当日",
			now:  time.Date(2025, 6, 1, 7, 30, 0, 0, loc),
			hour: 9,
			want: time.Date(2025, 6, 1, 9, 0, 0, 0, loc),
		},
		{
			name: "当日のhour後は翌日",
			now:  time.Date(2025, 6, 1, 10, 0, 0, 0, loc),
			hour: 9,
			want: time.Date(2025, 6, 2, 9, 0, 0, 0, loc),
		},
		{
			name: "ちょうどhourは翌日",
			now:  time.Date(2025, 6, 1, 9, 0, 0, 0, loc),
			hour: 9,
			want: time.Date(2025, 6, 2, 9, 0, 0, 0, loc),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := nextRun(tt.now, tt.hour)
			if !got.Equal(tt.want) {
				t.Errorf("nextRun(%v, %d) = %v, want %v", tt.now, tt.hour, got, tt.want)
			}
		})
	}
}

type mockJob struct {
	runFn func(ctx context.Context) error
}

func (m *mockJob) Run(ctx context.Context) error {
	if m.runFn != nil {
		return m.runFn(ctx)
	}
	return nil
}

// TestNewScheduler_InvalidHour は範囲外のhourがデフォルトに丸められることを検証する。
func TestNewScheduler_InvalidHour(t *testing.T) {
	var buf bytes.Buffer
	for _, hour := range []int{-1, 24, 100} {
		s := NewScheduler(&mockJob{}, newTestLogger(&buf), hour)
		if s.hour != 9 {
			t.Errorf("NewScheduler(hour=%d).hour = %d, want 9", hour, s.hour)
		}
	}
}

// TestScheduler_RunsJobWhenDue は実行時刻の到来でジョブが実行されることを検証する。
func TestScheduler_RunsJobWhenDue(t *testing.T) {
	var buf bytes.Buffer

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ran := make(chan struct{})
	var once sync.Once
	job := &mockJob{
		runFn: func(ctx context.Context) error {
			once.Do(func() { close(ran) })
			cancel()
			return nil
		},
	}

	s := NewScheduler(job, newTestLogger(&buf), 9)
	// 実行時刻の1ミリ秒前に時刻を固定し、タイマーを即時に発火させる
	loc := time.FixedZone("JST", 9*60*60)
	s.now = func() time.Time {
		return time.Date(2025, 6, 1, 8, 59, 59, 999_000_000, loc)
	}

	done := make(chan struct{})
	go func() {
		s.Start(ctx)
		close(done)
	}()

	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("実行時刻の到来でジョブが実行されなければならない")
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Error("キャンセル後1秒以内に停止しなければならない")
	}
}

// TestScheduler_StopsOnContextCancel はコンテキストキャンセルで停止することを検証する。
func TestScheduler_StopsOnContextCancel(t *testing.T) {
	var buf bytes.Buffer
	s := NewScheduler(&mockJob{}, newTestLogger(&buf), 9)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Start(ctx)
		close(done)
	}()

	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Error("キャンセル後1秒以内に停止しなければならない")
	}
}
