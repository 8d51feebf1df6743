package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

// TestNewCollector_RegistersMetrics はCollectorが重複なくレジストリに登録できることを検証する。
func TestNewCollector_RegistersMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	if c == nil {
		t.Fatal("expected non-nil collector")
	}
}

// TestCollector_ImplementsRecorder はCollectorがRecorderインターフェースを満たすことを検証する。
func TestCollector_ImplementsRecorder(t *testing.T) {
	var _ Recorder = (*Collector)(nil)
}

// TestHandler_ServesRecordedMetrics は記録したメトリクスが/metricsで公開されることを検証する。
func TestHandler_ServesRecordedMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordCommand("verify")
	c.RecordCommand("verify")
	c.RecordOTPIssued()
	c.RecordDoubtCreated()
	c.RecordReminderFailure()

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	Handler(reg).ServeHTTP(w, req)

	resp := w.Result()
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("ボディの読み取りに失敗: %v", err)
	}
	out := string(body)

	if !strings.Contains(out, `doorman_commands_total{command="verify"} 2`) {
		t.Error("doorman_commands_totalが公開されていない")
	}
	if !strings.Contains(out, "doorman_otp_issued_total 1") {
		t.Error("doorman_otp_issued_totalが公開されていない")
	}
	if !strings.Contains(out, "doorman_doubts_created_total 1") {
		t.Error("doorman_doubts_created_totalが公開されていない")
	}
	if !strings.Contains(out, "doorman_reminder_failures_total 1") {
		t.Error("doorman_reminder_failures_totalが公開されていない")
	}
}

// TestRecordCommandFailure_LabeledByCategory は失敗カテゴリ別に計上されることを検証する。
func TestRecordCommandFailure_LabeledByCategory(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordCommandFailure("otp", "auth")
	c.RecordCommandFailure("otp", "auth")
	c.RecordCommandFailure("verify", "system")

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	Handler(reg).ServeHTTP(w, req)

	body, err := io.ReadAll(w.Result().Body)
	if err != nil {
		t.Fatalf("ボディの読み取りに失敗: %v", err)
	}
	out := string(body)

	if !strings.Contains(out, `doorman_command_failures_total{category="auth",command="otp"} 2`) {
		t.Error("authカテゴリの失敗が計上されていない")
	}
	if !strings.Contains(out, `doorman_command_failures_total{category="system",command="verify"} 1`) {
		t.Error("systemカテゴリの失敗が計上されていない")
	}
}

// TestRecordHTTPStatus_LabeledByCode はステータスコード別に計上されることを検証する。
func TestRecordHTTPStatus_LabeledByCode(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordHTTPStatus(200)
	c.RecordHTTPStatus(200)
	c.RecordHTTPStatus(401)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	Handler(reg).ServeHTTP(w, req)

	body, err := io.ReadAll(w.Result().Body)
	if err != nil {
		t.Fatalf("ボディの読み取りに失敗: %v", err)
	}
	out := string(body)

	if !strings.Contains(out, `doorman_http_status_total{status_code="200"} 2`) {
		t.Error("200のレスポンスが計上されていない")
	}
	if !strings.Contains(out, `doorman_http_status_total{status_code="401"} 1`) {
		t.Error("401のレスポンスが計上されていない")
	}
}
