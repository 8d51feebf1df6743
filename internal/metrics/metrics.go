// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder はメトリクス収集のインターフェース。
// コマンドルーターやリマインダーワーカーから利用する。
type Recorder interface {
	RecordCommand(command string)
	RecordCommandFailure(command, category string)
	RecordOTPIssued()
	RecordOTPVerified()
	RecordRoleGrantDegraded()
	RecordDoubtCreated()
	RecordDoubtResolved()
	RecordReminderSent()
	RecordReminderFailure()
	RecordHTTPStatus(statusCode int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	commands         *prometheus.CounterVec
	commandFailures  *prometheus.CounterVec
	otpIssued        prometheus.Counter
	otpVerified      prometheus.Counter
	roleGrantDegrade prometheus.Counter
	doubtsCreated    prometheus.Counter
	doubtsResolved   prometheus.Counter
	remindersSent    prometheus.Counter
	reminderFailures prometheus.Counter
	httpStatus       *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "doorman_commands_total",
			Help: "処理したコマンドの合計数",
		}, []string{"command"}),
		commandFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "doorman_command_failures_total",
			Help: "コマンド失敗の合計数（情報提供の返信は含まない）",
		}, []string{"command", "category"}),
		otpIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "doorman_otp_issued_total",
			Help: "発行したOTPコードの合計数",
		}),
		otpVerified: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "doorman_otp_verified_total",
			Help: "OTP照合成功の合計数",
		}),
		roleGrantDegrade: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "doorman_role_grant_degraded_total",
			Help: "認証成功かつロール付与スキップ/失敗の合計数",
		}),
		doubtsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "doorman_doubts_created_total",
			Help: "作成された質問の合計数",
		}),
		doubtsResolved: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "doorman_doubts_resolved_total",
			Help: "解決された質問の合計数",
		}),
		remindersSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "doorman_reminders_sent_total",
			Help: "送信したリマインダーDMの合計数",
		}),
		reminderFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "doorman_reminder_failures_total",
			Help: "送信に失敗したリマインダーDMの合計数",
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "doorman_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
	}

	reg.MustRegister(
		c.commands,
		c.commandFailures,
		c.otpIssued,
		c.otpVerified,
		c.roleGrantDegrade,
		c.doubtsCreated,
		c.doubtsResolved,
		c.remindersSent,
		c.reminderFailures,
		c.httpStatus,
	)

	return c
}

// RecordCommand はコマンドの処理を記録する。
func (c *Collector) RecordCommand(command string) {
	c.commands.WithLabelValues(command).Inc()
}

// RecordCommandFailure はコマンドの失敗を記録する。
func (c *Collector) RecordCommandFailure(command, category string) {
	c.commandFailures.WithLabelValues(command, category).Inc()
}

// RecordOTPIssued はOTPコードの発行を記録する。
func (c *Collector) RecordOTPIssued() {
	c.otpIssued.Inc()
}

// RecordOTPVerified はOTP照合成功を記録する。
func (c *Collector) RecordOTPVerified() {
	c.otpVerified.Inc()
}

// RecordRoleGrantDegraded は認証成功かつロール付与なしの縮退成功を記録する。
func (c *Collector) RecordRoleGrantDegraded() {
	c.roleGrantDegrade.Inc()
}

// RecordDoubtCreated は質問の作成を記録する。
func (c *Collector) RecordDoubtCreated() {
	c.doubtsCreated.Inc()
}

// RecordDoubtResolved は質問の解決を記録する。
func (c *Collector) RecordDoubtResolved() {
	c.doubtsResolved.Inc()
}

// RecordReminderSent はリマインダーDMの送信成功を記録する。
func (c *Collector) RecordReminderSent() {
	c.remindersSent.Inc()
}

// RecordReminderFailure はリマインダーDMの送信失敗を記録する。
func (c *Collector) RecordReminderFailure() {
	c.reminderFailures.Inc()
}

// RecordHTTPStatus はHTTPレスポンスのステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// compile-time interface check
var _ Recorder = (*Collector)(nil)

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
