package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/hitoshi/doorman/internal/model"
)

// RateLimiterConfig はレート制限の設定を保持する。
type RateLimiterConfig struct {
	CommandRate     rate.Limit    // コマンド全般のレート（req/sec）。60/60 = 1 req/sec
	CommandBurst    int           // コマンド全般のバーストサイズ
	VerifyRate      rate.Limit    // 認証コード要求のレート（req/sec）。5/60
	VerifyBurst     int           // 認証コード要求のバーストサイズ
	CleanupInterval time.Duration // 期限切れエントリのクリーンアップ間隔
}

// DefaultRateLimiterConfig はデフォルトのレート制限設定を返す。
// コマンド全般 60 req/min/author、認証コード要求 5 req/min/author。
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		CommandRate:     rate.Limit(60.0 / 60.0),
		CommandBurst:    60,
		VerifyRate:      rate.Limit(5.0 / 60.0),
		VerifyBurst:     5,
		CleanupInterval: 5 * time.Minute,
	}
}

// authorLimiter は投稿者ごとのレートリミッターとアクセス時刻を保持する。
type authorLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// RateLimiter は投稿者ごとのレート制限を管理する。
// コマンド全般の制限と、メール送信を伴う認証コード要求のより厳しい制限の
// 2種類を提供する。
type RateLimiter struct {
	config RateLimiterConfig

	commandMu       sync.RWMutex
	commandLimiters map[string]*authorLimiter

	verifyMu       sync.RWMutex
	verifyLimiters map[string]*authorLimiter

	stopCh chan struct{}
}

// NewRateLimiter は新しいRateLimiterを生成する。
// バックグラウンドで期限切れエントリのクリーンアップを開始する。
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	rl := &RateLimiter{
		config:          config,
		commandLimiters: make(map[string]*authorLimiter),
		verifyLimiters:  make(map[string]*authorLimiter),
		stopCh:          make(chan struct{}),
	}

	go rl.cleanupLoop()

	return rl
}

// Stop はクリーンアップのバックグラウンドゴルーチンを停止する。
func (rl *RateLimiter) Stop() {
	close(rl.stopCh)
}

// rateLimitEnvelope はレート制限の判定に必要な最小限のイベント形状。
type rateLimitEnvelope struct {
	Message struct {
		AuthorID string `json:"author_id"`
		Content  string `json:"content"`
	} `json:"message"`
}

// Middleware はゲートウェイイベントの投稿者単位レート制限ミドルウェアを返す。
// リクエストボディを先読みして投稿者IDを取り出し、判定後にボディを復元する。
// !verify コマンドはメール送信を伴うため、より厳しい制限を重ねて適用する。
func (rl *RateLimiter) Middleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
			if err != nil {
				WriteInternalServerError(w)
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			var env rateLimitEnvelope
			if err := json.Unmarshal(body, &env); err != nil || env.Message.AuthorID == "" {
				// 形式の検証はハンドラーが行う
				next.ServeHTTP(w, r)
				return
			}

			if !rl.AllowCommand(env.Message.AuthorID) {
				writeRateLimitResponse(w, rl.config.CommandRate)
				slog.Warn("rate limit exceeded",
					slog.String("author_id", env.Message.AuthorID),
					slog.String("limit_type", "command"),
				)
				return
			}

			if isVerifyRequest(env.Message.Content) && !rl.AllowVerify(env.Message.AuthorID) {
				writeRateLimitResponse(w, rl.config.VerifyRate)
				slog.Warn("rate limit exceeded",
					slog.String("author_id", env.Message.AuthorID),
					slog.String("limit_type", "verify"),
				)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// isVerifyRequest は認証コード要求コマンドかどうかを判定する。
func isVerifyRequest(content string) bool {
	return content == "!verify" || strings.HasPrefix(content, "!verify ")
}

// AllowCommand は投稿者のコマンド全般リミッターで1リクエストを判定する。
func (rl *RateLimiter) AllowCommand(authorID string) bool {
	return rl.getOrCreate(&rl.commandMu, rl.commandLimiters, authorID, rl.config.CommandRate, rl.config.CommandBurst).Allow()
}

// AllowVerify は投稿者の認証コード要求リミッターで1リクエストを判定する。
func (rl *RateLimiter) AllowVerify(authorID string) bool {
	return rl.getOrCreate(&rl.verifyMu, rl.verifyLimiters, authorID, rl.config.VerifyRate, rl.config.VerifyBurst).Allow()
}

// CommandLimiterCount は現在管理されているコマンド全般リミッターのエントリ数を返す。
// テストおよびメトリクス用。
func (rl *RateLimiter) CommandLimiterCount() int {
	rl.commandMu.RLock()
	defer rl.commandMu.RUnlock()
	return len(rl.commandLimiters)
}

// VerifyLimiterCount は現在管理されている認証コード要求リミッターのエントリ数を返す。
// テストおよびメトリクス用。
func (rl *RateLimiter) VerifyLimiterCount() int {
	rl.verifyMu.RLock()
	defer rl.verifyMu.RUnlock()
	return len(rl.verifyLimiters)
}

// getOrCreate は投稿者のリミッターを取得または作成する。
func (rl *RateLimiter) getOrCreate(mu *sync.RWMutex, limiters map[string]*authorLimiter, authorID string, r rate.Limit, burst int) *rate.Limiter {
	mu.RLock()
	al, exists := limiters[authorID]
	mu.RUnlock()

	if exists {
		mu.Lock()
		al.lastAccess = time.Now()
		mu.Unlock()
		return al.limiter
	}

	mu.Lock()
	defer mu.Unlock()

	// ダブルチェック
	if al, exists := limiters[authorID]; exists {
		al.lastAccess = time.Now()
		return al.limiter
	}

	limiter := rate.NewLimiter(r, burst)
	limiters[authorID] = &authorLimiter{
		limiter:    limiter,
		lastAccess: time.Now(),
	}

	return limiter
}

// cleanupLoop はバックグラウンドで期限切れエントリを定期的にクリーンアップする。
func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup()
		case <-rl.stopCh:
			return
		}
	}
}

// cleanup は最終アクセス時刻がCleanupIntervalの2倍を超えたエントリを削除する。
func (rl *RateLimiter) cleanup() {
	ttl := rl.config.CleanupInterval * 2

	now := time.Now()

	rl.commandMu.Lock()
	for authorID, al := range rl.commandLimiters {
		if now.Sub(al.lastAccess) > ttl {
			delete(rl.commandLimiters, authorID)
		}
	}
	rl.commandMu.Unlock()

	rl.verifyMu.Lock()
	for authorID, al := range rl.verifyLimiters {
		if now.Sub(al.lastAccess) > ttl {
			delete(rl.verifyLimiters, authorID)
		}
	}
	rl.verifyMu.Unlock()
}

// writeRateLimitResponse は429 Too Many Requestsレスポンスを書き込む。
// Retry-Afterヘッダーにはトークンが補充されるまでの推定秒数を設定する。
func writeRateLimitResponse(w http.ResponseWriter, r rate.Limit) {
	// Retry-Afterの算出: 1トークンが補充されるまでの秒数
	retryAfterSec := int(math.Ceil(1.0 / float64(r)))
	if retryAfterSec < 1 {
		retryAfterSec = 1
	}

	w.Header().Set("Retry-After", strconv.Itoa(retryAfterSec))
	WriteErrorResponse(w, http.StatusTooManyRequests, &model.BotError{
		Code:     "RATE_LIMIT_EXCEEDED",
		Message:  "リクエストが多すぎます。しばらく待ってから再度お試しください。",
		Category: "user",
	})
}
