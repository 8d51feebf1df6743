package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/hitoshi/doorman/internal/model"
)

// NewGatewayAuthMiddleware はゲートウェイリレーとの共有トークンを検証する
// ミドルウェアを返す。`Authorization: Bearer <token>` ヘッダーを要求し、
// 比較は一定時間で行う。
func NewGatewayAuthMiddleware(token string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				WriteErrorResponse(w, http.StatusUnauthorized, &model.BotError{
					Code:     "UNAUTHORIZED",
					Message:  "ゲートウェイトークンが無効です。",
					Category: "user",
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
