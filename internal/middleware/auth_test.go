package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

// TestGatewayAuthMiddleware_ValidToken は正しいトークンでリクエストが通ることを検証する。
func TestGatewayAuthMiddleware_ValidToken(t *testing.T) {
	called := false
	handler := NewGatewayAuthMiddleware("secret-token")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/gateway/events", nil)
	req.Header.Set("Authorization", "Bearer secret-token")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if !called {
		t.Error("正しいトークンでハンドラーが呼ばれなければならない")
	}
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
}

// TestGatewayAuthMiddleware_Rejects は不正なヘッダーが401になることを検証する。
func TestGatewayAuthMiddleware_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		header string
	}{
		{name: "ヘッダーなし", header: ""},
		{name: "誤ったトークン", header: "Bearer wrong-token"},
		{name: "Bearerなし", header: "secret-token"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewGatewayAuthMiddleware("secret-token")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				t.Error("認証失敗時にハンドラーが呼ばれてはならない")
			}))

			req := httptest.NewRequest(http.MethodPost, "/gateway/events", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			if rec.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
			}

			var body ErrorResponseBody
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatalf("レスポンスのデコードに失敗: %v", err)
			}
			if body.Code != "UNAUTHORIZED" {
				t.Errorf("code = %s, want UNAUTHORIZED", body.Code)
			}
		})
	}
}
