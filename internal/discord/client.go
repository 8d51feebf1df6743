// Package discord はDiscord REST APIのクライアントを提供する。
// チャンネル返信・ダイレクトメッセージ・ロール付与のみを扱う。
// Gateway（WebSocket）接続はBotの外側のリレーが担当し、本パッケージは
// 送信側のHTTP APIだけを呼び出す。
package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
)

// defaultBaseURL はDiscord REST APIのベースURL。
const defaultBaseURL = "https://discord.com/api/v10"

// Client はDiscord REST APIのクライアント。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	token      string
	baseURL    string // テスト用にエンドポイントを差し替え可能
}

// NewClient はClientの新しいインスタンスを生成する。
func NewClient(httpClient *http.Client, logger *slog.Logger, botToken string) *Client {
	return &Client{
		httpClient: httpClient,
		logger:     logger,
		token:      botToken,
		baseURL:    defaultBaseURL,
	}
}

// SetBaseURL はAPIエンドポイントを差し替える。プロキシ環境やテスト用。
// 空文字列の場合は何もしない。
func (c *Client) SetBaseURL(u string) {
	if u != "" {
		c.baseURL = u
	}
}

// do はJSONリクエストを送信し、2xx以外をエラーにしてレスポンスボディを返す。
func (c *Client) do(ctx context.Context, method, path string, body any) ([]byte, error) {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("リクエストボディのエンコードに失敗しました: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Authorization", "Bot "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("Discord APIの呼び出しに失敗しました",
			slog.String("method", method),
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Error("Discord APIがエラーステータスを返しました",
			slog.String("method", method),
			slog.String("path", path),
			slog.Int("http_status", resp.StatusCode),
		)
		return nil, fmt.Errorf("Discord APIがステータス %d を返しました", resp.StatusCode)
	}

	return respBody, nil
}

// Reply は指定チャンネルへメッセージを投稿する。
// コマンド1回につき返信1通の用途で使用する。
func (c *Client) Reply(ctx context.Context, channelID, text string) error {
	path := fmt.Sprintf("/channels/%s/messages", channelID)
	_, err := c.do(ctx, http.MethodPost, path, map[string]string{"content": text})
	return err
}

// Notify は指定ユーザーへダイレクトメッセージを送信する。
// DMチャンネルの作成と投稿の2段階で、どちらの失敗もエラーとして返す
// （DMを閉じているユーザーには投稿段階で失敗する）。
func (c *Client) Notify(ctx context.Context, userID, text string) error {
	body, err := c.do(ctx, http.MethodPost, "/users/@me/channels", map[string]string{"recipient_id": userID})
	if err != nil {
		return fmt.Errorf("DMチャンネルの作成に失敗しました: %w", err)
	}

	var channel struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &channel); err != nil {
		return fmt.Errorf("DMチャンネルレスポンスのパースに失敗しました: %w", err)
	}

	return c.Reply(ctx, channel.ID, text)
}

// GrantRole は指定ギルドのメンバーへロールを名前で付与する。
// ロール名は完全一致または先頭に@が付いた形を受け付ける。
// ロールが見つからない場合は (false, nil) を返す（エラーではない）。
func (c *Client) GrantRole(ctx context.Context, guildID, userID, roleName string) (bool, error) {
	body, err := c.do(ctx, http.MethodGet, fmt.Sprintf("/guilds/%s/roles", guildID), nil)
	if err != nil {
		return false, fmt.Errorf("ロール一覧の取得に失敗しました: %w", err)
	}

	var roles []struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	if err := json.Unmarshal(body, &roles); err != nil {
		return false, fmt.Errorf("ロール一覧のパースに失敗しました: %w", err)
	}

	roleID := ""
	for _, role := range roles {
		if role.Name == roleName || role.Name == "@"+roleName {
			roleID = role.ID
			break
		}
	}
	if roleID == "" {
		c.logger.Warn("付与対象のロールが見つかりません",
			slog.String("guild_id", guildID),
			slog.String("role", roleName),
		)
		return false, nil
	}

	path := fmt.Sprintf("/guilds/%s/members/%s/roles/%s", guildID, userID, roleID)
	if _, err := c.do(ctx, http.MethodPut, path, nil); err != nil {
		return false, fmt.Errorf("ロールの付与に失敗しました: %w", err)
	}

	return true, nil
}
