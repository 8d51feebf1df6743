// Package handler はゲートウェイリレーからのイベントを受けるHTTPハンドラーを提供する。
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/hitoshi/doorman/internal/command"
	"github.com/hitoshi/doorman/internal/middleware"
	"github.com/hitoshi/doorman/internal/model"
)

// CommandRouter はゲートウェイハンドラーが必要とするコマンドルーターインターフェース。
type CommandRouter interface {
	Handle(ctx context.Context, msg command.Message) (reply string, handled bool)
}

// Replier は返信送信のためのインターフェース。
type Replier interface {
	Reply(ctx context.Context, channelID, text string) error
}

// GatewayHandler はゲートウェイイベントのHTTPハンドラー。
type GatewayHandler struct {
	router  CommandRouter
	replier Replier
	logger  *slog.Logger
}

// NewGatewayHandler はGatewayHandlerを生成する。
func NewGatewayHandler(router CommandRouter, replier Replier, logger *slog.Logger) *GatewayHandler {
	return &GatewayHandler{
		router:  router,
		replier: replier,
		logger:  logger,
	}
}

// eventTypeMessageCreate はコマンド処理の対象となるイベント種別。
const eventTypeMessageCreate = "message_create"

// gatewayEventRequest はゲートウェイイベントのリクエストボディ。
type gatewayEventRequest struct {
	Type    string `json:"type"`
	Message struct {
		ID          string `json:"id"`
		GuildID     string `json:"guild_id"`
		ChannelID   string `json:"channel_id"`
		AuthorID    string `json:"author_id"`
		AuthorIsBot bool   `json:"author_is_bot"`
		Content     string `json:"content"`
	} `json:"message"`
}

// gatewayEventResponse はイベント処理結果のレスポンス。
// handledはコマンドとして処理されたか、reply_deliveredは返信の送信に
// 成功したかを示す。
type gatewayEventResponse struct {
	Handled        bool `json:"handled"`
	ReplyDelivered bool `json:"reply_delivered"`
}

// HandleEvent はゲートウェイイベントを受理し、メッセージイベントを
// コマンドルーターへ振り分けて返信を送信する。
// POST /gateway/events
//
// 返信の送信失敗はログに記録したうえで200を返す。コマンド自体は実行済みの
// ため、リレーに再送させると二重実行になる。
func (h *GatewayHandler) HandleEvent(w http.ResponseWriter, r *http.Request) {
	var req gatewayEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, &model.BotError{
			Code:     "INVALID_EVENT",
			Message:  "イベントの形式が不正です。",
			Category: "validation",
		})
		return
	}

	if req.Type != eventTypeMessageCreate {
		// message_create以外のイベントは受理して無視する
		writeEventResponse(w, gatewayEventResponse{})
		return
	}

	msg := command.Message{
		ID:          req.Message.ID,
		GuildID:     req.Message.GuildID,
		ChannelID:   req.Message.ChannelID,
		AuthorID:    req.Message.AuthorID,
		AuthorIsBot: req.Message.AuthorIsBot,
		Content:     req.Message.Content,
	}

	reply, handled := h.router.Handle(r.Context(), msg)
	if !handled {
		writeEventResponse(w, gatewayEventResponse{})
		return
	}

	resp := gatewayEventResponse{Handled: true, ReplyDelivered: true}
	if err := h.replier.Reply(r.Context(), msg.ChannelID, reply); err != nil {
		eventID := uuid.New().String()
		h.logger.Error("返信の送信に失敗しました",
			slog.String("event_id", eventID),
			slog.String("channel_id", msg.ChannelID),
			slog.String("message_id", msg.ID),
			slog.String("error", err.Error()),
		)
		resp.ReplyDelivered = false
	}

	writeEventResponse(w, resp)
}

// writeEventResponse はイベント処理結果を200で書き込む。
func writeEventResponse(w http.ResponseWriter, resp gatewayEventResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(resp)
}
