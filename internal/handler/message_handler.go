package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/hitoshi/campusconnect/internal/middleware"
	"github.com/hitoshi/campusconnect/internal/model"
)

// MessageServiceInterface はメッセージ履歴のサービスインターフェース。
type MessageServiceInterface interface {
	History(ctx context.Context, actorID, peerID string) ([]*model.Message, error)
}

// RealtimeServer はアップグレード済みのWebSocket接続を切断まで処理する。
type RealtimeServer interface {
	Serve(ctx context.Context, subject string, ws *websocket.Conn)
}

// MessageHandler はダイレクトメッセージ履歴とリアルタイム接続のHTTPハンドラー。
type MessageHandler struct {
	messages MessageServiceInterface
	realtime RealtimeServer
	upgrader websocket.Upgrader
}

// NewMessageHandler はMessageHandlerを生成する。
// allowedOrigins はカンマ区切りで、空の場合はOriginを検査しない。
func NewMessageHandler(messages MessageServiceInterface, realtime RealtimeServer, allowedOrigins string) *MessageHandler {
	origins := middleware.ParseOrigins(allowedOrigins)
	return &MessageHandler{
		messages: messages,
		realtime: realtime,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return len(origins) == 0 || origin == "" || middleware.OriginAllowed(origins, origin)
			},
		},
	}
}

// History は相手とのメッセージを古い順に返す。
// GET /api/messages/{peerId}
func (h *MessageHandler) History(w http.ResponseWriter, r *http.Request) {
	actorID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	msgs, err := h.messages.History(r.Context(), actorID, chi.URLParam(r, "peerId"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{"messages": nonNil(msgs)})
}

// ServeWS はWebSocketにアップグレードし、切断までフレームを処理する。
// GET /ws?token=<jwt>
func (h *MessageHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	actorID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade がエラーレスポンスを書き込み済み
		return
	}
	h.realtime.Serve(r.Context(), actorID, ws)
}
