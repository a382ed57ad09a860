package realtime

import (
	"encoding/json"
	"errors"

	"github.com/hitoshi/campusconnect/internal/model"
)

// イベント名
const (
	EventRegister       = "register"
	EventSendMessage    = "sendMessage"
	EventReceiveMessage = "receiveMessage"
	EventError          = "error"
)

// Frame は常時接続でやり取りするJSONフレーム。
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// SendMessageData は sendMessage イベントのペイロード。
type SendMessageData struct {
	SenderID    string `json:"senderId"`
	RecipientID string `json:"receiverId"`
	Message     string `json:"message"`
}

// ErrorData は error イベントのペイロード。
type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Encode はイベント名とデータからフレームを組み立てる。
func Encode(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Frame{Event: event, Data: raw})
}

// errorFrame はエラーを error フレームに変換する。
// APIError以外は詳細を隠して内部エラーとして返す。
func errorFrame(err error) []byte {
	apiErr := model.NewInternalError()
	var target *model.APIError
	if errors.As(err, &target) {
		apiErr = target
	}
	payload, _ := Encode(EventError, ErrorData{Code: apiErr.Code, Message: apiErr.Message})
	return payload
}
