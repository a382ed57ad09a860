package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hitoshi/campusconnect/internal/model"
)

const defaultInflightTimeout = 5 * time.Second

// MessageSender はメッセージを永続化し、受信者へ配信する。
type MessageSender interface {
	SendMessage(ctx context.Context, senderID, recipientID, body string) (*model.Message, error)
}

// Dispatcher は受信フレームをイベントごとに振り分ける。
// register 前の接続も含め、Serve 中の接続をすべて保持する。
type Dispatcher struct {
	registry        *Registry
	messages        MessageSender
	logger          *slog.Logger
	inflightTimeout time.Duration

	mu     sync.Mutex
	live   map[*Connection]struct{}
	closed bool
}

// NewDispatcher はDispatcherを生成する。
func NewDispatcher(registry *Registry, messages MessageSender, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		registry:        registry,
		messages:        messages,
		logger:          logger,
		inflightTimeout: defaultInflightTimeout,
		live:            make(map[*Connection]struct{}),
	}
}

// Serve は接続を登録待ち状態で開始し、切断されるまでフレームを処理する。
// subject はトークンで認証済みのアカウントID。
func (d *Dispatcher) Serve(ctx context.Context, subject string, ws *websocket.Conn) {
	conn := NewConnection(subject, ws)
	if !d.track(conn) {
		conn.Close(websocket.CloseGoingAway, "server shutdown")
		return
	}
	conn.Start()
	defer func() {
		d.untrack(conn)
		d.Disconnect(conn)
		conn.Close(websocket.CloseNormalClosure, "session closed")
	}()

	ws.SetReadLimit(maxFrameSize)
	_ = ws.SetReadDeadline(time.Now().Add(readTimeout))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(readTimeout))
	})

	for {
		_, raw, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				d.logger.Debug("websocket read failed", slog.String("user_id", subject), slog.String("error", err.Error()))
			}
			return
		}
		_ = ws.SetReadDeadline(time.Now().Add(readTimeout))
		d.Dispatch(ctx, subject, conn, raw)
	}
}

// Close はServe中の全接続を閉じる。以降のServeは即座に接続を閉じて戻る。
func (d *Dispatcher) Close() {
	d.mu.Lock()
	d.closed = true
	conns := make([]*Connection, 0, len(d.live))
	for c := range d.live {
		conns = append(conns, c)
	}
	d.mu.Unlock()

	for _, c := range conns {
		c.Close(websocket.CloseGoingAway, "server shutdown")
	}
}

func (d *Dispatcher) track(conn *Connection) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return false
	}
	d.live[conn] = struct{}{}
	return true
}

func (d *Dispatcher) untrack(conn *Connection) {
	d.mu.Lock()
	delete(d.live, conn)
	d.mu.Unlock()
}

// Dispatch は1フレームを処理する。失敗は error フレームとして conn に返す。
func (d *Dispatcher) Dispatch(ctx context.Context, subject string, conn Conn, raw []byte) {
	var frame Frame
	if err := json.Unmarshal(raw, &frame); err != nil {
		d.reply(conn, model.NewValidationError("Malformed frame"))
		return
	}

	var err error
	switch frame.Event {
	case EventRegister:
		err = d.register(subject, conn, frame.Data)
	case EventSendMessage:
		err = d.sendMessage(ctx, subject, frame.Data)
	case "disconnect":
		d.Disconnect(conn)
	default:
		err = model.NewValidationError("Unknown event: " + frame.Event)
	}
	if err != nil {
		d.reply(conn, err)
	}
}

// Disconnect は conn に対応するプレゼンスを削除する。
func (d *Dispatcher) Disconnect(conn Conn) {
	if identity, ok := d.registry.Unregister(conn); ok {
		d.logger.Debug("presence removed", slog.String("user_id", identity))
	}
}

func (d *Dispatcher) register(subject string, conn Conn, data json.RawMessage) error {
	var identity string
	if err := json.Unmarshal(data, &identity); err != nil || identity == "" {
		return model.NewValidationError("register requires an account id")
	}
	if identity != subject {
		return model.NewIdentityMismatchError()
	}
	d.registry.Register(identity, conn)
	d.logger.Debug("presence registered", slog.String("user_id", identity))
	return nil
}

func (d *Dispatcher) sendMessage(ctx context.Context, subject string, data json.RawMessage) error {
	var in SendMessageData
	if err := json.Unmarshal(data, &in); err != nil {
		return model.NewValidationError("Malformed sendMessage payload")
	}
	if in.SenderID != subject {
		return model.NewIdentityMismatchError()
	}

	ctx, cancel := context.WithTimeout(ctx, d.inflightTimeout)
	defer cancel()

	if _, err := d.messages.SendMessage(ctx, in.SenderID, in.RecipientID, in.Message); err != nil {
		var apiErr *model.APIError
		if !errors.As(err, &apiErr) {
			d.logger.Error("message send failed",
				slog.String("sender_id", in.SenderID),
				slog.String("recipient_id", in.RecipientID),
				slog.String("error", err.Error()),
			)
		}
		return err
	}
	return nil
}

func (d *Dispatcher) reply(conn Conn, err error) {
	if sendErr := conn.Send(errorFrame(err)); sendErr != nil {
		d.logger.Debug("error frame dropped", slog.String("error", sendErr.Error()))
	}
}
