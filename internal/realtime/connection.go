// Package realtime はWebSocketによる常時接続とプレゼンス管理を提供する。
package realtime

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait   = 10 * time.Second
	pingPeriod  = 30 * time.Second
	readTimeout = 60 * time.Second

	sendBufferSize = 128
	maxFrameSize   = 64 << 10
)

// ErrConnectionClosed は閉じた接続への送信時に返される。
var ErrConnectionClosed = errors.New("connection closed")

// ErrSendBufferFull は送信キューが溢れた場合に返される。このとき接続は閉じられる。
var ErrSendBufferFull = errors.New("send buffer full")

// Conn はプレゼンスに登録される接続ハンドル。
type Conn interface {
	Send(payload []byte) error
	Close(code int, reason string)
}

// Connection はWebSocket接続を包み、送信をバッファ付きチャネルで直列化する。
// 並行に使用して安全。
type Connection struct {
	ID string
	// Subject はトークンで認証されたアカウントID。
	Subject string

	ws     *websocket.Conn
	send   chan []byte
	once   sync.Once
	closed chan struct{}
}

// NewConnection はConnectionを生成する。書き込みループはStartで開始する。
func NewConnection(subject string, ws *websocket.Conn) *Connection {
	return &Connection{
		ID:      uuid.NewString(),
		Subject: subject,
		ws:      ws,
		send:    make(chan []byte, sendBufferSize),
		closed:  make(chan struct{}),
	}
}

// Start は書き込みループを起動する。接続ごとに一度だけ呼び出す。
func (c *Connection) Start() {
	go c.writeLoop()
}

// Send はペイロードを送信キューに積む。キューが満杯の場合は接続を閉じる。
func (c *Connection) Send(payload []byte) error {
	select {
	case <-c.closed:
		return ErrConnectionClosed
	default:
	}

	select {
	case <-c.closed:
		return ErrConnectionClosed
	case c.send <- payload:
		return nil
	default:
		c.Close(websocket.CloseGoingAway, "send buffer full")
		return ErrSendBufferFull
	}
}

// Close は接続を終了し、書き込みループを停止する。複数回呼び出しても安全。
func (c *Connection) Close(code int, reason string) {
	c.once.Do(func() {
		close(c.closed)
		deadline := time.Now().Add(writeWait)
		_ = c.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
		_ = c.ws.Close()
	})
}

// Done は接続が閉じられると閉じるチャネルを返す。
func (c *Connection) Done() <-chan struct{} {
	return c.closed
}

func (c *Connection) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.closed:
			return
		case msg := <-c.send:
			if err := c.write(websocket.TextMessage, msg); err != nil {
				c.Close(websocket.CloseAbnormalClosure, "write failed")
				return
			}
		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				c.Close(websocket.CloseAbnormalClosure, "ping failed")
				return
			}
		}
	}
}

func (c *Connection) write(messageType int, payload []byte) error {
	if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.ws.WriteMessage(messageType, payload)
}

// compile-time interface check
var _ Conn = (*Connection)(nil)
