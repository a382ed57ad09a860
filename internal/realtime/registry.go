package realtime

import (
	"sync"

	"github.com/gorilla/websocket"

	"github.com/hitoshi/campusconnect/internal/metrics"
)

// Registry はアカウントIDから現在の接続への対応を保持する。
// プロセス内でのみ有効で、永続化しない。
type Registry struct {
	mu      sync.Mutex
	entries map[string]Conn
	metrics metrics.MetricsCollector
}

// NewRegistry はRegistryを生成する。collectorがnilの場合は記録しない。
func NewRegistry(collector metrics.MetricsCollector) *Registry {
	if collector == nil {
		collector = metrics.Nop{}
	}
	return &Registry{
		entries: make(map[string]Conn),
		metrics: collector,
	}
}

// Register は identity を conn に対応付ける。既存の対応は上書きする。
func (r *Registry) Register(identity string, conn Conn) {
	r.mu.Lock()
	r.entries[identity] = conn
	n := len(r.entries)
	r.mu.Unlock()

	r.metrics.SetOnlineConnections(n)
}

// Unregister は conn に対応するエントリを探して削除し、そのIDを返す。
// 同じIDに新しい接続が登録済みの場合は、その対応を残す。
func (r *Registry) Unregister(conn Conn) (string, bool) {
	r.mu.Lock()
	var (
		identity string
		found    bool
	)
	for id, c := range r.entries {
		if c == conn {
			identity, found = id, true
			delete(r.entries, id)
			break
		}
	}
	n := len(r.entries)
	r.mu.Unlock()

	if found {
		r.metrics.SetOnlineConnections(n)
	}
	return identity, found
}

// Lookup は identity の現在の接続を返す。
func (r *Registry) Lookup(identity string) (Conn, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	conn, ok := r.entries[identity]
	return conn, ok
}

// Len は登録中のエントリ数を返す。
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Close は登録中の全接続を閉じ、対応をすべて破棄する。
func (r *Registry) Close() {
	r.mu.Lock()
	conns := make([]Conn, 0, len(r.entries))
	for _, c := range r.entries {
		conns = append(conns, c)
	}
	r.entries = make(map[string]Conn)
	r.mu.Unlock()

	r.metrics.SetOnlineConnections(0)
	for _, c := range conns {
		c.Close(websocket.CloseGoingAway, "server shutdown")
	}
}
