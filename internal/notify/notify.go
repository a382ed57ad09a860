// Package notify は関係操作のイベントを外部のメッセージブローカーへ通知する。
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

// subjectPrefix はNATSのサブジェクト接頭辞。イベント種別と連結して使用する。
const subjectPrefix = "campusconnect.relation"

// Event は関係操作の成立を表すイベント。
type Event struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	ActorID    string    `json:"actorId"`
	TargetID   string    `json:"targetId"`
	OccurredAt time.Time `json:"occurredAt"`
}

// NewEvent はIDと発生時刻を付与したイベントを生成する。
func NewEvent(eventType, actorID, targetID string) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       eventType,
		ActorID:    actorID,
		TargetID:   targetID,
		OccurredAt: time.Now().UTC(),
	}
}

// Subject はイベントの送信先サブジェクトを返す。
func (e Event) Subject() string {
	return subjectPrefix + "." + e.Type
}

// Publisher はイベント通知のインターフェース。
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// msgPublisher は*nats.Connのうち送信に必要な部分。
type msgPublisher interface {
	PublishMsg(m *nats.Msg) error
}

// NATSPublisher はNATSへイベントを送信するPublisher。
type NATSPublisher struct {
	conn   msgPublisher
	closer func()
}

// Connect はNATSに接続してNATSPublisherを生成する。
func Connect(url string) (*NATSPublisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("campusconnect"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				slog.Warn("NATS接続が切断されました", slog.String("error", err.Error()))
			}
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("NATSへの接続に失敗しました: %w", err)
	}
	return &NATSPublisher{conn: nc, closer: nc.Close}, nil
}

// Publish はイベントをJSONで送信する。
func (p *NATSPublisher) Publish(_ context.Context, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("イベントのシリアライズに失敗しました: %w", err)
	}

	msg := &nats.Msg{
		Subject: ev.Subject(),
		Data:    data,
		Header:  nats.Header{},
	}
	msg.Header.Set("Content-Type", "application/json")
	msg.Header.Set(nats.MsgIdHdr, ev.ID)

	if err := p.conn.PublishMsg(msg); err != nil {
		return fmt.Errorf("イベントの送信に失敗しました: %w", err)
	}
	return nil
}

// Close はNATS接続を閉じる。
func (p *NATSPublisher) Close() {
	if p.closer != nil {
		p.closer()
	}
}

// Nop は何も送信しないPublisher。NATS_URL未設定時に使用する。
type Nop struct{}

// Publish は何もしない。
func (Nop) Publish(context.Context, Event) error { return nil }

var (
	_ Publisher = (*NATSPublisher)(nil)
	_ Publisher = Nop{}
)
