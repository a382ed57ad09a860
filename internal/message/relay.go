// Package message はダイレクトメッセージの保存と配信を扱う。
package message

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/campusconnect/internal/metrics"
	"github.com/hitoshi/campusconnect/internal/model"
	"github.com/hitoshi/campusconnect/internal/realtime"
	"github.com/hitoshi/campusconnect/internal/repository"
	"github.com/hitoshi/campusconnect/internal/security"
)

// Presence は受信者の現在の接続を引く。
type Presence interface {
	Lookup(identity string) (realtime.Conn, bool)
}

// Relay はメッセージを永続化し、受信者が接続中であれば即時に届ける。
// 受信者がオフラインでもエラーにはしない。
type Relay struct {
	messages  repository.MessageRepository
	accounts  repository.AccountRepository
	presence  Presence
	sanitizer security.ContentSanitizerService
	metrics   metrics.MetricsCollector
	logger    *slog.Logger
	now       func() time.Time
}

// NewRelay はRelayを生成する。
func NewRelay(
	messages repository.MessageRepository,
	accounts repository.AccountRepository,
	presence Presence,
	sanitizer security.ContentSanitizerService,
	collector metrics.MetricsCollector,
	logger *slog.Logger,
) *Relay {
	if collector == nil {
		collector = metrics.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Relay{
		messages:  messages,
		accounts:  accounts,
		presence:  presence,
		sanitizer: sanitizer,
		metrics:   collector,
		logger:    logger,
		now:       time.Now,
	}
}

// SendMessage はメッセージを保存し、受信者が接続中なら receiveMessage イベントを送る。
// 配信は保存の後に一度だけ試み、失敗しても保存済みのメッセージは返す。
func (r *Relay) SendMessage(ctx context.Context, senderID, recipientID, body string) (*model.Message, error) {
	sender, err := uuid.Parse(senderID)
	if err != nil {
		return nil, model.NewActorNotFoundError(senderID)
	}
	senderID = sender.String()
	recipientID, err = r.requireAccount(ctx, recipientID)
	if err != nil {
		return nil, err
	}

	body = r.sanitizer.Sanitize(body)
	if body == "" {
		return nil, model.NewValidationError("Message is required")
	}

	msg := &model.Message{
		ID:          uuid.NewString(),
		SenderID:    senderID,
		RecipientID: recipientID,
		Body:        body,
		CreatedAt:   r.now().UTC(),
	}
	if err := r.messages.Create(ctx, msg); err != nil {
		return nil, fmt.Errorf("メッセージの保存に失敗しました: %w", err)
	}

	r.metrics.RecordMessage(r.push(msg))
	return msg, nil
}

// History は actor と peer の間のメッセージを古い順に返す。
func (r *Relay) History(ctx context.Context, actorID, peerID string) ([]*model.Message, error) {
	actor, err := uuid.Parse(actorID)
	if err != nil {
		return nil, model.NewActorNotFoundError(actorID)
	}
	peerID, err = r.requireAccount(ctx, peerID)
	if err != nil {
		return nil, err
	}

	msgs, err := r.messages.ListConversation(ctx, actor.String(), peerID)
	if err != nil {
		return nil, fmt.Errorf("メッセージ履歴の取得に失敗しました: %w", err)
	}
	return msgs, nil
}

// requireAccount は id のアカウントが存在することを確かめ、正規形のIDを返す。
func (r *Relay) requireAccount(ctx context.Context, id string) (string, error) {
	u, err := uuid.Parse(id)
	if err != nil {
		return "", model.NewAccountNotFoundError(id)
	}
	id = u.String()
	acct, err := r.accounts.FindByID(ctx, id)
	if err != nil {
		return "", fmt.Errorf("アカウントの取得に失敗しました: %w", err)
	}
	if acct == nil {
		return "", model.NewAccountNotFoundError(id)
	}
	return id, nil
}

// push は受信者の接続へ送信キューに積めたかどうかを返す。
func (r *Relay) push(msg *model.Message) bool {
	conn, ok := r.presence.Lookup(msg.RecipientID)
	if !ok {
		return false
	}

	payload, err := realtime.Encode(realtime.EventReceiveMessage, msg)
	if err != nil {
		r.logger.Error("failed to encode message frame", slog.String("error", err.Error()))
		return false
	}
	if err := conn.Send(payload); err != nil {
		r.logger.Warn("message push failed",
			slog.String("message_id", msg.ID),
			slog.String("recipient_id", msg.RecipientID),
			slog.String("error", err.Error()),
		)
		return false
	}
	return true
}

// compile-time interface check
var _ realtime.MessageSender = (*Relay)(nil)
