// Package aichat は外部の補完サーバーを使った会話の返信候補生成を提供する。
package aichat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/campusconnect/internal/metrics"
	"github.com/hitoshi/campusconnect/internal/model"
	"github.com/hitoshi/campusconnect/internal/repository"
)

// metrics の outcome ラベル
const (
	outcomeLimited  = "rate_limited"
	outcomeUpstream = "upstream_error"
)

// Service はAIチャットのサービス層。
type Service struct {
	accounts  repository.AccountRepository
	gate      Gate
	completer Completer
	interval  time.Duration
	metrics   metrics.MetricsCollector
}

// NewService はServiceを生成する。interval はエラーメッセージの表示に使う。
func NewService(
	accounts repository.AccountRepository,
	gate Gate,
	completer Completer,
	interval time.Duration,
	collector metrics.MetricsCollector,
) *Service {
	if collector == nil {
		collector = metrics.Nop{}
	}
	return &Service{
		accounts:  accounts,
		gate:      gate,
		completer: completer,
		interval:  interval,
		metrics:   collector,
	}
}

// Suggest は会話履歴とメッセージから返信候補を生成する。
// アカウントごとに interval に1回までしか受け付けない。
func (s *Service) Suggest(ctx context.Context, actorID, message string, chatlog []ChatEntry) (string, error) {
	if strings.TrimSpace(message) == "" {
		return "", model.NewValidationError("Message is required")
	}
	if _, err := uuid.Parse(actorID); err != nil {
		return "", model.NewActorNotFoundError(actorID)
	}
	acct, err := s.accounts.FindByID(ctx, actorID)
	if err != nil {
		return "", fmt.Errorf("アカウントの取得に失敗しました: %w", err)
	}
	if acct == nil {
		return "", model.NewActorNotFoundError(actorID)
	}

	allowed, err := s.gate.Allow(ctx, actorID)
	if err != nil {
		s.metrics.RecordAIChat(metrics.OutcomeError)
		return "", err
	}
	if !allowed {
		s.metrics.RecordAIChat(outcomeLimited)
		return "", model.NewRateLimitedError(
			fmt.Sprintf("Wait for %s before requesting again", s.interval.Round(time.Second)))
	}

	text, err := s.completer.Complete(ctx, message, chatlog)
	if err != nil {
		slog.Error("ai completion failed",
			slog.String("user_id", actorID),
			slog.String("error", err.Error()),
		)
		s.metrics.RecordAIChat(outcomeUpstream)
		return "", model.NewUpstreamError()
	}

	s.metrics.RecordAIChat(metrics.OutcomeOK)
	return text, nil
}
