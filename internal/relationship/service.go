package relationship

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/hitoshi/campusconnect/internal/metrics"
	"github.com/hitoshi/campusconnect/internal/model"
	"github.com/hitoshi/campusconnect/internal/notify"
	"github.com/hitoshi/campusconnect/internal/repository"
)

// Service は関係操作のサービス層。
// 各操作は2アカウントを同一トランザクションで読み込み、検証、変更、保存する。
type Service struct {
	accounts  repository.AccountRepository
	publisher notify.Publisher
	metrics   metrics.MetricsCollector
	logger    *slog.Logger
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	accounts repository.AccountRepository,
	publisher notify.Publisher,
	collector metrics.MetricsCollector,
	logger *slog.Logger,
) *Service {
	if publisher == nil {
		publisher = notify.Nop{}
	}
	if collector == nil {
		collector = metrics.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		accounts:  accounts,
		publisher: publisher,
		metrics:   collector,
		logger:    logger,
	}
}

// Follow は actor が target を直接フォローする。
func (s *Service) Follow(ctx context.Context, actorID, targetID string) error {
	return s.apply(ctx, OpFollow, actorID, targetID)
}

// Unfollow は actor が target のフォローを解除する。
func (s *Service) Unfollow(ctx context.Context, actorID, targetID string) error {
	return s.apply(ctx, OpUnfollow, actorID, targetID)
}

// SendFollowRequest は actor から target へフォローリクエストを送る。
func (s *Service) SendFollowRequest(ctx context.Context, actorID, targetID string) error {
	return s.apply(ctx, OpSendFollowRequest, actorID, targetID)
}

// AcceptFollowRequest は actor が requester からのリクエストを承認する。
func (s *Service) AcceptFollowRequest(ctx context.Context, actorID, requesterID string) error {
	return s.apply(ctx, OpAcceptFollowRequest, actorID, requesterID)
}

// RejectFollowRequest は actor が requester からのリクエストを拒否する。
func (s *Service) RejectFollowRequest(ctx context.Context, actorID, requesterID string) error {
	return s.apply(ctx, OpRejectFollowRequest, actorID, requesterID)
}

// CancelFollowRequest は actor が target へ送ったリクエストを取り下げる。
func (s *Service) CancelFollowRequest(ctx context.Context, actorID, targetID string) error {
	return s.apply(ctx, OpCancelFollowRequest, actorID, targetID)
}

// RemoveFollower は actor が follower を自分のフォロワーから外す。
func (s *Service) RemoveFollower(ctx context.Context, actorID, followerID string) error {
	return s.apply(ctx, OpRemoveFollower, actorID, followerID)
}

// Block は actor が target をブロックする。
func (s *Service) Block(ctx context.Context, actorID, targetID string) error {
	return s.apply(ctx, OpBlock, actorID, targetID)
}

// Unblock は actor が target のブロックを解除する。
func (s *Service) Unblock(ctx context.Context, actorID, targetID string) error {
	return s.apply(ctx, OpUnblock, actorID, targetID)
}

// Scratch は actor が target をスクラッチする。
func (s *Service) Scratch(ctx context.Context, actorID, targetID string) error {
	return s.apply(ctx, OpScratch, actorID, targetID)
}

// Unscratch は actor が target のスクラッチを解除する。
func (s *Service) Unscratch(ctx context.Context, actorID, targetID string) error {
	return s.apply(ctx, OpUnscratch, actorID, targetID)
}

// apply は遷移を1トランザクションで実行し、結果を記録・通知する。
func (s *Service) apply(ctx context.Context, op Op, actorID, targetID string) error {
	actorID = canonicalID(actorID)
	targetID = canonicalID(targetID)
	err := s.run(ctx, op, actorID, targetID)

	outcome := metrics.OutcomeOK
	var apiErr *model.APIError
	switch {
	case err == nil:
	case errors.As(err, &apiErr):
		outcome = apiErr.Code
	default:
		outcome = metrics.OutcomeError
	}
	s.metrics.RecordRelationOp(string(op), outcome)

	if err != nil {
		return err
	}

	s.logger.Info("関係操作を実行しました",
		slog.String("op", string(op)),
		slog.String("actor_id", actorID),
		slog.String("target_id", targetID),
	)

	// 通知の失敗は操作結果に影響させない
	if perr := s.publisher.Publish(ctx, notify.NewEvent(string(op), actorID, targetID)); perr != nil {
		s.logger.Warn("関係イベントの通知に失敗しました",
			slog.String("op", string(op)),
			slog.String("error", perr.Error()),
		)
	}
	return nil
}

func (s *Service) run(ctx context.Context, op Op, actorID, targetID string) error {
	transition, ok := TransitionFor(op)
	if !ok {
		return fmt.Errorf("unknown relationship op: %s", op)
	}
	if !isAccountID(actorID) {
		return model.NewActorNotFoundError(actorID)
	}
	if !isAccountID(targetID) {
		return model.NewAccountNotFoundError(targetID)
	}
	if actorID == targetID {
		return model.NewSelfRelationError()
	}

	err := s.accounts.UpdatePair(ctx, actorID, targetID, func(actor, target *model.Account) error {
		if actor == nil {
			return model.NewActorNotFoundError(actorID)
		}
		if target == nil {
			return model.NewAccountNotFoundError(targetID)
		}
		return transition(actor, target)
	})
	if err != nil {
		var apiErr *model.APIError
		if errors.As(err, &apiErr) {
			return err
		}
		return fmt.Errorf("関係の更新に失敗しました (%s): %w", op, err)
	}
	return nil
}

// Followers は指定アカウントのフォロワー一覧を返す。
func (s *Service) Followers(ctx context.Context, id string) ([]model.AccountSummary, error) {
	return s.list(ctx, id, model.Followers)
}

// Following は指定アカウントのフォロー中一覧を返す。
func (s *Service) Following(ctx context.Context, id string) ([]model.AccountSummary, error) {
	return s.list(ctx, id, model.Following)
}

// FollowRequests は actor 宛ての承認待ちリクエスト一覧を返す。
func (s *Service) FollowRequests(ctx context.Context, actorID string) ([]model.AccountSummary, error) {
	summaries, err := s.list(ctx, actorID, model.FollowRequests)
	var apiErr *model.APIError
	if errors.As(err, &apiErr) && apiErr.Code == model.ErrCodeAccountNotFound {
		return nil, model.NewActorNotFoundError(actorID)
	}
	return summaries, err
}

// Scratchers は指定アカウントをスクラッチしているアカウント一覧を返す。
func (s *Service) Scratchers(ctx context.Context, id string) ([]model.AccountSummary, error) {
	return s.list(ctx, id, model.Scratchers)
}

// Scratching は指定アカウントがスクラッチしているアカウント一覧を返す。
func (s *Service) Scratching(ctx context.Context, id string) ([]model.AccountSummary, error) {
	return s.list(ctx, id, model.Scratching)
}

// Blocked は actor がブロックしているアカウント一覧を返す。
func (s *Service) Blocked(ctx context.Context, actorID string) ([]model.AccountSummary, error) {
	return s.list(ctx, actorID, model.Blocked)
}

func (s *Service) list(ctx context.Context, id string, key model.RelationKey) ([]model.AccountSummary, error) {
	if !isAccountID(id) {
		return nil, model.NewAccountNotFoundError(id)
	}
	id = canonicalID(id)
	account, err := s.accounts.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("アカウントの取得に失敗しました: %w", err)
	}
	if account == nil {
		return nil, model.NewAccountNotFoundError(id)
	}

	summaries, err := s.accounts.ListRelated(ctx, id, key)
	if err != nil {
		return nil, fmt.Errorf("関係一覧の取得に失敗しました (%s): %w", key, err)
	}
	return summaries, nil
}

// isAccountID はアカウントIDとして妥当な形式かを返す。
func isAccountID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// canonicalID は大文字や波括弧、urn:uuid: 付きのIDを小文字のハイフン区切り形式に揃える。
// 解釈できないIDはそのまま返す。
func canonicalID(id string) string {
	u, err := uuid.Parse(id)
	if err != nil {
		return id
	}
	return u.String()
}
