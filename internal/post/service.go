// Package post は投稿の作成・参照・更新・削除と評価を扱う。
package post

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/campusconnect/internal/model"
	"github.com/hitoshi/campusconnect/internal/repository"
	"github.com/hitoshi/campusconnect/internal/security"
)

// Input は投稿の作成・更新の入力。
type Input struct {
	Title     string
	Content   string
	Anonymous bool
}

// View は投稿詳細の表示内容。匿名投稿では Author は nil。
type View struct {
	Post   *model.Post
	Author *model.AccountSummary
}

// Service は投稿のサービス層。
type Service struct {
	posts     repository.PostRepository
	accounts  repository.AccountRepository
	sanitizer security.ContentSanitizerService
	now       func() time.Time
}

// NewService はServiceを生成する。
func NewService(
	posts repository.PostRepository,
	accounts repository.AccountRepository,
	sanitizer security.ContentSanitizerService,
) *Service {
	return &Service{
		posts:     posts,
		accounts:  accounts,
		sanitizer: sanitizer,
		now:       time.Now,
	}
}

// Create は投稿を作成する。
func (s *Service) Create(ctx context.Context, authorID string, in Input) (*model.Post, error) {
	in, err := s.clean(in)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	p := &model.Post{
		ID:        uuid.NewString(),
		AuthorID:  authorID,
		Title:     in.Title,
		Content:   in.Content,
		Anonymous: in.Anonymous,
		Likes:     []string{},
		Dislikes:  []string{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.posts.Create(ctx, p); err != nil {
		return nil, fmt.Errorf("投稿の作成に失敗しました: %w", err)
	}
	return p, nil
}

// Get は投稿詳細を返す。
func (s *Service) Get(ctx context.Context, id string) (*View, error) {
	p, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}

	view := &View{Post: p}
	if !p.Anonymous {
		authors, err := s.accounts.Summaries(ctx, []string{p.AuthorID})
		if err != nil {
			return nil, fmt.Errorf("投稿者情報の取得に失敗しました: %w", err)
		}
		if a, ok := authors[p.AuthorID]; ok {
			view.Author = &a
		}
	}
	return view, nil
}

// ListByUser は指定アカウントの匿名でない投稿を新しい順に返す。
func (s *Service) ListByUser(ctx context.Context, userID string) ([]*model.Post, error) {
	if _, err := uuid.Parse(userID); err != nil {
		return nil, model.NewAccountNotFoundError(userID)
	}
	acct, err := s.accounts.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("アカウントの取得に失敗しました: %w", err)
	}
	if acct == nil {
		return nil, model.NewAccountNotFoundError(userID)
	}

	posts, err := s.posts.ListByAuthor(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("投稿一覧の取得に失敗しました: %w", err)
	}
	return posts, nil
}

// Update は投稿者本人による投稿の更新を行う。
func (s *Service) Update(ctx context.Context, actorID, id string, in Input) (*model.Post, error) {
	in, err := s.clean(in)
	if err != nil {
		return nil, err
	}

	p, err := s.findOwned(ctx, actorID, id)
	if err != nil {
		return nil, err
	}
	p.Title, p.Content, p.Anonymous = in.Title, in.Content, in.Anonymous
	p.UpdatedAt = s.now().UTC()

	if err := s.posts.Update(ctx, p); err != nil {
		return nil, fmt.Errorf("投稿の更新に失敗しました: %w", err)
	}
	return p, nil
}

// Delete は投稿者本人による投稿の削除を行う。
func (s *Service) Delete(ctx context.Context, actorID, id string) error {
	if _, err := s.findOwned(ctx, actorID, id); err != nil {
		return err
	}
	if err := s.posts.Delete(ctx, id); err != nil {
		return fmt.Errorf("投稿の削除に失敗しました: %w", err)
	}
	return nil
}

// React は評価を切り替え、更新後の投稿を返す。
// 高評価と低評価は排他で、同じ評価を再度行うと取り消される。
func (s *Service) React(ctx context.Context, actorID, id string, kind model.ReactionKind) (*model.Post, error) {
	if _, err := s.find(ctx, id); err != nil {
		return nil, err
	}
	if _, err := s.posts.ToggleReaction(ctx, id, actorID, kind); err != nil {
		return nil, fmt.Errorf("評価の更新に失敗しました: %w", err)
	}
	return s.find(ctx, id)
}

func (s *Service) find(ctx context.Context, id string) (*model.Post, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, model.NewPostNotFoundError(id)
	}
	p, err := s.posts.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("投稿の取得に失敗しました: %w", err)
	}
	if p == nil {
		return nil, model.NewPostNotFoundError(id)
	}
	return p, nil
}

func (s *Service) findOwned(ctx context.Context, actorID, id string) (*model.Post, error) {
	p, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.AuthorID != actorID {
		return nil, model.NewNotOwnerError("post")
	}
	return p, nil
}

func (s *Service) clean(in Input) (Input, error) {
	in.Title = s.sanitizer.Sanitize(in.Title)
	in.Content = s.sanitizer.Sanitize(in.Content)
	if in.Title == "" {
		return in, model.NewValidationError("Title is required")
	}
	if in.Content == "" {
		return in, model.NewValidationError("Content is required")
	}
	return in, nil
}
