// Package comment は投稿・コメントへのコメントと評価を扱う。
package comment

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/campusconnect/internal/model"
	"github.com/hitoshi/campusconnect/internal/repository"
	"github.com/hitoshi/campusconnect/internal/security"
)

// Input はコメント作成の入力。PostID と ParentID は省略可能。
type Input struct {
	Content   string
	Anonymous bool
	PostID    string
	ParentID  string
}

// Service はコメントのサービス層。
type Service struct {
	comments  repository.CommentRepository
	posts     repository.PostRepository
	sanitizer security.ContentSanitizerService
	now       func() time.Time
}

// NewService はServiceを生成する。
func NewService(
	comments repository.CommentRepository,
	posts repository.PostRepository,
	sanitizer security.ContentSanitizerService,
) *Service {
	return &Service{
		comments:  comments,
		posts:     posts,
		sanitizer: sanitizer,
		now:       time.Now,
	}
}

// Create はコメントを作成する。指定された投稿・親コメントは存在しなければならない。
func (s *Service) Create(ctx context.Context, authorID string, in Input) (*model.Comment, error) {
	content, err := s.clean(in.Content)
	if err != nil {
		return nil, err
	}

	c := &model.Comment{
		ID:        uuid.NewString(),
		AuthorID:  authorID,
		Content:   content,
		Anonymous: in.Anonymous,
		Replies:   []string{},
		Likes:     []string{},
		Dislikes:  []string{},
	}
	if in.PostID != "" {
		if err := s.requirePost(ctx, in.PostID); err != nil {
			return nil, err
		}
		c.PostID = &in.PostID
	}
	if in.ParentID != "" {
		if _, err := s.find(ctx, in.ParentID); err != nil {
			return nil, err
		}
		c.ParentID = &in.ParentID
	}

	now := s.now().UTC()
	c.CreatedAt, c.UpdatedAt = now, now
	if err := s.comments.Create(ctx, c); err != nil {
		return nil, fmt.Errorf("コメントの作成に失敗しました: %w", err)
	}
	return c, nil
}

// Get はコメントを返す。
func (s *Service) Get(ctx context.Context, id string) (*model.Comment, error) {
	return s.find(ctx, id)
}

// ListByPost は投稿に直接付いたコメントを古い順に返す。
func (s *Service) ListByPost(ctx context.Context, postID string) ([]*model.Comment, error) {
	if err := s.requirePost(ctx, postID); err != nil {
		return nil, err
	}
	list, err := s.comments.ListByPost(ctx, postID)
	if err != nil {
		return nil, fmt.Errorf("コメント一覧の取得に失敗しました: %w", err)
	}
	return list, nil
}

// Update は投稿者本人によるコメント本文の更新を行う。
func (s *Service) Update(ctx context.Context, actorID, id, content string) (*model.Comment, error) {
	content, err := s.clean(content)
	if err != nil {
		return nil, err
	}
	c, err := s.findOwned(ctx, actorID, id)
	if err != nil {
		return nil, err
	}
	c.Content = content
	c.UpdatedAt = s.now().UTC()
	if err := s.comments.Update(ctx, c); err != nil {
		return nil, fmt.Errorf("コメントの更新に失敗しました: %w", err)
	}
	return c, nil
}

// Delete は投稿者本人によるコメントの削除を行う。返信も削除される。
func (s *Service) Delete(ctx context.Context, actorID, id string) error {
	if _, err := s.findOwned(ctx, actorID, id); err != nil {
		return err
	}
	if err := s.comments.Delete(ctx, id); err != nil {
		return fmt.Errorf("コメントの削除に失敗しました: %w", err)
	}
	return nil
}

// React は評価を切り替え、更新後のコメントを返す。
func (s *Service) React(ctx context.Context, actorID, id string, kind model.ReactionKind) (*model.Comment, error) {
	if _, err := s.find(ctx, id); err != nil {
		return nil, err
	}
	if _, err := s.comments.ToggleReaction(ctx, id, actorID, kind); err != nil {
		return nil, fmt.Errorf("評価の更新に失敗しました: %w", err)
	}
	return s.find(ctx, id)
}

func (s *Service) requirePost(ctx context.Context, postID string) error {
	if _, err := uuid.Parse(postID); err != nil {
		return model.NewPostNotFoundError(postID)
	}
	p, err := s.posts.FindByID(ctx, postID)
	if err != nil {
		return fmt.Errorf("投稿の取得に失敗しました: %w", err)
	}
	if p == nil {
		return model.NewPostNotFoundError(postID)
	}
	return nil
}

func (s *Service) find(ctx context.Context, id string) (*model.Comment, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, model.NewCommentNotFoundError(id)
	}
	c, err := s.comments.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("コメントの取得に失敗しました: %w", err)
	}
	if c == nil {
		return nil, model.NewCommentNotFoundError(id)
	}
	return c, nil
}

func (s *Service) findOwned(ctx context.Context, actorID, id string) (*model.Comment, error) {
	c, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.AuthorID != actorID {
		return nil, model.NewNotOwnerError("comment")
	}
	return c, nil
}

func (s *Service) clean(content string) (string, error) {
	content = s.sanitizer.Sanitize(content)
	if content == "" {
		return "", model.NewValidationError("Content is required")
	}
	return content, nil
}
