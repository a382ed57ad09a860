// Package feed はフォロー中アカウントの投稿からフィードを組み立てる。
package feed

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/hitoshi/campusconnect/internal/model"
	"github.com/hitoshi/campusconnect/internal/repository"
)

// Service はフィード組み立てのサービス層。
// 呼び出しごとに再計算し、結果はキャッシュしない。
type Service struct {
	accounts repository.AccountRepository
	posts    repository.PostRepository
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(accounts repository.AccountRepository, posts repository.PostRepository) *Service {
	return &Service{accounts: accounts, posts: posts}
}

// GetFeed は actor がフォロー中のアカウントの匿名でない投稿を新しい順に返す。
// 作成日時が同じ場合はIDの降順で並べる。
func (s *Service) GetFeed(ctx context.Context, actorID string) ([]model.FeedEntry, error) {
	u, err := uuid.Parse(actorID)
	if err != nil {
		return nil, model.NewActorNotFoundError(actorID)
	}
	actorID = u.String()

	actor, err := s.accounts.FindWithRelations(ctx, actorID)
	if err != nil {
		return nil, fmt.Errorf("アカウントの取得に失敗しました: %w", err)
	}
	if actor == nil {
		return nil, model.NewActorNotFoundError(actorID)
	}

	following := actor.Set(model.Following).IDs()
	if len(following) == 0 {
		return []model.FeedEntry{}, nil
	}

	posts, err := s.posts.ListByAuthors(ctx, following)
	if err != nil {
		return nil, fmt.Errorf("フィード投稿の取得に失敗しました: %w", err)
	}

	authors, err := s.accounts.Summaries(ctx, following)
	if err != nil {
		return nil, fmt.Errorf("投稿者情報の取得に失敗しました: %w", err)
	}

	entries := make([]model.FeedEntry, 0, len(posts))
	for _, p := range posts {
		if p.Anonymous {
			continue
		}
		entries = append(entries, model.FeedEntry{Post: *p, Author: authors[p.AuthorID]})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID > b.ID
	})
	return entries, nil
}
