package feed

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/campusconnect/internal/model"
	"github.com/hitoshi/campusconnect/internal/repository"
)

// --- モック ---

type mockAccountRepo struct {
	repository.AccountRepository
	findWithRelationsFn func(ctx context.Context, id string) (*model.Account, error)
	summariesFn         func(ctx context.Context, ids []string) (map[string]model.AccountSummary, error)
}

func (m *mockAccountRepo) FindWithRelations(ctx context.Context, id string) (*model.Account, error) {
	return m.findWithRelationsFn(ctx, id)
}

func (m *mockAccountRepo) Summaries(ctx context.Context, ids []string) (map[string]model.AccountSummary, error) {
	if m.summariesFn != nil {
		return m.summariesFn(ctx, ids)
	}
	out := map[string]model.AccountSummary{}
	for _, id := range ids {
		out[id] = model.AccountSummary{ID: id, Username: "user-" + id}
	}
	return out, nil
}

type mockPostRepo struct {
	repository.PostRepository
	listByAuthorsFn func(ctx context.Context, authorIDs []string) ([]*model.Post, error)
}

func (m *mockPostRepo) ListByAuthors(ctx context.Context, authorIDs []string) ([]*model.Post, error) {
	return m.listByAuthorsFn(ctx, authorIDs)
}

// --- テスト ---

func TestGetFeed_ReturnsFollowedPostsNewestFirst(t *testing.T) {
	actorID := uuid.NewString()
	bID, cID, dID := uuid.NewString(), uuid.NewString(), uuid.NewString()
	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	actor := &model.Account{ID: actorID}
	actor.Set(model.Following).Add(bID)
	actor.Set(model.Following).Add(cID)

	accounts := &mockAccountRepo{
		findWithRelationsFn: func(ctx context.Context, id string) (*model.Account, error) {
			return actor, nil
		},
	}
	posts := &mockPostRepo{
		listByAuthorsFn: func(ctx context.Context, authorIDs []string) ([]*model.Post, error) {
			for _, id := range authorIDs {
				if id == dID {
					t.Errorf("unfollowed author %s requested", dID)
				}
			}
			return []*model.Post{
				{ID: "p-b", AuthorID: bID, Title: "B", CreatedAt: base},
				{ID: "p-c", AuthorID: cID, Title: "C", CreatedAt: base.Add(time.Hour)},
			}, nil
		},
	}

	entries, err := NewService(accounts, posts).GetFeed(context.Background(), actorID)
	if err != nil {
		t.Fatalf("GetFeed returned error: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("len(entries) = %d, want 2", len(entries))
	}
	if entries[0].ID != "p-c" || entries[1].ID != "p-b" {
		t.Errorf("order = [%s %s], want [p-c p-b]", entries[0].ID, entries[1].ID)
	}
	if entries[0].Author.ID != cID {
		t.Errorf("author = %+v, want %s", entries[0].Author, cID)
	}
}

func TestGetFeed_TieBrokenByID(t *testing.T) {
	actorID, bID := uuid.NewString(), uuid.NewString()
	at := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	actor := &model.Account{ID: actorID}
	actor.Set(model.Following).Add(bID)

	accounts := &mockAccountRepo{
		findWithRelationsFn: func(ctx context.Context, id string) (*model.Account, error) { return actor, nil },
	}
	posts := &mockPostRepo{
		listByAuthorsFn: func(ctx context.Context, ids []string) ([]*model.Post, error) {
			return []*model.Post{
				{ID: "p-1", AuthorID: bID, CreatedAt: at},
				{ID: "p-3", AuthorID: bID, CreatedAt: at},
				{ID: "p-2", AuthorID: bID, CreatedAt: at},
			}, nil
		},
	}

	entries, err := NewService(accounts, posts).GetFeed(context.Background(), actorID)
	if err != nil {
		t.Fatalf("GetFeed returned error: %v", err)
	}
	got := []string{entries[0].ID, entries[1].ID, entries[2].ID}
	want := []string{"p-3", "p-2", "p-1"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}
}

func TestGetFeed_ExcludesAnonymousPosts(t *testing.T) {
	actorID, bID := uuid.NewString(), uuid.NewString()
	actor := &model.Account{ID: actorID}
	actor.Set(model.Following).Add(bID)

	accounts := &mockAccountRepo{
		findWithRelationsFn: func(ctx context.Context, id string) (*model.Account, error) { return actor, nil },
	}
	posts := &mockPostRepo{
		listByAuthorsFn: func(ctx context.Context, ids []string) ([]*model.Post, error) {
			return []*model.Post{
				{ID: "visible", AuthorID: bID, CreatedAt: time.Now()},
				{ID: "hidden", AuthorID: bID, Anonymous: true, CreatedAt: time.Now()},
			}, nil
		},
	}

	entries, err := NewService(accounts, posts).GetFeed(context.Background(), actorID)
	if err != nil {
		t.Fatalf("GetFeed returned error: %v", err)
	}
	if len(entries) != 1 || entries[0].ID != "visible" {
		t.Errorf("entries = %+v, want only the visible post", entries)
	}
}

func TestGetFeed_NoFollowingSkipsPostQuery(t *testing.T) {
	actorID := uuid.NewString()
	accounts := &mockAccountRepo{
		findWithRelationsFn: func(ctx context.Context, id string) (*model.Account, error) {
			return &model.Account{ID: actorID}, nil
		},
	}
	posts := &mockPostRepo{
		listByAuthorsFn: func(ctx context.Context, ids []string) ([]*model.Post, error) {
			t.Error("ListByAuthors should not be called")
			return nil, nil
		},
	}

	entries, err := NewService(accounts, posts).GetFeed(context.Background(), actorID)
	if err != nil {
		t.Fatalf("GetFeed returned error: %v", err)
	}
	if entries == nil || len(entries) != 0 {
		t.Errorf("entries = %v, want empty non-nil slice", entries)
	}
}

func TestGetFeed_NonCanonicalActorIDIsNormalised(t *testing.T) {
	actorID := uuid.NewString()
	var looked string
	accounts := &mockAccountRepo{
		findWithRelationsFn: func(ctx context.Context, id string) (*model.Account, error) {
			looked = id
			return &model.Account{ID: actorID}, nil
		},
	}

	if _, err := NewService(accounts, &mockPostRepo{}).GetFeed(context.Background(), "{"+strings.ToUpper(actorID)+"}"); err != nil {
		t.Fatalf("GetFeed returned error: %v", err)
	}
	if looked != actorID {
		t.Errorf("FindWithRelations id = %q, want %q", looked, actorID)
	}
}

func TestGetFeed_ActorNotFound(t *testing.T) {
	accounts := &mockAccountRepo{
		findWithRelationsFn: func(ctx context.Context, id string) (*model.Account, error) { return nil, nil },
	}
	svc := NewService(accounts, &mockPostRepo{})

	for _, id := range []string{uuid.NewString(), "not-a-uuid"} {
		_, err := svc.GetFeed(context.Background(), id)
		var apiErr *model.APIError
		if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeActorNotFound {
			t.Errorf("GetFeed(%q) error = %v, want ACTOR_NOT_FOUND", id, err)
		}
	}
}

func TestGetFeed_RepositoryErrorIsWrapped(t *testing.T) {
	dbErr := errors.New("db down")
	accounts := &mockAccountRepo{
		findWithRelationsFn: func(ctx context.Context, id string) (*model.Account, error) { return nil, dbErr },
	}

	_, err := NewService(accounts, &mockPostRepo{}).GetFeed(context.Background(), uuid.NewString())
	if !errors.Is(err, dbErr) {
		t.Errorf("error = %v, want wrapped %v", err, dbErr)
	}
}
