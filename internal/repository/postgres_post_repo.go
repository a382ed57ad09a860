package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/hitoshi/campusconnect/internal/model"
)

// postSelect は投稿と評価アカウントIDを集約して取得するSELECT句。
const postSelect = `SELECT p.id, p.author_id, p.title, p.content, p.anonymous, p.created_at, p.updated_at,
	COALESCE(array_agg(r.account_id::text ORDER BY r.created_at) FILTER (WHERE r.kind = 'like'), '{}'),
	COALESCE(array_agg(r.account_id::text ORDER BY r.created_at) FILTER (WHERE r.kind = 'dislike'), '{}')
 FROM posts p
 LEFT JOIN post_reactions r ON r.post_id = p.id`

// PostgresPostRepo はPostgreSQLを使用した投稿リポジトリ。
type PostgresPostRepo struct {
	db *sql.DB
}

// NewPostgresPostRepo はPostgresPostRepoを生成する。
func NewPostgresPostRepo(db *sql.DB) *PostgresPostRepo {
	return &PostgresPostRepo{db: db}
}

func scanPost(row rowScanner) (*model.Post, error) {
	p := &model.Post{}
	err := row.Scan(
		&p.ID, &p.AuthorID, &p.Title, &p.Content, &p.Anonymous, &p.CreatedAt, &p.UpdatedAt,
		pq.Array(&p.Likes), pq.Array(&p.Dislikes),
	)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// FindByID は指定IDの投稿を評価付きで取得する。見つからない場合はnilを返す。
func (r *PostgresPostRepo) FindByID(ctx context.Context, id string) (*model.Post, error) {
	p, err := scanPost(r.db.QueryRowContext(ctx,
		postSelect+` WHERE p.id = $1 GROUP BY p.id`,
		id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("投稿の取得に失敗しました: %w", err)
	}
	return p, nil
}

// Create は投稿を作成する。
func (r *PostgresPostRepo) Create(ctx context.Context, p *model.Post) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO posts (id, author_id, title, content, anonymous, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		p.ID, p.AuthorID, p.Title, p.Content, p.Anonymous, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("投稿の作成に失敗しました: %w", err)
	}
	return nil
}

// Update は投稿のタイトル・本文・匿名フラグを更新する。
func (r *PostgresPostRepo) Update(ctx context.Context, p *model.Post) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE posts SET title = $2, content = $3, anonymous = $4, updated_at = $5 WHERE id = $1`,
		p.ID, p.Title, p.Content, p.Anonymous, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("投稿の更新に失敗しました: %w", err)
	}
	return expectOneRow(result, "投稿", p.ID)
}

// Delete は指定IDの投稿を削除する。
func (r *PostgresPostRepo) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM posts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("投稿の削除に失敗しました: %w", err)
	}
	return expectOneRow(result, "投稿", id)
}

// ListByAuthor は投稿者の匿名でない投稿を新しい順に返す。
func (r *PostgresPostRepo) ListByAuthor(ctx context.Context, authorID string) ([]*model.Post, error) {
	rows, err := r.db.QueryContext(ctx,
		postSelect+` WHERE p.author_id = $1 AND p.anonymous = false
		 GROUP BY p.id
		 ORDER BY p.created_at DESC, p.id DESC`,
		authorID,
	)
	if err != nil {
		return nil, fmt.Errorf("投稿一覧の取得に失敗しました: %w", err)
	}
	return scanPosts(rows)
}

// ListByAuthors は指定投稿者群の匿名でない投稿を created_at 降順、id 降順で返す。
func (r *PostgresPostRepo) ListByAuthors(ctx context.Context, authorIDs []string) ([]*model.Post, error) {
	if len(authorIDs) == 0 {
		return []*model.Post{}, nil
	}
	rows, err := r.db.QueryContext(ctx,
		postSelect+` WHERE p.author_id = ANY($1::uuid[]) AND p.anonymous = false
		 GROUP BY p.id
		 ORDER BY p.created_at DESC, p.id DESC`,
		pq.Array(authorIDs),
	)
	if err != nil {
		return nil, fmt.Errorf("フィード投稿の取得に失敗しました: %w", err)
	}
	return scanPosts(rows)
}

// ToggleReaction は投稿の評価を切り替える。
func (r *PostgresPostRepo) ToggleReaction(ctx context.Context, postID, accountID string, kind model.ReactionKind) (bool, error) {
	return toggleReaction(ctx, r.db, postReactions, postID, accountID, kind)
}

func scanPosts(rows *sql.Rows) ([]*model.Post, error) {
	defer rows.Close()

	posts := []*model.Post{}
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, fmt.Errorf("投稿行の読み取りに失敗しました: %w", err)
		}
		posts = append(posts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("投稿一覧の走査に失敗しました: %w", err)
	}
	return posts, nil
}

// compile-time interface check
var _ PostRepository = (*PostgresPostRepo)(nil)
