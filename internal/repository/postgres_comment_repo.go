package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/hitoshi/campusconnect/internal/model"
)

const commentSelect = `SELECT c.id, c.author_id, c.post_id, c.parent_id, c.content, c.anonymous, c.created_at, c.updated_at,
	COALESCE((SELECT array_agg(rc.id::text ORDER BY rc.created_at) FROM comments rc WHERE rc.parent_id = c.id), '{}'),
	COALESCE((SELECT array_agg(r.account_id::text ORDER BY r.created_at) FROM comment_reactions r WHERE r.comment_id = c.id AND r.kind = 'like'), '{}'),
	COALESCE((SELECT array_agg(r.account_id::text ORDER BY r.created_at) FROM comment_reactions r WHERE r.comment_id = c.id AND r.kind = 'dislike'), '{}')
 FROM comments c`

// PostgresCommentRepo はPostgreSQLを使用したコメントリポジトリ。
type PostgresCommentRepo struct {
	db *sql.DB
}

// NewPostgresCommentRepo はPostgresCommentRepoを生成する。
func NewPostgresCommentRepo(db *sql.DB) *PostgresCommentRepo {
	return &PostgresCommentRepo{db: db}
}

func scanComment(row rowScanner) (*model.Comment, error) {
	c := &model.Comment{}
	var postID, parentID sql.NullString
	err := row.Scan(
		&c.ID, &c.AuthorID, &postID, &parentID, &c.Content, &c.Anonymous, &c.CreatedAt, &c.UpdatedAt,
		pq.Array(&c.Replies), pq.Array(&c.Likes), pq.Array(&c.Dislikes),
	)
	if err != nil {
		return nil, err
	}
	if postID.Valid {
		c.PostID = &postID.String
	}
	if parentID.Valid {
		c.ParentID = &parentID.String
	}
	return c, nil
}

// FindByID は指定IDのコメントを取得する。見つからない場合はnilを返す。
func (r *PostgresCommentRepo) FindByID(ctx context.Context, id string) (*model.Comment, error) {
	c, err := scanComment(r.db.QueryRowContext(ctx, commentSelect+` WHERE c.id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("コメントの取得に失敗しました: %w", err)
	}
	return c, nil
}

// Create はコメントを作成する。
func (r *PostgresCommentRepo) Create(ctx context.Context, c *model.Comment) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO comments (id, author_id, post_id, parent_id, content, anonymous, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		c.ID, c.AuthorID, optionalString(c.PostID), optionalString(c.ParentID),
		c.Content, c.Anonymous, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("コメントの作成に失敗しました: %w", err)
	}
	return nil
}

// Update はコメント本文と匿名フラグを更新する。
func (r *PostgresCommentRepo) Update(ctx context.Context, c *model.Comment) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE comments SET content = $2, anonymous = $3, updated_at = $4 WHERE id = $1`,
		c.ID, c.Content, c.Anonymous, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("コメントの更新に失敗しました: %w", err)
	}
	return expectOneRow(result, "コメント", c.ID)
}

// Delete は指定IDのコメントを削除する。
func (r *PostgresCommentRepo) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM comments WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("コメントの削除に失敗しました: %w", err)
	}
	return expectOneRow(result, "コメント", id)
}

// ListByPost は投稿に直接付いたコメントを古い順に返す。
func (r *PostgresCommentRepo) ListByPost(ctx context.Context, postID string) ([]*model.Comment, error) {
	rows, err := r.db.QueryContext(ctx,
		commentSelect+` WHERE c.post_id = $1 AND c.parent_id IS NULL ORDER BY c.created_at ASC, c.id ASC`,
		postID,
	)
	if err != nil {
		return nil, fmt.Errorf("コメント一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	comments := []*model.Comment{}
	for rows.Next() {
		c, err := scanComment(rows)
		if err != nil {
			return nil, fmt.Errorf("コメント行の読み取りに失敗しました: %w", err)
		}
		comments = append(comments, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("コメント一覧の走査に失敗しました: %w", err)
	}
	return comments, nil
}

// ToggleReaction はコメントの評価を切り替える。
func (r *PostgresCommentRepo) ToggleReaction(ctx context.Context, commentID, accountID string, kind model.ReactionKind) (bool, error) {
	return toggleReaction(ctx, r.db, commentReactions, commentID, accountID, kind)
}

// optionalString はnilポインタをNULLとして扱う。
func optionalString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// compile-time interface check
var _ CommentRepository = (*PostgresCommentRepo)(nil)
