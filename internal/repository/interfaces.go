// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/hitoshi/campusconnect/internal/model"
)

// PairMutator は2アカウントの関係集合を同一トランザクション内で変更する関数。
// アカウントが存在しない場合は対応する引数にnilが渡される。
// エラーを返すとトランザクションはロールバックされ、そのエラーがそのまま呼び出し元に返る。
type PairMutator func(actor, target *model.Account) error

// AccountRepository はアカウントと関係集合の永続化インターフェース。
type AccountRepository interface {
	// FindByID は指定IDのアカウントを取得する。関係集合は読み込まない。
	// 見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Account, error)

	// FindWithRelations は指定IDのアカウントを関係集合付きで取得する。見つからない場合はnilを返す。
	FindWithRelations(ctx context.Context, id string) (*model.Account, error)

	// FindByEmail はメールアドレスでアカウントを検索する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.Account, error)

	// FindByUsername はユーザー名でアカウントを検索する。見つからない場合はnilを返す。
	FindByUsername(ctx context.Context, username string) (*model.Account, error)

	// FindByVerificationToken はメール確認トークンでアカウントを検索する。見つからない場合はnilを返す。
	FindByVerificationToken(ctx context.Context, token string) (*model.Account, error)

	// FindByResetToken は有効期限内のパスワード再設定トークンでアカウントを検索する。
	// 見つからない場合や期限切れの場合はnilを返す。
	FindByResetToken(ctx context.Context, token string, now time.Time) (*model.Account, error)

	// Create はアカウントを作成する。
	Create(ctx context.Context, account *model.Account) error

	// UpdateProfile はプロフィール項目を更新する。
	UpdateProfile(ctx context.Context, id string, update model.ProfileUpdate) error

	// MarkEmailVerified はメール確認済みにし、確認トークンを破棄する。
	MarkEmailVerified(ctx context.Context, id string) error

	// SetResetToken はパスワード再設定トークンと有効期限を保存する。
	SetResetToken(ctx context.Context, id, token string, expiresAt time.Time) error

	// UpdatePassword はパスワードハッシュを更新し、再設定トークンを破棄する。
	UpdatePassword(ctx context.Context, id, passwordHash string) error

	// ClearExpiredResetTokens は期限切れの再設定トークンを破棄し、件数を返す。
	ClearExpiredResetTokens(ctx context.Context, before time.Time) (int64, error)

	// SearchByUsername はユーザー名の部分一致（大文字小文字を区別しない）で検索する。
	SearchByUsername(ctx context.Context, query string, limit int) ([]model.AccountSummary, error)

	// Summaries は指定IDのアカウント要約を返す。存在しないIDは結果に含まれない。
	Summaries(ctx context.Context, ids []string) (map[string]model.AccountSummary, error)

	// ListRelated は指定アカウントの関係集合を挿入順の要約一覧で返す。
	ListRelated(ctx context.Context, id string, key model.RelationKey) ([]model.AccountSummary, error)

	// UpdatePair は2アカウントを行ロック付きで読み込み、fnで変更した関係集合の差分を
	// 同一トランザクションで書き込む。ロックはID順に取得する。
	UpdatePair(ctx context.Context, actorID, targetID string, fn PairMutator) error
}

// PostRepository は投稿データの永続化インターフェース。
type PostRepository interface {
	// FindByID は指定IDの投稿を評価付きで取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Post, error)

	// Create は投稿を作成する。
	Create(ctx context.Context, post *model.Post) error

	// Update は投稿のタイトル・本文・匿名フラグを更新する。
	Update(ctx context.Context, post *model.Post) error

	// Delete は指定IDの投稿を削除する。評価とコメントはCASCADE削除される。
	Delete(ctx context.Context, id string) error

	// ListByAuthor は投稿者の匿名でない投稿を新しい順に返す。
	ListByAuthor(ctx context.Context, authorID string) ([]*model.Post, error)

	// ListByAuthors は指定投稿者群の匿名でない投稿を created_at 降順、id 降順で返す。
	ListByAuthors(ctx context.Context, authorIDs []string) ([]*model.Post, error)

	// ToggleReaction は評価を切り替える。同じ種類の評価が既にあれば取り消し、
	// なければ設定する（反対の評価は置き換えられる）。設定された場合はtrueを返す。
	ToggleReaction(ctx context.Context, postID, accountID string, kind model.ReactionKind) (bool, error)
}

// CommentRepository はコメントデータの永続化インターフェース。
type CommentRepository interface {
	// FindByID は指定IDのコメントを返信ID・評価付きで取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Comment, error)

	// Create はコメントを作成する。
	Create(ctx context.Context, comment *model.Comment) error

	// Update はコメント本文と匿名フラグを更新する。
	Update(ctx context.Context, comment *model.Comment) error

	// Delete は指定IDのコメントを削除する。返信と評価はCASCADE削除される。
	Delete(ctx context.Context, id string) error

	// ListByPost は投稿に直接付いたコメントを古い順に返す。
	ListByPost(ctx context.Context, postID string) ([]*model.Comment, error)

	// ToggleReaction はPostRepository.ToggleReactionと同じ規則でコメントの評価を切り替える。
	ToggleReaction(ctx context.Context, commentID, accountID string, kind model.ReactionKind) (bool, error)
}

// MessageRepository はダイレクトメッセージの永続化インターフェース。
type MessageRepository interface {
	// Create はメッセージを保存する。
	Create(ctx context.Context, msg *model.Message) error

	// ListConversation は2アカウント間のメッセージを古い順に返す。
	ListConversation(ctx context.Context, a, b string) ([]*model.Message, error)
}

// TxBeginner はトランザクション開始用のインターフェース。
type TxBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}
