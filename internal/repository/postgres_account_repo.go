package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/hitoshi/campusconnect/internal/model"
)

// 一意制約違反を表すエラー。サービス層で409に変換する。
var (
	ErrDuplicateEmail    = errors.New("email already exists")
	ErrDuplicateUsername = errors.New("username already exists")
)

const accountColumns = `id, username, name, email, email_verified, password_hash, profile_pic, gender, follow_policy,
	email_verification_token, reset_password_token, reset_password_expires_at, created_at, updated_at`

// rowScanner は*sql.Rowと*sql.Rowsの共通インターフェース。
type rowScanner interface {
	Scan(dest ...any) error
}

// queryer は*sql.DBと*sql.Txの共通インターフェース。
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// PostgresAccountRepo はPostgreSQLを使用したアカウントリポジトリ。
type PostgresAccountRepo struct {
	db *sql.DB
}

// NewPostgresAccountRepo はPostgresAccountRepoを生成する。
func NewPostgresAccountRepo(db *sql.DB) *PostgresAccountRepo {
	return &PostgresAccountRepo{db: db}
}

func scanAccount(row rowScanner) (*model.Account, error) {
	a := &model.Account{}
	var verifyToken, resetToken sql.NullString
	var resetExpires sql.NullTime
	err := row.Scan(
		&a.ID, &a.Username, &a.Name, &a.Email, &a.EmailVerified, &a.PasswordHash,
		&a.ProfilePic, &a.Gender, &a.FollowPolicy,
		&verifyToken, &resetToken, &resetExpires, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	a.EmailVerificationToken = nullStringValue(verifyToken)
	a.ResetPasswordToken = nullStringValue(resetToken)
	if resetExpires.Valid {
		t := resetExpires.Time
		a.ResetPasswordExpiresAt = &t
	}
	return a, nil
}

// findOne は条件に一致するアカウントを1件取得する。見つからない場合はnilを返す。
func (r *PostgresAccountRepo) findOne(ctx context.Context, where string, args ...any) (*model.Account, error) {
	a, err := scanAccount(r.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE `+where,
		args...,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("アカウントの取得に失敗しました: %w", err)
	}
	return a, nil
}

// FindByID は指定IDのアカウントを取得する。見つからない場合はnilを返す。
func (r *PostgresAccountRepo) FindByID(ctx context.Context, id string) (*model.Account, error) {
	return r.findOne(ctx, `id = $1`, id)
}

// FindWithRelations は指定IDのアカウントを関係集合付きで取得する。
func (r *PostgresAccountRepo) FindWithRelations(ctx context.Context, id string) (*model.Account, error) {
	a, err := r.FindByID(ctx, id)
	if err != nil || a == nil {
		return a, err
	}
	rels, err := loadRelations(ctx, r.db, id)
	if err != nil {
		return nil, err
	}
	a.Relations = rels
	return a, nil
}

// FindByEmail はメールアドレスでアカウントを検索する。
func (r *PostgresAccountRepo) FindByEmail(ctx context.Context, email string) (*model.Account, error) {
	return r.findOne(ctx, `email = $1`, email)
}

// FindByUsername はユーザー名でアカウントを検索する。
func (r *PostgresAccountRepo) FindByUsername(ctx context.Context, username string) (*model.Account, error) {
	return r.findOne(ctx, `username = $1`, username)
}

// FindByVerificationToken はメール確認トークンでアカウントを検索する。
func (r *PostgresAccountRepo) FindByVerificationToken(ctx context.Context, token string) (*model.Account, error) {
	return r.findOne(ctx, `email_verification_token = $1`, token)
}

// FindByResetToken は有効期限内の再設定トークンでアカウントを検索する。
func (r *PostgresAccountRepo) FindByResetToken(ctx context.Context, token string, now time.Time) (*model.Account, error) {
	return r.findOne(ctx, `reset_password_token = $1 AND reset_password_expires_at > $2`, token, now)
}

// Create はアカウントを作成する。
func (r *PostgresAccountRepo) Create(ctx context.Context, a *model.Account) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO accounts (id, username, name, email, email_verified, password_hash, profile_pic, gender,
		                       follow_policy, email_verification_token, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		a.ID, a.Username, a.Name, a.Email, a.EmailVerified, a.PasswordHash, a.ProfilePic, string(a.Gender),
		string(a.FollowPolicy), nullString(a.EmailVerificationToken), a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		if dup := duplicateError(err); dup != nil {
			return dup
		}
		return fmt.Errorf("アカウントの作成に失敗しました: %w", err)
	}
	return nil
}

// UpdateProfile はプロフィール項目を更新する。
// ProfilePic と FollowPolicy は空の場合は変更しない。
func (r *PostgresAccountRepo) UpdateProfile(ctx context.Context, id string, u model.ProfileUpdate) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE accounts
		 SET username = $2, name = $3, email = $4, gender = $5,
		     profile_pic = COALESCE(NULLIF($6, ''), profile_pic),
		     follow_policy = COALESCE(NULLIF($7, ''), follow_policy),
		     updated_at = now()
		 WHERE id = $1`,
		id, u.Username, u.Name, u.Email, string(u.Gender), u.ProfilePic, string(u.FollowPolicy),
	)
	if err != nil {
		if dup := duplicateError(err); dup != nil {
			return dup
		}
		return fmt.Errorf("プロフィールの更新に失敗しました: %w", err)
	}
	return expectOneRow(result, "アカウント", id)
}

// MarkEmailVerified はメール確認済みにし、確認トークンを破棄する。
func (r *PostgresAccountRepo) MarkEmailVerified(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE accounts SET email_verified = true, email_verification_token = NULL, updated_at = now() WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("メール確認状態の更新に失敗しました: %w", err)
	}
	return expectOneRow(result, "アカウント", id)
}

// SetResetToken はパスワード再設定トークンと有効期限を保存する。
func (r *PostgresAccountRepo) SetResetToken(ctx context.Context, id, token string, expiresAt time.Time) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE accounts SET reset_password_token = $2, reset_password_expires_at = $3, updated_at = now() WHERE id = $1`,
		id, token, expiresAt,
	)
	if err != nil {
		return fmt.Errorf("再設定トークンの保存に失敗しました: %w", err)
	}
	return expectOneRow(result, "アカウント", id)
}

// UpdatePassword はパスワードハッシュを更新し、再設定トークンを破棄する。
func (r *PostgresAccountRepo) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE accounts
		 SET password_hash = $2, reset_password_token = NULL, reset_password_expires_at = NULL, updated_at = now()
		 WHERE id = $1`,
		id, passwordHash,
	)
	if err != nil {
		return fmt.Errorf("パスワードの更新に失敗しました: %w", err)
	}
	return expectOneRow(result, "アカウント", id)
}

// ClearExpiredResetTokens は期限切れの再設定トークンを破棄し、件数を返す。
func (r *PostgresAccountRepo) ClearExpiredResetTokens(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE accounts SET reset_password_token = NULL, reset_password_expires_at = NULL
		 WHERE reset_password_expires_at IS NOT NULL AND reset_password_expires_at <= $1`,
		before,
	)
	if err != nil {
		return 0, fmt.Errorf("期限切れ再設定トークンの削除に失敗しました: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("削除件数の取得に失敗しました: %w", err)
	}
	return n, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// SearchByUsername はユーザー名の部分一致で検索する。
func (r *PostgresAccountRepo) SearchByUsername(ctx context.Context, query string, limit int) ([]model.AccountSummary, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, username, name, profile_pic FROM accounts
		 WHERE username ILIKE '%' || $1 || '%'
		 ORDER BY username ASC
		 LIMIT $2`,
		likeEscaper.Replace(query), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("アカウントの検索に失敗しました: %w", err)
	}
	return scanSummaries(rows)
}

// Summaries は指定IDのアカウント要約を返す。
func (r *PostgresAccountRepo) Summaries(ctx context.Context, ids []string) (map[string]model.AccountSummary, error) {
	out := make(map[string]model.AccountSummary, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, username, name, profile_pic FROM accounts WHERE id = ANY($1::uuid[])`,
		pq.Array(ids),
	)
	if err != nil {
		return nil, fmt.Errorf("アカウント要約の取得に失敗しました: %w", err)
	}
	list, err := scanSummaries(rows)
	if err != nil {
		return nil, err
	}
	for _, s := range list {
		out[s.ID] = s
	}
	return out, nil
}

// ListRelated は関係集合を挿入順の要約一覧で返す。
func (r *PostgresAccountRepo) ListRelated(ctx context.Context, id string, key model.RelationKey) ([]model.AccountSummary, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT a.id, a.username, a.name, a.profile_pic
		 FROM account_relations rel
		 JOIN accounts a ON a.id = rel.peer_id
		 WHERE rel.account_id = $1 AND rel.kind = $2 AND rel.side = $3
		 ORDER BY rel.seq ASC`,
		id, string(key.Kind), string(key.Side),
	)
	if err != nil {
		return nil, fmt.Errorf("関係一覧の取得に失敗しました: %w", err)
	}
	return scanSummaries(rows)
}

// UpdatePair は2アカウントを行ロック付きで読み込み、fnの変更差分を同一トランザクションで書き込む。
func (r *PostgresAccountRepo) UpdatePair(ctx context.Context, actorID, targetID string, fn PairMutator) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("トランザクションの開始に失敗しました: %w", err)
	}
	defer tx.Rollback()

	// デッドロック回避のため常にID昇順でロックする
	ids := []string{actorID}
	if targetID != actorID {
		ids = append(ids, targetID)
	}
	sort.Strings(ids)

	locked := make(map[string]*model.Account, len(ids))
	before := make(map[string]model.Relations, len(ids))
	for _, id := range ids {
		a, err := lockAccount(ctx, tx, id)
		if err != nil {
			return err
		}
		locked[id] = a
		if a != nil {
			before[id] = a.Relations.Clone()
		}
	}

	if err := fn(locked[actorID], locked[targetID]); err != nil {
		return err
	}

	for _, id := range ids {
		if a := locked[id]; a != nil {
			if err := writeRelationDiff(ctx, tx, a, before[id]); err != nil {
				return err
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("トランザクションのコミットに失敗しました: %w", err)
	}
	return nil
}

// lockAccount はアカウント行をFOR UPDATEで取得し、関係集合を読み込む。見つからない場合はnilを返す。
func lockAccount(ctx context.Context, tx *sql.Tx, id string) (*model.Account, error) {
	a, err := scanAccount(tx.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = $1 FOR UPDATE`,
		id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("アカウントのロックに失敗しました: %w", err)
	}
	rels, err := loadRelations(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	a.Relations = rels
	return a, nil
}

// loadRelations はアカウントの全関係集合を挿入順で読み込む。
func loadRelations(ctx context.Context, q queryer, id string) (model.Relations, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT kind, side, peer_id FROM account_relations WHERE account_id = $1 ORDER BY seq ASC`,
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("関係集合の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	rels := make(model.Relations)
	for rows.Next() {
		var kind, side, peer string
		if err := rows.Scan(&kind, &side, &peer); err != nil {
			return nil, fmt.Errorf("関係行の読み取りに失敗しました: %w", err)
		}
		key := model.RelationKey{Kind: model.RelationKind(kind), Side: model.RelationSide(side)}
		set, ok := rels[key]
		if !ok {
			set = model.NewIDSet()
			rels[key] = set
		}
		set.Add(peer)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("関係集合の走査に失敗しました: %w", err)
	}
	return rels, nil
}

// writeRelationDiff は読み込み時点からの関係集合の差分を書き込む。
func writeRelationDiff(ctx context.Context, q queryer, a *model.Account, before model.Relations) error {
	added, removed := model.DiffRelations(before, a.Relations)
	if len(added) == 0 && len(removed) == 0 {
		return nil
	}

	for _, c := range removed {
		_, err := q.ExecContext(ctx,
			`DELETE FROM account_relations WHERE account_id = $1 AND kind = $2 AND side = $3 AND peer_id = $4`,
			a.ID, string(c.Key.Kind), string(c.Key.Side), c.PeerID,
		)
		if err != nil {
			return fmt.Errorf("関係の削除に失敗しました (%s): %w", c.Key, err)
		}
	}
	for _, c := range added {
		_, err := q.ExecContext(ctx,
			`INSERT INTO account_relations (account_id, kind, side, peer_id) VALUES ($1, $2, $3, $4)`,
			a.ID, string(c.Key.Kind), string(c.Key.Side), c.PeerID,
		)
		if err != nil {
			return fmt.Errorf("関係の追加に失敗しました (%s): %w", c.Key, err)
		}
	}

	if _, err := q.ExecContext(ctx, `UPDATE accounts SET updated_at = now() WHERE id = $1`, a.ID); err != nil {
		return fmt.Errorf("アカウント更新日時の更新に失敗しました: %w", err)
	}
	return nil
}

func scanSummaries(rows *sql.Rows) ([]model.AccountSummary, error) {
	defer rows.Close()

	list := []model.AccountSummary{}
	for rows.Next() {
		var s model.AccountSummary
		if err := rows.Scan(&s.ID, &s.Username, &s.Name, &s.ProfilePic); err != nil {
			return nil, fmt.Errorf("アカウント要約の読み取りに失敗しました: %w", err)
		}
		list = append(list, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("アカウント要約の走査に失敗しました: %w", err)
	}
	return list, nil
}

// duplicateError は一意制約違反を対応するエラーに変換する。該当しない場合はnilを返す。
func duplicateError(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || pqErr.Code != "23505" {
		return nil
	}
	switch {
	case strings.Contains(pqErr.Constraint, "email"):
		return ErrDuplicateEmail
	case strings.Contains(pqErr.Constraint, "username"):
		return ErrDuplicateUsername
	}
	return nil
}

// expectOneRow は更新対象が存在したことを確認する。
func expectOneRow(result sql.Result, resource, id string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("更新結果の取得に失敗しました: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%sが見つかりません: %s", resource, id)
	}
	return nil
}

// nullString は空文字列をNULLとして扱うsql.NullStringを返す。
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// nullStringValue はsql.NullStringから文字列を取得する。
func nullStringValue(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}

// compile-time interface check
var _ AccountRepository = (*PostgresAccountRepo)(nil)
