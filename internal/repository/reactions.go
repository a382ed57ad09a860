package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/campusconnect/internal/model"
)

// reactionTable は評価テーブルの名前と対象IDカラム。
type reactionTable struct {
	table    string
	targetID string
}

var (
	postReactions    = reactionTable{table: "post_reactions", targetID: "post_id"}
	commentReactions = reactionTable{table: "comment_reactions", targetID: "comment_id"}
)

// toggleReaction は評価を切り替える。同じ種類が既に付いていれば取り消し、
// そうでなければ設定する。反対の評価は主キーの一意性により置き換えられる。
func toggleReaction(ctx context.Context, db TxBeginner, rt reactionTable, targetID, accountID string, kind model.ReactionKind) (bool, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("トランザクションの開始に失敗しました: %w", err)
	}
	defer tx.Rollback()

	var current string
	err = tx.QueryRowContext(ctx,
		`SELECT kind FROM `+rt.table+` WHERE `+rt.targetID+` = $1 AND account_id = $2 FOR UPDATE`,
		targetID, accountID,
	).Scan(&current)
	if err != nil && err != sql.ErrNoRows {
		return false, fmt.Errorf("評価の取得に失敗しました: %w", err)
	}

	active := current != string(kind)
	if active {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO `+rt.table+` (`+rt.targetID+`, account_id, kind) VALUES ($1, $2, $3)
			 ON CONFLICT (`+rt.targetID+`, account_id) DO UPDATE SET kind = EXCLUDED.kind, created_at = now()`,
			targetID, accountID, string(kind),
		)
	} else {
		_, err = tx.ExecContext(ctx,
			`DELETE FROM `+rt.table+` WHERE `+rt.targetID+` = $1 AND account_id = $2`,
			targetID, accountID,
		)
	}
	if err != nil {
		return false, fmt.Errorf("評価の更新に失敗しました: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("トランザクションのコミットに失敗しました: %w", err)
	}
	return active, nil
}
