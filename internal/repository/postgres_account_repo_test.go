package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"

	"github.com/hitoshi/campusconnect/internal/model"
)

var accountColumnNames = []string{
	"id", "username", "name", "email", "email_verified", "password_hash", "profile_pic", "gender", "follow_policy",
	"email_verification_token", "reset_password_token", "reset_password_expires_at", "created_at", "updated_at",
}

func accountRows(ids ...string) *sqlmock.Rows {
	rows := sqlmock.NewRows(accountColumnNames)
	now := time.Now()
	for _, id := range ids {
		rows.AddRow(id, "user-"+id, "User "+id, id+"@example.com", true, "hash", "default.jpg", "Male", "open",
			nil, nil, nil, now, now)
	}
	return rows
}

func relationRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"kind", "side", "peer_id"})
}

func newMockAccountRepo(t *testing.T) (*PostgresAccountRepo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewPostgresAccountRepo(db), mock
}

var (
	lockQuery      = regexp.QuoteMeta(`FROM accounts WHERE id = $1 FOR UPDATE`)
	relationsQuery = regexp.QuoteMeta(`SELECT kind, side, peer_id FROM account_relations`)
	insertRelation = regexp.QuoteMeta(`INSERT INTO account_relations`)
	deleteRelation = regexp.QuoteMeta(`DELETE FROM account_relations`)
	touchAccount   = regexp.QuoteMeta(`UPDATE accounts SET updated_at = now()`)
)

func TestPostgresAccountRepo_FindByID_NotFoundReturnsNil(t *testing.T) {
	repo, mock := newMockAccountRepo(t)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM accounts WHERE id = $1`)).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(accountColumnNames))

	got, err := repo.FindByID(context.Background(), "missing")
	if err != nil {
		t.Fatalf("FindByID returned error: %v", err)
	}
	if got != nil {
		t.Errorf("FindByID = %+v, want nil", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestPostgresAccountRepo_FindWithRelations_LoadsSetsInOrder(t *testing.T) {
	repo, mock := newMockAccountRepo(t)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM accounts WHERE id = $1`)).
		WithArgs("a").
		WillReturnRows(accountRows("a"))
	mock.ExpectQuery(relationsQuery).
		WithArgs("a").
		WillReturnRows(relationRows().
			AddRow("follow", "incoming", "x").
			AddRow("follow", "incoming", "y").
			AddRow("block", "outgoing", "z"))

	got, err := repo.FindWithRelations(context.Background(), "a")
	if err != nil {
		t.Fatalf("FindWithRelations returned error: %v", err)
	}
	if ids := got.Relations[model.Followers].IDs(); len(ids) != 2 || ids[0] != "x" || ids[1] != "y" {
		t.Errorf("followers = %v, want [x y]", ids)
	}
	if !got.Relations[model.Blocked].Has("z") {
		t.Error("blocked set should contain z")
	}
	if got.Gender != model.GenderMale || got.FollowPolicy != model.FollowPolicyOpen {
		t.Errorf("enum fields not scanned: gender=%q policy=%q", got.Gender, got.FollowPolicy)
	}
}

func TestPostgresAccountRepo_UpdatePair_WritesDiffOfBothAccounts(t *testing.T) {
	repo, mock := newMockAccountRepo(t)

	mock.ExpectBegin()
	// ロックはID昇順: "a" -> "b"
	mock.ExpectQuery(lockQuery).WithArgs("a").WillReturnRows(accountRows("a"))
	mock.ExpectQuery(relationsQuery).WithArgs("a").WillReturnRows(relationRows().
		AddRow("follow", "pending", "b"))
	mock.ExpectQuery(lockQuery).WithArgs("b").WillReturnRows(accountRows("b"))
	mock.ExpectQuery(relationsQuery).WithArgs("b").WillReturnRows(relationRows())

	mock.ExpectExec(deleteRelation).
		WithArgs("a", "follow", "pending", "b").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(insertRelation).
		WithArgs("a", "follow", "incoming", "b").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(touchAccount).WithArgs("a").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(insertRelation).
		WithArgs("b", "follow", "outgoing", "a").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(touchAccount).WithArgs("b").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	// "b" の承認待ちリクエストを "a" が承認する
	err := repo.UpdatePair(context.Background(), "b", "a", func(actor, target *model.Account) error {
		if actor == nil || target == nil {
			t.Fatal("both accounts should be loaded")
		}
		target.Set(model.FollowRequests).Remove("b")
		target.Set(model.Followers).Add("b")
		actor.Set(model.Following).Add("a")
		return nil
	})
	if err != nil {
		t.Fatalf("UpdatePair returned error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestPostgresAccountRepo_UpdatePair_RollsBackOnMutatorError(t *testing.T) {
	repo, mock := newMockAccountRepo(t)

	mock.ExpectBegin()
	mock.ExpectQuery(lockQuery).WithArgs("a").WillReturnRows(accountRows("a"))
	mock.ExpectQuery(relationsQuery).WithArgs("a").WillReturnRows(relationRows())
	mock.ExpectQuery(lockQuery).WithArgs("b").WillReturnRows(accountRows("b"))
	mock.ExpectQuery(relationsQuery).WithArgs("b").WillReturnRows(relationRows())
	mock.ExpectRollback()

	wantErr := model.NewAlreadyFollowingError()
	err := repo.UpdatePair(context.Background(), "a", "b", func(actor, target *model.Account) error {
		actor.Set(model.Following).Add("b")
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("UpdatePair error = %v, want %v", err, wantErr)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestPostgresAccountRepo_UpdatePair_MissingAccountPassedAsNil(t *testing.T) {
	repo, mock := newMockAccountRepo(t)

	mock.ExpectBegin()
	mock.ExpectQuery(lockQuery).WithArgs("a").WillReturnRows(accountRows("a"))
	mock.ExpectQuery(relationsQuery).WithArgs("a").WillReturnRows(relationRows())
	mock.ExpectQuery(lockQuery).WithArgs("z").WillReturnRows(sqlmock.NewRows(accountColumnNames))
	mock.ExpectRollback()

	var gotTarget *model.Account
	called := false
	err := repo.UpdatePair(context.Background(), "a", "z", func(actor, target *model.Account) error {
		called = true
		gotTarget = target
		return model.NewAccountNotFoundError("z")
	})
	if err == nil {
		t.Fatal("expected error from mutator")
	}
	if !called || gotTarget != nil {
		t.Errorf("mutator called=%v target=%v, want called with nil target", called, gotTarget)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestPostgresAccountRepo_UpdatePair_WriteFailureRollsBack(t *testing.T) {
	repo, mock := newMockAccountRepo(t)

	mock.ExpectBegin()
	mock.ExpectQuery(lockQuery).WithArgs("a").WillReturnRows(accountRows("a"))
	mock.ExpectQuery(relationsQuery).WithArgs("a").WillReturnRows(relationRows())
	mock.ExpectQuery(lockQuery).WithArgs("b").WillReturnRows(accountRows("b"))
	mock.ExpectQuery(relationsQuery).WithArgs("b").WillReturnRows(relationRows())
	mock.ExpectExec(insertRelation).WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	err := repo.UpdatePair(context.Background(), "a", "b", func(actor, target *model.Account) error {
		actor.Set(model.Following).Add("b")
		target.Set(model.Followers).Add("a")
		return nil
	})
	if err == nil {
		t.Fatal("expected write error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestPostgresAccountRepo_Create_MapsUniqueViolation(t *testing.T) {
	tests := []struct {
		constraint string
		want       error
	}{
		{"idx_accounts_email", ErrDuplicateEmail},
		{"idx_accounts_username", ErrDuplicateUsername},
	}

	for _, tt := range tests {
		t.Run(tt.constraint, func(t *testing.T) {
			repo, mock := newMockAccountRepo(t)
			mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO accounts`)).
				WillReturnError(&pq.Error{Code: "23505", Constraint: tt.constraint})

			err := repo.Create(context.Background(), &model.Account{ID: "a", Gender: model.GenderFemale})
			if !errors.Is(err, tt.want) {
				t.Errorf("Create error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestPostgresAccountRepo_SearchByUsername_EscapesWildcards(t *testing.T) {
	repo, mock := newMockAccountRepo(t)

	mock.ExpectQuery(regexp.QuoteMeta(`WHERE username ILIKE`)).
		WithArgs(`a\%b\_c`, 20).
		WillReturnRows(sqlmock.NewRows([]string{"id", "username", "name", "profile_pic"}).
			AddRow("1", "a%b_cd", "Name", "default.jpg"))

	got, err := repo.SearchByUsername(context.Background(), "a%b_c", 20)
	if err != nil {
		t.Fatalf("SearchByUsername returned error: %v", err)
	}
	if len(got) != 1 || got[0].Username != "a%b_cd" {
		t.Errorf("SearchByUsername = %+v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestPostgresAccountRepo_Summaries_EmptyInputSkipsQuery(t *testing.T) {
	repo, mock := newMockAccountRepo(t)

	got, err := repo.Summaries(context.Background(), nil)
	if err != nil {
		t.Fatalf("Summaries returned error: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Summaries = %v, want empty", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestPostgresAccountRepo_ListRelated_UsesKindAndSide(t *testing.T) {
	repo, mock := newMockAccountRepo(t)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM account_relations rel`)).
		WithArgs("a", "scratch", "incoming").
		WillReturnRows(sqlmock.NewRows([]string{"id", "username", "name", "profile_pic"}).
			AddRow("b", "bob", "Bob", "default.jpg"))

	got, err := repo.ListRelated(context.Background(), "a", model.Scratchers)
	if err != nil {
		t.Fatalf("ListRelated returned error: %v", err)
	}
	if len(got) != 1 || got[0].ID != "b" {
		t.Errorf("ListRelated = %+v", got)
	}
}

func TestPostgresAccountRepo_ClearExpiredResetTokens(t *testing.T) {
	repo, mock := newMockAccountRepo(t)
	cutoff := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectExec(regexp.QuoteMeta(`SET reset_password_token = NULL`)).
		WithArgs(cutoff).
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := repo.ClearExpiredResetTokens(context.Background(), cutoff)
	if err != nil {
		t.Fatalf("ClearExpiredResetTokens returned error: %v", err)
	}
	if n != 3 {
		t.Errorf("cleared = %d, want 3", n)
	}
}

func TestPostgresAccountRepo_UpdateProfile_NotFound(t *testing.T) {
	repo, mock := newMockAccountRepo(t)

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE accounts`)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateProfile(context.Background(), "missing", model.ProfileUpdate{Username: "u"})
	if err == nil {
		t.Error("expected error when no row is updated")
	}
}
