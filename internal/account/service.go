// Package account はプロフィールの参照・更新、ユーザー検索、プロフィール画像のアップロードを扱う。
package account

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/mail"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/hitoshi/campusconnect/internal/model"
	"github.com/hitoshi/campusconnect/internal/repository"
)

const searchLimit = 50

// allowedImageTypes は受け付ける画像形式と保存時の拡張子。
var allowedImageTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// Profile はプロフィール画面の表示内容。
// Email は本人の参照時のみ設定される。
type Profile struct {
	ID           string
	Username     string
	Name         string
	Email        string
	ProfilePic   string
	Gender       model.Gender
	FollowPolicy model.FollowPolicy
	Posts        []*model.Post
	Followers    []model.AccountSummary
	Following    []model.AccountSummary
}

// Service はプロフィールのサービス層。
type Service struct {
	accounts repository.AccountRepository
	posts    repository.PostRepository
	pictures PictureStore
}

// NewService はServiceを生成する。
func NewService(accounts repository.AccountRepository, posts repository.PostRepository, pictures PictureStore) *Service {
	return &Service{accounts: accounts, posts: posts, pictures: pictures}
}

// GetProfile は公開プロフィールを返す。
func (s *Service) GetProfile(ctx context.Context, id string) (*Profile, error) {
	return s.profile(ctx, id, false)
}

// GetSelfProfile は本人用のプロフィールを返す。
func (s *Service) GetSelfProfile(ctx context.Context, actorID string) (*Profile, error) {
	p, err := s.profile(ctx, actorID, true)
	var apiErr *model.APIError
	if errors.As(err, &apiErr) && apiErr.Code == model.ErrCodeAccountNotFound {
		return nil, model.NewActorNotFoundError(actorID)
	}
	return p, err
}

func (s *Service) profile(ctx context.Context, id string, self bool) (*Profile, error) {
	acct, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if acct == nil {
		return nil, model.NewAccountNotFoundError(id)
	}

	posts, err := s.posts.ListByAuthor(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("投稿一覧の取得に失敗しました: %w", err)
	}
	followers, err := s.accounts.ListRelated(ctx, id, model.Followers)
	if err != nil {
		return nil, fmt.Errorf("フォロワー一覧の取得に失敗しました: %w", err)
	}
	following, err := s.accounts.ListRelated(ctx, id, model.Following)
	if err != nil {
		return nil, fmt.Errorf("フォロー一覧の取得に失敗しました: %w", err)
	}

	p := &Profile{
		ID:           acct.ID,
		Username:     acct.Username,
		Name:         acct.Name,
		ProfilePic:   acct.ProfilePic,
		Gender:       acct.Gender,
		FollowPolicy: acct.FollowPolicy,
		Posts:        posts,
		Followers:    followers,
		Following:    following,
	}
	if self {
		p.Email = acct.Email
	}
	return p, nil
}

// UpdateProfile は本人のプロフィールを更新し、更新後のアカウントを返す。
// username, name, email, gender は必須。ProfilePic と FollowPolicy は空なら変更しない。
func (s *Service) UpdateProfile(ctx context.Context, actorID string, u model.ProfileUpdate) (*model.Account, error) {
	u.Username = strings.TrimSpace(u.Username)
	u.Name = strings.TrimSpace(u.Name)
	u.Email = strings.TrimSpace(u.Email)
	if err := validateUpdate(u); err != nil {
		return nil, err
	}

	acct, err := s.find(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if acct == nil {
		return nil, model.NewActorNotFoundError(actorID)
	}

	if acct.Email != u.Email {
		other, err := s.accounts.FindByEmail(ctx, u.Email)
		if err != nil {
			return nil, fmt.Errorf("メールアドレスの確認に失敗しました: %w", err)
		}
		if other != nil && other.ID != acct.ID {
			return nil, model.NewEmailTakenError()
		}
	}
	if acct.Username != u.Username {
		other, err := s.accounts.FindByUsername(ctx, u.Username)
		if err != nil {
			return nil, fmt.Errorf("ユーザー名の確認に失敗しました: %w", err)
		}
		if other != nil && other.ID != acct.ID {
			return nil, model.NewUsernameTakenError()
		}
	}

	if err := s.accounts.UpdateProfile(ctx, actorID, u); err != nil {
		switch {
		case errors.Is(err, repository.ErrDuplicateEmail):
			return nil, model.NewEmailTakenError()
		case errors.Is(err, repository.ErrDuplicateUsername):
			return nil, model.NewUsernameTakenError()
		}
		return nil, fmt.Errorf("プロフィールの更新に失敗しました: %w", err)
	}

	acct.Username, acct.Name, acct.Email, acct.Gender = u.Username, u.Name, u.Email, u.Gender
	if u.ProfilePic != "" {
		acct.ProfilePic = u.ProfilePic
	}
	if u.FollowPolicy != "" {
		acct.FollowPolicy = u.FollowPolicy
	}
	return acct, nil
}

// Search はユーザー名の部分一致でアカウントを検索する。
func (s *Service) Search(ctx context.Context, query string) ([]model.AccountSummary, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, model.NewValidationError("Username is required")
	}
	list, err := s.accounts.SearchByUsername(ctx, query, searchLimit)
	if err != nil {
		return nil, fmt.Errorf("ユーザー検索に失敗しました: %w", err)
	}
	return list, nil
}

// UploadProfilePic は画像を保存し、本人のプロフィール画像として設定する。
// 画像形式は先頭バイトから判定し、ファイル名はUUIDで採番する。
func (s *Service) UploadProfilePic(ctx context.Context, actorID string, r io.Reader) (string, error) {
	acct, err := s.find(ctx, actorID)
	if err != nil {
		return "", err
	}
	if acct == nil {
		return "", model.NewActorNotFoundError(actorID)
	}

	br := bufio.NewReaderSize(r, 512)
	head, err := br.Peek(512)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return "", fmt.Errorf("画像の読み込みに失敗しました: %w", err)
	}
	if len(head) == 0 {
		return "", model.NewValidationError("Profile picture is required")
	}
	ext, ok := allowedImageTypes[http.DetectContentType(head)]
	if !ok {
		return "", model.NewValidationError("Only JPEG, PNG, GIF and WebP images are allowed")
	}

	name := uuid.NewString() + ext
	if err := s.pictures.Save(ctx, name, br); err != nil {
		return "", fmt.Errorf("プロフィール画像の保存に失敗しました: %w", err)
	}

	update := model.ProfileUpdate{
		Username:   acct.Username,
		Name:       acct.Name,
		Email:      acct.Email,
		Gender:     acct.Gender,
		ProfilePic: name,
	}
	if err := s.accounts.UpdateProfile(ctx, actorID, update); err != nil {
		return "", fmt.Errorf("プロフィール画像の設定に失敗しました: %w", err)
	}
	return name, nil
}

func (s *Service) find(ctx context.Context, id string) (*model.Account, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, nil
	}
	acct, err := s.accounts.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("アカウントの取得に失敗しました: %w", err)
	}
	return acct, nil
}

func validateUpdate(u model.ProfileUpdate) error {
	if u.Username == "" || u.Name == "" || u.Email == "" || u.Gender == "" {
		return model.NewValidationError("Username, name, email, and gender are required")
	}
	if _, err := mail.ParseAddress(u.Email); err != nil {
		return model.NewValidationError("Email is invalid")
	}
	if !u.Gender.Valid() {
		return model.NewValidationError("Gender must be Male or Female")
	}
	if u.FollowPolicy != "" && !u.FollowPolicy.Valid() {
		return model.NewValidationError("Follow policy must be open or approval")
	}
	if u.ProfilePic != "" && (u.ProfilePic != filepath.Base(u.ProfilePic) || strings.HasPrefix(u.ProfilePic, ".")) {
		return model.NewValidationError("Profile picture must be a file name")
	}
	return nil
}
