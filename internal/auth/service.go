// Package auth はメールアドレスとパスワードによる認証、メール確認、パスワード再設定を提供する。
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/hitoshi/campusconnect/internal/model"
	"github.com/hitoshi/campusconnect/internal/repository"
)

const (
	verificationTokenBytes = 32
	resetTokenBytes        = 20
	minPasswordLength      = 6
	maxPasswordLength      = 72
)

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	BaseURL       string        // メール内リンクの基点
	ResetTokenTTL time.Duration // 再設定トークンの有効期間
	BcryptCost    int
}

// RegisterInput はアカウント登録の入力。
type RegisterInput struct {
	Username string
	Name     string
	Email    string
	Password string
	Gender   model.Gender
}

// LoginResult はログイン成功時に返すアクセストークン。
type LoginResult struct {
	Token     string
	ExpiresAt time.Time
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	accounts repository.AccountRepository
	tokens   *TokenIssuer
	mailer   Mailer
	config   ServiceConfig
	now      func() time.Time
}

// NewService はServiceを生成する。
func NewService(
	accounts repository.AccountRepository,
	tokens *TokenIssuer,
	mailer Mailer,
	config ServiceConfig,
) *Service {
	if config.ResetTokenTTL <= 0 {
		config.ResetTokenTTL = time.Hour
	}
	if config.BcryptCost == 0 {
		config.BcryptCost = bcrypt.DefaultCost
	}
	return &Service{
		accounts: accounts,
		tokens:   tokens,
		mailer:   mailer,
		config:   config,
		now:      time.Now,
	}
}

// Register はアカウントを作成し、確認メールを送る。
// 作成直後のアカウントはメール未確認のためログインできない。
func (s *Service) Register(ctx context.Context, in RegisterInput) (*model.Account, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.TrimSpace(in.Email)

	if err := validateRegister(in); err != nil {
		return nil, err
	}

	if existing, err := s.accounts.FindByEmail(ctx, in.Email); err != nil {
		return nil, fmt.Errorf("メールアドレスの確認に失敗しました: %w", err)
	} else if existing != nil {
		return nil, model.NewEmailTakenError()
	}
	if existing, err := s.accounts.FindByUsername(ctx, in.Username); err != nil {
		return nil, fmt.Errorf("ユーザー名の確認に失敗しました: %w", err)
	} else if existing != nil {
		return nil, model.NewUsernameTakenError()
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.config.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("パスワードのハッシュ化に失敗しました: %w", err)
	}
	token, err := randomToken(verificationTokenBytes)
	if err != nil {
		return nil, fmt.Errorf("確認トークンの生成に失敗しました: %w", err)
	}

	now := s.now().UTC()
	account := &model.Account{
		ID:                     uuid.NewString(),
		Username:               in.Username,
		Name:                   in.Name,
		Email:                  in.Email,
		PasswordHash:           string(hash),
		ProfilePic:             model.DefaultProfilePic,
		Gender:                 in.Gender,
		FollowPolicy:           model.FollowPolicyOpen,
		EmailVerificationToken: token,
		CreatedAt:              now,
		UpdatedAt:              now,
	}
	if err := s.accounts.Create(ctx, account); err != nil {
		switch {
		case errors.Is(err, repository.ErrDuplicateEmail):
			return nil, model.NewEmailTakenError()
		case errors.Is(err, repository.ErrDuplicateUsername):
			return nil, model.NewUsernameTakenError()
		}
		return nil, fmt.Errorf("アカウントの作成に失敗しました: %w", err)
	}

	link := fmt.Sprintf("%s/api/auth/verify-email/%s", strings.TrimRight(s.config.BaseURL, "/"), token)
	body := fmt.Sprintf("Here is the link to verify your email for CampusConnect: %s\n\n"+
		"If the link does not open, copy it into your browser.\n\nRegards,\nTeam CampusConnect", link)
	if err := s.mailer.Send(ctx, account.Email, "Verify Your Email", body); err != nil {
		return nil, fmt.Errorf("確認メールの送信に失敗しました: %w", err)
	}

	slog.Info("account registered", slog.String("user_id", account.ID))
	return account, nil
}

// VerifyEmail は確認トークンに対応するアカウントをメール確認済みにする。
func (s *Service) VerifyEmail(ctx context.Context, token string) error {
	if token == "" {
		return model.NewInvalidTokenError()
	}
	account, err := s.accounts.FindByVerificationToken(ctx, token)
	if err != nil {
		return fmt.Errorf("確認トークンの検索に失敗しました: %w", err)
	}
	if account == nil {
		return model.NewInvalidTokenError()
	}
	if err := s.accounts.MarkEmailVerified(ctx, account.ID); err != nil {
		return fmt.Errorf("メール確認状態の更新に失敗しました: %w", err)
	}
	return nil
}

// Login は認証情報を検証し、アクセストークンを発行する。
func (s *Service) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, model.NewValidationError("Email and password are required")
	}

	account, err := s.accounts.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("アカウントの取得に失敗しました: %w", err)
	}
	if account == nil {
		return nil, model.NewAccountNotFoundError(email)
	}
	if !account.EmailVerified {
		return nil, model.NewEmailNotVerifiedError()
	}
	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		return nil, model.NewInvalidCredentialsError()
	}

	token, expiresAt, err := s.tokens.Issue(account.ID)
	if err != nil {
		return nil, err
	}
	return &LoginResult{Token: token, ExpiresAt: expiresAt}, nil
}

// ForgotPassword は再設定トークンを発行し、再設定リンクをメールで送る。
func (s *Service) ForgotPassword(ctx context.Context, email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return model.NewValidationError("Email is required")
	}

	account, err := s.accounts.FindByEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("アカウントの取得に失敗しました: %w", err)
	}
	if account == nil {
		return model.NewAccountNotFoundError(email)
	}

	token, err := randomToken(resetTokenBytes)
	if err != nil {
		return fmt.Errorf("再設定トークンの生成に失敗しました: %w", err)
	}
	expiresAt := s.now().Add(s.config.ResetTokenTTL)
	if err := s.accounts.SetResetToken(ctx, account.ID, token, expiresAt); err != nil {
		return fmt.Errorf("再設定トークンの保存に失敗しました: %w", err)
	}

	link := fmt.Sprintf("%s/reset-password/%s", strings.TrimRight(s.config.BaseURL, "/"), token)
	body := fmt.Sprintf("You are receiving this email because a password reset was requested for your account.\n\n"+
		"Open the following link to choose a new password:\n%s\n\n"+
		"If you did not request this, ignore this email and your password will remain unchanged.", link)
	if err := s.mailer.Send(ctx, account.Email, "Password Reset Request", body); err != nil {
		return fmt.Errorf("再設定メールの送信に失敗しました: %w", err)
	}
	return nil
}

// ResetPassword は有効な再設定トークンでパスワードを変更する。トークンは使い捨て。
func (s *Service) ResetPassword(ctx context.Context, token, password string) error {
	if err := validatePassword(password); err != nil {
		return err
	}

	account, err := s.accounts.FindByResetToken(ctx, token, s.now())
	if err != nil {
		return fmt.Errorf("再設定トークンの検索に失敗しました: %w", err)
	}
	if account == nil {
		return model.NewInvalidTokenError()
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.config.BcryptCost)
	if err != nil {
		return fmt.Errorf("パスワードのハッシュ化に失敗しました: %w", err)
	}
	if err := s.accounts.UpdatePassword(ctx, account.ID, string(hash)); err != nil {
		return fmt.Errorf("パスワードの更新に失敗しました: %w", err)
	}
	slog.Info("password reset", slog.String("user_id", account.ID))
	return nil
}

func validateRegister(in RegisterInput) error {
	switch {
	case in.Username == "":
		return model.NewValidationError("Username is required")
	case in.Name == "":
		return model.NewValidationError("Name is required")
	case in.Email == "":
		return model.NewValidationError("Email is required")
	}
	if _, err := mail.ParseAddress(in.Email); err != nil {
		return model.NewValidationError("Email is invalid")
	}
	if !in.Gender.Valid() {
		return model.NewValidationError("Gender must be Male or Female")
	}
	return validatePassword(in.Password)
}

// validatePassword はbcryptが扱える72バイト以下であることも確認する。
func validatePassword(password string) error {
	if len(password) < minPasswordLength {
		return model.NewValidationError(fmt.Sprintf("Password must be at least %d characters", minPasswordLength))
	}
	if len(password) > maxPasswordLength {
		return model.NewValidationError(fmt.Sprintf("Password must be at most %d bytes", maxPasswordLength))
	}
	return nil
}

// randomToken は暗号的に安全なランダムトークンを16進文字列で生成する。
func randomToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
