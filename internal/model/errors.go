// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// Categoryはエラー分類で、HTTPステータスコードの決定に使用する。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: not_found, conflict, forbidden, validation, auth, rate_limit, internal
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// エラーカテゴリ
const (
	CategoryNotFound   = "not_found"
	CategoryConflict   = "conflict"
	CategoryForbidden  = "forbidden"
	CategoryValidation = "validation"
	CategoryAuth       = "auth"
	CategoryRateLimit  = "rate_limit"
	CategoryInternal   = "internal"
)

// 定義済みエラーコード
const (
	ErrCodeActorNotFound          = "ACTOR_NOT_FOUND"
	ErrCodeAccountNotFound        = "ACCOUNT_NOT_FOUND"
	ErrCodeAlreadyFollowing       = "ALREADY_FOLLOWING"
	ErrCodeNotFollowing           = "NOT_FOLLOWING"
	ErrCodeRequestAlreadySent     = "REQUEST_ALREADY_SENT"
	ErrCodeNoSuchRequest          = "NO_SUCH_REQUEST"
	ErrCodeAlreadyScratching      = "ALREADY_SCRATCHING"
	ErrCodeNotScratching          = "NOT_SCRATCHING"
	ErrCodeAlreadyBlocked         = "ALREADY_BLOCKED"
	ErrCodeNotBlocked             = "NOT_BLOCKED"
	ErrCodeBlocked                = "BLOCKED"
	ErrCodeSelfRelation           = "SELF_RELATION"
	ErrCodeFollowRequiresApproval = "FOLLOW_REQUIRES_APPROVAL"

	ErrCodeValidation        = "VALIDATION_ERROR"
	ErrCodeEmailTaken        = "EMAIL_TAKEN"
	ErrCodeUsernameTaken     = "USERNAME_TAKEN"
	ErrCodeEmailNotVerified  = "EMAIL_NOT_VERIFIED"
	ErrCodeInvalidCredential = "INVALID_CREDENTIALS"
	ErrCodeInvalidToken      = "INVALID_TOKEN"
	ErrCodeUnauthorized      = "UNAUTHORIZED"
	ErrCodeIdentityMismatch  = "IDENTITY_MISMATCH"

	ErrCodePostNotFound    = "POST_NOT_FOUND"
	ErrCodeCommentNotFound = "COMMENT_NOT_FOUND"
	ErrCodeNotOwner        = "NOT_OWNER"

	ErrCodeRateLimited = "RATE_LIMITED"
	ErrCodeUpstream    = "UPSTREAM_ERROR"
	ErrCodeInternal    = "INTERNAL_ERROR"
)

// NewActorNotFoundError は操作主体のアカウントが存在しない場合のエラーを生成する。
func NewActorNotFoundError(id string) *APIError {
	return &APIError{
		Code:     ErrCodeActorNotFound,
		Message:  fmt.Sprintf("Account not found: %s", id),
		Category: CategoryNotFound,
		Action:   "Log in again.",
	}
}

// NewAccountNotFoundError は対象アカウントが存在しない場合のエラーを生成する。
func NewAccountNotFoundError(id string) *APIError {
	return &APIError{
		Code:     ErrCodeAccountNotFound,
		Message:  fmt.Sprintf("User not found: %s", id),
		Category: CategoryNotFound,
		Action:   "Check the user ID.",
	}
}

// NewAlreadyFollowingError は既にフォロー済みの場合のエラーを生成する。
func NewAlreadyFollowingError() *APIError {
	return &APIError{
		Code:     ErrCodeAlreadyFollowing,
		Message:  "You are already following this user",
		Category: CategoryConflict,
	}
}

// NewNotFollowingError はフォロー関係が存在しない場合のエラーを生成する。
func NewNotFollowingError() *APIError {
	return &APIError{
		Code:     ErrCodeNotFollowing,
		Message:  "You are not following this user",
		Category: CategoryConflict,
	}
}

// NewRequestAlreadySentError はフォローリクエストが送信済みの場合のエラーを生成する。
func NewRequestAlreadySentError() *APIError {
	return &APIError{
		Code:     ErrCodeRequestAlreadySent,
		Message:  "Follow request already sent",
		Category: CategoryConflict,
	}
}

// NewNoSuchRequestError はフォローリクエストが存在しない場合のエラーを生成する。
func NewNoSuchRequestError() *APIError {
	return &APIError{
		Code:     ErrCodeNoSuchRequest,
		Message:  "No follow request found",
		Category: CategoryNotFound,
	}
}

// NewAlreadyScratchingError は既にスクラッチ済みの場合のエラーを生成する。
func NewAlreadyScratchingError() *APIError {
	return &APIError{
		Code:     ErrCodeAlreadyScratching,
		Message:  "You are already scratching this user",
		Category: CategoryConflict,
	}
}

// NewNotScratchingError はスクラッチ関係が存在しない場合のエラーを生成する。
func NewNotScratchingError() *APIError {
	return &APIError{
		Code:     ErrCodeNotScratching,
		Message:  "You are not scratching this user",
		Category: CategoryConflict,
	}
}

// NewAlreadyBlockedError は既にブロック済みの場合のエラーを生成する。
func NewAlreadyBlockedError() *APIError {
	return &APIError{
		Code:     ErrCodeAlreadyBlocked,
		Message:  "You have already blocked this user",
		Category: CategoryConflict,
	}
}

// NewNotBlockedError はブロック関係が存在しない場合のエラーを生成する。
func NewNotBlockedError() *APIError {
	return &APIError{
		Code:     ErrCodeNotBlocked,
		Message:  "You have not blocked this user",
		Category: CategoryConflict,
	}
}

// NewBlockedError は相手からブロックされている場合のエラーを生成する。
func NewBlockedError() *APIError {
	return &APIError{
		Code:     ErrCodeBlocked,
		Message:  "You cannot interact with this user",
		Category: CategoryForbidden,
	}
}

// NewSelfRelationError は自分自身を対象にした場合のエラーを生成する。
func NewSelfRelationError() *APIError {
	return &APIError{
		Code:     ErrCodeSelfRelation,
		Message:  "You cannot target yourself",
		Category: CategoryValidation,
	}
}

// NewFollowRequiresApprovalError は承認制アカウントへの直接フォローのエラーを生成する。
func NewFollowRequiresApprovalError() *APIError {
	return &APIError{
		Code:     ErrCodeFollowRequiresApproval,
		Message:  "This user only accepts follow requests",
		Category: CategoryForbidden,
		Action:   "Send a follow request instead.",
	}
}

// NewValidationError は入力不備のエラーを生成する。
func NewValidationError(message string) *APIError {
	return &APIError{
		Code:     ErrCodeValidation,
		Message:  message,
		Category: CategoryValidation,
	}
}

// NewEmailTakenError はメールアドレス重複のエラーを生成する。
func NewEmailTakenError() *APIError {
	return &APIError{
		Code:     ErrCodeEmailTaken,
		Message:  "Email is already taken",
		Category: CategoryConflict,
	}
}

// NewUsernameTakenError はユーザー名重複のエラーを生成する。
func NewUsernameTakenError() *APIError {
	return &APIError{
		Code:     ErrCodeUsernameTaken,
		Message:  "Username is already taken",
		Category: CategoryConflict,
	}
}

// NewEmailNotVerifiedError はメール未確認でのログインのエラーを生成する。
func NewEmailNotVerifiedError() *APIError {
	return &APIError{
		Code:     ErrCodeEmailNotVerified,
		Message:  "Please verify your email before logging in",
		Category: CategoryConflict,
		Action:   "Open the verification link sent to your email.",
	}
}

// NewInvalidCredentialsError は認証情報不一致のエラーを生成する。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredential,
		Message:  "Invalid credentials",
		Category: CategoryValidation,
	}
}

// NewInvalidTokenError は確認・再設定トークンが無効な場合のエラーを生成する。
func NewInvalidTokenError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidToken,
		Message:  "Invalid or expired token",
		Category: CategoryValidation,
	}
}

// NewUnauthorizedError は認証が必要な場合のエラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "Authentication required",
		Category: CategoryAuth,
		Action:   "Log in and retry with a bearer token.",
	}
}

// NewIdentityMismatchError は認証済みアカウント以外を名乗った場合のエラーを生成する。
func NewIdentityMismatchError() *APIError {
	return &APIError{
		Code:     ErrCodeIdentityMismatch,
		Message:  "Identity does not match the authenticated account",
		Category: CategoryForbidden,
	}
}

// NewInternalError は内部エラーの利用者向け表現を生成する。詳細は含めない。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "Internal server error",
		Category: CategoryInternal,
		Action:   "Try again later.",
	}
}

// NewPostNotFoundError は投稿が存在しない場合のエラーを生成する。
func NewPostNotFoundError(id string) *APIError {
	return &APIError{
		Code:     ErrCodePostNotFound,
		Message:  fmt.Sprintf("Post not found: %s", id),
		Category: CategoryNotFound,
	}
}

// NewCommentNotFoundError はコメントが存在しない場合のエラーを生成する。
func NewCommentNotFoundError(id string) *APIError {
	return &APIError{
		Code:     ErrCodeCommentNotFound,
		Message:  fmt.Sprintf("Comment not found: %s", id),
		Category: CategoryNotFound,
	}
}

// NewNotOwnerError は所有者以外による変更のエラーを生成する。
func NewNotOwnerError(resource string) *APIError {
	return &APIError{
		Code:     ErrCodeNotOwner,
		Message:  fmt.Sprintf("You are not authorized to modify this %s", resource),
		Category: CategoryForbidden,
	}
}

// NewRateLimitedError は連続リクエストを拒否する場合のエラーを生成する。
func NewRateLimitedError(message string) *APIError {
	return &APIError{
		Code:     ErrCodeRateLimited,
		Message:  message,
		Category: CategoryRateLimit,
		Action:   "Wait before requesting again.",
	}
}

// NewUpstreamError は外部サービス呼び出し失敗のエラーを生成する。
func NewUpstreamError() *APIError {
	return &APIError{
		Code:     ErrCodeUpstream,
		Message:  "Upstream service failed",
		Category: CategoryInternal,
		Action:   "Try again later.",
	}
}
