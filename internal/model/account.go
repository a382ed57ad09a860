package model

import "time"

// Gender はアカウントの性別を表す。
type Gender string

const (
	GenderMale   Gender = "Male"
	GenderFemale Gender = "Female"
)

// Valid は定義済みの値かどうかを返す。
func (g Gender) Valid() bool {
	return g == GenderMale || g == GenderFemale
}

// FollowPolicy はフォローの受け付け方針を表す。
type FollowPolicy string

const (
	// FollowPolicyOpen は直接フォローとリクエストの両方を受け付ける。
	FollowPolicyOpen FollowPolicy = "open"
	// FollowPolicyApproval はリクエストの承認経由でのみフォローを受け付ける。
	FollowPolicyApproval FollowPolicy = "approval"
)

// Valid は定義済みの値かどうかを返す。
func (p FollowPolicy) Valid() bool {
	return p == FollowPolicyOpen || p == FollowPolicyApproval
}

// DefaultProfilePic はプロフィール画像未設定時の参照。
const DefaultProfilePic = "default.jpg"

// Account はサービス利用者のアカウントを表す。
type Account struct {
	ID            string
	Username      string
	Name          string
	Email         string
	EmailVerified bool
	PasswordHash  string
	ProfilePic    string
	Gender        Gender
	FollowPolicy  FollowPolicy

	EmailVerificationToken string
	ResetPasswordToken     string
	ResetPasswordExpiresAt *time.Time

	// Relations はリポジトリから関係集合付きで読み込んだ場合のみ設定される。
	Relations Relations

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Set は指定キーの関係集合を返す。未初期化の場合は空集合を作成する。
func (a *Account) Set(key RelationKey) *IDSet {
	if a.Relations == nil {
		a.Relations = make(Relations)
	}
	s, ok := a.Relations[key]
	if !ok || s == nil {
		s = &IDSet{}
		a.Relations[key] = s
	}
	return s
}

// Summary は一覧表示用の要約を返す。
func (a *Account) Summary() AccountSummary {
	return AccountSummary{
		ID:         a.ID,
		Username:   a.Username,
		Name:       a.Name,
		ProfilePic: a.ProfilePic,
	}
}

// AccountSummary はフォロワー一覧などで返すアカウントの要約。
type AccountSummary struct {
	ID         string `json:"id"`
	Username   string `json:"username"`
	Name       string `json:"name"`
	ProfilePic string `json:"profilePic"`
}

// ProfileUpdate はプロフィール更新の入力。
type ProfileUpdate struct {
	Username     string
	Name         string
	Email        string
	Gender       Gender
	ProfilePic   string
	FollowPolicy FollowPolicy
}
