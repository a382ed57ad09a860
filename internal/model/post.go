package model

import "time"

// Post はアカウントの投稿を表す。
type Post struct {
	ID        string
	AuthorID  string
	Title     string
	Content   string
	Anonymous bool
	Likes     []string
	Dislikes  []string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// FeedEntry はフィードに並ぶ投稿と投稿者の要約。
type FeedEntry struct {
	Post
	Author AccountSummary
}

// Comment は投稿またはコメントへのコメントを表す。
// PostID と ParentID はどちらも省略可能。
type Comment struct {
	ID        string
	AuthorID  string
	PostID    *string
	ParentID  *string
	Content   string
	Anonymous bool
	Replies   []string
	Likes     []string
	Dislikes  []string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ReactionKind は投稿・コメントへの評価の種類。
type ReactionKind string

const (
	ReactionLike    ReactionKind = "like"
	ReactionDislike ReactionKind = "dislike"
)
