package model

import "time"

// Message はダイレクトメッセージを表す。作成後は変更されない。
type Message struct {
	ID          string    `json:"id"`
	SenderID    string    `json:"senderId"`
	RecipientID string    `json:"receiverId"`
	Body        string    `json:"message"`
	CreatedAt   time.Time `json:"createdAt"`
}
