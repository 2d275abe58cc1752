package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// User 用户模型（users 集合）
type User struct {
	ID         primitive.ObjectID `bson:"_id,omitempty"`
	TelegramID int64              `bson:"telegram_id"`        // Telegram 用户 ID（唯一）
	Username   string             `bson:"username,omitempty"` // @username
	FirstName  string             `bson:"first_name,omitempty"`
	IsBot      bool               `bson:"is_bot"`
	CreatedAt  time.Time          `bson:"created_at"`
	UpdatedAt  time.Time          `bson:"updated_at"`
}

// UserFromRecord 从消息记录构造发送者，频道消息没有发送者时返回 nil
func UserFromRecord(rec *MessageRecord) *User {
	if rec.UserID == 0 {
		return nil
	}
	return &User{
		TelegramID: rec.UserID,
		Username:   rec.UserUsername,
		FirstName:  rec.UserFirstName,
		IsBot:      rec.UserIsBot,
	}
}
