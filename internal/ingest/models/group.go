package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Group 群组模型（groups 集合）
type Group struct {
	ID          primitive.ObjectID `bson:"_id,omitempty"`
	TelegramID  int64              `bson:"telegram_id"`           // Telegram Chat ID（唯一）
	Type        string             `bson:"type,omitempty"`        // 类型：group/supergroup/channel
	Title       string             `bson:"title"`                 // 群组名称
	Username    string             `bson:"username,omitempty"`    // 公开群组的 @username
	Description string             `bson:"description,omitempty"` // 群组简介
	MemberCount int                `bson:"member_count,omitempty"`
	IsActive    bool               `bson:"is_active"`
	CreatedAt   time.Time          `bson:"created_at"`
	UpdatedAt   time.Time          `bson:"updated_at"`
}

// GroupFromRecord 从消息记录的冗余字段构造群组
func GroupFromRecord(rec *MessageRecord) *Group {
	username := rec.ChatUsername
	if username != "" && username[0] != '@' {
		username = "@" + username
	}
	return &Group{
		TelegramID:  rec.ChatID,
		Title:       rec.ChatName,
		Username:    username,
		Description: rec.ChatBio,
		MemberCount: rec.ChatMemberCount,
		IsActive:    true,
	}
}
