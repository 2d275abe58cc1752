package models

import (
	"regexp"
	"time"
)

// EmptyMessageText 空消息的占位文本
const EmptyMessageText = "Bo‘sh xabar"

// 附件类型常量
const (
	AttachmentPhoto    = "photo"
	AttachmentVideo    = "video"
	AttachmentDocument = "document"
	AttachmentAudio    = "audio"
	AttachmentVoice    = "voice"
)

// messageURLPattern 规范消息链接格式
var messageURLPattern = regexp.MustCompile(`^https://t\.me/c/\d+/\d+$`)

// IsMessageURL 是否符合规范消息链接格式
func IsMessageURL(url string) bool {
	return messageURLPattern.MatchString(url)
}

// UserInfo 发送者信息
type UserInfo struct {
	ID        int64
	FirstName string
	Username  string
	IsBot     bool
}

// Media 平台消息中的媒体描述，Handle 由平台适配器解释
type Media struct {
	Kind   string // photo/video/document/audio/voice
	Size   int64  // 平台声明的大小（可能为 0）
	Handle any
}

// RawMessage 平台推送或拉取到的原始消息，转换后即丢弃
type RawMessage struct {
	ID     int64
	ChatID int64
	Chat   *ChatInfo // 平台随消息携带的群组信息（可能为空）
	From   *UserInfo // 频道消息可能为空
	Text   string
	Date   time.Time
	Media  *Media
}

// Attachment 已下载到本地的附件
type Attachment struct {
	Kind string `bson:"file_type" json:"file_type"`
	Path string `bson:"file_path" json:"file_path"`
	Size int64  `bson:"file_size" json:"file_size"`
}

// MessageRecord 规范化并校验后的消息记录
// (ID, ChatID) 在存储中唯一
type MessageRecord struct {
	ID          int64  `bson:"message_id" json:"id"`
	ChatID      int64  `bson:"chat_id" json:"chat_id"`
	AccountName string `bson:"account_name" json:"account_name"`
	UserID      int64  `bson:"user_id,omitempty" json:"user_id,omitempty"`
	Text        string `bson:"text" json:"text"`
	Timestamp   string `bson:"timestamp" json:"timestamp"` // RFC 3339
	URL         string `bson:"url" json:"url"`

	// 群组冗余字段
	ChatName        string `bson:"group_name" json:"group_name"`
	ChatUsername    string `bson:"group_username,omitempty" json:"group_username,omitempty"`
	ChatBio         string `bson:"group_bio,omitempty" json:"group_bio,omitempty"`
	ChatMemberCount int    `bson:"group_member_count,omitempty" json:"group_member_count,omitempty"`

	// 用户冗余字段
	UserFirstName string `bson:"user_first_name,omitempty" json:"user_first_name,omitempty"`
	UserUsername  string `bson:"user_username,omitempty" json:"user_username,omitempty"`
	UserIsBot     bool   `bson:"user_is_bot,omitempty" json:"-"`

	Attachment *Attachment `bson:"media,omitempty" json:"media,omitempty"`

	SentAt    time.Time `bson:"sent_at" json:"-"`
	CreatedAt time.Time `bson:"created_at,omitempty" json:"-"`
}

// HasAttachment 是否带附件
func (m *MessageRecord) HasAttachment() bool {
	return m.Attachment != nil
}
