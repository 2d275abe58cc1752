package models

import (
	"strconv"
	"strings"
	"time"
)

// 群组类型常量
const (
	ChatTypeGroup      = "group"
	ChatTypeSupergroup = "supergroup"
	ChatTypeChannel    = "channel"
	ChatTypePrivate    = "private"
)

// UnknownChatName 群组没有标题时使用的名称
const UnknownChatName = "Unknown group"

// channelIDOffset Bot API 风格的超级群/频道 ID 偏移（-100 前缀）
const channelIDOffset int64 = 1000000000000

// ChatInfo 平台返回的群组元数据
type ChatInfo struct {
	ID          int64     // Bot API 形式的 chat id（超级群为 -100 前缀）
	Type        string    // group/supergroup/channel/private
	Title       string    // 群组名称
	Username    string    // 公开群组的 username（不带 @）
	Description string    // 群组简介
	MemberCount int       // 成员数量
	CreatedAt   time.Time // 创建时间（未知时为零值）
}

// DisplayName 群组显示名称
func (c *ChatInfo) DisplayName() string {
	if c == nil || strings.TrimSpace(c.Title) == "" {
		return UnknownChatName
	}
	return c.Title
}

// IsGroup 是否为群组类会话
func (c *ChatInfo) IsGroup() bool {
	return c != nil && (c.Type == ChatTypeGroup || c.Type == ChatTypeSupergroup)
}

// ResolvedChat 解析后的群组
// 由 ChatResolver 创建，进程生命周期内按 账号+标识 缓存，不可变
type ResolvedChat struct {
	ID         int64
	Provenance GroupRefKind // 由哪种标识解析得到
	Source     string       // 原始标识
	Info       ChatInfo
}

// ChannelChatID 将频道 ID 转换为 Bot API 形式（-100 前缀）
func ChannelChatID(channelID int64) int64 {
	return -(channelIDOffset + channelID)
}

// BasicGroupChatID 将普通群 ID 转换为 Bot API 形式
func BasicGroupChatID(chatID int64) int64 {
	return -chatID
}

// SplitChatID 将 Bot API 形式的 chat id 还原为平台原生 ID
// isChannel 为 true 表示超级群/频道
func SplitChatID(chatID int64) (nativeID int64, isChannel bool) {
	switch {
	case chatID <= -channelIDOffset:
		return -chatID - channelIDOffset, true
	case chatID < 0:
		return -chatID, false
	default:
		return chatID, false
	}
}

// MessageURL 生成消息的规范链接 https://t.me/c/<id>/<message id>
func MessageURL(chatID, messageID int64) string {
	s := strconv.FormatInt(chatID, 10)
	if strings.HasPrefix(s, "-100") {
		s = s[4:]
	} else {
		s = strings.TrimPrefix(s, "-")
	}
	return "https://t.me/c/" + s + "/" + strconv.FormatInt(messageID, 10)
}
