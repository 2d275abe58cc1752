package ingest

import (
	"time"

	"github.com/Firdavs28033/tg-monitoring-back/internal/ingest/models"
)

// Normalize 将原始消息转换为待保存的记录
// 群组冗余字段来自已解析的群组元数据，不为每条消息额外请求平台
func Normalize(account string, chat *models.ResolvedChat, raw *models.RawMessage, att *models.Attachment) *models.MessageRecord {
	text := raw.Text
	if text == "" {
		text = models.EmptyMessageText
	}

	sentAt := raw.Date.UTC()
	rec := &models.MessageRecord{
		ID:              raw.ID,
		ChatID:          chat.ID,
		AccountName:     account,
		Text:            text,
		Timestamp:       sentAt.Format(time.RFC3339),
		URL:             models.MessageURL(chat.ID, raw.ID),
		ChatName:        chat.Info.DisplayName(),
		ChatUsername:    chat.Info.Username,
		ChatBio:         chat.Info.Description,
		ChatMemberCount: chat.Info.MemberCount,
		Attachment:      att,
		SentAt:          sentAt,
	}

	if raw.From != nil {
		rec.UserID = raw.From.ID
		rec.UserFirstName = raw.From.FirstName
		rec.UserUsername = raw.From.Username
		rec.UserIsBot = raw.From.IsBot
	}

	return rec
}
