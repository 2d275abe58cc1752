package gotd

import (
	"time"

	"github.com/gotd/td/tg"

	"github.com/Firdavs28033/tg-monitoring-back/internal/ingest/models"
)

// peerEntry 已知会话：元数据 + 用于 RPC 的 InputPeer
type peerEntry struct {
	info  models.ChatInfo
	input tg.InputPeerClass
}

// convertChat 转换群组/频道，其它类型返回 false
func convertChat(chat tg.ChatClass) (peerEntry, bool) {
	switch c := chat.(type) {
	case *tg.Chat:
		return peerEntry{
			info: models.ChatInfo{
				ID:          models.BasicGroupChatID(c.ID),
				Type:        models.ChatTypeGroup,
				Title:       c.Title,
				MemberCount: c.ParticipantsCount,
				CreatedAt:   unixTime(c.Date),
			},
			input: &tg.InputPeerChat{ChatID: c.ID},
		}, true
	case *tg.Channel:
		chatType := models.ChatTypeChannel
		if c.Megagroup {
			chatType = models.ChatTypeSupergroup
		}
		return peerEntry{
			info: models.ChatInfo{
				ID:          models.ChannelChatID(c.ID),
				Type:        chatType,
				Title:       c.Title,
				Username:    c.Username,
				MemberCount: c.ParticipantsCount,
				CreatedAt:   unixTime(c.Date),
			},
			input: &tg.InputPeerChannel{ChannelID: c.ID, AccessHash: c.AccessHash},
		}, true
	}
	return peerEntry{}, false
}

// peerChatID 消息所在会话的 chat id，私聊返回 false
func peerChatID(peer tg.PeerClass) (int64, bool) {
	switch p := peer.(type) {
	case *tg.PeerChannel:
		return models.ChannelChatID(p.ChannelID), true
	case *tg.PeerChat:
		return models.BasicGroupChatID(p.ChatID), true
	}
	return 0, false
}

// usersByID 建立用户索引
func usersByID(users []tg.UserClass) map[int64]*tg.User {
	out := make(map[int64]*tg.User, len(users))
	for _, u := range users {
		if user, ok := u.(*tg.User); ok {
			out[user.ID] = user
		}
	}
	return out
}

// convertMessage 转换普通消息，服务消息返回 nil
func convertMessage(m tg.MessageClass, chatID int64, users map[int64]*tg.User) *models.RawMessage {
	msg, ok := m.(*tg.Message)
	if !ok {
		return nil
	}

	raw := &models.RawMessage{
		ID:     int64(msg.ID),
		ChatID: chatID,
		Text:   msg.Message,
		Date:   unixTime(msg.Date),
		Media:  convertMedia(msg),
	}

	if from, ok := msg.GetFromID(); ok {
		if pu, ok := from.(*tg.PeerUser); ok {
			info := &models.UserInfo{ID: pu.UserID}
			if user, ok := users[pu.UserID]; ok {
				info.FirstName = user.FirstName
				info.Username = user.Username
				info.IsBot = user.Bot
			}
			raw.From = info
		}
	}
	return raw
}

// convertMedia 识别消息中的媒体类型，Handle 保存下载所需的对象
func convertMedia(msg *tg.Message) *models.Media {
	media, ok := msg.GetMedia()
	if !ok {
		return nil
	}

	switch m := media.(type) {
	case *tg.MessageMediaPhoto:
		photoClass, ok := m.GetPhoto()
		if !ok {
			return nil
		}
		photo, ok := photoClass.(*tg.Photo)
		if !ok {
			return nil
		}
		_, size := largestPhotoSize(photo.Sizes)
		return &models.Media{Kind: models.AttachmentPhoto, Size: int64(size), Handle: photo}
	case *tg.MessageMediaDocument:
		docClass, ok := m.GetDocument()
		if !ok {
			return nil
		}
		doc, ok := docClass.(*tg.Document)
		if !ok {
			return nil
		}
		return &models.Media{Kind: documentKind(doc), Size: doc.Size, Handle: doc}
	}
	return nil
}

// documentKind 按文档属性区分视频、语音、音频
func documentKind(doc *tg.Document) string {
	for _, attr := range doc.Attributes {
		switch a := attr.(type) {
		case *tg.DocumentAttributeVideo:
			return models.AttachmentVideo
		case *tg.DocumentAttributeAudio:
			if a.Voice {
				return models.AttachmentVoice
			}
			return models.AttachmentAudio
		}
	}
	return models.AttachmentDocument
}

// largestPhotoSize 最大尺寸的类型和字节数
func largestPhotoSize(sizes []tg.PhotoSizeClass) (string, int) {
	var (
		bestType string
		bestSize = -1
	)
	for _, s := range sizes {
		var typ string
		var size int
		switch ps := s.(type) {
		case *tg.PhotoSize:
			typ, size = ps.Type, ps.Size
		case *tg.PhotoSizeProgressive:
			if len(ps.Sizes) == 0 {
				continue
			}
			typ, size = ps.Type, ps.Sizes[len(ps.Sizes)-1]
		default:
			continue
		}
		if size > bestSize {
			bestType, bestSize = typ, size
		}
	}
	if bestSize < 0 {
		return "", 0
	}
	return bestType, bestSize
}

// chatsFromUpdates 加入群组返回的更新中携带的会话
func chatsFromUpdates(upd tg.UpdatesClass) []tg.ChatClass {
	switch u := upd.(type) {
	case *tg.Updates:
		return u.Chats
	case *tg.UpdatesCombined:
		return u.Chats
	}
	return nil
}

func unixTime(ts int) time.Time {
	if ts == 0 {
		return time.Time{}
	}
	return time.Unix(int64(ts), 0).UTC()
}
