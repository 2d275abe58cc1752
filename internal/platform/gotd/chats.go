package gotd

import (
	"context"
	"fmt"
	"strings"

	"github.com/gotd/td/tg"

	"github.com/Firdavs28033/tg-monitoring-back/internal/ingest/models"
	"github.com/Firdavs28033/tg-monitoring-back/internal/platform"
)

// loadDialogs 读取最近会话，填充 peer 缓存
func (s *Session) loadDialogs(ctx context.Context) error {
	res, err := s.api().MessagesGetDialogs(ctx, &tg.MessagesGetDialogsRequest{
		OffsetPeer: &tg.InputPeerEmpty{},
		Limit:      s.cfg.DialogPage,
	})
	if err != nil {
		return mapError(err)
	}
	dialogs, ok := res.AsModified()
	if !ok {
		return nil
	}

	s.remember(dialogs.GetChats())

	order := make([]int64, 0, len(dialogs.GetDialogs()))
	for _, d := range dialogs.GetDialogs() {
		dialog, ok := d.(*tg.Dialog)
		if !ok {
			continue
		}
		if id, ok := peerChatID(dialog.Peer); ok {
			order = append(order, id)
		}
	}

	s.mu.Lock()
	s.recent = order
	s.mu.Unlock()
	return nil
}

// ChatByID 按 chat id 查询，未缓存时刷新最近会话
func (s *Session) ChatByID(ctx context.Context, chatID int64) (*models.ChatInfo, error) {
	entry, ok := s.peer(chatID)
	if !ok {
		if err := s.loadDialogs(ctx); err != nil {
			return nil, err
		}
		if entry, ok = s.peer(chatID); !ok {
			return nil, fmt.Errorf("%w: chat %d is not in the account's dialogs", platform.ErrInvalidPeer, chatID)
		}
	}
	return s.enrich(ctx, entry), nil
}

// ChatByHandle 按 @handle 查询
func (s *Session) ChatByHandle(ctx context.Context, handle string) (*models.ChatInfo, error) {
	name := strings.TrimPrefix(strings.TrimSpace(handle), "@")
	res, err := s.api().ContactsResolveUsername(ctx, name)
	if err != nil {
		return nil, mapError(err)
	}
	s.remember(res.Chats)

	chatID, ok := peerChatID(res.Peer)
	if !ok {
		return nil, fmt.Errorf("%w: @%s is not a group", platform.ErrNotFound, name)
	}
	entry, ok := s.peer(chatID)
	if !ok {
		return nil, fmt.Errorf("%w: @%s", platform.ErrNotFound, name)
	}
	return s.enrich(ctx, entry), nil
}

// JoinInvite 通过邀请链接加入
func (s *Session) JoinInvite(ctx context.Context, link string) (*models.ChatInfo, error) {
	hash, err := models.InviteHash(link)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", platform.ErrInviteExpired, err)
	}

	upd, err := s.api().MessagesImportChatInvite(ctx, hash)
	if err != nil {
		return nil, mapError(err)
	}

	chats := chatsFromUpdates(upd)
	s.remember(chats)
	for _, c := range chats {
		if entry, ok := convertChat(c); ok {
			return s.enrich(ctx, entry), nil
		}
	}
	return nil, fmt.Errorf("%w: join via %s returned no chat", platform.ErrNotFound, link)
}

// InvitePreview 已是成员时，邀请信息中包含完整的群组
func (s *Session) InvitePreview(ctx context.Context, link string) (*models.ChatInfo, error) {
	hash, err := models.InviteHash(link)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", platform.ErrInviteExpired, err)
	}

	invite, err := s.api().MessagesCheckChatInvite(ctx, hash)
	if err != nil {
		return nil, mapError(err)
	}

	var chat tg.ChatClass
	switch v := invite.(type) {
	case *tg.ChatInviteAlready:
		chat = v.Chat
	case *tg.ChatInvitePeek:
		chat = v.Chat
	default:
		return nil, fmt.Errorf("%w: invite %s does not expose the chat", platform.ErrNotFound, link)
	}

	entry, ok := convertChat(chat)
	if !ok {
		return nil, fmt.Errorf("%w: invite %s points to an inaccessible chat", platform.ErrInvalidPeer, link)
	}
	s.remember([]tg.ChatClass{chat})
	return s.enrich(ctx, entry), nil
}

// RecentGroup 最近会话中的第一个群组
func (s *Session) RecentGroup(ctx context.Context) (*models.ChatInfo, error) {
	if err := s.loadDialogs(ctx); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, id := range s.recent {
		entry, ok := s.peers[id]
		if ok && entry.info.IsGroup() {
			info := entry.info
			return &info, nil
		}
	}
	return nil, fmt.Errorf("%w: no group in recent dialogs", platform.ErrNotFound)
}

// enrich 补充简介和成员数，失败时返回基础信息
func (s *Session) enrich(ctx context.Context, entry peerEntry) *models.ChatInfo {
	info := entry.info

	var (
		full *tg.MessagesChatFull
		err  error
	)
	switch p := entry.input.(type) {
	case *tg.InputPeerChannel:
		full, err = s.api().ChannelsGetFullChannel(ctx, &tg.InputChannel{ChannelID: p.ChannelID, AccessHash: p.AccessHash})
	case *tg.InputPeerChat:
		full, err = s.api().MessagesGetFullChat(ctx, p.ChatID)
	default:
		return &info
	}
	if err != nil {
		s.log.WithField("chat_id", info.ID).Debugf("Full chat info unavailable: %v", err)
		return &info
	}

	switch f := full.FullChat.(type) {
	case *tg.ChannelFull:
		info.Description = f.About
		if count, ok := f.GetParticipantsCount(); ok && count > 0 {
			info.MemberCount = count
		}
	case *tg.ChatFull:
		info.Description = f.About
	}
	return &info
}
