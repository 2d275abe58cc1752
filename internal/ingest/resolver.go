package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Firdavs28033/tg-monitoring-back/internal/ingest/models"
	"github.com/Firdavs28033/tg-monitoring-back/internal/logger"
	"github.com/Firdavs28033/tg-monitoring-back/internal/platform"
)

// ErrUnresolved 无法确定群组
var ErrUnresolved = errors.New("chat could not be resolved")

// ChatResolver 将群组标识解析为平台 chat
// 每个会话一个实例，成功结果在进程生命周期内缓存，同一邀请链接只会加入一次
type ChatResolver struct {
	session  platform.Session
	cooldown time.Duration
	log      *logrus.Entry

	mu    sync.Mutex
	cache map[string]*models.ResolvedChat
}

// NewChatResolver 创建解析器，cooldown 为失败或限流后的固定等待时间
func NewChatResolver(session platform.Session, cooldown time.Duration) *ChatResolver {
	return &ChatResolver{
		session:  session,
		cooldown: cooldown,
		log:      logger.Account(session.Name()),
		cache:    make(map[string]*models.ResolvedChat),
	}
}

// Resolve 解析单个群组标识
func (r *ChatResolver) Resolve(ctx context.Context, ref models.GroupRef) (*models.ResolvedChat, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if chat, ok := r.cache[ref.Key()]; ok {
		return chat, nil
	}

	var (
		info *models.ChatInfo
		err  error
	)
	switch ref.Kind {
	case models.GroupRefByID:
		info, err = r.session.ChatByID(ctx, ref.ID)
	case models.GroupRefByHandle:
		handle := ref.Value
		if !strings.HasPrefix(handle, "@") {
			handle = "@" + handle
		}
		info, err = r.session.ChatByHandle(ctx, handle)
	case models.GroupRefByInviteLink:
		info, err = r.joinInvite(ctx, ref.Value)
	default:
		err = fmt.Errorf("unknown group identifier kind %q", ref.Kind)
	}
	if err != nil {
		return nil, err
	}
	if info == nil || info.ID == 0 {
		return nil, ErrUnresolved
	}

	chat := &models.ResolvedChat{
		ID:         info.ID,
		Provenance: ref.Kind,
		Source:     ref.String(),
		Info:       *info,
	}
	r.cache[ref.Key()] = chat
	return chat, nil
}

// joinInvite 通过邀请链接加入；已是成员时先查看邀请信息，再退回到最近会话
func (r *ChatResolver) joinInvite(ctx context.Context, link string) (*models.ChatInfo, error) {
	info, err := r.session.JoinInvite(ctx, link)
	if err == nil {
		r.log.Infof("Joined chat %d via %s", info.ID, link)
		return info, nil
	}
	if !errors.Is(err, platform.ErrAlreadyParticipant) {
		return nil, err
	}

	info, err = r.session.InvitePreview(ctx, link)
	if err == nil && info != nil && info.ID != 0 {
		r.log.Infof("Already a member of %s -> chat %d", link, info.ID)
		return info, nil
	}
	r.log.Warnf("Invite preview failed for %s: %v, falling back to most recent group", link, err)

	// 最近会话推断并不可靠，只作为兜底
	info, err = r.session.RecentGroup(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: recent group lookup: %v", ErrUnresolved, link, err)
	}
	if info == nil || !info.IsGroup() {
		return nil, fmt.Errorf("%w: %s: no recent group, add the chat id manually", ErrUnresolved, link)
	}
	r.log.Warnf("Guessed chat %d for %s from recent history", info.ID, link)
	return info, nil
}

// ResolveAll 按配置顺序逐个解析，失败的标识记录日志后跳过
// 限流或未知错误后固定等待 cooldown 再处理下一个；解析到同一群组的标识只保留第一个
func (r *ChatResolver) ResolveAll(ctx context.Context, refs []models.GroupRef) []*models.ResolvedChat {
	chats := make([]*models.ResolvedChat, 0, len(refs))
	seen := make(map[int64]struct{}, len(refs))

	for _, ref := range refs {
		if ctx.Err() != nil {
			break
		}

		chat, err := r.Resolve(ctx, ref)
		if err != nil {
			r.logFailure(ref, err)
			if needsCooldown(err) {
				if sleepErr := sleepCtx(ctx, r.cooldown); sleepErr != nil {
					break
				}
			}
			continue
		}

		if _, dup := seen[chat.ID]; dup {
			r.log.Infof("%s resolves to already listed chat %d, skipping", ref, chat.ID)
			continue
		}
		seen[chat.ID] = struct{}{}
		r.log.WithField("chat_id", chat.ID).Infof("%s -> %s", ref, chat.Info.DisplayName())
		chats = append(chats, chat)
	}

	return chats
}

func (r *ChatResolver) logFailure(ref models.GroupRef, err error) {
	entry := r.log.WithField("group", ref.String())
	switch {
	case errors.Is(err, platform.ErrInvalidPeer):
		entry.Error("Failed to resolve chat: invalid peer, join the chat first")
	case errors.Is(err, platform.ErrInviteExpired):
		entry.Error("Failed to resolve chat: invite link expired")
	default:
		if wait, ok := platform.IsRateLimited(err); ok {
			entry.Errorf("Failed to resolve chat: rate limited (platform asks %s)", wait)
			return
		}
		entry.Errorf("Failed to resolve chat: %v", err)
	}
}

// needsCooldown 限流和未分类错误需要等待，确定性错误直接处理下一个
func needsCooldown(err error) bool {
	if errors.Is(err, platform.ErrInvalidPeer) ||
		errors.Is(err, platform.ErrInviteExpired) ||
		errors.Is(err, platform.ErrNotFound) {
		return false
	}
	return !errors.Is(err, context.Canceled)
}
