package gotd

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"

	"github.com/gotd/td/bin"
	"github.com/gotd/td/tg"

	"github.com/Firdavs28033/tg-monitoring-back/internal/ingest/models"
)

// fakeTelegram 按请求类型返回预设响应，响应经过真实的 TL 编解码
type fakeTelegram struct {
	mu    sync.Mutex
	calls map[string]int

	// 频道历史，按 ID 存储
	history     map[int]*tg.Message
	users       []tg.UserClass
	notModified bool

	dialogs  *tg.MessagesDialogs
	resolved map[string]*tg.ContactsResolvedPeer
	joined   tg.UpdatesClass
	invite   tg.ChatInviteClass
	full     *tg.MessagesChatFull

	// 按请求名返回的错误
	errs map[string]error
}

func newFakeTelegram() *fakeTelegram {
	return &fakeTelegram{
		calls:    make(map[string]int),
		history:  make(map[int]*tg.Message),
		resolved: make(map[string]*tg.ContactsResolvedPeer),
		errs:     make(map[string]error),
	}
}

func (f *fakeTelegram) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

// addMessages 向频道历史写入消息
func (f *fakeTelegram) addMessages(channelID int64, ids ...int) {
	for _, id := range ids {
		f.history[id] = &tg.Message{
			ID:      id,
			PeerID:  &tg.PeerChannel{ChannelID: channelID},
			FromID:  &tg.PeerUser{UserID: 7},
			Message: fmt.Sprintf("message %d", id),
			Date:    1700000000 + id,
		}
	}
}

// Invoke 实现 tg.Invoker
func (f *fakeTelegram) Invoke(_ context.Context, input bin.Encoder, output bin.Decoder) error {
	res, err := f.respond(input)
	if err != nil {
		return err
	}
	var buf bin.Buffer
	if err := res.Encode(&buf); err != nil {
		return fmt.Errorf("encode %T: %w", res, err)
	}
	return output.Decode(&buf)
}

func (f *fakeTelegram) respond(input bin.Encoder) (bin.Encoder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	name := fmt.Sprintf("%T", input)
	f.calls[name]++
	if err, ok := f.errs[name]; ok {
		return nil, err
	}

	switch req := input.(type) {
	case *tg.MessagesGetHistoryRequest:
		return f.historyPage(req), nil
	case *tg.MessagesGetDialogsRequest:
		if f.dialogs == nil {
			return &tg.MessagesDialogs{}, nil
		}
		return f.dialogs, nil
	case *tg.ContactsResolveUsernameRequest:
		if res, ok := f.resolved[req.Username]; ok {
			return res, nil
		}
		return nil, fmt.Errorf("unexpected username %q", req.Username)
	case *tg.MessagesImportChatInviteRequest:
		return f.joined, nil
	case *tg.MessagesCheckChatInviteRequest:
		return f.invite, nil
	case *tg.ChannelsGetFullChannelRequest:
		if f.full == nil {
			return nil, fmt.Errorf("full channel info not scripted")
		}
		return f.full, nil
	}
	return nil, fmt.Errorf("unexpected request %s", name)
}

// historyPage 与服务端一致：ID < OffsetID（0 表示最新）且 > MinID，从新到旧，最多 Limit 条
func (f *fakeTelegram) historyPage(req *tg.MessagesGetHistoryRequest) tg.MessagesMessagesClass {
	if f.notModified {
		return &tg.MessagesMessagesNotModified{Count: len(f.history)}
	}
	ids := make([]int, 0, len(f.history))
	for id := range f.history {
		if (req.OffsetID == 0 || id < req.OffsetID) && id > req.MinID {
			ids = append(ids, id)
		}
	}
	sort.Sort(sort.Reverse(sort.IntSlice(ids)))
	if len(ids) > req.Limit {
		ids = ids[:req.Limit]
	}

	messages := make([]tg.MessageClass, 0, len(ids))
	for _, id := range ids {
		messages = append(messages, f.history[id])
	}
	return &tg.MessagesChannelMessages{
		Count:    len(f.history),
		Messages: messages,
		Users:    f.users,
	}
}

// newRPCSession 使用 fake 的会话，不建立连接
func newRPCSession(t *testing.T, fake *fakeTelegram) *Session {
	t.Helper()
	s := newSession(models.Account{Name: "acc_1", AppID: 1, AppHash: "h"}, Config{SessionDir: t.TempDir(), DialogPage: 100}, nil)
	s.rpc = tg.NewClient(fake)
	return s
}

func testChannel(id int64, title string, megagroup bool) *tg.Channel {
	return &tg.Channel{
		ID:         id,
		AccessHash: 99,
		Title:      title,
		Megagroup:  megagroup,
		Broadcast:  !megagroup,
		Photo:      &tg.ChatPhotoEmpty{},
	}
}
