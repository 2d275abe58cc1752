package gotd

import (
	"context"
	"fmt"

	"github.com/gotd/td/tg"

	"github.com/Firdavs28033/tg-monitoring-back/internal/ingest/models"
	"github.com/Firdavs28033/tg-monitoring-back/internal/platform"
)

const maxHistoryPage = 100

// History 从新到旧分页读取 ID 大于 MinID 的消息
func (s *Session) History(_ context.Context, chat *models.ChatInfo, q platform.HistoryQuery) platform.HistoryIterator {
	entry, ok := s.peer(chat.ID)
	if !ok {
		return platform.NewSliceIterator(nil, fmt.Errorf("%w: chat %d", platform.ErrInvalidPeer, chat.ID))
	}

	limit := q.PageSize
	if limit <= 0 || limit > maxHistoryPage {
		limit = maxHistoryPage
	}
	return &historyIterator{
		api:    s.api(),
		peer:   entry.input,
		chatID: chat.ID,
		minID:  int(q.MinID),
		limit:  limit,
	}
}

type historyIterator struct {
	api    *tg.Client
	peer   tg.InputPeerClass
	chatID int64
	minID  int
	limit  int

	offsetID int
	buf      []*models.RawMessage
	cur      *models.RawMessage
	done     bool
	err      error
}

func (it *historyIterator) Next(ctx context.Context) bool {
	for len(it.buf) == 0 {
		if it.done || it.err != nil {
			return false
		}
		if err := it.fetch(ctx); err != nil {
			it.err = err
			return false
		}
	}
	it.cur = it.buf[0]
	it.buf = it.buf[1:]
	return true
}

func (it *historyIterator) Value() *models.RawMessage { return it.cur }

func (it *historyIterator) Err() error { return it.err }

// fetch 读取下一页，空页表示结束
func (it *historyIterator) fetch(ctx context.Context) error {
	res, err := it.api.MessagesGetHistory(ctx, &tg.MessagesGetHistoryRequest{
		Peer:     it.peer,
		OffsetID: it.offsetID,
		Limit:    it.limit,
		MinID:    it.minID,
	})
	if err != nil {
		return mapError(err)
	}

	page, ok := res.AsModified()
	if !ok {
		it.done = true
		return nil
	}
	messages := page.GetMessages()
	if len(messages) == 0 {
		it.done = true
		return nil
	}

	users := usersByID(page.GetUsers())
	for _, m := range messages {
		id := m.GetID()
		if it.offsetID == 0 || id < it.offsetID {
			it.offsetID = id
		}
		if raw := convertMessage(m, it.chatID, users); raw != nil {
			it.buf = append(it.buf, raw)
		}
	}
	if it.offsetID <= it.minID+1 {
		it.done = true
	}
	return nil
}
