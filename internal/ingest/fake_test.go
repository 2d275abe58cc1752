package ingest

import (
	"context"
	"errors"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/Firdavs28033/tg-monitoring-back/internal/ingest/models"
	"github.com/Firdavs28033/tg-monitoring-back/internal/platform"
)

var errDBDown = errors.New("db down")

// fakeSession 内存中的平台会话
type fakeSession struct {
	name string

	mu          sync.Mutex
	startErr    error
	byID        map[int64]*models.ChatInfo
	byHandle    map[string]*models.ChatInfo
	joinInfo    *models.ChatInfo
	joinErr     error
	previewInfo *models.ChatInfo
	previewErr  error
	recent      *models.ChatInfo
	recentErr   error
	handleErr   error
	history     map[int64][]*models.RawMessage // 新消息在前
	historyErr  map[int64]error
	failAfter   map[int64]int // 返回这么多条后以 historyErr 结束
	downloadErr error

	calls      map[string]int
	queries    []platform.HistoryQuery
	subscribed []int64
	handler    platform.Handler
	stopped    bool
}

func newFakeSession(name string) *fakeSession {
	return &fakeSession{
		name:       name,
		byID:       make(map[int64]*models.ChatInfo),
		byHandle:   make(map[string]*models.ChatInfo),
		history:    make(map[int64][]*models.RawMessage),
		historyErr: make(map[int64]error),
		failAfter:  make(map[int64]int),
		calls:      make(map[string]int),
	}
}

func (s *fakeSession) call(name string) {
	s.mu.Lock()
	s.calls[name]++
	s.mu.Unlock()
}

func (s *fakeSession) count(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[name]
}

func (s *fakeSession) Name() string { return s.name }

func (s *fakeSession) Start(context.Context) error {
	s.call("Start")
	return s.startErr
}

func (s *fakeSession) Stop(context.Context) error {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
	return nil
}

func (s *fakeSession) ChatByID(_ context.Context, chatID int64) (*models.ChatInfo, error) {
	s.call("ChatByID")
	if info, ok := s.byID[chatID]; ok {
		return info, nil
	}
	return nil, platform.ErrInvalidPeer
}

func (s *fakeSession) ChatByHandle(_ context.Context, handle string) (*models.ChatInfo, error) {
	s.call("ChatByHandle")
	if s.handleErr != nil {
		return nil, s.handleErr
	}
	if info, ok := s.byHandle[handle]; ok {
		return info, nil
	}
	return nil, platform.ErrNotFound
}

func (s *fakeSession) JoinInvite(context.Context, string) (*models.ChatInfo, error) {
	s.call("JoinInvite")
	return s.joinInfo, s.joinErr
}

func (s *fakeSession) InvitePreview(context.Context, string) (*models.ChatInfo, error) {
	s.call("InvitePreview")
	return s.previewInfo, s.previewErr
}

func (s *fakeSession) RecentGroup(context.Context) (*models.ChatInfo, error) {
	s.call("RecentGroup")
	return s.recent, s.recentErr
}

func (s *fakeSession) History(_ context.Context, chat *models.ChatInfo, q platform.HistoryQuery) platform.HistoryIterator {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries = append(s.queries, q)

	items := make([]*models.RawMessage, 0, len(s.history[chat.ID]))
	for _, msg := range s.history[chat.ID] {
		if msg.ID > q.MinID {
			items = append(items, msg)
		}
	}
	if n, ok := s.failAfter[chat.ID]; ok && n < len(items) {
		items = items[:n]
	}
	return platform.NewSliceIterator(items, s.historyErr[chat.ID])
}

func (s *fakeSession) Subscribe(chatIDs []int64, handler platform.Handler) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribed = append(s.subscribed, chatIDs...)
	s.handler = handler
	return nil
}

func (s *fakeSession) Download(_ context.Context, _ *models.Media, path string) (int64, error) {
	s.call("Download")
	if s.downloadErr != nil {
		return 0, s.downloadErr
	}
	data := []byte("fake-image")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return 0, err
	}
	return int64(len(data)), nil
}

// deliver 模拟平台推送一条实时消息
func (s *fakeSession) deliver(ctx context.Context, msg *models.RawMessage) {
	s.mu.Lock()
	handler := s.handler
	s.mu.Unlock()
	if handler != nil {
		handler(ctx, msg)
	}
}

type recordKey struct {
	chatID int64
	id     int64
}

// memStore 内存存储，(message_id, chat_id) 唯一
type memStore struct {
	mu         sync.Mutex
	records    map[recordKey]*models.MessageRecord
	order      []int64
	watermarks map[int64]*models.Watermark
	failNext   int
	saveCalls  int
	batches    []string
	markCalls  int
	markErr    error
}

func newMemStore() *memStore {
	return &memStore{
		records:    make(map[recordKey]*models.MessageRecord),
		watermarks: make(map[int64]*models.Watermark),
	}
}

func (m *memStore) SaveBatch(_ context.Context, batchID string, records []*models.MessageRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveCalls++
	if m.failNext > 0 {
		m.failNext--
		return errDBDown
	}
	m.batches = append(m.batches, batchID)

	for _, rec := range records {
		key := recordKey{chatID: rec.ChatID, id: rec.ID}
		if _, exists := m.records[key]; exists {
			continue
		}
		m.records[key] = rec
		m.order = append(m.order, rec.ID)
	}
	for chatID, rec := range models.BatchHighest(records) {
		wm := m.watermark(chatID)
		if rec.ID > wm.LastMessageID {
			wm.LastMessageID = rec.ID
			wm.LastTimestamp = rec.SentAt
			wm.UpdatedAt = time.Now()
		}
	}
	return nil
}

func (m *memStore) MarkBackfilled(_ context.Context, chatID, upTo int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.markCalls++
	if m.markErr != nil {
		return m.markErr
	}
	wm := m.watermark(chatID)
	if upTo > wm.BackfilledUpTo {
		wm.BackfilledUpTo = upTo
		wm.UpdatedAt = time.Now()
	}
	return nil
}

// watermark 调用方持有锁
func (m *memStore) watermark(chatID int64) *models.Watermark {
	wm, ok := m.watermarks[chatID]
	if !ok {
		wm = &models.Watermark{ChatID: chatID}
		m.watermarks[chatID] = wm
	}
	return wm
}

func (m *memStore) GetWatermark(_ context.Context, chatID int64) (*models.Watermark, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if wm, ok := m.watermarks[chatID]; ok {
		cp := *wm
		return &cp, nil
	}
	return nil, nil
}

func (m *memStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

func (m *memStore) ids(chatID int64) []int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]int64, 0)
	for key := range m.records {
		if key.chatID == chatID {
			ids = append(ids, key.id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (m *memStore) get(chatID, id int64) *models.MessageRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.records[recordKey{chatID: chatID, id: id}]
}

func (m *memStore) insertionOrder() []int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int64(nil), m.order...)
}

// wordRecorder 记录被统计的文本
type wordRecorder struct {
	mu    sync.Mutex
	texts []string
}

func (r *wordRecorder) Record(text string) {
	r.mu.Lock()
	r.texts = append(r.texts, text)
	r.mu.Unlock()
}

func (r *wordRecorder) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.texts)
}

const testChatID int64 = -1001234567890

func testChat() *models.ResolvedChat {
	return &models.ResolvedChat{
		ID:         testChatID,
		Provenance: models.GroupRefByID,
		Source:     "-1001234567890",
		Info: models.ChatInfo{
			ID:          testChatID,
			Type:        models.ChatTypeSupergroup,
			Title:       "Test Group",
			Username:    "testgroup",
			MemberCount: 120,
		},
	}
}

func rawMessage(id int64, text string) *models.RawMessage {
	return &models.RawMessage{
		ID:     id,
		ChatID: testChatID,
		From:   &models.UserInfo{ID: 42, FirstName: "Ali", Username: "ali"},
		Text:   text,
		Date:   time.Date(2024, 5, 1, 10, 0, int(id), 0, time.UTC),
	}
}
