package ingest

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/Firdavs28033/tg-monitoring-back/internal/ingest/models"
	"github.com/Firdavs28033/tg-monitoring-back/internal/logger"
	"github.com/Firdavs28033/tg-monitoring-back/internal/platform"
)

// LiveConfig 实时采集配置
type LiveConfig struct {
	QueueSize int
	Batch     BatcherConfig // Size 固定为 1
	MediaDir  string
}

// LiveIngestor 监听账号已解析群组的新消息，逐条校验并立即保存
type LiveIngestor struct {
	session platform.Session
	cfg     LiveConfig
	log     *logrus.Entry

	mu      sync.RWMutex
	baseCtx context.Context
	chats   map[int64]*models.ResolvedChat
	queue   *OrderedQueue
	batcher *Batcher // 仅在队列 worker 中使用
}

// NewLiveIngestor 创建实时采集器
func NewLiveIngestor(session platform.Session, store Store, cfg LiveConfig, recorder TextRecorder) *LiveIngestor {
	log := logger.Account(session.Name())

	batchCfg := cfg.Batch
	batchCfg.Size = 1

	return &LiveIngestor{
		session: session,
		cfg:     cfg,
		log:     log,
		baseCtx: context.Background(),
		chats:   make(map[int64]*models.ResolvedChat),
		queue:   NewOrderedQueue(cfg.QueueSize, log),
		batcher: NewBatcher(store, batchCfg, recorder, log),
	}
}

// Register 为全部已解析群组注册一个回调
func (l *LiveIngestor) Register(ctx context.Context, chats []*models.ResolvedChat) error {
	if len(chats) == 0 {
		return nil
	}

	ids := make([]int64, 0, len(chats))
	l.mu.Lock()
	l.baseCtx = ctx
	for _, chat := range chats {
		l.chats[chat.ID] = chat
		ids = append(ids, chat.ID)
	}
	l.mu.Unlock()

	if err := l.session.Subscribe(ids, l.dispatch); err != nil {
		return fmt.Errorf("subscribe to %d chats: %w", len(ids), err)
	}
	l.log.Infof("Listening for new messages in %d chats", len(ids))
	return nil
}

// dispatch 平台回调：过滤后按投递顺序排队
func (l *LiveIngestor) dispatch(ctx context.Context, raw *models.RawMessage) {
	if raw == nil || l.chat(raw.ChatID) == nil {
		return
	}
	l.mu.RLock()
	base := l.baseCtx
	l.mu.RUnlock()

	if err := l.queue.Submit(ctx, func(context.Context) {
		_ = l.Handle(base, raw)
	}); err != nil {
		l.log.WithFields(logrus.Fields{
			"chat_id":    raw.ChatID,
			"message_id": raw.ID,
		}).Warnf("Live message not queued: %v", err)
	}
}

// Handle 处理一条实时消息：校验、下载附件、规范化、立即保存
// 不属于已解析群组的消息直接忽略
func (l *LiveIngestor) Handle(ctx context.Context, raw *models.RawMessage) error {
	chat := l.chat(raw.ChatID)
	if chat == nil {
		return nil
	}

	log := l.log.WithFields(logrus.Fields{
		"chat_id":    raw.ChatID,
		"message_id": raw.ID,
	})

	if !IsValidText(raw.Text) {
		log.Debugf("Live message rejected: %.50q", raw.Text)
		return fmt.Errorf("%w: text rejected", ErrInvalidRecord)
	}

	att, err := downloadAttachment(ctx, l.session, l.cfg.MediaDir, chat.ID, raw)
	if err != nil {
		log.Warnf("Attachment skipped: %v", err)
		att = nil
	}

	rec := Normalize(l.session.Name(), chat, raw, att)
	if err := ValidateRecord(rec); err != nil {
		log.Errorf("Live message failed validation: %v", err)
		return err
	}

	if err := l.batcher.Append(ctx, rec); err != nil {
		return err
	}

	log.Infof("New message saved: %.50q", rec.Text)
	return nil
}

// Close 停止接收并等待排队中的消息保存完毕
func (l *LiveIngestor) Close() {
	l.queue.Shutdown()
}

func (l *LiveIngestor) chat(id int64) *models.ResolvedChat {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.chats[id]
}
