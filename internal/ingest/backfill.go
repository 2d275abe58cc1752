package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Firdavs28033/tg-monitoring-back/internal/ingest/models"
	"github.com/Firdavs28033/tg-monitoring-back/internal/logger"
	"github.com/Firdavs28033/tg-monitoring-back/internal/platform"
)

// BackfillConfig 历史回填配置
type BackfillConfig struct {
	Batch      BatcherConfig
	PageSize   int    // 历史分页大小
	FullRescan bool   // 忽略 watermark，重新扫描全部历史
	MediaDir   string // 附件保存目录
}

// BackfillReport 单个群组回填结果
type BackfillReport struct {
	ChatID     int64
	Scanned    int   // 拉取到的消息数
	Saved      int   // 成功写入的记录数
	Skipped    int   // 校验未通过的消息数
	Dropped    int   // 写入失败被丢弃的记录数
	ResumeFrom int64 // 本次续传的起点（上次完整回填的边界）
	Complete   bool  // 历史全部扫描且没有丢弃批次，续传边界已前进
	Duration   time.Duration
}

// HistoryBackfiller 拉取群组历史消息并分批保存
type HistoryBackfiller struct {
	store    Store
	cfg      BackfillConfig
	limiter  *RateLimiter
	recorder TextRecorder
}

// NewHistoryBackfiller 创建回填器，limiter 可为 nil
func NewHistoryBackfiller(store Store, cfg BackfillConfig, limiter *RateLimiter, recorder TextRecorder) *HistoryBackfiller {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &HistoryBackfiller{
		store:    store,
		cfg:      cfg,
		limiter:  limiter,
		recorder: recorder,
	}
}

// Backfill 回填单个群组
// 单条消息校验失败只跳过该条；拉取历史出错时中止该群组并返回错误
// 只有完整结束（未中断、无丢弃批次）时才推进续传边界，中断后下次从原边界重新扫描
func (b *HistoryBackfiller) Backfill(ctx context.Context, session platform.Session, chat *models.ResolvedChat) (BackfillReport, error) {
	start := time.Now()
	account := session.Name()
	log := logger.Account(account).WithField("chat_id", chat.ID)
	report := BackfillReport{ChatID: chat.ID}

	if !b.cfg.FullRescan {
		wm, err := b.store.GetWatermark(ctx, chat.ID)
		if err != nil {
			log.Warnf("Failed to read watermark, scanning full history: %v", err)
		} else if wm != nil {
			report.ResumeFrom = wm.BackfilledUpTo
		}
	}

	log.Infof("Collecting history of %s (after message %d)", chat.Info.DisplayName(), report.ResumeFrom)

	batcher := NewBatcher(b.store, b.cfg.Batch, b.recorder, log)
	pager := &throttledIterator{
		it: session.History(ctx, &chat.Info, platform.HistoryQuery{
			MinID:    report.ResumeFrom,
			PageSize: b.cfg.PageSize,
		}),
		limiter:  b.limiter,
		pageSize: b.cfg.PageSize,
	}

	var highest int64
	for pager.Next(ctx) {
		raw := pager.Value()
		if raw == nil {
			continue
		}
		report.Scanned++
		if raw.ID > highest {
			highest = raw.ID
		}

		rec, err := b.prepare(ctx, session, chat, raw, log)
		if err != nil {
			report.Skipped++
			log.WithField("message_id", raw.ID).Debugf("Message skipped: %v", err)
			continue
		}

		// 写入失败已由 Batcher 记录并丢弃，继续处理后续消息
		_ = batcher.Append(ctx, rec)
	}

	_ = batcher.Flush(ctx)

	report.Saved = batcher.Saved()
	report.Dropped = batcher.Dropped()
	report.Duration = time.Since(start)

	if err := pager.Err(); err != nil {
		log.Errorf("History enumeration aborted after %d messages: %v", report.Scanned, err)
		return report, fmt.Errorf("history of chat %d: %w", chat.ID, err)
	}

	switch {
	case ctx.Err() != nil:
		log.Warn("Backfill interrupted, it will restart from the previous position")
	case report.Dropped > 0:
		log.Warnf("%d messages dropped, the next backfill rescans this range", report.Dropped)
	default:
		report.Complete = true
		if highest > report.ResumeFrom {
			if err := b.store.MarkBackfilled(context.WithoutCancel(ctx), chat.ID, highest); err != nil {
				log.Warnf("Failed to record backfill position: %v", err)
				report.Complete = false
			}
		}
	}

	log.WithFields(logrus.Fields{
		"scanned": report.Scanned,
		"saved":   report.Saved,
		"skipped": report.Skipped,
		"dropped": report.Dropped,
	}).Infof("History collected in %s", report.Duration.Round(time.Millisecond))

	return report, nil
}

// prepare 校验、下载附件并规范化
func (b *HistoryBackfiller) prepare(ctx context.Context, session platform.Session, chat *models.ResolvedChat, raw *models.RawMessage, log *logrus.Entry) (*models.MessageRecord, error) {
	if !IsValidText(raw.Text) {
		return nil, fmt.Errorf("%w: text rejected", ErrInvalidRecord)
	}

	att, err := downloadAttachment(ctx, session, b.cfg.MediaDir, chat.ID, raw)
	if err != nil {
		// 附件失败不影响文本保存
		log.WithField("message_id", raw.ID).Warnf("Attachment skipped: %v", err)
		att = nil
	}

	rec := Normalize(session.Name(), chat, raw, att)
	if err := ValidateRecord(rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// throttledIterator 每拉取一页之前等待限速令牌
type throttledIterator struct {
	it       platform.HistoryIterator
	limiter  *RateLimiter
	pageSize int
	count    int
	err      error
}

func (t *throttledIterator) Next(ctx context.Context) bool {
	if t.limiter != nil && t.pageSize > 0 && t.count%t.pageSize == 0 {
		if err := t.limiter.Wait(ctx); err != nil {
			t.err = err
			return false
		}
	}
	if !t.it.Next(ctx) {
		return false
	}
	t.count++
	return true
}

func (t *throttledIterator) Value() *models.RawMessage { return t.it.Value() }

func (t *throttledIterator) Err() error {
	if t.err != nil {
		return t.err
	}
	return t.it.Err()
}
