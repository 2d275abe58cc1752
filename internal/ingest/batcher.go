package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/Firdavs28033/tg-monitoring-back/internal/ingest/models"
	"github.com/Firdavs28033/tg-monitoring-back/internal/logger"
)

// ErrBatchDropped 批次重试耗尽后被丢弃
var ErrBatchDropped = errors.New("batch dropped after retries")

// BatcherConfig 批量写入配置
type BatcherConfig struct {
	Size       int           // 达到该条数自动写入
	Retries    int           // 写入失败后的重试次数
	RetryDelay time.Duration // 重试间隔
}

// Batcher 累积记录并按批写入存储
// 不是并发安全的，每个回填任务或实时队列各自持有一个
type Batcher struct {
	store    Store
	cfg      BatcherConfig
	buf      []*models.MessageRecord
	recorder TextRecorder // 只统计已写入的记录
	log      *logrus.Entry

	saved   int
	dropped int
}

// NewBatcher 创建 Batcher，recorder 可为 nil
func NewBatcher(store Store, cfg BatcherConfig, recorder TextRecorder, log *logrus.Entry) *Batcher {
	if cfg.Size <= 0 {
		cfg.Size = 1
	}
	if cfg.Retries < 0 {
		cfg.Retries = 0
	}
	if recorder == nil {
		recorder = nopRecorder{}
	}
	if log == nil {
		log = logrus.NewEntry(logger.L())
	}
	return &Batcher{
		store:    store,
		cfg:      cfg,
		buf:      make([]*models.MessageRecord, 0, cfg.Size),
		recorder: recorder,
		log:      log,
	}
}

// Append 追加一条记录，缓冲区达到阈值时立即写入
func (b *Batcher) Append(ctx context.Context, rec *models.MessageRecord) error {
	b.buf = append(b.buf, rec)
	if len(b.buf) >= b.cfg.Size {
		return b.Flush(ctx)
	}
	return nil
}

// Flush 将缓冲区作为一个单元写入存储
// 空缓冲区直接返回；失败时按配置重试，耗尽后记录日志并丢弃该批次
func (b *Batcher) Flush(ctx context.Context) error {
	if len(b.buf) == 0 {
		return nil
	}

	batch := b.buf
	b.buf = make([]*models.MessageRecord, 0, b.cfg.Size)
	batchID := uuid.New().String()

	// 收到停止信号时让正在进行的写入完成
	saveCtx := context.WithoutCancel(ctx)

	var lastErr error
	for attempt := 0; attempt <= b.cfg.Retries; attempt++ {
		lastErr = b.store.SaveBatch(saveCtx, batchID, batch)
		if lastErr == nil {
			b.saved += len(batch)
			for _, rec := range batch {
				b.recorder.Record(rec.Text)
			}
			b.log.WithFields(logrus.Fields{
				"batch_id": batchID,
				"count":    len(batch),
			}).Debug("Batch saved")
			return nil
		}

		if attempt == b.cfg.Retries || !shouldRetryFlush(ctx, lastErr) {
			break
		}

		b.log.WithFields(logrus.Fields{
			"batch_id": batchID,
			"attempt":  attempt + 1,
		}).Warnf("Batch save failed: %v, retrying in %s", lastErr, b.cfg.RetryDelay)

		if err := sleepCtx(ctx, b.cfg.RetryDelay); err != nil {
			break
		}
	}

	b.dropped += len(batch)
	minID, maxID := idRange(batch)
	b.log.WithFields(logrus.Fields{
		"batch_id":       batchID,
		"count":          len(batch),
		"min_message_id": minID,
		"max_message_id": maxID,
	}).Errorf("Batch dropped: %v", lastErr)

	return fmt.Errorf("%w: batch %s: %v", ErrBatchDropped, batchID, lastErr)
}

// Len 缓冲区中的记录数
func (b *Batcher) Len() int { return len(b.buf) }

// Saved 已成功写入的记录数
func (b *Batcher) Saved() int { return b.saved }

// Dropped 重试耗尽后丢弃的记录数
func (b *Batcher) Dropped() int { return b.dropped }

// shouldRetryFlush 停止信号到达后不再重试
func shouldRetryFlush(ctx context.Context, err error) bool {
	if err == nil {
		return false
	}
	if ctx.Err() != nil {
		return false
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

func idRange(batch []*models.MessageRecord) (int64, int64) {
	var minID, maxID int64
	for i, rec := range batch {
		if i == 0 || rec.ID < minID {
			minID = rec.ID
		}
		if rec.ID > maxID {
			maxID = rec.ID
		}
	}
	return minID, maxID
}
