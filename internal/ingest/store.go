package ingest

import (
	"context"

	"github.com/Firdavs28033/tg-monitoring-back/internal/ingest/models"
)

// Store 持久化协作者
type Store interface {
	// SaveBatch 在一个事务内保存整批记录（群组/用户 upsert、消息去重插入、推进 watermark）
	SaveBatch(ctx context.Context, batchID string, records []*models.MessageRecord) error

	// GetWatermark 读取群组 watermark，不存在时返回 nil, nil
	GetWatermark(ctx context.Context, chatID int64) (*models.Watermark, error)

	// MarkBackfilled 记录群组历史已完整扫描到 upTo，只前进不后退
	MarkBackfilled(ctx context.Context, chatID, upTo int64) error
}

// TextRecorder 接收已保存消息文本的统计组件
type TextRecorder interface {
	Record(text string)
}

// Reporter 采集进度通知
type Reporter interface {
	// BackfillFinished 单个群组历史回填结束
	BackfillFinished(ctx context.Context, account string, chat *models.ResolvedChat, report BackfillReport)

	// AccountReady 账号完成解析、回填并开始监听
	AccountReady(ctx context.Context, account string, chats []*models.ResolvedChat)
}

type nopRecorder struct{}

func (nopRecorder) Record(string) {}

type nopReporter struct{}

func (nopReporter) BackfillFinished(context.Context, string, *models.ResolvedChat, BackfillReport) {}

func (nopReporter) AccountReady(context.Context, string, []*models.ResolvedChat) {}
