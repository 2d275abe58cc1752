// Package platform 定义消息平台客户端的能力边界
// 采集流程只依赖这里的接口，具体协议由适配器实现（见 platform/gotd）
package platform

import (
	"context"

	"github.com/Firdavs28033/tg-monitoring-back/internal/ingest/models"
)

// Handler 实时消息回调
type Handler func(ctx context.Context, msg *models.RawMessage)

// HistoryQuery 历史消息拉取参数
type HistoryQuery struct {
	MinID    int64 // 只返回 ID 大于 MinID 的消息，0 表示全部
	PageSize int   // 每页条数提示
}

// HistoryIterator 历史消息迭代器
//
//	for it.Next(ctx) { msg := it.Value() }
//	if err := it.Err(); err != nil { ... }
type HistoryIterator interface {
	Next(ctx context.Context) bool
	Value() *models.RawMessage
	Err() error
}

// Session 单个账号的平台会话
// 由 AccountCoordinator 持有，并显式传给 resolver/backfiller/ingestor
type Session interface {
	// Name 账号名称
	Name() string

	// Start 建立连接并完成登录，登录就绪后返回
	Start(ctx context.Context) error

	// Stop 断开连接
	Stop(ctx context.Context) error

	// ChatByID 按 chat id 查询群组元数据
	ChatByID(ctx context.Context, chatID int64) (*models.ChatInfo, error)

	// ChatByHandle 按 @handle 查询群组
	ChatByHandle(ctx context.Context, handle string) (*models.ChatInfo, error)

	// JoinInvite 通过邀请链接加入群组（非幂等）
	JoinInvite(ctx context.Context, link string) (*models.ChatInfo, error)

	// InvitePreview 查看邀请链接指向的群组（已是成员时可用）
	InvitePreview(ctx context.Context, link string) (*models.ChatInfo, error)

	// RecentGroup 账号最近会话中的第一个群组
	RecentGroup(ctx context.Context) (*models.ChatInfo, error)

	// History 拉取群组历史消息
	History(ctx context.Context, chat *models.ChatInfo, q HistoryQuery) HistoryIterator

	// Subscribe 注册实时消息回调，仅投递 chatIDs 中的群组
	Subscribe(chatIDs []int64, handler Handler) error

	// Download 下载附件到 path，返回字节数
	Download(ctx context.Context, media *models.Media, path string) (int64, error)
}

// Dialer 为账号创建会话
type Dialer func(ctx context.Context, account models.Account) (Session, error)

// SliceIterator 基于切片的迭代器，适配器和测试共用
type SliceIterator struct {
	items []*models.RawMessage
	pos   int
	err   error
}

// NewSliceIterator 创建切片迭代器，err 在遍历结束后由 Err 返回
func NewSliceIterator(items []*models.RawMessage, err error) *SliceIterator {
	return &SliceIterator{items: items, pos: -1, err: err}
}

// Next 前进到下一条
func (it *SliceIterator) Next(ctx context.Context) bool {
	if ctx.Err() != nil {
		if it.err == nil {
			it.err = ctx.Err()
		}
		return false
	}
	if it.pos+1 >= len(it.items) {
		return false
	}
	it.pos++
	return true
}

// Value 当前消息
func (it *SliceIterator) Value() *models.RawMessage {
	if it.pos < 0 || it.pos >= len(it.items) {
		return nil
	}
	return it.items[it.pos]
}

// Err 迭代错误
func (it *SliceIterator) Err() error {
	return it.err
}
