package ingest

import (
	"context"
	"errors"
	"sync"

	"github.com/sirupsen/logrus"
)

// ErrQueueClosed 队列已关闭
var ErrQueueClosed = errors.New("queue closed")

// queueTask 队列任务
type queueTask struct {
	ctx context.Context
	fn  func(ctx context.Context)
}

// OrderedQueue 单 worker 的先进先出队列
// 同一账号的实时消息按平台投递顺序逐条处理，不会互相阻塞其它账号
type OrderedQueue struct {
	tasks  chan queueTask
	wg     sync.WaitGroup
	mu     sync.RWMutex
	closed bool
	log    *logrus.Entry
}

// NewOrderedQueue 创建队列并启动 worker
func NewOrderedQueue(size int, log *logrus.Entry) *OrderedQueue {
	if size <= 0 {
		size = 1
	}
	q := &OrderedQueue{
		tasks: make(chan queueTask, size),
		log:   log,
	}
	q.wg.Add(1)
	go q.worker()
	return q
}

// worker 工作协程
func (q *OrderedQueue) worker() {
	defer q.wg.Done()

	for task := range q.tasks {
		func() {
			defer func() {
				if r := recover(); r != nil {
					q.log.Errorf("Live handler panic recovered: %v", r)
				}
			}()
			task.fn(task.ctx)
		}()
	}
}

// Submit 提交任务，队列满时阻塞直到有空位或上下文取消
func (q *OrderedQueue) Submit(ctx context.Context, fn func(ctx context.Context)) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return ErrQueueClosed
	}

	select {
	case q.tasks <- queueTask{ctx: ctx, fn: fn}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown 停止接收新任务并等待已排队任务执行完毕
func (q *OrderedQueue) Shutdown() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.tasks)
	q.mu.Unlock()

	q.wg.Wait()
}
