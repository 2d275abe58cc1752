package ingest

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrLimiterClosed 限速器已关闭
var ErrLimiterClosed = errors.New("history rate limiter closed")

// RateLimiter 历史分页请求限速
// 同一账号下所有群组共享一个实例，容量为一秒的请求数
type RateLimiter struct {
	permits chan struct{}
	done    chan struct{}
	once    sync.Once
	every   time.Duration
}

// NewRateLimiter 每秒最多 pagesPerSecond 次请求；<= 0 时返回 nil，表示不限速
func NewRateLimiter(pagesPerSecond int) *RateLimiter {
	if pagesPerSecond <= 0 {
		return nil
	}
	r := &RateLimiter{
		permits: make(chan struct{}, pagesPerSecond),
		done:    make(chan struct{}),
		every:   time.Second / time.Duration(pagesPerSecond),
	}
	for len(r.permits) < cap(r.permits) {
		r.permits <- struct{}{}
	}
	go r.replenish()
	return r
}

// Wait 取得一次请求许可
func (r *RateLimiter) Wait(ctx context.Context) error {
	if r == nil {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-r.done:
		return ErrLimiterClosed
	case <-r.permits:
		return nil
	}
}

func (r *RateLimiter) replenish() {
	ticker := time.NewTicker(r.every)
	defer ticker.Stop()
	for {
		select {
		case <-r.done:
			return
		case <-ticker.C:
		}
		select {
		case r.permits <- struct{}{}:
		default:
		}
	}
}

// Close 停止补充许可，可重复调用
func (r *RateLimiter) Close() {
	if r == nil {
		return
	}
	r.once.Do(func() { close(r.done) })
}

// sleepCtx 等待 d，上下文取消时提前返回
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
