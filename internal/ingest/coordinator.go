// Package ingest 实现多账号消息采集流程：
// 群组解析、历史回填（watermark 续传）、实时监听、批量写入
package ingest

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Firdavs28033/tg-monitoring-back/internal/ingest/models"
	"github.com/Firdavs28033/tg-monitoring-back/internal/logger"
	"github.com/Firdavs28033/tg-monitoring-back/internal/platform"
)

// ErrNoAccounts 没有任何凭证完整的账号
var ErrNoAccounts = errors.New("no account with complete credentials")

// Config 采集流程配置
type Config struct {
	Backfill        BackfillConfig
	Live            LiveConfig
	ResolveCooldown time.Duration // 解析失败后的固定等待
	GroupDelay      time.Duration // 相邻群组回填之间的固定等待
	PagesPerSecond  int           // 每个账号每秒最多拉取的历史页数
	StopTimeout     time.Duration // 关闭会话的超时时间
}

// Coordinator 为每个账号启动一个会话和一个独立采集任务
type Coordinator struct {
	dial     platform.Dialer
	store    Store
	cfg      Config
	recorder TextRecorder
	reporter Reporter

	mu       sync.Mutex
	sessions []platform.Session
	live     []*LiveIngestor
}

// NewCoordinator 创建 Coordinator，recorder/reporter 可为 nil
func NewCoordinator(dial platform.Dialer, store Store, cfg Config, recorder TextRecorder, reporter Reporter) *Coordinator {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	if reporter == nil {
		reporter = nopReporter{}
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = 10 * time.Second
	}
	return &Coordinator{
		dial:     dial,
		store:    store,
		cfg:      cfg,
		recorder: recorder,
		reporter: reporter,
	}
}

// Run 启动全部账号并阻塞到 ctx 取消
// 凭证不完整的账号记录错误后跳过；一个可用账号都没有时返回 ErrNoAccounts
func (c *Coordinator) Run(ctx context.Context, accounts []models.Account) error {
	usable := make([]models.Account, 0, len(accounts))
	for _, acc := range accounts {
		if err := acc.Validate(); err != nil {
			logger.Account(acc.Name).Errorf("Incomplete credentials, account skipped: %v", err)
			continue
		}
		usable = append(usable, acc)
	}
	if len(usable) == 0 {
		return ErrNoAccounts
	}

	logger.L().Infof("Starting %d accounts", len(usable))

	// 账号之间互不影响，单个任务失败不取消其它任务
	var g errgroup.Group
	for _, acc := range usable {
		acc := acc
		g.Go(func() error {
			c.runAccount(ctx, acc)
			return nil
		})
	}
	_ = g.Wait()

	if ctx.Err() == nil {
		logger.L().Info("All accounts started, waiting for new messages")
		<-ctx.Done()
	}

	c.shutdown()
	return nil
}

// runAccount 单个账号：启动会话 → 顺序解析群组 → 逐个回填 → 注册实时监听
func (c *Coordinator) runAccount(ctx context.Context, acc models.Account) {
	log := logger.Account(acc.Name)

	session, err := c.dial(ctx, acc)
	if err != nil {
		log.Errorf("Failed to create session: %v", err)
		return
	}
	if err := session.Start(ctx); err != nil {
		log.Errorf("Failed to start session: %v", err)
		return
	}
	c.track(session, nil)
	log.Infof("Session started, %d groups configured", len(acc.Groups))

	if len(acc.Groups) == 0 {
		log.Warn("No groups configured, nothing to ingest")
		return
	}

	resolver := NewChatResolver(session, c.cfg.ResolveCooldown)
	chats := resolver.ResolveAll(ctx, acc.Groups)
	if len(chats) == 0 {
		log.Warn("No chat could be resolved")
		return
	}

	limiter := NewRateLimiter(c.cfg.PagesPerSecond)
	defer limiter.Close()
	backfiller := NewHistoryBackfiller(c.store, c.cfg.Backfill, limiter, c.recorder)

	for i, chat := range chats {
		if ctx.Err() != nil {
			return
		}
		report, err := backfiller.Backfill(ctx, session, chat)
		if err != nil {
			log.WithField("chat_id", chat.ID).Errorf("Backfill failed: %v", err)
		}
		c.reporter.BackfillFinished(ctx, acc.Name, chat, report)

		if i < len(chats)-1 {
			if err := sleepCtx(ctx, c.cfg.GroupDelay); err != nil {
				return
			}
		}
	}

	live := NewLiveIngestor(session, c.store, c.cfg.Live, c.recorder)
	if err := live.Register(ctx, chats); err != nil {
		log.Errorf("Failed to register live handler: %v", err)
		live.Close()
		return
	}
	c.track(nil, live)
	c.reporter.AccountReady(ctx, acc.Name, chats)
}

func (c *Coordinator) track(session platform.Session, live *LiveIngestor) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if session != nil {
		c.sessions = append(c.sessions, session)
	}
	if live != nil {
		c.live = append(c.live, live)
	}
}

// shutdown 先排空实时队列，再关闭会话
func (c *Coordinator) shutdown() {
	c.mu.Lock()
	live := c.live
	sessions := c.sessions
	c.live = nil
	c.sessions = nil
	c.mu.Unlock()

	for _, l := range live {
		l.Close()
	}

	for _, s := range sessions {
		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.StopTimeout)
		if err := s.Stop(ctx); err != nil {
			logger.Account(s.Name()).Warnf("Failed to stop session: %v", err)
		}
		cancel()
	}
	logger.L().Info("Ingestion stopped")
}
