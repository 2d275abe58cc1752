// Package gotd 基于 gotd/td 的用户账号会话（MTProto）
package gotd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gotd/td/session"
	"github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/telegram/updates"
	updhook "github.com/gotd/td/telegram/updates/hook"
	"github.com/gotd/td/tg"
	"github.com/sirupsen/logrus"

	"github.com/Firdavs28033/tg-monitoring-back/internal/ingest/models"
	"github.com/Firdavs28033/tg-monitoring-back/internal/logger"
	"github.com/Firdavs28033/tg-monitoring-back/internal/platform"
)

// Config 适配器配置
type Config struct {
	SessionDir string    // 会话文件目录，每个账号一个 <name>.json
	CodeInput  io.Reader // 登录验证码输入，默认标准输入
	DialogPage int       // 读取最近会话的条数
}

// NewDialer 返回为账号创建 gotd 会话的 Dialer
func NewDialer(cfg Config) platform.Dialer {
	if cfg.CodeInput == nil {
		cfg.CodeInput = os.Stdin
	}
	if cfg.DialogPage <= 0 {
		cfg.DialogPage = 100
	}
	prompt := &codePrompt{in: bufio.NewReader(cfg.CodeInput), out: os.Stdout}

	return func(_ context.Context, acc models.Account) (platform.Session, error) {
		if err := os.MkdirAll(cfg.SessionDir, 0o700); err != nil {
			return nil, fmt.Errorf("create session dir: %w", err)
		}
		return newSession(acc, cfg, prompt), nil
	}
}

// Session 单个账号的 gotd 客户端
type Session struct {
	account models.Account
	cfg     Config
	prompt  *codePrompt
	client  *telegram.Client
	rpc     *tg.Client
	log     *logrus.Entry

	// gaps 按 pts/qts 补齐断线期间漏掉的更新，再交给 dispatcher
	gaps       *updates.Manager
	dispatcher tg.UpdateDispatcher

	cancel context.CancelFunc
	done   chan struct{}

	mu         sync.RWMutex
	peers      map[int64]peerEntry
	recent     []int64 // 最近会话顺序
	subscribed map[int64]struct{}
	handler    platform.Handler
}

var _ platform.Session = (*Session)(nil)

func newSession(acc models.Account, cfg Config, prompt *codePrompt) *Session {
	s := &Session{
		account:    acc,
		cfg:        cfg,
		prompt:     prompt,
		log:        logger.Account(acc.Name),
		peers:      make(map[int64]peerEntry),
		subscribed: make(map[int64]struct{}),
	}

	s.dispatcher = tg.NewUpdateDispatcher()
	s.dispatcher.OnNewChannelMessage(func(ctx context.Context, e tg.Entities, u *tg.UpdateNewChannelMessage) error {
		s.onMessage(ctx, e, u.Message)
		return nil
	})
	s.dispatcher.OnNewMessage(func(ctx context.Context, e tg.Entities, u *tg.UpdateNewMessage) error {
		s.onMessage(ctx, e, u.Message)
		return nil
	})

	s.gaps = updates.New(updates.Config{Handler: s.dispatcher})

	s.client = telegram.NewClient(acc.AppID, acc.AppHash, telegram.Options{
		SessionStorage: &session.FileStorage{
			Path: filepath.Join(cfg.SessionDir, acc.Name+".json"),
		},
		UpdateHandler: s.gaps,
		Middlewares: []telegram.Middleware{
			updhook.UpdateHook(s.gaps.Handle),
		},
	})
	s.rpc = s.client.API()
	return s
}

// Name 账号名称
func (s *Session) Name() string { return s.account.Name }

// Start 连接并登录，登录完成并加载最近会话后返回
func (s *Session) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	ready := make(chan error, 1)

	go func() {
		defer close(s.done)
		err := s.client.Run(runCtx, func(ctx context.Context) error {
			if err := s.authenticate(ctx); err != nil {
				return err
			}
			self, err := s.client.Self(ctx)
			if err != nil {
				return fmt.Errorf("get self: %w", err)
			}
			if err := s.loadDialogs(ctx); err != nil {
				s.log.Warnf("Failed to load dialogs: %v", err)
			}
			// 阻塞到 ctx 取消；OnStart 在拿到初始更新状态后触发
			return s.gaps.Run(ctx, s.api(), self.ID, updates.AuthOptions{
				OnStart: func(context.Context) {
					select {
					case ready <- nil:
					default:
					}
				},
			})
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			s.log.Errorf("Client stopped: %v", err)
		}
		select {
		case ready <- fmt.Errorf("client stopped: %w", err):
		default:
		}
	}()

	select {
	case err := <-ready:
		if err != nil {
			cancel()
			return err
		}
		s.log.Info("Logged in")
		return nil
	case <-ctx.Done():
		cancel()
		<-s.done
		return ctx.Err()
	}
}

// Stop 断开连接
func (s *Session) Stop(ctx context.Context) error {
	if s.cancel == nil {
		return nil
	}
	s.cancel()
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) authenticate(ctx context.Context) error {
	flow := auth.NewFlow(
		auth.Constant(s.account.Phone, s.account.Password, auth.CodeAuthenticatorFunc(
			func(ctx context.Context, _ *tg.AuthSentCode) (string, error) {
				return s.prompt.ask(ctx, s.account.Name, s.account.Phone)
			},
		)),
		auth.SendCodeOptions{},
	)
	if err := s.client.Auth().IfNecessary(ctx, flow); err != nil {
		return fmt.Errorf("auth: %w", err)
	}
	return nil
}

func (s *Session) api() *tg.Client {
	return s.rpc
}

// remember 缓存会话元数据和 InputPeer
func (s *Session) remember(chats []tg.ChatClass) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range chats {
		if entry, ok := convertChat(c); ok {
			s.peers[entry.info.ID] = entry
		}
	}
}

func (s *Session) peer(chatID int64) (peerEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.peers[chatID]
	return entry, ok
}

// onMessage 实时更新：只投递已订阅群组的普通消息
func (s *Session) onMessage(ctx context.Context, e tg.Entities, m tg.MessageClass) {
	msg, ok := m.(*tg.Message)
	if !ok {
		return
	}
	chatID, ok := peerChatID(msg.PeerID)
	if !ok {
		return
	}

	s.mu.RLock()
	_, subscribed := s.subscribed[chatID]
	handler := s.handler
	s.mu.RUnlock()
	if !subscribed || handler == nil {
		return
	}

	raw := convertMessage(msg, chatID, e.Users)
	if raw == nil {
		return
	}
	handler(ctx, raw)
}

// Subscribe 注册实时消息回调
func (s *Session) Subscribe(chatIDs []int64, handler platform.Handler) error {
	if handler == nil {
		return fmt.Errorf("nil handler")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range chatIDs {
		s.subscribed[id] = struct{}{}
	}
	s.handler = handler
	return nil
}

// codePrompt 从终端读取验证码，多个账号依次输入
type codePrompt struct {
	mu  sync.Mutex
	in  *bufio.Reader
	out io.Writer
}

func (p *codePrompt) ask(ctx context.Context, account, phone string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return "", err
	}
	fmt.Fprintf(p.out, "[%s] Enter the login code sent to %s: ", account, phone)
	line, err := p.in.ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("read login code: %w", err)
	}
	code := strings.TrimSpace(line)
	if code == "" {
		return "", fmt.Errorf("empty login code")
	}
	return code, nil
}
