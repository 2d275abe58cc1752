// Package notify 通过 Telegram Bot 向管理员发送采集进度
package notify

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	botModels "github.com/go-telegram/bot/models"

	"github.com/Firdavs28033/tg-monitoring-back/internal/ingest"
	"github.com/Firdavs28033/tg-monitoring-back/internal/ingest/models"
	"github.com/Firdavs28033/tg-monitoring-back/internal/logger"
)

const sendTimeout = 10 * time.Second

// Config 通知配置
type Config struct {
	Token       string // Bot Token
	AdminChatID int64  // 接收报告的会话
	ServerURL   string // Bot API 地址，为空使用官方地址
}

// Notifier 管理员通知，实现 ingest.Reporter
// 发送失败只记录日志，不影响采集
type Notifier struct {
	bot     *bot.Bot
	adminID int64
}

var _ ingest.Reporter = (*Notifier)(nil)

// New 创建通知器，不调用 getMe
func New(cfg Config) (*Notifier, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("bot token cannot be empty")
	}
	if cfg.AdminChatID == 0 {
		return nil, fmt.Errorf("admin chat id cannot be empty")
	}

	opts := []bot.Option{bot.WithSkipGetMe()}
	if cfg.ServerURL != "" {
		opts = append(opts, bot.WithServerURL(cfg.ServerURL))
	}

	b, err := bot.New(cfg.Token, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	return &Notifier{bot: b, adminID: cfg.AdminChatID}, nil
}

// BackfillFinished 单个群组回填完成报告
func (n *Notifier) BackfillFinished(ctx context.Context, account string, chat *models.ResolvedChat, report ingest.BackfillReport) {
	n.send(ctx, FormatBackfillReport(account, chat, report))
}

// AccountReady 账号开始监听报告
func (n *Notifier) AccountReady(ctx context.Context, account string, chats []*models.ResolvedChat) {
	n.send(ctx, FormatAccountReady(account, chats))
}

// Send 发送任意文本（HTML）
func (n *Notifier) Send(ctx context.Context, text string) {
	n.send(ctx, text)
}

func (n *Notifier) send(ctx context.Context, text string) {
	// 停止过程中的报告也要送达
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sendTimeout)
	defer cancel()

	_, err := n.bot.SendMessage(sendCtx, &bot.SendMessageParams{
		ChatID:    n.adminID,
		Text:      text,
		ParseMode: botModels.ParseModeHTML,
	})
	if err != nil {
		logger.L().Errorf("Failed to send report to admin chat %d: %v", n.adminID, err)
	}
}

// FormatBackfillReport 回填报告文本
func FormatBackfillReport(account string, chat *models.ResolvedChat, report ingest.BackfillReport) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📥 <b>%s</b> history collected\n", html.EscapeString(chat.Info.DisplayName()))
	fmt.Fprintf(&b, "Account: <code>%s</code>\n", html.EscapeString(account))
	fmt.Fprintf(&b, "Chat: <code>%d</code>\n", chat.ID)
	fmt.Fprintf(&b, "Scanned: %d, saved: %d, skipped: %d", report.Scanned, report.Saved, report.Skipped)
	if report.Dropped > 0 {
		fmt.Fprintf(&b, "\n⚠️ Dropped: %d", report.Dropped)
	}
	if report.ResumeFrom > 0 {
		fmt.Fprintf(&b, "\nResumed after message %d", report.ResumeFrom)
	}
	fmt.Fprintf(&b, "\nTook %s", report.Duration.Round(time.Second))
	return b.String()
}

// FormatAccountReady 账号就绪报告文本
func FormatAccountReady(account string, chats []*models.ResolvedChat) string {
	var b strings.Builder
	fmt.Fprintf(&b, "✅ <code>%s</code> is listening to %d chats", html.EscapeString(account), len(chats))
	for _, chat := range chats {
		fmt.Fprintf(&b, "\n• %s (<code>%d</code>)", html.EscapeString(chat.Info.DisplayName()), chat.ID)
	}
	return b.String()
}
