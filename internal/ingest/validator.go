package ingest

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/Firdavs28033/tg-monitoring-back/internal/ingest/models"
)

// 文本校验阈值
const (
	MaxTokens        = 500 // 超过该词数视为异常长文本
	MaxShortTokenLen = 2   // 单个词且长度不超过该值视为噪音（表情、回应）
)

// ErrInvalidRecord 记录不满足持久化约束
var ErrInvalidRecord = errors.New("invalid message record")

// IsValidText 判断消息文本是否值得保存
// 空文本、纯空白、空消息占位符、单个短词、超过 500 个词的文本都会被拒绝
func IsValidText(text string) bool {
	if strings.TrimSpace(text) == "" || text == models.EmptyMessageText {
		return false
	}
	words := strings.Fields(text)
	if len(words) == 1 && utf8.RuneCountInString(words[0]) <= MaxShortTokenLen {
		return false
	}
	return len(words) <= MaxTokens
}

// ValidateRecord 校验规范化后的记录
func ValidateRecord(rec *models.MessageRecord) error {
	switch {
	case rec == nil:
		return fmt.Errorf("%w: nil record", ErrInvalidRecord)
	case rec.ID <= 0:
		return fmt.Errorf("%w: message id must be positive, got %d", ErrInvalidRecord, rec.ID)
	case rec.ChatID == 0:
		return fmt.Errorf("%w: chat id is empty", ErrInvalidRecord)
	case rec.AccountName == "":
		return fmt.Errorf("%w: account name is empty", ErrInvalidRecord)
	case !IsValidText(rec.Text):
		return fmt.Errorf("%w: text rejected", ErrInvalidRecord)
	case !models.IsMessageURL(rec.URL):
		return fmt.Errorf("%w: malformed url %q", ErrInvalidRecord, rec.URL)
	case rec.Attachment != nil && strings.TrimSpace(rec.Attachment.Path) == "":
		return fmt.Errorf("%w: attachment without file path", ErrInvalidRecord)
	case rec.Attachment != nil && rec.Attachment.Size < 0:
		return fmt.Errorf("%w: negative attachment size", ErrInvalidRecord)
	}
	return nil
}
