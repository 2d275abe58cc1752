package platform

import (
	"errors"
	"fmt"
	"time"
)

// 平台错误分类
var (
	ErrInvalidPeer        = errors.New("invalid peer")
	ErrInviteExpired      = errors.New("invite link expired")
	ErrAlreadyParticipant = errors.New("already a participant")
	ErrNotFound           = errors.New("chat not found")
)

// RateLimitError 平台限流，Wait 为平台要求的等待时间
type RateLimitError struct {
	Wait time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.Wait)
}

// IsRateLimited 判断是否为限流错误，返回平台要求的等待时间
func IsRateLimited(err error) (time.Duration, bool) {
	var rl *RateLimitError
	if errors.As(err, &rl) {
		return rl.Wait, true
	}
	return 0, false
}
