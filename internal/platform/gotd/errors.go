package gotd

import (
	"fmt"

	"github.com/gotd/td/tgerr"

	"github.com/Firdavs28033/tg-monitoring-back/internal/platform"
)

// mapError 将 RPC 错误归类到 platform 的错误类型
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if wait, ok := tgerr.AsFloodWait(err); ok {
		return &platform.RateLimitError{Wait: wait}
	}

	switch {
	case tgerr.Is(err, "USER_ALREADY_PARTICIPANT"):
		return fmt.Errorf("%w: %v", platform.ErrAlreadyParticipant, err)
	case tgerr.Is(err, "INVITE_HASH_EXPIRED", "INVITE_HASH_INVALID", "INVITE_HASH_EMPTY"):
		return fmt.Errorf("%w: %v", platform.ErrInviteExpired, err)
	case tgerr.Is(err, "PEER_ID_INVALID", "CHANNEL_INVALID", "CHANNEL_PRIVATE", "CHAT_ID_INVALID"):
		return fmt.Errorf("%w: %v", platform.ErrInvalidPeer, err)
	case tgerr.Is(err, "USERNAME_NOT_OCCUPIED", "USERNAME_INVALID"):
		return fmt.Errorf("%w: %v", platform.ErrNotFound, err)
	}
	return err
}
