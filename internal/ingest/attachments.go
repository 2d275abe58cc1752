package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Firdavs28033/tg-monitoring-back/internal/ingest/models"
	"github.com/Firdavs28033/tg-monitoring-back/internal/platform"
)

// downloadAttachment 下载消息中的图片，其它媒体类型不下载
// 返回 nil, nil 表示消息没有需要保存的附件
func downloadAttachment(ctx context.Context, session platform.Session, mediaDir string, chatID int64, raw *models.RawMessage) (*models.Attachment, error) {
	if raw.Media == nil || raw.Media.Kind != models.AttachmentPhoto {
		return nil, nil
	}

	nativeID, _ := models.SplitChatID(chatID)
	dir := filepath.Join(mediaDir, "photos")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create media dir: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("%d_%d.jpg", nativeID, raw.ID))

	size, err := session.Download(ctx, raw.Media, path)
	if err != nil {
		return nil, fmt.Errorf("download photo: %w", err)
	}
	if size <= 0 {
		size = raw.Media.Size
	}

	return &models.Attachment{
		Kind: models.AttachmentPhoto,
		Path: path,
		Size: size,
	}, nil
}
