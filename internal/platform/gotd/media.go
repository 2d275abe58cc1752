package gotd

import (
	"context"
	"fmt"
	"os"

	"github.com/gotd/td/telegram/downloader"
	"github.com/gotd/td/tg"

	"github.com/Firdavs28033/tg-monitoring-back/internal/ingest/models"
)

// Download 下载图片到 path，返回文件大小
func (s *Session) Download(ctx context.Context, media *models.Media, path string) (int64, error) {
	if media == nil {
		return 0, fmt.Errorf("no media")
	}
	photo, ok := media.Handle.(*tg.Photo)
	if !ok {
		return 0, fmt.Errorf("unsupported media %q", media.Kind)
	}

	thumb, _ := largestPhotoSize(photo.Sizes)
	loc := &tg.InputPhotoFileLocation{
		ID:            photo.ID,
		AccessHash:    photo.AccessHash,
		FileReference: photo.FileReference,
		ThumbSize:     thumb,
	}

	if _, err := downloader.NewDownloader().Download(s.api(), loc).ToPath(ctx, path); err != nil {
		return 0, mapError(err)
	}

	stat, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("stat downloaded file: %w", err)
	}
	return stat.Size(), nil
}
