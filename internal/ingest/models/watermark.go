package models

import "time"

// Watermark 每个群组的保存进度
// 首次保存时创建，之后只前进，不删除
//
// LastMessageID 是任意路径（回填或实时）保存过的最大消息 ID；
// BackfilledUpTo 只在一次回填完整结束后前进，表示 ID 不大于它的历史已全部扫描过，
// 下次回填从这里续传
type Watermark struct {
	ChatID         int64     `bson:"chat_id"`
	LastMessageID  int64     `bson:"last_message_id"`
	LastTimestamp  time.Time `bson:"last_timestamp"`
	BackfilledUpTo int64     `bson:"backfilled_up_to"`
	UpdatedAt      time.Time `bson:"updated_at"`
}

// BatchHighest 返回批次中每个群组 ID 最大的消息
func BatchHighest(records []*MessageRecord) map[int64]*MessageRecord {
	highest := make(map[int64]*MessageRecord)
	for _, rec := range records {
		if rec == nil {
			continue
		}
		if cur, ok := highest[rec.ChatID]; !ok || rec.ID > cur.ID {
			highest[rec.ChatID] = rec
		}
	}
	return highest
}
