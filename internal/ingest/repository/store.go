package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/Firdavs28033/tg-monitoring-back/internal/ingest/models"
)

// 集合名称
const (
	GroupsCollection     = "groups"
	UsersCollection      = "users"
	MessagesCollection   = "messages"
	WatermarksCollection = "watermarks"
)

// MongoStore 采集数据的 MongoDB 存储
type MongoStore struct {
	client       *mongo.Client
	groups       *mongo.Collection
	users        *mongo.Collection
	messages     *mongo.Collection
	watermarks   *mongo.Collection
	transactions bool
}

// NewMongoStore 创建存储
// transactions 为 true 时每个批次在一个事务中写入（需要副本集）
func NewMongoStore(db *mongo.Database, transactions bool) *MongoStore {
	return &MongoStore{
		client:       db.Client(),
		groups:       db.Collection(GroupsCollection),
		users:        db.Collection(UsersCollection),
		messages:     db.Collection(MessagesCollection),
		watermarks:   db.Collection(WatermarksCollection),
		transactions: transactions,
	}
}

// SaveBatch 保存一批记录：群组/用户 upsert，消息按 (message_id, chat_id) 去重插入，推进 watermark
// 事务模式下任一步失败整批回滚
func (s *MongoStore) SaveBatch(ctx context.Context, batchID string, records []*models.MessageRecord) error {
	if len(records) == 0 {
		return nil
	}

	if !s.transactions || s.client == nil {
		if err := s.saveBatch(ctx, records); err != nil {
			return fmt.Errorf("failed to save batch %s: %w", batchID, err)
		}
		return nil
	}

	session, err := s.client.StartSession()
	if err != nil {
		return fmt.Errorf("failed to start session for batch %s: %w", batchID, err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, s.saveBatch(sc, records)
	})
	if err != nil {
		return fmt.Errorf("failed to save batch %s: %w", batchID, err)
	}
	return nil
}

func (s *MongoStore) saveBatch(ctx context.Context, records []*models.MessageRecord) error {
	now := time.Now().UTC()

	groups := make(map[int64]*models.MessageRecord)
	users := make(map[int64]*models.MessageRecord)
	for _, rec := range records {
		groups[rec.ChatID] = rec
		if rec.UserID != 0 {
			users[rec.UserID] = rec
		}
	}

	for _, rec := range groups {
		if err := s.upsertGroup(ctx, models.GroupFromRecord(rec), now); err != nil {
			return err
		}
	}
	for _, rec := range users {
		if err := s.upsertUser(ctx, models.UserFromRecord(rec), now); err != nil {
			return err
		}
	}

	if err := s.insertMessages(ctx, records, now); err != nil {
		return err
	}

	for _, rec := range models.BatchHighest(records) {
		if err := s.advanceWatermark(ctx, rec, now); err != nil {
			return err
		}
	}
	return nil
}

// upsertGroup 创建或更新群组，只覆盖已知的非空字段
func (s *MongoStore) upsertGroup(ctx context.Context, group *models.Group, now time.Time) error {
	setFields := bson.M{
		"title":      group.Title,
		"is_active":  true,
		"updated_at": now,
	}
	if group.Type != "" {
		setFields["type"] = group.Type
	}
	if group.Username != "" {
		setFields["username"] = group.Username
	}
	if group.Description != "" {
		setFields["description"] = group.Description
	}
	if group.MemberCount > 0 {
		setFields["member_count"] = group.MemberCount
	}

	update := bson.M{
		"$set":         setFields,
		"$setOnInsert": bson.M{"created_at": now},
	}

	opts := options.Update().SetUpsert(true)
	if _, err := s.groups.UpdateOne(ctx, bson.M{"telegram_id": group.TelegramID}, update, opts); err != nil {
		return fmt.Errorf("failed to upsert group %d: %w", group.TelegramID, err)
	}
	return nil
}

// upsertUser 创建或更新用户
func (s *MongoStore) upsertUser(ctx context.Context, user *models.User, now time.Time) error {
	if user == nil {
		return nil
	}

	setFields := bson.M{
		"is_bot":     user.IsBot,
		"updated_at": now,
	}
	if user.FirstName != "" {
		setFields["first_name"] = user.FirstName
	}
	if user.Username != "" {
		setFields["username"] = user.Username
	}

	update := bson.M{
		"$set":         setFields,
		"$setOnInsert": bson.M{"created_at": now},
	}

	opts := options.Update().SetUpsert(true)
	if _, err := s.users.UpdateOne(ctx, bson.M{"telegram_id": user.TelegramID}, update, opts); err != nil {
		return fmt.Errorf("failed to upsert user %d: %w", user.TelegramID, err)
	}
	return nil
}

// insertMessages 按 (message_id, chat_id) upsert，已存在的消息保持不变
func (s *MongoStore) insertMessages(ctx context.Context, records []*models.MessageRecord, now time.Time) error {
	writes := make([]mongo.WriteModel, 0, len(records))
	for _, rec := range records {
		doc := *rec
		doc.CreatedAt = now
		writes = append(writes, mongo.NewUpdateOneModel().
			SetFilter(bson.M{"message_id": rec.ID, "chat_id": rec.ChatID}).
			SetUpdate(bson.M{"$setOnInsert": doc}).
			SetUpsert(true))
	}

	if _, err := s.messages.BulkWrite(ctx, writes, options.BulkWrite().SetOrdered(true)); err != nil {
		return fmt.Errorf("failed to insert %d messages: %w", len(records), err)
	}
	return nil
}

// advanceWatermark 仅在新消息 ID 更大时更新
func (s *MongoStore) advanceWatermark(ctx context.Context, rec *models.MessageRecord, now time.Time) error {
	current, err := s.GetWatermark(ctx, rec.ChatID)
	if err != nil {
		return err
	}
	if current != nil && current.LastMessageID >= rec.ID {
		return nil
	}

	update := bson.M{
		"$set": bson.M{
			"last_message_id": rec.ID,
			"last_timestamp":  rec.SentAt,
			"updated_at":      now,
		},
	}
	opts := options.Update().SetUpsert(true)
	if _, err := s.watermarks.UpdateOne(ctx, bson.M{"chat_id": rec.ChatID}, update, opts); err != nil {
		return fmt.Errorf("failed to update watermark of chat %d: %w", rec.ChatID, err)
	}
	return nil
}

// MarkBackfilled 推进回填续传边界，$max 保证不会后退
// 与 advanceWatermark 写不同字段，实时保存不影响续传边界
func (s *MongoStore) MarkBackfilled(ctx context.Context, chatID, upTo int64) error {
	update := bson.M{
		"$max": bson.M{"backfilled_up_to": upTo},
		"$set": bson.M{"updated_at": time.Now().UTC()},
	}
	opts := options.Update().SetUpsert(true)
	if _, err := s.watermarks.UpdateOne(ctx, bson.M{"chat_id": chatID}, update, opts); err != nil {
		return fmt.Errorf("failed to mark chat %d backfilled up to %d: %w", chatID, upTo, err)
	}
	return nil
}

// GetWatermark 读取群组 watermark，不存在时返回 nil, nil
func (s *MongoStore) GetWatermark(ctx context.Context, chatID int64) (*models.Watermark, error) {
	var wm models.Watermark
	err := s.watermarks.FindOne(ctx, bson.M{"chat_id": chatID}).Decode(&wm)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get watermark of chat %d: %w", chatID, err)
	}
	return &wm, nil
}

// ListMessages 按发送时间倒序分页列出消息，chatID 为 0 时不过滤群组
func (s *MongoStore) ListMessages(ctx context.Context, chatID int64, limit, offset int64) ([]*models.MessageRecord, error) {
	filter := bson.M{}
	if chatID != 0 {
		filter["chat_id"] = chatID
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "sent_at", Value: -1}}).
		SetLimit(limit).
		SetSkip(offset)

	cursor, err := s.messages.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer cursor.Close(ctx)

	messages := make([]*models.MessageRecord, 0)
	if err := cursor.All(ctx, &messages); err != nil {
		return nil, fmt.Errorf("failed to decode messages: %w", err)
	}
	return messages, nil
}

// CountMessages 统计消息数量，chatID 为 0 时统计全部
func (s *MongoStore) CountMessages(ctx context.Context, chatID int64) (int64, error) {
	filter := bson.M{}
	if chatID != 0 {
		filter["chat_id"] = chatID
	}
	count, err := s.messages.CountDocuments(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("failed to count messages: %w", err)
	}
	return count, nil
}

// EnsureIndexes 确保索引存在
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	if _, err := s.groups.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "telegram_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	}); err != nil {
		return fmt.Errorf("failed to create group indexes: %w", err)
	}

	if _, err := s.users.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "telegram_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	}); err != nil {
		return fmt.Errorf("failed to create user indexes: %w", err)
	}

	messageIndexes := []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "message_id", Value: 1},
				{Key: "chat_id", Value: 1},
			},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{
				{Key: "chat_id", Value: 1},
				{Key: "sent_at", Value: -1},
			},
		},
		{
			Keys: bson.D{{Key: "user_id", Value: 1}},
		},
	}
	if _, err := s.messages.Indexes().CreateMany(ctx, messageIndexes); err != nil {
		return fmt.Errorf("failed to create message indexes: %w", err)
	}

	if _, err := s.watermarks.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "chat_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	}); err != nil {
		return fmt.Errorf("failed to create watermark indexes: %w", err)
	}

	return nil
}
