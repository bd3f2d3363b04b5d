package repository

import (
	"context"
	"fmt"
	"time"

	"forward_bot/internal/telegram/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoMessageRepository 消息归档数据访问层（MongoDB 实现）
type MongoMessageRepository struct {
	collection *mongo.Collection
}

// NewMongoMessageRepository 创建消息归档 Repository
func NewMongoMessageRepository(db *mongo.Database) MessageRepository {
	return &MongoMessageRepository{
		collection: db.Collection("messages"),
	}
}

// CreateMessage 归档消息记录
func (r *MongoMessageRepository) CreateMessage(ctx context.Context, message *models.Message) error {
	now := time.Now()
	message.CreatedAt = now
	message.UpdatedAt = now

	// 使用 Upsert 模式，避免重复插入
	filter := bson.M{
		"telegram_message_id": message.TelegramMessageID,
		"chat_id":             message.ChatID,
	}

	setFields := bson.M{
		"user_id":         message.UserID,
		"message_type":    message.MessageType,
		"text":            message.Text,
		"caption":         message.Caption,
		"media_file_id":   message.MediaFileID,
		"media_unique_id": message.MediaUniqueID,
		"media_file_name": message.MediaFileName,
		"media_file_size": message.MediaFileSize,
		"media_mime_type": message.MediaMimeType,
		"sent_at":         message.SentAt,
		"updated_at":      message.UpdatedAt,
	}

	update := bson.M{
		"$set":         setFields,
		"$setOnInsert": bson.M{"created_at": message.CreatedAt},
	}

	opts := options.Update().SetUpsert(true)
	_, err := r.collection.UpdateOne(ctx, filter, update, opts)
	if err != nil {
		return fmt.Errorf("failed to create message: %w", err)
	}

	return nil
}

// GetByTelegramID 根据 Telegram 消息 ID 和聊天 ID 获取消息
func (r *MongoMessageRepository) GetByTelegramID(ctx context.Context, telegramMessageID, chatID int64) (*models.Message, error) {
	filter := bson.M{
		"telegram_message_id": telegramMessageID,
		"chat_id":             chatID,
	}

	var message models.Message
	err := r.collection.FindOne(ctx, filter).Decode(&message)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, fmt.Errorf("message not found: message_id=%d, chat_id=%d", telegramMessageID, chatID)
		}
		return nil, fmt.Errorf("failed to get message: %w", err)
	}

	return &message, nil
}

// ListRange 按消息 ID 升序列出区间消息
// 游标不可续用，恢复位置后需要以新的 fromID 重新调用
func (r *MongoMessageRepository) ListRange(ctx context.Context, chatID, fromID int64, count int64) ([]*models.Message, error) {
	filter := bson.M{
		"chat_id":             chatID,
		"telegram_message_id": bson.M{"$gte": fromID},
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "telegram_message_id", Value: 1}}).
		SetLimit(count)

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list message range: %w", err)
	}
	defer cursor.Close(ctx)

	var messages []*models.Message
	if err := cursor.All(ctx, &messages); err != nil {
		return nil, fmt.Errorf("failed to decode messages: %w", err)
	}

	return messages, nil
}

// CountFrom 统计区间内的消息数
func (r *MongoMessageRepository) CountFrom(ctx context.Context, chatID, fromID int64) (int64, error) {
	filter := bson.M{
		"chat_id":             chatID,
		"telegram_message_id": bson.M{"$gte": fromID},
	}

	count, err := r.collection.CountDocuments(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("failed to count messages: %w", err)
	}

	return count, nil
}

// EnsureIndexes 确保索引存在
func (r *MongoMessageRepository) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "telegram_message_id", Value: 1},
				{Key: "chat_id", Value: 1},
			},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{
				{Key: "chat_id", Value: 1},
				{Key: "telegram_message_id", Value: 1},
			},
		},
		{
			Keys: bson.D{{Key: "message_type", Value: 1}},
		},
	}

	_, err := r.collection.Indexes().CreateMany(ctx, indexes)
	if err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}

	return nil
}
