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

// MongoConfigRepository 用户转发配置数据访问层（MongoDB 实现）
type MongoConfigRepository struct {
	collection *mongo.Collection
}

// NewMongoConfigRepository 创建配置 Repository
func NewMongoConfigRepository(db *mongo.Database) ConfigRepository {
	return &MongoConfigRepository{
		collection: db.Collection("user_configs"),
	}
}

// GetConfig 获取用户配置
// 没有记录时返回默认配置，而不是错误
func (r *MongoConfigRepository) GetConfig(ctx context.Context, userID int64) (*models.UserConfig, error) {
	var cfg models.UserConfig
	err := r.collection.FindOne(ctx, bson.M{"user_id": userID}).Decode(&cfg)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return models.DefaultUserConfig(userID), nil
		}
		return nil, fmt.Errorf("failed to get user config: %w", err)
	}

	return &cfg, nil
}

// SaveConfig 保存用户配置（按 user_id Upsert）
func (r *MongoConfigRepository) SaveConfig(ctx context.Context, cfg *models.UserConfig) error {
	now := time.Now()
	cfg.UpdatedAt = now

	filter := bson.M{"user_id": cfg.UserID}
	update := bson.M{
		"$set": bson.M{
			"filters":        cfg.Filters,
			"caption":        cfg.Caption,
			"button_text":    cfg.ButtonText,
			"button_url":     cfg.ButtonURL,
			"forward_tag":    cfg.ForwardTag,
			"protect":        cfg.Protect,
			"skip_duplicate": cfg.SkipDuplicate,
			"file_size":      cfg.FileSizeMB,
			"size_limit":     cfg.SizeLimit,
			"extensions":     cfg.Extensions,
			"keywords":       cfg.Keywords,
			"ftm_mode":       cfg.FTMMode,
			"updated_at":     cfg.UpdatedAt,
		},
		"$setOnInsert": bson.M{"created_at": now},
	}

	opts := options.Update().SetUpsert(true)
	_, err := r.collection.UpdateOne(ctx, filter, update, opts)
	if err != nil {
		return fmt.Errorf("failed to save user config: %w", err)
	}

	return nil
}

// EnsureIndexes 确保索引存在
func (r *MongoConfigRepository) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "user_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
	}

	_, err := r.collection.Indexes().CreateMany(ctx, indexes)
	if err != nil {
		return fmt.Errorf("failed to create indexes for user_configs: %w", err)
	}

	return nil
}
