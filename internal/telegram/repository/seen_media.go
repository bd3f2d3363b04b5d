package repository

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoSeenMediaRepository 去重标识数据访问层（MongoDB 实现）
// 每条记录对应一个 用户+媒体内容标识，靠唯一索引保证幂等
type MongoSeenMediaRepository struct {
	collection *mongo.Collection
}

// NewMongoSeenMediaRepository 创建去重 Repository
func NewMongoSeenMediaRepository(db *mongo.Database) SeenMediaRepository {
	return &MongoSeenMediaRepository{
		collection: db.Collection("seen_media"),
	}
}

// MarkSeen 记录内容标识，已存在时返回 true
// 插入和查重必须是一个原子操作，否则恢复后的任务可能重复投递
func (r *MongoSeenMediaRepository) MarkSeen(ctx context.Context, userID int64, uniqueID string) (bool, error) {
	filter := bson.M{
		"user_id":   userID,
		"unique_id": uniqueID,
	}
	update := bson.M{
		"$setOnInsert": bson.M{
			"user_id":    userID,
			"unique_id":  uniqueID,
			"created_at": time.Now(),
		},
	}

	opts := options.Update().SetUpsert(true)
	result, err := r.collection.UpdateOne(ctx, filter, update, opts)
	if err != nil {
		return false, fmt.Errorf("failed to mark seen media: %w", err)
	}

	// MatchedCount > 0 说明标识已经存在，即重复
	return result.MatchedCount > 0, nil
}

// EnsureIndexes 确保索引存在
func (r *MongoSeenMediaRepository) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "user_id", Value: 1},
				{Key: "unique_id", Value: 1},
			},
			Options: options.Index().SetUnique(true),
		},
		// TTL 索引（30天自动过期）
		{
			Keys:    bson.D{{Key: "created_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(30 * 24 * 3600),
		},
	}

	_, err := r.collection.Indexes().CreateMany(ctx, indexes)
	if err != nil {
		return fmt.Errorf("failed to create indexes for seen_media: %w", err)
	}

	return nil
}
