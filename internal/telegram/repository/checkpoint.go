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

// MongoCheckpointRepository 任务检查点数据访问层（MongoDB 实现）
type MongoCheckpointRepository struct {
	collection *mongo.Collection
}

// NewMongoCheckpointRepository 创建检查点 Repository
func NewMongoCheckpointRepository(db *mongo.Database) CheckpointRepository {
	return &MongoCheckpointRepository{
		collection: db.Collection("checkpoints"),
	}
}

// Save 写入或刷新检查点
func (r *MongoCheckpointRepository) Save(ctx context.Context, cp *models.Checkpoint) error {
	now := time.Now()
	cp.UpdatedAt = now

	filter := bson.M{"job_id": cp.JobID}
	update := bson.M{
		"$set": bson.M{
			"user_id":                 cp.UserID,
			"source_chat":             cp.SourceChat,
			"target_chat":             cp.TargetChat,
			"last_fetched_message_id": cp.LastFetchedMessageID,
			"original_skip":           cp.OriginalSkip,
			"total_scanned":           cp.TotalScanned,
			"processed_count":         cp.ProcessedCount,
			"state":                   cp.State,
			"acknowledged":            cp.Acknowledged,
			"resumed":                 cp.Resumed,
			"updated_at":              cp.UpdatedAt,
		},
		"$setOnInsert": bson.M{"created_at": now},
	}

	opts := options.Update().SetUpsert(true)
	_, err := r.collection.UpdateOne(ctx, filter, update, opts)
	if err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}

	return nil
}

// MarkState 将检查点置为指定状态
func (r *MongoCheckpointRepository) MarkState(ctx context.Context, jobID, state string) error {
	update := bson.M{
		"$set": bson.M{
			"state":      state,
			"updated_at": time.Now(),
		},
	}

	result, err := r.collection.UpdateOne(ctx, bson.M{"job_id": jobID}, update)
	if err != nil {
		return fmt.Errorf("failed to mark checkpoint state: %w", err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("checkpoint not found: job_id=%s", jobID)
	}

	return nil
}

// Acknowledge 标记终态已通知用户
func (r *MongoCheckpointRepository) Acknowledge(ctx context.Context, jobID string) error {
	update := bson.M{
		"$set": bson.M{
			"acknowledged": true,
			"updated_at":   time.Now(),
		},
	}

	_, err := r.collection.UpdateOne(ctx, bson.M{"job_id": jobID}, update)
	if err != nil {
		return fmt.Errorf("failed to acknowledge checkpoint: %w", err)
	}

	return nil
}

// ListActive 列出所有 active 检查点
func (r *MongoCheckpointRepository) ListActive(ctx context.Context) ([]*models.Checkpoint, error) {
	return r.list(ctx, bson.M{"state": models.CheckpointActive})
}

// ListUnacknowledged 列出已终态但尚未通知用户的检查点
func (r *MongoCheckpointRepository) ListUnacknowledged(ctx context.Context) ([]*models.Checkpoint, error) {
	filter := bson.M{
		"state":        bson.M{"$in": []string{models.CheckpointCompleted, models.CheckpointCancelled}},
		"acknowledged": false,
	}
	return r.list(ctx, filter)
}

func (r *MongoCheckpointRepository) list(ctx context.Context, filter bson.M) ([]*models.Checkpoint, error) {
	cursor, err := r.collection.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list checkpoints: %w", err)
	}
	defer cursor.Close(ctx)

	var checkpoints []*models.Checkpoint
	if err := cursor.All(ctx, &checkpoints); err != nil {
		return nil, fmt.Errorf("failed to decode checkpoints: %w", err)
	}

	return checkpoints, nil
}

// Delete 删除检查点
func (r *MongoCheckpointRepository) Delete(ctx context.Context, jobID string) error {
	_, err := r.collection.DeleteOne(ctx, bson.M{"job_id": jobID})
	if err != nil {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}
	return nil
}

// PurgeFinished 清理超过给定时长的终态检查点
func (r *MongoCheckpointRepository) PurgeFinished(ctx context.Context, olderThanHours int) (int64, error) {
	cutoff := time.Now().Add(-time.Duration(olderThanHours) * time.Hour)
	filter := bson.M{
		"state":      bson.M{"$in": []string{models.CheckpointCompleted, models.CheckpointCancelled}},
		"updated_at": bson.M{"$lt": cutoff},
	}

	result, err := r.collection.DeleteMany(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("failed to purge finished checkpoints: %w", err)
	}

	return result.DeletedCount, nil
}

// EnsureIndexes 确保索引存在
func (r *MongoCheckpointRepository) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "job_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{
				{Key: "state", Value: 1},
				{Key: "acknowledged", Value: 1},
			},
		},
		{
			Keys: bson.D{{Key: "user_id", Value: 1}},
		},
	}

	_, err := r.collection.Indexes().CreateMany(ctx, indexes)
	if err != nil {
		return fmt.Errorf("failed to create indexes for checkpoints: %w", err)
	}

	return nil
}
