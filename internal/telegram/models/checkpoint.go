package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// 检查点状态常量
const (
	CheckpointActive    = "active"
	CheckpointCompleted = "completed"
	CheckpointCancelled = "cancelled"
)

// Checkpoint 转发任务的持久化投影
// 运行中由任务所属的 Orchestrator 持续刷新，进程重启后由恢复协调器读取
type Checkpoint struct {
	ID     primitive.ObjectID `bson:"_id,omitempty"`
	JobID  string             `bson:"job_id"` // 任务 ID（用户 ID + 随机数派生）
	UserID int64              `bson:"user_id"`

	SourceChat int64 `bson:"source_chat"`
	TargetChat int64 `bson:"target_chat"`

	LastFetchedMessageID int64 `bson:"last_fetched_message_id"` // 最后成功处理的源消息 ID
	OriginalSkip         int64 `bson:"original_skip"`           // 用户最初指定的起始偏移（展示用）
	TotalScanned         int64 `bson:"total_scanned"`           // 任务计划扫描的总条数
	ProcessedCount       int64 `bson:"processed_count"`         // 已入账的条数

	State        string    `bson:"state"`        // active / completed / cancelled
	Acknowledged bool      `bson:"acknowledged"` // 终态是否已通知用户
	Resumed      bool      `bson:"resumed"`      // 是否为恢复后的运行
	UpdatedAt    time.Time `bson:"updated_at"`
	CreatedAt    time.Time `bson:"created_at"`
}

// Valid 源/目标标识是否完整，不完整的检查点在恢复时直接丢弃
func (c *Checkpoint) Valid() bool {
	return c.UserID != 0 && c.SourceChat != 0 && c.TargetChat != 0
}

// ResumeFrom 计算恢复起点：严格大于最后处理的源消息 ID
func (c *Checkpoint) ResumeFrom() int64 {
	if c.LastFetchedMessageID > 0 {
		return c.LastFetchedMessageID + 1
	}
	return c.OriginalSkip
}

// RemainingLimit 计算恢复后的剩余扫描额度，朝原定总量继续
// 检查点写入前批次一定已经结清，ProcessedCount 即已消耗的额度
func (c *Checkpoint) RemainingLimit() int64 {
	if c.TotalScanned <= 0 {
		return 0
	}
	remaining := c.TotalScanned - c.ProcessedCount
	if remaining < 0 {
		return 0
	}
	return remaining
}
