package repository

import (
	"context"

	"forward_bot/internal/telegram/models"
)

// UserRepository 用户数据访问接口
type UserRepository interface {
	// CreateOrUpdate 创建或更新用户
	CreateOrUpdate(ctx context.Context, user *models.User) error

	// GetByTelegramID 根据 Telegram ID 获取用户
	GetByTelegramID(ctx context.Context, telegramID int64) (*models.User, error)

	// UpdateLastActive 更新用户最后活跃时间
	UpdateLastActive(ctx context.Context, telegramID int64) error

	// EnsureIndexes 确保索引存在
	EnsureIndexes(ctx context.Context) error
}

// MessageRepository 消息归档访问接口
// 转发引擎按源消息 ID 升序遍历归档
type MessageRepository interface {
	// CreateMessage 归档一条消息（Upsert）
	CreateMessage(ctx context.Context, message *models.Message) error

	// GetByTelegramID 根据 Telegram 消息 ID 和聊天 ID 获取消息
	GetByTelegramID(ctx context.Context, telegramMessageID, chatID int64) (*models.Message, error)

	// ListRange 按 ID 升序列出 chatID 里 ID >= fromID 的消息，最多 count 条
	ListRange(ctx context.Context, chatID, fromID int64, count int64) ([]*models.Message, error)

	// CountFrom 统计 chatID 里 ID >= fromID 的消息数
	CountFrom(ctx context.Context, chatID, fromID int64) (int64, error)

	// EnsureIndexes 确保索引存在
	EnsureIndexes(ctx context.Context) error
}

// ConfigRepository 每用户转发配置访问接口
type ConfigRepository interface {
	// GetConfig 获取用户配置，缺省字段已填充默认值
	GetConfig(ctx context.Context, userID int64) (*models.UserConfig, error)

	// SaveConfig 保存用户配置
	SaveConfig(ctx context.Context, cfg *models.UserConfig) error

	// EnsureIndexes 确保索引存在
	EnsureIndexes(ctx context.Context) error
}

// CheckpointRepository 任务检查点访问接口
type CheckpointRepository interface {
	// Save 写入或刷新检查点（按 job_id Upsert）
	Save(ctx context.Context, cp *models.Checkpoint) error

	// MarkState 将检查点置为指定状态
	MarkState(ctx context.Context, jobID, state string) error

	// Acknowledge 标记终态已通知用户
	Acknowledge(ctx context.Context, jobID string) error

	// ListActive 列出所有 active 检查点（崩溃恢复入口）
	ListActive(ctx context.Context) ([]*models.Checkpoint, error)

	// ListUnacknowledged 列出已终态但尚未通知用户的检查点
	ListUnacknowledged(ctx context.Context) ([]*models.Checkpoint, error)

	// Delete 删除检查点
	Delete(ctx context.Context, jobID string) error

	// PurgeFinished 清理超过给定时长的终态检查点，返回删除数量
	PurgeFinished(ctx context.Context, olderThanHours int) (int64, error)

	// EnsureIndexes 确保索引存在
	EnsureIndexes(ctx context.Context) error
}

// SeenMediaRepository 去重标识访问接口
// 按 用户ID+媒体内容标识 记录已投递的媒体，跨任务和重启生效
type SeenMediaRepository interface {
	// MarkSeen 记录一个内容标识，之前已存在时返回 true
	MarkSeen(ctx context.Context, userID int64, uniqueID string) (bool, error)

	// EnsureIndexes 确保索引存在
	EnsureIndexes(ctx context.Context) error
}
