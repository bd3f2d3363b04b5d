package forward

import (
	"context"
	"fmt"

	"forward_bot/internal/logger"
	"forward_bot/internal/telegram/models"
)

// retentionHours 终态检查点的保留时长，超过即清理
const retentionHours = 24

// Coordinator 启动期恢复协调器
// 进程重启后清理陈旧检查点、补发漏掉的终态通知、续传中断任务
type Coordinator struct {
	engine      *Engine
	checkpoints CheckpointStore
	notifier    *Notifier
}

// NewCoordinator 创建恢复协调器
func NewCoordinator(engine *Engine, checkpoints CheckpointStore, notifier *Notifier) *Coordinator {
	return &Coordinator{
		engine:      engine,
		checkpoints: checkpoints,
		notifier:    notifier,
	}
}

// Run 执行一轮恢复，应在开始消费 update 之前调用
func (c *Coordinator) Run(ctx context.Context) error {
	if purged, err := c.checkpoints.PurgeFinished(ctx, retentionHours); err != nil {
		logger.L().Errorf("Failed to purge finished checkpoints: %v", err)
	} else if purged > 0 {
		logger.L().Infof("Purged %d finished checkpoints older than %dh", purged, retentionHours)
	}

	if err := c.notifyUnacknowledged(ctx); err != nil {
		return err
	}
	return c.resumeActive(ctx)
}

// notifyUnacknowledged 补发进程死亡前没来得及送达的终态通知
func (c *Coordinator) notifyUnacknowledged(ctx context.Context) error {
	stale, err := c.checkpoints.ListUnacknowledged(ctx)
	if err != nil {
		return fmt.Errorf("failed to list unacknowledged checkpoints: %w", err)
	}

	for _, cp := range stale {
		var label string
		switch cp.State {
		case models.CheckpointCompleted:
			label = "🎉 已完成"
		case models.CheckpointCancelled:
			label = "🚫 已取消"
		default:
			label = cp.State
		}

		c.notifier.NotifyUser(ctx, cp.UserID, fmt.Sprintf(
			"📪 <b>上次的转发任务在通知送达前中断</b>\n\n任务: <code>%s</code>\n最终状态: %s\n已入账: <code>%d / %d</code>",
			cp.JobID, label, cp.ProcessedCount, cp.TotalScanned))

		if err := c.checkpoints.Acknowledge(ctx, cp.JobID); err != nil {
			logger.L().Errorf("Failed to acknowledge checkpoint %s: %v", cp.JobID, err)
		}
	}

	if len(stale) > 0 {
		logger.L().Infof("Delivered %d missed terminal notifications", len(stale))
	}
	return nil
}

// resumeActive 续传所有仍处于 active 的检查点
// 数据不完整的检查点直接丢弃，不让一条坏记录卡住启动
func (c *Coordinator) resumeActive(ctx context.Context) error {
	active, err := c.checkpoints.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("failed to list active checkpoints: %w", err)
	}

	resumed := 0
	for _, cp := range active {
		if !cp.Valid() {
			logger.L().Warnf("Discarding invalid checkpoint %s (user=%d, source=%d, target=%d)",
				cp.JobID, cp.UserID, cp.SourceChat, cp.TargetChat)
			if err := c.checkpoints.Delete(ctx, cp.JobID); err != nil {
				logger.L().Errorf("Failed to delete invalid checkpoint %s: %v", cp.JobID, err)
			}
			continue
		}

		if _, err := c.engine.ResumeJob(ctx, cp); err != nil {
			logger.L().Errorf("Failed to resume job %s: %v", cp.JobID, err)
			c.notifier.NotifyUser(ctx, cp.UserID, fmt.Sprintf(
				"⚠️ <b>中断的转发任务恢复失败</b>\n\n任务: <code>%s</code>\n请重新发起 /forward", cp.JobID))
			continue
		}
		resumed++
	}

	if len(active) > 0 {
		logger.L().Infof("Recovery pass finished: %d active checkpoints, %d resumed", len(active), resumed)
	}
	return nil
}
