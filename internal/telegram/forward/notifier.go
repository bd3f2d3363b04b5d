package forward

import (
	"context"

	"forward_bot/internal/logger"
)

// Notifier 任务事件通知
// 用户通知与运维频道通知都是尽力而为，失败只记日志不影响任务
type Notifier struct {
	client       Client
	logChannelID int64 // 0 表示未配置运维频道
}

// NewNotifier 创建通知器
func NewNotifier(client Client, logChannelID int64) *Notifier {
	return &Notifier{client: client, logChannelID: logChannelID}
}

// NotifyUser 给用户发一条文本通知
func (n *Notifier) NotifyUser(ctx context.Context, userID int64, text string) {
	if _, err := n.client.SendMessage(ctx, userID, text, nil); err != nil {
		logger.L().Warnf("Failed to notify user %d: %v", userID, err)
	}
}

// NotifyOps 给运维频道发一条文本通知
func (n *Notifier) NotifyOps(ctx context.Context, text string) {
	if n.logChannelID == 0 {
		return
	}
	if _, err := n.client.SendMessage(ctx, n.logChannelID, text, nil); err != nil {
		logger.L().Warnf("Failed to notify log channel %d: %v", n.logChannelID, err)
	}
}
