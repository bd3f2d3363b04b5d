package forward

import (
	"context"

	"forward_bot/internal/telegram/models"

	"github.com/go-telegram/bot"
	botModels "github.com/go-telegram/bot/models"
)

// Client 聊天平台客户端抽象
// 覆盖调度、进度编辑和通知用到的全部原语，生产实现是 BotClient
type Client interface {
	// CopyMessage 复制单条消息（去掉转发标记），返回投递后的消息 ID
	CopyMessage(ctx context.Context, p CopyParams) (int, error)

	// ForwardMessages 批量转发（保留转发标记）
	ForwardMessages(ctx context.Context, fromChat, toChat int64, messageIDs []int, protect bool) error

	// SendMessage 发送文本消息，返回消息 ID
	SendMessage(ctx context.Context, chatID int64, text string, markup *botModels.InlineKeyboardMarkup) (int, error)

	// DeleteMessage 删除消息
	DeleteMessage(ctx context.Context, chatID int64, messageID int) error

	// EditMessageText 原地编辑消息文本
	EditMessageText(ctx context.Context, chatID int64, messageID int, text string, markup *botModels.InlineKeyboardMarkup) error
}

// CopyParams 单条复制的参数
type CopyParams struct {
	FromChat  int64
	ToChat    int64
	MessageID int
	Caption   string // 空串表示保留原说明文字
	Markup    *botModels.InlineKeyboardMarkup
	Protect   bool
}

// MessageSource 源区间消息访问抽象
// 由消息归档 Repository 实现；序列不可续用，恢复位置后用新的 fromID 重新调用
type MessageSource interface {
	ListRange(ctx context.Context, chatID, fromID int64, count int64) ([]*models.Message, error)
	CountFrom(ctx context.Context, chatID, fromID int64) (int64, error)
}

// ConfigStore 每用户配置读取抽象
type ConfigStore interface {
	GetConfig(ctx context.Context, userID int64) (*models.UserConfig, error)
}

// CheckpointStore 检查点持久化抽象
type CheckpointStore interface {
	Save(ctx context.Context, cp *models.Checkpoint) error
	MarkState(ctx context.Context, jobID, state string) error
	Acknowledge(ctx context.Context, jobID string) error
	ListActive(ctx context.Context) ([]*models.Checkpoint, error)
	ListUnacknowledged(ctx context.Context) ([]*models.Checkpoint, error)
	Delete(ctx context.Context, jobID string) error
	PurgeFinished(ctx context.Context, olderThanHours int) (int64, error)
}

// DedupIndex 去重标识抽象
type DedupIndex interface {
	MarkSeen(ctx context.Context, userID int64, uniqueID string) (bool, error)
}

// BotClient Client 的 go-telegram/bot 实现
type BotClient struct {
	bot *bot.Bot
}

// NewBotClient 创建 BotClient
func NewBotClient(b *bot.Bot) *BotClient {
	return &BotClient{bot: b}
}

// CopyMessage 复制单条消息
func (c *BotClient) CopyMessage(ctx context.Context, p CopyParams) (int, error) {
	params := &bot.CopyMessageParams{
		ChatID:         p.ToChat,
		FromChatID:     p.FromChat,
		MessageID:      p.MessageID,
		ProtectContent: p.Protect,
	}
	if p.Caption != "" {
		params.Caption = p.Caption
		params.ParseMode = botModels.ParseModeHTML
	}
	if p.Markup != nil {
		params.ReplyMarkup = p.Markup
	}

	msgID, err := c.bot.CopyMessage(ctx, params)
	if err != nil {
		return 0, err
	}
	return msgID.ID, nil
}

// ForwardMessages 批量转发
func (c *BotClient) ForwardMessages(ctx context.Context, fromChat, toChat int64, messageIDs []int, protect bool) error {
	_, err := c.bot.ForwardMessages(ctx, &bot.ForwardMessagesParams{
		ChatID:         toChat,
		FromChatID:     fromChat,
		MessageIDs:     messageIDs,
		ProtectContent: protect,
	})
	return err
}

// SendMessage 发送文本消息
func (c *BotClient) SendMessage(ctx context.Context, chatID int64, text string, markup *botModels.InlineKeyboardMarkup) (int, error) {
	params := &bot.SendMessageParams{
		ChatID:    chatID,
		Text:      text,
		ParseMode: botModels.ParseModeHTML,
	}
	if markup != nil {
		params.ReplyMarkup = markup
	}

	msg, err := c.bot.SendMessage(ctx, params)
	if err != nil {
		return 0, err
	}
	return msg.ID, nil
}

// DeleteMessage 删除消息
func (c *BotClient) DeleteMessage(ctx context.Context, chatID int64, messageID int) error {
	_, err := c.bot.DeleteMessage(ctx, &bot.DeleteMessageParams{
		ChatID:    chatID,
		MessageID: messageID,
	})
	return err
}

// EditMessageText 原地编辑消息文本
func (c *BotClient) EditMessageText(ctx context.Context, chatID int64, messageID int, text string, markup *botModels.InlineKeyboardMarkup) error {
	params := &bot.EditMessageTextParams{
		ChatID:    chatID,
		MessageID: messageID,
		Text:      text,
		ParseMode: botModels.ParseModeHTML,
	}
	if markup != nil {
		params.ReplyMarkup = markup
	}

	_, err := c.bot.EditMessageText(ctx, params)
	return err
}
