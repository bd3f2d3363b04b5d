package telegram

import (
	"context"
	"time"

	"forward_bot/internal/logger"
	"forward_bot/internal/telegram/models"

	"github.com/go-telegram/bot"
	botModels "github.com/go-telegram/bot/models"
)

// handleDefault 兜底处理器：把频道消息和群消息镜像进归档
// 转发引擎只认归档，没归档过的区间无法转发
func (b *Bot) handleDefault(ctx context.Context, botInstance *bot.Bot, update *botModels.Update) {
	var msg *botModels.Message
	switch {
	case update.ChannelPost != nil:
		msg = update.ChannelPost
	case update.Message != nil:
		msg = update.Message
	default:
		return
	}

	record := convertMessage(msg)
	if err := b.messageRepo.CreateMessage(ctx, record); err != nil {
		logger.L().Errorf("Failed to archive message %d in chat %d: %v",
			record.TelegramMessageID, record.ChatID, err)
		return
	}

	logger.L().Debugf("Archived message: chat=%d, id=%d, type=%s",
		record.ChatID, record.TelegramMessageID, record.MessageType)
}

// convertMessage 将 Telegram 消息转换为归档模型
func convertMessage(msg *botModels.Message) *models.Message {
	record := &models.Message{
		TelegramMessageID: int64(msg.ID),
		ChatID:            msg.Chat.ID,
		Text:              msg.Text,
		Caption:           msg.Caption,
		SentAt:            time.Unix(int64(msg.Date), 0),
	}
	if msg.From != nil {
		record.UserID = msg.From.ID
	}

	// animation 消息同时带 document 字段，先判 animation
	switch {
	case msg.Animation != nil:
		record.MessageType = models.MessageTypeAnimation
		record.MediaFileID = msg.Animation.FileID
		record.MediaUniqueID = msg.Animation.FileUniqueID
		record.MediaFileName = msg.Animation.FileName
		record.MediaFileSize = int64(msg.Animation.FileSize)
		record.MediaMimeType = msg.Animation.MimeType
	case len(msg.Photo) > 0:
		// 取最大尺寸
		photo := msg.Photo[len(msg.Photo)-1]
		record.MessageType = models.MessageTypePhoto
		record.MediaFileID = photo.FileID
		record.MediaUniqueID = photo.FileUniqueID
		record.MediaFileSize = int64(photo.FileSize)
	case msg.Video != nil:
		record.MessageType = models.MessageTypeVideo
		record.MediaFileID = msg.Video.FileID
		record.MediaUniqueID = msg.Video.FileUniqueID
		record.MediaFileName = msg.Video.FileName
		record.MediaFileSize = int64(msg.Video.FileSize)
		record.MediaMimeType = msg.Video.MimeType
	case msg.Document != nil:
		record.MessageType = models.MessageTypeDocument
		record.MediaFileID = msg.Document.FileID
		record.MediaUniqueID = msg.Document.FileUniqueID
		record.MediaFileName = msg.Document.FileName
		record.MediaFileSize = int64(msg.Document.FileSize)
		record.MediaMimeType = msg.Document.MimeType
	case msg.Audio != nil:
		record.MessageType = models.MessageTypeAudio
		record.MediaFileID = msg.Audio.FileID
		record.MediaUniqueID = msg.Audio.FileUniqueID
		record.MediaFileName = msg.Audio.FileName
		record.MediaFileSize = int64(msg.Audio.FileSize)
		record.MediaMimeType = msg.Audio.MimeType
	case msg.Voice != nil:
		record.MessageType = models.MessageTypeVoice
		record.MediaFileID = msg.Voice.FileID
		record.MediaUniqueID = msg.Voice.FileUniqueID
		record.MediaFileSize = int64(msg.Voice.FileSize)
		record.MediaMimeType = msg.Voice.MimeType
	case msg.Sticker != nil:
		record.MessageType = models.MessageTypeSticker
		record.MediaFileID = msg.Sticker.FileID
		record.MediaUniqueID = msg.Sticker.FileUniqueID
		record.MediaFileSize = int64(msg.Sticker.FileSize)
	case msg.Poll != nil:
		record.MessageType = models.MessageTypePoll
	case msg.Text != "":
		record.MessageType = models.MessageTypeText
	default:
		// 入群提示、置顶通知等服务消息，转发引擎会跳过
		record.MessageType = models.MessageTypeService
	}

	return record
}
