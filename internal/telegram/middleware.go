package telegram

import (
	"context"

	"forward_bot/internal/logger"

	"github.com/go-telegram/bot"
	botModels "github.com/go-telegram/bot/models"
)

// RequireOwner 中间件：仅允许 Owner 执行
func (b *Bot) RequireOwner(next bot.HandlerFunc) bot.HandlerFunc {
	return func(ctx context.Context, botInstance *bot.Bot, update *botModels.Update) {
		if update.Message == nil || update.Message.From == nil {
			return
		}

		user, err := b.userRepo.GetByTelegramID(ctx, update.Message.From.ID)
		if err != nil || !user.IsOwner() {
			logger.L().Warnf("Non-owner user %d attempted to use owner command", update.Message.From.ID)
			b.sendErrorMessage(ctx, update.Message.Chat.ID, "此命令仅限 Bot Owner 使用")
			return
		}

		next(ctx, botInstance, update)
	}
}

// RequirePrivateChat 中间件：限制命令只能在私聊里执行
// 转发命令涉及多步交互和进度编辑，群里执行会刷屏
func (b *Bot) RequirePrivateChat(next bot.HandlerFunc) bot.HandlerFunc {
	return func(ctx context.Context, botInstance *bot.Bot, update *botModels.Update) {
		if update.Message == nil {
			return
		}

		if update.Message.Chat.Type != botModels.ChatTypePrivate {
			b.sendErrorMessage(ctx, update.Message.Chat.ID, "请在与 Bot 的私聊里使用此命令")
			return
		}

		next(ctx, botInstance, update)
	}
}
