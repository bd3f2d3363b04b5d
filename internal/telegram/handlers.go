package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"forward_bot/internal/logger"
	"forward_bot/internal/telegram/forward"
	"forward_bot/internal/telegram/models"

	"github.com/go-telegram/bot"
	botModels "github.com/go-telegram/bot/models"
)

// registerHandlers 注册所有命令处理器（异步执行）
func (b *Bot) registerHandlers() {
	b.bot.RegisterHandler(bot.HandlerTypeMessageText, "/start", bot.MatchTypeExact,
		b.asyncHandler(b.handleStart))
	b.bot.RegisterHandler(bot.HandlerTypeMessageText, "/help", bot.MatchTypeExact,
		b.asyncHandler(b.handleStart))

	b.bot.RegisterHandler(bot.HandlerTypeMessageText, "/forward", bot.MatchTypePrefix,
		b.asyncHandler(b.RequirePrivateChat(b.handleForward)))
	b.bot.RegisterHandler(bot.HandlerTypeMessageText, "/cancel", bot.MatchTypeExact,
		b.asyncHandler(b.handleCancel))
	b.bot.RegisterHandler(bot.HandlerTypeMessageText, "/status", bot.MatchTypeExact,
		b.asyncHandler(b.handleStatus))

	// 进度消息下方的取消按钮
	b.bot.RegisterHandler(bot.HandlerTypeCallbackQueryData, forward.CallbackCancelJob, bot.MatchTypeExact,
		b.asyncHandler(b.handleCancelCallback))

	logger.L().Debug("All handlers registered with async execution")
}

// asyncHandler 将 handler 包装为工作池任务
func (b *Bot) asyncHandler(handler bot.HandlerFunc) bot.HandlerFunc {
	return func(ctx context.Context, botInstance *bot.Bot, update *botModels.Update) {
		b.workerPool.Submit(HandlerTask{
			Ctx:         ctx,
			BotInstance: botInstance,
			Update:      update,
			Handler:     handler,
		})
	}
}

// handleStart 处理 /start 和 /help 命令
func (b *Bot) handleStart(ctx context.Context, botInstance *bot.Bot, update *botModels.Update) {
	if update.Message == nil || update.Message.From == nil {
		return
	}

	from := update.Message.From
	user := &models.User{
		TelegramID:   from.ID,
		Username:     from.Username,
		FirstName:    from.FirstName,
		LastName:     from.LastName,
		LanguageCode: from.LanguageCode,
	}
	if err := b.userRepo.CreateOrUpdate(ctx, user); err != nil {
		logger.L().Errorf("Failed to register user %d: %v", from.ID, err)
	}

	welcomeText := fmt.Sprintf(
		"👋 你好, %s!\n\n"+
			"本 Bot 将源频道/群组的消息区间批量搬运到目标聊天，支持过滤规则和媒体去重。\n\n"+
			"可用命令:\n"+
			"/forward <源聊天ID> <目标聊天ID> <起始消息ID> [条数] - 启动转发任务\n"+
			"/status - 查看任务进度\n"+
			"/cancel - 取消正在运行的任务",
		from.FirstName,
	)

	b.sendMessage(ctx, update.Message.Chat.ID, welcomeText)
}

// handleForward 处理 /forward 命令，校验通过后任务在后台运行
func (b *Bot) handleForward(ctx context.Context, botInstance *bot.Bot, update *botModels.Update) {
	if update.Message == nil || update.Message.From == nil {
		return
	}
	chatID := update.Message.Chat.ID

	parts := strings.Fields(update.Message.Text)
	if len(parts) < 4 {
		b.sendErrorMessage(ctx, chatID,
			"用法: /forward <源聊天ID> <目标聊天ID> <起始消息ID> [条数]\n"+
				"例如: /forward -1001234567890 -1009876543210 1 500")
		return
	}

	sourceChat, err1 := strconv.ParseInt(parts[1], 10, 64)
	targetChat, err2 := strconv.ParseInt(parts[2], 10, 64)
	skip, err3 := strconv.ParseInt(parts[3], 10, 64)
	if err1 != nil || err2 != nil || err3 != nil || skip < 1 {
		b.sendErrorMessage(ctx, chatID, "参数必须是合法的数字，起始消息 ID 不小于 1")
		return
	}

	var count int64
	if len(parts) >= 5 {
		count, err1 = strconv.ParseInt(parts[4], 10, 64)
		if err1 != nil || count < 1 {
			b.sendErrorMessage(ctx, chatID, "条数必须是正整数")
			return
		}
	}

	if sourceChat == targetChat {
		b.sendErrorMessage(ctx, chatID, "源聊天和目标聊天不能相同")
		return
	}

	jobID, err := b.engine.StartJob(ctx, forward.JobRequest{
		UserID:     update.Message.From.ID,
		ChatID:     chatID,
		SourceChat: sourceChat,
		TargetChat: targetChat,
		Skip:       skip,
		Count:      count,
	})
	if err != nil {
		b.sendErrorMessage(ctx, chatID, startJobErrorText(err))
		return
	}

	b.sendSuccessMessage(ctx, chatID,
		fmt.Sprintf("任务已启动\n任务 ID: <code>%s</code>\n用 /status 查看进度，/cancel 取消", jobID))
}

// startJobErrorText 把启动失败的原因翻译为用户可读文案
func startJobErrorText(err error) string {
	switch {
	case errors.Is(err, forward.ErrUserBusy):
		return "你已有一个任务在运行，先 /cancel 或等它结束"
	case errors.Is(err, forward.ErrTargetBusy):
		return "目标聊天正被其他任务写入，请稍后再试"
	case errors.Is(err, forward.ErrEmptyRange):
		return "源区间没有可转发的消息，确认 Bot 已在源聊天归档过该区间"
	case errors.Is(err, forward.ErrTargetRejected):
		return "无法写入目标聊天，确认 Bot 已加入并拥有发消息权限"
	default:
		return "任务启动失败: " + err.Error()
	}
}

// handleCancel 处理 /cancel 命令
func (b *Bot) handleCancel(ctx context.Context, botInstance *bot.Bot, update *botModels.Update) {
	if update.Message == nil || update.Message.From == nil {
		return
	}

	if b.engine.Cancel(update.Message.From.ID) {
		b.sendSuccessMessage(ctx, update.Message.Chat.ID, "取消请求已提交，任务将在当前消息处理完后停止")
	} else {
		b.sendErrorMessage(ctx, update.Message.Chat.ID, "当前没有正在运行的任务")
	}
}

// handleStatus 处理 /status 命令
func (b *Bot) handleStatus(ctx context.Context, botInstance *bot.Bot, update *botModels.Update) {
	if update.Message == nil || update.Message.From == nil {
		return
	}

	snap, ok := b.engine.Progress(update.Message.From.ID)
	if !ok {
		b.sendMessage(ctx, update.Message.Chat.ID, "📭 没有任务记录")
		return
	}

	b.sendMessage(ctx, update.Message.Chat.ID, statusText(snap))
}

// statusText /status 的状态文案
func statusText(snap forward.Snapshot) string {
	var b strings.Builder

	if snap.Terminal() {
		fmt.Fprintf(&b, "📋 <b>上一次任务</b>（%s）\n\n", snap.Status)
	} else {
		fmt.Fprintf(&b, "📋 <b>当前任务</b>（%s）\n\n", snap.Status)
	}

	fmt.Fprintf(&b, "任务 ID: <code>%s</code>\n", snap.JobID)
	fmt.Fprintf(&b, "进度: <code>%d / %d</code>（%.1f%%）\n", snap.Fetched, snap.Total, snap.Percentage())
	fmt.Fprintf(&b, "✅ 已转发: <code>%d</code>\n", snap.Forwarded)
	fmt.Fprintf(&b, "👥 重复跳过: <code>%d</code>\n", snap.Duplicate)
	fmt.Fprintf(&b, "🪆 规则过滤: <code>%d</code>\n", snap.Filtered)
	fmt.Fprintf(&b, "🗑 投递失败: <code>%d</code>", snap.Deleted)

	if snap.Status == forward.StatusSleeping {
		fmt.Fprintf(&b, "\n\n😴 正在限流休眠 %d 秒", snap.SleepSeconds)
	}
	return b.String()
}

// handleCancelCallback 处理进度消息上的取消按钮
func (b *Bot) handleCancelCallback(ctx context.Context, botInstance *bot.Bot, update *botModels.Update) {
	if update.CallbackQuery == nil {
		return
	}
	query := update.CallbackQuery

	answer := func(text string) {
		if _, err := botInstance.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{
			CallbackQueryID: query.ID,
			Text:            text,
		}); err != nil {
			logger.L().Warnf("Failed to answer callback query: %v", err)
		}
	}

	if b.engine.Cancel(query.From.ID) {
		answer("🚫 取消请求已提交")
	} else {
		answer("当前没有正在运行的任务")
	}
}
