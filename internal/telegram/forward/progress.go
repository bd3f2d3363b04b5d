package forward

import (
	"context"
	"fmt"
	"strings"
	"time"

	"forward_bot/internal/logger"

	botModels "github.com/go-telegram/bot/models"
)

// CallbackCancelJob 进度消息里取消按钮的回调标识
const CallbackCancelJob = "terminate_frwd"

// ProgressReporter 进度消息维护器
// 原地编辑同一条状态消息，按时间间隔节流避免编辑请求被限流；
// 终态编辑强制执行，保证用户看到最终统计
type ProgressReporter struct {
	client    Client
	chatID    int64
	messageID int

	runningInterval  time.Duration
	sleepingInterval time.Duration

	lastEdit time.Time
	lastText string

	// now 可注入，测试时替换为固定时钟
	now func() time.Time
}

// NewProgressReporter 创建进度维护器
// messageID 是已发出的状态消息，后续只做原地编辑
func NewProgressReporter(client Client, chatID int64, messageID int, runningInterval, sleepingInterval time.Duration) *ProgressReporter {
	return &ProgressReporter{
		client:           client,
		chatID:           chatID,
		messageID:        messageID,
		runningInterval:  runningInterval,
		sleepingInterval: sleepingInterval,
		now:              time.Now,
	}
}

// Publish 根据快照刷新进度消息
// force 为真时跳过节流（任务终态、休眠进入等关键节点）
func (p *ProgressReporter) Publish(ctx context.Context, snap Snapshot, force bool) error {
	interval := p.runningInterval
	if snap.Status == StatusSleeping {
		interval = p.sleepingInterval
	}

	if !force && !snap.Terminal() && p.now().Sub(p.lastEdit) < interval {
		return nil
	}

	var text string
	var markup *botModels.InlineKeyboardMarkup
	if snap.Terminal() {
		text = renderSummary(snap)
	} else {
		text = renderProgress(snap)
		markup = cancelKeyboard()
	}

	// 相同文本重复编辑会被 API 报错，直接跳过
	if text == p.lastText {
		return nil
	}

	if err := p.client.EditMessageText(ctx, p.chatID, p.messageID, text, markup); err != nil {
		logger.L().Debugf("Progress edit failed (chat=%d, msg=%d): %v", p.chatID, p.messageID, err)
		return err
	}

	p.lastEdit = p.now()
	p.lastText = text
	return nil
}

// cancelKeyboard 进度消息下方的取消按钮
func cancelKeyboard() *botModels.InlineKeyboardMarkup {
	return &botModels.InlineKeyboardMarkup{
		InlineKeyboard: [][]botModels.InlineKeyboardButton{
			{{Text: "🚫 取消任务", CallbackData: CallbackCancelJob}},
		},
	}
}

// renderProgress 运行中进度文本
func renderProgress(snap Snapshot) string {
	var b strings.Builder

	switch snap.Status {
	case StatusSleeping:
		fmt.Fprintf(&b, "😴 <b>触发限流，休眠 %d 秒后继续</b>\n\n", snap.SleepSeconds)
	case StatusValidating:
		b.WriteString("🔎 <b>正在校验任务参数...</b>\n\n")
	default:
		b.WriteString("📤 <b>转发进行中</b>\n\n")
	}

	pct := snap.Percentage()
	fmt.Fprintf(&b, "%s <code>%.1f%%</code>\n\n", progressBar(pct), pct)
	fmt.Fprintf(&b, "🔄 已拉取: <code>%d / %d</code>\n", snap.Fetched, snap.Total)
	fmt.Fprintf(&b, "✅ 已转发: <code>%d</code>\n", snap.Forwarded)
	fmt.Fprintf(&b, "👥 重复跳过: <code>%d</code>\n", snap.Duplicate)
	fmt.Fprintf(&b, "🪆 规则过滤: <code>%d</code>\n", snap.Filtered)
	fmt.Fprintf(&b, "🗑 投递失败: <code>%d</code>\n\n", snap.Deleted)
	fmt.Fprintf(&b, "⏱ 速度: <code>%.1f 条/秒</code>\n", snap.Speed())
	fmt.Fprintf(&b, "⏳ 预计剩余: <code>%s</code>", formatDuration(snap.ETA()))

	if snap.Resumed {
		b.WriteString("\n\n♻️ 本任务由中断检查点恢复")
	}

	return b.String()
}

// renderSummary 终态统计文本
func renderSummary(snap Snapshot) string {
	var header string
	switch snap.Status {
	case StatusCompleted:
		header = "🎉 <b>转发完成</b>"
	case StatusCancelled:
		header = "🚫 <b>任务已取消</b>"
	default:
		header = "❌ <b>任务异常终止</b>"
	}

	var b strings.Builder
	b.WriteString(header)
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "🔄 已拉取: <code>%d / %d</code>\n", snap.Fetched, snap.Total)
	fmt.Fprintf(&b, "✅ 已转发: <code>%d</code>\n", snap.Forwarded)
	fmt.Fprintf(&b, "👥 重复跳过: <code>%d</code>\n", snap.Duplicate)
	fmt.Fprintf(&b, "🪆 规则过滤: <code>%d</code>\n", snap.Filtered)
	fmt.Fprintf(&b, "🗑 投递失败: <code>%d</code>\n\n", snap.Deleted)
	fmt.Fprintf(&b, "⏱ 总耗时: <code>%s</code>", formatDuration(time.Since(snap.StartedAt)))
	return b.String()
}

// progressBar 十格进度条
func progressBar(pct float64) string {
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	filled := int(pct / 10)

	var b strings.Builder
	for i := 0; i < 10; i++ {
		if i < filled {
			b.WriteString("◉")
		} else {
			b.WriteString("◎")
		}
	}
	return b.String()
}

// formatDuration 人类可读时长（如 1h02m03s）
func formatDuration(d time.Duration) string {
	if d <= 0 {
		return "0s"
	}
	d = d.Round(time.Second)

	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60

	switch {
	case h > 0:
		return fmt.Sprintf("%dh%02dm%02ds", h, m, s)
	case m > 0:
		return fmt.Sprintf("%dm%02ds", m, s)
	default:
		return fmt.Sprintf("%ds", s)
	}
}
