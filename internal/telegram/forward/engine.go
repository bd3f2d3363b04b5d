package forward

import (
	"context"
	"errors"
	"fmt"
	"time"

	"forward_bot/internal/config"
	"forward_bot/internal/logger"
	"forward_bot/internal/telegram/models"

	"github.com/google/uuid"
)

// ErrEmptyRange 源区间没有可转发的消息
var ErrEmptyRange = errors.New("no messages in requested range")

// apiRatePerSecond 对 Telegram API 的全局请求上限
const apiRatePerSecond = 30

// persistTimeout 任务收尾时持久化与通知的时限
const persistTimeout = 10 * time.Second

// JobRequest 转发任务请求
type JobRequest struct {
	UserID     int64
	ChatID     int64 // 进度消息发往的聊天（通常是发起命令的私聊）
	SourceChat int64
	TargetChat int64
	Skip       int64 // 起始源消息 ID
	Count      int64 // 计划扫描条数，0 表示直到区间耗尽
}

// Engine 转发任务编排器
// 负责任务校验、互斥、遍历源区间、过滤去重、投递和检查点维护
type Engine struct {
	client      Client
	source      MessageSource
	configs     ConfigStore
	checkpoints CheckpointStore
	dedup       DedupIndex
	notifier    *Notifier
	registry    *Registry
	limiter     *RateLimiter
	cfg         config.ForwardConfig
}

// NewEngine 创建转发编排器
func NewEngine(
	client Client,
	source MessageSource,
	configs ConfigStore,
	checkpoints CheckpointStore,
	dedup DedupIndex,
	notifier *Notifier,
	cfg config.ForwardConfig,
) *Engine {
	return &Engine{
		client:      client,
		source:      source,
		configs:     configs,
		checkpoints: checkpoints,
		dedup:       dedup,
		notifier:    notifier,
		registry:    NewRegistry(),
		limiter:     NewRateLimiter(apiRatePerSecond),
		cfg:         cfg,
	}
}

// Close 释放编排器持有的资源
func (e *Engine) Close() {
	e.limiter.Close()
}

// StartJob 校验并启动一个转发任务，任务体在独立 goroutine 中执行
// 返回任务 ID；校验失败不留任何持久化痕迹
func (e *Engine) StartJob(ctx context.Context, req JobRequest) (string, error) {
	userCfg, err := e.configs.GetConfig(ctx, req.UserID)
	if err != nil {
		return "", fmt.Errorf("failed to load user config: %w", err)
	}

	available, err := e.source.CountFrom(ctx, req.SourceChat, req.Skip)
	if err != nil {
		return "", fmt.Errorf("failed to count source range: %w", err)
	}
	if available == 0 {
		return "", ErrEmptyRange
	}

	total := req.Count
	if total <= 0 || total > available {
		total = available
	}

	jobID := fmt.Sprintf("%d-%s", req.UserID, uuid.New().String())
	state := NewJobState(jobID, req.UserID, req.SourceChat, req.TargetChat, req.Skip, total, false)

	// 任务生命周期不依附于触发它的 update
	jobCtx, session, err := e.registry.Acquire(context.Background(), state)
	if err != nil {
		return "", err
	}

	// 目标可写探测：发一条测试消息并立即删除
	probeID, err := e.client.SendMessage(ctx, req.TargetChat, "🧪 正在校验目标写入权限...", nil)
	if err != nil {
		session.Release()
		return "", fmt.Errorf("%w: %v", ErrTargetRejected, err)
	}
	if err := e.client.DeleteMessage(ctx, req.TargetChat, probeID); err != nil {
		logger.L().Warnf("Failed to delete probe message %d in chat %d: %v", probeID, req.TargetChat, err)
	}

	progressMsgID, err := e.client.SendMessage(ctx, req.ChatID, "🔎 <b>正在校验任务参数...</b>", nil)
	if err != nil {
		session.Release()
		return "", fmt.Errorf("failed to create progress message: %w", err)
	}
	reporter := NewProgressReporter(e.client, req.ChatID, progressMsgID,
		e.cfg.ProgressEditInterval, e.cfg.StatusEditInterval)

	now := time.Now()
	cp := &models.Checkpoint{
		JobID:        jobID,
		UserID:       req.UserID,
		SourceChat:   req.SourceChat,
		TargetChat:   req.TargetChat,
		OriginalSkip: req.Skip,
		TotalScanned: total,
		State:        models.CheckpointActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := e.checkpoints.Save(ctx, cp); err != nil {
		session.Release()
		return "", fmt.Errorf("failed to persist checkpoint: %w", err)
	}

	logger.L().Infof("Forward job started: job_id=%s, source=%d, target=%d, skip=%d, total=%d",
		jobID, req.SourceChat, req.TargetChat, req.Skip, total)
	e.notifier.NotifyOps(ctx, fmt.Sprintf(
		"📨 转发任务开始\n\n任务: <code>%s</code>\n源: <code>%d</code>\n目标: <code>%d</code>\n计划: <code>%d</code> 条",
		jobID, req.SourceChat, req.TargetChat, total))

	go e.run(jobCtx, session, userCfg, reporter, cp, req.Skip)

	return jobID, nil
}

// ResumeJob 从检查点恢复一个中断任务
// 基线重置为剩余额度，使检查点在再次中断时仍然自洽
func (e *Engine) ResumeJob(ctx context.Context, cp *models.Checkpoint) (string, error) {
	userCfg, err := e.configs.GetConfig(ctx, cp.UserID)
	if err != nil {
		return "", fmt.Errorf("failed to load user config: %w", err)
	}

	remaining := cp.RemainingLimit()
	if remaining == 0 {
		// 额度已耗尽的任务直接收尾
		if err := e.checkpoints.MarkState(ctx, cp.JobID, models.CheckpointCompleted); err != nil {
			return "", err
		}
		return cp.JobID, e.checkpoints.Acknowledge(ctx, cp.JobID)
	}

	fromID := cp.ResumeFrom()
	state := NewJobState(cp.JobID, cp.UserID, cp.SourceChat, cp.TargetChat, cp.OriginalSkip, remaining, true)

	jobCtx, session, err := e.registry.Acquire(context.Background(), state)
	if err != nil {
		return "", err
	}

	progressMsgID, err := e.client.SendMessage(ctx, cp.UserID,
		"♻️ <b>检测到中断的转发任务，正在恢复...</b>", nil)
	if err != nil {
		session.Release()
		return "", fmt.Errorf("failed to create progress message: %w", err)
	}
	reporter := NewProgressReporter(e.client, cp.UserID, progressMsgID,
		e.cfg.ProgressEditInterval, e.cfg.StatusEditInterval)

	// 重置基线：剩余额度成为新的总量，计数从零开始
	// 起点前一条作为已拉取位置落盘，再次中断时不会回退到原始偏移
	cp.TotalScanned = remaining
	cp.ProcessedCount = 0
	cp.LastFetchedMessageID = fromID - 1
	cp.Resumed = true
	cp.UpdatedAt = time.Now()
	if err := e.checkpoints.Save(ctx, cp); err != nil {
		session.Release()
		return "", fmt.Errorf("failed to persist checkpoint: %w", err)
	}

	logger.L().Infof("Forward job resumed: job_id=%s, from=%d, remaining=%d", cp.JobID, fromID, remaining)
	e.notifier.NotifyOps(ctx, fmt.Sprintf(
		"♻️ 转发任务恢复\n\n任务: <code>%s</code>\n起点: <code>%d</code>\n剩余: <code>%d</code> 条",
		cp.JobID, fromID, remaining))

	go e.run(jobCtx, session, userCfg, reporter, cp, fromID)

	return cp.JobID, nil
}

// Cancel 请求取消指定用户的任务
func (e *Engine) Cancel(userID int64) bool {
	return e.registry.Cancel(userID)
}

// Progress 查询用户任务状态（运行中或上一次的终态）
func (e *Engine) Progress(userID int64) (Snapshot, bool) {
	return e.registry.Snapshot(userID)
}

// Running 当前正在运行的任务数
func (e *Engine) Running() int {
	return e.registry.Running()
}

// run 任务主循环：分页拉取源区间，逐条分类入账并投递
func (e *Engine) run(ctx context.Context, session *Session, userCfg *models.UserConfig,
	reporter *ProgressReporter, cp *models.Checkpoint, fromID int64) {
	defer session.Release()

	state := session.State()
	state.SetStatus(StatusRunning)

	dispatcher := NewDispatcher(e.client, e.limiter, DispatcherOptions{
		MessageDelay:     e.cfg.MessageDelay,
		BatchDelay:       e.cfg.BatchDelay,
		MaxThrottleSleep: e.cfg.MaxThrottleSleep,
		OnThrottle: func(d time.Duration) {
			state.SetSleeping(d)
			_ = reporter.Publish(ctx, state.Snapshot(), true)
		},
	})

	var pending []int
	sinceCheckpoint := 0
	remaining := state.Snapshot().Total
	var runErr error

loop:
	for remaining > 0 {
		page := int64(e.cfg.BatchSize)
		if remaining < page {
			page = remaining
		}

		msgs, err := e.source.ListRange(ctx, cp.SourceChat, fromID, page)
		if err != nil {
			runErr = fmt.Errorf("failed to read source range: %w", err)
			break
		}
		if len(msgs) == 0 {
			// 源区间耗尽，按已处理量收尾
			break
		}

		for _, msg := range msgs {
			if ctx.Err() != nil {
				runErr = ctx.Err()
				break loop
			}

			state.AddFetched(msg.TelegramMessageID)

			if err := e.process(ctx, dispatcher, state, userCfg, cp, msg, &pending); err != nil {
				runErr = err
				break loop
			}

			sinceCheckpoint++
			if sinceCheckpoint >= e.cfg.CheckpointEvery {
				if err := e.syncProgress(ctx, dispatcher, state, userCfg, cp, reporter, &pending); err != nil {
					runErr = err
					break loop
				}
				sinceCheckpoint = 0
			}
		}

		fromID = msgs[len(msgs)-1].TelegramMessageID + 1
		remaining -= int64(len(msgs))
	}

	if runErr == nil {
		runErr = e.flushPending(ctx, dispatcher, state, userCfg, cp, &pending)
	}

	e.finalize(session, reporter, cp, pending, runErr)
}

// process 单条消息的分类与投递
// 返回非 nil 表示任务必须终止
func (e *Engine) process(ctx context.Context, dispatcher *Dispatcher, state *JobState,
	userCfg *models.UserConfig, cp *models.Checkpoint, msg *models.Message, pending *[]int) error {

	if msg.IsService() {
		state.AddDeleted(1)
		return nil
	}

	if !ShouldForward(msg, userCfg) {
		state.AddFiltered()
		return nil
	}

	if key := DedupKey(msg, userCfg); key != "" {
		seen, err := e.dedup.MarkSeen(ctx, state.userID, key)
		if err != nil {
			// 去重索引故障时宁可重复也不丢消息
			logger.L().Warnf("Dedup lookup failed for %q: %v", key, err)
		} else if seen {
			state.AddDuplicate()
			return nil
		}
	}

	// 带转发标记只批量纯文本；媒体逐条复制，说明文字和按钮增强只在复制路径生效
	if userCfg.ForwardTag && !msg.HasMedia() {
		*pending = append(*pending, int(msg.TelegramMessageID))
		if len(*pending) >= e.cfg.BatchSize {
			return e.flushPending(ctx, dispatcher, state, userCfg, cp, pending)
		}
		return nil
	}

	msgID, err := dispatcher.Deliver(ctx, e.copyParams(msg, userCfg, cp))
	switch {
	case err == nil:
		state.SetStatus(StatusRunning)
		state.AddForwarded(1)
		return nil
	case errors.Is(err, ErrUndeliverable):
		state.AddDeleted(1)
		return nil
	case msgID != 0:
		// 复制已经成功，只是投递间隔休眠被取消打断，按已转发入账
		state.AddForwarded(1)
		return err
	default:
		// 任务终止时在途消息按失败结清，保持记账闭合
		state.AddDeleted(1)
		return err
	}
}

// copyParams 按用户配置构造单条复制参数（自定义说明、按钮、来源标注）
func (e *Engine) copyParams(msg *models.Message, userCfg *models.UserConfig, cp *models.Checkpoint) CopyParams {
	caption := CustomCaption(msg.Caption, userCfg.Caption)
	markup := ConfigButton(userCfg)

	if userCfg.FTMMode {
		link := MessageLink(cp.SourceChat, msg.TelegramMessageID)
		caption = AttributionCaption(caption, link)
		markup = CombineButtons(AttributionButton(link), markup)
	}

	// 说明文字与原文一致时不传，避免无谓改写
	if caption == msg.Caption {
		caption = ""
	}

	return CopyParams{
		FromChat:  cp.SourceChat,
		ToChat:    cp.TargetChat,
		MessageID: int(msg.TelegramMessageID),
		Caption:   caption,
		Markup:    markup,
		Protect:   userCfg.Protect,
	}
}

// flushPending 结清待转发批次
// 批次整体失败时全部计入投递失败，任务继续
func (e *Engine) flushPending(ctx context.Context, dispatcher *Dispatcher, state *JobState,
	userCfg *models.UserConfig, cp *models.Checkpoint, pending *[]int) error {
	if len(*pending) == 0 {
		return nil
	}

	batch := *pending
	err := dispatcher.ForwardBatch(ctx, cp.SourceChat, cp.TargetChat, batch, userCfg.Protect)
	switch {
	case err == nil:
		state.SetStatus(StatusRunning)
		state.AddForwarded(int64(len(batch)))
	case errors.Is(err, ErrTargetRejected), errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		logger.L().Errorf("Batch of %d messages failed: %v", len(batch), err)
		state.AddDeleted(int64(len(batch)))
	}

	*pending = (*pending)[:0]
	return nil
}

// syncProgress 先结清批次再落检查点，保证检查点只描述已入账的消息
func (e *Engine) syncProgress(ctx context.Context, dispatcher *Dispatcher, state *JobState,
	userCfg *models.UserConfig, cp *models.Checkpoint, reporter *ProgressReporter, pending *[]int) error {

	if err := e.flushPending(ctx, dispatcher, state, userCfg, cp, pending); err != nil {
		return err
	}

	snap := state.Snapshot()
	// 拉取位置只进不退，恢复起点不会被尚未拉取的状态覆盖
	if snap.LastMessageID > cp.LastFetchedMessageID {
		cp.LastFetchedMessageID = snap.LastMessageID
	}
	cp.ProcessedCount = snap.Processed()
	cp.UpdatedAt = time.Now()
	if err := e.checkpoints.Save(ctx, cp); err != nil {
		// 检查点落盘失败不终止任务，最多导致恢复后多做一段
		logger.L().Errorf("Failed to save checkpoint %s: %v", cp.JobID, err)
	}

	_ = reporter.Publish(ctx, snap, false)
	return nil
}

// finalize 任务收尾：定状态、落终态、强制刷新进度消息、通知运维
func (e *Engine) finalize(session *Session, reporter *ProgressReporter,
	cp *models.Checkpoint, pending []int, runErr error) {

	state := session.State()

	// 未结清的批次按投递失败入账，保持记账闭合
	if runErr != nil && len(pending) > 0 {
		state.AddDeleted(int64(len(pending)))
	}

	switch {
	case runErr == nil:
		state.SetStatus(StatusCompleted)
	case errors.Is(runErr, context.Canceled):
		state.SetStatus(StatusCancelled)
	default:
		state.SetStatus(StatusFailed)
	}

	snap := state.Snapshot()
	if !snap.Balanced() {
		logger.L().Errorf("Job %s accounting mismatch: fetched=%d, accounted=%d",
			snap.JobID, snap.Fetched, snap.Processed())
	}

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	if snap.LastMessageID > cp.LastFetchedMessageID {
		cp.LastFetchedMessageID = snap.LastMessageID
	}
	cp.ProcessedCount = snap.Processed()
	cp.UpdatedAt = time.Now()
	if err := e.checkpoints.Save(ctx, cp); err != nil {
		logger.L().Errorf("Failed to save final checkpoint %s: %v", cp.JobID, err)
	}

	terminalState := ""
	switch snap.Status {
	case StatusCompleted:
		terminalState = models.CheckpointCompleted
	case StatusCancelled:
		terminalState = models.CheckpointCancelled
	case StatusFailed:
		if errors.Is(runErr, ErrTargetRejected) {
			// 目标不可写的任务恢复后也无法继续
			terminalState = models.CheckpointCancelled
		}
		// 其余失败保持 active，进程重启后由恢复协调器续传
	}
	if terminalState != "" {
		if err := e.checkpoints.MarkState(ctx, cp.JobID, terminalState); err != nil {
			logger.L().Errorf("Failed to mark checkpoint %s as %s: %v", cp.JobID, terminalState, err)
		}
	}

	publishErr := reporter.Publish(ctx, snap, true)
	if terminalState != "" && publishErr == nil {
		if err := e.checkpoints.Acknowledge(ctx, cp.JobID); err != nil {
			logger.L().Errorf("Failed to acknowledge checkpoint %s: %v", cp.JobID, err)
		}
	}

	logger.L().Infof("Forward job finished: job_id=%s, status=%s, forwarded=%d, duplicate=%d, filtered=%d, deleted=%d",
		snap.JobID, snap.Status, snap.Forwarded, snap.Duplicate, snap.Filtered, snap.Deleted)

	opsText := fmt.Sprintf(
		"📬 转发任务结束\n\n任务: <code>%s</code>\n状态: <code>%s</code>\n✅ %d  👥 %d  🪆 %d  🗑 %d",
		snap.JobID, snap.Status, snap.Forwarded, snap.Duplicate, snap.Filtered, snap.Deleted)
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		opsText += fmt.Sprintf("\n\n错误: <code>%v</code>", runErr)
	}
	e.notifier.NotifyOps(ctx, opsText)
}
