package forward

import (
	"context"
	"errors"
	"fmt"
	"time"

	"forward_bot/internal/logger"

	"github.com/go-telegram/bot"
)

// ErrUndeliverable 单条消息投递失败且降级转发也失败
// 调用方应计入 deleted 并继续后续消息
var ErrUndeliverable = errors.New("message undeliverable")

// ErrTargetRejected 目标聊天拒绝投递（机器人被移除或封禁）
// 该错误对整个任务是致命的
var ErrTargetRejected = errors.New("target chat rejected delivery")

// Dispatcher 消息投递器
// 封装限速、限流退避、降级转发和逐条投递间隔
type Dispatcher struct {
	client           Client
	limiter          *RateLimiter
	messageDelay     time.Duration
	batchDelay       time.Duration
	maxThrottleSleep time.Duration

	// sleep 可注入，测试时替换为记录器
	sleep func(ctx context.Context, d time.Duration) error

	// onThrottle 每次进入限流休眠前回调（用于状态展示）
	onThrottle func(d time.Duration)
}

// DispatcherOptions Dispatcher 配置
type DispatcherOptions struct {
	MessageDelay     time.Duration
	BatchDelay       time.Duration
	MaxThrottleSleep time.Duration
	OnThrottle       func(d time.Duration)
}

// NewDispatcher 创建投递器
func NewDispatcher(client Client, limiter *RateLimiter, opts DispatcherOptions) *Dispatcher {
	return &Dispatcher{
		client:           client,
		limiter:          limiter,
		messageDelay:     opts.MessageDelay,
		batchDelay:       opts.BatchDelay,
		maxThrottleSleep: opts.MaxThrottleSleep,
		sleep:            sleepCtx,
		onThrottle:       opts.OnThrottle,
	}
}

// sleepCtx 可被上下文打断的休眠
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Deliver 投递单条消息
// 先尝试复制（去除转发标记），限流时按服务端指示休眠后重试；
// 复制遭遇硬失败时降级为普通转发，两者都失败返回 ErrUndeliverable
func (d *Dispatcher) Deliver(ctx context.Context, p CopyParams) (int, error) {
	for {
		if err := d.limiter.Wait(ctx); err != nil {
			return 0, err
		}

		msgID, err := d.client.CopyMessage(ctx, p)
		if err == nil {
			if pauseErr := d.pace(ctx); pauseErr != nil {
				return msgID, pauseErr
			}
			return msgID, nil
		}

		if ctx.Err() != nil {
			return 0, ctx.Err()
		}

		if wait, ok := throttleDelay(err); ok {
			if sleepErr := d.throttleSleep(ctx, wait); sleepErr != nil {
				return 0, sleepErr
			}
			continue
		}

		if errors.Is(err, bot.ErrorForbidden) {
			return 0, fmt.Errorf("%w: %v", ErrTargetRejected, err)
		}

		logger.L().Warnf("Copy failed for message %d, falling back to forward: %v", p.MessageID, err)
		return 0, d.deliverFallback(ctx, p)
	}
}

// deliverFallback 复制失败后的降级路径：保留转发标记的普通转发
func (d *Dispatcher) deliverFallback(ctx context.Context, p CopyParams) error {
	for {
		if err := d.limiter.Wait(ctx); err != nil {
			return err
		}

		err := d.client.ForwardMessages(ctx, p.FromChat, p.ToChat, []int{p.MessageID}, p.Protect)
		if err == nil {
			return d.pace(ctx)
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}

		if wait, ok := throttleDelay(err); ok {
			if sleepErr := d.throttleSleep(ctx, wait); sleepErr != nil {
				return sleepErr
			}
			continue
		}

		if errors.Is(err, bot.ErrorForbidden) {
			return fmt.Errorf("%w: %v", ErrTargetRejected, err)
		}

		logger.L().Warnf("Fallback forward failed for message %d: %v", p.MessageID, err)
		return ErrUndeliverable
	}
}

// ForwardBatch 批量转发一组消息（保留转发标记）
// 限流时休眠重试；硬失败由调用方决定计数归属
func (d *Dispatcher) ForwardBatch(ctx context.Context, fromChat, toChat int64, messageIDs []int, protect bool) error {
	if len(messageIDs) == 0 {
		return nil
	}

	for {
		if err := d.limiter.Wait(ctx); err != nil {
			return err
		}

		err := d.client.ForwardMessages(ctx, fromChat, toChat, messageIDs, protect)
		if err == nil {
			if d.batchDelay > 0 {
				return d.sleep(ctx, d.batchDelay)
			}
			return nil
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}

		if wait, ok := throttleDelay(err); ok {
			if sleepErr := d.throttleSleep(ctx, wait); sleepErr != nil {
				return sleepErr
			}
			continue
		}

		if errors.Is(err, bot.ErrorForbidden) {
			return fmt.Errorf("%w: %v", ErrTargetRejected, err)
		}

		return fmt.Errorf("batch forward of %d messages failed: %w", len(messageIDs), err)
	}
}

// pace 每条消息之间的固定投递间隔
func (d *Dispatcher) pace(ctx context.Context) error {
	if d.messageDelay <= 0 {
		return nil
	}
	return d.sleep(ctx, d.messageDelay)
}

// throttleSleep 按服务端指示休眠，超出上限时截断
func (d *Dispatcher) throttleSleep(ctx context.Context, wait time.Duration) error {
	if d.maxThrottleSleep > 0 && wait > d.maxThrottleSleep {
		logger.L().Warnf("Throttle wait %v exceeds cap, sleeping %v instead", wait, d.maxThrottleSleep)
		wait = d.maxThrottleSleep
	}

	logger.L().Infof("Rate limited by Telegram, sleeping %v", wait)
	if d.onThrottle != nil {
		d.onThrottle(wait)
	}
	return d.sleep(ctx, wait)
}

// throttleDelay 从错误中提取限流等待时长
func throttleDelay(err error) (time.Duration, bool) {
	var tooMany *bot.TooManyRequestsError
	if !errors.As(err, &tooMany) {
		return 0, false
	}

	wait := time.Duration(tooMany.RetryAfter) * time.Second
	if wait <= 0 {
		wait = time.Second
	}
	return wait, true
}
