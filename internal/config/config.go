package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config 应用程序配置
type Config struct {
	TelegramToken string  // Telegram Bot API Token
	BotOwnerIDs   []int64 // Bot管理员ID列表
	MongoURI      string  // MongoDB连接URI
	MongoDBName   string  // MongoDB数据库名称
	LogChannelID  int64   // 运维日志频道 ID（任务开始/完成/失败通知）
	Forward       ForwardConfig
}

// ForwardConfig 转发引擎配置
type ForwardConfig struct {
	MessageDelay         time.Duration // 单条复制之间的间隔
	BatchSize            int           // 带转发标记的批量发送上限
	BatchDelay           time.Duration // 批次之间的间隔
	CheckpointEvery      int           // 每处理多少条消息刷新一次检查点和进度
	ProgressEditInterval time.Duration // 进度消息编辑的最小间隔
	StatusEditInterval   time.Duration // 状态文本编辑的最小间隔
	MaxThrottleSleep     time.Duration // 单次限流休眠的上限
}

// Load 从环境变量加载配置
// 所有默认值在这里一次性确定，读取侧不再做兜底
func Load() (*Config, error) {
	mongoDBName := os.Getenv("MONGO_DB_NAME")
	if mongoDBName == "" {
		mongoDBName = "forward_bot"
	}

	cfg := &Config{
		TelegramToken: os.Getenv("TELEGRAM_TOKEN"),
		MongoURI:      os.Getenv("MONGO_URI"),
		MongoDBName:   mongoDBName,
		Forward:       defaultForwardConfig(),
	}

	// 解析BOT_OWNER_IDS
	ownerIDsStr := os.Getenv("BOT_OWNER_IDS")
	if ownerIDsStr != "" {
		var err error
		cfg.BotOwnerIDs, err = parseOwnerIDs(ownerIDsStr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse BOT_OWNER_IDS: %w", err)
		}
	}

	// 解析LOG_CHANNEL_ID（可选，用于运维通知）
	if logChannelStr := strings.TrimSpace(os.Getenv("LOG_CHANNEL_ID")); logChannelStr != "" {
		logChannelID, err := strconv.ParseInt(logChannelStr, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("failed to parse LOG_CHANNEL_ID: %w", err)
		}
		cfg.LogChannelID = logChannelID
	}

	// 解析MESSAGE_DELAY（秒，支持小数，默认1.3秒）
	if delayStr := strings.TrimSpace(os.Getenv("MESSAGE_DELAY")); delayStr != "" {
		seconds, err := strconv.ParseFloat(delayStr, 64)
		if err != nil || seconds < 0 {
			return nil, fmt.Errorf("invalid MESSAGE_DELAY: %s", delayStr)
		}
		cfg.Forward.MessageDelay = time.Duration(seconds * float64(time.Second))
	}

	// 解析BATCH_SIZE（默认100）
	if batchStr := strings.TrimSpace(os.Getenv("BATCH_SIZE")); batchStr != "" {
		size, err := strconv.Atoi(batchStr)
		if err != nil || size < 1 {
			return nil, fmt.Errorf("invalid BATCH_SIZE: %s", batchStr)
		}
		cfg.Forward.BatchSize = size
	}

	// 解析PROGRESS_EDIT_INTERVAL（秒，默认2秒）
	if intervalStr := strings.TrimSpace(os.Getenv("PROGRESS_EDIT_INTERVAL")); intervalStr != "" {
		seconds, err := strconv.ParseFloat(intervalStr, 64)
		if err != nil || seconds <= 0 {
			return nil, fmt.Errorf("invalid PROGRESS_EDIT_INTERVAL: %s", intervalStr)
		}
		cfg.Forward.ProgressEditInterval = time.Duration(seconds * float64(time.Second))
	}

	// 解析BATCH_DELAY（秒，支持小数，默认1.3秒）
	if delayStr := strings.TrimSpace(os.Getenv("BATCH_DELAY")); delayStr != "" {
		seconds, err := strconv.ParseFloat(delayStr, 64)
		if err != nil || seconds < 0 {
			return nil, fmt.Errorf("invalid BATCH_DELAY: %s", delayStr)
		}
		cfg.Forward.BatchDelay = time.Duration(seconds * float64(time.Second))
	}

	// 解析CHECKPOINT_EVERY（默认10条）
	if everyStr := strings.TrimSpace(os.Getenv("CHECKPOINT_EVERY")); everyStr != "" {
		every, err := strconv.Atoi(everyStr)
		if err != nil || every < 1 {
			return nil, fmt.Errorf("invalid CHECKPOINT_EVERY: %s", everyStr)
		}
		cfg.Forward.CheckpointEvery = every
	}

	// 解析STATUS_EDIT_INTERVAL（秒，默认3秒）
	if intervalStr := strings.TrimSpace(os.Getenv("STATUS_EDIT_INTERVAL")); intervalStr != "" {
		seconds, err := strconv.ParseFloat(intervalStr, 64)
		if err != nil || seconds <= 0 {
			return nil, fmt.Errorf("invalid STATUS_EDIT_INTERVAL: %s", intervalStr)
		}
		cfg.Forward.StatusEditInterval = time.Duration(seconds * float64(time.Second))
	}

	// 解析MAX_THROTTLE_SLEEP（秒，默认60秒）
	if sleepStr := strings.TrimSpace(os.Getenv("MAX_THROTTLE_SLEEP")); sleepStr != "" {
		seconds, err := strconv.ParseFloat(sleepStr, 64)
		if err != nil || seconds <= 0 {
			return nil, fmt.Errorf("invalid MAX_THROTTLE_SLEEP: %s", sleepStr)
		}
		cfg.Forward.MaxThrottleSleep = time.Duration(seconds * float64(time.Second))
	}

	return cfg, nil
}

func defaultForwardConfig() ForwardConfig {
	return ForwardConfig{
		MessageDelay:         1300 * time.Millisecond,
		BatchSize:            100,
		BatchDelay:           1300 * time.Millisecond,
		CheckpointEvery:      10,
		ProgressEditInterval: 2 * time.Second,
		StatusEditInterval:   3 * time.Second,
		MaxThrottleSleep:     60 * time.Second,
	}
}

// parseOwnerIDs 解析逗号分隔的用户ID字符串
// 支持格式: "123456789" 或 "123456789,987654321"
func parseOwnerIDs(s string) ([]int64, error) {
	parts := strings.Split(s, ",")
	ids := make([]int64, 0, len(parts))

	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid owner ID %q: %w", part, err)
		}
		ids = append(ids, id)
	}

	return ids, nil
}
