package telegram

import (
	"context"
	"fmt"
	"time"

	"forward_bot/internal/config"
	"forward_bot/internal/logger"
	"forward_bot/internal/telegram/forward"
	"forward_bot/internal/telegram/models"
	"forward_bot/internal/telegram/repository"

	"github.com/go-telegram/bot"
	"go.mongodb.org/mongo-driver/mongo"
)

// Bot Telegram Bot 服务
type Bot struct {
	bot      *bot.Bot
	db       *mongo.Database
	ownerIDs []int64

	userRepo       repository.UserRepository
	messageRepo    repository.MessageRepository
	configRepo     repository.ConfigRepository
	checkpointRepo repository.CheckpointRepository
	seenMediaRepo  repository.SeenMediaRepository

	engine      *forward.Engine
	coordinator *forward.Coordinator
	notifier    *forward.Notifier
	workerPool  *WorkerPool
}

// New 创建 Telegram Bot 实例
func New(cfg *config.Config, db *mongo.Database) (*Bot, error) {
	if cfg.TelegramToken == "" {
		return nil, fmt.Errorf("telegram token cannot be empty")
	}

	telegramBot := &Bot{
		db:             db,
		ownerIDs:       cfg.BotOwnerIDs,
		userRepo:       repository.NewMongoUserRepository(db),
		messageRepo:    repository.NewMongoMessageRepository(db),
		configRepo:     repository.NewMongoConfigRepository(db),
		checkpointRepo: repository.NewMongoCheckpointRepository(db),
		seenMediaRepo:  repository.NewMongoSeenMediaRepository(db),
		workerPool:     NewWorkerPool(8, 256),
	}

	// 未命中任何命令的 update 交给归档器
	b, err := bot.New(cfg.TelegramToken, bot.WithDefaultHandler(telegramBot.handleDefault))
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}
	telegramBot.bot = b

	client := forward.NewBotClient(b)
	telegramBot.notifier = forward.NewNotifier(client, cfg.LogChannelID)
	telegramBot.engine = forward.NewEngine(
		client,
		telegramBot.messageRepo,
		telegramBot.configRepo,
		telegramBot.checkpointRepo,
		telegramBot.seenMediaRepo,
		telegramBot.notifier,
		cfg.Forward,
	)
	telegramBot.coordinator = forward.NewCoordinator(telegramBot.engine, telegramBot.checkpointRepo, telegramBot.notifier)

	// 初始化 owners
	if err := telegramBot.initOwners(context.Background()); err != nil {
		logger.L().Warnf("Failed to initialize owners: %v", err)
	}

	// 注册 handlers
	telegramBot.registerHandlers()

	// 初始化数据库索引
	if err := telegramBot.ensureIndexes(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to ensure indexes: %w", err)
	}

	logger.L().Info("Telegram bot initialized successfully")
	return telegramBot, nil
}

// InitFromConfig 从应用配置初始化 Telegram Bot
func InitFromConfig(cfg *config.Config, db *mongo.Database) (*Bot, error) {
	return New(cfg, db)
}

// Start 启动 Bot（阻塞式，应在 goroutine 中运行）
// 先执行一轮崩溃恢复，再开始消费 update
func (b *Bot) Start(ctx context.Context) error {
	logger.L().Info("Running recovery pass before polling...")
	if err := b.coordinator.Run(ctx); err != nil {
		logger.L().Errorf("Recovery pass failed: %v", err)
	}

	logger.L().Info("Starting Telegram bot...")
	b.bot.Start(ctx)
	logger.L().Info("Telegram bot stopped")
	return nil
}

// Stop 停止 Bot，等待工作池排空
func (b *Bot) Stop(ctx context.Context) error {
	logger.L().Info("Stopping Telegram bot...")
	b.workerPool.Shutdown()
	b.engine.Close()
	return nil
}

// initOwners 初始化 owner 角色
func (b *Bot) initOwners(ctx context.Context) error {
	for _, ownerID := range b.ownerIDs {
		user, err := b.userRepo.GetByTelegramID(ctx, ownerID)
		if err != nil {
			// 用户不存在，创建 owner 记录
			user = &models.User{
				TelegramID:   ownerID,
				Role:         models.RoleOwner,
				CreatedAt:    time.Now(),
				UpdatedAt:    time.Now(),
				LastActiveAt: time.Now(),
			}
			if err := b.userRepo.CreateOrUpdate(ctx, user); err != nil {
				logger.L().Warnf("Failed to create owner %d: %v", ownerID, err)
				continue
			}
			logger.L().Infof("Initialized owner: %d", ownerID)
		} else if !user.IsOwner() {
			user.Role = models.RoleOwner
			user.UpdatedAt = time.Now()
			if err := b.userRepo.CreateOrUpdate(ctx, user); err != nil {
				logger.L().Warnf("Failed to update owner role for %d: %v", ownerID, err)
				continue
			}
			logger.L().Infof("Updated user %d to owner", ownerID)
		}
	}
	return nil
}

// ensureIndexes 确保所有数据库索引存在
func (b *Bot) ensureIndexes(ctx context.Context) error {
	if err := b.userRepo.EnsureIndexes(ctx); err != nil {
		return fmt.Errorf("failed to ensure user indexes: %w", err)
	}
	if err := b.messageRepo.EnsureIndexes(ctx); err != nil {
		return fmt.Errorf("failed to ensure message indexes: %w", err)
	}
	if err := b.configRepo.EnsureIndexes(ctx); err != nil {
		return fmt.Errorf("failed to ensure config indexes: %w", err)
	}
	if err := b.checkpointRepo.EnsureIndexes(ctx); err != nil {
		return fmt.Errorf("failed to ensure checkpoint indexes: %w", err)
	}
	if err := b.seenMediaRepo.EnsureIndexes(ctx); err != nil {
		return fmt.Errorf("failed to ensure seen media indexes: %w", err)
	}

	logger.L().Debug("All indexes ensured")
	return nil
}
