//go:build integration

package integration

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	mongoclient "forward_bot/internal/mongo"
	"forward_bot/internal/telegram/models"
	"forward_bot/internal/telegram/repository"

	mongodriver "go.mongodb.org/mongo-driver/mongo"
)

func TestMessageArchiveIntegrationFlow(t *testing.T) {
	t.Parallel()

	db := setupIntegrationDatabase(t)
	messageRepo := repository.NewMongoMessageRepository(db)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := messageRepo.EnsureIndexes(ctx); err != nil {
		t.Fatalf("failed to ensure indexes: %v", err)
	}

	const chatID = int64(-20001)
	for i := int64(1); i <= 5; i++ {
		msg := &models.Message{
			TelegramMessageID: i,
			ChatID:            chatID,
			UserID:            30001,
			MessageType:       models.MessageTypeText,
			Text:              fmt.Sprintf("message %d", i),
			SentAt:            time.Now().Add(-time.Duration(6-i) * time.Minute).UTC(),
		}
		if err := messageRepo.CreateMessage(ctx, msg); err != nil {
			t.Fatalf("failed to archive message %d: %v", i, err)
		}
	}

	created, err := messageRepo.GetByTelegramID(ctx, 3, chatID)
	if err != nil {
		t.Fatalf("failed to query archived message: %v", err)
	}
	if created.Text != "message 3" {
		t.Fatalf("unexpected text: got %q, want %q", created.Text, "message 3")
	}
	if created.CreatedAt.IsZero() || created.UpdatedAt.IsZero() {
		t.Fatalf("expected created_at and updated_at to be set")
	}

	count, err := messageRepo.CountFrom(ctx, chatID, 2)
	if err != nil {
		t.Fatalf("failed to count messages: %v", err)
	}
	if count != 4 {
		t.Fatalf("unexpected count from id 2: got %d, want %d", count, 4)
	}

	messages, err := messageRepo.ListRange(ctx, chatID, 2, 3)
	if err != nil {
		t.Fatalf("failed to list message range: %v", err)
	}
	if len(messages) != 3 {
		t.Fatalf("unexpected range size: got %d, want %d", len(messages), 3)
	}
	for i, msg := range messages {
		if want := int64(2 + i); msg.TelegramMessageID != want {
			t.Fatalf("range out of order at %d: got id=%d want id=%d", i, msg.TelegramMessageID, want)
		}
	}
}

func TestCheckpointIntegrationLifecycle(t *testing.T) {
	t.Parallel()

	db := setupIntegrationDatabase(t)
	checkpointRepo := repository.NewMongoCheckpointRepository(db)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := checkpointRepo.EnsureIndexes(ctx); err != nil {
		t.Fatalf("failed to ensure indexes: %v", err)
	}

	cp := &models.Checkpoint{
		JobID:        "1-integration",
		UserID:       1,
		SourceChat:   -100,
		TargetChat:   -200,
		OriginalSkip: 1,
		TotalScanned: 50,
		State:        models.CheckpointActive,
	}
	if err := checkpointRepo.Save(ctx, cp); err != nil {
		t.Fatalf("failed to save checkpoint: %v", err)
	}

	// 模拟中途刷新
	cp.ProcessedCount = 20
	cp.LastFetchedMessageID = 20
	if err := checkpointRepo.Save(ctx, cp); err != nil {
		t.Fatalf("failed to refresh checkpoint: %v", err)
	}

	active, err := checkpointRepo.ListActive(ctx)
	if err != nil {
		t.Fatalf("failed to list active checkpoints: %v", err)
	}
	if len(active) != 1 {
		t.Fatalf("unexpected active count: got %d, want %d", len(active), 1)
	}
	if active[0].RemainingLimit() != 30 {
		t.Fatalf("unexpected remaining limit: got %d, want %d", active[0].RemainingLimit(), 30)
	}
	if active[0].ResumeFrom() != 21 {
		t.Fatalf("unexpected resume position: got %d, want %d", active[0].ResumeFrom(), 21)
	}

	if err := checkpointRepo.MarkState(ctx, cp.JobID, models.CheckpointCompleted); err != nil {
		t.Fatalf("failed to mark checkpoint completed: %v", err)
	}

	unacked, err := checkpointRepo.ListUnacknowledged(ctx)
	if err != nil {
		t.Fatalf("failed to list unacknowledged checkpoints: %v", err)
	}
	if len(unacked) != 1 || unacked[0].JobID != cp.JobID {
		t.Fatalf("expected one unacknowledged checkpoint, got %+v", unacked)
	}

	if err := checkpointRepo.Acknowledge(ctx, cp.JobID); err != nil {
		t.Fatalf("failed to acknowledge checkpoint: %v", err)
	}

	unacked, err = checkpointRepo.ListUnacknowledged(ctx)
	if err != nil {
		t.Fatalf("failed to re-list unacknowledged checkpoints: %v", err)
	}
	if len(unacked) != 0 {
		t.Fatalf("expected no unacknowledged checkpoints, got %d", len(unacked))
	}
}

func TestSeenMediaIntegrationDedup(t *testing.T) {
	t.Parallel()

	db := setupIntegrationDatabase(t)
	seenRepo := repository.NewMongoSeenMediaRepository(db)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := seenRepo.EnsureIndexes(ctx); err != nil {
		t.Fatalf("failed to ensure indexes: %v", err)
	}

	seen, err := seenRepo.MarkSeen(ctx, 1, "AgADintegration")
	if err != nil {
		t.Fatalf("failed to mark seen media: %v", err)
	}
	if seen {
		t.Fatalf("first sighting must not be a duplicate")
	}

	seen, err = seenRepo.MarkSeen(ctx, 1, "AgADintegration")
	if err != nil {
		t.Fatalf("failed to re-mark seen media: %v", err)
	}
	if !seen {
		t.Fatalf("second sighting must be a duplicate")
	}

	// 不同用户互不影响
	seen, err = seenRepo.MarkSeen(ctx, 2, "AgADintegration")
	if err != nil {
		t.Fatalf("failed to mark seen media for second user: %v", err)
	}
	if seen {
		t.Fatalf("dedup state must be scoped per user")
	}
}

func setupIntegrationDatabase(t *testing.T) *mongodriver.Database {
	t.Helper()

	uri := envOrDefault("MONGO_URI", "mongodb://localhost:27017")
	baseDatabase := envOrDefault("TEST_DATABASE", "test_forward_bot")
	databaseName := fmt.Sprintf("%s_%d", baseDatabase, time.Now().UnixNano())

	client, err := mongoclient.NewClient(mongoclient.Config{
		URI:      uri,
		Database: databaseName,
		Timeout:  5 * time.Second,
	})
	if err != nil {
		if isCIEnvironment() {
			t.Fatalf("failed to connect MongoDB in CI: %v", err)
		}
		t.Skipf("MongoDB is not available locally, skip integration test: %v", err)
		return nil
	}

	db := client.Database()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := db.Drop(ctx); err != nil {
			t.Errorf("failed to drop integration database %s: %v", databaseName, err)
		}
		if err := client.Close(ctx); err != nil {
			t.Errorf("failed to close MongoDB connection: %v", err)
		}
	})

	return db
}

func envOrDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func isCIEnvironment() bool {
	return os.Getenv("CI") == "true" || os.Getenv("GITHUB_ACTIONS") == "true"
}
