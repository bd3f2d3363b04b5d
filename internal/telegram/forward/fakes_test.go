package forward

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"forward_bot/internal/telegram/models"

	botModels "github.com/go-telegram/bot/models"
)

// scriptedClient Client 的测试替身
// copyErrs/forwardErrs 按调用顺序消费，耗尽后视为成功
type scriptedClient struct {
	mu sync.Mutex

	copyErrs  []error
	copyCalls int
	copiedIDs []int

	forwardErrs    []error
	forwardCalls   int
	forwardBatches [][]int

	sendErr   error
	sentTexts []string
	sentChats []int64
	nextMsgID int

	deleteCalls int

	editErr   error
	editTexts []string

	// blockCopy 非 nil 时 CopyMessage 阻塞，直到通道关闭或 ctx 结束
	blockCopy chan struct{}
}

func (c *scriptedClient) takeErr(queue *[]error) error {
	if len(*queue) == 0 {
		return nil
	}
	err := (*queue)[0]
	*queue = (*queue)[1:]
	return err
}

func (c *scriptedClient) CopyMessage(ctx context.Context, p CopyParams) (int, error) {
	c.mu.Lock()
	block := c.blockCopy
	c.mu.Unlock()

	if block != nil {
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-block:
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.copyCalls++
	if err := c.takeErr(&c.copyErrs); err != nil {
		return 0, err
	}
	c.copiedIDs = append(c.copiedIDs, p.MessageID)
	c.nextMsgID++
	return c.nextMsgID, nil
}

func (c *scriptedClient) ForwardMessages(ctx context.Context, fromChat, toChat int64, messageIDs []int, protect bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.forwardCalls++
	if err := c.takeErr(&c.forwardErrs); err != nil {
		return err
	}
	batch := append([]int(nil), messageIDs...)
	c.forwardBatches = append(c.forwardBatches, batch)
	return nil
}

func (c *scriptedClient) SendMessage(ctx context.Context, chatID int64, text string, markup *botModels.InlineKeyboardMarkup) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sendErr != nil {
		return 0, c.sendErr
	}
	c.sentChats = append(c.sentChats, chatID)
	c.sentTexts = append(c.sentTexts, text)
	c.nextMsgID++
	return c.nextMsgID, nil
}

func (c *scriptedClient) DeleteMessage(ctx context.Context, chatID int64, messageID int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deleteCalls++
	return nil
}

func (c *scriptedClient) EditMessageText(ctx context.Context, chatID int64, messageID int, text string, markup *botModels.InlineKeyboardMarkup) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.editErr != nil {
		return c.editErr
	}
	c.editTexts = append(c.editTexts, text)
	return nil
}

func (c *scriptedClient) copied() []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]int(nil), c.copiedIDs...)
}

func (c *scriptedClient) edits() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.editTexts...)
}

func (c *scriptedClient) sent() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.sentTexts...)
}

// memorySource MessageSource 的内存实现，消息按 ID 升序返回
type memorySource struct {
	mu   sync.Mutex
	msgs []*models.Message
}

func newMemorySource(msgs ...*models.Message) *memorySource {
	s := &memorySource{msgs: append([]*models.Message(nil), msgs...)}
	sort.Slice(s.msgs, func(i, j int) bool {
		return s.msgs[i].TelegramMessageID < s.msgs[j].TelegramMessageID
	})
	return s
}

func (s *memorySource) ListRange(ctx context.Context, chatID, fromID int64, count int64) ([]*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*models.Message
	for _, m := range s.msgs {
		if m.ChatID != chatID || m.TelegramMessageID < fromID {
			continue
		}
		out = append(out, m)
		if int64(len(out)) >= count {
			break
		}
	}
	return out, nil
}

func (s *memorySource) CountFrom(ctx context.Context, chatID, fromID int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for _, m := range s.msgs {
		if m.ChatID == chatID && m.TelegramMessageID >= fromID {
			n++
		}
	}
	return n, nil
}

// staticConfigStore 返回固定配置
type staticConfigStore struct {
	cfg *models.UserConfig
}

func (s *staticConfigStore) GetConfig(ctx context.Context, userID int64) (*models.UserConfig, error) {
	if s.cfg != nil {
		return s.cfg, nil
	}
	return models.DefaultUserConfig(userID), nil
}

// memoryCheckpoints CheckpointStore 的内存实现
type memoryCheckpoints struct {
	mu     sync.Mutex
	byJob  map[string]*models.Checkpoint
	purged int64
}

func newMemoryCheckpoints() *memoryCheckpoints {
	return &memoryCheckpoints{byJob: make(map[string]*models.Checkpoint)}
}

func (s *memoryCheckpoints) Save(ctx context.Context, cp *models.Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	clone := *cp
	s.byJob[cp.JobID] = &clone
	return nil
}

func (s *memoryCheckpoints) MarkState(ctx context.Context, jobID, state string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp, ok := s.byJob[jobID]
	if !ok {
		return fmt.Errorf("checkpoint not found: %s", jobID)
	}
	cp.State = state
	return nil
}

func (s *memoryCheckpoints) Acknowledge(ctx context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cp, ok := s.byJob[jobID]; ok {
		cp.Acknowledged = true
	}
	return nil
}

func (s *memoryCheckpoints) ListActive(ctx context.Context) ([]*models.Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*models.Checkpoint
	for _, cp := range s.byJob {
		if cp.State == models.CheckpointActive {
			clone := *cp
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (s *memoryCheckpoints) ListUnacknowledged(ctx context.Context) ([]*models.Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*models.Checkpoint
	for _, cp := range s.byJob {
		if cp.State != models.CheckpointActive && !cp.Acknowledged {
			clone := *cp
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (s *memoryCheckpoints) Delete(ctx context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byJob, jobID)
	return nil
}

func (s *memoryCheckpoints) PurgeFinished(ctx context.Context, olderThanHours int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.purged, nil
}

func (s *memoryCheckpoints) get(jobID string) *models.Checkpoint {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cp, ok := s.byJob[jobID]; ok {
		clone := *cp
		return &clone
	}
	return nil
}

// memoryDedup DedupIndex 的内存实现
type memoryDedup struct {
	mu   sync.Mutex
	seen map[string]bool
}

func newMemoryDedup() *memoryDedup {
	return &memoryDedup{seen: make(map[string]bool)}
}

func (d *memoryDedup) MarkSeen(ctx context.Context, userID int64, uniqueID string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	key := fmt.Sprintf("%d:%s", userID, uniqueID)
	if d.seen[key] {
		return true, nil
	}
	d.seen[key] = true
	return false, nil
}
