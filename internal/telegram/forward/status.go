package forward

import (
	"sync"
	"time"
)

// 任务状态常量
const (
	StatusValidating = "validating"
	StatusRunning    = "running"
	StatusSleeping   = "sleeping"
	StatusCancelled  = "cancelled"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// JobState 单个转发任务的运行时状态
// 计数器只增不减，只有任务所属的 goroutine 会写入
type JobState struct {
	mu sync.Mutex

	jobID      string
	userID     int64
	sourceChat int64
	targetChat int64

	originalSkip int64 // 用户最初指定的偏移（恢复后仍展示原值）
	total        int64 // 计划扫描的总条数
	resumed      bool

	fetched   int64
	forwarded int64
	duplicate int64
	filtered  int64
	deleted   int64

	lastMessageID int64
	status        string
	sleepSeconds  int64
	startedAt     time.Time
}

// NewJobState 创建任务状态
func NewJobState(jobID string, userID, sourceChat, targetChat, skip, total int64, resumed bool) *JobState {
	return &JobState{
		jobID:        jobID,
		userID:       userID,
		sourceChat:   sourceChat,
		targetChat:   targetChat,
		originalSkip: skip,
		total:        total,
		resumed:      resumed,
		status:       StatusValidating,
		startedAt:    time.Now(),
	}
}

// AddFetched 记一条已拉取
func (s *JobState) AddFetched(messageID int64) {
	s.mu.Lock()
	s.fetched++
	if messageID > s.lastMessageID {
		s.lastMessageID = messageID
	}
	s.mu.Unlock()
}

// AddForwarded 记 n 条投递成功
func (s *JobState) AddForwarded(n int64) {
	s.mu.Lock()
	s.forwarded += n
	s.mu.Unlock()
}

// AddDuplicate 记一条重复跳过
func (s *JobState) AddDuplicate() {
	s.mu.Lock()
	s.duplicate++
	s.mu.Unlock()
}

// AddFiltered 记一条被过滤
func (s *JobState) AddFiltered() {
	s.mu.Lock()
	s.filtered++
	s.mu.Unlock()
}

// AddDeleted 记 n 条失败/不可恢复
func (s *JobState) AddDeleted(n int64) {
	s.mu.Lock()
	s.deleted += n
	s.mu.Unlock()
}

// SetStatus 替换状态标签
func (s *JobState) SetStatus(status string) {
	s.mu.Lock()
	s.status = status
	s.sleepSeconds = 0
	s.mu.Unlock()
}

// SetSleeping 进入限流休眠状态
func (s *JobState) SetSleeping(d time.Duration) {
	s.mu.Lock()
	s.status = StatusSleeping
	s.sleepSeconds = int64(d.Seconds())
	s.mu.Unlock()
}

// Snapshot 当前状态的不可变视图
func (s *JobState) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Snapshot{
		JobID:         s.jobID,
		UserID:        s.userID,
		SourceChat:    s.sourceChat,
		TargetChat:    s.targetChat,
		OriginalSkip:  s.originalSkip,
		Total:         s.total,
		Resumed:       s.resumed,
		Fetched:       s.fetched,
		Forwarded:     s.forwarded,
		Duplicate:     s.duplicate,
		Filtered:      s.filtered,
		Deleted:       s.deleted,
		LastMessageID: s.lastMessageID,
		Status:        s.status,
		SleepSeconds:  s.sleepSeconds,
		StartedAt:     s.startedAt,
	}
}

// Snapshot 任务状态快照
type Snapshot struct {
	JobID      string
	UserID     int64
	SourceChat int64
	TargetChat int64

	OriginalSkip int64
	Total        int64
	Resumed      bool

	Fetched   int64
	Forwarded int64
	Duplicate int64
	Filtered  int64
	Deleted   int64

	LastMessageID int64
	Status        string
	SleepSeconds  int64
	StartedAt     time.Time
}

// Processed 已入账条数
func (s Snapshot) Processed() int64 {
	return s.Forwarded + s.Duplicate + s.Filtered + s.Deleted
}

// Balanced 记账闭合：每条拉取的消息都已归入某个计数器
func (s Snapshot) Balanced() bool {
	return s.Fetched == s.Processed()
}

// Percentage 完成百分比
func (s Snapshot) Percentage() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Fetched) * 100 / float64(s.Total)
}

// Speed 每秒处理条数
func (s Snapshot) Speed() float64 {
	elapsed := time.Since(s.StartedAt).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(s.Fetched) / elapsed
}

// ETA 预计剩余时间
func (s Snapshot) ETA() time.Duration {
	speed := s.Speed()
	if speed <= 0 {
		return 0
	}
	remaining := float64(s.Total - s.Fetched)
	if remaining < 0 {
		remaining = 0
	}
	return time.Duration(remaining / speed * float64(time.Second))
}

// Terminal 是否为终态
func (s Snapshot) Terminal() bool {
	switch s.Status {
	case StatusCancelled, StatusCompleted, StatusFailed:
		return true
	default:
		return false
	}
}
