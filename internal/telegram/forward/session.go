package forward

import (
	"context"
	"errors"
	"sync"
)

// ErrUserBusy 同一用户已有任务在运行
var ErrUserBusy = errors.New("user already has a running job")

// ErrTargetBusy 目标聊天正被其他任务占用
var ErrTargetBusy = errors.New("target chat is busy with another job")

// Session 一个正在运行的转发任务的注册信息
type Session struct {
	jobID      string
	userID     int64
	targetChat int64
	state      *JobState
	cancel     context.CancelFunc

	registry    *Registry
	releaseOnce sync.Once
}

// State 任务运行时状态
func (s *Session) State() *JobState {
	return s.state
}

// Release 释放会话占用的用户锁与目标锁
// 幂等，释放时把末次快照留存给后续 /status 查询
func (s *Session) Release() {
	s.releaseOnce.Do(func() {
		s.registry.release(s)
	})
}

// Registry 会话注册表
// 保证每用户最多一个任务、每个目标聊天最多被一个任务写入
type Registry struct {
	mu          sync.Mutex
	users       map[int64]*Session
	busyTargets map[int64]int64 // targetChat -> userID
	lastResults map[int64]Snapshot
}

// NewRegistry 创建会话注册表
func NewRegistry() *Registry {
	return &Registry{
		users:       make(map[int64]*Session),
		busyTargets: make(map[int64]int64),
		lastResults: make(map[int64]Snapshot),
	}
}

// Acquire 为任务占用用户锁与目标锁
// 返回的上下文在会话被取消或父上下文结束时关闭
func (r *Registry) Acquire(ctx context.Context, state *JobState) (context.Context, *Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.users[state.userID]; ok {
		return nil, nil, ErrUserBusy
	}
	if owner, ok := r.busyTargets[state.targetChat]; ok && owner != state.userID {
		return nil, nil, ErrTargetBusy
	}

	jobCtx, cancel := context.WithCancel(ctx)
	session := &Session{
		jobID:      state.jobID,
		userID:     state.userID,
		targetChat: state.targetChat,
		state:      state,
		cancel:     cancel,
		registry:   r,
	}

	r.users[state.userID] = session
	r.busyTargets[state.targetChat] = state.userID

	return jobCtx, session, nil
}

// release 移除会话并留存末次快照
func (r *Registry) release(s *Session) {
	s.cancel()

	r.mu.Lock()
	defer r.mu.Unlock()

	if current, ok := r.users[s.userID]; ok && current == s {
		delete(r.users, s.userID)
	}
	if owner, ok := r.busyTargets[s.targetChat]; ok && owner == s.userID {
		delete(r.busyTargets, s.targetChat)
	}
	r.lastResults[s.userID] = s.state.Snapshot()
}

// Cancel 请求取消指定用户的任务
// 只关闭任务上下文，状态流转由任务 goroutine 自己收尾
// 返回 false 表示该用户当前没有任务
func (r *Registry) Cancel(userID int64) bool {
	r.mu.Lock()
	session, ok := r.users[userID]
	r.mu.Unlock()

	if !ok {
		return false
	}
	session.cancel()
	return true
}

// Snapshot 查询用户任务状态
// 优先返回正在运行的任务，否则返回上一次任务的终态快照
func (r *Registry) Snapshot(userID int64) (Snapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if session, ok := r.users[userID]; ok {
		return session.state.Snapshot(), true
	}
	if snap, ok := r.lastResults[userID]; ok {
		return snap, true
	}
	return Snapshot{}, false
}

// Running 当前正在运行的任务数
func (r *Registry) Running() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.users)
}
