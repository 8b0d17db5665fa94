package session

import (
	"context"
	"sync"

	xerrors "FlowPilot-Chain/internal/errors"
)

// MemoryStore 以内存方式保存会话历史，用于单机部署与测试。
type MemoryStore struct {
	mu       sync.RWMutex
	turns    map[string][]Turn
	maxTurns int
}

// NewMemoryStore 创建 MemoryStore。maxTurns 不合法时使用默认上限。
func NewMemoryStore(maxTurns int) *MemoryStore {
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}
	return &MemoryStore{
		turns:    make(map[string][]Turn),
		maxTurns: maxTurns,
	}
}

// Append 实现 Store 接口。
func (m *MemoryStore) Append(_ context.Context, userID string, turns ...Turn) error {
	if userID == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "用户标识不能为空")
	}
	if len(turns) == 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	history := append(m.turns[userID], turns...)
	if overflow := len(history) - m.maxTurns; overflow > 0 {
		history = history[overflow:]
	}
	m.turns[userID] = history
	return nil
}

// List 返回指定用户的会话历史副本。
func (m *MemoryStore) List(_ context.Context, userID string) ([]Turn, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	history, ok := m.turns[userID]
	if !ok {
		return nil, nil
	}
	clone := make([]Turn, len(history))
	copy(clone, history)
	return clone, nil
}

// Clear 删除指定用户的会话历史。
func (m *MemoryStore) Clear(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.turns, userID)
	return nil
}

// Close 对内存存储无需操作。
func (m *MemoryStore) Close() error {
	return nil
}

var _ Store = (*MemoryStore)(nil)
