package events

import (
	"context"
	"time"
)

// Type 表示事件类型。
type Type string

const (
	// TypeActionExecuted 表示一次确认后的操作已交给执行器。
	TypeActionExecuted Type = "action_executed"
	// TypeActionCancelled 表示用户取消了待确认操作。
	TypeActionCancelled Type = "action_cancelled"
	// TypeVaultDiscovered 表示扫描器发现了一个新的 ERC-4626 金库。
	TypeVaultDiscovered Type = "vault_discovered"
)

// Event 是对外广播的业务事件，供下游审计或通知系统消费。
type Event struct {
	Type       Type           `json:"type"`
	UserID     string         `json:"user_id,omitempty"`
	ActionID   string         `json:"action_id,omitempty"`
	Kind       string         `json:"kind,omitempty"`
	TxHash     string         `json:"tx_hash,omitempty"`
	Success    bool           `json:"success"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// Publisher 定义事件发布的统一接口。发布是尽力而为的旁路：
// 调用方记录失败但绝不让事件问题影响主流程。
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}
