package session

import "context"

// 会话角色。与大模型聊天接口的 role 字段保持一致。
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn 表示会话中的一轮发言。
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// UserTurn 构造一条用户发言。
func UserTurn(content string) Turn {
	return Turn{Role: RoleUser, Content: content}
}

// AssistantTurn 构造一条助手回复。
func AssistantTurn(content string) Turn {
	return Turn{Role: RoleAssistant, Content: content}
}

// Store 定义按用户维度保存会话历史的统一接口。
// 实现必须在每次追加后把历史截断到配置的上限，先进先出淘汰最旧的发言。
type Store interface {
	Append(ctx context.Context, userID string, turns ...Turn) error
	List(ctx context.Context, userID string) ([]Turn, error)
	Clear(ctx context.Context, userID string) error
	Close() error
}

// DefaultMaxTurns 是会话历史默认保留的发言数量上限。
const DefaultMaxTurns = 10
