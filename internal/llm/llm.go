package llm

import (
	"context"

	"FlowPilot-Chain/internal/session"
)

// Client 定义了调用大模型的统一接口。实现负责把整段会话历史交给
// 模型，并原样返回模型输出的文本，不在这一层做任何结构化解析。
type Client interface {
	Complete(ctx context.Context, history []session.Turn) (string, error)
}
