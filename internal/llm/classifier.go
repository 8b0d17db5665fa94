package llm

import (
	"context"
	"log/slog"
	"time"

	"FlowPilot-Chain/internal/intent"
	"FlowPilot-Chain/internal/session"
	"FlowPilot-Chain/pkg/logger"
)

// Classifier 把底层大模型调用包装成永不失败的意图识别器。
// 任何失败（网络错误、空输出、非法 JSON）都会在这一层被吸收，
// 转换为兜底的对话意图，引擎永远不会观察到分类层抛出的错误。
type Classifier struct {
	client  Client
	timeout time.Duration
	log     *slog.Logger
}

// ClassifierOption 定义可选配置。
type ClassifierOption func(*Classifier)

// WithTimeout 设置单次分类调用的超时时间。
func WithTimeout(timeout time.Duration) ClassifierOption {
	return func(c *Classifier) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// NewClassifier 创建 Classifier。
func NewClassifier(client Client, opts ...ClassifierOption) *Classifier {
	c := &Classifier{
		client: client,
		log:    logger.Named("classifier"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Classify 根据完整会话历史识别最后一条用户发言的意图。
// 返回类型化意图与模型原始输出文本，永远不返回错误。
func (c *Classifier) Classify(ctx context.Context, history []session.Turn) (*intent.Intent, string) {
	rawMessage := lastUserContent(history)

	if c == nil || c.client == nil {
		return intent.Fallback(rawMessage), ""
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	payload, err := c.client.Complete(ctx, history)
	if err != nil {
		c.log.Warn("大模型调用失败，使用兜底意图", slog.Any("error", err))
		return intent.Fallback(rawMessage), ""
	}

	parsed, err := intent.Parse(payload, rawMessage)
	if err != nil {
		c.log.Warn("大模型输出无法解析，使用兜底意图", slog.Any("error", err))
		return intent.Fallback(rawMessage), payload
	}
	if parsed.AssistantReply == "" {
		parsed.AssistantReply = intent.FallbackReply
	}
	return parsed, payload
}

// lastUserContent 返回历史中最后一条用户发言，用于记录触发意图的原文。
func lastUserContent(history []session.Turn) string {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == session.RoleUser {
			return history[i].Content
		}
	}
	return ""
}
