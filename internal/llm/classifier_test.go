package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"FlowPilot-Chain/internal/intent"
	"FlowPilot-Chain/internal/session"
)

type stubClient struct {
	payload string
	err     error
	wait    time.Duration
}

func (s *stubClient) Complete(ctx context.Context, _ []session.Turn) (string, error) {
	if s.wait > 0 {
		select {
		case <-time.After(s.wait):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if s.err != nil {
		return "", s.err
	}
	return s.payload, nil
}

func history(messages ...string) []session.Turn {
	turns := make([]session.Turn, 0, len(messages))
	for _, m := range messages {
		turns = append(turns, session.UserTurn(m))
	}
	return turns
}

func TestClassifySuccess(t *testing.T) {
	client := &stubClient{payload: `{
		"action_type": "swap",
		"confidence": 0.9,
		"parameters": {"amount": 10, "from_token": "FLOW", "to_token": "USDC"},
		"user_response": "好的，帮您兑换。"
	}`}

	parsed, raw := NewClassifier(client).Classify(context.Background(), history("换 10 个 FLOW"))
	if parsed.Kind != intent.KindSwap {
		t.Fatalf("unexpected kind %q", parsed.Kind)
	}
	if parsed.Params.FromToken != "flow" || parsed.Params.ToToken != "usdc" {
		t.Fatalf("tokens must be lowercased: %+v", parsed.Params)
	}
	if raw == "" {
		t.Fatalf("raw payload must be returned")
	}
}

func TestClassifyTransportErrorFallsBack(t *testing.T) {
	client := &stubClient{err: errors.New("连接被拒绝")}

	parsed, _ := NewClassifier(client).Classify(context.Background(), history("帮我质押"))
	if parsed.Kind != intent.KindConversation || parsed.Confidence != 0.5 {
		t.Fatalf("transport failure must yield fallback intent: %+v", parsed)
	}
	if parsed.RawMessage != "帮我质押" {
		t.Fatalf("fallback must keep the triggering message, got %q", parsed.RawMessage)
	}
}

func TestClassifyMalformedPayloadFallsBack(t *testing.T) {
	client := &stubClient{payload: "这不是 JSON"}

	parsed, raw := NewClassifier(client).Classify(context.Background(), history("hi"))
	if parsed.Kind != intent.KindConversation {
		t.Fatalf("malformed payload must yield fallback intent: %+v", parsed)
	}
	if raw != "这不是 JSON" {
		t.Fatalf("raw payload must still be surfaced, got %q", raw)
	}
}

func TestClassifyEmptyReplyGetsFallbackText(t *testing.T) {
	client := &stubClient{payload: `{"action_type":"conversation","confidence":0.8,"user_response":""}`}

	parsed, _ := NewClassifier(client).Classify(context.Background(), history("hello"))
	if parsed.AssistantReply != intent.FallbackReply {
		t.Fatalf("empty reply must be replaced with fallback text, got %q", parsed.AssistantReply)
	}
}

func TestClassifyTimeout(t *testing.T) {
	client := &stubClient{wait: 50 * time.Millisecond, payload: `{}`}

	classifier := NewClassifier(client, WithTimeout(10*time.Millisecond))
	parsed, _ := classifier.Classify(context.Background(), history("慢一点"))
	if parsed.Kind != intent.KindConversation {
		t.Fatalf("timeout must degrade to fallback intent, got %+v", parsed)
	}
}

func TestClassifyNilClient(t *testing.T) {
	parsed, raw := NewClassifier(nil).Classify(context.Background(), history("hi"))
	if parsed.Kind != intent.KindConversation || raw != "" {
		t.Fatalf("nil client must yield fallback: %+v %q", parsed, raw)
	}
}
