package intent

import "testing"

func TestParseStakePayload(t *testing.T) {
	payload := `{
		"action_type": "stake",
		"confidence": 0.95,
		"parameters": {"amount": 150, "validator": "Blocto"},
		"user_response": "好的，准备质押。"
	}`

	parsed, err := Parse(payload, "stake 150 FLOW with blocto validator")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if parsed.Kind != KindStake {
		t.Fatalf("unexpected kind %q", parsed.Kind)
	}
	if parsed.Confidence != 0.95 {
		t.Fatalf("unexpected confidence %v", parsed.Confidence)
	}
	if parsed.Params.Amount != 150 {
		t.Fatalf("unexpected amount %v", parsed.Params.Amount)
	}
	if parsed.Params.Validator != "blocto" {
		t.Fatalf("validator must be lowercased, got %q", parsed.Params.Validator)
	}
	if parsed.AssistantReply != "好的，准备质押。" {
		t.Fatalf("unexpected reply %q", parsed.AssistantReply)
	}
}

func TestParseUnknownActionType(t *testing.T) {
	payload := `{"action_type": "teleport", "confidence": 0.8, "user_response": "嗯？"}`
	parsed, err := Parse(payload, "teleport me")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if parsed.Kind != KindUnknown {
		t.Fatalf("unrecognized action type must map to unknown, got %q", parsed.Kind)
	}
}

func TestParseClampsConfidence(t *testing.T) {
	parsed, err := Parse(`{"action_type":"balance","confidence":1.7,"parameters":{"wallet_address":"0xabc12345"}}`, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if parsed.Confidence != 1 {
		t.Fatalf("confidence must be clamped to 1, got %v", parsed.Confidence)
	}

	parsed, err = Parse(`{"action_type":"balance","confidence":-0.2}`, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if parsed.Confidence != 0 {
		t.Fatalf("confidence must be clamped to 0, got %v", parsed.Confidence)
	}
}

func TestParseRejectsMalformedPayload(t *testing.T) {
	for _, payload := range []string{"", "   ", "not json", `{"action_type": 5}`} {
		if _, err := Parse(payload, "hi"); err == nil {
			t.Fatalf("payload %q must be rejected", payload)
		}
	}
}

func TestParsePreservesAddressCase(t *testing.T) {
	payload := `{"action_type":"balance","confidence":0.9,"parameters":{"wallet_address":"0xAbCd1234"}}`
	parsed, err := Parse(payload, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if parsed.Params.WalletAddress != "0xAbCd1234" {
		t.Fatalf("addresses must keep their original case, got %q", parsed.Params.WalletAddress)
	}
}

func TestFallbackIntent(t *testing.T) {
	fallback := Fallback("原始消息")
	if fallback.Kind != KindConversation {
		t.Fatalf("fallback kind must be conversation, got %q", fallback.Kind)
	}
	if fallback.Confidence != 0.5 {
		t.Fatalf("fallback confidence must be 0.5, got %v", fallback.Confidence)
	}
	if fallback.Params != (Params{}) {
		t.Fatalf("fallback params must be empty, got %+v", fallback.Params)
	}
	if fallback.RawMessage != "原始消息" || fallback.AssistantReply == "" {
		t.Fatalf("unexpected fallback %+v", fallback)
	}
}

func TestKindPredicates(t *testing.T) {
	cases := []struct {
		kind     Kind
		isAction bool
		confirm  bool
	}{
		{KindStake, true, true},
		{KindSwap, true, true},
		{KindVault, true, true},
		{KindBalance, true, false},
		{KindConversation, false, false},
		{KindUnknown, false, false},
	}
	for _, c := range cases {
		if c.kind.IsAction() != c.isAction {
			t.Fatalf("%s IsAction: want %v", c.kind, c.isAction)
		}
		if c.kind.NeedsConfirmation() != c.confirm {
			t.Fatalf("%s NeedsConfirmation: want %v", c.kind, c.confirm)
		}
	}
}

func TestIsHexAddress(t *testing.T) {
	valid := []string{"0xabc12345", "0x1234567890abcdef"}
	invalid := []string{"", "abc12345", "0x12", "1x234567890"}
	for _, addr := range valid {
		if !IsHexAddress(addr) {
			t.Fatalf("%q should be accepted", addr)
		}
	}
	for _, addr := range invalid {
		if IsHexAddress(addr) {
			t.Fatalf("%q should be rejected", addr)
		}
	}
}
