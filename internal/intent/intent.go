package intent

import (
	"encoding/json"
	"strings"

	xerrors "FlowPilot-Chain/internal/errors"
)

// Kind 表示一次用户发言被识别出的意图类型，是一个封闭集合。
type Kind string

const (
	KindStake        Kind = "stake"
	KindSwap         Kind = "swap"
	KindBalance      Kind = "balance"
	KindVault        Kind = "vault"
	KindConversation Kind = "conversation"
	KindUnknown      Kind = "unknown"
)

// ParseKind 将字符串解析为意图类型，无法识别时归入 unknown。
func ParseKind(raw string) Kind {
	switch Kind(strings.ToLower(strings.TrimSpace(raw))) {
	case KindStake:
		return KindStake
	case KindSwap:
		return KindSwap
	case KindBalance:
		return KindBalance
	case KindVault:
		return KindVault
	case KindConversation:
		return KindConversation
	default:
		return KindUnknown
	}
}

// IsAction 判断意图是否对应一个具体的链上操作。
func (k Kind) IsAction() bool {
	switch k {
	case KindStake, KindSwap, KindBalance, KindVault:
		return true
	default:
		return false
	}
}

// NeedsConfirmation 判断该类意图在执行前是否需要用户二次确认。
// 余额查询是只读操作，不改变资金状态，因此无需确认。
func (k Kind) NeedsConfirmation() bool {
	switch k {
	case KindStake, KindSwap, KindVault:
		return true
	default:
		return false
	}
}

// VaultAction 表示金库意图下的具体子操作。
type VaultAction string

const (
	VaultDeposit   VaultAction = "deposit"
	VaultWithdraw  VaultAction = "withdraw"
	VaultRedeem    VaultAction = "redeem"
	VaultInfo      VaultAction = "info"
	VaultPortfolio VaultAction = "portfolio"
)

// ParseVaultAction 解析金库子操作，无法识别时返回空值。
func ParseVaultAction(raw string) VaultAction {
	switch VaultAction(strings.ToLower(strings.TrimSpace(raw))) {
	case VaultDeposit:
		return VaultDeposit
	case VaultWithdraw:
		return VaultWithdraw
	case VaultRedeem:
		return VaultRedeem
	case VaultInfo:
		return VaultInfo
	case VaultPortfolio:
		return VaultPortfolio
	default:
		return ""
	}
}

// Params 是经过类型化的意图参数包。零值代表对话中未出现该参数，
// 解析阶段只填充模型明确给出的字段，绝不凭空补全。
type Params struct {
	Amount        float64     `json:"amount,omitempty"`
	Validator     string      `json:"validator,omitempty"`
	FromToken     string      `json:"from_token,omitempty"`
	ToToken       string      `json:"to_token,omitempty"`
	WalletAddress string      `json:"wallet_address,omitempty"`
	VaultAction   VaultAction `json:"vault_action,omitempty"`
	VaultAddress  string      `json:"vault_address,omitempty"`
	Shares        float64     `json:"shares,omitempty"`
	Slippage      float64     `json:"slippage,omitempty"`
}

// Intent 是一次分类调用的完整结果，创建后不可变。
type Intent struct {
	Kind           Kind    `json:"kind"`
	Confidence     float64 `json:"confidence"`
	Params         Params  `json:"parameters"`
	RawMessage     string  `json:"raw_message"`
	AssistantReply string  `json:"assistant_reply"`
}

// FallbackReply 是分类失败时返回给用户的兜底话术。
const FallbackReply = "我没有完全理解您的意思，能换个说法吗？我可以帮您质押代币、兑换代币、查询余额或操作收益金库。"

// Fallback 构造分类失败时的兜底意图：普通对话、置信度 0.5、无参数。
func Fallback(rawMessage string) *Intent {
	return &Intent{
		Kind:           KindConversation,
		Confidence:     0.5,
		RawMessage:     rawMessage,
		AssistantReply: FallbackReply,
	}
}

// wirePayload 描述大模型输出的原始 JSON 结构。
type wirePayload struct {
	ActionType   string          `json:"action_type"`
	Confidence   float64         `json:"confidence"`
	Parameters   json.RawMessage `json:"parameters"`
	UserResponse string          `json:"user_response"`
}

type wireParams struct {
	Amount        float64 `json:"amount"`
	Validator     string  `json:"validator"`
	FromToken     string  `json:"from_token"`
	ToToken       string  `json:"to_token"`
	WalletAddress string  `json:"wallet_address"`
	VaultAction   string  `json:"vault_action"`
	VaultAddress  string  `json:"vault_address"`
	Shares        float64 `json:"shares"`
	Slippage      float64 `json:"slippage"`
}

// Parse 将大模型输出的 JSON 文本解析为类型化的意图。
// 任何结构性问题都返回错误，由调用方决定是否降级到兜底意图。
func Parse(payload, rawMessage string) (*Intent, error) {
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return nil, xerrors.New(xerrors.CodeClassifierFailure, "大模型输出为空")
	}

	var wire wirePayload
	if err := json.Unmarshal([]byte(payload), &wire); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeClassifierFailure, err, "解析大模型输出失败")
	}

	parsed := &Intent{
		Kind:           ParseKind(wire.ActionType),
		Confidence:     clampConfidence(wire.Confidence),
		RawMessage:     rawMessage,
		AssistantReply: strings.TrimSpace(wire.UserResponse),
	}

	if len(wire.Parameters) > 0 {
		var params wireParams
		if err := json.Unmarshal(wire.Parameters, &params); err != nil {
			return nil, xerrors.Wrap(xerrors.CodeClassifierFailure, err, "解析意图参数失败")
		}
		parsed.Params = normalizeParams(params)
	}

	return parsed, nil
}

// normalizeParams 做大小写与空白归一：代币和验证人统一小写，地址保留原样。
func normalizeParams(wire wireParams) Params {
	return Params{
		Amount:        wire.Amount,
		Validator:     strings.ToLower(strings.TrimSpace(wire.Validator)),
		FromToken:     strings.ToLower(strings.TrimSpace(wire.FromToken)),
		ToToken:       strings.ToLower(strings.TrimSpace(wire.ToToken)),
		WalletAddress: strings.TrimSpace(wire.WalletAddress),
		VaultAction:   ParseVaultAction(wire.VaultAction),
		VaultAddress:  strings.TrimSpace(wire.VaultAddress),
		Shares:        wire.Shares,
		Slippage:      wire.Slippage,
	}
}

func clampConfidence(value float64) float64 {
	if value < 0 {
		return 0
	}
	if value > 1 {
		return 1
	}
	return value
}

// IsHexAddress 检查地址是否满足最低格式要求：以 0x 开头且总长不少于 8。
func IsHexAddress(address string) bool {
	return strings.HasPrefix(address, "0x") && len(address) >= 8
}
