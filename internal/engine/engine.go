package engine

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	xerrors "FlowPilot-Chain/internal/errors"
	"FlowPilot-Chain/internal/events"
	"FlowPilot-Chain/internal/executor"
	"FlowPilot-Chain/internal/intent"
	"FlowPilot-Chain/internal/llm"
	"FlowPilot-Chain/internal/session"
	"FlowPilot-Chain/internal/storage/mysql"
	"FlowPilot-Chain/pkg/logger"
)

// 引擎默认参数。
const (
	DefaultConfidenceThreshold = 0.7
	DefaultPendingTTL          = 10 * time.Minute
	defaultReapInterval        = time.Minute
)

// Response 是一次对话消息处理的结果。引擎永远返回结构化响应，
// 失败以 success=false 的形式表达，绝不向调用方抛错。
type Response struct {
	Success              bool   `json:"success"`
	Message              string `json:"message"`
	RequiresConfirmation bool   `json:"requires_confirmation"`
	ActionID             string `json:"action_id,omitempty"`
	FunctionCall         string `json:"function_call,omitempty"`
}

// ConfirmationResponse 是一次确认调用的结果。
type ConfirmationResponse struct {
	Success        bool             `json:"success"`
	Message        string           `json:"message"`
	FunctionCall   string           `json:"function_call,omitempty"`
	FunctionResult *executor.Result `json:"function_result,omitempty"`
}

// PendingAction 是待确认操作的对外快照，供查询接口展示。
type PendingAction struct {
	ActionID  string      `json:"action_id"`
	UserID    string      `json:"user_id"`
	Kind      intent.Kind `json:"kind"`
	CreatedAt time.Time   `json:"created_at"`
	ExpiresAt time.Time   `json:"expires_at"`
}

// Stats 汇总引擎运行计数，供健康检查接口使用。
type Stats struct {
	MessagesHandled uint64 `json:"messages_handled"`
	ActionsExecuted uint64 `json:"actions_executed"`
	ActionsCanceled uint64 `json:"actions_cancelled"`
	PendingActions  int    `json:"pending_actions"`
}

// pendingEntry 是注册表中的一条待确认操作。
// 条目从注册表移除即视为消费，同一 id 至多消费一次。
type pendingEntry struct {
	intent    *intent.Intent
	userID    string
	createdAt time.Time
}

// Engine 是意图确认引擎：持有每个用户的会话历史与待确认操作注册表，
// 根据分类结果决定直接执行、请求确认还是普通对话。
// 所有协作方通过构造函数注入，引擎本身不持有任何全局状态。
type Engine struct {
	classifier *llm.Classifier
	store      session.Store
	exec       executor.Executor
	publisher  events.Publisher
	repo       mysql.ActionRepository

	threshold float64
	ttl       time.Duration
	reapEvery time.Duration
	now       func() time.Time

	mu        sync.Mutex
	pending   map[string]*pendingEntry
	userLocks map[string]*sync.Mutex

	messagesHandled atomic.Uint64
	actionsExecuted atomic.Uint64
	actionsCanceled atomic.Uint64

	log *slog.Logger
}

// Option 定义引擎的可选配置。
type Option func(*Engine)

// WithConfidenceThreshold 设置接受加密操作意图的最低置信度。
func WithConfidenceThreshold(threshold float64) Option {
	return func(e *Engine) {
		if threshold > 0 && threshold <= 1 {
			e.threshold = threshold
		}
	}
}

// WithPendingTTL 设置待确认操作的存活时间，超时后视为不存在。
func WithPendingTTL(ttl time.Duration) Option {
	return func(e *Engine) {
		if ttl > 0 {
			e.ttl = ttl
		}
	}
}

// WithEventPublisher 注入业务事件发布器，发布失败不影响主流程。
func WithEventPublisher(publisher events.Publisher) Option {
	return func(e *Engine) {
		e.publisher = publisher
	}
}

// WithActionRepository 注入操作审计存储，写入失败不影响主流程。
func WithActionRepository(repo mysql.ActionRepository) Option {
	return func(e *Engine) {
		e.repo = repo
	}
}

// withClock 仅用于测试，替换时间源以验证过期行为。
func withClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// New 创建意图确认引擎。classifier、store、exec 为必需协作方。
func New(classifier *llm.Classifier, store session.Store, exec executor.Executor, opts ...Option) *Engine {
	e := &Engine{
		classifier: classifier,
		store:      store,
		exec:       exec,
		threshold:  DefaultConfidenceThreshold,
		ttl:        DefaultPendingTTL,
		reapEvery:  defaultReapInterval,
		now:        time.Now,
		pending:    make(map[string]*pendingEntry),
		userLocks:  make(map[string]*sync.Mutex),
		log:        logger.Named("engine"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// Run 启动后台清理协程，定期驱逐过期的待确认操作，ctx 结束后返回。
func (e *Engine) Run(ctx context.Context) {
	ticker := time.NewTicker(e.reapEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := e.reapExpired(); removed > 0 {
				e.log.Info("清理过期的待确认操作", slog.Int("count", removed))
			}
		}
	}
}

// HandleMessage 处理一条用户消息：写入历史、分类、决定响应路径。
// 分类调用期间不持有任何锁，同一用户的消息串行处理，不同用户互不阻塞。
func (e *Engine) HandleMessage(ctx context.Context, userID, text string) *Response {
	e.messagesHandled.Add(1)

	lock := e.userLock(userID)
	lock.Lock()
	if err := e.store.Append(ctx, userID, session.UserTurn(text)); err != nil {
		e.log.Error("写入会话历史失败", slog.String("user_id", userID), slog.Any("error", err))
	}
	history, err := e.store.List(ctx, userID)
	lock.Unlock()
	if err != nil {
		e.log.Error("读取会话历史失败", slog.String("user_id", userID), slog.Any("error", err))
		history = []session.Turn{session.UserTurn(text)}
	}

	// 分类是唯一的慢路径，放在锁外执行。
	parsed, _ := e.classifier.Classify(ctx, history)

	response := e.route(parsed, userID)

	lock.Lock()
	if err := e.store.Append(ctx, userID, session.AssistantTurn(response.Message)); err != nil {
		e.log.Error("写入助手回复失败", slog.String("user_id", userID), slog.Any("error", err))
	}
	lock.Unlock()

	e.log.Info("消息处理完成",
		slog.String("user_id", userID),
		slog.String("kind", string(parsed.Kind)),
		slog.Float64("confidence", parsed.Confidence),
		slog.Bool("requires_confirmation", response.RequiresConfirmation))
	return response
}

// route 根据分类结果决定响应路径。
func (e *Engine) route(parsed *intent.Intent, userID string) *Response {
	if !parsed.Kind.IsAction() || parsed.Confidence < e.threshold {
		return &Response{Success: true, Message: parsed.AssistantReply}
	}

	if message := validate(parsed); message != "" {
		return &Response{Success: false, Message: message}
	}

	if !parsed.Kind.NeedsConfirmation() {
		// 余额查询是只读操作，直接生成调用描述返回。
		call := functionCall(parsed, userID)
		address := parsed.Params.WalletAddress
		if len(address) > 8 {
			address = address[:8]
		}
		return &Response{
			Success:      true,
			Message:      "我来查询钱包 " + address + "... 的余额。",
			FunctionCall: call,
		}
	}

	actionID := uuid.NewString()
	e.mu.Lock()
	e.pending[actionID] = &pendingEntry{intent: parsed, userID: userID, createdAt: e.now()}
	e.mu.Unlock()

	message := confirmationPrompt(parsed)
	if reply := strings.TrimSpace(parsed.AssistantReply); reply != "" {
		message = reply + "\n\n" + message
	}
	return &Response{
		Success:              true,
		Message:              message,
		RequiresConfirmation: true,
		ActionID:             actionID,
	}
}

// HandleConfirmation 处理用户对待确认操作的答复。
// 注册表条目被原子地取出，同一 action id 至多被消费一次；
// 不存在、已过期或属于其他用户的 id 返回明确的失败响应，
// 不产生任何副作用。
func (e *Engine) HandleConfirmation(ctx context.Context, userID, actionID string, confirmed bool) *ConfirmationResponse {
	entry, ok := e.takePending(userID, actionID)
	if !ok {
		e.log.Warn("确认了不存在或已过期的操作",
			slog.String("user_id", userID), slog.String("action_id", actionID))
		return &ConfirmationResponse{
			Success: false,
			Message: "这个操作不存在或已经过期了，请重新发起您的请求。",
		}
	}

	var response *ConfirmationResponse
	if confirmed {
		response = e.execute(ctx, entry, actionID)
	} else {
		e.actionsCanceled.Add(1)
		response = &ConfirmationResponse{
			Success: true,
			Message: "好的，已取消这个操作。还有什么我可以帮您的吗？",
		}
		e.recordOutcome(ctx, entry, actionID, mysql.OutcomeCancelled, nil)
	}

	userTurn := "否"
	if confirmed {
		userTurn = "是"
	}
	lock := e.userLock(userID)
	lock.Lock()
	if err := e.store.Append(ctx, userID,
		session.UserTurn(userTurn), session.AssistantTurn(response.Message)); err != nil {
		e.log.Error("写入确认对话失败", slog.String("user_id", userID), slog.Any("error", err))
	}
	lock.Unlock()

	return response
}

// execute 把确认后的意图分发给执行器，并把结果折叠进回复。
func (e *Engine) execute(ctx context.Context, entry *pendingEntry, actionID string) *ConfirmationResponse {
	call := functionCall(entry.intent, entry.userID)
	result, err := e.dispatch(ctx, entry)
	if err != nil {
		e.log.Error("执行器调用失败",
			slog.String("action_id", actionID),
			slog.String("kind", string(entry.intent.Kind)),
			slog.Any("error", err))
		result = &executor.Result{Success: false, Message: "执行服务暂时不可用，请稍后再试。"}
	}

	e.actionsExecuted.Add(1)
	logger.Audit().Info("action executed",
		slog.String("action_id", actionID),
		slog.String("user_id", entry.userID),
		slog.String("kind", string(entry.intent.Kind)),
		slog.Bool("success", result.Success),
		slog.String("tx_hash", result.TxHash))
	e.recordOutcome(ctx, entry, actionID, mysql.OutcomeExecuted, result)

	message := "操作执行失败：" + result.Message
	if result.Success {
		message = "好的！您的操作已确认并执行。调用：`" + call + "`"
		if result.TxHash != "" {
			message += "\n交易哈希：" + result.TxHash
		}
		if result.Message != "" {
			message += "\n" + result.Message
		}
	}
	return &ConfirmationResponse{
		Success:        result.Success,
		Message:        message,
		FunctionCall:   call,
		FunctionResult: result,
	}
}

// dispatch 按意图类型调用执行器对应的方法。
func (e *Engine) dispatch(ctx context.Context, entry *pendingEntry) (*executor.Result, error) {
	params := entry.intent.Params
	switch entry.intent.Kind {
	case intent.KindStake:
		return e.exec.Stake(ctx, params.Amount, params.Validator, entry.userID)
	case intent.KindSwap:
		return e.exec.Swap(ctx, params.Amount, params.FromToken, params.ToToken, entry.userID, params.Slippage)
	case intent.KindVault:
		switch params.VaultAction {
		case intent.VaultDeposit:
			return e.exec.VaultDeposit(ctx, params.VaultAddress, params.Amount, entry.userID)
		case intent.VaultWithdraw:
			return e.exec.VaultWithdraw(ctx, params.VaultAddress, params.Amount, entry.userID)
		case intent.VaultRedeem:
			return e.exec.VaultRedeem(ctx, params.VaultAddress, params.Shares, entry.userID)
		case intent.VaultInfo:
			return e.exec.VaultInfo(ctx, params.VaultAddress)
		case intent.VaultPortfolio:
			return e.exec.Portfolio(ctx, entry.userID)
		}
	}
	return &executor.Result{Success: false, Message: "不支持的操作类型。"}, nil
}

// Pending 返回当前未过期的待确认操作快照。
func (e *Engine) Pending() []PendingAction {
	now := e.now()
	e.mu.Lock()
	defer e.mu.Unlock()
	actions := make([]PendingAction, 0, len(e.pending))
	for id, entry := range e.pending {
		expiresAt := entry.createdAt.Add(e.ttl)
		if !now.Before(expiresAt) {
			continue
		}
		actions = append(actions, PendingAction{
			ActionID:  id,
			UserID:    entry.userID,
			Kind:      entry.intent.Kind,
			CreatedAt: entry.createdAt,
			ExpiresAt: expiresAt,
		})
	}
	return actions
}

// Stats 返回引擎运行计数。
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	pending := len(e.pending)
	e.mu.Unlock()
	return Stats{
		MessagesHandled: e.messagesHandled.Load(),
		ActionsExecuted: e.actionsExecuted.Load(),
		ActionsCanceled: e.actionsCanceled.Load(),
		PendingActions:  pending,
	}
}

// takePending 原子地取出并删除指定用户的一条待确认操作，
// 过期条目按不存在处理。action id 只对发起它的用户有效，
// 其他用户持有同一个 id 也无法消费，且不影响原条目。
func (e *Engine) takePending(userID, actionID string) (*pendingEntry, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	entry, ok := e.pending[actionID]
	if !ok || entry.userID != userID {
		return nil, false
	}
	delete(e.pending, actionID)
	if e.now().Sub(entry.createdAt) > e.ttl {
		return nil, false
	}
	return entry, true
}

func (e *Engine) reapExpired() int {
	now := e.now()
	e.mu.Lock()
	defer e.mu.Unlock()
	removed := 0
	for id, entry := range e.pending {
		if now.Sub(entry.createdAt) > e.ttl {
			delete(e.pending, id)
			removed++
		}
	}
	return removed
}

// userLock 返回指定用户的互斥锁，首次访问时惰性创建。
func (e *Engine) userLock(userID string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	lock, ok := e.userLocks[userID]
	if !ok {
		lock = &sync.Mutex{}
		e.userLocks[userID] = lock
	}
	return lock
}

// recordOutcome 尽力而为地写审计记录并发布事件，失败只记日志。
func (e *Engine) recordOutcome(ctx context.Context, entry *pendingEntry, actionID, outcome string, result *executor.Result) {
	txHash, message, success := "", "", false
	if result != nil {
		txHash, message, success = result.TxHash, result.Message, result.Success
	}

	if e.repo != nil {
		paramsJSON, _ := json.Marshal(entry.intent.Params)
		record := &mysql.ActionRecord{
			ActionID: actionID,
			UserID:   entry.userID,
			Kind:     string(entry.intent.Kind),
			Outcome:  outcome,
			Params:   string(paramsJSON),
			TxHash:   txHash,
			Message:  message,
			Success:  success,
		}
		if err := e.repo.Create(ctx, record); err != nil {
			// 可重试的存储错误补写一次，仍失败只记日志。
			if xerrors.Retryable(err) {
				err = e.repo.Create(ctx, record)
			}
			if err != nil {
				e.log.Warn("写入操作审计记录失败",
					slog.String("action_id", actionID),
					slog.String("severity", string(xerrors.SeverityOf(err))),
					slog.Any("error", err))
			}
		}
	}

	if e.publisher != nil {
		eventType := events.TypeActionExecuted
		if outcome == mysql.OutcomeCancelled {
			eventType = events.TypeActionCancelled
		}
		event := events.Event{
			Type:       eventType,
			UserID:     entry.userID,
			ActionID:   actionID,
			Kind:       string(entry.intent.Kind),
			TxHash:     txHash,
			Success:    success,
			OccurredAt: e.now(),
		}
		if err := e.publisher.Publish(ctx, event); err != nil {
			if xerrors.Retryable(err) {
				err = e.publisher.Publish(ctx, event)
			}
			if err != nil {
				e.log.Warn("发布操作事件失败",
					slog.String("action_id", actionID),
					slog.String("severity", string(xerrors.SeverityOf(err))),
					slog.Any("error", err))
			}
		}
	}
}

// validate 按意图类型校验参数，返回空字符串表示通过，
// 否则返回面向用户的具体错误说明。
func validate(parsed *intent.Intent) string {
	params := parsed.Params
	switch parsed.Kind {
	case intent.KindStake:
		if params.Amount <= 0 {
			return "质押金额必须大于零，您想质押多少呢？"
		}
		if params.Validator == "" {
			return "质押需要指定一个验证人，您想使用哪个验证人？"
		}
	case intent.KindSwap:
		if params.Amount <= 0 {
			return "兑换金额必须大于零，您想兑换多少呢？"
		}
		if params.FromToken == "" || params.ToToken == "" {
			return "兑换需要同时指定两种代币，您想从什么代币换成什么代币？"
		}
		if params.FromToken == params.ToToken {
			return "不能把一种代币兑换成它自己哦。"
		}
	case intent.KindBalance:
		if params.WalletAddress == "" {
			return "查询余额需要一个钱包地址，请提供一个以 0x 开头的有效地址。"
		}
		if !intent.IsHexAddress(params.WalletAddress) {
			return "这个钱包地址看起来不太对，它应该以 0x 开头。请再确认一下。"
		}
	case intent.KindVault:
		return validateVault(params)
	}
	return ""
}

func validateVault(params intent.Params) string {
	switch params.VaultAction {
	case intent.VaultDeposit, intent.VaultWithdraw:
		if !intent.IsHexAddress(params.VaultAddress) {
			return "这个金库操作需要一个以 0x 开头的金库合约地址。"
		}
		if params.Amount <= 0 {
			return "金库存取金额必须大于零，您想操作多少呢？"
		}
	case intent.VaultRedeem:
		if !intent.IsHexAddress(params.VaultAddress) {
			return "这个金库操作需要一个以 0x 开头的金库合约地址。"
		}
		if params.Shares <= 0 {
			return "赎回需要指定大于零的份额数量。"
		}
	case intent.VaultInfo:
		if !intent.IsHexAddress(params.VaultAddress) {
			return "查询金库信息需要一个以 0x 开头的金库合约地址。"
		}
	case intent.VaultPortfolio:
		// 持仓查询只依赖用户身份，无需额外参数。
	default:
		return "请告诉我您想对收益金库做什么：存入、取出、赎回、查询信息或查看持仓。"
	}
	return ""
}

// confirmationPrompt 生成带具体参数的确认提示。
func confirmationPrompt(parsed *intent.Intent) string {
	params := parsed.Params
	switch parsed.Kind {
	case intent.KindStake:
		return "⚠️ 需要确认：质押 " + formatAmount(params.Amount) + " FLOW 到验证人 " +
			params.Validator + "。是否继续？（回复\"是\"或\"否\"）"
	case intent.KindSwap:
		return "⚠️ 需要确认：用 " + formatAmount(params.Amount) + " " +
			strings.ToUpper(params.FromToken) + " 兑换 " + strings.ToUpper(params.ToToken) +
			"。是否继续？（回复\"是\"或\"否\"）"
	case intent.KindVault:
		switch params.VaultAction {
		case intent.VaultDeposit:
			return "⚠️ 需要确认：向金库 " + params.VaultAddress + " 存入 " +
				formatAmount(params.Amount) + "。是否继续？（回复\"是\"或\"否\"）"
		case intent.VaultWithdraw:
			return "⚠️ 需要确认：从金库 " + params.VaultAddress + " 取出 " +
				formatAmount(params.Amount) + "。是否继续？（回复\"是\"或\"否\"）"
		case intent.VaultRedeem:
			return "⚠️ 需要确认：在金库 " + params.VaultAddress + " 赎回 " +
				formatAmount(params.Shares) + " 份额。是否继续？（回复\"是\"或\"否\"）"
		}
	}
	return "⚠️ 您确认执行这个操作吗？（回复\"是\"或\"否\"）"
}

// functionCall 生成执行层调用描述，随响应返回便于排查。
func functionCall(parsed *intent.Intent, userID string) string {
	params := parsed.Params
	switch parsed.Kind {
	case intent.KindStake:
		return "stake_tokens(" + formatAmount(params.Amount) + ", \"" + params.Validator + "\")"
	case intent.KindSwap:
		return "swap_tokens(\"" + params.FromToken + "\", \"" + params.ToToken + "\", " +
			formatAmount(params.Amount) + ")"
	case intent.KindBalance:
		return "check_balance(\"" + params.WalletAddress + "\")"
	case intent.KindVault:
		switch params.VaultAction {
		case intent.VaultDeposit:
			return "vault_deposit(\"" + params.VaultAddress + "\", " + formatAmount(params.Amount) + ")"
		case intent.VaultWithdraw:
			return "vault_withdraw(\"" + params.VaultAddress + "\", " + formatAmount(params.Amount) + ")"
		case intent.VaultRedeem:
			return "vault_redeem(\"" + params.VaultAddress + "\", " + formatAmount(params.Shares) + ")"
		case intent.VaultInfo:
			return "vault_info(\"" + params.VaultAddress + "\")"
		case intent.VaultPortfolio:
			return "vault_portfolio(\"" + userID + "\")"
		}
	}
	return "unknown_function()"
}

func formatAmount(value float64) string {
	return strconv.FormatFloat(value, 'f', -1, 64)
}
