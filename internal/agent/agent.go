package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/google/uuid"

	"NearIntents/internal/account"
	"NearIntents/internal/asset"
	"NearIntents/internal/chain"
	"NearIntents/internal/chain/near"
	xerrors "NearIntents/internal/errors"
	"NearIntents/internal/history"
	"NearIntents/internal/intents"
	"NearIntents/internal/intents/solverbus"
	"NearIntents/internal/lock"
	"NearIntents/pkg/logger"
)

// State 是一次换汇会话所处的阶段。
type State string

const (
	StateIdle           State = "IDLE"
	StateStorageChecked State = "STORAGE_CHECKED"
	StateDeposited      State = "DEPOSITED"
	StateQuotesFetched  State = "QUOTES_FETCHED"
	StateOptionSelected State = "OPTION_SELECTED"
	StateSigned         State = "SIGNED"
	StatePublished      State = "PUBLISHED"
	StateSettled        State = "SETTLED"
	StateFailed         State = "FAILED"
)

// storageDepositYocto 是 NEP-145 存储登记的固定押金。
const storageDepositYocto = "1250000000000000000000"

// oneYocto 是 FT 合约对状态变更调用要求的最小附加押金。
const oneYocto = "1"

// defaultLockTTL 覆盖从加锁到发布的最长流程时间。
const defaultLockTTL = 2 * time.Minute

// AccountClient 是编排器需要的账户能力。*account.Signer 满足该接口。
type AccountClient interface {
	AccountID() string
	Sign(data []byte) (string, error)
	PublicKeyString() string
	QueryState(ctx context.Context, accountID string) (account.AccountState, error)
	ViewFunction(ctx context.Context, contractID, method string, args any) ([]byte, error)
	SubmitFunctionCall(ctx context.Context, contractID, method string, args any, gas uint64, depositYocto string) (chain.TxOutcome, error)
}

// SolverBus 是编排器需要的求解器总线能力。*solverbus.Client 满足该接口。
type SolverBus interface {
	FetchOptions(ctx context.Context, request intents.WireRequest) []intents.Option
	PublishIntent(ctx context.Context, commitment intents.Commitment, quoteHashes []string) (solverbus.PublishResult, error)
}

// SwapRequest 描述一次换汇请求。金额为人类可读的十进制字符串。
type SwapRequest struct {
	TokenIn  string `json:"token_in"`
	AmountIn string `json:"amount_in"`
	TokenOut string `json:"token_out"`
}

// Transition 记录一次状态变迁。
type Transition struct {
	State State     `json:"state"`
	At    time.Time `json:"at"`
}

// SwapResult 汇总一次换汇会话的全部产出。
type SwapResult struct {
	SessionID      string          `json:"session_id"`
	AccountID      string          `json:"account_id"`
	TokenIn        string          `json:"token_in"`
	AmountIn       string          `json:"amount_in"`
	TokenOut       string          `json:"token_out"`
	QuoteHash      string          `json:"quote_hash,omitempty"`
	AmountOut      string          `json:"amount_out,omitempty"`
	BusResponse    json.RawMessage `json:"bus_response,omitempty"`
	State          State           `json:"state"`
	FailureCode    string          `json:"failure_code,omitempty"`
	FailureMessage string          `json:"failure_message,omitempty"`
	Transitions    []Transition    `json:"transitions"`
	CreatedAt      int64           `json:"created_at"`
}

// Orchestrator 驱动换汇状态机，是系统的业务核心。每次调用都在
// 显式的会话对象内推进，不依赖任何进程级可变全局状态。
type Orchestrator struct {
	registry    *asset.Registry
	account     AccountClient
	bus         SolverBus
	quoteSigner *intents.Signer
	locker      lock.Locker
	history     history.Repository
	log         *slog.Logger
	lockTTL     time.Duration
	now         func() time.Time
}

// Option 定义可选的编排器配置。
type Option func(*Orchestrator)

// WithLocker 配置账户级互斥锁。
func WithLocker(locker lock.Locker) Option {
	return func(o *Orchestrator) {
		o.locker = locker
	}
}

// WithLockTTL 覆盖账户锁的持有时长。
func WithLockTTL(ttl time.Duration) Option {
	return func(o *Orchestrator) {
		if ttl > 0 {
			o.lockTTL = ttl
		}
	}
}

// WithClock 注入时间源，测试用。
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// WithHistory 配置已结算兑换的落库仓库。
func WithHistory(repo history.Repository) Option {
	return func(o *Orchestrator) {
		o.history = repo
	}
}

// WithQuoteSigner 覆盖报价签名器，测试时可注入固定 nonce 与时钟。
func WithQuoteSigner(signer *intents.Signer) Option {
	return func(o *Orchestrator) {
		if signer != nil {
			o.quoteSigner = signer
		}
	}
}

// New 创建编排器。
func New(registry *asset.Registry, acct AccountClient, bus SolverBus, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		registry:    registry,
		account:     acct,
		bus:         bus,
		quoteSigner: intents.NewSigner(registry),
		locker:      lock.NewMemory(),
		log:         logger.Named("agent"),
		lockTTL:     defaultLockTTL,
		now:         time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	return o
}

// session 在一次换汇尝试内跟踪状态变迁。
type session struct {
	result *SwapResult
	now    func() time.Time
}

func (s *session) advance(state State) {
	s.result.State = state
	s.result.Transitions = append(s.result.Transitions, Transition{State: state, At: s.now()})
}

func (s *session) fail(err error) (*SwapResult, error) {
	s.result.State = StateFailed
	s.result.FailureCode = string(xerrors.CodeOf(err))
	s.result.FailureMessage = err.Error()
	s.result.Transitions = append(s.result.Transitions, Transition{State: StateFailed, At: s.now()})
	return s.result, err
}

// ExecuteSwap 执行一次完整的换汇。发布前的任何失败都可以安全放弃；
// 承诺一经发布则不可撤销，只能观察结果。
func (o *Orchestrator) ExecuteSwap(ctx context.Context, req SwapRequest) (*SwapResult, error) {
	// 验证必要的组件是否已配置。
	if o.account == nil || o.bus == nil || o.registry == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "编排器依赖未配置完整")
	}

	sess := &session{
		result: &SwapResult{
			SessionID: uuid.NewString(),
			AccountID: o.account.AccountID(),
			TokenIn:   req.TokenIn,
			AmountIn:  req.AmountIn,
			TokenOut:  req.TokenOut,
			State:     StateIdle,
			CreatedAt: o.now().Unix(),
		},
		now: o.now,
	}
	sess.advance(StateIdle)

	log := o.log.With(
		slog.String("session_id", sess.result.SessionID),
		slog.String("account_id", sess.result.AccountID),
		slog.String("token_in", req.TokenIn),
		slog.String("token_out", req.TokenOut),
	)

	// 验证请求中的资产符号，未登记的资产直接拒绝。
	if _, err := o.registry.Resolve(req.TokenIn); err != nil {
		return sess.fail(err)
	}
	if _, err := o.registry.Resolve(req.TokenOut); err != nil {
		return sess.fail(err)
	}
	amountInUnits, err := o.registry.ToBaseUnits(req.AmountIn, req.TokenIn)
	if err != nil {
		return sess.fail(err)
	}

	// 同一账户的流程必须串行：nonce 与访问密钥序号不允许并发消费。
	release, err := o.locker.Acquire(ctx, sess.result.AccountID, o.lockTTL)
	if err != nil {
		return sess.fail(err)
	}
	defer release()

	// 余额预检，不足则直接终止，绝不触碰总线。
	if err := o.ensureBalance(ctx, req.TokenIn, amountInUnits); err != nil {
		log.Info("余额预检未通过", slog.Any("error", err))
		return sess.fail(err)
	}

	// 输入与输出代币的存储登记，未登记先补。
	if err := o.ensureTokenStorage(ctx, req.TokenIn); err != nil {
		return sess.fail(err)
	}
	if err := o.ensureTokenStorage(ctx, req.TokenOut); err != nil {
		return sess.fail(err)
	}
	sess.advance(StateStorageChecked)

	// 组装报价请求并向总线询价。
	request := intents.NewRequest(o.registry)
	if err := request.SetAssetIn(req.TokenIn, req.AmountIn); err != nil {
		return sess.fail(err)
	}
	if err := request.SetAssetOut(req.TokenOut, ""); err != nil {
		return sess.fail(err)
	}
	wire, err := request.Serialize()
	if err != nil {
		return sess.fail(err)
	}

	options := o.bus.FetchOptions(ctx, wire)
	if len(options) == 0 {
		return sess.fail(xerrors.New(CodeNoLiquidity,
			fmt.Sprintf("总线未返回 %s->%s 的报价", req.TokenIn, req.TokenOut)))
	}
	sess.advance(StateQuotesFetched)

	best := intents.SelectBest(options)
	if best == nil {
		return sess.fail(xerrors.New(CodeNoViableOption, "返回的报价均不可用"))
	}
	sess.result.QuoteHash = best.QuoteHash
	sess.result.AmountOut = best.AmountOut
	sess.advance(StateOptionSelected)
	log.Info("已选定报价",
		slog.String("quote_hash", best.QuoteHash),
		slog.String("amount_out", best.AmountOut))

	// 以选中报价的产出金额签署承诺，绝不回推原始请求的金额。
	quote, err := o.quoteSigner.BuildTokenDiffQuote(o.account, req.TokenIn, req.AmountIn, req.TokenOut, best.AmountOut)
	if err != nil {
		return sess.fail(err)
	}
	commitment, err := o.quoteSigner.SignQuote(o.account, quote)
	if err != nil {
		return sess.fail(err)
	}
	sess.advance(StateSigned)

	// 调用方取消只在发布之前生效，发布后的承诺无法撤回。
	if err := ctx.Err(); err != nil {
		return sess.fail(xerrors.Wrap(xerrors.CodeTimeout, err, "会话在发布前被取消"))
	}

	published, err := o.bus.PublishIntent(ctx, commitment, []string{best.QuoteHash})
	if err != nil {
		if solverbus.IsTimeout(err) {
			return sess.fail(xerrors.Wrap(CodeNetworkTimeout, err, "发布意图超时"))
		}
		return sess.fail(xerrors.Wrap(CodeBusRejected, err, "发布意图失败"))
	}
	sess.advance(StatePublished)
	if published.Err != nil {
		return sess.fail(xerrors.New(CodeBusRejected,
			fmt.Sprintf("总线拒绝已签名意图: %s", published.Err.Message)))
	}

	// 收到非错误应答即视为完成，链上终局性由调用方自行跟踪。
	sess.result.BusResponse = published.Raw
	sess.advance(StateSettled)
	logger.Audit().Info("swap_settled",
		slog.String("session_id", sess.result.SessionID),
		slog.String("account_id", sess.result.AccountID),
		slog.String("quote_hash", best.QuoteHash),
	)
	o.recordHistory(ctx, sess.result)
	return sess.result, nil
}

// recordHistory 把已结算会话写入历史仓库。落库失败不影响兑换结果。
func (o *Orchestrator) recordHistory(ctx context.Context, result *SwapResult) {
	if o.history == nil {
		return
	}
	record := history.Record{
		SessionID:   result.SessionID,
		AccountID:   result.AccountID,
		TokenIn:     result.TokenIn,
		AmountIn:    result.AmountIn,
		TokenOut:    result.TokenOut,
		AmountOut:   result.AmountOut,
		QuoteHash:   result.QuoteHash,
		FinalState:  string(result.State),
		BusResponse: string(result.BusResponse),
		CreatedAt:   result.CreatedAt,
	}
	if err := o.history.Save(ctx, record); err != nil {
		o.log.Warn("兑换历史落库失败",
			slog.String("session_id", result.SessionID),
			slog.Any("error", err))
	}
}

// Deposit 把代币充入 intents 合约。原生 NEAR 先包装成 wNEAR 再转入。
func (o *Orchestrator) Deposit(ctx context.Context, token, amount string) (chain.TxOutcome, error) {
	a, err := o.registry.Resolve(token)
	if err != nil {
		return chain.TxOutcome{}, err
	}
	units, err := o.registry.ToBaseUnits(amount, token)
	if err != nil {
		return chain.TxOutcome{}, err
	}

	release, err := o.locker.Acquire(ctx, o.account.AccountID(), o.lockTTL)
	if err != nil {
		return chain.TxOutcome{}, err
	}
	defer release()

	if a.Symbol == "NEAR" {
		o.log.Info("包装 NEAR 以便充值", slog.String("amount", units))
		if _, err := o.account.SubmitFunctionCall(ctx, a.TokenID, "near_deposit",
			map[string]string{}, near.MaxGas, units); err != nil {
			return chain.TxOutcome{}, err
		}
	}
	return o.account.SubmitFunctionCall(ctx, a.TokenID, "ft_transfer_call", map[string]string{
		"receiver_id": intents.VerifyingContract,
		"amount":      units,
		"msg":         "",
	}, near.MaxGas, oneYocto)
}

// Withdraw 把代币提到外部地址。非 NEAR 网络通过 OMFT 桥接合约完成。
func (o *Orchestrator) Withdraw(ctx context.Context, token, amount, destination, network string) (*solverbus.PublishResult, error) {
	quote, err := o.quoteSigner.BuildWithdrawQuote(o.account, token, amount, destination, network)
	if err != nil {
		return nil, err
	}
	commitment, err := o.quoteSigner.SignQuote(o.account, quote)
	if err != nil {
		return nil, err
	}
	result, err := o.bus.PublishIntent(ctx, commitment, nil)
	if err != nil {
		if solverbus.IsTimeout(err) {
			return nil, xerrors.Wrap(CodeNetworkTimeout, err, "发布提币意图超时")
		}
		return nil, xerrors.Wrap(CodeBusRejected, err, "发布提币意图失败")
	}
	if result.Err != nil {
		return nil, xerrors.New(CodeBusRejected,
			fmt.Sprintf("总线拒绝提币意图: %s", result.Err.Message))
	}
	return &result, nil
}

// RegisterPublicKey 把账户公钥登记到 intents 合约，幂等操作。
func (o *Orchestrator) RegisterPublicKey(ctx context.Context) (chain.TxOutcome, error) {
	return o.account.SubmitFunctionCall(ctx, intents.VerifyingContract, "add_public_key",
		map[string]string{"public_key": o.account.PublicKeyString()}, near.MaxGas, oneYocto)
}

// ensureBalance 校验账户余额足以覆盖输入金额。原生 NEAR 查账户状态，
// 其余 FT 查合约余额。
func (o *Orchestrator) ensureBalance(ctx context.Context, token, requiredUnits string) error {
	a, err := o.registry.Resolve(token)
	if err != nil {
		return err
	}

	var balanceUnits string
	if a.Symbol == "NEAR" {
		state, err := o.account.QueryState(ctx, o.account.AccountID())
		if err != nil {
			return err
		}
		balanceUnits = state.BalanceBaseUnits
	} else {
		raw, err := o.account.ViewFunction(ctx, a.TokenID, "ft_balance_of",
			map[string]string{"account_id": o.account.AccountID()})
		if err != nil {
			return err
		}
		if err := json.Unmarshal(raw, &balanceUnits); err != nil {
			return xerrors.Wrap(xerrors.CodeChainFailure, err, "解析代币余额失败")
		}
	}

	balance, ok := new(big.Int).SetString(balanceUnits, 10)
	if !ok {
		return xerrors.New(xerrors.CodeChainFailure, fmt.Sprintf("非法的余额数值: %q", balanceUnits))
	}
	required, ok := new(big.Int).SetString(requiredUnits, 10)
	if !ok {
		return xerrors.New(xerrors.CodeInvalidArgument, fmt.Sprintf("非法的金额数值: %q", requiredUnits))
	}
	if balance.Cmp(required) < 0 {
		return xerrors.New(CodeInsufficientBalance,
			fmt.Sprintf("余额 %s 不足以覆盖 %s %s", balanceUnits, requiredUnits, token),
			xerrors.WithMetadata("token", token))
	}
	return nil
}

// ensureTokenStorage 保证账户已在代币合约登记存储，未登记则补交押金。
func (o *Orchestrator) ensureTokenStorage(ctx context.Context, token string) error {
	a, err := o.registry.Resolve(token)
	if err != nil {
		return err
	}

	raw, err := o.account.ViewFunction(ctx, a.TokenID, "storage_balance_of",
		map[string]string{"account_id": o.account.AccountID()})
	if err != nil {
		return xerrors.Wrap(CodeStorageRegistrationFailed, err, "查询存储登记失败")
	}
	if registered(raw) {
		return nil
	}

	o.log.Info("补交存储押金",
		slog.String("token", a.Symbol),
		slog.String("contract", a.TokenID))
	if _, err := o.account.SubmitFunctionCall(ctx, a.TokenID, "storage_deposit",
		map[string]string{"account_id": o.account.AccountID()}, near.MaxGas, storageDepositYocto); err != nil {
		return xerrors.Wrap(CodeStorageRegistrationFailed, err, "提交存储押金失败")
	}
	return nil
}

// registered 判断 storage_balance_of 的结果是否表示已登记。
func registered(raw []byte) bool {
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return false
	}
	return decoded != nil
}
