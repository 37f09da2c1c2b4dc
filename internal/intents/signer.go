package intents

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"NearIntents/internal/asset"
	xerrors "NearIntents/internal/errors"
)

// QuoteSigner 是签名所需的最小账户能力。签名与公钥均为
// "ed25519:"+base58 的人类可读形式，私钥绝不越过该边界。
type QuoteSigner interface {
	AccountID() string
	Sign(data []byte) (string, error)
	PublicKeyString() string
}

// Signer 把选中的报价转换为规范消息并产出签名承诺。
type Signer struct {
	registry *asset.Registry
	now      func() time.Time
	nonce    func() (string, error)
}

// SignerOption 定义可选配置。
type SignerOption func(*Signer)

// WithClock 注入时间源，测试用。
func WithClock(now func() time.Time) SignerOption {
	return func(s *Signer) {
		if now != nil {
			s.now = now
		}
	}
}

// WithNonceSource 注入 nonce 生成器，测试用。
func WithNonceSource(nonce func() (string, error)) SignerOption {
	return func(s *Signer) {
		if nonce != nil {
			s.nonce = nonce
		}
	}
}

// NewSigner 创建报价签名器。
func NewSigner(registry *asset.Registry, opts ...SignerOption) *Signer {
	s := &Signer{
		registry: registry,
		now:      time.Now,
		nonce:    randomNonce,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// randomNonce 产生 256 位随机数的 base64 形式，把承诺绑定到单次尝试。
func randomNonce() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", xerrors.Wrap(CodeSigningFailure, err, "生成 nonce 失败")
	}
	return base64.StdEncoding.EncodeToString(buf), nil
}

// BuildTokenDiffQuote 构造一次代币互换的报价。amountOut 必须来自被接受的
// 求解器报价，而不是由原始请求重新推算，求解器的产出金额是权威值。
func (s *Signer) BuildTokenDiffQuote(signer QuoteSigner, tokenIn, amountIn, tokenOut, amountOut string) (Quote, error) {
	idIn, err := s.registry.AssetIdentifier(tokenIn)
	if err != nil {
		return Quote{}, err
	}
	idOut, err := s.registry.AssetIdentifier(tokenOut)
	if err != nil {
		return Quote{}, err
	}
	unitsIn, err := s.registry.ToBaseUnits(amountIn, tokenIn)
	if err != nil {
		return Quote{}, err
	}
	unitsOut, err := s.registry.ToBaseUnits(amountOut, tokenOut)
	if err != nil {
		return Quote{}, err
	}
	nonce, err := s.nonce()
	if err != nil {
		return Quote{}, err
	}

	return Quote{
		Nonce:             nonce,
		SignerID:          signer.AccountID(),
		VerifyingContract: VerifyingContract,
		Deadline:          strconv.FormatInt(s.now().Add(QuoteTTL).UnixMilli(), 10),
		Intents: []Intent{{
			Kind: "token_diff",
			Diff: NewTokenDiff(
				DiffEntry{Asset: idIn, Amount: "-" + unitsIn},
				DiffEntry{Asset: idOut, Amount: unitsOut},
			),
		}},
	}, nil
}

// BuildWithdrawQuote 构造向外部地址提币的报价。非 NEAR 网络走 OMFT
// 桥接合约，目的地址写入 memo；EVM 地址在此处提前校验，避免把错误
// 地址签进不可撤销的承诺。
func (s *Signer) BuildWithdrawQuote(signer QuoteSigner, token, amount, destination, network string) (Quote, error) {
	a, err := s.registry.Resolve(token)
	if err != nil {
		return Quote{}, err
	}
	units, err := s.registry.ToBaseUnits(amount, token)
	if err != nil {
		return Quote{}, err
	}
	nonce, err := s.nonce()
	if err != nil {
		return Quote{}, err
	}

	intent := Intent{
		Kind:       "ft_withdraw",
		Token:      a.TokenID,
		ReceiverID: destination,
		Amount:     units,
	}
	if network != "" && network != "near" {
		if a.OMFT == "" {
			return Quote{}, xerrors.New(xerrors.CodeInvalidArgument,
				fmt.Sprintf("资产 %s 不支持跨链提币", a.Symbol))
		}
		if !common.IsHexAddress(destination) {
			return Quote{}, xerrors.New(xerrors.CodeInvalidArgument,
				fmt.Sprintf("非法的 %s 目的地址: %s", network, destination))
		}
		intent.Token = a.OMFT
		intent.ReceiverID = a.OMFT
		intent.Memo = "WITHDRAW_TO:" + destination
	}

	return Quote{
		Nonce:             nonce,
		SignerID:          signer.AccountID(),
		VerifyingContract: VerifyingContract,
		Deadline:          s.now().Add(QuoteTTL).UTC().Format("2006-01-02T15:04:05.000Z"),
		Intents:           []Intent{intent},
	}, nil
}

// SignQuote 把报价序列化为规范载荷并签名。签名前复核截止时间，
// 过期的报价返回 STALE_QUOTE 而不是被提交出去。
func (s *Signer) SignQuote(signer QuoteSigner, quote Quote) (Commitment, error) {
	expired, err := quote.DeadlineExpired(s.now())
	if err != nil {
		return Commitment{}, err
	}
	if expired {
		return Commitment{}, xerrors.New(CodeStaleQuote, fmt.Sprintf("报价已于 %s 过期", quote.Deadline))
	}

	payload, err := quote.Canonical()
	if err != nil {
		return Commitment{}, err
	}
	signature, err := signer.Sign(payload)
	if err != nil {
		return Commitment{}, xerrors.Wrap(CodeSigningFailure, err, "签名报价失败")
	}

	return Commitment{
		Standard:  CommitmentStandard,
		Payload:   string(payload),
		Signature: signature,
		PublicKey: signer.PublicKeyString(),
	}, nil
}
