package account

import (
	"context"
	"crypto/ed25519"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mr-tron/base58"

	"NearIntents/internal/chain"
	"NearIntents/internal/chain/near"
	xerrors "NearIntents/internal/errors"
)

// ed25519Prefix 是 NEAR 生态中密钥与签名的人类可读前缀。
const ed25519Prefix = "ed25519:"

// Credential 是外部提供的账户凭据。私钥来源（密钥文件、数据库记录）
// 由调用方负责，本包只消费解析后的内容。
type Credential struct {
	AccountID  string `json:"account_id"`
	PrivateKey string `json:"private_key"`
}

// ParseCredential 解析 JSON 凭据内容。
func ParseCredential(content []byte) (Credential, error) {
	var cred Credential
	if err := json.Unmarshal(content, &cred); err != nil {
		return Credential{}, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "解析账户凭据失败")
	}
	if strings.TrimSpace(cred.AccountID) == "" || strings.TrimSpace(cred.PrivateKey) == "" {
		return Credential{}, xerrors.New(xerrors.CodeInvalidArgument, "账户凭据缺少 account_id 或 private_key")
	}
	return cred, nil
}

// AccountState 是一次余额查询的结果，金额为 yoctoNEAR 整数字符串。
type AccountState struct {
	BalanceBaseUnits string
}

// Signer 持有一个账户的密钥对并提供签名与链上读写能力。
// 密钥材料只存在于进程内存中，绝不写日志、绝不对外序列化。
type Signer struct {
	accountID string
	key       ed25519.PrivateKey
	client    chain.Client
}

// NewSigner 从凭据构造签名器。私钥支持 64 字节（seed+公钥）与
// 32 字节（仅 seed）两种 base58 编码。
func NewSigner(cred Credential, client chain.Client) (*Signer, error) {
	raw, err := decodeKey(cred.PrivateKey)
	if err != nil {
		return nil, err
	}
	var key ed25519.PrivateKey
	switch len(raw) {
	case ed25519.PrivateKeySize:
		key = ed25519.PrivateKey(raw)
	case ed25519.SeedSize:
		key = ed25519.NewKeyFromSeed(raw)
	default:
		return nil, xerrors.New(xerrors.CodeInvalidArgument,
			fmt.Sprintf("私钥长度非法: %d 字节", len(raw)))
	}
	return &Signer{
		accountID: strings.TrimSpace(cred.AccountID),
		key:       key,
		client:    client,
	}, nil
}

func decodeKey(encoded string) ([]byte, error) {
	encoded = strings.TrimSpace(encoded)
	encoded = strings.TrimPrefix(encoded, ed25519Prefix)
	raw, err := base58.Decode(encoded)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "解码私钥失败")
	}
	return raw, nil
}

// AccountID 返回签名账户。
func (s *Signer) AccountID() string {
	return s.accountID
}

// PublicKeyString 返回 "ed25519:"+base58 形式的公钥。
func (s *Signer) PublicKeyString() string {
	pub := s.key.Public().(ed25519.PublicKey)
	return ed25519Prefix + base58.Encode(pub)
}

// Sign 对任意字节序列做 ed25519 签名，返回带前缀的 base58 编码。
// 这是基于内存私钥的纯运算，不触网。
func (s *Signer) Sign(data []byte) (string, error) {
	if s == nil || len(s.key) != ed25519.PrivateKeySize {
		return "", xerrors.New(xerrors.CodeInitializationFailure, "签名器未持有有效私钥")
	}
	sig := ed25519.Sign(s.key, data)
	return ed25519Prefix + base58.Encode(sig), nil
}

// Verify 用账户公钥校验签名，供测试与自检使用。
func (s *Signer) Verify(data []byte, encodedSig string) bool {
	raw, err := base58.Decode(strings.TrimPrefix(encodedSig, ed25519Prefix))
	if err != nil {
		return false
	}
	return ed25519.Verify(s.key.Public().(ed25519.PublicKey), data, raw)
}

// QueryState 查询任意账户的余额状态。
func (s *Signer) QueryState(ctx context.Context, accountID string) (AccountState, error) {
	if s.client == nil {
		return AccountState{}, xerrors.New(xerrors.CodeInitializationFailure, "未配置链客户端")
	}
	view, err := s.client.ViewAccount(ctx, accountID)
	if err != nil {
		return AccountState{}, xerrors.Wrap(xerrors.CodeChainFailure, err, "查询账户状态失败")
	}
	return AccountState{BalanceBaseUnits: view.Amount}, nil
}

// ViewFunction 执行只读合约调用并返回原始结果字节。
func (s *Signer) ViewFunction(ctx context.Context, contractID, method string, args any) ([]byte, error) {
	if s.client == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "未配置链客户端")
	}
	encoded, err := json.Marshal(args)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "序列化视图调用参数失败")
	}
	result, err := s.client.CallFunction(ctx, contractID, method, encoded)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeChainFailure, err, "视图调用失败")
	}
	return result, nil
}

// SubmitFunctionCall 构造、签名并广播一笔状态变更的函数调用。
// 不在此层重试：函数调用不幂等，是否重试由编排层决定。
func (s *Signer) SubmitFunctionCall(ctx context.Context, contractID, method string, args any, gas uint64, depositYocto string) (chain.TxOutcome, error) {
	if s.client == nil {
		return chain.TxOutcome{}, xerrors.New(xerrors.CodeInitializationFailure, "未配置链客户端")
	}
	encodedArgs, err := json.Marshal(args)
	if err != nil {
		return chain.TxOutcome{}, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "序列化调用参数失败")
	}

	accessKey, err := s.client.ViewAccessKey(ctx, s.accountID, s.PublicKeyString())
	if err != nil {
		return chain.TxOutcome{}, xerrors.Wrap(xerrors.CodeChainFailure, err, "查询访问密钥失败")
	}

	signedTx, err := near.BuildFunctionCallTransaction(s.key, near.FunctionCallParams{
		SignerID:     s.accountID,
		ReceiverID:   contractID,
		Method:       method,
		Args:         encodedArgs,
		Gas:          gas,
		DepositYocto: depositYocto,
		Nonce:        accessKey.Nonce + 1,
		BlockHash:    accessKey.BlockHash,
	})
	if err != nil {
		return chain.TxOutcome{}, xerrors.Wrap(xerrors.CodeChainFailure, err, "构造交易失败")
	}

	outcome, err := s.client.BroadcastTransaction(ctx, signedTx)
	if err != nil {
		return chain.TxOutcome{}, xerrors.Wrap(xerrors.CodeChainFailure, err, "广播交易失败")
	}
	return outcome, nil
}

// RegisterIntentPublicKey 把账户公钥登记到 intents 合约，
// 附带 1 yocto 以满足合约的付费调用要求。
func (s *Signer) RegisterIntentPublicKey(ctx context.Context, intentsContract string) (chain.TxOutcome, error) {
	return s.SubmitFunctionCall(ctx, intentsContract, "add_public_key", map[string]string{
		"public_key": s.PublicKeyString(),
	}, near.MaxGas, "1")
}
