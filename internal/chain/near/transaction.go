package near

import (
	"crypto/ed25519"
	"crypto/sha256"
	"fmt"
	"math/big"

	"github.com/near/borsh-go"
)

// MaxGas 是单次函数调用允许附带的燃料上限（300 TGas）。
const MaxGas uint64 = 300_000_000_000_000

// publicKey 是 NEAR 交易中的公钥表示，key type 0 表示 ed25519。
type publicKey struct {
	KeyType uint8
	Data    [32]byte
}

// signature 与 publicKey 同构，数据段为 64 字节的 ed25519 签名。
type signature struct {
	KeyType uint8
	Data    [64]byte
}

// u128 以小端 16 字节承载附带的 yoctoNEAR 存款。
type u128 [16]byte

func newU128(value string) (u128, error) {
	var out u128
	if value == "" {
		value = "0"
	}
	n, ok := new(big.Int).SetString(value, 10)
	if !ok || n.Sign() < 0 || n.BitLen() > 128 {
		return out, fmt.Errorf("非法的存款金额: %q", value)
	}
	raw := n.Bytes() // 大端
	for i, b := range raw {
		out[len(raw)-1-i] = b
	}
	return out, nil
}

// createAccount/deployContract 仅为占位，保证 FunctionCall 的枚举序号
// 与协议定义的 Action 顺序一致。
type createAccount struct{}

type deployContract struct {
	Code []byte
}

type functionCall struct {
	MethodName string
	Args       []byte
	Gas        uint64
	Deposit    u128
}

type transfer struct {
	Deposit u128
}

// action 是 NEAR 协议的 Action 枚举，borsh 以首字节标记变体。
type action struct {
	Enum           borsh.Enum `borsh_enum:"true"`
	CreateAccount  createAccount
	DeployContract deployContract
	FunctionCall   functionCall
	Transfer       transfer
}

const actionFunctionCall borsh.Enum = 2

// transaction 是等待签名的 NEAR 交易体。
type transaction struct {
	SignerID   string
	PublicKey  publicKey
	Nonce      uint64
	ReceiverID string
	BlockHash  [32]byte
	Actions    []action
}

type signedTransaction struct {
	Transaction transaction
	Signature   signature
}

// FunctionCallParams 描述一次状态变更的合约调用。
type FunctionCallParams struct {
	SignerID   string
	ReceiverID string
	Method     string
	Args       []byte
	Gas        uint64
	// DepositYocto 是十进制字符串形式的附带存款。
	DepositYocto string
	Nonce        uint64
	BlockHash    []byte
}

// BuildFunctionCallTransaction 组装并签名一笔函数调用交易，返回可直接
// 广播的 borsh 字节序列。签名覆盖交易体的 sha256 摘要。
func BuildFunctionCallTransaction(key ed25519.PrivateKey, params FunctionCallParams) ([]byte, error) {
	if len(params.BlockHash) != 32 {
		return nil, fmt.Errorf("block hash 必须为 32 字节，实际 %d", len(params.BlockHash))
	}
	gas := params.Gas
	if gas == 0 {
		gas = MaxGas
	}
	deposit, err := newU128(params.DepositYocto)
	if err != nil {
		return nil, err
	}

	tx := transaction{
		SignerID:   params.SignerID,
		Nonce:      params.Nonce,
		ReceiverID: params.ReceiverID,
		Actions: []action{{
			Enum: actionFunctionCall,
			FunctionCall: functionCall{
				MethodName: params.Method,
				Args:       params.Args,
				Gas:        gas,
				Deposit:    deposit,
			},
		}},
	}
	copy(tx.BlockHash[:], params.BlockHash)
	copy(tx.PublicKey.Data[:], key.Public().(ed25519.PublicKey))

	body, err := borsh.Serialize(tx)
	if err != nil {
		return nil, fmt.Errorf("序列化交易失败: %w", err)
	}
	digest := sha256.Sum256(body)

	signed := signedTransaction{Transaction: tx}
	copy(signed.Signature.Data[:], ed25519.Sign(key, digest[:]))

	encoded, err := borsh.Serialize(signed)
	if err != nil {
		return nil, fmt.Errorf("序列化已签名交易失败: %w", err)
	}
	return encoded, nil
}
