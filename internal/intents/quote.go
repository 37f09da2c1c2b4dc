package intents

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/near/borsh-go"

	xerrors "NearIntents/internal/errors"
)

// VerifyingContract 是 intents 结算合约的固定账户。
const VerifyingContract = "intents.near"

// QuoteTTL 是报价从创建到过期的时间窗口。
const QuoteTTL = 2 * time.Minute

// DiffEntry 是 token_diff 中的一项资产变动。负数表示支出，正数表示收入，
// 金额一律为最小单位的整数字符串，杜绝浮点误差。
type DiffEntry struct {
	Asset  string
	Amount string
}

// TokenDiff 保持资产变动的写入顺序。签名载荷要求字节级可复现，
// 因此不能依赖 map 的迭代顺序。
type TokenDiff struct {
	entries []DiffEntry
}

// NewTokenDiff 依序登记资产变动。
func NewTokenDiff(entries ...DiffEntry) *TokenDiff {
	return &TokenDiff{entries: entries}
}

// Entries 返回按写入顺序排列的变动列表。
func (d *TokenDiff) Entries() []DiffEntry {
	if d == nil {
		return nil
	}
	return d.entries
}

// MarshalJSON 按写入顺序输出 JSON 对象。
func (d *TokenDiff) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, entry := range d.entries {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(entry.Asset)
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(entry.Amount)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON 恢复变动列表。JSON 对象的键序在解码时无法保真，
// 仅用于调试与测试回读，不用于重建签名载荷。
func (d *TokenDiff) UnmarshalJSON(data []byte) error {
	raw := map[string]string{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	d.entries = d.entries[:0]
	for asset, amount := range raw {
		d.entries = append(d.entries, DiffEntry{Asset: asset, Amount: amount})
	}
	return nil
}

// Intent 是报价中的单条指令。token_diff 使用 Diff 字段，
// ft_withdraw 使用 Token/ReceiverID/Amount（跨链时附带 Memo）。
type Intent struct {
	Kind       string     `json:"intent"`
	Diff       *TokenDiff `json:"diff,omitempty"`
	Token      string     `json:"token,omitempty"`
	ReceiverID string     `json:"receiver_id,omitempty"`
	Amount     string     `json:"amount,omitempty"`
	Memo       string     `json:"memo,omitempty"`
}

// Quote 是等待签名的交易提案。字段顺序即规范序列化顺序
// (nonce, signer_id, verifying_contract, deadline, intents)，
// 任何重排都会让对端的签名校验失败。
type Quote struct {
	Nonce             string   `json:"nonce"`
	SignerID          string   `json:"signer_id"`
	VerifyingContract string   `json:"verifying_contract"`
	Deadline          string   `json:"deadline"`
	Intents           []Intent `json:"intents"`
}

// Canonical 输出用于签名的规范 JSON 字节序列。
func (q Quote) Canonical() ([]byte, error) {
	payload, err := json.Marshal(q)
	if err != nil {
		return nil, xerrors.Wrap(CodeSigningFailure, err, "序列化报价失败")
	}
	return payload, nil
}

type borshIntent struct {
	Intent string
	Diff   map[string]string
}

type borshQuote struct {
	Nonce             string
	SignerID          string
	VerifyingContract string
	Deadline          string
	Intents           []borshIntent
}

// Borsh 输出报价的 Borsh 编码，供需要二进制载荷的链上校验路径使用。
func (q Quote) Borsh() ([]byte, error) {
	encoded := borshQuote{
		Nonce:             q.Nonce,
		SignerID:          q.SignerID,
		VerifyingContract: q.VerifyingContract,
		Deadline:          q.Deadline,
		Intents:           make([]borshIntent, 0, len(q.Intents)),
	}
	for _, intent := range q.Intents {
		entry := borshIntent{Intent: intent.Kind, Diff: map[string]string{}}
		if intent.Diff != nil {
			for _, diff := range intent.Diff.Entries() {
				entry.Diff[diff.Asset] = diff.Amount
			}
		}
		encoded.Intents = append(encoded.Intents, entry)
	}
	data, err := borsh.Serialize(encoded)
	if err != nil {
		return nil, xerrors.Wrap(CodeSigningFailure, err, "Borsh 编码报价失败")
	}
	return data, nil
}

// DeadlineExpired 判断报价截止时间是否已过。截止时间支持两种写法：
// 毫秒时间戳字符串（swap 路径）与 RFC3339（withdraw 路径）。
func (q Quote) DeadlineExpired(now time.Time) (bool, error) {
	deadline, err := parseDeadline(q.Deadline)
	if err != nil {
		return false, err
	}
	return !deadline.After(now), nil
}

func parseDeadline(raw string) (time.Time, error) {
	if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.UnixMilli(ms), nil
	}
	if ts, err := time.Parse(time.RFC3339, raw); err == nil {
		return ts, nil
	}
	return time.Time{}, xerrors.New(xerrors.CodeInvalidArgument, fmt.Sprintf("无法解析的截止时间: %q", raw))
}

// Commitment 是提交给 solver bus 的已签名载荷。nonce 将其绑定到
// 单次尝试，绝不跨尝试复用。
type Commitment struct {
	Standard  string `json:"standard"`
	Payload   string `json:"payload"`
	Signature string `json:"signature"`
	PublicKey string `json:"public_key"`
}

// CommitmentStandard 标记签名方案为原始 ed25519。
const CommitmentStandard = "raw_ed25519"
