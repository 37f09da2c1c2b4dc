package intents

import (
	"strings"
	"testing"
	"time"
)

func TestTokenDiffMarshalPreservesOrder(t *testing.T) {
	diff := NewTokenDiff(
		DiffEntry{Asset: "nep141:wrap.near", Amount: "-1000"},
		DiffEntry{Asset: "nep141:usdc.near", Amount: "2010000"},
	)
	encoded, err := diff.MarshalJSON()
	if err != nil {
		t.Fatalf("序列化失败: %v", err)
	}
	want := `{"nep141:wrap.near":"-1000","nep141:usdc.near":"2010000"}`
	if string(encoded) != want {
		t.Fatalf("输出顺序不符: %s", encoded)
	}
}

func TestQuoteCanonicalFieldOrder(t *testing.T) {
	quote := Quote{
		Nonce:             "n-1",
		SignerID:          "alice.near",
		VerifyingContract: VerifyingContract,
		Deadline:          "1700000000000",
		Intents: []Intent{{
			Kind: "token_diff",
			Diff: NewTokenDiff(DiffEntry{Asset: "nep141:wrap.near", Amount: "-1"}),
		}},
	}
	payload, err := quote.Canonical()
	if err != nil {
		t.Fatalf("规范序列化失败: %v", err)
	}
	text := string(payload)
	order := []string{`"nonce"`, `"signer_id"`, `"verifying_contract"`, `"deadline"`, `"intents"`}
	last := -1
	for _, field := range order {
		idx := strings.Index(text, field)
		if idx < 0 {
			t.Fatalf("载荷缺少字段 %s: %s", field, text)
		}
		if idx < last {
			t.Fatalf("字段 %s 顺序错误: %s", field, text)
		}
		last = idx
	}
	// 重复序列化必须逐字节一致。
	again, err := quote.Canonical()
	if err != nil {
		t.Fatalf("二次序列化失败: %v", err)
	}
	if string(again) != text {
		t.Fatalf("序列化结果不可复现")
	}
}

func TestQuoteBorsh(t *testing.T) {
	quote := Quote{
		Nonce:             "n-1",
		SignerID:          "alice.near",
		VerifyingContract: VerifyingContract,
		Deadline:          "1700000000000",
		Intents: []Intent{{
			Kind: "token_diff",
			Diff: NewTokenDiff(DiffEntry{Asset: "nep141:wrap.near", Amount: "-1"}),
		}},
	}
	data, err := quote.Borsh()
	if err != nil {
		t.Fatalf("Borsh 编码失败: %v", err)
	}
	if len(data) == 0 {
		t.Fatalf("Borsh 编码结果为空")
	}
}

func TestDeadlineExpired(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	cases := []struct {
		name     string
		deadline string
		expired  bool
	}{
		{"毫秒时间戳未过期", "4102444800000", false},
		{"毫秒时间戳已过期", "1000", true},
		{"RFC3339 未过期", "2026-03-01T13:00:00.000Z", false},
		{"RFC3339 已过期", "2026-03-01T11:00:00.000Z", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			quote := Quote{Deadline: tc.deadline}
			expired, err := quote.DeadlineExpired(now)
			if err != nil {
				t.Fatalf("判断失败: %v", err)
			}
			if expired != tc.expired {
				t.Fatalf("expired = %v, 期望 %v", expired, tc.expired)
			}
		})
	}

	if _, err := (Quote{Deadline: "someday"}).DeadlineExpired(now); err == nil {
		t.Fatalf("非法截止时间应当报错")
	}
}
