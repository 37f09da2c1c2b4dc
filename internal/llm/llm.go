package llm

import (
	"context"
	"fmt"
	"strings"
)

// 支持解析的操作类型。
const (
	ActionSwap     = "swap"
	ActionDeposit  = "deposit"
	ActionWithdraw = "withdraw"
)

// Request 描述提交给大模型解析的自然语言指令上下文。
type Request struct {
	Instruction string
	History     []HistoryEntry
	Knowledge   []KnowledgeCard
}

// Action 是大模型从指令中解析出的结构化操作。
type Action struct {
	Kind        string `json:"action"`
	TokenIn     string `json:"token_in"`
	AmountIn    string `json:"amount_in"`
	TokenOut    string `json:"token_out,omitempty"`
	Destination string `json:"destination,omitempty"`
	Network     string `json:"network,omitempty"`
	Thought     string `json:"thought,omitempty"`
}

// Validate 校验操作的必填字段是否齐全。
func (a *Action) Validate() error {
	if a == nil {
		return fmt.Errorf("操作为空")
	}
	if strings.TrimSpace(a.TokenIn) == "" || strings.TrimSpace(a.AmountIn) == "" {
		return fmt.Errorf("操作缺少 token_in 或 amount_in")
	}
	switch a.Kind {
	case ActionSwap:
		if strings.TrimSpace(a.TokenOut) == "" {
			return fmt.Errorf("swap 操作缺少 token_out")
		}
	case ActionDeposit:
	case ActionWithdraw:
		if strings.TrimSpace(a.Destination) == "" {
			return fmt.Errorf("withdraw 操作缺少 destination")
		}
	default:
		return fmt.Errorf("未知的操作类型: %s", a.Kind)
	}
	return nil
}

// KnowledgeCard 表示提供给大模型的知识切片，帮助生成更加准确的解析。
type KnowledgeCard struct {
	Title   string
	Content string
}

// HistoryEntry 描述一次历史兑换，用于为大模型提供上下文记忆。
type HistoryEntry struct {
	Instruction string
	TokenIn     string
	AmountIn    string
	TokenOut    string
	FinalState  string
	CreatedAt   int64
}

// Client 定义了调用大模型的统一接口。
type Client interface {
	Interpret(ctx context.Context, req Request) (*Action, error)
}
