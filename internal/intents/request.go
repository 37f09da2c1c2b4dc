package intents

import (
	"NearIntents/internal/asset"
	xerrors "NearIntents/internal/errors"
)

// DefaultMinDeadlineMS 约束求解器报价的有效窗口。两分钟既能容忍常见的
// 网络延迟，又不会让报价长期悬挂。
const DefaultMinDeadlineMS = 120000

// WireRequest 是 solver bus quote 方法期望的扁平请求结构。
type WireRequest struct {
	DefuseAssetIdentifierIn  string `json:"defuse_asset_identifier_in"`
	DefuseAssetIdentifierOut string `json:"defuse_asset_identifier_out"`
	ExactAmountIn            string `json:"exact_amount_in"`
	MinDeadlineMS            int    `json:"min_deadline_ms"`
	ExactAmountOut           string `json:"exact_amount_out,omitempty"`
}

type requestLeg struct {
	identifier string
	amount     string
}

// Request 按步骤组装一次报价请求。Serialize 之前必须同时设置输入与
// 输出资产，否则返回 INCOMPLETE_REQUEST。
type Request struct {
	registry      *asset.Registry
	minDeadlineMS int
	assetIn       *requestLeg
	assetOut      *requestLeg
}

// NewRequest 创建报价请求构造器。
func NewRequest(registry *asset.Registry) *Request {
	return &Request{registry: registry, minDeadlineMS: DefaultMinDeadlineMS}
}

// WithMinDeadlineMS 覆盖默认的报价有效窗口。
func (r *Request) WithMinDeadlineMS(ms int) *Request {
	if ms > 0 {
		r.minDeadlineMS = ms
	}
	return r
}

// SetAssetIn 设置输入资产与确切金额（人类可读的十进制字符串）。
func (r *Request) SetAssetIn(symbol, amount string) error {
	identifier, err := r.registry.AssetIdentifier(symbol)
	if err != nil {
		return err
	}
	baseUnits, err := r.registry.ToBaseUnits(amount, symbol)
	if err != nil {
		return err
	}
	r.assetIn = &requestLeg{identifier: identifier, amount: baseUnits}
	return nil
}

// SetAssetOut 设置输出资产。amount 传空字符串表示金额由求解器报价决定。
func (r *Request) SetAssetOut(symbol, amount string) error {
	identifier, err := r.registry.AssetIdentifier(symbol)
	if err != nil {
		return err
	}
	leg := &requestLeg{identifier: identifier}
	if amount != "" {
		baseUnits, err := r.registry.ToBaseUnits(amount, symbol)
		if err != nil {
			return err
		}
		leg.amount = baseUnits
	}
	r.assetOut = leg
	return nil
}

// Serialize 输出 solver bus 期望的请求结构。
func (r *Request) Serialize() (WireRequest, error) {
	if r.assetIn == nil || r.assetOut == nil {
		return WireRequest{}, xerrors.New(CodeIncompleteRequest, "必须先设置输入与输出资产")
	}
	wire := WireRequest{
		DefuseAssetIdentifierIn:  r.assetIn.identifier,
		DefuseAssetIdentifierOut: r.assetOut.identifier,
		ExactAmountIn:            r.assetIn.amount,
		MinDeadlineMS:            r.minDeadlineMS,
	}
	if r.assetOut.amount != "" {
		wire.ExactAmountOut = r.assetOut.amount
	}
	return wire, nil
}
