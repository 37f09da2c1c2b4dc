package intents

import (
	"math/big"
)

// Option 是 solver bus 返回的单条候选报价。字段在网络边界已经校验，
// 进入选择逻辑时 amount_out 与 quote_hash 必定非空。
type Option struct {
	QuoteHash                string `json:"quote_hash"`
	DefuseAssetIdentifierIn  string `json:"defuse_asset_identifier_in,omitempty"`
	DefuseAssetIdentifierOut string `json:"defuse_asset_identifier_out,omitempty"`
	AmountIn                 string `json:"amount_in,omitempty"`
	AmountOut                string `json:"amount_out"`
	ExpirationTime           string `json:"expiration_time,omitempty"`
}

// SelectBest 在候选报价中选出产出金额最高的一条。数值比较而非字典序；
// 相同产出时保留先出现的一条，保证相同输入下结果确定。空列表返回 nil，
// 调用方必须视为“无可执行报价”而终止本次尝试，绝不虚构兜底价格。
func SelectBest(options []Option) *Option {
	var best *Option
	var bestAmount *big.Rat
	for i := range options {
		amount, ok := new(big.Rat).SetString(options[i].AmountOut)
		if !ok {
			continue
		}
		if best == nil || amount.Cmp(bestAmount) > 0 {
			best = &options[i]
			bestAmount = amount
		}
	}
	return best
}
