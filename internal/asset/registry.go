package asset

import (
	"fmt"
	"strings"

	xerrors "NearIntents/internal/errors"
)

// CodeUnknownAsset 表示请求了未登记的代币符号。
const CodeUnknownAsset xerrors.Code = "UNKNOWN_ASSET"

func init() {
	xerrors.Register(CodeUnknownAsset, xerrors.Attributes{
		Message:   "unknown asset",
		Severity:  xerrors.SeverityInfo,
		Retryable: false,
		Alert:     false,
	})
}

// Asset 描述一个代币在链上的标识与精度信息。注册后不可变。
type Asset struct {
	Symbol   string
	TokenID  string
	Decimals uint8
	// OMFT 是跨链桥接版本的合约标识，仅部分代币具备。
	OMFT string
}

// Registry 维护符号到资产信息的静态映射，是所有金额换算的依据。
type Registry struct {
	assets map[string]Asset
}

// builtinAssets 与 intents 合约当前支持的主流资产保持一致。
var builtinAssets = []Asset{
	{
		Symbol:   "USDC",
		TokenID:  "a0b86991c6218b36c1d19d4a2e9eb0ce3606eb48.factory.bridge.near",
		OMFT:     "eth-0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48.omft.near",
		Decimals: 6,
	},
	{
		Symbol:   "NEAR",
		TokenID:  "wrap.near",
		Decimals: 24,
	},
}

// NewRegistry 创建内置资产表的注册表。
func NewRegistry() *Registry {
	return NewRegistryWith(builtinAssets)
}

// NewRegistryWith 使用给定资产列表创建注册表，符号统一按大写登记。
func NewRegistryWith(assets []Asset) *Registry {
	table := make(map[string]Asset, len(assets))
	for _, a := range assets {
		symbol := strings.ToUpper(strings.TrimSpace(a.Symbol))
		if symbol == "" {
			continue
		}
		a.Symbol = symbol
		table[symbol] = a
	}
	return &Registry{assets: table}
}

// Resolve 返回符号对应的资产信息。未登记的符号返回 UNKNOWN_ASSET，
// 绝不退回默认值。
func (r *Registry) Resolve(symbol string) (Asset, error) {
	if r == nil {
		return Asset{}, xerrors.New(xerrors.CodeInitializationFailure, "资产注册表未初始化")
	}
	a, ok := r.assets[strings.ToUpper(strings.TrimSpace(symbol))]
	if !ok {
		return Asset{}, xerrors.New(CodeUnknownAsset, fmt.Sprintf("未登记的资产符号: %s", symbol))
	}
	return a, nil
}

// AssetIdentifier 返回 solver bus 期望的资产标识。原生 NEAR 使用独立的
// 标识方案，其余 FT 统一加 nep141 前缀。
func (r *Registry) AssetIdentifier(symbol string) (string, error) {
	a, err := r.Resolve(symbol)
	if err != nil {
		return "", err
	}
	if a.Symbol == "NEAR" {
		return "near", nil
	}
	return "nep141:" + a.TokenID, nil
}

// ToBaseUnits 将人类可读的十进制金额换算成整数最小单位的字符串。
// 换算完全基于十进制字符串运算，向下取整，不经过二进制浮点，
// 以免高精度代币出现舍入漂移。
func (r *Registry) ToBaseUnits(amount, symbol string) (string, error) {
	a, err := r.Resolve(symbol)
	if err != nil {
		return "", err
	}
	return scaleDecimal(amount, int(a.Decimals))
}

// scaleDecimal 把十进制字符串金额放大 10^decimals 倍并截断小数部分。
func scaleDecimal(amount string, decimals int) (string, error) {
	amount = strings.TrimSpace(amount)
	if amount == "" {
		return "", xerrors.New(xerrors.CodeInvalidArgument, "金额不能为空")
	}
	negative := false
	if amount[0] == '+' || amount[0] == '-' {
		negative = amount[0] == '-'
		amount = amount[1:]
	}

	intPart, fracPart, _ := strings.Cut(amount, ".")
	if intPart == "" && fracPart == "" {
		return "", xerrors.New(xerrors.CodeInvalidArgument, fmt.Sprintf("非法的金额: %q", amount))
	}
	if intPart == "" {
		intPart = "0"
	}
	if !isDigits(intPart) || (fracPart != "" && !isDigits(fracPart)) {
		return "", xerrors.New(xerrors.CodeInvalidArgument, fmt.Sprintf("非法的金额: %q", amount))
	}

	// floor 语义：超出精度的小数位直接丢弃。
	if len(fracPart) > decimals {
		fracPart = fracPart[:decimals]
	}
	fracPart += strings.Repeat("0", decimals-len(fracPart))

	combined := strings.TrimLeft(intPart+fracPart, "0")
	if combined == "" {
		return "0", nil
	}
	if negative {
		return "-" + combined, nil
	}
	return combined, nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// Symbols 返回已登记的全部符号，供提示与校验使用。
func (r *Registry) Symbols() []string {
	if r == nil {
		return nil
	}
	out := make([]string, 0, len(r.assets))
	for symbol := range r.assets {
		out = append(out, symbol)
	}
	return out
}
