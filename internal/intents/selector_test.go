package intents

import "testing"

func TestSelectBestPicksHighestAmountOut(t *testing.T) {
	options := []Option{
		{QuoteHash: "a", AmountOut: "100"},
		{QuoteHash: "b", AmountOut: "250.5"},
		{QuoteHash: "c", AmountOut: "99"},
	}
	best := SelectBest(options)
	if best == nil || best.QuoteHash != "b" {
		t.Fatalf("选择结果不符: %+v", best)
	}
}

func TestSelectBestNumericNotLexicographic(t *testing.T) {
	options := []Option{
		{QuoteHash: "a", AmountOut: "9"},
		{QuoteHash: "b", AmountOut: "10"},
	}
	best := SelectBest(options)
	if best == nil || best.QuoteHash != "b" {
		t.Fatalf("应按数值比较而非字典序: %+v", best)
	}
}

func TestSelectBestTieKeepsFirst(t *testing.T) {
	options := []Option{
		{QuoteHash: "first", AmountOut: "42"},
		{QuoteHash: "second", AmountOut: "42"},
	}
	best := SelectBest(options)
	if best == nil || best.QuoteHash != "first" {
		t.Fatalf("同额报价应保留先出现的一条: %+v", best)
	}
}

func TestSelectBestSkipsMalformedAmounts(t *testing.T) {
	options := []Option{
		{QuoteHash: "bad", AmountOut: "not-a-number"},
		{QuoteHash: "ok", AmountOut: "1"},
	}
	best := SelectBest(options)
	if best == nil || best.QuoteHash != "ok" {
		t.Fatalf("应跳过无法解析的金额: %+v", best)
	}
}

func TestSelectBestEmpty(t *testing.T) {
	if best := SelectBest(nil); best != nil {
		t.Fatalf("空列表应返回 nil，实际 %+v", best)
	}
}
