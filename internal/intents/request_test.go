package intents

import (
	"testing"

	"NearIntents/internal/asset"
	xerrors "NearIntents/internal/errors"
)

func TestRequestSerialize(t *testing.T) {
	req := NewRequest(asset.NewRegistry())
	if err := req.SetAssetIn("NEAR", "1.5"); err != nil {
		t.Fatalf("设置输入资产失败: %v", err)
	}
	if err := req.SetAssetOut("USDC", ""); err != nil {
		t.Fatalf("设置输出资产失败: %v", err)
	}

	wire, err := req.Serialize()
	if err != nil {
		t.Fatalf("序列化失败: %v", err)
	}
	if wire.DefuseAssetIdentifierIn != "near" {
		t.Fatalf("输入标识不符: %s", wire.DefuseAssetIdentifierIn)
	}
	if wire.DefuseAssetIdentifierOut != "nep141:a0b86991c6218b36c1d19d4a2e9eb0ce3606eb48.factory.bridge.near" {
		t.Fatalf("输出标识不符: %s", wire.DefuseAssetIdentifierOut)
	}
	if wire.ExactAmountIn != "1500000000000000000000000" {
		t.Fatalf("输入金额不符: %s", wire.ExactAmountIn)
	}
	if wire.ExactAmountOut != "" {
		t.Fatalf("未指定输出金额时不应出现 exact_amount_out: %s", wire.ExactAmountOut)
	}
	if wire.MinDeadlineMS != DefaultMinDeadlineMS {
		t.Fatalf("报价窗口不符: %d", wire.MinDeadlineMS)
	}
}

func TestRequestSerializeWithExactAmountOut(t *testing.T) {
	req := NewRequest(asset.NewRegistry()).WithMinDeadlineMS(60000)
	if err := req.SetAssetIn("USDC", "10"); err != nil {
		t.Fatalf("设置输入资产失败: %v", err)
	}
	if err := req.SetAssetOut("NEAR", "3"); err != nil {
		t.Fatalf("设置输出资产失败: %v", err)
	}

	wire, err := req.Serialize()
	if err != nil {
		t.Fatalf("序列化失败: %v", err)
	}
	if wire.ExactAmountOut != "3000000000000000000000000" {
		t.Fatalf("输出金额不符: %s", wire.ExactAmountOut)
	}
	if wire.MinDeadlineMS != 60000 {
		t.Fatalf("报价窗口不符: %d", wire.MinDeadlineMS)
	}
}

func TestRequestSerializeIncomplete(t *testing.T) {
	req := NewRequest(asset.NewRegistry())
	if err := req.SetAssetIn("NEAR", "1"); err != nil {
		t.Fatalf("设置输入资产失败: %v", err)
	}
	_, err := req.Serialize()
	if err == nil {
		t.Fatalf("缺少输出资产时应报错")
	}
	if xerrors.CodeOf(err) != CodeIncompleteRequest {
		t.Fatalf("错误码不符: %s", xerrors.CodeOf(err))
	}
}

func TestRequestRejectsUnknownAsset(t *testing.T) {
	req := NewRequest(asset.NewRegistry())
	if err := req.SetAssetIn("DOGE", "1"); err == nil {
		t.Fatalf("未登记资产应报错")
	}
}
