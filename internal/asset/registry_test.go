package asset

import (
	"errors"
	"testing"

	xerrors "NearIntents/internal/errors"
)

func TestResolveUnknownAsset(t *testing.T) {
	registry := NewRegistry()
	_, err := registry.Resolve("DOGE")
	if err == nil {
		t.Fatalf("expected error for unknown symbol")
	}
	if !errors.Is(err, xerrors.New(CodeUnknownAsset, "")) {
		t.Fatalf("expected UNKNOWN_ASSET, got %v", err)
	}
}

func TestAssetIdentifier(t *testing.T) {
	registry := NewRegistry()

	id, err := registry.AssetIdentifier("NEAR")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != "near" {
		t.Fatalf("native NEAR identifier mismatch: %s", id)
	}

	id, err = registry.AssetIdentifier("usdc")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "nep141:a0b86991c6218b36c1d19d4a2e9eb0ce3606eb48.factory.bridge.near"
	if id != want {
		t.Fatalf("USDC identifier mismatch: %s", id)
	}
}

func TestToBaseUnits(t *testing.T) {
	registry := NewRegistry()

	cases := []struct {
		amount string
		symbol string
		want   string
	}{
		{"1.5", "USDC", "1500000"},
		{"0.000001", "NEAR", "1000000000000000000"},
		{"2", "NEAR", "2000000000000000000000000"},
		{"0", "USDC", "0"},
		{"10.123456789", "USDC", "10123456"},
		{"0.0000000000000000000000001", "NEAR", "0"},
	}
	for _, tc := range cases {
		got, err := registry.ToBaseUnits(tc.amount, tc.symbol)
		if err != nil {
			t.Fatalf("ToBaseUnits(%s, %s): %v", tc.amount, tc.symbol, err)
		}
		if got != tc.want {
			t.Fatalf("ToBaseUnits(%s, %s) = %s, want %s", tc.amount, tc.symbol, got, tc.want)
		}
	}
}

func TestToBaseUnitsRejectsGarbage(t *testing.T) {
	registry := NewRegistry()
	for _, amount := range []string{"", "abc", "1.2.3", "1,5", "."} {
		if _, err := registry.ToBaseUnits(amount, "USDC"); err == nil {
			t.Fatalf("expected error for %q", amount)
		}
	}
}
