package account

import (
	"context"
	"crypto/ed25519"
	"encoding/json"
	"strings"
	"testing"

	"github.com/mr-tron/base58"

	"NearIntents/internal/chain"
)

type stubChain struct {
	viewAccount   chain.AccountView
	accessKey     chain.AccessKey
	callResult    []byte
	broadcastErr  error
	lastBroadcast []byte
	lastMethod    string
	lastContract  string
	lastArgs      []byte
}

func (s *stubChain) ViewAccount(ctx context.Context, accountID string) (chain.AccountView, error) {
	return s.viewAccount, nil
}

func (s *stubChain) CallFunction(ctx context.Context, contractID, method string, args []byte) ([]byte, error) {
	s.lastContract = contractID
	s.lastMethod = method
	s.lastArgs = args
	return s.callResult, nil
}

func (s *stubChain) ViewAccessKey(ctx context.Context, accountID, publicKey string) (chain.AccessKey, error) {
	return s.accessKey, nil
}

func (s *stubChain) BroadcastTransaction(ctx context.Context, signedTx []byte) (chain.TxOutcome, error) {
	if s.broadcastErr != nil {
		return chain.TxOutcome{}, s.broadcastErr
	}
	s.lastBroadcast = signedTx
	return chain.TxOutcome{Hash: "9XyZ"}, nil
}

func (s *stubChain) Close() {}

func testCredential(t *testing.T) Credential {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("生成密钥失败: %v", err)
	}
	return Credential{
		AccountID:  "alice.near",
		PrivateKey: "ed25519:" + base58.Encode(priv),
	}
}

func TestParseCredential(t *testing.T) {
	cred, err := ParseCredential([]byte(`{"account_id":"alice.near","private_key":"ed25519:abc"}`))
	if err != nil {
		t.Fatalf("解析失败: %v", err)
	}
	if cred.AccountID != "alice.near" {
		t.Fatalf("账户不匹配: %s", cred.AccountID)
	}

	if _, err := ParseCredential([]byte(`{"account_id":"alice.near"}`)); err == nil {
		t.Fatal("缺少私钥的凭据应当报错")
	}
	if _, err := ParseCredential([]byte(`not-json`)); err == nil {
		t.Fatal("非法 JSON 应当报错")
	}
}

func TestNewSignerKeyFormats(t *testing.T) {
	_, priv, _ := ed25519.GenerateKey(nil)

	full := Credential{AccountID: "a.near", PrivateKey: "ed25519:" + base58.Encode(priv)}
	seed := Credential{AccountID: "a.near", PrivateKey: base58.Encode(priv.Seed())}

	sFull, err := NewSigner(full, nil)
	if err != nil {
		t.Fatalf("64 字节私钥应当可用: %v", err)
	}
	sSeed, err := NewSigner(seed, nil)
	if err != nil {
		t.Fatalf("32 字节 seed 应当可用: %v", err)
	}
	if sFull.PublicKeyString() != sSeed.PublicKeyString() {
		t.Fatal("两种格式应当得到同一公钥")
	}

	bad := Credential{AccountID: "a.near", PrivateKey: base58.Encode([]byte{1, 2, 3})}
	if _, err := NewSigner(bad, nil); err == nil {
		t.Fatal("长度非法的私钥应当报错")
	}
}

func TestSignAndVerify(t *testing.T) {
	signer, err := NewSigner(testCredential(t), nil)
	if err != nil {
		t.Fatalf("构造签名器失败: %v", err)
	}

	payload := []byte(`{"nonce":"abc","signer_id":"alice.near"}`)
	sig, err := signer.Sign(payload)
	if err != nil {
		t.Fatalf("签名失败: %v", err)
	}
	if !strings.HasPrefix(sig, "ed25519:") {
		t.Fatalf("签名缺少前缀: %s", sig)
	}
	if !signer.Verify(payload, sig) {
		t.Fatal("签名校验失败")
	}
	if signer.Verify([]byte("tampered"), sig) {
		t.Fatal("篡改后的内容不应通过校验")
	}
}

func TestSubmitFunctionCall(t *testing.T) {
	stub := &stubChain{
		accessKey: chain.AccessKey{Nonce: 41, BlockHash: []byte("11111111111111111111111111111111")},
	}
	signer, err := NewSigner(testCredential(t), stub)
	if err != nil {
		t.Fatalf("构造签名器失败: %v", err)
	}

	outcome, err := signer.SubmitFunctionCall(context.Background(), "wrap.near", "near_deposit",
		map[string]string{}, 300_000_000_000_000, "1000000000000000000000000")
	if err != nil {
		t.Fatalf("提交调用失败: %v", err)
	}
	if outcome.Hash != "9XyZ" {
		t.Fatalf("交易哈希不匹配: %s", outcome.Hash)
	}
	if len(stub.lastBroadcast) == 0 {
		t.Fatal("应当广播已签名交易")
	}
}

func TestViewFunction(t *testing.T) {
	stub := &stubChain{callResult: []byte(`{"total":"1250000000000000000000"}`)}
	signer, err := NewSigner(testCredential(t), stub)
	if err != nil {
		t.Fatalf("构造签名器失败: %v", err)
	}

	raw, err := signer.ViewFunction(context.Background(), "usdc.near", "storage_balance_of",
		map[string]string{"account_id": "alice.near"})
	if err != nil {
		t.Fatalf("视图调用失败: %v", err)
	}
	var decoded map[string]string
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("解析结果失败: %v", err)
	}
	if stub.lastMethod != "storage_balance_of" || stub.lastContract != "usdc.near" {
		t.Fatalf("调用目标不匹配: %s %s", stub.lastContract, stub.lastMethod)
	}
}

func TestRegisterIntentPublicKey(t *testing.T) {
	stub := &stubChain{accessKey: chain.AccessKey{Nonce: 7, BlockHash: []byte("11111111111111111111111111111111")}}
	signer, err := NewSigner(testCredential(t), stub)
	if err != nil {
		t.Fatalf("构造签名器失败: %v", err)
	}
	if _, err := signer.RegisterIntentPublicKey(context.Background(), "intents.near"); err != nil {
		t.Fatalf("登记公钥失败: %v", err)
	}
	if len(stub.lastBroadcast) == 0 {
		t.Fatal("应当广播登记交易")
	}
}
