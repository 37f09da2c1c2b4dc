package near

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mr-tron/base58"
)

type rpcCall struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

func newRPCServer(t *testing.T, handler func(t *testing.T, call rpcCall) string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			t.Fatalf("读取请求失败: %v", err)
		}
		var call rpcCall
		if err := json.Unmarshal(body, &call); err != nil {
			t.Fatalf("解析请求失败: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, handler(t, call))
	}))
}

func TestNewClientRequiresURL(t *testing.T) {
	if _, err := NewClient(Config{}); err == nil {
		t.Fatalf("缺少 RPC 地址应报错")
	}
}

func TestViewAccount(t *testing.T) {
	server := newRPCServer(t, func(t *testing.T, call rpcCall) string {
		if call.Method != "query" {
			t.Errorf("方法不符: %s", call.Method)
		}
		var params map[string]any
		if err := json.Unmarshal(call.Params, &params); err != nil {
			t.Fatalf("解析参数失败: %v", err)
		}
		if params["request_type"] != "view_account" || params["account_id"] != "alice.near" {
			t.Errorf("参数不符: %+v", params)
		}
		return `{"jsonrpc":"2.0","id":"dontcare","result":{"amount":"425000000000000000000000","locked":"0","storage_usage":1820}}`
	})
	defer server.Close()

	client, err := NewClient(Config{Name: "test", RPCURL: server.URL})
	if err != nil {
		t.Fatalf("构造客户端失败: %v", err)
	}
	defer client.Close()

	view, err := client.ViewAccount(context.Background(), "alice.near")
	if err != nil {
		t.Fatalf("查询账户失败: %v", err)
	}
	if view.Amount != "425000000000000000000000" || view.StorageUsed != 1820 {
		t.Fatalf("账户状态不符: %+v", view)
	}
}

func TestCallFunction(t *testing.T) {
	server := newRPCServer(t, func(t *testing.T, call rpcCall) string {
		var params map[string]any
		if err := json.Unmarshal(call.Params, &params); err != nil {
			t.Fatalf("解析参数失败: %v", err)
		}
		if params["request_type"] != "call_function" || params["method_name"] != "storage_balance_of" {
			t.Errorf("参数不符: %+v", params)
		}
		decoded, err := base64.StdEncoding.DecodeString(params["args_base64"].(string))
		if err != nil || string(decoded) != `{"account_id":"alice.near"}` {
			t.Errorf("参数编码不符: %s", decoded)
		}
		// result 字段是字节数组形式的 JSON。
		payload, _ := json.Marshal([]byte(`{"total":"1250000000000000000000"}`))
		return `{"jsonrpc":"2.0","id":"dontcare","result":{"result":` + string(payload) + `}}`
	})
	defer server.Close()

	client, err := NewClient(Config{RPCURL: server.URL})
	if err != nil {
		t.Fatalf("构造客户端失败: %v", err)
	}
	defer client.Close()

	raw, err := client.CallFunction(context.Background(), "usdc.near", "storage_balance_of",
		[]byte(`{"account_id":"alice.near"}`))
	if err != nil {
		t.Fatalf("视图调用失败: %v", err)
	}
	if string(raw) != `{"total":"1250000000000000000000"}` {
		t.Fatalf("结果不符: %s", raw)
	}
}

func TestViewAccessKey(t *testing.T) {
	blockHash := base58.Encode([]byte("11111111111111111111111111111111"))
	server := newRPCServer(t, func(t *testing.T, call rpcCall) string {
		var params map[string]any
		if err := json.Unmarshal(call.Params, &params); err != nil {
			t.Fatalf("解析参数失败: %v", err)
		}
		if params["request_type"] != "view_access_key" || params["public_key"] != "ed25519:pub" {
			t.Errorf("参数不符: %+v", params)
		}
		return `{"jsonrpc":"2.0","id":"dontcare","result":{"nonce":41,"block_hash":"` + blockHash + `"}}`
	})
	defer server.Close()

	client, err := NewClient(Config{RPCURL: server.URL})
	if err != nil {
		t.Fatalf("构造客户端失败: %v", err)
	}
	defer client.Close()

	key, err := client.ViewAccessKey(context.Background(), "alice.near", "ed25519:pub")
	if err != nil {
		t.Fatalf("查询访问密钥失败: %v", err)
	}
	if key.Nonce != 41 || len(key.BlockHash) != 32 {
		t.Fatalf("访问密钥不符: nonce=%d hash=%d 字节", key.Nonce, len(key.BlockHash))
	}
}

func TestBroadcastTransaction(t *testing.T) {
	server := newRPCServer(t, func(t *testing.T, call rpcCall) string {
		if call.Method != "broadcast_tx_commit" {
			t.Errorf("方法不符: %s", call.Method)
		}
		success := base64.StdEncoding.EncodeToString([]byte(`"ok"`))
		return `{"jsonrpc":"2.0","id":"dontcare","result":{"status":{"SuccessValue":"` + success + `"},"transaction":{"hash":"9XyZ"}}}`
	})
	defer server.Close()

	client, err := NewClient(Config{RPCURL: server.URL})
	if err != nil {
		t.Fatalf("构造客户端失败: %v", err)
	}
	defer client.Close()

	outcome, err := client.BroadcastTransaction(context.Background(), []byte("signed-tx"))
	if err != nil {
		t.Fatalf("广播失败: %v", err)
	}
	if outcome.Hash != "9XyZ" || !outcome.Succeeded() {
		t.Fatalf("结果不符: %+v", outcome)
	}
	if string(outcome.SuccessValue) != `"ok"` {
		t.Fatalf("SuccessValue 不符: %s", outcome.SuccessValue)
	}
}

func TestRPCErrorSurfaced(t *testing.T) {
	server := newRPCServer(t, func(t *testing.T, call rpcCall) string {
		return `{"jsonrpc":"2.0","id":"dontcare","error":{"name":"HANDLER_ERROR","message":"account does not exist"}}`
	})
	defer server.Close()

	client, err := NewClient(Config{RPCURL: server.URL})
	if err != nil {
		t.Fatalf("构造客户端失败: %v", err)
	}
	defer client.Close()

	if _, err := client.ViewAccount(context.Background(), "ghost.near"); err == nil {
		t.Fatalf("RPC 错误应向上传递")
	}
}

func TestBuildFunctionCallTransaction(t *testing.T) {
	_, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("生成密钥失败: %v", err)
	}

	signed, err := BuildFunctionCallTransaction(priv, FunctionCallParams{
		SignerID:     "alice.near",
		ReceiverID:   "wrap.near",
		Method:       "near_deposit",
		Args:         []byte("{}"),
		Gas:          MaxGas,
		DepositYocto: "1000000000000000000000000",
		Nonce:        42,
		BlockHash:    []byte("11111111111111111111111111111111"),
	})
	if err != nil {
		t.Fatalf("构造交易失败: %v", err)
	}
	if len(signed) == 0 {
		t.Fatalf("交易字节为空")
	}

	// 非 32 字节的 block hash 必须被拒绝。
	if _, err := BuildFunctionCallTransaction(priv, FunctionCallParams{BlockHash: []byte("short")}); err == nil {
		t.Fatalf("非法 block hash 应报错")
	}

	if _, err := BuildFunctionCallTransaction(priv, FunctionCallParams{
		BlockHash:    []byte("11111111111111111111111111111111"),
		DepositYocto: "not-a-number",
	}); err == nil {
		t.Fatalf("非法存款金额应报错")
	}
}
