package solverbus

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"NearIntents/internal/intents"
)

func decodeRPC(t *testing.T, r *http.Request) rpcRequest {
	t.Helper()
	body, err := io.ReadAll(r.Body)
	if err != nil {
		t.Fatalf("读取请求体失败: %v", err)
	}
	var req rpcRequest
	if err := json.Unmarshal(body, &req); err != nil {
		t.Fatalf("解析请求体失败: %v", err)
	}
	return req
}

func TestFetchOptions(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req := decodeRPC(t, r)
		if req.ID != "dontcare" || req.JSONRPC != "2.0" || req.Method != "quote" {
			t.Errorf("RPC 头部不符: %+v", req)
		}
		if len(req.Params) != 1 {
			t.Errorf("params 数量不符: %d", len(req.Params))
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"jsonrpc":"2.0","id":"dontcare","result":[
			{"quote_hash":"h1","amount_out":"100","expiration_time":"1700000000000"},
			{"quote_hash":"","amount_out":"200"},
			{"quote_hash":"h3","amount_out":""},
			{"quote_hash":"h4","amount_out":"300"}
		]}`)
	}))
	defer server.Close()

	client := NewClient(Config{URL: server.URL})
	options := client.FetchOptions(context.Background(), intents.WireRequest{
		DefuseAssetIdentifierIn:  "near",
		DefuseAssetIdentifierOut: "nep141:usdc.near",
		ExactAmountIn:            "1000",
		MinDeadlineMS:            120000,
	})

	if len(options) != 2 {
		t.Fatalf("应丢弃缺字段的报价，实际返回 %d 条", len(options))
	}
	if options[0].QuoteHash != "h1" || options[1].QuoteHash != "h4" {
		t.Fatalf("报价内容不符: %+v", options)
	}
}

func TestFetchOptionsSoftFailures(t *testing.T) {
	cases := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"HTTP 错误", func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "backend down", http.StatusBadGateway)
		}},
		{"RPC 错误", func(w http.ResponseWriter, r *http.Request) {
			io.WriteString(w, `{"jsonrpc":"2.0","id":"dontcare","error":{"code":-32000,"message":"no solvers"}}`)
		}},
		{"畸形结果", func(w http.ResponseWriter, r *http.Request) {
			io.WriteString(w, `{"jsonrpc":"2.0","id":"dontcare","result":{"not":"a list"}}`)
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(tc.handler)
			defer server.Close()

			client := NewClient(Config{URL: server.URL})
			options := client.FetchOptions(context.Background(), intents.WireRequest{})
			if len(options) != 0 {
				t.Fatalf("软失败应返回空列表，实际 %+v", options)
			}
		})
	}
}

func TestPublishIntent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req := decodeRPC(t, r)
		if req.Method != "publish_intent" {
			t.Errorf("方法不符: %s", req.Method)
		}
		param, ok := req.Params[0].(map[string]any)
		if !ok {
			t.Fatalf("参数结构不符: %+v", req.Params)
		}
		hashes, ok := param["quote_hashes"].([]any)
		if !ok || len(hashes) != 1 || hashes[0] != "h1" {
			t.Errorf("quote_hashes 不符: %+v", param["quote_hashes"])
		}
		signed, ok := param["signed_data"].(map[string]any)
		if !ok || signed["standard"] != "raw_ed25519" {
			t.Errorf("signed_data 不符: %+v", param["signed_data"])
		}
		io.WriteString(w, `{"jsonrpc":"2.0","id":"dontcare","result":{"status":"OK","intent_hash":"abc"}}`)
	}))
	defer server.Close()

	client := NewClient(Config{URL: server.URL})
	result, err := client.PublishIntent(context.Background(), intents.Commitment{
		Standard:  intents.CommitmentStandard,
		Payload:   `{"nonce":"n"}`,
		Signature: "ed25519:sig",
		PublicKey: "ed25519:pub",
	}, []string{"h1"})
	if err != nil {
		t.Fatalf("发布失败: %v", err)
	}
	if result.Err != nil {
		t.Fatalf("不应返回 RPC 错误: %v", result.Err)
	}
	var decoded map[string]string
	if err := json.Unmarshal(result.Raw, &decoded); err != nil {
		t.Fatalf("解析结果失败: %v", err)
	}
	if decoded["status"] != "OK" {
		t.Fatalf("应答不符: %+v", decoded)
	}
}

func TestPublishIntentEmptyHashes(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req := decodeRPC(t, r)
		param := req.Params[0].(map[string]any)
		hashes, ok := param["quote_hashes"].([]any)
		if !ok || len(hashes) != 0 {
			t.Errorf("提币发布应携带空 quote_hashes 数组: %+v", param["quote_hashes"])
		}
		io.WriteString(w, `{"jsonrpc":"2.0","id":"dontcare","result":{"status":"OK"}}`)
	}))
	defer server.Close()

	client := NewClient(Config{URL: server.URL})
	if _, err := client.PublishIntent(context.Background(), intents.Commitment{}, nil); err != nil {
		t.Fatalf("发布失败: %v", err)
	}
}

func TestPublishIntentBusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"jsonrpc":"2.0","id":"dontcare","error":{"code":-32600,"message":"expired nonce"}}`)
	}))
	defer server.Close()

	client := NewClient(Config{URL: server.URL})
	result, err := client.PublishIntent(context.Background(), intents.Commitment{}, []string{"h1"})
	if err != nil {
		t.Fatalf("传输层不应报错: %v", err)
	}
	if result.Err == nil || result.Err.Code != -32600 {
		t.Fatalf("业务错误应原样上传: %+v", result.Err)
	}
}
