package near

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mr-tron/base58"

	"NearIntents/internal/chain"
)

// DefaultRPCURL 指向 NEAR 主网的公共 RPC 节点。
const DefaultRPCURL = "https://rpc.mainnet.near.org"

const defaultTimeout = 30 * time.Second

// Config describes how to construct a NEAR RPC client.
type Config struct {
	Name    string
	RPCURL  string
	Timeout time.Duration
	Notes   string
}

// Client implements the chain.Client interface against a NEAR JSON-RPC node.
type Client struct {
	name       string
	notes      string
	url        string
	httpClient *http.Client
}

// NewClient 构建指向指定节点的 NEAR 客户端。
func NewClient(cfg Config) (*Client, error) {
	url := strings.TrimSpace(cfg.RPCURL)
	if url == "" {
		return nil, errors.New("未配置 NEAR RPC 地址")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		name:       cfg.Name,
		notes:      cfg.Notes,
		url:        url,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

// Close releases network connections held by the client.
func (c *Client) Close() {
	if c != nil && c.httpClient != nil {
		c.httpClient.CloseIdleConnections()
	}
}

type rpcError struct {
	Name    string          `json:"name"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
	Cause   json.RawMessage `json:"cause,omitempty"`
}

func (e *rpcError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("near rpc error %s: %s", e.Name, e.Message)
	}
	return fmt.Sprintf("near rpc error %s", e.Name)
}

type rpcEnvelope struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

func (c *Client) call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	if c == nil {
		return nil, errors.New("未初始化的 NEAR 客户端")
	}
	body, err := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"id":      "dontcare",
		"method":  method,
		"params":  params,
	})
	if err != nil {
		return nil, fmt.Errorf("序列化 %s 请求失败: %w", method, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("构建 %s 请求失败: %w", method, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("请求 NEAR 节点失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("NEAR 节点返回状态 %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var envelope rpcEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("解析 NEAR 响应失败: %w", err)
	}
	if envelope.Error != nil {
		return nil, envelope.Error
	}
	return envelope.Result, nil
}

// ViewAccount 查询账户的余额与存储占用。
func (c *Client) ViewAccount(ctx context.Context, accountID string) (chain.AccountView, error) {
	result, err := c.call(ctx, "query", map[string]any{
		"request_type": "view_account",
		"finality":     "final",
		"account_id":   accountID,
	})
	if err != nil {
		return chain.AccountView{}, err
	}
	var view chain.AccountView
	if err := json.Unmarshal(result, &view); err != nil {
		return chain.AccountView{}, fmt.Errorf("解析账户状态失败: %w", err)
	}
	return view, nil
}

// CallFunction 执行只读的合约视图调用，返回原始字节结果。
func (c *Client) CallFunction(ctx context.Context, contractID, method string, args []byte) ([]byte, error) {
	if len(args) == 0 {
		args = []byte("{}")
	}
	result, err := c.call(ctx, "query", map[string]any{
		"request_type": "call_function",
		"finality":     "final",
		"account_id":   contractID,
		"method_name":  method,
		"args_base64":  base64.StdEncoding.EncodeToString(args),
	})
	if err != nil {
		return nil, err
	}
	var decoded struct {
		Result []byte `json:"result"`
	}
	if err := json.Unmarshal(result, &decoded); err != nil {
		return nil, fmt.Errorf("解析视图调用结果失败: %w", err)
	}
	return decoded.Result, nil
}

// ViewAccessKey 返回指定公钥的当前 nonce 与一个新近区块哈希，
// 两者共同锚定下一笔交易。
func (c *Client) ViewAccessKey(ctx context.Context, accountID, publicKey string) (chain.AccessKey, error) {
	result, err := c.call(ctx, "query", map[string]any{
		"request_type": "view_access_key",
		"finality":     "final",
		"account_id":   accountID,
		"public_key":   publicKey,
	})
	if err != nil {
		return chain.AccessKey{}, err
	}
	var decoded struct {
		Nonce     uint64 `json:"nonce"`
		BlockHash string `json:"block_hash"`
	}
	if err := json.Unmarshal(result, &decoded); err != nil {
		return chain.AccessKey{}, fmt.Errorf("解析访问密钥失败: %w", err)
	}
	blockHash, err := base58.Decode(decoded.BlockHash)
	if err != nil {
		return chain.AccessKey{}, fmt.Errorf("解析区块哈希失败: %w", err)
	}
	return chain.AccessKey{Nonce: decoded.Nonce, BlockHash: blockHash}, nil
}

// BroadcastTransaction 提交已签名交易并等待执行结果。不在此层重试：
// 函数调用不具备幂等性。
func (c *Client) BroadcastTransaction(ctx context.Context, signedTx []byte) (chain.TxOutcome, error) {
	result, err := c.call(ctx, "broadcast_tx_commit", []string{
		base64.StdEncoding.EncodeToString(signedTx),
	})
	if err != nil {
		return chain.TxOutcome{}, err
	}
	var decoded struct {
		Status struct {
			SuccessValue *string         `json:"SuccessValue"`
			Failure      json.RawMessage `json:"Failure"`
		} `json:"status"`
		Transaction struct {
			Hash string `json:"hash"`
		} `json:"transaction"`
	}
	if err := json.Unmarshal(result, &decoded); err != nil {
		return chain.TxOutcome{}, fmt.Errorf("解析交易结果失败: %w", err)
	}

	outcome := chain.TxOutcome{Hash: decoded.Transaction.Hash, FailureRaw: decoded.Status.Failure}
	if decoded.Status.SuccessValue != nil {
		value, err := base64.StdEncoding.DecodeString(*decoded.Status.SuccessValue)
		if err == nil {
			outcome.SuccessValue = value
		}
	}
	return outcome, nil
}

var _ chain.Client = (*Client)(nil)
