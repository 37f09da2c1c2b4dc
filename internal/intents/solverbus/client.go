package solverbus

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"NearIntents/internal/intents"
	"NearIntents/pkg/logger"
)

const (
	// DefaultURL 是官方 solver relay 的 RPC 端点。
	DefaultURL = "https://solver-relay-v2.chaindefuser.com/rpc"
	// defaultTimeout 约束单次总线调用的最长等待时间。
	defaultTimeout = 30 * time.Second
)

// Config 描述 solver bus 客户端的连接参数。
type Config struct {
	URL     string
	Timeout time.Duration
}

// Client 面向 solver bus 的两个 RPC 方法：quote 与 publish_intent。
// 客户端内部不做重试，重试属于编排层的决策：重复 publish_intent 会
// 撞上已消费的 nonce/quote_hash，可能失败甚至重复成交。
type Client struct {
	url        string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient 创建 solver bus 客户端。
func NewClient(cfg Config) *Client {
	url := strings.TrimSpace(cfg.URL)
	if url == "" {
		url = DefaultURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		url:        url,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.Named("solverbus"),
	}
}

type rpcRequest struct {
	ID      string `json:"id"`
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

// RPCError 是 JSON-RPC 层面的错误对象。
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("solver bus rpc error %d: %s", e.Code, e.Message)
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error"`
}

// PublishResult 原样承载总线对 publish_intent 的应答，由编排层解读。
type PublishResult struct {
	Raw json.RawMessage
	Err *RPCError
}

// FetchOptions 向总线询价。网络错误、非 200 状态或畸形响应一律降级为
// 空列表：对调用方而言这与“当前无流动性”等价，是可重试的软失败，
// 不是硬错误。
func (c *Client) FetchOptions(ctx context.Context, request intents.WireRequest) []intents.Option {
	resp, err := c.call(ctx, "quote", request)
	if err != nil {
		c.logger.Warn("询价失败，按无报价处理", slog.Any("error", err))
		return nil
	}
	if resp.Error != nil {
		c.logger.Warn("总线返回询价错误，按无报价处理", slog.Any("error", resp.Error))
		return nil
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(resp.Result, &raw); err != nil {
		c.logger.Warn("询价响应格式异常，按无报价处理", slog.Any("error", err))
		return nil
	}

	options := make([]intents.Option, 0, len(raw))
	for i, item := range raw {
		var option intents.Option
		if err := json.Unmarshal(item, &option); err != nil {
			c.logger.Warn("丢弃无法解析的报价", slog.Int("index", i), slog.Any("error", err))
			continue
		}
		// 缺少关键字段的报价在边界处丢弃，不让缺字段坑进签名逻辑。
		if option.AmountOut == "" || option.QuoteHash == "" {
			c.logger.Warn("丢弃缺少 amount_out/quote_hash 的报价", slog.Int("index", i))
			continue
		}
		options = append(options, option)
	}
	return options
}

// PublishIntent 提交签名承诺。总线侧的业务错误原样向上传递，
// 本客户端不解释错误码。
func (c *Client) PublishIntent(ctx context.Context, commitment intents.Commitment, quoteHashes []string) (PublishResult, error) {
	if quoteHashes == nil {
		quoteHashes = []string{}
	}
	payload := map[string]any{
		"signed_data":  commitment,
		"quote_hashes": quoteHashes,
	}
	resp, err := c.call(ctx, "publish_intent", payload)
	if err != nil {
		return PublishResult{}, err
	}
	return PublishResult{Raw: resp.Result, Err: resp.Error}, nil
}

func (c *Client) call(ctx context.Context, method string, param any) (*rpcResponse, error) {
	body, err := json.Marshal(rpcRequest{
		ID:      "dontcare",
		JSONRPC: "2.0",
		Method:  method,
		Params:  []any{param},
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
		return nil, fmt.Errorf("请求 solver bus 失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("solver bus 返回状态 %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var decoded rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("解析 solver bus 响应失败: %w", err)
	}
	return &decoded, nil
}

// IsTimeout 判断错误是否由调用超时引起。
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr interface{ Timeout() bool }
	return errors.As(err, &netErr) && netErr.Timeout()
}
