package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"NearIntents/internal/llm"
)

const (
	defaultBaseURL   = "https://api.openai.com/v1"
	defaultModelName = "gpt-4o-mini"
	defaultTimeout   = 60 * time.Second
)

// Config 描述了调用 OpenAI Chat Completions API 所需的信息。
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// Client 通过 HTTP 调用 OpenAI 提供的大模型能力。
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
}

// NewClient 根据配置创建 OpenAI 客户端。
func NewClient(cfg Config) (*Client, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("未提供 OpenAI API Key")
	}

	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	baseURL = strings.TrimRight(baseURL, "/")

	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultModelName
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &Client{
		apiKey:  apiKey,
		baseURL: baseURL,
		model:   model,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// Interpret 调用 OpenAI 把自然语言指令解析为结构化的兑换操作。
func (c *Client) Interpret(ctx context.Context, req llm.Request) (*llm.Action, error) {
	payload, err := c.buildPayload(req)
	if err != nil {
		return nil, err
	}

	endpoint := c.baseURL + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("构建 OpenAI 请求失败: %w", err)
	}

	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("请求 OpenAI 失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("OpenAI 返回错误状态 %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var decoded struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("解析 OpenAI 响应失败: %w", err)
	}
	if len(decoded.Choices) == 0 {
		return nil, errors.New("OpenAI 响应中没有有效的 choices")
	}

	content := strings.TrimSpace(decoded.Choices[0].Message.Content)
	if content == "" {
		return nil, errors.New("OpenAI 响应内容为空")
	}

	var action llm.Action
	if err := json.Unmarshal([]byte(content), &action); err != nil {
		return nil, fmt.Errorf("OpenAI 响应不是合法的操作 JSON: %w", err)
	}
	if err := action.Validate(); err != nil {
		return nil, fmt.Errorf("OpenAI 解析出的操作不完整: %w", err)
	}
	return &action, nil
}

func (c *Client) buildPayload(req llm.Request) ([]byte, error) {
	type message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}

	messages := []message{
		{
			Role:    "system",
			Content: systemPrompt,
		},
		{
			Role:    "user",
			Content: buildUserPrompt(req),
		},
	}

	body := map[string]any{
		"model":       c.model,
		"messages":    messages,
		"temperature": 0,
	}

	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("序列化 OpenAI 请求失败: %w", err)
	}
	return encoded, nil
}

const systemPrompt = "" +
	"You translate trading instructions for the NEAR intents protocol into machine readable actions. " +
	"Always respond with a compact JSON object: " +
	`{"action": "swap"|"deposit"|"withdraw", "token_in": string, "amount_in": string, ` +
	`"token_out": string, "destination": string, "network": string, "thought": string}. ` +
	"Omit fields that do not apply. Amounts are human readable decimal strings. " +
	"Never invent token symbols that the instruction does not mention."

func buildUserPrompt(req llm.Request) string {
	var builder strings.Builder
	builder.WriteString("## 当前指令\n")
	builder.WriteString(strings.TrimSpace(req.Instruction))
	builder.WriteString("\n")

	if len(req.History) > 0 {
		builder.WriteString("\n## 历史兑换\n")
		for idx, entry := range req.History {
			builder.WriteString(fmt.Sprintf("[%d] %s %s -> %s | 终态:%s\n",
				idx+1,
				strings.TrimSpace(entry.AmountIn),
				strings.TrimSpace(entry.TokenIn),
				strings.TrimSpace(entry.TokenOut),
				strings.TrimSpace(entry.FinalState),
			))
			if idx >= 4 {
				break
			}
		}
	}

	if len(req.Knowledge) > 0 {
		builder.WriteString("\n## 资产知识\n")
		for idx, card := range req.Knowledge {
			builder.WriteString(fmt.Sprintf("[%d] %s: %s\n",
				idx+1,
				strings.TrimSpace(card.Title),
				truncate(card.Content),
			))
			if idx >= 4 {
				break
			}
		}
	}

	builder.WriteString("\n请解析上面的指令并只输出 JSON。")
	return builder.String()
}

func truncate(text string) string {
	text = strings.TrimSpace(text)
	if len([]rune(text)) > 80 {
		return string([]rune(text)[:80]) + "..."
	}
	return text
}
