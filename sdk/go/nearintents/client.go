package nearintents

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"time"
)

// DefaultHTTPTimeout defines the timeout used by clients created without a
// custom http.Client. It is intentionally short to avoid hanging network calls.
const DefaultHTTPTimeout = 15 * time.Second

// Client wraps the HTTP interactions with the swap daemon's REST API.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
}

// SwapSubmission represents the payload required to create a new swap job.
type SwapSubmission struct {
	ID       string            `json:"id,omitempty"`
	TokenIn  string            `json:"token_in"`
	AmountIn string            `json:"amount_in"`
	TokenOut string            `json:"token_out"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// SwapOutcome contains the settlement details of a finished swap.
type SwapOutcome struct {
	SessionID   string          `json:"session_id"`
	QuoteHash   string          `json:"quote_hash,omitempty"`
	AmountOut   string          `json:"amount_out,omitempty"`
	FinalState  string          `json:"final_state"`
	BusResponse json.RawMessage `json:"bus_response,omitempty"`
}

// SwapJob is the server side view of a submitted swap.
type SwapJob struct {
	ID         string            `json:"id"`
	AccountID  string            `json:"account_id"`
	TokenIn    string            `json:"token_in"`
	AmountIn   string            `json:"amount_in"`
	TokenOut   string            `json:"token_out"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	Status     string            `json:"status"`
	Attempts   int               `json:"attempts"`
	MaxRetries int               `json:"max_retries"`
	LastError  string            `json:"last_error,omitempty"`
	ErrorCode  string            `json:"error_code,omitempty"`
	Result     *SwapOutcome      `json:"result,omitempty"`
	CreatedAt  int64             `json:"created_at"`
	UpdatedAt  int64             `json:"updated_at"`
}

// JobStats summarises swap jobs by status.
type JobStats struct {
	Total           int   `json:"total"`
	Pending         int   `json:"pending"`
	Running         int   `json:"running"`
	Succeeded       int   `json:"succeeded"`
	Failed          int   `json:"failed"`
	OldestUpdatedAt int64 `json:"oldest_updated_at,omitempty"`
	NewestUpdatedAt int64 `json:"newest_updated_at,omitempty"`
}

// HistoryRecord is a settled swap as persisted by the daemon.
type HistoryRecord struct {
	SessionID   string `json:"session_id"`
	AccountID   string `json:"account_id"`
	TokenIn     string `json:"token_in"`
	AmountIn    string `json:"amount_in"`
	TokenOut    string `json:"token_out"`
	AmountOut   string `json:"amount_out"`
	QuoteHash   string `json:"quote_hash"`
	FinalState  string `json:"final_state"`
	BusResponse string `json:"bus_response"`
	CreatedAt   int64  `json:"created_at"`
}

// DepositOutcome reports the chain transaction created for a deposit.
type DepositOutcome struct {
	TxHash  string `json:"tx_hash"`
	Success bool   `json:"success"`
}

// WithdrawOutcome carries the raw solver bus acknowledgement for a withdrawal.
type WithdrawOutcome struct {
	BusResponse json.RawMessage `json:"bus_response"`
}

// Action is a structured operation parsed from a natural language instruction.
type Action struct {
	Kind        string `json:"action"`
	TokenIn     string `json:"token_in"`
	AmountIn    string `json:"amount_in"`
	TokenOut    string `json:"token_out,omitempty"`
	Destination string `json:"destination,omitempty"`
	Network     string `json:"network,omitempty"`
	Thought     string `json:"thought,omitempty"`
}

// APIError represents server side validation or internal errors.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("nearintents api error (%d): %s", e.StatusCode, e.Message)
}

// NewClient instantiates a client for the swap daemon API. When httpClient is
// nil, a default client with a sensible timeout is used.
func NewClient(rawURL string, httpClient *http.Client) (*Client, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	return &Client{baseURL: parsed, httpClient: httpClient}, nil
}

// SubmitSwap creates a new swap job.
func (c *Client) SubmitSwap(ctx context.Context, submission SwapSubmission) (SwapJob, error) {
	var job SwapJob
	if err := c.post(ctx, "/api/v1/swaps", submission, &job); err != nil {
		return SwapJob{}, err
	}
	return job, nil
}

// GetSwap fetches swap job details by identifier.
func (c *Client) GetSwap(ctx context.Context, id string) (SwapJob, error) {
	var job SwapJob
	if err := c.get(ctx, "/api/v1/swaps/"+url.PathEscape(id), &job); err != nil {
		return SwapJob{}, err
	}
	return job, nil
}

// ListSwaps returns up to limit recent swap jobs, optionally filtered by status.
func (c *Client) ListSwaps(ctx context.Context, status string, limit int) ([]SwapJob, error) {
	query := url.Values{}
	if status != "" {
		query.Set("status", status)
	}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	endpoint := "/api/v1/swaps"
	if encoded := query.Encode(); encoded != "" {
		endpoint += "?" + encoded
	}
	var jobs []SwapJob
	if err := c.get(ctx, endpoint, &jobs); err != nil {
		return nil, err
	}
	return jobs, nil
}

// Stats returns aggregate counters over all swap jobs.
func (c *Client) Stats(ctx context.Context) (JobStats, error) {
	var stats JobStats
	if err := c.get(ctx, "/api/v1/stats", &stats); err != nil {
		return JobStats{}, err
	}
	return stats, nil
}

// History returns the most recently settled swaps.
func (c *Client) History(ctx context.Context, limit int) ([]HistoryRecord, error) {
	endpoint := "/api/v1/history"
	if limit > 0 {
		endpoint += "?limit=" + strconv.Itoa(limit)
	}
	var records []HistoryRecord
	if err := c.get(ctx, endpoint, &records); err != nil {
		return nil, err
	}
	return records, nil
}

// Deposit moves tokens into the intents contract and returns the chain
// transaction outcome.
func (c *Client) Deposit(ctx context.Context, token, amount string) (DepositOutcome, error) {
	payload := map[string]string{"token": token, "amount": amount}
	var outcome DepositOutcome
	if err := c.post(ctx, "/api/v1/deposits", payload, &outcome); err != nil {
		return DepositOutcome{}, err
	}
	return outcome, nil
}

// Withdraw signs and publishes a withdrawal intent. The network parameter
// selects the destination chain; an empty value or "near" keeps the funds on
// NEAR.
func (c *Client) Withdraw(ctx context.Context, token, amount, destination, network string) (WithdrawOutcome, error) {
	payload := map[string]string{
		"token":       token,
		"amount":      amount,
		"destination": destination,
		"network":     network,
	}
	var outcome WithdrawOutcome
	if err := c.post(ctx, "/api/v1/withdrawals", payload, &outcome); err != nil {
		return WithdrawOutcome{}, err
	}
	return outcome, nil
}

// Interpret asks the daemon to parse a natural language instruction.
func (c *Client) Interpret(ctx context.Context, instruction string) (Action, error) {
	payload := map[string]string{"instruction": instruction}
	var action Action
	if err := c.post(ctx, "/api/v1/interpret", payload, &action); err != nil {
		return Action{}, err
	}
	return action, nil
}

func (c *Client) post(ctx context.Context, endpoint string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) get(ctx context.Context, endpoint string, out any) error {
	req, err := c.newRequest(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, body io.Reader) (*http.Request, error) {
	parsed, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint: %w", err)
	}
	rel := &url.URL{Path: path.Join(c.baseURL.Path, parsed.Path), RawQuery: parsed.RawQuery}
	u := c.baseURL.ResolveReference(rel)
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	return req, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		data, readErr := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if readErr != nil {
			return fmt.Errorf("read error response: %w", readErr)
		}
		return &APIError{
			StatusCode: resp.StatusCode,
			Message:    string(bytes.TrimSpace(data)),
		}
	}

	if out == nil {
		return nil
	}
	decoder := json.NewDecoder(resp.Body)
	if err := decoder.Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
