package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"NearIntents/internal/asset"
	"NearIntents/internal/chain"
	xerrors "NearIntents/internal/errors"
	"NearIntents/internal/history"
	"NearIntents/internal/intents/solverbus"
	"NearIntents/internal/llm"
	"NearIntents/internal/observability/metrics"
	"NearIntents/internal/swap"
)

// Treasury 是同步的资金操作能力，由编排器实现。
type Treasury interface {
	Deposit(ctx context.Context, token, amount string) (chain.TxOutcome, error)
	Withdraw(ctx context.Context, token, amount, destination, network string) (*solverbus.PublishResult, error)
}

// Server 负责暴露 REST 接口，供外部提交与查询换汇任务。
type Server struct {
	addr        string
	swaps       *swap.Service
	treasury    Treasury
	history     history.Repository
	interpreter llm.Client
}

// ServerOption 定义可选的服务配置。
type ServerOption func(*Server)

// WithHistory 启用 /api/v1/history 端点。
func WithHistory(repo history.Repository) ServerOption {
	return func(s *Server) {
		s.history = repo
	}
}

// WithTreasury 启用 /api/v1/deposits 与 /api/v1/withdrawals 端点。
func WithTreasury(t Treasury) ServerOption {
	return func(s *Server) {
		s.treasury = t
	}
}

// WithInterpreter 启用 /api/v1/interpret 端点。
func WithInterpreter(client llm.Client) ServerOption {
	return func(s *Server) {
		s.interpreter = client
	}
}

// NewServer 构造 API 服务实例。
func NewServer(addr string, swaps *swap.Service, opts ...ServerOption) *Server {
	s := &Server{addr: addr, swaps: swaps}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Start 启动 HTTP 服务，直到上下文取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle("/api/v1/swaps", instrument("swaps", http.HandlerFunc(s.handleSwaps)))
	mux.Handle("/api/v1/swaps/", instrument("swap_detail", http.HandlerFunc(s.handleSwapDetail)))
	mux.Handle("/api/v1/deposits", instrument("deposits", http.HandlerFunc(s.handleDeposit)))
	mux.Handle("/api/v1/withdrawals", instrument("withdrawals", http.HandlerFunc(s.handleWithdraw)))
	mux.Handle("/api/v1/stats", instrument("stats", http.HandlerFunc(s.handleStats)))
	mux.Handle("/api/v1/history", instrument("history", http.HandlerFunc(s.handleHistory)))
	mux.Handle("/api/v1/interpret", instrument("interpret", http.HandlerFunc(s.handleInterpret)))

	server := &http.Server{
		Addr:              s.addr,
		Handler:           withContext(ctx, mux),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleSwaps(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleCreateSwap(w, r)
	case http.MethodGet:
		s.handleListSwaps(w, r)
	default:
		http.Error(w, "仅支持 GET/POST", http.StatusMethodNotAllowed)
	}
}

// handleCreateSwap 接受换汇请求并异步入队，返回 202 与任务快照。
func (s *Server) handleCreateSwap(w http.ResponseWriter, r *http.Request) {
	if s.swaps == nil {
		http.Error(w, "换汇服务未初始化", http.StatusServiceUnavailable)
		return
	}

	var req swap.SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "请求体解析失败", http.StatusBadRequest)
		return
	}

	job, err := s.swaps.Submit(r.Context(), req)
	if err != nil {
		if xerrors.CodeOf(err) == swap.CodeJobValidation {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(job)
}

func (s *Server) handleListSwaps(w http.ResponseWriter, r *http.Request) {
	if s.swaps == nil {
		http.Error(w, "换汇服务未初始化", http.StatusServiceUnavailable)
		return
	}

	opts := []swap.ListOption{swap.WithLimit(parseLimit(r, 20))}
	if status := strings.TrimSpace(r.URL.Query().Get("status")); status != "" {
		if !swap.IsValidStatus(swap.Status(status)) {
			http.Error(w, "未知的任务状态: "+status, http.StatusBadRequest)
			return
		}
		opts = append(opts, swap.WithStatuses(swap.Status(status)))
	}
	if account := strings.TrimSpace(r.URL.Query().Get("account")); account != "" {
		opts = append(opts, swap.WithAccountID(account))
	}

	jobs, err := s.swaps.List(r.Context(), opts...)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(jobs)
}

// handleSwapDetail 按任务标识返回单条任务。
func (s *Server) handleSwapDetail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "仅支持 GET", http.StatusMethodNotAllowed)
		return
	}
	if s.swaps == nil {
		http.Error(w, "换汇服务未初始化", http.StatusServiceUnavailable)
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/api/v1/swaps/")
	if id == "" || strings.Contains(id, "/") {
		http.Error(w, "缺少任务标识", http.StatusBadRequest)
		return
	}

	job, err := s.swaps.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, swap.ErrJobNotFound) {
			http.Error(w, "任务不存在", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(job)
}

// handleDeposit 同步把代币充进 intents 合约，返回链上交易结果。
func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "仅支持 POST", http.StatusMethodNotAllowed)
		return
	}
	if s.treasury == nil {
		http.Error(w, "资金操作未启用", http.StatusServiceUnavailable)
		return
	}

	var req struct {
		Token  string `json:"token"`
		Amount string `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "请求体解析失败", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Token) == "" || strings.TrimSpace(req.Amount) == "" {
		http.Error(w, "token 与 amount 不能为空", http.StatusBadRequest)
		return
	}

	outcome, err := s.treasury.Deposit(r.Context(), req.Token, req.Amount)
	if err != nil {
		http.Error(w, err.Error(), treasuryStatus(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"tx_hash": outcome.Hash,
		"success": outcome.Succeeded(),
	})
}

// handleWithdraw 签名并发布一条提币意图。
func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "仅支持 POST", http.StatusMethodNotAllowed)
		return
	}
	if s.treasury == nil {
		http.Error(w, "资金操作未启用", http.StatusServiceUnavailable)
		return
	}

	var req struct {
		Token       string `json:"token"`
		Amount      string `json:"amount"`
		Destination string `json:"destination"`
		Network     string `json:"network"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "请求体解析失败", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Token) == "" || strings.TrimSpace(req.Amount) == "" ||
		strings.TrimSpace(req.Destination) == "" {
		http.Error(w, "token、amount 与 destination 不能为空", http.StatusBadRequest)
		return
	}

	result, err := s.treasury.Withdraw(r.Context(), req.Token, req.Amount, req.Destination, req.Network)
	if err != nil {
		http.Error(w, err.Error(), treasuryStatus(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"bus_response": json.RawMessage(result.Raw),
	})
}

// treasuryStatus 把资金操作错误映射为 HTTP 状态：参数类问题归 400，
// 其余视作下游失败。
func treasuryStatus(err error) int {
	switch xerrors.CodeOf(err) {
	case xerrors.CodeInvalidArgument, asset.CodeUnknownAsset:
		return http.StatusBadRequest
	default:
		return http.StatusBadGateway
	}
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "仅支持 GET", http.StatusMethodNotAllowed)
		return
	}
	if s.swaps == nil {
		http.Error(w, "换汇服务未初始化", http.StatusServiceUnavailable)
		return
	}

	stats, err := s.swaps.Stats(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(stats)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "仅支持 GET", http.StatusMethodNotAllowed)
		return
	}
	if s.history == nil {
		http.Error(w, "历史仓库未启用", http.StatusServiceUnavailable)
		return
	}

	records, err := s.history.ListLatest(r.Context(), parseLimit(r, 20))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(records)
}

// handleInterpret 把自然语言指令交给大模型解析为结构化操作。
func (s *Server) handleInterpret(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "仅支持 POST", http.StatusMethodNotAllowed)
		return
	}
	if s.interpreter == nil {
		http.Error(w, "指令解析未启用", http.StatusServiceUnavailable)
		return
	}

	var req struct {
		Instruction string `json:"instruction"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "请求体解析失败", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Instruction) == "" {
		http.Error(w, "instruction 不能为空", http.StatusBadRequest)
		return
	}

	action, err := s.interpreter.Interpret(r.Context(), llm.Request{Instruction: req.Instruction})
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(action)
}

func parseLimit(r *http.Request, fallback int) int {
	limit := fallback
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	return limit
}

// withContext 确保请求处理能够感知根上下文取消。
func withContext(ctx context.Context, handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-ctx.Done():
			http.Error(w, "服务已关闭", http.StatusServiceUnavailable)
			return
		default:
		}
		handler.ServeHTTP(w, r)
	})
}

// instrument 为每个端点记录请求数、错误率与时延指标。
func instrument(name string, handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		handler.ServeHTTP(recorder, r)
		metrics.ObserveHTTPRequest(name, r.Method, recorder.status, time.Since(start))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
