package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"NearIntents/internal/account"
	"NearIntents/internal/agent"
	"NearIntents/internal/api"
	"NearIntents/internal/asset"
	"NearIntents/internal/chain"
	"NearIntents/internal/chain/provider"
	"NearIntents/internal/config"
	"NearIntents/internal/history"
	"NearIntents/internal/intents/solverbus"
	"NearIntents/internal/knowledge"
	"NearIntents/internal/llm"
	"NearIntents/internal/llm/openai"
	"NearIntents/internal/lock"
	"NearIntents/internal/observability/metrics"
	"NearIntents/internal/storage/mysql"
	redisstore "NearIntents/internal/storage/redis"
	"NearIntents/internal/swap"
	"NearIntents/pkg/logger"
)

// main 是换汇守护进程的入口。
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("nearintentsd 运行失败: %v", err)
	}
}

func run(ctx context.Context) error {
	configPath := os.Getenv("NEARINTENTS_CONFIG")
	if configPath == "" {
		configPath = filepath.Join("configs", "nearintents.json")
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if err := logger.Init(logger.Config{
		Level:       cfg.Logger.Level,
		Format:      cfg.Logger.Format,
		OutputPaths: cfg.Logger.OutputPaths,
		Audit: logger.AuditConfig{
			Enabled:    cfg.Logger.Audit.Enabled,
			Path:       cfg.Logger.Audit.Path,
			MaxSizeMB:  cfg.Logger.Audit.MaxSizeMB,
			MaxBackups: cfg.Logger.Audit.MaxBackups,
			MaxAgeDays: cfg.Logger.Audit.MaxAgeDays,
		},
	}); err != nil {
		return err
	}
	defer logger.Sync()

	dataDir := cfg.Runtime.DataDir
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return err
	}

	registry := asset.NewRegistry()

	chainRegistry, err := provider.NewRegistry(provider.Config{
		NetworkConfig:  cfg.Chain.NetworkConfig,
		RPCURL:         cfg.Chain.RPCURL,
		DefaultNetwork: cfg.Chain.DefaultNetwork,
		Timeout:        cfg.Chain.Timeout(),
	})
	if err != nil {
		return err
	}
	defer chainRegistry.Close()

	chainClient, err := chainRegistry.DefaultClient()
	if err != nil {
		return err
	}

	signer, err := loadSigner(cfg, chainClient)
	if err != nil {
		return err
	}

	bus := solverbus.NewClient(solverbus.Config{
		URL:     cfg.SolverBus.URL,
		Timeout: cfg.SolverBus.Timeout(),
	})

	locker, err := createLocker(cfg)
	if err != nil {
		return err
	}

	historyRepo, err := createHistory(ctx, cfg, dataDir)
	if err != nil {
		return err
	}
	if closer, ok := historyRepo.(interface{ Close() error }); ok {
		defer closer.Close()
	}

	orchestrator := agent.New(registry, signer, bus,
		agent.WithLocker(locker),
		agent.WithHistory(historyRepo),
	)

	swapStore, err := createSwapStore(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if swapStore != nil {
			_ = swapStore.Close()
		}
	}()

	swapQueue, err := createSwapQueue(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if swapQueue != nil {
			if err := swapQueue.Close(); err != nil {
				logger.L().Warn("关闭任务队列失败", slog.Any("error", err))
			}
		}
	}()

	swapService := swap.NewService(swapStore, swapQueue, signer.AccountID(), cfg.Storage.SwapStore.Retries)
	processor := swap.NewProcessor(orchestrator, swapStore, swapQueue, swapQueue,
		swap.WithWorkerCount(cfg.SwapQueue.Worker),
		swap.WithProcessorLogger(logger.Named("processor")),
	)

	processorCtx, processorCancel := context.WithCancel(ctx)
	defer processorCancel()

	go func() {
		if err := processor.Start(processorCtx); err != nil && !errors.Is(err, context.Canceled) {
			logger.L().Error("任务处理器异常退出", slog.Any("error", err))
		}
	}()

	if cfg.Server.MetricsAddress != "" {
		go func() {
			if err := metrics.StartServer(ctx, cfg.Server.MetricsAddress); err != nil && !errors.Is(err, context.Canceled) {
				logger.L().Error("指标服务异常退出", slog.Any("error", err))
			}
		}()
	}

	serverOpts := []api.ServerOption{
		api.WithHistory(historyRepo),
		api.WithTreasury(orchestrator),
	}
	if interpreter, err := createInterpreter(cfg); err != nil {
		return err
	} else if interpreter != nil {
		serverOpts = append(serverOpts, api.WithInterpreter(interpreter))
	}

	server := api.NewServer(cfg.Server.Address, swapService, serverOpts...)

	logger.L().Info("nearintentsd 已启动",
		slog.String("address", cfg.Server.Address),
		slog.String("account_id", signer.AccountID()),
	)

	if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func loadSigner(cfg *config.Config, client chain.Client) (*account.Signer, error) {
	path := strings.TrimSpace(cfg.Account.CredentialsFile)
	if path == "" {
		return nil, errors.New("未配置账户凭据文件 account.credentials_file")
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取账户凭据失败: %w", err)
	}
	cred, err := account.ParseCredential(content)
	if err != nil {
		return nil, err
	}
	return account.NewSigner(cred, client)
}

func createLocker(cfg *config.Config) (lock.Locker, error) {
	switch cfg.Storage.Lock.Driver {
	case "", "memory":
		return lock.NewMemory(), nil
	case "redis":
		return redisstore.NewLock(redisstore.Config{
			Address:  cfg.Storage.Lock.Address,
			Password: cfg.Storage.Lock.Password,
			DB:       cfg.Storage.Lock.DB,
		})
	default:
		return nil, fmt.Errorf("未知的锁驱动: %s", cfg.Storage.Lock.Driver)
	}
}

func createHistory(ctx context.Context, cfg *config.Config, dataDir string) (history.Repository, error) {
	switch cfg.Storage.History.Driver {
	case "", "memory":
		return history.NewMemory(dataDir)
	case "mysql":
		return mysql.NewSQLHistoryRepository(ctx, mysql.Config{
			DSN:             cfg.Storage.History.DSN,
			MaxOpenConns:    cfg.Storage.History.MaxOpenConns,
			MaxIdleConns:    cfg.Storage.History.MaxIdleConns,
			ConnMaxLifetime: time.Duration(cfg.Storage.History.ConnMaxLifetimeSeconds) * time.Second,
			ConnMaxIdleTime: time.Duration(cfg.Storage.History.ConnMaxIdleTimeSeconds) * time.Second,
		})
	default:
		return nil, fmt.Errorf("未知的历史存储驱动: %s", cfg.Storage.History.Driver)
	}
}

func createSwapStore(cfg *config.Config) (swap.Store, error) {
	switch cfg.Storage.SwapStore.Driver {
	case "", "memory":
		return swap.NewMemoryStore(), nil
	case "mysql":
		return swap.NewMySQLStore(cfg.Storage.SwapStore.DSN)
	default:
		return nil, fmt.Errorf("未知的任务存储驱动: %s", cfg.Storage.SwapStore.Driver)
	}
}

func createSwapQueue(cfg *config.Config) (swap.Queue, error) {
	switch cfg.SwapQueue.Driver {
	case "", "memory":
		return swap.NewMemoryQueue(1024), nil
	case "redis":
		return swap.NewRedisQueue(swap.RedisQueueConfig{
			Address:   cfg.SwapQueue.Redis.Address,
			Password:  cfg.SwapQueue.Redis.Password,
			DB:        cfg.SwapQueue.Redis.DB,
			Queue:     cfg.SwapQueue.Redis.Queue,
			BlockWait: time.Duration(cfg.SwapQueue.Redis.BlockWait) * time.Second,
		})
	case "rabbitmq":
		return swap.NewRabbitMQQueue(swap.RabbitMQConfig{
			URL:        cfg.SwapQueue.RabbitMQ.URL,
			Queue:      cfg.SwapQueue.RabbitMQ.Queue,
			Prefetch:   cfg.SwapQueue.RabbitMQ.Prefetch,
			Durable:    cfg.SwapQueue.RabbitMQ.Durable,
			AutoDelete: cfg.SwapQueue.RabbitMQ.AutoDelete,
		})
	default:
		return nil, fmt.Errorf("未知的队列驱动: %s", cfg.SwapQueue.Driver)
	}
}

func createInterpreter(cfg *config.Config) (llm.Client, error) {
	switch cfg.LLM.Provider {
	case "", "none":
		return nil, nil
	case "openai":
		apiKey := strings.TrimSpace(cfg.LLM.OpenAI.APIKey)
		if apiKey == "" && cfg.LLM.OpenAI.APIKeyEnv != "" {
			apiKey = strings.TrimSpace(os.Getenv(cfg.LLM.OpenAI.APIKeyEnv))
		}
		if apiKey == "" {
			// 没有可用的密钥时直接禁用指令解析，而不是阻止启动。
			return nil, nil
		}
		client, err := openai.NewClient(openai.Config{
			APIKey:  apiKey,
			BaseURL: cfg.LLM.OpenAI.BaseURL,
			Model:   cfg.LLM.OpenAI.Model,
			Timeout: cfg.LLM.OpenAI.Timeout(),
		})
		if err != nil {
			return nil, err
		}
		if cfg.Knowledge.Source == "" {
			return client, nil
		}
		kb, err := knowledge.LoadStaticProvider(cfg.Knowledge.Source, cfg.Knowledge.MaxResults)
		if err != nil {
			return nil, err
		}
		return &knowledgeAwareInterpreter{inner: client, kb: kb}, nil
	default:
		return nil, fmt.Errorf("未知的大模型 provider: %s", cfg.LLM.Provider)
	}
}

// knowledgeAwareInterpreter 在调用大模型前附加静态资产知识。
type knowledgeAwareInterpreter struct {
	inner llm.Client
	kb    knowledge.Provider
}

func (c *knowledgeAwareInterpreter) Interpret(ctx context.Context, req llm.Request) (*llm.Action, error) {
	if len(req.Knowledge) == 0 {
		for _, snippet := range c.kb.Query(req.Instruction, "") {
			req.Knowledge = append(req.Knowledge, llm.KnowledgeCard{
				Title:   snippet.Title,
				Content: snippet.Content,
			})
		}
	}
	return c.inner.Interpret(ctx, req)
}
