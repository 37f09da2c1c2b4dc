package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"NearIntents/internal/account"
	sdk "NearIntents/sdk/go/nearintents"
)

// defaultServer 是守护进程 API 的默认地址，可被 --server 或环境变量覆盖。
const defaultServer = "http://localhost:8080"

// requestTimeout 是单次 API 调用的超时。
const requestTimeout = 30 * time.Second

var serverURL string

func main() {
	root := &cobra.Command{
		Use:           "swapctl",
		Short:         "NEAR Intents 兑换守护进程的命令行客户端",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	initial := defaultServer
	if env := os.Getenv("NEARINTENTS_SERVER"); env != "" {
		initial = env
	}
	root.PersistentFlags().StringVar(&serverURL, "server", initial, "守护进程 API 地址")

	root.AddCommand(swapCmd())
	root.AddCommand(depositCmd())
	root.AddCommand(withdrawCmd())
	root.AddCommand(getCmd())
	root.AddCommand(listCmd())
	root.AddCommand(statsCmd())
	root.AddCommand(historyCmd())
	root.AddCommand(interpretCmd())
	root.AddCommand(credentialsCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		os.Exit(1)
	}
}

func newClient() (*sdk.Client, error) {
	return sdk.NewClient(serverURL, nil)
}

func apiContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), requestTimeout)
}

func swapCmd() *cobra.Command {
	var id string
	cmd := &cobra.Command{
		Use:   "swap <token_in> <amount_in> <token_out>",
		Short: "提交一笔兑换任务",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient()
			if err != nil {
				return err
			}
			ctx, cancel := apiContext()
			defer cancel()

			job, err := client.SubmitSwap(ctx, sdk.SwapSubmission{
				ID:       id,
				TokenIn:  args[0],
				AmountIn: args[1],
				TokenOut: args[2],
			})
			if err != nil {
				return err
			}
			fmt.Printf("任务已提交: %s (%s)\n", job.ID, job.Status)
			fmt.Printf("兑换: %s %s -> %s\n", job.AmountIn, job.TokenIn, job.TokenOut)
			return nil
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "自定义任务 ID，留空则由服务端生成")
	return cmd
}

func depositCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "deposit <token> <amount>",
		Short: "把代币充入 intents 合约",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient()
			if err != nil {
				return err
			}
			ctx, cancel := apiContext()
			defer cancel()

			outcome, err := client.Deposit(ctx, args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Printf("交易哈希: %s\n", outcome.TxHash)
			if outcome.Success {
				fmt.Println("充值已上链")
			} else {
				fmt.Println("交易执行失败，请检查链上结果")
			}
			return nil
		},
	}
}

func withdrawCmd() *cobra.Command {
	var network string
	cmd := &cobra.Command{
		Use:   "withdraw <token> <amount> <destination>",
		Short: "把代币提到外部地址",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient()
			if err != nil {
				return err
			}
			ctx, cancel := apiContext()
			defer cancel()

			outcome, err := client.Withdraw(ctx, args[0], args[1], args[2], network)
			if err != nil {
				return err
			}
			fmt.Printf("总线应答: %s\n", string(outcome.BusResponse))
			return nil
		},
	}
	cmd.Flags().StringVar(&network, "network", "near", "目标网络，如 near、eth")
	return cmd
}

func getCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "查看单个兑换任务",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient()
			if err != nil {
				return err
			}
			ctx, cancel := apiContext()
			defer cancel()

			job, err := client.GetSwap(ctx, args[0])
			if err != nil {
				var apiErr *sdk.APIError
				if errors.As(err, &apiErr) && apiErr.StatusCode == 404 {
					return fmt.Errorf("任务不存在: %s", args[0])
				}
				return err
			}
			printJob(job)
			return nil
		},
	}
}

func listCmd() *cobra.Command {
	var status string
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "列出兑换任务",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient()
			if err != nil {
				return err
			}
			ctx, cancel := apiContext()
			defer cancel()

			jobs, err := client.ListSwaps(ctx, status, limit)
			if err != nil {
				return err
			}
			if len(jobs) == 0 {
				fmt.Println("暂无任务")
				return nil
			}
			fmt.Printf("%-36s | %-9s | %-14s | %-14s | %s\n", "ID", "STATUS", "IN", "OUT", "UPDATED")
			fmt.Println(strings.Repeat("-", 100))
			for _, job := range jobs {
				out := job.TokenOut
				if job.Result != nil && job.Result.AmountOut != "" {
					out = job.Result.AmountOut + " " + job.TokenOut
				}
				fmt.Printf("%-36s | %-9s | %-14s | %-14s | %s\n",
					job.ID,
					job.Status,
					job.AmountIn+" "+job.TokenIn,
					out,
					time.Unix(job.UpdatedAt, 0).Format(time.RFC3339),
				)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "按状态过滤: pending/running/succeeded/failed")
	cmd.Flags().IntVar(&limit, "limit", 20, "返回数量上限")
	return cmd
}

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "查看任务统计",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient()
			if err != nil {
				return err
			}
			ctx, cancel := apiContext()
			defer cancel()

			stats, err := client.Stats(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("总计: %d\n", stats.Total)
			fmt.Printf("等待: %d\n", stats.Pending)
			fmt.Printf("执行中: %d\n", stats.Running)
			fmt.Printf("成功: %d\n", stats.Succeeded)
			fmt.Printf("失败: %d\n", stats.Failed)
			return nil
		},
	}
}

func historyCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "查看已结算的兑换历史",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient()
			if err != nil {
				return err
			}
			ctx, cancel := apiContext()
			defer cancel()

			records, err := client.History(ctx, limit)
			if err != nil {
				return err
			}
			if len(records) == 0 {
				fmt.Println("暂无历史记录")
				return nil
			}
			for _, rec := range records {
				fmt.Printf("%s  %s %s -> %s %s  [%s]\n",
					time.Unix(rec.CreatedAt, 0).Format("2006-01-02 15:04:05"),
					rec.AmountIn, rec.TokenIn,
					rec.AmountOut, rec.TokenOut,
					rec.FinalState,
				)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "返回数量上限")
	return cmd
}

func interpretCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "interpret <instruction>",
		Short: "把自然语言指令解析为结构化兑换动作",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient()
			if err != nil {
				return err
			}
			ctx, cancel := apiContext()
			defer cancel()

			action, err := client.Interpret(ctx, strings.Join(args, " "))
			if err != nil {
				return err
			}
			encoded, err := json.MarshalIndent(action, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(encoded))
			return nil
		},
	}
}

// credentialsCmd 在本地生成守护进程使用的凭据文件。私钥通过终端
// 静默输入，不落命令历史。
func credentialsCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "credentials <account_id>",
		Short: "写入账户凭据文件",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := readSecret("私钥 (ed25519:...): ")
			if err != nil {
				return err
			}

			cred := account.Credential{
				AccountID:  strings.TrimSpace(args[0]),
				PrivateKey: strings.TrimSpace(key),
			}
			encoded, err := json.MarshalIndent(cred, "", "  ")
			if err != nil {
				return err
			}
			// 写盘前先走一遍解析，把格式问题挡在本地。
			if _, err := account.ParseCredential(encoded); err != nil {
				return err
			}

			if err := os.WriteFile(output, append(encoded, '\n'), 0o600); err != nil {
				return fmt.Errorf("写入凭据文件失败: %w", err)
			}
			fmt.Printf("凭据已写入: %s\n", output)
			return nil
		},
	}
	cmd.Flags().StringVar(&output, "out", "credentials.json", "凭据文件路径")
	return cmd
}

func readSecret(prompt string) (string, error) {
	fmt.Print(prompt)
	raw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("读取私钥失败: %w", err)
	}
	return string(raw), nil
}

func printJob(job sdk.SwapJob) {
	fmt.Printf("ID:       %s\n", job.ID)
	fmt.Printf("账户:     %s\n", job.AccountID)
	fmt.Printf("兑换:     %s %s -> %s\n", job.AmountIn, job.TokenIn, job.TokenOut)
	fmt.Printf("状态:     %s (尝试 %d/%d)\n", job.Status, job.Attempts, job.MaxRetries)
	if job.LastError != "" {
		fmt.Printf("最近错误: [%s] %s\n", job.ErrorCode, job.LastError)
	}
	if job.Result != nil {
		fmt.Printf("结算:     %s %s (quote %s)\n", job.Result.AmountOut, job.TokenOut, job.Result.QuoteHash)
	}
	fmt.Printf("更新时间: %s\n", time.Unix(job.UpdatedAt, 0).Format(time.RFC3339))
}
