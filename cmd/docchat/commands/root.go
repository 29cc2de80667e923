// Package commands 实现 docchat 的子命令。
package commands

import (
	"context"
	"fmt"
	"os"

	"docchat-go/internal/app"
	"docchat-go/internal/config"
	"docchat-go/pkg/log"

	"github.com/spf13/cobra"
)

var (
	configPath string
	ownerID    string
)

// DefaultConfigPath 返回默认的配置文件路径，可以用 DOCCHAT_CONFIG 覆盖。
func DefaultConfigPath() string {
	if p := os.Getenv("DOCCHAT_CONFIG"); p != "" {
		return p
	}
	return "./configs/config.yaml"
}

// NewRootCmd 创建根命令并注册全部子命令。
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "docchat",
		Short: "Operate a docchat document store from the command line",
		Long: `docchat ingests documents, answers questions over them and manages
a user's corpus using the same configuration as the HTTP server.

Examples:
  docchat ingest --owner alice handbook.pdf notes.txt
  docchat ask --owner alice "What is the refund policy?"
  docchat list --owner alice
  docchat token --user alice`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return log.Init(cfg.Log.Level, "console", "")
		},
	}

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", DefaultConfigPath(), "path to the YAML config file")
	cmd.PersistentFlags().StringVar(&ownerID, "owner", "", "owner id whose documents are used")

	cmd.AddCommand(
		NewIngestCmd(),
		NewAskCmd(),
		NewListCmd(),
		NewClearCmd(),
		NewTokenCmd(),
		NewEventsCmd(),
	)
	return cmd
}

// Execute 运行根命令。
func Execute() error {
	return NewRootCmd().Execute()
}

// loadConfig 读取配置；默认路径不存在时只使用默认值和环境变量。
func loadConfig() (*config.Config, error) {
	path := configPath
	if path == DefaultConfigPath() {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			path = ""
		}
	}
	return config.Load(path)
}

func requireOwnerFlag() error {
	if ownerID == "" {
		return fmt.Errorf("--owner is required")
	}
	return nil
}

// withApp 组装依赖后执行 fn，结束时释放资源。
func withApp(ctx context.Context, fn func(a *app.App) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := app.New(ctx, cfg, app.Overrides{})
	if err != nil {
		return fmt.Errorf("initializing: %w", err)
	}
	defer a.Close(context.Background())
	return fn(a)
}
