package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kailas-cloud/fedsearch/internal/config"
	logpkg "github.com/kailas-cloud/fedsearch/internal/logger"
)

var rootCmd = &cobra.Command{
	Use:           "fedsearch",
	Short:         "Federated search over sharded event streams",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "config file path (default: config/{ENV}.yaml)")
	rootCmd.PersistentFlags().String("env", "", "environment name (default: $ENV or local)")

	docstoreCmd.AddCommand(docstoreImportCmd)
	shardCmd.AddCommand(shardRemoveCmd)
	rootCmd.AddCommand(serveCmd, versionCmd, docstoreCmd, ingestCmd, shardCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig resolves the config from --config, or from --env / $ENV.
func loadConfig(cmd *cobra.Command) (config.Config, string, error) {
	env, _ := cmd.Flags().GetString("env")
	if env == "" {
		env = config.GetEnv()
	}
	path, _ := cmd.Flags().GetString("config")

	var (
		cfg config.Config
		err error
	)
	if path != "" {
		cfg, err = config.LoadFile(path)
	} else {
		cfg, err = config.Load(env)
	}
	if err != nil {
		return config.Config{}, "", fmt.Errorf("load config: %w", err)
	}
	return cfg, env, nil
}

func newLogger(env string, cfg config.Config) (*zap.Logger, error) {
	l, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}
	return l.With(zap.String("node", cfg.Node.Name)), nil
}
