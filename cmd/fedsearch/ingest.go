package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	logpkg "github.com/kailas-cloud/fedsearch/internal/logger"
	searchrepo "github.com/kailas-cloud/fedsearch/internal/repository/search"
	shardrepo "github.com/kailas-cloud/fedsearch/internal/repository/shard"
	streamrepo "github.com/kailas-cloud/fedsearch/internal/repository/stream"
	ingestuc "github.com/kailas-cloud/fedsearch/internal/usecase/ingest"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Store and index streams owned by this node",
	Long: `Store streams and index their events on shards owned by this node.
The input holds one JSON stream per line:

  {"dataSource":{"type":"DataSource","uuid":"..."},"shard":"s1","streamId":1,
   "header":"","footer":"","events":[{"segment":"...","values":{"UserId":"u1"}}]}

Example:
  fedsearch ingest -f streams.ndjson`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		file, _ := cmd.Flags().GetString("file")
		if file == "" {
			return fmt.Errorf("--file is required")
		}

		cfg, env, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		logger, err := newLogger(env, cfg)
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		f, err := os.Open(filepath.Clean(file))
		if err != nil {
			return fmt.Errorf("open %s: %w", file, err)
		}
		defer f.Close()
		batches, err := ingestuc.Decode(f)
		if err != nil {
			return err
		}

		ctx := logpkg.ContextWithLogger(cmd.Context(), logger)
		store, err := openRedis(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer store.Close()
		docs, err := openDocStore(cfg, logger)
		if err != nil {
			return err
		}
		defer docs.Close()

		prefix := cfg.Storage.KeyPrefix
		svc := ingestuc.New(cfg.Node.Name, docs,
			searchrepo.New(store, prefix),
			streamrepo.New(store, prefix),
			shardrepo.New(store, prefix),
		)
		st, err := svc.IngestAll(ctx, batches)
		logger.Info("Ingest finished", zap.Int("streams", st.Streams), zap.Int("events", st.Events))
		return err
	},
}

func init() {
	ingestCmd.Flags().StringP("file", "f", "", "NDJSON streams file")
}
