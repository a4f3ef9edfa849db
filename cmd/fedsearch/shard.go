package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kailas-cloud/fedsearch/internal/domain/docref"
	logpkg "github.com/kailas-cloud/fedsearch/internal/logger"
	searchrepo "github.com/kailas-cloud/fedsearch/internal/repository/search"
	shardrepo "github.com/kailas-cloud/fedsearch/internal/repository/shard"
	streamrepo "github.com/kailas-cloud/fedsearch/internal/repository/stream"
	ingestuc "github.com/kailas-cloud/fedsearch/internal/usecase/ingest"
)

var shardCmd = &cobra.Command{
	Use:   "shard",
	Short: "Manage shards",
}

var shardRemoveCmd = &cobra.Command{
	Use:   "remove",
	Short: "Remove a shard from the registry and drop its index",
	Long: `Remove a shard from the data source registry, then drop its index and
indexed events. Stream segments are kept.

Example:
  fedsearch shard remove --data-source 0b7b3c2e-7d43-4f36-9a51-3c1d8e2f4a60 --shard s1`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		dsID, _ := cmd.Flags().GetString("data-source")
		shardID, _ := cmd.Flags().GetString("shard")
		if dsID == "" || shardID == "" {
			return fmt.Errorf("--data-source and --shard are required")
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
		return svc.RemoveShard(ctx, docref.DocRef{Type: docref.TypeDataSource, UUID: dsID}, shardID)
	},
}

func init() {
	shardRemoveCmd.Flags().String("data-source", "", "data source uuid")
	shardRemoveCmd.Flags().String("shard", "", "shard id")
}
