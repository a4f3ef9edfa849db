package main

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/fedsearch/internal/config"
	dbRedis "github.com/kailas-cloud/fedsearch/internal/db/redis"
	"github.com/kailas-cloud/fedsearch/internal/docstore"
)

// openRedis connects to the index store and waits until it answers.
func openRedis(ctx context.Context, cfg config.Config, logger *zap.Logger) (*dbRedis.Store, error) {
	store, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:    cfg.Database.Addrs,
		Password: cfg.Database.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("create redis store: %w", err)
	}
	if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
		store.Close()
		return nil, fmt.Errorf("redis not ready: %w", err)
	}
	logger.Info("Connected to redis", zap.Strings("addrs", cfg.Database.Addrs))
	return store, nil
}

func openDocStore(cfg config.Config, logger *zap.Logger) (*docstore.Store, error) {
	docs, err := docstore.Open(cfg.DocStore.Path)
	if err != nil {
		return nil, fmt.Errorf("open doc store: %w", err)
	}
	logger.Info("Opened doc store", zap.String("path", cfg.DocStore.Path))
	return docs, nil
}
