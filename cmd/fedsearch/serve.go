package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kailas-cloud/fedsearch/internal/cluster"
	"github.com/kailas-cloud/fedsearch/internal/config"
	"github.com/kailas-cloud/fedsearch/internal/coprocessor"
	"github.com/kailas-cloud/fedsearch/internal/extraction"
	"github.com/kailas-cloud/fedsearch/internal/metrics"
	"github.com/kailas-cloud/fedsearch/internal/node"
	noderepo "github.com/kailas-cloud/fedsearch/internal/repository/node"
	searchrepo "github.com/kailas-cloud/fedsearch/internal/repository/search"
	shardrepo "github.com/kailas-cloud/fedsearch/internal/repository/shard"
	streamrepo "github.com/kailas-cloud/fedsearch/internal/repository/stream"
	"github.com/kailas-cloud/fedsearch/internal/resultstore"
	chiTransport "github.com/kailas-cloud/fedsearch/internal/transport/chi"
	healthuc "github.com/kailas-cloud/fedsearch/internal/usecase/health"
	searchuc "github.com/kailas-cloud/fedsearch/internal/usecase/search"
	"github.com/kailas-cloud/fedsearch/internal/version"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the search API and the node executor",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, env, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		logger, err := newLogger(env, cfg)
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()
		return serve(cmd.Context(), cfg, env, logger)
	},
}

func serve(ctx context.Context, cfg config.Config, env string, logger *zap.Logger) error {
	logger.Info("Starting fedsearch",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.Int("cluster_nodes", len(cfg.Cluster.Nodes)),
	)

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

	metrics.RegisterSearchMetrics()

	// Repositories
	prefix := cfg.Storage.KeyPrefix
	index := searchrepo.New(store, prefix,
		searchrepo.WithPageSize(cfg.Search.PageSize),
		searchrepo.WithParallelism(cfg.Search.ShardConcurrency),
	)
	shards := shardrepo.New(store, prefix)
	streams := streamrepo.New(store, prefix)
	heartbeat := noderepo.New(store, prefix, time.Duration(cfg.Search.HeartbeatTTLSec)*time.Second)

	bg, stopBackground := context.WithCancel(context.WithoutCancel(ctx))
	defer stopBackground()
	go heartbeat.Run(bg, cfg.Node.Name, time.Duration(cfg.Search.HeartbeatSec)*time.Second, func(err error) {
		logger.Warn("Heartbeat failed", zap.Error(err))
	})

	// Node side
	pool, err := extraction.NewPool(cfg.Extraction.Workers, cfg.Extraction.Queue, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := pool.Release(time.Duration(cfg.HTTP.ShutdownSec) * time.Second); err != nil {
			logger.Warn("Extraction pool release timed out", zap.Error(err))
		}
	}()
	executor := node.NewExecutor(cfg.Node.Name, docs, index, streams, pool,
		node.WithSendFrequency(cfg.Search.SendFrequency()),
		node.WithLogger(logger),
	)

	// Cluster
	nodes := make([]cluster.Node, 0, len(cfg.Cluster.Nodes))
	for _, n := range cfg.Cluster.Nodes {
		nodes = append(nodes, cluster.Node{Name: n.Name, URL: n.URL, Enabled: n.IsEnabled()})
	}
	members := cluster.New(cfg.Node.Name, nodes, heartbeat)
	remote := cluster.NewHTTPClient(cfg.Auth.NodeKey, time.Duration(cfg.Search.TerminateTimeoutSec)*time.Second)
	router := cluster.NewRouter(cfg.Node.Name, executor, remote)
	terminator := cluster.NewTerminator(members, router)

	// Coordinator side
	results, err := resultstore.New(cfg.ResultStore.MaxEntries,
		time.Duration(cfg.ResultStore.IdleTimeoutSec)*time.Second,
		resultstore.WithLogger(logger),
	)
	if err != nil {
		return err
	}
	defer results.Purge()
	go results.Run(bg, time.Duration(cfg.ResultStore.SweepIntervalSec)*time.Second)

	dispatcher := searchuc.NewDispatcher(docs, shards, members, router, terminator, results, searchuc.Config{
		AwaitInterval: cfg.Search.AwaitInterval(),
		SendFrequency: cfg.Search.SendFrequency(),
		Limits: coprocessor.Limits{
			StoreSize:  cfg.Search.DefaultStoreSize(),
			MaxResults: cfg.Search.MaxResults,
		},
	})
	searchSvc := searchuc.New(dispatcher, results, docs)
	healthSvc := healthuc.New(cfg.Node.Name, store, docs, executor)

	// HTTP
	server := chiTransport.NewServer(searchSvc, executor, healthSvc, logger)
	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(chiTransport.BearerAuthMiddleware(cfg.Auth.APIKeys))
	r.Use(metrics.Middleware())
	server.Routes(r, cfg.Auth.NodeKey)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("Received shutdown signal")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}
	stopBackground()

	logger.Info("Server stopped gracefully", zap.Int("running_tasks", executor.Running()))
	return nil
}
