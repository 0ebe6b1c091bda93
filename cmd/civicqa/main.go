package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/xxxsen/common/logger"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/huduma-ai/civicqa/internal/ai"
	"github.com/huduma-ai/civicqa/internal/answer"
	"github.com/huduma-ai/civicqa/internal/config"
	"github.com/huduma-ai/civicqa/internal/handler"
	"github.com/huduma-ai/civicqa/internal/index"
	"github.com/huduma-ai/civicqa/internal/ingest"
	"github.com/huduma-ai/civicqa/internal/job"
	"github.com/huduma-ai/civicqa/internal/middleware"
	"github.com/huduma-ai/civicqa/internal/pipeline"
	"github.com/huduma-ai/civicqa/internal/schedule"
	"github.com/huduma-ai/civicqa/internal/search"
)

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "civicqa",
		Short: "civicqa answering backend",
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "run civicqa server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if configPath == "" {
				return fmt.Errorf("--config is required")
			}
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			logger.Init(
				cfg.LogConfig.File,
				cfg.LogConfig.Level,
				int(cfg.LogConfig.FileCount),
				int(cfg.LogConfig.FileSize),
				int(cfg.LogConfig.KeepDays),
				cfg.LogConfig.Console,
			)
			logutil.GetLogger(context.Background()).Info("config loaded", zap.String("config", configPath))
			return runServer(cfg)
		},
	}

	runCmd.Flags().StringVar(&configPath, "config", "", "path to config.json")
	rootCmd.AddCommand(runCmd)

	if err := rootCmd.Execute(); err != nil {
		logutil.GetLogger(context.Background()).Fatal("startup error", zap.Error(err))
	}
}

func runServer(cfg *config.Config) error {
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logutil.GetLogger(rootCtx).Info(
		"starting server",
		zap.Int("port", cfg.Port),
		zap.String("docs_root", cfg.DocsRoot),
		zap.String("snapshot_store", cfg.Snapshot.Type),
	)

	providerName := cfg.AI.Provider
	if providerName == "" {
		providerName = "gemini"
	}
	providerArgs := cfg.AI.Data
	if providerArgs == nil {
		providerArgs = map[string]interface{}{}
	}
	provider, err := ai.NewProvider(providerName, providerArgs)
	if err != nil {
		return fmt.Errorf("init ai provider: %w", err)
	}
	embedder := ai.WrapLRUCacheToEmbedder(
		ai.NewEmbedder(provider, cfg.AI.EmbedModel),
		cfg.AI.EmbedCacheSize,
		time.Duration(cfg.AI.EmbedCacheTTLMin)*time.Minute,
	)
	generator := ai.NewGenerator(provider, cfg.AI.GenModel)

	store, err := index.NewStore(cfg.Snapshot.Type, cfg.Snapshot.Data)
	if err != nil {
		return fmt.Errorf("init snapshot store: %w", err)
	}

	pipe := pipeline.New(
		cfg.DocsRoot,
		ingest.NewLoader(),
		index.NewBuilder(
			ingest.NewChunker(cfg.Index.ChunkMaxChars, cfg.Index.ChunkOverlapChars),
			embedder,
			cfg.Index.EmbedBatchSize,
		),
		search.NewRetriever(embedder, search.RetrieverConfig{
			Alpha:               cfg.Retrieval.Alpha,
			CandidateMultiplier: cfg.Retrieval.CandidateMultiplier,
			MinScore:            cfg.Retrieval.MinScore,
		}),
		search.NewReranker(search.RerankerConfig{
			Enabled: *cfg.Retrieval.RerankEnabled,
			Blend:   cfg.Retrieval.RerankBlend,
		}),
		answer.NewGenerator(generator, answer.Config{
			GroundingThreshold: cfg.Answer.GroundingThreshold,
			FallbackCeiling:    cfg.Answer.FallbackCeiling,
			MarginWeight:       cfg.Answer.MarginWeight,
			MaxCitations:       cfg.Answer.MaxCitations,
			Timeout:            time.Duration(cfg.Answer.TimeoutSeconds) * time.Second,
			CacheSize:          cfg.Answer.CacheSize,
			CacheTTL:           time.Duration(cfg.Answer.CacheTTLMinutes) * time.Minute,
		}),
		index.NewHolder(),
		store,
	)
	if err := pipe.Restore(rootCtx); err != nil {
		return err
	}

	if cfg.Reindex.CronSpec != "" {
		scheduler := schedule.NewCronScheduler()
		if err := scheduler.AddJob(job.NewReindexJob(pipe), cfg.Reindex.CronSpec); err != nil {
			return err
		}
		scheduler.Start(rootCtx)
		defer scheduler.Stop()
	}
	if cfg.Reindex.Watch {
		watcher, err := ingest.NewWatcher(
			cfg.DocsRoot,
			time.Duration(cfg.Reindex.WatchDebounceSecs)*time.Second,
			func(ctx context.Context) {
				if _, err := pipe.Reindex(ctx); err != nil {
					logutil.GetLogger(ctx).Warn("watch-triggered reindex failed", zap.Error(err))
				}
			},
		)
		if err != nil {
			return fmt.Errorf("init corpus watcher: %w", err)
		}
		go watcher.Start(rootCtx)
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(middleware.CORS(cfg.CORSOrigins))
	engine.Use(gzip.Gzip(gzip.DefaultCompression))
	handler.RegisterRoutes(engine.Group("/api/v1"), handler.RouterDeps{
		Pipeline: handler.NewPipelineHandler(pipe),
	})

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: engine,
	}
	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-rootCtx.Done():
	}
	logutil.GetLogger(context.Background()).Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
