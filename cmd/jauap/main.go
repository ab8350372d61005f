package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/xxxsen/common/logger"
	"github.com/xxxsen/common/logutil"
	"github.com/xxxsen/common/webapi"
	"go.uber.org/zap"

	"github.com/jauapai/jauap/internal/ai"
	"github.com/jauapai/jauap/internal/chunker"
	"github.com/jauapai/jauap/internal/config"
	"github.com/jauapai/jauap/internal/db"
	"github.com/jauapai/jauap/internal/embedcache"
	"github.com/jauapai/jauap/internal/extract"
	"github.com/jauapai/jauap/internal/filestore"
	"github.com/jauapai/jauap/internal/handler"
	"github.com/jauapai/jauap/internal/index"
	"github.com/jauapai/jauap/internal/ingest"
	"github.com/jauapai/jauap/internal/job"
	"github.com/jauapai/jauap/internal/middleware"
	"github.com/jauapai/jauap/internal/repo"
	"github.com/jauapai/jauap/internal/schedule"
	"github.com/jauapai/jauap/internal/service"
)

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "jauap",
		Short: "jauap exam tutor backend",
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config.json")

	rootCmd.AddCommand(newServeCmd(&configPath))
	rootCmd.AddCommand(newIngestCmd(&configPath))
	rootCmd.AddCommand(newInitIndexCmd(&configPath))

	if err := rootCmd.Execute(); err != nil {
		logutil.GetLogger(context.Background()).Fatal("startup error", zap.Error(err))
	}
}

func setup(configPath string) (*config.Config, *sql.DB, error) {
	if configPath == "" {
		return nil, nil, fmt.Errorf("--config is required")
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
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

	conn, err := db.Open(cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.ApplyMigrations(conn); err != nil {
		return nil, nil, fmt.Errorf("migrations: %w", err)
	}
	return cfg, conn, nil
}

func openIndex(ctx context.Context, cfg *config.Config, conn *sql.DB) (index.Store, error) {
	return index.New(ctx, index.Config{
		Type:      cfg.Index.Type,
		DB:        conn,
		Table:     cfg.Index.Table,
		DenseDim:  cfg.Index.DenseDim,
		SparseDim: cfg.Index.SparseDim,
	})
}

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "run the chat API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, conn, err := setup(*configPath)
			if err != nil {
				return err
			}
			return runServer(cfg, conn)
		},
	}
}

func runServer(cfg *config.Config, conn *sql.DB) error {
	ctx := context.Background()
	logutil.GetLogger(ctx).Info(
		"starting server",
		zap.Int("port", cfg.Port),
		zap.String("index", cfg.Index.Type),
	)

	store, err := openIndex(ctx, cfg, conn)
	if err != nil {
		return fmt.Errorf("init index: %w", err)
	}

	dense, err := ai.NewDenseEmbedder(ctx, cfg.AI.Dense.Provider, cfg.AI.Dense.Data)
	if err != nil {
		return fmt.Errorf("init dense embedder: %w", err)
	}
	cacheSize := cfg.AI.QueryCacheSize
	if cacheSize <= 0 {
		cacheSize = 1024
	}
	cacheTTL := time.Duration(cfg.AI.QueryCacheTTLSeconds) * time.Second
	if cacheTTL <= 0 {
		cacheTTL = 10 * time.Minute
	}
	dense = embedcache.WrapLruCacheToDenseEmbedder(dense, cacheSize, cacheTTL)

	sparse, err := ai.NewSparseEncoder(ctx, cfg.AI.Sparse.Provider, cfg.AI.Sparse.Data)
	if err != nil {
		return fmt.Errorf("init sparse encoder: %w", err)
	}
	sparse = embedcache.WrapLruCacheToSparseEncoder(sparse, cacheSize, cacheTTL)
	var reranker ai.IReranker
	if cfg.AI.Rerank.Provider != "" {
		reranker, err = ai.NewReranker(ctx, cfg.AI.Rerank.Provider, cfg.AI.Rerank.Data)
		if err != nil {
			return fmt.Errorf("init reranker: %w", err)
		}
	}
	generator, err := ai.NewStreamGenerator(ctx, cfg.AI.Generator.Provider, cfg.AI.Generator.Data)
	if err != nil {
		return fmt.Errorf("init generator: %w", err)
	}

	rag := service.NewRAGService(dense, sparse, reranker, generator, store, service.RetrievalConfig{
		PrefetchLimit: cfg.Retrieval.PrefetchLimit,
		FusedLimit:    cfg.Retrieval.FusedLimit,
		RerankTopK:    cfg.Retrieval.RerankTopK,
	})
	runRepo := repo.NewIngestRunRepo(conn)
	cacheRepo := repo.NewEmbeddingCacheRepo(conn)

	deps := handler.RouterDeps{
		Chat:   handler.NewChatHandler(rag),
		Health: handler.NewHealthHandler(store),
		Ingest: handler.NewIngestHandler(runRepo),
	}

	engine, err := webapi.NewEngine(
		"/api/v1",
		fmt.Sprintf("0.0.0.0:%d", cfg.Port),
		webapi.WithRegister(func(group *gin.RouterGroup) {
			handler.RegisterRoutes(group, deps)
		}),
		webapi.WithExtraMiddlewares(
			middleware.RequestID(),
			middleware.CORS(cfg.CORSAllowlist),
			gzip.Gzip(gzip.DefaultCompression),
		),
	)
	if err != nil {
		return fmt.Errorf("init web engine: %w", err)
	}
	logutil.GetLogger(ctx).Info("http server listening", zap.String("addr", fmt.Sprintf("0.0.0.0:%d", cfg.Port)))

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	scheduler := schedule.NewCronScheduler()
	if spec := cfg.Jobs.EmbeddingCacheCleanupCron; spec != "" {
		cleanup := job.NewEmbeddingCacheCleanupJob(cacheRepo, cfg.Jobs.EmbeddingCacheKeepDays)
		if err := scheduler.AddJob(cleanup, spec); err != nil {
			return fmt.Errorf("schedule cleanup job: %w", err)
		}
	}
	scheduler.Start(runCtx)
	defer scheduler.Stop()

	go func() {
		if err := engine.Run(); err != nil && err != http.ErrServerClosed {
			logutil.GetLogger(ctx).Error("server error", zap.Error(err))
		}
	}()

	<-runCtx.Done()
	logutil.GetLogger(ctx).Info("server stopping...")
	return nil
}

func newIngestCmd(configPath *string) *cobra.Command {
	var pdfPath string
	var discipline string
	var grade string
	var publisher string

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "ingest a textbook PDF into the vector index",
		RunE: func(cmd *cobra.Command, args []string) error {
			if pdfPath == "" {
				return fmt.Errorf("--pdf is required")
			}
			if discipline == "" {
				return fmt.Errorf("--discipline is required")
			}
			cfg, conn, err := setup(*configPath)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			store, err := openIndex(ctx, cfg, conn)
			if err != nil {
				return fmt.Errorf("init index: %w", err)
			}
			dense, err := ai.NewDenseEmbedder(ctx, cfg.AI.Dense.Provider, cfg.AI.Dense.Data)
			if err != nil {
				return fmt.Errorf("init dense embedder: %w", err)
			}
			dense = embedcache.WrapDBCacheToDenseEmbedder(dense, repo.NewEmbeddingCacheRepo(conn))
			sparse, err := ai.NewSparseEncoder(ctx, cfg.AI.Sparse.Provider, cfg.AI.Sparse.Data)
			if err != nil {
				return fmt.Errorf("init sparse encoder: %w", err)
			}
			parser, err := extract.NewParser(cfg.Ingest.Parser.Provider, cfg.Ingest.Parser.Data)
			if err != nil {
				return fmt.Errorf("init parser: %w", err)
			}
			artifacts, err := filestore.New(cfg.ArtifactStore.Type, cfg.ArtifactStore.Data)
			if err != nil {
				return fmt.Errorf("init artifact store: %w", err)
			}

			extractor := extract.New(parser, extract.Options{
				BatchPages:   cfg.Ingest.BatchPages,
				MaxRetries:   cfg.Ingest.MaxRetries,
				RetryBackoff: time.Duration(cfg.Ingest.BackoffSeconds) * time.Second,
			})
			pipeline := ingest.New(
				extractor,
				chunker.New(cfg.Ingest.ChunkSize, cfg.Ingest.ChunkOverlap),
				dense,
				sparse,
				store,
				repo.NewIngestRunRepo(conn),
				artifacts,
				ingest.Options{
					EmbedBatchSize: cfg.Ingest.EmbedBatchSize,
					Concurrency:    cfg.Ingest.Concurrency,
					MaxRetries:     cfg.Ingest.MaxRetries,
					RetryBackoff:   time.Duration(cfg.Ingest.BackoffSeconds) * time.Second,
					ProgressDir:    cfg.Ingest.ProgressDir,
				},
			)
			run, err := pipeline.Run(ctx, ingest.Request{
				PDFPath:    pdfPath,
				Discipline: discipline,
				Grade:      grade,
				Publisher:  publisher,
			})
			if err != nil {
				return fmt.Errorf("ingest %s: %w", pdfPath, err)
			}
			logutil.GetLogger(ctx).Info("ingestion finished",
				zap.String("run_id", run.ID),
				zap.Int("pages", run.TotalPages),
				zap.Int("chunks", run.Chunks),
				zap.Int("points", run.Points),
			)
			return nil
		},
	}
	cmd.Flags().StringVar(&pdfPath, "pdf", "", "path to the textbook PDF")
	cmd.Flags().StringVar(&discipline, "discipline", "", "textbook discipline (used as the book title tag)")
	cmd.Flags().StringVar(&grade, "grade", "", "school grade")
	cmd.Flags().StringVar(&publisher, "publisher", "", "publisher")
	return cmd
}

func newInitIndexCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "init-index",
		Short: "create the vector collection and filter indexes",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, conn, err := setup(*configPath)
			if err != nil {
				return err
			}
			ctx := context.Background()
			store, err := openIndex(ctx, cfg, conn)
			if err != nil {
				return fmt.Errorf("init index: %w", err)
			}
			if err := store.EnsureFilterIndexes(ctx); err != nil {
				return fmt.Errorf("ensure filter indexes: %w", err)
			}
			logutil.GetLogger(ctx).Info("index initialized", zap.String("type", cfg.Index.Type))
			return nil
		},
	}
}
