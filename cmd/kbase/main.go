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

	"github.com/starfire-ai/kbase/internal/ai"
	"github.com/starfire-ai/kbase/internal/blobstore"
	"github.com/starfire-ai/kbase/internal/config"
	"github.com/starfire-ai/kbase/internal/db"
	"github.com/starfire-ai/kbase/internal/handler"
	"github.com/starfire-ai/kbase/internal/job"
	"github.com/starfire-ai/kbase/internal/middleware"
	"github.com/starfire-ai/kbase/internal/repo"
	"github.com/starfire-ai/kbase/internal/schedule"
	"github.com/starfire-ai/kbase/internal/service"
)

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "kbase",
		Short: "knowledge base backend server",
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "run kbase server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, conn, err := setup(configPath)
			if err != nil {
				return err
			}
			return runServer(cfg, conn)
		},
	}
	runCmd.Flags().StringVar(&configPath, "config", "", "path to config.json")

	reindexCmd := &cobra.Command{
		Use:   "reindex",
		Short: "rebuild the vector index and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, conn, err := setup(configPath)
			if err != nil {
				return err
			}
			defer conn.Close()
			manager, err := newAIManager(cfg)
			if err != nil {
				return err
			}
			embeddings := repo.NewEmbeddingRepo(conn)
			reindexer := service.NewReindexService(manager, embeddings)
			return reindexer.Run(cmd.Context())
		},
	}
	reindexCmd.Flags().StringVar(&configPath, "config", "", "path to config.json")

	rootCmd.AddCommand(runCmd, reindexCmd)

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

func newAIManager(cfg *config.Config) (*ai.Manager, error) {
	provider, err := ai.NewProvider(cfg.AI.Provider, cfg.AI.Data)
	if err != nil {
		return nil, fmt.Errorf("init ai provider: %w", err)
	}
	return ai.NewManager(provider, ai.ManagerConfig{
		GenerateModel: cfg.AI.GenerateModel,
		EmbedModel:    cfg.AI.EmbedModel,
		Timeout:       cfg.AI.TimeoutSecs,
		MaxInputChars: cfg.AI.MaxInputChars,
	}), nil
}

func runServer(cfg *config.Config, conn *sql.DB) error {
	logutil.GetLogger(context.Background()).Info(
		"starting server",
		zap.Int("port", cfg.Port),
		zap.String("blob_store", cfg.BlobStore.Type),
		zap.String("ai_provider", cfg.AI.Provider),
	)

	uploadRepo := repo.NewUploadRepo(conn)
	conversationRepo := repo.NewConversationRepo(conn)
	visualizationRepo := repo.NewVisualizationRepo(conn)
	embeddingRepo := repo.NewEmbeddingRepo(conn)

	store, err := blobstore.New(cfg.BlobStore)
	if err != nil {
		return fmt.Errorf("init blob store: %w", err)
	}
	manager, err := newAIManager(cfg)
	if err != nil {
		return err
	}

	authService := service.NewAuthService(
		cfg.APIKeyHashes,
		cfg.TicketSecret,
		time.Duration(cfg.TicketTTLSecs)*time.Second,
	)
	retrievalService := service.NewRetrievalService(manager, embeddingRepo, cfg.Query.TopK)
	reindexService := service.NewReindexService(manager, embeddingRepo)
	ingestService := service.NewIngestService(store, uploadRepo, manager, reindexService, cfg.AI.CacheEntries)
	queryService := service.NewQueryService(conversationRepo, retrievalService, manager, service.QueryConfig{
		TopK:            cfg.Query.TopK,
		MaxContextChars: cfg.Query.MaxContextChars,
		MaxHistoryChars: cfg.Query.MaxHistoryChars,
		HistoryTurns:    cfg.Query.HistoryTurns,
	})
	visualizationService := service.NewVisualizationService(manager, retrievalService, uploadRepo, visualizationRepo, store)

	deps := handler.RouterDeps{
		Auth:           handler.NewAuthHandler(authService),
		AuthService:    authService,
		Ingest:         handler.NewIngestHandler(ingestService, cfg.Ingest.MaxFileSize),
		Visualizations: handler.NewVisualizationHandler(visualizationService),
		Status:         handler.NewStatusHandler(conn, uploadRepo, embeddingRepo, cfg.BlobStore.Type, manager.EmbeddingModelName()),
		WS:             handler.NewWSHandler(queryService, authService),
		GenerateWindow: 10 * time.Second,
	}

	engine, err := webapi.NewEngine(
		"/api/v1",
		fmt.Sprintf("0.0.0.0:%d", cfg.Port),
		webapi.WithRegister(func(group *gin.RouterGroup) {
			handler.RegisterRoutes(group, deps)
		}),
		webapi.WithExtraMiddlewares(
			middleware.RequestID(),
			middleware.CORS(cfg.CORSOrigins),
			gzip.Gzip(gzip.DefaultCompression),
		),
	)
	if err != nil {
		return fmt.Errorf("init web engine: %w", err)
	}
	logutil.GetLogger(context.Background()).Info("http server listening", zap.String("addr", fmt.Sprintf("0.0.0.0:%d", cfg.Port)))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	scheduler := schedule.NewCronScheduler()
	if err := scheduler.AddJob(job.NewReindexJob(reindexService), cfg.Jobs.ReindexSpec); err != nil {
		return err
	}
	if cfg.Jobs.RetentionSpec != "" {
		if err := scheduler.AddJob(job.NewRetentionJob(conversationRepo, cfg.Jobs.TurnRetentionDays), cfg.Jobs.RetentionSpec); err != nil {
			return err
		}
	}
	scheduler.Start(ctx)
	defer scheduler.Stop()

	go func() {
		if err := engine.Run(); err != nil && err != http.ErrServerClosed {
			logutil.GetLogger(context.Background()).Error("server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logutil.GetLogger(context.Background()).Info("server stopping...")
	return nil
}
