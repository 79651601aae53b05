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

	"github.com/pixelgate/pixelgate/internal/ai"
	"github.com/pixelgate/pixelgate/internal/blobstore"
	"github.com/pixelgate/pixelgate/internal/config"
	"github.com/pixelgate/pixelgate/internal/db"
	"github.com/pixelgate/pixelgate/internal/embedcache"
	"github.com/pixelgate/pixelgate/internal/handler"
	"github.com/pixelgate/pixelgate/internal/job"
	"github.com/pixelgate/pixelgate/internal/middleware"
	"github.com/pixelgate/pixelgate/internal/repo"
	"github.com/pixelgate/pixelgate/internal/schedule"
	"github.com/pixelgate/pixelgate/internal/service"
	"github.com/pixelgate/pixelgate/internal/similarity"
	"github.com/pixelgate/pixelgate/internal/upstream"
)

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "pixelgate",
		Short: "image generation gateway with a semantic response cache",
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "run pixelgate server",
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

			conn, err := db.Open(cfg.Database)
			if err != nil {
				return fmt.Errorf("open db: %w", err)
			}
			if err := db.ApplyMigrations(conn); err != nil {
				return fmt.Errorf("migrations: %w", err)
			}
			return runServer(cfg, conn)
		},
	}

	runCmd.Flags().StringVar(&configPath, "config", "", "path to config.json")
	rootCmd.AddCommand(runCmd)

	if err := rootCmd.Execute(); err != nil {
		logutil.GetLogger(context.Background()).Fatal("startup error", zap.Error(err))
	}
}

func runServer(cfg *config.Config, conn *sql.DB) error {
	logutil.GetLogger(context.Background()).Info(
		"starting server",
		zap.Int("port", cfg.Port),
		zap.String("blob_store", cfg.BlobStore.Type),
		zap.String("ai_provider", cfg.AI.Provider),
	)

	entryRepo := repo.NewEntryRepo(conn)
	vectorRepo := repo.NewVectorRepo(conn)

	blobs, err := blobstore.New(cfg.BlobStore)
	if err != nil {
		return fmt.Errorf("init blob store: %w", err)
	}

	providerArgs := cfg.AI.Data
	if providerArgs == nil {
		providerArgs = cfg.AI
	}
	provider, err := ai.NewProvider(cfg.AI.Provider, providerArgs)
	if err != nil {
		return fmt.Errorf("init ai provider: %w", err)
	}
	embedder := ai.NewEmbedder(provider, cfg.AI.Model)
	embedder = embedcache.WrapLruCacheToEmbedder(embedder, cfg.AI.CacheSize,
		time.Duration(cfg.AI.CacheTTLMinutes)*time.Minute)

	upstreamClient := upstream.NewClient(cfg.Upstream.BaseURL,
		upstream.WithAPIKey(cfg.Upstream.APIKey),
		upstream.WithTimeout(time.Duration(cfg.Upstream.Timeout)*time.Second),
	)

	policy := similarity.Policy{
		ShortThreshold: cfg.Cache.ShortThreshold,
		LongThreshold:  cfg.Cache.LongThreshold,
		LengthCutoff:   cfg.Cache.LengthCutoff,
	}
	cacheService := service.NewCacheService(entryRepo, vectorRepo, blobs, embedder, upstreamClient,
		service.WithPolicy(policy),
		service.WithTopK(cfg.Cache.TopK),
		service.WithDisabled(cfg.Cache.Disabled),
		service.WithEmbedTimeout(time.Duration(cfg.AI.Timeout)*time.Second),
	)
	modelsCache := service.NewModelsCache(upstreamClient.ListModels,
		time.Duration(cfg.Upstream.ModelsTTLMinutes)*time.Minute)

	deps := handler.RouterDeps{
		Image:  handler.NewImageHandler(cacheService),
		Models: handler.NewModelsHandler(modelsCache),
		Stats:  handler.NewStatsHandler(cacheService),
	}

	middlewares := []gin.HandlerFunc{
		middleware.CORS(cfg.CORSOrigins),
		gzip.Gzip(gzip.DefaultCompression),
	}
	if cfg.Cache.RateLimitMillis > 0 {
		middlewares = append(middlewares,
			middleware.RateLimit(time.Duration(cfg.Cache.RateLimitMillis)*time.Millisecond))
	}

	engine, err := webapi.NewEngine(
		"/api/v1",
		fmt.Sprintf("0.0.0.0:%d", cfg.Port),
		webapi.WithRegister(func(group *gin.RouterGroup) {
			handler.RegisterRoutes(group, deps)
		}),
		webapi.WithExtraMiddlewares(middlewares...),
	)
	if err != nil {
		return fmt.Errorf("init web engine: %w", err)
	}
	logutil.GetLogger(context.Background()).Info("http server listening", zap.String("addr", fmt.Sprintf("0.0.0.0:%d", cfg.Port)))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	scheduler := schedule.NewCronScheduler()
	if cfg.Cache.Eviction.Enabled {
		evictionJob := job.NewCacheEvictionJob(entryRepo, vectorRepo, blobs, cfg.Cache.Eviction.MaxAgeDays)
		if err := scheduler.AddJob(evictionJob, cfg.Cache.Eviction.Cron); err != nil {
			return fmt.Errorf("schedule eviction: %w", err)
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
