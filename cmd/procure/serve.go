package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/bitfantasy/nimo-procure/internal/middleware"
	"github.com/bitfantasy/nimo-procure/internal/procure/handler"
	"github.com/bitfantasy/nimo-procure/internal/procure/repository"
	"github.com/bitfantasy/nimo-procure/internal/procure/service"
	"github.com/bitfantasy/nimo-procure/internal/procure/sse"
	"github.com/bitfantasy/nimo-procure/internal/procure/storage"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var autoMigrate bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&autoMigrate, "migrate", true, "run table migrations before serving")
}

func migrate(db *gorm.DB) error {
	if err := repository.AutoMigrate(db); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, zapLogger, err := bootstrap()
	if err != nil {
		return err
	}
	defer zapLogger.Sync()

	zapLogger.Info("Starting nimo-procure service",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
	)

	db, err := initDatabase(cfg.Database, zapLogger)
	if err != nil {
		zapLogger.Fatal("Failed to connect to database", zap.Error(err))
	}
	if autoMigrate {
		if err := migrate(db); err != nil {
			zapLogger.Warn("AutoMigrate procurement tables warning", zap.Error(err))
		}
	}

	// 编辑租约：启用 Redis 时跨实例生效，否则进程内
	var leases service.LeaseStore = service.NewMemoryLeaseStore()
	if cfg.Redis.Enabled {
		rdb := initRedis(cfg.Redis)
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			zapLogger.Warn("Redis unavailable, using in-process edit leases", zap.Error(err))
		} else {
			leases = service.NewRedisLeaseStore(rdb, "")
			defer rdb.Close()
		}
	}

	repos := repository.NewRepositories(db)
	hub := sse.NewHub(zapLogger.Named("sse"))
	comparisonSvc := service.NewComparisonService(repos, leases, hub, cfg.Procure, zapLogger.Named("comparison"))

	// 初始化MinIO归档，失败时仅关闭归档功能
	archive, err := storage.NewMinIOArchive(cfg.MinIO)
	if err != nil {
		zapLogger.Warn("MinIO unavailable, export archive disabled", zap.Error(err))
	} else if archive != nil {
		if err := archive.EnsureBucket(context.Background()); err != nil {
			zapLogger.Warn("MinIO bucket check failed, export archive disabled", zap.Error(err))
		} else {
			comparisonSvc.SetArchiver(archive)
			zapLogger.Info("Export archive enabled", zap.String("bucket", archive.Bucket()))
		}
	}

	handlers := handler.NewHandlers(
		service.NewRequisitionService(repos, zapLogger.Named("requisition")),
		service.NewCatalogService(repos, zapLogger.Named("catalog")),
		comparisonSvc,
		hub,
	)

	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.Logger(zapLogger))
	router.Use(middleware.CORS())
	router.Use(middleware.RequestID())
	// SSE 流不压缩
	router.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/api/v1/procure/events"})))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "version": Version})
	})
	handlers.RegisterRoutes(router.Group("/api/v1/procure", middleware.JWTAuth(cfg.JWT.Secret)))

	srv := &http.Server{
		Addr:        fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:     router,
		ReadTimeout: cfg.Server.ReadTimeout,
		// SSE 长连接不设写超时
		WriteTimeout: 0,
	}

	go func() {
		zapLogger.Info("Server starting", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLogger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// 优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zapLogger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		zapLogger.Error("Server forced to shutdown", zap.Error(err))
	}
	zapLogger.Info("Server exited")
	return nil
}
