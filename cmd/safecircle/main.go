package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	handlers "SafeCircle/internal/handler"
	"SafeCircle/internal/models"
	"SafeCircle/internal/service"
	"SafeCircle/pkg/cache"
	"SafeCircle/pkg/config"
	"SafeCircle/pkg/logger"
	"SafeCircle/pkg/metrics"
	"SafeCircle/pkg/middleware"
	"SafeCircle/pkg/notification"
	"SafeCircle/pkg/sse"
	"SafeCircle/pkg/util"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	// 1) 配置
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	// 2) 日志
	lg, err := logger.Init(cfg.Log, "safecircle")
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	// 3) 数据库与表结构，迁移失败直接退出
	db, err := util.InitDatabase(cfg.DB, lg)
	if err != nil {
		lg.Fatal("init database failed", zap.String("driver", cfg.DB.Driver), zap.Error(err))
	}
	if err := models.Migrate(db); err != nil {
		lg.Fatal("migrate failed", zap.Error(err))
	}

	// 4) 缓存、推送与指标
	c, err := cache.NewCache(cfg.Cache)
	if err != nil {
		lg.Fatal("init cache failed", zap.String("type", cfg.Cache.Type), zap.Error(err))
	}
	defer c.Close()

	sender, err := notification.NewSender(context.Background(), cfg.Push, lg.Named("push"))
	if err != nil {
		lg.Fatal("init push sender failed", zap.String("provider", cfg.Push.Provider), zap.Error(err))
	}
	// 指标关闭时 m 为 nil，各处记录均为空操作
	var m *metrics.Metrics
	if cfg.MetricsEnabled {
		m = metrics.NewMetrics(nil)
	}

	svc, err := service.New(db, c, sender, sse.NewHub(30*time.Second), m, lg, service.Options{
		DispatchSource:      cfg.DispatchSource,
		DispatchInterval:    cfg.DispatchInterval,
		DispatchTickTimeout: cfg.DispatchTickTimeout,
		SweepSchedule:       cfg.SweepSchedule,
		SweepTimeout:        cfg.SweepTimeout,
		StaleAfter:          cfg.SOSStaleAfter,
	})
	if err != nil {
		lg.Fatal("init service failed", zap.Error(err))
	}
	if err := svc.Start(context.Background()); err != nil {
		lg.Fatal("start background tasks failed", zap.Error(err))
	}

	// 5) Gin
	gin.SetMode(cfg.Mode)
	r := gin.New()
	r.Use(gin.Recovery(), middleware.AccessLogMiddleware(lg.Named("http")))
	handlers.NewHandlers(svc, c, m, lg, handlers.Options{
		APIPrefix: cfg.APIPrefix,
		RateLimit: middleware.RateLimiterConfig{
			Rate:         cfg.RateLimit,
			Routes:       cfg.RateLimitRoutes,
			KeyHeader:    cfg.RateLimitKeyHeader,
			TrustedCIDRs: cfg.RateLimitTrustedCIDRs,
		},
		IdempotencyTTL: cfg.IdempotencyTTL,
	}).Register(r)

	// 6) 优雅退出：先停 HTTP，再停后台任务，最后关库
	// SSE 长连接在 Shutdown 时随 BaseContext 一起取消
	baseCtx, cancelBase := context.WithCancel(context.Background())
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return baseCtx },
	}
	srv.RegisterOnShutdown(cancelBase)
	go func() {
		lg.Info("server listening", zap.String("addr", cfg.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			lg.Fatal("listen failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	lg.Info("shutting down ...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		lg.Error("server forced to shutdown", zap.Error(err))
	}
	svc.Stop()
	if err := util.CloseDatabase(db); err != nil {
		lg.Error("close database failed", zap.Error(err))
	}
}
