package config

import (
	"log"
	"time"

	"SafeCircle/pkg/cache"
	"SafeCircle/pkg/logger"
	"SafeCircle/pkg/middleware"
	"SafeCircle/pkg/notification"
	"SafeCircle/pkg/util"
)

// Config 进程配置，全部来自环境变量（可由 .env 文件补充）
type Config struct {
	Env       string `env:"APP_ENV"`
	Addr      string `env:"ADDR"`
	Mode      string `env:"MODE"`
	APIPrefix string `env:"API_PREFIX"`

	DB    util.DBConfig
	Log   logger.LogConfig
	Cache cache.Config
	Push  notification.Config

	// DispatchSource selects the alert subject table: circle | locations.
	DispatchSource      string        `env:"DISPATCH_SOURCE"`
	DispatchInterval    time.Duration `env:"DISPATCH_INTERVAL"`
	DispatchTickTimeout time.Duration `env:"DISPATCH_TICK_TIMEOUT"`
	SweepSchedule       string        `env:"SWEEP_SCHEDULE"`
	SweepTimeout        time.Duration `env:"SWEEP_TIMEOUT"`
	SOSStaleAfter       time.Duration `env:"SOS_STALE_AFTER"`

	MetricsEnabled bool `env:"METRICS_ENABLED"`

	RateLimit             string            `env:"RATE_LIMIT"`
	RateLimitRoutes       map[string]string `env:"RATE_LIMIT_ROUTES"` // "/api/sos=30-M,/api/location=120-M"
	RateLimitKeyHeader    string            `env:"RATE_LIMIT_KEY_HEADER"`
	RateLimitTrustedCIDRs []string          `env:"RATE_LIMIT_TRUSTED_CIDRS"`
	IdempotencyTTL        time.Duration     `env:"IDEMPOTENCY_TTL"`
}

func Load() (*Config, error) {
	env := util.GetEnv("APP_ENV", "development")
	if err := util.LoadEnv(env); err != nil {
		log.Printf("Failed to load .env file: %v", err)
	}

	cacheCfg := cache.DefaultConfig()
	cacheCfg.Type = util.GetEnv("CACHE_TYPE", cacheCfg.Type)
	cacheCfg.Redis.Addr = util.GetEnv("REDIS_ADDR", cacheCfg.Redis.Addr)
	cacheCfg.Redis.Password = util.GetEnv("REDIS_PASSWORD")
	cacheCfg.Redis.DB = int(util.GetIntEnv("REDIS_DB", 0))
	cacheCfg.Local.MaxSize = int(util.GetIntEnv("LOCAL_CACHE_MAX_SIZE", int64(cacheCfg.Local.MaxSize)))

	cfg := &Config{
		Env:       env,
		Addr:      util.GetEnv("ADDR", ":3000"),
		Mode:      util.GetEnv("MODE", "release"),
		APIPrefix: util.GetEnv("API_PREFIX", "/api"),
		DB: util.DBConfig{
			Driver:       util.GetEnv("DB_DRIVER", "sqlite"),
			DSN:          util.GetEnv("DSN", "safecircle.db"),
			MaxOpenConns: int(util.GetIntEnv("DB_MAX_OPEN_CONNS", 10)),
			MaxIdleConns: int(util.GetIntEnv("DB_MAX_IDLE_CONNS", 5)),
			LogLevel:     util.GetEnv("DB_LOG_LEVEL", "warn"),
		},
		Log: logger.LogConfig{
			Level:      util.GetEnv("LOG_LEVEL", "info"),
			Format:     util.GetEnv("LOG_FORMAT", "json"),
			Filename:   util.GetEnv("LOG_FILENAME"),
			MaxSize:    int(util.GetIntEnv("LOG_MAX_SIZE", 100)),
			MaxAge:     int(util.GetIntEnv("LOG_MAX_AGE", 7)),
			MaxBackups: int(util.GetIntEnv("LOG_MAX_BACKUPS", 3)),
		},
		Cache: cacheCfg,
		Push: notification.Config{
			Provider:        util.GetEnv("PUSH_PROVIDER", "log"),
			CredentialsFile: util.GetEnv("FCM_CREDENTIALS_FILE"),
			WebhookURL:      util.GetEnv("PUSH_WEBHOOK_URL"),
			Timeout:         util.GetDurationEnv("PUSH_TIMEOUT", 3*time.Second),
		},
		DispatchSource:        util.GetEnv("DISPATCH_SOURCE", "circle"),
		DispatchInterval:      util.GetDurationEnv("DISPATCH_INTERVAL", 5*time.Second),
		DispatchTickTimeout:   util.GetDurationEnv("DISPATCH_TICK_TIMEOUT", 4*time.Second),
		SweepSchedule:         util.GetEnv("SWEEP_SCHEDULE", "@every 60s"),
		SweepTimeout:          util.GetDurationEnv("SWEEP_TIMEOUT", 30*time.Second),
		SOSStaleAfter:         util.GetDurationEnv("SOS_STALE_AFTER", 2*time.Minute),
		MetricsEnabled:        util.GetBoolEnv("METRICS_ENABLED", true),
		RateLimit:             util.GetEnv("RATE_LIMIT", "600-M"),
		RateLimitRoutes:       middleware.ParseRouteRates(util.GetEnv("RATE_LIMIT_ROUTES", "/api/sos=30-M")),
		RateLimitKeyHeader:    util.GetEnv("RATE_LIMIT_KEY_HEADER", "X-Device-ID"),
		RateLimitTrustedCIDRs: util.GetListEnv("RATE_LIMIT_TRUSTED_CIDRS"),
		IdempotencyTTL:        util.GetDurationEnv("IDEMPOTENCY_TTL", 10*time.Minute),
	}

	// 单次 tick 的耗时上限必须小于周期
	if cfg.DispatchTickTimeout >= cfg.DispatchInterval {
		cfg.DispatchTickTimeout = cfg.DispatchInterval * 4 / 5
	}
	return cfg, nil
}
