package middleware

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"SafeCircle/pkg/cache"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	sredis "github.com/ulule/limiter/v3/drivers/store/redis"
)

// RateLimiterConfig 限流配置，速率使用 ulule 格式（"600-M"、"30-M"）
//
//	Rate:         默认速率
//	Routes:       按路由模板覆盖，如 {"/api/sos": "30-M"}
//	KeyHeader:    非空时以该请求头（如 X-Device-ID）区分调用方，缺省回退到客户端 IP
//	TrustedCIDRs: 不限流的来源网段，如内网探活
//	SkipPaths:    前缀匹配，不限流
type RateLimiterConfig struct {
	Rate         string
	Routes       map[string]string
	KeyHeader    string
	TrustedCIDRs []string
	SkipPaths    []string
}

type redisClientProvider interface {
	Client() *redis.Client
}

// StoreFromCache Redis 缓存时计数放在同一 Redis 中，多实例共享；否则使用内存
func StoreFromCache(c cache.Cache) (limiter.Store, error) {
	if p, ok := c.(redisClientProvider); ok {
		return sredis.NewStoreWithOptions(p.Client(), limiter.StoreOptions{Prefix: "safecircle:ratelimit"})
	}
	return memory.NewStore(), nil
}

// MetricsObserver 限流结果上报
type MetricsObserver interface {
	OnAllow(route string)
	OnDeny(route string)
}

type PrometheusObserver struct {
	allow *prometheus.CounterVec
	deny  *prometheus.CounterVec
}

// NewPrometheusObserver reg 为空时注册到默认 registry
func NewPrometheusObserver(reg prometheus.Registerer) *PrometheusObserver {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &PrometheusObserver{
		allow: f.NewCounterVec(prometheus.CounterOpts{
			Name: "rate_limit_allow_total",
			Help: "Allowed requests by rate limiter",
		}, []string{"route"}),
		deny: f.NewCounterVec(prometheus.CounterOpts{
			Name: "rate_limit_deny_total",
			Help: "Denied requests by rate limiter",
		}, []string{"route"}),
	}
}

func (p *PrometheusObserver) OnAllow(route string) { p.allow.WithLabelValues(route).Inc() }
func (p *PrometheusObserver) OnDeny(route string)  { p.deny.WithLabelValues(route).Inc() }

// RateLimiter 每种速率一个 limiter，共用同一个 store
type RateLimiter struct {
	cfg      RateLimiterConfig
	store    limiter.Store
	observer MetricsObserver
	trusted  []*net.IPNet

	mu     sync.Mutex
	byRate map[string]*limiter.Limiter
}

// NewRateLimiter store 为空时使用内存存储；无法解析的网段被忽略
func NewRateLimiter(cfg RateLimiterConfig, store limiter.Store) *RateLimiter {
	if store == nil {
		store = memory.NewStore()
	}
	if cfg.Rate == "" {
		cfg.Rate = "600-M"
	}
	l := &RateLimiter{cfg: cfg, store: store, byRate: make(map[string]*limiter.Limiter)}
	for _, cidr := range cfg.TrustedCIDRs {
		if _, n, err := net.ParseCIDR(strings.TrimSpace(cidr)); err == nil {
			l.trusted = append(l.trusted, n)
		}
	}
	return l
}

func (l *RateLimiter) WithObserver(observer MetricsObserver) *RateLimiter {
	l.observer = observer
	return l
}

func (l *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		if l.skipped(route) {
			c.Next()
			return
		}
		ip := strings.TrimPrefix(c.ClientIP(), "::ffff:")
		if l.isTrusted(ip) {
			c.Next()
			return
		}

		rate, key := l.cfg.Rate, l.callerKey(c, ip)
		if r := l.cfg.Routes[route]; r != "" {
			// 覆盖速率的路由单独计数
			rate, key = r, key+"|"+route
		}
		res, err := l.limiterFor(rate).Get(c, key)
		if err != nil {
			// 计数存储不可用时放行
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.FormatInt(res.Limit, 10))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(res.Remaining, 10))
		reset := int(time.Until(time.Unix(res.Reset, 0)).Seconds())
		if reset < 0 {
			reset = 0
		}
		c.Header("X-RateLimit-Reset", strconv.Itoa(reset))

		if res.Reached {
			c.Header("Retry-After", strconv.Itoa(reset))
			if l.observer != nil {
				l.observer.OnDeny(route)
			}
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Too Many Requests"})
			return
		}
		if l.observer != nil {
			l.observer.OnAllow(route)
		}
		c.Next()
	}
}

func (l *RateLimiter) skipped(route string) bool {
	for _, p := range l.cfg.SkipPaths {
		if p != "" && strings.HasPrefix(route, p) {
			return true
		}
	}
	return false
}

func (l *RateLimiter) isTrusted(ip string) bool {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return false
	}
	for _, n := range l.trusted {
		if n.Contains(parsed) {
			return true
		}
	}
	return false
}

func (l *RateLimiter) callerKey(c *gin.Context, ip string) string {
	if l.cfg.KeyHeader != "" {
		if v := strings.TrimSpace(c.GetHeader(l.cfg.KeyHeader)); v != "" {
			return "dev:" + v
		}
	}
	return "ip:" + ip
}

func (l *RateLimiter) limiterFor(rate string) *limiter.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	if lim, ok := l.byRate[rate]; ok {
		return lim
	}
	r, err := limiter.NewRateFromFormatted(rate)
	if err != nil {
		r = limiter.Rate{Period: time.Minute, Limit: 600}
	}
	lim := limiter.New(l.store, r)
	l.byRate[rate] = lim
	return lim
}

// ParseRouteRates 解析 "/api/sos=30-M,/api/location=120-M"，跳过格式错误的项
func ParseRouteRates(s string) map[string]string {
	out := make(map[string]string)
	for _, item := range strings.Split(s, ",") {
		route, rate, ok := strings.Cut(strings.TrimSpace(item), "=")
		route, rate = strings.TrimSpace(route), strings.TrimSpace(rate)
		if !ok || route == "" || rate == "" {
			continue
		}
		if _, err := limiter.NewRateFromFormatted(rate); err != nil {
			continue
		}
		out[route] = rate
	}
	return out
}
