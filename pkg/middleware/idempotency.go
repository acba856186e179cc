package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"SafeCircle/pkg/cache"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type IdempotencyConfig struct {
	HeaderName string        // Idempotency-Key 的请求头名
	TTL        time.Duration // 成功响应的保留时长
	Prefix     string
	Logger     *zap.Logger
}

// ReplayedHeader 标记响应来自幂等记录而非本次执行
const ReplayedHeader = "Idempotent-Replayed"

const idempotencyPending = "pending"

// idempotentResult 首次成功执行的响应，重试时原样返回
type idempotentResult struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type"`
	Body        string `json:"body"`
}

// bodyRecorder 在写出响应的同时保留一份副本
type bodyRecorder struct {
	gin.ResponseWriter
	buf bytes.Buffer
}

func (w *bodyRecorder) Write(b []byte) (int, error) {
	w.buf.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *bodyRecorder) WriteString(s string) (int, error) {
	w.buf.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// IdempotencyMiddleware 仅在请求携带幂等键时生效。
// 成功响应按键保存 TTL，重试直接回放；失败响应释放键，允许用同一键重试。
// 同一键仍在处理中时返回 409。存储故障时放行，宁可重复也不丢失求救。
func IdempotencyMiddleware(store cache.Cache, cfg IdempotencyConfig) gin.HandlerFunc {
	if cfg.HeaderName == "" {
		cfg.HeaderName = "Idempotency-Key"
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 10 * time.Minute
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "idem:"
	}
	lg := cfg.Logger
	if lg == nil {
		lg = zap.NewNop()
	}
	return func(c *gin.Context) {
		key := strings.TrimSpace(c.GetHeader(cfg.HeaderName))
		if key == "" {
			c.Next()
			return
		}
		ctx := c.Request.Context()
		storeKey := cfg.Prefix + c.FullPath() + ":" + key

		fresh, err := store.SetNX(ctx, storeKey, idempotencyPending, cfg.TTL)
		if err != nil {
			lg.Warn("idempotency store unavailable", zap.Error(err))
			c.Next()
			return
		}
		if !fresh {
			if res, ok := loadResult(store, c, storeKey); ok {
				c.Header(ReplayedHeader, "true")
				c.Data(res.Status, res.ContentType, []byte(res.Body))
				c.Abort()
				return
			}
			c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "duplicate request"})
			return
		}

		rec := &bodyRecorder{ResponseWriter: c.Writer}
		c.Writer = rec
		c.Next()

		status := rec.Status()
		if status >= http.StatusBadRequest {
			if err := store.Delete(ctx, storeKey); err != nil {
				lg.Warn("idempotency key release failed", zap.String("key", key), zap.Error(err))
			}
			return
		}
		raw, err := json.Marshal(idempotentResult{
			Status:      status,
			ContentType: rec.Header().Get("Content-Type"),
			Body:        rec.buf.String(),
		})
		if err == nil {
			err = store.Set(ctx, storeKey, string(raw), cfg.TTL)
		}
		if err != nil {
			lg.Warn("idempotency result not stored", zap.String("key", key), zap.Error(err))
		}
	}
}

func loadResult(store cache.Cache, c *gin.Context, storeKey string) (idempotentResult, bool) {
	var res idempotentResult
	v, ok := store.Get(c.Request.Context(), storeKey)
	if !ok {
		return res, false
	}
	s, ok := v.(string)
	if !ok || s == idempotencyPending {
		return res, false
	}
	if err := json.Unmarshal([]byte(s), &res); err != nil || res.Status == 0 {
		return res, false
	}
	return res, true
}
