package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"codemail/backend/internal/logger"
	"codemail/backend/internal/monitoring"
)

// unmatchedRoute 未匹配路由的指标标签，避免按原始路径产生无限基数
const unmatchedRoute = "unmatched"

// Monitor 记录 HTTP 指标并兜底 panic
type Monitor struct {
	metrics *monitoring.Metrics
	log     *zap.Logger
}

// NewMonitor 创建监控中间件，metrics 为 nil 时只做 panic 恢复
func NewMonitor(metrics *monitoring.Metrics, log *zap.Logger) *Monitor {
	return &Monitor{metrics: metrics, log: logger.OrNop(log)}
}

// HTTPMetrics 按路由模板统计请求数与耗时
func (m *Monitor) HTTPMetrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		if m.metrics == nil {
			return
		}
		route := c.FullPath()
		if route == "" {
			route = unmatchedRoute
		}
		status := c.Writer.Status()
		m.metrics.RecordHTTPRequest(c.Request.Method, route, strconv.Itoa(status), time.Since(start))
		if status >= http.StatusInternalServerError {
			m.metrics.RecordError("http_5xx", "http")
		}
	}
}

// Recovery 捕获 handler 中的 panic 并返回 500
func (m *Monitor) Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if m.metrics != nil {
				m.metrics.RecordPanic()
			}
			m.log.Error("panic recovered",
				zap.Any("panic", rec),
				zap.String("request_id", GetRequestID(c)),
				zap.String("method", c.Request.Method),
				zap.String("path", c.Request.URL.Path),
				zap.Stack("stack"),
			)
			abortWithError(c, http.StatusInternalServerError, "Internal server error")
		}()
		c.Next()
	}
}
