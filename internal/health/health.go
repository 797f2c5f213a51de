package health

import (
	"fmt"
	"net/http"
	"time"

	"github.com/heptiolabs/healthcheck"
	"go.uber.org/zap"

	"codemail/backend/internal/logger"
	"codemail/backend/internal/storage"
)

// Checker 健康检查器
type Checker struct {
	health healthcheck.Handler
	store  storage.Store
	logger *zap.Logger
}

// NewChecker 创建健康检查器
func NewChecker(store storage.Store, log *zap.Logger) *Checker {
	hc := &Checker{
		health: healthcheck.NewHandler(),
		store:  store,
		logger: logger.OrNop(log),
	}

	// 存储不可用时实例仍然存活，但不接收流量
	hc.health.AddReadinessCheck("storage", hc.checkStorage)
	hc.health.AddLivenessCheck("goroutines", healthcheck.GoroutineCountCheck(10000))

	return hc
}

// AddReadinessCheck 追加就绪检查，例如 SMTP 监听端口
func (hc *Checker) AddReadinessCheck(name string, check func() error) {
	hc.health.AddReadinessCheck(name, check)
}

func (hc *Checker) checkStorage() error {
	if err := hc.store.Health(); err != nil {
		hc.logger.Warn("storage health check failed", zap.Error(err))
		return err
	}
	return nil
}

// LiveHandler 存活检查
func (hc *Checker) LiveHandler() http.HandlerFunc {
	return hc.health.LiveEndpoint
}

// ReadyHandler 就绪检查
func (hc *Checker) ReadyHandler() http.HandlerFunc {
	return hc.health.ReadyEndpoint
}

// Status 返回各组件状态，用于 /health 汇总输出
func (hc *Checker) Status() (bool, map[string]string) {
	results := make(map[string]string)
	healthy := true

	if err := hc.store.Health(); err != nil {
		results["storage"] = fmt.Sprintf("ERROR: %v", err)
		healthy = false
	} else {
		results["storage"] = "OK"
	}

	results["timestamp"] = time.Now().UTC().Format(time.RFC3339)
	return healthy, results
}
