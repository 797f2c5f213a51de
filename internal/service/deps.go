package service

import (
	"time"

	"go.uber.org/zap"

	"codemail/backend/internal/clock"
	"codemail/backend/internal/logger"
	"codemail/backend/internal/monitoring"
)

// maxGenerateAttempts 随机码或地址冲突时的最大重试次数
const maxGenerateAttempts = 5

// Deps 各服务共享的基础依赖，零值字段使用默认实现
type Deps struct {
	Clock   clock.Clock
	IDs     clock.IDSource
	Metrics *monitoring.Metrics
	Logger  *zap.Logger
}

func (d Deps) withDefaults() Deps {
	if d.Clock == nil {
		d.Clock = clock.System{}
	}
	if d.IDs == nil {
		d.IDs = clock.UUIDSource{}
	}
	d.Logger = logger.OrNop(d.Logger)
	return d
}

// now 返回截断到秒的当前时间
func (d Deps) now() time.Time {
	return clock.Seconds(d.Clock.Now())
}
