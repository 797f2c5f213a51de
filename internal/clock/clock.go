// Package clock 提供可注入的时间源与标识符生成器。
package clock

import (
	"sync"
	"time"
)

// Clock 时间源
type Clock interface {
	Now() time.Time
}

// System 使用系统时间的时钟，返回 UTC 时间
type System struct{}

// Now 返回当前 UTC 时间
func (System) Now() time.Time {
	return time.Now().UTC()
}

// Mock 可手动推进的时钟，用于测试
type Mock struct {
	mu  sync.RWMutex
	now time.Time
}

// NewMock 创建固定在 t 的时钟
func NewMock(t time.Time) *Mock {
	return &Mock{now: t.UTC()}
}

// Now 返回当前设定的时间
func (m *Mock) Now() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.now
}

// Set 设置当前时间
func (m *Mock) Set(t time.Time) {
	m.mu.Lock()
	m.now = t.UTC()
	m.mu.Unlock()
}

// Advance 将时钟向前推进 d
func (m *Mock) Advance(d time.Duration) {
	m.mu.Lock()
	m.now = m.now.Add(d)
	m.mu.Unlock()
}

// Seconds 截断到整秒。令牌的 exp 声明只有秒级精度。
func Seconds(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}
