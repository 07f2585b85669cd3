package utils

import (
	"sync"
	"time"
)

// NotifyLock 每个键在 interval 内只放行一次，用于“缺少用户令牌”之类的一次性提醒。
type NotifyLock struct {
	mu       sync.Mutex
	last     map[string]time.Time
	interval time.Duration
	now      func() time.Time
}

func NewNotifyLock(interval time.Duration) *NotifyLock {
	return &NotifyLock{last: make(map[string]time.Time), interval: interval, now: time.Now}
}

// WithClock 替换时间源
func (l *NotifyLock) WithClock(now func() time.Time) *NotifyLock {
	l.now = now
	return l
}

// CheckAndSet 未锁定时设置锁并返回 true，锁定中返回 false。
func (l *NotifyLock) CheckAndSet(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if last, ok := l.last[key]; ok && now.Sub(last) < l.interval {
		return false
	}
	l.last[key] = now
	return true
}

// Cleanup 清掉已经过期的锁，返回清理数量。
func (l *NotifyLock) Cleanup() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	removed := 0
	for key, last := range l.last {
		if now.Sub(last) >= l.interval {
			delete(l.last, key)
			removed++
		}
	}
	return removed
}
