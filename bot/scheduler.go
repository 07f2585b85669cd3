package bot

import (
	"context"
	"sort"
	"sync"
	"time"

	"jellybot/model"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Cleaner 内存中的冷却、提醒锁等，返回清理数量
type Cleaner interface {
	Cleanup() int
}

// Scheduler 定期清理过期数据
type Scheduler struct {
	cron     *cron.Cron
	sweepers map[string]model.Sweeper
	cleaners map[string]Cleaner
	now      model.Clock

	startOnce sync.Once
	startErr  error
}

type SchedulerOption func(*Scheduler)

func WithSchedulerClock(now model.Clock) SchedulerOption {
	return func(s *Scheduler) { s.now = now }
}

func NewScheduler(sweepers map[string]model.Sweeper, cleaners map[string]Cleaner, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		cron:     cron.New(),
		sweepers: sweepers,
		cleaners: cleaners,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start 每分钟清理过期的数据库记录，每小时清理内存中的锁。重复调用只注册一次。
func (s *Scheduler) Start() error {
	s.startOnce.Do(func() { s.startErr = s.start() })
	return s.startErr
}

func (s *Scheduler) start() error {
	if _, err := s.cron.AddFunc("@every 1m", func() { s.Sweep(context.Background()) }); err != nil {
		return err
	}
	if _, err := s.cron.AddFunc("@hourly", s.CleanupMemory); err != nil {
		return err
	}
	s.cron.Start()
	zap.L().Info("Scheduler started", zap.Int("sweepers", len(s.sweepers)), zap.Int("cleaners", len(s.cleaners)))
	return nil
}

// Entries 已注册的定时任务数
func (s *Scheduler) Entries() int { return len(s.cron.Entries()) }

// Run 启动后等到 ctx 结束再停止，正在执行的清理会跑完。
func (s *Scheduler) Run(ctx context.Context) error {
	if err := s.Start(); err != nil {
		return err
	}
	<-ctx.Done()
	zap.L().Info("Stopping scheduler...")
	<-s.cron.Stop().Done()
	zap.L().Info("Scheduler stopped.")
	return nil
}

// Sweep 返回各表删除的行数
func (s *Scheduler) Sweep(ctx context.Context) map[string]int64 {
	now := s.now()
	removed := make(map[string]int64, len(s.sweepers))
	for _, name := range sortedKeys(s.sweepers) {
		n, err := s.sweepers[name].DeleteExpired(ctx, now)
		if err != nil {
			zap.L().Error("Failed to sweep expired rows", zap.String("table", name), zap.Error(err))
			continue
		}
		removed[name] = n
		if n > 0 {
			zap.L().Info("Swept expired rows", zap.String("table", name), zap.Int64("count", n))
		}
	}
	return removed
}

func (s *Scheduler) CleanupMemory() {
	for _, name := range sortedKeys(s.cleaners) {
		if n := s.cleaners[name].Cleanup(); n > 0 {
			zap.L().Debug("Cleaned up in-memory entries", zap.String("name", name), zap.Int("count", n))
		}
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
