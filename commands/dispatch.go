package commands

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"jellybot/model"

	"github.com/spf13/cast"
	"go.uber.org/zap"
)

type cooldownKey struct {
	fn        *Function
	channelID string
}

// Dispatcher 解析并执行指令，负责作用域、冷却与参数转换
type Dispatcher struct {
	root  *Node
	stats model.StatsRecorder
	now   model.Clock

	mu       sync.Mutex
	lastCall map[cooldownKey]time.Time
}

type Option func(*Dispatcher)

func WithClock(now model.Clock) Option {
	return func(d *Dispatcher) { d.now = now }
}

func NewDispatcher(root *Node, stats model.StatsRecorder, opts ...Option) *Dispatcher {
	d := &Dispatcher{root: root, stats: stats, now: time.Now, lastCall: make(map[cooldownKey]time.Time)}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Dispatcher) Root() *Node { return d.root }

// Handle 不是指令时返回 nil, nil
func (d *Dispatcher) Handle(ctx context.Context, e *model.MessageEvent) ([]model.HandledMessage, error) {
	m := d.root.Parse(e.Content)
	if m == nil {
		return nil, nil
	}
	fn := m.Function
	channelID := ""
	if e.Channel != nil {
		channelID = e.Channel.ID
	}

	if !fn.InScope(e.ChannelType) && !e.RemoteActivated() {
		allowed := make([]string, len(fn.Scope))
		for i, s := range fn.Scope {
			allowed[i] = s.String()
		}
		return []model.HandledMessage{model.TextMessage(fmt.Sprintf(
			"此指令不能在 %s 频道使用。可用的频道类型: %s", e.ChannelType, strings.Join(allowed, ", ")))}, nil
	}

	args, err := castArgs(fn.Args, m.Args)
	if err != nil {
		return []model.HandledMessage{model.TextMessage(err.Error() + "\n用法: " + fn.Usage())}, nil
	}

	key := cooldownKey{fn: fn, channelID: channelID}
	prev, hadPrev, remaining := d.reserve(key, fn.Cooldown)
	if remaining > 0 {
		return []model.HandledMessage{model.TextMessage(fmt.Sprintf(
			"指令冷却中，请等待 %d 秒。", int(math.Ceil(remaining.Seconds()))))}, nil
	}

	if fn.Feature != model.FeatureUnknown && d.stats != nil && channelID != "" {
		if err := d.stats.RecordFeature(ctx, channelID, e.UserID(), fn.Feature); err != nil {
			zap.L().Warn("Failed to record feature usage", zap.String("feature", fn.Feature.String()), zap.Error(err))
		}
	}

	out, err := fn.Callable(ctx, e, args)
	if err != nil {
		d.release(key, fn.Cooldown, prev, hadPrev)
		return nil, fmt.Errorf("command %s failed: %w", fn.Usage(), err)
	}
	return out, nil
}

// reserve 检查并占用冷却，两者在同一个锁内完成；remaining > 0 表示仍在冷却
func (d *Dispatcher) reserve(key cooldownKey, cooldown time.Duration) (prev time.Time, hadPrev bool, remaining time.Duration) {
	if cooldown <= 0 {
		return time.Time{}, false, 0
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	now := d.now()
	prev, hadPrev = d.lastCall[key]
	if hadPrev {
		if remaining = cooldown - now.Sub(prev); remaining > 0 {
			return prev, hadPrev, remaining
		}
	}
	d.lastCall[key] = now
	return prev, hadPrev, 0
}

// release 执行失败时恢复占用前的状态
func (d *Dispatcher) release(key cooldownKey, cooldown time.Duration, prev time.Time, hadPrev bool) {
	if cooldown <= 0 {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if hadPrev {
		d.lastCall[key] = prev
	} else {
		delete(d.lastCall, key)
	}
}

// Cleanup 清掉已经过了冷却时间的记录
func (d *Dispatcher) Cleanup() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	now := d.now()
	removed := 0
	for key, last := range d.lastCall {
		if now.Sub(last) >= key.fn.Cooldown {
			delete(d.lastCall, key)
			removed++
		}
	}
	return removed
}

// ArgTypeError 参数无法转换
type ArgTypeError struct {
	Arg    Arg
	Actual string
}

func (e *ArgTypeError) Error() string {
	return fmt.Sprintf("参数 %s 类型错误: 应为 %s，实际为 %q", e.Arg.Name, e.Arg.Type, e.Actual)
}

func castArgs(defs []Arg, raw []string) ([]any, error) {
	out := make([]any, len(raw))
	for i, s := range raw {
		var (
			v   any
			err error
		)
		switch defs[i].Type {
		case ArgInt:
			// 只接受十进制，"010" 是 10
			v, err = strconv.Atoi(strings.TrimSpace(s))
		case ArgFloat:
			v, err = cast.ToFloat64E(strings.TrimSpace(s))
		case ArgBool:
			v, err = cast.ToBoolE(strings.TrimSpace(s))
		default:
			v = s
		}
		if err != nil {
			return nil, &ArgTypeError{Arg: defs[i], Actual: s}
		}
		out[i] = v
	}
	return out, nil
}
