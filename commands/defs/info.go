package defs

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"time"

	"jellybot/commands"
	"jellybot/model"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
)

func registerInfo(root *commands.Node, d Deps) {
	root.Child("ID 信息", true, "INFO", "ID").Register(&commands.Function{
		Callable: func(ctx context.Context, e *model.MessageEvent, _ []any) ([]model.HandledMessage, error) {
			var b strings.Builder
			fmt.Fprintf(&b, "频道 ID: %s\n频道名称: %s\n频道类型: %s", e.Channel.ID, e.Channel.NameFor(e.UserID()), e.ChannelType)
			if e.RemoteActivated() {
				fmt.Fprintf(&b, "\n来源频道 ID: %s", e.ChannelSource.ID)
			}
			if e.User != nil {
				fmt.Fprintf(&b, "\n用户 ID: %s\n名称: %s", e.User.ID, d.Identity.DisplayName(ctx, e.User.ID, e.Channel.ID))
			} else {
				b.WriteString("\n用户 ID: (不明)")
			}
			return multiline(b.String()), nil
		},
		Feature:     model.FeatureInfo,
		Description: "显示用户与频道的 ID",
	})

	root.Child("系统信息", true, "SYS", "SYSTEM").Register(&commands.Function{
		Callable: func(ctx context.Context, _ *model.MessageEvent, _ []any) ([]model.HandledMessage, error) {
			return multiline(systemInfo(ctx, d)), nil
		},
		Feature:     model.FeatureSysInfo,
		Description: "显示机器人和系统的状态信息",
		Cooldown:    10 * time.Second,
	})

	root.Child("说明", true, "HELP", "H").Register(&commands.Function{
		Callable: func(context.Context, *model.MessageEvent, []any) ([]model.HandledMessage, error) {
			fns := root.Functions()
			lines := make([]string, 0, len(fns))
			for _, fn := range fns {
				lines = append(lines, fmt.Sprintf("%s  %s", fn.Usage(), fn.Description))
			}
			return []model.HandledMessage{{Type: model.ContentText, Content: strings.Join(lines, "\n"), ForceExtra: true}}, nil
		},
		Feature:     model.FeatureHelp,
		Description: "列出所有指令",
	})
}

func systemInfo(ctx context.Context, d Deps) string {
	cpuCount, _ := cpu.CountsWithContext(ctx, true)
	cpuPercent, _ := cpu.PercentWithContext(ctx, 0, false)
	vm, _ := mem.VirtualMemoryWithContext(ctx)
	hostInfo, _ := host.InfoWithContext(ctx)

	var b strings.Builder
	if hostInfo != nil {
		fmt.Fprintf(&b, "💻 OS 版本: %s %s\n", hostInfo.Platform, hostInfo.PlatformVersion)
		fmt.Fprintf(&b, "🔧 内核版本: %s\n", hostInfo.KernelVersion)
	}
	fmt.Fprintf(&b, "🐹 Go 版本: %s\n", runtime.Version())
	fmt.Fprintf(&b, "🔼 CPU 数量: %d\n", cpuCount)
	if len(cpuPercent) > 0 {
		fmt.Fprintf(&b, "🔥 CPU 使用率: %.1f%%\n", cpuPercent[0])
	}
	if vm != nil {
		fmt.Fprintf(&b, "🧠 系统内存: %.1f%% (%d MB / %d MB)\n", vm.UsedPercent, vm.Used/1024/1024, vm.Total/1024/1024)
	}
	fmt.Fprintf(&b, "🚀 Goroutines: %d\n", runtime.NumGoroutine())
	if !d.StartedAt.IsZero() {
		fmt.Fprintf(&b, "⏱️ 运行时间: %s\n", time.Since(d.StartedAt).Truncate(time.Second))
	}
	fmt.Fprintf(&b, "系统监控・今天%s", time.Now().Format("15:04"))
	return b.String()
}
