// Package defs 内建的文字指令
package defs

import (
	"context"
	"time"

	"jellybot/commands"
	"jellybot/execode"
	"jellybot/model"
)

const (
	Prefix = "JC"

	listLimit    = 20
	defaultRanks = 10
	rankCooldown = 5 * time.Second
)

// Deps 指令需要的存储
type Deps struct {
	Identity  model.IdentityStore
	Channels  model.ChannelStore
	Profiles  model.ProfileStore
	AutoReply model.AutoReplyStore
	Remote    model.RemoteStore
	Execode   *execode.Queue
	StartedAt time.Time
}

// Build 建立完整的指令树
func Build(d Deps) *commands.Node {
	root := commands.NewRoot(Prefix, "\n", " ")
	registerAutoReply(root, d)
	registerRemote(root, d)
	registerProfile(root, d)
	registerExecode(root, d)
	registerInfo(root, d)
	return root
}

func reply(text string) []model.HandledMessage {
	return []model.HandledMessage{model.TextMessage(text)}
}

// multiline 列表类输出不受行数限制
func multiline(text string) []model.HandledMessage {
	return []model.HandledMessage{{Type: model.ContentText, Content: text, BypassMultilineCheck: true}}
}

const needUser = "无法取得你的用户身份，请先在私讯中与我对话。"

// sourceChannel 远端控制时为实际收到消息的频道
func sourceChannel(e *model.MessageEvent) *model.Channel {
	if e.ChannelSource != nil {
		return e.ChannelSource
	}
	return e.Channel
}

type handlerFunc = func(ctx context.Context, e *model.MessageEvent, args []any) ([]model.HandledMessage, error)

// requireUser 没有用户身份时直接提示
func requireUser(fn handlerFunc) commands.Callable {
	return func(ctx context.Context, e *model.MessageEvent, args []any) ([]model.HandledMessage, error) {
		if e.User == nil {
			return reply(needUser), nil
		}
		return fn(ctx, e, args)
	}
}
