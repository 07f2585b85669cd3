package defs

import (
	"context"
	"fmt"

	"jellybot/commands"
	"jellybot/model"
)

func registerRemote(root *commands.Node, d Deps) {
	rmc := root.Child("远端控制", true, "RMC", "REMOTE")
	privateOnly := []model.ChannelType{model.ChannelTypePrivate}

	rmc.Child("启用远端控制", true, "ACT", "ON").Register(&commands.Function{
		Callable: requireUser(func(ctx context.Context, e *model.MessageEvent, args []any) ([]model.HandledMessage, error) {
			target, err := d.Channels.GetByID(ctx, args[0].(string))
			if err != nil {
				return nil, err
			}
			if target == nil {
				return reply("找不到频道 " + args[0].(string) + "。"), nil
			}
			b, err := d.Remote.Activate(ctx, e.UserID(), sourceChannel(e).ID, target.ID)
			if err != nil {
				return nil, err
			}
			return reply(fmt.Sprintf("已启用远端控制，目标频道: %s\n有效至 %s",
				target.NameFor(e.UserID()), b.ExpiresAt.Format("2006-01-02 15:04:05"))), nil
		}),
		Args:        []commands.Arg{{Name: "channel_id", Description: "目标频道 ID"}},
		Feature:     model.FeatureRMCActivate,
		Description: "把之后的消息当作在目标频道发送",
		Scope:       privateOnly,
	})

	rmc.Child("停用远端控制", true, "DEACT", "OFF").Register(&commands.Function{
		Callable: requireUser(func(ctx context.Context, e *model.MessageEvent, _ []any) ([]model.HandledMessage, error) {
			ok, err := d.Remote.Deactivate(ctx, e.UserID(), sourceChannel(e).ID)
			if err != nil {
				return nil, err
			}
			if !ok {
				return reply("远端控制未启用。"), nil
			}
			return reply("已停用远端控制。"), nil
		}),
		Feature:     model.FeatureRMCDeactive,
		Description: "停用远端控制",
		Scope:       privateOnly,
	})

	rmc.Child("远端控制状态", true, "STATUS", "S").Register(&commands.Function{
		Callable: requireUser(func(ctx context.Context, e *model.MessageEvent, _ []any) ([]model.HandledMessage, error) {
			b, err := d.Remote.GetCurrent(ctx, e.UserID(), sourceChannel(e).ID, false)
			if err != nil {
				return nil, err
			}
			if b == nil {
				return reply("远端控制未启用。"), nil
			}
			return reply(fmt.Sprintf("远端控制中，目标频道 ID: %s\n有效至 %s",
				b.TargetChannelID, b.ExpiresAt.Format("2006-01-02 15:04:05"))), nil
		}),
		Feature:     model.FeatureRMCStatus,
		Description: "查看远端控制状态",
		Scope:       privateOnly,
	})
}
