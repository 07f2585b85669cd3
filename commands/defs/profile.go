package defs

import (
	"context"
	"fmt"
	"strings"

	"jellybot/commands"
	"jellybot/model"
	"jellybot/utils"
)

const invalidColor = "颜色格式应为 #RRGGBB。"

var profileOutcomeText = map[model.ProfileOutcome]string{
	model.ProfileOK:                     "完成。",
	model.ProfileNotFound:               "找不到身份组。",
	model.ProfileInsufficientPermission: "权限不足。",
	model.ProfileLevelTooHigh:           "身份组等级高于你的等级。",
	model.ProfileIsDefault:              "默认身份组不能附加或卸除。",
	model.ProfileAlreadyAttached:        "已经拥有该身份组。",
	model.ProfileNotAttached:            "没有该身份组。",
	model.ProfileNameConflict:           "频道里已经有同名的身份组。",
	model.ProfileInvalidName:            "身份组名称不能为空。",
}

func outcomeText(o model.ProfileOutcome) string {
	if text, ok := profileOutcomeText[o]; ok {
		return text
	}
	return o.String()
}

func registerProfile(root *commands.Node, d Deps) {
	prf := root.Child("身份组", true, "PRF", "PROFILE")

	prf.Child("我的身份组", true, "LIST", "L").Register(&commands.Function{
		Callable: requireUser(func(ctx context.Context, e *model.MessageEvent, _ []any) ([]model.HandledMessage, error) {
			list, err := d.Profiles.ListForUser(ctx, e.Channel.ID, e.UserID())
			if err != nil {
				return nil, err
			}
			lines := make([]string, len(list))
			for i, p := range list {
				lines[i] = fmt.Sprintf("%s [%s] %s", p.Name, p.PermissionLevel, p.ID)
			}
			return multiline(strings.Join(lines, "\n")), nil
		}),
		Feature:     model.FeatureProfileList,
		Description: "列出你在此频道的身份组",
	})

	prf.Child("我的权限", true, "PERM", "P").Register(&commands.Function{
		Callable: requireUser(func(ctx context.Context, e *model.MessageEvent, _ []any) ([]model.HandledMessage, error) {
			perms, err := d.Profiles.GetPermissions(ctx, e.UserID(), e.Channel.ID)
			if err != nil {
				return nil, err
			}
			flags := perms.Sorted()
			names := make([]string, len(flags))
			for i, f := range flags {
				names[i] = f.String()
			}
			return multiline("权限: " + strings.Join(names, ", ")), nil
		}),
		Feature:     model.FeatureProfilePerm,
		Description: "列出你在此频道的权限",
	})

	attach := func(ctx context.Context, e *model.MessageEvent, profileID, targetID string) ([]model.HandledMessage, error) {
		outcome, err := d.Profiles.Attach(ctx, e.Channel.ID, e.UserID(), profileID, targetID)
		if err != nil {
			return nil, err
		}
		return reply(outcomeText(outcome)), nil
	}
	prf.Child("附加身份组", true, "ATT", "ATTACH").
		Register(&commands.Function{
			Callable: requireUser(func(ctx context.Context, e *model.MessageEvent, args []any) ([]model.HandledMessage, error) {
				return attach(ctx, e, args[0].(string), "")
			}),
			Args:        []commands.Arg{{Name: "profile_id", Description: "身份组 ID"}},
			Feature:     model.FeatureProfileAtt,
			Description: "为自己附加身份组",
		}).
		Register(&commands.Function{
			Callable: requireUser(func(ctx context.Context, e *model.MessageEvent, args []any) ([]model.HandledMessage, error) {
				return attach(ctx, e, args[0].(string), args[1].(string))
			}),
			Args: []commands.Arg{
				{Name: "profile_id", Description: "身份组 ID"},
				{Name: "user_id", Description: "成员 ID"},
			},
			Feature:     model.FeatureProfileAtt,
			Description: "为成员附加身份组",
		})

	prf.Child("卸除身份组", true, "DET", "DETACH").Register(&commands.Function{
		Callable: requireUser(func(ctx context.Context, e *model.MessageEvent, args []any) ([]model.HandledMessage, error) {
			outcome, err := d.Profiles.Detach(ctx, e.Channel.ID, e.UserID(), args[0].(string), args[1].(string))
			if err != nil {
				return nil, err
			}
			return reply(outcomeText(outcome)), nil
		}),
		Args: []commands.Arg{
			{Name: "profile_id", Description: "身份组 ID"},
			{Name: "user_id", Description: "成员 ID"},
		},
		Feature:     model.FeatureProfileDet,
		Description: "卸除成员的身份组",
	})

	create := func(ctx context.Context, e *model.MessageEvent, name, color string) ([]model.HandledMessage, error) {
		color, ok := utils.NormalizeColor(color)
		if !ok {
			return reply(invalidColor), nil
		}
		outcome, p, err := d.Profiles.RegisterNew(ctx, e.UserID(), model.ProfileAttrs{
			ChannelID: e.Channel.ID,
			Name:      name,
			Color:     color,
		})
		if err != nil {
			return nil, err
		}
		if outcome != model.ProfileOK {
			return reply(outcomeText(outcome)), nil
		}
		return reply(fmt.Sprintf("身份组 %s 已建立: %s", p.Name, p.ID)), nil
	}
	prf.Child("建立身份组", true, "NEW", "CREATE").
		Register(&commands.Function{
			Callable: requireUser(func(ctx context.Context, e *model.MessageEvent, args []any) ([]model.HandledMessage, error) {
				return create(ctx, e, args[0].(string), "")
			}),
			Args:        []commands.Arg{{Name: "name", Description: "身份组名称"}},
			Feature:     model.FeatureProfileNew,
			Description: "建立身份组",
		}).
		Register(&commands.Function{
			Callable: requireUser(func(ctx context.Context, e *model.MessageEvent, args []any) ([]model.HandledMessage, error) {
				return create(ctx, e, args[0].(string), args[1].(string))
			}),
			Args: []commands.Arg{
				{Name: "name", Description: "身份组名称"},
				{Name: "color", Description: "颜色 #RRGGBB"},
			},
			Feature:     model.FeatureProfileNew,
			Description: "建立带颜色的身份组",
		})

	prf.Child("删除身份组", true, "DEL", "DELETE").Register(&commands.Function{
		Callable: requireUser(func(ctx context.Context, e *model.MessageEvent, args []any) ([]model.HandledMessage, error) {
			outcome, err := d.Profiles.Delete(ctx, e.Channel.ID, args[0].(string), e.UserID())
			if err != nil {
				return nil, err
			}
			return reply(outcomeText(outcome)), nil
		}),
		Args:        []commands.Arg{{Name: "profile_id", Description: "身份组 ID"}},
		Feature:     model.FeatureProfileDel,
		Description: "删除身份组",
	})
}
