package defs

import (
	"context"
	"fmt"
	"strings"

	"jellybot/commands"
	"jellybot/model"
)

var addOutcomeText = map[model.AddOutcome]string{
	model.AddInserted:               "已新增自动回复。",
	model.AddSuperseded:             "已覆盖原本的自动回复。",
	model.AddPinConflict:            "原本的自动回复已置顶，新的回复也必须置顶。",
	model.AddInsufficientPermission: "权限不足，无法修改置顶的自动回复。",
	model.AddInvalidKeyword:         "关键字无效。",
	model.AddInvalidResponse:        "回复内容无效。",
	model.AddFieldError:             "参数错误。",
}

func registerAutoReply(root *commands.Node, d Deps) {
	ar := root.Child("自动回复", true, "AR", "AUTOREPLY")

	ar.Child("新增自动回复", true, "ADD", "A").Register(&commands.Function{
		Callable: requireUser(func(ctx context.Context, e *model.MessageEvent, args []any) ([]model.HandledMessage, error) {
			res, err := d.AutoReply.Add(ctx, model.AddRequest{
				ChannelID: e.Channel.ID,
				CreatorID: e.UserID(),
				Keyword:   model.Content{Value: args[0].(string), Type: model.ContentText},
				Responses: []string{args[1].(string)},
			})
			if err != nil {
				return nil, err
			}
			var b strings.Builder
			b.WriteString(addOutcomeText[res.Outcome])
			if res.Outcome.Succeeded() {
				fmt.Fprintf(&b, "\n%s → %s", res.Module.KeywordText, res.Module.Responses[0].Value)
			}
			for field, msg := range res.FieldErrors {
				fmt.Fprintf(&b, "\n%s: %s", field, msg)
			}
			for _, flag := range res.Info {
				fmt.Fprintf(&b, "\n[%s]", flag)
			}
			return reply(b.String()), nil
		}),
		Args: []commands.Arg{
			{Name: "keyword", Description: "关键字"},
			{Name: "response", Description: "回复内容"},
		},
		Feature:     model.FeatureARAdd,
		Description: "新增文字自动回复",
	})

	ar.Child("删除自动回复", true, "DEL", "D").Register(&commands.Function{
		Callable: requireUser(func(ctx context.Context, e *model.MessageEvent, args []any) ([]model.HandledMessage, error) {
			outcome, err := d.AutoReply.MarkInactive(ctx, e.Channel.ID, args[0].(string), e.UserID())
			if err != nil {
				return nil, err
			}
			switch outcome {
			case model.RemoveRemoved:
				return reply("已删除自动回复 " + args[0].(string) + "。"), nil
			case model.RemoveInsufficientPermission:
				return reply("权限不足，无法删除置顶的自动回复。"), nil
			default:
				return reply("找不到关键字为 " + args[0].(string) + " 的自动回复。"), nil
			}
		}),
		Args:        []commands.Arg{{Name: "keyword", Description: "关键字"}},
		Feature:     model.FeatureARDelete,
		Description: "删除自动回复",
	})

	list := func(ctx context.Context, e *model.MessageEvent, substr string) ([]model.HandledMessage, error) {
		mods, err := d.AutoReply.ListModules(ctx, e.Channel.ID, substr, true)
		if err != nil {
			return nil, err
		}
		if len(mods) == 0 {
			return reply("没有符合的自动回复。"), nil
		}
		var b strings.Builder
		for i, m := range mods {
			if i == listLimit {
				fmt.Fprintf(&b, "...共 %d 个", len(mods))
				break
			}
			pin := ""
			if m.Pinned {
				pin = " [置顶]"
			}
			fmt.Fprintf(&b, "%s (%s)%s → %d 个回复, 已调用 %d 次\n", m.KeywordText, m.KeywordType, pin, len(m.Responses), m.CalledCount)
		}
		return multiline(strings.TrimRight(b.String(), "\n")), nil
	}
	ar.Child("列出自动回复", true, "LIST", "L").
		Register(&commands.Function{
			Callable: func(ctx context.Context, e *model.MessageEvent, _ []any) ([]model.HandledMessage, error) {
				return list(ctx, e, "")
			},
			Feature:     model.FeatureARList,
			Description: "列出频道的自动回复",
		}).
		Register(&commands.Function{
			Callable: func(ctx context.Context, e *model.MessageEvent, args []any) ([]model.HandledMessage, error) {
				return list(ctx, e, args[0].(string))
			},
			Args:        []commands.Arg{{Name: "keyword", Description: "关键字包含的文字"}},
			Feature:     model.FeatureARList,
			Description: "搜索自动回复",
		})

	rank := func(ctx context.Context, e *model.MessageEvent, limit int) ([]model.HandledMessage, error) {
		entries, err := d.AutoReply.ModuleCountRanking(ctx, e.Channel.ID, limit)
		if err != nil {
			return nil, err
		}
		if len(entries) == 0 {
			return reply("还没有任何自动回复。"), nil
		}
		lines := make([]string, len(entries))
		for i, en := range entries {
			lines[i] = fmt.Sprintf("#%s %s: %d 次", en.Rank, en.Module.KeywordText, en.Module.CalledCount)
		}
		return multiline(strings.Join(lines, "\n")), nil
	}
	ar.Child("自动回复排行", true, "RANK", "R").
		Register(&commands.Function{
			Callable: func(ctx context.Context, e *model.MessageEvent, _ []any) ([]model.HandledMessage, error) {
				return rank(ctx, e, defaultRanks)
			},
			Feature:     model.FeatureARRanking,
			Description: "自动回复调用次数排行",
			Cooldown:    rankCooldown,
		}).
		Register(&commands.Function{
			Callable: func(ctx context.Context, e *model.MessageEvent, args []any) ([]model.HandledMessage, error) {
				limit := args[0].(int)
				if limit <= 0 || limit > listLimit {
					limit = listLimit
				}
				return rank(ctx, e, limit)
			},
			Args:        []commands.Arg{{Name: "limit", Type: commands.ArgInt, Description: "显示数量"}},
			Feature:     model.FeatureARRanking,
			Description: "自动回复调用次数排行",
			Cooldown:    rankCooldown,
		})

	ar.Child("热门关键字", true, "POP").Register(&commands.Function{
		Callable: func(ctx context.Context, e *model.MessageEvent, _ []any) ([]model.HandledMessage, error) {
			entries, err := d.AutoReply.UniqueKeywordRanking(ctx, e.Channel.ID, defaultRanks)
			if err != nil {
				return nil, err
			}
			if len(entries) == 0 {
				return reply("还没有任何自动回复。"), nil
			}
			lines := make([]string, len(entries))
			for i, en := range entries {
				lines[i] = fmt.Sprintf("#%s %s: %d 次 (%d 个模组)", en.Rank, en.Keyword.Value, en.TotalCount, en.ModuleCount)
			}
			return multiline(strings.Join(lines, "\n")), nil
		},
		Feature:     model.FeatureARPopularity,
		Description: "关键字热门度排行",
		Cooldown:    rankCooldown,
	})
}
