package defs

import (
	"context"
	"fmt"
	"strings"

	"jellybot/commands"
	"jellybot/execode"
	"jellybot/model"
)

var codeText = map[execode.Code]string{
	execode.CodeOK:               "操作完成。",
	execode.CodeNotFound:         "Execode 不存在或已过期。",
	execode.CodeTypeMismatch:     "Execode 的操作类型不符。",
	execode.CodeCompletionFailed: "操作未能完成",
}

func resultText(res execode.Result) string {
	text, ok := codeText[res.Code]
	if !ok {
		text = "操作失败 (" + res.Code.String() + ")"
	}
	if res.Code != execode.CodeOK && res.Detail != "" {
		text += ": " + res.Detail
	}
	return text
}

func registerExecode(root *commands.Node, d Deps) {
	exc := root.Child("Execode", true, "EXC", "EXECODE")
	exc.Child("待完成的 Execode", true, "LIST", "L").Register(&commands.Function{
		Callable: requireUser(func(ctx context.Context, e *model.MessageEvent, _ []any) ([]model.HandledMessage, error) {
			entries, err := d.Execode.ListPending(ctx, e.UserID())
			if err != nil {
				return nil, err
			}
			if len(entries) == 0 {
				return reply("没有待完成的 Execode。"), nil
			}
			lines := make([]string, len(entries))
			for i, en := range entries {
				lines[i] = fmt.Sprintf("%s %s (到期 %s)", en.Execode, en.Action, en.ExpiresAt.Format("01-02 15:04"))
			}
			return multiline(strings.Join(lines, "\n")), nil
		}),
		Feature:     model.FeatureExecodeList,
		Description: "列出你待完成的 Execode",
		Scope:       []model.ChannelType{model.ChannelTypePrivate},
	})

	regAction := model.ActionRegisterChannel
	root.Child("频道", true, "CNL", "CHANNEL").Child("注册频道", true, "REG", "REGISTER").Register(&commands.Function{
		Callable: func(ctx context.Context, e *model.MessageEvent, args []any) ([]model.HandledMessage, error) {
			src := sourceChannel(e)
			res, err := d.Execode.Complete(ctx, args[0].(string), execode.Params{
				execode.KeyPlatform:     src.Platform,
				execode.KeyChannelToken: src.Token,
			}, &regAction)
			if err != nil {
				return nil, err
			}
			return reply(resultText(res)), nil
		},
		Args:        []commands.Arg{{Name: "execode", Description: "网页上取得的 Execode"}},
		Feature:     model.FeatureChannelReg,
		Description: "以 Execode 注册目前的频道",
	})

	intAction := model.ActionIntegrateUserData
	root.Child("整合用户资料", true, "INTG", "INTEGRATE").Register(&commands.Function{
		Callable: requireUser(func(ctx context.Context, e *model.MessageEvent, args []any) ([]model.HandledMessage, error) {
			res, err := d.Execode.Complete(ctx, args[0].(string), execode.Params{
				execode.KeyPlatform:  e.Platform,
				execode.KeyUserToken: e.UserToken,
			}, &intAction)
			if err != nil {
				return nil, err
			}
			return reply(resultText(res)), nil
		}),
		Args:        []commands.Arg{{Name: "execode", Description: "网页上取得的 Execode"}},
		Feature:     model.FeatureIntegrate,
		Description: "把此平台的身份整合到网页账号",
		Scope:       []model.ChannelType{model.ChannelTypePrivate},
	})
}
