package execode

import (
	"context"
	"errors"
	"fmt"

	"jellybot/model"

	"github.com/spf13/cast"
	"go.uber.org/zap"
)

// 参数与数据的键名
const (
	KeyPlatform     = "platform"
	KeyChannelToken = "channel_token"
	KeyUserToken    = "user_token"
	KeyTest         = "test"

	DataKeyword       = "keyword"
	DataKeywordType   = "keyword_type"
	DataResponses     = "responses"
	DataResponseTypes = "response_types"
	DataPinned        = "pinned"
	DataPrivate       = "private"
	DataTags          = "tags"
	DataCooldown      = "cooldown"
)

// Deps 内建操作需要的存储
type Deps struct {
	Channels  model.ChannelStore
	Profiles  model.ProfileStore
	Identity  model.IdentityStore
	AutoReply model.AutoReplyStore
}

// DefaultActions 内建的 SYS_TEST、AR_ADD、REGISTER_CHANNEL、INTEGRATE_USER_DATA
func DefaultActions(d Deps) map[model.ExecodeAction]Action {
	return map[model.ExecodeAction]Action{
		model.ActionSysTest: {
			RequiredKeys: []string{KeyTest},
			Complete: func(context.Context, *model.ExecodeEntry, any, Params) error {
				return nil
			},
		},
		model.ActionARAdd: {
			RequiredKeys: []string{KeyPlatform, KeyChannelToken},
			Collate:      collatePlatformToken(KeyChannelToken),
			Construct: func(data model.DataMap) (any, error) {
				return ConstructAddRequest(data)
			},
			Complete: d.completeARAdd,
		},
		model.ActionRegisterChannel: {
			RequiredKeys: []string{KeyPlatform, KeyChannelToken},
			Collate:      collatePlatformToken(KeyChannelToken),
			Complete:     d.completeRegisterChannel,
		},
		model.ActionIntegrateUserData: {
			RequiredKeys: []string{KeyPlatform, KeyUserToken},
			Collate:      collatePlatformToken(KeyUserToken),
			Complete:     d.completeIntegrate,
		},
	}
}

// ConstructAddRequest 由入队数据构造新增请求。频道与建立者在完成时填入。
func ConstructAddRequest(data map[string]any) (*model.AddRequest, error) {
	kw, err := cast.ToStringE(scalar(data[DataKeyword]))
	if err != nil || kw == "" {
		return nil, errors.New("keyword is required")
	}
	req := &model.AddRequest{Keyword: model.Content{Value: kw, Type: model.ContentText}}

	if v, ok := data[DataKeywordType]; ok {
		t, ok := model.ParseContentType(cast.ToString(scalar(v)))
		if !ok {
			return nil, fmt.Errorf("invalid keyword type %v", v)
		}
		req.Keyword.Type = t
	}

	if req.Responses, err = cast.ToStringSliceE(data[DataResponses]); err != nil {
		return nil, fmt.Errorf("invalid responses: %w", err)
	}
	if v, ok := data[DataResponseTypes]; ok {
		raw, err := cast.ToStringSliceE(v)
		if err != nil {
			return nil, fmt.Errorf("invalid response types: %w", err)
		}
		for _, s := range raw {
			t, ok := model.ParseContentType(s)
			if !ok {
				return nil, fmt.Errorf("invalid response type %q", s)
			}
			req.ResponseTypes = append(req.ResponseTypes, t)
		}
	}
	if v, ok := data[DataPinned]; ok && v != nil {
		b, err := cast.ToBoolE(scalar(v))
		if err != nil {
			return nil, fmt.Errorf("invalid pinned: %w", err)
		}
		req.Pinned = &b
	}
	if v, ok := data[DataPrivate]; ok && v != nil {
		b, err := cast.ToBoolE(scalar(v))
		if err != nil {
			return nil, fmt.Errorf("invalid private: %w", err)
		}
		req.Private = &b
	}
	if v, ok := data[DataTags]; ok && v != nil {
		if req.TagNames, err = cast.ToStringSliceE(v); err != nil {
			return nil, fmt.Errorf("invalid tags: %w", err)
		}
	}
	if v, ok := data[DataCooldown]; ok && v != nil {
		n, err := cast.ToIntE(scalar(v))
		if err != nil {
			return nil, fmt.Errorf("invalid cooldown: %w", err)
		}
		req.CooldownSec = &n
	}
	return req, nil
}

// AddRequestData 把新增请求写成可入队的数据
func AddRequestData(req *model.AddRequest) model.DataMap {
	data := model.DataMap{
		DataKeyword:     req.Keyword.Value,
		DataKeywordType: int(req.Keyword.Type),
		DataResponses:   req.Responses,
	}
	if len(req.ResponseTypes) > 0 {
		types := make([]string, len(req.ResponseTypes))
		for i, t := range req.ResponseTypes {
			types[i] = t.String()
		}
		data[DataResponseTypes] = types
	}
	if req.Pinned != nil {
		data[DataPinned] = *req.Pinned
	}
	if req.Private != nil {
		data[DataPrivate] = *req.Private
	}
	if len(req.TagNames) > 0 {
		data[DataTags] = req.TagNames
	}
	if req.CooldownSec != nil {
		data[DataCooldown] = *req.CooldownSec
	}
	return data
}

func (d Deps) completeARAdd(ctx context.Context, entry *model.ExecodeEntry, payload any, p Params) error {
	req := *payload.(*model.AddRequest)
	platform := p[KeyPlatform].(model.Platform)
	token := p[KeyChannelToken].(string)

	ch, err := d.Channels.GetByToken(ctx, platform, token)
	if err != nil {
		return err
	}
	if ch == nil {
		return failed("channel %s/%s is not registered", platform, token)
	}
	req.ChannelID = ch.ID
	req.CreatorID = entry.CreatorID

	result, err := d.AutoReply.Add(ctx, req)
	if err != nil {
		return err
	}
	if !result.Outcome.Succeeded() {
		return failed("auto reply add returned %s", result.Outcome)
	}
	return nil
}

func (d Deps) completeRegisterChannel(ctx context.Context, entry *model.ExecodeEntry, _ any, p Params) error {
	platform := p[KeyPlatform].(model.Platform)
	token := p[KeyChannelToken].(string)

	ch, err := d.Channels.Register(ctx, platform, token, "")
	if err != nil {
		return err
	}
	if err := d.Profiles.EnsureAdmin(ctx, ch.ID, entry.CreatorID); err != nil {
		return err
	}
	zap.L().Info("Channel registered via execode",
		zap.String("channel_id", ch.ID), zap.String("creator_id", entry.CreatorID))
	return nil
}

// completeIntegrate 把平台身份所在的根用户合并进 Execode 建立者
func (d Deps) completeIntegrate(ctx context.Context, entry *model.ExecodeEntry, _ any, p Params) error {
	platform := p[KeyPlatform].(model.Platform)
	token := p[KeyUserToken].(string)

	src, err := d.Identity.GetByOnPlat(ctx, platform, token)
	if err != nil {
		return err
	}
	if src == nil {
		return failed("user %s/%s not found", platform, token)
	}
	if src.ID == entry.CreatorID {
		return failed("user data already integrated")
	}
	err = d.Identity.Merge(ctx, src.ID, entry.CreatorID)
	if errors.Is(err, model.ErrConflict) || errors.Is(err, model.ErrNotFound) {
		return failed("integration rejected: %v", err)
	}
	return err
}
