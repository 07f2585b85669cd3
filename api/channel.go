package api

import (
	"context"
	"time"

	"jellybot/model"
)

const defaultStatsHours = 24

type nameChangeRequest struct {
	ChannelOID string `json:"channel_oid" binding:"required"`
	NewName    string `json:"new_name"`
}

// changeChannelName 改的是调用者为频道取的名称，空字串恢复默认
func (s *Server) changeChannelName(ctx context.Context, u *model.RootUser, req *nameChangeRequest) (*Response, error) {
	ch, err := s.channelByID(ctx, req.ChannelOID)
	if err != nil {
		return nil, err
	}
	if err := s.Channels.SetUserName(ctx, ch.ID, u.ID, req.NewName); err != nil {
		return nil, err
	}
	if ch, err = s.channelByID(ctx, ch.ID); err != nil {
		return nil, err
	}
	r := ok(ch)
	r.Result = ch.NameFor(u.ID)
	return r, nil
}

type emptyRequest struct{}

// issueRegisterExecode 用户在目标频道输入 JC CNL REG <execode> 完成注册
func (s *Server) issueRegisterExecode(ctx context.Context, u *model.RootUser, _ *emptyRequest) (*Response, error) {
	entry, err := s.Execode.Enqueue(ctx, u.ID, model.ActionRegisterChannel, nil)
	if err != nil {
		return nil, err
	}
	r := ok(entry)
	r.Result = entry.Execode
	return r, nil
}

type channelDataQuery struct {
	Platform     string `json:"platform" form:"platform" binding:"required"`
	ChannelToken string `json:"channel_token" form:"channel_token" binding:"required"`
}

type channelData struct {
	Channel     *model.Channel         `json:"channel"`
	Name        string                 `json:"name"`
	Permissions []model.PermissionFlag `json:"permissions"`
}

func (s *Server) channelData(ctx context.Context, u *model.RootUser, req *channelDataQuery) (*Response, error) {
	ch, err := s.channelByToken(ctx, req.Platform, req.ChannelToken)
	if err != nil {
		return nil, err
	}
	perms, err := s.Profiles.GetPermissions(ctx, u.ID, ch.ID)
	if err != nil {
		return nil, err
	}
	return ok(channelData{Channel: ch, Name: ch.NameFor(u.ID), Permissions: perms.Sorted()}), nil
}

type channelStatsQuery struct {
	Platform     string `json:"platform" form:"platform" binding:"required"`
	ChannelToken string `json:"channel_token" form:"channel_token" binding:"required"`
	Hours        int    `json:"hours" form:"hours" binding:"omitempty,min=1,max=8760"`
}

// channelStats 最近 hours 小时的消息数与功能触发数
func (s *Server) channelStats(ctx context.Context, _ *model.RootUser, req *channelStatsQuery) (*Response, error) {
	ch, err := s.channelByToken(ctx, req.Platform, req.ChannelToken)
	if err != nil {
		return nil, err
	}
	hours := req.Hours
	if hours == 0 {
		hours = defaultStatsHours
	}
	sum, err := s.Stats.Summary(ctx, ch.ID, s.now().Add(-time.Duration(hours)*time.Hour))
	if err != nil {
		return nil, err
	}
	return ok(sum), nil
}
