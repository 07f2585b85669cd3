package api

import (
	"context"
	"fmt"
	"net/http"

	"jellybot/model"
)

type profileControlRequest struct {
	ProfileOID string `json:"profile_oid" binding:"required"`
	ChannelOID string `json:"channel_oid" binding:"required"`
	TargetOID  string `json:"target_oid"`
}

var profileFailureStatus = map[model.ProfileOutcome]int{
	model.ProfileNotFound:               http.StatusNotFound,
	model.ProfileInsufficientPermission: http.StatusForbidden,
	model.ProfileNameConflict:           http.StatusConflict,
	model.ProfileAlreadyAttached:        http.StatusConflict,
	model.ProfileNotAttached:            http.StatusConflict,
}

func profileOutcome(o model.ProfileOutcome) *Response {
	status, found := profileFailureStatus[o]
	if !found {
		status = http.StatusBadRequest
	}
	return outcome(o == model.ProfileOK, o, o.String(), status)
}

func (s *Server) attachProfile(ctx context.Context, u *model.RootUser, req *profileControlRequest) (*Response, error) {
	o, err := s.Profiles.Attach(ctx, req.ChannelOID, u.ID, req.ProfileOID, req.TargetOID)
	if err != nil {
		return nil, err
	}
	return profileOutcome(o), nil
}

// detachProfile 没有指定对象时从调用者身上移除
func (s *Server) detachProfile(ctx context.Context, u *model.RootUser, req *profileControlRequest) (*Response, error) {
	o, err := s.Profiles.Detach(ctx, req.ChannelOID, u.ID, req.ProfileOID, req.TargetOID)
	if err != nil {
		return nil, err
	}
	return profileOutcome(o), nil
}

type channelOIDQuery struct {
	ChannelOID string `json:"channel_oid" form:"channel_oid" binding:"required"`
}

func (s *Server) profilePermissions(ctx context.Context, u *model.RootUser, req *channelOIDQuery) (*Response, error) {
	if _, err := s.channelByID(ctx, req.ChannelOID); err != nil {
		return nil, err
	}
	perms, err := s.Profiles.GetPermissions(ctx, u.ID, req.ChannelOID)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(perms))
	sorted := perms.Sorted()
	for _, f := range sorted {
		names = append(names, f.String())
	}
	r := ok(sorted)
	r.Flags = names
	return r, nil
}

type profileNameQuery struct {
	ChannelOID string `json:"channel_oid" form:"channel_oid" binding:"required"`
	Name       string `json:"name" form:"name" binding:"required"`
}

func (s *Server) profileByName(ctx context.Context, _ *model.RootUser, req *profileNameQuery) (*Response, error) {
	p, err := s.Profiles.GetByName(ctx, req.ChannelOID, req.Name)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, model.NewOpError("profile.name", model.ErrNotFound, fmt.Errorf("profile %q", req.Name))
	}
	return ok(p), nil
}
