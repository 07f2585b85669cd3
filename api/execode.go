package api

import (
	"context"
	"fmt"
	"net/http"

	"jellybot/execode"
	"jellybot/model"

	"github.com/spf13/cast"
)

const (
	keyExecode    = "execode"
	keyActionType = "action_type"
)

// completeRequest execode 与操作参数放在同一层
type completeRequest map[string]any

func validateComplete(req *completeRequest) map[string]string {
	if cast.ToString((*req)[keyExecode]) == "" {
		return map[string]string{keyExecode: "required"}
	}
	if v, found := (*req)[keyActionType]; found {
		if _, ok := model.ParseExecodeAction(cast.ToString(v)); !ok {
			return map[string]string{keyActionType: "invalid"}
		}
	}
	return nil
}

var completeFailureStatus = map[execode.Code]int{
	execode.CodeNotFound:         http.StatusNotFound,
	execode.CodeTypeMismatch:     http.StatusBadRequest,
	execode.CodeKeysLacking:      http.StatusBadRequest,
	execode.CodeCollationError:   http.StatusBadRequest,
	execode.CodeCompletionFailed: http.StatusConflict,
}

func (s *Server) completeExecode(ctx context.Context, _ *model.RootUser, req *completeRequest) (*Response, error) {
	params := execode.Params{}
	var expected *model.ExecodeAction
	for k, v := range *req {
		switch k {
		case keyExecode:
		case keyActionType:
			a, _ := model.ParseExecodeAction(cast.ToString(v))
			expected = &a
		default:
			params[k] = v
		}
	}

	res, err := s.Execode.Complete(ctx, cast.ToString((*req)[keyExecode]), params, expected)
	if err != nil {
		return nil, err
	}
	status, found := completeFailureStatus[res.Code]
	if !found {
		status = http.StatusInternalServerError
	}
	r := outcome(res.Code == execode.CodeOK, int(res.Code), res.Code.String(), status)
	data := map[string]any{"action": res.Action}
	if len(res.Missing) > 0 {
		data["missing"] = res.Missing
		r.Errors = map[string]string{}
		for _, k := range res.Missing {
			r.Errors[k] = "required"
		}
	}
	if res.Reason != 0 {
		data["reason"] = int(res.Reason)
	}
	if res.Detail != "" {
		data["detail"] = res.Detail
	}
	r.Data = data
	return r, nil
}

type listExecodesQuery struct {
	Platform  string `json:"platform" form:"platform"`
	UserToken string `json:"user_token" form:"user_token"`
}

// listExecodes 指定平台用户时列出该用户的，否则列出调用者的
func (s *Server) listExecodes(ctx context.Context, u *model.RootUser, req *listExecodesQuery) (*Response, error) {
	creatorID := u.ID
	if req.UserToken != "" {
		p, ok := model.ParsePlatform(req.Platform)
		if !ok || p == model.PlatformUnknown {
			return fieldErrors(map[string]string{"platform": "invalid"}), nil
		}
		owner, err := s.Identity.GetByOnPlat(ctx, p, req.UserToken)
		if err != nil {
			return nil, err
		}
		if owner == nil {
			return nil, model.NewOpError("execode.list", model.ErrNotFound, fmt.Errorf("user %s/%s", p, req.UserToken))
		}
		creatorID = owner.ID
	}
	entries, err := s.Execode.ListPending(ctx, creatorID)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []*model.ExecodeEntry{}
	}
	return ok(entries), nil
}
