package api

import (
	"context"
	"net/http"

	"jellybot/execode"
	"jellybot/model"
)

const defaultRankLimit = 10

// moduleBody 新增自动回复的内容，频道由外层指定
type moduleBody struct {
	Keyword       string              `json:"keyword" binding:"required"`
	KeywordType   model.ContentType   `json:"keyword_type"`
	Responses     []string            `json:"response" binding:"required,min=1"`
	ResponseTypes []model.ContentType `json:"response_type"`
	Pinned        *bool               `json:"pinned"`
	Private       *bool               `json:"private"`
	Tags          []string            `json:"tags"`
	Cooldown      *int                `json:"cooldown"`
}

func (b *moduleBody) request() model.AddRequest {
	return model.AddRequest{
		Keyword:       model.Content{Value: b.Keyword, Type: b.KeywordType},
		Responses:     b.Responses,
		ResponseTypes: b.ResponseTypes,
		Pinned:        b.Pinned,
		Private:       b.Private,
		TagNames:      b.Tags,
		CooldownSec:   b.Cooldown,
	}
}

type addModuleRequest struct {
	Platform     string `json:"platform" binding:"required"`
	ChannelToken string `json:"channel_token" binding:"required"`
	moduleBody
}

var addFailureStatus = map[model.AddOutcome]int{
	model.AddPinConflict:            http.StatusConflict,
	model.AddInsufficientPermission: http.StatusForbidden,
}

func (s *Server) addAutoReply(ctx context.Context, u *model.RootUser, req *addModuleRequest) (*Response, error) {
	ch, err := s.channelByToken(ctx, req.Platform, req.ChannelToken)
	if err != nil {
		return nil, err
	}
	ar := req.request()
	ar.ChannelID = ch.ID
	ar.CreatorID = u.ID
	res, err := s.AutoReply.Add(ctx, ar)
	if err != nil {
		return nil, err
	}

	status, found := addFailureStatus[res.Outcome]
	if !found {
		status = http.StatusBadRequest
	}
	r := outcome(res.Outcome.Succeeded(), res.Outcome, res.Outcome.String(), status)
	r.Errors = res.FieldErrors
	r.Info = res.Info
	if res.Module != nil {
		r.Data = res.Module
	}
	return r, nil
}

// addAutoReplyExecode 先入队，由用户在目标频道以 execode 完成
func (s *Server) addAutoReplyExecode(ctx context.Context, u *model.RootUser, req *moduleBody) (*Response, error) {
	ar := req.request()
	entry, err := s.Execode.Enqueue(ctx, u.ID, model.ActionARAdd, execode.AddRequestData(&ar))
	if err != nil {
		return nil, err
	}
	r := ok(entry)
	r.Result = entry.Execode
	return r, nil
}

type channelQuery struct {
	Platform     string `json:"platform" form:"platform" binding:"required"`
	ChannelToken string `json:"channel_token" form:"channel_token" binding:"required"`
	Limit        int    `json:"limit" form:"limit"`
}

func (s *Server) tagPopularity(ctx context.Context, _ *model.RootUser, req *channelQuery) (*Response, error) {
	ch, err := s.channelByToken(ctx, req.Platform, req.ChannelToken)
	if err != nil {
		return nil, err
	}
	limit := req.Limit
	if limit <= 0 {
		limit = defaultRankLimit
	}
	ranking, err := s.AutoReply.UniqueKeywordRanking(ctx, ch.ID, limit)
	if err != nil {
		return nil, err
	}
	return ok(ranking), nil
}

type validateQuery struct {
	Content     string            `json:"content" form:"content" binding:"required"`
	ContentType model.ContentType `json:"content_type" form:"content_type"`
}

func (s *Server) validateContent(ctx context.Context, _ *model.RootUser, req *validateQuery) (*Response, error) {
	cleaned, valid := s.Validator.Response(ctx, model.Content{Value: req.Content, Type: req.ContentType})
	r := ok(cleaned)
	r.Result = valid
	return r, nil
}
