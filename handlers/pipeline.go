package handlers

import (
	"context"
	"database/sql"
	"fmt"
	"runtime/debug"
	"time"

	"jellybot/model"
	"jellybot/utils"

	"go.uber.org/zap"
)

// ErrorTestMarker 收到这段文字时故意触发错误，用来检查错误回报
const ErrorTestMarker = "ERRORTEST"

const (
	genericErrorText = "处理消息时发生错误，已回报给开发者。"
	noTokenText      = "无法取得你的用户 ID，部分功能无法使用。请先加机器人为好友，或更新 LINE 版本。"
)

// CommandHandler 文字指令
type CommandHandler interface {
	Handle(ctx context.Context, e *model.MessageEvent) ([]model.HandledMessage, error)
}

// Deps 消息管线需要的元件
type Deps struct {
	Channels    model.ChannelStore
	Identity    model.IdentityStore
	Remote      model.RemoteStore
	AutoReply   model.AutoReplyStore
	Stats       model.StatsRecorder
	Reporter    model.Reporter
	Commands    CommandHandler
	Partitioner *Partitioner
	NoToken     *utils.NotifyLock
}

type handlerFunc func(ctx context.Context, e *model.MessageEvent) ([]model.HandledMessage, error)

type namedHandler struct {
	name string
	fn   handlerFunc
}

// Pipeline 平台无关的消息处理流程。Process 不会回传错误，错误都转成一般回应并回报。
type Pipeline struct {
	Deps
	now      model.Clock
	handlers []namedHandler
}

type Option func(*Pipeline)

func WithClock(now model.Clock) Option {
	return func(p *Pipeline) { p.now = now }
}

func New(d Deps, opts ...Option) *Pipeline {
	p := &Pipeline{Deps: d, now: time.Now}
	for _, opt := range opts {
		opt(p)
	}
	p.handlers = []namedHandler{
		{"error_test", p.handleErrorTest},
		{"bot_command", p.handleCommand},
		{"auto_reply", p.handleAutoReply},
		{"calculator", p.handleCalculator},
	}
	return p
}

// Process 处理一则消息并返回要送出的内容
func (p *Pipeline) Process(ctx context.Context, e *model.MessageEvent) []model.OutboundMessage {
	start := p.now()

	notices, err := p.normalize(ctx, e)
	if err != nil {
		zap.L().Error("Failed to normalize message event",
			zap.String("platform", e.Platform.String()), zap.String("channel_token", e.ChannelToken), zap.Error(err))
		p.report(ctx, "normalize", err)
		p.record(ctx, e, start)
		return []model.OutboundMessage{{Type: model.ContentText, Payload: genericErrorText}}
	}

	msgs := append(notices, p.handle(ctx, e)...)
	p.record(ctx, e, start)

	if len(msgs) == 0 {
		return nil
	}
	return p.Partitioner.Partition(ctx, e.Platform, e.Channel.ID, msgs)
}

// normalize 注册频道与用户，套用远端控制
func (p *Pipeline) normalize(ctx context.Context, e *model.MessageEvent) ([]model.HandledMessage, error) {
	ch, err := p.Channels.Register(ctx, e.Platform, e.ChannelToken, e.ChannelName)
	if err != nil {
		return nil, fmt.Errorf("failed to register channel: %w", err)
	}
	if !ch.BotAccessible {
		go p.markAccessible(e.Platform, e.ChannelToken)
	}
	if e.ChannelName != "" && e.ChannelName != ch.DefaultName {
		if _, err := p.Channels.UpdateDefaultName(ctx, e.Platform, e.ChannelToken, e.ChannelName); err != nil {
			zap.L().Warn("Failed to update channel name", zap.String("channel_id", ch.ID), zap.Error(err))
		}
	}
	e.Channel = ch
	e.ChannelSource = ch

	if e.CollectionToken != "" {
		coll, err := p.Channels.RegisterCollection(ctx, e.Platform, e.CollectionToken, e.CollectionName, ch.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to register channel collection: %w", err)
		}
		e.Collection = coll
	}

	var notices []model.HandledMessage
	if e.UserToken != "" {
		u, err := p.Identity.EnsureOnPlatUser(ctx, e.Platform, e.UserToken, e.UserName)
		if err != nil {
			return nil, fmt.Errorf("failed to ensure user: %w", err)
		}
		e.User = u
	} else if e.ChannelType.IsGroup() && p.NoToken != nil && p.NoToken.CheckAndSet(ch.ID) {
		notices = append(notices, model.TextMessage(noTokenText))
	}

	if e.User != nil {
		b, err := p.Remote.GetCurrent(ctx, e.User.ID, ch.ID, true)
		if err != nil {
			return nil, fmt.Errorf("failed to get remote control: %w", err)
		}
		if b != nil {
			target, err := p.Channels.GetByID(ctx, b.TargetChannelID)
			if err != nil {
				return nil, fmt.Errorf("failed to load remote target: %w", err)
			}
			if target != nil {
				e.Channel = target
			}
		}
	}
	return notices, nil
}

func (p *Pipeline) markAccessible(platform model.Platform, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := p.Channels.MarkAccessibility(ctx, platform, token, true); err != nil {
		zap.L().Warn("Failed to mark channel accessible", zap.String("channel_token", token), zap.Error(err))
	}
}

// handle 按顺序执行功能处理器，第一个有结果的生效
func (p *Pipeline) handle(ctx context.Context, e *model.MessageEvent) (out []model.HandledMessage) {
	if _, ok := e.Type.ContentType(); !ok {
		return nil
	}

	current := ""
	defer func() {
		if r := recover(); r != nil {
			zap.L().Error("Handler panicked", zap.String("handler", current), zap.Any("panic", r), zap.ByteString("stack", debug.Stack()))
			p.report(ctx, current, fmt.Errorf("%w: panic: %v", model.ErrHandler, r))
			out = []model.HandledMessage{model.TextMessage(genericErrorText)}
		}
	}()

	for _, h := range p.handlers {
		current = h.name
		msgs, err := h.fn(ctx, e)
		if err != nil {
			zap.L().Error("Handler failed", zap.String("handler", h.name), zap.String("channel_id", e.Channel.ID), zap.Error(err))
			p.report(ctx, h.name, err)
			return []model.HandledMessage{model.TextMessage(genericErrorText)}
		}
		if len(msgs) > 0 {
			return msgs
		}
	}
	return nil
}

func (p *Pipeline) report(ctx context.Context, operation string, err error) {
	if p.Reporter != nil {
		p.Reporter.ReportError(ctx, "pipeline", operation, err.Error())
	}
}

// record 统计以实际收到消息的频道为准。频道注册失败时 channel_id 为空字串，消息仍会留下记录。
func (p *Pipeline) record(ctx context.Context, e *model.MessageEvent, start time.Time) {
	channelID := ""
	if e.ChannelSource != nil {
		channelID = e.ChannelSource.ID
	}
	rec := &model.MessageRecord{
		ChannelID:       channelID,
		UserID:          e.UserID(),
		MessageType:     e.Type,
		ProcessTimeSecs: p.now().Sub(start).Seconds(),
	}
	if _, ok := e.Type.ContentType(); ok {
		rec.Content = sql.NullString{String: e.Content, Valid: true}
	}
	if err := p.Stats.RecordMessage(ctx, rec); err != nil {
		zap.L().Warn("Failed to record message", zap.String("channel_id", rec.ChannelID), zap.Error(err))
	}
}

func (p *Pipeline) recordFeature(ctx context.Context, e *model.MessageEvent, f model.BotFeature) {
	if err := p.Stats.RecordFeature(ctx, e.Channel.ID, e.UserID(), f); err != nil {
		zap.L().Warn("Failed to record feature usage", zap.String("feature", f.String()), zap.Error(err))
	}
}

func (p *Pipeline) handleErrorTest(_ context.Context, e *model.MessageEvent) ([]model.HandledMessage, error) {
	if e.Type == model.MessageText && e.Content == ErrorTestMarker {
		return nil, fmt.Errorf("%w: error test triggered", model.ErrHandler)
	}
	return nil, nil
}

func (p *Pipeline) handleCommand(ctx context.Context, e *model.MessageEvent) ([]model.HandledMessage, error) {
	if e.Type != model.MessageText || !e.Channel.EnableBotCommand || p.Commands == nil {
		return nil, nil
	}
	return p.Commands.Handle(ctx, e)
}

func (p *Pipeline) handleAutoReply(ctx context.Context, e *model.MessageEvent) ([]model.HandledMessage, error) {
	if !e.Channel.EnableAutoReply {
		return nil, nil
	}
	ct, _ := e.Type.ContentType()
	mod, err := p.AutoReply.Match(ctx, e.Channel.ID, e.Content, ct)
	if err != nil {
		return nil, err
	}
	if mod == nil {
		return nil, nil
	}
	p.recordFeature(ctx, e, model.FeatureARTriggered)
	out := make([]model.HandledMessage, len(mod.Responses))
	for i, r := range mod.Responses {
		out[i] = model.HandledMessage{Type: r.Type, Content: r.Value}
	}
	return out, nil
}

func (p *Pipeline) handleCalculator(ctx context.Context, e *model.MessageEvent) ([]model.HandledMessage, error) {
	if e.Type != model.MessageText || !e.Channel.EnableCalculator {
		return nil, nil
	}
	res, ok := Calculate(e.Content)
	if !ok {
		return nil, nil
	}
	p.recordFeature(ctx, e, model.FeatureCalculator)
	msg := model.TextMessage(res.Value)
	if res.Latex != "" {
		msg.LatexHTML = LatexHTML(res.Latex)
	}
	return []model.HandledMessage{msg}, nil
}
