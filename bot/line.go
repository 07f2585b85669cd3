package bot

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"jellybot/model"
	"jellybot/utils"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"
	"github.com/line/line-bot-sdk-go/v8/linebot/webhook"
	"go.uber.org/zap"
)

const (
	lineAPIBase = "https://api.line.me"
	// LINE 托管的图片没有公开地址，用取内容的 API 地址代替
	lineContentURL = "https://api-data.line.me/v2/bot/message/%s/content"
	// 一次 reply/push 最多 5 则
	lineMaxMessages = 5
	lineDedupWindow = time.Hour
)

// Line LINE Messaging API webhook 适配器
type Line struct {
	bot     *Bot
	secret  string
	token   string
	apiBase string
	client  *http.Client
	seen    *utils.NotifyLock
}

type LineOption func(*Line)

// WithLineAPIBase 替换 API 地址
func WithLineAPIBase(base string) LineOption {
	return func(l *Line) { l.apiBase = base }
}

func NewLine(secret, token string, b *Bot, opts ...LineOption) *Line {
	l := &Line{
		bot:     b,
		secret:  secret,
		token:   token,
		apiBase: lineAPIBase,
		client:  utils.GlobalHTTPClient,
		seen:    utils.NewNotifyLock(lineDedupWindow),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// RegisterRoutes 挂上 POST /webhook/line
func (l *Line) RegisterRoutes(r gin.IRouter) {
	r.POST("/webhook/line", l.handleWebhook)
}

// Cleanup 清掉过期的去重记录
func (l *Line) Cleanup() int {
	return l.seen.Cleanup()
}

func (l *Line) handleWebhook(c *gin.Context) {
	cb, err := webhook.ParseRequest(l.secret, c.Request)
	if errors.Is(err, webhook.ErrInvalidSignature) {
		zap.L().Warn("LINE signature verification failed", zap.String("remote", c.ClientIP()))
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "errors": gin.H{"signature": "invalid"}})
		return
	}
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"success": false, "errors": gin.H{"body": err.Error()}})
		return
	}

	for _, ev := range cb.Events {
		if id := lineEventID(ev); id != "" && !l.seen.CheckAndSet(id) {
			zap.L().Debug("Duplicate LINE event ignored", zap.String("event_id", id))
			continue
		}
		l.handleEvent(ev)
	}
	// 事件都已排入 worker，立即回 200 避免 LINE 重送
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func lineEventID(ev webhook.EventInterface) string {
	switch ev := ev.(type) {
	case webhook.MessageEvent:
		return ev.WebhookEventId
	case webhook.JoinEvent:
		return ev.WebhookEventId
	case webhook.LeaveEvent:
		return ev.WebhookEventId
	case webhook.MemberJoinedEvent:
		return ev.WebhookEventId
	case webhook.MemberLeftEvent:
		return ev.WebhookEventId
	}
	return ""
}

// lineSource 群组或聊天室优先，否则是一对一聊天
type lineSource struct {
	target      string
	userID      string
	channelType model.ChannelType
}

func sourceOf(src webhook.SourceInterface) lineSource {
	switch s := src.(type) {
	case webhook.GroupSource:
		return lineSource{target: s.GroupId, userID: s.UserId, channelType: model.ChannelTypePublicGrp}
	case webhook.RoomSource:
		return lineSource{target: s.RoomId, userID: s.UserId, channelType: model.ChannelTypePrivateGrp}
	case webhook.UserSource:
		return lineSource{target: s.UserId, userID: s.UserId, channelType: model.ChannelTypePrivate}
	}
	return lineSource{channelType: model.ChannelTypePrivate}
}

func (l *Line) handleEvent(ev webhook.EventInterface) {
	switch ev := ev.(type) {
	case webhook.MessageEvent:
		e := lineMessageEvent(ev)
		target, replyToken := e.ChannelToken, ev.ReplyToken
		l.bot.Deliver(e, func(ctx context.Context, out []model.OutboundMessage) error {
			return l.send(ctx, replyToken, target, out)
		})
	case webhook.JoinEvent:
		target := sourceOf(ev.Source).target
		l.lifecycle(target, "join", func(ctx context.Context) error {
			return l.bot.ChannelCreated(ctx, model.PlatformLine, target, "")
		})
	case webhook.LeaveEvent:
		target := sourceOf(ev.Source).target
		l.lifecycle(target, "leave", func(ctx context.Context) error {
			return l.bot.ChannelDeleted(ctx, model.PlatformLine, target)
		})
	case webhook.MemberJoinedEvent:
		if ev.Joined == nil {
			return
		}
		target := sourceOf(ev.Source).target
		for _, m := range ev.Joined.Members {
			userID := m.UserId
			l.lifecycle(target, "member_joined", func(ctx context.Context) error {
				return l.bot.MemberJoined(ctx, model.PlatformLine, target, userID, "")
			})
		}
	case webhook.MemberLeftEvent:
		if ev.Left == nil {
			return
		}
		target := sourceOf(ev.Source).target
		for _, m := range ev.Left.Members {
			userID := m.UserId
			l.lifecycle(target, "member_left", func(ctx context.Context) error {
				return l.bot.MemberLeft(ctx, model.PlatformLine, target, userID)
			})
		}
	default:
		zap.L().Debug("Unhandled LINE event", zap.String("type", ev.GetType()))
	}
}

// lifecycle 频道事件和消息走同一个 worker，保持先后顺序
func (l *Line) lifecycle(target, operation string, fn func(ctx context.Context) error) {
	l.bot.pool.Submit(fmt.Sprintf("%d/%s/", model.PlatformLine, target), func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, eventTimeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			zap.L().Warn("Failed to handle LINE event", zap.String("operation", operation), zap.String("target", target), zap.Error(err))
			l.bot.reportAdapter(ctx, model.PlatformLine, operation, err)
		}
	})
}

// lineMessageEvent 群组里没有 userId 时用户令牌留空
func lineMessageEvent(ev webhook.MessageEvent) *model.MessageEvent {
	src := sourceOf(ev.Source)
	e := &model.MessageEvent{
		Raw:          ev,
		Platform:     model.PlatformLine,
		ChannelToken: src.target,
		UserToken:    src.userID,
		ReceivedAt:   time.UnixMilli(ev.Timestamp),
		ChannelType:  src.channelType,
		Type:         model.MessageUnknown,
	}
	switch m := ev.Message.(type) {
	case webhook.TextMessageContent:
		e.Type = model.MessageText
		e.Content = m.Text
	case webhook.ImageMessageContent:
		e.Type = model.MessageImage
		e.Content = lineImageURL(m)
	case webhook.StickerMessageContent:
		e.Type = model.MessageLineSticker
		e.Content = m.StickerId
	}
	return e
}

// lineImageURL 外部提供的图片用原始地址，才能和 IMAGE 关键字比对
func lineImageURL(m webhook.ImageMessageContent) string {
	if p := m.ContentProvider; p != nil && p.Type == webhook.ContentProviderTYPE_EXTERNAL && p.OriginalContentUrl != "" {
		return p.OriginalContentUrl
	}
	return fmt.Sprintf(lineContentURL, m.Id)
}

func toLineMessages(out []model.OutboundMessage) []messaging_api.MessageInterface {
	msgs := make([]messaging_api.MessageInterface, 0, len(out))
	for _, m := range out {
		switch m.Type {
		case model.ContentImage:
			msgs = append(msgs, &messaging_api.ImageMessage{OriginalContentUrl: m.Payload, PreviewImageUrl: m.Payload})
		case model.ContentLineSticker:
			url := utils.LineStickerURL(m.Payload)
			msgs = append(msgs, &messaging_api.ImageMessage{OriginalContentUrl: url, PreviewImageUrl: url})
		default:
			msgs = append(msgs, &messaging_api.TextMessage{Text: m.Payload})
		}
	}
	return msgs
}

// api 每次发送建一个客户端，WithContext 会改动客户端本身，不能在 worker 之间共用
func (l *Line) api(ctx context.Context) (*messaging_api.MessagingApiAPI, error) {
	client, err := messaging_api.NewMessagingApiAPI(l.token,
		messaging_api.WithEndpoint(l.apiBase),
		messaging_api.WithHTTPClient(l.client))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create line client: %v", model.ErrAdapter, err)
	}
	return client.WithContext(ctx), nil
}

// send 先用 reply token 回复，失败或超过一次的部分改用 push
func (l *Line) send(ctx context.Context, replyToken, target string, out []model.OutboundMessage) error {
	client, err := l.api(ctx)
	if err != nil {
		return err
	}
	msgs := toLineMessages(out)
	first := msgs[:min(len(msgs), lineMaxMessages)]
	rest := msgs[len(first):]

	if replyToken != "" && len(first) > 0 {
		_, err := client.ReplyMessage(&messaging_api.ReplyMessageRequest{ReplyToken: replyToken, Messages: first})
		if err == nil {
			first = nil
		} else {
			zap.L().Warn("LINE reply failed, falling back to push", zap.String("target", target), zap.Error(err))
		}
	}
	pending := append(first, rest...)
	for len(pending) > 0 {
		n := min(len(pending), lineMaxMessages)
		// retry key 让 LINE 对同一批 push 去重
		req := &messaging_api.PushMessageRequest{To: target, Messages: pending[:n]}
		if _, err := client.PushMessage(req, uuid.NewString()); err != nil {
			return fmt.Errorf("%w: line push failed: %v", model.ErrAdapter, err)
		}
		pending = pending[n:]
	}
	return nil
}
