package bot

import (
	"context"
	"fmt"

	"jellybot/model"

	"go.uber.org/zap"
)

// MessageProcessor 平台无关的消息管线
type MessageProcessor interface {
	Process(ctx context.Context, e *model.MessageEvent) []model.OutboundMessage
}

// ChannelStore 适配器需要频道集合查询来处理 Discord 服务器成员事件
type ChannelStore interface {
	model.ChannelStore
	GetCollection(ctx context.Context, platform model.Platform, token string) (*model.ChannelCollection, error)
}

// SendFunc 把管线输出按顺序送回平台
type SendFunc func(ctx context.Context, msgs []model.OutboundMessage) error

type Deps struct {
	Pipeline MessageProcessor
	Channels ChannelStore
	Identity model.IdentityStore
	Profiles model.ProfileStore
	Reporter model.Reporter
}

// Bot 各平台适配器共用的事件入口
type Bot struct {
	Deps
	pool *WorkerPool
}

func New(d Deps, pool *WorkerPool) *Bot {
	return &Bot{Deps: d, pool: pool}
}

func conversationKey(e *model.MessageEvent) string {
	return fmt.Sprintf("%d/%s/%s", e.Platform, e.ChannelToken, e.UserToken)
}

// Deliver 把消息排进对应对话的 worker，处理完再用 send 送出。没有回应时不调用 send。
func (b *Bot) Deliver(e *model.MessageEvent, send SendFunc) bool {
	return b.deliver(e, send, false)
}

// DeliverReply 同 Deliver，但没有回应时也以空切片调用 send，用于必须收尾的斜线指令
func (b *Bot) DeliverReply(e *model.MessageEvent, send SendFunc) bool {
	return b.deliver(e, send, true)
}

func (b *Bot) deliver(e *model.MessageEvent, send SendFunc, always bool) bool {
	return b.pool.Submit(conversationKey(e), func(ctx context.Context) {
		out := b.Pipeline.Process(ctx, e)
		if len(out) == 0 && !always {
			return
		}
		if err := send(ctx, out); err != nil {
			zap.L().Error("Failed to send response",
				zap.String("platform", e.Platform.String()), zap.String("channel_token", e.ChannelToken), zap.Error(err))
			b.reportAdapter(ctx, e.Platform, "send", err)
		}
	})
}

func (b *Bot) reportAdapter(ctx context.Context, platform model.Platform, operation string, err error) {
	if b.Reporter != nil {
		b.Reporter.ReportError(ctx, "adapter/"+platform.String(), operation, err.Error())
	}
}

// ChannelCreated 机器人加入或看到新频道
func (b *Bot) ChannelCreated(ctx context.Context, platform model.Platform, token, name string) error {
	if _, err := b.Channels.Register(ctx, platform, token, name); err != nil {
		return fmt.Errorf("failed to register channel: %w", err)
	}
	return b.Channels.MarkAccessibility(ctx, platform, token, true)
}

func (b *Bot) ChannelUpdated(ctx context.Context, platform model.Platform, token, name string) error {
	if _, err := b.Channels.UpdateDefaultName(ctx, platform, token, name); err != nil {
		return fmt.Errorf("failed to update channel name: %w", err)
	}
	return nil
}

// ChannelDeleted 频道删除或机器人离开，资料保留
func (b *Bot) ChannelDeleted(ctx context.Context, platform model.Platform, token string) error {
	return b.Channels.Deregister(ctx, platform, token)
}

// MemberJoined 成员加入单一频道
func (b *Bot) MemberJoined(ctx context.Context, platform model.Platform, channelToken, userToken, userName string) error {
	ch, err := b.Channels.Register(ctx, platform, channelToken, "")
	if err != nil {
		return fmt.Errorf("failed to register channel: %w", err)
	}
	u, err := b.Identity.EnsureOnPlatUser(ctx, platform, userToken, userName)
	if err != nil {
		return fmt.Errorf("failed to ensure user: %w", err)
	}
	return b.Profiles.RegisterNewDefault(ctx, ch.ID, u.ID)
}

// MemberLeft 未登记的频道或用户直接忽略
func (b *Bot) MemberLeft(ctx context.Context, platform model.Platform, channelToken, userToken string) error {
	ch, err := b.Channels.GetByToken(ctx, platform, channelToken)
	if err != nil || ch == nil {
		return err
	}
	u, err := b.Identity.GetByOnPlat(ctx, platform, userToken)
	if err != nil || u == nil {
		return err
	}
	return b.Profiles.MarkUnavailable(ctx, ch.ID, u.ID)
}

// CollectionMemberJoined 成员加入频道集合，套用到集合里所有已知频道
func (b *Bot) CollectionMemberJoined(ctx context.Context, platform model.Platform, collectionToken, userToken, userName string) error {
	coll, err := b.Channels.GetCollection(ctx, platform, collectionToken)
	if err != nil || coll == nil {
		return err
	}
	u, err := b.Identity.EnsureOnPlatUser(ctx, platform, userToken, userName)
	if err != nil {
		return fmt.Errorf("failed to ensure user: %w", err)
	}
	for _, id := range coll.ChildChannelIDs {
		if err := b.Profiles.RegisterNewDefault(ctx, id, u.ID); err != nil {
			return err
		}
	}
	return nil
}

func (b *Bot) CollectionMemberLeft(ctx context.Context, platform model.Platform, collectionToken, userToken string) error {
	coll, err := b.Channels.GetCollection(ctx, platform, collectionToken)
	if err != nil || coll == nil {
		return err
	}
	u, err := b.Identity.GetByOnPlat(ctx, platform, userToken)
	if err != nil || u == nil {
		return err
	}
	for _, id := range coll.ChildChannelIDs {
		if err := b.Profiles.MarkUnavailable(ctx, id, u.ID); err != nil {
			return err
		}
	}
	return nil
}
