package model

import (
	"context"
	"time"
)

// 各存储的接口。实现位于 utils/database 下的子包，启动时注入同一个实现。
// 查询不到时返回 (nil, nil)，只有存储失败才返回 error。

// ChannelStore 频道存储
type ChannelStore interface {
	Register(ctx context.Context, platform Platform, token, defaultName string) (*Channel, error)
	GetByID(ctx context.Context, id string) (*Channel, error)
	GetByToken(ctx context.Context, platform Platform, token string) (*Channel, error)
	UpdateDefaultName(ctx context.Context, platform Platform, token, name string) (bool, error)
	MarkAccessibility(ctx context.Context, platform Platform, token string, accessible bool) error
	Deregister(ctx context.Context, platform Platform, token string) error
	RegisterCollection(ctx context.Context, platform Platform, token, defaultName, childID string) (*ChannelCollection, error)
	SetFeature(ctx context.Context, channelID string, feature ChannelFeature, enabled bool) error
	SetUserName(ctx context.Context, channelID, userID, name string) error
}

// IdentityStore 用户身份存储
type IdentityStore interface {
	EnsureOnPlatUser(ctx context.Context, platform Platform, token, name string) (*RootUser, error)
	GetByOnPlat(ctx context.Context, platform Platform, token string) (*RootUser, error)
	GetByID(ctx context.Context, id string) (*RootUser, error)
	GetByAPIToken(ctx context.Context, token string) (*RootUser, error)
	EnsureAPIUser(ctx context.Context, email string) (*RootUser, string, error)
	Merge(ctx context.Context, srcID, dstID string) error
	DisplayName(ctx context.Context, userID, channelID string) string
	SetNameOverride(ctx context.Context, userID, channelID, name string) error
}

// PermissionChecker 计算用户在频道中的权限
type PermissionChecker interface {
	GetPermissions(ctx context.Context, userID, channelID string) (PermissionSet, error)
}

// ProfileStore 身份组存储
type ProfileStore interface {
	PermissionChecker
	CreateDefault(ctx context.Context, channelID string) (*Profile, error)
	RegisterNew(ctx context.Context, requesterID string, attrs ProfileAttrs) (ProfileOutcome, *Profile, error)
	Attach(ctx context.Context, channelID, actorID, profileID, targetID string) (ProfileOutcome, error)
	Detach(ctx context.Context, channelID, actorID, profileID, targetID string) (ProfileOutcome, error)
	Delete(ctx context.Context, channelID, profileID, actorID string) (ProfileOutcome, error)
	RegisterNewDefault(ctx context.Context, channelID, userID string) error
	MarkUnavailable(ctx context.Context, channelID, userID string) error
	EnsureAdmin(ctx context.Context, channelID, userID string) error
	ListForUser(ctx context.Context, channelID, userID string) ([]*Profile, error)
	GetByName(ctx context.Context, channelID, name string) (*Profile, error)
	GetByID(ctx context.Context, id string) (*Profile, error)
}

// AutoReplyStore 自动回复存储
type AutoReplyStore interface {
	Add(ctx context.Context, req AddRequest) (*AddResult, error)
	MarkInactive(ctx context.Context, channelID, keyword, actorID string) (RemoveOutcome, error)
	Match(ctx context.Context, channelID, value string, contentType ContentType) (*AutoReplyModule, error)
	ListModules(ctx context.Context, channelID, keywordSubstr string, activeOnly bool) ([]*AutoReplyModule, error)
	ModuleCountRanking(ctx context.Context, channelID string, limit int) ([]ModuleRankEntry, error)
	UniqueKeywordRanking(ctx context.Context, channelID string, limit int) ([]KeywordRankEntry, error)
}

// RemoteStore 远端控制表
type RemoteStore interface {
	Activate(ctx context.Context, userID, sourceID, targetID string) (*RemoteBinding, error)
	Deactivate(ctx context.Context, userID, sourceID string) (bool, error)
	GetCurrent(ctx context.Context, userID, sourceID string, updateExpiry bool) (*RemoteBinding, error)
}

// StatsRecorder 统计记录
type StatsRecorder interface {
	RecordMessage(ctx context.Context, rec *MessageRecord) error
	RecordFeature(ctx context.Context, channelID, userID string, feature BotFeature) error
}

// ExtraSink 站外内容存储
type ExtraSink interface {
	Record(ctx context.Context, typ ExtraContentType, channelID, title, content string) (*ExtraContent, error)
	Get(ctx context.Context, id string) (*ExtraContent, error)
	URL(id string) string
}

// Reporter 错误报告出口
type Reporter interface {
	ReportError(ctx context.Context, module, operation, detail string)
}

// Sweeper 定期清理过期数据
type Sweeper interface {
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
