package model

// ChannelConfig 频道设置
type ChannelConfig struct {
	DefaultProfileID string    `db:"default_profile_id" json:"default_profile_id"`
	InfoPrivate      bool      `db:"info_private" json:"info_private"`
	EnableAutoReply  bool      `db:"enable_auto_reply" json:"enable_auto_reply"`
	EnableBotCommand bool      `db:"enable_bot_command" json:"enable_bot_command"`
	EnableCalculator bool      `db:"enable_calculator" json:"enable_calculator"`
	PerUserName      StringMap `db:"per_user_name" json:"per_user_name"` // user id → 该用户为频道取的名称
}

// Channel 平台频道，(platform, token) 唯一。
type Channel struct {
	ID            string    `db:"id" json:"id"`
	Platform      Platform  `db:"platform" json:"platform"`
	Token         string    `db:"token" json:"token"`
	DefaultName   string    `db:"default_name" json:"default_name"`
	BotAccessible bool      `db:"bot_accessible" json:"bot_accessible"`
	CreatedAt     Timestamp `db:"created_at" json:"created_at"`
	ChannelConfig `json:"config"`
}

// NameFor 返回用户为频道取的名称，没有则用默认名称。
func (c *Channel) NameFor(userID string) string {
	if name, ok := c.PerUserName[userID]; ok && name != "" {
		return name
	}
	return c.DefaultName
}

// ChannelCollection 频道集合（例如 Discord 服务器）
type ChannelCollection struct {
	ID              string     `db:"id" json:"id"`
	Platform        Platform   `db:"platform" json:"platform"`
	Token           string     `db:"token" json:"token"`
	DefaultName     string     `db:"default_name" json:"default_name"`
	ChildChannelIDs StringList `db:"child_channel_ids" json:"child_channel_ids"`
}

// ChannelFeature 可开关的频道功能
type ChannelFeature string

const (
	FeatureToggleAutoReply  ChannelFeature = "enable_auto_reply"
	FeatureToggleBotCommand ChannelFeature = "enable_bot_command"
	FeatureToggleCalculator ChannelFeature = "enable_calculator"
	FeatureToggleInfoPriv   ChannelFeature = "info_private"
)
