package model

// RemoteBinding 远端控制：用户在 source 频道的消息被当作 target 频道处理。
type RemoteBinding struct {
	UserID          string    `db:"user_id" json:"user_id"`
	SourceChannelID string    `db:"source_channel_id" json:"source_channel_id"`
	TargetChannelID string    `db:"target_channel_id" json:"target_channel_id"`
	ExpiresAt       Timestamp `db:"expiry" json:"expiry"`
}
