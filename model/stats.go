package model

import "database/sql"

// MessageRecord 每条处理过的消息一行，ID 按时间排序。
type MessageRecord struct {
	ID              string         `db:"id" json:"id"`
	ChannelID       string         `db:"channel_id" json:"channel_id"`
	UserID          string         `db:"user_id" json:"user_id,omitempty"`
	MessageType     MessageType    `db:"message_type" json:"message_type"`
	Content         sql.NullString `db:"content" json:"-"`
	ProcessTimeSecs float64        `db:"process_time_secs" json:"process_time_secs"`
	CreatedAt       Timestamp      `db:"created_at" json:"created_at"`
}

// FeatureUsage 功能触发记录
type FeatureUsage struct {
	ID        string     `db:"id" json:"id"`
	ChannelID string     `db:"channel_id" json:"channel_id"`
	UserID    string     `db:"user_id" json:"user_id,omitempty"`
	Feature   BotFeature `db:"feature" json:"feature"`
	CreatedAt Timestamp  `db:"created_at" json:"created_at"`
}
