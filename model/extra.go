package model

// ExtraContent 站外保存的溢出内容，过期后不可读取。
type ExtraContent struct {
	ID        string           `db:"id" json:"id"`
	Type      ExtraContentType `db:"type" json:"type"`
	ChannelID string           `db:"channel_id" json:"channel_id"`
	Title     string           `db:"title" json:"title"`
	Content   string           `db:"content" json:"content"`
	CreatedAt Timestamp        `db:"created_at" json:"timestamp"`
	ExpiresAt Timestamp        `db:"expiry" json:"expiry"`
}

// OverflowItem 被转到站外的单条内容
type OverflowItem struct {
	Reason  OverflowReason `json:"reason"`
	Content string         `json:"content"`
}
