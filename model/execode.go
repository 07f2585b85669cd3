package model

// ExecodeEntry 待完成的特权操作
type ExecodeEntry struct {
	Execode   string        `db:"execode" json:"execode"`
	CreatorID string        `db:"creator_id" json:"creator_id"`
	Action    ExecodeAction `db:"action_type" json:"action_type"`
	CreatedAt Timestamp     `db:"created_at" json:"timestamp"`
	ExpiresAt Timestamp     `db:"expiry" json:"expiry"`
	Data      DataMap       `db:"data" json:"data"`
}
