package model

import "encoding/json"

// Content 自动回复的关键字或回应内容
type Content struct {
	Value string      `json:"value"`
	Type  ContentType `json:"type"`
}

// AutoReplyModule 自动回复模组。每个 (channel_id, keyword.value, keyword.type) 最多一个启用中的模组。
type AutoReplyModule struct {
	ID          string      `db:"id" json:"id"`
	ChannelID   string      `db:"channel_id" json:"channel_id"`
	CreatorID   string      `db:"creator_id" json:"creator_id"`
	KeywordText string      `db:"kw_value" json:"-"`
	KeywordType ContentType `db:"kw_type" json:"-"`
	Responses   ContentList `db:"responses" json:"responses"`
	Pinned      bool        `db:"pinned" json:"pinned"`
	Private     bool        `db:"private" json:"private"`
	TagIDs      StringList  `db:"tag_ids" json:"tag_ids"`
	CooldownSec int         `db:"cooldown_sec" json:"cooldown_sec"`
	Active      bool        `db:"active" json:"active"`
	CalledCount int         `db:"called_count" json:"called_count"`
	LastUsedAt  Timestamp   `db:"last_used_at" json:"last_used_at"`
	CreatedAt   Timestamp   `db:"created_at" json:"created_at"`
	RemoverID   string      `db:"remover_id" json:"remover_id,omitempty"`
	RemovedAt   Timestamp   `db:"removed_at" json:"removed_at"`
}

// Keyword 组合关键字
func (m *AutoReplyModule) Keyword() Content {
	return Content{Value: m.KeywordText, Type: m.KeywordType}
}

// AutoReplyTag 全局标签
type AutoReplyTag struct {
	ID   string `db:"id" json:"id"`
	Name string `db:"name" json:"name"`
}

// ModuleRankEntry 模组调用次数排行
type ModuleRankEntry struct {
	Rank   string           `json:"rank"`
	Module *AutoReplyModule `json:"module"`
}

// KeywordRankEntry 关键字汇总排行
type KeywordRankEntry struct {
	Rank        string  `json:"rank"`
	Keyword     Content `json:"keyword"`
	TotalCount  int     `json:"total_count"`
	ModuleCount int     `json:"module_count"`
}

func (m AutoReplyModule) MarshalJSON() ([]byte, error) {
	type alias AutoReplyModule
	return json.Marshal(struct {
		alias
		Keyword Content `json:"keyword"`
	}{alias(m), m.Keyword()})
}
