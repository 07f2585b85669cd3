package autoreply

// Schema 自动回复模组与标签。启用中的模组由部分唯一索引保证每个关键字只有一个。
const Schema = `
CREATE TABLE IF NOT EXISTS auto_reply_modules (
	id TEXT PRIMARY KEY,
	channel_id TEXT NOT NULL,
	creator_id TEXT NOT NULL,
	kw_value TEXT NOT NULL,
	kw_type INTEGER NOT NULL,
	responses TEXT NOT NULL DEFAULT '[]',
	pinned BOOLEAN NOT NULL DEFAULT 0,
	private BOOLEAN NOT NULL DEFAULT 0,
	tag_ids TEXT NOT NULL DEFAULT '[]',
	cooldown_sec INTEGER NOT NULL DEFAULT 0 CHECK (cooldown_sec >= 0),
	active BOOLEAN NOT NULL DEFAULT 1,
	called_count INTEGER NOT NULL DEFAULT 0 CHECK (called_count >= 0),
	last_used_at INTEGER,
	created_at INTEGER NOT NULL,
	remover_id TEXT NOT NULL DEFAULT '',
	removed_at INTEGER
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_auto_reply_active_keyword
	ON auto_reply_modules(channel_id, kw_value, kw_type) WHERE active = 1;
CREATE INDEX IF NOT EXISTS idx_auto_reply_channel_count ON auto_reply_modules(channel_id, called_count);
CREATE TABLE IF NOT EXISTS auto_reply_tags (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL UNIQUE
);
`
