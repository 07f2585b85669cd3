package channels

// Schema 频道与频道集合。频道设置直接展开成列，便于条件更新。
const Schema = `
CREATE TABLE IF NOT EXISTS channels (
	id TEXT PRIMARY KEY,
	platform INTEGER NOT NULL,
	token TEXT NOT NULL,
	default_name TEXT NOT NULL DEFAULT '',
	bot_accessible BOOLEAN NOT NULL DEFAULT 1,
	created_at INTEGER NOT NULL,
	default_profile_id TEXT NOT NULL DEFAULT '',
	info_private BOOLEAN NOT NULL DEFAULT 0,
	enable_auto_reply BOOLEAN NOT NULL DEFAULT 1,
	enable_bot_command BOOLEAN NOT NULL DEFAULT 1,
	enable_calculator BOOLEAN NOT NULL DEFAULT 1,
	per_user_name TEXT NOT NULL DEFAULT '{}',
	UNIQUE(platform, token)
);
CREATE TABLE IF NOT EXISTS channel_collections (
	id TEXT PRIMARY KEY,
	platform INTEGER NOT NULL,
	token TEXT NOT NULL,
	default_name TEXT NOT NULL DEFAULT '',
	child_channel_ids TEXT NOT NULL DEFAULT '[]',
	UNIQUE(platform, token)
);
`
