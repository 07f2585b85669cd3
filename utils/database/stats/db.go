package stats

// Schema 消息与功能使用记录，ID 为 UUIDv7，按 ID 排序即按时间排序。
const Schema = `
CREATE TABLE IF NOT EXISTS message_records (
	id TEXT PRIMARY KEY,
	channel_id TEXT NOT NULL,
	user_id TEXT NOT NULL DEFAULT '',
	message_type INTEGER NOT NULL,
	content TEXT,
	process_time_secs REAL NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_message_records_channel ON message_records(channel_id, created_at);
CREATE TABLE IF NOT EXISTS feature_usages (
	id TEXT PRIMARY KEY,
	channel_id TEXT NOT NULL,
	user_id TEXT NOT NULL DEFAULT '',
	feature INTEGER NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_feature_usages_channel ON feature_usages(channel_id, feature);
`
