package execodes

// Schema 待完成操作。claimed 表示正在被某次完成调用处理。
const Schema = `
CREATE TABLE IF NOT EXISTS execodes (
	execode TEXT PRIMARY KEY,
	creator_id TEXT NOT NULL,
	action_type INTEGER NOT NULL,
	created_at INTEGER NOT NULL,
	expiry INTEGER NOT NULL,
	data TEXT NOT NULL DEFAULT '{}',
	claimed BOOLEAN NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_execodes_creator ON execodes(creator_id);
CREATE INDEX IF NOT EXISTS idx_execodes_expiry ON execodes(expiry);
`
