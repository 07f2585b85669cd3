package extra

const Schema = `
CREATE TABLE IF NOT EXISTS extra_contents (
	id TEXT PRIMARY KEY,
	type INTEGER NOT NULL,
	channel_id TEXT NOT NULL DEFAULT '',
	title TEXT NOT NULL DEFAULT '',
	content TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	expiry INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_extra_contents_expiry ON extra_contents(expiry);
`
