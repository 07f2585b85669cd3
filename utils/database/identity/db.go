package identity

// Schema 用户身份相关的表
const Schema = `
CREATE TABLE IF NOT EXISTS root_users (
	id TEXT PRIMARY KEY,
	api_id TEXT NOT NULL DEFAULT '',
	language TEXT NOT NULL DEFAULT 'en',
	tz TEXT NOT NULL DEFAULT 'UTC',
	auto_dst BOOLEAN NOT NULL DEFAULT 1,
	name_override TEXT NOT NULL DEFAULT '{}',
	created_at INTEGER NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_root_users_api ON root_users(api_id) WHERE api_id != '';
CREATE TABLE IF NOT EXISTS onplat_users (
	id TEXT PRIMARY KEY,
	platform INTEGER NOT NULL,
	token TEXT NOT NULL,
	root_id TEXT NOT NULL,
	name TEXT NOT NULL DEFAULT '',
	seen_at INTEGER,
	UNIQUE(platform, token)
);
CREATE INDEX IF NOT EXISTS idx_onplat_users_root ON onplat_users(root_id);
CREATE TABLE IF NOT EXISTS api_users (
	id TEXT PRIMARY KEY,
	email TEXT NOT NULL UNIQUE,
	token_hash TEXT NOT NULL UNIQUE,
	created_at INTEGER NOT NULL
);
`
