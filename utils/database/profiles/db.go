package profiles

// Schema 身份组与用户关系。每个频道最多一个默认身份组。
const Schema = `
CREATE TABLE IF NOT EXISTS profiles (
	id TEXT PRIMARY KEY,
	channel_id TEXT NOT NULL,
	name TEXT NOT NULL,
	color TEXT NOT NULL DEFAULT '',
	permission_level INTEGER NOT NULL DEFAULT 0,
	permissions TEXT NOT NULL DEFAULT '[]',
	is_default BOOLEAN NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL,
	UNIQUE(channel_id, name)
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_profiles_default ON profiles(channel_id) WHERE is_default = 1;
CREATE TABLE IF NOT EXISTS profile_connections (
	channel_id TEXT NOT NULL,
	user_id TEXT NOT NULL,
	profile_ids TEXT NOT NULL DEFAULT '[]',
	available BOOLEAN NOT NULL DEFAULT 1,
	PRIMARY KEY(channel_id, user_id)
);
CREATE INDEX IF NOT EXISTS idx_profile_connections_user ON profile_connections(user_id);
`
