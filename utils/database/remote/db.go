package remote

// Schema 远端控制。主键保证每个 (user, source) 只有一个绑定。
const Schema = `
CREATE TABLE IF NOT EXISTS remote_bindings (
	user_id TEXT NOT NULL,
	source_channel_id TEXT NOT NULL,
	target_channel_id TEXT NOT NULL,
	expiry INTEGER NOT NULL,
	PRIMARY KEY(user_id, source_channel_id)
);
`
