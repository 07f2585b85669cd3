package model

// OnPlatformIdentity 平台上的用户身份，(platform, token) 唯一。
type OnPlatformIdentity struct {
	ID       string    `db:"id" json:"id"`
	Platform Platform  `db:"platform" json:"platform"`
	Token    string    `db:"token" json:"token"`
	RootID   string    `db:"root_id" json:"root_id"`
	Name     string    `db:"name" json:"name"`
	SeenAt   Timestamp `db:"seen_at" json:"seen_at"`
}

// UserConfig 用户偏好
type UserConfig struct {
	Language     string    `db:"language" json:"language"`
	Timezone     string    `db:"tz" json:"tz"`
	AutoDST      bool      `db:"auto_dst" json:"auto_dst"`
	NameOverride StringMap `db:"name_override" json:"name_override"` // channel id → 名称
}

// RootUser 聚合平台身份与 API 身份的根用户
type RootUser struct {
	ID         string     `db:"id" json:"id"`
	APIID      string     `db:"api_id" json:"api_id,omitempty"`
	CreatedAt  Timestamp  `db:"created_at" json:"created_at"`
	OnPlatIDs  StringList `db:"-" json:"on_plat_ids"`
	UserConfig `json:"config"`
}

// HasIdentity 根用户至少要有一个平台身份或 API 身份。
func (u *RootUser) HasIdentity() bool {
	return len(u.OnPlatIDs) > 0 || u.APIID != ""
}

// ApiUser 通过网页登录的用户，只保存令牌的 HMAC。
type ApiUser struct {
	ID        string    `db:"id" json:"id"`
	Email     string    `db:"email" json:"email"`
	TokenHash string    `db:"token_hash" json:"-"`
	CreatedAt Timestamp `db:"created_at" json:"created_at"`
}
