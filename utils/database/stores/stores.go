// Package stores 把各个存储接到同一个数据库连接上
package stores

import (
	"context"
	"fmt"
	"time"

	"jellybot/config"
	"jellybot/model"
	"jellybot/utils"
	"jellybot/utils/database"
	"jellybot/utils/database/autoreply"
	"jellybot/utils/database/channels"
	"jellybot/utils/database/execodes"
	"jellybot/utils/database/extra"
	"jellybot/utils/database/identity"
	"jellybot/utils/database/profiles"
	"jellybot/utils/database/remote"
	"jellybot/utils/database/stats"

	"github.com/jmoiron/sqlx"
)

// Schemas 全部表结构，按依赖顺序
var Schemas = []string{
	identity.Schema,
	channels.Schema,
	profiles.Schema,
	autoreply.Schema,
	execodes.Schema,
	remote.Schema,
	stats.Schema,
	extra.Schema,
}

type Stores struct {
	DB        *sqlx.DB
	Identity  *identity.Store
	Channels  *channels.Store
	Profiles  *profiles.Store
	AutoReply *autoreply.Store
	Execodes  *execodes.Store
	Remote    *remote.Store
	Stats     *stats.Recorder
	Extra     *extra.Store
	Validator *utils.ContentValidator
}

// New 构建所有存储。now 为 nil 时使用 time.Now。
func New(db *sqlx.DB, cfg *config.Config, now model.Clock) *Stores {
	if now == nil {
		now = time.Now
	}
	ar := cfg.AutoReply
	s := &Stores{DB: db}
	s.Validator = utils.NewContentValidator(ar.MaxKeywordLength, ar.MaxResponseLength, ar.OnlineCheck)
	s.Profiles = profiles.New(db, profiles.WithClock(now))
	s.Channels = channels.New(db, channels.WithClock(now), channels.WithDefaultProfiles(s.Profiles))
	s.AutoReply = autoreply.New(db, s.Profiles, s.Validator, autoreply.Config{
		ShortEditWindow:  ar.ShortEditWindow,
		PinInheritWindow: ar.PinInheritWindow,
		MaxResponses:     ar.MaxResponses,
	}, autoreply.WithClock(now))
	s.Execodes = execodes.New(db, execodes.WithClock(now))
	s.Remote = remote.New(db, cfg.Remote.Idle, remote.WithClock(now))
	s.Stats = stats.New(db, stats.WithClock(now))
	s.Extra = extra.New(db, cfg.Extra.Expiry, cfg.Extra.BaseURL, extra.WithClock(now))
	s.Identity = identity.New(db, cfg.Secret, identity.WithClock(now))
	s.Identity.AddRewriters(s.Channels, s.Profiles, s.AutoReply, s.Execodes, s.Remote, s.Stats)
	return s
}

// Open 打开数据库、建表并构建存储
func Open(ctx context.Context, cfg *config.Config) (*Stores, error) {
	db, err := database.Open(cfg.Database.Path)
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(ctx, db, Schemas...); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return New(db, cfg, nil), nil
}

// Sweepers 需要定期清理的存储
func (s *Stores) Sweepers() map[string]model.Sweeper {
	return map[string]model.Sweeper{
		"execodes":        s.Execodes,
		"extra_contents":  s.Extra,
		"remote_bindings": s.Remote,
	}
}

func (s *Stores) Close() error {
	return s.DB.Close()
}
