package channels

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"jellybot/model"
	"jellybot/utils/database"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// DefaultProfileCreator 新频道注册时建立默认身份组
type DefaultProfileCreator interface {
	CreateDefault(ctx context.Context, channelID string) (*model.Profile, error)
}

// Store 频道存储
type Store struct {
	db       *sqlx.DB
	now      model.Clock
	profiles DefaultProfileCreator
}

type Option func(*Store)

func WithClock(now model.Clock) Option {
	return func(s *Store) { s.now = now }
}

func WithDefaultProfiles(p DefaultProfileCreator) Option {
	return func(s *Store) { s.profiles = p }
}

func New(db *sqlx.DB, opts ...Option) *Store {
	s := &Store{db: db, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ model.ChannelStore = (*Store)(nil)

const channelColumns = `id, platform, token, default_name, bot_accessible, created_at, default_profile_id,
	info_private, enable_auto_reply, enable_bot_command, enable_calculator, per_user_name`

// featureColumns 可开关功能与列名，只有这里列出的列会被 SetFeature 写入。
var featureColumns = map[model.ChannelFeature]string{
	model.FeatureToggleAutoReply:  "enable_auto_reply",
	model.FeatureToggleBotCommand: "enable_bot_command",
	model.FeatureToggleCalculator: "enable_calculator",
	model.FeatureToggleInfoPriv:   "info_private",
}

func (s *Store) get(ctx context.Context, where string, args ...any) (*model.Channel, error) {
	var ch model.Channel
	err := s.db.GetContext(ctx, &ch, `SELECT `+channelColumns+` FROM channels WHERE `+where, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get channel: %w", err)
	}
	return &ch, nil
}

func (s *Store) GetByID(ctx context.Context, id string) (*model.Channel, error) {
	return s.get(ctx, "id = ?", id)
}

func (s *Store) GetByToken(ctx context.Context, platform model.Platform, token string) (*model.Channel, error) {
	return s.get(ctx, "platform = ? AND token = ?", platform, token)
}

// Register 确保频道存在，已存在时直接返回现有记录。
// 新频道（或之前建立默认身份组失败的频道）会补上默认身份组。
func (s *Store) Register(ctx context.Context, platform model.Platform, token, defaultName string) (*model.Channel, error) {
	if token == "" {
		return nil, model.NewOpError("channel.register", model.ErrValidation, errors.New("empty channel token"))
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO channels (id, platform, token, default_name, created_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(platform, token) DO NOTHING`,
		database.NewID(), platform, token, defaultName, model.NewTimestamp(s.now()))
	if err != nil {
		return nil, fmt.Errorf("failed to register channel %s/%s: %w", platform, token, err)
	}

	ch, err := s.GetByToken(ctx, platform, token)
	if err != nil {
		return nil, err
	}
	if ch == nil {
		return nil, fmt.Errorf("channel %s/%s missing after register", platform, token)
	}
	if ch.DefaultProfileID == "" && s.profiles != nil {
		prof, err := s.profiles.CreateDefault(ctx, ch.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to create default profile for channel %s: %w", ch.ID, err)
		}
		if _, err := s.db.ExecContext(ctx,
			`UPDATE channels SET default_profile_id = ? WHERE id = ? AND default_profile_id = ''`, prof.ID, ch.ID); err != nil {
			return nil, fmt.Errorf("failed to set default profile for channel %s: %w", ch.ID, err)
		}
		ch.DefaultProfileID = prof.ID
		zap.L().Info("channel registered", zap.String("channel_id", ch.ID), zap.Stringer("platform", platform))
	}
	return ch, nil
}

// UpdateDefaultName 名称有变化时返回 true
func (s *Store) UpdateDefaultName(ctx context.Context, platform model.Platform, token, name string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE channels SET default_name = ? WHERE platform = ? AND token = ? AND default_name != ?`,
		name, platform, token, name)
	if err != nil {
		return false, fmt.Errorf("failed to update channel name: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check rows affected for channel name: %w", err)
	}
	return n > 0, nil
}

func (s *Store) MarkAccessibility(ctx context.Context, platform model.Platform, token string, accessible bool) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE channels SET bot_accessible = ? WHERE platform = ? AND token = ?`, accessible, platform, token)
	if err != nil {
		return fmt.Errorf("failed to mark channel accessibility: %w", err)
	}
	return nil
}

// Deregister 机器人离开频道。资料保留，只标记为不可访问。
func (s *Store) Deregister(ctx context.Context, platform model.Platform, token string) error {
	return s.MarkAccessibility(ctx, platform, token, false)
}

// RegisterCollection 确保频道集合存在并加入子频道
func (s *Store) RegisterCollection(ctx context.Context, platform model.Platform, token, defaultName, childID string) (*model.ChannelCollection, error) {
	var coll model.ChannelCollection
	err := database.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO channel_collections (id, platform, token, default_name) VALUES (?, ?, ?, ?)
			 ON CONFLICT(platform, token) DO NOTHING`,
			database.NewID(), platform, token, defaultName)
		if err != nil {
			return fmt.Errorf("failed to insert channel collection: %w", err)
		}
		err = tx.GetContext(ctx, &coll,
			`SELECT id, platform, token, default_name, child_channel_ids FROM channel_collections WHERE platform = ? AND token = ?`,
			platform, token)
		if err != nil {
			return fmt.Errorf("failed to get channel collection: %w", err)
		}
		changed := false
		if childID != "" && !coll.ChildChannelIDs.Contains(childID) {
			coll.ChildChannelIDs = append(coll.ChildChannelIDs, childID)
			changed = true
		}
		if defaultName != "" && coll.DefaultName != defaultName {
			coll.DefaultName = defaultName
			changed = true
		}
		if !changed {
			return nil
		}
		_, err = tx.ExecContext(ctx, `UPDATE channel_collections SET child_channel_ids = ?, default_name = ? WHERE id = ?`,
			coll.ChildChannelIDs, coll.DefaultName, coll.ID)
		if err != nil {
			return fmt.Errorf("failed to update channel collection: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &coll, nil
}

// GetCollection 查询不到时返回 (nil, nil)
func (s *Store) GetCollection(ctx context.Context, platform model.Platform, token string) (*model.ChannelCollection, error) {
	var coll model.ChannelCollection
	err := s.db.GetContext(ctx, &coll,
		`SELECT id, platform, token, default_name, child_channel_ids FROM channel_collections WHERE platform = ? AND token = ?`,
		platform, token)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get channel collection: %w", err)
	}
	return &coll, nil
}

func (s *Store) SetFeature(ctx context.Context, channelID string, feature model.ChannelFeature, enabled bool) error {
	col, ok := featureColumns[feature]
	if !ok {
		return model.NewOpError("channel.set_feature", model.ErrValidation, fmt.Errorf("unknown feature %q", feature))
	}
	res, err := s.db.ExecContext(ctx, `UPDATE channels SET `+col+` = ? WHERE id = ?`, enabled, channelID)
	if err != nil {
		return fmt.Errorf("failed to set channel feature %s: %w", feature, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.NewOpError("channel.set_feature", model.ErrNotFound, fmt.Errorf("channel %s", channelID))
	}
	return nil
}

// SetUserName 用户为频道取的名称，name 为空表示清除。
func (s *Store) SetUserName(ctx context.Context, channelID, userID, name string) error {
	return database.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		var names model.StringMap
		err := tx.GetContext(ctx, &names, `SELECT per_user_name FROM channels WHERE id = ?`, channelID)
		if errors.Is(err, sql.ErrNoRows) {
			return model.NewOpError("channel.set_user_name", model.ErrNotFound, fmt.Errorf("channel %s", channelID))
		}
		if err != nil {
			return fmt.Errorf("failed to get channel names: %w", err)
		}
		if names == nil {
			names = model.StringMap{}
		}
		if name == "" {
			delete(names, userID)
		} else {
			names[userID] = name
		}
		if _, err := tx.ExecContext(ctx, `UPDATE channels SET per_user_name = ? WHERE id = ?`, names, channelID); err != nil {
			return fmt.Errorf("failed to update channel names: %w", err)
		}
		return nil
	})
}

// ReplaceUserTx 合并用户时改写 per_user_name 的键，目标用户已有的名称优先。
func (s *Store) ReplaceUserTx(ctx context.Context, tx *sqlx.Tx, srcID, dstID string) error {
	var rows []struct {
		ID    string          `db:"id"`
		Names model.StringMap `db:"per_user_name"`
	}
	err := tx.SelectContext(ctx, &rows, `SELECT id, per_user_name FROM channels WHERE per_user_name LIKE ?`, `%"`+srcID+`"%`)
	if err != nil {
		return fmt.Errorf("failed to find channel names of %s: %w", srcID, err)
	}
	for _, r := range rows {
		name, ok := r.Names[srcID]
		if !ok {
			continue
		}
		delete(r.Names, srcID)
		if _, exists := r.Names[dstID]; !exists {
			r.Names[dstID] = name
		}
		if _, err := tx.ExecContext(ctx, `UPDATE channels SET per_user_name = ? WHERE id = ?`, r.Names, r.ID); err != nil {
			return fmt.Errorf("failed to rewrite channel names of %s: %w", r.ID, err)
		}
	}
	return nil
}
