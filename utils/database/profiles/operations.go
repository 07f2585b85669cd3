package profiles

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"jellybot/model"
	"jellybot/utils/database"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

const (
	DefaultProfileName = "Default"
	AdminProfileName   = "Admin"
)

const profileColumns = `id, channel_id, name, color, permission_level, permissions, is_default, created_at`

// Store 身份组存储
type Store struct {
	db  *sqlx.DB
	now model.Clock
}

type Option func(*Store)

func WithClock(now model.Clock) Option {
	return func(s *Store) { s.now = now }
}

func New(db *sqlx.DB, opts ...Option) *Store {
	s := &Store{db: db, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ model.ProfileStore = (*Store)(nil)

func (s *Store) getOne(ctx context.Context, q sqlx.QueryerContext, where string, args ...any) (*model.Profile, error) {
	var p model.Profile
	err := sqlx.GetContext(ctx, q, &p, `SELECT `+profileColumns+` FROM profiles WHERE `+where, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	return &p, nil
}

func (s *Store) GetByID(ctx context.Context, id string) (*model.Profile, error) {
	return s.getOne(ctx, s.db, "id = ?", id)
}

func (s *Store) GetByName(ctx context.Context, channelID, name string) (*model.Profile, error) {
	return s.getOne(ctx, s.db, "channel_id = ? AND name = ?", channelID, strings.TrimSpace(name))
}

// GetDefault 频道的默认身份组
func (s *Store) GetDefault(ctx context.Context, channelID string) (*model.Profile, error) {
	return s.getOne(ctx, s.db, "channel_id = ? AND is_default = 1", channelID)
}

// ListByChannel 频道内全部身份组，按等级由高到低
func (s *Store) ListByChannel(ctx context.Context, channelID string) ([]*model.Profile, error) {
	var out []*model.Profile
	err := s.db.SelectContext(ctx, &out,
		`SELECT `+profileColumns+` FROM profiles WHERE channel_id = ? ORDER BY permission_level DESC, name`, channelID)
	if err != nil {
		return nil, fmt.Errorf("failed to list profiles of channel %s: %w", channelID, err)
	}
	return out, nil
}

// CreateDefault 建立频道的默认身份组，已存在时返回现有的。
func (s *Store) CreateDefault(ctx context.Context, channelID string) (*model.Profile, error) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO profiles (id, channel_id, name, permission_level, permissions, is_default, created_at)
		 VALUES (?, ?, ?, ?, ?, 1, ?) ON CONFLICT DO NOTHING`,
		database.NewID(), channelID, DefaultProfileName, model.LevelNormal,
		model.FlagList{model.PermNormal}, model.NewTimestamp(s.now()))
	if err != nil {
		return nil, fmt.Errorf("failed to create default profile: %w", err)
	}
	p, err := s.GetDefault(ctx, channelID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("default profile of channel %s missing after create", channelID)
	}
	return p, nil
}

func (s *Store) connection(ctx context.Context, q sqlx.QueryerContext, channelID, userID string) (*model.ProfileConnection, error) {
	var c model.ProfileConnection
	err := sqlx.GetContext(ctx, q, &c,
		`SELECT channel_id, user_id, profile_ids, available FROM profile_connections WHERE channel_id = ? AND user_id = ?`,
		channelID, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get profile connection: %w", err)
	}
	return &c, nil
}

// ListForUser 用户在频道中生效的身份组（默认身份组在内），按等级由高到低
func (s *Store) ListForUser(ctx context.Context, channelID, userID string) ([]*model.Profile, error) {
	var out []*model.Profile
	def, err := s.GetDefault(ctx, channelID)
	if err != nil {
		return nil, err
	}
	if def != nil {
		out = append(out, def)
	}

	conn, err := s.connection(ctx, s.db, channelID, userID)
	if err != nil {
		return nil, err
	}
	// 已离开的用户只保留默认身份组
	if conn != nil && conn.Available && len(conn.ProfileIDs) > 0 {
		query, args, err := sqlx.In(
			`SELECT `+profileColumns+` FROM profiles WHERE channel_id = ? AND id IN (?)`, channelID, []string(conn.ProfileIDs))
		if err != nil {
			return nil, fmt.Errorf("failed to build profile query: %w", err)
		}
		var attached []*model.Profile
		if err := s.db.SelectContext(ctx, &attached, s.db.Rebind(query), args...); err != nil {
			return nil, fmt.Errorf("failed to get attached profiles: %w", err)
		}
		out = append(out, attached...)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].PermissionLevel != out[j].PermissionLevel {
			return out[i].PermissionLevel > out[j].PermissionLevel
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func permissionsOf(profiles []*model.Profile) (model.PermissionSet, model.PermissionLevel) {
	perms := model.NewPermissionSet(model.PermNormal)
	maxLevel := model.LevelNormal
	for _, p := range profiles {
		perms.Add(p.Permissions...)
		for f := range model.LevelPermissions(p.PermissionLevel) {
			perms.Add(f)
		}
		if p.PermissionLevel > maxLevel {
			maxLevel = p.PermissionLevel
		}
	}
	return perms, maxLevel
}

// GetPermissions 各身份组权限的并集，加上各等级隐含的权限
func (s *Store) GetPermissions(ctx context.Context, userID, channelID string) (model.PermissionSet, error) {
	perms, _, err := s.permissions(ctx, userID, channelID)
	return perms, err
}

func (s *Store) permissions(ctx context.Context, userID, channelID string) (model.PermissionSet, model.PermissionLevel, error) {
	profiles, err := s.ListForUser(ctx, channelID, userID)
	if err != nil {
		return nil, model.LevelNormal, err
	}
	perms, level := permissionsOf(profiles)
	return perms, level, nil
}

// RegisterNew 建立新身份组。需要 PRF_CED，等级不能高于申请者的最高等级，
// 权限必须在申请者等级可授予的范围内。
func (s *Store) RegisterNew(ctx context.Context, requesterID string, attrs model.ProfileAttrs) (model.ProfileOutcome, *model.Profile, error) {
	attrs.Name = strings.TrimSpace(attrs.Name)
	if attrs.Name == "" {
		return model.ProfileInvalidName, nil, nil
	}

	perms, maxLevel, err := s.permissions(ctx, requesterID, attrs.ChannelID)
	if err != nil {
		return 0, nil, err
	}
	if !perms.Has(model.PermProfileCED) {
		return model.ProfileInsufficientPermission, nil, nil
	}
	if attrs.PermissionLevel > maxLevel {
		return model.ProfileLevelTooHigh, nil, nil
	}
	grantable := model.LevelPermissions(maxLevel)
	for _, f := range attrs.Permissions {
		if !grantable.Has(f) {
			return model.ProfilePermissionNotGrantable, nil, nil
		}
	}

	p, err := s.insert(ctx, attrs, false)
	if database.IsUniqueViolation(err) {
		return model.ProfileNameConflict, nil, nil
	}
	if err != nil {
		return 0, nil, err
	}
	return model.ProfileOK, p, nil
}

func (s *Store) insert(ctx context.Context, attrs model.ProfileAttrs, isDefault bool) (*model.Profile, error) {
	p := &model.Profile{
		ID:              database.NewID(),
		ChannelID:       attrs.ChannelID,
		Name:            attrs.Name,
		Color:           attrs.Color,
		PermissionLevel: attrs.PermissionLevel,
		Permissions:     model.FlagList(dedupFlags(attrs.Permissions)),
		IsDefault:       isDefault,
		CreatedAt:       model.NewTimestamp(s.now()),
	}
	_, err := s.db.NamedExecContext(ctx,
		`INSERT INTO profiles (`+profileColumns+`)
		 VALUES (:id, :channel_id, :name, :color, :permission_level, :permissions, :is_default, :created_at)`, p)
	if err != nil {
		return nil, fmt.Errorf("failed to insert profile: %w", err)
	}
	return p, nil
}

func dedupFlags(flags []model.PermissionFlag) []model.PermissionFlag {
	if len(flags) == 0 {
		return []model.PermissionFlag{}
	}
	return model.NewPermissionSet(flags...).Sorted()
}

// checkControl 附加或移除身份组的共同检查
func (s *Store) checkControl(ctx context.Context, channelID, actorID, profileID, targetID string) (model.ProfileOutcome, error) {
	p, err := s.GetByID(ctx, profileID)
	if err != nil {
		return 0, err
	}
	if p == nil || p.ChannelID != channelID {
		return model.ProfileNotFound, nil
	}
	if p.IsDefault {
		return model.ProfileIsDefault, nil
	}

	perms, maxLevel, err := s.permissions(ctx, actorID, channelID)
	if err != nil {
		return 0, err
	}
	required := model.PermProfileControlMember
	if targetID == actorID {
		required = model.PermProfileControlSelf
	}
	if !perms.Has(required) {
		return model.ProfileInsufficientPermission, nil
	}
	if p.PermissionLevel > maxLevel {
		return model.ProfileLevelTooHigh, nil
	}
	return model.ProfileOK, nil
}

// Attach 把身份组附加给 target（为空表示 actor 自己）
func (s *Store) Attach(ctx context.Context, channelID, actorID, profileID, targetID string) (model.ProfileOutcome, error) {
	if targetID == "" {
		targetID = actorID
	}
	outcome, err := s.checkControl(ctx, channelID, actorID, profileID, targetID)
	if err != nil || outcome != model.ProfileOK {
		return outcome, err
	}
	return s.attach(ctx, channelID, profileID, targetID)
}

func (s *Store) attach(ctx context.Context, channelID, profileID, userID string) (model.ProfileOutcome, error) {
	outcome := model.ProfileOK
	err := database.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		conn, err := s.connection(ctx, tx, channelID, userID)
		if err != nil {
			return err
		}
		if conn == nil {
			_, err = tx.ExecContext(ctx,
				`INSERT INTO profile_connections (channel_id, user_id, profile_ids, available) VALUES (?, ?, ?, 1)`,
				channelID, userID, model.StringList{profileID})
			if err != nil {
				return fmt.Errorf("failed to insert profile connection: %w", err)
			}
			return nil
		}
		if conn.ProfileIDs.Contains(profileID) {
			outcome = model.ProfileAlreadyAttached
			return nil
		}
		ids := append(conn.ProfileIDs, profileID)
		if _, err := tx.ExecContext(ctx,
			`UPDATE profile_connections SET profile_ids = ?, available = 1 WHERE channel_id = ? AND user_id = ?`,
			ids, channelID, userID); err != nil {
			return fmt.Errorf("failed to attach profile: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return outcome, nil
}

// Detach 从 target 移除身份组，权限规则与 Attach 相同
func (s *Store) Detach(ctx context.Context, channelID, actorID, profileID, targetID string) (model.ProfileOutcome, error) {
	if targetID == "" {
		targetID = actorID
	}
	outcome, err := s.checkControl(ctx, channelID, actorID, profileID, targetID)
	if err != nil || outcome != model.ProfileOK {
		return outcome, err
	}

	outcome = model.ProfileOK
	err = database.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		conn, err := s.connection(ctx, tx, channelID, targetID)
		if err != nil {
			return err
		}
		if conn == nil || !conn.ProfileIDs.Contains(profileID) {
			outcome = model.ProfileNotAttached
			return nil
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE profile_connections SET profile_ids = ? WHERE channel_id = ? AND user_id = ?`,
			without(conn.ProfileIDs, profileID), channelID, targetID); err != nil {
			return fmt.Errorf("failed to detach profile: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return outcome, nil
}

func without(ids model.StringList, id string) model.StringList {
	out := make(model.StringList, 0, len(ids))
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

// Delete 删除身份组并从所有用户身上移除。默认身份组不能删除。
func (s *Store) Delete(ctx context.Context, channelID, profileID, actorID string) (model.ProfileOutcome, error) {
	p, err := s.GetByID(ctx, profileID)
	if err != nil {
		return 0, err
	}
	if p == nil || p.ChannelID != channelID {
		return model.ProfileNotFound, nil
	}
	if p.IsDefault {
		return model.ProfileIsDefault, nil
	}
	perms, err := s.GetPermissions(ctx, actorID, channelID)
	if err != nil {
		return 0, err
	}
	if !perms.Has(model.PermProfileCED) {
		return model.ProfileInsufficientPermission, nil
	}

	err = database.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		var conns []model.ProfileConnection
		err := tx.SelectContext(ctx, &conns,
			`SELECT channel_id, user_id, profile_ids, available FROM profile_connections WHERE channel_id = ? AND profile_ids LIKE ?`,
			channelID, `%"`+profileID+`"%`)
		if err != nil {
			return fmt.Errorf("failed to find connections of profile %s: %w", profileID, err)
		}
		for _, c := range conns {
			if _, err := tx.ExecContext(ctx,
				`UPDATE profile_connections SET profile_ids = ? WHERE channel_id = ? AND user_id = ?`,
				without(c.ProfileIDs, profileID), c.ChannelID, c.UserID); err != nil {
				return fmt.Errorf("failed to strip profile from %s: %w", c.UserID, err)
			}
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM profiles WHERE id = ?`, profileID); err != nil {
			return fmt.Errorf("failed to delete profile %s: %w", profileID, err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return model.ProfileOK, nil
}

// RegisterNewDefault 用户加入频道：建立（或恢复）成员关系
func (s *Store) RegisterNewDefault(ctx context.Context, channelID, userID string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO profile_connections (channel_id, user_id, profile_ids, available) VALUES (?, ?, '[]', 1)
		 ON CONFLICT(channel_id, user_id) DO UPDATE SET available = 1`,
		channelID, userID)
	if err != nil {
		return fmt.Errorf("failed to register member %s of channel %s: %w", userID, channelID, err)
	}
	return nil
}

// MarkUnavailable 用户离开频道，保留身份组以便回来后恢复
func (s *Store) MarkUnavailable(ctx context.Context, channelID, userID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE profile_connections SET available = 0 WHERE channel_id = ? AND user_id = ?`, channelID, userID)
	if err != nil {
		return fmt.Errorf("failed to mark member %s of channel %s unavailable: %w", userID, channelID, err)
	}
	return nil
}

// EnsureAdmin 频道里还没有在场的管理员时，把管理员身份组交给 userID；
// 否则只确保成员关系。用于通过 Execode 注册频道的用户。
func (s *Store) EnsureAdmin(ctx context.Context, channelID, userID string) error {
	if err := s.RegisterNewDefault(ctx, channelID, userID); err != nil {
		return err
	}

	admin, err := s.getOne(ctx, s.db, "channel_id = ? AND permission_level = ? ORDER BY created_at LIMIT 1", channelID, model.LevelAdmin)
	if err != nil {
		return err
	}
	if admin == nil {
		admin, err = s.insert(ctx, model.ProfileAttrs{
			ChannelID:       channelID,
			Name:            AdminProfileName,
			PermissionLevel: model.LevelAdmin,
		}, false)
		if database.IsUniqueViolation(err) {
			admin, err = s.insert(ctx, model.ProfileAttrs{
				ChannelID:       channelID,
				Name:            AdminProfileName + "-" + database.NewID()[:8],
				PermissionLevel: model.LevelAdmin,
			}, false)
		}
		if err != nil {
			return err
		}
	}

	var holders int
	err = s.db.GetContext(ctx, &holders,
		`SELECT COUNT(*) FROM profile_connections WHERE channel_id = ? AND available = 1 AND profile_ids LIKE ?`,
		channelID, `%"`+admin.ID+`"%`)
	if err != nil {
		return fmt.Errorf("failed to count admins of channel %s: %w", channelID, err)
	}
	if holders > 0 {
		return nil
	}
	if _, err := s.attach(ctx, channelID, admin.ID, userID); err != nil {
		return err
	}
	zap.L().Info("channel admin bootstrapped", zap.String("channel_id", channelID), zap.String("user_id", userID))
	return nil
}

// ReplaceUserTx 合并用户时把 src 的成员关系并入 dst
func (s *Store) ReplaceUserTx(ctx context.Context, tx *sqlx.Tx, srcID, dstID string) error {
	var conns []model.ProfileConnection
	err := tx.SelectContext(ctx, &conns,
		`SELECT channel_id, user_id, profile_ids, available FROM profile_connections WHERE user_id = ?`, srcID)
	if err != nil {
		return fmt.Errorf("failed to get connections of %s: %w", srcID, err)
	}
	for _, c := range conns {
		dst, err := s.connection(ctx, tx, c.ChannelID, dstID)
		if err != nil {
			return err
		}
		if dst == nil {
			if _, err := tx.ExecContext(ctx,
				`UPDATE profile_connections SET user_id = ? WHERE channel_id = ? AND user_id = ?`, dstID, c.ChannelID, srcID); err != nil {
				return fmt.Errorf("failed to move connection of channel %s: %w", c.ChannelID, err)
			}
			continue
		}
		ids := dst.ProfileIDs
		for _, id := range c.ProfileIDs {
			if !ids.Contains(id) {
				ids = append(ids, id)
			}
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE profile_connections SET profile_ids = ?, available = ? WHERE channel_id = ? AND user_id = ?`,
			ids, dst.Available || c.Available, c.ChannelID, dstID); err != nil {
			return fmt.Errorf("failed to merge connection of channel %s: %w", c.ChannelID, err)
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM profile_connections WHERE channel_id = ? AND user_id = ?`, c.ChannelID, srcID); err != nil {
			return fmt.Errorf("failed to delete connection of channel %s: %w", c.ChannelID, err)
		}
	}
	return nil
}
