package identity

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"jellybot/model"
	"jellybot/utils/database"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// Rewriter 在合并用户时改写其他存储中对用户 ID 的引用。
// 所有 Rewriter 都在同一个事务里执行，任何一个失败整个合并回滚。
type Rewriter interface {
	ReplaceUserTx(ctx context.Context, tx *sqlx.Tx, srcID, dstID string) error
}

// Store 用户身份存储
type Store struct {
	db        *sqlx.DB
	secret    []byte
	now       model.Clock
	rewriters []Rewriter

	nameMu sync.RWMutex
	names  map[string]string // user id + "|" + channel id → 显示名称
}

type Option func(*Store)

func WithClock(now model.Clock) Option {
	return func(s *Store) { s.now = now }
}

// WithRewriters 登记合并用户时需要改写的存储
func WithRewriters(rw ...Rewriter) Option {
	return func(s *Store) { s.rewriters = append(s.rewriters, rw...) }
}

func New(db *sqlx.DB, secret string, opts ...Option) *Store {
	s := &Store{
		db:     db,
		secret: []byte(secret),
		now:    time.Now,
		names:  make(map[string]string),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AddRewriters 启动时各存储构建完成后再登记
func (s *Store) AddRewriters(rw ...Rewriter) {
	s.rewriters = append(s.rewriters, rw...)
}

var _ model.IdentityStore = (*Store)(nil)

const rootColumns = `id, api_id, language, tz, auto_dst, name_override, created_at`

func (s *Store) insertRootTx(ctx context.Context, tx *sqlx.Tx, apiID string) (string, error) {
	id := database.NewID()
	_, err := tx.ExecContext(ctx,
		`INSERT INTO root_users (id, api_id, name_override, created_at) VALUES (?, ?, '{}', ?)`,
		id, apiID, model.NewTimestamp(s.now()))
	if err != nil {
		return "", fmt.Errorf("failed to insert root user: %w", err)
	}
	return id, nil
}

func loadRoot(ctx context.Context, q sqlx.QueryerContext, id string) (*model.RootUser, error) {
	var u model.RootUser
	err := sqlx.GetContext(ctx, q, &u, `SELECT `+rootColumns+` FROM root_users WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get root user %s: %w", id, err)
	}
	var ids []string
	if err := sqlx.SelectContext(ctx, q, &ids, `SELECT id FROM onplat_users WHERE root_id = ? ORDER BY id`, id); err != nil {
		return nil, fmt.Errorf("failed to get identities of root user %s: %w", id, err)
	}
	u.OnPlatIDs = ids
	return &u, nil
}

// EnsureOnPlatUser 确保平台身份与对应的根用户存在，name 非空时更新最后看到的名称。
func (s *Store) EnsureOnPlatUser(ctx context.Context, platform model.Platform, token, name string) (*model.RootUser, error) {
	if token == "" {
		return nil, model.NewOpError("identity.ensure", model.ErrValidation, errors.New("empty user token"))
	}

	var rootID string
	var renamed bool
	err := database.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		var existing model.OnPlatformIdentity
		err := tx.GetContext(ctx, &existing,
			`SELECT id, platform, token, root_id, name, seen_at FROM onplat_users WHERE platform = ? AND token = ?`,
			platform, token)
		now := model.NewTimestamp(s.now())
		switch {
		case err == nil:
			rootID = existing.RootID
			if name != "" && name != existing.Name {
				renamed = true
			}
			if name == "" {
				name = existing.Name
			}
			_, err = tx.ExecContext(ctx, `UPDATE onplat_users SET name = ?, seen_at = ? WHERE id = ?`, name, now, existing.ID)
			if err != nil {
				return fmt.Errorf("failed to update identity %s: %w", existing.ID, err)
			}
			return nil
		case errors.Is(err, sql.ErrNoRows):
			rootID, err = s.insertRootTx(ctx, tx, "")
			if err != nil {
				return err
			}
			_, err = tx.ExecContext(ctx,
				`INSERT INTO onplat_users (id, platform, token, root_id, name, seen_at) VALUES (?, ?, ?, ?, ?, ?)`,
				database.NewID(), platform, token, rootID, name, now)
			if err != nil {
				return fmt.Errorf("failed to insert identity: %w", err)
			}
			return nil
		default:
			return fmt.Errorf("failed to get identity: %w", err)
		}
	})
	if err != nil {
		return nil, err
	}
	if renamed {
		s.invalidate(rootID)
	}
	return loadRoot(ctx, s.db, rootID)
}

// GetByOnPlat 按平台身份查找根用户
func (s *Store) GetByOnPlat(ctx context.Context, platform model.Platform, token string) (*model.RootUser, error) {
	var rootID string
	err := s.db.GetContext(ctx, &rootID, `SELECT root_id FROM onplat_users WHERE platform = ? AND token = ?`, platform, token)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get identity: %w", err)
	}
	return loadRoot(ctx, s.db, rootID)
}

func (s *Store) GetByID(ctx context.Context, id string) (*model.RootUser, error) {
	return loadRoot(ctx, s.db, id)
}

// Identities 根用户的全部平台身份
func (s *Store) Identities(ctx context.Context, rootID string) ([]model.OnPlatformIdentity, error) {
	var out []model.OnPlatformIdentity
	err := s.db.SelectContext(ctx, &out,
		`SELECT id, platform, token, root_id, name, seen_at FROM onplat_users WHERE root_id = ? ORDER BY id`, rootID)
	if err != nil {
		return nil, fmt.Errorf("failed to list identities of %s: %w", rootID, err)
	}
	return out, nil
}

func (s *Store) hashToken(token string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(token))
	return hex.EncodeToString(mac.Sum(nil))
}

func newToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// EnsureAPIUser 确保邮箱对应的 API 用户与根用户存在，并签发新令牌（旧令牌失效）。
func (s *Store) EnsureAPIUser(ctx context.Context, email string) (*model.RootUser, string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, "", model.NewOpError("identity.api_user", model.ErrValidation, fmt.Errorf("invalid email %q", email))
	}
	token, err := newToken()
	if err != nil {
		return nil, "", err
	}
	hash := s.hashToken(token)

	var rootID string
	err = database.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		var apiID string
		err := tx.GetContext(ctx, &apiID, `SELECT id FROM api_users WHERE email = ?`, email)
		switch {
		case err == nil:
			if _, err := tx.ExecContext(ctx, `UPDATE api_users SET token_hash = ? WHERE id = ?`, hash, apiID); err != nil {
				return fmt.Errorf("failed to rotate api token: %w", err)
			}
		case errors.Is(err, sql.ErrNoRows):
			apiID = database.NewID()
			_, err = tx.ExecContext(ctx, `INSERT INTO api_users (id, email, token_hash, created_at) VALUES (?, ?, ?, ?)`,
				apiID, email, hash, model.NewTimestamp(s.now()))
			if err != nil {
				return fmt.Errorf("failed to insert api user: %w", err)
			}
		default:
			return fmt.Errorf("failed to get api user: %w", err)
		}

		err = tx.GetContext(ctx, &rootID, `SELECT id FROM root_users WHERE api_id = ?`, apiID)
		if errors.Is(err, sql.ErrNoRows) {
			rootID, err = s.insertRootTx(ctx, tx, apiID)
		}
		if err != nil {
			return fmt.Errorf("failed to ensure root of api user: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, "", err
	}
	u, err := loadRoot(ctx, s.db, rootID)
	return u, token, err
}

// GetByAPIToken 按 Bearer 令牌查找根用户
func (s *Store) GetByAPIToken(ctx context.Context, token string) (*model.RootUser, error) {
	if token == "" {
		return nil, nil
	}
	var rootID string
	err := s.db.GetContext(ctx, &rootID,
		`SELECT r.id FROM root_users r JOIN api_users a ON r.api_id = a.id WHERE a.token_hash = ?`, s.hashToken(token))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user by api token: %w", err)
	}
	return loadRoot(ctx, s.db, rootID)
}

// Merge 把 src 根用户合并进 dst：平台身份、API 身份、名称覆盖以及其他存储中的引用都改写到 dst，
// 最后删除 src。任何一步失败都整体回滚。
func (s *Store) Merge(ctx context.Context, srcID, dstID string) error {
	const op = "identity.merge"
	if srcID == dstID {
		return model.NewOpError(op, model.ErrConflict, errors.New("source and destination are the same user"))
	}

	err := database.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		src, err := loadRoot(ctx, tx, srcID)
		if err != nil {
			return err
		}
		dst, err := loadRoot(ctx, tx, dstID)
		if err != nil {
			return err
		}
		if src == nil || dst == nil {
			return model.NewOpError(op, model.ErrNotFound, fmt.Errorf("root user %s or %s missing", srcID, dstID))
		}
		if src.APIID != "" && dst.APIID != "" {
			return model.NewOpError(op, model.ErrConflict, errors.New("both users are bound to an api account"))
		}

		override := model.StringMap{}
		for k, v := range src.NameOverride {
			override[k] = v
		}
		for k, v := range dst.NameOverride {
			override[k] = v
		}
		apiID := dst.APIID
		if apiID == "" {
			apiID = src.APIID
		}

		if _, err := tx.ExecContext(ctx, `UPDATE onplat_users SET root_id = ? WHERE root_id = ?`, dstID, srcID); err != nil {
			return fmt.Errorf("failed to move identities: %w", err)
		}
		// 先删 src 再写 dst 的 api_id，避免唯一索引冲突
		if _, err := tx.ExecContext(ctx, `DELETE FROM root_users WHERE id = ?`, srcID); err != nil {
			return fmt.Errorf("failed to delete source user: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `UPDATE root_users SET api_id = ?, name_override = ? WHERE id = ?`, apiID, override, dstID); err != nil {
			return fmt.Errorf("failed to update destination user: %w", err)
		}
		for _, rw := range s.rewriters {
			if err := rw.ReplaceUserTx(ctx, tx, srcID, dstID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		zap.L().Warn("user merge aborted", zap.String("src", srcID), zap.String("dst", dstID), zap.Error(err))
		return err
	}
	s.invalidate(srcID)
	s.invalidate(dstID)
	return nil
}

// SetNameOverride 设置用户在某频道的显示名称，name 为空表示清除。
func (s *Store) SetNameOverride(ctx context.Context, userID, channelID, name string) error {
	err := database.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		var override model.StringMap
		err := tx.GetContext(ctx, &override, `SELECT name_override FROM root_users WHERE id = ?`, userID)
		if errors.Is(err, sql.ErrNoRows) {
			return model.NewOpError("identity.name_override", model.ErrNotFound, fmt.Errorf("root user %s", userID))
		}
		if err != nil {
			return fmt.Errorf("failed to get name override: %w", err)
		}
		if override == nil {
			override = model.StringMap{}
		}
		if name == "" {
			delete(override, channelID)
		} else {
			override[channelID] = name
		}
		if _, err := tx.ExecContext(ctx, `UPDATE root_users SET name_override = ? WHERE id = ?`, override, userID); err != nil {
			return fmt.Errorf("failed to update name override: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.invalidate(userID)
	return nil
}

// DisplayName 依次使用用户对频道设置的名称、最后看到的平台名称、缩写的用户 ID。
func (s *Store) DisplayName(ctx context.Context, userID, channelID string) string {
	key := userID + "|" + channelID
	s.nameMu.RLock()
	name, ok := s.names[key]
	s.nameMu.RUnlock()
	if ok {
		return name
	}

	name = s.resolveName(ctx, userID, channelID)
	s.nameMu.Lock()
	s.names[key] = name
	s.nameMu.Unlock()
	return name
}

func (s *Store) resolveName(ctx context.Context, userID, channelID string) string {
	fallback := "UID-" + userID
	if len(userID) > 8 {
		fallback = "UID-" + userID[len(userID)-8:]
	}

	u, err := loadRoot(ctx, s.db, userID)
	if err != nil {
		zap.L().Warn("failed to resolve display name", zap.String("user_id", userID), zap.Error(err))
		return fallback
	}
	if u == nil {
		return fallback
	}
	if n := u.NameOverride[channelID]; n != "" {
		return n
	}
	var names []string
	err = s.db.SelectContext(ctx, &names,
		`SELECT name FROM onplat_users WHERE root_id = ? AND name != '' ORDER BY seen_at DESC LIMIT 1`, userID)
	if err == nil && len(names) > 0 {
		return names[0]
	}
	return fallback
}

func (s *Store) invalidate(userID string) {
	prefix := userID + "|"
	s.nameMu.Lock()
	defer s.nameMu.Unlock()
	for key := range s.names {
		if strings.HasPrefix(key, prefix) {
			delete(s.names, key)
		}
	}
}
