package remote

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"jellybot/model"

	"github.com/jmoiron/sqlx"
)

// Store 远端控制表。expiry <= now 的绑定视为不存在。
type Store struct {
	db   *sqlx.DB
	now  model.Clock
	idle time.Duration
}

type Option func(*Store)

func WithClock(now model.Clock) Option {
	return func(s *Store) { s.now = now }
}

func New(db *sqlx.DB, idle time.Duration, opts ...Option) *Store {
	s := &Store{db: db, now: time.Now, idle: idle}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var (
	_ model.RemoteStore = (*Store)(nil)
	_ model.Sweeper     = (*Store)(nil)
)

const bindingColumns = `user_id, source_channel_id, target_channel_id, expiry`

// Activate 建立或替换绑定，到期时间为 now + idle
func (s *Store) Activate(ctx context.Context, userID, sourceID, targetID string) (*model.RemoteBinding, error) {
	b := &model.RemoteBinding{
		UserID:          userID,
		SourceChannelID: sourceID,
		TargetChannelID: targetID,
		ExpiresAt:       model.NewTimestamp(s.now().Add(s.idle)),
	}
	_, err := s.db.NamedExecContext(ctx,
		`INSERT INTO remote_bindings (`+bindingColumns+`) VALUES (:user_id, :source_channel_id, :target_channel_id, :expiry)
		 ON CONFLICT(user_id, source_channel_id) DO UPDATE SET target_channel_id = excluded.target_channel_id, expiry = excluded.expiry`, b)
	if err != nil {
		return nil, fmt.Errorf("failed to activate remote control: %w", err)
	}
	return b, nil
}

// Deactivate 有生效中的绑定被移除时返回 true
func (s *Store) Deactivate(ctx context.Context, userID, sourceID string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM remote_bindings WHERE user_id = ? AND source_channel_id = ? AND expiry > ?`,
		userID, sourceID, s.now().UnixMilli())
	if err != nil {
		return false, fmt.Errorf("failed to deactivate remote control: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check rows affected for remote control: %w", err)
	}
	if n == 0 {
		// 已过期的残留一并清掉
		if _, err := s.db.ExecContext(ctx,
			`DELETE FROM remote_bindings WHERE user_id = ? AND source_channel_id = ?`, userID, sourceID); err != nil {
			return false, fmt.Errorf("failed to delete expired remote control: %w", err)
		}
	}
	return n > 0, nil
}

// GetCurrent 生效中的绑定。updateExpiry 为 true 时顺延到期时间。
func (s *Store) GetCurrent(ctx context.Context, userID, sourceID string, updateExpiry bool) (*model.RemoteBinding, error) {
	now := s.now()
	var b model.RemoteBinding
	var err error
	if updateExpiry {
		err = s.db.GetContext(ctx, &b,
			`UPDATE remote_bindings SET expiry = ? WHERE user_id = ? AND source_channel_id = ? AND expiry > ?
			 RETURNING `+bindingColumns,
			now.Add(s.idle).UnixMilli(), userID, sourceID, now.UnixMilli())
	} else {
		err = s.db.GetContext(ctx, &b,
			`SELECT `+bindingColumns+` FROM remote_bindings WHERE user_id = ? AND source_channel_id = ? AND expiry > ?`,
			userID, sourceID, now.UnixMilli())
	}
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get remote control: %w", err)
	}
	return &b, nil
}

func (s *Store) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM remote_bindings WHERE expiry <= ?`, now.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired remote controls: %w", err)
	}
	return res.RowsAffected()
}

// ReplaceUserTx 合并用户时改写绑定，目标用户已有同来源绑定时保留目标用户的
func (s *Store) ReplaceUserTx(ctx context.Context, tx *sqlx.Tx, srcID, dstID string) error {
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM remote_bindings WHERE user_id = ? AND source_channel_id IN
		 (SELECT source_channel_id FROM remote_bindings WHERE user_id = ?)`, srcID, dstID); err != nil {
		return fmt.Errorf("failed to drop conflicting remote controls: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE remote_bindings SET user_id = ? WHERE user_id = ?`, dstID, srcID); err != nil {
		return fmt.Errorf("failed to rewrite remote controls: %w", err)
	}
	return nil
}
