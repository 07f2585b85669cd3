package execodes

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"jellybot/model"

	"github.com/jmoiron/sqlx"
)

// Store Execode 存储。过期的记录对所有读取都不可见，由定时清理删除。
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

var _ model.Sweeper = (*Store)(nil)

const entryColumns = `execode, creator_id, action_type, created_at, expiry, data`

// Insert 写入新记录。Execode 重复时返回的错误满足 database.IsUniqueViolation。
func (s *Store) Insert(ctx context.Context, e *model.ExecodeEntry) error {
	_, err := s.db.NamedExecContext(ctx,
		`INSERT INTO execodes (`+entryColumns+`) VALUES (:execode, :creator_id, :action_type, :created_at, :expiry, :data)`, e)
	if err != nil {
		return fmt.Errorf("failed to insert execode: %w", err)
	}
	return nil
}

func (s *Store) nowMillis() int64 { return s.now().UnixMilli() }

// Get 未过期且未被占用的记录
func (s *Store) Get(ctx context.Context, code string) (*model.ExecodeEntry, error) {
	var e model.ExecodeEntry
	err := s.db.GetContext(ctx, &e,
		`SELECT `+entryColumns+` FROM execodes WHERE execode = ? AND claimed = 0 AND expiry > ?`, code, s.nowMillis())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get execode: %w", err)
	}
	return &e, nil
}

// ListByCreator 用户未过期的记录，按建立时间排序
func (s *Store) ListByCreator(ctx context.Context, creatorID string) ([]*model.ExecodeEntry, error) {
	var out []*model.ExecodeEntry
	err := s.db.SelectContext(ctx, &out,
		`SELECT `+entryColumns+` FROM execodes WHERE creator_id = ? AND expiry > ? ORDER BY created_at`,
		creatorID, s.nowMillis())
	if err != nil {
		return nil, fmt.Errorf("failed to list execodes of %s: %w", creatorID, err)
	}
	return out, nil
}

// Claim 原子地占用记录。同一个 Execode 同时只有一次完成调用能拿到记录。
func (s *Store) Claim(ctx context.Context, code string) (*model.ExecodeEntry, error) {
	var e model.ExecodeEntry
	err := s.db.GetContext(ctx, &e,
		`UPDATE execodes SET claimed = 1 WHERE execode = ? AND claimed = 0 AND expiry > ? RETURNING `+entryColumns,
		code, s.nowMillis())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to claim execode: %w", err)
	}
	return &e, nil
}

// Release 完成失败时释放占用，记录保留到过期为止
func (s *Store) Release(ctx context.Context, code string) error {
	if _, err := s.db.ExecContext(ctx, `UPDATE execodes SET claimed = 0 WHERE execode = ?`, code); err != nil {
		return fmt.Errorf("failed to release execode: %w", err)
	}
	return nil
}

// Delete 返回是否删除了记录
func (s *Store) Delete(ctx context.Context, code string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM execodes WHERE execode = ?`, code)
	if err != nil {
		return false, fmt.Errorf("failed to delete execode: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check rows affected for execode: %w", err)
	}
	return n > 0, nil
}

// DeleteByCreator 删除用户的全部记录
func (s *Store) DeleteByCreator(ctx context.Context, creatorID string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM execodes WHERE creator_id = ?`, creatorID)
	if err != nil {
		return 0, fmt.Errorf("failed to clear execodes of %s: %w", creatorID, err)
	}
	return res.RowsAffected()
}

// DeleteExpired 定时清理
func (s *Store) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM execodes WHERE expiry <= ?`, now.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired execodes: %w", err)
	}
	return res.RowsAffected()
}

func (s *Store) ReplaceUserTx(ctx context.Context, tx *sqlx.Tx, srcID, dstID string) error {
	if _, err := tx.ExecContext(ctx, `UPDATE execodes SET creator_id = ? WHERE creator_id = ?`, dstID, srcID); err != nil {
		return fmt.Errorf("failed to rewrite execode creators: %w", err)
	}
	return nil
}
