package extra

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"jellybot/model"
	"jellybot/utils/database"

	"github.com/jmoiron/sqlx"
)

// Store 站外内容。记录写入后 expiry 前可通过 URL 读取。
type Store struct {
	db      *sqlx.DB
	now     model.Clock
	expiry  time.Duration
	baseURL string
}

type Option func(*Store)

func WithClock(now model.Clock) Option {
	return func(s *Store) { s.now = now }
}

func New(db *sqlx.DB, expiry time.Duration, baseURL string, opts ...Option) *Store {
	s := &Store{db: db, now: time.Now, expiry: expiry, baseURL: strings.TrimRight(baseURL, "/")}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var (
	_ model.ExtraSink = (*Store)(nil)
	_ model.Sweeper   = (*Store)(nil)
)

func (s *Store) Record(ctx context.Context, typ model.ExtraContentType, channelID, title, content string) (*model.ExtraContent, error) {
	now := s.now()
	e := &model.ExtraContent{
		ID:        database.NewID(),
		Type:      typ,
		ChannelID: channelID,
		Title:     title,
		Content:   content,
		CreatedAt: model.NewTimestamp(now),
		ExpiresAt: model.NewTimestamp(now.Add(s.expiry)),
	}
	_, err := s.db.NamedExecContext(ctx,
		`INSERT INTO extra_contents (id, type, channel_id, title, content, created_at, expiry)
		 VALUES (:id, :type, :channel_id, :title, :content, :created_at, :expiry)`, e)
	if err != nil {
		return nil, fmt.Errorf("failed to record extra content: %w", err)
	}
	return e, nil
}

// Get 已过期的内容视为不存在
func (s *Store) Get(ctx context.Context, id string) (*model.ExtraContent, error) {
	var e model.ExtraContent
	err := s.db.GetContext(ctx, &e,
		`SELECT id, type, channel_id, title, content, created_at, expiry
		 FROM extra_contents WHERE id = ? AND expiry > ?`, id, s.now().UnixMilli())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get extra content %s: %w", id, err)
	}
	return &e, nil
}

func (s *Store) URL(id string) string {
	return s.baseURL + "/page/extra/" + id
}

func (s *Store) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM extra_contents WHERE expiry <= ?`, now.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired extra contents: %w", err)
	}
	return res.RowsAffected()
}
