package stats

import (
	"context"
	"fmt"
	"time"

	"jellybot/model"
	"jellybot/utils/database"

	"github.com/jmoiron/sqlx"
)

// Recorder 统计记录
type Recorder struct {
	db  *sqlx.DB
	now model.Clock
}

type Option func(*Recorder)

func WithClock(now model.Clock) Option {
	return func(r *Recorder) { r.now = now }
}

func New(db *sqlx.DB, opts ...Option) *Recorder {
	r := &Recorder{db: db, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

var _ model.StatsRecorder = (*Recorder)(nil)

// RecordMessage 未填写的 ID 与时间会自动补上
func (r *Recorder) RecordMessage(ctx context.Context, rec *model.MessageRecord) error {
	if rec.ID == "" {
		rec.ID = database.NewID()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = model.NewTimestamp(r.now())
	}
	_, err := r.db.NamedExecContext(ctx,
		`INSERT INTO message_records (id, channel_id, user_id, message_type, content, process_time_secs, created_at)
		 VALUES (:id, :channel_id, :user_id, :message_type, :content, :process_time_secs, :created_at)`, rec)
	if err != nil {
		return fmt.Errorf("failed to record message: %w", err)
	}
	return nil
}

func (r *Recorder) RecordFeature(ctx context.Context, channelID, userID string, feature model.BotFeature) error {
	u := model.FeatureUsage{
		ID:        database.NewID(),
		ChannelID: channelID,
		UserID:    userID,
		Feature:   feature,
		CreatedAt: model.NewTimestamp(r.now()),
	}
	_, err := r.db.NamedExecContext(ctx,
		`INSERT INTO feature_usages (id, channel_id, user_id, feature, created_at)
		 VALUES (:id, :channel_id, :user_id, :feature, :created_at)`, u)
	if err != nil {
		return fmt.Errorf("failed to record feature usage: %w", err)
	}
	return nil
}

// ChannelSummary 频道的消息数与功能触发数
type ChannelSummary struct {
	Messages int `db:"messages" json:"messages"`
	Features int `db:"features" json:"features"`
}

// Summary since 之后的频道统计
func (r *Recorder) Summary(ctx context.Context, channelID string, since time.Time) (*ChannelSummary, error) {
	var out ChannelSummary
	err := r.db.GetContext(ctx, &out,
		`SELECT
			(SELECT COUNT(*) FROM message_records WHERE channel_id = ? AND created_at >= ?) AS messages,
			(SELECT COUNT(*) FROM feature_usages WHERE channel_id = ? AND created_at >= ?) AS features`,
		channelID, since.UnixMilli(), channelID, since.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("failed to summarize channel %s: %w", channelID, err)
	}
	return &out, nil
}

// Messages 频道最近的消息记录，由新到旧
func (r *Recorder) Messages(ctx context.Context, channelID string, limit int) ([]model.MessageRecord, error) {
	var out []model.MessageRecord
	err := r.db.SelectContext(ctx, &out,
		`SELECT id, channel_id, user_id, message_type, content, process_time_secs, created_at
		 FROM message_records WHERE channel_id = ? ORDER BY id DESC LIMIT ?`, channelID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages of %s: %w", channelID, err)
	}
	return out, nil
}

// Features 频道最近的功能使用记录，由新到旧
func (r *Recorder) Features(ctx context.Context, channelID string, limit int) ([]model.FeatureUsage, error) {
	var out []model.FeatureUsage
	err := r.db.SelectContext(ctx, &out,
		`SELECT id, channel_id, user_id, feature, created_at
		 FROM feature_usages WHERE channel_id = ? ORDER BY id DESC LIMIT ?`, channelID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list feature usages of %s: %w", channelID, err)
	}
	return out, nil
}

func (r *Recorder) ReplaceUserTx(ctx context.Context, tx *sqlx.Tx, srcID, dstID string) error {
	for _, table := range []string{"message_records", "feature_usages"} {
		if _, err := tx.ExecContext(ctx, `UPDATE `+table+` SET user_id = ? WHERE user_id = ?`, dstID, srcID); err != nil {
			return fmt.Errorf("failed to rewrite users of %s: %w", table, err)
		}
	}
	return nil
}
