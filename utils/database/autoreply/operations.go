package autoreply

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
	"go.uber.org/zap"
)

// ContentChecker 关键字与回应内容检查，见 utils.ContentValidator
type ContentChecker interface {
	Keyword(ctx context.Context, c model.Content) (model.Content, bool)
	Response(ctx context.Context, c model.Content) (model.Content, bool)
}

// Config 新增与覆盖的时间窗口
type Config struct {
	ShortEditWindow  time.Duration
	PinInheritWindow time.Duration
	MaxResponses     int
}

// Store 自动回复存储
type Store struct {
	db        *sqlx.DB
	now       model.Clock
	perms     model.PermissionChecker
	validator ContentChecker
	cfg       Config
}

type Option func(*Store)

func WithClock(now model.Clock) Option {
	return func(s *Store) { s.now = now }
}

func New(db *sqlx.DB, perms model.PermissionChecker, validator ContentChecker, cfg Config, opts ...Option) *Store {
	s := &Store{db: db, now: time.Now, perms: perms, validator: validator, cfg: cfg}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ model.AutoReplyStore = (*Store)(nil)

const moduleColumns = `id, channel_id, creator_id, kw_value, kw_type, responses, pinned, private, tag_ids,
	cooldown_sec, active, called_count, last_used_at, created_at, remover_id, removed_at`

func getModule(ctx context.Context, q sqlx.QueryerContext, where string, args ...any) (*model.AutoReplyModule, error) {
	var m model.AutoReplyModule
	err := sqlx.GetContext(ctx, q, &m, `SELECT `+moduleColumns+` FROM auto_reply_modules WHERE `+where, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get auto reply module: %w", err)
	}
	return &m, nil
}

func (s *Store) GetByID(ctx context.Context, id string) (*model.AutoReplyModule, error) {
	return getModule(ctx, s.db, "id = ?", id)
}

// GetActive 关键字对应的启用中模组
func (s *Store) GetActive(ctx context.Context, channelID string, kw model.Content) (*model.AutoReplyModule, error) {
	return getModule(ctx, s.db, "channel_id = ? AND kw_value = ? AND kw_type = ? AND active = 1", channelID, kw.Value, kw.Type)
}

// prepared 通过检查、等待写入的新模组
type prepared struct {
	keyword   model.Content
	responses model.ContentList
	info      []model.InfoFlag
}

func fieldError(field, msg string) *model.AddResult {
	return &model.AddResult{Outcome: model.AddFieldError, FieldErrors: map[string]string{field: msg}}
}

// prepare 检查字段、关键字与回应，整理回应数量与类型
func (s *Store) prepare(ctx context.Context, req model.AddRequest) (*prepared, *model.AddResult) {
	switch {
	case req.ChannelID == "":
		return nil, fieldError("channel", "channel is required")
	case req.CreatorID == "":
		return nil, fieldError("creator", "creator is required")
	case req.CooldownSec != nil && *req.CooldownSec < 0:
		return nil, fieldError("cooldown", "cooldown must not be negative")
	}

	kw, ok := s.validator.Keyword(ctx, req.Keyword)
	if !ok {
		return nil, &model.AddResult{Outcome: model.AddInvalidKeyword}
	}
	if len(req.Responses) == 0 {
		return nil, &model.AddResult{Outcome: model.AddInvalidResponse}
	}

	p := &prepared{keyword: kw}
	responses := req.Responses
	if s.cfg.MaxResponses > 0 && len(responses) > s.cfg.MaxResponses {
		responses = responses[:s.cfg.MaxResponses]
		p.info = append(p.info, model.InfoResponsesTruncated)
	}
	types := req.ResponseTypes
	switch {
	case len(types) < len(responses):
		padded := make([]model.ContentType, len(responses))
		copy(padded, types)
		types = padded
		p.info = append(p.info, model.InfoResponseTypesPadded)
	case len(types) > len(responses):
		types = types[:len(responses)]
		p.info = append(p.info, model.InfoResponseTypesTrimmed)
	}

	for i, value := range responses {
		c, ok := s.validator.Response(ctx, model.Content{Value: value, Type: types[i]})
		if !ok {
			return nil, &model.AddResult{Outcome: model.AddInvalidResponse, Info: p.info}
		}
		p.responses = append(p.responses, c)
	}
	return p, nil
}

// Add 新增自动回复模组。已有同关键字的启用中模组时覆盖它：
// 旧模组停用并记录移除者，建立未满 ShortEditWindow 且从未触发的旧模组直接删除。
func (s *Store) Add(ctx context.Context, req model.AddRequest) (*model.AddResult, error) {
	p, rejected := s.prepare(ctx, req)
	if rejected != nil {
		return rejected, nil
	}

	perms, err := s.perms.GetPermissions(ctx, req.CreatorID, req.ChannelID)
	if err != nil {
		return nil, err
	}
	canPin := perms.Has(model.PermAccessPinnedModule)

	now := s.now()
	result := &model.AddResult{Info: p.info}
	err = database.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		existing, err := getModule(ctx, tx,
			"channel_id = ? AND kw_value = ? AND kw_type = ? AND active = 1", req.ChannelID, p.keyword.Value, p.keyword.Type)
		if err != nil {
			return err
		}

		m := &model.AutoReplyModule{
			ID:          database.NewID(),
			ChannelID:   req.ChannelID,
			CreatorID:   req.CreatorID,
			KeywordText: p.keyword.Value,
			KeywordType: p.keyword.Type,
			Responses:   p.responses,
			Active:      true,
			CreatedAt:   model.NewTimestamp(now),
		}
		m.Pinned = req.Pinned != nil && *req.Pinned
		if req.Private != nil {
			m.Private = *req.Private
		}
		if req.CooldownSec != nil {
			m.CooldownSec = *req.CooldownSec
		}

		if existing != nil {
			if existing.Pinned && !canPin {
				result.Outcome = model.AddInsufficientPermission
				return nil
			}
			if existing.Pinned && !m.Pinned {
				result.Outcome = model.AddPinConflict
				return nil
			}
		} else if req.Pinned == nil && canPin {
			if err := s.inheritPinTx(ctx, tx, m, req, now, result); err != nil {
				return err
			}
		}
		if m.Pinned && !canPin {
			result.Outcome = model.AddInsufficientPermission
			return nil
		}

		if req.TagNames != nil {
			if m.TagIDs, err = ensureTagsTx(ctx, tx, req.TagNames); err != nil {
				return err
			}
		}

		if existing != nil {
			if err := s.supersedeTx(ctx, tx, existing, req.CreatorID, now, result); err != nil {
				return err
			}
			result.Superseded = existing
			result.Outcome = model.AddSuperseded
		} else {
			result.Outcome = model.AddInserted
		}
		if m.TagIDs == nil {
			m.TagIDs = model.StringList{}
		}
		if _, err := tx.NamedExecContext(ctx,
			`INSERT INTO auto_reply_modules (id, channel_id, creator_id, kw_value, kw_type, responses, pinned, private,
				tag_ids, cooldown_sec, active, called_count, created_at)
			 VALUES (:id, :channel_id, :creator_id, :kw_value, :kw_type, :responses, :pinned, :private,
				:tag_ids, :cooldown_sec, 1, 0, :created_at)`, m); err != nil {
			if database.IsUniqueViolation(err) {
				return model.NewOpError("autoreply.add", model.ErrConflict, err)
			}
			return fmt.Errorf("failed to insert auto reply module: %w", err)
		}
		result.Module = m
		return nil
	})
	if err != nil {
		return nil, err
	}
	if result.Module == nil {
		result.Superseded = nil
	}
	return result, nil
}

// inheritPinTx 没有启用中的模组时，沿用 PinInheritWindow 内停用的置顶模组的置顶、标签、冷却与私密设定
func (s *Store) inheritPinTx(ctx context.Context, tx *sqlx.Tx, m *model.AutoReplyModule, req model.AddRequest, now time.Time, result *model.AddResult) error {
	since := model.NewTimestamp(now.Add(-s.cfg.PinInheritWindow))
	prev, err := getModule(ctx, tx,
		`channel_id = ? AND kw_value = ? AND kw_type = ? AND active = 0 AND pinned = 1 AND removed_at >= ?
		 ORDER BY removed_at DESC LIMIT 1`, m.ChannelID, m.KeywordText, m.KeywordType, since)
	if err != nil || prev == nil {
		return err
	}
	m.Pinned = true
	if req.TagNames == nil {
		m.TagIDs = prev.TagIDs
	}
	if req.CooldownSec == nil {
		m.CooldownSec = prev.CooldownSec
	}
	if req.Private == nil {
		m.Private = prev.Private
	}
	result.Info = append(result.Info, model.InfoPinInherited)
	return nil
}

func (s *Store) supersedeTx(ctx context.Context, tx *sqlx.Tx, old *model.AutoReplyModule, actorID string, now time.Time, result *model.AddResult) error {
	if now.Sub(old.CreatedAt.Time) < s.cfg.ShortEditWindow && old.CalledCount == 0 {
		if _, err := tx.ExecContext(ctx, `DELETE FROM auto_reply_modules WHERE id = ?`, old.ID); err != nil {
			return fmt.Errorf("failed to purge auto reply module %s: %w", old.ID, err)
		}
		result.Info = append(result.Info, model.InfoOldModulePurged)
		return nil
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE auto_reply_modules SET active = 0, removed_at = ?, remover_id = ? WHERE id = ?`,
		model.NewTimestamp(now), actorID, old.ID); err != nil {
		return fmt.Errorf("failed to deactivate auto reply module %s: %w", old.ID, err)
	}
	old.Active = false
	old.RemoverID = actorID
	old.RemovedAt = model.NewTimestamp(now)
	return nil
}

func ensureTagsTx(ctx context.Context, tx *sqlx.Tx, names []string) (model.StringList, error) {
	ids := model.StringList{}
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO auto_reply_tags (id, name) VALUES (?, ?) ON CONFLICT(name) DO NOTHING`, database.NewID(), name); err != nil {
			return nil, fmt.Errorf("failed to insert tag %q: %w", name, err)
		}
		var id string
		if err := tx.GetContext(ctx, &id, `SELECT id FROM auto_reply_tags WHERE name = ?`, name); err != nil {
			return nil, fmt.Errorf("failed to get tag %q: %w", name, err)
		}
		if !ids.Contains(id) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// MarkInactive 停用频道中该关键字（所有内容类型）的启用中模组
func (s *Store) MarkInactive(ctx context.Context, channelID, keyword, actorID string) (model.RemoveOutcome, error) {
	keyword = strings.TrimSpace(keyword)
	var targets []model.AutoReplyModule
	err := s.db.SelectContext(ctx, &targets,
		`SELECT `+moduleColumns+` FROM auto_reply_modules WHERE channel_id = ? AND kw_value = ? AND active = 1`, channelID, keyword)
	if err != nil {
		return 0, fmt.Errorf("failed to find auto reply modules: %w", err)
	}
	if len(targets) == 0 {
		return model.RemoveNotFound, nil
	}

	pinned := false
	for _, m := range targets {
		pinned = pinned || m.Pinned
	}
	if pinned {
		perms, err := s.perms.GetPermissions(ctx, actorID, channelID)
		if err != nil {
			return 0, err
		}
		if !perms.Has(model.PermAccessPinnedModule) {
			return model.RemoveInsufficientPermission, nil
		}
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE auto_reply_modules SET active = 0, removed_at = ?, remover_id = ?
		 WHERE channel_id = ? AND kw_value = ? AND active = 1`,
		model.NewTimestamp(s.now()), actorID, channelID, keyword)
	if err != nil {
		return 0, fmt.Errorf("failed to deactivate auto reply modules: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.RemoveNotFound, nil
	}
	return model.RemoveRemoved, nil
}

// Match 关键字命中且不在冷却中时，原子地累加调用次数并更新最后使用时间。
// 冷却中的命中不改变任何状态。
func (s *Store) Match(ctx context.Context, channelID, value string, contentType model.ContentType) (*model.AutoReplyModule, error) {
	if contentType == model.ContentText {
		value = strings.TrimSpace(value)
	}
	if value == "" {
		return nil, nil
	}
	now := s.now().UnixMilli()

	var m model.AutoReplyModule
	err := s.db.GetContext(ctx, &m,
		`UPDATE auto_reply_modules SET called_count = called_count + 1, last_used_at = ?
		 WHERE channel_id = ? AND kw_value = ? AND kw_type = ? AND active = 1
		   AND (last_used_at IS NULL OR ? - last_used_at >= cooldown_sec * 1000)
		 RETURNING `+moduleColumns,
		now, channelID, value, contentType, now)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to match auto reply: %w", err)
	}
	zap.L().Debug("auto reply matched", zap.String("module_id", m.ID), zap.Int("called_count", m.CalledCount))
	return &m, nil
}

// ListModules 频道的模组，关键字按字母排序；keywordSubstr 非空时只列出包含它的关键字
func (s *Store) ListModules(ctx context.Context, channelID, keywordSubstr string, activeOnly bool) ([]*model.AutoReplyModule, error) {
	query := `SELECT ` + moduleColumns + ` FROM auto_reply_modules WHERE channel_id = ?`
	args := []any{channelID}
	if activeOnly {
		query += " AND active = 1"
	}
	if keywordSubstr != "" {
		query += ` AND kw_value LIKE ? ESCAPE '\'`
		args = append(args, "%"+escapeLike(keywordSubstr)+"%")
	}
	query += " ORDER BY kw_value, kw_type, created_at DESC"

	var out []*model.AutoReplyModule
	if err := s.db.SelectContext(ctx, &out, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list auto reply modules of %s: %w", channelID, err)
	}
	return out, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string { return likeEscaper.Replace(s) }

// ReplaceUserTx 合并用户时改写建立者与移除者
func (s *Store) ReplaceUserTx(ctx context.Context, tx *sqlx.Tx, srcID, dstID string) error {
	if _, err := tx.ExecContext(ctx, `UPDATE auto_reply_modules SET creator_id = ? WHERE creator_id = ?`, dstID, srcID); err != nil {
		return fmt.Errorf("failed to rewrite auto reply creators: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE auto_reply_modules SET remover_id = ? WHERE remover_id = ?`, dstID, srcID); err != nil {
		return fmt.Errorf("failed to rewrite auto reply removers: %w", err)
	}
	return nil
}
