package execode

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"jellybot/model"
	"jellybot/utils/database"

	"go.uber.org/zap"
)

// Store Execode 队列依赖的存储操作，由 utils/database/execodes 实现
type Store interface {
	Insert(ctx context.Context, e *model.ExecodeEntry) error
	ListByCreator(ctx context.Context, creatorID string) ([]*model.ExecodeEntry, error)
	Claim(ctx context.Context, code string) (*model.ExecodeEntry, error)
	Release(ctx context.Context, code string) error
	Delete(ctx context.Context, code string) (bool, error)
	DeleteByCreator(ctx context.Context, creatorID string) (int64, error)
}

// Action 一种待完成操作的定义
type Action struct {
	// RequiredKeys 完成时 params 必须带有的键
	RequiredKeys []string
	// Collate 原地整理 params，失败时返回 *CollationError
	Collate func(p Params) error
	// Construct 由入队时保存的 data 构造操作对象
	Construct func(data model.DataMap) (any, error)
	// Complete 执行副作用，返回 *NoCompleteActionError 时其 Code 即结果
	Complete func(ctx context.Context, entry *model.ExecodeEntry, payload any, p Params) error
}

// Config 队列参数
type Config struct {
	Length int
	Expiry time.Duration
}

const maxGenerateAttempts = 8

// Queue Execode 队列
type Queue struct {
	store   Store
	cfg     Config
	actions map[model.ExecodeAction]Action
	now     model.Clock
}

type Option func(*Queue)

func WithClock(now model.Clock) Option {
	return func(q *Queue) { q.now = now }
}

// WithAction 注册或覆盖一种操作
func WithAction(action model.ExecodeAction, a Action) Option {
	return func(q *Queue) { q.actions[action] = a }
}

func New(store Store, cfg Config, opts ...Option) *Queue {
	q := &Queue{store: store, cfg: cfg, actions: make(map[model.ExecodeAction]Action), now: time.Now}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Register 启动时注册操作
func (q *Queue) Register(actions map[model.ExecodeAction]Action) {
	for k, a := range actions {
		q.actions[k] = a
	}
}

// Result 完成结果
type Result struct {
	Code   Code
	Action model.ExecodeAction
	Detail string
	// Missing KEYS_LACKING 时缺少的键
	Missing []string
	// Reason COLLATION_ERROR 时的原因
	Reason CollationReason
}

func generate(length int) (string, error) {
	buf := make([]byte, (length+1)/2)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf)[:length], nil
}

// Enqueue 建立新的 Execode，重复时重新生成
func (q *Queue) Enqueue(ctx context.Context, creatorID string, action model.ExecodeAction, data model.DataMap) (*model.ExecodeEntry, error) {
	if _, ok := q.actions[action]; !ok {
		return nil, model.NewOpError("execode.enqueue", model.ErrValidation, fmt.Errorf("unsupported action %s", action))
	}
	if data == nil {
		data = model.DataMap{}
	}
	now := q.now()
	for attempt := 0; attempt < maxGenerateAttempts; attempt++ {
		code, err := generate(q.cfg.Length)
		if err != nil {
			return nil, fmt.Errorf("failed to generate execode: %w", err)
		}
		entry := &model.ExecodeEntry{
			Execode:   code,
			CreatorID: creatorID,
			Action:    action,
			CreatedAt: model.NewTimestamp(now),
			ExpiresAt: model.NewTimestamp(now.Add(q.cfg.Expiry)),
			Data:      data,
		}
		err = q.store.Insert(ctx, entry)
		if err == nil {
			return entry, nil
		}
		if !database.IsUniqueViolation(err) {
			return nil, err
		}
		zap.L().Debug("Execode collision, regenerating", zap.Int("attempt", attempt+1))
	}
	return nil, model.NewOpError("execode.enqueue", model.ErrConflict, errors.New("execode space exhausted"))
}

func (q *Queue) ListPending(ctx context.Context, creatorID string) ([]*model.ExecodeEntry, error) {
	return q.store.ListByCreator(ctx, creatorID)
}

// Clear 删除用户的全部 Execode
func (q *Queue) Clear(ctx context.Context, creatorID string) (int64, error) {
	return q.store.DeleteByCreator(ctx, creatorID)
}

func (q *Queue) Remove(ctx context.Context, code string) (bool, error) {
	return q.store.Delete(ctx, code)
}

// Complete 完成 Execode。记录先被占用，结果不是 OK 时释放，OK 时删除。
func (q *Queue) Complete(ctx context.Context, code string, params Params, expected *model.ExecodeAction) (Result, error) {
	entry, err := q.store.Claim(ctx, code)
	if err != nil {
		return Result{}, err
	}
	if entry == nil {
		return Result{Code: CodeNotFound}, nil
	}

	res := q.run(ctx, entry, params, expected)
	res.Action = entry.Action

	if res.Code != CodeOK {
		if rerr := q.store.Release(ctx, code); rerr != nil {
			zap.L().Error("Failed to release execode", zap.String("execode", code), zap.Error(rerr))
		}
		return res, nil
	}
	if _, derr := q.store.Delete(ctx, code); derr != nil {
		// 副作用已经完成，记录保持占用状态直到过期清理
		zap.L().Error("Failed to delete completed execode",
			zap.String("execode", code), zap.String("action", entry.Action.String()), zap.Error(derr))
	}
	return res, nil
}

func (q *Queue) run(ctx context.Context, entry *model.ExecodeEntry, params Params, expected *model.ExecodeAction) (res Result) {
	if expected != nil && *expected != entry.Action {
		return Result{Code: CodeTypeMismatch, Detail: fmt.Sprintf("expected %s, got %s", *expected, entry.Action)}
	}
	action, ok := q.actions[entry.Action]
	if !ok {
		return Result{Code: CodeConstructError, Detail: "unsupported action " + entry.Action.String()}
	}

	if params == nil {
		params = Params{}
	}
	var missing []string
	for _, key := range action.RequiredKeys {
		if _, ok := params[key]; !ok {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return Result{Code: CodeKeysLacking, Missing: missing}
	}

	params.Unwrap()
	if action.Collate != nil {
		if err := action.Collate(params); err != nil {
			var ce *CollationError
			if errors.As(err, &ce) {
				return Result{Code: CodeCollationError, Reason: ce.Reason, Detail: ce.Error()}
			}
			return Result{Code: CodeCollationError, Reason: ReasonMisc, Detail: err.Error()}
		}
	}

	var payload any
	if action.Construct != nil {
		var err error
		if payload, err = action.Construct(entry.Data); err != nil {
			return Result{Code: CodeConstructError, Detail: err.Error()}
		}
	}

	defer func() {
		if r := recover(); r != nil {
			zap.L().Error("Execode completer panicked",
				zap.String("execode", entry.Execode), zap.Any("panic", r))
			res = Result{Code: CodeCompletionError, Detail: fmt.Sprint(r)}
		}
	}()
	if err := action.Complete(ctx, entry, payload, params); err != nil {
		var nc *NoCompleteActionError
		if errors.As(err, &nc) {
			return Result{Code: nc.Code, Detail: nc.Reason}
		}
		zap.L().Error("Execode completion error",
			zap.String("execode", entry.Execode), zap.String("action", entry.Action.String()), zap.Error(err))
		return Result{Code: CodeCompletionError, Detail: err.Error()}
	}
	return Result{Code: CodeOK}
}
