package autoreply

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"jellybot/model"
	"jellybot/utils"
	"jellybot/utils/database"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

const (
	chanID  = "C1"
	creator = "U1"
	pinner  = "MOD"
)

type fakePerms map[string][]model.PermissionFlag

func (f fakePerms) GetPermissions(_ context.Context, userID, _ string) (model.PermissionSet, error) {
	return model.NewPermissionSet(f[userID]...), nil
}

type fixture struct {
	store *Store
	db    *sqlx.DB
	now   time.Time
}

func (f *fixture) advance(d time.Duration) { f.now = f.now.Add(d) }

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := database.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, database.Migrate(context.Background(), db, Schema))

	f := &fixture{db: db, now: time.Unix(1_700_000_000, 0)}
	perms := fakePerms{pinner: {model.PermAccessPinnedModule}}
	cfg := Config{ShortEditWindow: 60 * time.Second, PinInheritWindow: 7 * 24 * time.Hour, MaxResponses: 3}
	f.store = New(db, perms, utils.NewContentValidator(500, 2000, false), cfg,
		WithClock(func() time.Time { return f.now }))
	return f
}

func textReq(actor, kw string, responses ...string) model.AddRequest {
	return model.AddRequest{
		ChannelID: chanID,
		CreatorID: actor,
		Keyword:   model.Content{Value: kw, Type: model.ContentText},
		Responses: responses,
	}
}

func boolPtr(b bool) *bool { return &b }
func intPtr(i int) *int    { return &i }

func (f *fixture) count(t *testing.T, where string, args ...any) int {
	t.Helper()
	var n int
	require.NoError(t, f.db.Get(&n, `SELECT COUNT(*) FROM auto_reply_modules WHERE `+where, args...))
	return n
}

func TestAddAndMatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.store.Add(ctx, textReq(creator, "hi", "hello"))
	require.NoError(t, err)
	require.Equal(t, model.AddInserted, res.Outcome)

	m, err := f.store.Match(ctx, chanID, "hi", model.ContentText)
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, model.ContentList{{Value: "hello", Type: model.ContentText}}, m.Responses)
	assert.Equal(t, 1, m.CalledCount)
	assert.Equal(t, f.now.UnixMilli(), m.LastUsedAt.Millis())

	miss, err := f.store.Match(ctx, chanID, "hi", model.ContentImage)
	require.NoError(t, err)
	assert.Nil(t, miss)
	miss, err = f.store.Match(ctx, "other", "hi", model.ContentText)
	require.NoError(t, err)
	assert.Nil(t, miss)
}

func TestMatchCooldown(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req := textReq(creator, "hi", "hello")
	req.CooldownSec = intPtr(10)
	_, err := f.store.Add(ctx, req)
	require.NoError(t, err)

	m, err := f.store.Match(ctx, chanID, "hi", model.ContentText)
	require.NoError(t, err)
	require.NotNil(t, m)
	usedAt := m.LastUsedAt.Millis()

	f.advance(9 * time.Second)
	m, err = f.store.Match(ctx, chanID, "hi", model.ContentText)
	require.NoError(t, err)
	assert.Nil(t, m)

	active, err := f.store.GetActive(ctx, chanID, model.Content{Value: "hi"})
	require.NoError(t, err)
	assert.Equal(t, 1, active.CalledCount)
	assert.Equal(t, usedAt, active.LastUsedAt.Millis(), "suppressed match must not touch last_used_at")

	f.advance(time.Second)
	m, err = f.store.Match(ctx, chanID, "hi", model.ContentText)
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, 2, m.CalledCount)
}

func TestSupersedeWithinShortWindow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.store.Add(ctx, textReq(creator, "hi", "A"))
	require.NoError(t, err)
	f.advance(time.Second)
	res, err := f.store.Add(ctx, textReq(creator, "hi", "B"))
	require.NoError(t, err)

	assert.Equal(t, model.AddSuperseded, res.Outcome)
	assert.Contains(t, res.Info, model.InfoOldModulePurged)
	assert.Equal(t, 1, f.count(t, "channel_id = ?", chanID))
	active, err := f.store.GetActive(ctx, chanID, model.Content{Value: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "B", active.Responses[0].Value)
}

func TestSupersedeAfterWindow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.store.Add(ctx, textReq(creator, "hi", "A"))
	require.NoError(t, err)
	f.advance(120 * time.Second)
	res, err := f.store.Add(ctx, textReq(creator, "hi", "B"))
	require.NoError(t, err)
	require.Equal(t, model.AddSuperseded, res.Outcome)

	all, err := f.store.ListModules(ctx, chanID, "", false)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, 1, f.count(t, "active = 1"))

	old := res.Superseded
	require.NotNil(t, old)
	stored, err := f.store.GetByID(ctx, old.ID)
	require.NoError(t, err)
	assert.False(t, stored.Active)
	assert.Equal(t, creator, stored.RemoverID)
	assert.Equal(t, f.now.UnixMilli(), stored.RemovedAt.Millis())
}

func TestSupersedeKeepsTriggeredModule(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.store.Add(ctx, textReq(creator, "hi", "A"))
	require.NoError(t, err)
	_, err = f.store.Match(ctx, chanID, "hi", model.ContentText)
	require.NoError(t, err)
	f.advance(time.Second)
	_, err = f.store.Add(ctx, textReq(creator, "hi", "B"))
	require.NoError(t, err)

	assert.Equal(t, 2, f.count(t, "channel_id = ?", chanID))
}

func TestPinnedOverwritePermission(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req := textReq(pinner, "hi", "F")
	req.Pinned = boolPtr(true)
	res, err := f.store.Add(ctx, req)
	require.NoError(t, err)
	require.Equal(t, model.AddInserted, res.Outcome)

	res, err = f.store.Add(ctx, textReq(creator, "hi", "X"))
	require.NoError(t, err)
	assert.Equal(t, model.AddInsufficientPermission, res.Outcome)
	assert.Nil(t, res.Module)

	res, err = f.store.Add(ctx, textReq(pinner, "hi", "Y"))
	require.NoError(t, err)
	assert.Equal(t, model.AddPinConflict, res.Outcome)

	assert.Equal(t, 1, f.count(t, "channel_id = ?", chanID))
	active, err := f.store.GetActive(ctx, chanID, model.Content{Value: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "F", active.Responses[0].Value)

	outcome, err := f.store.MarkInactive(ctx, chanID, "hi", creator)
	require.NoError(t, err)
	assert.Equal(t, model.RemoveInsufficientPermission, outcome)

	plain := textReq(creator, "yo", "Z")
	plain.Pinned = boolPtr(true)
	res, err = f.store.Add(ctx, plain)
	require.NoError(t, err)
	assert.Equal(t, model.AddInsufficientPermission, res.Outcome)
}

func TestPinInheritance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req := textReq(pinner, "hi", "F")
	req.Pinned = boolPtr(true)
	req.CooldownSec = intPtr(30)
	req.TagNames = []string{"greeting"}
	_, err := f.store.Add(ctx, req)
	require.NoError(t, err)
	f.advance(time.Hour)
	outcome, err := f.store.MarkInactive(ctx, chanID, "hi", pinner)
	require.NoError(t, err)
	require.Equal(t, model.RemoveRemoved, outcome)

	f.advance(time.Hour)
	res, err := f.store.Add(ctx, textReq(pinner, "hi", "G"))
	require.NoError(t, err)
	require.Equal(t, model.AddInserted, res.Outcome)
	assert.Contains(t, res.Info, model.InfoPinInherited)
	assert.True(t, res.Module.Pinned)
	assert.Equal(t, 30, res.Module.CooldownSec)
	assert.Len(t, res.Module.TagIDs, 1)

	// 超过继承窗口后不再继承
	f.advance(time.Hour)
	_, err = f.store.MarkInactive(ctx, chanID, "hi", pinner)
	require.NoError(t, err)
	f.advance(8 * 24 * time.Hour)
	res, err = f.store.Add(ctx, textReq(pinner, "hi", "H"))
	require.NoError(t, err)
	assert.False(t, res.Module.Pinned)
	assert.NotContains(t, res.Info, model.InfoPinInherited)
}

func TestAddValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.store.Add(ctx, textReq(creator, "   ", "x"))
	require.NoError(t, err)
	assert.Equal(t, model.AddInvalidKeyword, res.Outcome)

	res, err = f.store.Add(ctx, textReq(creator, "hi"))
	require.NoError(t, err)
	assert.Equal(t, model.AddInvalidResponse, res.Outcome)

	req := textReq(creator, "hi", "x")
	req.CooldownSec = intPtr(-1)
	res, err = f.store.Add(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, model.AddFieldError, res.Outcome)
	assert.Contains(t, res.FieldErrors, "cooldown")

	img := textReq(creator, "pic", "not a url")
	img.ResponseTypes = []model.ContentType{model.ContentImage}
	res, err = f.store.Add(ctx, img)
	require.NoError(t, err)
	assert.Equal(t, model.AddInvalidResponse, res.Outcome)
}

func TestResponseListNormalization(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req := textReq(creator, "many", "1", "2", "3", "4")
	res, err := f.store.Add(ctx, req)
	require.NoError(t, err)
	require.Equal(t, model.AddInserted, res.Outcome)
	assert.Len(t, res.Module.Responses, 3)
	assert.Contains(t, res.Info, model.InfoResponsesTruncated)
	assert.Contains(t, res.Info, model.InfoResponseTypesPadded)

	req = textReq(creator, "trim", "1")
	req.ResponseTypes = []model.ContentType{model.ContentText, model.ContentImage}
	res, err = f.store.Add(ctx, req)
	require.NoError(t, err)
	require.Equal(t, model.AddInserted, res.Outcome)
	assert.Equal(t, []model.InfoFlag{model.InfoResponseTypesTrimmed}, res.Info)

	req = textReq(creator, "exact", "1", "2")
	req.ResponseTypes = []model.ContentType{model.ContentText, model.ContentText}
	res, err = f.store.Add(ctx, req)
	require.NoError(t, err)
	assert.Empty(t, res.Info)
}

func TestMarkInactive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	outcome, err := f.store.MarkInactive(ctx, chanID, "hi", creator)
	require.NoError(t, err)
	assert.Equal(t, model.RemoveNotFound, outcome)

	_, err = f.store.Add(ctx, textReq(creator, "hi", "A"))
	require.NoError(t, err)
	outcome, err = f.store.MarkInactive(ctx, chanID, " hi ", "U2")
	require.NoError(t, err)
	assert.Equal(t, model.RemoveRemoved, outcome)

	m, err := f.store.Match(ctx, chanID, "hi", model.ContentText)
	require.NoError(t, err)
	assert.Nil(t, m)

	all, err := f.store.ListModules(ctx, chanID, "", false)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "U2", all[0].RemoverID)
}

func TestListModulesFilter(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, kw := range []string{"apple", "pineapple", "banana", "100%"} {
		_, err := f.store.Add(ctx, textReq(creator, kw, "x"))
		require.NoError(t, err)
	}

	list, err := f.store.ListModules(ctx, chanID, "apple", true)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "apple", list[0].KeywordText)
	assert.Equal(t, "pineapple", list[1].KeywordText)

	list, err = f.store.ListModules(ctx, chanID, "%", true)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "100%", list[0].KeywordText)
}

func TestRankings(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	hits := map[string]int{"a": 3, "b": 3, "c": 1}
	for _, kw := range []string{"a", "b", "c"} {
		_, err := f.store.Add(ctx, textReq(creator, kw, "x"))
		require.NoError(t, err)
		for i := 0; i < hits[kw]; i++ {
			_, err := f.store.Match(ctx, chanID, kw, model.ContentText)
			require.NoError(t, err)
		}
	}
	// c 被覆盖后，旧模组的次数仍然计入关键字汇总
	f.advance(time.Hour)
	_, err := f.store.Add(ctx, textReq(creator, "c", "y"))
	require.NoError(t, err)
	_, err = f.store.Match(ctx, chanID, "c", model.ContentText)
	require.NoError(t, err)

	modules, err := f.store.ModuleCountRanking(ctx, chanID, 0)
	require.NoError(t, err)
	require.Len(t, modules, 4)
	assert.Equal(t, []string{"T1", "T1", "T3", "T3"}, []string{modules[0].Rank, modules[1].Rank, modules[2].Rank, modules[3].Rank})

	limited, err := f.store.ModuleCountRanking(ctx, chanID, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "T1", limited[0].Rank)

	keywords, err := f.store.UniqueKeywordRanking(ctx, chanID, 0)
	require.NoError(t, err)
	require.Len(t, keywords, 3)
	assert.Equal(t, "T1", keywords[0].Rank)
	assert.Equal(t, "T1", keywords[1].Rank)
	assert.Equal(t, "3", keywords[2].Rank)
	assert.Equal(t, "c", keywords[2].Keyword.Value)
	assert.Equal(t, 2, keywords[2].TotalCount)
	assert.Equal(t, 2, keywords[2].ModuleCount)
}

func TestCompetitionRanks(t *testing.T) {
	assert.Equal(t, []string{"1", "T2", "T2", "4"}, competitionRanks([]int{9, 5, 5, 1}))
	assert.Empty(t, competitionRanks(nil))
}

func TestConcurrentMatchHonorsCooldown(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := textReq(creator, "hi", "hello")
	req.CooldownSec = intPtr(60)
	_, err := f.store.Add(ctx, req)
	require.NoError(t, err)

	const callers = 20
	var (
		g    errgroup.Group
		hits atomic.Int32
	)
	for i := 0; i < callers; i++ {
		g.Go(func() error {
			m, err := f.store.Match(ctx, chanID, "hi", model.ContentText)
			if m != nil {
				hits.Add(1)
			}
			return err
		})
	}
	require.NoError(t, g.Wait())
	assert.Equal(t, int32(1), hits.Load())

	active, err := f.store.GetActive(ctx, chanID, model.Content{Value: "hi"})
	require.NoError(t, err)
	assert.Equal(t, 1, active.CalledCount)
}

func TestConcurrentMatchCountsEveryHit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.store.Add(ctx, textReq(creator, "hi", "hello"))
	require.NoError(t, err)

	const callers = 20
	var g errgroup.Group
	for i := 0; i < callers; i++ {
		g.Go(func() error {
			m, err := f.store.Match(ctx, chanID, "hi", model.ContentText)
			if err == nil && m == nil {
				return errors.New("match missed")
			}
			return err
		})
	}
	require.NoError(t, g.Wait())

	active, err := f.store.GetActive(ctx, chanID, model.Content{Value: "hi"})
	require.NoError(t, err)
	assert.Equal(t, callers, active.CalledCount)
}

func TestConcurrentAddKeepsOneActive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const writers = 10
	var g errgroup.Group
	for i := 0; i < writers; i++ {
		g.Go(func() error {
			_, err := f.store.Add(ctx, textReq(fmt.Sprintf("U%d", i), "hi", fmt.Sprintf("r%d", i)))
			return err
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, 1, f.count(t, "channel_id = ? AND active = 1", chanID))
	m, err := f.store.Match(ctx, chanID, "hi", model.ContentText)
	require.NoError(t, err)
	require.NotNil(t, m)
}
