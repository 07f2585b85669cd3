package channels

import (
	"context"
	"errors"
	"testing"
	"time"

	"jellybot/model"
	"jellybot/utils/database"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProfiles struct {
	created []string
	fail    bool
}

func (f *fakeProfiles) CreateDefault(_ context.Context, channelID string) (*model.Profile, error) {
	if f.fail {
		return nil, errors.New("profiles unavailable")
	}
	f.created = append(f.created, channelID)
	return &model.Profile{ID: "P-" + channelID, ChannelID: channelID, IsDefault: true}, nil
}

func newStore(t *testing.T, p DefaultProfileCreator) (*Store, *sqlx.DB) {
	t.Helper()
	db, err := database.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, database.Migrate(context.Background(), db, Schema))
	now := time.Unix(1_700_000_000, 0)
	return New(db, WithClock(func() time.Time { return now }), WithDefaultProfiles(p)), db
}

func TestRegisterIdempotent(t *testing.T) {
	p := &fakeProfiles{}
	s, db := newStore(t, p)
	ctx := context.Background()

	c1, err := s.Register(ctx, model.PlatformLine, "C123", "group")
	require.NoError(t, err)
	c2, err := s.Register(ctx, model.PlatformLine, "C123", "other name")
	require.NoError(t, err)

	assert.Equal(t, c1.ID, c2.ID)
	assert.Equal(t, "group", c2.DefaultName)
	assert.Equal(t, "P-"+c1.ID, c2.DefaultProfileID)
	assert.Len(t, p.created, 1)
	assert.True(t, c1.EnableAutoReply)
	assert.True(t, c1.BotAccessible)

	var count int
	require.NoError(t, db.Get(&count, `SELECT COUNT(*) FROM channels WHERE platform = ? AND token = ?`, model.PlatformLine, "C123"))
	assert.Equal(t, 1, count)

	other, err := s.Register(ctx, model.PlatformDiscord, "C123", "")
	require.NoError(t, err)
	assert.NotEqual(t, c1.ID, other.ID)
}

func TestRegisterRepairsMissingDefaultProfile(t *testing.T) {
	p := &fakeProfiles{fail: true}
	s, _ := newStore(t, p)
	ctx := context.Background()

	_, err := s.Register(ctx, model.PlatformLine, "C1", "")
	require.Error(t, err)

	p.fail = false
	ch, err := s.Register(ctx, model.PlatformLine, "C1", "")
	require.NoError(t, err)
	assert.Equal(t, "P-"+ch.ID, ch.DefaultProfileID)
}

func TestNameAndAccessibility(t *testing.T) {
	s, _ := newStore(t, &fakeProfiles{})
	ctx := context.Background()

	ch, err := s.Register(ctx, model.PlatformDiscord, "D1", "old")
	require.NoError(t, err)

	changed, err := s.UpdateDefaultName(ctx, model.PlatformDiscord, "D1", "new")
	require.NoError(t, err)
	assert.True(t, changed)
	changed, err = s.UpdateDefaultName(ctx, model.PlatformDiscord, "D1", "new")
	require.NoError(t, err)
	assert.False(t, changed)

	require.NoError(t, s.Deregister(ctx, model.PlatformDiscord, "D1"))
	got, err := s.GetByID(ctx, ch.ID)
	require.NoError(t, err)
	assert.False(t, got.BotAccessible)
	assert.Equal(t, "new", got.DefaultName)
}

func TestFeaturesAndUserNames(t *testing.T) {
	s, db := newStore(t, &fakeProfiles{})
	ctx := context.Background()

	ch, err := s.Register(ctx, model.PlatformLine, "C1", "")
	require.NoError(t, err)

	require.NoError(t, s.SetFeature(ctx, ch.ID, model.FeatureToggleCalculator, false))
	assert.ErrorIs(t, s.SetFeature(ctx, ch.ID, "drop table", true), model.ErrValidation)
	assert.ErrorIs(t, s.SetFeature(ctx, "missing", model.FeatureToggleCalculator, true), model.ErrNotFound)

	require.NoError(t, s.SetUserName(ctx, ch.ID, "U1", "my group"))
	got, err := s.GetByID(ctx, ch.ID)
	require.NoError(t, err)
	assert.False(t, got.EnableCalculator)
	assert.Equal(t, "my group", got.NameFor("U1"))
	assert.Equal(t, got.DefaultName, got.NameFor("U2"))

	tx, err := db.Beginx()
	require.NoError(t, err)
	require.NoError(t, s.ReplaceUserTx(ctx, tx, "U1", "U9"))
	require.NoError(t, tx.Commit())

	got, err = s.GetByID(ctx, ch.ID)
	require.NoError(t, err)
	assert.Equal(t, "my group", got.NameFor("U9"))
	_, stale := got.PerUserName["U1"]
	assert.False(t, stale)
}

func TestRegisterCollection(t *testing.T) {
	s, _ := newStore(t, &fakeProfiles{})
	ctx := context.Background()

	coll, err := s.RegisterCollection(ctx, model.PlatformDiscord, "G1", "guild", "C1")
	require.NoError(t, err)
	coll2, err := s.RegisterCollection(ctx, model.PlatformDiscord, "G1", "", "C2")
	require.NoError(t, err)
	again, err := s.RegisterCollection(ctx, model.PlatformDiscord, "G1", "", "C1")
	require.NoError(t, err)

	assert.Equal(t, coll.ID, coll2.ID)
	assert.Equal(t, model.StringList{"C1", "C2"}, again.ChildChannelIDs)
	assert.Equal(t, "guild", again.DefaultName)

	got, err := s.GetCollection(ctx, model.PlatformDiscord, "G1")
	require.NoError(t, err)
	assert.Equal(t, coll.ID, got.ID)
	missing, err := s.GetCollection(ctx, model.PlatformDiscord, "G2")
	require.NoError(t, err)
	assert.Nil(t, missing)
}
