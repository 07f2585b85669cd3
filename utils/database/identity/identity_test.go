package identity

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

type recordingRewriter struct {
	calls [][2]string
	err   error
}

func (r *recordingRewriter) ReplaceUserTx(_ context.Context, _ *sqlx.Tx, src, dst string) error {
	r.calls = append(r.calls, [2]string{src, dst})
	return r.err
}

func newStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	db, err := database.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, database.Migrate(context.Background(), db, Schema))
	now := time.Unix(1_700_000_000, 0)
	opts = append([]Option{WithClock(func() time.Time { return now })}, opts...)
	return New(db, "secret", opts...)
}

func TestEnsureOnPlatUserIdempotent(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	u1, err := s.EnsureOnPlatUser(ctx, model.PlatformLine, "U123", "Alice")
	require.NoError(t, err)
	u2, err := s.EnsureOnPlatUser(ctx, model.PlatformLine, "U123", "")
	require.NoError(t, err)

	assert.Equal(t, u1.ID, u2.ID)
	assert.Len(t, u2.OnPlatIDs, 1)
	assert.True(t, u2.HasIdentity())

	other, err := s.EnsureOnPlatUser(ctx, model.PlatformDiscord, "U123", "Bob")
	require.NoError(t, err)
	assert.NotEqual(t, u1.ID, other.ID)

	got, err := s.GetByOnPlat(ctx, model.PlatformLine, "U123")
	require.NoError(t, err)
	assert.Equal(t, u1.ID, got.ID)

	missing, err := s.GetByOnPlat(ctx, model.PlatformLine, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)

	_, err = s.EnsureOnPlatUser(ctx, model.PlatformLine, "", "x")
	assert.ErrorIs(t, err, model.ErrValidation)
}

func TestAPIUserToken(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	u, token, err := s.EnsureAPIUser(ctx, "Someone@Example.com")
	require.NoError(t, err)
	assert.NotEmpty(t, u.APIID)
	assert.Len(t, token, 64)

	got, err := s.GetByAPIToken(ctx, token)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, u.ID, got.ID)

	again, rotated, err := s.EnsureAPIUser(ctx, "someone@example.com")
	require.NoError(t, err)
	assert.Equal(t, u.ID, again.ID)
	assert.NotEqual(t, token, rotated)

	old, err := s.GetByAPIToken(ctx, token)
	require.NoError(t, err)
	assert.Nil(t, old)

	_, _, err = s.EnsureAPIUser(ctx, "not-an-email")
	assert.ErrorIs(t, err, model.ErrValidation)
}

func TestMerge(t *testing.T) {
	rw := &recordingRewriter{}
	s := newStore(t, WithRewriters(rw))
	ctx := context.Background()

	src, err := s.EnsureOnPlatUser(ctx, model.PlatformLine, "L1", "line-name")
	require.NoError(t, err)
	dst, _, err := s.EnsureAPIUser(ctx, "dst@example.com")
	require.NoError(t, err)
	require.NoError(t, s.SetNameOverride(ctx, src.ID, "C1", "from-src"))

	require.NoError(t, s.Merge(ctx, src.ID, dst.ID))

	merged, err := s.GetByOnPlat(ctx, model.PlatformLine, "L1")
	require.NoError(t, err)
	assert.Equal(t, dst.ID, merged.ID)
	assert.Equal(t, "from-src", merged.NameOverride["C1"])
	assert.Equal(t, [][2]string{{src.ID, dst.ID}}, rw.calls)

	gone, err := s.GetByID(ctx, src.ID)
	require.NoError(t, err)
	assert.Nil(t, gone)

	assert.ErrorIs(t, s.Merge(ctx, dst.ID, dst.ID), model.ErrConflict)
}

func TestMergeRollsBackOnRewriterFailure(t *testing.T) {
	rw := &recordingRewriter{err: errors.New("profiles down")}
	s := newStore(t, WithRewriters(rw))
	ctx := context.Background()

	src, err := s.EnsureOnPlatUser(ctx, model.PlatformLine, "L1", "a")
	require.NoError(t, err)
	dst, err := s.EnsureOnPlatUser(ctx, model.PlatformDiscord, "D1", "b")
	require.NoError(t, err)

	require.Error(t, s.Merge(ctx, src.ID, dst.ID))

	still, err := s.GetByOnPlat(ctx, model.PlatformLine, "L1")
	require.NoError(t, err)
	assert.Equal(t, src.ID, still.ID)
}

func TestDisplayNameCacheInvalidation(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	u, err := s.EnsureOnPlatUser(ctx, model.PlatformDiscord, "D1", "Nick")
	require.NoError(t, err)
	assert.Equal(t, "Nick", s.DisplayName(ctx, u.ID, "C1"))

	require.NoError(t, s.SetNameOverride(ctx, u.ID, "C1", "Custom"))
	assert.Equal(t, "Custom", s.DisplayName(ctx, u.ID, "C1"))
	assert.Equal(t, "Nick", s.DisplayName(ctx, u.ID, "C2"))

	_, err = s.EnsureOnPlatUser(ctx, model.PlatformDiscord, "D1", "Renamed")
	require.NoError(t, err)
	assert.Equal(t, "Renamed", s.DisplayName(ctx, u.ID, "C2"))

	assert.Equal(t, "UID-missing", s.DisplayName(ctx, "missing", "C1"))
}
