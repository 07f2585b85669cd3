package execodes

import (
	"context"
	"testing"
	"time"

	"jellybot/model"
	"jellybot/utils/database"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClaimIsExclusiveAndExpiryHidesEntries(t *testing.T) {
	db, err := database.Open(":memory:")
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, database.Migrate(context.Background(), db, Schema))

	now := time.Unix(1_700_000_000, 0)
	s := New(db, WithClock(func() time.Time { return now }))
	ctx := context.Background()

	e := &model.ExecodeEntry{
		Execode:   "abc123",
		CreatorID: "U1",
		Action:    model.ActionSysTest,
		CreatedAt: model.NewTimestamp(now),
		ExpiresAt: model.NewTimestamp(now.Add(time.Minute)),
		Data:      model.DataMap{"k": "v"},
	}
	require.NoError(t, s.Insert(ctx, e))
	assert.True(t, database.IsUniqueViolation(s.Insert(ctx, e)))

	claimed, err := s.Claim(ctx, "abc123")
	require.NoError(t, err)
	require.NotNil(t, claimed)
	assert.Equal(t, "v", claimed.Data["k"])

	again, err := s.Claim(ctx, "abc123")
	require.NoError(t, err)
	assert.Nil(t, again)
	got, err := s.Get(ctx, "abc123")
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, s.Release(ctx, "abc123"))
	got, err = s.Get(ctx, "abc123")
	require.NoError(t, err)
	require.NotNil(t, got)

	now = now.Add(time.Minute)
	got, err = s.Get(ctx, "abc123")
	require.NoError(t, err)
	assert.Nil(t, got)
	list, err := s.ListByCreator(ctx, "U1")
	require.NoError(t, err)
	assert.Empty(t, list)

	n, err := s.DeleteExpired(ctx, now)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}
