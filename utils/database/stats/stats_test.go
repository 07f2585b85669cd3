package stats

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"jellybot/model"
	"jellybot/utils/database"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordAndSummarize(t *testing.T) {
	db, err := database.Open(":memory:")
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, database.Migrate(context.Background(), db, Schema))

	now := time.Unix(1_700_000_000, 0)
	r := New(db, WithClock(func() time.Time { return now }))
	ctx := context.Background()

	require.NoError(t, r.RecordMessage(ctx, &model.MessageRecord{
		ChannelID: "C1", UserID: "U1", MessageType: model.MessageText,
		Content: sql.NullString{String: "hi", Valid: true}, ProcessTimeSecs: 0.01,
	}))
	require.NoError(t, r.RecordMessage(ctx, &model.MessageRecord{ChannelID: "C1", MessageType: model.MessageUnknown}))
	require.NoError(t, r.RecordFeature(ctx, "C1", "U1", model.FeatureARTriggered))

	sum, err := r.Summary(ctx, "C1", now.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Messages)
	assert.Equal(t, 1, sum.Features)

	msgs, err := r.Messages(ctx, "C1", 10)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	var unknown model.MessageRecord
	for _, m := range msgs {
		if m.MessageType == model.MessageUnknown {
			unknown = m
		}
	}
	assert.False(t, unknown.Content.Valid)

	tx, err := db.Beginx()
	require.NoError(t, err)
	require.NoError(t, r.ReplaceUserTx(ctx, tx, "U1", "U2"))
	require.NoError(t, tx.Commit())

	features, err := r.Features(ctx, "C1", 10)
	require.NoError(t, err)
	require.Len(t, features, 1)
	assert.Equal(t, "U2", features[0].UserID)
	assert.Equal(t, model.FeatureARTriggered, features[0].Feature)
}
