package profiles

import (
	"context"
	"testing"
	"time"

	"jellybot/model"
	"jellybot/utils/database"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const channelID = "CH1"

func newStore(t *testing.T) *Store {
	t.Helper()
	db, err := database.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, database.Migrate(context.Background(), db, Schema))
	now := time.Unix(1_700_000_000, 0)
	s := New(db, WithClock(func() time.Time { return now }))
	_, err = s.CreateDefault(context.Background(), channelID)
	require.NoError(t, err)
	return s
}

func TestCreateDefaultIdempotent(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	a, err := s.CreateDefault(ctx, channelID)
	require.NoError(t, err)
	b, err := s.CreateDefault(ctx, channelID)
	require.NoError(t, err)
	assert.Equal(t, a.ID, b.ID)
	assert.True(t, a.IsDefault)
}

func TestPermissionsFromLevel(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	perms, err := s.GetPermissions(ctx, "U1", channelID)
	require.NoError(t, err)
	assert.True(t, perms.Has(model.PermNormal))
	assert.True(t, perms.Has(model.PermProfileControlSelf))
	assert.False(t, perms.Has(model.PermProfileCED))

	require.NoError(t, s.EnsureAdmin(ctx, channelID, "U1"))
	perms, err = s.GetPermissions(ctx, "U1", channelID)
	require.NoError(t, err)
	assert.True(t, perms.Has(model.PermAdjustPrivacy))
	assert.True(t, perms.Has(model.PermAccessPinnedModule))

	// 第二个注册者不会自动成为管理员
	require.NoError(t, s.EnsureAdmin(ctx, channelID, "U2"))
	perms, err = s.GetPermissions(ctx, "U2", channelID)
	require.NoError(t, err)
	assert.False(t, perms.Has(model.PermProfileCED))
}

func TestRegisterNewRules(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	require.NoError(t, s.EnsureAdmin(ctx, channelID, "admin"))

	outcome, _, err := s.RegisterNew(ctx, "nobody", model.ProfileAttrs{ChannelID: channelID, Name: "Mods", PermissionLevel: model.LevelMod})
	require.NoError(t, err)
	assert.Equal(t, model.ProfileInsufficientPermission, outcome)

	outcome, mods, err := s.RegisterNew(ctx, "admin", model.ProfileAttrs{
		ChannelID: channelID, Name: " Mods ", PermissionLevel: model.LevelMod,
		Permissions: []model.PermissionFlag{model.PermAccessPinnedModule, model.PermAccessPinnedModule},
	})
	require.NoError(t, err)
	require.Equal(t, model.ProfileOK, outcome)
	assert.Equal(t, "Mods", mods.Name)
	assert.Equal(t, model.FlagList{model.PermAccessPinnedModule}, mods.Permissions)

	outcome, _, err = s.RegisterNew(ctx, "admin", model.ProfileAttrs{ChannelID: channelID, Name: "Mods"})
	require.NoError(t, err)
	assert.Equal(t, model.ProfileNameConflict, outcome)

	outcome, _, err = s.RegisterNew(ctx, "admin", model.ProfileAttrs{ChannelID: channelID, Name: "  "})
	require.NoError(t, err)
	assert.Equal(t, model.ProfileInvalidName, outcome)

	// 版主可以建立身份组，但不能超过自己的等级与可授予范围
	outcome, err = s.Attach(ctx, channelID, "admin", mods.ID, "mod")
	require.NoError(t, err)
	require.Equal(t, model.ProfileOK, outcome)

	outcome, _, err = s.RegisterNew(ctx, "mod", model.ProfileAttrs{ChannelID: channelID, Name: "Admins2", PermissionLevel: model.LevelAdmin})
	require.NoError(t, err)
	assert.Equal(t, model.ProfileLevelTooHigh, outcome)

	outcome, _, err = s.RegisterNew(ctx, "mod", model.ProfileAttrs{
		ChannelID: channelID, Name: "Privacy", Permissions: []model.PermissionFlag{model.PermAdjustPrivacy},
	})
	require.NoError(t, err)
	assert.Equal(t, model.ProfilePermissionNotGrantable, outcome)
}

func TestAttachDetachMatrix(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	require.NoError(t, s.EnsureAdmin(ctx, channelID, "admin"))
	_, helper, err := s.RegisterNew(ctx, "admin", model.ProfileAttrs{ChannelID: channelID, Name: "Helper"})
	require.NoError(t, err)
	def, err := s.GetDefault(ctx, channelID)
	require.NoError(t, err)

	// 普通用户可以给自己附加，不能给别人附加
	outcome, err := s.Attach(ctx, channelID, "U1", helper.ID, "")
	require.NoError(t, err)
	assert.Equal(t, model.ProfileOK, outcome)
	outcome, err = s.Attach(ctx, channelID, "U1", helper.ID, "U1")
	require.NoError(t, err)
	assert.Equal(t, model.ProfileAlreadyAttached, outcome)
	outcome, err = s.Attach(ctx, channelID, "U1", helper.ID, "U2")
	require.NoError(t, err)
	assert.Equal(t, model.ProfileInsufficientPermission, outcome)

	outcome, err = s.Attach(ctx, channelID, "admin", def.ID, "U2")
	require.NoError(t, err)
	assert.Equal(t, model.ProfileIsDefault, outcome)
	outcome, err = s.Detach(ctx, channelID, "admin", def.ID, "U2")
	require.NoError(t, err)
	assert.Equal(t, model.ProfileIsDefault, outcome)

	outcome, err = s.Attach(ctx, "other-channel", "admin", helper.ID, "U2")
	require.NoError(t, err)
	assert.Equal(t, model.ProfileNotFound, outcome)

	outcome, err = s.Detach(ctx, channelID, "admin", helper.ID, "U2")
	require.NoError(t, err)
	assert.Equal(t, model.ProfileNotAttached, outcome)
	outcome, err = s.Detach(ctx, channelID, "admin", helper.ID, "U1")
	require.NoError(t, err)
	assert.Equal(t, model.ProfileOK, outcome)

	list, err := s.ListForUser(ctx, channelID, "U1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.True(t, list[0].IsDefault)
}

func TestDeleteStripsConnections(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	require.NoError(t, s.EnsureAdmin(ctx, channelID, "admin"))
	_, p, err := s.RegisterNew(ctx, "admin", model.ProfileAttrs{ChannelID: channelID, Name: "Temp", PermissionLevel: model.LevelMod})
	require.NoError(t, err)
	_, err = s.Attach(ctx, channelID, "admin", p.ID, "U1")
	require.NoError(t, err)

	outcome, err := s.Delete(ctx, channelID, p.ID, "U1")
	require.NoError(t, err)
	assert.Equal(t, model.ProfileOK, outcome, "mod level grants PRF_CED")

	perms, err := s.GetPermissions(ctx, "U1", channelID)
	require.NoError(t, err)
	assert.False(t, perms.Has(model.PermProfileCED))

	def, err := s.GetDefault(ctx, channelID)
	require.NoError(t, err)
	outcome, err = s.Delete(ctx, channelID, def.ID, "admin")
	require.NoError(t, err)
	assert.Equal(t, model.ProfileIsDefault, outcome)
}

func TestMembershipAndMerge(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	require.NoError(t, s.EnsureAdmin(ctx, channelID, "src"))

	require.NoError(t, s.MarkUnavailable(ctx, channelID, "src"))
	perms, err := s.GetPermissions(ctx, "src", channelID)
	require.NoError(t, err)
	assert.False(t, perms.Has(model.PermProfileCED))

	require.NoError(t, s.RegisterNewDefault(ctx, channelID, "src"))
	perms, err = s.GetPermissions(ctx, "src", channelID)
	require.NoError(t, err)
	assert.True(t, perms.Has(model.PermProfileCED))

	tx, err := s.db.Beginx()
	require.NoError(t, err)
	require.NoError(t, s.ReplaceUserTx(ctx, tx, "src", "dst"))
	require.NoError(t, tx.Commit())

	perms, err = s.GetPermissions(ctx, "dst", channelID)
	require.NoError(t, err)
	assert.True(t, perms.Has(model.PermAdjustPrivacy))
	conn, err := s.connection(ctx, s.db, channelID, "src")
	require.NoError(t, err)
	assert.Nil(t, conn)
}
