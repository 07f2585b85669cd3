package defs

import (
	"context"
	"strings"
	"testing"
	"time"

	"jellybot/commands"
	"jellybot/config"
	"jellybot/execode"
	"jellybot/model"
	"jellybot/utils/database"
	"jellybot/utils/database/stores"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	stores *stores.Stores
	queue  *execode.Queue
	disp   *commands.Dispatcher
	group  *model.Channel
	dm     *model.Channel
	user   *model.RootUser
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := database.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, database.Migrate(context.Background(), db, stores.Schemas...))

	cfg := config.Defaults()
	cfg.Secret = "s"
	s := stores.New(db, cfg, nil)
	q := execode.New(s.Execodes, execode.Config{Length: cfg.Execode.Length, Expiry: cfg.Execode.Expiry})
	q.Register(execode.DefaultActions(execode.Deps{
		Channels: s.Channels, Profiles: s.Profiles, Identity: s.Identity, AutoReply: s.AutoReply,
	}))
	root := Build(Deps{
		Identity: s.Identity, Channels: s.Channels, Profiles: s.Profiles,
		AutoReply: s.AutoReply, Remote: s.Remote, Execode: q, StartedAt: time.Now(),
	})

	ctx := context.Background()
	f := &fixture{stores: s, queue: q, disp: commands.NewDispatcher(root, s.Stats)}
	f.group, err = s.Channels.Register(ctx, model.PlatformLine, "Cgroup", "group")
	require.NoError(t, err)
	f.dm, err = s.Channels.Register(ctx, model.PlatformLine, "Ualice", "alice")
	require.NoError(t, err)
	f.user, err = s.Identity.EnsureOnPlatUser(ctx, model.PlatformLine, "Ualice", "alice")
	require.NoError(t, err)
	return f
}

func (f *fixture) run(t *testing.T, ch *model.Channel, text string) string {
	t.Helper()
	typ := model.ChannelTypePublicGrp
	if ch == f.dm {
		typ = model.ChannelTypePrivate
	}
	out, err := f.disp.Handle(context.Background(), &model.MessageEvent{
		Platform: model.PlatformLine, Content: text, ChannelType: typ,
		Channel: ch, User: f.user, UserToken: "Ualice",
	})
	require.NoError(t, err)
	parts := make([]string, len(out))
	for i, m := range out {
		parts[i] = m.Content
	}
	return strings.Join(parts, "\n")
}

func TestAutoReplyCommands(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	assert.Contains(t, f.run(t, f.group, "JC AR ADD hi hello there"), "hi → hello there")
	mod, err := f.stores.AutoReply.Match(ctx, f.group.ID, "hi", model.ContentText)
	require.NoError(t, err)
	require.NotNil(t, mod)
	assert.Equal(t, "hello there", mod.Responses[0].Value)

	assert.Contains(t, f.run(t, f.group, "JC AR LIST"), "hi (TEXT) → 1 个回复, 已调用 1 次")
	assert.Contains(t, f.run(t, f.group, "JC AR LIST zz"), "没有符合")
	assert.Contains(t, f.run(t, f.group, "JC AR RANK"), "#1 hi: 1 次")
	assert.Contains(t, f.run(t, f.group, "JC AR POP"), "#1 hi: 1 次 (1 个模组)")
	assert.Contains(t, f.run(t, f.group, "JC AR RANK x"), "整数")

	assert.Contains(t, f.run(t, f.group, "JC AR DEL hi"), "已删除")
	assert.Contains(t, f.run(t, f.group, "JC AR DEL hi"), "找不到")
}

func TestRemoteCommands(t *testing.T) {
	f := newFixture(t)

	assert.Contains(t, f.run(t, f.group, "JC RMC ACT "+f.group.ID), "PRIVATE_TEXT")
	assert.Contains(t, f.run(t, f.dm, "JC RMC ACT nope"), "找不到频道")
	assert.Contains(t, f.run(t, f.dm, "JC RMC ACT "+f.group.ID), "group")
	assert.Contains(t, f.run(t, f.dm, "JC RMC STATUS"), f.group.ID)
	assert.Contains(t, f.run(t, f.dm, "JC RMC DEACT"), "已停用")
	assert.Contains(t, f.run(t, f.dm, "JC RMC STATUS"), "未启用")
}

func TestProfileAndExecodeCommands(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	assert.Contains(t, f.run(t, f.group, "JC PRF PERM"), model.PermProfileControlSelf.String())
	assert.Contains(t, f.run(t, f.group, "JC PRF LIST"), "Default")

	entry, err := f.queue.Enqueue(ctx, f.user.ID, model.ActionRegisterChannel, nil)
	require.NoError(t, err)
	assert.Contains(t, f.run(t, f.dm, "JC EXC LIST"), entry.Execode)
	assert.Contains(t, f.run(t, f.group, "JC CNL REG "+entry.Execode), "操作完成")
	assert.Contains(t, f.run(t, f.group, "JC CNL REG "+entry.Execode), "不存在")
	assert.Contains(t, f.run(t, f.group, "JC PRF PERM"), model.PermProfileCED.String())

	def, err := f.stores.Profiles.GetByName(ctx, f.group.ID, "Default")
	require.NoError(t, err)
	assert.Contains(t, f.run(t, f.group, "JC PRF ATT "+def.ID), "默认身份组")
}

func TestProfileCreateAndDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	assert.Contains(t, f.run(t, f.group, "JC PRF NEW Mods"), "权限不足")
	require.NoError(t, f.stores.Profiles.EnsureAdmin(ctx, f.group.ID, f.user.ID))

	assert.Contains(t, f.run(t, f.group, "JC PRF NEW Mods zz"), "#RRGGBB")
	assert.Contains(t, f.run(t, f.group, "JC PRF NEW Mods ff8800"), "Mods")
	assert.Contains(t, f.run(t, f.group, "JC PRF NEW Mods"), "同名")

	mods, err := f.stores.Profiles.GetByName(ctx, f.group.ID, "Mods")
	require.NoError(t, err)
	require.NotNil(t, mods)
	assert.Equal(t, "#FF8800", mods.Color)

	assert.Contains(t, f.run(t, f.group, "JC PRF DEL "+mods.ID), "完成")
	gone, err := f.stores.Profiles.GetByName(ctx, f.group.ID, "Mods")
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func TestInfoAndHelp(t *testing.T) {
	f := newFixture(t)

	info := f.run(t, f.group, "JC INFO")
	assert.Contains(t, info, f.group.ID)
	assert.Contains(t, info, f.user.ID)
	assert.Contains(t, info, "alice")

	help := f.run(t, f.group, "JC HELP")
	assert.Contains(t, help, "JC AR ADD <keyword> <response>")
	assert.Contains(t, help, "JC RMC ACT <channel_id>")

	assert.Contains(t, f.run(t, f.group, "JC SYS"), "Go 版本")
}
