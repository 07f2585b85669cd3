package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"jellybot/config"
	"jellybot/execode"
	"jellybot/model"
	"jellybot/utils/database"
	"jellybot/utils/database/profiles"
	"jellybot/utils/database/stores"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type apiResponse struct {
	Success bool              `json:"success"`
	Errors  map[string]string `json:"errors"`
	Data    json.RawMessage   `json:"data"`
	Flags   []string          `json:"flags"`
	Result  json.RawMessage   `json:"result"`
}

type apiFixture struct {
	t      *testing.T
	stores *stores.Stores
	server *Server
	user   *model.RootUser
	token  string
	now    time.Time
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db, err := database.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, database.Migrate(context.Background(), db, stores.Schemas...))

	cfg := config.Defaults()
	cfg.Secret = "s"
	f := &apiFixture{t: t, now: time.Unix(1_700_000_000, 0)}
	clock := func() time.Time { return f.now }
	s := stores.New(db, cfg, clock)
	f.stores = s

	q := execode.New(s.Execodes, execode.Config{Length: cfg.Execode.Length, Expiry: cfg.Execode.Expiry}, execode.WithClock(clock))
	q.Register(execode.DefaultActions(execode.Deps{
		Channels: s.Channels, Profiles: s.Profiles, Identity: s.Identity, AutoReply: s.AutoReply,
	}))
	f.server = NewServer(Deps{
		Identity:  s.Identity,
		Channels:  s.Channels,
		Profiles:  s.Profiles,
		AutoReply: s.AutoReply,
		Execode:   q,
		Extra:     s.Extra,
		Validator: s.Validator,
		Stats:     s.Stats,
	}, WithClock(clock))

	f.user, f.token, err = s.Identity.EnsureAPIUser(context.Background(), "dev@example.com")
	require.NoError(t, err)
	return f
}

func (f *apiFixture) raw(method, path, token string, body any) *httptest.ResponseRecorder {
	f.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(f.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	f.server.Engine().ServeHTTP(w, req)
	return w
}

func (f *apiFixture) call(method, path string, body any) (int, apiResponse) {
	f.t.Helper()
	w := f.raw(method, path, f.token, body)
	var r apiResponse
	require.NoError(f.t, json.Unmarshal(w.Body.Bytes(), &r), w.Body.String())
	return w.Code, r
}

func resultString(t *testing.T, r apiResponse) string {
	t.Helper()
	var s string
	require.NoError(t, json.Unmarshal(r.Result, &s))
	return s
}

func TestAuthRequired(t *testing.T) {
	f := newAPIFixture(t)

	w := f.raw(http.MethodGet, "/api/execode/list", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = f.raw(http.MethodGet, "/api/execode/list", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	code, r := f.call(http.MethodGet, "/api/execode/list", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.True(t, r.Success)
	assert.JSONEq(t, `[]`, string(r.Data))
}

func TestAddAutoReply(t *testing.T) {
	f := newAPIFixture(t)
	_, err := f.stores.Channels.Register(context.Background(), model.PlatformLine, "C1", "group")
	require.NoError(t, err)

	code, r := f.call(http.MethodPost, "/api/auto_reply/add", map[string]any{
		"platform": "LINE", "channel_token": "C1", "keyword": "hi", "response": []string{"hello"},
	})
	require.Equal(t, http.StatusOK, code)
	assert.True(t, r.Success)
	assert.Equal(t, []string{"INSERTED"}, r.Flags)
	var mod model.AutoReplyModule
	require.NoError(t, json.Unmarshal(r.Data, &mod))
	assert.NotEmpty(t, mod.ID)
	assert.Equal(t, f.user.ID, mod.CreatorID)

	code, r = f.call(http.MethodPost, "/api/auto_reply/add", map[string]any{
		"platform": "LINE", "channel_token": "C1", "keyword": "hi",
	})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "required", r.Errors["response"])

	code, _ = f.call(http.MethodPost, "/api/auto_reply/add", map[string]any{
		"platform": "LINE", "channel_token": "C404", "keyword": "hi", "response": []string{"hello"},
	})
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = f.call(http.MethodPost, "/api/auto_reply/add", map[string]any{
		"platform": "MSN", "channel_token": "C1", "keyword": "hi", "response": []string{"hello"},
	})
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestAddAutoReplyByExecode(t *testing.T) {
	f := newAPIFixture(t)
	ctx := context.Background()
	ch, err := f.stores.Channels.Register(ctx, model.PlatformLine, "C1", "group")
	require.NoError(t, err)

	code, r := f.call(http.MethodPost, "/api/auto_reply/add_execode", map[string]any{
		"keyword": "ping", "response": []string{"pong"},
	})
	require.Equal(t, http.StatusOK, code)
	xc := resultString(t, r)
	assert.Len(t, xc, 10)

	code, r = f.call(http.MethodGet, "/api/execode/list", nil)
	require.Equal(t, http.StatusOK, code)
	var pending []model.ExecodeEntry
	require.NoError(t, json.Unmarshal(r.Data, &pending))
	require.Len(t, pending, 1)
	assert.Equal(t, model.ActionARAdd, pending[0].Action)

	code, r = f.call(http.MethodPost, "/api/execode/complete", map[string]any{
		"execode": xc, "platform": "LINE",
	})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, []string{"KEYS_LACKING"}, r.Flags)
	assert.Equal(t, "required", r.Errors[execode.KeyChannelToken])

	code, r = f.call(http.MethodPost, "/api/execode/complete", map[string]any{
		"execode": xc, "action_type": "REGISTER_CHANNEL", "platform": "LINE", "channel_token": "C1",
	})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, []string{"TYPE_MISMATCH"}, r.Flags)

	code, r = f.call(http.MethodPost, "/api/execode/complete", map[string]any{
		"execode": xc, "action_type": "AR_ADD", "platform": "LINE", "channel_token": "C1",
	})
	require.Equal(t, http.StatusOK, code, r.Errors)
	assert.True(t, r.Success)

	mod, err := f.stores.AutoReply.GetActive(ctx, ch.ID, model.Content{Value: "ping", Type: model.ContentText})
	require.NoError(t, err)
	require.NotNil(t, mod)
	assert.Equal(t, f.user.ID, mod.CreatorID)

	code, r = f.call(http.MethodPost, "/api/execode/complete", map[string]any{"execode": xc})
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, []string{"NOT_FOUND"}, r.Flags)
}

func TestCompleteValidation(t *testing.T) {
	f := newAPIFixture(t)

	code, r := f.call(http.MethodPost, "/api/execode/complete", map[string]any{"platform": "LINE"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "required", r.Errors["execode"])

	code, r = f.call(http.MethodPost, "/api/execode/complete", map[string]any{"execode": "x", "action_type": "NOPE"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "invalid", r.Errors["action_type"])
}

func TestRegisterChannelAndProfiles(t *testing.T) {
	f := newAPIFixture(t)
	ctx := context.Background()

	code, r := f.call(http.MethodPost, "/api/channel/issue_register_execode", nil)
	require.Equal(t, http.StatusOK, code)
	xc := resultString(t, r)

	code, r = f.call(http.MethodPost, "/api/execode/complete", map[string]any{
		"execode": xc, "platform": "1", "channel_token": "C9",
	})
	require.Equal(t, http.StatusOK, code, r.Errors)

	code, r = f.call(http.MethodGet, "/api/channel/data?platform=LINE&channel_token=C9", nil)
	require.Equal(t, http.StatusOK, code)
	var data struct {
		Channel     model.Channel          `json:"channel"`
		Permissions []model.PermissionFlag `json:"permissions"`
	}
	require.NoError(t, json.Unmarshal(r.Data, &data))
	assert.Contains(t, data.Permissions, model.PermProfileCED)
	chID := data.Channel.ID

	code, r = f.call(http.MethodGet, "/api/profile/perm?channel_oid="+chID, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, r.Flags, "PRF_CONTROL_MEMBER")

	code, r = f.call(http.MethodGet, "/api/profile/name?channel_oid="+chID+"&name="+profiles.AdminProfileName, nil)
	require.Equal(t, http.StatusOK, code)
	var admin model.Profile
	require.NoError(t, json.Unmarshal(r.Data, &admin))
	assert.NotEmpty(t, admin.ID)

	code, _ = f.call(http.MethodGet, "/api/profile/name?channel_oid="+chID+"&name=ghost", nil)
	assert.Equal(t, http.StatusNotFound, code)

	member, err := f.stores.Identity.EnsureOnPlatUser(ctx, model.PlatformLine, "Ubob", "bob")
	require.NoError(t, err)
	require.NoError(t, f.stores.Profiles.RegisterNewDefault(ctx, chID, member.ID))

	code, r = f.call(http.MethodPost, "/api/profile/attach", map[string]any{
		"profile_oid": admin.ID, "channel_oid": chID, "target_oid": member.ID,
	})
	require.Equal(t, http.StatusOK, code, r.Flags)
	perms, err := f.stores.Profiles.GetPermissions(ctx, member.ID, chID)
	require.NoError(t, err)
	assert.True(t, perms.Has(model.PermProfileCED))

	code, r = f.call(http.MethodPost, "/api/profile/detach", map[string]any{
		"profile_oid": admin.ID, "channel_oid": chID, "target_oid": member.ID,
	})
	require.Equal(t, http.StatusOK, code, r.Flags)

	code, r = f.call(http.MethodPost, "/api/profile/attach", map[string]any{
		"profile_oid": "missing", "channel_oid": chID,
	})
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, []string{"NOT_FOUND"}, r.Flags)

	code, r = f.call(http.MethodPost, "/api/channel/name_change", map[string]any{
		"channel_oid": chID, "new_name": "mine",
	})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "mine", resultString(t, r))
}

func TestChannelStats(t *testing.T) {
	f := newAPIFixture(t)
	ctx := context.Background()
	ch, err := f.stores.Channels.Register(ctx, model.PlatformLine, "C1", "group")
	require.NoError(t, err)
	require.NoError(t, f.stores.Stats.RecordFeature(ctx, ch.ID, f.user.ID, model.FeatureARAdd))

	code, r := f.call(http.MethodGet, "/api/channel/stats?platform=LINE&channel_token=C1", nil)
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"messages":0,"features":1}`, string(r.Data))

	f.now = f.now.Add(48 * time.Hour)
	_, r = f.call(http.MethodGet, "/api/channel/stats?platform=LINE&channel_token=C1", nil)
	assert.JSONEq(t, `{"messages":0,"features":0}`, string(r.Data))

	code, _ = f.call(http.MethodGet, "/api/channel/stats?platform=LINE&channel_token=C1&hours=0", nil)
	assert.Equal(t, http.StatusOK, code)

	code, r = f.call(http.MethodGet, "/api/channel/stats?platform=LINE&channel_token=C1&hours=-1", nil)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "min", r.Errors["hours"])
}

func TestValidateContent(t *testing.T) {
	f := newAPIFixture(t)

	code, r := f.call(http.MethodGet, "/api/auto_reply/validate?content=%20hi%20", nil)
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `true`, string(r.Result))
	var c model.Content
	require.NoError(t, json.Unmarshal(r.Data, &c))
	assert.Equal(t, "hi", c.Value)

	_, r = f.call(http.MethodGet, "/api/auto_reply/validate?content=nope&content_type=1", nil)
	assert.JSONEq(t, `false`, string(r.Result))

	code, r = f.call(http.MethodGet, "/api/auto_reply/validate", nil)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "required", r.Errors["content"])
}

func TestExtraPage(t *testing.T) {
	f := newAPIFixture(t)
	ctx := context.Background()

	items, err := json.Marshal([]model.OverflowItem{
		{Reason: model.OverflowTooLong, Content: "<b>long</b>"},
		{Reason: model.OverflowLatexAvailable, Content: `<p class="latex">\(x\)</p>`},
	})
	require.NoError(t, err)
	rec, err := f.stores.Extra.Record(ctx, model.ExtraMessage, "", "Overflow", string(items))
	require.NoError(t, err)

	w := f.raw(http.MethodGet, "/page/extra/"+rec.ID, "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "&lt;b&gt;long&lt;/b&gt;")
	assert.Contains(t, body, `<p class="latex">\(x\)</p>`)
	assert.Contains(t, body, "TOO_LONG")

	f.now = f.now.Add(200 * time.Hour)
	w = f.raw(http.MethodGet, "/page/extra/"+rec.ID, "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
