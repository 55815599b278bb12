package admin

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/damasnight/whatsapp-mod-bot/internal/session"
	"github.com/damasnight/whatsapp-mod-bot/internal/store"
)

type fakeBlacklist struct {
	entries map[string]store.BlacklistEntry
}

func (f *fakeBlacklist) Add(_ context.Context, userID string, addedBy string, reason string) (bool, error) {
	if _, ok := f.entries[userID]; ok {
		return true, nil
	}
	f.entries[userID] = store.BlacklistEntry{UserID: userID, AddedBy: addedBy, Reason: reason, CreatedAt: time.Now()}
	return false, nil
}

func (f *fakeBlacklist) Remove(_ context.Context, userID string) (bool, error) {
	if _, ok := f.entries[userID]; !ok {
		return false, nil
	}
	delete(f.entries, userID)
	return true, nil
}

func (f *fakeBlacklist) List(context.Context) ([]store.BlacklistEntry, error) {
	out := make([]store.BlacklistEntry, 0, len(f.entries))
	for _, e := range f.entries {
		out = append(out, e)
	}
	return out, nil
}

type fakeStrikes struct {
	counts map[string]int
}

func (f *fakeStrikes) Count(_ context.Context, userID string, groupID string) (int, error) {
	return f.counts[userID+"|"+groupID], nil
}

type fakeSweeper struct {
	allCalls   int
	groupCalls int
}

func (f *fakeSweeper) SweepAll(context.Context) error { f.allCalls++; return nil }
func (f *fakeSweeper) SweepGroup(context.Context, string) ([]string, error) {
	f.groupCalls++
	return []string{"5511999990003@s.whatsapp.net"}, nil
}

type fakeSession struct{ phase session.Phase }

func (f *fakeSession) Phase() session.Phase { return f.phase }

type fakeBot struct{ ready bool }

func (f *fakeBot) BotJID() string { return "5511999990099@s.whatsapp.net" }
func (f *fakeBot) IsReady() bool  { return f.ready }

func newTestApp(t *testing.T) (*fiber.App, *fakeBlacklist, *fakeSweeper) {
	t.Setenv("ADMIN_API_SECRET", "s3cret")

	bl := &fakeBlacklist{entries: make(map[string]store.BlacklistEntry)}
	st := &fakeStrikes{counts: map[string]int{
		"5511999990002@s.whatsapp.net|123@g.us": 2,
	}}
	sw := &fakeSweeper{}
	api := NewAPI(bl, st, sw, &fakeSession{phase: session.PhaseOpen}, &fakeBot{ready: true})

	app := fiber.New()
	app.Get("/health", api.Health)
	authed := app.Group("/", Auth())
	authed.Get("/session", api.Session)
	authed.Get("/blacklist", api.ListBlacklist)
	authed.Post("/blacklist", api.AddBlacklist)
	authed.Delete("/blacklist/:number", api.RemoveBlacklist)
	authed.Post("/sweep", api.SweepAll)
	authed.Post("/groups/:gid/sweep", api.SweepGroup)
	authed.Get("/groups/:gid/strikes/:number", api.StrikeCount)
	return app, bl, sw
}

func doReq(t *testing.T, app *fiber.App, method string, target string, body []byte, secret string) *http.Response {
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if secret != "" {
		req.Header.Set("X-Admin-Secret", secret)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	return resp
}

func TestHealthIsPublic(t *testing.T) {
	app, _, _ := newTestApp(t)
	resp := doReq(t, app, http.MethodGet, "/health", nil, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAdminRoutesRequireSecret(t *testing.T) {
	app, _, _ := newTestApp(t)

	resp := doReq(t, app, http.MethodGet, "/blacklist", nil, "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = doReq(t, app, http.MethodGet, "/blacklist", nil, "wrong")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = doReq(t, app, http.MethodGet, "/blacklist", nil, "s3cret")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAddAndRemoveBlacklist(t *testing.T) {
	app, bl, _ := newTestApp(t)

	body, _ := json.Marshal(map[string]string{"number": "11999990005", "reason": "spam"})
	resp := doReq(t, app, http.MethodPost, "/blacklist", body, "s3cret")
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Len(t, bl.entries, 1)

	// Adding the same number again is a no-op, not an error.
	resp = doReq(t, app, http.MethodPost, "/blacklist", body, "s3cret")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, bl.entries, 1)

	resp = doReq(t, app, http.MethodDelete, "/blacklist/11999990005", nil, "s3cret")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, bl.entries)

	resp = doReq(t, app, http.MethodDelete, "/blacklist/11999990005", nil, "s3cret")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAddBlacklistValidation(t *testing.T) {
	app, _, _ := newTestApp(t)

	body, _ := json.Marshal(map[string]string{"number": "", "reason": "spam"})
	resp := doReq(t, app, http.MethodPost, "/blacklist", body, "s3cret")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestStrikeCountEndpoint(t *testing.T) {
	app, _, _ := newTestApp(t)

	resp := doReq(t, app, http.MethodGet, "/groups/123@g.us/strikes/5511999990002", nil, "s3cret")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Data struct {
			Number string `json:"number"`
			Count  int    `json:"count"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "5511999990002", body.Data.Number)
	assert.Equal(t, 2, body.Data.Count)

	// A member without a record reads as zero, not as an error.
	resp = doReq(t, app, http.MethodGet, "/groups/123@g.us/strikes/5511888880000", nil, "s3cret")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = doReq(t, app, http.MethodGet, "/groups/123@g.us/strikes/abc", nil, "s3cret")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSweepEndpoints(t *testing.T) {
	app, _, sw := newTestApp(t)

	resp := doReq(t, app, http.MethodPost, "/sweep", nil, "s3cret")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, sw.allCalls)

	resp = doReq(t, app, http.MethodPost, "/groups/123@g.us/sweep", nil, "s3cret")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, sw.groupCalls)
}
