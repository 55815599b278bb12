package greeting

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/damasnight/whatsapp-mod-bot/pkg/whatsapp"
)

const (
	testGroup = "123456789123456789@g.us"
	newbieJID = "5511999990005@s.whatsapp.net"
)

type fakeTransport struct {
	mu sync.Mutex

	picture    []byte
	pictureErr error
	topic      string

	texts  []string
	images []string
}

func (f *fakeTransport) SendText(_ context.Context, _ string, text string, _ []string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, text)
	return "MSG", nil
}

func (f *fakeTransport) SendImage(_ context.Context, _ string, _ []byte, _ string, caption string, _ []string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.images = append(f.images, caption)
	return "IMG", nil
}

func (f *fakeTransport) ProfilePicture(context.Context, string) ([]byte, error) {
	return f.picture, f.pictureErr
}

func (f *fakeTransport) GroupInfo(context.Context, string) (*whatsapp.GroupInfo, error) {
	return &whatsapp.GroupInfo{JID: testGroup, Topic: f.topic}, nil
}

func newTestGreeter(ft *fakeTransport) *Greeter {
	g := NewGreeter(ft, "BOT")
	g.pick = func(int) int { return 0 }
	g.after = func(_ time.Duration, f func()) { f() }
	return g
}

func TestWelcomeWithProfilePicture(t *testing.T) {
	ft := &fakeTransport{picture: []byte{0xFF, 0xD8}, topic: "1. Sem links"}
	g := newTestGreeter(ft)

	g.Welcome(context.Background(), testGroup, newbieJID)

	require.Len(t, ft.images, 1, "welcome rides on the profile picture")
	assert.Contains(t, ft.images[0], "5511999990005")

	require.Len(t, ft.texts, 1, "rules follow the welcome")
	assert.Contains(t, ft.texts[0], "Regras da casa")
	assert.Contains(t, ft.texts[0], "Sem links")
}

func TestWelcomeWithoutProfilePicture(t *testing.T) {
	ft := &fakeTransport{pictureErr: errors.New("not visible")}
	g := newTestGreeter(ft)

	g.Welcome(context.Background(), testGroup, newbieJID)

	assert.Empty(t, ft.images)
	require.NotEmpty(t, ft.texts)
	assert.Contains(t, ft.texts[0], "bem-vinda")
}

func TestWelcomeSkipsRulesWithoutTopic(t *testing.T) {
	ft := &fakeTransport{pictureErr: errors.New("not visible"), topic: ""}
	g := newTestGreeter(ft)

	g.Welcome(context.Background(), testGroup, newbieJID)

	require.Len(t, ft.texts, 1, "only the welcome, no rules message")
}

func TestWelcomeRulesCanBeDisabled(t *testing.T) {
	t.Setenv("GREETING_RULES_ENABLED", "false")

	ft := &fakeTransport{pictureErr: errors.New("not visible"), topic: "1. Sem links"}
	g := newTestGreeter(ft)

	g.Welcome(context.Background(), testGroup, newbieJID)

	require.Len(t, ft.texts, 1, "only the welcome when rules are off")
	assert.NotContains(t, ft.texts[0], "Regras da casa")
}

func TestFarewell(t *testing.T) {
	ft := &fakeTransport{}
	g := newTestGreeter(ft)

	g.Farewell(context.Background(), testGroup, newbieJID)

	require.Len(t, ft.texts, 1)
	assert.Contains(t, ft.texts[0], "5511999990005")
}
