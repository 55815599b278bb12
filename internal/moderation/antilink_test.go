package moderation

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAntiLink(ft *fakeTransport) *AntiLink {
	p := NewAntiLink(ft)
	p.sleep = func(time.Duration) {}
	p.after = func(_ time.Duration, f func()) { f() }
	return p
}

func linkEvent(sender string) *Event {
	return &Event{
		MessageID: "LINK-1",
		ChatJID:   testGroup,
		SenderJID: sender,
		SenderID:  sender,
		Text:      "promoção imperdível https://spam.example.com/oferta",
		Timestamp: time.Now(),
	}
}

func TestAntiLinkMatches(t *testing.T) {
	p := newTestAntiLink(&fakeTransport{})
	assert.True(t, p.Matches(linkEvent(memberJID)))
	assert.False(t, p.Matches(&Event{Text: "sem link"}))
	fromMe := linkEvent(botJID)
	fromMe.FromMe = true
	assert.False(t, p.Matches(fromMe))
}

func TestAntiLinkIgnoresAdmins(t *testing.T) {
	ft := &fakeTransport{botJID: botJID, group: testGroupInfo()}
	p := newTestAntiLink(ft)

	require.NoError(t, p.Handle(context.Background(), linkEvent(adminJID)))
	assert.Empty(t, ft.deleted)
	assert.Empty(t, ft.texts)
}

func TestAntiLinkDeletesAndNotifies(t *testing.T) {
	ft := &fakeTransport{botJID: botJID, group: testGroupInfo()}
	p := newTestAntiLink(ft)

	require.NoError(t, p.Handle(context.Background(), linkEvent(memberJID)))

	// One immediate deletion plus the fallback pass.
	require.Len(t, ft.deleted, 2)
	assert.Equal(t, "LINK-1", ft.deleted[0].messageID)
	assert.Equal(t, memberJID, ft.deleted[0].sender)

	require.Len(t, ft.texts, 1)
	notice := ft.texts[0]
	assert.NotContains(t, notice.text, "spam.example.com")
	assert.Contains(t, notice.mentions, adminJID)
	assert.Contains(t, notice.mentions, memberJID)
}

func TestAntiLinkInviteLinkWording(t *testing.T) {
	ft := &fakeTransport{botJID: botJID, group: testGroupInfo()}
	p := newTestAntiLink(ft)

	e := linkEvent(memberJID)
	e.Text = "vem pro meu grupo chat.whatsapp.com/OutroGrupo"
	require.NoError(t, p.Handle(context.Background(), e))

	require.Len(t, ft.texts, 1)
	assert.Contains(t, ft.texts[0].text, "convite")
	assert.False(t, strings.Contains(ft.texts[0].text, "chat.whatsapp.com/OutroGrupo"))
}

func TestAntiLinkAllowsOwnInviteLink(t *testing.T) {
	ft := &fakeTransport{
		botJID:     botJID,
		group:      testGroupInfo(),
		inviteLink: "https://chat.whatsapp.com/NossoGrupo123",
	}
	p := newTestAntiLink(ft)

	e := linkEvent(memberJID)
	e.Text = "pra quem perdeu o link: https://chat.whatsapp.com/NossoGrupo123"
	require.NoError(t, p.Handle(context.Background(), e))

	assert.Empty(t, ft.deleted)
	assert.Empty(t, ft.texts)
}

func TestAntiLinkRejectsOwnLinkInsideForeignURL(t *testing.T) {
	ft := &fakeTransport{
		botJID:     botJID,
		group:      testGroupInfo(),
		inviteLink: "https://chat.whatsapp.com/NossoGrupo123",
	}
	p := newTestAntiLink(ft)

	// The own invite code buried in a foreign host is still a foreign link.
	e := linkEvent(memberJID)
	e.Text = "olha https://evil.com/chat.whatsapp.com/NossoGrupo123"
	require.NoError(t, p.Handle(context.Background(), e))

	assert.NotEmpty(t, ft.deleted)
}

func TestAntiLinkRetriesDeletion(t *testing.T) {
	ft := &fakeTransport{botJID: botJID, group: testGroupInfo(), deleteErr: errors.New("boom")}
	p := newTestAntiLink(ft)
	attempts := 0
	p.sleep = func(time.Duration) { attempts++ }

	require.NoError(t, p.Handle(context.Background(), linkEvent(memberJID)))
	// Two sleeps means three attempts were made before giving up.
	assert.Equal(t, 2, attempts)
}
