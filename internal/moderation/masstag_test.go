package moderation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func massTagEvent(sender string, text string) *Event {
	return &Event{
		MessageID: "TAG-1",
		ChatJID:   testGroup,
		SenderJID: sender,
		SenderID:  sender,
		Text:      text,
		Timestamp: time.Now(),
	}
}

func TestMassTagDisabledByDefault(t *testing.T) {
	ft := &fakeTransport{botJID: botJID, group: testGroupInfo()}
	p := NewMassTagPolicy(ft)

	require.NoError(t, p.Handle(context.Background(), massTagEvent(adminJID, "#all damas")))

	require.NotEmpty(t, ft.texts)
	assert.Contains(t, ft.texts[0].text, "desativada")
	assert.Empty(t, ft.texts[0].mentions)
}

func TestMassTagToggle(t *testing.T) {
	ft := &fakeTransport{botJID: botJID, group: testGroupInfo()}
	p := NewMassTagPolicy(ft)
	ctx := context.Background()

	require.NoError(t, p.Handle(ctx, massTagEvent(adminJID, "!autotag-on")))
	assert.True(t, p.isEnabled(testGroup))

	require.NoError(t, p.Handle(ctx, massTagEvent(adminJID, "!autotag-off")))
	assert.False(t, p.isEnabled(testGroup))
}

func TestMassTagMentionsEveryoneButBot(t *testing.T) {
	ft := &fakeTransport{botJID: botJID, group: testGroupInfo()}
	p := NewMassTagPolicy(ft)
	ctx := context.Background()

	require.NoError(t, p.Handle(ctx, massTagEvent(adminJID, "!autotag-on")))
	require.NoError(t, p.Handle(ctx, massTagEvent(adminJID, "#all damas festa hoje!")))

	last := ft.texts[len(ft.texts)-1]
	assert.Contains(t, last.text, "festa hoje!")
	assert.Contains(t, last.mentions, adminJID)
	assert.Contains(t, last.mentions, memberJID)
	assert.Contains(t, last.mentions, member2JID)
	assert.NotContains(t, last.mentions, botJID)
}

func TestMassTagMarkerAnywhereInText(t *testing.T) {
	ft := &fakeTransport{botJID: botJID, group: testGroupInfo()}
	p := NewMassTagPolicy(ft)
	ctx := context.Background()

	assert.True(t, p.Matches(massTagEvent(adminJID, "Festa hoje às 22h #all damas")))
	assert.False(t, p.Matches(massTagEvent(adminJID, "#all as damas")))

	require.NoError(t, p.Handle(ctx, massTagEvent(adminJID, "!autotag-on")))
	require.NoError(t, p.Handle(ctx, massTagEvent(adminJID, "Festa hoje às 22h #all damas")))

	last := ft.texts[len(ft.texts)-1]
	assert.Contains(t, last.text, "Festa hoje às 22h")
	assert.NotContains(t, last.text, "#all damas", "marker is stripped from the announcement")
	assert.Contains(t, last.mentions, memberJID)
	assert.Contains(t, last.mentions, member2JID)
}

func TestMassTagRejectsNonAdmin(t *testing.T) {
	ft := &fakeTransport{botJID: botJID, group: testGroupInfo()}
	p := NewMassTagPolicy(ft)
	ctx := context.Background()

	require.NoError(t, p.Handle(ctx, massTagEvent(adminJID, "!autotag-on")))
	sentBefore := len(ft.texts)

	require.NoError(t, p.Handle(ctx, massTagEvent(memberJID, "#all damas oi")))
	require.Len(t, ft.texts, sentBefore+1)
	assert.Contains(t, ft.texts[sentBefore].text, "Somente admins")
}

func TestMassTagUpdateRefreshesSnapshot(t *testing.T) {
	ft := &fakeTransport{botJID: botJID, group: testGroupInfo()}
	p := NewMassTagPolicy(ft)
	ctx := context.Background()

	require.NoError(t, p.Handle(ctx, massTagEvent(adminJID, "!autotag-on")))
	require.NoError(t, p.Handle(ctx, massTagEvent(adminJID, "#all damas")))
	callsAfterTag := ft.groupCalls

	// The forced refresh bypasses the still-fresh snapshot.
	require.NoError(t, p.Handle(ctx, massTagEvent(adminJID, "!autotag-update")))
	assert.Equal(t, callsAfterTag+2, ft.groupCalls, "admin check plus a fresh roster fetch")
	assert.Contains(t, ft.texts[len(ft.texts)-1].text, "atualizada")
}

func TestMassTagSnapshotCache(t *testing.T) {
	ft := &fakeTransport{botJID: botJID, group: testGroupInfo()}
	p := NewMassTagPolicy(ft)
	now := time.Now()
	p.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, p.Handle(ctx, massTagEvent(adminJID, "!autotag-on")))
	require.NoError(t, p.Handle(ctx, massTagEvent(adminJID, "#all damas")))
	callsAfterFirst := ft.groupCalls

	// A second tag within the TTL only pays the admin check, not a second
	// roster fetch.
	require.NoError(t, p.Handle(ctx, massTagEvent(adminJID, "#all damas")))
	assert.Equal(t, callsAfterFirst+1, ft.groupCalls)

	// Past the TTL the roster is fetched again.
	now = now.Add(snapshotTTL + time.Minute)
	require.NoError(t, p.Handle(ctx, massTagEvent(adminJID, "#all damas")))
	assert.Equal(t, callsAfterFirst+3, ft.groupCalls)
}
