package moderation

import (
	"context"
	"fmt"
	"sync"

	"github.com/damasnight/whatsapp-mod-bot/pkg/whatsapp"
)

type sentText struct {
	chat     string
	text     string
	mentions []string
}

type deletedMsg struct {
	chat      string
	messageID string
	sender    string
}

// fakeTransport records outbound calls for assertions.
type fakeTransport struct {
	mu sync.Mutex

	botJID     string
	group      *whatsapp.GroupInfo
	groupErr   error
	inviteLink string
	sendErr    error
	deleteErr  error

	texts      []sentText
	audios     int
	deleted    []deletedMsg
	removed    [][]string
	reactions  []string
	announce   []bool
	groupCalls int
	nextMsgID  int
}

func (f *fakeTransport) SendText(_ context.Context, chat string, text string, mentions []string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return "", f.sendErr
	}
	f.texts = append(f.texts, sentText{chat: chat, text: text, mentions: mentions})
	f.nextMsgID++
	return fmt.Sprintf("MSG-%d", f.nextMsgID), nil
}

func (f *fakeTransport) SendImage(_ context.Context, chat string, _ []byte, _ string, caption string, mentions []string) (string, error) {
	return f.SendText(context.Background(), chat, caption, mentions)
}

func (f *fakeTransport) SendAudio(_ context.Context, _ string, _ []byte, _ string, _ uint32) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.audios++
	return "AUDIO", nil
}

func (f *fakeTransport) DeleteMessage(_ context.Context, chat string, messageID string, sender string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, deletedMsg{chat: chat, messageID: messageID, sender: sender})
	return nil
}

func (f *fakeTransport) React(_ context.Context, _ string, _ string, _ string, emoji string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reactions = append(f.reactions, emoji)
	return nil
}

func (f *fakeTransport) RemoveParticipants(_ context.Context, _ string, members []string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, members)
	return members, nil
}

func (f *fakeTransport) GroupInfo(_ context.Context, _ string) (*whatsapp.GroupInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.groupCalls++
	if f.groupErr != nil {
		return nil, f.groupErr
	}
	return f.group, nil
}

func (f *fakeTransport) InviteLink(_ context.Context, _ string, _ bool) (string, error) {
	return f.inviteLink, nil
}

func (f *fakeTransport) SetAnnounce(_ context.Context, _ string, announce bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.announce = append(f.announce, announce)
	return nil
}

func (f *fakeTransport) ProfilePicture(_ context.Context, _ string) ([]byte, error) {
	return nil, nil
}

func (f *fakeTransport) BotJID() string { return f.botJID }

func (f *fakeTransport) allRemoved() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, batch := range f.removed {
		out = append(out, batch...)
	}
	return out
}

const (
	testGroup  = "123456789123456789@g.us"
	adminJID   = "5511999990001@s.whatsapp.net"
	memberJID  = "5511999990002@s.whatsapp.net"
	member2JID = "5511999990003@s.whatsapp.net"
	botJID     = "5511999990099@s.whatsapp.net"
)

func testGroupInfo() *whatsapp.GroupInfo {
	return &whatsapp.GroupInfo{
		JID:  testGroup,
		Name: "Damas da Night",
		Participants: []whatsapp.GroupParticipant{
			{JID: adminJID, IsAdmin: true},
			{JID: memberJID},
			{JID: member2JID},
			{JID: botJID},
		},
	}
}

// fakeStrikes is an in-memory StrikeStore.
type fakeStrikes struct {
	mu     sync.Mutex
	counts map[string]int
}

func newFakeStrikes() *fakeStrikes {
	return &fakeStrikes{counts: make(map[string]int)}
}

func (s *fakeStrikes) Increment(_ context.Context, userID string, groupID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts[userID+"|"+groupID]++
	return s.counts[userID+"|"+groupID], nil
}

func (s *fakeStrikes) Count(_ context.Context, userID string, groupID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[userID+"|"+groupID], nil
}

func (s *fakeStrikes) Reset(_ context.Context, userID string, groupID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.counts, userID+"|"+groupID)
	return nil
}
