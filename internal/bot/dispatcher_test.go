package bot

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"

	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"

	"github.com/damasnight/whatsapp-mod-bot/internal/moderation"
)

type recorder struct {
	mu     sync.Mutex
	events []*moderation.Event
}

func (r *recorder) Name() string                { return "recorder" }
func (r *recorder) Matches(*moderation.Event) bool { return true }
func (r *recorder) Handle(_ context.Context, e *moderation.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recorder) seen() []*moderation.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events
}

func newTestDispatcher(rec *recorder) *Dispatcher {
	d := NewDispatcher(moderation.NewChain([]moderation.Policy{rec}, nil))
	d.staleness = 30 * time.Second
	return d
}

func groupMessage(text string, sentAt time.Time) *events.Message {
	return &events.Message{
		Info: types.MessageInfo{
			MessageSource: types.MessageSource{
				Chat:   types.NewJID("123456789123456789", types.GroupServer),
				Sender: types.NewJID("5511999990002", types.DefaultUserServer),
			},
			ID:        "MSG-1",
			PushName:  "Fulana",
			Timestamp: sentAt,
		},
		Message: &waE2E.Message{Conversation: proto.String(text)},
	}
}

func TestDispatcherDeliversFreshGroupMessage(t *testing.T) {
	rec := &recorder{}
	d := newTestDispatcher(rec)

	d.HandleMessage(groupMessage("oi damas", time.Now()))

	require.Len(t, rec.seen(), 1)
	e := rec.seen()[0]
	assert.Equal(t, "oi damas", e.Text)
	assert.Equal(t, "MSG-1", e.MessageID)
	assert.Equal(t, "5511999990002@s.whatsapp.net", e.SenderID)
}

func TestDispatcherDropsStaleMessages(t *testing.T) {
	rec := &recorder{}
	d := newTestDispatcher(rec)

	d.HandleMessage(groupMessage("mensagem velha", time.Now().Add(-time.Minute)))
	assert.Empty(t, rec.seen())
}

func TestDispatcherDropsZeroTimestamp(t *testing.T) {
	rec := &recorder{}
	d := newTestDispatcher(rec)

	d.HandleMessage(groupMessage("sem hora", time.Time{}))
	assert.Empty(t, rec.seen())
}

func TestDispatcherDropsOwnMessages(t *testing.T) {
	rec := &recorder{}
	d := newTestDispatcher(rec)

	msg := groupMessage("eco do bot", time.Now())
	msg.Info.IsFromMe = true
	d.HandleMessage(msg)
	assert.Empty(t, rec.seen())
}

func TestDispatcherDropsDirectChats(t *testing.T) {
	rec := &recorder{}
	d := newTestDispatcher(rec)

	msg := groupMessage("papo privado", time.Now())
	msg.Info.Chat = types.NewJID("5511999990002", types.DefaultUserServer)
	d.HandleMessage(msg)
	assert.Empty(t, rec.seen())
}

func TestDispatcherExtractsExtendedText(t *testing.T) {
	rec := &recorder{}
	d := newTestDispatcher(rec)

	msg := groupMessage("", time.Now())
	msg.Message = &waE2E.Message{
		ExtendedTextMessage: &waE2E.ExtendedTextMessage{
			Text: proto.String("#ban"),
			ContextInfo: &waE2E.ContextInfo{
				StanzaID:     proto.String("QUOTED-1"),
				Participant:  proto.String("5511999990003@s.whatsapp.net"),
				MentionedJID: []string{"5511999990004@s.whatsapp.net"},
				QuotedMessage: &waE2E.Message{
					Conversation: proto.String("texto citado"),
				},
			},
		},
	}
	d.HandleMessage(msg)

	require.Len(t, rec.seen(), 1)
	e := rec.seen()[0]
	assert.Equal(t, "#ban", e.Text)
	assert.Equal(t, []string{"5511999990004@s.whatsapp.net"}, e.Mentions)
	assert.Equal(t, "QUOTED-1", e.QuotedID)
	assert.Equal(t, "5511999990003@s.whatsapp.net", e.QuotedSender)
	assert.Equal(t, "texto citado", e.QuotedText)
}

func TestDispatcherExtractsImageCaption(t *testing.T) {
	rec := &recorder{}
	d := newTestDispatcher(rec)

	msg := groupMessage("", time.Now())
	msg.Message = &waE2E.Message{
		ImageMessage: &waE2E.ImageMessage{
			Caption: proto.String("#adv"),
			ContextInfo: &waE2E.ContextInfo{
				MentionedJID: []string{"5511999990004@s.whatsapp.net"},
			},
		},
	}
	d.HandleMessage(msg)

	require.Len(t, rec.seen(), 1)
	assert.Equal(t, "#adv", rec.seen()[0].Text)
}
