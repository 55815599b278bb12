// Package bot bridges raw WhatsApp events into the moderation pipeline.
package bot

import (
	"context"
	"strings"
	"time"

	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"

	"github.com/damasnight/whatsapp-mod-bot/internal/moderation"
	"github.com/damasnight/whatsapp-mod-bot/pkg/env"
	"github.com/damasnight/whatsapp-mod-bot/pkg/identity"
	"github.com/damasnight/whatsapp-mod-bot/pkg/log"
)

const (
	defaultStaleness = 30 * time.Second
	handleTimeout    = 2 * time.Minute
)

// Dispatcher filters inbound messages and runs the surviving ones through
// the policy chain. Everything here must be cheap; the heavy lifting happens
// inside the policies.
type Dispatcher struct {
	chain *moderation.Chain

	staleness time.Duration
	now       func() time.Time
}

func NewDispatcher(chain *moderation.Chain) *Dispatcher {
	return &Dispatcher{
		chain:     chain,
		staleness: env.GetEnvDurationOrDefault("MESSAGE_STALENESS", defaultStaleness),
		now:       time.Now,
	}
}

// HandleMessage is wired as the transport's message callback.
func (d *Dispatcher) HandleMessage(evt *events.Message) {
	e, ok := d.eventFrom(evt)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), handleTimeout)
	defer cancel()
	d.chain.Run(ctx, e)
}

// eventFrom converts a raw message into a moderation event, dropping
// anything the chain must never see: direct chats, the bot's own messages
// and stale backlog delivered after a reconnect.
func (d *Dispatcher) eventFrom(evt *events.Message) (*moderation.Event, bool) {
	if evt == nil || evt.Message == nil {
		return nil, false
	}
	if evt.Info.Chat.Server != types.GroupServer {
		return nil, false
	}
	if evt.Info.IsFromMe {
		return nil, false
	}
	if evt.Info.Timestamp.IsZero() {
		return nil, false
	}
	if age := d.now().Sub(evt.Info.Timestamp); age > d.staleness {
		log.ModOp(evt.Info.Chat.String(), "dispatch").Debug("Dropping stale message")
		return nil, false
	}

	text, mentions, quoted := extractContent(evt.Message)
	if strings.TrimSpace(text) == "" && len(mentions) == 0 {
		return nil, false
	}

	sender := evt.Info.Sender.String()
	return &moderation.Event{
		MessageID:    evt.Info.ID,
		ChatJID:      evt.Info.Chat.String(),
		SenderJID:    sender,
		SenderID:     identity.Normalize(sender),
		PushName:     evt.Info.PushName,
		Text:         text,
		Mentions:     mentions,
		QuotedID:     quoted.id,
		QuotedSender: quoted.sender,
		QuotedText:   quoted.text,
		FromMe:       evt.Info.IsFromMe,
		Timestamp:    evt.Info.Timestamp,
	}, true
}

type quotedRef struct {
	id     string
	sender string
	text   string
}

// extractContent pulls the text, mentions and quoted-message reference out
// of whichever message container is populated.
func extractContent(msg *waE2E.Message) (string, []string, quotedRef) {
	var text string
	var contextInfo *waE2E.ContextInfo

	switch {
	case msg.GetConversation() != "":
		text = msg.GetConversation()
	case msg.GetExtendedTextMessage() != nil:
		text = msg.GetExtendedTextMessage().GetText()
		contextInfo = msg.GetExtendedTextMessage().GetContextInfo()
	case msg.GetImageMessage() != nil:
		text = msg.GetImageMessage().GetCaption()
		contextInfo = msg.GetImageMessage().GetContextInfo()
	case msg.GetVideoMessage() != nil:
		text = msg.GetVideoMessage().GetCaption()
		contextInfo = msg.GetVideoMessage().GetContextInfo()
	case msg.GetDocumentMessage() != nil:
		text = msg.GetDocumentMessage().GetCaption()
		contextInfo = msg.GetDocumentMessage().GetContextInfo()
	}

	var mentions []string
	var quoted quotedRef
	if contextInfo != nil {
		mentions = contextInfo.GetMentionedJID()
		quoted.id = contextInfo.GetStanzaID()
		quoted.sender = contextInfo.GetParticipant()
		if q := contextInfo.GetQuotedMessage(); q != nil {
			quoted.text = quotedText(q)
		}
	}
	return text, mentions, quoted
}

func quotedText(msg *waE2E.Message) string {
	switch {
	case msg.GetConversation() != "":
		return msg.GetConversation()
	case msg.GetExtendedTextMessage() != nil:
		return msg.GetExtendedTextMessage().GetText()
	case msg.GetImageMessage() != nil:
		return msg.GetImageMessage().GetCaption()
	}
	return ""
}
