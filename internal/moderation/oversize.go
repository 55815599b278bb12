package moderation

import (
	"context"
	"fmt"

	"github.com/damasnight/whatsapp-mod-bot/pkg/whatsapp"
)

const (
	// Non-admins mentioning more than this many members in one message are
	// treated as spamming.
	massMentionLimit = 5
	maxMessageRunes  = 4096
)

// OversizePolicy deletes spammy messages from non-admins: mass mentions and
// walls of text.
type OversizePolicy struct {
	Transport Transport
}

func NewOversizePolicy(t Transport) *OversizePolicy {
	return &OversizePolicy{Transport: t}
}

func (p *OversizePolicy) Name() string { return "oversize" }

func (p *OversizePolicy) Matches(e *Event) bool {
	if e.FromMe {
		return false
	}
	return len(e.Mentions) > massMentionLimit || len([]rune(e.Text)) > maxMessageRunes
}

func (p *OversizePolicy) Handle(ctx context.Context, e *Event) error {
	info, err := p.Transport.GroupInfo(ctx, e.ChatJID)
	if err != nil {
		return fmt.Errorf("fetching group info: %w", err)
	}
	if info.IsAdmin(e.SenderJID) {
		return nil
	}

	if err := p.Transport.DeleteMessage(ctx, e.ChatJID, e.MessageID, e.SenderJID); err != nil {
		return fmt.Errorf("deleting oversize message: %w", err)
	}

	reason := "marcar tanta gente assim"
	if len([]rune(e.Text)) > maxMessageRunes {
		reason = "mandar textão desse tamanho"
	}
	text := fmt.Sprintf("%s\n\n🚫 @%s, aqui não pode %s.",
		BotTitle, whatsapp.DecomposeJID(e.SenderJID), reason)
	sendAndDelete(ctx, p.Transport, e.ChatJID, text, []string{e.SenderJID}, checkNoticeTTL)
	return nil
}
