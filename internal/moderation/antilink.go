package moderation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/damasnight/whatsapp-mod-bot/pkg/log"
	"github.com/damasnight/whatsapp-mod-bot/pkg/whatsapp"
)

const (
	deleteRetryCount    = 3
	deleteRetryInterval = 50 * time.Millisecond
	// A second deletion attempt fires after the message had time to fully
	// propagate; revokes sent too early are sometimes ignored by clients.
	deleteFallbackDelay = 1500 * time.Millisecond
)

// AntiLink deletes link-carrying messages from non-admins and calls the
// admins into the thread. The offending URL is never echoed back.
type AntiLink struct {
	Transport Transport

	// sleep is swapped out in tests.
	sleep func(time.Duration)
	after func(time.Duration, func())
}

func NewAntiLink(t Transport) *AntiLink {
	return &AntiLink{
		Transport: t,
		sleep:     time.Sleep,
		after:     func(d time.Duration, f func()) { time.AfterFunc(d, f) },
	}
}

func (p *AntiLink) Name() string { return "antilink" }

func (p *AntiLink) Matches(e *Event) bool {
	return !e.FromMe && ContainsLink(e.Text)
}

func (p *AntiLink) Handle(ctx context.Context, e *Event) error {
	info, err := p.Transport.GroupInfo(ctx, e.ChatJID)
	if err != nil {
		return fmt.Errorf("fetching group info: %w", err)
	}
	if info.IsAdmin(e.SenderJID) {
		return nil
	}
	if p.onlyOwnInviteLink(ctx, e) {
		return nil
	}

	p.deleteWithRetry(ctx, e)

	messageID := e.MessageID
	senderJID := e.SenderJID
	chatJID := e.ChatJID
	p.after(deleteFallbackDelay, func() {
		fallbackCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := p.Transport.DeleteMessage(fallbackCtx, chatJID, messageID, senderJID); err != nil {
			log.ModOp(chatJID, p.Name()).Warn("Fallback deletion failed: " + err.Error())
		}
	})

	p.notifyAdmins(ctx, e, info)
	return nil
}

// onlyOwnInviteLink reports whether every link in the message is the
// group's own invite link. Sharing the group's own link is not a violation.
func (p *AntiLink) onlyOwnInviteLink(ctx context.Context, e *Event) bool {
	candidates := LinkCandidates(e.Text)
	if len(candidates) == 0 {
		return false
	}
	ownLink, err := p.Transport.InviteLink(ctx, e.ChatJID, false)
	if err != nil || ownLink == "" {
		return false
	}
	own := NormalizeLink(ownLink)
	for _, candidate := range candidates {
		// Only a candidate contained in the own link is exempt. The other
		// direction would let a foreign URL smuggle the own link inside it.
		if !strings.Contains(own, candidate) {
			return false
		}
	}
	return true
}

func (p *AntiLink) deleteWithRetry(ctx context.Context, e *Event) {
	var lastErr error
	for attempt := 0; attempt < deleteRetryCount; attempt++ {
		if attempt > 0 {
			p.sleep(deleteRetryInterval)
		}
		lastErr = p.Transport.DeleteMessage(ctx, e.ChatJID, e.MessageID, e.SenderJID)
		if lastErr == nil {
			return
		}
	}
	log.ModOp(e.ChatJID, p.Name()).Error("All deletion attempts failed: " + lastErr.Error())
}

func (p *AntiLink) notifyAdmins(ctx context.Context, e *Event, info *whatsapp.GroupInfo) {
	admins := info.Admins()
	mentions := make([]string, 0, len(admins)+1)
	mentionText := make([]string, 0, len(admins))
	for _, admin := range admins {
		mentions = append(mentions, admin)
		mentionText = append(mentionText, "@"+whatsapp.DecomposeJID(admin))
	}
	mentions = append(mentions, e.SenderJID)

	offense := "um link"
	if ContainsInviteLink(e.Text) {
		offense = "um link de convite de outro grupo"
	}

	text := fmt.Sprintf("%s\n\n🚫 A mensagem de @%s foi apagada por conter %s.\nAdmins, fiquem de olho: %s",
		BotTitle, whatsapp.DecomposeJID(e.SenderJID), offense, strings.Join(mentionText, " "))

	if _, err := p.Transport.SendText(ctx, e.ChatJID, text, mentions); err != nil {
		log.ModOp(e.ChatJID, p.Name()).Error("Failed to notify admins: " + err.Error())
	}
}
