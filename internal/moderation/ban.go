package moderation

import (
	"context"
	"fmt"

	"github.com/damasnight/whatsapp-mod-bot/pkg/identity"
	"github.com/damasnight/whatsapp-mod-bot/pkg/log"
	"github.com/damasnight/whatsapp-mod-bot/pkg/whatsapp"
)

const banCommand = "#ban"

// BanPolicy removes members on an admin's #ban command. Non-admin attempts
// are ignored without a reply so the command stays unadvertised.
type BanPolicy struct {
	Transport Transport
}

func NewBanPolicy(t Transport) *BanPolicy {
	return &BanPolicy{Transport: t}
}

func (p *BanPolicy) Name() string { return "ban" }

// Matches accepts the marker anywhere in the text, so a ban can ride on a
// forwarded message or a caption ("spam #ban").
func (p *BanPolicy) Matches(e *Event) bool {
	return e.HasMarker(banCommand)
}

func (p *BanPolicy) Handle(ctx context.Context, e *Event) error {
	isAdmin, info, err := senderIsAdmin(ctx, p.Transport, e)
	if err != nil {
		return err
	}
	if !isAdmin {
		return nil
	}

	targets := e.TargetUsers(banCommand)
	if len(targets) == 0 {
		sendAndDelete(ctx, p.Transport, e.ChatJID,
			BotTitle+"\n\n⚠️ Marque alguém, responda uma mensagem ou informe o número para banir.", nil, adminOnlyNoticeTTL)
		return nil
	}

	removable := make([]string, 0, len(targets))
	for _, target := range targets {
		if info.IsAdmin(target) || identity.Same(target, p.Transport.BotJID()) {
			sendAndDelete(ctx, p.Transport, e.ChatJID,
				BotTitle+"\n\n😅 Não dá pra banir admins nem o bot.", nil, adminOnlyNoticeTTL)
			continue
		}
		if !info.IsMember(target) {
			log.ModOp(e.ChatJID, p.Name()).Warn("Ban target is not in the group: " + target)
			continue
		}
		removable = append(removable, target)
	}
	if len(removable) == 0 {
		return nil
	}

	removed, err := p.Transport.RemoveParticipants(ctx, e.ChatJID, removable)
	if err != nil {
		return fmt.Errorf("removing banned members: %w", err)
	}
	for _, r := range removed {
		text := fmt.Sprintf("%s\n\n🔨 @%s foi banido do grupo.", BotTitle, whatsapp.DecomposeJID(r))
		if _, err := p.Transport.SendText(ctx, e.ChatJID, text, []string{r}); err != nil {
			log.ModOp(e.ChatJID, p.Name()).Error("Failed to announce ban: " + err.Error())
		}
	}
	return nil
}
