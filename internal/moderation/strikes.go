package moderation

import (
	"context"
	"fmt"
	"time"

	"github.com/damasnight/whatsapp-mod-bot/pkg/identity"
	"github.com/damasnight/whatsapp-mod-bot/pkg/log"
	"github.com/damasnight/whatsapp-mod-bot/pkg/whatsapp"
)

const (
	strikeCommand = "#adv"
	// The third strike converts into removal from the group.
	strikeLimit = 3

	adminOnlyNoticeTTL = 5 * time.Second
)

// StrikePolicy implements the warning ladder: admins issue strikes with
// #adv, and the third strike removes the member and clears their record.
type StrikePolicy struct {
	Transport Transport
	Strikes   StrikeStore
}

func NewStrikePolicy(t Transport, s StrikeStore) *StrikePolicy {
	return &StrikePolicy{Transport: t, Strikes: s}
}

func (p *StrikePolicy) Name() string { return "strikes" }

// Matches accepts the marker anywhere in the text so strikes can be issued
// from a caption or alongside a comment ("isso não pode #adv").
func (p *StrikePolicy) Matches(e *Event) bool {
	return e.HasMarker(strikeCommand)
}

func (p *StrikePolicy) Handle(ctx context.Context, e *Event) error {
	isAdmin, info, err := senderIsAdmin(ctx, p.Transport, e)
	if err != nil {
		return err
	}
	if !isAdmin {
		sendAndDelete(ctx, p.Transport, e.ChatJID,
			BotTitle+"\n\n⛔ Somente admins podem dar advertências.", nil, adminOnlyNoticeTTL)
		return nil
	}

	targets := e.TargetUsers(strikeCommand)
	if len(targets) == 0 {
		sendAndDelete(ctx, p.Transport, e.ChatJID,
			BotTitle+"\n\n⚠️ Marque alguém, responda uma mensagem ou informe o número para advertir.", nil, adminOnlyNoticeTTL)
		return nil
	}

	for _, target := range targets {
		if info.IsAdmin(target) || identity.Same(target, p.Transport.BotJID()) {
			sendAndDelete(ctx, p.Transport, e.ChatJID,
				BotTitle+"\n\n😅 Admins e o bot não recebem advertências.", nil, adminOnlyNoticeTTL)
			continue
		}
		// A strike against someone already gone must not leave a record
		// behind, let alone trigger a removal.
		if !info.IsMember(target) {
			sendAndDelete(ctx, p.Transport, e.ChatJID,
				fmt.Sprintf("%s\n\nℹ️ @%s não está mais neste grupo. Nenhuma advertência aplicada.",
					BotTitle, whatsapp.DecomposeJID(target)),
				[]string{target}, adminOnlyNoticeTTL)
			continue
		}
		if err := p.strike(ctx, e, target); err != nil {
			log.ModOp(e.ChatJID, p.Name()).Error("Strike failed for " + target + ": " + err.Error())
		}
	}

	// Acknowledge the command itself so admins know it landed.
	if err := p.Transport.React(ctx, e.ChatJID, e.MessageID, e.SenderJID, "⚠️"); err != nil {
		log.ModOp(e.ChatJID, p.Name()).Warn("Failed to react to strike command: " + err.Error())
	}
	return nil
}

func (p *StrikePolicy) strike(ctx context.Context, e *Event, target string) error {
	count, err := p.Strikes.Increment(ctx, target, e.ChatJID)
	if err != nil {
		return fmt.Errorf("incrementing strikes: %w", err)
	}

	mention := "@" + whatsapp.DecomposeJID(target)
	if count < strikeLimit {
		text := fmt.Sprintf("%s\n\n⚠️ %s recebeu uma advertência! (%d/%d)\nNa terceira, tchau. 👋",
			BotTitle, mention, count, strikeLimit)
		_, err := p.Transport.SendText(ctx, e.ChatJID, text, []string{target})
		return err
	}

	if _, err := p.Transport.RemoveParticipants(ctx, e.ChatJID, []string{target}); err != nil {
		return fmt.Errorf("removing member after third strike: %w", err)
	}
	if err := p.Strikes.Reset(ctx, target, e.ChatJID); err != nil {
		log.ModOp(e.ChatJID, p.Name()).Error("Failed to reset strikes for " + target + ": " + err.Error())
	}

	text := fmt.Sprintf("%s\n\n🔨 %s atingiu %d advertências e foi removido do grupo.",
		BotTitle, mention, strikeLimit)
	_, err = p.Transport.SendText(ctx, e.ChatJID, text, []string{target})
	return err
}
